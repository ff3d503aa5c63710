// Package main is the configserver process entrypoint: a cobra root command
// with a serve subcommand, configured via viper per spec §6.
package main

import (
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "configserver",
	Short: "Git-backed configuration and secret management service",
	Long: `configserver versions YAML configuration per namespace in a local Git
repository, stores secrets in a per-namespace encrypted vault, and resolves
merged, secret-substituted configuration views for pull-based clients.`,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "path to a configserver YAML config file")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")

	cobra.OnInitialize(func() {
		level, err := logrus.ParseLevel(rootCmd.PersistentFlags().Lookup("log-level").Value.String())
		if err != nil {
			level = logrus.InfoLevel
		}
		logrus.SetLevel(level)
	})
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
