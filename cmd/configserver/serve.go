package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/vatsan127/config-server/cache"
	"github.com/vatsan127/config-server/cipher"
	"github.com/vatsan127/config-server/configstore"
	"github.com/vatsan127/config-server/gitrepo"
	"github.com/vatsan127/config-server/notify"
	"github.com/vatsan127/config-server/resolver"
	"github.com/vatsan127/config-server/secretproc"
	"github.com/vatsan127/config-server/server"
	"github.com/vatsan127/config-server/serverconfig"
	"github.com/vatsan127/config-server/vault"
)

// embeddedDefaultVaultKey is a fixed, non-secret 32-byte key used only when
// no vaultMasterKey is configured, so a fresh checkout still runs. Cipher.New
// logs a prominent warning whenever this path is taken, per spec §4.2.
const embeddedDefaultVaultKey = "MDEyMzQ1Njc4OTAxMjM0NTY3ODkwMTIzNDU2Nzg5MDE="

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the configserver HTTP management and resolution API",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("addr", ":8888", "address to listen on")
	serveCmd.Flags().String("base-path", "", "root directory under which namespaces live (required)")
	serveCmd.Flags().String("vault-master-key", "", "base64-encoded 256-bit vault master key")
	serveCmd.Flags().Int("commit-history-size", serverconfig.DefaultCommitHistorySize, "max commits returned by history endpoints")
	serveCmd.Flags().Int("cache-ttl", serverconfig.DefaultCacheTTLSeconds, "cache entry time-to-live in seconds")
	serveCmd.Flags().Int("notify-workers", notify.DefaultWorkers, "notifier worker pool size")
}

func runServe(cmd *cobra.Command, args []string) error {
	v := viper.New()
	v.BindPFlag("configserver.basePath", cmd.Flags().Lookup("base-path"))
	v.BindPFlag("configserver.vaultMasterKey", cmd.Flags().Lookup("vault-master-key"))
	v.BindPFlag("configserver.commitHistorySize", cmd.Flags().Lookup("commit-history-size"))
	v.BindPFlag("configserver.cacheTTL", cmd.Flags().Lookup("cache-ttl"))

	cfg, err := serverconfig.Load(v, cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		// Exit code 1 if the base directory does not exist at startup, per
		// spec §6.
		return err
	}

	ciph, err := cipher.New(cfg.VaultMasterKey, embeddedDefaultVaultKey)
	if err != nil {
		return fmt.Errorf("failed to initialize cipher: %w", err)
	}

	c := cache.New(cache.DefaultMaxEntries, time.Duration(cfg.CacheTTLSeconds)*time.Second)
	gateway := gitrepo.New(cfg.BasePath)
	vaults := vault.New(gateway, ciph, c)
	proc := secretproc.New(vaults)
	configs := configstore.New(gateway, c, proc, cfg.CommitHistorySize)
	resolve := resolver.New(configs, proc)

	notifyWorkers, _ := cmd.Flags().GetInt("notify-workers")
	notifyStore := notify.NewStore()
	notifier := notify.New(notifyStore, notifyWorkers, func(ns string) (string, bool) {
		url, ok := cfg.RefreshNotifyURL[ns]
		return url, ok && url != ""
	})

	srv := server.New(configs, vaults, resolve, notifier)

	addr, _ := cmd.Flags().GetString("addr")

	sigCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start(addr)
	}()

	select {
	case err := <-errCh:
		return err
	case <-sigCtx.Done():
		logrus.Info("configserver: shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		names, listErr := configs.ListNamespaces(shutdownCtx)
		if listErr != nil {
			logrus.WithError(listErr).Warn("configserver: failed to list namespaces during shutdown")
		}
		if err := srv.Shutdown(shutdownCtx, names); err != nil {
			return fmt.Errorf("error during shutdown: %w", err)
		}
		return nil
	}
}
