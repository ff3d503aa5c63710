// Package serverconfig loads the configserver process configuration via
// viper: a YAML file (keys nested under a top-level "configserver:" section,
// per spec §6), CONFIGSERVER_* environment variables, and flags, in that
// precedence order (flags highest).
package serverconfig

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Config is the process-wide configuration described in spec §6.
type Config struct {
	BasePath          string            `mapstructure:"basePath"`
	VaultMasterKey    string            `mapstructure:"vaultMasterKey"`
	CommitHistorySize int               `mapstructure:"commitHistorySize"`
	CacheTTLSeconds   int               `mapstructure:"cacheTTL"`
	RefreshNotifyURL  map[string]string `mapstructure:"refreshNotifyUrl"`
}

type fileConfig struct {
	Configserver Config `mapstructure:"configserver"`
}

// DefaultCommitHistorySize is used when commitHistorySize is unset or <= 0.
const DefaultCommitHistorySize = 20

// DefaultCacheTTLSeconds is used when cacheTTL is unset or <= 0.
const DefaultCacheTTLSeconds = 600

// EnvVaultMasterKey is the dedicated override env var called out by spec §4.2.
const EnvVaultMasterKey = "VAULT_MASTER_KEY"

// Load reads configuration from the optional file at path (if non-empty),
// CONFIGSERVER_<KEY> environment variables, and whatever v already has bound
// from flags under the "configserver." prefix, in viper's usual
// flag > env > file > default precedence.
func Load(v *viper.Viper, path string) (*Config, error) {
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("configserver.commitHistorySize", DefaultCommitHistorySize)
	v.SetDefault("configserver.cacheTTL", DefaultCacheTTLSeconds)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	var fc fileConfig
	if err := v.Unmarshal(&fc); err != nil {
		return nil, fmt.Errorf("failed to decode configuration: %w", err)
	}
	cfg := fc.Configserver

	if cfg.CommitHistorySize <= 0 {
		cfg.CommitHistorySize = DefaultCommitHistorySize
	}
	if cfg.CacheTTLSeconds <= 0 {
		cfg.CacheTTLSeconds = DefaultCacheTTLSeconds
	}
	if override := os.Getenv(EnvVaultMasterKey); override != "" {
		cfg.VaultMasterKey = override
	}

	return &cfg, nil
}

// Validate fails fast if BasePath does not exist, per spec §6 exit codes.
func (c *Config) Validate() error {
	if c.BasePath == "" {
		return fmt.Errorf("configserver.basePath is required")
	}
	info, err := os.Stat(c.BasePath)
	if err != nil {
		return fmt.Errorf("configserver.basePath %q does not exist: %w", c.BasePath, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("configserver.basePath %q is not a directory", c.BasePath)
	}
	return nil
}
