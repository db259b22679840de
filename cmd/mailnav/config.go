package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/spf13/viper"

	"github.com/tinytelemetry/mailnav/internal/backup"
	"github.com/tinytelemetry/mailnav/internal/duckdb"
	"github.com/tinytelemetry/mailnav/internal/httpserver"
	"github.com/tinytelemetry/mailnav/internal/model"
)

const (
	defaultQueryTimeout       = duckdb.DefaultQueryTimeout
	defaultSessionTTL         = model.DefaultSessionTTL
	defaultQuarantineDays     = 30 // days, 0 = disabled
	defaultBackupInterval     = 6 * time.Hour
	defaultBackupKeepLast     = 24
	defaultSessionSecretBytes = 32
)

// appConfig is internal runtime configuration of the backend.
type appConfig struct {
	ListenAddr           string        `mapstructure:"listen-addr"`
	DBPath               string        `mapstructure:"db-path"`
	SessionSecret        string        `mapstructure:"session-secret"`
	SessionTTL           time.Duration `mapstructure:"session-ttl"`
	SeedFile             string        `mapstructure:"seed-file"`
	QueryTimeout         time.Duration `mapstructure:"query-timeout"`
	PageSize             int           `mapstructure:"page-size"`
	LoginPath            string        `mapstructure:"login-path"`
	SessionExpiredStatus int           `mapstructure:"session-expired-status"`
	QuarantineRetention  int           `mapstructure:"quarantine-retention-days"`
	Backup               backup.Config `mapstructure:"backup"`
	ConfigPath           string        `mapstructure:"-"` // not from config file
}

func (c appConfig) httpConfig() httpserver.Config {
	return httpserver.Config{
		ListenAddr:           c.ListenAddr,
		SessionSecret:        c.SessionSecret,
		SessionTTL:           c.SessionTTL,
		LoginPath:            c.LoginPath,
		SessionExpiredStatus: c.SessionExpiredStatus,
	}
}

// defaultConfigPath is $XDG_CONFIG_HOME/mailnav/config.yml.
func defaultConfigPath() string {
	return filepath.Join(xdg.ConfigHome, "mailnav", "config.yml")
}

func loadConfig(configPath string) (appConfig, error) {
	var cfg appConfig

	v := viper.New()
	v.SetEnvPrefix("MAILNAV")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))

	v.SetDefault("listen-addr", httpserver.DefaultListenAddr)
	v.SetDefault("db-path", filepath.Join(xdg.DataHome, "mailnav", "mailnav.duckdb"))
	v.SetDefault("session-secret", "")
	v.SetDefault("session-ttl", defaultSessionTTL)
	v.SetDefault("seed-file", "")
	v.SetDefault("query-timeout", defaultQueryTimeout)
	v.SetDefault("page-size", model.DefaultPageSize)
	v.SetDefault("login-path", httpserver.DefaultLoginPath)
	v.SetDefault("session-expired-status", httpserver.DefaultSessionExpiredStatus)
	v.SetDefault("quarantine-retention-days", defaultQuarantineDays)
	v.SetDefault("backup.enabled", false)
	v.SetDefault("backup.interval", defaultBackupInterval)
	v.SetDefault("backup.local-dir", filepath.Join(xdg.DataHome, "mailnav", "backups"))
	v.SetDefault("backup.keep-last", defaultBackupKeepLast)
	v.SetDefault("backup.bucket-url", "")
	v.SetDefault("backup.s3-endpoint", "")
	v.SetDefault("backup.s3-region", "")
	v.SetDefault("backup.s3-access-key", "")
	v.SetDefault("backup.s3-secret-key", "")
	v.SetDefault("backup.s3-session-token", "")
	v.SetDefault("backup.s3-use-ssl", true)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigFile(defaultConfigPath())
	}

	if err := v.ReadInConfig(); err != nil {
		var configFileNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFound) && !os.IsNotExist(err) {
			return cfg, err
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, err
	}
	if _, err := os.Stat(v.ConfigFileUsed()); err == nil {
		cfg.ConfigPath = v.ConfigFileUsed()
	}

	if cfg.SessionTTL <= 0 {
		return cfg, fmt.Errorf("invalid session-ttl: %s", cfg.SessionTTL)
	}
	if cfg.SessionExpiredStatus < 100 || cfg.SessionExpiredStatus > 599 {
		return cfg, fmt.Errorf("invalid session-expired-status: %d", cfg.SessionExpiredStatus)
	}
	if cfg.PageSize <= 0 {
		return cfg, fmt.Errorf("invalid page-size: %d", cfg.PageSize)
	}

	cfg.DBPath = expandHome(cfg.DBPath)
	cfg.SeedFile = expandHome(cfg.SeedFile)
	cfg.Backup.LocalDir = expandHome(cfg.Backup.LocalDir)

	return cfg, nil
}

// expandHome expands a leading "~/".
func expandHome(path string) string {
	if !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[2:])
}
