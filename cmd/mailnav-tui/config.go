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

	"github.com/tinytelemetry/mailnav/internal/model"
	"github.com/tinytelemetry/mailnav/internal/navigation"
	"github.com/tinytelemetry/mailnav/internal/remotesync"
	"github.com/tinytelemetry/mailnav/internal/socketrpc"
)

const defaultServerURL = "http://127.0.0.1:8080/"

// cliConfig holds only client-relevant configuration.
type cliConfig struct {
	Navigation navigation.Config `mapstructure:",squash"`
	Remote     remotesync.Config `mapstructure:",squash"`

	SocketPath  string `mapstructure:"socket-path"`
	HistoryPath string `mapstructure:"history-path"`
	HistoryKeep int    `mapstructure:"history-keep"`
	Username    string `mapstructure:"username"`
	Password    string `mapstructure:"password"`
	ConfigPath  string `mapstructure:"-"`
}

func loadCLIConfig(configPath string) (cliConfig, error) {
	var cfg cliConfig

	v := viper.New()
	v.SetEnvPrefix("MAILNAV")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))

	v.SetDefault("server-url", defaultServerURL)
	v.SetDefault("default-location", model.DefaultDefaultLocation)
	v.SetDefault("poll-interval", navigation.DefaultPollInterval)
	v.SetDefault("apply-stale", false)
	v.SetDefault("login-path", remotesync.DefaultLoginPath)
	v.SetDefault("session-expired-status", remotesync.DefaultSessionExpiredStatus)
	v.SetDefault("request-timeout", model.DefaultRequestTimeout)
	v.SetDefault("socket-path", socketrpc.DefaultSocketPath())
	v.SetDefault("history-path", filepath.Join(xdg.StateHome, "mailnav", "history.jsonl"))
	v.SetDefault("history-keep", model.DefaultHistoryKeep)
	v.SetDefault("username", "")
	v.SetDefault("password", "")

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigFile(filepath.Join(xdg.ConfigHome, "mailnav", "config.yml"))
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

	if strings.TrimSpace(cfg.Remote.BaseURL) == "" {
		return cfg, errors.New("server-url is empty")
	}
	if cfg.Navigation.PollInterval < 0 {
		return cfg, fmt.Errorf("invalid poll-interval: %s", cfg.Navigation.PollInterval)
	}
	if cfg.Remote.Timeout <= 0 {
		cfg.Remote.Timeout = model.DefaultRequestTimeout
	}
	if cfg.HistoryKeep <= 0 {
		cfg.HistoryKeep = model.DefaultHistoryKeep
	}
	if home, err := os.UserHomeDir(); err == nil && strings.HasPrefix(cfg.HistoryPath, "~/") {
		cfg.HistoryPath = filepath.Join(home, cfg.HistoryPath[2:])
	}

	return cfg, nil
}

// requestTimeout bounds one fetch, submit or login.
func (c cliConfig) requestTimeout() time.Duration {
	return c.Remote.Timeout
}
