package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	API     APIConfig     `mapstructure:"api"`
	Session SessionConfig `mapstructure:"session"`
	Sync    SyncConfig    `mapstructure:"sync"`
	Server  ServerConfig  `mapstructure:"server"`
	Logging LoggingConfig `mapstructure:"logging"`
}

type APIConfig struct {
	BaseURL       string `mapstructure:"base_url"`
	Token         string `mapstructure:"token"`
	TimeoutSec    int    `mapstructure:"timeout_sec"`
	RatePerSecond int    `mapstructure:"rate_per_second"`
}

// Timeout is the per-request timeout.
func (a APIConfig) Timeout() time.Duration {
	return time.Duration(a.TimeoutSec) * time.Second
}

type SessionConfig struct {
	UserID   int64  `mapstructure:"user_id"`
	UserName string `mapstructure:"user_name"`
}

type SyncConfig struct {
	// ShowProvisional displays a comment before the backend confirms it.
	ShowProvisional bool `mapstructure:"show_provisional"`
}

type ServerConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

type LoggingConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Directory string `mapstructure:"directory"`
	Level     string `mapstructure:"level"`
}

func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Set defaults
	v.SetDefault("api.base_url", DefaultBaseURL)
	v.SetDefault("api.timeout_sec", 10)
	v.SetDefault("api.rate_per_second", 4)
	v.SetDefault("sync.show_provisional", false)
	v.SetDefault("server.enabled", true)
	v.SetDefault("server.addr", "127.0.0.1:8787")
	v.SetDefault("logging.enabled", false)
	v.SetDefault("logging.directory", "logs")
	v.SetDefault("logging.level", "info")

	// Environment variable support
	v.SetEnvPrefix("OUTINGSYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	// Explicitly bind nested keys to env vars
	_ = v.BindEnv("api.token", "OUTINGSYNC_TOKEN")
	_ = v.BindEnv("session.user_id", "OUTINGSYNC_USER_ID")
	_ = v.BindEnv("session.user_name", "OUTINGSYNC_USER_NAME")

	// Load config file
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("default")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// Validate checks every field and reports all problems at once. A missing
// token is not an error: the client starts with the gate closed and waits
// for a session.
func (c *Config) Validate() error {
	errs := &ValidationErrors{}

	errs.check(c.API.BaseURL != "", "api.base_url", "is required")
	errs.check(c.API.BaseURL == "" || strings.HasPrefix(c.API.BaseURL, "http://") || strings.HasPrefix(c.API.BaseURL, "https://"),
		"api.base_url", "must start with http:// or https://")
	errs.check(c.API.TimeoutSec >= 1, "api.timeout_sec", "must be >= 1")
	errs.check(c.API.RatePerSecond >= 1, "api.rate_per_second", "must be >= 1")
	errs.check(c.Session.UserID >= 0, "session.user_id", "must not be negative")
	errs.check(!c.Server.Enabled || c.Server.Addr != "", "server.addr", "is required when server.enabled is true")
	errs.check(ValidLogLevels[c.Logging.Level], "logging.level", fmt.Sprintf("must be one of %s", logLevelList()))

	if errs.HasErrors() {
		return errs
	}
	return nil
}
