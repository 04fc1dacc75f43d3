// Package config provides configuration management for execman.
// It supports loading configuration from environment variables, config files, and defaults.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration sections for execman.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	NATS    NATSConfig    `mapstructure:"nats"`
	Exec    ExecConfig    `mapstructure:"exec"`
	History HistoryConfig `mapstructure:"history"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	ReadTimeout  int    `mapstructure:"readTimeout"`  // in seconds
	WriteTimeout int    `mapstructure:"writeTimeout"` // in seconds
}

// NATSConfig holds NATS messaging configuration.
// An empty URL means the in-memory event bus is used.
type NATSConfig struct {
	URL           string `mapstructure:"url"`
	ClientID      string `mapstructure:"clientId"`
	MaxReconnects int    `mapstructure:"maxReconnects"`
}

// ExecConfig holds command execution configuration.
type ExecConfig struct {
	// PurgeDelay is the number of seconds a finished command is kept in the
	// registry before automatic removal. A negative value disables
	// automatic removal.
	PurgeDelay int `mapstructure:"purgeDelay"`

	// DefaultColor is the color policy applied to captured output when the
	// caller does not specify one: ansi, decode or strip.
	DefaultColor string `mapstructure:"defaultColor"`

	// Shell is the shell used to run command lines (argv form is used when
	// the caller passes an explicit argument vector).
	Shell string `mapstructure:"shell"`
}

// HistoryConfig holds command history persistence configuration.
type HistoryConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
	// MaxOutputBytes caps the per-stream output stored with a history
	// entry. Zero means store nothing, negative means no cap.
	MaxOutputBytes int `mapstructure:"maxOutputBytes"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"outputPath"`
}

// ReadTimeoutDuration returns the read timeout as a time.Duration.
func (s *ServerConfig) ReadTimeoutDuration() time.Duration {
	return time.Duration(s.ReadTimeout) * time.Second
}

// WriteTimeoutDuration returns the write timeout as a time.Duration.
func (s *ServerConfig) WriteTimeoutDuration() time.Duration {
	return time.Duration(s.WriteTimeout) * time.Second
}

// detectDefaultLogFormat returns the appropriate log format based on environment.
// Returns "json" for production environments, "text" for terminal use.
func detectDefaultLogFormat() string {
	if os.Getenv("KUBERNETES_SERVICE_HOST") != "" {
		return "json"
	}
	if env := os.Getenv("EXECMAN_ENV"); env == "production" || env == "prod" {
		return "json"
	}
	return "text"
}

// setDefaults configures default values for all configuration options.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", 8087)
	v.SetDefault("server.readTimeout", 30)
	v.SetDefault("server.writeTimeout", 30)

	// NATS defaults - empty URL means use in-memory event bus
	v.SetDefault("nats.url", "")
	v.SetDefault("nats.clientId", "execman")
	v.SetDefault("nats.maxReconnects", 10)

	// Exec defaults
	v.SetDefault("exec.purgeDelay", 0)
	v.SetDefault("exec.defaultColor", "ansi")
	v.SetDefault("exec.shell", "sh")

	// History defaults
	v.SetDefault("history.enabled", false)
	v.SetDefault("history.path", "execman.db")
	v.SetDefault("history.maxOutputBytes", 65536)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", detectDefaultLogFormat())
	v.SetDefault("logging.outputPath", "stdout")
}

// Load reads configuration from environment variables, config file, and defaults.
// Environment variables use the prefix EXECMAN_ with snake_case naming.
// Config file should be named config.yaml and placed in the current directory
// or /etc/execman/.
func Load() (*Config, error) {
	return LoadWithPath("")
}

// LoadWithPath reads configuration from the specified path or default locations.
func LoadWithPath(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("EXECMAN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Explicit bindings for camelCase config keys, which AutomaticEnv does
	// not map to SNAKE_CASE on its own.
	_ = v.BindEnv("exec.purgeDelay", "EXECMAN_EXEC_PURGE_DELAY")
	_ = v.BindEnv("exec.defaultColor", "EXECMAN_EXEC_DEFAULT_COLOR")
	_ = v.BindEnv("history.maxOutputBytes", "EXECMAN_HISTORY_MAX_OUTPUT_BYTES")

	v.SetConfigName("config")
	v.SetConfigType("yaml")

	if configPath != "" {
		v.AddConfigPath(configPath)
	}
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/execman/")

	// Read config file (ignore if not found)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// validate checks that all required configuration fields are set.
func validate(cfg *Config) error {
	var errs []string

	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		errs = append(errs, "server.port must be between 1 and 65535")
	}

	validColors := map[string]bool{"ansi": true, "decode": true, "strip": true}
	if !validColors[strings.ToLower(cfg.Exec.DefaultColor)] {
		errs = append(errs, "exec.defaultColor must be one of: ansi, decode, strip")
	}
	if cfg.Exec.Shell == "" {
		errs = append(errs, "exec.shell must not be empty")
	}

	if cfg.History.Enabled && cfg.History.Path == "" {
		errs = append(errs, "history.path is required when history.enabled is set")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(cfg.Logging.Level)] {
		errs = append(errs, "logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[strings.ToLower(cfg.Logging.Format)] {
		errs = append(errs, "logging.format must be one of: json, text")
	}

	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}

	return nil
}
