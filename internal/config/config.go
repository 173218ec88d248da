// Package config handles Signoff configuration loading and validation.
package config

import (
	"fmt"
	"os"
	"path/filepath"
)

// Config is the root configuration structure for Signoff.
type Config struct {
	// Global settings
	Global GlobalConfig `yaml:"global" mapstructure:"global"`

	// Database settings
	Database DatabaseConfig `yaml:"database" mapstructure:"database"`

	// Logging settings
	Logging LoggingConfig `yaml:"logging" mapstructure:"logging"`

	// Server settings for signoffd
	Server ServerConfig `yaml:"server" mapstructure:"server"`

	// SMTP settings for the notifier
	SMTP SMTPConfig `yaml:"smtp" mapstructure:"smtp"`
}

// GlobalConfig contains global Signoff settings.
type GlobalConfig struct {
	// DataDir is where Signoff stores its data (default: ~/.local/share/signoff).
	DataDir string `yaml:"data_dir" mapstructure:"data_dir"`

	// ConfigDir is where config files are stored (default: ~/.config/signoff).
	ConfigDir string `yaml:"config_dir" mapstructure:"config_dir"`
}

// DatabaseConfig contains database settings.
type DatabaseConfig struct {
	// Path is the SQLite database file path.
	Path string `yaml:"path" mapstructure:"path"`

	// MaxConnections is the maximum number of database connections.
	MaxConnections int `yaml:"max_connections" mapstructure:"max_connections"`

	// BusyTimeoutMs is how long to wait for a locked database (milliseconds).
	BusyTimeoutMs int `yaml:"busy_timeout_ms" mapstructure:"busy_timeout_ms"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	// Level is the minimum log level (debug, info, warn, error).
	Level string `yaml:"level" mapstructure:"level"`

	// Format is the output format (json, console).
	Format string `yaml:"format" mapstructure:"format"`

	// EnableCaller adds caller information to logs.
	EnableCaller bool `yaml:"enable_caller" mapstructure:"enable_caller"`
}

// ServerConfig contains HTTP API server settings.
type ServerConfig struct {
	// Host is the address signoffd listens on.
	Host string `yaml:"host" mapstructure:"host"`

	// Port is the TCP port signoffd listens on.
	Port int `yaml:"port" mapstructure:"port"`

	// ShutdownTimeoutSec bounds graceful shutdown.
	ShutdownTimeoutSec int `yaml:"shutdown_timeout_sec" mapstructure:"shutdown_timeout_sec"`
}

// SMTPConfig contains outbound mail settings. Leaving Host empty
// disables real delivery; notifications are logged instead.
type SMTPConfig struct {
	// Host is the SMTP server hostname.
	Host string `yaml:"host" mapstructure:"host"`

	// Port is the SMTP server port.
	Port int `yaml:"port" mapstructure:"port"`

	// Username authenticates against the SMTP server.
	Username string `yaml:"username" mapstructure:"username"`

	// Password authenticates against the SMTP server.
	Password string `yaml:"password" mapstructure:"password"`

	// From is the sender address on outbound notifications.
	From string `yaml:"from" mapstructure:"from"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	homeDir, _ := os.UserHomeDir()

	return &Config{
		Global: GlobalConfig{
			DataDir:   filepath.Join(homeDir, ".local", "share", "signoff"),
			ConfigDir: filepath.Join(homeDir, ".config", "signoff"),
		},
		Database: DatabaseConfig{
			Path:           filepath.Join(homeDir, ".local", "share", "signoff", "signoff.db"),
			MaxConnections: 10,
			BusyTimeoutMs:  5000,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		Server: ServerConfig{
			Host:               "127.0.0.1",
			Port:               8438,
			ShutdownTimeoutSec: 10,
		},
		SMTP: SMTPConfig{
			Port: 587,
			From: "signoff@localhost",
		},
	}
}

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be in 1..65535, got %d", c.Server.Port)
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("logging.format must be json or console, got %q", c.Logging.Format)
	}
	if c.SMTP.Host != "" && c.SMTP.From == "" {
		return fmt.Errorf("smtp.from is required when smtp.host is set")
	}
	return nil
}

// EnsureDirectories creates the data and config directories.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Global.DataDir, c.Global.ConfigDir, filepath.Dir(c.Database.Path)} {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return nil
}
