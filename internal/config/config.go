// Copyright (c) 2026 Repairdesk Team
// Repairdesk - tenant database lifecycle manager
// This source code is licensed under the MIT license found in the LICENSE file.

// Package config loads repairdesk settings from defaults, YAML files,
// REPAIRDESK_* environment variables and command-line flags, in that order
// of increasing precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// ErrMissingSetting is returned when a job needs a setting that is empty.
var ErrMissingSetting = errors.New("missing required setting")

// Config is the complete application configuration.
type Config struct {
	Database  Database  `mapstructure:"database" yaml:"database"`
	Admin     Admin     `mapstructure:"admin" yaml:"admin"`
	Registry  Registry  `mapstructure:"registry" yaml:"registry"`
	Migration Migration `mapstructure:"migration" yaml:"migration"`
	Tenant    Tenant    `mapstructure:"tenant" yaml:"tenant"`
	Metrics   Metrics   `mapstructure:"metrics" yaml:"metrics"`
	Tracing   Tracing   `mapstructure:"tracing" yaml:"tracing"`
	Language  string    `mapstructure:"language" yaml:"language"`
}

// Database is the master store.
type Database struct {
	Type string `mapstructure:"type" yaml:"type"`
	Dsn  string `mapstructure:"dsn" yaml:"dsn"`
}

// Admin holds the elevated connection used only by provisioning. Mode must
// be switched on explicitly before any database or role is created or dropped.
type Admin struct {
	Dsn  string `mapstructure:"dsn" yaml:"dsn"`
	Mode bool   `mapstructure:"mode" yaml:"mode"`
}

// Registry holds the hex encoded key of the connection registry.
type Registry struct {
	Key string `mapstructure:"key" yaml:"key"`
}

// Migration tunes the copy job.
type Migration struct {
	BatchSize   int `mapstructure:"batch_size" yaml:"batch_size"`
	Concurrency int `mapstructure:"concurrency" yaml:"concurrency"`
}

// Tenant describes where tenant stores are placed and how they are reached.
type Tenant struct {
	Driver           string        `mapstructure:"driver" yaml:"driver"`
	Host             string        `mapstructure:"host" yaml:"host"`
	Port             int           `mapstructure:"port" yaml:"port"`
	SSLMode          string        `mapstructure:"sslmode" yaml:"sslmode"`
	Prefix           string        `mapstructure:"prefix" yaml:"prefix"`
	SQLiteDir        string        `mapstructure:"sqlite_dir" yaml:"sqlite_dir"`
	ConnectTimeout   time.Duration `mapstructure:"connect_timeout" yaml:"connect_timeout"`
	StatementTimeout time.Duration `mapstructure:"statement_timeout" yaml:"statement_timeout"`
}

// Metrics configures the optional Prometheus Pushgateway.
type Metrics struct {
	Pushgateway string `mapstructure:"pushgateway" yaml:"pushgateway"`
}

// Tracing configures the optional OTLP/HTTP trace exporter.
type Tracing struct {
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`
}

// Defaults returns the default value of every key. Every key needs a default
// so that environment variables are picked up by Unmarshal.
func Defaults() map[string]any {
	return map[string]any{
		"database.type":            "sqlite",
		"database.dsn":             "./repairdesk.db",
		"admin.dsn":                "",
		"admin.mode":               false,
		"registry.key":             "",
		"migration.batch_size":     500,
		"migration.concurrency":    1,
		"tenant.driver":            "sqlite",
		"tenant.host":              "localhost",
		"tenant.port":              0,
		"tenant.sslmode":           "prefer",
		"tenant.prefix":            "shop_",
		"tenant.sqlite_dir":        "./tenants",
		"tenant.connect_timeout":   "10s",
		"tenant.statement_timeout": "60s",
		"metrics.pushgateway":      "",
		"tracing.endpoint":         "",
		"language":                 "en",
	}
}

// GetConfigPath returns the full path of the user or system config file.
func GetConfigPath(system bool) (string, error) {
	var configDir string
	if system {
		switch runtime.GOOS {
		case "windows":
			configDir = filepath.Join(os.Getenv("ProgramData"), "Repairdesk")
		default:
			configDir = "/etc/repairdesk"
		}
	} else {
		dir, err := os.UserConfigDir()
		if err != nil {
			return "", fmt.Errorf("could not get user config directory: %w", err)
		}
		configDir = filepath.Join(dir, "repairdesk")
	}
	return filepath.Join(configDir, "repairdesk.yaml"), nil
}

// LoadConfig resolves T from defaults, config files, environment and the
// flags of cmd. A missing config file is reported as
// viper.ConfigFileNotFoundError together with a usable T built from the
// remaining sources.
func LoadConfig[T any](cmd *cobra.Command, defaults map[string]any, configFile *string) (T, error) {
	var c T
	v := viper.New()

	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	v.SetConfigName("repairdesk")
	v.SetConfigType("yaml")
	// An explicit --config file wins over the search paths.
	if configFile != nil {
		v.SetConfigFile(*configFile)
	}
	if userConfigPath, err := GetConfigPath(false); err == nil {
		v.AddConfigPath(filepath.Dir(userConfigPath))
	}
	if systemConfigPath, err := GetConfigPath(true); err == nil {
		v.AddConfigPath(filepath.Dir(systemConfigPath))
	}
	v.AddConfigPath(".")

	var notFound error
	if err := v.ReadInConfig(); err != nil {
		if !errors.As(err, &viper.ConfigFileNotFoundError{}) {
			return c, err
		}
		notFound = err
	}

	v.AutomaticEnv()
	v.SetEnvPrefix("repairdesk")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if cmd != nil {
		if err := v.BindPFlags(cmd.Flags()); err != nil {
			return c, err
		}
	}

	if err := v.Unmarshal(&c); err != nil {
		return c, err
	}
	return c, notFound
}

// WriteConfigFile writes c as YAML to the user or system config path.
func WriteConfigFile[T any](c *T, system bool) (string, error) {
	path, err := GetConfigPath(system)
	if err != nil {
		return "", err
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return "", err
	}
	configDir := filepath.Dir(path)
	if err := os.MkdirAll(configDir, 0o755); err != nil {
		return "", fmt.Errorf("could not create config directory %s: %w", configDir, err)
	}
	// 0600: the file may hold the registry key and the admin DSN.
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", err
	}
	return path, nil
}

// RequireRegistryKey reports a missing registry key.
func (c Config) RequireRegistryKey() error {
	if strings.TrimSpace(c.Registry.Key) == "" {
		return fmt.Errorf("%w: registry.key (REPAIRDESK_REGISTRY_KEY)", ErrMissingSetting)
	}
	return nil
}

// RequireAdmin reports a missing admin DSN. Whether admin mode is on is
// checked by the provisioning package itself.
func (c Config) RequireAdmin() error {
	switch strings.ToLower(c.Tenant.Driver) {
	case "sqlite", "sqlite3":
		if c.Tenant.SQLiteDir == "" {
			return fmt.Errorf("%w: tenant.sqlite_dir", ErrMissingSetting)
		}
	default:
		if c.Admin.Dsn == "" {
			return fmt.Errorf("%w: admin.dsn (REPAIRDESK_ADMIN_DSN)", ErrMissingSetting)
		}
	}
	return nil
}

// Normalize replaces out-of-range numeric settings with their defaults.
func (c *Config) Normalize() {
	if c.Migration.BatchSize <= 0 {
		c.Migration.BatchSize = 500
	}
	if c.Migration.Concurrency <= 0 {
		c.Migration.Concurrency = 1
	}
	if c.Tenant.Prefix == "" {
		c.Tenant.Prefix = "shop_"
	}
	if c.Language == "" {
		c.Language = "en"
	}
}
