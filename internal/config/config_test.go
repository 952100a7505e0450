// Copyright (c) 2026 Repairdesk Team
// Repairdesk - tenant database lifecycle manager
// This source code is licensed under the MIT license found in the LICENSE file.

package config_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	cfg "github.com/toeirei/repairdesk/internal/config"
)

func TestLoadConfig_NoFileUsesDefaults(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	c, err := cfg.LoadConfig[cfg.Config](&cobra.Command{}, cfg.Defaults(), nil)
	if err != nil && !errors.As(err, &viper.ConfigFileNotFoundError{}) {
		t.Fatalf("LoadConfig: %v", err)
	}
	if c.Migration.BatchSize != 500 {
		t.Errorf("batch size = %d, want 500", c.Migration.BatchSize)
	}
	if c.Tenant.Prefix != "shop_" {
		t.Errorf("prefix = %q, want shop_", c.Tenant.Prefix)
	}
	if c.Tenant.ConnectTimeout != 10*time.Second {
		t.Errorf("connect timeout = %v, want 10s", c.Tenant.ConnectTimeout)
	}
	if c.Admin.Mode {
		t.Errorf("admin mode must default to off")
	}
}

func TestWriteConfigFile_CreatesFile(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	c := cfg.Config{}
	c.Database.Type = "sqlite"
	c.Database.Dsn = "./repairdesk.db"
	c.Registry.Key = "00"
	c.Language = "en"

	path, err := cfg.WriteConfigFile(&c, false)
	if err != nil {
		t.Fatalf("WriteConfigFile failed: %v", err)
	}
	want, err := cfg.GetConfigPath(false)
	if err != nil {
		t.Fatalf("GetConfigPath failed: %v", err)
	}
	if path != want {
		t.Errorf("path = %q, want %q", path, want)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("expected config file at %s, stat error: %v", path, err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("mode = %v, want 0600", info.Mode().Perm())
	}
}

func TestLoadConfig_ReadsExplicitFile(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	tmp := t.TempDir()
	yaml := "database:\n  type: postgres\n  dsn: postgresql://user@/db\n" +
		"migration:\n  batch_size: 25\n" +
		"tenant:\n  driver: mysql\n  statement_timeout: 2m\n" +
		"language: de\n"
	file := filepath.Join(tmp, "cfg.yaml")
	if err := os.WriteFile(file, []byte(yaml), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	c, err := cfg.LoadConfig[cfg.Config](&cobra.Command{}, cfg.Defaults(), &file)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if c.Database.Type != "postgres" || c.Database.Dsn != "postgresql://user@/db" {
		t.Errorf("database = %+v", c.Database)
	}
	if c.Migration.BatchSize != 25 {
		t.Errorf("batch size = %d, want 25", c.Migration.BatchSize)
	}
	if c.Tenant.Driver != "mysql" || c.Tenant.StatementTimeout != 2*time.Minute {
		t.Errorf("tenant = %+v", c.Tenant)
	}
	if c.Language != "de" {
		t.Errorf("language = %q, want de", c.Language)
	}
	// Keys absent from the file keep their defaults.
	if c.Migration.Concurrency != 1 {
		t.Errorf("concurrency = %d, want 1", c.Migration.Concurrency)
	}
}

func TestLoadConfig_EnvironmentOverridesFile(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	file := filepath.Join(t.TempDir(), "cfg.yaml")
	if err := os.WriteFile(file, []byte("registry:\n  key: fromfile\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	t.Setenv("REPAIRDESK_REGISTRY_KEY", "fromenv")
	t.Setenv("REPAIRDESK_ADMIN_MODE", "true")

	c, err := cfg.LoadConfig[cfg.Config](&cobra.Command{}, cfg.Defaults(), &file)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if c.Registry.Key != "fromenv" {
		t.Errorf("registry key = %q, want fromenv", c.Registry.Key)
	}
	if !c.Admin.Mode {
		t.Errorf("admin mode should be enabled from env")
	}
}

func TestLoadConfig_FlagOverridesEnvironment(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("REPAIRDESK_LANGUAGE", "en")

	cmd := &cobra.Command{}
	cmd.Flags().String("language", "", "")
	if err := cmd.Flags().Set("language", "de"); err != nil {
		t.Fatalf("set flag: %v", err)
	}

	c, err := cfg.LoadConfig[cfg.Config](cmd, cfg.Defaults(), nil)
	if err != nil && !errors.As(err, &viper.ConfigFileNotFoundError{}) {
		t.Fatalf("LoadConfig: %v", err)
	}
	if c.Language != "de" {
		t.Errorf("language = %q, want de", c.Language)
	}
}

func TestRequireRegistryKey(t *testing.T) {
	var c cfg.Config
	if err := c.RequireRegistryKey(); !errors.Is(err, cfg.ErrMissingSetting) {
		t.Fatalf("expected ErrMissingSetting, got %v", err)
	}
	c.Registry.Key = "abcd"
	if err := c.RequireRegistryKey(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestRequireAdmin(t *testing.T) {
	c := cfg.Config{}
	c.Tenant.Driver = "postgres"
	if err := c.RequireAdmin(); !errors.Is(err, cfg.ErrMissingSetting) {
		t.Fatalf("postgres without admin dsn: got %v", err)
	}
	c.Admin.Dsn = "postgres://admin@localhost/postgres"
	if err := c.RequireAdmin(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	c = cfg.Config{}
	c.Tenant.Driver = "sqlite"
	c.Tenant.SQLiteDir = t.TempDir()
	if err := c.RequireAdmin(); err != nil {
		t.Fatalf("sqlite needs only a directory, got %v", err)
	}
}

func TestNormalize(t *testing.T) {
	c := cfg.Config{}
	c.Migration.BatchSize = -3
	c.Normalize()
	if c.Migration.BatchSize != 500 || c.Migration.Concurrency != 1 {
		t.Errorf("migration = %+v", c.Migration)
	}
	if c.Tenant.Prefix != "shop_" || c.Language != "en" {
		t.Errorf("prefix %q language %q", c.Tenant.Prefix, c.Language)
	}
}
