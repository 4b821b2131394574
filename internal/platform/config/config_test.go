package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultsMatchDocumentedValues(t *testing.T) {
	cfg := Defaults()
	if cfg.RPA.MaxAttempts != 3 {
		t.Fatalf("expected max attempts 3, got %d", cfg.RPA.MaxAttempts)
	}
	if cfg.RPA.MaxRuntime != 5*time.Minute {
		t.Fatalf("expected max runtime 5m, got %s", cfg.RPA.MaxRuntime)
	}
	if cfg.Backoff.Base != 30*time.Second || cfg.Backoff.Cap != 30*time.Minute {
		t.Fatalf("unexpected backoff defaults: %+v", cfg.Backoff)
	}
	if cfg.FiscalYear != 2025 {
		t.Fatalf("expected fiscal year 2025, got %d", cfg.FiscalYear)
	}
}

func TestLoadFileThenEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "montero.toml")
	content := `
fiscal_year = 2025

[store]
driver = "sqlite"
sqlite_path = "file.db"

[rpa]
max_attempts = 5
max_runtime_sec = 120
pool_size = 4
headless = false
platforms = ["ARL-SURA", "EPS-SANITAS"]

[vault]
master_key = "from-file"

[backoff]
base_sec = 10
cap_sec = 600

[[portals]]
platform = "ARL-SURA"
base_url = "https://portal.example.test"
[portals.selectors]
login_user = "#user"
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("RPA_POOL_SIZE", "7")
	t.Setenv("VAULT_MASTER_KEY", "from-env")

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Store.Driver != DriverSQLite || cfg.Store.SQLitePath != "file.db" {
		t.Fatalf("unexpected store config: %+v", cfg.Store)
	}
	if cfg.RPA.MaxAttempts != 5 {
		t.Fatalf("expected file max attempts, got %d", cfg.RPA.MaxAttempts)
	}
	if cfg.RPA.PoolSize != 7 {
		t.Fatalf("expected env to override pool size, got %d", cfg.RPA.PoolSize)
	}
	if cfg.RPA.Headless {
		t.Fatal("expected headless=false from file")
	}
	if cfg.RPA.MaxRuntime != 2*time.Minute {
		t.Fatalf("unexpected max runtime %s", cfg.RPA.MaxRuntime)
	}
	if cfg.Maintenance.StaleAfter != 4*time.Minute {
		t.Fatalf("expected stale-after to default to twice max runtime, got %s", cfg.Maintenance.StaleAfter)
	}
	if cfg.Vault.MasterKey != "from-env" {
		t.Fatalf("expected env master key, got %q", cfg.Vault.MasterKey)
	}
	if cfg.Backoff.Base != 10*time.Second || cfg.Backoff.Cap != 10*time.Minute {
		t.Fatalf("unexpected backoff: %+v", cfg.Backoff)
	}
	if len(cfg.RPA.Platforms) != 2 {
		t.Fatalf("expected two platforms, got %v", cfg.RPA.Platforms)
	}
	if len(cfg.Portals) != 1 || cfg.Portals[0].Selectors["login_user"] != "#user" {
		t.Fatalf("unexpected portals: %+v", cfg.Portals)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected valid config, got %v", err)
	}
}

func TestLoadFileRejectsMalformedTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.toml")
	if err := os.WriteFile(path, []byte("fiscal_year = ["), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := LoadFile(path); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{"postgres needs url", func(c *Config) {}, false},
		{"postgres with url", func(c *Config) { c.Store.DatabaseURL = "postgres://x" }, true},
		{"unknown driver", func(c *Config) { c.Store.Driver = "mysql" }, false},
		{"zero attempts", func(c *Config) { c.Store.DatabaseURL = "postgres://x"; c.RPA.MaxAttempts = 0 }, false},
		{"cap below base", func(c *Config) {
			c.Store.DatabaseURL = "postgres://x"
			c.Backoff.Cap = time.Second
		}, false},
		{"unknown browser driver", func(c *Config) { c.Store.DatabaseURL = "postgres://x"; c.RPA.Driver = "selenium" }, false},
		{"stale lease within max runtime", func(c *Config) {
			c.Store.DatabaseURL = "postgres://x"
			c.Maintenance.StaleAfter = c.RPA.MaxRuntime + FinalizeGrace
		}, false},
		{"stale lease past max runtime", func(c *Config) {
			c.Store.DatabaseURL = "postgres://x"
			c.Maintenance.StaleAfter = c.RPA.MaxRuntime + FinalizeGrace + time.Second
		}, true},
		{"production without jwt", func(c *Config) {
			c.Store.DatabaseURL = "postgres://x"
			c.Environment = "production"
		}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Defaults()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if tc.ok && err != nil {
				t.Fatalf("expected valid, got %v", err)
			}
			if !tc.ok && err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestLeaseExpiryDefaultsToTwiceMaxRuntime(t *testing.T) {
	cfg := Defaults()
	cfg.RPA.MaxRuntime = time.Minute
	if got := cfg.LeaseExpiry(); got != 2*time.Minute {
		t.Fatalf("expected 2m, got %s", got)
	}
	cfg.Maintenance.StaleAfter = 5 * time.Minute
	if got := cfg.LeaseExpiry(); got != 5*time.Minute {
		t.Fatalf("expected explicit 5m, got %s", got)
	}
}
