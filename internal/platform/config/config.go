package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

type Config struct {
	Addr               string
	Environment        string
	FiscalYear         int
	JWTSecret          string
	CORSOrigins        []string
	MaxBodyBytes       int64
	RateLimitPerMinute int
	MetricsEnabled     bool
	RunMigrations      bool
	RunSeed            bool

	Store       StoreConfig
	RPA         RPAConfig
	Vault       VaultConfig
	Backoff     BackoffConfig
	Artifacts   ArtifactsConfig
	Log         LogConfig
	Maintenance MaintenanceConfig
	Portals     []PortalConfig
}

type StoreConfig struct {
	Driver      string
	DatabaseURL string
	SQLitePath  string
	MaxConns    int
}

type RPAConfig struct {
	MaxAttempts     int
	MaxRuntime      time.Duration
	PoolSize        int
	Headless        bool
	Driver          string
	BrowserBin      string
	Platforms       []string
	PollInterval    time.Duration
	WorkerID        string
	EmbeddedWorkers bool
}

type VaultConfig struct {
	MasterKey string
	KeySalt   string
}

type BackoffConfig struct {
	Base time.Duration
	Cap  time.Duration
}

type ArtifactsConfig struct {
	Dir     string
	Encrypt bool
}

type LogConfig struct {
	Level  string
	Format string
}

type MaintenanceConfig struct {
	Interval   time.Duration
	StaleAfter time.Duration
}

// PortalConfig overrides the built-in portal profile for one platform.
type PortalConfig struct {
	Platform  string            `toml:"platform"`
	BaseURL   string            `toml:"base_url"`
	Selectors map[string]string `toml:"selectors"`
}

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"

	BrowserRod       = "rod"
	BrowserSimulated = "simulated"
)

// FinalizeGrace is how long a worker may spend recording a job's outcome after
// max_runtime has elapsed.
const FinalizeGrace = 15 * time.Second

// fileConfig mirrors the TOML layout. Pointers distinguish "unset" from zero values.
type fileConfig struct {
	FiscalYear *int `toml:"fiscal_year"`
	HTTP       struct {
		Addr               *string  `toml:"addr"`
		Environment        *string  `toml:"environment"`
		JWTSecret          *string  `toml:"jwt_secret"`
		CORSOrigins        []string `toml:"cors_origins"`
		MaxBodyBytes       *int64   `toml:"max_body_bytes"`
		RateLimitPerMinute *int     `toml:"rate_limit_per_minute"`
		MetricsEnabled     *bool    `toml:"metrics_enabled"`
	} `toml:"http"`
	Store struct {
		Driver        *string `toml:"driver"`
		DatabaseURL   *string `toml:"database_url"`
		SQLitePath    *string `toml:"sqlite_path"`
		MaxConns      *int    `toml:"max_conns"`
		RunMigrations *bool   `toml:"run_migrations"`
		RunSeed       *bool   `toml:"run_seed"`
	} `toml:"store"`
	RPA struct {
		MaxAttempts     *int     `toml:"max_attempts"`
		MaxRuntimeSec   *int     `toml:"max_runtime_sec"`
		PoolSize        *int     `toml:"pool_size"`
		Headless        *bool    `toml:"headless"`
		Driver          *string  `toml:"driver"`
		BrowserBin      *string  `toml:"browser_bin"`
		Platforms       []string `toml:"platforms"`
		PollIntervalMs  *int     `toml:"poll_interval_ms"`
		WorkerID        *string  `toml:"worker_id"`
		EmbeddedWorkers *bool    `toml:"embedded_workers"`
	} `toml:"rpa"`
	Vault struct {
		MasterKey *string `toml:"master_key"`
		KeySalt   *string `toml:"key_salt"`
	} `toml:"vault"`
	Backoff struct {
		BaseSec *int `toml:"base_sec"`
		CapSec  *int `toml:"cap_sec"`
	} `toml:"backoff"`
	Artifacts struct {
		Dir     *string `toml:"dir"`
		Encrypt *bool   `toml:"encrypt"`
	} `toml:"artifacts"`
	Log struct {
		Level  *string `toml:"level"`
		Format *string `toml:"format"`
	} `toml:"log"`
	Maintenance struct {
		IntervalSec   *int `toml:"interval_sec"`
		StaleAfterSec *int `toml:"stale_after_sec"`
	} `toml:"maintenance"`
	Portals []PortalConfig `toml:"portals"`
}

func Defaults() Config {
	host, _ := os.Hostname()
	return Config{
		Addr:               ":8080",
		Environment:        "development",
		FiscalYear:         2025,
		MaxBodyBytes:       1048576,
		RateLimitPerMinute: 60,
		MetricsEnabled:     true,
		RunMigrations:      true,
		RunSeed:            true,
		Store: StoreConfig{
			Driver:     DriverPostgres,
			SQLitePath: "montero.db",
			MaxConns:   10,
		},
		RPA: RPAConfig{
			MaxAttempts:  3,
			MaxRuntime:   300 * time.Second,
			PoolSize:     2,
			Headless:     true,
			Driver:       BrowserRod,
			PollInterval: 2 * time.Second,
			WorkerID:     host,
		},
		Backoff: BackoffConfig{
			Base: 30 * time.Second,
			Cap:  30 * time.Minute,
		},
		Artifacts: ArtifactsConfig{
			Dir:     "storage/artifacts",
			Encrypt: true,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Maintenance: MaintenanceConfig{
			Interval: 30 * time.Second,
		},
	}
}

// Load reads the optional TOML file named by MONTERO_CONFIG and then applies
// environment overrides.
func Load() (Config, error) {
	return LoadFile(os.Getenv("MONTERO_CONFIG"))
}

func LoadFile(path string) (Config, error) {
	cfg := Defaults()
	if strings.TrimSpace(path) != "" {
		var fc fileConfig
		if _, err := toml.DecodeFile(path, &fc); err != nil {
			return Config{}, fmt.Errorf("config file %s: %w", path, err)
		}
		fc.apply(&cfg)
	}
	applyEnv(&cfg)
	if cfg.Maintenance.StaleAfter <= 0 {
		cfg.Maintenance.StaleAfter = 2 * cfg.RPA.MaxRuntime
	}
	return cfg, nil
}

func (fc fileConfig) apply(cfg *Config) {
	setInt(&cfg.FiscalYear, fc.FiscalYear)

	setString(&cfg.Addr, fc.HTTP.Addr)
	setString(&cfg.Environment, fc.HTTP.Environment)
	setString(&cfg.JWTSecret, fc.HTTP.JWTSecret)
	if len(fc.HTTP.CORSOrigins) > 0 {
		cfg.CORSOrigins = fc.HTTP.CORSOrigins
	}
	if fc.HTTP.MaxBodyBytes != nil {
		cfg.MaxBodyBytes = *fc.HTTP.MaxBodyBytes
	}
	setInt(&cfg.RateLimitPerMinute, fc.HTTP.RateLimitPerMinute)
	setBool(&cfg.MetricsEnabled, fc.HTTP.MetricsEnabled)

	setString(&cfg.Store.Driver, fc.Store.Driver)
	setString(&cfg.Store.DatabaseURL, fc.Store.DatabaseURL)
	setString(&cfg.Store.SQLitePath, fc.Store.SQLitePath)
	setInt(&cfg.Store.MaxConns, fc.Store.MaxConns)
	setBool(&cfg.RunMigrations, fc.Store.RunMigrations)
	setBool(&cfg.RunSeed, fc.Store.RunSeed)

	setInt(&cfg.RPA.MaxAttempts, fc.RPA.MaxAttempts)
	setSeconds(&cfg.RPA.MaxRuntime, fc.RPA.MaxRuntimeSec)
	setInt(&cfg.RPA.PoolSize, fc.RPA.PoolSize)
	setBool(&cfg.RPA.Headless, fc.RPA.Headless)
	setString(&cfg.RPA.Driver, fc.RPA.Driver)
	setString(&cfg.RPA.BrowserBin, fc.RPA.BrowserBin)
	if len(fc.RPA.Platforms) > 0 {
		cfg.RPA.Platforms = fc.RPA.Platforms
	}
	if fc.RPA.PollIntervalMs != nil {
		cfg.RPA.PollInterval = time.Duration(*fc.RPA.PollIntervalMs) * time.Millisecond
	}
	setString(&cfg.RPA.WorkerID, fc.RPA.WorkerID)
	setBool(&cfg.RPA.EmbeddedWorkers, fc.RPA.EmbeddedWorkers)

	setString(&cfg.Vault.MasterKey, fc.Vault.MasterKey)
	setString(&cfg.Vault.KeySalt, fc.Vault.KeySalt)

	setSeconds(&cfg.Backoff.Base, fc.Backoff.BaseSec)
	setSeconds(&cfg.Backoff.Cap, fc.Backoff.CapSec)

	setString(&cfg.Artifacts.Dir, fc.Artifacts.Dir)
	setBool(&cfg.Artifacts.Encrypt, fc.Artifacts.Encrypt)

	setString(&cfg.Log.Level, fc.Log.Level)
	setString(&cfg.Log.Format, fc.Log.Format)

	setSeconds(&cfg.Maintenance.Interval, fc.Maintenance.IntervalSec)
	setSeconds(&cfg.Maintenance.StaleAfter, fc.Maintenance.StaleAfterSec)

	if len(fc.Portals) > 0 {
		cfg.Portals = fc.Portals
	}
}

func applyEnv(cfg *Config) {
	cfg.Addr = getEnv("APP_ADDR", cfg.Addr)
	cfg.Environment = getEnv("APP_ENV", cfg.Environment)
	cfg.FiscalYear = getEnvInt("FISCAL_YEAR", cfg.FiscalYear)
	cfg.JWTSecret = getEnv("JWT_SECRET", cfg.JWTSecret)
	cfg.CORSOrigins = getEnvList("CORS_ORIGINS", cfg.CORSOrigins)
	cfg.MaxBodyBytes = int64(getEnvInt("MAX_BODY_BYTES", int(cfg.MaxBodyBytes)))
	cfg.RateLimitPerMinute = getEnvInt("RATE_LIMIT_PER_MINUTE", cfg.RateLimitPerMinute)
	cfg.MetricsEnabled = getEnvBool("METRICS_ENABLED", cfg.MetricsEnabled)
	cfg.RunMigrations = getEnvBool("RUN_MIGRATIONS", cfg.RunMigrations)
	cfg.RunSeed = getEnvBool("RUN_SEED", cfg.RunSeed)

	cfg.Store.Driver = getEnv("STORE_DRIVER", cfg.Store.Driver)
	cfg.Store.DatabaseURL = getEnv("DATABASE_URL", cfg.Store.DatabaseURL)
	cfg.Store.SQLitePath = getEnv("SQLITE_PATH", cfg.Store.SQLitePath)
	cfg.Store.MaxConns = getEnvInt("DB_MAX_CONNS", cfg.Store.MaxConns)

	cfg.RPA.MaxAttempts = getEnvInt("RPA_MAX_ATTEMPTS", cfg.RPA.MaxAttempts)
	cfg.RPA.MaxRuntime = getEnvSeconds("RPA_MAX_RUNTIME_SEC", cfg.RPA.MaxRuntime)
	cfg.RPA.PoolSize = getEnvInt("RPA_POOL_SIZE", cfg.RPA.PoolSize)
	cfg.RPA.Headless = getEnvBool("RPA_HEADLESS", cfg.RPA.Headless)
	cfg.RPA.Driver = getEnv("RPA_DRIVER", cfg.RPA.Driver)
	cfg.RPA.BrowserBin = getEnv("RPA_BROWSER_BIN", cfg.RPA.BrowserBin)
	cfg.RPA.Platforms = getEnvList("RPA_PLATFORMS", cfg.RPA.Platforms)
	cfg.RPA.PollInterval = getEnvDuration("RPA_POLL_INTERVAL", cfg.RPA.PollInterval)
	cfg.RPA.WorkerID = getEnv("RPA_WORKER_ID", cfg.RPA.WorkerID)
	cfg.RPA.EmbeddedWorkers = getEnvBool("RPA_EMBEDDED_WORKERS", cfg.RPA.EmbeddedWorkers)

	cfg.Vault.MasterKey = getEnv("VAULT_MASTER_KEY", cfg.Vault.MasterKey)
	cfg.Vault.KeySalt = getEnv("VAULT_KEY_SALT", cfg.Vault.KeySalt)

	cfg.Backoff.Base = getEnvSeconds("BACKOFF_BASE_SEC", cfg.Backoff.Base)
	cfg.Backoff.Cap = getEnvSeconds("BACKOFF_CAP_SEC", cfg.Backoff.Cap)

	cfg.Artifacts.Dir = getEnv("ARTIFACTS_DIR", cfg.Artifacts.Dir)
	cfg.Artifacts.Encrypt = getEnvBool("ARTIFACTS_ENCRYPT", cfg.Artifacts.Encrypt)

	cfg.Log.Level = getEnv("LOG_LEVEL", cfg.Log.Level)
	cfg.Log.Format = getEnv("LOG_FORMAT", cfg.Log.Format)

	cfg.Maintenance.Interval = getEnvSeconds("MAINTENANCE_INTERVAL_SEC", cfg.Maintenance.Interval)
	cfg.Maintenance.StaleAfter = getEnvSeconds("MAINTENANCE_STALE_AFTER_SEC", cfg.Maintenance.StaleAfter)
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvSeconds(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return time.Duration(parsed) * time.Second
}

func getEnvList(key string, fallback []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

func setInt(dst *int, v *int) {
	if v != nil {
		*dst = *v
	}
}

func setBool(dst *bool, v *bool) {
	if v != nil {
		*dst = *v
	}
}

func setSeconds(dst *time.Duration, v *int) {
	if v != nil {
		*dst = time.Duration(*v) * time.Second
	}
}

// LeaseExpiry is the age after which a RUNNING lease is reaped.
func (c Config) LeaseExpiry() time.Duration {
	if c.Maintenance.StaleAfter > 0 {
		return c.Maintenance.StaleAfter
	}
	return 2 * c.RPA.MaxRuntime
}

func (c Config) IsProduction() bool {
	return c.Environment == "production"
}

func (c Config) Validate() error {
	switch c.Store.Driver {
	case DriverPostgres:
		if strings.TrimSpace(c.Store.DatabaseURL) == "" {
			return fmt.Errorf("DATABASE_URL is required for the postgres store")
		}
	case DriverSQLite:
		if strings.TrimSpace(c.Store.SQLitePath) == "" {
			return fmt.Errorf("SQLITE_PATH is required for the sqlite store")
		}
	default:
		return fmt.Errorf("STORE_DRIVER must be %q or %q", DriverPostgres, DriverSQLite)
	}
	if c.IsProduction() && strings.TrimSpace(c.JWTSecret) == "" {
		return fmt.Errorf("JWT_SECRET must be set to a strong value in production")
	}
	if c.FiscalYear < 2000 {
		return fmt.Errorf("FISCAL_YEAR must be a four digit year")
	}
	if c.MaxBodyBytes < 1024 {
		return fmt.Errorf("MAX_BODY_BYTES must be at least 1024")
	}
	if c.RateLimitPerMinute <= 0 {
		return fmt.Errorf("RATE_LIMIT_PER_MINUTE must be positive")
	}
	if c.RPA.MaxAttempts < 1 {
		return fmt.Errorf("RPA_MAX_ATTEMPTS must be at least 1")
	}
	if c.RPA.MaxRuntime <= 0 {
		return fmt.Errorf("RPA_MAX_RUNTIME_SEC must be positive")
	}
	if c.Maintenance.StaleAfter > 0 && c.Maintenance.StaleAfter <= c.RPA.MaxRuntime+FinalizeGrace {
		return fmt.Errorf("MAINTENANCE_STALE_AFTER_SEC must exceed RPA_MAX_RUNTIME_SEC plus %s", FinalizeGrace)
	}
	if c.RPA.PoolSize < 1 {
		return fmt.Errorf("RPA_POOL_SIZE must be at least 1")
	}
	if c.RPA.Driver != BrowserRod && c.RPA.Driver != BrowserSimulated {
		return fmt.Errorf("RPA_DRIVER must be %q or %q", BrowserRod, BrowserSimulated)
	}
	if c.Backoff.Base <= 0 || c.Backoff.Cap < c.Backoff.Base {
		return fmt.Errorf("backoff cap must be >= base and base must be positive")
	}
	for _, p := range c.Portals {
		if strings.TrimSpace(p.Platform) == "" {
			return fmt.Errorf("portal entries need a platform name")
		}
	}
	return nil
}
