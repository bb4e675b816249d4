// Package config handles configuration for the catalog server: defaults,
// JSON file overlay, environment overlay and command-line flags, applied in
// that order.
package config

import (
	"fmt"
	"os"
	"slices"
	"strings"
	"time"
)

// Backend drivers.
const (
	DriverMemory    = "memory"
	DriverPostgres  = "postgres"
	DriverPostgREST = "postgrest"
)

// Config holds runtime settings for the catalog server.
//
// Fields:
//   - ListenAddr: HTTP bind address.
//   - BackendDriver: memory, postgres or postgrest; empty means resolve from
//     the other settings (see Driver).
//   - BackendURL / BackendKey: hosted REST data API base URL and service key.
//   - DatabaseDSN: PostgreSQL DSN (pgx) for the postgres driver.
//   - RunMigrations: apply embedded schema migrations on start (postgres only).
//   - SecretKey: HMAC secret that bearer tokens are verified against.
//   - Tables: catalog tables that get a route set.
//   - MaxBodyBytes / ShutdownTimeout: HTTP limits.
//   - S3*: object storage settings for s3:// bulk-upload sources.
type Config struct {
	ListenAddr      string
	BackendDriver   string
	BackendURL      string
	BackendKey      string
	DatabaseDSN     string
	RunMigrations   bool
	SecretKey       string
	Tables          []string
	MaxBodyBytes    int64
	ShutdownTimeout time.Duration
	LogLevel        string
	S3Region        string
	S3BaseEndpoint  string
	S3AccessKey     string
	S3SecretKey     string
}

// LoadDefaults populates Config with development defaults.
func (c *Config) LoadDefaults() {
	c.ListenAddr = ":3000"
	c.Tables = []string{"movies", "series", "anime"}
	c.MaxBodyBytes = 50 << 20
	c.ShutdownTimeout = 10 * time.Second
	c.LogLevel = "info"
}

// LoadConfig builds a Config from defaults, the optional JSON file, the
// process environment and os.Args. Malformed input panics.
func LoadConfig() *Config {
	return Load(os.Args[1:], os.Getenv)
}

// Load is LoadConfig over explicit arguments and environment lookup.
func Load(args []string, getenv func(string) string) *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg, args)
	parseEnv(cfg, getenv)
	parseFlags(cfg, args)
	return cfg
}

// Driver returns the effective backend driver: the configured one, else
// postgrest when a backend URL is set, postgres when a DSN is set, memory
// otherwise.
func (c *Config) Driver() string {
	if d := strings.ToLower(strings.TrimSpace(c.BackendDriver)); d != "" {
		return d
	}
	if strings.TrimSpace(c.BackendURL) != "" {
		return DriverPostgREST
	}
	if strings.TrimSpace(c.DatabaseDSN) != "" {
		return DriverPostgres
	}
	return DriverMemory
}

// Validate reports settings the server cannot start with.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.SecretKey) == "" {
		return fmt.Errorf("jwt secret is required (JWT_SECRET or -s)")
	}
	if len(c.Tables) == 0 {
		return fmt.Errorf("at least one table is required")
	}
	switch d := c.Driver(); d {
	case DriverMemory:
	case DriverPostgres:
		if strings.TrimSpace(c.DatabaseDSN) == "" {
			return fmt.Errorf("postgres driver selected without DSN")
		}
	case DriverPostgREST:
		if strings.TrimSpace(c.BackendURL) == "" || strings.TrimSpace(c.BackendKey) == "" {
			return fmt.Errorf("postgrest driver requires SUPABASE_URL and SUPABASE_KEY")
		}
	default:
		return fmt.Errorf("unsupported backend driver %q", d)
	}
	if c.RunMigrations && c.Driver() != DriverPostgres {
		return fmt.Errorf("migrations can only run with the postgres driver")
	}
	if c.MaxBodyBytes <= 0 {
		return fmt.Errorf("max body bytes must be positive")
	}
	return nil
}

func splitAndTrim(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" && !slices.Contains(out, trimmed) {
			out = append(out, trimmed)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
