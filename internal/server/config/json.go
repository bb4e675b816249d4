package config

import (
	"os"

	"github.com/goccy/go-json"

	"github.com/annachatkara/moviedb/internal/flagx"
	"github.com/annachatkara/moviedb/internal/timex"
)

// JsonConfig is the on-disk shape of the configuration file. Durations use
// timex.Duration so both "10s" and integer nanoseconds are accepted. Fields
// left out of the file keep their current values.
type JsonConfig struct {
	ListenAddr      string          `json:"listen_addr"`
	BackendDriver   string          `json:"backend_driver"`
	BackendURL      string          `json:"backend_url"`
	BackendKey      string          `json:"backend_key"`
	DatabaseDSN     string          `json:"database_dsn"`
	RunMigrations   *bool           `json:"run_migrations"`
	SecretKey       string          `json:"secret_key"`
	Tables          []string        `json:"tables"`
	MaxBodyBytes    int64           `json:"max_body_bytes"`
	ShutdownTimeout *timex.Duration `json:"shutdown_timeout"`
	LogLevel        string          `json:"log_level"`
	S3Region        string          `json:"s3_region"`
	S3BaseEndpoint  string          `json:"s3_base_endpoint"`
	S3AccessKey     string          `json:"s3_access_key"`
	S3SecretKey     string          `json:"s3_secret_key"`
}

// parseJson loads the file named by -c / -config, if any, into config.
// An unreadable file or invalid JSON panics.
func parseJson(config *Config, args []string) {
	path := flagx.JsonConfigPath(args)
	if path == "" {
		return
	}

	file, err := os.ReadFile(path)
	if err != nil {
		panic(err)
	}

	c := &JsonConfig{}
	if err := json.Unmarshal(file, c); err != nil {
		panic(err)
	}

	setString(&config.ListenAddr, c.ListenAddr)
	setString(&config.BackendDriver, c.BackendDriver)
	setString(&config.BackendURL, c.BackendURL)
	setString(&config.BackendKey, c.BackendKey)
	setString(&config.DatabaseDSN, c.DatabaseDSN)
	setString(&config.SecretKey, c.SecretKey)
	setString(&config.LogLevel, c.LogLevel)
	setString(&config.S3Region, c.S3Region)
	setString(&config.S3BaseEndpoint, c.S3BaseEndpoint)
	setString(&config.S3AccessKey, c.S3AccessKey)
	setString(&config.S3SecretKey, c.S3SecretKey)

	if c.RunMigrations != nil {
		config.RunMigrations = *c.RunMigrations
	}
	if len(c.Tables) > 0 {
		config.Tables = c.Tables
	}
	if c.MaxBodyBytes > 0 {
		config.MaxBodyBytes = c.MaxBodyBytes
	}
	if c.ShutdownTimeout != nil {
		config.ShutdownTimeout = c.ShutdownTimeout.Duration
	}
}
