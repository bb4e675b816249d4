package config

import (
	"strconv"
	"strings"
	"time"
)

// parseEnv overlays settings from environment variables. Unset or blank
// variables leave the current value alone; unparsable numbers, booleans or
// durations panic, like malformed JSON and flags do.
//
//	PORT              listen port (":<port>")
//	LISTEN_ADDR       full listen address, wins over PORT
//	BACKEND_DRIVER    memory | postgres | postgrest
//	SUPABASE_URL      hosted data API base URL
//	SUPABASE_KEY      hosted data API key
//	DATABASE_URL      PostgreSQL DSN
//	RUN_MIGRATIONS    apply embedded migrations on start
//	JWT_SECRET        bearer token HMAC secret
//	TABLES            comma-separated catalog tables
//	MAX_BODY_BYTES    inbound body limit
//	SHUTDOWN_TIMEOUT  graceful shutdown budget ("10s")
//	LOG_LEVEL         debug | info | warn | error
//	S3_REGION, S3_ENDPOINT, S3_ACCESS_KEY, S3_SECRET_KEY
func parseEnv(config *Config, getenv func(string) string) {
	get := func(key string) string { return strings.TrimSpace(getenv(key)) }

	if port := get("PORT"); port != "" {
		config.ListenAddr = ":" + strings.TrimPrefix(port, ":")
	}
	setString(&config.ListenAddr, get("LISTEN_ADDR"))
	setString(&config.BackendDriver, get("BACKEND_DRIVER"))
	setString(&config.BackendURL, get("SUPABASE_URL"))
	setString(&config.BackendKey, get("SUPABASE_KEY"))
	setString(&config.DatabaseDSN, get("DATABASE_URL"))
	setString(&config.SecretKey, get("JWT_SECRET"))
	setString(&config.LogLevel, get("LOG_LEVEL"))
	setString(&config.S3Region, get("S3_REGION"))
	setString(&config.S3BaseEndpoint, get("S3_ENDPOINT"))
	setString(&config.S3AccessKey, get("S3_ACCESS_KEY"))
	setString(&config.S3SecretKey, get("S3_SECRET_KEY"))

	if tables := splitAndTrim(get("TABLES")); len(tables) > 0 {
		config.Tables = tables
	}
	if v := get("RUN_MIGRATIONS"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			panic(err)
		}
		config.RunMigrations = b
	}
	if v := get("MAX_BODY_BYTES"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			panic(err)
		}
		config.MaxBodyBytes = n
	}
	if v := get("SHUTDOWN_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			panic(err)
		}
		config.ShutdownTimeout = d
	}
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
