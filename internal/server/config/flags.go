package config

import (
	"flag"
	"strings"

	"github.com/annachatkara/moviedb/internal/flagx"
)

// parseFlags populates Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a string   HTTP listen address (e.g., ":3000")
//	-d string   PostgreSQL DSN
//	-s string   JWT HMAC secret key
//	-u string   hosted data API base URL
//	-k string   hosted data API key
//	-b string   backend driver (memory, postgres, postgrest)
//	-t string   comma-separated table list
//	-l string   log level
//	-m          run embedded migrations on start
//
// Only these flags are parsed (flagx.FilterArgs), so -c/-config and flags
// meant for other components do not collide.
func parseFlags(config *Config, argv []string) {
	args := flagx.FilterArgs(argv, []string{"-a", "-d", "-s", "-u", "-k", "-b", "-t", "-l", "-m"}, "-m")

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.ListenAddr, "a", config.ListenAddr, "address and port to run server")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.SecretKey, "s", config.SecretKey, "secret key")
	fs.StringVar(&config.BackendURL, "u", config.BackendURL, "backend URL")
	fs.StringVar(&config.BackendKey, "k", config.BackendKey, "backend key")
	fs.StringVar(&config.BackendDriver, "b", config.BackendDriver, "backend driver")
	tables := fs.String("t", strings.Join(config.Tables, ","), "comma-separated tables")
	fs.StringVar(&config.LogLevel, "l", config.LogLevel, "log level")
	fs.BoolVar(&config.RunMigrations, "m", config.RunMigrations, "run migrations")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	if list := splitAndTrim(*tables); len(list) > 0 {
		config.Tables = list
	}
}
