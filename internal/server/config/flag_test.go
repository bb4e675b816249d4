package config

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFlags(t *testing.T) {
	tests := []struct {
		expected    *Config
		name        string
		args        []string
		expectPanic bool
	}{
		{
			name: "all flags",
			args: []string{
				"-a", "127.0.0.1:9090", "-d", "postgres://db", "-s", "secret",
				"-u", "https://api", "-k", "key", "-b", "postgrest", "-t", "movies, series", "-l", "warn", "-m",
			},
			expected: &Config{
				ListenAddr:    "127.0.0.1:9090",
				DatabaseDSN:   "postgres://db",
				SecretKey:     "secret",
				BackendURL:    "https://api",
				BackendKey:    "key",
				BackendDriver: "postgrest",
				Tables:        []string{"movies", "series"},
				LogLevel:      "warn",
				RunMigrations: true,
			},
		},
		{
			name:     "foreign flags are ignored",
			args:     []string{"-c", "conf.json", "-x", "1", "-s", "k"},
			expected: &Config{SecretKey: "k"},
		},
		{
			name:        "missing value panics",
			args:        []string{"-a"},
			expectPanic: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := &Config{}

			if tt.expectPanic {
				require.Panics(t, func() { parseFlags(config, tt.args) })
				return
			}
			require.NotPanics(t, func() { parseFlags(config, tt.args) })
			assert.Empty(t, cmp.Diff(tt.expected, config))
		})
	}
}
