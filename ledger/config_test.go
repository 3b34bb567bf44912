package ledger

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"sqlite file", func(c *Config) { c.StorePath = "card.s3db" }, ""},
		{"sqlite without file", func(c *Config) {}, "store file is required"},
		{"wrong extension", func(c *Config) { c.StorePath = "card.db" }, "wrong file extension"},
		{"postgres", func(c *Config) { c.Backend = BackendPostgres; c.DSN = "postgres://localhost/bank" }, ""},
		{"postgres without dsn", func(c *Config) { c.Backend = BackendPostgres }, "DB_DSN is required"},
		{"mem", func(c *Config) { c.Backend = BackendMemory }, ""},
		{"unknown backend", func(c *Config) { c.Backend = "redis" }, "unsupported backend"},
		{"no issue attempts", func(c *Config) { c.Backend = BackendMemory; c.IssueAttempts = 0 }, "issue attempts"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("LEDGER_BACKEND", BackendPostgres)
	t.Setenv("DB_DSN", "postgres://localhost/bank")
	t.Setenv("HTTP_ADDR", ":8080")
	t.Setenv("LEDGER_ISSUE_ATTEMPTS", "9")
	t.Setenv("LEDGER_OPEN_RETRIES", "not a number")

	cfg := ConfigFromEnv()
	require.Equal(t, BackendPostgres, cfg.Backend)
	require.Equal(t, "postgres://localhost/bank", cfg.DSN)
	require.Equal(t, ":8080", cfg.HTTPAddr)
	require.Equal(t, 9, cfg.IssueAttempts)
	require.Equal(t, DefaultConfig().OpenRetries, cfg.OpenRetries)
	require.Equal(t, "warn", cfg.LogLevel)
}
