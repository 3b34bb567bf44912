package ledger

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

// StoreExtension is the only file extension accepted for the sqlite store.
const StoreExtension = ".s3db"

// Backends understood by OpenStore.
const (
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendMemory   = "mem"
)

// Config is a configuration for the ledger application
type Config struct {
	Backend string
	// StorePath is the sqlite file, e.g. card.s3db.
	StorePath string
	// DSN is the postgres connection string.
	DSN string
	// HTTPAddr enables the health API when non-empty.
	HTTPAddr string
	LogLevel string
	// IssueAttempts bounds card generation retries on duplicate numbers.
	IssueAttempts int
	// OpenRetries bounds reconnect attempts while opening the store.
	OpenRetries int
}

func DefaultConfig() *Config {
	return &Config{
		Backend:       BackendSQLite,
		LogLevel:      "warn",
		IssueAttempts: 5,
		OpenRetries:   3,
	}
}

// ConfigFromEnv returns DefaultConfig overridden by LEDGER_BACKEND, DB_DSN, HTTP_ADDR,
// LOG_LEVEL, LEDGER_ISSUE_ATTEMPTS and LEDGER_OPEN_RETRIES.
func ConfigFromEnv() *Config {
	cfg := DefaultConfig()
	cfg.Backend = getenv("LEDGER_BACKEND", cfg.Backend)
	cfg.StorePath = getenv("LEDGER_FILE", cfg.StorePath)
	cfg.DSN = getenv("DB_DSN", cfg.DSN)
	cfg.HTTPAddr = getenv("HTTP_ADDR", cfg.HTTPAddr)
	cfg.LogLevel = getenv("LOG_LEVEL", cfg.LogLevel)
	cfg.IssueAttempts = getenvInt("LEDGER_ISSUE_ATTEMPTS", cfg.IssueAttempts)
	cfg.OpenRetries = getenvInt("LEDGER_OPEN_RETRIES", cfg.OpenRetries)
	return cfg
}

func (c *Config) Validate() error {
	switch c.Backend {
	case BackendSQLite:
		if c.StorePath == "" {
			return fmt.Errorf("store file is required for %s backend", c.Backend)
		}
		if filepath.Ext(c.StorePath) != StoreExtension {
			return fmt.Errorf("wrong file extension: %s (want %s)", c.StorePath, StoreExtension)
		}
	case BackendPostgres:
		if c.DSN == "" {
			return fmt.Errorf("DB_DSN is required for %s backend", c.Backend)
		}
	case BackendMemory:
	default:
		return fmt.Errorf("unsupported backend %q", c.Backend)
	}
	if c.IssueAttempts <= 0 {
		return fmt.Errorf("issue attempts must be positive")
	}
	return nil
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getenvInt(k string, def int) int {
	v, err := strconv.Atoi(os.Getenv(k))
	if err != nil {
		return def
	}
	return v
}
