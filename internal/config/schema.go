// Package config handles YAML configuration loading, environment variable
// expansion, and structural validation for loom.
package config

import (
	"github.com/flemzord/loom/internal/gateway"
	"github.com/flemzord/loom/internal/janitor"
	sqlitestore "github.com/flemzord/loom/modules/store/sqlite"
)

// Backend names for the store configuration.
const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
)

// Config is the top-level configuration structure.
type Config struct {
	// Version is the config format version. Currently only "1" is supported.
	Version string `yaml:"version"`

	// Store selects and configures the persistence backend.
	Store StoreConfig `yaml:"store"`

	// Gateway configures the HTTP server.
	Gateway gateway.Config `yaml:"gateway"`

	// Janitor configures the orphaned-link sweep.
	Janitor janitor.Config `yaml:"janitor"`
}

// StoreConfig selects the persistence backend.
type StoreConfig struct {
	// Backend is "memory" or "sqlite". Defaults to "sqlite".
	Backend string `yaml:"backend"`

	// SQLite configures the sqlite backend.
	SQLite sqlitestore.Config `yaml:"sqlite"`
}

// Defaults fills zero values with sensible defaults.
func (c *Config) Defaults() {
	if c.Version == "" {
		c.Version = "1"
	}
	if c.Store.Backend == "" {
		c.Store.Backend = BackendSQLite
	}
}
