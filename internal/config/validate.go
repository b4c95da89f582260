package config

import (
	"fmt"
	"net"
)

// Validate checks the configuration for structural errors.
func Validate(cfg *Config) error {
	if cfg.Version != "1" {
		return fmt.Errorf("config: unsupported version %q (only \"1\" is supported)", cfg.Version)
	}

	switch cfg.Store.Backend {
	case BackendMemory, BackendSQLite:
	default:
		return fmt.Errorf("config: unknown store backend %q (want %q or %q)",
			cfg.Store.Backend, BackendMemory, BackendSQLite)
	}

	if cfg.Gateway.Bind != "" {
		if _, err := net.ResolveTCPAddr("tcp", cfg.Gateway.Bind); err != nil {
			return fmt.Errorf("config: invalid gateway bind address %q: %w", cfg.Gateway.Bind, err)
		}
	}

	if err := cfg.Janitor.Validate(); err != nil {
		return err
	}

	return nil
}
