package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/flemzord/loom/internal/config"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "loom.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

func TestLoad_Full(t *testing.T) {
	path := writeConfig(t, `
version: "1"
store:
  backend: sqlite
  sqlite:
    path: /tmp/loom-test.db
    busy_timeout: 1000
gateway:
  bind: 127.0.0.1:9090
  auth:
    bearer_token: secret
janitor:
  schedule: "0 4 * * *"
`)

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Store.Backend != config.BackendSQLite {
		t.Errorf("Backend = %q", cfg.Store.Backend)
	}
	if cfg.Store.SQLite.Path != "/tmp/loom-test.db" || cfg.Store.SQLite.BusyTimeout != 1000 {
		t.Errorf("SQLite = %+v", cfg.Store.SQLite)
	}
	if cfg.Gateway.Bind != "127.0.0.1:9090" {
		t.Errorf("Bind = %q", cfg.Gateway.Bind)
	}
	if cfg.Gateway.Auth.BearerToken != "secret" {
		t.Errorf("BearerToken = %q", cfg.Gateway.Auth.BearerToken)
	}
	if cfg.Janitor.Schedule != "0 4 * * *" {
		t.Errorf("Schedule = %q", cfg.Janitor.Schedule)
	}
}

func TestLoad_Defaults(t *testing.T) {
	path := writeConfig(t, `{}`)

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Version != "1" {
		t.Errorf("Version = %q, want 1", cfg.Version)
	}
	if cfg.Store.Backend != config.BackendSQLite {
		t.Errorf("Backend = %q, want sqlite", cfg.Store.Backend)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err == nil {
		t.Fatal("Load succeeded on a missing file")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := writeConfig(t, "version: [unclosed")
	if _, err := config.Load(path); err == nil {
		t.Fatal("Load succeeded on invalid YAML")
	}
}

// ---------------------------------------------------------------------------
// Environment expansion
// ---------------------------------------------------------------------------

func TestLoad_EnvExpansion(t *testing.T) {
	t.Setenv("LOOM_TEST_TOKEN", "from-env")

	path := writeConfig(t, `
version: "1"
gateway:
  auth:
    bearer_token: ${LOOM_TEST_TOKEN}
`)
	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Gateway.Auth.BearerToken != "from-env" {
		t.Errorf("BearerToken = %q, want from-env", cfg.Gateway.Auth.BearerToken)
	}
}

func TestLoad_EnvDefault(t *testing.T) {
	path := writeConfig(t, `
version: "1"
store:
  backend: ${LOOM_TEST_UNSET_BACKEND:-memory}
`)
	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Store.Backend != config.BackendMemory {
		t.Errorf("Backend = %q, want memory (from default)", cfg.Store.Backend)
	}
}

func TestLoad_UnresolvedVariable(t *testing.T) {
	path := writeConfig(t, `
version: "1"
gateway:
  auth:
    bearer_token: ${LOOM_TEST_DEFINITELY_UNSET}
`)
	_, err := config.Load(path)
	if err == nil {
		t.Fatal("Load succeeded with an unresolved variable")
	}
	if !strings.Contains(err.Error(), "LOOM_TEST_DEFINITELY_UNSET") {
		t.Errorf("error does not name the variable: %v", err)
	}
}

// ---------------------------------------------------------------------------
// Validation
// ---------------------------------------------------------------------------

func TestValidate(t *testing.T) {
	t.Parallel()

	valid := func() *config.Config {
		cfg := &config.Config{}
		cfg.Defaults()
		return cfg
	}

	if err := config.Validate(valid()); err != nil {
		t.Errorf("valid config rejected: %v", err)
	}

	cfg := valid()
	cfg.Version = "2"
	if err := config.Validate(cfg); err == nil {
		t.Error("unsupported version accepted")
	}

	cfg = valid()
	cfg.Store.Backend = "postgres"
	if err := config.Validate(cfg); err == nil {
		t.Error("unknown backend accepted")
	}

	cfg = valid()
	cfg.Gateway.Bind = "not a bind address::::"
	if err := config.Validate(cfg); err == nil {
		t.Error("invalid bind address accepted")
	}

	cfg = valid()
	cfg.Janitor.Schedule = "not cron"
	if err := config.Validate(cfg); err == nil {
		t.Error("invalid janitor schedule accepted")
	}
}
