// ABOUTME: Tests for configuration loading and parsing
// ABOUTME: Covers YAML loading, env var expansion, defaults, and duration parsing

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "fleetgate.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return configPath
}

func TestLoad_ValidConfig(t *testing.T) {
	configPath := writeConfig(t, `
server:
  ws_addr: "0.0.0.0:8765"
  http_addr: "0.0.0.0:5001"

database:
  path: "./test.db"

scripts:
  dir: "./scripts"

ingest:
  interval: "5s"
  reset_stale_running: true
  stale_after: "30m"

logging:
  level: "debug"
  format: "json"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.WSAddr != "0.0.0.0:8765" {
		t.Errorf("ws_addr = %q, want 0.0.0.0:8765", cfg.Server.WSAddr)
	}
	if cfg.Server.HTTPAddr != "0.0.0.0:5001" {
		t.Errorf("http_addr = %q, want 0.0.0.0:5001", cfg.Server.HTTPAddr)
	}
	if cfg.Database.Path != "./test.db" {
		t.Errorf("database.path = %q, want ./test.db", cfg.Database.Path)
	}
	if cfg.Scripts.Dir != "./scripts" {
		t.Errorf("scripts.dir = %q, want ./scripts", cfg.Scripts.Dir)
	}
	if cfg.Ingest.Interval != 5*time.Second {
		t.Errorf("ingest.interval = %v, want 5s", cfg.Ingest.Interval)
	}
	if !cfg.Ingest.ResetStaleRunning {
		t.Error("ingest.reset_stale_running should be true")
	}
	if cfg.Ingest.StaleAfter != 30*time.Minute {
		t.Errorf("ingest.stale_after = %v, want 30m", cfg.Ingest.StaleAfter)
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "json" {
		t.Errorf("logging = %+v, want debug/json", cfg.Logging)
	}
}

func TestLoad_Defaults(t *testing.T) {
	configPath := writeConfig(t, `
database:
  path: "./test.db"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.WSAddr != DefaultWSAddr {
		t.Errorf("ws_addr = %q, want default %q", cfg.Server.WSAddr, DefaultWSAddr)
	}
	if cfg.Server.HTTPAddr != DefaultHTTPAddr {
		t.Errorf("http_addr = %q, want default %q", cfg.Server.HTTPAddr, DefaultHTTPAddr)
	}
	if cfg.Scripts.Dir != DefaultScriptsDir {
		t.Errorf("scripts.dir = %q, want default %q", cfg.Scripts.Dir, DefaultScriptsDir)
	}
	if cfg.Ingest.Interval != DefaultIngestInterval {
		t.Errorf("ingest.interval = %v, want default %v", cfg.Ingest.Interval, DefaultIngestInterval)
	}
	if cfg.Ingest.ResetStaleRunning {
		t.Error("reset_stale_running should default to false")
	}
}

func TestLoad_EnvVarExpansion(t *testing.T) {
	t.Setenv("FLEETGATE_TEST_DB", "/tmp/expanded.db")

	configPath := writeConfig(t, `
database:
  path: "${FLEETGATE_TEST_DB}"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Database.Path != "/tmp/expanded.db" {
		t.Errorf("database.path = %q, want /tmp/expanded.db", cfg.Database.Path)
	}
}

func TestLoad_MissingDatabasePath(t *testing.T) {
	configPath := writeConfig(t, `
server:
  ws_addr: ":8765"
`)

	_, err := Load(configPath)
	if err == nil {
		t.Fatal("expected validation error for missing database.path")
	}
	if !strings.Contains(err.Error(), "database.path") {
		t.Errorf("error %q should mention database.path", err)
	}
}

func TestLoad_InvalidDuration(t *testing.T) {
	configPath := writeConfig(t, `
database:
  path: "./test.db"

ingest:
  interval: "ten seconds"
`)

	_, err := Load(configPath)
	if err == nil {
		t.Fatal("expected error for invalid duration")
	}
	if !strings.Contains(err.Error(), "interval") {
		t.Errorf("error %q should mention the interval field", err)
	}
}

func TestLoad_FileNotFound(t *testing.T) {
	_, err := Load("/nonexistent/fleetgate.yaml")
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}
