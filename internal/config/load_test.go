package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func isolate(t *testing.T) {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	t.Setenv("XDG_CONFIG_HOME", dir)
	for _, env := range envBindings {
		t.Setenv(env, "")
		os.Unsetenv(env)
	}
}

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(strings.TrimSpace(contents)+"\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	isolate(t)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Endpoint != "ws://localhost:8080" {
		t.Errorf("expected default endpoint, got %q", cfg.Endpoint)
	}
	if cfg.TimeLimit() != 180*time.Second {
		t.Errorf("expected 180s time limit, got %s", cfg.TimeLimit())
	}
	if cfg.MaxOutputLength != 100000 {
		t.Errorf("expected max output 100000, got %d", cfg.MaxOutputLength)
	}
	if cfg.DialTimeout != 10*time.Second || cfg.ExitGrace != 2*time.Second {
		t.Errorf("unexpected timeouts: %+v", cfg)
	}
}

func TestLoadFile(t *testing.T) {
	isolate(t)
	path := writeConfig(t, `
endpoint: wss://runner.example.com/ws/
connection_time_limit: 60
dial_timeout: 3s
mock_runner:
  addr: 127.0.0.1:9000
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Endpoint != "wss://runner.example.com/ws" {
		t.Errorf("expected endpoint from file, got %q", cfg.Endpoint)
	}
	if cfg.ConnectionTimeLimit != 60 {
		t.Errorf("expected time limit 60, got %d", cfg.ConnectionTimeLimit)
	}
	if cfg.DialTimeout != 3*time.Second {
		t.Errorf("expected dial timeout 3s, got %s", cfg.DialTimeout)
	}
	if cfg.MockRunner.Addr != "127.0.0.1:9000" {
		t.Errorf("expected mock runner addr from file, got %q", cfg.MockRunner.Addr)
	}
	if cfg.MaxOutputLength != 100000 {
		t.Errorf("expected default max output, got %d", cfg.MaxOutputLength)
	}
}

func TestLoadEnvOverridesFile(t *testing.T) {
	isolate(t)
	path := writeConfig(t, `
connection_time_limit: 60
`)
	t.Setenv("CONNECTION_TIME_LIMIT", "30")
	t.Setenv("MAX_OUTPUT_LENGTH", "500")
	t.Setenv("RUNNER_BASE_URL", "ws://10.0.0.2:8080")
	t.Setenv("EXIT_GRACE", "500ms")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.ConnectionTimeLimit != 30 {
		t.Errorf("expected env time limit 30, got %d", cfg.ConnectionTimeLimit)
	}
	if cfg.MaxOutputLength != 500 {
		t.Errorf("expected env max output 500, got %d", cfg.MaxOutputLength)
	}
	if cfg.Endpoint != "ws://10.0.0.2:8080" {
		t.Errorf("expected env endpoint, got %q", cfg.Endpoint)
	}
	if cfg.ExitGrace != 500*time.Millisecond {
		t.Errorf("expected exit grace 500ms, got %s", cfg.ExitGrace)
	}
}

func TestLoadMissingExplicitFile(t *testing.T) {
	isolate(t)
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestLoadRejectsInvalidEndpoint(t *testing.T) {
	isolate(t)
	path := writeConfig(t, `
endpoint: http://localhost:8080
`)
	if _, err := Load(path); !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected ErrInvalid, got %v", err)
	}
}

func TestValidateRejectsNonPositiveLimits(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ConnectionTimeLimit = 0
	if err := cfg.Validate(); !errors.Is(err, ErrInvalid) {
		t.Errorf("expected ErrInvalid for zero time limit, got %v", err)
	}

	cfg = DefaultConfig()
	cfg.MaxOutputLength = -1
	if err := cfg.Validate(); !errors.Is(err, ErrInvalid) {
		t.Errorf("expected ErrInvalid for negative max output, got %v", err)
	}
}

func TestMarshal(t *testing.T) {
	data, err := Marshal(DefaultConfig())
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	out := string(data)
	for _, want := range []string{
		"endpoint: ws://localhost:8080",
		"connection_time_limit: 180",
		"max_output_length: 100000",
		"dial_timeout: 10s",
		"addr: :8080",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in:\n%s", want, out)
		}
	}
}
