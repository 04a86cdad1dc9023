package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaultsPerService(t *testing.T) {
	t.Setenv("SERVICE_NAME", "wager-service")
	t.Setenv("CONFIG_FILE", "")

	cfg := Load()
	if cfg.HTTPPort != "8083" || cfg.MetricsPort != "9099" {
		t.Errorf("ports = %s/%s, want 8083/9099", cfg.HTTPPort, cfg.MetricsPort)
	}
	if cfg.CallTimeout != 2*time.Second {
		t.Errorf("CallTimeout = %s", cfg.CallTimeout)
	}
	if cfg.TopicSelectionResolved != "selection_resolved" {
		t.Errorf("TopicSelectionResolved = %s", cfg.TopicSelectionResolved)
	}
}

func TestLoadFileThenEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cfg.yaml")
	body := []byte("service_name: settlement-worker\ncall_timeout: 750ms\nredis_addr: redis:6379\nreserve_attempts: 5\n")
	if err := os.WriteFile(path, body, 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("REDIS_ADDR", "override:6380")

	cfg := Load()
	if cfg.ServiceName != "settlement-worker" {
		t.Errorf("ServiceName = %q", cfg.ServiceName)
	}
	if cfg.CallTimeout != 750*time.Millisecond {
		t.Errorf("CallTimeout = %s, want 750ms", cfg.CallTimeout)
	}
	if cfg.ReserveAttempts != 5 {
		t.Errorf("ReserveAttempts = %d", cfg.ReserveAttempts)
	}
	if cfg.RedisAddr != "override:6380" {
		t.Errorf("env should win over file, got %s", cfg.RedisAddr)
	}
	if cfg.MetricsPort != "9100" {
		t.Errorf("MetricsPort = %s", cfg.MetricsPort)
	}
}
