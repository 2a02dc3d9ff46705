package config

import (
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Port != 8080 {
		t.Errorf("Expected default port 8080, got %d", cfg.Port)
	}
	if cfg.Host != "0.0.0.0" {
		t.Errorf("Expected default host 0.0.0.0, got %s", cfg.Host)
	}
	if cfg.DefaultReplication != 3 {
		t.Errorf("Expected default replication 3, got %d", cfg.DefaultReplication)
	}
	if cfg.HeartbeatInterval != 5*time.Second {
		t.Errorf("Expected default heartbeat interval 5s, got %v", cfg.HeartbeatInterval)
	}
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("EXCLUDE_FILE", "/etc/driftfs/exclude")
	t.Setenv("HEARTBEAT_INTERVAL", "2s")
	t.Setenv("HEARTBEAT_TIMEOUT", "20s")
	t.Setenv("SCAN_INTERVAL", "3s")
	t.Setenv("DEFAULT_REPLICATION", "5")
	t.Setenv("REQUIRE_REGISTRATION", "true")
	t.Setenv("WATCH_EXCLUDE_FILE", "false")

	cfg := LoadConfig()

	if cfg.Port != 9090 {
		t.Errorf("Expected port 9090, got %d", cfg.Port)
	}
	if cfg.ExcludeFilePath != "/etc/driftfs/exclude" {
		t.Errorf("Expected exclude file /etc/driftfs/exclude, got %s", cfg.ExcludeFilePath)
	}
	if cfg.HeartbeatInterval != 2*time.Second {
		t.Errorf("Expected heartbeat interval 2s, got %v", cfg.HeartbeatInterval)
	}
	if cfg.HeartbeatTimeout != 20*time.Second {
		t.Errorf("Expected heartbeat timeout 20s, got %v", cfg.HeartbeatTimeout)
	}
	if cfg.ScanInterval != 3*time.Second {
		t.Errorf("Expected scan interval 3s, got %v", cfg.ScanInterval)
	}
	if cfg.DefaultReplication != 5 {
		t.Errorf("Expected replication 5, got %d", cfg.DefaultReplication)
	}
	if !cfg.RequireRegistration {
		t.Error("Expected require registration to be true")
	}
	if cfg.WatchExcludeFile {
		t.Error("Expected watch exclude file to be false")
	}
}

func TestLoadConfigIgnoresInvalidValues(t *testing.T) {
	t.Setenv("SERVER_PORT", "not-a-number")
	t.Setenv("HEARTBEAT_INTERVAL", "soon")

	cfg := LoadConfig()

	if cfg.Port != 8080 {
		t.Errorf("Expected default port on invalid override, got %d", cfg.Port)
	}
	if cfg.HeartbeatInterval != 5*time.Second {
		t.Errorf("Expected default interval on invalid override, got %v", cfg.HeartbeatInterval)
	}
}

func TestValidate(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Errorf("Default config should validate, got %v", err)
	}

	cfg = DefaultConfig()
	cfg.Port = 0
	if err := cfg.Validate(); err == nil {
		t.Error("Expected error for port 0")
	}

	cfg = DefaultConfig()
	cfg.DefaultReplication = 0
	if err := cfg.Validate(); err == nil {
		t.Error("Expected error for replication 0")
	}

	// A timeout below the sweep interval gets widened, not rejected
	cfg = DefaultConfig()
	cfg.HeartbeatTimeout = time.Second
	if err := cfg.Validate(); err != nil {
		t.Errorf("Expected short timeout to be adjusted, got %v", err)
	}
	if cfg.HeartbeatTimeout != 2*cfg.HeartbeatInterval {
		t.Errorf("Expected timeout widened to 10s, got %v", cfg.HeartbeatTimeout)
	}
}
