package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// ServerConfig holds all configuration settings for the controller
type ServerConfig struct {
	// Server settings
	Port int    `json:"port"`
	Host string `json:"host"`

	// Decommission settings
	ExcludeFilePath  string `json:"exclude_file_path"`  // Path to the administrator-maintained exclude file
	WatchExcludeFile bool   `json:"watch_exclude_file"` // Re-read the exclude file automatically on change

	// Heartbeat settings
	HeartbeatInterval   time.Duration `json:"heartbeat_interval"` // Cadence of the liveness sweep
	HeartbeatTimeout    time.Duration `json:"heartbeat_timeout"`  // Age after which a node is unreachable
	RequireRegistration bool          `json:"require_registration"`

	// Replication settings
	ScanInterval       time.Duration `json:"scan_interval"`       // Cadence of the replication monitor scan
	DefaultReplication int           `json:"default_replication"` // R: desired replicas per block
}

// DefaultConfig returns a ServerConfig with default values
func DefaultConfig() *ServerConfig {
	return &ServerConfig{
		Port:                8080,
		Host:                "0.0.0.0",
		ExcludeFilePath:     "./conf/exclude",
		WatchExcludeFile:    true,
		HeartbeatInterval:   5 * time.Second,
		HeartbeatTimeout:    30 * time.Second,
		RequireRegistration: false,
		ScanInterval:        10 * time.Second,
		DefaultReplication:  3,
	}
}

// LoadConfig loads configuration from environment variables
func LoadConfig() *ServerConfig {
	config := DefaultConfig()

	if port := os.Getenv("SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Port = p
		}
	}

	if host := os.Getenv("SERVER_HOST"); host != "" {
		config.Host = host
	}

	if path := os.Getenv("EXCLUDE_FILE"); path != "" {
		config.ExcludeFilePath = path
	}

	if watch := os.Getenv("WATCH_EXCLUDE_FILE"); watch != "" {
		if b, err := strconv.ParseBool(watch); err == nil {
			config.WatchExcludeFile = b
		}
	}

	if interval := os.Getenv("HEARTBEAT_INTERVAL"); interval != "" {
		if d, err := time.ParseDuration(interval); err == nil {
			config.HeartbeatInterval = d
		}
	}

	if timeout := os.Getenv("HEARTBEAT_TIMEOUT"); timeout != "" {
		if d, err := time.ParseDuration(timeout); err == nil {
			config.HeartbeatTimeout = d
		}
	}

	if require := os.Getenv("REQUIRE_REGISTRATION"); require != "" {
		if b, err := strconv.ParseBool(require); err == nil {
			config.RequireRegistration = b
		}
	}

	if interval := os.Getenv("SCAN_INTERVAL"); interval != "" {
		if d, err := time.ParseDuration(interval); err == nil {
			config.ScanInterval = d
		}
	}

	if replication := os.Getenv("DEFAULT_REPLICATION"); replication != "" {
		if r, err := strconv.Atoi(replication); err == nil {
			config.DefaultReplication = r
		}
	}

	return config
}

// Validate checks if the configuration is valid
func (c *ServerConfig) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Port)
	}

	if c.DefaultReplication < 1 {
		return fmt.Errorf("default replication must be at least 1, got %d", c.DefaultReplication)
	}

	if c.HeartbeatInterval <= 0 {
		return fmt.Errorf("heartbeat interval must be positive")
	}

	// A timeout shorter than the sweep cadence flags nodes that are merely
	// between heartbeats.
	if c.HeartbeatTimeout < c.HeartbeatInterval {
		c.HeartbeatTimeout = 2 * c.HeartbeatInterval
	}

	if c.ScanInterval <= 0 {
		return fmt.Errorf("scan interval must be positive")
	}

	return nil
}
