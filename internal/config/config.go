// Package config provides configuration loading and management.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Config represents the conductor configuration.
type Config struct {
	Server    ServerConfig    `toml:"server"`
	Registry  RegistryConfig  `toml:"registry"`
	Policy    PolicyConfig    `toml:"policy"`
	Dispatch  DispatchConfig  `toml:"dispatch"`
	Events    EventsConfig    `toml:"events"`
	Telemetry TelemetryConfig `toml:"telemetry"`
	Logging   LoggingConfig   `toml:"logging"`
}

// ServerConfig contains HTTP listener settings.
type ServerConfig struct {
	Addr            string `toml:"addr"`             // Listen address (default :8080)
	ShutdownTimeout int    `toml:"shutdown_timeout"` // Graceful shutdown timeout in seconds
}

// RegistryConfig contains agent catalog settings.
type RegistryConfig struct {
	Path  string `toml:"path"`  // Path to the agent catalog YAML
	Watch bool   `toml:"watch"` // Invalidate the cache when the catalog file changes
}

// PolicyConfig contains policy-evaluation service settings.
type PolicyConfig struct {
	URL         string `toml:"url"`           // Policy service decision endpoint
	Timeout     int    `toml:"timeout"`       // Decision timeout in seconds (default 5)
	APITokenEnv string `toml:"api_token_env"` // Env var holding the policy service token
}

// DispatchConfig contains specialist-agent call settings.
type DispatchConfig struct {
	Timeout int `toml:"timeout"` // Per-delegation timeout in seconds (default 60)
}

// EventsConfig contains observability sink settings.
type EventsConfig struct {
	NATSURL string `toml:"nats_url"` // NATS server URL; empty disables the NATS sink
	Subject string `toml:"subject"`  // Subject routing events are published to
}

// TelemetryConfig contains tracing settings.
type TelemetryConfig struct {
	Enabled  bool   `toml:"enabled"`
	Endpoint string `toml:"endpoint"` // OTLP gRPC endpoint (e.g., localhost:4317)
	Insecure bool   `toml:"insecure"` // Disable TLS (default false)
}

// LoggingConfig contains logger settings.
type LoggingConfig struct {
	Level string `toml:"level"` // debug|info|warn|error
}

// New creates a new config with defaults.
func New() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            ":8080",
			ShutdownTimeout: 10,
		},
		Registry: RegistryConfig{
			Path: "agents.yaml",
		},
		Policy: PolicyConfig{
			Timeout: 5, // 5 seconds for policy decisions
		},
		Dispatch: DispatchConfig{
			Timeout: 60, // 60 seconds per specialist call
		},
		Events: EventsConfig{
			Subject: "conductor.dispatch",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Default returns a default configuration.
func Default() *Config {
	return New()
}

// LoadFile loads configuration from a TOML file.
func LoadFile(path string) (*Config, error) {
	cfg := New()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

// LoadDefault loads configuration from conductor.toml in the current directory.
func LoadDefault() (*Config, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("failed to get current directory: %w", err)
	}

	return LoadFile(filepath.Join(cwd, "conductor.toml"))
}

// PolicyTimeout returns the policy decision timeout as a duration.
func (c *Config) PolicyTimeout() time.Duration {
	return time.Duration(c.Policy.Timeout) * time.Second
}

// DispatchTimeout returns the per-delegation timeout as a duration.
func (c *Config) DispatchTimeout() time.Duration {
	return time.Duration(c.Dispatch.Timeout) * time.Second
}

// PolicyToken returns the policy service token from the configured
// environment variable, or empty if unset.
func (c *Config) PolicyToken() string {
	if c.Policy.APITokenEnv == "" {
		return ""
	}
	return os.Getenv(c.Policy.APITokenEnv)
}
