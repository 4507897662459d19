package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestNew_Defaults(t *testing.T) {
	cfg := New()
	if cfg.Server.Addr != ":8080" {
		t.Errorf("unexpected default addr: %s", cfg.Server.Addr)
	}
	if cfg.PolicyTimeout() != 5*time.Second {
		t.Errorf("unexpected policy timeout: %s", cfg.PolicyTimeout())
	}
	if cfg.DispatchTimeout() != 60*time.Second {
		t.Errorf("unexpected dispatch timeout: %s", cfg.DispatchTimeout())
	}
	if cfg.Events.Subject != "conductor.dispatch" {
		t.Errorf("unexpected events subject: %s", cfg.Events.Subject)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("unexpected log level: %s", cfg.Logging.Level)
	}
	if cfg.Telemetry.Enabled {
		t.Error("telemetry should be off by default")
	}
}

func TestLoadFile(t *testing.T) {
	content := `[server]
addr = ":9090"

[registry]
path = "/etc/conductor/agents.yaml"
watch = true

[policy]
url = "http://policy.internal/v1/decision"
timeout = 2
api_token_env = "POLICY_TOKEN"

[events]
nats_url = "nats://localhost:4222"

[telemetry]
enabled = true
endpoint = "localhost:4317"
insecure = true
`
	path := filepath.Join(t.TempDir(), "conductor.toml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("load error: %v", err)
	}
	if cfg.Server.Addr != ":9090" {
		t.Errorf("unexpected addr: %s", cfg.Server.Addr)
	}
	if !cfg.Registry.Watch {
		t.Error("expected watch enabled")
	}
	if cfg.Policy.URL != "http://policy.internal/v1/decision" {
		t.Errorf("unexpected policy url: %s", cfg.Policy.URL)
	}
	if cfg.PolicyTimeout() != 2*time.Second {
		t.Errorf("unexpected policy timeout: %s", cfg.PolicyTimeout())
	}
	// Unset sections keep their defaults.
	if cfg.DispatchTimeout() != 60*time.Second {
		t.Errorf("unexpected dispatch timeout: %s", cfg.DispatchTimeout())
	}
	if cfg.Events.Subject != "conductor.dispatch" {
		t.Errorf("unexpected events subject: %s", cfg.Events.Subject)
	}
	if !cfg.Telemetry.Enabled || cfg.Telemetry.Endpoint != "localhost:4317" {
		t.Errorf("unexpected telemetry config: %+v", cfg.Telemetry)
	}
}

func TestLoadFile_Missing(t *testing.T) {
	if _, err := LoadFile(filepath.Join(t.TempDir(), "absent.toml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoadFile_Malformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conductor.toml")
	if err := os.WriteFile(path, []byte("[server\naddr"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := LoadFile(path); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestPolicyToken(t *testing.T) {
	cfg := New()
	if tok := cfg.PolicyToken(); tok != "" {
		t.Errorf("expected empty token without env binding, got %q", tok)
	}

	cfg.Policy.APITokenEnv = "CONDUCTOR_TEST_POLICY_TOKEN"
	t.Setenv("CONDUCTOR_TEST_POLICY_TOKEN", "secret")
	if tok := cfg.PolicyToken(); tok != "secret" {
		t.Errorf("expected token from env, got %q", tok)
	}
}
