package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
server_url: https://rotation.example.com
api_key: key-123
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.TickIntervalSeconds != 60 {
		t.Errorf("expected default tick interval 60, got %d", cfg.TickIntervalSeconds)
	}
	if cfg.DispatchTimeoutSeconds != 30 {
		t.Errorf("expected default dispatch timeout 30, got %d", cfg.DispatchTimeoutSeconds)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("expected default log level info, got %q", cfg.LogLevel)
	}
	if cfg.DataDir != "/var/lib/rotation-worker" {
		t.Errorf("unexpected default data dir %q", cfg.DataDir)
	}
	if cfg.MediaCacheDir != "/var/lib/rotation-worker/media" {
		t.Errorf("unexpected default media cache dir %q", cfg.MediaCacheDir)
	}
	if cfg.TickInterval() != time.Minute {
		t.Errorf("unexpected tick interval duration %v", cfg.TickInterval())
	}
}

func TestLoadExplicitValues(t *testing.T) {
	path := writeConfig(t, `
server_url: https://rotation.example.com
api_key: key-123
worker_id: w-1
tenant_id: t-1
tick_interval_seconds: 30
dispatch_timeout_seconds: 15
log_level: debug
nats_servers: nats://nats.example.com:4222
nats_nkey_seed: SUAKEYSEED
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.TickIntervalSeconds != 30 || cfg.DispatchTimeoutSeconds != 15 {
		t.Errorf("explicit intervals not honored: %+v", cfg)
	}
	if !cfg.NATSEnabled() {
		t.Error("expected NATS enabled with servers, seed, and tenant set")
	}
	if !cfg.IsRegistered() {
		t.Error("expected registered with api_key set")
	}
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr error
	}{
		{
			name:    "missing server url",
			content: "api_key: key-123\n",
			wantErr: ErrServerURLRequired,
		},
		{
			name:    "missing credentials",
			content: "server_url: https://x.example.com\n",
			wantErr: ErrNoCredentials,
		},
		{
			name: "negative tick interval",
			content: `
server_url: https://x.example.com
api_key: key-123
tick_interval_seconds: -5
`,
			wantErr: ErrInvalidTickInterval,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, tt.content)
			_, err := Load(path)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestNeedsRegistration(t *testing.T) {
	cfg := &Config{ServerURL: "https://x", EnrollToken: "tok"}
	if !cfg.NeedsRegistration() {
		t.Error("expected NeedsRegistration with token and no key")
	}
	cfg.APIKey = "key"
	if cfg.NeedsRegistration() {
		t.Error("expected registration complete once api_key set")
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg := &Config{
		ServerURL:    "https://rotation.example.com",
		APIKey:       "key-123",
		WorkerID:     "w-1",
		TenantID:     "t-1",
		NATSServers:  "nats://n1:4222",
		NATSNKeySeed: "SUASEED",
	}
	cfg.applyDefaults()

	if err := Save(path, cfg); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("expected 0600 permissions, got %v", info.Mode().Perm())
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	if loaded.APIKey != "key-123" || loaded.NATSNKeySeed != "SUASEED" || loaded.WorkerID != "w-1" {
		t.Errorf("round trip lost fields: %+v", loaded)
	}
}
