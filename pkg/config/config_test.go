package config

import (
	"encoding/base64"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "acs.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, "listen: 127.0.0.1:9090\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Listen != "127.0.0.1:9090" {
		t.Errorf("Listen = %q, want configured value", cfg.Listen)
	}
	if cfg.Ports.Min != 5001 || cfg.Ports.Max != 5100 {
		t.Errorf("Ports = %d-%d, want default 5001-5100", cfg.Ports.Min, cfg.Ports.Max)
	}
	if cfg.Timeouts.RPCDeadline != 30*time.Second {
		t.Errorf("RPCDeadline = %v, want default 30s", cfg.Timeouts.RPCDeadline)
	}
	if cfg.BufferSize != 10000 {
		t.Errorf("BufferSize = %d, want default 10000", cfg.BufferSize)
	}
}

func TestLoadParsesTenantsAndAccounts(t *testing.T) {
	path := writeConfig(t, `
listen: 127.0.0.1:8080
tenants:
  - tenantId: acme
    displayName: Acme Corp
    isActive: true
accounts:
  - username: alice
    password: s3cret
    tenantId: acme
    roles: [Operator]
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(cfg.Tenants) != 1 || cfg.Tenants[0].TenantID != "acme" {
		t.Errorf("Tenants = %+v", cfg.Tenants)
	}
	if len(cfg.Accounts) != 1 || cfg.Accounts[0].Username != "alice" {
		t.Errorf("Accounts = %+v", cfg.Accounts)
	}
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"inverted port range", "ports:\n  min: 6000\n  max: 5000\n"},
		{"bad master key", "masterKey: not-base64!!\n"},
		{"short master key", "masterKey: " + base64.StdEncoding.EncodeToString([]byte("short")) + "\n"},
		{"bad tenant id", "tenants:\n  - tenantId: '../etc'\n"},
		{"not yaml", "{{{{\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, tt.content)
			if _, err := Load(path); err == nil {
				t.Error("Load() succeeded, want error")
			}
		})
	}
}

func TestEnvOverrides(t *testing.T) {
	key := base64.StdEncoding.EncodeToString(make([]byte, 32))
	t.Setenv(EnvMasterKey, key)
	t.Setenv(EnvJWTSecret, "env-secret")
	t.Setenv(EnvKeyDir, "/env/keys")

	path := writeConfig(t, "jwtSecret: file-secret\nkeyDir: /file/keys\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.MasterKey != key {
		t.Error("env master key did not override")
	}
	if cfg.JWTSecret != "env-secret" {
		t.Errorf("JWTSecret = %q, want env override", cfg.JWTSecret)
	}
	if cfg.KeyDir != "/env/keys" {
		t.Errorf("KeyDir = %q, want env override", cfg.KeyDir)
	}
}

func TestDecodeMasterKey(t *testing.T) {
	cfg := &Config{MasterKey: base64.StdEncoding.EncodeToString(make([]byte, 32))}
	key, err := cfg.DecodeMasterKey()
	if err != nil {
		t.Fatalf("DecodeMasterKey() error = %v", err)
	}
	if len(key) != 32 {
		t.Errorf("key length = %d, want 32", len(key))
	}
}
