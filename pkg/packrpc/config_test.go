package packrpc

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadConfigDefaults(t *testing.T) {
	dir := t.TempDir()
	cwd, err := os.Getwd()
	if err != nil {
		t.Fatalf("Getwd failed: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("Chdir failed: %v", err)
	}
	defer os.Chdir(cwd)

	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if cfg.Pool.Servers != 4 {
		t.Errorf("Pool.Servers = %d, want 4", cfg.Pool.Servers)
	}
	if cfg.Pool.MaxInFlight != 64 {
		t.Errorf("Pool.MaxInFlight = %d, want 64", cfg.Pool.MaxInFlight)
	}
	if cfg.Pool.StartTimeout != 30*time.Second {
		t.Errorf("Pool.StartTimeout = %v, want 30s", cfg.Pool.StartTimeout)
	}
	if cfg.Server.Codec != "msgpack" {
		t.Errorf("Server.Codec = %q, want msgpack", cfg.Server.Codec)
	}
	if cfg.Security.Mode != SecurityPeerCred {
		t.Errorf("Security.Mode = %q, want %q", cfg.Security.Mode, SecurityPeerCred)
	}
	if !cfg.Security.RequireSameUser {
		t.Error("expected Security.RequireSameUser to default true")
	}
	if cfg.Protocol.Enhanced {
		t.Error("expected Protocol.Enhanced to default false")
	}
}

func TestLoadConfigFromFile(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	contents := `
pool:
  servers: 8
server:
  codec: json
security:
  mode: hmac
  hmac_secret_hex: "deadbeef"
`
	if err := os.WriteFile(configPath, []byte(contents), 0600); err != nil {
		t.Fatalf("write config file: %v", err)
	}

	cfg, err := LoadConfig(configPath)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Pool.Servers != 8 {
		t.Errorf("Pool.Servers = %d, want 8", cfg.Pool.Servers)
	}
	if cfg.Server.Codec != "json" {
		t.Errorf("Server.Codec = %q, want json", cfg.Server.Codec)
	}
	if cfg.Security.Mode != SecurityHMAC {
		t.Errorf("Security.Mode = %q, want %q", cfg.Security.Mode, SecurityHMAC)
	}
	if cfg.Security.HMACSecretHex != "deadbeef" {
		t.Errorf("Security.HMACSecretHex = %q, want deadbeef", cfg.Security.HMACSecretHex)
	}
}

func TestLoadConfigEnvOverride(t *testing.T) {
	dir := t.TempDir()
	cwd, _ := os.Getwd()
	os.Chdir(dir)
	defer os.Chdir(cwd)

	os.Setenv("PACKRPC_POOL_SERVERS", "16")
	defer os.Unsetenv("PACKRPC_POOL_SERVERS")

	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Pool.Servers != 16 {
		t.Errorf("Pool.Servers = %d, want 16 from env override", cfg.Pool.Servers)
	}
}
