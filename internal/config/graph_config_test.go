package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestConsensusSettings_Defaults(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("VAULT_PATH", dir)
	VaultOverride = dir
	defer func() { VaultOverride = "" }()

	got := ConsensusSettings()
	want := DefaultConfig().Consensus
	if got != want {
		t.Fatalf("ConsensusSettings() = %+v, want %+v", got, want)
	}
}

func TestConsensusSettings_FromConfig(t *testing.T) {
	dir := t.TempDir()
	cfgDir := filepath.Join(dir, ".tripartite")
	if err := os.MkdirAll(cfgDir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	content := "[consensus]\nthreshold = 0.9\nmax_rounds = 5\n"
	if err := os.WriteFile(filepath.Join(cfgDir, "config.toml"), []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("VAULT_PATH", dir)
	VaultOverride = dir
	defer func() { VaultOverride = "" }()

	got := ConsensusSettings()
	if got.Threshold != 0.9 {
		t.Errorf("Threshold = %v, want 0.9", got.Threshold)
	}
	if got.MaxRounds != 5 {
		t.Errorf("MaxRounds = %d, want 5", got.MaxRounds)
	}
}

func TestProxySettings_AuditDirDefaultsToDataDir(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("VAULT_PATH", dir)
	VaultOverride = dir
	defer func() { VaultOverride = "" }()

	got := ProxySettings()
	if got.AuditDir != DataDir() {
		t.Errorf("AuditDir = %q, want %q", got.AuditDir, DataDir())
	}
	if !got.Enabled {
		t.Error("expected Proxy.Enabled to default true")
	}
}

func TestRouterSettings_Defaults(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("VAULT_PATH", dir)
	VaultOverride = dir
	defer func() { VaultOverride = "" }()

	got := RouterSettings()
	if got.ResourceLoadThreshold != 0.80 {
		t.Errorf("ResourceLoadThreshold = %v, want 0.80", got.ResourceLoadThreshold)
	}
	if !got.AllowLocalFallback {
		t.Error("expected AllowLocalFallback to default true")
	}
}

func TestTunnelSettings_DeviceIDDefaultsToHostname(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("VAULT_PATH", dir)
	VaultOverride = dir
	defer func() { VaultOverride = "" }()

	got := TunnelSettings()
	if got.DeviceID != MachineHostname() {
		t.Errorf("DeviceID = %q, want %q", got.DeviceID, MachineHostname())
	}
	if got.MaxAttempts != 10 {
		t.Errorf("MaxAttempts = %d, want 10", got.MaxAttempts)
	}
}

func TestTunnelSettings_AddrFromEnv(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("VAULT_PATH", dir)
	t.Setenv("TRIPARTITE_TUNNEL_ADDR", "cloud.example.com:8443")
	VaultOverride = dir
	defer func() { VaultOverride = "" }()

	got := TunnelSettings()
	if got.Addr != "cloud.example.com:8443" {
		t.Errorf("Addr = %q, want cloud.example.com:8443", got.Addr)
	}
}
