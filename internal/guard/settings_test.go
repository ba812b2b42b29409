package guard

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultGuardConfig_AllPatternsOn(t *testing.T) {
	cfg := DefaultGuardConfig()
	if !cfg.Enabled || !cfg.PII.Enabled {
		t.Fatal("expected guard and PII enabled by default")
	}
	names := cfg.EnabledPatternNames()
	want := []string{"EMAIL", "PHONE", "SSN", "PATH", "API_KEY", "AWS_KEY", "PRIVATE_KEY", "CREDIT_CARD", "IP", "URL_WITH_TOKEN"}
	for _, name := range want {
		if !names[name] {
			t.Errorf("expected %q enabled by default, got %v", name, names)
		}
	}
}

func TestEnabledPatternNames_GuardDisabledReturnsNil(t *testing.T) {
	cfg := DefaultGuardConfig()
	cfg.Enabled = false
	if got := cfg.EnabledPatternNames(); got != nil {
		t.Errorf("expected nil when guard disabled, got %v", got)
	}
}

func TestEnabledPatternNames_PIIDisabledReturnsNil(t *testing.T) {
	cfg := DefaultGuardConfig()
	cfg.PII.Enabled = false
	if got := cfg.EnabledPatternNames(); got != nil {
		t.Errorf("expected nil when PII disabled, got %v", got)
	}
}

func TestEnabledPatternNames_SingleToggleOff(t *testing.T) {
	cfg := DefaultGuardConfig()
	cfg.PII.Patterns.SSN = false
	names := cfg.EnabledPatternNames()
	if names["SSN"] {
		t.Error("expected SSN disabled")
	}
	if !names["EMAIL"] {
		t.Error("expected EMAIL still enabled")
	}
}

func TestSetKey_TogglesNewPatterns(t *testing.T) {
	cfg := DefaultGuardConfig()
	for _, key := range []string{"credit_card", "ip_address", "url_token"} {
		if err := cfg.SetKey(key, "off"); err != nil {
			t.Fatalf("SetKey(%q): %v", key, err)
		}
	}
	if cfg.PII.Patterns.CreditCard || cfg.PII.Patterns.IPAddress || cfg.PII.Patterns.URLWithToken {
		t.Error("expected credit_card/ip_address/url_token disabled after SetKey off")
	}
}

func TestSetKey_UnknownKey(t *testing.T) {
	cfg := DefaultGuardConfig()
	if err := cfg.SetKey("bogus", "on"); err == nil {
		t.Fatal("expected error for unknown key")
	}
}

func TestLoadSaveGuardConfig_RoundTrip(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	cfg := DefaultGuardConfig()
	cfg.PII.Patterns.SSN = false
	cfg.SoftMode = "warn"
	if err := SaveGuardConfig(cfg); err != nil {
		t.Fatalf("SaveGuardConfig: %v", err)
	}

	path := filepath.Join(home, ".config", "tripartite", "config.json")
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected config file at %s: %v", path, err)
	}

	got := LoadGuardConfig()
	if got.PII.Patterns.SSN {
		t.Error("expected SSN to stay disabled after round trip")
	}
	if got.SoftMode != "warn" {
		t.Errorf("expected soft_mode 'warn', got %q", got.SoftMode)
	}
}

func TestLoadGuardConfig_MissingFileReturnsDefaults(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	got := LoadGuardConfig()
	want := DefaultGuardConfig()
	if got.Enabled != want.Enabled || got.SoftMode != want.SoftMode {
		t.Errorf("expected defaults for missing config file, got %+v", got)
	}
}
