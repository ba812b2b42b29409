package guard

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// GuardConfig holds user-level guard preferences.
// Stored at ~/.config/tripartite/config.json under the "guard" key.
type GuardConfig struct {
	Enabled     bool           `json:"enabled"`
	PII         PIIConfig      `json:"pii"`
	Blocklist   ToggleBlock    `json:"blocklist"`
	PathFilter  ToggleBlock    `json:"path_filter"`
	SoftMode    string         `json:"soft_mode"` // "block" or "warn"
	PushProtect PushProtectCfg `json:"push_protect"`
}

// PushProtectCfg holds the push-protection toggle and timeout. They are
// stored and settable through SetKey; no command in this binary reads them.
type PushProtectCfg struct {
	Enabled bool `json:"enabled"`
	Timeout int  `json:"timeout"` // seconds, default 60
}

// PIIConfig controls which PII pattern families are active.
type PIIConfig struct {
	Enabled  bool        `json:"enabled"`
	Patterns PIIPatterns `json:"patterns"`
}

// PIIPatterns maps user-facing pattern keys to on/off.
type PIIPatterns struct {
	Email        bool `json:"email"`
	Phone        bool `json:"phone"`
	SSN          bool `json:"ssn"`
	LocalPath    bool `json:"local_path"`
	APIKey       bool `json:"api_key"`
	AWSKey       bool `json:"aws_key"`
	PrivateKey   bool `json:"private_key"`
	CreditCard   bool `json:"credit_card"`
	IPAddress    bool `json:"ip_address"`
	URLWithToken bool `json:"url_with_token"`
}

// ToggleBlock is a simple enabled toggle for a feature group.
type ToggleBlock struct {
	Enabled bool `json:"enabled"`
}

// DefaultGuardConfig returns the default guard configuration (everything on, block mode).
func DefaultGuardConfig() GuardConfig {
	return GuardConfig{
		Enabled: true,
		PII: PIIConfig{
			Enabled: true,
			Patterns: PIIPatterns{
				Email:        true,
				Phone:        true,
				SSN:          true,
				LocalPath:    true,
				APIKey:       true,
				AWSKey:       true,
				PrivateKey:   true,
				CreditCard:   true,
				IPAddress:    true,
				URLWithToken: true,
			},
		},
		Blocklist:   ToggleBlock{Enabled: true},
		PathFilter:  ToggleBlock{Enabled: true},
		SoftMode:    "block",
		PushProtect: PushProtectCfg{Enabled: false, Timeout: 60}, // off by default, user opts in
	}
}

// userFacingKeyToPatternNames maps user-facing config keys to the Category
// names registered in internal/privacy's builtin Pattern Library.
var userFacingKeyToPatternNames = map[string][]string{
	"email":       {"EMAIL"},
	"phone":       {"PHONE"},
	"ssn":         {"SSN"},
	"local_path":  {"PATH"},
	"api_key":     {"API_KEY"},
	"aws_key":     {"AWS_KEY"},
	"private_key": {"PRIVATE_KEY"},
	"credit_card": {"CREDIT_CARD"},
	"ip_address":  {"IP"},
	"url_token":   {"URL_WITH_TOKEN"},
}

// EnabledPatternNames returns the set of internal/privacy Category names that
// are enabled, suitable for privacy.Proxy.Enabled. A nil result means guard
// or PII screening is off globally, not "everything enabled" — callers must
// not treat nil here as privacy.Proxy's own "enable all" zero value.
func (c *GuardConfig) EnabledPatternNames() map[string]bool {
	if !c.Enabled || !c.PII.Enabled {
		return nil
	}
	enabled := make(map[string]bool)
	pats := c.PII.Patterns

	addIfEnabled := func(on bool, key string) {
		if on {
			for _, name := range userFacingKeyToPatternNames[key] {
				enabled[name] = true
			}
		}
	}

	addIfEnabled(pats.Email, "email")
	addIfEnabled(pats.Phone, "phone")
	addIfEnabled(pats.SSN, "ssn")
	addIfEnabled(pats.LocalPath, "local_path")
	addIfEnabled(pats.APIKey, "api_key")
	addIfEnabled(pats.AWSKey, "aws_key")
	addIfEnabled(pats.PrivateKey, "private_key")
	addIfEnabled(pats.CreditCard, "credit_card")
	addIfEnabled(pats.IPAddress, "ip_address")
	addIfEnabled(pats.URLWithToken, "url_token")

	return enabled
}

// SetKey sets a user-facing setting by key name. Returns error for unknown keys.
func (c *GuardConfig) SetKey(key, value string) error {
	boolVal := value == "on" || value == "true" || value == "yes"

	switch key {
	case "guard":
		c.Enabled = boolVal
	case "pii":
		c.PII.Enabled = boolVal
	case "blocklist":
		c.Blocklist.Enabled = boolVal
	case "path-filter", "path_filter":
		c.PathFilter.Enabled = boolVal
	case "soft-mode", "soft_mode":
		if value == "block" || value == "warn" {
			c.SoftMode = value
		} else {
			return fmt.Errorf("soft-mode must be 'block' or 'warn', got %q", value)
		}
	case "email":
		c.PII.Patterns.Email = boolVal
	case "phone":
		c.PII.Patterns.Phone = boolVal
	case "ssn":
		c.PII.Patterns.SSN = boolVal
	case "local_path":
		c.PII.Patterns.LocalPath = boolVal
	case "api_key":
		c.PII.Patterns.APIKey = boolVal
	case "aws_key":
		c.PII.Patterns.AWSKey = boolVal
	case "private_key":
		c.PII.Patterns.PrivateKey = boolVal
	case "credit_card":
		c.PII.Patterns.CreditCard = boolVal
	case "ip_address":
		c.PII.Patterns.IPAddress = boolVal
	case "url_token":
		c.PII.Patterns.URLWithToken = boolVal
	case "push-protect", "push_protect":
		c.PushProtect.Enabled = boolVal
	case "push-timeout", "push_timeout":
		var timeout int
		if _, err := fmt.Sscanf(value, "%d", &timeout); err != nil {
			return fmt.Errorf("push-timeout must be a number (seconds), got %q", value)
		}
		if timeout < 10 || timeout > 300 {
			return fmt.Errorf("push-timeout must be between 10 and 300 seconds")
		}
		c.PushProtect.Timeout = timeout
	default:
		return fmt.Errorf("unknown setting key: %q", key)
	}
	return nil
}

// guardConfigPath returns the path to the user-level guard config.
func guardConfigPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "tripartite", "config.json")
}

// configFile is the user config file structure at guardConfigPath.
type configFile struct {
	Guard *GuardConfig `json:"guard,omitempty"`
}

// LoadGuardConfig loads the guard config from ~/.config/tripartite/config.json.
// Returns defaults if file doesn't exist or guard key is absent.
func LoadGuardConfig() GuardConfig {
	data, err := os.ReadFile(guardConfigPath())
	if err != nil {
		return DefaultGuardConfig()
	}
	var cfg configFile
	if err := json.Unmarshal(data, &cfg); err != nil {
		return DefaultGuardConfig()
	}
	if cfg.Guard == nil {
		return DefaultGuardConfig()
	}
	return *cfg.Guard
}

// SaveGuardConfig writes the guard config back to ~/.config/tripartite/config.json.
func SaveGuardConfig(gc GuardConfig) error {
	path := guardConfigPath()

	var cfg configFile
	if data, err := os.ReadFile(path); err == nil {
		json.Unmarshal(data, &cfg)
	}

	cfg.Guard = &gc

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}
