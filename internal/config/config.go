// Package config provides configuration for the tripartite binary.
// Loads from: CLI flags > env vars > .tripartite/config.toml > built-in defaults.
package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Embedding model settings.
const (
	EmbeddingModel = "nomic-embed-text"
)

// EmbeddingDim returns the configured embedding dimensions. It checks the
// embedding provider config for an explicit dimensions setting, then falls
// back to provider-specific defaults.
func EmbeddingDim() int {
	ec := EmbeddingProviderConfig()
	if ec.Dimensions > 0 {
		return ec.Dimensions
	}
	switch ec.Provider {
	case "openai":
		model := ec.Model
		if model == "" {
			model = "text-embedding-3-small"
		}
		switch model {
		case "text-embedding-3-small":
			return 1536
		case "text-embedding-3-large":
			return 3072
		case "text-embedding-ada-002":
			return 1536
		default:
			return 1536
		}
	default: // "ollama" or ""
		model := ec.Model
		if model == "" {
			model = EmbeddingModel
		}
		switch model {
		case "nomic-embed-text":
			return 768
		case "mxbai-embed-large":
			return 1024
		case "all-minilm":
			return 384
		case "snowflake-arctic-embed":
			return 1024
		case "snowflake-arctic-embed2":
			return 768
		case "embeddinggemma":
			return 768
		case "qwen3-embedding":
			return 1024
		case "nomic-embed-text-v2-moe":
			return 768
		case "bge-m3":
			return 1024
		default:
			return 768
		}
	}
}

// ModelInfo describes a known embedding model.
type ModelInfo struct {
	Name        string
	Dims        int
	Provider    string // "ollama", "openai"
	Description string
}

// KnownModels lists supported embedding models with metadata.
var KnownModels = []ModelInfo{
	{"nomic-embed-text", 768, "ollama", "Default. Great balance of quality and speed"},
	{"snowflake-arctic-embed2", 768, "ollama", "Best retrieval in its size class"},
	{"mxbai-embed-large", 1024, "ollama", "Highest overall MTEB average"},
	{"all-minilm", 384, "ollama", "Lightweight (~90MB). Good for constrained hardware"},
	{"snowflake-arctic-embed", 1024, "ollama", "v1 large model"},
	{"embeddinggemma", 768, "ollama", "Google's Gemma-based embeddings"},
	{"qwen3-embedding", 1024, "ollama", "Qwen3 with 32K context"},
	{"nomic-embed-text-v2-moe", 768, "ollama", "MoE upgrade from nomic"},
	{"bge-m3", 1024, "ollama", "Multilingual (BAAI)"},
	{"text-embedding-3-small", 1536, "openai", "OpenAI cloud API"},
}

// IsKnownModel returns true if the model name is in the known models list.
func IsKnownModel(name string) bool {
	for _, m := range KnownModels {
		if m.Name == name {
			return true
		}
	}
	return false
}

// Indexing settings.
const (
	ChunkTokenThreshold = 6000 // chunk documents longer than ~6K chars by heading
	MaxEmbedChars       = 7500 // nomic-embed-text context limit ~8192 tokens
	MaxSnippetLength    = 500
)

// Config holds all tripartite configuration, loaded from TOML + env + flags.
type Config struct {
	Vault     VaultConfig     `toml:"vault"`
	Ollama    OllamaConfig    `toml:"ollama"`
	Embedding EmbeddingConfig `toml:"embedding"`
	Consensus ConsensusConfig `toml:"consensus"`
	Proxy     ProxyConfig     `toml:"proxy"`
	Router    RouterConfig    `toml:"router"`
	Tunnel    TunnelConfig    `toml:"tunnel"`
}

// VaultConfig holds knowledge-vault related settings.
type VaultConfig struct {
	Path     string   `toml:"path"`
	SkipDirs []string `toml:"skip_dirs"` // directories excluded from bulk `knowledge add <dir>` walks
}

// OllamaConfig holds Ollama connection settings. URL serves the local
// Generator and the Ollama embedding provider; Model is read as the Ollama
// embedding model (see EmbeddingProviderConfig).
type OllamaConfig struct {
	URL   string `toml:"url"`
	Model string `toml:"model"`
}

// EmbeddingConfig holds embedding provider settings.
type EmbeddingConfig struct {
	Provider   string `toml:"provider"`   // "ollama" (default), "openai", "openai-compatible"
	Model      string `toml:"model"`      // model name (provider-specific default if empty)
	APIKey     string `toml:"api_key"`    // API key (required for openai, optional for openai-compatible)
	BaseURL    string `toml:"base_url"`   // base URL for embedding API (provider-specific default if empty)
	Dimensions int    `toml:"dimensions"` // vector dimensions (0 = provider default)
}

// ConsensusConfig tunes the Consensus Engine's weighted aggregate, round
// budget and revision ceiling.
type ConsensusConfig struct {
	Threshold             float64 `toml:"threshold"`
	MaxRounds             int     `toml:"max_rounds"`
	WeightIntent          float64 `toml:"weight_intent"`
	WeightLogic           float64 `toml:"weight_logic"`
	WeightTruth           float64 `toml:"weight_truth"`
	ParallelTruthPrefetch bool    `toml:"parallel_truth_prefetch"`
	RoundTimeoutSeconds   int     `toml:"round_timeout_seconds"`
}

// ProxyConfig tunes the Privacy Proxy's redaction budget and audit trail.
type ProxyConfig struct {
	Enabled        bool   `toml:"enabled"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
	AuditDir       string `toml:"audit_dir"`
}

// RouterConfig tunes the Escalation Router's trigger thresholds and the
// remote fallback policy.
type RouterConfig struct {
	ResourceLoadThreshold float64 `toml:"resource_load_threshold"`
	ResourceTempThreshold float64 `toml:"resource_temp_threshold"`
	AllowLocalFallback    bool    `toml:"allow_local_fallback"`
	ModelPreference       string  `toml:"model_preference"`
	MaxTokens             int     `toml:"max_tokens"`
}

// TunnelConfig points the device Tunnel at its remote peer and tunes its
// reconnect/heartbeat policy.
type TunnelConfig struct {
	Addr                     string  `toml:"addr"`
	DeviceID                 string  `toml:"device_id"`
	ConnectTimeoutSeconds    int     `toml:"connect_timeout_seconds"`
	RequestTimeoutSeconds    int     `toml:"request_timeout_seconds"`
	HeartbeatIntervalSeconds int     `toml:"heartbeat_interval_seconds"`
	PrewarmDebounceSeconds   int     `toml:"prewarm_debounce_seconds"`
	BackoffInitialSeconds    float64 `toml:"backoff_initial_seconds"`
	BackoffMult              float64 `toml:"backoff_mult"`
	BackoffCapSeconds        int     `toml:"backoff_cap_seconds"`
	MaxAttempts              int     `toml:"max_attempts"`
}

// DefaultConfig returns a Config with all built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		Ollama: OllamaConfig{
			URL:   "http://localhost:11434",
			Model: EmbeddingModel,
		},
		Embedding: EmbeddingConfig{
			Provider: "ollama",
			Model:    EmbeddingModel,
		},
		Consensus: ConsensusConfig{
			Threshold:             0.85,
			MaxRounds:             3,
			WeightIntent:          0.25,
			WeightLogic:           0.45,
			WeightTruth:           0.30,
			ParallelTruthPrefetch: true,
			RoundTimeoutSeconds:   30,
		},
		Proxy: ProxyConfig{
			Enabled:        true,
			TimeoutSeconds: 5,
		},
		Router: RouterConfig{
			ResourceLoadThreshold: 0.80,
			ResourceTempThreshold: 80.0,
			AllowLocalFallback:    true,
		},
		Tunnel: TunnelConfig{
			ConnectTimeoutSeconds:    30,
			RequestTimeoutSeconds:    60,
			HeartbeatIntervalSeconds: 30,
			PrewarmDebounceSeconds:   60,
			BackoffInitialSeconds:    1,
			BackoffMult:              2.0,
			BackoffCapSeconds:        60,
			MaxAttempts:              10,
		},
	}
}

// LoadConfig merges all configuration sources: defaults < TOML file < env vars.
// CLI flags (VaultOverride) are handled separately by the existing VaultPath() logic.
func LoadConfig() (*Config, error) {
	cfg := DefaultConfig()

	configPath := findConfigFile()
	if configPath != "" {
		meta, err := toml.DecodeFile(configPath, cfg)
		if err != nil {
			return nil, fmt.Errorf("parse config %s: %w", configPath, err)
		}
		warnUnknownKeys(meta, configPath)
	}

	applyEnvOverrides(cfg)

	if len(cfg.Vault.SkipDirs) > 0 {
		RebuildSkipDirs(cfg.Vault.SkipDirs)
	}

	return cfg, nil
}

// LoadConfigFrom loads configuration from a specific file path, merging with
// defaults and env vars. Use this instead of LoadConfig() when you know exactly
// which config file to load (e.g., after writing a config during init).
func LoadConfigFrom(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			meta, err := toml.DecodeFile(configPath, cfg)
			if err != nil {
				return nil, fmt.Errorf("parse config %s: %w", configPath, err)
			}
			warnUnknownKeys(meta, configPath)
		}
	}

	applyEnvOverrides(cfg)
	return cfg, nil
}

// applyEnvOverrides layers environment variables on top of cfg, matching the
// precedence documented by generateTOMLContent: env vars beat the TOML file.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("VAULT_PATH"); v != "" {
		cfg.Vault.Path = v
	}
	if v := os.Getenv("OLLAMA_URL"); v != "" {
		cfg.Ollama.URL = v
	}
	if v := os.Getenv("TRIPARTITE_SKIP_DIRS"); v != "" {
		for _, d := range strings.Split(v, ",") {
			d = strings.TrimSpace(d)
			if d != "" {
				cfg.Vault.SkipDirs = append(cfg.Vault.SkipDirs, d)
			}
		}
	}

	if v := os.Getenv("TRIPARTITE_EMBED_PROVIDER"); v != "" {
		cfg.Embedding.Provider = v
	}
	if v := os.Getenv("TRIPARTITE_EMBED_MODEL"); v != "" {
		cfg.Embedding.Model = v
	}
	if v := os.Getenv("TRIPARTITE_EMBED_BASE_URL"); v != "" {
		cfg.Embedding.BaseURL = v
	}
	if v := os.Getenv("TRIPARTITE_EMBED_API_KEY"); v != "" {
		cfg.Embedding.APIKey = v
	}
	if cfg.Embedding.APIKey == "" && (cfg.Embedding.Provider == "openai" || cfg.Embedding.Provider == "openai-compatible") {
		if v := os.Getenv("OPENAI_API_KEY"); v != "" {
			cfg.Embedding.APIKey = v
		}
	}

	if v := os.Getenv("TRIPARTITE_TUNNEL_ADDR"); v != "" {
		cfg.Tunnel.Addr = v
	}
	if v := os.Getenv("TRIPARTITE_DEVICE_ID"); v != "" {
		cfg.Tunnel.DeviceID = v
	}
}

// findConfigFile looks for .tripartite/config.toml starting from vault path, then CWD.
func findConfigFile() string {
	if vp := resolveVaultForConfig(); vp != "" {
		p := filepath.Join(vp, ".tripartite", "config.toml")
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}

	if cwd, err := os.Getwd(); err == nil {
		p := filepath.Join(cwd, ".tripartite", "config.toml")
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}

	return ""
}

// resolveVaultForConfig resolves the vault path for config loading without
// calling VaultPath() to avoid circular dependency with config loading.
func resolveVaultForConfig() string {
	if VaultOverride != "" {
		reg := LoadRegistry()
		if resolved := reg.ResolveVault(VaultOverride); resolved != "" {
			return resolved
		}
		return VaultOverride
	}
	if v := os.Getenv("VAULT_PATH"); v != "" {
		return v
	}
	return ""
}

// ConfigFilePath returns the path where the config file should be written
// for the given vault path.
func ConfigFilePath(vaultPath string) string {
	return filepath.Join(vaultPath, ".tripartite", "config.toml")
}

// GenerateConfig writes a default .tripartite/config.toml with comments.
// If vaultPath is provided, it's included in the generated config.
func GenerateConfig(vaultPath string) error {
	configPath := ConfigFilePath(vaultPath)
	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	content := generateTOMLContent(vaultPath)
	return os.WriteFile(configPath, []byte(content), 0o600)
}

func generateTOMLContent(vaultPath string) string {
	var b strings.Builder
	b.WriteString("# tripartite configuration\n")
	b.WriteString("#\n")
	b.WriteString("# Priority: CLI flags > environment variables > this file > built-in defaults\n")
	b.WriteString("# Environment variables: VAULT_PATH, OLLAMA_URL, TRIPARTITE_SKIP_DIRS,\n")
	b.WriteString("#   TRIPARTITE_DATA_DIR, TRIPARTITE_EMBED_PROVIDER, TRIPARTITE_EMBED_MODEL,\n")
	b.WriteString("#   TRIPARTITE_TUNNEL_ADDR, TRIPARTITE_DEVICE_ID\n\n")

	b.WriteString("[vault]\n")
	if vaultPath != "" {
		b.WriteString(fmt.Sprintf("path = %q\n", vaultPath))
	} else {
		b.WriteString("# path = \"/path/to/your/knowledge\"  # auto-detected if unset\n")
	}
	b.WriteString("# skip_dirs = [\".venv\", \"build\"]  # added to built-in exclusions for `knowledge add <dir>`\n\n")

	b.WriteString("[ollama]\n")
	b.WriteString("url = \"http://localhost:11434\"\n")
	b.WriteString(fmt.Sprintf("model = %q\n\n", EmbeddingModel))

	b.WriteString("[embedding]\n")
	b.WriteString("# Embedding provider: \"ollama\" (default), \"openai\", \"openai-compatible\"\n")
	activeProvider := EmbeddingProvider()
	if activeProvider == "" {
		activeProvider = "ollama"
	}
	b.WriteString(fmt.Sprintf("provider = %q\n", activeProvider))
	b.WriteString(fmt.Sprintf("model = %q\n", EmbeddingModel))
	b.WriteString("# api_key = \"\"                  # required for cloud providers\n")
	b.WriteString("#                               # or set TRIPARTITE_EMBED_API_KEY / OPENAI_API_KEY\n")
	b.WriteString("# dimensions = 0                # 0 = use provider default\n\n")

	def := DefaultConfig()
	b.WriteString("[consensus]\n")
	b.WriteString(fmt.Sprintf("threshold = %v\n", def.Consensus.Threshold))
	b.WriteString(fmt.Sprintf("max_rounds = %d\n", def.Consensus.MaxRounds))
	b.WriteString(fmt.Sprintf("weight_intent = %v\n", def.Consensus.WeightIntent))
	b.WriteString(fmt.Sprintf("weight_logic = %v\n", def.Consensus.WeightLogic))
	b.WriteString(fmt.Sprintf("weight_truth = %v\n", def.Consensus.WeightTruth))
	b.WriteString(fmt.Sprintf("parallel_truth_prefetch = %v\n", def.Consensus.ParallelTruthPrefetch))
	b.WriteString(fmt.Sprintf("round_timeout_seconds = %d\n\n", def.Consensus.RoundTimeoutSeconds))

	b.WriteString("[proxy]\n")
	b.WriteString(fmt.Sprintf("enabled = %v\n", def.Proxy.Enabled))
	b.WriteString(fmt.Sprintf("timeout_seconds = %d\n", def.Proxy.TimeoutSeconds))
	b.WriteString("# audit_dir = \"\"  # defaults to the data dir\n\n")

	b.WriteString("[router]\n")
	b.WriteString(fmt.Sprintf("resource_load_threshold = %v\n", def.Router.ResourceLoadThreshold))
	b.WriteString(fmt.Sprintf("resource_temp_threshold = %v\n", def.Router.ResourceTempThreshold))
	b.WriteString(fmt.Sprintf("allow_local_fallback = %v\n", def.Router.AllowLocalFallback))
	b.WriteString("# model_preference = \"\"\n")
	b.WriteString("# max_tokens = 0\n\n")

	b.WriteString("[tunnel]\n")
	b.WriteString("# addr = \"cloud.example.com:8443\"\n")
	b.WriteString("# device_id = \"\"  # defaults to the machine hostname\n")
	b.WriteString(fmt.Sprintf("connect_timeout_seconds = %d\n", def.Tunnel.ConnectTimeoutSeconds))
	b.WriteString(fmt.Sprintf("heartbeat_interval_seconds = %d\n", def.Tunnel.HeartbeatIntervalSeconds))
	b.WriteString(fmt.Sprintf("backoff_initial_seconds = %v\n", def.Tunnel.BackoffInitialSeconds))
	b.WriteString(fmt.Sprintf("backoff_mult = %v\n", def.Tunnel.BackoffMult))
	b.WriteString(fmt.Sprintf("backoff_cap_seconds = %d\n", def.Tunnel.BackoffCapSeconds))
	b.WriteString(fmt.Sprintf("max_attempts = %d\n", def.Tunnel.MaxAttempts))

	return b.String()
}

// ShowConfig returns the current effective configuration as TOML.
func ShowConfig() string {
	cfg, err := LoadConfig()
	if err != nil {
		return fmt.Sprintf("# Error loading config: %v\n", err)
	}

	if cfg.Vault.Path == "" {
		cfg.Vault.Path = VaultPath()
	}

	var b strings.Builder
	b.WriteString("# Effective tripartite configuration (merged from all sources)\n\n")
	enc := toml.NewEncoder(&b)
	enc.Encode(cfg)
	return b.String()
}

// --- Consensus/Proxy/Router/Tunnel accessors ---
// These mirror spec-level defaults so callers that haven't loaded a Config
// (e.g. quick CLI subcommands) still get sane behavior.

// ConsensusSettings returns the configured Consensus Engine tuning.
func ConsensusSettings() ConsensusConfig {
	if cfg := loadConfigSafe(); cfg != nil {
		return cfg.Consensus
	}
	return DefaultConfig().Consensus
}

// ProxySettings returns the configured Privacy Proxy tuning.
func ProxySettings() ProxyConfig {
	if cfg := loadConfigSafe(); cfg != nil {
		if cfg.Proxy.AuditDir == "" {
			cfg.Proxy.AuditDir = DataDir()
		}
		return cfg.Proxy
	}
	p := DefaultConfig().Proxy
	p.AuditDir = DataDir()
	return p
}

// RouterSettings returns the configured Escalation Router tuning.
func RouterSettings() RouterConfig {
	if cfg := loadConfigSafe(); cfg != nil {
		return cfg.Router
	}
	return DefaultConfig().Router
}

// TunnelSettings returns the configured Tunnel endpoint and reconnect policy.
func TunnelSettings() TunnelConfig {
	if cfg := loadConfigSafe(); cfg != nil {
		if cfg.Tunnel.DeviceID == "" {
			cfg.Tunnel.DeviceID = MachineHostname()
		}
		return cfg.Tunnel
	}
	t := DefaultConfig().Tunnel
	t.DeviceID = MachineHostname()
	return t
}

// MachineHostname returns the local hostname, used as the default device id.
func MachineHostname() string {
	if h, err := os.Hostname(); err == nil {
		return h
	}
	return "unknown"
}

// --- Embedding provider config ---

// EmbeddingProvider returns the configured embedding provider name.
func EmbeddingProvider() string {
	if v := os.Getenv("TRIPARTITE_EMBED_PROVIDER"); v != "" {
		return v
	}
	if cfg := loadConfigSafe(); cfg != nil && cfg.Embedding.Provider != "" {
		return cfg.Embedding.Provider
	}
	return "ollama"
}

// EmbeddingProviderConfig returns the full embedding provider configuration.
func EmbeddingProviderConfig() EmbeddingConfig {
	cfg := loadConfigSafe()
	if cfg == nil {
		return EmbeddingConfig{Provider: "ollama"}
	}

	ec := cfg.Embedding
	if ec.Provider == "" {
		ec.Provider = "ollama"
	}

	if v := os.Getenv("TRIPARTITE_EMBED_PROVIDER"); v != "" {
		ec.Provider = v
	}
	if v := os.Getenv("TRIPARTITE_EMBED_MODEL"); v != "" {
		ec.Model = v
	}
	if v := os.Getenv("TRIPARTITE_EMBED_BASE_URL"); v != "" {
		ec.BaseURL = v
	}
	if v := os.Getenv("TRIPARTITE_EMBED_API_KEY"); v != "" {
		ec.APIKey = v
	}
	if ec.APIKey == "" && (ec.Provider == "openai" || ec.Provider == "openai-compatible") {
		if v := os.Getenv("OPENAI_API_KEY"); v != "" {
			ec.APIKey = v
		}
	}

	if ec.Provider == "ollama" && cfg.Ollama.Model != "" {
		if ec.Model == "" || ec.Model == EmbeddingModel {
			if cfg.Ollama.Model != EmbeddingModel {
				ec.Model = cfg.Ollama.Model
			}
		}
	}

	return ec
}

// loadConfigSafe loads config without risking recursion. Returns nil on error.
func loadConfigSafe() *Config {
	cfg, err := LoadConfig()
	if err != nil {
		return nil
	}
	return cfg
}

// ConfigWarning returns any config file parse error, or empty string if OK.
func ConfigWarning() string {
	_, err := LoadConfig()
	if err != nil {
		return err.Error()
	}
	return ""
}

// FindConfigFile returns the path to the active config file, or empty string if none found.
func FindConfigFile() string {
	return findConfigFile()
}

// configSuggestions maps common wrong keys to the correct TOML key name.
var configSuggestions = map[string]string{
	"exclude_paths": "skip_dirs",
	"exclude_dirs":  "skip_dirs",
	"skip_paths":    "skip_dirs",
	"ignored_dirs":  "skip_dirs",
	"ignore_dirs":   "skip_dirs",
	"excludes":      "skip_dirs",
	"apikey":        "api_key",
	"api-key":       "api_key",
	"baseurl":       "base_url",
	"base-url":      "base_url",
}

// warnUnknownKeys prints warnings for unrecognized config keys.
func warnUnknownKeys(meta toml.MetaData, configPath string) {
	undecoded := meta.Undecoded()
	if len(undecoded) == 0 {
		return
	}

	fname := filepath.Base(configPath)
	for _, key := range undecoded {
		keyStr := key.String()
		lastPart := key[len(key)-1]

		if suggestion, ok := configSuggestions[lastPart]; ok {
			fmt.Fprintf(os.Stderr, "tripartite: WARNING: unknown key %q in %s — did you mean %q?\n",
				keyStr, fname, suggestion)
		} else {
			fmt.Fprintf(os.Stderr, "tripartite: WARNING: unknown key %q in %s (will be ignored)\n",
				keyStr, fname)
		}
	}
}

// defaultSkipDirs are directories to skip during bulk `knowledge add <dir>` walks.
var defaultSkipDirs = map[string]bool{
	".git":         true,
	"node_modules": true,
	".tripartite":  true,
	".venv":        true,
}

// SkipDirs returns the set of directories to skip during bulk ingestion walks.
var SkipDirs = buildSkipDirs()

func buildSkipDirs() map[string]bool {
	dirs := make(map[string]bool)
	for k, v := range defaultSkipDirs {
		dirs[k] = v
	}
	if extra := os.Getenv("TRIPARTITE_SKIP_DIRS"); extra != "" {
		for _, d := range strings.Split(extra, ",") {
			d = strings.TrimSpace(d)
			if d != "" {
				dirs[d] = true
			}
		}
	}
	return dirs
}

// RebuildSkipDirs rebuilds the SkipDirs map, incorporating config file settings.
// Should be called after config is loaded if skip_dirs is set in TOML.
func RebuildSkipDirs(extra []string) {
	dirs := make(map[string]bool)
	for k, v := range defaultSkipDirs {
		dirs[k] = v
	}
	if envExtra := os.Getenv("TRIPARTITE_SKIP_DIRS"); envExtra != "" {
		for _, d := range strings.Split(envExtra, ",") {
			d = strings.TrimSpace(d)
			if d != "" {
				dirs[d] = true
			}
		}
	}
	for _, d := range extra {
		d = strings.TrimSpace(d)
		if d != "" {
			dirs[d] = true
		}
	}
	SkipDirs = dirs
}

// VaultPath returns the knowledge vault root directory.
// SECURITY: Validates the path is a reasonable vault root (not / or other
// dangerous top-level paths that would cause bulk ingestion to walk the
// entire filesystem).
func VaultPath() string {
	var path string
	if VaultOverride != "" {
		reg := LoadRegistry()
		if resolved := reg.ResolveVault(VaultOverride); resolved != "" {
			path = resolved
		} else {
			path = VaultOverride
		}
	} else if v := os.Getenv("VAULT_PATH"); v != "" {
		path = v
	} else if cfg := loadConfigSafe(); cfg != nil && cfg.Vault.Path != "" {
		path = cfg.Vault.Path
	} else {
		path = defaultVaultPath()
	}
	if path != "" {
		path = validateVaultPath(path)
	}
	return path
}

// validateVaultPath rejects vault paths that are too broad (e.g., /, /home, /Users)
// and resolves symlinks to prevent symlink-based escapes.
func validateVaultPath(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		return path
	}
	dangerous := []string{"/", "/home", "/Users", "/tmp", "/var", "/etc", "/opt"}
	if runtime.GOOS == "windows" && len(abs) >= 3 {
		for _, letter := range "ABCDEFGHIJKLMNOPQRSTUVWXYZ" {
			dangerous = append(dangerous, string(letter)+":\\")
		}
		driveRoot := abs[:3]
		dangerous = append(dangerous, filepath.Join(driveRoot, "Users"), filepath.Join(driveRoot, "Windows"))
	}
	for _, d := range dangerous {
		if abs == d {
			fmt.Fprintf(os.Stderr, "WARNING: VAULT_PATH=%q is too broad, ignoring.\n", abs)
			return ""
		}
	}

	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return path
	}
	for _, d := range dangerous {
		if resolved == d {
			fmt.Fprintf(os.Stderr, "WARNING: VAULT_PATH=%q resolves to %q which is too broad, ignoring.\n", abs, resolved)
			return ""
		}
		if resolvedDangerous, err := filepath.EvalSymlinks(d); err == nil {
			if resolved == resolvedDangerous {
				fmt.Fprintf(os.Stderr, "WARNING: VAULT_PATH=%q resolves to %q which is too broad, ignoring.\n", abs, resolved)
				return ""
			}
		}
	}
	return path
}

// SafeVaultSubpath resolves a relative path within the vault and validates
// that the result stays inside the vault root. Returns the absolute path and
// true if valid, or empty string and false if the path escapes the vault
// boundary.
func SafeVaultSubpath(relativePath string) (string, bool) {
	if filepath.IsAbs(relativePath) {
		return "", false
	}
	vaultRoot := VaultPath()
	if vaultRoot == "" {
		return "", false
	}
	absVault, err := filepath.Abs(vaultRoot)
	if err != nil {
		return "", false
	}
	absPath, err := filepath.Abs(filepath.Join(vaultRoot, filepath.FromSlash(relativePath)))
	if err != nil {
		return "", false
	}
	if !pathWithinBase(absVault, absPath) {
		return "", false
	}
	return absPath, true
}

// pathWithinBase reports whether path is base itself or nested beneath it.
func pathWithinBase(base, path string) bool {
	return path == base || strings.HasPrefix(path, base+string(filepath.Separator))
}

// Sentinel errors for consistent messaging across CLI and tunnel/router code.
var (
	// ErrNoVault is returned when no vault path can be resolved.
	ErrNoVault = fmt.Errorf("no vault found — pass --vault or set VAULT_PATH")
	// ErrNoDatabase is returned when the tripartite database cannot be opened.
	ErrNoDatabase = fmt.Errorf("cannot open tripartite database — run 'tripartite doctor' to diagnose")
	// ErrOllamaNotLocal is returned when the Ollama URL points to a non-localhost host.
	ErrOllamaNotLocal = fmt.Errorf("OLLAMA_URL must point to localhost for security")
)

// OllamaURL returns the validated Ollama API URL.
// Returns an error if the URL is invalid or does not point to localhost.
func OllamaURL() (string, error) {
	raw := os.Getenv("OLLAMA_URL")
	if raw == "" {
		if cfg := loadConfigSafe(); cfg != nil && cfg.Ollama.URL != "" {
			raw = cfg.Ollama.URL
		} else {
			raw = "http://localhost:11434"
		}
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid OLLAMA_URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("OLLAMA_URL must use http or https scheme, got: %s", u.Scheme)
	}
	host := u.Hostname()
	if host != "localhost" && host != "127.0.0.1" && host != "::1" {
		// SECURITY: Don't leak the hostname in error message
		return "", ErrOllamaNotLocal
	}
	return raw, nil
}

// DBPath returns the path to the SQLite database file.
func DBPath() string {
	return filepath.Join(DataDir(), "tripartite.db")
}

// DataDir returns the data directory for the tripartite binary.
// SECURITY: Validates TRIPARTITE_DATA_DIR is an existing, writable directory.
func DataDir() string {
	if v := os.Getenv("TRIPARTITE_DATA_DIR"); v != "" {
		return validateDataDir(v)
	}
	return filepath.Join(VaultPath(), ".tripartite", "data")
}

// validateDataDir checks that the given path is a valid directory (or can be
// created). Falls back to the default data dir if the path is invalid.
func validateDataDir(dir string) string {
	abs, err := filepath.Abs(dir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "WARNING: TRIPARTITE_DATA_DIR=%q is not a valid path, using default.\n", dir)
		return filepath.Join(VaultPath(), ".tripartite", "data")
	}

	info, err := os.Stat(abs)
	if err == nil {
		if !info.IsDir() {
			fmt.Fprintf(os.Stderr, "WARNING: TRIPARTITE_DATA_DIR=%q is not a directory, using default.\n", abs)
			return filepath.Join(VaultPath(), ".tripartite", "data")
		}
		testFile := filepath.Join(abs, ".tripartite_write_test")
		if f, err := os.Create(testFile); err != nil {
			fmt.Fprintf(os.Stderr, "WARNING: TRIPARTITE_DATA_DIR=%q is not writable, using default.\n", abs)
			return filepath.Join(VaultPath(), ".tripartite", "data")
		} else {
			f.Close()
			os.Remove(testFile)
		}
		return abs
	}

	if err := os.MkdirAll(abs, 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "WARNING: TRIPARTITE_DATA_DIR=%q cannot be created (%v), using default.\n", abs, err)
		return filepath.Join(VaultPath(), ".tripartite", "data")
	}
	return abs
}

// VaultRegistry holds registered vault paths with aliases, so one machine
// can host several independent knowledge vaults (e.g. "work", "personal").
type VaultRegistry struct {
	Vaults  map[string]string `json:"vaults"`  // alias -> path
	Default string            `json:"default"` // alias of default vault
}

// RegistryPath returns the path to the vault registry file.
func RegistryPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "tripartite", "vaults.json")
}

// LoadRegistry loads or creates the vault registry.
func LoadRegistry() *VaultRegistry {
	data, err := os.ReadFile(RegistryPath())
	if err != nil {
		return &VaultRegistry{Vaults: make(map[string]string)}
	}
	var reg VaultRegistry
	if err := json.Unmarshal(data, &reg); err != nil {
		return &VaultRegistry{Vaults: make(map[string]string)}
	}
	if reg.Vaults == nil {
		reg.Vaults = make(map[string]string)
	}
	return &reg
}

// Save writes the registry to disk using a lockfile to prevent TOCTOU races
// when multiple processes read and write vaults.json concurrently.
func (r *VaultRegistry) Save() error {
	path := RegistryPath()
	os.MkdirAll(filepath.Dir(path), 0o755)

	lockPath := path + ".lock"
	unlock, err := acquireFileLock(lockPath)
	if err != nil {
		data, err := json.MarshalIndent(r, "", "  ")
		if err != nil {
			return err
		}
		return os.WriteFile(path, data, 0o600)
	}
	defer unlock()

	out, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, out, 0o600)
}

// acquireFileLock creates a lockfile using O_EXCL for atomic creation.
// Returns a cleanup function and nil on success, or an error if the lock
// cannot be acquired within a timeout.
func acquireFileLock(lockPath string) (func(), error) {
	const maxRetries = 20
	const retryDelay = 50 * time.Millisecond

	for i := 0; i < maxRetries; i++ {
		f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
		if err == nil {
			fmt.Fprintf(f, "%d\n", os.Getpid())
			f.Close()
			return func() { os.Remove(lockPath) }, nil
		}
		if !os.IsExist(err) {
			return nil, err
		}
		if info, statErr := os.Stat(lockPath); statErr == nil {
			if time.Since(info.ModTime()) > 10*time.Second {
				if rmErr := os.Remove(lockPath); rmErr != nil {
					return nil, fmt.Errorf("remove stale lockfile %s: %w", lockPath, rmErr)
				}
				continue
			}
		}
		time.Sleep(retryDelay)
	}
	return nil, fmt.Errorf("could not acquire lock on %s", lockPath)
}

// ResolveVault resolves a vault alias to a path. Returns empty string if not found.
func (r *VaultRegistry) ResolveVault(alias string) string {
	if p, ok := r.Vaults[alias]; ok {
		return p
	}
	if info, err := os.Stat(alias); err == nil && info.IsDir() {
		return alias
	}
	return ""
}

// VaultOverride is set by the --vault global flag.
var VaultOverride string

// vaultMarker is the dotfile that indicates a tripartite vault root.
const vaultMarker = ".tripartite"

func defaultVaultPath() string {
	if VaultOverride != "" {
		reg := LoadRegistry()
		if resolved := reg.ResolveVault(VaultOverride); resolved != "" {
			return resolved
		}
		return VaultOverride
	}

	if cwd, err := os.Getwd(); err == nil {
		if _, err := os.Stat(filepath.Join(cwd, vaultMarker)); err == nil {
			return cwd
		}
	}

	reg := LoadRegistry()
	if reg.Default != "" {
		if p, ok := reg.Vaults[reg.Default]; ok {
			return p
		}
	}

	if exe, err := os.Executable(); err == nil {
		dir := filepath.Dir(exe)
		for i := 0; i < 5; i++ {
			if _, err := os.Stat(filepath.Join(dir, vaultMarker)); err == nil {
				return dir
			}
			dir = filepath.Dir(dir)
		}
	}

	return ""
}

// SetEmbeddingModel updates the embedding model in the config file.
func SetEmbeddingModel(vaultPath, model string) error {
	cfgPath := ConfigFilePath(vaultPath)

	cfg, err := LoadConfigFrom(cfgPath)
	if err != nil {
		cfg = DefaultConfig()
	}

	cfg.Embedding.Model = model
	cfg.Ollama.Model = model

	var buf bytes.Buffer
	encoder := toml.NewEncoder(&buf)
	if err := encoder.Encode(cfg); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}

	os.MkdirAll(filepath.Dir(cfgPath), 0o755)
	return os.WriteFile(cfgPath, buf.Bytes(), 0o600)
}

// VerboseEnabled returns true when verbose monitoring is active.
func VerboseEnabled() bool {
	if os.Getenv("TRIPARTITE_VERBOSE") != "" {
		return true
	}
	_, err := os.Stat(filepath.Join(DataDir(), "verbose"))
	return err == nil
}
