package main

import (
	"crypto/x509"
	"fmt"
	"time"

	"github.com/SuperInstance/tripartite/internal/agents"
	"github.com/SuperInstance/tripartite/internal/config"
	"github.com/SuperInstance/tripartite/internal/consensus"
	"github.com/SuperInstance/tripartite/internal/embedding"
	"github.com/SuperInstance/tripartite/internal/guard"
	"github.com/SuperInstance/tripartite/internal/knowledge"
	"github.com/SuperInstance/tripartite/internal/llm"
	"github.com/SuperInstance/tripartite/internal/privacy"
	"github.com/SuperInstance/tripartite/internal/router"
	"github.com/SuperInstance/tripartite/internal/store"
	"github.com/SuperInstance/tripartite/internal/tunnel"
)

// app bundles the wiring every subcommand needs, built fresh per invocation
// since the CLI is a one-shot process (no daemon state to share).
type app struct {
	db     *store.DB
	vault  *knowledge.Vault
	proxy  *privacy.Proxy
	router *router.Router
	ledger *router.Ledger
	tunnel *tunnel.Tunnel
}

// openApp opens the tripartite database at the resolved vault path and wires
// every component needed to route a query end to end.
func openApp() (*app, error) {
	vp := config.VaultPath()
	if vp == "" {
		return nil, config.ErrNoVault
	}

	db, err := store.OpenPath(config.DBPath())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", config.ErrNoDatabase, err)
	}

	embedProvider, err := newEmbedProvider()
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("embedding provider: %w", err)
	}

	vault := knowledge.NewVault(db, embedProvider, knowledge.StrategyParagraph)

	gc := guard.LoadGuardConfig()
	proxy := privacy.NewProxyFromGuardConfig(db, gc)
	proxySettings := config.ProxySettings()
	if proxySettings.TimeoutSeconds > 0 {
		proxy.Timeout = time.Duration(proxySettings.TimeoutSeconds) * time.Second
	}
	proxy.AuditDir = proxySettings.AuditDir

	engine, err := newConsensusEngine(vault)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("consensus engine: %w", err)
	}

	ledger := router.NewLedger(db)
	routerSettings := config.RouterSettings()

	rt := &router.Router{
		Consensus:          engine,
		Proxy:              proxy,
		Vault:              vault,
		Ledger:             ledger,
		AllowLocalFallback: routerSettings.AllowLocalFallback,
		ModelPreference:    routerSettings.ModelPreference,
		MaxTokens:          routerSettings.MaxTokens,
	}

	tun, err := newTunnelIfConfigured()
	if err == nil && tun != nil {
		rt.Remote = tun
	}

	return &app{db: db, vault: vault, proxy: proxy, router: rt, ledger: ledger, tunnel: tun}, nil
}

func (a *app) Close() {
	if a.db != nil {
		a.db.Close()
	}
}

// requestTimeout bounds one `ask` invocation's end-to-end wall-clock budget,
// reusing the configured Tunnel request timeout even for local-only queries
// so a stuck Generator can't hang the CLI forever.
func requestTimeout() time.Duration {
	ts := config.TunnelSettings()
	if ts.RequestTimeoutSeconds > 0 {
		return time.Duration(ts.RequestTimeoutSeconds) * time.Second
	}
	return 60 * time.Second
}

// newEmbedProvider creates an embedding provider from the merged config,
// mirroring the teacher's provider resolution (Ollama gets its base URL
// injected explicitly; cloud providers use their own defaults).
func newEmbedProvider() (embedding.Provider, error) {
	ec := config.EmbeddingProviderConfig()
	cfg := embedding.ProviderConfig{
		Provider:   ec.Provider,
		Model:      ec.Model,
		APIKey:     ec.APIKey,
		Dimensions: ec.Dimensions,
	}
	if cfg.Provider == "ollama" || cfg.Provider == "" {
		ollamaURL, err := config.OllamaURL()
		if err != nil {
			return nil, fmt.Errorf("ollama URL: %w", err)
		}
		cfg.BaseURL = ollamaURL
	}
	return embedding.NewProvider(cfg)
}

// newConsensusEngine builds the Intent/Logic/Truth agents against one shared
// Generator and wires the Logic agent's Knowledge Vault retrieval and the
// Truth agent's prompt-injection guard.
func newConsensusEngine(vault *knowledge.Vault) (*consensus.Engine, error) {
	client, err := llm.NewClient()
	if err != nil {
		return nil, err
	}

	cs := config.ConsensusSettings()
	cfg := consensus.Config{
		Threshold:             cs.Threshold,
		MaxRounds:             cs.MaxRounds,
		WeightIntent:          cs.WeightIntent,
		WeightLogic:           cs.WeightLogic,
		WeightTruth:           cs.WeightTruth,
		ParallelTruthPrefetch: cs.ParallelTruthPrefetch,
		RoundTimeout:          time.Duration(cs.RoundTimeoutSeconds) * time.Second,
	}

	intent := &agents.Agent{Role: agents.RoleIntent, Generator: client}
	logic := &agents.Agent{Role: agents.RoleLogic, Generator: client, Vault: vault}
	truth := &agents.Agent{Role: agents.RoleTruth, Generator: client, Guard: agents.NewPromptGuard()}

	return consensus.NewEngine(cfg, intent, logic, truth)
}

// newTunnelIfConfigured builds a Tunnel from config.TunnelSettings when an
// address is set; returns (nil, nil) when the cloud path isn't configured so
// the Router degrades to local-only operation instead of failing to start.
func newTunnelIfConfigured() (*tunnel.Tunnel, error) {
	ts := config.TunnelSettings()
	if ts.Addr == "" {
		return nil, nil
	}

	cert, err := tunnel.GenerateDeviceCert(ts.DeviceID)
	if err != nil {
		return nil, fmt.Errorf("device cert: %w", err)
	}

	// rootCAs is an empty pool for now: the control plane's CA bundle is
	// provisioned out of band during device enrollment, not generated here.
	tlsConfig := tunnel.ClientTLSConfig(cert, x509.NewCertPool())

	cfg := tunnel.Config{
		ConnectTimeout:    time.Duration(ts.ConnectTimeoutSeconds) * time.Second,
		RequestTimeout:    time.Duration(ts.RequestTimeoutSeconds) * time.Second,
		HeartbeatInterval: time.Duration(ts.HeartbeatIntervalSeconds) * time.Second,
		PrewarmDebounce:   time.Duration(ts.PrewarmDebounceSeconds) * time.Second,
		BackoffInitial:    time.Duration(ts.BackoffInitialSeconds * float64(time.Second)),
		BackoffMult:       ts.BackoffMult,
		BackoffCap:        time.Duration(ts.BackoffCapSeconds) * time.Second,
		MaxAttempts:       ts.MaxAttempts,
	}
	dialer := &tunnel.TCPDialer{Addr: ts.Addr, TLSConfig: tlsConfig}
	return tunnel.NewTunnel(cfg, dialer, ts.DeviceID), nil
}
