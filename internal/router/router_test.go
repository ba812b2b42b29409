package router

import (
	"context"
	"testing"

	"github.com/SuperInstance/tripartite/internal/agents"
	"github.com/SuperInstance/tripartite/internal/consensus"
	"github.com/SuperInstance/tripartite/internal/privacy"
	"github.com/SuperInstance/tripartite/internal/store"
)

func TestShouldEscalateTriggers(t *testing.T) {
	cases := []struct {
		name string
		req  Request
		want bool
	}{
		{"complexity", Request{EstimatedTokens: 9000, LocalContextWindow: 8000}, true},
		{"resource-load", Request{Vitals: Vitals{GPULoad: 0.95}}, true},
		{"resource-temp", Request{Vitals: Vitals{GPUTemp: 90}}, true},
		{"capability", Request{AdapterNeeded: "finetune-x", AdaptersInstalled: map[string]bool{}}, true},
		{"explicit", Request{ForceRemote: true}, true},
		{"none", Request{EstimatedTokens: 10, LocalContextWindow: 8000}, false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got, _ := shouldEscalate(c.req)
			if got != c.want {
				t.Fatalf("shouldEscalate(%+v) = %v, want %v", c.req, got, c.want)
			}
		})
	}
}

type fakeGen struct{ json string }

func (f *fakeGen) Generate(model, prompt string) (string, error)     { return f.json, nil }
func (f *fakeGen) GenerateJSON(model, prompt string) (string, error) { return f.json, nil }
func (f *fakeGen) PickBestModel() (string, error)                    { return "m", nil }
func (f *fakeGen) Provider() string                                  { return "fake" }

func buildTestRouter(t *testing.T) (*Router, *store.DB) {
	t.Helper()
	db, err := store.OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	intent := &agents.Agent{Role: agents.RoleIntent, Generator: &fakeGen{json: `{"framing":"f","confidence":0.9}`}}
	logic := &agents.Agent{Role: agents.RoleLogic, Generator: &fakeGen{json: `{"draft":"answer","confidence":0.9,"citations":[]}`}}
	truth := &agents.Agent{Role: agents.RoleTruth, Generator: &fakeGen{json: `{"verdict":"APPROVED","reasoning":"ok","confidence":0.9}`}}
	engine, err := consensus.NewEngine(consensus.DefaultConfig(), intent, logic, truth)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}

	return &Router{
		Consensus: engine,
		Proxy:     privacy.NewProxy(db),
		Ledger:    NewLedger(db),
	}, db
}

func TestRouteLocalWhenNoTriggerFires(t *testing.T) {
	r, _ := buildTestRouter(t)
	text, err := r.Route(context.Background(), Request{Query: "hello", SessionID: "s1", LocalContextWindow: 8000})
	if err != nil {
		t.Fatalf("Route: %v", err)
	}
	if text != "answer" {
		t.Fatalf("Route = %q, want local consensus draft", text)
	}
}

type fakeRemote struct {
	resp EscalationResponse
	err  error
}

func (f *fakeRemote) Escalate(ctx context.Context, req EscalationRequest) (EscalationResponse, error) {
	return f.resp, f.err
}

func TestRouteRemoteRecordsUsage(t *testing.T) {
	r, db := buildTestRouter(t)
	r.Remote = &fakeRemote{resp: EscalationResponse{Text: "remote answer", TokensIn: 10, TokensOut: 20, CostCents: 5}}

	text, err := r.Route(context.Background(), Request{Query: "q", SessionID: "s1", ForceRemote: true})
	if err != nil {
		t.Fatalf("Route: %v", err)
	}
	if text != "remote answer" {
		t.Fatalf("Route = %q, want reinflated remote text", text)
	}

	summary, err := db.LedgerSummary()
	if err != nil {
		t.Fatalf("LedgerSummary: %v", err)
	}
	if summary.TotalEvents != 1 || summary.TotalTokensIn != 10 {
		t.Fatalf("summary = %+v, want one recorded usage event", summary)
	}
}

func TestRouteRemoteFallsBackToLocalOnUnavailable(t *testing.T) {
	r, _ := buildTestRouter(t)
	r.Remote = &fakeRemote{err: ErrRemoteUnavailable}
	r.AllowLocalFallback = true

	text, err := r.Route(context.Background(), Request{Query: "q", SessionID: "s1", ForceRemote: true})
	if err != nil {
		t.Fatalf("Route: %v", err)
	}
	if text != "answer" {
		t.Fatalf("Route = %q, want local fallback draft", text)
	}
}

func TestRouteRemoteWithoutFallbackPropagatesError(t *testing.T) {
	r, _ := buildTestRouter(t)
	r.Remote = &fakeRemote{err: ErrRemoteUnavailable}
	r.AllowLocalFallback = false

	if _, err := r.Route(context.Background(), Request{Query: "q", SessionID: "s1", ForceRemote: true}); err == nil {
		t.Fatal("expected error without fallback permitted")
	}
}
