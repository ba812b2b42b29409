package consensus

import (
	"context"
	"fmt"
	"testing"

	"github.com/SuperInstance/tripartite/internal/agents"
)

type fakeGenerator struct {
	json func(prompt string) string
}

func (f *fakeGenerator) Generate(model, prompt string) (string, error) { return f.json(prompt), nil }
func (f *fakeGenerator) GenerateJSON(model, prompt string) (string, error) {
	return f.json(prompt), nil
}
func (f *fakeGenerator) PickBestModel() (string, error) { return "fake-model", nil }
func (f *fakeGenerator) Provider() string               { return "fake" }

func constGen(json string) *fakeGenerator {
	return &fakeGenerator{json: func(string) string { return json }}
}

func buildEngine(t *testing.T, cfg Config, intentConf, logicConf, truthConf float64, verdict string) *Engine {
	t.Helper()
	intent := &agents.Agent{Role: agents.RoleIntent, Generator: constGen(
		fmt.Sprintf(`{"framing":"f","confidence":%v}`, intentConf))}
	logic := &agents.Agent{Role: agents.RoleLogic, Generator: constGen(
		fmt.Sprintf(`{"draft":"d","confidence":%v,"citations":[]}`, logicConf))}
	truth := &agents.Agent{Role: agents.RoleTruth, Generator: constGen(
		fmt.Sprintf(`{"verdict":%q,"reasoning":"r","confidence":%v}`, verdict, truthConf))}

	e, err := NewEngine(cfg, intent, logic, truth)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	return e
}

// S4: Consensus reached.
func TestConsensusReached(t *testing.T) {
	e := buildEngine(t, DefaultConfig(), 0.9, 0.9, 0.9, "APPROVED")
	out, err := e.Run(context.Background(), "q", "s1")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out.Kind != Reached || out.Rounds != 1 {
		t.Fatalf("out = %+v, want Reached in round 1", out)
	}
	if out.Score < 0.9-1e-6 || out.Score > 0.9+1e-6 {
		t.Fatalf("score = %v, want ~0.9", out.Score)
	}
}

// S5: Truth veto.
func TestConsensusVeto(t *testing.T) {
	e := buildEngine(t, DefaultConfig(), 0.9, 0.9, 0.1, "VETO")
	out, err := e.Run(context.Background(), "q", "s1")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out.Kind != Vetoed || out.Reason != "r" || out.Round != 0 {
		t.Fatalf("out = %+v, want Vetoed at round 0", out)
	}
}

// S6: Revision loop exhausted.
func TestConsensusNotReached(t *testing.T) {
	cfg := DefaultConfig()
	e := buildEngine(t, cfg, 0.3, 0.3, 0.3, "APPROVED")
	out, err := e.Run(context.Background(), "q", "s1")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out.Kind != NotReached || out.Rounds != 3 {
		t.Fatalf("out = %+v, want NotReached after 3 rounds", out)
	}
	if out.Score < 0.3-1e-6 || out.Score > 0.3+1e-6 {
		t.Fatalf("score = %v, want ~0.3", out.Score)
	}
}

func TestWeightedAggregateFormula(t *testing.T) {
	cfg := DefaultConfig()
	e := buildEngine(t, cfg, 1.0, 1.0, 1.0, "APPROVED")
	out, err := e.Run(context.Background(), "q", "s1")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	want := cfg.WeightIntent*1.0 + cfg.WeightLogic*1.0 + cfg.WeightTruth*1.0
	if out.Score < want-1e-6 || out.Score > want+1e-6 {
		t.Fatalf("score = %v, want %v", out.Score, want)
	}
	if out.Score < 0 || out.Score > 1 {
		t.Fatalf("score %v out of [0,1]", out.Score)
	}
}

func TestInvalidConfigRejected(t *testing.T) {
	cfg := DefaultConfig()
	cfg.WeightLogic = 0.9 // weights no longer sum to 1
	intent := &agents.Agent{Role: agents.RoleIntent, Generator: constGen(`{}`)}
	logic := &agents.Agent{Role: agents.RoleLogic, Generator: constGen(`{}`)}
	truth := &agents.Agent{Role: agents.RoleTruth, Generator: constGen(`{}`)}

	if _, err := NewEngine(cfg, intent, logic, truth); err == nil {
		t.Fatal("expected error for weights not summing to 1")
	}
}
