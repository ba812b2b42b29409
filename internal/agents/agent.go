package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/SuperInstance/tripartite/internal/knowledge"
	"github.com/SuperInstance/tripartite/internal/llm"
)

// Role identifies which of the three agent variants a given Agent plays.
type Role string

const (
	RoleIntent Role = "intent"
	RoleLogic  Role = "logic"
	RoleTruth  Role = "truth"
)

// DefaultWeight returns spec.md §4.4's default per-role weight.
func (r Role) DefaultWeight() float64 {
	switch r {
	case RoleIntent:
		return 0.25
	case RoleLogic:
		return 0.45
	case RoleTruth:
		return 0.30
	default:
		return 0
	}
}

// Output is the AgentOutput entity: the agent's contribution to the Manifest
// plus its confidence and processing duration.
type Output struct {
	Role       Role
	Confidence float64
	Duration   time.Duration

	Framing string
	Draft   string
	Citations []string

	Verdict   string
	Reasoning string
}

// Agent is one of the three stateless configurations spec.md §4.3 describes.
// Agents share no state; each holds only its own Generator reference (and,
// for Logic, a read-only Knowledge Vault handle used for retrieval).
type Agent struct {
	Role      Role
	Weight    float64
	Generator llm.Client
	Model     string

	// Vault is consulted by the Logic agent only (top-k=5 retrieval).
	Vault *knowledge.Vault

	// Guard screens Truth's input for prompt injection before it renders a
	// verdict (go-promptguard, per the teacher's hooks/injection.go idiom).
	Guard InjectionDetector
}

// InjectionDetector abstracts go-promptguard's detector so tests can stub it.
type InjectionDetector interface {
	Detect(ctx context.Context, text string) bool // true if an injection is detected
}

type intentJSON struct {
	Framing    string  `json:"framing"`
	Confidence float64 `json:"confidence"`
}

type logicJSON struct {
	Draft      string   `json:"draft"`
	Confidence float64  `json:"confidence"`
	Citations  []string `json:"citations"`
}

type truthJSON struct {
	Verdict    string  `json:"verdict"`
	Reasoning  string  `json:"reasoning"`
	Confidence float64 `json:"confidence"`
}

// Process runs this agent against the current Manifest. It is cancellable:
// ctx is checked before the (synchronous) generator call, since llm.Client
// has no native cancellation contract of its own.
func (a *Agent) Process(ctx context.Context, m *Manifest) (Output, error) {
	start := time.Now()
	if err := ctx.Err(); err != nil {
		return Output{}, err
	}

	var out Output
	var err error
	switch a.Role {
	case RoleIntent:
		out, err = a.processIntent(m)
	case RoleLogic:
		out, err = a.processLogic(ctx, m)
	case RoleTruth:
		out, err = a.processTruth(m)
	default:
		return Output{}, fmt.Errorf("agents: unknown role %q", a.Role)
	}
	out.Role = a.Role
	out.Duration = time.Since(start)
	return out, err
}

func (a *Agent) model() string {
	if a.Model != "" {
		return a.Model
	}
	if a.Generator != nil {
		if model, err := a.Generator.PickBestModel(); err == nil {
			return model
		}
	}
	return ""
}

func (a *Agent) processIntent(m *Manifest) (Output, error) {
	prompt := fmt.Sprintf(
		"Analyze the user's query and produce an intent framing.\nRespond as JSON {\"framing\": string, \"confidence\": number 0-1}.\nQuery: %s",
		m.Query,
	)
	raw, err := a.Generator.GenerateJSON(a.model(), prompt)
	if err != nil {
		return Output{}, fmt.Errorf("intent agent: %w", err)
	}
	var parsed intentJSON
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return Output{}, fmt.Errorf("intent agent: parse response: %w", err)
	}
	return Output{Framing: parsed.Framing, Confidence: clamp01(parsed.Confidence)}, nil
}

func (a *Agent) processLogic(ctx context.Context, m *Manifest) (Output, error) {
	var context_ string
	var citations []string
	if a.Vault != nil {
		results, err := a.Vault.Search(m.Query, 5)
		if err == nil {
			for _, r := range results {
				context_ += r.Content + "\n"
				citations = append(citations, fmt.Sprintf("%s#%d", r.DocumentID, r.ChunkIndex))
			}
		}
	}

	prompt := fmt.Sprintf(
		"Given intent framing %q and retrieved context:\n%s\nProduce a solution draft with citations.\nRespond as JSON {\"draft\": string, \"confidence\": number 0-1, \"citations\": [string]}.\nQuery: %s",
		m.Framing, context_, m.Query,
	)
	raw, err := a.Generator.GenerateJSON(a.model(), prompt)
	if err != nil {
		return Output{}, fmt.Errorf("logic agent: %w", err)
	}
	var parsed logicJSON
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return Output{}, fmt.Errorf("logic agent: parse response: %w", err)
	}
	if len(parsed.Citations) == 0 {
		parsed.Citations = citations
	}
	return Output{Draft: parsed.Draft, Citations: parsed.Citations, Confidence: clamp01(parsed.Confidence)}, nil
}

func (a *Agent) processTruth(m *Manifest) (Output, error) {
	if a.Guard != nil && a.Guard.Detect(context.Background(), m.Draft) {
		return Output{
			Verdict:    "VETO",
			Reasoning:  "prompt injection detected in draft content",
			Confidence: 1.0,
		}, nil
	}

	prompt := fmt.Sprintf(
		"Review the draft for safety and consistency with framing %q.\nRespond as JSON {\"verdict\": \"APPROVED\"|\"VETO\"|\"NEEDS_REVISION\", \"reasoning\": string, \"confidence\": number 0-1}.\nDraft: %s",
		m.Framing, m.Draft,
	)
	raw, err := a.Generator.GenerateJSON(a.model(), prompt)
	if err != nil {
		return Output{}, fmt.Errorf("truth agent: %w", err)
	}
	var parsed truthJSON
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return Output{}, fmt.Errorf("truth agent: parse response: %w", err)
	}
	return Output{Verdict: parsed.Verdict, Reasoning: parsed.Reasoning, Confidence: clamp01(parsed.Confidence)}, nil
}

func clamp01(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}
