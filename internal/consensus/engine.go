// Package consensus implements the Manifest state machine and Consensus
// Engine (spec.md §4.4): bounded-round deliberation across the three agents
// to a terminal Reached/Vetoed/NotReached outcome.
package consensus

import (
	"context"
	"fmt"
	"time"

	"github.com/SuperInstance/tripartite/internal/agents"
)

// Engine drives one query through up to Config.MaxRounds of Intent→Logic→
// Truth deliberation.
type Engine struct {
	Config Config
	Intent *agents.Agent
	Logic  *agents.Agent
	Truth  *agents.Agent
}

// NewEngine constructs an Engine, validating cfg and wiring each agent's
// weight from cfg if the agent didn't already set one explicitly.
func NewEngine(cfg Config, intent, logic, truth *agents.Agent) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if intent.Weight == 0 {
		intent.Weight = cfg.WeightIntent
	}
	if logic.Weight == 0 {
		logic.Weight = cfg.WeightLogic
	}
	if truth.Weight == 0 {
		truth.Weight = cfg.WeightTruth
	}
	return &Engine{Config: cfg, Intent: intent, Logic: logic, Truth: truth}, nil
}

// Run executes spec.md §4.4's per-query algorithm.
func (e *Engine) Run(ctx context.Context, query, sessionID string) (Outcome, error) {
	m := agents.NewManifest(query, sessionID)
	started := time.Now()

	var lastVotes Votes
	var lastScore float64
	var lastOut roundOutputs

	for round := 0; round < e.Config.MaxRounds; round++ {
		if err := ctx.Err(); err != nil {
			return Outcome{}, err
		}

		roundCtx, cancel := context.WithTimeout(ctx, e.roundTimeout())
		out, err := e.runRound(roundCtx, m)
		cancel()
		if err != nil {
			if ctx.Err() == nil && roundCtx.Err() == context.DeadlineExceeded {
				return Outcome{}, ErrTimeout
			}
			return Outcome{}, err
		}
		lastOut = out

		if out.Truth.Verdict == "VETO" {
			return Outcome{
				Kind:         Vetoed,
				Reason:       out.Truth.Reasoning,
				Round:        round,
				Votes:        Votes{Intent: out.Intent.Confidence, Logic: out.Logic.Confidence, Truth: out.Truth.Confidence},
				AgentOutputs: out.slice(),
				Duration:     time.Since(started),
			}, nil
		}

		votes := Votes{Intent: out.Intent.Confidence, Logic: out.Logic.Confidence, Truth: out.Truth.Confidence}
		score := e.Config.WeightIntent*votes.Intent + e.Config.WeightLogic*votes.Logic + e.Config.WeightTruth*votes.Truth
		lastVotes, lastScore = votes, score

		if score >= e.Config.Threshold {
			return Outcome{
				Kind:         Reached,
				Score:        score,
				Rounds:       round + 1,
				Votes:        votes,
				Content:      out.Logic.Draft,
				AgentOutputs: out.slice(),
				Duration:     time.Since(started),
			}, nil
		}

		if round+1 < e.Config.MaxRounds {
			feedback := revisionFeedback(out)
			m.AppendFeedback(feedback)
			m.ResetForNextRound()
		} else {
			m.Draft = out.Logic.Draft
		}
	}

	return Outcome{
		Kind:         NotReached,
		Score:        lastScore,
		Rounds:       e.Config.MaxRounds,
		Votes:        lastVotes,
		Content:      m.Draft,
		AgentOutputs: lastOut.slice(),
		Duration:     time.Since(started),
	}, nil
}

type roundOutputs struct {
	Intent agents.Output
	Logic  agents.Output
	Truth  agents.Output
}

// slice returns the round's three outputs in Intent, Logic, Truth order.
func (r roundOutputs) slice() []agents.Output {
	return []agents.Output{r.Intent, r.Logic, r.Truth}
}

// runRound executes one Intent→Logic→Truth pass, honoring the optional
// parallel Truth prefetch (spec.md §4.4 step 2b): prefetch runs concurrently
// with Logic but the observable ordering (Logic result written, then Truth
// invoked) is unaffected.
func (e *Engine) runRound(ctx context.Context, m *agents.Manifest) (roundOutputs, error) {
	var out roundOutputs

	intentOut, err := e.Intent.Process(ctx, m)
	if err != nil {
		return out, &AgentFailedError{Which: "intent", Cause: err}
	}
	m.Framing = intentOut.Framing
	m.State = agents.StateFramed
	m.Confidences[agents.RoleIntent] = intentOut.Confidence
	out.Intent = intentOut

	var prefetchDone chan struct{}
	if e.Config.ParallelTruthPrefetch {
		prefetchDone = make(chan struct{})
		go func() {
			defer close(prefetchDone)
			if e.Truth.Guard != nil {
				e.Truth.Guard.Detect(ctx, m.Framing)
			}
		}()
	}

	logicOut, err := e.Logic.Process(ctx, m)
	if err != nil {
		return out, &AgentFailedError{Which: "logic", Cause: err}
	}
	m.Draft = logicOut.Draft
	m.Citations = logicOut.Citations
	m.State = agents.StateDrafted
	m.Confidences[agents.RoleLogic] = logicOut.Confidence
	out.Logic = logicOut

	if prefetchDone != nil {
		<-prefetchDone
	}

	truthOut, err := e.Truth.Process(ctx, m)
	if err != nil {
		return out, &AgentFailedError{Which: "truth", Cause: err}
	}
	m.Verdict = truthOut.Verdict
	m.Reasoning = truthOut.Reasoning
	m.State = agents.StateVerified
	m.Confidences[agents.RoleTruth] = truthOut.Confidence
	out.Truth = truthOut

	return out, nil
}

func (e *Engine) roundTimeout() time.Duration {
	if e.Config.RoundTimeout > 0 {
		return e.Config.RoundTimeout
	}
	return DefaultConfig().RoundTimeout
}

// revisionFeedback identifies the lowest-confidence agent (ties broken
// Logic→Truth→Intent, per spec.md §9's Open Question resolution) and builds
// the one-sentence feedback string spec.md §4.4 specifies.
func revisionFeedback(out roundOutputs) string {
	type candidate struct {
		name       string
		confidence float64
		reasoning  string
		clause     string
	}
	candidates := []candidate{
		{"logic", out.Logic.Confidence, out.Logic.Draft, "needs_more_context"},
		{"truth", out.Truth.Confidence, out.Truth.Reasoning, "has_concerns"},
		{"intent", out.Intent.Confidence, out.Intent.Framing, "requires_clarification"},
	}

	lowest := candidates[0]
	for _, c := range candidates[1:] {
		if c.confidence < lowest.confidence {
			lowest = c
		}
	}

	excerpt := lowest.reasoning
	if len(excerpt) > 200 {
		excerpt = excerpt[:200]
	}
	return fmt.Sprintf("%s %s: %s", lowest.name, lowest.clause, excerpt)
}
