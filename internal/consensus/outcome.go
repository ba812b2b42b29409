package consensus

import (
	"time"

	"github.com/SuperInstance/tripartite/internal/agents"
)

// Kind is the closed set of terminal Consensus outcomes (spec.md §4.4).
type Kind string

const (
	Reached    Kind = "Reached"
	Vetoed     Kind = "Vetoed"
	NotReached Kind = "NotReached"
)

// Votes is the per-role confidence triple (c_p, c_l, c_e) in that order.
type Votes struct {
	Intent float64
	Logic  float64
	Truth  float64
}

// Outcome is the Consensus Engine's terminal result for one query.
type Outcome struct {
	Kind   Kind
	Score  float64
	Rounds int

	Votes Votes

	// Reason and Round are populated only for Kind == Vetoed.
	Reason string
	Round  int

	// Content is the best-effort draft carried by Kind == NotReached.
	Content string

	// AgentOutputs preserves the three agents' outputs from the final round
	// processed, in Intent, Logic, Truth order (spec.md §3 ConsensusOutcome).
	AgentOutputs []agents.Output

	// Duration is the wall-clock time spent across all rounds.
	Duration time.Duration
}
