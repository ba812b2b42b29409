package consensus

import "fmt"

var (
	// ErrInvalidConfig wraps a malformed Config field (spec.md §7).
	ErrInvalidConfig = fmt.Errorf("consensus: invalid config")
	// ErrTimeout is returned when a round exceeds its wall-clock budget.
	ErrTimeout = fmt.Errorf("consensus: round timed out")
)

// AgentFailedError wraps an agent error with the role that produced it, per
// spec.md §7's Consensus::AgentFailed{which, cause}.
type AgentFailedError struct {
	Which string
	Cause error
}

func (e *AgentFailedError) Error() string {
	return fmt.Sprintf("consensus: agent %q failed: %v", e.Which, e.Cause)
}

func (e *AgentFailedError) Unwrap() error { return e.Cause }
