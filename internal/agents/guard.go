package agents

import (
	"context"

	"github.com/mdombrov-33/go-promptguard/detector"
)

// PromptGuard adapts go-promptguard's detector to the Agent.Guard contract,
// grounded on the teacher's internal/hooks/injection.go package-level
// detector configuration.
type PromptGuard struct {
	d *detector.Detector
}

// NewPromptGuard constructs a detector tuned for screening model-generated
// draft content (not raw user input), mirroring the teacher's threshold
// choice for vault content.
func NewPromptGuard() *PromptGuard {
	return &PromptGuard{
		d: detector.New(
			detector.WithThreshold(0.6),
			detector.WithAllDetectors(),
			detector.WithMaxInputLength(4000),
		),
	}
}

// Detect reports whether text contains a likely prompt-injection attempt.
func (g *PromptGuard) Detect(ctx context.Context, text string) bool {
	if len(text) == 0 {
		return false
	}
	result := g.d.Detect(ctx, text)
	return !result.Safe
}
