package privacy

import "fmt"

// Sentinel errors for the Privacy Proxy taxonomy (spec.md §7).
var (
	// ErrVaultUnavailable wraps Token Vault I/O failures.
	ErrVaultUnavailable = fmt.Errorf("privacy: vault unavailable")
	// ErrPatternInvalid is returned when register_pattern receives a
	// pattern with a nil matcher or an empty category.
	ErrPatternInvalid = fmt.Errorf("privacy: invalid pattern")
	// ErrTimeout is returned when a redact/reinflate call exceeds its
	// wall-clock budget.
	ErrTimeout = fmt.Errorf("privacy: timed out")
)
