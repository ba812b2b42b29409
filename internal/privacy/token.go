package privacy

import (
	"fmt"
	"regexp"
)

// tokenRe matches the closed token shape `[CATEGORY_NNNN]` (spec.md §3
// invariant: `^\[[A-Z_]+_\d+\]$`), used by Reinflate to find candidates.
var tokenRe = regexp.MustCompile(`\[([A-Z_]+)_(\d+)\]`)

// formatToken zero-pads the counter to width 4, widening naturally beyond
// 9999 (spec.md §4.1 step 4).
func formatToken(category string, counter int) string {
	return fmt.Sprintf("[%s_%04d]", category, counter)
}
