// Package privacy implements the Privacy Proxy (spec.md §4.1): pattern-
// driven redaction backed by a persistent, session-scoped Token Vault.
package privacy

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/SuperInstance/tripartite/internal/guard"
	"github.com/SuperInstance/tripartite/internal/store"
)

// DefaultTimeout is the per-call wall-clock budget (spec.md §4.1 Failure
// modes), configurable via Proxy.Timeout.
const DefaultTimeout = 5 * time.Second

// Stats mirrors spec.md §4.1's RedactionResult.stats.
type Stats struct {
	MatchesPerCategory map[string]int
	TotalReplacements  int
	PathTraversalFlags int
}

// RedactionResult is spec.md §3's RedactionResult.
type RedactionResult struct {
	RedactedText string
	NewTokens    []string
	Stats        Stats
}

// PreviewMatch describes a would-be redaction without mutating the vault —
// used by redact_preview for the "show redactions" UI affordance.
type PreviewMatch struct {
	Category string
	Text     string
	Start    int
	End      int
}

// Proxy is the Privacy Proxy. It owns the Token Vault exclusively during a
// redact/reinflate call (spec.md §3 Ownership).
type Proxy struct {
	db      *store.DB
	library *Library
	Timeout time.Duration

	// Enabled gates which pattern categories run, read from the user-facing
	// guard settings (teacher's internal/guard.GuardConfig.EnabledPatternNames).
	// nil means "all builtin categories enabled".
	Enabled map[string]bool

	// AuditDir, when non-empty, receives a JSONL audit trail of redact/
	// reinflate/cleanup calls (never the redacted values themselves).
	AuditDir string
}

// NewProxy constructs a Proxy over the given storage backend.
func NewProxy(db *store.DB) *Proxy {
	return &Proxy{db: db, library: NewLibrary(), Timeout: DefaultTimeout}
}

// NewProxyFromGuardConfig constructs a Proxy and gates Enabled by the
// user-facing guard settings at ~/.config/tripartite/config.json, so toggling
// e.g. "ssn" off via `tripartite guard set ssn off` actually stops the Privacy
// Proxy from redacting that category.
//
// GuardConfig.EnabledPatternNames returns nil both when every pattern is
// individually disabled and when guard/PII is off globally; Proxy.Enabled
// treats nil as "all categories enabled" (its zero value), so the global-off
// case is normalized here to a non-nil empty map, which disables redaction
// entirely instead of accidentally enabling everything.
func NewProxyFromGuardConfig(db *store.DB, gc guard.GuardConfig) *Proxy {
	p := NewProxy(db)
	names := gc.EnabledPatternNames()
	if names == nil {
		names = map[string]bool{}
	}
	p.Enabled = names
	return p
}

// RegisterPattern adds a custom pattern with explicit priority.
func (p *Proxy) RegisterPattern(pat RedactionPattern) error {
	return p.library.Register(pat)
}

// Redact implements spec.md §4.1's redact(text, session_id) operation.
func (p *Proxy) Redact(text, sessionID string) (RedactionResult, error) {
	deadline := time.Now().Add(p.timeout())
	matches := p.library.FindMatches(text, p.Enabled)

	result := RedactionResult{Stats: Stats{MatchesPerCategory: map[string]int{}}}
	if len(matches) == 0 {
		result.RedactedText = text
		return result, nil
	}

	var b strings.Builder
	last := 0
	for _, m := range matches {
		if time.Now().After(deadline) {
			p.appendAudit(AuditEntry{Action: "redact", SessionID: sessionID, TimedOut: true})
			return RedactionResult{RedactedText: text}, ErrTimeout
		}

		if m.category == "PATH" && isSuspiciousPath(m.text) {
			result.Stats.PathTraversalFlags++
		}

		token, err := p.tokenFor(sessionID, m.category, m.text)
		if err != nil {
			return RedactionResult{}, fmt.Errorf("%w: %v", ErrVaultUnavailable, err)
		}
		if !alreadyCollected(result.NewTokens, token) {
			result.NewTokens = append(result.NewTokens, token)
		}

		b.WriteString(text[last:m.start])
		b.WriteString(token)
		last = m.end

		result.Stats.MatchesPerCategory[m.category]++
		result.Stats.TotalReplacements++
	}
	b.WriteString(text[last:])
	result.RedactedText = b.String()
	p.appendAudit(AuditEntry{
		Action:       "redact",
		SessionID:    sessionID,
		Count:        result.Stats.TotalReplacements,
		PathsFlagged: result.Stats.PathTraversalFlags,
	})
	return result, nil
}

// tokenFor resolves or allocates the token for (sessionID, original),
// reusing an existing token when the value was already seen in this session
// (spec.md §4.1 step 4, and P3).
func (p *Proxy) tokenFor(sessionID, category, original string) (string, error) {
	if tok, ok, err := p.db.LookupVaultByOriginal(sessionID, original); err != nil {
		return "", err
	} else if ok {
		return tok, nil
	}

	n, err := p.db.NextCounter(sessionID, category)
	if err != nil {
		return "", err
	}
	token := formatToken(category, n)

	if err := p.db.InsertVaultEntry(store.VaultEntry{
		Token: token, SessionID: sessionID, Category: category,
		Original: original, CreatedAt: time.Now().Unix(),
	}); err != nil {
		return "", err
	}
	return token, nil
}

// Reinflate implements spec.md §4.1's reinflate(text, session_id) operation.
// Unknown tokens are left intact; reinflation is idempotent.
func (p *Proxy) Reinflate(text, sessionID string) (string, error) {
	locs := tokenRe.FindAllStringSubmatchIndex(text, -1)
	if len(locs) == 0 {
		return text, nil
	}

	var b strings.Builder
	last := 0
	for _, loc := range locs {
		start, end := loc[0], loc[1]
		token := text[start:end]
		original, ok, err := p.db.LookupVaultByToken(sessionID, token)
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrVaultUnavailable, err)
		}
		b.WriteString(text[last:start])
		if ok {
			b.WriteString(original)
		} else {
			b.WriteString(token)
		}
		last = end
	}
	b.WriteString(text[last:])
	p.appendAudit(AuditEntry{Action: "reinflate", SessionID: sessionID})
	return b.String(), nil
}

// RedactPreview implements redact_preview(text): lists would-be matches
// with no vault mutation.
func (p *Proxy) RedactPreview(text string) []PreviewMatch {
	matches := p.library.FindMatches(text, p.Enabled)
	out := make([]PreviewMatch, 0, len(matches))
	for _, m := range matches {
		out = append(out, PreviewMatch{Category: m.category, Text: m.text, Start: m.start, End: m.end})
	}
	return out
}

// Cleanup implements cleanup(session_id): removes all vault entries for a session.
func (p *Proxy) Cleanup(sessionID string) error {
	if err := p.db.CleanupSession(sessionID); err != nil {
		return err
	}
	p.appendAudit(AuditEntry{Action: "cleanup", SessionID: sessionID})
	return nil
}

// appendAudit is best-effort: a failed audit write must never block a
// redact/reinflate call, so errors are swallowed here.
func (p *Proxy) appendAudit(entry AuditEntry) {
	if p.AuditDir == "" {
		return
	}
	_ = AppendAudit(p.AuditDir, entry)
}

func (p *Proxy) timeout() time.Duration {
	if p.Timeout > 0 {
		return p.Timeout
	}
	return DefaultTimeout
}

// alreadyCollected reports whether token is already in seen, so Redact only
// appends each distinct new token once to RedactionResult.NewTokens.
func alreadyCollected(seen []string, token string) bool {
	for _, t := range seen {
		if t == token {
			return true
		}
	}
	return false
}

// isSuspiciousPath flags paths with a `..` component (spec.md §4.1's "Path
// validation" clause); the path is not otherwise canonicalized. Flagging
// (not rejecting) lets the caller decide whether to reject upstream.
func isSuspiciousPath(p string) bool {
	parts := strings.Split(p, "/")
	for _, part := range parts {
		if part == ".." {
			return true
		}
	}
	return false
}

// sortedCategories is a small helper for deterministic stats output;
// SortedStatsLines is its only caller.
func sortedCategories(stats map[string]int) []string {
	cats := make([]string, 0, len(stats))
	for c := range stats {
		cats = append(cats, c)
	}
	sort.Strings(cats)
	return cats
}

// SortedStatsLines renders `{category: count}` lines in a deterministic order.
func SortedStatsLines(s Stats) []string {
	var lines []string
	for _, c := range sortedCategories(s.MatchesPerCategory) {
		lines = append(lines, c+": "+strconv.Itoa(s.MatchesPerCategory[c]))
	}
	return lines
}
