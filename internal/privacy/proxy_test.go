package privacy

import (
	"testing"

	"github.com/SuperInstance/tripartite/internal/guard"
	"github.com/SuperInstance/tripartite/internal/store"
)

func newTestProxy(t *testing.T) *Proxy {
	t.Helper()
	db, err := store.OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewProxy(db)
}

// S1: Redaction round-trip.
func TestRedactionRoundTrip(t *testing.T) {
	p := newTestProxy(t)

	res, err := p.Redact("Email bob@acme.io about sk-LIVE_ABC123def456", "s1")
	if err != nil {
		t.Fatalf("Redact: %v", err)
	}
	want := "Email [EMAIL_0001] about [API_KEY_0001]"
	if res.RedactedText != want {
		t.Fatalf("RedactedText = %q, want %q", res.RedactedText, want)
	}
	if res.Stats.MatchesPerCategory["EMAIL"] != 1 || res.Stats.MatchesPerCategory["API_KEY"] != 1 {
		t.Fatalf("stats = %+v, want EMAIL:1, API_KEY:1", res.Stats.MatchesPerCategory)
	}

	plain, err := p.Reinflate(res.RedactedText, "s1")
	if err != nil {
		t.Fatalf("Reinflate: %v", err)
	}
	if plain != "Email bob@acme.io about sk-LIVE_ABC123def456" {
		t.Fatalf("Reinflate = %q, want original text back", plain)
	}
}

// S2: Idempotent redaction — repeated values reuse the same token (P3).
func TestIdempotentRedaction(t *testing.T) {
	p := newTestProxy(t)

	res, err := p.Redact("contact a@b.co or a@b.co again", "s1")
	if err != nil {
		t.Fatalf("Redact: %v", err)
	}
	want := "contact [EMAIL_0001] or [EMAIL_0001] again"
	if res.RedactedText != want {
		t.Fatalf("RedactedText = %q, want %q", res.RedactedText, want)
	}
	if len(res.NewTokens) != 1 {
		t.Fatalf("NewTokens = %v, want exactly one distinct token", res.NewTokens)
	}

	res2, err := p.Redact("contact a@b.co or a@b.co again", "s1")
	if err != nil {
		t.Fatalf("Redact (repeat): %v", err)
	}
	if res2.RedactedText != want {
		t.Fatalf("repeat RedactedText = %q, want %q", res2.RedactedText, want)
	}
}

// S3: Session isolation — tokens in one session never reinflate in another (P4).
func TestSessionIsolation(t *testing.T) {
	p := newTestProxy(t)

	if _, err := p.Redact("Email bob@acme.io about sk-LIVE_ABC123def456", "s1"); err != nil {
		t.Fatalf("Redact s1: %v", err)
	}

	res, err := p.Redact("Email bob@acme.io", "s2")
	if err != nil {
		t.Fatalf("Redact s2: %v", err)
	}
	if res.RedactedText != "Email [EMAIL_0001]" {
		t.Fatalf("s2 RedactedText = %q, want fresh counter [EMAIL_0001]", res.RedactedText)
	}

	miss, err := p.Reinflate(res.RedactedText, "s1")
	if err != nil {
		t.Fatalf("Reinflate cross-session: %v", err)
	}
	if miss != res.RedactedText {
		t.Fatalf("cross-session Reinflate = %q, want unchanged miss %q", miss, res.RedactedText)
	}
}

// P2: redacted output contains no substring matching any enabled pattern.
func TestRedactedTextContainsNoMatches(t *testing.T) {
	p := newTestProxy(t)
	res, err := p.Redact("SSN 123-45-6789 and email x@y.com", "s1")
	if err != nil {
		t.Fatalf("Redact: %v", err)
	}
	if p.library.FindMatches(res.RedactedText, p.Enabled) != nil {
		t.Fatalf("redacted text still matches a pattern: %q", res.RedactedText)
	}
}

func TestCleanupRemovesVaultAndResetsCounters(t *testing.T) {
	p := newTestProxy(t)
	if _, err := p.Redact("Email a@b.co", "s1"); err != nil {
		t.Fatalf("Redact: %v", err)
	}
	if err := p.Cleanup("s1"); err != nil {
		t.Fatalf("Cleanup: %v", err)
	}
	res, err := p.Redact("Email a@b.co", "s1")
	if err != nil {
		t.Fatalf("Redact after cleanup: %v", err)
	}
	if res.RedactedText != "Email [EMAIL_0001]" {
		t.Fatalf("RedactedText after cleanup = %q, want counter reset to 0001", res.RedactedText)
	}
}

func TestRedactPreviewDoesNotMutateVault(t *testing.T) {
	p := newTestProxy(t)
	previews := p.RedactPreview("Email a@b.co")
	if len(previews) != 1 || previews[0].Category != "EMAIL" {
		t.Fatalf("previews = %+v, want one EMAIL match", previews)
	}

	res, err := p.Redact("Email a@b.co", "s1")
	if err != nil {
		t.Fatalf("Redact: %v", err)
	}
	if res.RedactedText != "Email [EMAIL_0001]" {
		t.Fatalf("preview must not have consumed a counter slot: got %q", res.RedactedText)
	}
}

func TestNewProxyFromGuardConfig_TogglesGatePatterns(t *testing.T) {
	db, err := store.OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	gc := guard.DefaultGuardConfig()
	gc.PII.Patterns.SSN = false
	p := NewProxyFromGuardConfig(db, gc)

	res, err := p.Redact("SSN 123-45-6789 and email x@y.com", "s1")
	if err != nil {
		t.Fatalf("Redact: %v", err)
	}
	if res.Stats.MatchesPerCategory["SSN"] != 0 {
		t.Fatalf("expected SSN redaction disabled, stats = %+v", res.Stats)
	}
	if res.Stats.MatchesPerCategory["EMAIL"] != 1 {
		t.Fatalf("expected EMAIL still redacted, stats = %+v", res.Stats)
	}
}

func TestNewProxyFromGuardConfig_GuardDisabledRedactsNothing(t *testing.T) {
	db, err := store.OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	gc := guard.DefaultGuardConfig()
	gc.Enabled = false
	p := NewProxyFromGuardConfig(db, gc)

	res, err := p.Redact("SSN 123-45-6789 and email x@y.com", "s1")
	if err != nil {
		t.Fatalf("Redact: %v", err)
	}
	if res.RedactedText != "SSN 123-45-6789 and email x@y.com" {
		t.Fatalf("expected no redaction when guard disabled, got %q", res.RedactedText)
	}
}

func TestPathTraversalFlag(t *testing.T) {
	p := newTestProxy(t)
	res, err := p.Redact("see /etc/../root/.ssh/id_rsa for details", "s1")
	if err != nil {
		t.Fatalf("Redact: %v", err)
	}
	if res.Stats.PathTraversalFlags == 0 {
		t.Fatalf("expected a path traversal flag, stats = %+v", res.Stats)
	}
}
