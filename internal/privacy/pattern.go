package privacy

import (
	"regexp"
	"sort"
)

// RedactionPattern is spec.md §3's closed sum type: a stable category label,
// a priority used to resolve overlapping matches (higher wins), a matcher,
// and an optional validator (e.g. Luhn for CREDIT_CARD). Grounded on the
// category->regexp idiom in rmasci-piiredact/patterns.go, re-expressed here
// as a uniformly-invoked struct per spec.md §9 ("no inheritance hierarchy is
// needed").
type RedactionPattern struct {
	Category  string
	Priority  int
	Matcher   *regexp.Regexp
	Validator func(matched string) bool
}

// match is an accepted, non-overlapping span found by the Library.
type match struct {
	start, end int
	category   string
	text       string
	priority   int
}

// Library holds the registered pattern set. The user-facing on/off toggles
// read from guard settings live on Proxy.Enabled and are passed in to
// Patterns and FindMatches.
type Library struct {
	patterns []RedactionPattern
}

// NewLibrary returns a Library seeded with the built-in pattern set.
func NewLibrary() *Library {
	l := &Library{}
	for _, p := range builtinPatterns() {
		l.patterns = append(l.patterns, p)
	}
	return l
}

// Register adds a custom pattern with an explicit priority. Returns
// ErrPatternInvalid if the matcher is nil or the category is empty.
func (l *Library) Register(p RedactionPattern) error {
	if p.Matcher == nil || p.Category == "" {
		return ErrPatternInvalid
	}
	l.patterns = append(l.patterns, p)
	return nil
}

// Patterns returns the registered patterns filtered to the given enabled
// set. A nil enabled set means "all patterns enabled".
func (l *Library) Patterns(enabled map[string]bool) []RedactionPattern {
	if enabled == nil {
		return l.patterns
	}
	var out []RedactionPattern
	for _, p := range l.patterns {
		if enabled[p.Category] {
			out = append(out, p)
		}
	}
	return out
}

// FindMatches runs every enabled pattern across text, applies validators,
// resolves overlaps (spec.md §4.1 algorithm step 3: highest priority wins;
// ties broken by longest match, then earliest start), and returns
// non-overlapping matches ordered by ascending start.
func (l *Library) FindMatches(text string, enabled map[string]bool) []match {
	var candidates []match
	for _, p := range l.Patterns(enabled) {
		locs := p.Matcher.FindAllStringIndex(text, -1)
		for _, loc := range locs {
			start, end := loc[0], loc[1]
			matched := text[start:end]
			if p.Validator != nil && !p.Validator(matched) {
				continue
			}
			candidates = append(candidates, match{
				start: start, end: end, category: p.Category,
				text: matched, priority: p.Priority,
			})
		}
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].priority != candidates[j].priority {
			return candidates[i].priority > candidates[j].priority
		}
		li := candidates[i].end - candidates[i].start
		lj := candidates[j].end - candidates[j].start
		if li != lj {
			return li > lj
		}
		return candidates[i].start < candidates[j].start
	})

	var accepted []match
	occupied := func(start, end int) bool {
		for _, a := range accepted {
			if start < a.end && end > a.start {
				return true
			}
		}
		return false
	}
	for _, c := range candidates {
		if occupied(c.start, c.end) {
			continue
		}
		accepted = append(accepted, c)
	}

	sort.Slice(accepted, func(i, j int) bool { return accepted[i].start < accepted[j].start })
	return accepted
}

// builtinPatterns seeds the closed category set named in spec.md §3.
// Shapes grounded on rmasci-piiredact/patterns.go; the wall-clock budget
// enforced in Proxy.Redact guards against the catastrophic-backtracking
// risk spec.md §9 calls out for alternation-heavy patterns.
func builtinPatterns() []RedactionPattern {
	return []RedactionPattern{
		{
			Category: "EMAIL",
			Priority: 50,
			Matcher:  regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`),
		},
		{
			Category: "PHONE",
			Priority: 40,
			Matcher:  regexp.MustCompile(`\+?1?[-.\s]?\(?\d{3}\)?[-.\s]?\d{3}[-.\s]?\d{4}\b`),
		},
		{
			Category: "SSN",
			Priority: 60,
			Matcher:  regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`),
		},
		{
			Category:  "CREDIT_CARD",
			Priority:  55,
			Matcher:   regexp.MustCompile(`\b(?:\d[ -]?){13,16}\b`),
			Validator: luhnValid,
		},
		{
			Category: "IP",
			Priority: 20,
			Matcher:  regexp.MustCompile(`\b(?:(?:25[0-5]|2[0-4]\d|1?\d?\d)\.){3}(?:25[0-5]|2[0-4]\d|1?\d?\d)\b`),
		},
		{
			// API_KEY must preempt EMAIL/IP overlaps on ambiguous text.
			Category: "API_KEY",
			Priority: 70,
			Matcher:  regexp.MustCompile(`\bsk-[A-Za-z0-9_]{10,}\b`),
		},
		{
			Category: "AWS_KEY",
			Priority: 71,
			Matcher:  regexp.MustCompile(`\bAKIA[0-9A-Z]{16}\b`),
		},
		{
			Category: "PRIVATE_KEY",
			Priority: 90,
			Matcher:  regexp.MustCompile(`-----BEGIN [A-Z ]*PRIVATE KEY-----`),
		},
		{
			Category: "PATH",
			Priority: 10,
			Matcher:  regexp.MustCompile(`(?:/[\w.\-]+){2,}`),
		},
		{
			Category: "URL_WITH_TOKEN",
			Priority: 65,
			Matcher:  regexp.MustCompile(`https?://[^\s]+[?&](?:token|api_key|access_token)=[^\s&]+`),
		},
	}
}

// luhnValid validates a candidate credit-card-shaped match with the Luhn
// checksum, dropping false positives (spec.md §4.1 step 2).
func luhnValid(s string) bool {
	var digits []int
	for _, r := range s {
		if r >= '0' && r <= '9' {
			digits = append(digits, int(r-'0'))
		}
	}
	if len(digits) < 13 {
		return false
	}
	sum := 0
	double := false
	for i := len(digits) - 1; i >= 0; i-- {
		d := digits[i]
		if double {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		double = !double
	}
	return sum%10 == 0
}
