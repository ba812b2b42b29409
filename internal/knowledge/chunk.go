package knowledge

import (
	"regexp"
	"strings"
)

// Strategy names the pluggable chunking algorithms spec.md §4.2 names.
type Strategy string

const (
	StrategyParagraph  Strategy = "paragraph"
	StrategySentence   Strategy = "sentence"
	StrategyFixedToken Strategy = "fixed-token"
)

// FixedTokenWindow is the default sliding-window size (tokens).
const FixedTokenWindow = 512

// FixedTokenOverlap is the default overlap between consecutive windows (tokens).
const FixedTokenOverlap = 50

var paragraphSplit = regexp.MustCompile(`\n{2,}`)
var sentenceSplit = regexp.MustCompile(`(?:[.!?])(?:\s+|$)`)

// Chunk splits content according to strategy. Results are trimmed and empty
// chunks are dropped, per spec.md §4.2.
func Chunk(content string, strategy Strategy) []string {
	switch strategy {
	case StrategySentence:
		return chunkBySentence(content)
	case StrategyFixedToken:
		return chunkByFixedToken(content, FixedTokenWindow, FixedTokenOverlap)
	case StrategyParagraph, "":
		return chunkByParagraph(content)
	default:
		return chunkByParagraph(content)
	}
}

func chunkByParagraph(content string) []string {
	parts := paragraphSplit.Split(content, -1)
	return trimNonEmpty(parts)
}

func chunkBySentence(content string) []string {
	locs := sentenceSplit.FindAllStringIndex(content, -1)
	var out []string
	last := 0
	for _, loc := range locs {
		out = append(out, content[last:loc[0]+1])
		last = loc[1]
	}
	if last < len(content) {
		out = append(out, content[last:])
	}
	return trimNonEmpty(out)
}

// chunkByFixedToken walks whitespace-delimited tokens in a sliding window of
// size n with overlap o, per spec.md §4.2's "Fixed-token strategy".
func chunkByFixedToken(content string, n, o int) []string {
	tokens := strings.Fields(content)
	if len(tokens) == 0 {
		return nil
	}
	if o >= n {
		o = n - 1
	}
	stride := n - o
	if stride <= 0 {
		stride = 1
	}

	var out []string
	for start := 0; start < len(tokens); start += stride {
		end := start + n
		if end > len(tokens) {
			end = len(tokens)
		}
		out = append(out, strings.Join(tokens[start:end], " "))
		if end == len(tokens) {
			break
		}
	}
	return out
}

func trimNonEmpty(parts []string) []string {
	var out []string
	for _, p := range parts {
		t := strings.TrimSpace(p)
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}
