package knowledge

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/adrg/frontmatter"
)

// Metadata is the parsed front-matter block of a markdown document, when
// present — title/tags surfaced alongside the chunked body so `knowledge
// add` can report them without a second parse pass.
type Metadata struct {
	Title string   `yaml:"title" json:"title"`
	Tags  []string `yaml:"tags" json:"tags"`
}

// ReadDocument loads path from disk, stripping and parsing any YAML/TOML
// front-matter block on markdown files (kind "md") before the body is
// chunked; files of other kinds are returned exactly as read
// (spec.md §4.2 add_document's "kind" parameter). kind is inferred from the
// file extension when not already known by the caller.
func ReadDocument(path string) (content string, kind string, meta Metadata, err error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", "", Metadata{}, fmt.Errorf("%w: %v", ErrInvalidPath, err)
	}

	kind = inferKind(path)
	if kind != "md" {
		return string(raw), kind, Metadata{}, nil
	}

	var fm Metadata
	body, err := frontmatter.Parse(bytes.NewReader(raw), &fm)
	if err != nil {
		// Malformed front matter: fall back to the raw body rather than
		// rejecting the document outright — the spec requires add_document
		// to tolerate heterogeneous file kinds.
		return string(raw), kind, Metadata{}, nil
	}
	return string(body), kind, fm, nil
}

func inferKind(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".md", ".markdown":
		return "md"
	case ".go", ".py", ".js", ".ts", ".rs", ".java", ".c", ".cpp", ".h":
		return "code"
	default:
		return "txt"
	}
}
