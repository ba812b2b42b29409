package knowledge

import (
	"strings"
	"testing"

	"github.com/SuperInstance/tripartite/internal/store"
)

// fakeEmbedder produces a small deterministic vector from the hash of each
// distinct word present in the text, avoiding any network dependency.
type fakeEmbedder struct{ dims int }

func (f *fakeEmbedder) GetEmbedding(text, purpose string) ([]float32, error) {
	vec := make([]float32, f.dims)
	for _, w := range strings.Fields(strings.ToLower(text)) {
		var h uint32
		for _, r := range w {
			h = h*31 + uint32(r)
		}
		vec[int(h)%f.dims] += 1
	}
	return vec, nil
}
func (f *fakeEmbedder) GetDocumentEmbedding(text string) ([]float32, error) { return f.GetEmbedding(text, "document") }
func (f *fakeEmbedder) GetQueryEmbedding(text string) ([]float32, error)    { return f.GetEmbedding(text, "query") }
func (f *fakeEmbedder) Name() string                                       { return "fake" }
func (f *fakeEmbedder) Model() string                                      { return "fake-model" }
func (f *fakeEmbedder) Dimensions() int                                    { return f.dims }

func newTestVault(t *testing.T) *Vault {
	t.Helper()
	db, err := store.OpenMemoryWithDims(32)
	if err != nil {
		t.Fatalf("OpenMemoryWithDims: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewVault(db, &fakeEmbedder{dims: 32}, StrategyParagraph)
}

func TestAddDocumentIdempotent(t *testing.T) {
	v := newTestVault(t)

	id1, err := v.AddDocument("a.md", "hello world", "md")
	if err != nil {
		t.Fatalf("AddDocument: %v", err)
	}
	id2, err := v.AddDocument("a.md", "hello world", "md")
	if err != nil {
		t.Fatalf("AddDocument (repeat): %v", err)
	}
	if id1 != id2 {
		t.Fatalf("ids differ: %q vs %q, want same content-hash id", id1, id2)
	}

	stats, err := v.Stats()
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.DocumentCount != 1 {
		t.Fatalf("DocumentCount = %d, want 1", stats.DocumentCount)
	}
}

func TestSearchRanksClosestDocumentFirst(t *testing.T) {
	v := newTestVault(t)

	if _, err := v.AddDocument("cats.md", "cats are great pets", "md"); err != nil {
		t.Fatalf("AddDocument: %v", err)
	}
	if _, err := v.AddDocument("dogs.md", "dogs are loyal companions", "md"); err != nil {
		t.Fatalf("AddDocument: %v", err)
	}

	results, err := v.Search("cats are great pets", 5)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) == 0 {
		t.Fatal("expected at least one result")
	}
	if !strings.Contains(results[0].Content, "cats") {
		t.Fatalf("top result = %+v, want the cats chunk to rank first", results[0])
	}
}

func TestDeleteDocumentRemovesChunks(t *testing.T) {
	v := newTestVault(t)

	id, err := v.AddDocument("a.md", "first paragraph\n\nsecond paragraph", "md")
	if err != nil {
		t.Fatalf("AddDocument: %v", err)
	}
	if err := v.DeleteDocument(id); err != nil {
		t.Fatalf("DeleteDocument: %v", err)
	}
	stats, err := v.Stats()
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.DocumentCount != 0 || stats.ChunkCount != 0 {
		t.Fatalf("stats after delete = %+v, want zeroed", stats)
	}

	if err := v.DeleteDocument(id); err == nil {
		t.Fatal("expected error deleting an already-deleted document")
	}
}

func TestChunkStrategies(t *testing.T) {
	para := Chunk("one\n\ntwo\n\n\nthree", StrategyParagraph)
	if len(para) != 3 {
		t.Fatalf("paragraph chunks = %v, want 3", para)
	}

	sent := Chunk("One. Two! Three?", StrategySentence)
	if len(sent) != 3 {
		t.Fatalf("sentence chunks = %v, want 3", sent)
	}

	words := strings.Repeat("word ", 600)
	fixed := Chunk(words, StrategyFixedToken)
	if len(fixed) < 2 {
		t.Fatalf("fixed-token chunks = %d, want sliding window over 600 tokens to produce >1 chunk", len(fixed))
	}
}
