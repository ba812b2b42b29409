// Package knowledge implements the Knowledge Vault (spec.md §4.2): document
// ingestion, pluggable chunking, embedding, and hybrid similarity search.
package knowledge

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/SuperInstance/tripartite/internal/embedding"
	"github.com/SuperInstance/tripartite/internal/store"
)

// SearchResult is spec.md §3's SearchResult entity.
type SearchResult struct {
	DocumentID string
	ChunkIndex int
	Content    string
	Score      float64
}

// Vault is the Knowledge Vault: documents + chunks + vector index, backed by
// internal/store's SQLite connection and an Embedder capability.
type Vault struct {
	db       *store.DB
	embedder embedding.Provider
	strategy Strategy

	// HybridKeywordBoost enables the optional 0.2-weighted lexical blend
	// documented in spec.md §4.2 ("Hybrid keyword boost"). Disabled by
	// default — cosine-only ranking is the vault's default behavior.
	HybridKeywordBoost bool
}

// NewVault constructs a Vault. strategy selects the chunking algorithm used
// by AddDocument; pass "" for the paragraph default.
func NewVault(db *store.DB, embedder embedding.Provider, strategy Strategy) *Vault {
	return &Vault{db: db, embedder: embedder, strategy: strategy}
}

// contentHash is the document id: a SHA-256 hex digest of the content,
// grounding add_document's idempotency invariant (P5).
func contentHash(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// AddDocument implements add_document(path, content, kind) → document_id.
// Idempotent on content hash: an existing document is returned unchanged
// without re-chunking or re-embedding.
func (v *Vault) AddDocument(path, content, kind string) (string, error) {
	id := contentHash(content)

	exists, err := v.db.DocumentExists(id)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	if exists {
		return id, nil
	}

	now := time.Now().Unix()
	if err := v.db.InsertDocument(id, path, kind, len(content), now, now); err != nil {
		return "", fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	chunks := Chunk(content, v.strategy)
	for i, text := range chunks {
		vec, err := v.embedder.GetDocumentEmbedding(text)
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrEmbedderFailed, err)
		}
		if dims := v.embedder.Dimensions(); dims > 0 && len(vec) != dims {
			return "", fmt.Errorf("%w: expected %d, found %d", ErrDimensionMismatch, dims, len(vec))
		}
		normalize(vec)

		chunkID := fmt.Sprintf("%s:%d", id, i)
		if err := v.db.InsertChunk(chunkID, id, i, text, vec); err != nil {
			return "", fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
		}
	}
	if err := v.db.SetEmbeddingMeta(v.embedder.Name(), v.embedder.Model(), v.embedder.Dimensions()); err != nil {
		return "", fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	return id, nil
}

// DeleteDocument implements delete_document(document_id).
func (v *Vault) DeleteDocument(documentID string) error {
	exists, err := v.db.DocumentExists(documentID)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	if !exists {
		return ErrDocumentNotFound
	}
	if err := v.db.DeleteDocument(documentID); err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	return nil
}

// Stats implements stats() → {document_count, chunk_count, byte_size}.
func (v *Vault) Stats() (store.DocumentStats, error) {
	s, err := v.db.Stats()
	if err != nil {
		return s, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	return s, nil
}

// Search implements search(query_text, k) → ordered top-k SearchResult, with
// the deterministic tie-break spec.md §4.2/P6 requires: higher score first,
// then smaller document id lexicographically, then smaller chunk index.
func (v *Vault) Search(queryText string, k int) ([]SearchResult, error) {
	if k <= 0 {
		k = 10
	}
	queryVec, err := v.embedder.GetQueryEmbedding(queryText)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbedderFailed, err)
	}
	normalize(queryVec)

	// Over-fetch so the keyword boost (when enabled) can re-rank within a
	// wider candidate pool without a second round trip.
	fetchK := k * 4
	if fetchK < k {
		fetchK = k
	}
	raw, err := v.db.VectorSearch(queryVec, fetchK)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	keywordScore := map[string]float64{}
	if v.HybridKeywordBoost {
		terms := store.ExtractSearchTerms(queryText)
		if hits, err := v.db.KeywordSearch(terms, fetchK); err == nil {
			maxHits := float64(len(terms))
			if maxHits == 0 {
				maxHits = 1
			}
			counts := map[string]int{}
			for _, h := range hits {
				counts[h.ChunkID]++
			}
			for id, c := range counts {
				keywordScore[id] = float64(c) / maxHits
			}
		}
	}

	results := make([]SearchResult, 0, len(raw))
	for _, r := range raw {
		cosine := 1 - (r.Distance*r.Distance)/2 // vec0 L2 distance on unit vectors -> cosine
		score := cosine
		if v.HybridKeywordBoost {
			score = 0.8*cosine + 0.2*keywordScore[r.ChunkID]
		}
		results = append(results, SearchResult{
			DocumentID: r.DocumentID,
			ChunkIndex: r.Ord,
			Content:    r.Content,
			Score:      score,
		})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		if results[i].DocumentID != results[j].DocumentID {
			return results[i].DocumentID < results[j].DocumentID
		}
		return results[i].ChunkIndex < results[j].ChunkIndex
	})

	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

// normalize scales vec to unit L2 length in place (spec.md §4.2: "Embeddings
// are assumed L2-normalized or are normalized on insert").
func normalize(vec []float32) {
	var sumSq float64
	for _, f := range vec {
		sumSq += float64(f) * float64(f)
	}
	if sumSq == 0 {
		return
	}
	norm := math.Sqrt(sumSq)
	for i, f := range vec {
		vec[i] = float32(float64(f) / norm)
	}
}
