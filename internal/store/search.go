package store

import (
	"fmt"
	"strings"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
)

// RawChunkResult is a chunk row joined with its owning document, as returned
// by the vector/keyword search primitives below. Scoring and tie-breaking
// (spec.md §4.2, P6) are applied by the caller (internal/knowledge).
type RawChunkResult struct {
	ChunkID    string
	DocumentID string
	Ord        int
	Content    string
	Distance   float64
}

// InsertDocument upserts a document row (keyed by content hash id).
func (db *DB) InsertDocument(id, path, kind string, size int, createdAt, updatedAt int64) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	_, err := db.conn.Exec(
		`INSERT INTO documents (id, path, kind, size, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET path = excluded.path, updated_at = excluded.updated_at`,
		id, path, kind, size, createdAt, updatedAt,
	)
	return err
}

// DocumentExists reports whether a document with the given content-hash id
// is already present, grounding add_document's idempotency (P5).
func (db *DB) DocumentExists(id string) (bool, error) {
	var n int
	err := db.conn.QueryRow(`SELECT COUNT(1) FROM documents WHERE id = ?`, id).Scan(&n)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// DeleteDocument removes a document and its chunks/embeddings.
func (db *DB) DeleteDocument(id string) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	rows, err := db.conn.Query(`SELECT id FROM chunks WHERE document_id = ?`, id)
	if err != nil {
		return err
	}
	var chunkIDs []string
	for rows.Next() {
		var cid string
		if err := rows.Scan(&cid); err != nil {
			rows.Close()
			return err
		}
		chunkIDs = append(chunkIDs, cid)
	}
	rows.Close()

	for _, cid := range chunkIDs {
		if _, err := db.conn.Exec(`DELETE FROM chunk_vec WHERE chunk_rowid IN (SELECT chunk_rowid FROM chunk_vec_map WHERE chunk_id = ?)`, cid); err != nil {
			return err
		}
		if _, err := db.conn.Exec(`DELETE FROM chunk_vec_map WHERE chunk_id = ?`, cid); err != nil {
			return err
		}
	}
	if _, err := db.conn.Exec(`DELETE FROM chunks WHERE document_id = ?`, id); err != nil {
		return err
	}
	_, err = db.conn.Exec(`DELETE FROM documents WHERE id = ?`, id)
	return err
}

// InsertChunk stores a chunk's text and (if non-nil) its embedding.
func (db *DB) InsertChunk(chunkID, documentID string, ord int, content string, embedding []float32) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if _, err := db.conn.Exec(
		`INSERT INTO chunks (id, document_id, ord, content) VALUES (?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET ord = excluded.ord, content = excluded.content`,
		chunkID, documentID, ord, content,
	); err != nil {
		return fmt.Errorf("insert chunk: %w", err)
	}

	if embedding == nil {
		return nil
	}

	var rowid int64
	err := db.conn.QueryRow(
		`INSERT INTO chunk_vec_map (chunk_id) VALUES (?)
		 ON CONFLICT(chunk_id) DO UPDATE SET chunk_id = excluded.chunk_id
		 RETURNING chunk_rowid`,
		chunkID,
	).Scan(&rowid)
	if err != nil {
		return fmt.Errorf("map chunk rowid: %w", err)
	}

	vecData, err := sqlite_vec.SerializeFloat32(embedding)
	if err != nil {
		return fmt.Errorf("serialize embedding: %w", err)
	}
	if _, err := db.conn.Exec(`DELETE FROM chunk_vec WHERE chunk_rowid = ?`, rowid); err != nil {
		return err
	}
	_, err = db.conn.Exec(`INSERT INTO chunk_vec (chunk_rowid, embedding) VALUES (?, ?)`, rowid, vecData)
	return err
}

// DocumentStats reports aggregate counts for Knowledge.stats().
type DocumentStats struct {
	DocumentCount int
	ChunkCount    int
	ByteSize      int64
}

// Stats computes the current document/chunk/byte counts.
func (db *DB) Stats() (DocumentStats, error) {
	var s DocumentStats
	if err := db.conn.QueryRow(`SELECT COUNT(1) FROM documents`).Scan(&s.DocumentCount); err != nil {
		return s, err
	}
	if err := db.conn.QueryRow(`SELECT COUNT(1) FROM chunks`).Scan(&s.ChunkCount); err != nil {
		return s, err
	}
	if err := db.conn.QueryRow(`SELECT COALESCE(SUM(size),0) FROM documents`).Scan(&s.ByteSize); err != nil {
		return s, err
	}
	return s, nil
}

// VectorSearch performs a KNN vector search over chunk_vec, joining back to
// chunk content and owning document. fetchK controls how many nearest
// neighbors are pulled before the caller applies dedupe/tie-break logic —
// mirrors the teacher's over-fetch-then-filter shape in VectorSearch.
func (db *DB) VectorSearch(queryVec []float32, fetchK int) ([]RawChunkResult, error) {
	if fetchK <= 0 {
		fetchK = 10
	}
	vecData, err := sqlite_vec.SerializeFloat32(queryVec)
	if err != nil {
		return nil, fmt.Errorf("serialize query: %w", err)
	}

	rows, err := db.conn.Query(`
		SELECT v.distance, c.id, c.document_id, c.ord, c.content
		FROM chunk_vec v
		JOIN chunk_vec_map m ON m.chunk_rowid = v.chunk_rowid
		JOIN chunks c ON c.id = m.chunk_id
		WHERE v.embedding MATCH ? AND k = ?
		ORDER BY v.distance`,
		vecData, fetchK,
	)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}
	defer rows.Close()

	var results []RawChunkResult
	for rows.Next() {
		var r RawChunkResult
		if err := rows.Scan(&r.Distance, &r.ChunkID, &r.DocumentID, &r.Ord, &r.Content); err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

// KeywordSearch performs a LIKE-based fallback/boost search over chunk
// content, ranked by term match count, used to blend in the optional
// hybrid keyword boost (spec.md §4.2).
func (db *DB) KeywordSearch(terms []string, limit int) ([]RawChunkResult, error) {
	if len(terms) == 0 || limit <= 0 {
		return nil, nil
	}

	var matchExprs []string
	var args []interface{}
	for _, term := range terms {
		pattern := "%" + term + "%"
		matchExprs = append(matchExprs, "(CASE WHEN LOWER(c.content) LIKE LOWER(?) THEN 1 ELSE 0 END)")
		args = append(args, pattern)
	}
	var conditions []string
	for _, term := range terms {
		pattern := "%" + term + "%"
		conditions = append(conditions, "LOWER(c.content) LIKE LOWER(?)")
		args = append(args, pattern)
	}
	scoreExpr := strings.Join(matchExprs, " + ")

	query := fmt.Sprintf(`
		SELECT 0 as distance, c.id, c.document_id, c.ord, c.content
		FROM chunks c
		WHERE (%s)
		ORDER BY (%s) DESC
		LIMIT ?`,
		strings.Join(conditions, " OR "), scoreExpr)
	args = append(args, limit)

	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("keyword search: %w", err)
	}
	defer rows.Close()

	var results []RawChunkResult
	for rows.Next() {
		var r RawChunkResult
		if err := rows.Scan(&r.Distance, &r.ChunkID, &r.DocumentID, &r.Ord, &r.Content); err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

// ExtractSearchTerms extracts meaningful search terms from a natural language
// query, filtering stop words and very short terms.
func ExtractSearchTerms(query string) []string {
	words := strings.Fields(query)
	var terms []string
	seen := make(map[string]bool)
	for _, w := range words {
		lower := strings.ToLower(w)
		lower = strings.Trim(lower, ".,;:!?\"'()[]{}")
		if len(lower) < 3 {
			continue
		}
		if searchStopWords[lower] || seen[lower] {
			continue
		}
		seen[lower] = true
		terms = append(terms, lower)
	}
	return terms
}

var searchStopWords = map[string]bool{
	"the": true, "and": true, "for": true, "are": true, "was": true,
	"were": true, "with": true, "this": true, "that": true, "from": true,
	"have": true, "has": true, "had": true, "what": true, "how": true,
	"when": true, "where": true, "which": true, "who": true, "about": true,
	"into": true, "explain": true, "describe": true, "tell": true,
}
