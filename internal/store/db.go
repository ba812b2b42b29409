// Package store provides the SQLite + sqlite-vec storage layer shared by the
// Knowledge Vault, the Token Vault, and the Router's usage ledger.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/SuperInstance/tripartite/internal/config"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"
)

func init() {
	sqlite_vec.Auto()
}

// DB wraps a SQLite connection with sqlite-vec support. All mutating
// operations (across chunks, vault entries, and the usage ledger) serialize
// through mu, matching the teacher's single-writer discipline; reads may run
// concurrently against the underlying *sql.DB.
type DB struct {
	conn         *sql.DB
	mu           sync.Mutex
	ftsAvailable bool
}

// Open opens or creates the database at the configured path, sizing the
// chunk_vec vector column to the configured embedding provider's dimensions.
func Open() (*DB, error) {
	return OpenPath(config.DBPath())
}

// OpenPath opens or creates the database at the given path. The chunk_vec
// vector column is sized from config.EmbeddingDim(), matching whichever
// embedding provider the rest of the process is configured to use.
func OpenPath(path string) (*DB, error) {
	return OpenPathWithDims(path, config.EmbeddingDim())
}

// OpenPathWithDims opens or creates the database at the given path with an
// explicit embedding dimension, for callers (tests, alternate providers)
// wiring a vault to an embedder whose Dimensions() doesn't match the
// process-wide config.EmbeddingDim() default.
func OpenPathWithDims(path string, dims int) (*DB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	conn, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	var vecVersion string
	if err := conn.QueryRow("SELECT vec_version()").Scan(&vecVersion); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite-vec not available: %w", err)
	}

	db := &DB{conn: conn}
	if err := db.migrate(dims); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return db, nil
}

// OpenMemory opens an in-memory database for testing, sized to the
// configured embedding provider's dimensions.
func OpenMemory() (*DB, error) {
	return OpenMemoryWithDims(config.EmbeddingDim())
}

// OpenMemoryWithDims opens an in-memory database with chunk_vec sized to
// dims, for tests that wire a vault to a fixture embedder whose Dimensions()
// doesn't match config.EmbeddingDim().
func OpenMemoryWithDims(dims int) (*DB, error) {
	conn, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		return nil, err
	}

	db := &DB{conn: conn}
	if err := db.migrate(dims); err != nil {
		conn.Close()
		return nil, err
	}
	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Conn returns the underlying sql.DB for direct queries.
func (db *DB) Conn() *sql.DB {
	return db.conn
}

// SessionStateGet retrieves a value from session_state by session ID and key.
func (db *DB) SessionStateGet(sessionID, key string) (string, bool) {
	var value string
	err := db.conn.QueryRow(
		`SELECT value FROM session_state WHERE session_id = ? AND key = ?`,
		sessionID, key,
	).Scan(&value)
	if err != nil {
		return "", false
	}
	return value, true
}

// SessionStateSet upserts a value in session_state.
func (db *DB) SessionStateSet(sessionID, key, value string) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	_, err := db.conn.Exec(
		`INSERT INTO session_state (session_id, key, value, updated_at)
		 VALUES (?, ?, ?, unixepoch())
		 ON CONFLICT(session_id, key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		sessionID, key, value,
	)
	return err
}

// SessionStateCleanup removes session_state rows older than maxAge seconds.
func (db *DB) SessionStateCleanup(maxAgeSeconds int64) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	_, err := db.conn.Exec(
		`DELETE FROM session_state WHERE updated_at < unixepoch() - ?`,
		maxAgeSeconds,
	)
	return err
}

func (db *DB) migrate(dims int) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS schema_meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`,

		// Knowledge Vault: documents keyed by content hash (spec.md §3 Document).
		`CREATE TABLE IF NOT EXISTS documents (
			id TEXT PRIMARY KEY,
			path TEXT NOT NULL,
			kind TEXT NOT NULL DEFAULT 'txt',
			size INTEGER NOT NULL DEFAULT 0,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_documents_path ON documents(path)`,

		`CREATE TABLE IF NOT EXISTS chunks (
			id TEXT PRIMARY KEY,
			document_id TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
			ord INTEGER NOT NULL,
			content TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_chunks_document_ord ON chunks(document_id, ord)`,

		fmt.Sprintf(`CREATE VIRTUAL TABLE IF NOT EXISTS chunk_vec USING vec0(
			chunk_rowid INTEGER PRIMARY KEY,
			embedding float[%d]
		)`, dims),
		// sqlite-vec's vec0 tables key on an integer rowid, not chunks.id (TEXT).
		// This side table maps the two so search can join back to chunk content.
		`CREATE TABLE IF NOT EXISTS chunk_vec_map (
			chunk_rowid INTEGER PRIMARY KEY AUTOINCREMENT,
			chunk_id TEXT NOT NULL UNIQUE REFERENCES chunks(id) ON DELETE CASCADE
		)`,

		// Privacy Proxy: Token Vault (spec.md §3 VaultEntry, §6 persisted layout).
		`CREATE TABLE IF NOT EXISTS vault_entries (
			token TEXT NOT NULL,
			session_id TEXT NOT NULL,
			category TEXT NOT NULL,
			original TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			PRIMARY KEY (session_id, token),
			UNIQUE (session_id, original)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_vault_entries_session_category ON vault_entries(session_id, category)`,

		// Per-(session, category) monotonic counters backing token allocation.
		`CREATE TABLE IF NOT EXISTS vault_counters (
			session_id TEXT NOT NULL,
			category TEXT NOT NULL,
			next_value INTEGER NOT NULL DEFAULT 1,
			PRIMARY KEY (session_id, category)
		)`,

		// Escalation Router: append-only usage ledger (spec.md §6).
		`CREATE TABLE IF NOT EXISTS usage_ledger (
			id TEXT PRIMARY KEY,
			request_id TEXT NOT NULL,
			timestamp INTEGER NOT NULL,
			tokens_in INTEGER NOT NULL DEFAULT 0,
			tokens_out INTEGER NOT NULL DEFAULT 0,
			cost_basis REAL NOT NULL DEFAULT 0,
			flushed INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_usage_ledger_timestamp ON usage_ledger(timestamp)`,
		`CREATE INDEX IF NOT EXISTS idx_usage_ledger_flushed ON usage_ledger(flushed)`,

		`CREATE TABLE IF NOT EXISTS session_state (
			session_id TEXT NOT NULL,
			key TEXT NOT NULL,
			value TEXT NOT NULL DEFAULT '',
			updated_at INTEGER NOT NULL,
			PRIMARY KEY (session_id, key)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_session_state_updated ON session_state(updated_at)`,
	}

	for _, m := range migrations {
		if _, err := db.conn.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w\nSQL: %s", err, m)
		}
	}

	currentVersion := db.SchemaVersion()
	versionedMigrations := []struct {
		version int
		fn      func() error
	}{
		{1, db.migrateV1}, // establishes version tracking baseline
		{2, db.migrateV2}, // FTS5 full-text search over chunk content
	}
	for _, m := range versionedMigrations {
		if currentVersion < m.version {
			if err := m.fn(); err != nil {
				return fmt.Errorf("migration v%d: %w", m.version, err)
			}
			if err := db.SetMeta("schema_version", strconv.Itoa(m.version)); err != nil {
				return fmt.Errorf("record migration v%d: %w", m.version, err)
			}
		}
	}

	return nil
}

// migrateV1 is a no-op that establishes version 1 as the baseline.
func (db *DB) migrateV1() error {
	return nil
}

// migrateV2 creates an FTS5 virtual table over chunk content. FTS5 may not
// be available on all SQLite builds; migration is best-effort and failure is
// non-fatal. KeywordSearch matches with LIKE and does not query this table.
func (db *DB) migrateV2() error {
	_, err := db.conn.Exec(`CREATE VIRTUAL TABLE IF NOT EXISTS chunks_fts USING fts5(
		content,
		content=chunks, content_rowid=rowid
	)`)
	if err != nil {
		db.ftsAvailable = false
		return nil
	}
	db.ftsAvailable = true
	_, _ = db.conn.Exec(`INSERT INTO chunks_fts(chunks_fts) VALUES('rebuild')`)
	return nil
}

// SchemaVersion returns the current schema version (0 if unset).
func (db *DB) SchemaVersion() int {
	v, ok := db.GetMeta("schema_version")
	if !ok {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return n
}

// GetMeta reads a value from the schema_meta table. Returns ("", false) if not found.
func (db *DB) GetMeta(key string) (string, bool) {
	var value string
	err := db.conn.QueryRow(`SELECT value FROM schema_meta WHERE key = ?`, key).Scan(&value)
	if err != nil {
		return "", false
	}
	return value, true
}

// SetMeta writes a key-value pair to the schema_meta table.
func (db *DB) SetMeta(key, value string) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	_, err := db.conn.Exec(
		`INSERT INTO schema_meta (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, value,
	)
	return err
}

// SetEmbeddingMeta records the current embedding provider, model, and dimensions.
// Called after a successful add_document/reindex to track what was used.
func (db *DB) SetEmbeddingMeta(provider, model string, dims int) error {
	if err := db.SetMeta("embed_provider", provider); err != nil {
		return err
	}
	if err := db.SetMeta("embed_model", model); err != nil {
		return err
	}
	return db.SetMeta("embed_dims", strconv.Itoa(dims))
}

// CheckEmbeddingMeta compares the given embedding config against what was used
// previously. Returns Knowledge::DimensionMismatch-shaped error if the stored
// dimension differs; nil if no stored metadata exists yet.
func (db *DB) CheckEmbeddingMeta(provider, model string, dims int) error {
	storedProvider, hasProvider := db.GetMeta("embed_provider")
	storedModel, hasModel := db.GetMeta("embed_model")
	storedDimsStr, hasDims := db.GetMeta("embed_dims")

	if !hasProvider && !hasModel && !hasDims {
		return nil
	}

	storedDims, _ := strconv.Atoi(storedDimsStr)

	if hasDims && dims > 0 && storedDims > 0 && storedDims != dims {
		return fmt.Errorf("%w: expected %d, found %d", ErrDimensionMismatch, storedDims, dims)
	}

	if hasProvider && hasModel && (storedProvider != provider || storedModel != model) {
		return fmt.Errorf("embedding model changed from %s/%s to %s/%s",
			storedProvider, storedModel, provider, model)
	}

	return nil
}

// ErrDimensionMismatch is the sentinel behind Knowledge::DimensionMismatch.
var ErrDimensionMismatch = fmt.Errorf("embedding dimensions changed")

// FTSAvailable returns true if the FTS5 module is available.
func (db *DB) FTSAvailable() bool {
	return db.ftsAvailable
}

// RebuildFTS rebuilds the FTS5 index from the chunks table. No-op if FTS5 is unavailable.
func (db *DB) RebuildFTS() error {
	if !db.ftsAvailable {
		return nil
	}
	_, err := db.conn.Exec(`INSERT INTO chunks_fts(chunks_fts) VALUES('rebuild')`)
	return err
}

// IntegrityCheck runs SQLite PRAGMA integrity_check and returns an error if corruption is detected.
func (db *DB) IntegrityCheck() error {
	var result string
	err := db.conn.QueryRow("PRAGMA integrity_check").Scan(&result)
	if err != nil {
		return fmt.Errorf("integrity check query failed: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("integrity check failed: %s", result)
	}
	return nil
}
