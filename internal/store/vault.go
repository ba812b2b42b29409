package store

import (
	"database/sql"
	"fmt"
)

// VaultEntry mirrors spec.md §3's VaultEntry: a durable token <-> original
// value mapping, scoped to a session and redaction category.
type VaultEntry struct {
	Token     string
	SessionID string
	Category  string
	Original  string
	CreatedAt int64
}

// LookupVaultByOriginal finds the existing token for a (session, original)
// pair, if one was already allocated — grounds redact's "reuse existing
// token" requirement (P3).
func (db *DB) LookupVaultByOriginal(sessionID, original string) (string, bool, error) {
	var token string
	err := db.conn.QueryRow(
		`SELECT token FROM vault_entries WHERE session_id = ? AND original = ?`,
		sessionID, original,
	).Scan(&token)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return token, true, nil
}

// LookupVaultByToken resolves a token back to its original value within a
// session — grounds reinflate.
func (db *DB) LookupVaultByToken(sessionID, token string) (string, bool, error) {
	var original string
	err := db.conn.QueryRow(
		`SELECT original FROM vault_entries WHERE session_id = ? AND token = ?`,
		sessionID, token,
	).Scan(&original)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return original, true, nil
}

// NextCounter atomically allocates and returns the next integer for a
// (session_id, category) pair. Counters are monotonic and never decrement,
// even across cleanup of individual entries (spec.md §4.1).
func (db *DB) NextCounter(sessionID, category string) (int, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	tx, err := db.conn.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	var next int
	err = tx.QueryRow(
		`INSERT INTO vault_counters (session_id, category, next_value) VALUES (?, ?, 2)
		 ON CONFLICT(session_id, category) DO UPDATE SET next_value = next_value + 1
		 RETURNING next_value - 1`,
		sessionID, category,
	).Scan(&next)
	if err != nil {
		return 0, fmt.Errorf("allocate counter: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return next, nil
}

// InsertVaultEntry persists a newly allocated token/original pair.
func (db *DB) InsertVaultEntry(e VaultEntry) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	_, err := db.conn.Exec(
		`INSERT INTO vault_entries (token, session_id, category, original, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		e.Token, e.SessionID, e.Category, e.Original, e.CreatedAt,
	)
	return err
}

// CleanupSession removes all vault entries and resets the per-category
// counters for a session. Counters never decrement on cleanup of individual
// entries, but a full session cleanup resets them — the next redact() in a
// reused session id starts its categories back at 0001.
func (db *DB) CleanupSession(sessionID string) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	_, err := db.conn.Exec(`DELETE FROM vault_entries WHERE session_id = ?`, sessionID)
	if err != nil {
		return err
	}
	_, err = db.conn.Exec(`DELETE FROM vault_counters WHERE session_id = ?`, sessionID)
	return err
}
