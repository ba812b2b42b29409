package store

import "fmt"

// UsageEvent mirrors spec.md §4.5's UsageEvent record, persisted to the
// append-only usage_ledger table (§6). Grounded on the teacher's
// InsertUsage/context_usage append-only pattern in the old usage.go.
type UsageEvent struct {
	ID        string
	RequestID string
	Timestamp int64
	TokensIn  int
	TokensOut int
	CostBasis float64
	Flushed   bool
}

// InsertUsageEvent appends a usage event to the ledger.
func (db *DB) InsertUsageEvent(e UsageEvent) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	flushed := 0
	if e.Flushed {
		flushed = 1
	}
	_, err := db.conn.Exec(
		`INSERT INTO usage_ledger (id, request_id, timestamp, tokens_in, tokens_out, cost_basis, flushed)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.RequestID, e.Timestamp, e.TokensIn, e.TokensOut, e.CostBasis, flushed,
	)
	if err != nil {
		return fmt.Errorf("insert usage event: %w", err)
	}
	return nil
}

// PendingUsageEvents returns events not yet flushed to the remote peer,
// oldest first; router.Ledger.Flush delivers them.
func (db *DB) PendingUsageEvents() ([]UsageEvent, error) {
	rows, err := db.conn.Query(
		`SELECT id, request_id, timestamp, tokens_in, tokens_out, cost_basis, flushed
		 FROM usage_ledger WHERE flushed = 0 ORDER BY timestamp ASC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanUsageEvents(rows)
}

// MarkUsageFlushed marks a set of ledger entries as successfully flushed.
func (db *DB) MarkUsageFlushed(ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	db.mu.Lock()
	defer db.mu.Unlock()
	tx, err := db.conn.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()
	for _, id := range ids {
		if _, err := tx.Exec(`UPDATE usage_ledger SET flushed = 1 WHERE id = ?`, id); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// LedgerAggregate summarizes the ledger for `cloud balance`.
type LedgerAggregate struct {
	TotalEvents    int
	TotalTokensIn  int
	TotalTokensOut int
	TotalCost      float64
	PendingFlush   int
}

// LedgerSummary computes aggregate totals over the usage ledger.
func (db *DB) LedgerSummary() (LedgerAggregate, error) {
	var a LedgerAggregate
	err := db.conn.QueryRow(
		`SELECT COUNT(1), COALESCE(SUM(tokens_in),0), COALESCE(SUM(tokens_out),0), COALESCE(SUM(cost_basis),0)
		 FROM usage_ledger`,
	).Scan(&a.TotalEvents, &a.TotalTokensIn, &a.TotalTokensOut, &a.TotalCost)
	if err != nil {
		return a, err
	}
	err = db.conn.QueryRow(`SELECT COUNT(1) FROM usage_ledger WHERE flushed = 0`).Scan(&a.PendingFlush)
	return a, err
}

func scanUsageEvents(rows interface {
	Next() bool
	Scan(dest ...interface{}) error
	Err() error
}) ([]UsageEvent, error) {
	var events []UsageEvent
	for rows.Next() {
		var e UsageEvent
		var flushed int
		if err := rows.Scan(&e.ID, &e.RequestID, &e.Timestamp, &e.TokensIn, &e.TokensOut, &e.CostBasis, &flushed); err != nil {
			return nil, err
		}
		e.Flushed = flushed != 0
		events = append(events, e)
	}
	return events, rows.Err()
}
