package router

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/SuperInstance/tripartite/internal/store"
)

// Ledger is the local, durable UsageEvent record spec.md §4.5 requires
// ("Usage recording"), reusing internal/store's append-only table shape.
// Flush hands pending events to a caller-supplied FlushFunc and marks the
// accepted ones flushed; the rest stay pending for the next Flush. No code
// path in this repository calls Flush, so recorded events stay pending.
type Ledger struct {
	db *store.DB
}

// NewLedger wraps a storage backend as a UsageLedger.
func NewLedger(db *store.DB) *Ledger {
	return &Ledger{db: db}
}

// Record appends a UsageEvent atomically after a successful remote response.
func (l *Ledger) Record(requestID string, tokensIn, tokensOut int, costBasis float64) error {
	return l.db.InsertUsageEvent(store.UsageEvent{
		ID:        uuid.NewString(),
		RequestID: requestID,
		Timestamp: time.Now().Unix(),
		TokensIn:  tokensIn,
		TokensOut: tokensOut,
		CostBasis: costBasis,
	})
}

// FlushFunc delivers a batch of pending events to the remote peer, returning
// the subset that were accepted.
type FlushFunc func(events []store.UsageEvent) (accepted []string, err error)

// Flush attempts to deliver pending events via flush. Events accepted by the
// remote peer are marked flushed; the rest are retried on the next call.
func (l *Ledger) Flush(flush FlushFunc) error {
	pending, err := l.db.PendingUsageEvents()
	if err != nil {
		return fmt.Errorf("router: load pending usage events: %w", err)
	}
	if len(pending) == 0 {
		return nil
	}

	accepted, err := flush(pending)
	if err != nil {
		// Offline or unreachable: events are retained for the next attempt.
		return fmt.Errorf("%w: %v", ErrRemoteUnavailable, err)
	}
	if len(accepted) == 0 {
		return nil
	}
	return l.db.MarkUsageFlushed(accepted)
}

// Summary reports the ledger aggregate backing `cloud balance`.
func (l *Ledger) Summary() (store.LedgerAggregate, error) {
	return l.db.LedgerSummary()
}
