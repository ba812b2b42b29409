package store

import "testing"

func TestOpenMemoryMigrates(t *testing.T) {
	db, err := OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	defer db.Close()

	if v := db.SchemaVersion(); v != 2 {
		t.Fatalf("SchemaVersion() = %d, want 2", v)
	}
	if err := db.IntegrityCheck(); err != nil {
		t.Fatalf("IntegrityCheck: %v", err)
	}
}

func TestDocumentIdempotentInsert(t *testing.T) {
	db, err := OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	defer db.Close()

	if err := db.InsertDocument("hash1", "a.md", "md", 10, 100, 100); err != nil {
		t.Fatalf("InsertDocument: %v", err)
	}
	if err := db.InsertDocument("hash1", "a.md", "md", 10, 100, 200); err != nil {
		t.Fatalf("InsertDocument (repeat): %v", err)
	}

	stats, err := db.Stats()
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.DocumentCount != 1 {
		t.Fatalf("DocumentCount = %d, want 1", stats.DocumentCount)
	}
}

func TestVaultCounterMonotonic(t *testing.T) {
	db, err := OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	defer db.Close()

	n1, err := db.NextCounter("s1", "EMAIL")
	if err != nil {
		t.Fatalf("NextCounter: %v", err)
	}
	n2, err := db.NextCounter("s1", "EMAIL")
	if err != nil {
		t.Fatalf("NextCounter: %v", err)
	}
	if n1 != 1 || n2 != 2 {
		t.Fatalf("counters = %d, %d, want 1, 2", n1, n2)
	}

	if err := db.InsertVaultEntry(VaultEntry{Token: "[EMAIL_0001]", SessionID: "s1", Category: "EMAIL", Original: "a@b.co", CreatedAt: 1}); err != nil {
		t.Fatalf("InsertVaultEntry: %v", err)
	}
	orig, ok, err := db.LookupVaultByToken("s1", "[EMAIL_0001]")
	if err != nil || !ok || orig != "a@b.co" {
		t.Fatalf("LookupVaultByToken = %q, %v, %v", orig, ok, err)
	}

	if err := db.CleanupSession("s1"); err != nil {
		t.Fatalf("CleanupSession: %v", err)
	}
	_, ok, _ = db.LookupVaultByToken("s1", "[EMAIL_0001]")
	if ok {
		t.Fatal("expected vault entry removed after CleanupSession")
	}

	// Counters reset on full-session cleanup.
	n3, err := db.NextCounter("s1", "EMAIL")
	if err != nil {
		t.Fatalf("NextCounter after cleanup: %v", err)
	}
	if n3 != 1 {
		t.Fatalf("counter after cleanup = %d, want 1", n3)
	}
}

func TestUsageLedgerFlush(t *testing.T) {
	db, err := OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	defer db.Close()

	if err := db.InsertUsageEvent(UsageEvent{ID: "u1", RequestID: "r1", Timestamp: 1, TokensIn: 10, TokensOut: 20, CostBasis: 0.01}); err != nil {
		t.Fatalf("InsertUsageEvent: %v", err)
	}

	pending, err := db.PendingUsageEvents()
	if err != nil || len(pending) != 1 {
		t.Fatalf("PendingUsageEvents = %v, %v, want 1 entry", pending, err)
	}

	if err := db.MarkUsageFlushed([]string{"u1"}); err != nil {
		t.Fatalf("MarkUsageFlushed: %v", err)
	}
	pending, err = db.PendingUsageEvents()
	if err != nil || len(pending) != 0 {
		t.Fatalf("PendingUsageEvents after flush = %v, %v, want 0", pending, err)
	}

	summary, err := db.LedgerSummary()
	if err != nil {
		t.Fatalf("LedgerSummary: %v", err)
	}
	if summary.TotalEvents != 1 || summary.TotalTokensIn != 10 {
		t.Fatalf("summary = %+v, unexpected", summary)
	}
}
