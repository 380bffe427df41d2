package data

import (
	"database/sql"
	"path/filepath"
	"testing"
	"time"
)

func setupTestDB(t *testing.T) {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.db")
	if err := InitDB(dbPath); err != nil {
		t.Fatalf("InitDB failed: %v", err)
	}
	if err := CreateTables(); err != nil {
		t.Fatalf("CreateTables failed: %v", err)
	}
	t.Cleanup(func() { CloseDB() })
}

func TestInsertAndFetchOrderRows(t *testing.T) {
	setupTestDB(t)

	rows := []OrderRow{
		{
			OrderNumber:      "SYP-20260827-AB12CD",
			SessionID:        "cs_test_123",
			ParentEmail:      "pat@example.com",
			StudentIndex:     1,
			StudentDisplay:   "Ada L.",
			First:            "Ada",
			Last:             "L.",
			Grade:            "3",
			Teacher:          "Smith",
			Background:       "F1",
			Package:          "A",
			PackageAndAddons: "A",
			AmountCents:      3200,
		},
		{
			OrderNumber:      "SYP-20260827-AB12CD",
			SessionID:        "cs_test_123",
			ParentEmail:      "pat@example.com",
			StudentIndex:     2,
			StudentDisplay:   "Bo K.",
			First:            "Bo",
			Last:             "K.",
			Package:          "E",
			Addons:           "F,G",
			PackageAndAddons: "E, F, G",
			AmountCents:      2400,
			ReceiptURL:       "https://pay.example.com/receipts/1",
		},
	}

	if err := InsertOrderRows(rows); err != nil {
		t.Fatalf("InsertOrderRows failed: %v", err)
	}

	got, err := GetOrderRowsBySession("cs_test_123")
	if err != nil {
		t.Fatalf("GetOrderRowsBySession failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(got))
	}
	if got[0].StudentDisplay != "Ada L." || got[0].AmountCents != 3200 {
		t.Errorf("unexpected first row: %+v", got[0])
	}
	if got[1].ReceiptURL != "https://pay.example.com/receipts/1" {
		t.Errorf("receipt URL not round-tripped: %+v", got[1])
	}
	if got[1].Currency != "usd" {
		t.Errorf("expected default currency usd, got %q", got[1].Currency)
	}
	if got[0].CreatedAt.IsZero() {
		t.Errorf("created_at not populated")
	}

	byNumber, err := GetOrderRowsByNumber("SYP-20260827-AB12CD")
	if err != nil {
		t.Fatalf("GetOrderRowsByNumber failed: %v", err)
	}
	if len(byNumber) != 2 {
		t.Errorf("expected 2 rows by number, got %d", len(byNumber))
	}

	missing, err := GetOrderRowsBySession("cs_missing")
	if err != nil {
		t.Fatalf("lookup of missing session failed: %v", err)
	}
	if len(missing) != 0 {
		t.Errorf("expected no rows for missing session, got %d", len(missing))
	}
}

func TestInsertOrderRowsEmpty(t *testing.T) {
	setupTestDB(t)

	if err := InsertOrderRows(nil); err == nil {
		t.Error("expected error for empty row set")
	}
}

func TestClaimSession(t *testing.T) {
	setupTestDB(t)

	claimed, err := ClaimSession("cs_test_abc", "evt_1")
	if err != nil {
		t.Fatalf("first claim failed: %v", err)
	}
	if !claimed {
		t.Fatal("first claim should succeed")
	}

	// Duplicate delivery of the same session must not claim again
	claimed, err = ClaimSession("cs_test_abc", "evt_2")
	if err != nil {
		t.Fatalf("second claim errored: %v", err)
	}
	if claimed {
		t.Error("duplicate claim should be refused")
	}

	processed, err := IsSessionProcessed("cs_test_abc")
	if err != nil {
		t.Fatalf("IsSessionProcessed failed: %v", err)
	}
	if !processed {
		t.Error("session should be marked processed")
	}

	if _, err := ClaimSession("", "evt"); err == nil {
		t.Error("expected error for empty session id")
	}
}

func TestReleaseSession(t *testing.T) {
	setupTestDB(t)

	if _, err := ClaimSession("cs_retry", "evt_1"); err != nil {
		t.Fatalf("claim failed: %v", err)
	}
	if err := ReleaseSession("cs_retry"); err != nil {
		t.Fatalf("release failed: %v", err)
	}

	claimed, err := ClaimSession("cs_retry", "evt_1_redelivery")
	if err != nil {
		t.Fatalf("reclaim failed: %v", err)
	}
	if !claimed {
		t.Error("released session should be claimable again")
	}
}

func TestPruneProcessedSessions(t *testing.T) {
	setupTestDB(t)

	old := formatTime(time.Now().Add(-100 * 24 * time.Hour))
	if _, err := ExecDB(`INSERT INTO processed_sessions (session_id, event_id, processed_at) VALUES (?, ?, ?)`,
		"cs_old", "evt_old", old); err != nil {
		t.Fatalf("seed old claim failed: %v", err)
	}
	if _, err := ClaimSession("cs_new", "evt_new"); err != nil {
		t.Fatalf("claim failed: %v", err)
	}

	pruned, err := PruneProcessedSessions(90 * 24 * time.Hour)
	if err != nil {
		t.Fatalf("prune failed: %v", err)
	}
	if pruned != 1 {
		t.Errorf("expected 1 pruned claim, got %d", pruned)
	}

	remains, err := IsSessionProcessed("cs_new")
	if err != nil || !remains {
		t.Errorf("recent claim should survive prune (err=%v)", err)
	}
}

func TestStudentMetaUpsert(t *testing.T) {
	setupTestDB(t)

	if _, err := GetStudentByCode("ABC234"); err != sql.ErrNoRows {
		t.Fatalf("expected ErrNoRows for missing student, got %v", err)
	}

	label := "Avery T."
	event := "Fall 2026"
	keys := []string{"galleries/ABC234/Avery_preview.jpg"}
	err := UpsertStudentMeta("ABC234", StudentMetaUpdate{
		StudentLabel: &label,
		EventLabel:   &event,
		PreviewKeys:  &keys,
	})
	if err != nil {
		t.Fatalf("upsert failed: %v", err)
	}

	rec, err := GetStudentByCode("ABC234")
	if err != nil {
		t.Fatalf("fetch failed: %v", err)
	}
	if rec.StudentLabel != "Avery T." || rec.EventLabel != "Fall 2026" {
		t.Errorf("unexpected record: %+v", rec)
	}
	if len(rec.PreviewKeys) != 1 {
		t.Errorf("preview keys not stored: %+v", rec.PreviewKeys)
	}

	// Partial update must leave other fields intact
	grade := "4"
	if err := UpsertStudentMeta("ABC234", StudentMetaUpdate{Grade: &grade}); err != nil {
		t.Fatalf("partial upsert failed: %v", err)
	}
	rec, err = GetStudentByCode("ABC234")
	if err != nil {
		t.Fatalf("refetch failed: %v", err)
	}
	if rec.Grade != "4" {
		t.Errorf("grade not updated: %+v", rec)
	}
	if rec.StudentLabel != "Avery T." {
		t.Errorf("label clobbered by partial update: %+v", rec)
	}
	if rec.UpdatedAt.IsZero() {
		t.Errorf("updated_at not populated")
	}
}

func TestQueryRowDBWithoutPool(t *testing.T) {
	// No setupTestDB here: the pool is intentionally uninitialized.
	CloseDB()

	if _, err := QueryRowDB(`SELECT 1`); err == nil {
		t.Fatal("expected error from uninitialized pool")
	}
	if _, err := IsSessionProcessed("cs_test_nopool"); err == nil {
		t.Fatal("expected IsSessionProcessed to surface the pool error")
	}
}

func TestQueryRowDBScanAfterReturn(t *testing.T) {
	setupTestDB(t)

	row, err := QueryRowDB(`SELECT COUNT(*) FROM processed_sessions`)
	if err != nil {
		t.Fatalf("QueryRowDB failed: %v", err)
	}
	var count int
	if err := row.Scan(&count); err != nil {
		t.Fatalf("Scan after return failed: %v", err)
	}
	if count != 0 {
		t.Errorf("expected empty table, got %d", count)
	}
}
