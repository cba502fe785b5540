package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"parcelas/internal/batch"
	"parcelas/internal/core"
)

func testRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	repo, err := NewSQLiteRepository(filepath.Join(t.TempDir(), "parcelas.db"))
	if err != nil {
		t.Fatalf("open repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func TestCategoryRoundTrip(t *testing.T) {
	repo := testRepo(t)
	ctx := context.Background()

	c, err := repo.CreateCategory(ctx, "Utilities")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if c.ID == 0 {
		t.Fatalf("expected assigned id")
	}

	list, err := repo.ListCategories(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 1 || list[0].Name != "Utilities" {
		t.Fatalf("unexpected list: %+v", list)
	}

	if err := repo.DeleteCategory(ctx, c.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	list, err = repo.ListCategories(ctx)
	if err != nil {
		t.Fatalf("list after delete: %v", err)
	}
	if len(list) != 0 {
		t.Fatalf("expected empty list, got %+v", list)
	}
}

func TestEntryRoundTrip(t *testing.T) {
	repo := testRepo(t)
	ctx := context.Background()

	entry := core.PayableEntry{
		CreditorID:  1,
		CategoryID:  2,
		Description: "water bill",
		DueDate:     core.NewDate(2025, 7, 10),
		Amount:      core.Money{Cents: 8500},
		PaymentKind: core.BankSlip,
	}
	id, err := repo.CreateEntry(ctx, entry)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := repo.GetEntry(ctx, id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Description != "water bill" || got.Amount.Cents != 8500 {
		t.Fatalf("unexpected entry: %+v", got)
	}
	if !got.DueDate.Equal(core.NewDate(2025, 7, 10)) {
		t.Fatalf("unexpected due date: %v", got.DueDate.Time)
	}

	byMonth, err := repo.ListEntriesByMonth(ctx, 2025, 7)
	if err != nil {
		t.Fatalf("list by month: %v", err)
	}
	if len(byMonth) != 1 {
		t.Fatalf("expected 1 entry in july, got %d", len(byMonth))
	}
	byMonth, err = repo.ListEntriesByMonth(ctx, 2025, 8)
	if err != nil {
		t.Fatalf("list by month: %v", err)
	}
	if len(byMonth) != 0 {
		t.Fatalf("expected no entries in august, got %d", len(byMonth))
	}

	if _, err := repo.GetEntry(ctx, 9999); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestChequeIndexAndUniqueEnforcement(t *testing.T) {
	repo := testRepo(t)
	ctx := context.Background()

	cheque := core.PayableEntry{
		CreditorID:   1,
		CategoryID:   1,
		Description:  "supplier",
		DueDate:      core.NewDate(2025, 5, 1),
		Amount:       core.Money{Cents: 1000},
		PaymentKind:  core.Cheque,
		BankID:       3,
		ChequeNumber: "000100",
	}
	if _, err := repo.CreateEntry(ctx, cheque); err != nil {
		t.Fatalf("create: %v", err)
	}

	exists, err := repo.Exists(ctx, 3, "000100")
	if err != nil {
		t.Fatalf("exists: %v", err)
	}
	if !exists {
		t.Fatalf("expected cheque to exist")
	}
	exists, err = repo.Exists(ctx, 4, "000100")
	if err != nil {
		t.Fatalf("exists: %v", err)
	}
	if exists {
		t.Fatalf("same number under another bank must not collide")
	}

	// Second insert with the same (bank, number) is rejected by the index
	if _, err := repo.CreateEntry(ctx, cheque); err == nil {
		t.Fatalf("expected unique violation")
	}
}

func TestRecordCreatorStampsBatchID(t *testing.T) {
	repo := testRepo(t)
	ctx := context.Background()

	tpl := core.InstallmentTemplate{
		CreditorID:   1,
		CategoryID:   1,
		Description:  "lease",
		Amount:       core.Money{Cents: 2000},
		FirstDueDate: core.NewDate(2025, 9, 5),
		Count:        2,
		Interval:     core.Monthly,
		DDA:          true,
	}
	draft := core.InstallmentDraft{
		Sequence: 1,
		DueDate:  core.NewDate(2025, 9, 5),
		Amount:   core.Money{Cents: 2000},
		Status:   core.DraftCalculated,
	}

	creator := repo.RecordCreator("batch-abc")
	id, err := creator.CreateRecord(ctx, draft, tpl, core.PaymentMethod{Kind: core.CashOrPix})
	if err != nil {
		t.Fatalf("create record: %v", err)
	}

	got, err := repo.GetEntry(ctx, id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.BatchID != "batch-abc" {
		t.Fatalf("expected batch id stamped, got %q", got.BatchID)
	}
	if !got.DDA {
		t.Fatalf("expected DDA flag carried")
	}
	if got.Description != "lease (1/2)" {
		t.Fatalf("expected numbered description, got %q", got.Description)
	}

	entries, err := repo.ListEntriesByBatch(ctx, "batch-abc")
	if err != nil {
		t.Fatalf("list by batch: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
}

func TestSessionPersistence(t *testing.T) {
	repo := testRepo(t)
	ctx := context.Background()

	payload := []byte(`{"session_id":"s1"}`)
	if err := repo.SaveSession(ctx, "s1", payload); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := repo.LoadSession(ctx, "s1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if string(got) != string(payload) {
		t.Fatalf("expected %s, got %s", payload, got)
	}

	// Save replaces
	if err := repo.SaveSession(ctx, "s1", []byte(`{"session_id":"s1","v":2}`)); err != nil {
		t.Fatalf("re-save: %v", err)
	}
	got, err = repo.LoadSession(ctx, "s1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if string(got) != `{"session_id":"s1","v":2}` {
		t.Fatalf("expected replaced payload, got %s", got)
	}

	if err := repo.ClearSession(ctx, "s1"); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if _, err := repo.LoadSession(ctx, "s1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after clear, got %v", err)
	}
}

func TestBatchLifecycle(t *testing.T) {
	repo := testRepo(t)
	ctx := context.Background()

	if err := repo.CreateBatch(ctx, "b1", "s1", 3); err != nil {
		t.Fatalf("create batch: %v", err)
	}

	status, err := repo.GetBatchStatus(ctx, "b1")
	if err != nil {
		t.Fatalf("get status: %v", err)
	}
	if status.Status != "pending" || status.Total != 3 {
		t.Fatalf("unexpected status: %+v", status)
	}

	if err := repo.UpdateBatchProgress(ctx, "b1", 2); err != nil {
		t.Fatalf("progress: %v", err)
	}
	status, err = repo.GetBatchStatus(ctx, "b1")
	if err != nil {
		t.Fatalf("get status: %v", err)
	}
	if status.Status != "executing" || status.Completed != 2 {
		t.Fatalf("unexpected status: %+v", status)
	}
	if status.Result != nil {
		t.Fatalf("running batch must not expose a result")
	}

	result := batch.BatchResult{
		BatchID: "b1",
		Total:   3,
		Outcomes: []batch.ItemOutcome{
			{Sequence: 1, Created: true, RecordID: 11},
			{Sequence: 2, Created: false, Reason: "rejected"},
			{Sequence: 3, Created: true, RecordID: 13},
		},
		Status: batch.StatusPartiallyFailed,
	}
	if err := repo.FinishBatch(ctx, result); err != nil {
		t.Fatalf("finish: %v", err)
	}

	status, err = repo.GetBatchStatus(ctx, "b1")
	if err != nil {
		t.Fatalf("get status: %v", err)
	}
	if status.Status != string(batch.StatusPartiallyFailed) {
		t.Fatalf("unexpected final status: %+v", status)
	}
	if status.Result == nil || len(status.Result.Outcomes) != 3 {
		t.Fatalf("expected full result, got %+v", status.Result)
	}
	if status.Result.Outcomes[1].Reason != "rejected" {
		t.Fatalf("expected failure reason kept, got %+v", status.Result.Outcomes[1])
	}

	if _, err := repo.GetBatchStatus(ctx, "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
