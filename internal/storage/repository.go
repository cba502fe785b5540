package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"parcelas/internal/batch"
	"parcelas/internal/core"

	_ "modernc.org/sqlite"
)

const dateLayout = "2006-01-02"

var (
	ErrNotFound        = errors.New("not found")
	ErrDuplicateCheque = errors.New("cheque number already used")
)

type SQLiteRepository struct {
	db      *sql.DB
	queries *Queries
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{
		db:      db,
		queries: New(db),
	}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// RecordCreator returns a batch.RecordCreator that stamps every created
// entry with the given batch ID.
func (r *SQLiteRepository) RecordCreator(batchID string) batch.RecordCreator {
	return &batchRecordCreator{repo: r, batchID: batchID}
}

type batchRecordCreator struct {
	repo    *SQLiteRepository
	batchID string
}

// CreateRecord implements batch.RecordCreator. The unique cheque index is
// the final authority on cheque sequencing: a number taken by a concurrent
// writer since validation fails here as a per-item outcome.
func (c *batchRecordCreator) CreateRecord(ctx context.Context, draft core.InstallmentDraft, tpl core.InstallmentTemplate, method core.PaymentMethod) (int64, error) {
	r := c.repo
	params := CreatePayableEntryParams{
		CreditorID:   tpl.CreditorID,
		CategoryID:   tpl.CategoryID,
		Description:  fmt.Sprintf("%s (%d/%d)", tpl.Description, draft.Sequence, tpl.Count),
		DocumentRef:  tpl.DocumentRef,
		DueDate:      draft.DueDate.Format(dateLayout),
		AmountCents:  draft.Amount.Cents,
		Dda:          boolToInt(tpl.DDA),
		PaymentKind:  string(method.Kind),
		BankID:       method.BankID,
		ChequeNumber: draft.ChequeNumber,
		BatchID:      c.batchID,
	}
	if !tpl.EmissionDate.IsZero() {
		params.EmissionDate = tpl.EmissionDate.Format(dateLayout)
	}

	id, err := r.queries.CreatePayableEntry(ctx, params)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, fmt.Errorf("cheque %s for bank %d: %w", draft.ChequeNumber, method.BankID, ErrDuplicateCheque)
		}
		return 0, fmt.Errorf("create payable entry: %w", err)
	}

	slog.InfoContext(ctx, "Payable entry saved",
		"id", id,
		"sequence", draft.Sequence,
		"due_date", params.DueDate,
		"amount_cents", params.AmountCents)

	return id, nil
}

// Exists implements batch.ChequeIndex.
func (r *SQLiteRepository) Exists(ctx context.Context, bankID int64, chequeNumber string) (bool, error) {
	ok, err := r.queries.ChequeExists(ctx, bankID, chequeNumber)
	if err != nil {
		return false, fmt.Errorf("cheque exists: %w", err)
	}
	return ok, nil
}

// SaveSession implements batch.DraftRepository.
func (r *SQLiteRepository) SaveSession(ctx context.Context, sessionID string, payload []byte) error {
	if err := r.queries.SaveSession(ctx, sessionID, string(payload)); err != nil {
		return fmt.Errorf("save session %s: %w", sessionID, err)
	}
	return nil
}

// LoadSession implements batch.DraftRepository.
func (r *SQLiteRepository) LoadSession(ctx context.Context, sessionID string) ([]byte, error) {
	payload, err := r.queries.LoadSession(ctx, sessionID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("session %s: %w", sessionID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load session %s: %w", sessionID, err)
	}
	return []byte(payload), nil
}

// ClearSession implements batch.DraftRepository.
func (r *SQLiteRepository) ClearSession(ctx context.Context, sessionID string) error {
	if err := r.queries.ClearSession(ctx, sessionID); err != nil {
		return fmt.Errorf("clear session %s: %w", sessionID, err)
	}
	return nil
}

func (r *SQLiteRepository) CreateBatch(ctx context.Context, batchID, sessionID string, total int) error {
	if err := r.queries.CreateBatch(ctx, batchID, sessionID, int64(total)); err != nil {
		return fmt.Errorf("create batch %s: %w", batchID, err)
	}
	return nil
}

func (r *SQLiteRepository) UpdateBatchProgress(ctx context.Context, batchID string, completed int) error {
	if err := r.queries.UpdateBatchProgress(ctx, batchID, int64(completed)); err != nil {
		return fmt.Errorf("update batch progress %s: %w", batchID, err)
	}
	return nil
}

// FinishBatch stores the terminal result: per-item outcomes plus final status.
func (r *SQLiteRepository) FinishBatch(ctx context.Context, result batch.BatchResult) error {
	for _, o := range result.Outcomes {
		row := BatchOutcomeRow{
			BatchID:  result.BatchID,
			Sequence: int64(o.Sequence),
			Created:  boolToInt(o.Created),
			RecordID: o.RecordID,
			Reason:   o.Reason,
		}
		if err := r.queries.InsertBatchOutcome(ctx, row); err != nil {
			return fmt.Errorf("insert outcome %d for batch %s: %w", o.Sequence, result.BatchID, err)
		}
	}
	if err := r.queries.FinishBatch(ctx, result.BatchID, string(result.Status), int64(len(result.Outcomes))); err != nil {
		return fmt.Errorf("finish batch %s: %w", result.BatchID, err)
	}
	return nil
}

// BatchStatus is the polled view of a batch: status, progress and, once
// finished, the full result.
type BatchStatus struct {
	BatchID   string             `json:"batch_id"`
	SessionID string             `json:"session_id"`
	Total     int                `json:"total"`
	Completed int                `json:"completed"`
	Status    string             `json:"status"`
	Result    *batch.BatchResult `json:"result,omitempty"`
}

func (r *SQLiteRepository) GetBatchStatus(ctx context.Context, batchID string) (BatchStatus, error) {
	row, err := r.queries.GetBatch(ctx, batchID)
	if errors.Is(err, sql.ErrNoRows) {
		return BatchStatus{}, fmt.Errorf("batch %s: %w", batchID, ErrNotFound)
	}
	if err != nil {
		return BatchStatus{}, fmt.Errorf("get batch %s: %w", batchID, err)
	}

	status := BatchStatus{
		BatchID:   row.ID,
		SessionID: row.SessionID,
		Total:     int(row.Total),
		Completed: int(row.Completed),
		Status:    row.Status,
	}

	switch row.Status {
	case "pending", "executing":
		return status, nil
	}

	outcomes, err := r.queries.ListBatchOutcomes(ctx, batchID)
	if err != nil {
		return BatchStatus{}, fmt.Errorf("list outcomes for batch %s: %w", batchID, err)
	}
	result := batch.BatchResult{
		BatchID:  row.ID,
		Total:    int(row.Total),
		Outcomes: make([]batch.ItemOutcome, 0, len(outcomes)),
		Status:   batch.BatchStatus(row.Status),
	}
	for _, o := range outcomes {
		result.Outcomes = append(result.Outcomes, batch.ItemOutcome{
			Sequence: int(o.Sequence),
			Created:  o.Created != 0,
			RecordID: o.RecordID,
			Reason:   o.Reason,
		})
	}
	status.Result = &result
	return status, nil
}

func (r *SQLiteRepository) CreateCategory(ctx context.Context, name string) (Category, error) {
	c, err := r.queries.CreateCategory(ctx, name)
	if err != nil {
		return Category{}, fmt.Errorf("create category: %w", err)
	}
	return c, nil
}

func (r *SQLiteRepository) ListCategories(ctx context.Context) ([]Category, error) {
	out, err := r.queries.ListCategories(ctx)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	return out, nil
}

func (r *SQLiteRepository) DeleteCategory(ctx context.Context, id int64) error {
	if err := r.queries.DeleteCategory(ctx, id); err != nil {
		return fmt.Errorf("delete category %d: %w", id, err)
	}
	return nil
}

func (r *SQLiteRepository) CreateContact(ctx context.Context, name, document string) (Contact, error) {
	c, err := r.queries.CreateContact(ctx, name, document)
	if err != nil {
		return Contact{}, fmt.Errorf("create contact: %w", err)
	}
	return c, nil
}

func (r *SQLiteRepository) ListContacts(ctx context.Context) ([]Contact, error) {
	out, err := r.queries.ListContacts(ctx)
	if err != nil {
		return nil, fmt.Errorf("list contacts: %w", err)
	}
	return out, nil
}

func (r *SQLiteRepository) DeleteContact(ctx context.Context, id int64) error {
	if err := r.queries.DeleteContact(ctx, id); err != nil {
		return fmt.Errorf("delete contact %d: %w", id, err)
	}
	return nil
}

func (r *SQLiteRepository) CreateBank(ctx context.Context, name, code string) (Bank, error) {
	b, err := r.queries.CreateBank(ctx, name, code)
	if err != nil {
		return Bank{}, fmt.Errorf("create bank: %w", err)
	}
	return b, nil
}

func (r *SQLiteRepository) ListBanks(ctx context.Context) ([]Bank, error) {
	out, err := r.queries.ListBanks(ctx)
	if err != nil {
		return nil, fmt.Errorf("list banks: %w", err)
	}
	return out, nil
}

func (r *SQLiteRepository) DeleteBank(ctx context.Context, id int64) error {
	if err := r.queries.DeleteBank(ctx, id); err != nil {
		return fmt.Errorf("delete bank %d: %w", id, err)
	}
	return nil
}

// CreateEntry persists a single manually created payable entry.
func (r *SQLiteRepository) CreateEntry(ctx context.Context, e core.PayableEntry) (int64, error) {
	if err := e.Validate(); err != nil {
		return 0, err
	}
	params := CreatePayableEntryParams{
		CreditorID:   e.CreditorID,
		CategoryID:   e.CategoryID,
		Description:  e.Description,
		DocumentRef:  e.DocumentRef,
		DueDate:      e.DueDate.Format(dateLayout),
		AmountCents:  e.Amount.Cents,
		Dda:          boolToInt(e.DDA),
		PaymentKind:  string(e.PaymentKind),
		BankID:       e.BankID,
		ChequeNumber: e.ChequeNumber,
		BatchID:      e.BatchID,
	}
	if !e.EmissionDate.IsZero() {
		params.EmissionDate = e.EmissionDate.Format(dateLayout)
	}
	id, err := r.queries.CreatePayableEntry(ctx, params)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, fmt.Errorf("cheque %s for bank %d: %w", e.ChequeNumber, e.BankID, ErrDuplicateCheque)
		}
		return 0, fmt.Errorf("create payable entry: %w", err)
	}
	return id, nil
}

func (r *SQLiteRepository) GetEntry(ctx context.Context, id int64) (core.PayableEntry, error) {
	row, err := r.queries.GetPayableEntry(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return core.PayableEntry{}, fmt.Errorf("entry %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return core.PayableEntry{}, fmt.Errorf("get entry %d: %w", id, err)
	}
	return entryFromRow(row)
}

// ListEntriesByMonth returns entries due within the given month.
func (r *SQLiteRepository) ListEntriesByMonth(ctx context.Context, year, month int) ([]core.PayableEntry, error) {
	from := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 1, 0)
	rows, err := r.queries.ListPayableEntriesByDueRange(ctx, from.Format(dateLayout), to.Format(dateLayout))
	if err != nil {
		return nil, fmt.Errorf("list entries for %d-%02d: %w", year, month, err)
	}
	return entriesFromRows(rows)
}

// ListEntriesByBatch returns the entries created by one batch execution.
func (r *SQLiteRepository) ListEntriesByBatch(ctx context.Context, batchID string) ([]core.PayableEntry, error) {
	rows, err := r.queries.ListPayableEntriesByBatch(ctx, batchID)
	if err != nil {
		return nil, fmt.Errorf("list entries for batch %s: %w", batchID, err)
	}
	return entriesFromRows(rows)
}

func (r *SQLiteRepository) DeleteEntry(ctx context.Context, id int64) error {
	if err := r.queries.DeletePayableEntry(ctx, id); err != nil {
		return fmt.Errorf("delete entry %d: %w", id, err)
	}
	return nil
}

func entriesFromRows(rows []PayableEntryRow) ([]core.PayableEntry, error) {
	out := make([]core.PayableEntry, 0, len(rows))
	for _, row := range rows {
		e, err := entryFromRow(row)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

func entryFromRow(row PayableEntryRow) (core.PayableEntry, error) {
	due, err := time.Parse(dateLayout, row.DueDate)
	if err != nil {
		return core.PayableEntry{}, fmt.Errorf("parse due date %q: %w", row.DueDate, err)
	}
	e := core.PayableEntry{
		ID:           row.ID,
		CreditorID:   row.CreditorID,
		CategoryID:   row.CategoryID,
		Description:  row.Description,
		DocumentRef:  row.DocumentRef,
		DueDate:      core.Date{Time: due},
		Amount:       core.Money{Cents: row.AmountCents},
		DDA:          row.Dda != 0,
		PaymentKind:  core.PaymentKind(row.PaymentKind),
		BankID:       row.BankID,
		ChequeNumber: row.ChequeNumber,
		BatchID:      row.BatchID,
	}
	if row.EmissionDate != "" {
		emission, err := time.Parse(dateLayout, row.EmissionDate)
		if err != nil {
			return core.PayableEntry{}, fmt.Errorf("parse emission date %q: %w", row.EmissionDate, err)
		}
		e.EmissionDate = core.Date{Time: emission}
	}
	return e, nil
}

func boolToInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
