package storage

import (
	"context"
	"database/sql"
)

// DBTX is satisfied by both *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Queries bundles the raw SQL data access for the repository.
type Queries struct {
	db DBTX
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

const createCategory = `
INSERT INTO categories (name) VALUES (?) RETURNING id, name
`

func (q *Queries) CreateCategory(ctx context.Context, name string) (Category, error) {
	var c Category
	err := q.db.QueryRowContext(ctx, createCategory, name).Scan(&c.ID, &c.Name)
	return c, err
}

const listCategories = `
SELECT id, name FROM categories ORDER BY name
`

func (q *Queries) ListCategories(ctx context.Context) ([]Category, error) {
	rows, err := q.db.QueryContext(ctx, listCategories)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Category
	for rows.Next() {
		var c Category
		if err := rows.Scan(&c.ID, &c.Name); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

const deleteCategory = `
DELETE FROM categories WHERE id = ?
`

func (q *Queries) DeleteCategory(ctx context.Context, id int64) error {
	_, err := q.db.ExecContext(ctx, deleteCategory, id)
	return err
}

const createContact = `
INSERT INTO contacts (name, document) VALUES (?, ?) RETURNING id, name, document
`

func (q *Queries) CreateContact(ctx context.Context, name, document string) (Contact, error) {
	var c Contact
	err := q.db.QueryRowContext(ctx, createContact, name, document).Scan(&c.ID, &c.Name, &c.Document)
	return c, err
}

const listContacts = `
SELECT id, name, document FROM contacts ORDER BY name
`

func (q *Queries) ListContacts(ctx context.Context) ([]Contact, error) {
	rows, err := q.db.QueryContext(ctx, listContacts)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Contact
	for rows.Next() {
		var c Contact
		if err := rows.Scan(&c.ID, &c.Name, &c.Document); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

const deleteContact = `
DELETE FROM contacts WHERE id = ?
`

func (q *Queries) DeleteContact(ctx context.Context, id int64) error {
	_, err := q.db.ExecContext(ctx, deleteContact, id)
	return err
}

const createBank = `
INSERT INTO banks (name, code) VALUES (?, ?) RETURNING id, name, code
`

func (q *Queries) CreateBank(ctx context.Context, name, code string) (Bank, error) {
	var b Bank
	err := q.db.QueryRowContext(ctx, createBank, name, code).Scan(&b.ID, &b.Name, &b.Code)
	return b, err
}

const listBanks = `
SELECT id, name, code FROM banks ORDER BY name
`

func (q *Queries) ListBanks(ctx context.Context) ([]Bank, error) {
	rows, err := q.db.QueryContext(ctx, listBanks)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Bank
	for rows.Next() {
		var b Bank
		if err := rows.Scan(&b.ID, &b.Name, &b.Code); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

const deleteBank = `
DELETE FROM banks WHERE id = ?
`

func (q *Queries) DeleteBank(ctx context.Context, id int64) error {
	_, err := q.db.ExecContext(ctx, deleteBank, id)
	return err
}

type CreatePayableEntryParams struct {
	CreditorID   int64
	CategoryID   int64
	Description  string
	DocumentRef  string
	DueDate      string
	EmissionDate string
	AmountCents  int64
	Dda          int64
	PaymentKind  string
	BankID       int64
	ChequeNumber string
	BatchID      string
}

const createPayableEntry = `
INSERT INTO payable_entries (
    creditor_id, category_id, description, document_ref, due_date,
    emission_date, amount_cents, dda, payment_kind, bank_id,
    cheque_number, batch_id
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
RETURNING id
`

func (q *Queries) CreatePayableEntry(ctx context.Context, p CreatePayableEntryParams) (int64, error) {
	var id int64
	err := q.db.QueryRowContext(ctx, createPayableEntry,
		p.CreditorID, p.CategoryID, p.Description, p.DocumentRef, p.DueDate,
		p.EmissionDate, p.AmountCents, p.Dda, p.PaymentKind, p.BankID,
		p.ChequeNumber, p.BatchID,
	).Scan(&id)
	return id, err
}

const getPayableEntry = `
SELECT id, creditor_id, category_id, description, document_ref, due_date,
       emission_date, amount_cents, dda, payment_kind, bank_id,
       cheque_number, batch_id
FROM payable_entries WHERE id = ?
`

func (q *Queries) GetPayableEntry(ctx context.Context, id int64) (PayableEntryRow, error) {
	var r PayableEntryRow
	err := q.db.QueryRowContext(ctx, getPayableEntry, id).Scan(
		&r.ID, &r.CreditorID, &r.CategoryID, &r.Description, &r.DocumentRef,
		&r.DueDate, &r.EmissionDate, &r.AmountCents, &r.Dda, &r.PaymentKind,
		&r.BankID, &r.ChequeNumber, &r.BatchID,
	)
	return r, err
}

const listPayableEntriesByBatch = `
SELECT id, creditor_id, category_id, description, document_ref, due_date,
       emission_date, amount_cents, dda, payment_kind, bank_id,
       cheque_number, batch_id
FROM payable_entries WHERE batch_id = ? ORDER BY due_date, id
`

func (q *Queries) ListPayableEntriesByBatch(ctx context.Context, batchID string) ([]PayableEntryRow, error) {
	return q.listPayableEntries(ctx, listPayableEntriesByBatch, batchID)
}

const listPayableEntriesByMonth = `
SELECT id, creditor_id, category_id, description, document_ref, due_date,
       emission_date, amount_cents, dda, payment_kind, bank_id,
       cheque_number, batch_id
FROM payable_entries WHERE due_date >= ? AND due_date < ? ORDER BY due_date, id
`

func (q *Queries) ListPayableEntriesByDueRange(ctx context.Context, from, to string) ([]PayableEntryRow, error) {
	return q.listPayableEntries(ctx, listPayableEntriesByMonth, from, to)
}

func (q *Queries) listPayableEntries(ctx context.Context, query string, args ...any) ([]PayableEntryRow, error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []PayableEntryRow
	for rows.Next() {
		var r PayableEntryRow
		if err := rows.Scan(
			&r.ID, &r.CreditorID, &r.CategoryID, &r.Description, &r.DocumentRef,
			&r.DueDate, &r.EmissionDate, &r.AmountCents, &r.Dda, &r.PaymentKind,
			&r.BankID, &r.ChequeNumber, &r.BatchID,
		); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

const deletePayableEntry = `
DELETE FROM payable_entries WHERE id = ?
`

func (q *Queries) DeletePayableEntry(ctx context.Context, id int64) error {
	_, err := q.db.ExecContext(ctx, deletePayableEntry, id)
	return err
}

const chequeExists = `
SELECT COUNT(1) FROM payable_entries WHERE bank_id = ? AND cheque_number = ?
`

func (q *Queries) ChequeExists(ctx context.Context, bankID int64, chequeNumber string) (bool, error) {
	var n int64
	if err := q.db.QueryRowContext(ctx, chequeExists, bankID, chequeNumber).Scan(&n); err != nil {
		return false, err
	}
	return n > 0, nil
}

const createBatch = `
INSERT INTO batches (id, session_id, total, status) VALUES (?, ?, ?, 'pending')
`

func (q *Queries) CreateBatch(ctx context.Context, id, sessionID string, total int64) error {
	_, err := q.db.ExecContext(ctx, createBatch, id, sessionID, total)
	return err
}

const updateBatchProgress = `
UPDATE batches SET completed = ?, status = 'executing', updated_at = CURRENT_TIMESTAMP WHERE id = ?
`

func (q *Queries) UpdateBatchProgress(ctx context.Context, id string, completed int64) error {
	_, err := q.db.ExecContext(ctx, updateBatchProgress, completed, id)
	return err
}

const finishBatch = `
UPDATE batches SET completed = ?, status = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?
`

func (q *Queries) FinishBatch(ctx context.Context, id, status string, completed int64) error {
	_, err := q.db.ExecContext(ctx, finishBatch, completed, status, id)
	return err
}

const getBatch = `
SELECT id, session_id, total, completed, status FROM batches WHERE id = ?
`

func (q *Queries) GetBatch(ctx context.Context, id string) (BatchRow, error) {
	var b BatchRow
	err := q.db.QueryRowContext(ctx, getBatch, id).Scan(&b.ID, &b.SessionID, &b.Total, &b.Completed, &b.Status)
	return b, err
}

const insertBatchOutcome = `
INSERT INTO batch_outcomes (batch_id, sequence, created, record_id, reason) VALUES (?, ?, ?, ?, ?)
`

func (q *Queries) InsertBatchOutcome(ctx context.Context, o BatchOutcomeRow) error {
	_, err := q.db.ExecContext(ctx, insertBatchOutcome, o.BatchID, o.Sequence, o.Created, o.RecordID, o.Reason)
	return err
}

const listBatchOutcomes = `
SELECT batch_id, sequence, created, record_id, reason
FROM batch_outcomes WHERE batch_id = ? ORDER BY sequence
`

func (q *Queries) ListBatchOutcomes(ctx context.Context, batchID string) ([]BatchOutcomeRow, error) {
	rows, err := q.db.QueryContext(ctx, listBatchOutcomes, batchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []BatchOutcomeRow
	for rows.Next() {
		var o BatchOutcomeRow
		if err := rows.Scan(&o.BatchID, &o.Sequence, &o.Created, &o.RecordID, &o.Reason); err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

const saveSession = `
INSERT INTO batch_sessions (session_id, payload, updated_at)
VALUES (?, ?, CURRENT_TIMESTAMP)
ON CONFLICT(session_id) DO UPDATE SET payload = excluded.payload, updated_at = CURRENT_TIMESTAMP
`

func (q *Queries) SaveSession(ctx context.Context, sessionID, payload string) error {
	_, err := q.db.ExecContext(ctx, saveSession, sessionID, payload)
	return err
}

const loadSession = `
SELECT payload FROM batch_sessions WHERE session_id = ?
`

func (q *Queries) LoadSession(ctx context.Context, sessionID string) (string, error) {
	var payload string
	err := q.db.QueryRowContext(ctx, loadSession, sessionID).Scan(&payload)
	return payload, err
}

const clearSession = `
DELETE FROM batch_sessions WHERE session_id = ?
`

func (q *Queries) ClearSession(ctx context.Context, sessionID string) error {
	_, err := q.db.ExecContext(ctx, clearSession, sessionID)
	return err
}
