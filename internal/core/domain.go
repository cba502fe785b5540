package core

import (
	"errors"
	"strings"
	"time"
)

const (
	Monthly  IntervalKind = "monthly"
	Biweekly IntervalKind = "biweekly"
	Weekly   IntervalKind = "weekly"
)

const (
	CashOrPix PaymentKind = "cash_or_pix"
	Cheque    PaymentKind = "cheque"
	Card      PaymentKind = "card"
	BankSlip  PaymentKind = "bank_slip"
)

const (
	DraftCalculated DraftStatus = "calculated"
	DraftEdited     DraftStatus = "edited"
)

// Installment count bounds for one batch.
const (
	MinInstallments = 2
	MaxInstallments = 100
)

type (
	IntervalKind string
	PaymentKind  string
	DraftStatus  string

	Date struct {
		time.Time
	}

	Money struct {
		Cents int64
	}

	// InstallmentTemplate holds the user-specified parameters from which a
	// full installment schedule is generated. Immutable once a batch session
	// starts previewing.
	InstallmentTemplate struct {
		CreditorID   int64
		CategoryID   int64
		Description  string
		DocumentRef  string
		Amount       Money
		FirstDueDate Date
		Count        int
		Interval     IntervalKind
		EmissionDate Date
		DDA          bool
	}

	// InstallmentDraft is one generated-or-edited installment prior to
	// persistence. Sequence is 1-based and unique within a batch.
	InstallmentDraft struct {
		Sequence     int
		DueDate      Date
		Amount       Money
		Status       DraftStatus
		ChequeNumber string
	}

	// PaymentMethod is the payment configuration applied to every
	// installment of a batch. BankID is required only for cheques.
	PaymentMethod struct {
		Kind   PaymentKind
		BankID int64
	}

	// PayableEntry is the persisted accounts-payable record one draft
	// becomes after batch execution, or a single manually created entry.
	PayableEntry struct {
		ID           int64
		CreditorID   int64
		CategoryID   int64
		Description  string
		DocumentRef  string
		DueDate      Date
		EmissionDate Date
		Amount       Money
		DDA          bool
		PaymentKind  PaymentKind
		BankID       int64
		ChequeNumber string
		BatchID      string
	}
)

var (
	ErrInvalidDate      = errors.New("invalid date")
	ErrInvalidAmount    = errors.New("invalid amount")
	ErrInvalidCount     = errors.New("installment count out of range")
	ErrInvalidInterval  = errors.New("invalid interval kind")
	ErrEmptyDescription = errors.New("empty description")
	ErrMissingCreditor  = errors.New("missing creditor")
	ErrMissingCategory  = errors.New("missing category")
	ErrMissingBank      = errors.New("missing bank")
)

func (d Date) Validate() error {
	if d.IsZero() {
		return ErrInvalidDate
	}
	return nil
}

// NewDate creates a new Date from year, month, day in UTC.
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// Day returns the day of the month
func (d Date) Day() int {
	return d.Time.Day()
}

// Month returns the month
func (d Date) Month() int {
	return int(d.Time.Month())
}

// Year returns the year
func (d Date) Year() int {
	return d.Time.Year()
}

func (d Date) Equal(other Date) bool {
	return d.Time.Equal(other.Time)
}

func (m Money) Validate() error {
	if m.Cents <= 0 {
		return ErrInvalidAmount
	}
	return nil
}

func (k IntervalKind) Valid() bool {
	switch k {
	case Monthly, Biweekly, Weekly:
		return true
	}
	return false
}

func (k PaymentKind) Valid() bool {
	switch k {
	case CashOrPix, Cheque, Card, BankSlip:
		return true
	}
	return false
}

// Validate checks template-level invariants. Failures here block a batch
// session from leaving its configuration phase.
func (t InstallmentTemplate) Validate() error {
	if t.CreditorID <= 0 {
		return ErrMissingCreditor
	}
	if t.CategoryID <= 0 {
		return ErrMissingCategory
	}
	if len(strings.TrimSpace(t.Description)) == 0 {
		return ErrEmptyDescription
	}
	if len(t.Description) > 200 {
		return errors.New("description too long (max 200 characters)")
	}
	if err := t.Amount.Validate(); err != nil {
		return err
	}
	if err := t.FirstDueDate.Validate(); err != nil {
		return errors.New("invalid first due date: " + err.Error())
	}
	if t.Count < MinInstallments || t.Count > MaxInstallments {
		return ErrInvalidCount
	}
	if !t.Interval.Valid() {
		return ErrInvalidInterval
	}
	return nil
}

// Validate checks a payment method configuration in isolation. Cheque
// sequencing against the drafts is the batch validator's concern.
func (p PaymentMethod) Validate() error {
	if !p.Kind.Valid() {
		return errors.New("invalid payment kind")
	}
	if p.Kind == Cheque && p.BankID <= 0 {
		return ErrMissingBank
	}
	return nil
}

func (e PayableEntry) Validate() error {
	if e.CreditorID <= 0 {
		return ErrMissingCreditor
	}
	if e.CategoryID <= 0 {
		return ErrMissingCategory
	}
	if len(strings.TrimSpace(e.Description)) == 0 {
		return ErrEmptyDescription
	}
	if err := e.Amount.Validate(); err != nil {
		return err
	}
	if err := e.DueDate.Validate(); err != nil {
		return errors.New("invalid due date: " + err.Error())
	}
	if !e.PaymentKind.Valid() {
		return errors.New("invalid payment kind")
	}
	if e.PaymentKind == Cheque && e.BankID <= 0 {
		return ErrMissingBank
	}
	return nil
}
