package batch

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"testing"

	"parcelas/internal/core"
)

// fakeChequeIndex is an in-memory stand-in for the persisted cheque lookup.
type fakeChequeIndex struct {
	taken map[string]bool
	err   error
}

func (f *fakeChequeIndex) Exists(_ context.Context, bankID int64, number string) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	return f.taken[fmt.Sprintf("%d/%s", bankID, number)], nil
}

func chequeDrafts(numbers ...string) []core.InstallmentDraft {
	drafts := make([]core.InstallmentDraft, len(numbers))
	for i, n := range numbers {
		drafts[i] = core.InstallmentDraft{
			Sequence:     i + 1,
			DueDate:      core.NewDate(2025, 1, i+1),
			Amount:       core.Money{Cents: 1000},
			Status:       core.DraftCalculated,
			ChequeNumber: n,
		}
	}
	return drafts
}

func findError(t *testing.T, result ValidationResult, message string) ValidationError {
	t.Helper()
	for _, e := range result.Errors {
		if e.Message == message {
			return e
		}
	}
	t.Fatalf("no error %q in %+v", message, result.Errors)
	return ValidationError{}
}

func TestValidateCashNeedsNoCheques(t *testing.T) {
	drafts := chequeDrafts("", "")
	result, err := ValidateMethod(context.Background(), core.PaymentMethod{Kind: core.CashOrPix}, drafts, &fakeChequeIndex{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.OK() {
		t.Fatalf("expected ok, got %+v", result.Errors)
	}
}

func TestValidateChequeRequiresBank(t *testing.T) {
	drafts := chequeDrafts("1", "2")
	result, err := ValidateMethod(context.Background(), core.PaymentMethod{Kind: core.Cheque}, drafts, &fakeChequeIndex{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	e := findError(t, result, "bank required for cheque payments")
	if e.Field != "bank_id" {
		t.Fatalf("expected bank_id field, got %s", e.Field)
	}
}

func TestValidateChequeMissingNumbers(t *testing.T) {
	drafts := chequeDrafts("100", "", "102", "  ")
	result, err := ValidateMethod(context.Background(), core.PaymentMethod{Kind: core.Cheque, BankID: 1}, drafts, &fakeChequeIndex{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	e := findError(t, result, "cheque number missing")
	if !reflect.DeepEqual(e.Sequences, []int{2, 4}) {
		t.Fatalf("expected sequences [2 4], got %v", e.Sequences)
	}
}

func TestValidateChequeDuplicatesNameBothSequences(t *testing.T) {
	drafts := chequeDrafts("100", "101", "100")
	result, err := ValidateMethod(context.Background(), core.PaymentMethod{Kind: core.Cheque, BankID: 1}, drafts, &fakeChequeIndex{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	e := findError(t, result, "duplicate cheque number within batch")
	if !reflect.DeepEqual(e.Sequences, []int{1, 3}) {
		t.Fatalf("expected sequences [1 3], got %v", e.Sequences)
	}
}

func TestValidateChequeCollisionWithIndex(t *testing.T) {
	drafts := chequeDrafts("100", "101")
	index := &fakeChequeIndex{taken: map[string]bool{"1/101": true}}
	result, err := ValidateMethod(context.Background(), core.PaymentMethod{Kind: core.Cheque, BankID: 1}, drafts, index)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	e := findError(t, result, "cheque number already used for this bank")
	if !reflect.DeepEqual(e.Sequences, []int{2}) {
		t.Fatalf("expected sequences [2], got %v", e.Sequences)
	}
}

func TestValidateChequeCollisionOtherBankIsFine(t *testing.T) {
	drafts := chequeDrafts("100", "101")
	index := &fakeChequeIndex{taken: map[string]bool{"2/101": true}}
	result, err := ValidateMethod(context.Background(), core.PaymentMethod{Kind: core.Cheque, BankID: 1}, drafts, index)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.OK() {
		t.Fatalf("expected ok, got %+v", result.Errors)
	}
}

func TestValidateReportsAllProblemsAtOnce(t *testing.T) {
	drafts := chequeDrafts("100", "100", "")
	index := &fakeChequeIndex{taken: map[string]bool{"1/100": true}}
	result, err := ValidateMethod(context.Background(), core.PaymentMethod{Kind: core.Cheque, BankID: 1}, drafts, index)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Errors) != 3 {
		t.Fatalf("expected 3 errors, got %d: %+v", len(result.Errors), result.Errors)
	}
}

func TestValidateCountBounds(t *testing.T) {
	one := chequeDrafts("100")
	result, err := ValidateMethod(context.Background(), core.PaymentMethod{Kind: core.CashOrPix}, one, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	findError(t, result, fmt.Sprintf("installment count must be between %d and %d, got %d", core.MinInstallments, core.MaxInstallments, 1))
}

func TestValidateIndexLookupFailure(t *testing.T) {
	drafts := chequeDrafts("100", "101")
	index := &fakeChequeIndex{err: errors.New("db down")}
	_, err := ValidateMethod(context.Background(), core.PaymentMethod{Kind: core.Cheque, BankID: 1}, drafts, index)
	if err == nil {
		t.Fatalf("expected lookup error")
	}
}

func TestValidationErrorString(t *testing.T) {
	e := ValidationError{Field: "cheque_number", Sequences: []int{2, 4}, Message: "cheque number missing"}
	want := "cheque_number: cheque number missing (installments 2, 4)"
	if e.Error() != want {
		t.Fatalf("expected %q, got %q", want, e.Error())
	}
}
