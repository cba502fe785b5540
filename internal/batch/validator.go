package batch

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"parcelas/internal/core"
)

// ChequeIndex is the read-only lookup for already-persisted cheques,
// keyed by bank and cheque number.
type ChequeIndex interface {
	Exists(ctx context.Context, bankID int64, chequeNumber string) (bool, error)
}

// ValidationError is one field-scoped validation failure. Sequences lists
// the offending installment sequence numbers when the failure is draft-bound.
type ValidationError struct {
	Field     string `json:"field"`
	Sequences []int  `json:"sequences,omitempty"`
	Message   string `json:"message"`
}

func (e ValidationError) Error() string {
	if len(e.Sequences) == 0 {
		return fmt.Sprintf("%s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s (installments %s)", e.Field, e.Message, joinSequences(e.Sequences))
}

// ValidationResult is either OK or carries a non-empty ordered error list.
type ValidationResult struct {
	Errors []ValidationError `json:"errors,omitempty"`
}

func (r ValidationResult) OK() bool {
	return len(r.Errors) == 0
}

// ValidateMethod checks a payment-method configuration against the full
// draft list and the persisted cheque index. All applicable rules are
// evaluated so the caller gets every problem at once; the returned error is
// reserved for index lookup failures. A non-OK result gates execution:
// the batch must not start and zero records may be created.
func ValidateMethod(ctx context.Context, method core.PaymentMethod, drafts []core.InstallmentDraft, index ChequeIndex) (ValidationResult, error) {
	var result ValidationResult

	if method.Kind == core.Cheque {
		if method.BankID <= 0 {
			result.Errors = append(result.Errors, ValidationError{
				Field:   "bank_id",
				Message: "bank required for cheque payments",
			})
		}

		if missing := missingChequeNumbers(drafts); len(missing) > 0 {
			result.Errors = append(result.Errors, ValidationError{
				Field:     "cheque_number",
				Sequences: missing,
				Message:   "cheque number missing",
			})
		}

		if dups := duplicateChequeNumbers(drafts); len(dups) > 0 {
			result.Errors = append(result.Errors, ValidationError{
				Field:     "cheque_number",
				Sequences: dups,
				Message:   "duplicate cheque number within batch",
			})
		}

		// Only consult the index with a usable bank; a missing bank is
		// already reported above and makes the lookup key meaningless.
		if method.BankID > 0 && index != nil {
			taken, err := collidingChequeNumbers(ctx, method.BankID, drafts, index)
			if err != nil {
				return ValidationResult{}, fmt.Errorf("cheque index lookup: %w", err)
			}
			if len(taken) > 0 {
				result.Errors = append(result.Errors, ValidationError{
					Field:     "cheque_number",
					Sequences: taken,
					Message:   "cheque number already used for this bank",
				})
			}
		}
	}

	// Re-checked defensively; the generator assumes a valid template.
	if n := len(drafts); n < core.MinInstallments || n > core.MaxInstallments {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "count",
			Message: fmt.Sprintf("installment count must be between %d and %d, got %d", core.MinInstallments, core.MaxInstallments, n),
		})
	}

	return result, nil
}

func missingChequeNumbers(drafts []core.InstallmentDraft) []int {
	var seqs []int
	for _, d := range drafts {
		if strings.TrimSpace(d.ChequeNumber) == "" {
			seqs = append(seqs, d.Sequence)
		}
	}
	return seqs
}

// duplicateChequeNumbers returns every sequence involved in a duplicate,
// including the first occurrence, so the user sees both sides of a clash.
func duplicateChequeNumbers(drafts []core.InstallmentDraft) []int {
	bySeq := make(map[string][]int)
	for _, d := range drafts {
		num := strings.TrimSpace(d.ChequeNumber)
		if num == "" {
			continue
		}
		bySeq[num] = append(bySeq[num], d.Sequence)
	}

	var seqs []int
	for _, group := range bySeq {
		if len(group) > 1 {
			seqs = append(seqs, group...)
		}
	}
	sort.Ints(seqs)
	return seqs
}

func collidingChequeNumbers(ctx context.Context, bankID int64, drafts []core.InstallmentDraft, index ChequeIndex) ([]int, error) {
	var seqs []int
	for _, d := range drafts {
		num := strings.TrimSpace(d.ChequeNumber)
		if num == "" {
			continue
		}
		exists, err := index.Exists(ctx, bankID, num)
		if err != nil {
			return nil, fmt.Errorf("exists(%d, %s): %w", bankID, num, err)
		}
		if exists {
			seqs = append(seqs, d.Sequence)
		}
	}
	return seqs, nil
}

func joinSequences(seqs []int) string {
	parts := make([]string, len(seqs))
	for i, s := range seqs {
		parts[i] = fmt.Sprintf("%d", s)
	}
	return strings.Join(parts, ", ")
}
