package batch

import (
	"fmt"

	"parcelas/internal/core"
)

// DraftPatch holds the fields a user may override on a single draft.
// Nil fields are left untouched.
type DraftPatch struct {
	DueDate      *core.Date
	Amount       *core.Money
	ChequeNumber *string
}

// ApplyOverride returns a new draft list with the draft at sequence patched.
// Overriding the due date or amount flips the draft's status to edited;
// assigning a cheque number alone does not, since cheque numbering is part
// of payment configuration rather than a schedule edit. All other drafts
// are returned value-identical.
func ApplyOverride(drafts []core.InstallmentDraft, sequence int, patch DraftPatch) ([]core.InstallmentDraft, error) {
	idx := -1
	for i, d := range drafts {
		if d.Sequence == sequence {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, fmt.Errorf("no draft with sequence %d", sequence)
	}

	if patch.Amount != nil {
		if err := patch.Amount.Validate(); err != nil {
			return nil, fmt.Errorf("override amount for sequence %d: %w", sequence, err)
		}
	}
	if patch.DueDate != nil {
		if err := patch.DueDate.Validate(); err != nil {
			return nil, fmt.Errorf("override due date for sequence %d: %w", sequence, err)
		}
	}

	out := make([]core.InstallmentDraft, len(drafts))
	copy(out, drafts)

	d := &out[idx]
	if patch.DueDate != nil {
		d.DueDate = *patch.DueDate
		d.Status = core.DraftEdited
	}
	if patch.Amount != nil {
		d.Amount = *patch.Amount
		d.Status = core.DraftEdited
	}
	if patch.ChequeNumber != nil {
		d.ChequeNumber = *patch.ChequeNumber
	}
	return out, nil
}

// AssignChequeSequence fills every draft's cheque number by counting up
// from the first number, preserving any zero padding ("000101" -> "000102").
// Drafts that already carry a cheque number keep it.
func AssignChequeSequence(drafts []core.InstallmentDraft, first string) ([]core.InstallmentDraft, error) {
	if first == "" {
		return nil, fmt.Errorf("first cheque number is empty")
	}
	start, err := parseChequeNumber(first)
	if err != nil {
		return nil, err
	}

	out := make([]core.InstallmentDraft, len(drafts))
	copy(out, drafts)
	next := start
	for i := range out {
		if out[i].ChequeNumber != "" {
			continue
		}
		out[i].ChequeNumber = formatChequeNumber(next, len(first))
		next++
	}
	return out, nil
}

func parseChequeNumber(s string) (int64, error) {
	var n int64
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, fmt.Errorf("cheque number %q is not numeric", s)
		}
		n = n*10 + int64(r-'0')
	}
	return n, nil
}

func formatChequeNumber(n int64, width int) string {
	return fmt.Sprintf("%0*d", width, n)
}
