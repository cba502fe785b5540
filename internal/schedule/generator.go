// Package schedule computes installment due-date schedules.
//
// Each interval kind (monthly, biweekly, weekly) has its own stepper that
// encapsulates the due-date arithmetic for one installment index.
package schedule

import (
	"fmt"
	"time"

	"parcelas/internal/core"
)

// Stepper is the strategy interface for computing the due date of the
// installment at a given zero-based index relative to the first due date.
type Stepper interface {
	DueDate(first core.Date, index int) core.Date
}

// MonthlyStepper advances by whole calendar months, clamping the
// day-of-month to the last valid day of the target month.
type MonthlyStepper struct{}

// DueDate returns the first due date advanced by index months. A first due
// date of Jan 31 yields Feb 28/29 at index 1, never Mar 3.
func (MonthlyStepper) DueDate(first core.Date, index int) core.Date {
	year := first.Year()
	month := first.Month() + index
	// Normalize month overflow into years; time.Date would also normalize,
	// but the day clamp below needs the real target month.
	year += (month - 1) / 12
	month = (month-1)%12 + 1

	day := first.Day()
	lastDay := time.Date(year, time.Month(month)+1, 0, 0, 0, 0, 0, time.UTC).Day()
	if day > lastDay {
		day = lastDay
	}
	return core.NewDate(year, month, day)
}

// BiweeklyStepper advances by 15 days per installment.
type BiweeklyStepper struct{}

func (BiweeklyStepper) DueDate(first core.Date, index int) core.Date {
	return core.Date{Time: first.AddDate(0, 0, 15*index)}
}

// WeeklyStepper advances by 7 days per installment.
type WeeklyStepper struct{}

func (WeeklyStepper) DueDate(first core.Date, index int) core.Date {
	return core.Date{Time: first.AddDate(0, 0, 7*index)}
}

// steppers maps interval kinds to their due-date steppers.
var steppers = map[core.IntervalKind]Stepper{
	core.Monthly:  MonthlyStepper{},
	core.Biweekly: BiweeklyStepper{},
	core.Weekly:   WeeklyStepper{},
}

// ForInterval returns the stepper for an interval kind.
func ForInterval(kind core.IntervalKind) (Stepper, error) {
	s, ok := steppers[kind]
	if !ok {
		return nil, fmt.Errorf("unknown interval kind: %s", kind)
	}
	return s, nil
}

// Generate produces the full draft list for a template: one draft per
// installment, sequence numbers 1..Count, every amount equal to the
// template's base amount. Pure and deterministic; template invariants
// (count and amount bounds, valid interval) are enforced upstream by
// InstallmentTemplate.Validate, so an invalid interval yields nil here.
func Generate(t core.InstallmentTemplate) []core.InstallmentDraft {
	stepper, err := ForInterval(t.Interval)
	if err != nil {
		return nil
	}

	drafts := make([]core.InstallmentDraft, 0, t.Count)
	for i := 0; i < t.Count; i++ {
		drafts = append(drafts, core.InstallmentDraft{
			Sequence: i + 1,
			DueDate:  stepper.DueDate(t.FirstDueDate, i),
			Amount:   t.Amount,
			Status:   core.DraftCalculated,
		})
	}
	return drafts
}
