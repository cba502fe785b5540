package schedule

import (
	"testing"

	"parcelas/internal/core"
)

func testTemplate(count int, interval core.IntervalKind, first core.Date) core.InstallmentTemplate {
	return core.InstallmentTemplate{
		CreditorID:   1,
		CategoryID:   1,
		Description:  "supplier invoice",
		Amount:       core.Money{Cents: 10000},
		FirstDueDate: first,
		Count:        count,
		Interval:     interval,
	}
}

func TestGenerateCountAndSequences(t *testing.T) {
	for _, count := range []int{2, 12, 100} {
		drafts := Generate(testTemplate(count, core.Monthly, core.NewDate(2025, 1, 10)))
		if len(drafts) != count {
			t.Fatalf("count %d: expected %d drafts, got %d", count, count, len(drafts))
		}
		for i, d := range drafts {
			if d.Sequence != i+1 {
				t.Fatalf("draft %d: expected sequence %d, got %d", i, i+1, d.Sequence)
			}
			if d.Amount.Cents != 10000 {
				t.Fatalf("draft %d: expected amount 10000, got %d", i, d.Amount.Cents)
			}
			if d.Status != core.DraftCalculated {
				t.Fatalf("draft %d: expected calculated status, got %s", i, d.Status)
			}
		}
	}
}

func TestGenerateMonthlyClampsDayOfMonth(t *testing.T) {
	// Jan 31 -> Feb 28 (2025 is not a leap year) -> Mar 31
	drafts := Generate(testTemplate(3, core.Monthly, core.NewDate(2025, 1, 31)))
	want := []core.Date{
		core.NewDate(2025, 1, 31),
		core.NewDate(2025, 2, 28),
		core.NewDate(2025, 3, 31),
	}
	for i, d := range drafts {
		if !d.DueDate.Equal(want[i]) {
			t.Fatalf("draft %d: expected %v, got %v", i+1, want[i].Time, d.DueDate.Time)
		}
	}
}

func TestGenerateMonthlyLeapYear(t *testing.T) {
	drafts := Generate(testTemplate(2, core.Monthly, core.NewDate(2024, 1, 31)))
	if got := drafts[1].DueDate; !got.Equal(core.NewDate(2024, 2, 29)) {
		t.Fatalf("expected 2024-02-29, got %v", got.Time)
	}
}

func TestGenerateMonthlyYearRollover(t *testing.T) {
	drafts := Generate(testTemplate(4, core.Monthly, core.NewDate(2025, 11, 15)))
	want := []core.Date{
		core.NewDate(2025, 11, 15),
		core.NewDate(2025, 12, 15),
		core.NewDate(2026, 1, 15),
		core.NewDate(2026, 2, 15),
	}
	for i, d := range drafts {
		if !d.DueDate.Equal(want[i]) {
			t.Fatalf("draft %d: expected %v, got %v", i+1, want[i].Time, d.DueDate.Time)
		}
	}
}

func TestGenerateMonthlyKeepsDayWhenMonthIsLongEnough(t *testing.T) {
	drafts := Generate(testTemplate(12, core.Monthly, core.NewDate(2025, 1, 10)))
	for i, d := range drafts {
		if d.DueDate.Day() != 10 {
			t.Fatalf("draft %d: expected day 10, got %d", i+1, d.DueDate.Day())
		}
	}
}

func TestGenerateBiweekly(t *testing.T) {
	first := core.NewDate(2025, 3, 1)
	drafts := Generate(testTemplate(4, core.Biweekly, first))
	for i, d := range drafts {
		want := core.Date{Time: first.AddDate(0, 0, 15*i)}
		if !d.DueDate.Equal(want) {
			t.Fatalf("draft %d: expected %v, got %v", i+1, want.Time, d.DueDate.Time)
		}
	}
}

func TestGenerateWeekly(t *testing.T) {
	first := core.NewDate(2025, 3, 1)
	drafts := Generate(testTemplate(5, core.Weekly, first))
	for i, d := range drafts {
		want := core.Date{Time: first.AddDate(0, 0, 7*i)}
		if !d.DueDate.Equal(want) {
			t.Fatalf("draft %d: expected %v, got %v", i+1, want.Time, d.DueDate.Time)
		}
	}
}

func TestGenerateIsDeterministic(t *testing.T) {
	tpl := testTemplate(10, core.Monthly, core.NewDate(2025, 5, 31))
	a := Generate(tpl)
	b := Generate(tpl)
	if len(a) != len(b) {
		t.Fatalf("lengths differ: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("draft %d differs between runs", i+1)
		}
	}
}

func TestForIntervalUnknown(t *testing.T) {
	if _, err := ForInterval("quarterly"); err == nil {
		t.Fatalf("expected error for unknown interval")
	}
}
