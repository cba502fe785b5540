package batch

import (
	"context"
	"errors"
	"testing"

	"parcelas/internal/core"
	"parcelas/internal/schedule"
)

// fakeCreator records the order of creations and fails or panics on
// configured sequence numbers.
type fakeCreator struct {
	created   []int
	failOn    map[int]error
	panicOn   map[int]bool
	cancelOn  int // cancel the context after this sequence completes
	cancelCtx context.CancelFunc
	nextID    int64
}

func (f *fakeCreator) CreateRecord(_ context.Context, draft core.InstallmentDraft, _ core.InstallmentTemplate, _ core.PaymentMethod) (int64, error) {
	if f.panicOn[draft.Sequence] {
		panic("collaborator blew up")
	}
	defer func() {
		if f.cancelOn != 0 && draft.Sequence == f.cancelOn && f.cancelCtx != nil {
			f.cancelCtx()
		}
	}()
	if err := f.failOn[draft.Sequence]; err != nil {
		return 0, err
	}
	f.created = append(f.created, draft.Sequence)
	f.nextID++
	return f.nextID, nil
}

func executorTemplate(count int) core.InstallmentTemplate {
	return core.InstallmentTemplate{
		CreditorID:   1,
		CategoryID:   1,
		Description:  "loan installment",
		Amount:       core.Money{Cents: 10000},
		FirstDueDate: core.NewDate(2025, 1, 5),
		Count:        count,
		Interval:     core.Monthly,
	}
}

func TestExecuteAllSucceed(t *testing.T) {
	tpl := executorTemplate(12)
	drafts := schedule.Generate(tpl)
	creator := &fakeCreator{}

	var progress [][2]int
	exec := NewExecutor(creator, func(completed, total int) {
		progress = append(progress, [2]int{completed, total})
	})

	result := exec.Execute(context.Background(), "batch-1", drafts, tpl, core.PaymentMethod{Kind: core.CashOrPix})

	if result.Status != StatusSucceeded {
		t.Fatalf("expected succeeded, got %s", result.Status)
	}
	if result.Total != 12 || result.CreatedCount() != 12 {
		t.Fatalf("expected 12/12 created, got %d/%d", result.CreatedCount(), result.Total)
	}
	var totalCents int64
	for _, d := range drafts {
		totalCents += d.Amount.Cents
	}
	if totalCents != 120000 {
		t.Fatalf("expected total amount 120000 cents, got %d", totalCents)
	}
	if len(progress) != 12 {
		t.Fatalf("expected 12 progress ticks, got %d", len(progress))
	}
	for i, p := range progress {
		if p[0] != i+1 || p[1] != 12 {
			t.Fatalf("tick %d: expected (%d, 12), got (%d, %d)", i, i+1, p[0], p[1])
		}
	}
}

func TestExecuteContinuesAfterItemFailure(t *testing.T) {
	tpl := executorTemplate(12)
	drafts := schedule.Generate(tpl)
	creator := &fakeCreator{failOn: map[int]error{7: errors.New("rejected by store")}}
	exec := NewExecutor(creator, nil)

	result := exec.Execute(context.Background(), "batch-2", drafts, tpl, core.PaymentMethod{Kind: core.CashOrPix})

	if result.Status != StatusPartiallyFailed {
		t.Fatalf("expected partially_failed, got %s", result.Status)
	}
	if result.CreatedCount() != 11 || result.FailedCount() != 1 {
		t.Fatalf("expected 11 created and 1 failed, got %d and %d", result.CreatedCount(), result.FailedCount())
	}
	// Drafts 8-12 still attempted after the failure on 7
	want := []int{1, 2, 3, 4, 5, 6, 8, 9, 10, 11, 12}
	if len(creator.created) != len(want) {
		t.Fatalf("expected %v created, got %v", want, creator.created)
	}
	for i, seq := range want {
		if creator.created[i] != seq {
			t.Fatalf("creation order: expected %v, got %v", want, creator.created)
		}
	}
	if got := result.FailedSequences(); len(got) != 1 || got[0] != 7 {
		t.Fatalf("expected failed sequences [7], got %v", got)
	}
	if result.Outcomes[6].Reason != "rejected by store" {
		t.Fatalf("expected failure reason, got %q", result.Outcomes[6].Reason)
	}
}

func TestExecuteAllFail(t *testing.T) {
	tpl := executorTemplate(3)
	drafts := schedule.Generate(tpl)
	creator := &fakeCreator{failOn: map[int]error{
		1: errors.New("no"), 2: errors.New("no"), 3: errors.New("no"),
	}}
	exec := NewExecutor(creator, nil)

	result := exec.Execute(context.Background(), "batch-3", drafts, tpl, core.PaymentMethod{Kind: core.CashOrPix})
	if result.Status != StatusFailed {
		t.Fatalf("expected failed, got %s", result.Status)
	}
}

func TestExecuteRecoversPanickingCollaborator(t *testing.T) {
	tpl := executorTemplate(3)
	drafts := schedule.Generate(tpl)
	creator := &fakeCreator{panicOn: map[int]bool{2: true}}
	exec := NewExecutor(creator, nil)

	result := exec.Execute(context.Background(), "batch-4", drafts, tpl, core.PaymentMethod{Kind: core.CashOrPix})
	if result.Status != StatusPartiallyFailed {
		t.Fatalf("expected partially_failed, got %s", result.Status)
	}
	if result.Outcomes[1].Created {
		t.Fatalf("panicking item must be a failed outcome")
	}
	if result.Outcomes[1].Reason == "" {
		t.Fatalf("expected a generic failure reason")
	}
	if result.CreatedCount() != 2 {
		t.Fatalf("expected drafts 1 and 3 created, got %d", result.CreatedCount())
	}
}

func TestExecuteOutcomesInSequenceOrder(t *testing.T) {
	tpl := executorTemplate(5)
	drafts := schedule.Generate(tpl)
	// Shuffle the input; the executor must restore ascending order.
	drafts[0], drafts[3] = drafts[3], drafts[0]
	drafts[1], drafts[4] = drafts[4], drafts[1]

	creator := &fakeCreator{}
	exec := NewExecutor(creator, nil)
	result := exec.Execute(context.Background(), "batch-5", drafts, tpl, core.PaymentMethod{Kind: core.CashOrPix})

	for i, o := range result.Outcomes {
		if o.Sequence != i+1 {
			t.Fatalf("outcome %d: expected sequence %d, got %d", i, i+1, o.Sequence)
		}
	}
}

func TestExecuteStopsAfterCancel(t *testing.T) {
	tpl := executorTemplate(10)
	drafts := schedule.Generate(tpl)

	ctx, cancel := context.WithCancel(context.Background())
	creator := &fakeCreator{cancelOn: 4, cancelCtx: cancel}
	exec := NewExecutor(creator, nil)

	result := exec.Execute(ctx, "batch-6", drafts, tpl, core.PaymentMethod{Kind: core.CashOrPix})

	if len(result.Outcomes) != 4 {
		t.Fatalf("expected 4 outcomes before stop, got %d", len(result.Outcomes))
	}
	if result.Status != StatusPartiallyFailed {
		t.Fatalf("expected explicit partial result, got %s", result.Status)
	}
	if result.Total != 10 {
		t.Fatalf("total must still report the full batch, got %d", result.Total)
	}
}

func TestAborted(t *testing.T) {
	result := Aborted("batch-7", 5)
	if result.Status != StatusAbortedBeforeStart {
		t.Fatalf("expected aborted_before_start, got %s", result.Status)
	}
	if len(result.Outcomes) != 0 {
		t.Fatalf("aborted batch must have zero outcomes")
	}
}
