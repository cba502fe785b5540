package batch

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"parcelas/internal/core"
)

// RecordCreator persists one installment and returns the new record's ID.
// It is the final authority on acceptance: a cheque number taken by a
// concurrent writer between validation and execution surfaces here as a
// per-item failure, not as a batch abort.
type RecordCreator interface {
	CreateRecord(ctx context.Context, draft core.InstallmentDraft, tpl core.InstallmentTemplate, method core.PaymentMethod) (int64, error)
}

// ProgressFunc is invoked after each draft's outcome with the number of
// completed items and the batch total.
type ProgressFunc func(completed, total int)

// Executor creates the installments of one validated batch, strictly in
// ascending sequence order, one at a time. Ordering is a correctness
// requirement: cheque numbers must be consumed in the order presented and
// progress must be monotonic.
type Executor struct {
	creator  RecordCreator
	progress ProgressFunc
}

func NewExecutor(creator RecordCreator, progress ProgressFunc) *Executor {
	return &Executor{creator: creator, progress: progress}
}

// Execute runs the batch. Each installment is an independent financial
// record, so an item failure never aborts the run; the next draft is always
// attempted. Context cancellation stops issuing further creates after the
// in-flight one finishes, leaving already-created records intact and the
// result reporting exactly what ran.
func (e *Executor) Execute(ctx context.Context, batchID string, drafts []core.InstallmentDraft, tpl core.InstallmentTemplate, method core.PaymentMethod) BatchResult {
	ordered := make([]core.InstallmentDraft, len(drafts))
	copy(ordered, drafts)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Sequence < ordered[j].Sequence })

	result := BatchResult{
		BatchID:  batchID,
		Total:    len(ordered),
		Outcomes: make([]ItemOutcome, 0, len(ordered)),
	}

	for _, draft := range ordered {
		select {
		case <-ctx.Done():
			slog.WarnContext(ctx, "Batch execution stopped before completion",
				"batch_id", batchID,
				"completed", len(result.Outcomes),
				"total", result.Total,
				"reason", ctx.Err())
			result.Status = finalStatus(result)
			return result
		default:
		}

		outcome := e.createOne(ctx, batchID, draft, tpl, method)
		result.Outcomes = append(result.Outcomes, outcome)

		if e.progress != nil {
			e.progress(len(result.Outcomes), result.Total)
		}
	}

	result.Status = finalStatus(result)
	slog.InfoContext(ctx, "Batch execution finished",
		"batch_id", batchID,
		"status", result.Status,
		"created", result.CreatedCount(),
		"failed", result.FailedCount())
	return result
}

// createOne persists a single draft, converting a panicking collaborator
// into a failed outcome so one bad item cannot crash the run.
func (e *Executor) createOne(ctx context.Context, batchID string, draft core.InstallmentDraft, tpl core.InstallmentTemplate, method core.PaymentMethod) (outcome ItemOutcome) {
	outcome = ItemOutcome{Sequence: draft.Sequence}

	defer func() {
		if r := recover(); r != nil {
			slog.ErrorContext(ctx, "Record creation panicked",
				"batch_id", batchID,
				"sequence", draft.Sequence,
				"panic", r)
			outcome.Created = false
			outcome.RecordID = 0
			outcome.Reason = fmt.Sprintf("internal error: %v", r)
		}
	}()

	id, err := e.creator.CreateRecord(ctx, draft, tpl, method)
	if err != nil {
		slog.WarnContext(ctx, "Record creation failed",
			"batch_id", batchID,
			"sequence", draft.Sequence,
			"error", err)
		outcome.Reason = err.Error()
		return outcome
	}

	outcome.Created = true
	outcome.RecordID = id
	return outcome
}

// Aborted returns the result of a batch that validation stopped before any
// record was attempted.
func Aborted(batchID string, total int) BatchResult {
	return BatchResult{
		BatchID: batchID,
		Total:   total,
		Status:  StatusAbortedBeforeStart,
	}
}

func finalStatus(r BatchResult) BatchStatus {
	created := r.CreatedCount()
	switch {
	case created == r.Total:
		return StatusSucceeded
	case created > 0:
		return StatusPartiallyFailed
	default:
		return StatusFailed
	}
}
