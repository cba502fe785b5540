// Package worker executes confirmed installment batches delivered over the
// message queue.
package worker

import (
	"context"
	"fmt"
	"log/slog"

	"parcelas/internal/amqp"
	"parcelas/internal/batch"
)

// BatchStore is the storage surface the worker needs: the saved session
// snapshot, a per-batch record creator, and batch bookkeeping.
type BatchStore interface {
	batch.DraftRepository
	RecordCreator(batchID string) batch.RecordCreator
	UpdateBatchProgress(ctx context.Context, batchID string, completed int) error
	FinishBatch(ctx context.Context, result batch.BatchResult) error
}

// ResultPublisher announces terminal batch results. May be nil when no
// broker is configured.
type ResultPublisher interface {
	PublishBatchResult(ctx context.Context, batchID, status string, created, failed int) error
}

type BatchWorker struct {
	store     BatchStore
	publisher ResultPublisher
}

func NewBatchWorker(store BatchStore, publisher ResultPublisher) *BatchWorker {
	return &BatchWorker{store: store, publisher: publisher}
}

// HandleExecuteMessage runs one confirmed batch end to end: load the
// confirmed snapshot, execute sequentially, persist the outcome, clear the
// session and announce the result. A load failure is returned so the
// delivery can be retried; execution itself never fails the delivery since
// the result, partial or not, is already persisted.
func (w *BatchWorker) HandleExecuteMessage(ctx context.Context, msg *amqp.BatchExecuteMessage) error {
	payload, err := w.store.LoadSession(ctx, msg.SessionID)
	if err != nil {
		return fmt.Errorf("load session %s: %w", msg.SessionID, err)
	}
	snapshot, err := batch.UnmarshalSnapshot(payload)
	if err != nil {
		return fmt.Errorf("decode session %s: %w", msg.SessionID, err)
	}

	result := w.Run(ctx, msg.BatchID, snapshot)

	if err := w.store.FinishBatch(ctx, result); err != nil {
		return fmt.Errorf("persist batch %s result: %w", msg.BatchID, err)
	}
	if err := w.store.ClearSession(ctx, msg.SessionID); err != nil {
		slog.WarnContext(ctx, "Failed to clear session after execution",
			"session_id", msg.SessionID,
			"error", err)
		// Batch is already done; a stale session row is harmless
	}

	w.announce(ctx, result)
	return nil
}

// Run executes the snapshot's drafts and returns the result. Progress is
// written to the batch row after every installment so pollers see
// monotonic completion.
func (w *BatchWorker) Run(ctx context.Context, batchID string, snapshot batch.SessionSnapshot) batch.BatchResult {
	progress := func(completed, total int) {
		if err := w.store.UpdateBatchProgress(ctx, batchID, completed); err != nil {
			slog.WarnContext(ctx, "Failed to update batch progress",
				"batch_id", batchID,
				"completed", completed,
				"error", err)
		}
	}

	exec := batch.NewExecutor(w.store.RecordCreator(batchID), progress)
	return exec.Execute(ctx, batchID, snapshot.Drafts, snapshot.Template, snapshot.Method)
}

func (w *BatchWorker) announce(ctx context.Context, result batch.BatchResult) {
	if w.publisher == nil {
		return
	}
	err := w.publisher.PublishBatchResult(ctx,
		result.BatchID,
		string(result.Status),
		result.CreatedCount(),
		result.FailedCount())
	if err != nil {
		slog.WarnContext(ctx, "Failed to publish batch result",
			"batch_id", result.BatchID,
			"error", err)
	}
}
