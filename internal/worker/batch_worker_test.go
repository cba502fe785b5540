package worker

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"parcelas/internal/amqp"
	"parcelas/internal/batch"
	"parcelas/internal/core"
	"parcelas/internal/schedule"
)

// fakeStore implements BatchStore in memory.
type fakeStore struct {
	sessions map[string][]byte
	cleared  []string
	progress []int
	finished *batch.BatchResult
	failOn   map[int]error
	nextID   int64
}

func newFakeStore() *fakeStore {
	return &fakeStore{sessions: map[string][]byte{}}
}

func (f *fakeStore) SaveSession(_ context.Context, id string, payload []byte) error {
	f.sessions[id] = payload
	return nil
}

func (f *fakeStore) LoadSession(_ context.Context, id string) ([]byte, error) {
	payload, ok := f.sessions[id]
	if !ok {
		return nil, errors.New("not found")
	}
	return payload, nil
}

func (f *fakeStore) ClearSession(_ context.Context, id string) error {
	f.cleared = append(f.cleared, id)
	delete(f.sessions, id)
	return nil
}

func (f *fakeStore) RecordCreator(batchID string) batch.RecordCreator {
	return &fakeStoreCreator{store: f, batchID: batchID}
}

func (f *fakeStore) UpdateBatchProgress(_ context.Context, _ string, completed int) error {
	f.progress = append(f.progress, completed)
	return nil
}

func (f *fakeStore) FinishBatch(_ context.Context, result batch.BatchResult) error {
	r := result
	f.finished = &r
	return nil
}

type fakeStoreCreator struct {
	store   *fakeStore
	batchID string
}

func (c *fakeStoreCreator) CreateRecord(_ context.Context, draft core.InstallmentDraft, _ core.InstallmentTemplate, _ core.PaymentMethod) (int64, error) {
	if err := c.store.failOn[draft.Sequence]; err != nil {
		return 0, err
	}
	c.store.nextID++
	return c.store.nextID, nil
}

type fakePublisher struct {
	messages []string
}

func (f *fakePublisher) PublishBatchResult(_ context.Context, batchID, status string, created, failed int) error {
	f.messages = append(f.messages, fmt.Sprintf("%s:%s:%d:%d", batchID, status, created, failed))
	return nil
}

func workerSnapshot(t *testing.T, count int) batch.SessionSnapshot {
	t.Helper()
	tpl := core.InstallmentTemplate{
		CreditorID:   1,
		CategoryID:   1,
		Description:  "lease",
		Amount:       core.Money{Cents: 5000},
		FirstDueDate: core.NewDate(2025, 4, 10),
		Count:        count,
		Interval:     core.Monthly,
	}
	return batch.SessionSnapshot{
		SessionID: "s1",
		Template:  tpl,
		Method:    core.PaymentMethod{Kind: core.CashOrPix},
		Drafts:    schedule.Generate(tpl),
	}
}

func TestHandleExecuteMessage(t *testing.T) {
	store := newFakeStore()
	publisher := &fakePublisher{}
	w := NewBatchWorker(store, publisher)

	payload, err := workerSnapshot(t, 3).Marshal()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	store.sessions["s1"] = payload

	msg := &amqp.BatchExecuteMessage{BatchID: "b1", SessionID: "s1"}
	if err := w.HandleExecuteMessage(context.Background(), msg); err != nil {
		t.Fatalf("handle: %v", err)
	}

	if store.finished == nil {
		t.Fatalf("expected result persisted")
	}
	if store.finished.Status != batch.StatusSucceeded {
		t.Fatalf("expected succeeded, got %s", store.finished.Status)
	}
	if len(store.progress) != 3 || store.progress[2] != 3 {
		t.Fatalf("expected progress up to 3, got %v", store.progress)
	}
	if len(store.cleared) != 1 || store.cleared[0] != "s1" {
		t.Fatalf("expected session cleared, got %v", store.cleared)
	}
	if len(publisher.messages) != 1 || publisher.messages[0] != "b1:succeeded:3:0" {
		t.Fatalf("unexpected result message: %v", publisher.messages)
	}
}

func TestHandleExecuteMessagePartialFailure(t *testing.T) {
	store := newFakeStore()
	store.failOn = map[int]error{2: errors.New("store rejected")}
	publisher := &fakePublisher{}
	w := NewBatchWorker(store, publisher)

	payload, err := workerSnapshot(t, 3).Marshal()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	store.sessions["s1"] = payload

	msg := &amqp.BatchExecuteMessage{BatchID: "b2", SessionID: "s1"}
	if err := w.HandleExecuteMessage(context.Background(), msg); err != nil {
		t.Fatalf("handle: %v", err)
	}

	if store.finished.Status != batch.StatusPartiallyFailed {
		t.Fatalf("expected partially_failed, got %s", store.finished.Status)
	}
	if got := store.finished.FailedSequences(); len(got) != 1 || got[0] != 2 {
		t.Fatalf("expected failed sequence 2, got %v", got)
	}
	if len(publisher.messages) != 1 || publisher.messages[0] != "b2:partially_failed:2:1" {
		t.Fatalf("unexpected result message: %v", publisher.messages)
	}
}

func TestHandleExecuteMessageMissingSession(t *testing.T) {
	store := newFakeStore()
	w := NewBatchWorker(store, nil)

	msg := &amqp.BatchExecuteMessage{BatchID: "b3", SessionID: "missing"}
	if err := w.HandleExecuteMessage(context.Background(), msg); err == nil {
		t.Fatalf("expected error so the delivery can be retried")
	}
	if store.finished != nil {
		t.Fatalf("no result must be persisted for a missing session")
	}
}

func TestHandleExecuteMessageNilPublisher(t *testing.T) {
	store := newFakeStore()
	w := NewBatchWorker(store, nil)

	payload, err := workerSnapshot(t, 2).Marshal()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	store.sessions["s1"] = payload

	msg := &amqp.BatchExecuteMessage{BatchID: "b4", SessionID: "s1"}
	if err := w.HandleExecuteMessage(context.Background(), msg); err != nil {
		t.Fatalf("handle with nil publisher: %v", err)
	}
}
