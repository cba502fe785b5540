// Package batch implements batch installment creation: draft overrides,
// payment-method validation, tracked sequential execution and the session
// lifecycle that ties them together.
package batch

const (
	// StatusSucceeded means every installment was created.
	StatusSucceeded BatchStatus = "succeeded"
	// StatusPartiallyFailed means at least one installment was created and
	// at least one was not.
	StatusPartiallyFailed BatchStatus = "partially_failed"
	// StatusFailed means installments were attempted but none were created.
	StatusFailed BatchStatus = "failed"
	// StatusAbortedBeforeStart means validation failed and no installment
	// was ever attempted.
	StatusAbortedBeforeStart BatchStatus = "aborted_before_start"
)

type BatchStatus string

// ItemOutcome records what happened to one draft during execution.
// Outcomes are appended strictly in ascending sequence order.
type ItemOutcome struct {
	Sequence int    `json:"sequence"`
	Created  bool   `json:"created"`
	RecordID int64  `json:"record_id,omitempty"`
	Reason   string `json:"reason,omitempty"`
}

// BatchResult is the immutable terminal value of one batch execution.
type BatchResult struct {
	BatchID  string        `json:"batch_id"`
	Total    int           `json:"total"`
	Outcomes []ItemOutcome `json:"outcomes"`
	Status   BatchStatus   `json:"status"`
}

// CreatedCount returns how many installments were created.
func (r BatchResult) CreatedCount() int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Created {
			n++
		}
	}
	return n
}

// FailedCount returns how many attempted installments failed.
func (r BatchResult) FailedCount() int {
	n := 0
	for _, o := range r.Outcomes {
		if !o.Created {
			n++
		}
	}
	return n
}

// FailedSequences returns the sequence numbers of failed installments, in
// order, so a caller can re-submit just those.
func (r BatchResult) FailedSequences() []int {
	var seqs []int
	for _, o := range r.Outcomes {
		if !o.Created {
			seqs = append(seqs, o.Sequence)
		}
	}
	return seqs
}
