package batch

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"parcelas/internal/core"
	"parcelas/internal/schedule"
)

const (
	StateConfiguring          SessionState = "configuring"
	StatePreviewReady         SessionState = "preview_ready"
	StateValidating           SessionState = "validating"
	StateAwaitingConfirmation SessionState = "awaiting_confirmation"
	StateExecuting            SessionState = "executing"
	StateCompleted            SessionState = "completed"
	StateFailed               SessionState = "failed"
)

type SessionState string

// ErrBadTransition reports an operation called in the wrong session state.
type ErrBadTransition struct {
	From SessionState
	Op   string
}

func (e ErrBadTransition) Error() string {
	return fmt.Sprintf("cannot %s in state %s", e.Op, e.From)
}

// Session drives one batch through its lifecycle:
// configuring -> preview_ready -> validating -> awaiting_confirmation ->
// executing -> completed/failed. A session runs at most one execution; a
// new batch must wait for the prior session's terminal state.
type Session struct {
	mu sync.Mutex

	id     string
	state  SessionState
	tpl    core.InstallmentTemplate
	method core.PaymentMethod
	drafts []core.InstallmentDraft
	errs   []ValidationError
	result *BatchResult
}

func NewSession(id string) *Session {
	return &Session{id: id, state: StateConfiguring}
}

// RestoreSession rebuilds a session from a persisted snapshot, resuming in
// preview_ready with the saved drafts and their edits intact.
func RestoreSession(sn SessionSnapshot) *Session {
	return &Session{
		id:     sn.SessionID,
		state:  StatePreviewReady,
		tpl:    sn.Template,
		method: sn.Method,
		drafts: append([]core.InstallmentDraft(nil), sn.Drafts...),
	}
}

func (s *Session) ID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id
}

func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Configure sets or replaces the template and payment method. Template
// errors keep the session configuring. Changing template fields while
// edited drafts exist never regenerates them implicitly; regeneration is
// always an explicit Regenerate call.
func (s *Session) Configure(tpl core.InstallmentTemplate, method core.PaymentMethod) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateConfiguring && s.state != StatePreviewReady {
		return ErrBadTransition{From: s.state, Op: "configure"}
	}
	if err := tpl.Validate(); err != nil {
		return fmt.Errorf("template: %w", err)
	}
	if err := method.Validate(); err != nil {
		return fmt.Errorf("payment method: %w", err)
	}

	s.tpl = tpl
	s.method = method
	s.errs = nil
	s.state = StateConfiguring
	return nil
}

// Preview generates the draft schedule and moves to preview_ready.
func (s *Session) Preview() ([]core.InstallmentDraft, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateConfiguring {
		return nil, ErrBadTransition{From: s.state, Op: "preview"}
	}
	if err := s.tpl.Validate(); err != nil {
		return nil, fmt.Errorf("template: %w", err)
	}

	s.drafts = schedule.Generate(s.tpl)
	s.state = StatePreviewReady
	return s.draftsCopy(), nil
}

// Drafts returns a copy of the current draft list.
func (s *Session) Drafts() []core.InstallmentDraft {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.draftsCopy()
}

func (s *Session) Template() core.InstallmentTemplate {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tpl
}

func (s *Session) Method() core.PaymentMethod {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.method
}

// Override patches a single draft by sequence number.
func (s *Session) Override(sequence int, patch DraftPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StatePreviewReady {
		return ErrBadTransition{From: s.state, Op: "override draft"}
	}
	drafts, err := ApplyOverride(s.drafts, sequence, patch)
	if err != nil {
		return err
	}
	s.drafts = drafts
	return nil
}

// AssignCheques numbers every unnumbered draft sequentially from first.
func (s *Session) AssignCheques(first string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StatePreviewReady {
		return ErrBadTransition{From: s.state, Op: "assign cheques"}
	}
	drafts, err := AssignChequeSequence(s.drafts, first)
	if err != nil {
		return err
	}
	s.drafts = drafts
	return nil
}

// Regenerate discards every edit and rebuilds the schedule from the
// current template. Only ever invoked by explicit user action.
func (s *Session) Regenerate() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StatePreviewReady {
		return ErrBadTransition{From: s.state, Op: "regenerate"}
	}
	s.drafts = schedule.Generate(s.tpl)
	s.errs = nil
	return nil
}

// Reconfigure returns to configuring for template changes. Drafts and
// their edits are kept untouched until Preview or Regenerate runs again.
func (s *Session) Reconfigure() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StatePreviewReady {
		return ErrBadTransition{From: s.state, Op: "reconfigure"}
	}
	s.state = StateConfiguring
	return nil
}

// Validate runs the payment-method validator. On failure the session
// returns to preview_ready with the errors attached; on success it awaits
// explicit confirmation. The returned error is reserved for index lookup
// failures, which also leave the session in preview_ready.
func (s *Session) Validate(ctx context.Context, index ChequeIndex) (ValidationResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StatePreviewReady {
		return ValidationResult{}, ErrBadTransition{From: s.state, Op: "validate"}
	}
	s.state = StateValidating

	result, err := ValidateMethod(ctx, s.method, s.drafts, index)
	if err != nil {
		s.state = StatePreviewReady
		return ValidationResult{}, err
	}

	if !result.OK() {
		s.errs = result.Errors
		s.state = StatePreviewReady
		return result, nil
	}

	s.errs = nil
	s.state = StateAwaitingConfirmation
	return result, nil
}

// ValidationErrors returns the errors attached by the last failed Validate.
func (s *Session) ValidationErrors() []ValidationError {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ValidationError, len(s.errs))
	copy(out, s.errs)
	return out
}

// Confirm is the explicit user confirmation that starts execution.
func (s *Session) Confirm() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateAwaitingConfirmation {
		return ErrBadTransition{From: s.state, Op: "confirm"}
	}
	s.state = StateExecuting
	return nil
}

// CancelConfirmation backs out of the confirmation summary.
func (s *Session) CancelConfirmation() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateAwaitingConfirmation {
		return ErrBadTransition{From: s.state, Op: "cancel confirmation"}
	}
	s.state = StatePreviewReady
	return nil
}

// Complete records the terminal result of the execution.
func (s *Session) Complete(result BatchResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateExecuting {
		return ErrBadTransition{From: s.state, Op: "complete"}
	}
	r := result
	s.result = &r
	if result.Status == StatusAbortedBeforeStart {
		s.state = StateFailed
	} else {
		s.state = StateCompleted
	}
	return nil
}

// Result returns the terminal batch result, or nil before completion.
func (s *Session) Result() *BatchResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.result == nil {
		return nil
	}
	r := *s.result
	return &r
}

// Reset clears a terminal session back to configuring. With prefill the
// template and payment method are kept to seed the next batch.
func (s *Session) Reset(prefill bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateCompleted && s.state != StateFailed {
		return ErrBadTransition{From: s.state, Op: "reset"}
	}
	if !prefill {
		s.tpl = core.InstallmentTemplate{}
		s.method = core.PaymentMethod{}
	}
	s.drafts = nil
	s.errs = nil
	s.result = nil
	s.state = StateConfiguring
	return nil
}

func (s *Session) draftsCopy() []core.InstallmentDraft {
	out := make([]core.InstallmentDraft, len(s.drafts))
	copy(out, s.drafts)
	return out
}

// SessionSnapshot is the serialized form of a session's batch inputs,
// saved through a DraftRepository so an unfinished batch survives process
// restarts and so the worker can load exactly what the user confirmed.
type SessionSnapshot struct {
	SessionID string                   `json:"session_id"`
	Template  core.InstallmentTemplate `json:"template"`
	Method    core.PaymentMethod       `json:"method"`
	Drafts    []core.InstallmentDraft  `json:"drafts"`
	SavedAt   time.Time                `json:"saved_at"`
}

// Snapshot captures the session's current batch inputs.
func (s *Session) Snapshot() SessionSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return SessionSnapshot{
		SessionID: s.id,
		Template:  s.tpl,
		Method:    s.method,
		Drafts:    s.draftsCopy(),
		SavedAt:   time.Now().UTC(),
	}
}

func (sn SessionSnapshot) Marshal() ([]byte, error) {
	return json.Marshal(sn)
}

func UnmarshalSnapshot(data []byte) (SessionSnapshot, error) {
	var sn SessionSnapshot
	if err := json.Unmarshal(data, &sn); err != nil {
		return SessionSnapshot{}, fmt.Errorf("unmarshal session snapshot: %w", err)
	}
	return sn, nil
}

// DraftRepository persists serialized session snapshots so the caller can
// recover an unfinished batch. Backed by any persistence medium.
type DraftRepository interface {
	SaveSession(ctx context.Context, sessionID string, payload []byte) error
	LoadSession(ctx context.Context, sessionID string) ([]byte, error)
	ClearSession(ctx context.Context, sessionID string) error
}
