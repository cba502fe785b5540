package http

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"parcelas/internal/amqp"
	"parcelas/internal/batch"
	"parcelas/internal/core"
	applog "parcelas/internal/log"
	"parcelas/internal/storage"
)

// inProcessExecuteTimeout bounds a batch run when no broker is configured.
const inProcessExecuteTimeout = 10 * time.Minute

type templateRequest struct {
	CreditorID   int64  `json:"creditor_id"`
	CategoryID   int64  `json:"category_id"`
	Description  string `json:"description"`
	DocumentRef  string `json:"document_ref"`
	Amount       string `json:"amount"`
	FirstDueDate string `json:"first_due_date"`
	Count        int    `json:"count"`
	Interval     string `json:"interval"`
	EmissionDate string `json:"emission_date"`
	DDA          bool   `json:"dda"`
}

type methodRequest struct {
	Kind   string `json:"kind"`
	BankID int64  `json:"bank_id"`
}

type configureRequest struct {
	Template templateRequest `json:"template"`
	Method   methodRequest   `json:"payment_method"`
}

type draftResponse struct {
	Sequence     int    `json:"sequence"`
	DueDate      string `json:"due_date"`
	AmountCents  int64  `json:"amount_cents"`
	Status       string `json:"status"`
	ChequeNumber string `json:"cheque_number,omitempty"`
}

type validationErrorResponse struct {
	Field     string `json:"field"`
	Sequences []int  `json:"sequences,omitempty"`
	Message   string `json:"message"`
}

type sessionResponse struct {
	SessionID        string                    `json:"session_id"`
	State            string                    `json:"state"`
	Drafts           []draftResponse           `json:"drafts,omitempty"`
	ValidationErrors []validationErrorResponse `json:"validation_errors,omitempty"`
	Result           *batch.BatchResult        `json:"result,omitempty"`
}

func (req templateRequest) toTemplate() (core.InstallmentTemplate, error) {
	cents, err := core.ParseDecimalToCents(req.Amount)
	if err != nil {
		return core.InstallmentTemplate{}, err
	}
	first, err := parseDate(req.FirstDueDate)
	if err != nil {
		return core.InstallmentTemplate{}, err
	}
	tpl := core.InstallmentTemplate{
		CreditorID:   req.CreditorID,
		CategoryID:   req.CategoryID,
		Description:  sanitizeInput(req.Description),
		DocumentRef:  sanitizeInput(req.DocumentRef),
		Amount:       core.Money{Cents: cents},
		FirstDueDate: first,
		Count:        req.Count,
		Interval:     core.IntervalKind(req.Interval),
		DDA:          req.DDA,
	}
	if req.EmissionDate != "" {
		emission, err := parseDate(req.EmissionDate)
		if err != nil {
			return core.InstallmentTemplate{}, err
		}
		tpl.EmissionDate = emission
	}
	return tpl, nil
}

func draftsToResponse(drafts []core.InstallmentDraft) []draftResponse {
	out := make([]draftResponse, 0, len(drafts))
	for _, d := range drafts {
		out = append(out, draftResponse{
			Sequence:     d.Sequence,
			DueDate:      d.DueDate.Format("2006-01-02"),
			AmountCents:  d.Amount.Cents,
			Status:       string(d.Status),
			ChequeNumber: d.ChequeNumber,
		})
	}
	return out
}

func validationErrorsToResponse(errs []batch.ValidationError) []validationErrorResponse {
	out := make([]validationErrorResponse, 0, len(errs))
	for _, e := range errs {
		out = append(out, validationErrorResponse{
			Field:     e.Field,
			Sequences: e.Sequences,
			Message:   e.Message,
		})
	}
	return out
}

func (s *Server) sessionView(sess *batch.Session) sessionResponse {
	return sessionResponse{
		SessionID:        sess.ID(),
		State:            string(sess.State()),
		Drafts:           draftsToResponse(sess.Drafts()),
		ValidationErrors: validationErrorsToResponse(sess.ValidationErrors()),
		Result:           sess.Result(),
	}
}

// writeSessionError maps session errors to HTTP statuses: illegal
// transitions are conflicts, everything else is a bad request.
func writeSessionError(w http.ResponseWriter, err error) {
	var bad batch.ErrBadTransition
	if errors.As(err, &bad) {
		errorJSON(w, http.StatusConflict, err.Error())
		return
	}
	errorJSON(w, http.StatusUnprocessableEntity, err.Error())
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	sess := batch.NewSession(uuid.NewString())
	s.putSession(sess)

	applog.FromContext(r.Context()).InfoContext(r.Context(), "Batch session created",
		applog.FieldSessionID, sess.ID())
	writeJSON(w, http.StatusCreated, s.sessionView(sess))
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess := s.session(r.PathValue("id"))
	if sess == nil {
		errorJSON(w, http.StatusNotFound, "session not found")
		return
	}
	writeJSON(w, http.StatusOK, s.sessionView(sess))
}

func (s *Server) handleConfigureSession(w http.ResponseWriter, r *http.Request) {
	sess := s.session(r.PathValue("id"))
	if sess == nil {
		errorJSON(w, http.StatusNotFound, "session not found")
		return
	}

	var req configureRequest
	if err := readJSON(r, &req); err != nil {
		errorJSON(w, http.StatusBadRequest, "invalid request body")
		return
	}

	tpl, err := req.Template.toTemplate()
	if err != nil {
		errorJSON(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	method := core.PaymentMethod{Kind: core.PaymentKind(req.Method.Kind), BankID: req.Method.BankID}

	if err := sess.Configure(tpl, method); err != nil {
		writeSessionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.sessionView(sess))
}

func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	sess := s.session(r.PathValue("id"))
	if sess == nil {
		errorJSON(w, http.StatusNotFound, "session not found")
		return
	}

	if _, err := sess.Preview(); err != nil {
		writeSessionError(w, err)
		return
	}

	s.persistSnapshot(r.Context(), sess)
	writeJSON(w, http.StatusOK, s.sessionView(sess))
}

func (s *Server) handleOverrideDraft(w http.ResponseWriter, r *http.Request) {
	sess := s.session(r.PathValue("id"))
	if sess == nil {
		errorJSON(w, http.StatusNotFound, "session not found")
		return
	}

	seq, err := strconv.Atoi(r.PathValue("seq"))
	if err != nil {
		errorJSON(w, http.StatusBadRequest, "invalid draft sequence")
		return
	}

	var req struct {
		DueDate      *string `json:"due_date"`
		Amount       *string `json:"amount"`
		ChequeNumber *string `json:"cheque_number"`
	}
	if err := readJSON(r, &req); err != nil {
		errorJSON(w, http.StatusBadRequest, "invalid request body")
		return
	}

	var patch batch.DraftPatch
	if req.DueDate != nil {
		due, err := parseDate(*req.DueDate)
		if err != nil {
			errorJSON(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		patch.DueDate = &due
	}
	if req.Amount != nil {
		cents, err := core.ParseDecimalToCents(*req.Amount)
		if err != nil {
			errorJSON(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		amount := core.Money{Cents: cents}
		patch.Amount = &amount
	}
	if req.ChequeNumber != nil {
		cheque := sanitizeInput(*req.ChequeNumber)
		patch.ChequeNumber = &cheque
	}

	if err := sess.Override(seq, patch); err != nil {
		writeSessionError(w, err)
		return
	}

	s.persistSnapshot(r.Context(), sess)
	writeJSON(w, http.StatusOK, s.sessionView(sess))
}

func (s *Server) handleAssignCheques(w http.ResponseWriter, r *http.Request) {
	sess := s.session(r.PathValue("id"))
	if sess == nil {
		errorJSON(w, http.StatusNotFound, "session not found")
		return
	}

	var req struct {
		First string `json:"first"`
	}
	if err := readJSON(r, &req); err != nil {
		errorJSON(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := sess.AssignCheques(sanitizeInput(req.First)); err != nil {
		writeSessionError(w, err)
		return
	}

	s.persistSnapshot(r.Context(), sess)
	writeJSON(w, http.StatusOK, s.sessionView(sess))
}

func (s *Server) handleRegenerate(w http.ResponseWriter, r *http.Request) {
	sess := s.session(r.PathValue("id"))
	if sess == nil {
		errorJSON(w, http.StatusNotFound, "session not found")
		return
	}

	if err := sess.Regenerate(); err != nil {
		writeSessionError(w, err)
		return
	}

	s.persistSnapshot(r.Context(), sess)
	writeJSON(w, http.StatusOK, s.sessionView(sess))
}

func (s *Server) handleReconfigure(w http.ResponseWriter, r *http.Request) {
	sess := s.session(r.PathValue("id"))
	if sess == nil {
		errorJSON(w, http.StatusNotFound, "session not found")
		return
	}

	if err := sess.Reconfigure(); err != nil {
		writeSessionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.sessionView(sess))
}

func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	sess := s.session(r.PathValue("id"))
	if sess == nil {
		errorJSON(w, http.StatusNotFound, "session not found")
		return
	}

	result, err := sess.Validate(r.Context(), s.store)
	if err != nil {
		var bad batch.ErrBadTransition
		if errors.As(err, &bad) {
			errorJSON(w, http.StatusConflict, err.Error())
			return
		}
		applog.FromContext(r.Context()).ErrorContext(r.Context(), "Cheque index lookup failed",
			applog.FieldError, err, applog.FieldSessionID, sess.ID())
		errorJSON(w, http.StatusBadGateway, "cheque index unavailable")
		return
	}

	writeJSON(w, http.StatusOK, struct {
		OK     bool                      `json:"ok"`
		State  string                    `json:"state"`
		Errors []validationErrorResponse `json:"errors,omitempty"`
	}{
		OK:     result.OK(),
		State:  string(sess.State()),
		Errors: validationErrorsToResponse(result.Errors),
	})
}

func (s *Server) handleConfirm(w http.ResponseWriter, r *http.Request) {
	sess := s.session(r.PathValue("id"))
	if sess == nil {
		errorJSON(w, http.StatusNotFound, "session not found")
		return
	}
	if sess.State() != batch.StateAwaitingConfirmation {
		errorJSON(w, http.StatusConflict, "session is not awaiting confirmation")
		return
	}

	ctx := r.Context()
	logger := applog.FromContext(ctx)

	snapshot := sess.Snapshot()
	payload, err := snapshot.Marshal()
	if err != nil {
		logger.ErrorContext(ctx, "Snapshot marshal failed", applog.FieldError, err)
		errorJSON(w, http.StatusInternalServerError, "could not persist session")
		return
	}
	if err := s.store.SaveSession(ctx, sess.ID(), payload); err != nil {
		logger.ErrorContext(ctx, "Session save failed", applog.FieldError, err)
		errorJSON(w, http.StatusInternalServerError, "could not persist session")
		return
	}

	batchID := uuid.NewString()
	if err := s.store.CreateBatch(ctx, batchID, sess.ID(), len(snapshot.Drafts)); err != nil {
		logger.ErrorContext(ctx, "Batch row create failed", applog.FieldError, err)
		errorJSON(w, http.StatusInternalServerError, "could not create batch")
		return
	}

	if err := sess.Confirm(); err != nil {
		// Another request won the confirmation race; the pending batch row
		// stays behind and is never executed.
		logger.WarnContext(ctx, "Confirmation lost race",
			applog.FieldSessionID, sess.ID(), applog.FieldBatchID, batchID)
		writeSessionError(w, err)
		return
	}

	msg := amqp.NewBatchExecuteMessage(batchID, sess.ID())
	if s.publisher != nil {
		if err := s.publisher.PublishBatchExecute(ctx, batchID, sess.ID()); err != nil {
			logger.ErrorContext(ctx, "Batch execute publish failed",
				applog.FieldError, err, applog.FieldBatchID, batchID)
			errorJSON(w, http.StatusBadGateway, "could not hand batch to worker")
			return
		}
	} else {
		go s.runInProcess(msg)
	}

	logger.InfoContext(ctx, "Batch confirmed",
		applog.FieldBatchID, batchID,
		applog.FieldSessionID, sess.ID(),
		applog.FieldCount, len(snapshot.Drafts))

	writeJSON(w, http.StatusAccepted, map[string]string{
		"batch_id":   batchID,
		"session_id": sess.ID(),
		"state":      string(sess.State()),
	})
}

// runInProcess executes a confirmed batch without a broker. The request
// context is not used; execution outlives the confirming request.
func (s *Server) runInProcess(msg *amqp.BatchExecuteMessage) {
	ctx, cancel := context.WithTimeout(context.Background(), inProcessExecuteTimeout)
	defer cancel()

	if err := s.runner.HandleExecuteMessage(ctx, msg); err != nil {
		s.logger.Error("In-process batch execution failed",
			applog.FieldBatchID, msg.BatchID,
			applog.FieldError, err)
	}
}

func (s *Server) handleCancelConfirmation(w http.ResponseWriter, r *http.Request) {
	sess := s.session(r.PathValue("id"))
	if sess == nil {
		errorJSON(w, http.StatusNotFound, "session not found")
		return
	}

	if err := sess.CancelConfirmation(); err != nil {
		writeSessionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.sessionView(sess))
}

func (s *Server) handleResetSession(w http.ResponseWriter, r *http.Request) {
	sess := s.session(r.PathValue("id"))
	if sess == nil {
		errorJSON(w, http.StatusNotFound, "session not found")
		return
	}

	var req struct {
		Prefill bool `json:"prefill"`
	}
	if err := readJSON(r, &req); err != nil {
		errorJSON(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := sess.Reset(req.Prefill); err != nil {
		writeSessionError(w, err)
		return
	}
	if err := s.store.ClearSession(r.Context(), sess.ID()); err != nil {
		applog.FromContext(r.Context()).WarnContext(r.Context(), "Session clear failed",
			applog.FieldError, err, applog.FieldSessionID, sess.ID())
	}
	writeJSON(w, http.StatusOK, s.sessionView(sess))
}

// handleRestoreSession rebuilds an in-memory session from its persisted
// snapshot so an unfinished batch survives a server restart.
func (s *Server) handleRestoreSession(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")

	payload, err := s.store.LoadSession(r.Context(), sessionID)
	if errors.Is(err, storage.ErrNotFound) {
		errorJSON(w, http.StatusNotFound, "no saved session")
		return
	}
	if err != nil {
		applog.FromContext(r.Context()).ErrorContext(r.Context(), "Session load failed",
			applog.FieldError, err, applog.FieldSessionID, sessionID)
		errorJSON(w, http.StatusInternalServerError, "could not load session")
		return
	}

	snapshot, err := batch.UnmarshalSnapshot(payload)
	if err != nil {
		errorJSON(w, http.StatusInternalServerError, "saved session is corrupt")
		return
	}

	sess := batch.RestoreSession(snapshot)
	s.putSession(sess)

	applog.FromContext(r.Context()).InfoContext(r.Context(), "Batch session restored",
		applog.FieldSessionID, sessionID,
		applog.FieldCount, len(snapshot.Drafts))
	writeJSON(w, http.StatusOK, s.sessionView(sess))
}

func (s *Server) handleGetBatch(w http.ResponseWriter, r *http.Request) {
	batchID := r.PathValue("id")

	status, err := s.store.GetBatchStatus(r.Context(), batchID)
	if errors.Is(err, storage.ErrNotFound) {
		errorJSON(w, http.StatusNotFound, "batch not found")
		return
	}
	if err != nil {
		applog.FromContext(r.Context()).ErrorContext(r.Context(), "Batch status read failed",
			applog.FieldError, err, applog.FieldBatchID, batchID)
		errorJSON(w, http.StatusInternalServerError, "could not read batch status")
		return
	}

	// Fold the terminal result back into the in-memory session, if any.
	if status.Result != nil {
		if sess := s.session(status.SessionID); sess != nil && sess.State() == batch.StateExecuting {
			if err := sess.Complete(*status.Result); err == nil {
				s.invalidateEntriesCache()
			}
		}
	}

	writeJSON(w, http.StatusOK, status)
}

// persistSnapshot saves the session's drafts best-effort so an unfinished
// batch can be restored later. Failures are logged and not surfaced.
func (s *Server) persistSnapshot(ctx context.Context, sess *batch.Session) {
	payload, err := sess.Snapshot().Marshal()
	if err == nil {
		err = s.store.SaveSession(ctx, sess.ID(), payload)
	}
	if err != nil {
		applog.FromContext(ctx).WarnContext(ctx, "Session snapshot save failed",
			applog.FieldError, err, applog.FieldSessionID, sess.ID())
	}
}
