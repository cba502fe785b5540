package http

import (
	"errors"
	"net/http"
	"strconv"

	"parcelas/internal/core"
	applog "parcelas/internal/log"
	"parcelas/internal/storage"
)

type entryRequest struct {
	CreditorID   int64  `json:"creditor_id"`
	CategoryID   int64  `json:"category_id"`
	Description  string `json:"description"`
	DocumentRef  string `json:"document_ref"`
	Amount       string `json:"amount"`
	DueDate      string `json:"due_date"`
	EmissionDate string `json:"emission_date"`
	DDA          bool   `json:"dda"`
	PaymentKind  string `json:"payment_kind"`
	BankID       int64  `json:"bank_id"`
	ChequeNumber string `json:"cheque_number"`
}

type entryResponse struct {
	ID           int64  `json:"id"`
	CreditorID   int64  `json:"creditor_id"`
	CategoryID   int64  `json:"category_id"`
	Description  string `json:"description"`
	DocumentRef  string `json:"document_ref,omitempty"`
	DueDate      string `json:"due_date"`
	EmissionDate string `json:"emission_date,omitempty"`
	AmountCents  int64  `json:"amount_cents"`
	DDA          bool   `json:"dda"`
	PaymentKind  string `json:"payment_kind"`
	BankID       int64  `json:"bank_id,omitempty"`
	ChequeNumber string `json:"cheque_number,omitempty"`
	BatchID      string `json:"batch_id,omitempty"`
}

func entryToResponse(e core.PayableEntry) entryResponse {
	out := entryResponse{
		ID:           e.ID,
		CreditorID:   e.CreditorID,
		CategoryID:   e.CategoryID,
		Description:  e.Description,
		DocumentRef:  e.DocumentRef,
		DueDate:      e.DueDate.Format("2006-01-02"),
		AmountCents:  e.Amount.Cents,
		DDA:          e.DDA,
		PaymentKind:  string(e.PaymentKind),
		BankID:       e.BankID,
		ChequeNumber: e.ChequeNumber,
		BatchID:      e.BatchID,
	}
	if !e.EmissionDate.IsZero() {
		out.EmissionDate = e.EmissionDate.Format("2006-01-02")
	}
	return out
}

func (req entryRequest) toEntry() (core.PayableEntry, error) {
	cents, err := core.ParseDecimalToCents(req.Amount)
	if err != nil {
		return core.PayableEntry{}, err
	}
	due, err := parseDate(req.DueDate)
	if err != nil {
		return core.PayableEntry{}, err
	}
	e := core.PayableEntry{
		CreditorID:   req.CreditorID,
		CategoryID:   req.CategoryID,
		Description:  sanitizeInput(req.Description),
		DocumentRef:  sanitizeInput(req.DocumentRef),
		DueDate:      due,
		Amount:       core.Money{Cents: cents},
		DDA:          req.DDA,
		PaymentKind:  core.PaymentKind(req.PaymentKind),
		BankID:       req.BankID,
		ChequeNumber: sanitizeInput(req.ChequeNumber),
	}
	if req.EmissionDate != "" {
		emission, err := parseDate(req.EmissionDate)
		if err != nil {
			return core.PayableEntry{}, err
		}
		e.EmissionDate = emission
	}
	return e, nil
}

func (s *Server) handleCreateEntry(w http.ResponseWriter, r *http.Request) {
	var req entryRequest
	if err := readJSON(r, &req); err != nil {
		errorJSON(w, http.StatusBadRequest, "invalid request body")
		return
	}

	entry, err := req.toEntry()
	if err != nil {
		errorJSON(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	if err := entry.Validate(); err != nil {
		errorJSON(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	id, err := s.store.CreateEntry(r.Context(), entry)
	if errors.Is(err, storage.ErrDuplicateCheque) {
		errorJSON(w, http.StatusConflict, err.Error())
		return
	}
	if err != nil {
		applog.FromContext(r.Context()).ErrorContext(r.Context(), "Create entry failed", applog.FieldError, err)
		errorJSON(w, http.StatusInternalServerError, "could not create entry")
		return
	}

	entry.ID = id
	s.invalidateEntriesCache()
	writeJSON(w, http.StatusCreated, entryToResponse(entry))
}

func (s *Server) handleListEntries(w http.ResponseWriter, r *http.Request) {
	year, month := parseYearMonth(r)
	key := strconv.Itoa(year) + "-" + strconv.Itoa(month)

	entries, found := s.entriesCache.Get(key)
	if !found {
		var err error
		entries, err = s.store.ListEntriesByMonth(r.Context(), year, month)
		if err != nil {
			applog.FromContext(r.Context()).ErrorContext(r.Context(), "List entries failed",
				applog.FieldError, err, "year", year, "month", month)
			errorJSON(w, http.StatusInternalServerError, "could not list entries")
			return
		}
		s.entriesCache.Set(key, entries)
	}

	out := make([]entryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, entryToResponse(e))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetEntry(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		errorJSON(w, http.StatusBadRequest, err.Error())
		return
	}

	entry, err := s.store.GetEntry(r.Context(), id)
	if errors.Is(err, storage.ErrNotFound) {
		errorJSON(w, http.StatusNotFound, "entry not found")
		return
	}
	if err != nil {
		applog.FromContext(r.Context()).ErrorContext(r.Context(), "Get entry failed", applog.FieldError, err)
		errorJSON(w, http.StatusInternalServerError, "could not read entry")
		return
	}
	writeJSON(w, http.StatusOK, entryToResponse(entry))
}

func (s *Server) handleDeleteEntry(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		errorJSON(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.store.DeleteEntry(r.Context(), id); err != nil {
		applog.FromContext(r.Context()).ErrorContext(r.Context(), "Delete entry failed", applog.FieldError, err)
		errorJSON(w, http.StatusInternalServerError, "could not delete entry")
		return
	}
	s.invalidateEntriesCache()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListBatchEntries(w http.ResponseWriter, r *http.Request) {
	batchID := r.PathValue("id")
	entries, err := s.store.ListEntriesByBatch(r.Context(), batchID)
	if err != nil {
		applog.FromContext(r.Context()).ErrorContext(r.Context(), "List batch entries failed",
			applog.FieldError, err, applog.FieldBatchID, batchID)
		errorJSON(w, http.StatusInternalServerError, "could not list batch entries")
		return
	}

	out := make([]entryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, entryToResponse(e))
	}
	writeJSON(w, http.StatusOK, out)
}
