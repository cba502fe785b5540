package http

import (
	"net/http"

	applog "parcelas/internal/log"
)

// Reference data changes rarely; list responses are served from the LRU
// caches and dropped on every mutation.

const (
	categoriesCacheKey = "categories"
	contactsCacheKey   = "contacts"
	banksCacheKey      = "banks"
)

type categoryResponse struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type contactResponse struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Document string `json:"document,omitempty"`
}

type bankResponse struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	Code string `json:"code,omitempty"`
}

func (s *Server) handleCreateCategory(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if err := readJSON(r, &req); err != nil {
		errorJSON(w, http.StatusBadRequest, "invalid request body")
		return
	}
	name := sanitizeInput(req.Name)
	if name == "" {
		errorJSON(w, http.StatusUnprocessableEntity, "category name is required")
		return
	}

	c, err := s.store.CreateCategory(r.Context(), name)
	if err != nil {
		applog.FromContext(r.Context()).ErrorContext(r.Context(), "Create category failed", applog.FieldError, err)
		errorJSON(w, http.StatusInternalServerError, "could not create category")
		return
	}

	s.catCache.Delete(categoriesCacheKey)
	writeJSON(w, http.StatusCreated, categoryResponse{ID: c.ID, Name: c.Name})
}

func (s *Server) handleListCategories(w http.ResponseWriter, r *http.Request) {
	cats, found := s.catCache.Get(categoriesCacheKey)
	if !found {
		var err error
		cats, err = s.store.ListCategories(r.Context())
		if err != nil {
			applog.FromContext(r.Context()).ErrorContext(r.Context(), "List categories failed", applog.FieldError, err)
			errorJSON(w, http.StatusInternalServerError, "could not list categories")
			return
		}
		s.catCache.Set(categoriesCacheKey, cats)
	}

	out := make([]categoryResponse, 0, len(cats))
	for _, c := range cats {
		out = append(out, categoryResponse{ID: c.ID, Name: c.Name})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleDeleteCategory(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		errorJSON(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.store.DeleteCategory(r.Context(), id); err != nil {
		applog.FromContext(r.Context()).ErrorContext(r.Context(), "Delete category failed", applog.FieldError, err)
		errorJSON(w, http.StatusInternalServerError, "could not delete category")
		return
	}
	s.catCache.Delete(categoriesCacheKey)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCreateContact(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name     string `json:"name"`
		Document string `json:"document"`
	}
	if err := readJSON(r, &req); err != nil {
		errorJSON(w, http.StatusBadRequest, "invalid request body")
		return
	}
	name := sanitizeInput(req.Name)
	if name == "" {
		errorJSON(w, http.StatusUnprocessableEntity, "contact name is required")
		return
	}

	c, err := s.store.CreateContact(r.Context(), name, sanitizeInput(req.Document))
	if err != nil {
		applog.FromContext(r.Context()).ErrorContext(r.Context(), "Create contact failed", applog.FieldError, err)
		errorJSON(w, http.StatusInternalServerError, "could not create contact")
		return
	}

	s.contactCache.Delete(contactsCacheKey)
	writeJSON(w, http.StatusCreated, contactResponse{ID: c.ID, Name: c.Name, Document: c.Document})
}

func (s *Server) handleListContacts(w http.ResponseWriter, r *http.Request) {
	contacts, found := s.contactCache.Get(contactsCacheKey)
	if !found {
		var err error
		contacts, err = s.store.ListContacts(r.Context())
		if err != nil {
			applog.FromContext(r.Context()).ErrorContext(r.Context(), "List contacts failed", applog.FieldError, err)
			errorJSON(w, http.StatusInternalServerError, "could not list contacts")
			return
		}
		s.contactCache.Set(contactsCacheKey, contacts)
	}

	out := make([]contactResponse, 0, len(contacts))
	for _, c := range contacts {
		out = append(out, contactResponse{ID: c.ID, Name: c.Name, Document: c.Document})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleDeleteContact(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		errorJSON(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.store.DeleteContact(r.Context(), id); err != nil {
		applog.FromContext(r.Context()).ErrorContext(r.Context(), "Delete contact failed", applog.FieldError, err)
		errorJSON(w, http.StatusInternalServerError, "could not delete contact")
		return
	}
	s.contactCache.Delete(contactsCacheKey)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCreateBank(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
		Code string `json:"code"`
	}
	if err := readJSON(r, &req); err != nil {
		errorJSON(w, http.StatusBadRequest, "invalid request body")
		return
	}
	name := sanitizeInput(req.Name)
	if name == "" {
		errorJSON(w, http.StatusUnprocessableEntity, "bank name is required")
		return
	}

	b, err := s.store.CreateBank(r.Context(), name, sanitizeInput(req.Code))
	if err != nil {
		applog.FromContext(r.Context()).ErrorContext(r.Context(), "Create bank failed", applog.FieldError, err)
		errorJSON(w, http.StatusInternalServerError, "could not create bank")
		return
	}

	s.bankCache.Delete(banksCacheKey)
	writeJSON(w, http.StatusCreated, bankResponse{ID: b.ID, Name: b.Name, Code: b.Code})
}

func (s *Server) handleListBanks(w http.ResponseWriter, r *http.Request) {
	banks, found := s.bankCache.Get(banksCacheKey)
	if !found {
		var err error
		banks, err = s.store.ListBanks(r.Context())
		if err != nil {
			applog.FromContext(r.Context()).ErrorContext(r.Context(), "List banks failed", applog.FieldError, err)
			errorJSON(w, http.StatusInternalServerError, "could not list banks")
			return
		}
		s.bankCache.Set(banksCacheKey, banks)
	}

	out := make([]bankResponse, 0, len(banks))
	for _, b := range banks {
		out = append(out, bankResponse{ID: b.ID, Name: b.Name, Code: b.Code})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleDeleteBank(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		errorJSON(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.store.DeleteBank(r.Context(), id); err != nil {
		applog.FromContext(r.Context()).ErrorContext(r.Context(), "Delete bank failed", applog.FieldError, err)
		errorJSON(w, http.StatusInternalServerError, "could not delete bank")
		return
	}
	s.bankCache.Delete(banksCacheKey)
	w.WriteHeader(http.StatusNoContent)
}
