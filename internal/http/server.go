// Package http exposes the JSON API: reference data CRUD, payable entries
// and the installment batch session lifecycle.
package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"parcelas/internal/amqp"
	"parcelas/internal/batch"
	"parcelas/internal/cache"
	"parcelas/internal/core"
	applog "parcelas/internal/log"
	"parcelas/internal/storage"
)

// ReferenceStore provides CRUD for categories, contacts and banks.
type ReferenceStore interface {
	CreateCategory(ctx context.Context, name string) (storage.Category, error)
	ListCategories(ctx context.Context) ([]storage.Category, error)
	DeleteCategory(ctx context.Context, id int64) error
	CreateContact(ctx context.Context, name, document string) (storage.Contact, error)
	ListContacts(ctx context.Context) ([]storage.Contact, error)
	DeleteContact(ctx context.Context, id int64) error
	CreateBank(ctx context.Context, name, code string) (storage.Bank, error)
	ListBanks(ctx context.Context) ([]storage.Bank, error)
	DeleteBank(ctx context.Context, id int64) error
}

// EntryStore provides persistence for payable entries.
type EntryStore interface {
	CreateEntry(ctx context.Context, e core.PayableEntry) (int64, error)
	GetEntry(ctx context.Context, id int64) (core.PayableEntry, error)
	ListEntriesByMonth(ctx context.Context, year, month int) ([]core.PayableEntry, error)
	ListEntriesByBatch(ctx context.Context, batchID string) ([]core.PayableEntry, error)
	DeleteEntry(ctx context.Context, id int64) error
}

// BatchStore provides the persistence surface of the batch lifecycle:
// cheque lookups during validation, session snapshots and batch rows.
type BatchStore interface {
	batch.ChequeIndex
	batch.DraftRepository
	CreateBatch(ctx context.Context, batchID, sessionID string, total int) error
	GetBatchStatus(ctx context.Context, batchID string) (storage.BatchStatus, error)
}

// Store is the full storage surface the server depends on.
type Store interface {
	ReferenceStore
	EntryStore
	BatchStore
}

// ExecutePublisher hands confirmed batches to the worker over the broker.
type ExecutePublisher interface {
	PublishBatchExecute(ctx context.Context, batchID, sessionID string) error
}

// InProcessRunner executes confirmed batches in-process when no broker is
// configured.
type InProcessRunner interface {
	HandleExecuteMessage(ctx context.Context, msg *amqp.BatchExecuteMessage) error
}

// Options tunes server caching behavior.
type Options struct {
	CacheSize int
	CacheTTL  time.Duration
}

type Server struct {
	http.Server

	store     Store
	publisher ExecutePublisher
	runner    InProcessRunner
	logger    *applog.Logger
	httpLog   *applog.HTTPLogger

	rateLimiter *rateLimiter

	sessionsMu sync.RWMutex
	sessions   map[string]*batch.Session

	catCache     *cache.LRU[[]storage.Category]
	contactCache *cache.LRU[[]storage.Contact]
	bankCache    *cache.LRU[[]storage.Bank]
	entriesCache *cache.LRU[[]core.PayableEntry]
	sweeper      *cache.Sweeper

	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run
// server. publisher may be nil; confirmed batches then run through runner
// in-process. runner must be non-nil when publisher is nil.
func NewServer(addr string, store Store, publisher ExecutePublisher, runner InProcessRunner, logger *applog.Logger, opts Options) *Server {
	if opts.CacheSize < 1 {
		opts.CacheSize = 100
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = 5 * time.Minute
	}

	mux := http.NewServeMux()

	s := &Server{
		Server: http.Server{
			Addr:    addr,
			Handler: mux,
		},
		store:        store,
		publisher:    publisher,
		runner:       runner,
		logger:       logger.WithComponent(applog.ComponentHTTP),
		rateLimiter:  newRateLimiter(),
		sessions:     make(map[string]*batch.Session),
		catCache:     cache.NewLRU[[]storage.Category](opts.CacheSize, opts.CacheTTL),
		contactCache: cache.NewLRU[[]storage.Contact](opts.CacheSize, opts.CacheTTL),
		bankCache:    cache.NewLRU[[]storage.Bank](opts.CacheSize, opts.CacheTTL),
		entriesCache: cache.NewLRU[[]core.PayableEntry](opts.CacheSize, opts.CacheTTL),
		sweeper:      cache.NewSweeper(),
	}
	s.httpLog = applog.NewHTTPLogger(s.logger)

	s.sweeper.Register(s.catCache)
	s.sweeper.Register(s.contactCache)
	s.sweeper.Register(s.bankCache)
	s.sweeper.Register(s.entriesCache)
	s.sweeper.Start(10 * time.Minute)

	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", handleReady)

	mux.HandleFunc("POST /api/categories", s.secure(s.handleCreateCategory))
	mux.HandleFunc("GET /api/categories", s.secure(s.handleListCategories))
	mux.HandleFunc("DELETE /api/categories/{id}", s.secure(s.handleDeleteCategory))

	mux.HandleFunc("POST /api/contacts", s.secure(s.handleCreateContact))
	mux.HandleFunc("GET /api/contacts", s.secure(s.handleListContacts))
	mux.HandleFunc("DELETE /api/contacts/{id}", s.secure(s.handleDeleteContact))

	mux.HandleFunc("POST /api/banks", s.secure(s.handleCreateBank))
	mux.HandleFunc("GET /api/banks", s.secure(s.handleListBanks))
	mux.HandleFunc("DELETE /api/banks/{id}", s.secure(s.handleDeleteBank))

	mux.HandleFunc("POST /api/entries", s.secure(s.handleCreateEntry))
	mux.HandleFunc("GET /api/entries", s.secure(s.handleListEntries))
	mux.HandleFunc("GET /api/entries/{id}", s.secure(s.handleGetEntry))
	mux.HandleFunc("DELETE /api/entries/{id}", s.secure(s.handleDeleteEntry))

	mux.HandleFunc("POST /api/sessions", s.secure(s.handleCreateSession))
	mux.HandleFunc("GET /api/sessions/{id}", s.secure(s.handleGetSession))
	mux.HandleFunc("PUT /api/sessions/{id}/template", s.secure(s.handleConfigureSession))
	mux.HandleFunc("POST /api/sessions/{id}/preview", s.secure(s.handlePreview))
	mux.HandleFunc("PATCH /api/sessions/{id}/drafts/{seq}", s.secure(s.handleOverrideDraft))
	mux.HandleFunc("POST /api/sessions/{id}/cheques", s.secure(s.handleAssignCheques))
	mux.HandleFunc("POST /api/sessions/{id}/regenerate", s.secure(s.handleRegenerate))
	mux.HandleFunc("POST /api/sessions/{id}/reconfigure", s.secure(s.handleReconfigure))
	mux.HandleFunc("POST /api/sessions/{id}/validate", s.secure(s.handleValidate))
	mux.HandleFunc("POST /api/sessions/{id}/confirm", s.secure(s.handleConfirm))
	mux.HandleFunc("POST /api/sessions/{id}/cancel", s.secure(s.handleCancelConfirmation))
	mux.HandleFunc("POST /api/sessions/{id}/reset", s.secure(s.handleResetSession))
	mux.HandleFunc("POST /api/sessions/{id}/restore", s.secure(s.handleRestoreSession))

	mux.HandleFunc("GET /api/batches/{id}", s.secure(s.handleGetBatch))
	mux.HandleFunc("GET /api/batches/{id}/entries", s.secure(s.handleListBatchEntries))

	return s
}

// secure wraps a handler with security headers, rate limiting and request
// logging.
func (s *Server) secure(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		clientIP := extractClientIP(r)
		requestID := generateRequestID()

		logger := s.logger.With(applog.FieldRequestID, requestID)
		ctx := context.WithValue(r.Context(), applog.LoggerContextKey, logger)
		r = r.WithContext(ctx)

		s.httpLog.LogStart(ctx, r, clientIP)

		if r.Method != http.MethodGet && !s.rateLimiter.allow(clientIP) {
			logger.WarnContext(ctx, "Rate limit exceeded",
				applog.FieldClientIP, clientIP,
				applog.FieldMethod, r.Method,
				applog.FieldPath, r.URL.Path)
			w.Header().Set("Retry-After", "60")
			errorJSON(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}

		setSecurityHeaders(w)

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next(rw, r)

		s.httpLog.LogEnd(ctx, r, rw.statusCode, time.Since(start).Milliseconds(), clientIP)
	}
}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Shutdown gracefully shuts down the server and its background routines.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.sweeper.Stop()
		s.rateLimiter.stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func handleReady(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

// session returns the in-memory session for id, or nil.
func (s *Server) session(id string) *batch.Session {
	s.sessionsMu.RLock()
	defer s.sessionsMu.RUnlock()
	return s.sessions[id]
}

func (s *Server) putSession(sess *batch.Session) {
	s.sessionsMu.Lock()
	defer s.sessionsMu.Unlock()
	s.sessions[sess.ID()] = sess
}

// invalidateEntriesCache drops every cached month list. Entry mutations can
// touch any month, so a full drop keeps invalidation correct.
func (s *Server) invalidateEntriesCache() {
	s.entriesCache.Clear()
}
