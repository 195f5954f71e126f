// Package service exposes statement ingestion over HTTP.
package service

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/castlemilk/pfinance/statements/internal/auth"
	"github.com/castlemilk/pfinance/statements/internal/logger"
	"github.com/castlemilk/pfinance/statements/internal/merchant"
	"github.com/castlemilk/pfinance/statements/internal/pipeline"
	"github.com/castlemilk/pfinance/statements/internal/search"
	"github.com/castlemilk/pfinance/statements/internal/store"
)

// DefaultMaxUploadBytes bounds the multipart body of one ingest request.
const DefaultMaxUploadBytes = 64 << 20

// Ingester runs statement files through the pipeline.
type Ingester interface {
	ProcessBatch(ctx context.Context, files []pipeline.FileInput) (*pipeline.BatchResult, error)
}

// Reloader swaps in fresh merchant data.
type Reloader interface {
	Reload(ctx context.Context) (*merchant.Snapshot, error)
}

// Searcher queries the transaction search index.
type Searcher interface {
	Search(ctx context.Context, params search.SearchParams) (*search.SearchResponse, error)
}

// StatementService serves the ingestion API.
type StatementService struct {
	ingester       Ingester
	merchants      Reloader
	store          store.Store
	searcher       Searcher
	authn          func(http.Handler) http.Handler
	maxUploadBytes int64
	log            zerolog.Logger
}

// Option configures a StatementService.
type Option func(*StatementService)

// WithSearch enables the search endpoint.
func WithSearch(s Searcher) Option {
	return func(svc *StatementService) { svc.searcher = s }
}

// WithAuth requires verified bearer tokens on every route except /health. Account routes then
// check the caller's account claims and merchant reloads require the admin claim.
func WithAuth(v auth.Verifier) Option {
	return func(svc *StatementService) { svc.authn = auth.Middleware(v, denyUnauthenticated) }
}

// WithLocalDevAuth attaches an all-access local identity to every request.
func WithLocalDevAuth() Option {
	return func(svc *StatementService) { svc.authn = auth.LocalDevMiddleware() }
}

// WithMaxUploadBytes overrides DefaultMaxUploadBytes.
func WithMaxUploadBytes(n int64) Option {
	return func(svc *StatementService) { svc.maxUploadBytes = n }
}

// NewStatementService creates the service.
func NewStatementService(ingester Ingester, merchants Reloader, st store.Store, log zerolog.Logger, opts ...Option) *StatementService {
	svc := &StatementService{
		ingester:       ingester,
		merchants:      merchants,
		store:          st,
		maxUploadBytes: DefaultMaxUploadBytes,
		log:            logger.Component(log, "server"),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// Handler returns the routed API with request logging.
func (s *StatementService) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/statements:ingest", s.IngestStatements)
	mux.HandleFunc("POST /v1/merchants:reload", s.ReloadMerchants)
	mux.HandleFunc("GET /v1/accounts/{account_id}/transactions", s.ListTransactions)
	mux.HandleFunc("GET /v1/transactions:search", s.SearchTransactions)
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	var h http.Handler = mux
	if s.authn != nil {
		h = s.authn(h)
	}
	return s.withLogging(h)
}

func denyUnauthenticated(w http.ResponseWriter, r *http.Request, err error) {
	logger.FromContext(r.Context()).Warn().Err(err).Msg("rejected request")
	writeError(w, http.StatusUnauthorized, "UNAUTHENTICATED", "a valid bearer token is required")
}

// authorizeAccount writes an error and returns false when auth is on and the caller may not
// use accountID.
func (s *StatementService) authorizeAccount(w http.ResponseWriter, r *http.Request, accountID string) bool {
	if s.authn == nil {
		return true
	}
	_, err := auth.RequireAccountAccess(r.Context(), accountID)
	return allowed(w, err)
}

func (s *StatementService) authorizeAdmin(w http.ResponseWriter, r *http.Request) bool {
	if s.authn == nil {
		return true
	}
	_, err := auth.RequireAdmin(r.Context())
	return allowed(w, err)
}

func allowed(w http.ResponseWriter, err error) bool {
	switch {
	case err == nil:
		return true
	case errors.Is(err, auth.ErrPermissionDenied):
		writeError(w, http.StatusForbidden, "PERMISSION_DENIED", err.Error())
	default:
		writeError(w, http.StatusUnauthorized, "UNAUTHENTICATED", err.Error())
	}
	return false
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// withLogging puts a request-scoped logger in the context and logs each request once.
func (s *StatementService) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		reqLog := s.log.With().Str("method", r.Method).Str("path", r.URL.Path).Logger()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r.WithContext(logger.WithContext(r.Context(), reqLog)))

		event := reqLog.Info()
		if rec.status >= http.StatusInternalServerError {
			event = reqLog.Error()
		}
		event.Int("status", rec.status).Dur("duration", time.Since(start)).Msg("request")
	})
}
