package service

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"cloud.google.com/go/civil"

	"github.com/castlemilk/pfinance/statements/internal/domain"
	"github.com/castlemilk/pfinance/statements/internal/logger"
	"github.com/castlemilk/pfinance/statements/internal/pipeline"
	"github.com/castlemilk/pfinance/statements/internal/search"
	"github.com/castlemilk/pfinance/statements/internal/store"
)

const maxPageSize = 500

// IngestStatements accepts one or more "file" parts and an "account_id" field.
func (s *StatementService) IngestStatements(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "INVALID_ARGUMENT", fmt.Sprintf("upload exceeds %d bytes", s.maxUploadBytes))
			return
		}
		writeError(w, http.StatusBadRequest, "INVALID_ARGUMENT", "expected a multipart form: "+err.Error())
		return
	}
	defer r.MultipartForm.RemoveAll()

	accountID := strings.TrimSpace(r.FormValue("account_id"))
	if accountID == "" {
		writeError(w, http.StatusBadRequest, "INVALID_ARGUMENT", "account_id is required")
		return
	}
	if !s.authorizeAccount(w, r, accountID) {
		return
	}
	parts := r.MultipartForm.File["file"]
	if len(parts) == 0 {
		writeError(w, http.StatusBadRequest, "INVALID_ARGUMENT", "at least one file part is required")
		return
	}

	files := make([]pipeline.FileInput, 0, len(parts))
	for _, part := range parts {
		data, err := readPart(part)
		if err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_ARGUMENT", fmt.Sprintf("read %s: %v", part.Filename, err))
			return
		}
		files = append(files, pipeline.FileInput{
			Name:      part.Filename,
			Ext:       filepath.Ext(part.Filename),
			MIME:      part.Header.Get("Content-Type"),
			Data:      data,
			AccountID: accountID,
		})
	}

	log := logger.FromContext(r.Context())
	res, err := s.ingester.ProcessBatch(r.Context(), files)
	if err != nil {
		log.Error().Err(err).Str("account_id", accountID).Msg("ingest failed")
		writePipelineError(w, err)
		return
	}
	log.Info().Str("account_id", accountID).Int("files", len(files)).Int("ambiguities", res.Ambiguities).Msg("ingested statements")
	writeJSON(w, http.StatusOK, toIngestResponse(res))
}

func readPart(part *multipart.FileHeader) ([]byte, error) {
	f, err := part.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

// ReloadMerchants swaps in fresh merchant data. The previous data stays active on failure.
func (s *StatementService) ReloadMerchants(w http.ResponseWriter, r *http.Request) {
	if !s.authorizeAdmin(w, r) {
		return
	}
	snap, err := s.merchants.Reload(r.Context())
	if err != nil {
		logger.FromContext(r.Context()).Error().Err(err).Msg("merchant reload failed")
		writeError(w, http.StatusBadGateway, "UNAVAILABLE", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"version":   snap.Version,
		"merchants": len(snap.Exact),
		"rules":     len(snap.Rules),
	})
}

// ListTransactionsResponse is one page of stored transactions.
type ListTransactionsResponse struct {
	Transactions  []TransactionJSON `json:"transactions"`
	NextPageToken string            `json:"next_page_token,omitempty"`
}

// ListTransactions pages through an account's stored transactions, newest first.
func (s *StatementService) ListTransactions(w http.ResponseWriter, r *http.Request) {
	accountID := r.PathValue("account_id")
	if !s.authorizeAccount(w, r, accountID) {
		return
	}
	q := r.URL.Query()

	pageSize, err := intParam(q.Get("page_size"), 0, maxPageSize)
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_ARGUMENT", "page_size: "+err.Error())
		return
	}
	token := q.Get("page_token")
	if _, err := store.DecodePageToken(token); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_ARGUMENT", "invalid page_token")
		return
	}

	txns, next, err := s.store.ListTransactions(r.Context(), accountID, int32(pageSize), token)
	if err != nil {
		logger.FromContext(r.Context()).Error().Err(err).Str("account_id", accountID).Msg("list transactions failed")
		writeError(w, http.StatusInternalServerError, "INTERNAL", "failed to list transactions")
		return
	}
	writeJSON(w, http.StatusOK, ListTransactionsResponse{Transactions: toJSONList(txns), NextPageToken: next})
}

// SearchResponse is one page of search hits.
type SearchResponse struct {
	Hits       []search.Hit `json:"hits"`
	TotalCount int          `json:"total_count"`
	TotalPages int          `json:"total_pages"`
	Page       int          `json:"page"`
}

// SearchTransactions queries the search index. It is unavailable unless search is configured.
func (s *StatementService) SearchTransactions(w http.ResponseWriter, r *http.Request) {
	if s.searcher == nil {
		writeError(w, http.StatusServiceUnavailable, "UNAVAILABLE", "search is not configured")
		return
	}

	q := r.URL.Query()
	params := search.SearchParams{
		Query:      q.Get("q"),
		AccountID:  q.Get("account_id"),
		Category:   q.Get("category"),
		MerchantID: q.Get("merchant_id"),
		Type:       domain.TxType(q.Get("type")),
	}
	if params.Type != "" && !params.Type.Valid() {
		writeError(w, http.StatusBadRequest, "INVALID_ARGUMENT", fmt.Sprintf("unknown type %q", params.Type))
		return
	}
	if s.authn != nil && params.AccountID == "" {
		writeError(w, http.StatusBadRequest, "INVALID_ARGUMENT", "account_id is required")
		return
	}
	if !s.authorizeAccount(w, r, params.AccountID) {
		return
	}

	var err error
	if params.AmountMin, err = floatParam(q.Get("amount_min")); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_ARGUMENT", "amount_min: "+err.Error())
		return
	}
	if params.AmountMax, err = floatParam(q.Get("amount_max")); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_ARGUMENT", "amount_max: "+err.Error())
		return
	}
	if params.StartDate, err = dateParam(q.Get("start_date")); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_ARGUMENT", "start_date: "+err.Error())
		return
	}
	if params.EndDate, err = dateParam(q.Get("end_date")); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_ARGUMENT", "end_date: "+err.Error())
		return
	}
	if params.Page, err = intParam(q.Get("page"), 0, 1000); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_ARGUMENT", "page: "+err.Error())
		return
	}
	if params.PageSize, err = intParam(q.Get("page_size"), 0, 100); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_ARGUMENT", "page_size: "+err.Error())
		return
	}

	res, err := s.searcher.Search(r.Context(), params)
	if err != nil {
		logger.FromContext(r.Context()).Error().Err(err).Msg("search failed")
		writeError(w, http.StatusBadGateway, "UNAVAILABLE", "search failed")
		return
	}
	hits := res.Hits
	if hits == nil {
		hits = []search.Hit{}
	}
	writeJSON(w, http.StatusOK, SearchResponse{Hits: hits, TotalCount: res.TotalCount, TotalPages: res.TotalPages, Page: res.Page})
}

func intParam(v string, lo, hi int) (int, error) {
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, err
	}
	if n < lo || n > hi {
		return 0, fmt.Errorf("must be within %d..%d", lo, hi)
	}
	return n, nil
}

func floatParam(v string) (float64, error) {
	if v == "" {
		return 0, nil
	}
	return strconv.ParseFloat(v, 64)
}

func dateParam(v string) (*civil.Date, error) {
	if v == "" {
		return nil, nil
	}
	d, err := civil.ParseDate(v)
	if err != nil {
		return nil, err
	}
	return &d, nil
}
