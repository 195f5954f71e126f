package service

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/castlemilk/pfinance/statements/internal/domain"
	"github.com/castlemilk/pfinance/statements/internal/pipeline"
)

// TransactionJSON is the wire form of a canonical transaction. Amounts are decimal strings.
type TransactionJSON struct {
	ID                 string   `json:"id"`
	AccountID          string   `json:"account_id"`
	Date               string   `json:"date"`
	Timestamp          string   `json:"timestamp,omitempty"`
	Type               string   `json:"type"`
	Amount             string   `json:"amount"`
	Currency           string   `json:"currency"`
	RawDescription     string   `json:"raw_description"`
	CleanDescription   string   `json:"clean_description"`
	MerchantRaw        string   `json:"merchant_raw"`
	MerchantCanonical  string   `json:"merchant_canonical"`
	MerchantID         string   `json:"merchant_id,omitempty"`
	Category           string   `json:"category"`
	Subcategory        string   `json:"subcategory,omitempty"`
	CategorySource     string   `json:"category_source"`
	CategoryMethod     string   `json:"category_method,omitempty"`
	CategoryConfidence float64  `json:"category_confidence"`
	LowConfidence      bool     `json:"low_confidence,omitempty"`
	Channel            string   `json:"channel,omitempty"`
	AccountRef         string   `json:"account_ref,omitempty"`
	BalanceAfter       string   `json:"balance_after,omitempty"`
	Source             string   `json:"source"`
	IsDuplicate        bool     `json:"is_duplicate"`
	DuplicateOf        string   `json:"duplicate_of,omitempty"`
	DuplicateCount     int      `json:"duplicate_count"`
	AggregateAmount    string   `json:"aggregate_amount,omitempty"`
	Flags              []string `json:"flags,omitempty"`
}

func toJSON(t domain.CanonicalTransaction) TransactionJSON {
	out := TransactionJSON{
		ID:                 t.ID,
		AccountID:          t.AccountID,
		Date:               t.Date.String(),
		Type:               string(t.Type),
		Amount:             t.Amount.StringFixed(2),
		Currency:           t.Currency,
		RawDescription:     t.RawDescription,
		CleanDescription:   t.CleanDescription,
		MerchantRaw:        t.MerchantRaw,
		MerchantCanonical:  t.MerchantCanonical,
		MerchantID:         t.MerchantID,
		Category:           t.Category,
		Subcategory:        t.Subcategory,
		CategorySource:     string(t.CategorySource),
		CategoryMethod:     string(t.CategoryMethod),
		CategoryConfidence: t.CategoryConfidence,
		LowConfidence:      t.LowConfidence,
		AccountRef:         t.AccountRef,
		Source:             t.Source,
		IsDuplicate:        t.IsDuplicate,
		DuplicateOf:        t.DuplicateOf,
		DuplicateCount:     t.DuplicateCount,
		Flags:              t.Flags,
	}
	if t.Timestamp != nil {
		out.Timestamp = t.Timestamp.Format(time.RFC3339)
	}
	if t.Channel != nil {
		out.Channel = string(*t.Channel)
	}
	if t.BalanceAfter != nil {
		out.BalanceAfter = t.BalanceAfter.StringFixed(2)
	}
	if t.AggregateAmount != nil {
		out.AggregateAmount = t.AggregateAmount.StringFixed(2)
	}
	return out
}

func toJSONList(txns []domain.CanonicalTransaction) []TransactionJSON {
	out := make([]TransactionJSON, len(txns))
	for i, t := range txns {
		out[i] = toJSON(t)
	}
	return out
}

// RowErrorJSON is a per-row problem.
type RowErrorJSON struct {
	Row    string `json:"row"`
	Reason string `json:"reason"`
	Detail string `json:"detail,omitempty"`
}

// StatsJSON mirrors pipeline.BatchStats.
type StatsJSON struct {
	RowsParsed        int            `json:"rows_parsed"`
	RowsDropped       int            `json:"rows_dropped"`
	RowsImported      int            `json:"rows_imported"`
	DuplicatesFound   int            `json:"duplicates_found"`
	ParseStrategyUsed string         `json:"parse_strategy_used,omitempty"`
	Warnings          []RowErrorJSON `json:"warnings,omitempty"`
	Errors            []RowErrorJSON `json:"errors,omitempty"`
}

func rowErrors(in []pipeline.RowError) []RowErrorJSON {
	if len(in) == 0 {
		return nil
	}
	out := make([]RowErrorJSON, len(in))
	for i, e := range in {
		out[i] = RowErrorJSON{Row: e.RowContext, Reason: e.Reason, Detail: e.Detail}
	}
	return out
}

// FileResultJSON is the outcome for one uploaded file.
type FileResultJSON struct {
	File         string            `json:"file"`
	AccountID    string            `json:"account_id"`
	Summary      string            `json:"summary"`
	Stats        StatsJSON         `json:"stats"`
	Transactions []TransactionJSON `json:"transactions"`
}

// IngestResponse is returned by the ingest endpoint.
type IngestResponse struct {
	Files       []FileResultJSON `json:"files"`
	Ambiguities int              `json:"ambiguities"`
}

func toIngestResponse(res *pipeline.BatchResult) IngestResponse {
	out := IngestResponse{Files: make([]FileResultJSON, len(res.Files)), Ambiguities: res.Ambiguities}
	for i, f := range res.Files {
		out.Files[i] = FileResultJSON{
			File:      f.File,
			AccountID: f.AccountID,
			Summary:   f.Stats.Summary(),
			Stats: StatsJSON{
				RowsParsed:        f.Stats.RowsParsed,
				RowsDropped:       f.Stats.RowsDropped,
				RowsImported:      f.Stats.RowsImported,
				DuplicatesFound:   f.Stats.DuplicatesFound,
				ParseStrategyUsed: f.Stats.ParseStrategyUsed,
				Warnings:          rowErrors(f.Stats.Warnings),
				Errors:            rowErrors(f.Stats.Errors),
			},
			Transactions: toJSONList(f.Transactions),
		}
	}
	return out
}

// ErrorJSON is the body of every error response.
type ErrorJSON struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorJSON{Code: code, Message: message})
}

// writePipelineError maps pipeline errors to HTTP statuses.
func writePipelineError(w http.ResponseWriter, err error) {
	var perr *pipeline.Error
	switch {
	case pipeline.IsConfigError(err):
		writeError(w, http.StatusServiceUnavailable, "FAILED_PRECONDITION", err.Error())
	case errors.As(err, &perr):
		switch perr.Code {
		case pipeline.ErrCodeInvalidInput:
			writeError(w, http.StatusBadRequest, string(perr.Code), perr.Message)
		case pipeline.ErrCodeCancelled:
			writeError(w, http.StatusRequestTimeout, string(perr.Code), perr.Message)
		default:
			writeError(w, http.StatusInternalServerError, string(perr.Code), perr.Message)
		}
	default:
		writeError(w, http.StatusInternalServerError, "INTERNAL", err.Error())
	}
}
