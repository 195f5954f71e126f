package pipeline

import (
	"fmt"

	"github.com/castlemilk/pfinance/statements/internal/domain"
)

// Row error reasons reported in BatchStats.
const (
	ReasonParseFailed           = "parse-failed"
	ReasonRowMalformed          = "row-malformed"
	ReasonVaultWriteFailed      = "vault-write-failed"
	ReasonClassifierUnavailable = "classifier-unavailable"
	ReasonPersistFailed         = "persist-failed"
	ReasonPriorUnavailable      = "prior-unavailable"
	ReasonDateFallback          = "date-fallback"
)

// RowError ties a reason to the file row it happened on.
type RowError struct {
	RowContext string
	Reason     string
	Detail     string
}

// BatchStats summarises what happened to one file.
type BatchStats struct {
	RowsParsed        int
	RowsDropped       int
	RowsImported      int
	DuplicatesFound   int
	ParseStrategyUsed string
	// Warnings are recovered problems; the affected rows were still imported.
	Warnings []RowError
	Errors   []RowError
}

// Summary is the one-line, user-facing result for the file.
func (s BatchStats) Summary() string {
	return fmt.Sprintf("imported=%d duplicates=%d failed=%d", s.RowsImported, s.DuplicatesFound, s.RowsDropped)
}

func (s *BatchStats) addError(ctx, reason, detail string) {
	s.Errors = append(s.Errors, RowError{RowContext: ctx, Reason: reason, Detail: detail})
}

func (s *BatchStats) addWarning(ctx, reason, detail string) {
	s.Warnings = append(s.Warnings, RowError{RowContext: ctx, Reason: reason, Detail: detail})
}

// ProcessingResult is the outcome for one file: every transaction it produced, survivors and
// absorbed duplicates alike, plus the persisted survivors its rows were merged into.
type ProcessingResult struct {
	File         string
	AccountID    string
	Transactions []domain.CanonicalTransaction
	UpdatedPrior []domain.CanonicalTransaction
	Stats        BatchStats
}

// BatchResult holds per-file results in input order.
type BatchResult struct {
	Files       []ProcessingResult
	Ambiguities int
}

// Totals adds up the per-file statistics.
func (r *BatchResult) Totals() BatchStats {
	var t BatchStats
	for _, f := range r.Files {
		t.RowsParsed += f.Stats.RowsParsed
		t.RowsDropped += f.Stats.RowsDropped
		t.RowsImported += f.Stats.RowsImported
		t.DuplicatesFound += f.Stats.DuplicatesFound
		t.Warnings = append(t.Warnings, f.Stats.Warnings...)
		t.Errors = append(t.Errors, f.Stats.Errors...)
	}
	return t
}
