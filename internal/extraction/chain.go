// Package extraction turns statement files into raw transaction rows using an ordered chain
// of parser strategies.
package extraction

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"github.com/castlemilk/pfinance/statements/internal/domain"
)

// Input is one statement file handed to the chain.
type Input struct {
	Name string
	Data []byte
	Ext  string // declared extension, with or without the leading dot
	MIME string // declared MIME hint, may be empty
}

// ext returns the lower-case extension with a leading dot, falling back to the file name.
func (in Input) ext() string {
	e := strings.ToLower(strings.TrimSpace(in.Ext))
	if e == "" {
		e = strings.ToLower(filepath.Ext(in.Name))
	}
	if e != "" && !strings.HasPrefix(e, ".") {
		e = "." + e
	}
	return e
}

// Strategy converts an input into raw rows. It reports ok=false when it cannot handle the
// input or found nothing; it must not panic on malformed data.
type Strategy interface {
	Name() string
	Extract(ctx context.Context, in Input) ([]domain.RawRow, bool)
}

// Chain tries strategies in a fixed priority order and returns the rows of the first one
// that yields at least one row.
type Chain struct {
	strategies []Strategy
	log        zerolog.Logger
}

// Options configures the default chain.
type Options struct {
	EnableOCR bool
	OCR       OCREngine
	Headers   *HeaderMap
}

// NewChain creates a chain over the given strategies, tried in order.
func NewChain(log zerolog.Logger, strategies ...Strategy) *Chain {
	return &Chain{strategies: strategies, log: log}
}

// DefaultChain builds the standard order: delimited tables, spreadsheets, plain text lines,
// positional layout tables, then OCR when it is enabled. The two tabular strategies only
// accept their own extensions or magic bytes and read named columns, so they run before
// text-line matching; a CSV export would otherwise be half-read by the line regex, which
// cannot tell debit from credit columns.
func DefaultChain(log zerolog.Logger, opts Options) *Chain {
	headers := opts.Headers
	if headers == nil {
		headers = DefaultHeaderMap()
	}
	strategies := []Strategy{
		&DelimitedStrategy{Headers: headers},
		&SpreadsheetStrategy{Headers: headers},
		&TextLineStrategy{},
		&LayoutTableStrategy{Headers: headers},
	}
	if opts.EnableOCR && opts.OCR != nil {
		strategies = append(strategies, &OCRStrategy{Engine: opts.OCR})
	}
	return NewChain(log, strategies...)
}

// Strategies returns the strategy names in the order they are tried.
func (c *Chain) Strategies() []string {
	names := make([]string, len(c.strategies))
	for i, s := range c.strategies {
		names[i] = s.Name()
	}
	return names
}

// Parse runs the chain. It returns nil rows and an empty strategy name when no strategy
// produced anything.
func (c *Chain) Parse(ctx context.Context, in Input) ([]domain.RawRow, string) {
	for _, s := range c.strategies {
		if ctx.Err() != nil {
			return nil, ""
		}
		rows, ok := c.try(ctx, s, in)
		if !ok || len(rows) == 0 {
			continue
		}
		for i := range rows {
			rows[i].Origin = s.Name()
			if rows[i].Line == 0 {
				rows[i].Line = i + 1
			}
		}
		c.log.Debug().Str("file", in.Name).Str("strategy", s.Name()).Int("rows", len(rows)).Msg("parsed statement")
		return rows, s.Name()
	}
	c.log.Warn().Str("file", in.Name).Int("bytes", len(in.Data)).Msg("no parser strategy produced rows")
	return nil, ""
}

func (c *Chain) try(ctx context.Context, s Strategy, in Input) (rows []domain.RawRow, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Error().Str("file", in.Name).Str("strategy", s.Name()).Str("panic", fmt.Sprint(r)).Msg("parser strategy panicked")
			rows, ok = nil, false
		}
	}()
	return s.Extract(ctx, in)
}
