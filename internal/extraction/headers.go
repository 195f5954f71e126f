package extraction

import (
	"strings"
	"unicode"

	"github.com/castlemilk/pfinance/statements/internal/domain"
)

// Column identifies what a statement table column holds.
type Column string

const (
	ColDate        Column = "date"
	ColValueDate   Column = "value_date"
	ColDescription Column = "description"
	ColDebit       Column = "debit"
	ColCredit      Column = "credit"
	ColAmount      Column = "amount"
	ColBalance     Column = "balance"
	ColCheque      Column = "cheque"
	ColReference   Column = "reference"
)

// maxHeaderScan bounds how far into a table the header row is searched for.
const maxHeaderScan = 40

// HeaderMap recognizes statement header rows through a synonym dictionary.
// Matching is case-insensitive substring; synonyms of three characters or fewer
// must equal a whole word of the cell so that "cr" does not match "description".
type HeaderMap struct {
	order    []Column
	synonyms map[Column][]string
}

// DefaultHeaderMap returns the synonyms seen on Indian and international bank statements.
func DefaultHeaderMap() *HeaderMap {
	return &HeaderMap{
		// value date before date, and the specific amount columns before the generic one
		order: []Column{
			ColValueDate, ColDate, ColCheque, ColReference,
			ColDebit, ColCredit, ColBalance, ColAmount, ColDescription,
		},
		synonyms: map[Column][]string{
			ColValueDate:   {"value date", "value dt", "val date"},
			ColDate:        {"date", "txn dt", "tran dt", "posted", "dt"},
			ColCheque:      {"cheque", "chq", "check no", "instrument"},
			ColReference:   {"reference", "ref no", "ref", "utr"},
			ColDebit:       {"debit", "withdrawal", "withdrawl", "paid out", "money out", "dr"},
			ColCredit:      {"credit", "deposit", "paid in", "money in", "cr"},
			ColBalance:     {"balance", "bal", "closing"},
			ColAmount:      {"amount", "amt", "value", "inr", "txn amount"},
			ColDescription: {"description", "narration", "particulars", "details", "remarks", "transaction", "memo", "payee"},
		},
	}
}

// Add registers extra synonyms for a column. The map is not safe for concurrent mutation;
// configure it before building a chain.
func (h *HeaderMap) Add(col Column, synonyms ...string) {
	for _, s := range synonyms {
		h.synonyms[col] = append(h.synonyms[col], strings.ToLower(strings.TrimSpace(s)))
	}
}

// Match maps header cells to columns. Each column and each cell is used at most once.
// ok is false unless a date column and at least one other column were found.
func (h *HeaderMap) Match(cells []string) (map[Column]int, bool) {
	found := make(map[Column]int)
	used := make(map[int]bool)
	for _, col := range h.order {
		for i, cell := range cells {
			if used[i] {
				continue
			}
			if h.cellMatches(col, cell) {
				found[col] = i
				used[i] = true
				break
			}
		}
	}
	if _, ok := found[ColDate]; !ok {
		if idx, ok := found[ColValueDate]; ok {
			found[ColDate] = idx
			delete(found, ColValueDate)
		}
	}
	_, ok := found[ColDate]
	return found, ok && len(found) >= 2
}

func (h *HeaderMap) cellMatches(col Column, cell string) bool {
	text := strings.ToLower(strings.TrimSpace(cell))
	if text == "" || len(text) > 40 {
		return false
	}
	words := strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, syn := range h.synonyms[col] {
		if len(syn) <= 3 {
			for _, w := range words {
				if w == syn {
					return true
				}
			}
			continue
		}
		if strings.Contains(text, syn) {
			return true
		}
	}
	return false
}

// footerPrefixes mark summary rows that close a statement table.
var footerPrefixes = []string{"opening balance", "closing balance", "total", "grand total", "statement summary"}

// rowsFromTable converts a table of cells into raw rows. The header row is searched for in
// the first maxHeaderScan rows; tables without a recognizable date column yield nothing.
// lineNos gives the source line of each table row; when nil, row i is line i+1.
func rowsFromTable(table [][]string, lineNos []int, headers *HeaderMap) []domain.RawRow {
	headerIdx := -1
	var cols map[Column]int
	for i := 0; i < len(table) && i < maxHeaderScan; i++ {
		if m, ok := headers.Match(table[i]); ok {
			headerIdx, cols = i, m
			break
		}
	}
	if headerIdx < 0 {
		return nil
	}

	cell := func(row []string, col Column) string {
		idx, ok := cols[col]
		if !ok || idx >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[idx])
	}

	var rows []domain.RawRow
	for i := headerIdx + 1; i < len(table); i++ {
		record := table[i]
		if isBlankRecord(record) {
			continue
		}
		raw := domain.RawRow{
			DateText:     cell(record, ColDate),
			Description:  cell(record, ColDescription),
			Debit:        cell(record, ColDebit),
			Credit:       cell(record, ColCredit),
			Amount:       cell(record, ColAmount),
			BalanceAfter: cell(record, ColBalance),
			Extra: domain.RowExtra{
				ChequeNumber: cell(record, ColCheque),
				Reference:    cell(record, ColReference),
				ValueDate:    cell(record, ColValueDate),
			},
			Line: lineOf(lineNos, i),
		}
		// repeated header on a new page
		if headers.cellMatches(ColDate, raw.DateText) && !strings.ContainsAny(raw.DateText, "0123456789") {
			continue
		}
		if isFooter(raw.DateText) || (raw.DateText == "" && isFooter(raw.Description)) {
			continue
		}

		if raw.DateText == "" && raw.Debit == "" && raw.Credit == "" && raw.Amount == "" {
			// narration wrapped onto the next line
			if raw.Description != "" && len(rows) > 0 {
				prev := &rows[len(rows)-1]
				prev.Description = strings.TrimSpace(prev.Description + " " + raw.Description)
			}
			continue
		}
		rows = append(rows, raw)
	}
	return rows
}

func isBlankRecord(record []string) bool {
	for _, c := range record {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

func isFooter(s string) bool {
	lower := strings.ToLower(strings.TrimSpace(s))
	for _, p := range footerPrefixes {
		if strings.HasPrefix(lower, p) {
			return true
		}
	}
	return false
}

func lineOf(lineNos []int, i int) int {
	if i < len(lineNos) {
		return lineNos[i]
	}
	return i + 1
}
