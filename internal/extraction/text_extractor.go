package extraction

import (
	"context"
	"regexp"
	"strings"

	"github.com/castlemilk/pfinance/statements/internal/domain"
)

// TextLineStrategy recognizes one transaction per text line: date, description, amount and
// an optional running balance. PDFs are reduced to their plain text first.
type TextLineStrategy struct{}

func (s *TextLineStrategy) Name() string { return "text-lines" }

const (
	datePart = `(\d{1,2}[/\-\.]\d{1,2}[/\-\.]\d{2,4}|\d{4}[/\-]\d{2}[/\-]\d{2}|` +
		`\d{1,2}[\s\-](?:Jan|Feb|Mar|Apr|May|Jun|Jul|Aug|Sep|Oct|Nov|Dec)[a-z]*\.?[\s\-,]+\d{2,4}|` +
		`(?:Jan|Feb|Mar|Apr|May|Jun|Jul|Aug|Sep|Oct|Nov|Dec)[a-z]*\.?\s+\d{1,2},?\s+\d{2,4})`
	moneyPart = `(\(?-?(?:₹|Rs\.?|INR|\$)?\s?\d[\d,]*\.\d{2}\)?(?:\s?(?:CR|DR|Cr|Dr))?)`
)

// transactionLineRe matches: date [value date] description amount [CR|DR] [balance [CR|DR]]
// Groups: (1) date, (2) value date, (3) description, (4) amount, (5) balance
var transactionLineRe = regexp.MustCompile(
	`(?i)^\s*` + datePart +
		`(?:\s+` + datePart + `)?` +
		`\s+(.+?)\s+` +
		moneyPart +
		`(?:\s+` + moneyPart + `)?\s*$`,
)

func (s *TextLineStrategy) Extract(ctx context.Context, in Input) ([]domain.RawRow, bool) {
	var lines []string
	switch {
	case isPDF(in.Data):
		var err error
		if lines, err = pdfTextLines(in.Data); err != nil {
			return nil, false
		}
	case isText(in.Data):
		lines = textLines(in.Data)
	default:
		return nil, false
	}

	rows := parseTextLines(lines)
	return rows, len(rows) > 0
}

// parseTextLines applies transactionLineRe to each line. Lines that do not match are ignored.
func parseTextLines(lines []string) []domain.RawRow {
	var rows []domain.RawRow
	for i, line := range lines {
		m := transactionLineRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		description := strings.TrimSpace(m[3])
		if description == "" || isFooter(description) {
			continue
		}
		rows = append(rows, domain.RawRow{
			DateText:     strings.TrimSpace(m[1]),
			Description:  description,
			Amount:       strings.TrimSpace(m[4]),
			BalanceAfter: strings.TrimSpace(m[5]),
			Extra:        domain.RowExtra{ValueDate: strings.TrimSpace(m[2])},
			Line:         i + 1,
		})
	}
	return rows
}
