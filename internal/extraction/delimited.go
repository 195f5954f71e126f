package extraction

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"io"
	"strings"

	"github.com/castlemilk/pfinance/statements/internal/domain"
)

// DelimitedStrategy reads CSV, TSV and other single-character delimited exports.
type DelimitedStrategy struct {
	Headers *HeaderMap
}

func (s *DelimitedStrategy) Name() string { return "delimited" }

var delimitedExts = map[string]bool{".csv": true, ".tsv": true, ".txt": true, ".tab": true}

// candidate delimiters, most common first so ties favour commas
var delimiters = []rune{',', ';', '\t', '|'}

func (s *DelimitedStrategy) Extract(ctx context.Context, in Input) ([]domain.RawRow, bool) {
	if !delimitedExts[in.ext()] && !strings.Contains(strings.ToLower(in.MIME), "csv") {
		return nil, false
	}
	if !isText(in.Data) {
		return nil, false
	}

	delim, ok := sniffDelimiter(nonBlankLines(textLines(in.Data)))
	if !ok {
		return nil, false
	}

	reader := csv.NewReader(bytes.NewReader(bytes.TrimPrefix(in.Data, []byte("\xef\xbb\xbf"))))
	reader.Comma = delim
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = delim != '\t' // with tabs it would swallow empty cells

	var (
		records [][]string
		lineNos []int
	)
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, false
		}
		line, _ := reader.FieldPos(0)
		records = append(records, record)
		lineNos = append(lineNos, line)
	}
	if len(records) < 2 {
		return nil, false
	}

	rows := rowsFromTable(records, lineNos, s.Headers)
	return rows, len(rows) > 0
}

// sniffDelimiter picks the delimiter that splits the leading lines most consistently.
func sniffDelimiter(lines []string) (rune, bool) {
	if len(lines) > maxHeaderScan {
		lines = lines[:maxHeaderScan]
	}
	best, bestScore := rune(0), 0
	for _, d := range delimiters {
		score := 0
		for _, line := range lines {
			if n := strings.Count(line, string(d)); n > 0 {
				score += n
			}
		}
		if score > bestScore {
			best, bestScore = d, score
		}
	}
	return best, bestScore >= len(lines) && bestScore > 0
}
