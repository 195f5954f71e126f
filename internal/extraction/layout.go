package extraction

import (
	"context"
	"math"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/castlemilk/pfinance/statements/internal/domain"
)

// LayoutTableStrategy rebuilds tables from the horizontal position of text. It handles
// fixed-width text exports and PDFs whose columns are only separated by whitespace.
type LayoutTableStrategy struct {
	Headers *HeaderMap
}

func (s *LayoutTableStrategy) Name() string { return "layout-table" }

type positionedCell struct {
	x     float64
	width float64
	text  string
}

func (c positionedCell) center() float64 { return c.x + c.width/2 }

type positionedLine []positionedCell

func (l positionedLine) texts() []string {
	out := make([]string, len(l))
	for i, c := range l {
		out[i] = c.text
	}
	return out
}

// cellRunRe finds cells in fixed-width text: runs of words separated by single spaces.
var cellRunRe = regexp.MustCompile(`\S+(?: \S+)*`)

func (s *LayoutTableStrategy) Extract(ctx context.Context, in Input) ([]domain.RawRow, bool) {
	var lines []positionedLine
	switch {
	case isPDF(in.Data):
		var err error
		if lines, err = pdfPositionedLines(in.Data); err != nil {
			return nil, false
		}
	case isText(in.Data):
		for _, l := range textLines(in.Data) {
			lines = append(lines, splitFixedWidth(l))
		}
	default:
		return nil, false
	}

	table, lineNos := alignColumns(lines, s.Headers)
	if table == nil {
		return nil, false
	}
	rows := rowsFromTable(table, lineNos, s.Headers)
	return rows, len(rows) > 0
}

// splitFixedWidth splits a text line on runs of two or more spaces, keeping the rune offset
// of every cell. Tabs count as column breaks.
func splitFixedWidth(line string) positionedLine {
	line = strings.ReplaceAll(line, "\t", "  ")
	var cells positionedLine
	for _, loc := range cellRunRe.FindAllStringIndex(line, -1) {
		text := line[loc[0]:loc[1]]
		cells = append(cells, positionedCell{
			x:     float64(utf8.RuneCountInString(line[:loc[0]])),
			width: float64(utf8.RuneCountInString(text)),
			text:  text,
		})
	}
	return cells
}

// alignColumns finds the header line and assigns every later cell to the header column whose
// center is nearest. The result is a table whose first row is the header, plus the 1-based
// line number of every table row.
func alignColumns(lines []positionedLine, headers *HeaderMap) ([][]string, []int) {
	headerIdx := -1
	for i := 0; i < len(lines) && i < maxHeaderScan; i++ {
		if _, ok := headers.Match(lines[i].texts()); ok {
			headerIdx = i
			break
		}
	}
	if headerIdx < 0 {
		return nil, nil
	}

	header := lines[headerIdx]
	table := [][]string{header.texts()}
	lineNos := []int{headerIdx + 1}
	for i, line := range lines[headerIdx+1:] {
		lineNos = append(lineNos, headerIdx+i+2)
		row := make([]string, len(header))
		for _, c := range line {
			col := nearestColumn(header, c)
			if row[col] != "" {
				row[col] += " " + c.text
			} else {
				row[col] = c.text
			}
		}
		table = append(table, row)
	}
	return table, lineNos
}

func nearestColumn(header positionedLine, c positionedCell) int {
	best, bestDist := 0, math.MaxFloat64
	for i, h := range header {
		d := math.Abs(h.center() - c.center())
		// a cell that starts inside a header's span belongs to it
		if c.x >= h.x && c.x < h.x+h.width {
			d = 0
		}
		if d < bestDist {
			best, bestDist = i, d
		}
	}
	return best
}
