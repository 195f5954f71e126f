package extraction

import (
	"bytes"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/ledongthuc/pdf"
)

const (
	maxTextBytes = 1 << 20 // 1 MiB cap for extracted text
	maxPDFPages  = 200
)

// pdfTextLines extracts plain text lines from a PDF.
// It is wrapped in recover() because the pdf library panics on some malformed files.
func pdfTextLines(data []byte) (lines []string, err error) {
	defer func() {
		if r := recover(); r != nil {
			lines, err = nil, fmt.Errorf("panic during PDF text extraction: %v", r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open PDF reader: %w", err)
	}

	plainText, err := reader.GetPlainText()
	if err != nil {
		return nil, fmt.Errorf("extract plain text: %w", err)
	}

	textBytes, err := io.ReadAll(io.LimitReader(plainText, maxTextBytes))
	if err != nil {
		return nil, fmt.Errorf("read plain text: %w", err)
	}

	return textLines(textBytes), nil
}

// pdfPositionedLines extracts every text row of a PDF with the X position of each fragment,
// for positional table reconstruction.
func pdfPositionedLines(data []byte) (lines []positionedLine, err error) {
	defer func() {
		if r := recover(); r != nil {
			lines, err = nil, fmt.Errorf("panic during PDF layout extraction: %v", r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open PDF reader: %w", err)
	}

	pages := reader.NumPage()
	if pages > maxPDFPages {
		pages = maxPDFPages
	}
	for i := 1; i <= pages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		rows, err := page.GetTextByRow()
		if err != nil {
			return nil, fmt.Errorf("read rows of page %d: %w", i, err)
		}
		for _, row := range rows {
			if line := mergeFragments(row.Content); len(line) > 0 {
				lines = append(lines, line)
			}
		}
	}
	return lines, nil
}

// mergeFragments joins glyph runs that sit close together into cells. Fragments further
// apart than about two characters start a new cell.
func mergeFragments(texts pdf.TextHorizontal) positionedLine {
	frags := make([]pdf.Text, 0, len(texts))
	for _, t := range texts {
		if strings.TrimSpace(t.S) != "" || t.S == " " {
			frags = append(frags, t)
		}
	}
	sort.SliceStable(frags, func(i, j int) bool { return frags[i].X < frags[j].X })

	var line positionedLine
	var cur *positionedCell
	lastEnd := 0.0
	for _, t := range frags {
		gap := t.X - lastEnd
		charWidth := t.FontSize * 0.5
		if charWidth <= 0 {
			charWidth = 4
		}
		if cur != nil && gap <= 2*charWidth {
			cur.text += t.S
			cur.width = t.X + t.W - cur.x
		} else {
			if cur != nil {
				line = appendCell(line, *cur)
			}
			cur = &positionedCell{x: t.X, width: t.W, text: t.S}
		}
		lastEnd = t.X + t.W
	}
	if cur != nil {
		line = appendCell(line, *cur)
	}
	return line
}

func appendCell(line positionedLine, c positionedCell) positionedLine {
	c.text = strings.Join(strings.Fields(c.text), " ")
	if c.text == "" {
		return line
	}
	return append(line, c)
}
