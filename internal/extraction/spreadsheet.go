package extraction

import (
	"bytes"
	"context"

	"github.com/xuri/excelize/v2"

	"github.com/castlemilk/pfinance/statements/internal/domain"
)

// SpreadsheetStrategy reads xlsx workbooks. The first sheet carrying a recognizable
// statement header wins.
type SpreadsheetStrategy struct {
	Headers *HeaderMap
}

func (s *SpreadsheetStrategy) Name() string { return "spreadsheet" }

func (s *SpreadsheetStrategy) Extract(ctx context.Context, in Input) ([]domain.RawRow, bool) {
	ext := in.ext()
	if !isZip(in.Data) || (ext != "" && ext != ".xlsx" && ext != ".xlsm" && ext != ".xls") {
		return nil, false
	}

	f, err := excelize.OpenReader(bytes.NewReader(in.Data))
	if err != nil {
		return nil, false
	}
	defer f.Close()

	for _, sheet := range f.GetSheetList() {
		if ctx.Err() != nil {
			return nil, false
		}
		table, err := f.GetRows(sheet)
		if err != nil || len(table) < 2 {
			continue
		}
		if rows := rowsFromTable(table, nil, s.Headers); len(rows) > 0 {
			return rows, true
		}
	}
	return nil, false
}
