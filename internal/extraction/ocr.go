package extraction

import (
	"context"

	"github.com/castlemilk/pfinance/statements/internal/domain"
)

// OCREngine recognizes text lines in a scanned statement.
type OCREngine interface {
	Recognize(ctx context.Context, data []byte) ([]string, error)
}

// OCRStrategy is the last resort for scanned statements. It is opt-in because recognition is
// slow and paid; recognized lines go through the same line recognizer as TextLineStrategy.
type OCRStrategy struct {
	Engine OCREngine
}

func (s *OCRStrategy) Name() string { return "ocr" }

func (s *OCRStrategy) Extract(ctx context.Context, in Input) ([]domain.RawRow, bool) {
	if s.Engine == nil || len(in.Data) == 0 {
		return nil, false
	}
	lines, err := s.Engine.Recognize(ctx, in.Data)
	if err != nil {
		return nil, false
	}
	rows := parseTextLines(lines)
	return rows, len(rows) > 0
}
