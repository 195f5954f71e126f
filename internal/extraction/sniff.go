package extraction

import (
	"bytes"
	"strings"
	"unicode/utf8"
)

// isPDF checks the %PDF magic bytes.
func isPDF(data []byte) bool {
	return len(data) >= 4 && string(data[:4]) == "%PDF"
}

// isZip checks the ZIP local file header used by xlsx workbooks.
func isZip(data []byte) bool {
	return len(data) >= 4 && data[0] == 0x50 && data[1] == 0x4B && data[2] == 0x03 && data[3] == 0x04
}

// isText reports whether data looks like human-readable UTF-8 text.
func isText(data []byte) bool {
	if len(data) == 0 || !utf8.Valid(data) {
		return false
	}
	if bytes.IndexByte(data, 0) >= 0 {
		return false
	}
	control := 0
	for _, r := range string(data) {
		if r < 0x20 && r != '\n' && r != '\r' && r != '\t' {
			control++
		}
	}
	return control*100 < len(data)
}

// textLines splits text into trimmed-right lines. Blank lines are kept so that lines[i] is
// file line i+1. A UTF-8 BOM is removed.
func textLines(data []byte) []string {
	s := strings.TrimPrefix(string(data), "\uFEFF")
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t")
	}
	return lines
}

func nonBlankLines(lines []string) []string {
	var out []string
	for _, line := range lines {
		if strings.TrimSpace(line) != "" {
			out = append(out, line)
		}
	}
	return out
}
