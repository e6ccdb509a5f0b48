// Package dataset parses uploaded tabular files and derives the summary
// statistics stored on a dataset version.
package dataset

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

type Format string

const (
	FormatCSV  Format = "csv"
	FormatJSON Format = "json"
	FormatXLSX Format = "xlsx"
)

var (
	ErrUnsupportedFormat = errors.New("unsupported file format")
	ErrEmptyFile         = errors.New("file has no header row")
)

// Table is a parsed file: a header and rows of raw cell text.
// Every row has exactly len(Columns) cells; Null marks cells that were absent or JSON null.
type Table struct {
	Columns []string
	Rows    [][]string
	Null    [][]bool
}

// FormatFromFilename maps a file extension to a Format.
func FormatFromFilename(name string) (Format, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".csv":
		return FormatCSV, nil
	case ".json":
		return FormatJSON, nil
	case ".xlsx":
		return FormatXLSX, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, filepath.Ext(name))
	}
}

// IsMissing reports whether cell (row, col) counts as a missing value.
func (t *Table) IsMissing(row, col int) bool {
	if t.Null != nil && t.Null[row][col] {
		return true
	}
	return IsMissingText(t.Rows[row][col])
}

var missingTokens = map[string]struct{}{
	"na":   {},
	"n/a":  {},
	"nan":  {},
	"null": {},
	"none": {},
}

func IsMissingText(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" {
		return true
	}
	_, ok := missingTokens[strings.ToLower(s)]
	return ok
}

// normalizeHeader trims names, fills blanks and de-duplicates case-insensitively, keeping column order.
func normalizeHeader(raw []string) []string {
	out := make([]string, len(raw))
	used := make(map[string]bool, len(raw))
	for i, name := range raw {
		name = strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))
		if name == "" {
			name = fmt.Sprintf("column_%d", i+1)
		}
		candidate := name
		for n := 2; used[strings.ToLower(candidate)]; n++ {
			candidate = fmt.Sprintf("%s_%d", name, n)
		}
		used[strings.ToLower(candidate)] = true
		out[i] = candidate
	}
	return out
}

// fitRow pads short rows with empty cells and drops cells beyond the header.
func fitRow(row []string, width int) []string {
	if len(row) == width {
		return row
	}
	out := make([]string, width)
	copy(out, row)
	return out
}
