package dataset

import (
	"strconv"
	"strings"
	"time"
)

const (
	DTypeInteger  = "integer"
	DTypeFloat    = "float"
	DTypeBoolean  = "boolean"
	DTypeDatetime = "datetime"
	DTypeString   = "string"
	DTypeEmpty    = "empty"
)

type ColumnSummary struct {
	Name    string `json:"name"`
	DType   string `json:"dtype"`
	Missing int    `json:"missing"`
}

type Summary struct {
	RowCount     int             `json:"row_count"`
	ColumnCount  int             `json:"column_count"`
	Columns      []ColumnSummary `json:"columns"`
	MissingCells int             `json:"missing_cells"`
	TotalCells   int             `json:"total_cells"`
	MissingRatio float64         `json:"missing_ratio"`
	QualityScore float64         `json:"quality_score"`
}

// Summarize computes row/column counts, per-column dtype and missing counts,
// missing_cells / total_cells, and quality = 1 - missing ratio.
func Summarize(t *Table) Summary {
	s := Summary{
		RowCount:    len(t.Rows),
		ColumnCount: len(t.Columns),
		Columns:     make([]ColumnSummary, len(t.Columns)),
		TotalCells:  len(t.Rows) * len(t.Columns),
	}

	for col, name := range t.Columns {
		inf := newInference()
		missing := 0
		for row := range t.Rows {
			if t.IsMissing(row, col) {
				missing++
				continue
			}
			inf.observe(t.Rows[row][col])
		}
		s.Columns[col] = ColumnSummary{Name: name, DType: inf.dtype(), Missing: missing}
		s.MissingCells += missing
	}

	if s.TotalCells > 0 {
		s.MissingRatio = float64(s.MissingCells) / float64(s.TotalCells)
	}
	s.QualityScore = 1 - s.MissingRatio
	return s
}

var datetimeLayouts = []string{
	time.RFC3339,
	"2006-01-02",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"01/02/2006",
	"02.01.2006",
}

// inference narrows a column type as values are observed; a column is the
// narrowest type every non-missing value satisfies.
type inference struct {
	seen    int
	isInt   bool
	isFloat bool
	isBool  bool
	isTime  bool
}

func newInference() *inference {
	return &inference{isInt: true, isFloat: true, isBool: true, isTime: true}
}

func (inf *inference) observe(raw string) {
	v := strings.TrimSpace(raw)
	inf.seen++
	if inf.isInt {
		if _, err := strconv.ParseInt(v, 10, 64); err != nil {
			inf.isInt = false
		}
	}
	if inf.isFloat {
		if _, err := strconv.ParseFloat(v, 64); err != nil {
			inf.isFloat = false
		}
	}
	if inf.isBool {
		if _, ok := ParseBool(v); !ok {
			inf.isBool = false
		}
	}
	if inf.isTime {
		if !isDatetime(v) {
			inf.isTime = false
		}
	}
}

func (inf *inference) dtype() string {
	switch {
	case inf.seen == 0:
		return DTypeEmpty
	case inf.isInt:
		return DTypeInteger
	case inf.isFloat:
		return DTypeFloat
	case inf.isBool:
		return DTypeBoolean
	case inf.isTime:
		return DTypeDatetime
	default:
		return DTypeString
	}
}

func isDatetime(v string) bool {
	for _, layout := range datetimeLayouts {
		if _, err := time.Parse(layout, v); err == nil {
			return true
		}
	}
	return false
}

// ParseBool accepts true/false and yes/no, case-insensitively.
func ParseBool(v string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "true", "yes":
		return true, true
	case "false", "no":
		return false, true
	default:
		return false, false
	}
}
