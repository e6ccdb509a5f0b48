package riskmodel

import (
	"errors"
	"math"
	"strconv"
	"strings"

	"phyrisk/internal/dataset"
	"phyrisk/internal/model"
)

var ErrNoFeatureColumns = errors.New("dataset has none of the model features")

// ColumnIndex maps each model feature to its column position in columns, or -1.
// Names are matched case-insensitively after trimming. It fails when no feature matches.
func ColumnIndex(features, columns []string) ([]int, error) {
	byName := make(map[string]int, len(columns))
	for i, c := range columns {
		key := strings.ToLower(strings.TrimSpace(c))
		if _, ok := byName[key]; !ok {
			byName[key] = i
		}
	}

	idx := make([]int, len(features))
	matched := 0
	for i, f := range features {
		pos, ok := byName[strings.ToLower(strings.TrimSpace(f))]
		if !ok {
			idx[i] = -1
			continue
		}
		idx[i] = pos
		matched++
	}
	if matched == 0 {
		return nil, ErrNoFeatureColumns
	}
	return idx, nil
}

// VectorizeRow builds the feature values for one table row using an index from ColumnIndex.
func VectorizeRow(p Predictor, idx []int, t *dataset.Table, row int) []model.FeatureValue {
	features := p.Features()
	background := p.Background()

	out := make([]model.FeatureValue, len(features))
	for i, name := range features {
		out[i] = model.FeatureValue{Name: name, Value: background[i], Imputed: true}
		col := idx[i]
		if col < 0 || t.IsMissing(row, col) {
			continue
		}
		if v, ok := parseCell(t.Rows[row][col]); ok {
			out[i].Value = v
			out[i].Imputed = false
		}
	}
	return out
}

// VectorizeMap builds feature values from a JSON-decoded object.
func VectorizeMap(p Predictor, values map[string]any) ([]model.FeatureValue, error) {
	lookup := make(map[string]any, len(values))
	for k, v := range values {
		lookup[strings.ToLower(strings.TrimSpace(k))] = v
	}

	features := p.Features()
	background := p.Background()

	out := make([]model.FeatureValue, len(features))
	matched := 0
	for i, name := range features {
		out[i] = model.FeatureValue{Name: name, Value: background[i], Imputed: true}
		raw, ok := lookup[strings.ToLower(name)]
		if !ok {
			continue
		}
		matched++
		if v, ok := anyToFloat(raw); ok {
			out[i].Value = v
			out[i].Imputed = false
		}
	}
	if matched == 0 {
		return nil, ErrNoFeatureColumns
	}
	return out, nil
}

func parseCell(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f, !isNaNOrInf(f)
	}
	if b, ok := dataset.ParseBool(s); ok {
		if b {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}

func anyToFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, !isNaNOrInf(x)
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	case bool:
		if x {
			return 1, true
		}
		return 0, true
	case string:
		if dataset.IsMissingText(x) {
			return 0, false
		}
		return parseCell(x)
	default:
		return 0, false
	}
}

func isNaNOrInf(f float64) bool {
	return math.IsNaN(f) || math.IsInf(f, 0)
}
