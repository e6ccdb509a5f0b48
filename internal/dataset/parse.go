package dataset

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"
)

// Parse reads a whole file of the given format into a Table.
func Parse(r io.Reader, format Format) (*Table, error) {
	switch format {
	case FormatCSV:
		return parseCSV(r)
	case FormatJSON:
		return parseJSON(r)
	case FormatXLSX:
		return parseXLSX(r)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
}

func parseCSV(r io.Reader) (*Table, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	reader.LazyQuotes = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, ErrEmptyFile
	}
	if err != nil {
		return nil, fmt.Errorf("read csv header failed: %w", err)
	}

	table := &Table{Columns: normalizeHeader(header)}
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv row %d failed: %w", len(table.Rows)+1, err)
		}
		if isBlankRecord(record) {
			continue
		}
		table.Rows = append(table.Rows, fitRow(record, len(table.Columns)))
	}
	return table, nil
}

func isBlankRecord(record []string) bool {
	for _, cell := range record {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

// parseJSON accepts an array of flat objects. Columns are the union of keys in first-seen order.
func parseJSON(r io.Reader) (*Table, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()

	tok, err := dec.Token()
	if errors.Is(err, io.EOF) {
		return nil, ErrEmptyFile
	}
	if err != nil {
		return nil, fmt.Errorf("read json failed: %w", err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '[' {
		return nil, fmt.Errorf("json dataset must be an array of objects")
	}

	var objects [][]keyValue
	index := map[string]int{}
	var columns []string
	for dec.More() {
		obj, err := decodeObject(dec)
		if err != nil {
			return nil, fmt.Errorf("read json row %d failed: %w", len(objects)+1, err)
		}
		for _, kv := range obj {
			if _, ok := index[kv.key]; !ok {
				index[kv.key] = len(columns)
				columns = append(columns, kv.key)
			}
		}
		objects = append(objects, obj)
	}
	if _, err := dec.Token(); err != nil {
		return nil, fmt.Errorf("read json end failed: %w", err)
	}
	if len(columns) == 0 {
		return nil, ErrEmptyFile
	}

	table := &Table{Columns: normalizeHeader(columns)}
	table.Rows = make([][]string, len(objects))
	table.Null = make([][]bool, len(objects))
	for i, obj := range objects {
		row := make([]string, len(columns))
		null := make([]bool, len(columns))
		for j := range null {
			null[j] = true
		}
		for _, kv := range obj {
			j := index[kv.key]
			row[j] = kv.value
			null[j] = kv.null
		}
		table.Rows[i] = row
		table.Null[i] = null
	}
	return table, nil
}

type keyValue struct {
	key   string
	value string
	null  bool
}

func decodeObject(dec *json.Decoder) ([]keyValue, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, fmt.Errorf("expected object, got %v", tok)
	}

	var out []keyValue
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, _ := keyTok.(string)

		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return nil, err
		}
		out = append(out, rawToCell(key, raw))
	}
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	return out, nil
}

func rawToCell(key string, raw json.RawMessage) keyValue {
	trimmed := bytes.TrimSpace(raw)
	switch {
	case bytes.Equal(trimmed, []byte("null")):
		return keyValue{key: key, null: true}
	case len(trimmed) > 0 && trimmed[0] == '"':
		var s string
		if err := json.Unmarshal(trimmed, &s); err == nil {
			return keyValue{key: key, value: s}
		}
	case len(trimmed) > 0 && (trimmed[0] == '{' || trimmed[0] == '['):
		var buf bytes.Buffer
		if err := json.Compact(&buf, trimmed); err == nil {
			return keyValue{key: key, value: buf.String()}
		}
	}
	return keyValue{key: key, value: string(trimmed)}
}

// parseXLSX reads the first sheet; its first row is the header.
func parseXLSX(r io.Reader) (*Table, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open xlsx failed: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, ErrEmptyFile
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read xlsx sheet %q failed: %w", sheets[0], err)
	}
	if len(rows) == 0 || isBlankRecord(rows[0]) {
		return nil, ErrEmptyFile
	}

	table := &Table{Columns: normalizeHeader(rows[0])}
	for _, row := range rows[1:] {
		if isBlankRecord(row) {
			continue
		}
		table.Rows = append(table.Rows, fitRow(row, len(table.Columns)))
	}
	return table, nil
}
