package dataset

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestFormatFromFilename(t *testing.T) {
	f, err := FormatFromFilename("Survey.CSV")
	require.NoError(t, err)
	assert.Equal(t, FormatCSV, f)

	f, err = FormatFromFilename("data.xlsx")
	require.NoError(t, err)
	assert.Equal(t, FormatXLSX, f)

	_, err = FormatFromFilename("notes.txt")
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestParseCSV(t *testing.T) {
	input := "\ufeffage, sleep_hours,name,,age\n" +
		"34,7.5,Ann,x,1\n" +
		"NA,6,Bob\n" +
		"\n" +
		"41,,  ,y,2,extra\n"

	table, err := Parse(strings.NewReader(input), FormatCSV)
	require.NoError(t, err)

	assert.Equal(t, []string{"age", "sleep_hours", "name", "column_4", "age_2"}, table.Columns)
	require.Len(t, table.Rows, 3, "blank lines are skipped")
	for _, row := range table.Rows {
		assert.Len(t, row, 5)
	}
	assert.True(t, table.IsMissing(1, 0), "NA is missing")
	assert.True(t, table.IsMissing(1, 3), "padded cell is missing")
	assert.True(t, table.IsMissing(2, 2), "whitespace is missing")
	assert.False(t, table.IsMissing(0, 0))
}

func TestParseCSVEmpty(t *testing.T) {
	_, err := Parse(strings.NewReader(""), FormatCSV)
	assert.ErrorIs(t, err, ErrEmptyFile)
}

func TestParseJSON(t *testing.T) {
	input := `[
		{"age": 30, "smoker": true, "notes": "ok"},
		{"age": null, "stress": 4.5, "tags": ["a", "b"]},
		{"notes": "none"}
	]`

	table, err := Parse(strings.NewReader(input), FormatJSON)
	require.NoError(t, err)

	assert.Equal(t, []string{"age", "smoker", "notes", "stress", "tags"}, table.Columns)
	require.Len(t, table.Rows, 3)
	assert.Equal(t, "30", table.Rows[0][0])
	assert.Equal(t, "true", table.Rows[0][1])
	assert.Equal(t, `["a","b"]`, table.Rows[1][4])
	assert.True(t, table.IsMissing(1, 0), "json null")
	assert.True(t, table.IsMissing(2, 0), "absent key")
	assert.True(t, table.IsMissing(2, 2), "none token")

	_, err = Parse(strings.NewReader(`{"a": 1}`), FormatJSON)
	assert.Error(t, err)

	_, err = Parse(strings.NewReader(`[]`), FormatJSON)
	assert.ErrorIs(t, err, ErrEmptyFile)
}

func TestParseXLSX(t *testing.T) {
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	require.NoError(t, f.SetSheetRow(sheet, "A1", &[]any{"age", "stress_level"}))
	require.NoError(t, f.SetSheetRow(sheet, "A2", &[]any{25, 3}))
	require.NoError(t, f.SetSheetRow(sheet, "A3", &[]any{40}))
	var buf bytes.Buffer
	require.NoError(t, f.Write(&buf))

	table, err := Parse(&buf, FormatXLSX)
	require.NoError(t, err)

	assert.Equal(t, []string{"age", "stress_level"}, table.Columns)
	require.Len(t, table.Rows, 2)
	assert.Equal(t, "25", table.Rows[0][0])
	assert.True(t, table.IsMissing(1, 1))
}

func TestSummarize(t *testing.T) {
	input := "id,score,flag,when,label,blank\n" +
		"1,0.5,yes,2024-01-02,a,\n" +
		"2,1,no,2024-02-03,b,\n" +
		"3,,true,2024-03-04,7,\n" +
		"4,2.25,false,,c,\n"

	table, err := Parse(strings.NewReader(input), FormatCSV)
	require.NoError(t, err)
	s := Summarize(table)

	assert.Equal(t, 4, s.RowCount)
	assert.Equal(t, 6, s.ColumnCount)
	assert.Equal(t, 24, s.TotalCells)
	assert.Equal(t, 6, s.MissingCells)
	assert.InDelta(t, 6.0/24.0, s.MissingRatio, 1e-12)
	assert.InDelta(t, 1-6.0/24.0, s.QualityScore, 1e-12)

	dtypes := map[string]string{}
	for _, c := range s.Columns {
		dtypes[c.Name] = c.DType
	}
	assert.Equal(t, DTypeInteger, dtypes["id"])
	assert.Equal(t, DTypeFloat, dtypes["score"])
	assert.Equal(t, DTypeBoolean, dtypes["flag"])
	assert.Equal(t, DTypeDatetime, dtypes["when"])
	assert.Equal(t, DTypeString, dtypes["label"])
	assert.Equal(t, DTypeEmpty, dtypes["blank"])
	assert.Equal(t, 4, s.Columns[5].Missing)
}

func TestSummarizeHeaderOnly(t *testing.T) {
	table, err := Parse(strings.NewReader("a,b\n"), FormatCSV)
	require.NoError(t, err)

	s := Summarize(table)
	assert.Equal(t, 0, s.RowCount)
	assert.Equal(t, 2, s.ColumnCount)
	assert.Zero(t, s.MissingRatio)
	assert.Equal(t, 1.0, s.QualityScore)
}
