package parser

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/db-query-assistant/backend/internal/models"
)

var errNoColumns = errors.New("No columns to parse from file")

const missingValue = "NaN"

// CSVSource reports the header and the first rows of a CSV file as an
// aligned text table with a row index.
type CSVSource struct {
	sampleRows int
}

// NewCSVSource creates a CSV source showing opts.SampleRows rows.
func NewCSVSource(opts Options) *CSVSource {
	rows := opts.SampleRows
	if rows <= 0 {
		rows = 5
	}
	return &CSVSource{sampleRows: rows}
}

func (s *CSVSource) Format() models.SourceFormat { return models.FormatCSV }

func (s *CSVSource) Interpret(ctx context.Context, file *models.UploadedFile) (string, error) {
	table, err := readCSV(file.Data)
	if err != nil {
		return "", newParseError(models.FormatCSV, file, "CSV Error", err)
	}

	var b strings.Builder
	b.WriteString("CSV Data:\n")
	b.WriteString("Columns: ")
	b.WriteString(reprStrings(table.columns))
	b.WriteString("\nSample Data:\n")
	b.WriteString(table.render(s.sampleRows))
	return b.String(), nil
}

// csvTable is a parsed CSV file with cells already formatted per column.
type csvTable struct {
	columns []string
	rows    [][]string
}

func readCSV(data []byte) (*csvTable, error) {
	if !utf8.Valid(data) {
		return nil, errInvalidUTF8
	}
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))

	r := csv.NewReader(bytes.NewReader(data))
	r.LazyQuotes = true
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return nil, errNoColumns
	}
	if err != nil {
		return nil, err
	}

	t := &csvTable{columns: columnNames(header)}
	width := len(t.columns)
	for {
		record, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		if len(record) > width {
			line, _ := r.FieldPos(0)
			return nil, fmt.Errorf("Error tokenizing data. C error: Expected %d fields in line %d, saw %d", width, line, len(record))
		}

		row := make([]string, width)
		for i := range row {
			if i < len(record) && record[i] != "" {
				row[i] = record[i]
			} else {
				row[i] = missingValue
			}
		}
		t.rows = append(t.rows, row)
	}

	for col := range t.columns {
		formatColumn(t.rows, col)
	}
	return t, nil
}

// columnNames fills empty headers and renames duplicates to name.1, name.2.
func columnNames(header []string) []string {
	names := make([]string, len(header))
	used := make(map[string]bool, len(header))
	counts := make(map[string]int)
	for i, h := range header {
		if h == "" {
			h = fmt.Sprintf("Unnamed: %d", i)
		}
		name := h
		for used[name] {
			counts[h]++
			name = fmt.Sprintf("%s.%d", h, counts[h])
		}
		used[name] = true
		names[i] = name
	}
	return names
}

// formatColumn normalizes numeric columns. A column of integers with no
// missing cells stays integral; any other all-numeric column is printed as
// floats sharing one precision.
func formatColumn(rows [][]string, col int) {
	if len(rows) == 0 {
		return
	}

	allInt, missing := true, false
	for _, row := range rows {
		v := row[col]
		if v == missingValue {
			missing = true
			continue
		}
		if _, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64); err != nil {
			allInt = false
			if _, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err != nil {
				return
			}
		}
	}

	switch {
	case allInt && !missing:
		for _, row := range rows {
			n, _ := strconv.ParseInt(strings.TrimSpace(row[col]), 10, 64)
			row[col] = strconv.FormatInt(n, 10)
		}
	default:
		decimals := 1
		for _, row := range rows {
			if row[col] == missingValue {
				continue
			}
			f, _ := strconv.ParseFloat(strings.TrimSpace(row[col]), 64)
			s := strconv.FormatFloat(f, 'f', -1, 64)
			if dot := strings.IndexByte(s, '.'); dot >= 0 {
				decimals = max(decimals, min(len(s)-dot-1, 6))
			}
		}
		for _, row := range rows {
			if row[col] == missingValue {
				continue
			}
			f, _ := strconv.ParseFloat(strings.TrimSpace(row[col]), 64)
			row[col] = strconv.FormatFloat(f, 'f', decimals, 64)
		}
	}
}

// render prints the first n rows the way a data frame prints itself:
// index left-aligned, values right-aligned, two spaces between columns.
func (t *csvTable) render(n int) string {
	rows := t.rows
	if len(rows) > n {
		rows = rows[:n]
	}

	if len(rows) == 0 {
		return fmt.Sprintf("Empty DataFrame\nColumns: [%s]\nIndex: []", strings.Join(t.columns, ", "))
	}

	indexWidth := utf8.RuneCountInString(strconv.Itoa(len(rows) - 1))
	widths := make([]int, len(t.columns))
	for i, c := range t.columns {
		widths[i] = utf8.RuneCountInString(c)
		for _, row := range rows {
			widths[i] = max(widths[i], utf8.RuneCountInString(row[i]))
		}
	}

	var b strings.Builder
	b.WriteString(strings.Repeat(" ", indexWidth))
	for i, c := range t.columns {
		b.WriteString("  ")
		b.WriteString(padLeft(c, widths[i]))
	}
	for r, row := range rows {
		b.WriteByte('\n')
		b.WriteString(padRight(strconv.Itoa(r), indexWidth))
		for i, v := range row {
			b.WriteString("  ")
			b.WriteString(padLeft(v, widths[i]))
		}
	}
	return b.String()
}

func padLeft(s string, width int) string {
	if n := utf8.RuneCountInString(s); n < width {
		return strings.Repeat(" ", width-n) + s
	}
	return s
}

func padRight(s string, width int) string {
	if n := utf8.RuneCountInString(s); n < width {
		return s + strings.Repeat(" ", width-n)
	}
	return s
}
