package engine

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
)

// Frame is a columnar query result: named columns and row-major values.
type Frame struct {
	Columns []string
	Rows    [][]any
}

// RowCount returns the number of rows.
func (f *Frame) RowCount() int { return len(f.Rows) }

// EncodeJSON writes the frame as a JSON array of row objects.
func (f *Frame) EncodeJSON(w io.Writer) error {
	rows := make([]map[string]any, len(f.Rows))
	for i, row := range f.Rows {
		obj := make(map[string]any, len(f.Columns))
		for j, col := range f.Columns {
			if j < len(row) {
				obj[col] = row[j]
			}
		}
		rows[i] = obj
	}
	enc := json.NewEncoder(w)
	if err := enc.Encode(rows); err != nil {
		return fmt.Errorf("failed to encode frame as JSON: %w", err)
	}
	return nil
}

// EncodeCSV writes the frame as CSV text with a header row.
func (f *Frame) EncodeCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(f.Columns); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}
	record := make([]string, len(f.Columns))
	for _, row := range f.Rows {
		for j := range f.Columns {
			if j < len(row) {
				record[j] = formatCell(row[j])
			} else {
				record[j] = ""
			}
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("failed to write CSV row: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("failed to flush CSV: %w", err)
	}
	return nil
}

// formatCell renders one value for CSV output. Nil becomes the empty string.
func formatCell(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case []byte:
		return string(x)
	case bool:
		return strconv.FormatBool(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	default:
		return fmt.Sprint(x)
	}
}
