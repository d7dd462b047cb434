package engine

import (
	"compress/gzip"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
)

// ReadGzipCSV loads a gzip-compressed CSV file into a Frame. The first
// record is the header. Cell values are typed by inference: integer, then
// float, then string; empty cells become nil.
func ReadGzipCSV(path string) (*Frame, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open csv file: %w", err)
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("failed to decompress %s: %w", path, err)
	}
	defer gz.Close()

	r := csv.NewReader(gz)
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err == io.EOF {
		return &Frame{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read csv header from %s: %w", path, err)
	}

	frame := &Frame{Columns: header}
	for {
		record, err := r.Read()
		if err == io.EOF {
			return frame, nil
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read csv row from %s: %w", path, err)
		}
		row := make([]any, len(header))
		for j := range header {
			if j < len(record) {
				row[j] = inferCell(record[j])
			}
		}
		frame.Rows = append(frame.Rows, row)
	}
}

// inferCell types a CSV cell.
func inferCell(s string) any {
	if s == "" {
		return nil
	}
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return s
}
