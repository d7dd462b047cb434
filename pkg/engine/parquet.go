package engine

import (
	"fmt"
	"io"
	"os"

	"github.com/parquet-go/parquet-go"
)

// ReadParquet loads a flat parquet file into a Frame. Column order follows
// the file schema.
func ReadParquet(path string) (*Frame, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open parquet file: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat parquet file: %w", err)
	}

	pf, err := parquet.OpenFile(f, info.Size())
	if err != nil {
		return nil, fmt.Errorf("failed to read parquet file %s: %w", path, err)
	}

	fields := pf.Schema().Fields()
	frame := &Frame{Columns: make([]string, len(fields))}
	for i, field := range fields {
		frame.Columns[i] = field.Name()
	}

	for _, rg := range pf.RowGroups() {
		if err := readRowGroup(frame, rg); err != nil {
			return nil, fmt.Errorf("failed to read parquet rows from %s: %w", path, err)
		}
	}
	return frame, nil
}

func readRowGroup(frame *Frame, rg parquet.RowGroup) error {
	rows := rg.Rows()
	defer rows.Close()

	buf := make([]parquet.Row, 128)
	for {
		n, err := rows.ReadRows(buf)
		for _, prow := range buf[:n] {
			out := make([]any, len(frame.Columns))
			for _, v := range prow {
				if ci := int(v.Column()); ci >= 0 && ci < len(out) {
					out[ci] = parquetValue(v)
				}
			}
			frame.Rows = append(frame.Rows, out)
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if n == 0 {
			return nil
		}
	}
}

// parquetValue converts one parquet value into its Go representation.
func parquetValue(v parquet.Value) any {
	if v.IsNull() {
		return nil
	}
	switch v.Kind() {
	case parquet.Boolean:
		return v.Boolean()
	case parquet.Int32:
		return int64(v.Int32())
	case parquet.Int64:
		return v.Int64()
	case parquet.Float:
		return float64(v.Float())
	case parquet.Double:
		return v.Double()
	default:
		return v.String()
	}
}

// WriteParquet writes a Frame to path as a flat parquet file. Column types
// follow the first non-nil value of each column; columns are optional so nil
// cells round-trip.
func WriteParquet(path string, frame *Frame) error {
	group := parquet.Group{}
	for j, col := range frame.Columns {
		group[col] = parquet.Optional(nodeFor(columnSample(frame, j)))
	}
	schema := parquet.NewSchema("frame", group)

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create parquet file: %w", err)
	}

	w := parquet.NewGenericWriter[map[string]any](f, schema)
	const batchSize = 512
	batch := make([]map[string]any, 0, batchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if _, err := w.Write(batch); err != nil {
			return err
		}
		batch = batch[:0]
		return nil
	}

	for _, row := range frame.Rows {
		obj := make(map[string]any, len(frame.Columns))
		for j, col := range frame.Columns {
			if j < len(row) && row[j] != nil {
				obj[col] = row[j]
			}
		}
		batch = append(batch, obj)
		if len(batch) == batchSize {
			if err := flush(); err != nil {
				f.Close()
				return fmt.Errorf("failed to write parquet rows: %w", err)
			}
		}
	}
	if err := flush(); err != nil {
		f.Close()
		return fmt.Errorf("failed to write parquet rows: %w", err)
	}
	if err := w.Close(); err != nil {
		f.Close()
		return fmt.Errorf("failed to finalize parquet file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close parquet file: %w", err)
	}
	return nil
}

// columnSample returns the first non-nil value of column j, or nil.
func columnSample(frame *Frame, j int) any {
	for _, row := range frame.Rows {
		if j < len(row) && row[j] != nil {
			return row[j]
		}
	}
	return nil
}

// nodeFor picks a parquet node for a Go value.
func nodeFor(v any) parquet.Node {
	switch v.(type) {
	case bool:
		return parquet.Leaf(parquet.BooleanType)
	case int64:
		return parquet.Int(64)
	case float64:
		return parquet.Leaf(parquet.DoubleType)
	default:
		return parquet.String()
	}
}
