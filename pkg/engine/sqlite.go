package engine

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"

	"github.com/curlens/curlens/pkg/observability"
)

// SQLiteAdapter executes queries against an in-memory SQLite database.
// Registered files are materialized into tables at registration time. The
// adapter is not thread-safe; callers serialize access.
type SQLiteAdapter struct {
	db     *sql.DB
	logger *observability.Logger
}

// NewSQLiteAdapter opens a fresh in-memory database.
func NewSQLiteAdapter(logger *observability.Logger) (*SQLiteAdapter, error) {
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}
	// one connection, otherwise each pooled conn gets its own :memory: db
	db.SetMaxOpenConns(1)
	return &SQLiteAdapter{db: db, logger: logger}, nil
}

// NewSQLiteAdapterWithDB wraps an existing database handle. Tests use this
// to inject failing handles.
func NewSQLiteAdapterWithDB(db *sql.DB, logger *observability.Logger) *SQLiteAdapter {
	return &SQLiteAdapter{db: db, logger: logger}
}

// SQLiteFactory returns a Factory producing independent in-memory adapters.
func SQLiteFactory(logger *observability.Logger) Factory {
	return func() (Adapter, error) {
		return NewSQLiteAdapter(logger)
	}
}

// Name implements Adapter.
func (a *SQLiteAdapter) Name() string { return "sqlite" }

// Supports implements Adapter. SQLite has window functions and CTEs but
// cannot read remote objects itself.
func (a *SQLiteAdapter) Supports(f Feature) bool {
	switch f {
	case FeatureWindowFunctions, FeatureCTEs:
		return true
	default:
		return false
	}
}

// Close implements Adapter.
func (a *SQLiteAdapter) Close() error {
	return a.db.Close()
}

// RegisterFile implements Adapter.
func (a *SQLiteAdapter) RegisterFile(ctx context.Context, name, path string) error {
	return a.RegisterTable(ctx, name, []string{path})
}

// RegisterTable implements Adapter. The files' rows are unioned under one
// table; the first file defines the column set.
func (a *SQLiteAdapter) RegisterTable(ctx context.Context, name string, paths []string) error {
	if len(paths) == 0 {
		return fmt.Errorf("no files to register for table %q", name)
	}

	if _, err := a.db.ExecContext(ctx, "DROP TABLE IF EXISTS "+quoteIdent(name)); err != nil {
		return fmt.Errorf("failed to reset table %q: %w", name, err)
	}

	created := false
	for _, path := range paths {
		frame, err := loadFrame(path)
		if err != nil {
			return err
		}
		if len(frame.Columns) == 0 {
			continue
		}
		if !created {
			if err := a.createTable(ctx, name, frame); err != nil {
				return err
			}
			created = true
		}
		if err := a.insertFrame(ctx, name, frame); err != nil {
			return err
		}
	}
	if !created {
		return fmt.Errorf("no usable data in files for table %q", name)
	}
	a.logger.WithFields(map[string]interface{}{"table": name, "files": len(paths)}).Debug("table registered")
	return nil
}

// Execute implements Adapter.
func (a *SQLiteAdapter) Execute(ctx context.Context, sqlText string, rowLimit int) (*Frame, error) {
	rows, err := a.db.QueryContext(ctx, sqlText)
	if err != nil {
		return nil, fmt.Errorf("query execution failed: %w", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to read result columns: %w", err)
	}

	frame := &Frame{Columns: cols}
	values := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range values {
		ptrs[i] = &values[i]
	}

	for rows.Next() {
		if rowLimit > 0 && len(frame.Rows) >= rowLimit {
			break
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("failed to scan result row: %w", err)
		}
		row := make([]any, len(cols))
		for i, v := range values {
			if b, ok := v.([]byte); ok {
				row[i] = string(b)
			} else {
				row[i] = v
			}
		}
		frame.Rows = append(frame.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query execution failed: %w", err)
	}
	return frame, nil
}

// loadFrame reads a data file by extension.
func loadFrame(path string) (*Frame, error) {
	switch {
	case strings.HasSuffix(path, ".parquet"):
		return ReadParquet(path)
	case strings.HasSuffix(path, ".gz"):
		return ReadGzipCSV(path)
	default:
		return nil, fmt.Errorf("unsupported data file %q", path)
	}
}

func (a *SQLiteAdapter) createTable(ctx context.Context, name string, frame *Frame) error {
	defs := make([]string, len(frame.Columns))
	for j, col := range frame.Columns {
		defs[j] = quoteIdent(col) + " " + sqliteType(columnSample(frame, j))
	}
	stmt := fmt.Sprintf("CREATE TABLE %s (%s)", quoteIdent(name), strings.Join(defs, ", "))
	if _, err := a.db.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("failed to create table %q: %w", name, err)
	}
	return nil
}

func (a *SQLiteAdapter) insertFrame(ctx context.Context, name string, frame *Frame) error {
	if len(frame.Rows) == 0 {
		return nil
	}

	cols := make([]string, len(frame.Columns))
	marks := make([]string, len(frame.Columns))
	for j, col := range frame.Columns {
		cols[j] = quoteIdent(col)
		marks[j] = "?"
	}
	insert := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		quoteIdent(name), strings.Join(cols, ", "), strings.Join(marks, ", "))

	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin load transaction: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, insert)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to prepare insert for %q: %w", name, err)
	}

	args := make([]any, len(frame.Columns))
	for _, row := range frame.Rows {
		for j := range args {
			if j < len(row) {
				args[j] = row[j]
			} else {
				args[j] = nil
			}
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			stmt.Close()
			tx.Rollback()
			return fmt.Errorf("failed to load rows into %q: %w", name, err)
		}
	}
	stmt.Close()
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit load for %q: %w", name, err)
	}
	return nil
}

// sqliteType picks a column affinity from a Go sample value.
func sqliteType(v any) string {
	switch v.(type) {
	case int64, bool:
		return "INTEGER"
	case float64:
		return "REAL"
	default:
		return "TEXT"
	}
}

// quoteIdent quotes a SQL identifier.
func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}
