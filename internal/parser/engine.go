package parser

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// Engine names accepted by Options.SQLEngine.
const (
	EngineDuckDB = "duckdb"
	EngineSQLite = "sqlite"
)

// Engine is a throwaway in-memory relational store that one SQL script is
// replayed into.
type Engine interface {
	Name() string
	Exec(ctx context.Context, stmt string) error
	// Tables lists user tables in creation order.
	Tables(ctx context.Context) ([]string, error)
	// Columns returns one PRAGMA table_info row per column:
	// (cid, name, type, notnull, dflt_value, pk).
	Columns(ctx context.Context, table string) ([][]any, error)
	// Sample returns at most limit rows of table.
	Sample(ctx context.Context, table string, limit int) ([][]any, error)
	Close() error
}

// OpenEngine opens a fresh in-memory store of the named kind.
func OpenEngine(name string, opts DuckDBOptions) (Engine, error) {
	switch strings.ToLower(name) {
	case "", EngineSQLite:
		return NewSQLiteEngine()
	case EngineDuckDB:
		return NewDuckEngine(opts)
	default:
		return nil, fmt.Errorf("unknown sql engine: %s", name)
	}
}

// sqlEngine holds the database/sql plumbing shared by both engines.
type sqlEngine struct {
	db          *sql.DB
	tablesQuery string
}

func (e *sqlEngine) Exec(ctx context.Context, stmt string) error {
	_, err := e.db.ExecContext(ctx, stmt)
	return err
}

func (e *sqlEngine) Tables(ctx context.Context) ([]string, error) {
	rows, err := e.db.QueryContext(ctx, e.tablesQuery)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan table name: %w", err)
		}
		tables = append(tables, name)
	}
	return tables, rows.Err()
}

func (e *sqlEngine) Columns(ctx context.Context, table string) ([][]any, error) {
	return e.queryRows(ctx, fmt.Sprintf("PRAGMA table_info(%s)", quoteLiteral(table)))
}

func (e *sqlEngine) Sample(ctx context.Context, table string, limit int) ([][]any, error) {
	return e.queryRows(ctx, fmt.Sprintf("SELECT * FROM %s LIMIT %d", quoteIdent(table), limit))
}

func (e *sqlEngine) Close() error {
	return e.db.Close()
}

// queryRows scans every column into an untyped value so the driver's
// native Go types reach the renderer.
func (e *sqlEngine) queryRows(ctx context.Context, query string) ([][]any, error) {
	rows, err := e.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols, err := rows.ColumnTypes()
	if err != nil {
		return nil, err
	}

	var out [][]any
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		for i, col := range cols {
			values[i] = normalizeValue(col.DatabaseTypeName(), values[i])
		}
		out = append(out, values)
	}
	return out, rows.Err()
}

// normalizeValue fixes up values whose Go type alone is ambiguous.
// DuckDB hands UUID columns back as raw 16-byte slices and TIME columns as
// timestamps on year one.
func normalizeValue(dbType string, v any) any {
	switch x := v.(type) {
	case []byte:
		if strings.EqualFold(dbType, "UUID") && len(x) == 16 {
			var id [16]byte
			copy(id[:], x)
			return id
		}
	case time.Time:
		if strings.EqualFold(dbType, "TIME") {
			return x.Format("15:04:05")
		}
	}
	return v
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
