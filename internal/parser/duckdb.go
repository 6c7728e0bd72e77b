package parser

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"

	"github.com/marcboeker/go-duckdb"
)

// DuckDBOptions tunes the per-upload DuckDB instance.
type DuckDBOptions struct {
	Threads     int
	MemoryLimit string
}

// DuckEngine is an in-memory DuckDB database.
type DuckEngine struct {
	sqlEngine
}

// NewDuckEngine opens an empty in-memory DuckDB database.
func NewDuckEngine(opts DuckDBOptions) (*DuckEngine, error) {
	var pragmas []string
	if opts.MemoryLimit != "" {
		pragmas = append(pragmas, fmt.Sprintf("PRAGMA memory_limit=%s", quoteLiteral(opts.MemoryLimit)))
	}
	if opts.Threads > 0 {
		pragmas = append(pragmas, fmt.Sprintf("PRAGMA threads=%d", opts.Threads))
	}
	pragmas = append(pragmas, "PRAGMA enable_progress_bar=false")

	connector, err := duckdb.NewConnector("", func(execer driver.ExecerContext) error {
		for _, pragma := range pragmas {
			if _, err := execer.ExecContext(context.Background(), pragma, nil); err != nil {
				return fmt.Errorf("%s: %w", pragma, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create DuckDB connector: %w", err)
	}

	db := sql.OpenDB(connector)
	// Statements share session state such as SET and temp tables.
	db.SetMaxOpenConns(1)

	return &DuckEngine{
		sqlEngine: sqlEngine{
			db: db,
			tablesQuery: `SELECT table_name FROM duckdb_tables()
				WHERE NOT internal AND NOT temporary
				ORDER BY table_oid`,
		},
	}, nil
}

func (e *DuckEngine) Name() string { return EngineDuckDB }
