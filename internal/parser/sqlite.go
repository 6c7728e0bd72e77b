package parser

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteEngine is an in-memory SQLite database.
type SQLiteEngine struct {
	sqlEngine
}

// NewSQLiteEngine opens an empty in-memory SQLite database.
func NewSQLiteEngine() (*SQLiteEngine, error) {
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}
	// Each connection to :memory: gets its own database.
	db.SetMaxOpenConns(1)

	return &SQLiteEngine{
		sqlEngine: sqlEngine{
			db:          db,
			tablesQuery: `SELECT name FROM sqlite_master WHERE type='table' AND name NOT LIKE 'sqlite_%' ORDER BY rowid`,
		},
	}, nil
}

func (e *SQLiteEngine) Name() string { return EngineSQLite }
