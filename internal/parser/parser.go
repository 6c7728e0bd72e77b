// Package parser turns uploaded database exports into the plain-text summary
// that is embedded in every model prompt.
package parser

import (
	"context"

	"github.com/db-query-assistant/backend/internal/models"
)

// Source interprets one upload format. SQLSource, JSONSource and CSVSource
// are the only implementations; Registry picks one by file extension.
type Source interface {
	// Format returns the format this source handles.
	Format() models.SourceFormat
	// Interpret produces the summary text. A whole-file failure is returned as a
	// *models.ParseError together with an empty summary.
	Interpret(ctx context.Context, file *models.UploadedFile) (string, error)
}

// Options configures the sources built by NewRegistry.
type Options struct {
	SQLEngine             string // "sqlite" (default) or "duckdb"
	SampleRows            int
	SnapshotEachStatement bool
	JSONLines             bool
	DuckDB                DuckDBOptions
}

// DefaultOptions mirrors the defaults of the configuration file.
func DefaultOptions() Options {
	return Options{
		SQLEngine:  EngineSQLite,
		SampleRows: 5,
		DuckDB: DuckDBOptions{
			Threads:     2,
			MemoryLimit: "512MB",
		},
	}
}

func newParseError(format models.SourceFormat, file *models.UploadedFile, reason string, err error) *models.ParseError {
	pe := &models.ParseError{
		Format: format,
		Reason: reason,
		Err:    err,
	}
	if file != nil {
		pe.File = file.Name
	}
	return pe
}
