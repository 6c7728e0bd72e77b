package parser

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/db-query-assistant/backend/internal/models"
	"github.com/db-query-assistant/backend/internal/pkg/logger"
	"go.uber.org/zap"
)

var errInvalidUTF8 = errors.New("'utf-8' codec can't decode file contents")

// SQLSource replays a SQL script into a fresh in-memory engine and reports
// the schema and a few sample rows of every resulting table.
type SQLSource struct {
	engine                string
	sampleRows            int
	snapshotEachStatement bool
	duck                  DuckDBOptions
}

// NewSQLSource creates a SQL source using the engine and limits from opts.
func NewSQLSource(opts Options) *SQLSource {
	rows := opts.SampleRows
	if rows <= 0 {
		rows = 5
	}
	return &SQLSource{
		engine:                opts.SQLEngine,
		sampleRows:            rows,
		snapshotEachStatement: opts.SnapshotEachStatement,
		duck:                  opts.DuckDB,
	}
}

func (s *SQLSource) Format() models.SourceFormat { return models.FormatSQL }

func (s *SQLSource) Interpret(ctx context.Context, file *models.UploadedFile) (string, error) {
	log := logger.FromContext(ctx)

	if !utf8.Valid(file.Data) {
		return "", newParseError(models.FormatSQL, file, "Error processing SQL file", errInvalidUTF8)
	}

	engine, err := OpenEngine(s.engine, s.duck)
	if err != nil {
		return "", newParseError(models.FormatSQL, file, "Error processing SQL file", err)
	}
	defer engine.Close()

	statements := SplitStatements(string(file.Data))
	log.Debug("replaying sql script",
		zap.String("engine", engine.Name()),
		zap.Int("statements", len(statements)))

	var lines []string
	failed := 0
	for _, stmt := range statements {
		if err := engine.Exec(ctx, stmt); err != nil {
			failed++
			lines = append(lines, queryError(err))
			continue
		}
		if s.snapshotEachStatement {
			lines = append(lines, s.describeTables(ctx, engine)...)
		}
	}
	if !s.snapshotEachStatement {
		lines = append(lines, s.describeTables(ctx, engine)...)
	}

	if failed > 0 {
		log.Info("sql statements failed", zap.Int("failed", failed), zap.Int("total", len(statements)))
	}

	return strings.Join(lines, "\n"), nil
}

// describeTables emits the Table/Schema/Sample Data triple for every table.
// A failing lookup is reported inline like a failing statement.
func (s *SQLSource) describeTables(ctx context.Context, engine Engine) []string {
	tables, err := engine.Tables(ctx)
	if err != nil {
		return []string{queryError(err)}
	}

	lines := make([]string, 0, len(tables)*3)
	for _, table := range tables {
		schema, err := engine.Columns(ctx, table)
		if err != nil {
			return append(lines, queryError(err))
		}
		sample, err := engine.Sample(ctx, table, s.sampleRows)
		if err != nil {
			return append(lines, queryError(err))
		}

		lines = append(lines,
			"Table: "+table,
			"Schema: "+reprRows(schema),
			"Sample Data: "+reprRows(sample),
		)
	}
	return lines
}

func queryError(err error) string {
	return fmt.Sprintf("Error processing query: %v", err)
}

// SplitStatements splits a script on every ';'. Quoted semicolons are not
// special. Blank and comment-only fragments are dropped.
func SplitStatements(script string) []string {
	parts := strings.Split(script, ";")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if isBlankSQL(part) {
			continue
		}
		out = append(out, strings.TrimSpace(part))
	}
	return out
}

func isBlankSQL(fragment string) bool {
	rest := fragment
	for {
		rest = strings.TrimSpace(rest)
		switch {
		case rest == "":
			return true
		case strings.HasPrefix(rest, "--"):
			nl := strings.IndexByte(rest, '\n')
			if nl < 0 {
				return true
			}
			rest = rest[nl+1:]
		case strings.HasPrefix(rest, "/*"):
			end := strings.Index(rest[2:], "*/")
			if end < 0 {
				return true
			}
			rest = rest[end+4:]
		default:
			return false
		}
	}
}
