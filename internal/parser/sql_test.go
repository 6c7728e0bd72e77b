package parser

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/db-query-assistant/backend/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sqlFile(script string) *models.UploadedFile {
	return &models.UploadedFile{Name: "dump.sql", Ext: ".sql", Size: int64(len(script)), Data: []byte(script)}
}

func countPrefix(text, prefix string) int {
	n := 0
	for _, line := range strings.Split(text, "\n") {
		if strings.HasPrefix(line, prefix) {
			n++
		}
	}
	return n
}

const usersScript = `
CREATE TABLE users (id INTEGER, name TEXT);
INSERT INTO users VALUES (1, 'alice');
INSERT INTO users VALUES (2, NULL);
`

func TestSQLSource_Engines(t *testing.T) {
	for _, engine := range []string{EngineDuckDB, EngineSQLite} {
		t.Run(engine, func(t *testing.T) {
			opts := DefaultOptions()
			opts.SQLEngine = engine
			src := NewSQLSource(opts)

			text, err := src.Interpret(context.Background(), sqlFile(usersScript))
			require.NoError(t, err)

			lines := strings.Split(text, "\n")
			require.Len(t, lines, 3)
			assert.Equal(t, "Table: users", lines[0])
			assert.True(t, strings.HasPrefix(lines[1], "Schema: [(0, 'id', "), lines[1])
			assert.Contains(t, lines[1], "(1, 'name', ")
			assert.Equal(t, "Sample Data: [(1, 'alice'), (2, None)]", lines[2])
		})
	}
}

func TestSQLSource_OneBlockPerTable(t *testing.T) {
	script := `
CREATE TABLE a (x INTEGER);
CREATE TABLE b (y INTEGER);
CREATE TABLE c (z INTEGER);
INSERT INTO a VALUES (1);
`
	for _, engine := range []string{EngineDuckDB, EngineSQLite} {
		t.Run(engine, func(t *testing.T) {
			opts := DefaultOptions()
			opts.SQLEngine = engine

			text, err := NewSQLSource(opts).Interpret(context.Background(), sqlFile(script))
			require.NoError(t, err)

			assert.Equal(t, 3, countPrefix(text, "Table: "))
			assert.Equal(t, 3, countPrefix(text, "Schema: "))
			assert.Equal(t, 3, countPrefix(text, "Sample Data: "))
			assert.Contains(t, text, "Table: a\n")
			assert.Contains(t, text, "Sample Data: [(1,)]")
		})
	}
}

func TestSQLSource_SnapshotEachStatement(t *testing.T) {
	opts := DefaultOptions()
	opts.SQLEngine = EngineSQLite
	opts.SnapshotEachStatement = true

	script := "CREATE TABLE a (x INTEGER); CREATE TABLE b (y INTEGER)"
	text, err := NewSQLSource(opts).Interpret(context.Background(), sqlFile(script))
	require.NoError(t, err)

	// one table after the first statement, two after the second
	assert.Equal(t, 3, countPrefix(text, "Table: "))
}

func TestSQLSource_FailingStatementContinues(t *testing.T) {
	script := `
CREATE TABLE t (id INTEGER);
INSERT INTO missing VALUES (1);
SELEC broken;
INSERT INTO t VALUES (7);
`
	for _, engine := range []string{EngineDuckDB, EngineSQLite} {
		t.Run(engine, func(t *testing.T) {
			opts := DefaultOptions()
			opts.SQLEngine = engine

			text, err := NewSQLSource(opts).Interpret(context.Background(), sqlFile(script))
			require.NoError(t, err)

			assert.Equal(t, 2, countPrefix(text, "Error processing query: "))
			assert.Equal(t, 1, countPrefix(text, "Table: "))
			assert.Contains(t, text, "Sample Data: [(7,)]")
		})
	}
}

func TestSQLSource_SampleLimit(t *testing.T) {
	var b strings.Builder
	b.WriteString("CREATE TABLE n (v INTEGER);")
	for i := 0; i < 9; i++ {
		b.WriteString("INSERT INTO n VALUES (1);")
	}

	opts := DefaultOptions()
	opts.SQLEngine = EngineSQLite
	text, err := NewSQLSource(opts).Interpret(context.Background(), sqlFile(b.String()))
	require.NoError(t, err)
	assert.Contains(t, text, "Sample Data: [(1,), (1,), (1,), (1,), (1,)]")
	assert.NotContains(t, text, "(1,), (1,), (1,), (1,), (1,), (1,)")
}

func TestSQLSource_InvalidUTF8(t *testing.T) {
	text, err := NewSQLSource(DefaultOptions()).Interpret(context.Background(), sqlFile("CREATE TABLE \xff (x INT)"))
	assert.Empty(t, text)

	var pe *models.ParseError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, models.FormatSQL, pe.Format)
	assert.True(t, strings.HasPrefix(err.Error(), "Error processing SQL file: "))
}

func TestSQLSource_EmptyScript(t *testing.T) {
	text, err := NewSQLSource(DefaultOptions()).Interpret(context.Background(), sqlFile("  ;\n-- nothing here\n"))
	require.NoError(t, err)
	assert.Empty(t, text)
}

func TestSplitStatements(t *testing.T) {
	tests := []struct {
		name   string
		script string
		want   []string
	}{
		{"simple", "SELECT 1; SELECT 2;", []string{"SELECT 1", "SELECT 2"}},
		{"trailing comment", "SELECT 1;\n-- end of dump\n", []string{"SELECT 1"}},
		{"block comment", "/* header */ ; SELECT 1", []string{"SELECT 1"}},
		{"comment before statement", "-- users\nCREATE TABLE u (id INT)", []string{"-- users\nCREATE TABLE u (id INT)"}},
		{"quoted semicolon is split", "INSERT INTO t VALUES ('a;b')", []string{"INSERT INTO t VALUES ('a", "b')"}},
		{"blank", " \n\t ", []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SplitStatements(tt.script))
		})
	}
}

func TestSQLSource_DefaultReplaysSQLiteDump(t *testing.T) {
	dump := `PRAGMA foreign_keys=OFF;
BEGIN TRANSACTION;
CREATE TABLE users (id INTEGER PRIMARY KEY AUTOINCREMENT, name TEXT);
INSERT INTO users VALUES(1,'alice');
COMMIT;
`
	text, err := NewSQLSource(DefaultOptions()).Interpret(context.Background(), sqlFile(dump))
	require.NoError(t, err)

	assert.NotContains(t, text, "Error processing query")
	assert.Equal(t, strings.Join([]string{
		"Table: users",
		"Schema: [(0, 'id', 'INTEGER', 0, None, 1), (1, 'name', 'TEXT', 0, None, 0)]",
		"Sample Data: [(1, 'alice')]",
	}, "\n"), text)
}

func TestSQLSource_DuckDBValueTypes(t *testing.T) {
	script := `
CREATE TABLE p (price DECIMAL(10,2), d DATE, tags VARCHAR[], m MAP(VARCHAR, INTEGER));
INSERT INTO p VALUES (9.99, DATE '2024-01-02', ['a','b'], MAP {'k': 1});
`
	opts := DefaultOptions()
	opts.SQLEngine = EngineDuckDB

	text, err := NewSQLSource(opts).Interpret(context.Background(), sqlFile(script))
	require.NoError(t, err)

	lines := strings.Split(text, "\n")
	require.Len(t, lines, 3, text)
	assert.Equal(t, "Sample Data: [(9.99, '2024-01-02', ['a', 'b'], {'k': 1})]", lines[2])
}

func TestOpenEngine_DefaultIsSQLite(t *testing.T) {
	engine, err := OpenEngine("", DuckDBOptions{})
	require.NoError(t, err)
	defer engine.Close()
	assert.Equal(t, EngineSQLite, engine.Name())
}

func TestOpenEngine_Unknown(t *testing.T) {
	_, err := OpenEngine("oracle", DuckDBOptions{})
	assert.Error(t, err)
}
