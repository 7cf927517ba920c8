package db

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chriserin/pcc/internal/diag"
)

func TestOpen_CreatesDirectoryAndMigrates(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".pcc", "history.db")
	sqlDB, err := Open(path)
	require.NoError(t, err)
	defer sqlDB.Close()

	assert.FileExists(t, path)
	var mode string
	require.NoError(t, sqlDB.QueryRow("PRAGMA journal_mode").Scan(&mode))
	assert.Equal(t, "wal", mode)

	var version int
	require.NoError(t, sqlDB.QueryRow(`SELECT version FROM schema_version`).Scan(&version))
	assert.Equal(t, len(All), version)
}

func TestRecorder_StoresCompilationAndDiagnostics(t *testing.T) {
	sqlDB, err := Open(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	defer sqlDB.Close()

	before := time.Now().Add(-time.Second)
	rec := NewRecorder(sqlDB, "calc.peg", "calc.go")
	var sink diag.Sink = rec
	sink.Report(diag.Diagnostic{Severity: diag.Error, Kind: diag.Semantic, Line: 1, Col: 8, Message: `undefined rule "Foo"`})
	sink.Report(diag.Diagnostic{Severity: diag.Warning, Kind: diag.Semantic, Line: 2, Col: 1, Message: `rule "Dead" is never used`})

	id, err := rec.Finish(10, 2)
	require.NoError(t, err)

	c, diags, err := Get(sqlDB, id)
	require.NoError(t, err)
	assert.Equal(t, "calc.peg", c.InputPath)
	assert.Equal(t, "calc.go", c.OutputPath)
	assert.Equal(t, 10, c.Status)
	assert.Equal(t, 1, c.Errors)
	assert.Equal(t, 1, c.Warnings)
	assert.Equal(t, 2, c.Rules)
	assert.True(t, c.StartedAt.After(before))

	require.Len(t, diags, 2)
	assert.Equal(t, diag.Diagnostic{Severity: diag.Error, Kind: diag.Semantic, Line: 1, Col: 8, Message: `undefined rule "Foo"`}, diags[0])
	assert.Equal(t, diag.Warning, diags[1].Severity)
}

func TestRecent_NewestFirst(t *testing.T) {
	sqlDB, err := Open(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	defer sqlDB.Close()

	for _, in := range []string{"a.peg", "b.peg", "c.peg"} {
		_, err := NewRecorder(sqlDB, in, "").Finish(0, 1)
		require.NoError(t, err)
	}

	recent, err := Recent(sqlDB, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "c.peg", recent[0].InputPath)
	assert.Equal(t, "b.peg", recent[1].InputPath)
}

func TestGet_NotFound(t *testing.T) {
	sqlDB, err := Open(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	defer sqlDB.Close()

	_, _, err = Get(sqlDB, 42)
	assert.ErrorIs(t, err, ErrNotFound)
}
