package cmd

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chriserin/pcc/internal/db"
)

func TestHistory_RequiresDatabase(t *testing.T) {
	inTempDir(t)

	var buf bytes.Buffer
	err := RunHistory(&buf, db.DefaultPath, 20)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no history at .pcc/history.db")
}

func TestHistory_EmptyDatabase(t *testing.T) {
	inTempDir(t)
	runInit(t)

	var buf bytes.Buffer
	require.NoError(t, RunHistory(&buf, db.DefaultPath, 20))
	assert.Equal(t, "no compilations recorded\n", buf.String())
}

func TestHistory_ListsNewestFirst(t *testing.T) {
	inTempDir(t)
	writeFile(t, "calc.peg", calcGrammar)
	writeFile(t, "bad.peg", "Start <- Missing\n")

	var discard bytes.Buffer
	require.NoError(t, RunCompile(&discard, "calc.peg", "", false, db.DefaultPath))
	require.Error(t, RunCompile(&discard, "bad.peg", "", false, db.DefaultPath))

	var buf bytes.Buffer
	require.NoError(t, RunHistory(&buf, db.DefaultPath, 20))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "bad.peg")
	assert.Contains(t, lines[0], "1/0")
	assert.Contains(t, lines[1], "calc.peg")
	assert.Contains(t, lines[1], "0/0")
}

func TestHistory_Limit(t *testing.T) {
	inTempDir(t)
	writeFile(t, "calc.peg", calcGrammar)

	var discard bytes.Buffer
	for range 3 {
		require.NoError(t, RunCompile(&discard, "calc.peg", "", false, db.DefaultPath))
	}

	var buf bytes.Buffer
	require.NoError(t, RunHistory(&buf, db.DefaultPath, 2))
	assert.Len(t, strings.Split(strings.TrimSpace(buf.String()), "\n"), 2)
}

func TestHistoryShow_PrintsDiagnostics(t *testing.T) {
	inTempDir(t)
	writeFile(t, "bad.peg", "Start <- Missing\n")

	var discard bytes.Buffer
	require.Error(t, RunCompile(&discard, "bad.peg", "", false, db.DefaultPath))

	var buf bytes.Buffer
	require.NoError(t, RunHistoryShow(&buf, db.DefaultPath, "1"))

	out := buf.String()
	assert.Contains(t, out, "compilation 1")
	assert.Contains(t, out, "input:  bad.peg")
	assert.Contains(t, out, "output: bad.go")
	assert.Contains(t, out, "status: 10  rules: 1  1 error, 0 warnings")
	assert.Contains(t, out, `bad.peg:1:10: error: undefined rule "Missing"`)
}

func TestHistoryShow_InvalidID(t *testing.T) {
	inTempDir(t)
	runInit(t)

	var buf bytes.Buffer
	err := RunHistoryShow(&buf, db.DefaultPath, "abc")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid compilation ID")
}

func TestHistoryShow_UnknownID(t *testing.T) {
	inTempDir(t)
	runInit(t)

	var buf bytes.Buffer
	err := RunHistoryShow(&buf, db.DefaultPath, "42")
	assert.ErrorIs(t, err, db.ErrNotFound)
}
