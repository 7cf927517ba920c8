package manifest

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_Entries(t *testing.T) {
	src := `# grammars for the calculator
grammar "calc.peg" {
  output = "gen/calc.go"
  debug  = true
}

grammar "json.peg" {}
`
	targets, err := Parse("pcc.build", strings.NewReader(src))
	require.NoError(t, err)
	assert.Equal(t, []Target{
		{Input: "calc.peg", Output: "gen/calc.go", Debug: true},
		{Input: "json.peg"},
	}, targets)
}

func TestParse_DebugFalse(t *testing.T) {
	targets, err := Parse("pcc.build", strings.NewReader(`grammar "a.peg" { debug = false }`))
	require.NoError(t, err)
	require.Len(t, targets, 1)
	assert.False(t, targets[0].Debug)
}

func TestParse_Empty(t *testing.T) {
	targets, err := Parse("pcc.build", strings.NewReader("# nothing yet\n"))
	require.NoError(t, err)
	assert.Empty(t, targets)
}

func TestParse_UnknownKeyHasPosition(t *testing.T) {
	src := "grammar \"a.peg\" {\n  colour = \"red\"\n}\n"
	_, err := Parse("pcc.build", strings.NewReader(src))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pcc.build:2:3")
	assert.Contains(t, err.Error(), `unknown key "colour"`)
}

func TestParse_ReportsEveryInvalidSetting(t *testing.T) {
	src := `grammar "a.peg" {
  output = true
  debug = "yes"
  debug = true
}`
	_, err := Parse("pcc.build", strings.NewReader(src))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "output must be a string")
	assert.Contains(t, err.Error(), "debug must be true or false")
	assert.Contains(t, err.Error(), `"debug" set twice`)
}

func TestParse_SyntaxError(t *testing.T) {
	_, err := Parse("pcc.build", strings.NewReader(`grammar calc.peg {}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parsing manifest")
}

func TestLoad_RelativeToManifest(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, DefaultFile)
	src := `grammar "calc.peg" { output = "out/calc.go" }
grammar "/abs/json.peg" {}`
	require.NoError(t, os.WriteFile(path, []byte(src), 0o644))

	targets, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, []Target{
		{Input: filepath.Join(dir, "calc.peg"), Output: filepath.Join(dir, "out", "calc.go")},
		{Input: "/abs/json.peg"},
	}, targets)
}

func TestLoad_Missing(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), DefaultFile))
	assert.ErrorIs(t, err, os.ErrNotExist)
}
