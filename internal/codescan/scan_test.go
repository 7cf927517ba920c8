package codescan

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func kinds(refs []Ref) []Kind {
	var out []Kind
	for _, r := range refs {
		out = append(out, r.Kind)
	}
	return out
}

func TestScan_DollarReferences(t *testing.T) {
	refs, err := Scan(` $$ = atoi($1) + $2s - $2e + len($0) `)
	require.NoError(t, err)
	assert.Equal(t, []Kind{Value, Ident, Capture, CaptureStart, CaptureEnd, Ident, Capture}, kinds(refs))
	assert.Equal(t, 1, refs[2].Index)
	assert.Equal(t, 2, refs[3].Index)
	assert.Equal(t, 0, refs[6].Index)
	assert.Equal(t, "atoi", refs[1].Name)
}

func TestScan_SkipsLiteralsAndComments(t *testing.T) {
	code := "x := \"$1 {\" + `$2` + '$' // $3\n/* $4 */ y"
	refs, err := Scan(code)
	require.NoError(t, err)
	var names []string
	for _, r := range refs {
		require.Equal(t, Ident, r.Kind)
		names = append(names, r.Name)
	}
	assert.Equal(t, []string{"x", "y"}, names)
}

func TestScan_NonASCIIIsIgnored(t *testing.T) {
	refs, err := Scan(`é := $1`)
	require.NoError(t, err)
	require.NotEmpty(t, refs)
	assert.Equal(t, Capture, refs[len(refs)-1].Kind)
}

func TestRewrite(t *testing.T) {
	code := ` $$ = l + atoi($1) + $1s `
	refs, err := Scan(code)
	require.NoError(t, err)
	assert.Equal(t, ` (*_v) = l + atoi(_1) + _1s `, Rewrite(code, refs))
}

func TestRef_Binding(t *testing.T) {
	assert.Equal(t, "_0", Ref{Kind: Capture}.Binding())
	assert.Equal(t, "_3e", Ref{Kind: CaptureEnd, Index: 3}.Binding())
	assert.Equal(t, "name", Ref{Kind: Ident, Name: "name"}.Binding())
}
