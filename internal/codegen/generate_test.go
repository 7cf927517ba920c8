package codegen

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chriserin/pcc/internal/diag"
	"github.com/chriserin/pcc/internal/grammar"
	"github.com/chriserin/pcc/internal/resolve"
)

func session(t *testing.T, src string) *grammar.Session {
	t.Helper()
	s := grammar.NewSession("test.peg", nil, nil)
	require.NoError(t, grammar.Parse(s, strings.NewReader(src)))
	resolve.Resolve(s)
	require.False(t, s.Failed(), "grammar errors: %v", s.Diags.All)
	return s
}

func generate(t *testing.T, src string, debug bool) (*Output, *grammar.Session) {
	t.Helper()
	s := session(t, src)
	out, err := Generate(s, Options{Input: "test.peg", Debug: debug})
	require.NoError(t, err)
	return out, s
}

const calc = `%prefix "calc"
%package "calc"
%import { "strconv" }

Expr <- l:Term ( "+" r:Term { l += r } )* { $$ = l }
Term <- < [0-9]+ > { $$, _ = strconv.Atoi($1) }
     / "(" e:Expr ")" { $$ = e }
`

func TestGenerate_FormatsCleanly(t *testing.T) {
	out, s := generate(t, calc, false)
	assert.Equal(t, 0, s.Diags.Warnings(), "%v", s.Diags.All)

	parser := string(out.Parser)
	assert.True(t, strings.HasPrefix(parser, "// Code generated by pcc from test.peg. DO NOT EDIT."))
	assert.Contains(t, parser, "package calc")
	assert.Contains(t, parser, "func NewCalcParser(r calcio.Reader, auxil any) *CalcParser {")
	assert.Contains(t, parser, "var _ CalcInterface = (*CalcParser)(nil)")
	assert.Contains(t, parser, "func (p *CalcParser) calcRule_Expr() *calcChunk {")
	assert.Contains(t, parser, `return p.calcApply(1, "Term", 1, 1, p.calcBody_Term)`)
	assert.Contains(t, parser, "func (_p *CalcParser) calcAction_Term_0(_c *calcChunk, _v *int, _s, _e int) {")
	assert.Contains(t, parser, "(*_v), _ = strconv.Atoi(_1)")
	assert.Contains(t, parser, "_c.vars[0] = l")
	assert.NotContains(t, parser, "Trace")

	iface := string(out.Interface)
	assert.Contains(t, iface, "package calc")
	assert.Contains(t, iface, "type CalcInterface interface {")
	assert.Contains(t, iface, "Parse() (int, bool)")
	assert.Contains(t, iface, "Errors() []CalcError")
}

func TestGenerate_ParseStartsAtFirstRule(t *testing.T) {
	out, _ := generate(t, calc, false)
	parser := string(out.Parser)
	assert.Contains(t, parser, "c := p.calcRule_Expr()")
	assert.Contains(t, parser, "func (p *CalcParser) calcRule_Expr() *calcChunk {")

	out, _ = generate(t, `S <- "ab" / "a"`, false)
	assert.Contains(t, string(out.Parser), "c := p.pccRule_S()")
}

func TestGenerate_ActionBodyKeepsRawStrings(t *testing.T) {
	out, _ := generate(t, "%value \"string\"\nS <- \"a\" { $$ = `x\n  y\t` }", false)
	assert.Contains(t, string(out.Parser), "(*_v) = `x\n  y\t`")
}

func TestGenerate_Deterministic(t *testing.T) {
	a, _ := generate(t, calc, true)
	b, _ := generate(t, calc, true)
	assert.Equal(t, a.Parser, b.Parser)
	assert.Equal(t, a.Interface, b.Interface)
}

func TestGenerate_DebugTrace(t *testing.T) {
	out, _ := generate(t, `S <- "s"`, true)
	parser := string(out.Parser)
	assert.Contains(t, parser, `p.pccTrace("evaluate", name, c.start, 0)`)
	assert.Contains(t, parser, `p.pccTrace("nomatch", name, c.start, 0)`)
	assert.Contains(t, parser, `p.pccTrace("match", name, c.start, c.end-c.start)`)
}

func TestGenerate_DefaultOptions(t *testing.T) {
	out, _ := generate(t, `S <- "s"`, false)
	parser := string(out.Parser)
	assert.Contains(t, parser, "package main")
	assert.Contains(t, parser, "type PccParser struct {")
	assert.Contains(t, parser, "func (p *PccParser) Parse() (int, bool) {")
}

func TestGenerate_SectionPlacement(t *testing.T) {
	src := `%earlysource {
//go:build ignore
}
%earlyheader { /* early header */ }
%header { type Node struct{} }
%source { func helper() {} }
S <- "s"
%%
func footer() {}
`
	out, s := generate(t, src, false)
	assert.Equal(t, 0, s.Diags.Warnings(), "%v", s.Diags.All)

	parser := string(out.Parser)
	assert.Less(t, strings.Index(parser, "//go:build ignore"), strings.Index(parser, "// Code generated"))
	assert.Less(t, strings.Index(parser, "func helper()"), strings.Index(parser, "func (p *PccParser) pccRule_S()"))
	assert.Greater(t, strings.Index(parser, "func footer()"), strings.Index(parser, "func (p *PccParser) pccBody_S("))
	assert.NotContains(t, parser, "type Node struct")

	iface := string(out.Interface)
	assert.Less(t, strings.Index(iface, "/* early header */"), strings.Index(iface, "package main"))
	assert.Contains(t, iface, "type Node struct{}")
	assert.NotContains(t, iface, "func helper()")
}

func TestGenerate_ErrorAndTestBlocks(t *testing.T) {
	out, _ := generate(t, `S <- < [0-9]+ > &{ len($1) < 3 } "b" ~{ errorf("at %d", $0s) }`, false)
	parser := string(out.Parser)
	assert.Contains(t, parser, "func (_p *PccParser) pccTest_S_0(_c *pccChunk, _s, _e int) bool {")
	assert.Contains(t, parser, "return len(_1) < 3")
	assert.Contains(t, parser, "func (_p *PccParser) pccError_S_1(_c *pccChunk, _s, _e int) {")
	assert.Contains(t, parser, "_p.pccErrorf(_s, format, args...)")
}

func TestGenerate_UnformattableUserCodeWarns(t *testing.T) {
	out, s := generate(t, "%source { func broken( }\nS <- \"s\"", false)
	require.NotNil(t, out)
	assert.Equal(t, 1, s.Diags.Warnings())
	assert.Contains(t, s.Diags.All[len(s.Diags.All)-1].Message, "generated parser could not be formatted")
	assert.Contains(t, string(out.Parser), "func broken( ")
}

func TestGenerate_RequiresResolvedTree(t *testing.T) {
	s := grammar.NewSession("test.peg", nil, nil)
	require.NoError(t, grammar.Parse(s, strings.NewReader(`S <- "s"`)))
	_, err := Generate(s, Options{})
	assert.True(t, errors.Is(err, ErrInternal))
	assert.Equal(t, 1, s.Diags.Count(diag.Internal, diag.Error))
}

func TestGenerate_RefusesGrammarWithErrors(t *testing.T) {
	s := grammar.NewSession("test.peg", nil, nil)
	require.NoError(t, grammar.Parse(s, strings.NewReader(`Top <- Foo`)))
	resolve.Resolve(s)
	require.True(t, s.Failed())
	_, err := Generate(s, Options{})
	assert.ErrorIs(t, err, ErrInternal)
}

func TestClassCondition(t *testing.T) {
	for _, tc := range []struct {
		pattern string
		want    string
	}{
		{"a-z_", "(r >= 'a' && r <= 'z' || r == '_')"},
		{"^0-9", "!(r >= '0' && r <= '9')"},
		{`\n`, `(r == '\n')`},
		{"", "false"},
		{"^", "true"},
	} {
		t.Run(tc.pattern, func(t *testing.T) {
			class, err := grammar.ParseClass(tc.pattern)
			require.NoError(t, err)
			assert.Equal(t, tc.want, classCondition(class))
		})
	}
}

func TestPrefixCase(t *testing.T) {
	assert.Equal(t, "Calc", exported("calc"))
	assert.Equal(t, "calc", unexported("Calc"))
	assert.Equal(t, "My_", exported("my_"))
}
