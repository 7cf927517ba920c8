package codegen

import (
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// These tests compile generated parsers with the go tool and run them.

const driver = `package main

import (
	"fmt"
	"os"
	"strings"
)

func main() {
	for _, in := range os.Args[1:] {
		p := NewPccParser(strings.NewReader(in), nil)
		v, ok := p.Parse()
		var msgs []string
		for _, e := range p.Errors() {
			msgs = append(msgs, e.Message)
		}
		fmt.Printf("%v %d %v %q\n", ok, p.Pos(), v, msgs)
	}
}
`

func runParser(t *testing.T, grammarSrc, main string, debug bool, inputs ...string) []string {
	t.Helper()
	if testing.Short() {
		t.Skip("runs the go tool")
	}
	goTool, err := exec.LookPath("go")
	if err != nil {
		t.Skip("go tool not on PATH")
	}

	out, s := generate(t, grammarSrc, debug)
	require.Equal(t, 0, s.Diags.Warnings(), "%v", s.Diags.All)

	dir := t.TempDir()
	files := map[string]string{
		"go.mod":          "module parsertest\n\ngo 1.22\n",
		"parser.go":       string(out.Parser),
		"parser_iface.go": string(out.Interface),
		"main.go":         main,
	}
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}

	cmd := exec.Command(goTool, append([]string{"run", "."}, inputs...)...)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(), "GOWORK=off", "GOFLAGS=-mod=mod")
	output, err := cmd.CombinedOutput()
	require.NoError(t, err, "%s\n%s", output, out.Parser)
	return strings.Split(strings.TrimRight(string(output), "\n"), "\n")
}

func TestRun_OrderedChoice(t *testing.T) {
	lines := runParser(t, `S <- "ab" / "a"`, driver, false, "ab", "ac")
	assert.Equal(t, []string{"true 2 0 []", "true 1 0 []"}, lines)
}

func TestRun_PredicateDoesNotConsume(t *testing.T) {
	lines := runParser(t, `S <- &"a" "a"`, driver, false, "a", "b")
	assert.Equal(t, []string{"true 1 0 []", "false 0 0 []"}, lines)
}

func TestRun_QuantityBounds(t *testing.T) {
	lines := runParser(t, `S <- "a"{2,3}`, driver, false, "aa", "aaa", "a", "aaaa")
	assert.Equal(t, []string{"true 2 0 []", "true 3 0 []", "false 0 0 []", "true 3 0 []"}, lines)
}

func TestRun_CaptureRoundTrip(t *testing.T) {
	src := `%import { "strconv" }
Digits <- < [0-9]+ > { $$, _ = strconv.Atoi($1) }
`
	lines := runParser(t, src, driver, false, "123abc")
	assert.Equal(t, []string{"true 3 123 []"}, lines)
}

func TestRun_VariablesAndRecursion(t *testing.T) {
	src := `%import { "strconv" }
Expr <- l:Term ( "+" r:Term { l += r } )* { $$ = l }
Term <- < [0-9]+ > { $$, _ = strconv.Atoi($1) }
      / "(" e:Expr ")" { $$ = e }
`
	lines := runParser(t, src, driver, false, "1+2+3", "2+(3+4)", "+")
	assert.Equal(t, []string{"true 5 6 []", "true 7 9 []", "false 0 0 []"}, lines)
}

func TestRun_RawStringInAction(t *testing.T) {
	main := `package main

import (
	"fmt"
	"os"
	"strings"
)

func main() {
	p := NewPccParser(strings.NewReader(os.Args[1]), nil)
	v, ok := p.Parse()
	fmt.Printf("%v %q\n", ok, v)
}
`
	src := "%value \"string\"\nS <- \"a\" {\n\t$$ = `x\ny  `\n}\n"
	lines := runParser(t, src, main, false, "a")
	assert.Equal(t, []string{`true "x\ny  "`}, lines)
}

func TestRun_Expand(t *testing.T) {
	lines := runParser(t, `S <- < [a-z]+ > "=" $1`, driver, false, "ab=ab", "ab=ac")
	assert.Equal(t, []string{"true 5 0 []", "false 0 0 []"}, lines)
}

func TestRun_TestBlockRejectsMatch(t *testing.T) {
	lines := runParser(t, `S <- < [0-9]+ > &{ len($1) < 3 } / "x"`, driver, false, "12", "1234", "x")
	assert.Equal(t, []string{"true 2 0 []", "false 0 0 []", "true 1 0 []"}, lines)
}

func TestRun_ErrorBlockRecordsMessage(t *testing.T) {
	lines := runParser(t, `S <- "a" "b" ~{ errorf("expected b at %d", $0s) }`, driver, false, "ac", "ab")
	assert.Equal(t, []string{`false 0 0 ["expected b at 1"]`, "true 2 0 []"}, lines)
}

func TestRun_MemoizationRunsRuleOnce(t *testing.T) {
	src := `%auxil "*int"
%source { func bump(n *int) bool { *n++; return true } }
S <- A "x" / A "y"
A <- "a" &{ bump(auxil) } { $$ = 1 }
`
	main := `package main

import (
	"fmt"
	"os"
	"strings"
)

func main() {
	n := new(int)
	p := NewPccParser(strings.NewReader(os.Args[1]), n)
	_, ok := p.Parse()
	fmt.Printf("%v %d %d\n", ok, p.Pos(), *n)
}
`
	lines := runParser(t, src, main, false, "ay")
	assert.Equal(t, []string{"true 2 1"}, lines)
}

func TestRun_DepthLimit(t *testing.T) {
	main := `package main

import (
	"errors"
	"fmt"
	"os"
	"strings"
)

func main() {
	for _, depth := range []int{3, 100} {
		p := NewPccParser(strings.NewReader(os.Args[1]), nil)
		p.MaxDepth = depth
		_, ok := p.Parse()
		fmt.Printf("%v %v\n", ok, errors.Is(p.Err(), PccErrDepth))
	}
}
`
	lines := runParser(t, `S <- "(" S ")" / ""`, main, false, "(((())))")
	assert.Equal(t, []string{"false true", "true false"}, lines)
}

func TestRun_Trace(t *testing.T) {
	main := `package main

import (
	"fmt"
	"os"
	"strings"
)

func main() {
	p := NewPccParser(strings.NewReader(os.Args[1]), nil)
	p.Trace = func(event, rule string, pos, n int) {
		fmt.Println(event, rule, pos, n)
	}
	p.Parse()
}
`
	lines := runParser(t, "S <- A\nA <- \"a\"", main, true, "a")
	assert.Equal(t, []string{"evaluate S 0 0", "evaluate A 0 0", "match A 0 1", "match S 0 1"}, lines)
}

func TestRun_DestroyedParserReportsError(t *testing.T) {
	main := `package main

import (
	"errors"
	"fmt"
	"strings"
)

func main() {
	p := NewPccParser(strings.NewReader("s"), nil)
	p.Destroy()
	_, ok := p.Parse()
	fmt.Println(ok, errors.Is(p.Err(), PccErrDestroyed))
}
`
	lines := runParser(t, `S <- "s"`, main, false)
	assert.Equal(t, []string{"false true"}, lines)
}
