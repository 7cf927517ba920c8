// Package codescan tokenizes the Go code embedded in grammar actions just far
// enough to find the $-references and identifiers the generator has to bind.
// String, rune and raw-string literals and comments are skipped whole, so a
// "$1" inside a string is left alone.
package codescan

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/timtadh/lexmachine"
	"github.com/timtadh/lexmachine/machines"
)

type Kind int

const (
	Value        Kind = iota // $$
	Capture                  // $n, $0 is the whole match
	CaptureStart             // $ns
	CaptureEnd               // $ne
	Ident
)

// Ref is one reference found in a code block.
type Ref struct {
	Kind   Kind
	Index  int    // capture number for the capture kinds, 0 for the whole match
	Name   string // identifier text for Ident
	Offset int
	Len    int
}

// Binding is the Go identifier the generated code declares for the reference.
func (r Ref) Binding() string {
	switch r.Kind {
	case Value:
		return "(*_v)"
	case Capture:
		return "_" + strconv.Itoa(r.Index)
	case CaptureStart:
		return "_" + strconv.Itoa(r.Index) + "s"
	case CaptureEnd:
		return "_" + strconv.Itoa(r.Index) + "e"
	}
	return r.Name
}

type token struct {
	kind   Kind
	text   string
	offset int
}

var lexer = sync.OnceValues(func() (*lexmachine.Lexer, error) {
	lx := lexmachine.NewLexer()
	lx.Add([]byte(`[ \t\r\n]+`), skip)
	lx.Add([]byte(`//[^\n]*`), skip)
	lx.Add([]byte(`/\*([^*]|\r|\n|(\*+([^*/]|\r|\n)))*\*+/`), skip)
	lx.Add([]byte(`"([^"\\\n]|\\.)*"`), skip)
	lx.Add([]byte("`[^`]*`"), skip)
	lx.Add([]byte(`'([^'\\\n]|\\.)*'`), skip)
	lx.Add([]byte(`[$][$]`), tokAction(Value))
	lx.Add([]byte(`[$][0-9]+[se]?`), tokAction(Capture))
	lx.Add([]byte(`[a-zA-Z_][a-zA-Z0-9_]*`), tokAction(Ident))
	lx.Add([]byte(`.`), skip)
	if err := lx.Compile(); err != nil {
		return nil, fmt.Errorf("compiling action lexer: %w", err)
	}
	return lx, nil
})

func skip(*lexmachine.Scanner, *machines.Match) (interface{}, error) {
	return nil, nil
}

func tokAction(kind Kind) lexmachine.Action {
	return func(s *lexmachine.Scanner, m *machines.Match) (interface{}, error) {
		return token{kind: kind, text: string(m.Bytes), offset: m.TC}, nil
	}
}

// Scan returns the references in code in source order.
func Scan(code string) ([]Ref, error) {
	lx, err := lexer()
	if err != nil {
		return nil, err
	}
	scanner, err := lx.Scanner([]byte(code))
	if err != nil {
		return nil, fmt.Errorf("scanning action code: %w", err)
	}
	var refs []Ref
	for tok, err, eos := scanner.Next(); !eos; tok, err, eos = scanner.Next() {
		if ui, is := err.(*machines.UnconsumedInput); is {
			// Bytes no rule matches, such as non-ASCII letters, carry no references.
			scanner.TC = ui.FailTC
			continue
		} else if err != nil {
			return nil, fmt.Errorf("scanning action code: %w", err)
		}
		refs = append(refs, toRef(tok.(token)))
	}
	return refs, nil
}

func toRef(t token) Ref {
	r := Ref{Kind: t.kind, Offset: t.offset, Len: len(t.text)}
	switch t.kind {
	case Ident:
		r.Name = t.text
	case Capture:
		digits := t.text[1:]
		switch {
		case strings.HasSuffix(digits, "s"):
			r.Kind = CaptureStart
			digits = digits[:len(digits)-1]
		case strings.HasSuffix(digits, "e"):
			r.Kind = CaptureEnd
			digits = digits[:len(digits)-1]
		}
		r.Index, _ = strconv.Atoi(digits)
	}
	return r
}

// Rewrite replaces every $-reference in code with its Go binding.
// Identifiers are left as they are.
func Rewrite(code string, refs []Ref) string {
	var b strings.Builder
	last := 0
	for _, r := range refs {
		if r.Kind == Ident {
			continue
		}
		b.WriteString(code[last:r.Offset])
		b.WriteString(r.Binding())
		last = r.Offset + r.Len
	}
	b.WriteString(code[last:])
	return b.String()
}
