// Package codegen turns a resolved grammar into the Go source of a packrat
// parser and its interface file.
package codegen

import (
	"bytes"
	"errors"
	"fmt"
	"go/format"
	"log/slog"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/chriserin/pcc/internal/codescan"
	"github.com/chriserin/pcc/internal/grammar"
)

// ErrInternal is returned when the session is not in a state the generator
// can handle. Grammar problems never produce it; they are reported by the
// earlier stages.
var ErrInternal = errors.New("internal generator error")

// Output holds the generated sources.
type Output struct {
	Parser    []byte
	Interface []byte
}

type Options struct {
	// Input names the grammar in the generated file headers.
	Input string
	// Debug adds the Trace hook to the generated parser.
	Debug bool
}

type generator struct {
	s    *grammar.Session
	t    *grammar.Tree
	opts grammar.Options
	data fileData

	b      bytes.Buffer
	indent int
	label  int
	rule   *grammar.Rule
	err    error
}

// Generate emits the parser for a session that parsed and resolved without
// errors.
func Generate(s *grammar.Session, opts Options) (*Output, error) {
	if !s.Tree.Frozen() {
		s.InternalError("code generation requires a resolved grammar")
		return nil, fmt.Errorf("%w: grammar not resolved", ErrInternal)
	}
	if s.Failed() {
		s.InternalError("code generation requested for a grammar with errors")
		return nil, fmt.Errorf("%w: grammar has errors", ErrInternal)
	}
	start := s.Start()
	if start == nil {
		s.InternalError("grammar has no start rule")
		return nil, fmt.Errorf("%w: no start rule", ErrInternal)
	}

	g := &generator{s: s, t: s.Tree, opts: s.Options.Resolved()}
	pub, priv := exported(g.opts.Prefix), unexported(g.opts.Prefix)
	g.data = fileData{
		Input:       opts.Input,
		Package:     g.opts.Package,
		Pub:         pub,
		Priv:        priv,
		Value:       g.opts.Value,
		Auxil:       g.opts.Auxil,
		Debug:       opts.Debug,
		NumRules:    len(s.Rules),
		EarlySource: s.SectionText(grammar.SectionEarlySource),
		Imports:     s.SectionText(grammar.SectionImport),
		Source:      s.SectionText(grammar.SectionSource),
		Footer:      s.SectionText(grammar.SectionFooter),
		EarlyHeader: s.SectionText(grammar.SectionEarlyHeader),
		Header:      s.SectionText(grammar.SectionHeader),
	}
	// ruleFunc reads the prefix from g.data.
	g.data.Start = g.ruleFunc(start.Name)
	s.Logger.Debug("generating parser",
		slog.String("prefix", g.opts.Prefix),
		slog.Int("rules", len(s.Rules)),
		slog.Bool("debug", opts.Debug))

	if err := parserTemplate.Execute(&g.b, g.data); err != nil {
		s.InternalError("rendering runtime: %v", err)
		return nil, fmt.Errorf("%w: rendering runtime: %v", ErrInternal, err)
	}
	for i, id := range s.Rules {
		g.emitRule(i, id)
	}
	for _, footer := range g.data.Footer {
		g.b.WriteString("\n")
		g.b.WriteString(footer)
		g.b.WriteString("\n")
	}
	if g.err != nil {
		return nil, g.err
	}
	parser := g.b.Bytes()

	var iface bytes.Buffer
	if err := interfaceTemplate.Execute(&iface, g.data); err != nil {
		s.InternalError("rendering interface: %v", err)
		return nil, fmt.Errorf("%w: rendering interface: %v", ErrInternal, err)
	}

	out := &Output{
		Parser:    g.format("parser", parser),
		Interface: g.format("interface", iface.Bytes()),
	}
	s.Logger.Debug("generated parser",
		slog.Int("bytes", len(out.Parser)),
		slog.Int("warnings", s.Diags.Warnings()))
	return out, nil
}

// format gofmts src. User code that keeps the file from parsing leaves the
// text unformatted; the Go compiler will point at the problem.
func (g *generator) format(what string, src []byte) []byte {
	formatted, err := format.Source(src)
	if err != nil {
		g.s.Warn(grammar.Location{}, "generated %s could not be formatted: %v", what, err)
		return src
	}
	return formatted
}

func (g *generator) internal(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	g.s.InternalError("%s", msg)
	if g.err == nil {
		g.err = fmt.Errorf("%w: %s", ErrInternal, msg)
	}
}

func exported(prefix string) string {
	r, n := utf8.DecodeRuneInString(prefix)
	return string(unicode.ToUpper(r)) + prefix[n:]
}

func unexported(prefix string) string {
	r, n := utf8.DecodeRuneInString(prefix)
	return string(unicode.ToLower(r)) + prefix[n:]
}

func (g *generator) ruleFunc(name string) string { return g.data.Priv + "Rule_" + name }
func (g *generator) bodyFunc(name string) string { return g.data.Priv + "Body_" + name }

func (g *generator) codeFunc(kind string, index int) string {
	return fmt.Sprintf("%s%s_%s_%d", g.data.Priv, kind, g.rule.Name, index)
}

func (g *generator) line(format string, args ...any) {
	for range g.indent {
		g.b.WriteByte('\t')
	}
	fmt.Fprintf(&g.b, format, args...)
	g.b.WriteByte('\n')
}

func (g *generator) open(format string, args ...any) {
	g.line(format, args...)
	g.indent++
}

func (g *generator) close(text string) {
	g.indent--
	g.line("%s", text)
}

func (g *generator) next() int {
	g.label++
	return g.label
}

func (g *generator) emitRule(index int, id grammar.NodeID) {
	g.rule = g.t.Rule(id)
	g.label = 0
	d := g.data
	name := g.rule.Name

	g.line("")
	g.open("func (p *%sParser) %s() *%sChunk {", d.Pub, g.ruleFunc(name), d.Priv)
	g.line("return p.%sApply(%d, %s, %d, %d, p.%s)",
		d.Priv, index, strconv.Quote(name), len(g.rule.Vars), len(g.rule.Capts), g.bodyFunc(name))
	g.close("}")
	g.line("")
	g.line("// %s <- %s", name, oneLine(g.t.String(id)))
	g.open("func (p *%sParser) %s(c *%sChunk) bool {", d.Pub, g.bodyFunc(name), d.Priv)
	g.line("var ok bool")
	g.expr(g.rule.Expr)
	g.line("return ok")
	g.close("}")

	for _, code := range g.rule.Codes {
		g.emitCode(code)
	}
}

// oneLine keeps the rule comment on a single line.
func oneLine(s string) string {
	if i := strings.Index(s, " <- "); i >= 0 {
		s = s[i+4:]
	}
	return strings.Join(strings.Fields(s), " ")
}

// expr emits statements that attempt the expression at the current position
// and leave the outcome in ok. On failure the position, thunks and captures
// are as they were before.
func (g *generator) expr(id grammar.NodeID) {
	d := g.data
	switch n := g.t.Node(id).(type) {
	case *grammar.String:
		if n.Value == "" {
			g.line("ok = true")
			return
		}
		g.line("ok = p.%sMatchString(%s)", d.Priv, strconv.Quote(n.Value))

	case *grammar.CharClass:
		g.charClass(n)

	case *grammar.Reference:
		if n.Target == grammar.NoNode {
			g.internal("unresolved reference %q in rule %q", n.Name, g.rule.Name)
			return
		}
		slot := -1
		if n.Var != "" {
			slot = n.Index
		}
		target := g.t.Rule(n.Target)
		g.open("if ch := p.%s(); ch != nil {", g.ruleFunc(target.Name))
		g.line("c.thunks = append(c.thunks, %sThunk{child: ch, slot: %d})", d.Priv, slot)
		g.line("ok = true")
		g.indent--
		g.open("} else {")
		g.line("ok = false")
		g.close("}")

	case *grammar.Sequence:
		m := g.next()
		g.open("{")
		g.line("m%d := p.%sMark(c)", m, d.Priv)
		for i, child := range n.Nodes {
			if i == 0 {
				g.expr(child)
				continue
			}
			g.open("if ok {")
			g.expr(child)
			g.close("}")
		}
		g.open("if !ok {")
		g.line("p.%sRollback(c, m%d)", d.Priv, m)
		g.close("}")
		g.close("}")

	case *grammar.Alternate:
		m := g.next()
		g.open("{")
		g.line("m%d := p.%sMark(c)", m, d.Priv)
		for i, child := range n.Nodes {
			if i == 0 {
				g.expr(child)
				continue
			}
			g.open("if !ok {")
			g.line("p.%sRollback(c, m%d)", d.Priv, m)
			g.expr(child)
			g.close("}")
		}
		g.open("if !ok {")
		g.line("p.%sRollback(c, m%d)", d.Priv, m)
		g.close("}")
		g.close("}")

	case *grammar.Quantity:
		g.quantity(n)

	case *grammar.Predicate:
		m := g.next()
		g.open("{")
		g.line("m%d := p.%sMark(c)", m, d.Priv)
		g.expr(n.Expr)
		g.line("p.%sRollback(c, m%d)", d.Priv, m)
		if n.Neg {
			g.line("ok = !ok")
		}
		g.close("}")

	case *grammar.Capture:
		m := g.next()
		g.open("{")
		g.line("s%d := p.pos", m)
		g.expr(n.Expr)
		g.open("if ok {")
		g.line("p.%sSetCapture(c, %d, s%d, p.pos)", d.Priv, n.Index, m)
		g.close("}")
		g.close("}")

	case *grammar.Expand:
		if n.Index < 0 || n.Index >= len(g.rule.Capts) {
			g.internal("capture $%d out of range in rule %q", n.Index+1, g.rule.Name)
			return
		}
		g.line("ok = p.%sMatchCapture(c, %d)", d.Priv, n.Index)

	case *grammar.Action:
		g.line("c.thunks = append(c.thunks, %sThunk{action: (*%sParser).%s, s: c.start, e: p.pos})",
			d.Priv, d.Pub, g.codeFunc("Action", n.Index))
		g.line("ok = true")

	case *grammar.Error:
		m := g.next()
		g.open("{")
		g.line("s%d := p.pos", m)
		g.expr(n.Expr)
		g.open("if !ok {")
		g.line("p.%s(c, s%d, s%d)", g.codeFunc("Error", n.Index), m, m)
		g.close("}")
		g.close("}")

	case *grammar.Test:
		m := g.next()
		g.open("{")
		g.line("m%d := p.%sMark(c)", m, d.Priv)
		g.expr(n.Expr)
		g.open("if ok && !p.%s(c, m%d.pos, p.pos) {", g.codeFunc("Test", n.Index), m)
		g.line("p.%sRollback(c, m%d)", d.Priv, m)
		g.line("ok = false")
		g.close("}")
		g.close("}")

	default:
		g.internal("rule %q contains an unexpected %T node", g.rule.Name, g.t.Node(id))
	}
}

func (g *generator) charClass(n *grammar.CharClass) {
	d := g.data
	if n.Pattern == nil {
		g.open("if _, n := p.%sRune(); n > 0 {", d.Priv)
	} else {
		class, err := grammar.ParseClass(*n.Pattern)
		if err != nil {
			g.internal("character class [%s] in rule %q: %v", *n.Pattern, g.rule.Name, err)
			return
		}
		cond := classCondition(class)
		if len(class.Ranges) == 0 {
			g.open("if _, n := p.%sRune(); n > 0 && %s {", d.Priv, cond)
		} else {
			g.open("if r, n := p.%sRune(); n > 0 && %s {", d.Priv, cond)
		}
	}
	g.line("p.pos += n")
	g.line("ok = true")
	g.indent--
	g.open("} else {")
	g.line("ok = false")
	g.close("}")
}

// classCondition renders the membership test for r as a Go expression.
func classCondition(c grammar.Class) string {
	if len(c.Ranges) == 0 {
		return strconv.FormatBool(c.Negated)
	}
	terms := make([]string, len(c.Ranges))
	for i, rg := range c.Ranges {
		if rg.Lo == rg.Hi {
			terms[i] = "r == " + strconv.QuoteRune(rg.Lo)
		} else {
			terms[i] = fmt.Sprintf("r >= %s && r <= %s", strconv.QuoteRune(rg.Lo), strconv.QuoteRune(rg.Hi))
		}
	}
	cond := strings.Join(terms, " || ")
	if c.Negated {
		return "!(" + cond + ")"
	}
	return "(" + cond + ")"
}

func (g *generator) quantity(n *grammar.Quantity) {
	d := g.data
	bounded := n.Max != grammar.Unbounded
	counted := n.Min > 0 || bounded
	outer, inner := g.next(), g.next()

	g.open("{")
	if n.Min > 0 {
		g.line("m%d := p.%sMark(c)", outer, d.Priv)
	}
	if counted {
		g.line("n%d := 0", outer)
	}
	if bounded {
		g.open("for n%d < %d {", outer, n.Max)
	} else {
		g.open("for {")
	}
	g.line("m%d := p.%sMark(c)", inner, d.Priv)
	g.expr(n.Expr)
	g.open("if !ok {")
	g.line("p.%sRollback(c, m%d)", d.Priv, inner)
	g.line("break")
	g.close("}")
	if counted {
		g.line("n%d++", outer)
	}
	g.open("if p.pos == m%d.pos {", inner)
	if n.Min > 1 {
		g.open("if n%d < %d {", outer, n.Min)
		g.line("n%d = %d", outer, n.Min)
		g.close("}")
	}
	g.line("break")
	g.close("}")
	g.close("}")
	if n.Min > 0 {
		g.line("ok = n%d >= %d", outer, n.Min)
		g.open("if !ok {")
		g.line("p.%sRollback(c, m%d)", d.Priv, outer)
		g.close("}")
	} else {
		g.line("ok = true")
	}
	g.close("}")
}

// emitCode writes the method holding one action, error or test block. The
// user's code sees its bindings as local variables; the method's own
// parameters are underscored so they cannot collide with variable names.
func (g *generator) emitCode(id grammar.NodeID) {
	d := g.data
	var code *grammar.Code
	var sig string
	test := false
	switch n := g.t.Node(id).(type) {
	case *grammar.Action:
		code = &n.Code
		sig = fmt.Sprintf("%s(_c *%sChunk, _v *%s, _s, _e int)", g.codeFunc("Action", n.Index), d.Priv, d.Value)
	case *grammar.Error:
		code = &n.Code
		sig = fmt.Sprintf("%s(_c *%sChunk, _s, _e int)", g.codeFunc("Error", n.Index), d.Priv)
	case *grammar.Test:
		code, test = &n.Code, true
		sig = fmt.Sprintf("%s(_c *%sChunk, _s, _e int) bool", g.codeFunc("Test", n.Index), d.Priv)
	default:
		g.internal("rule %q lists a non-code node in its code list", g.rule.Name)
		return
	}

	refs, err := codescan.Scan(code.Text)
	if err != nil {
		g.internal("rule %q: %v", g.rule.Name, err)
		return
	}

	g.line("")
	g.open("func (_p *%sParser) %s {", d.Pub, sig)
	g.bindings(code, refs)
	body := strings.TrimSpace(codescan.Rewrite(code.Text, refs))
	if test {
		if body == "" {
			body = "true"
		}
		g.line("return %s", body)
	} else if body != "" {
		// Written as is: raw string literals in the body keep their text, and
		// gofmt fixes the indentation of everything else.
		g.b.WriteString(body)
		g.b.WriteByte('\n')
	}
	if !test {
		// Assignments to a variable are visible to later actions of the rule.
		for _, id := range code.Vars {
			if ref, ok := g.t.Node(id).(*grammar.Reference); ok {
				g.line("_c.vars[%d] = %s", ref.Index, ref.Var)
			}
		}
	}
	g.close("}")
}

func (g *generator) bindings(code *grammar.Code, refs []codescan.Ref) {
	d := g.data
	whole, auxil, errorf := false, false, false
	for _, r := range refs {
		switch {
		case r.Kind != codescan.Ident && r.Kind != codescan.Value && r.Index == 0:
			whole = true
		case r.Kind == codescan.Ident && r.Name == "auxil":
			auxil = true
		case r.Kind == codescan.Ident && r.Name == "errorf":
			errorf = true
		}
	}

	if whole {
		g.line("_0, _0s, _0e := string(_p.buf[_s:_e]), _s, _e")
		g.line("_, _, _ = _0, _0s, _0e")
	}
	for _, id := range code.Capts {
		capt, ok := g.t.Node(id).(*grammar.Capture)
		if !ok {
			g.internal("rule %q: code refers to a non-capture node", g.rule.Name)
			return
		}
		n, i := capt.Index+1, capt.Index
		g.line("_%d, _%ds, _%de := _p.%sText(_c.capts[%d]), _c.capts[%d].start, _c.capts[%d].end",
			n, n, n, d.Priv, i, i, i)
		g.line("_, _, _ = _%d, _%ds, _%de", n, n, n)
	}
	for _, id := range code.Vars {
		ref, ok := g.t.Node(id).(*grammar.Reference)
		if !ok || ref.Var == "" {
			g.internal("rule %q: code refers to a non-variable node", g.rule.Name)
			return
		}
		g.line("%s := _c.vars[%d]", ref.Var, ref.Index)
		g.line("_ = %s", ref.Var)
	}
	if auxil {
		g.line("auxil := _p.Auxil")
		g.line("_ = auxil")
	}
	if errorf {
		g.open("errorf := func(format string, args ...any) {")
		g.line("_p.%sErrorf(_s, format, args...)", d.Priv)
		g.close("}")
		g.line("_ = errorf")
	}
}
