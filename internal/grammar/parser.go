package grammar

import (
	"fmt"
	"go/token"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"github.com/chriserin/pcc/internal/source"
)

type parser struct {
	r *source.Reader
	s *Session
	t *Tree
}

// Parse reads a grammar from r into the session: rules are added to the tree
// and s.Rules, directives fill s.Options and s.Sections. Malformed rules are
// reported as syntax diagnostics and replaced by an Invalid placeholder so
// the rest of the input is still checked. The returned error is only for
// failures reading r.
func Parse(s *Session, r io.Reader) error {
	p := &parser{r: source.NewReader(r), s: s, t: s.Tree}
	s.Logger.Debug("parsing grammar")
	p.parseGrammar()
	if err := p.r.Err(); err != nil {
		return err
	}
	s.Logger.Debug("parsed grammar",
		slog.Int("rules", len(s.Rules)),
		slog.Int("sections", len(s.Sections)),
		slog.Int("errors", s.Diags.Errors()))
	return nil
}

func (p *parser) loc() Location {
	return Location{Line: p.r.Line(), Col: p.r.Col()}
}

func (p *parser) errorf(loc Location, format string, args ...any) bool {
	p.s.SyntaxError(loc, format, args...)
	return false
}

func (p *parser) parseGrammar() {
	for {
		p.skipSpace()
		if p.r.EOF() {
			return
		}
		switch {
		case p.r.HasPrefix("%%"):
			p.parseFooter()
		case p.r.HasPrefix("%"):
			if !p.parseDirective() {
				p.resync()
			}
		case p.atIdentStart():
			if !p.parseRule() {
				p.resync()
			}
		default:
			b, _ := p.r.Peek(0)
			p.errorf(p.loc(), "unexpected %q", rune(b))
			p.resync()
		}
	}
}

// resync skips to the next rule or directive. The error that triggered it
// may already sit at one, as when a group is left open at the end of a rule.
func (p *parser) resync() {
	if p.r.Lookahead(func() bool {
		p.skipSpace()
		return p.atRuleStart() || p.r.HasPrefix("%")
	}) {
		return
	}
	for {
		for {
			b, ok := p.r.Next()
			if !ok {
				return
			}
			if b == '\n' {
				break
			}
		}
		if p.r.Lookahead(func() bool {
			p.skipBlanks()
			return p.atRuleStart() || p.r.HasPrefix("%")
		}) {
			return
		}
	}
}

func (p *parser) skipBlanks() {
	for {
		b, ok := p.r.Peek(0)
		if !ok || (b != ' ' && b != '\t' && b != '\r') {
			return
		}
		p.r.Next()
	}
}

// skipSpace skips whitespace, newlines and # comments.
func (p *parser) skipSpace() {
	for {
		b, ok := p.r.Peek(0)
		if !ok {
			return
		}
		switch b {
		case ' ', '\t', '\r', '\n':
			p.r.Next()
		case '#':
			for {
				b, ok := p.r.Peek(0)
				if !ok || b == '\n' {
					break
				}
				p.r.Next()
			}
		default:
			return
		}
	}
}

func isIdentStart(b byte) bool {
	return b == '_' || (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}

func isIdentPart(b byte) bool {
	return isIdentStart(b) || (b >= '0' && b <= '9')
}

func isDigit(b byte) bool { return b >= '0' && b <= '9' }

func (p *parser) atIdentStart() bool {
	b, ok := p.r.Peek(0)
	return ok && isIdentStart(b)
}

func (p *parser) ident() string {
	start := p.r.Pos()
	for {
		b, ok := p.r.Peek(0)
		if !ok || !isIdentPart(b) {
			break
		}
		p.r.Next()
	}
	return p.r.Text(start, p.r.Pos())
}

func (p *parser) digits() (int, bool) {
	start := p.r.Pos()
	for {
		b, ok := p.r.Peek(0)
		if !ok || !isDigit(b) {
			break
		}
		p.r.Next()
	}
	if p.r.Pos() == start {
		return 0, false
	}
	n, err := strconv.Atoi(p.r.Text(start, p.r.Pos()))
	return n, err == nil
}

// atRuleStart reports whether the cursor is at "Name <-".
func (p *parser) atRuleStart() bool {
	return p.r.Lookahead(func() bool {
		if !p.atIdentStart() {
			return false
		}
		p.ident()
		p.skipSpace()
		return p.r.HasPrefix("<-")
	})
}

func (p *parser) parseRule() bool {
	loc := p.loc()
	name := p.ident()
	rule := &Rule{Name: name, Expr: NoNode, Loc: loc}
	id := p.t.Add(rule)
	p.s.Rules = append(p.s.Rules, id)

	p.skipSpace()
	if !p.r.Consume("<-") {
		rule.Expr = p.t.Add(&Invalid{Loc: p.loc()})
		return p.errorf(p.loc(), "expected '<-' after rule name %q", name)
	}
	expr, ok := p.parseExpr()
	if ok {
		p.skipSpace()
		if !p.r.EOF() && !p.r.HasPrefix("%") && !p.atRuleStart() {
			b, _ := p.r.Peek(0)
			ok = p.errorf(p.loc(), "unexpected %q in rule %q", rune(b), name)
		}
	}
	if !ok {
		rule.Expr = p.t.Add(&Invalid{Loc: loc})
		return false
	}
	rule.Expr = expr
	return true
}

func (p *parser) parseExpr() (NodeID, bool) {
	first, ok := p.parseSequence()
	if !ok {
		return NoNode, false
	}
	alts := []NodeID{first}
	for {
		p.skipSpace()
		if !p.r.Consume("/") {
			break
		}
		next, ok := p.parseSequence()
		if !ok {
			return NoNode, false
		}
		alts = append(alts, next)
	}
	if len(alts) == 1 {
		return first, true
	}
	return p.t.Add(&Alternate{Nodes: alts}), true
}

func (p *parser) atSequenceEnd() bool {
	b, ok := p.r.Peek(0)
	if !ok {
		return true
	}
	switch b {
	case '/', ')', '>', '%':
		return true
	}
	return p.atRuleStart()
}

func (p *parser) parseSequence() (NodeID, bool) {
	var items []NodeID
	for {
		p.skipSpace()
		if p.atSequenceEnd() {
			break
		}
		n, ok := p.parsePrefixed()
		if !ok {
			return NoNode, false
		}
		items = append(items, n)
	}
	switch len(items) {
	case 0:
		return NoNode, p.errorf(p.loc(), "expected expression")
	case 1:
		return items[0], true
	}
	return p.t.Add(&Sequence{Nodes: items}), true
}

func (p *parser) parsePrefixed() (NodeID, bool) {
	loc := p.loc()
	for _, op := range []string{"&", "!"} {
		if !p.r.HasPrefix(op) {
			continue
		}
		if p.r.HasPrefix(op + "{") {
			return NoNode, p.errorf(loc, "%s{ } must follow an expression", op)
		}
		p.r.Consume(op)
		p.skipSpace()
		child, ok := p.parsePrefixed()
		if !ok {
			return NoNode, false
		}
		return p.t.Add(&Predicate{Neg: op == "!", Expr: child}), true
	}
	return p.parseSuffixed()
}

func (p *parser) parseSuffixed() (NodeID, bool) {
	n, ok := p.parsePrimary()
	if !ok {
		return NoNode, false
	}
	for {
		m := p.r.Mark()
		p.skipSpace()
		loc := p.loc()
		switch {
		case p.r.Consume("?"):
			n = p.t.Add(&Quantity{Min: 0, Max: 1, Expr: n})
		case p.r.Consume("*"):
			n = p.t.Add(&Quantity{Min: 0, Max: Unbounded, Expr: n})
		case p.r.Consume("+"):
			n = p.t.Add(&Quantity{Min: 1, Max: Unbounded, Expr: n})
		case p.r.HasPrefix("~{"):
			p.r.Consume("~")
			code, ok := p.codeBlock()
			if !ok {
				return NoNode, false
			}
			n = p.t.Add(&Error{Expr: n, Code: Code{Text: code, Loc: loc}})
		case p.r.HasPrefix("&{"):
			p.r.Consume("&")
			code, ok := p.codeBlock()
			if !ok {
				return NoNode, false
			}
			n = p.t.Add(&Test{Expr: n, Code: Code{Text: code, Loc: loc}})
		case p.r.HasPrefix("{"):
			lo, hi, isBound, ok := p.bounds()
			if !isBound {
				p.r.Reset(m)
				return n, true
			}
			if !ok {
				return NoNode, false
			}
			n = p.t.Add(&Quantity{Min: lo, Max: hi, Expr: n})
		default:
			p.r.Reset(m)
			return n, true
		}
	}
}

// bounds parses {m}, {m,} or {m,n}. isBound is false, with the cursor
// unchanged, when the braces hold anything else (an action block).
func (p *parser) bounds() (lo, hi int, isBound, ok bool) {
	loc := p.loc()
	isBound = p.r.Attempt(func() bool {
		p.r.Consume("{")
		p.skipBlanks()
		var got bool
		if lo, got = p.digits(); !got {
			return false
		}
		hi = lo
		p.skipBlanks()
		if p.r.Consume(",") {
			p.skipBlanks()
			if hi, got = p.digits(); !got {
				hi = Unbounded
			}
			p.skipBlanks()
		}
		return p.r.Consume("}")
	})
	if !isBound {
		return 0, 0, false, false
	}
	if hi != Unbounded && hi < lo {
		return 0, 0, true, p.errorf(loc, "invalid repetition bounds {%d,%d}", lo, hi)
	}
	return lo, hi, true, true
}

func (p *parser) parsePrimary() (NodeID, bool) {
	loc := p.loc()
	b, ok := p.r.Peek(0)
	if !ok {
		return NoNode, p.errorf(loc, "unexpected end of input")
	}
	switch {
	case isIdentStart(b):
		return p.parseReference()
	case b == '(':
		p.r.Next()
		n, ok := p.parseExpr()
		if !ok {
			return NoNode, false
		}
		p.skipSpace()
		if !p.r.Consume(")") {
			return NoNode, p.errorf(p.loc(), "expected ')' to close group opened at %d:%d", loc.Line, loc.Col)
		}
		return n, true
	case b == '<':
		p.r.Next()
		n, ok := p.parseExpr()
		if !ok {
			return NoNode, false
		}
		p.skipSpace()
		if !p.r.Consume(">") {
			return NoNode, p.errorf(p.loc(), "expected '>' to close capture opened at %d:%d", loc.Line, loc.Col)
		}
		return p.t.Add(&Capture{Expr: n}), true
	case b == '$':
		p.r.Next()
		n, ok := p.digits()
		if !ok {
			return NoNode, p.errorf(loc, "expected capture number after '$'")
		}
		if n < 1 {
			return NoNode, p.errorf(loc, "capture number must be 1 or greater")
		}
		return p.t.Add(&Expand{Index: n - 1, Loc: loc}), true
	case b == '"' || b == '\'':
		s, ok := p.quoted()
		if !ok {
			return NoNode, false
		}
		return p.t.Add(&String{Value: s}), true
	case b == '[':
		return p.parseClass()
	case b == '.':
		p.r.Next()
		return p.t.Add(&CharClass{}), true
	case b == '{':
		code, ok := p.codeBlock()
		if !ok {
			return NoNode, false
		}
		return p.t.Add(&Action{Code: Code{Text: code, Loc: loc}}), true
	}
	return NoNode, p.errorf(loc, "unexpected %q", rune(b))
}

func (p *parser) parseReference() (NodeID, bool) {
	loc := p.loc()
	name := p.ident()
	var varName string
	if p.r.Consume(":") {
		if !p.atIdentStart() {
			return NoNode, p.errorf(p.loc(), "expected rule name after %q:", name)
		}
		varName, name = name, p.ident()
		if token.IsKeyword(varName) || strings.HasPrefix(varName, "_") || varName == "auxil" || varName == "errorf" {
			return NoNode, p.errorf(loc, "%q cannot be used as a variable name", varName)
		}
	}
	return p.t.Add(&Reference{Var: varName, Index: -1, Name: name, Target: NoNode, Loc: loc}), true
}

// quoted reads a '...' or "..." literal and returns its unescaped value.
func (p *parser) quoted() (string, bool) {
	loc := p.loc()
	q, _ := p.r.Next()
	start := p.r.Pos()
	for {
		b, ok := p.r.Peek(0)
		if !ok || b == '\n' {
			return "", p.errorf(loc, "unterminated string literal")
		}
		if b == q {
			break
		}
		p.r.Next()
		if b == '\\' {
			p.r.Next()
		}
	}
	raw := p.r.Text(start, p.r.Pos())
	p.r.Next()
	s, err := Unescape(raw)
	if err != nil {
		return "", p.errorf(loc, "%v", err)
	}
	return s, true
}

func (p *parser) parseClass() (NodeID, bool) {
	loc := p.loc()
	p.r.Next()
	start := p.r.Pos()
	for {
		b, ok := p.r.Peek(0)
		if !ok || b == '\n' {
			return NoNode, p.errorf(loc, "unterminated character class")
		}
		if b == ']' {
			break
		}
		p.r.Next()
		if b == '\\' {
			p.r.Next()
		}
	}
	pattern := p.r.Text(start, p.r.Pos())
	p.r.Next()
	if _, err := ParseClass(pattern); err != nil {
		return NoNode, p.errorf(loc, "%v", err)
	}
	return p.t.Add(&CharClass{Pattern: &pattern}), true
}

// codeBlock reads a brace-delimited block of Go code and returns the text
// between the outer braces. Braces inside string, rune and raw-string
// literals and inside comments do not count.
func (p *parser) codeBlock() (string, bool) {
	loc := p.loc()
	if !p.r.Consume("{") {
		return "", p.errorf(loc, "expected '{'")
	}
	start := p.r.Pos()
	depth := 1
	for {
		b, ok := p.r.Next()
		if !ok {
			return "", p.errorf(loc, "unterminated code block")
		}
		switch b {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return p.r.Text(start, p.r.Pos()-1), true
			}
		case '"', '\'':
			if !p.skipLiteral(b, true) {
				return "", p.errorf(loc, "unterminated literal in code block")
			}
		case '`':
			if !p.skipLiteral(b, false) {
				return "", p.errorf(loc, "unterminated raw string in code block")
			}
		case '/':
			if p.r.Consume("/") {
				for {
					c, ok := p.r.Peek(0)
					if !ok || c == '\n' {
						break
					}
					p.r.Next()
				}
			} else if p.r.Consume("*") {
				for !p.r.Consume("*/") {
					if _, ok := p.r.Next(); !ok {
						return "", p.errorf(loc, "unterminated comment in code block")
					}
				}
			}
		}
	}
}

func (p *parser) skipLiteral(q byte, escapes bool) bool {
	for {
		b, ok := p.r.Next()
		if !ok || (escapes && b == '\n') {
			return false
		}
		if b == q {
			return true
		}
		if escapes && b == '\\' {
			p.r.Next()
		}
	}
}

func (p *parser) parseDirective() bool {
	loc := p.loc()
	p.r.Consume("%")
	name := p.ident()
	if name == "" {
		return p.errorf(loc, "expected directive name after '%%'")
	}
	p.skipSpace()
	switch name {
	case "value", "auxil", "prefix", "package":
		if b, ok := p.r.Peek(0); !ok || (b != '"' && b != '\'') {
			return p.errorf(p.loc(), "%%%s expects a string", name)
		}
		val, ok := p.quoted()
		if !ok {
			return false
		}
		return p.setOption(loc, name, val)
	}
	if !sectionNames[name] {
		return p.errorf(loc, "unknown directive %%%s", name)
	}
	if !p.r.HasPrefix("{") {
		return p.errorf(p.loc(), "%%%s expects a code block", name)
	}
	code, ok := p.codeBlock()
	if !ok {
		return false
	}
	p.s.Sections = append(p.s.Sections, Section{Name: name, Text: code, Line: loc.Line})
	return true
}

func (p *parser) setOption(loc Location, name, val string) bool {
	var dst *string
	switch name {
	case "value":
		dst = &p.s.Options.Value
	case "auxil":
		dst = &p.s.Options.Auxil
	case "prefix":
		dst = &p.s.Options.Prefix
	case "package":
		dst = &p.s.Options.Package
	}
	if *dst != "" {
		p.errorf(loc, "multiple %%%s directives", name)
		return true
	}
	if strings.TrimSpace(val) == "" {
		p.errorf(loc, "%%%s must not be empty", name)
		return true
	}
	if (name == "prefix" || name == "package") && !isIdentifier(val) {
		p.errorf(loc, "%%%s %q is not an identifier", name, val)
		return true
	}
	*dst = val
	return true
}

func (p *parser) parseFooter() {
	line := p.r.Line()
	p.r.Consume("%%")
	start := p.r.Pos()
	for !p.r.EOF() {
		p.r.Next()
	}
	p.s.Sections = append(p.s.Sections, Section{Name: SectionFooter, Text: p.r.Text(start, p.r.Pos()), Line: line})
}

func isIdentifier(s string) bool {
	if s == "" || !isIdentStart(s[0]) {
		return false
	}
	for i := 1; i < len(s); i++ {
		if !isIdentPart(s[i]) {
			return false
		}
	}
	return !token.IsKeyword(s)
}

// String renders an expression back in grammar syntax.
func (t *Tree) String(id NodeID) string {
	var b strings.Builder
	t.format(&b, id)
	return b.String()
}

func (t *Tree) format(b *strings.Builder, id NodeID) {
	switch n := t.Node(id).(type) {
	case *Rule:
		fmt.Fprintf(b, "%s <- ", n.Name)
		t.format(b, n.Expr)
	case *Reference:
		if n.Var != "" {
			b.WriteString(n.Var + ":")
		}
		b.WriteString(n.Name)
	case *String:
		b.WriteString(strconv.Quote(n.Value))
	case *CharClass:
		if n.Pattern == nil {
			b.WriteString(".")
		} else {
			b.WriteString("[" + *n.Pattern + "]")
		}
	case *Quantity:
		t.formatGrouped(b, n.Expr)
		switch {
		case n.Min == 0 && n.Max == 1:
			b.WriteString("?")
		case n.Min == 0 && n.Max == Unbounded:
			b.WriteString("*")
		case n.Min == 1 && n.Max == Unbounded:
			b.WriteString("+")
		case n.Max == Unbounded:
			fmt.Fprintf(b, "{%d,}", n.Min)
		case n.Min == n.Max:
			fmt.Fprintf(b, "{%d}", n.Min)
		default:
			fmt.Fprintf(b, "{%d,%d}", n.Min, n.Max)
		}
	case *Predicate:
		if n.Neg {
			b.WriteString("!")
		} else {
			b.WriteString("&")
		}
		t.formatGrouped(b, n.Expr)
	case *Sequence:
		for i, c := range n.Nodes {
			if i > 0 {
				b.WriteString(" ")
			}
			if _, alt := t.Node(c).(*Alternate); alt {
				b.WriteString("(")
				t.format(b, c)
				b.WriteString(")")
			} else {
				t.format(b, c)
			}
		}
	case *Alternate:
		for i, c := range n.Nodes {
			if i > 0 {
				b.WriteString(" / ")
			}
			t.format(b, c)
		}
	case *Capture:
		b.WriteString("< ")
		t.format(b, n.Expr)
		b.WriteString(" >")
	case *Expand:
		fmt.Fprintf(b, "$%d", n.Index+1)
	case *Action:
		b.WriteString("{" + n.Text + "}")
	case *Error:
		t.formatGrouped(b, n.Expr)
		b.WriteString(" ~{" + n.Text + "}")
	case *Test:
		t.formatGrouped(b, n.Expr)
		b.WriteString(" &{" + n.Text + "}")
	case *Invalid:
		b.WriteString("<invalid>")
	}
}

func (t *Tree) formatGrouped(b *strings.Builder, id NodeID) {
	switch t.Node(id).(type) {
	case *Sequence, *Alternate, *Error, *Test, *Quantity, *Predicate:
		b.WriteString("(")
		t.format(b, id)
		b.WriteString(")")
	default:
		t.format(b, id)
	}
}
