package codegen

import "text/template"

type fileData struct {
	Input       string
	Package     string
	Pub         string
	Priv        string
	Value       string
	Auxil       string
	Debug       bool
	NumRules    int
	Start       string
	EarlySource []string
	Imports     []string
	Source      []string
	Footer      []string
	EarlyHeader []string
	Header      []string
}

var parserTemplate = template.Must(template.New("parser").Parse(`
{{- range .EarlySource}}{{.}}

{{end -}}
// Code generated by pcc from {{.Input}}. DO NOT EDIT.

package {{.Package}}

import (
	{{.Priv}}errors "errors"
	{{.Priv}}fmt "fmt"
	{{.Priv}}io "io"
	{{.Priv}}utf8 "unicode/utf8"
)
{{range .Imports}}
import (
{{.}}
)
{{end}}
{{range .Source}}{{.}}
{{end}}
// {{.Pub}}DefaultMaxDepth bounds how deeply rules may nest during one parse.
const {{.Pub}}DefaultMaxDepth = 1 << 15

var (
	// {{.Pub}}ErrDepth is reported by Err when rules nest deeper than MaxDepth.
	{{.Pub}}ErrDepth = {{.Priv}}errors.New("{{.Priv}}: maximum rule depth exceeded")
	// {{.Pub}}ErrDestroyed is reported by Err when Parse is called after Destroy.
	{{.Pub}}ErrDestroyed = {{.Priv}}errors.New("{{.Priv}}: parser used after Destroy")
)

// {{.Pub}}Error is a message recorded by an error block.
type {{.Pub}}Error struct {
	Pos     int
	Message string
}

func (e {{.Pub}}Error) Error() string {
	return {{.Priv}}fmt.Sprintf("offset %d: %s", e.Pos, e.Message)
}

type {{.Priv}}Span struct {
	start, end int
	set        bool
}

type {{.Priv}}Undo struct {
	index int
	prev  {{.Priv}}Span
}

// {{.Priv}}Thunk is deferred work recorded while parsing: either a matched
// sub-rule whose value lands in a variable slot, or an action.
type {{.Priv}}Thunk struct {
	action func(p *{{.Pub}}Parser, c *{{.Priv}}Chunk, v *{{.Value}}, s, e int)
	s, e   int
	child  *{{.Priv}}Chunk
	slot   int
}

// {{.Priv}}Chunk is the outcome of one rule at one position.
type {{.Priv}}Chunk struct {
	start, end int
	vars       []{{.Value}}
	capts      []{{.Priv}}Span
	undo       []{{.Priv}}Undo
	thunks     []{{.Priv}}Thunk
	value      {{.Value}}
	done       bool
}

type {{.Priv}}Mark struct {
	pos, thunks, undo int
}

const (
	{{.Priv}}Unknown uint8 = iota
	{{.Priv}}Failed
	{{.Priv}}Matched
)

type {{.Priv}}Memo struct {
	state uint8
	chunk *{{.Priv}}Chunk
}

// {{.Pub}}Parser is a packrat parser: every rule is evaluated at most once per
// input position, and actions run once, in order, after the start rule matches.
type {{.Pub}}Parser struct {
	Auxil    {{.Auxil}}
	MaxDepth int
{{- if .Debug}}
	// Trace, when set, is called with "evaluate", "match" or "nomatch" as
	// rules are entered and left.
	Trace func(event, rule string, pos, n int)
{{- end}}

	r         {{.Priv}}io.Reader
	buf       []byte
	eof       bool
	pos       int
	depth     int
	memo      [][]{{.Priv}}Memo
	errs      []{{.Pub}}Error
	err       error
	destroyed bool
}

var _ {{.Pub}}Interface = (*{{.Pub}}Parser)(nil)

// New{{.Pub}}Parser creates a parser reading from r.
func New{{.Pub}}Parser(r {{.Priv}}io.Reader, auxil {{.Auxil}}) *{{.Pub}}Parser {
	return &{{.Pub}}Parser{Auxil: auxil, MaxDepth: {{.Pub}}DefaultMaxDepth, r: r}
}

// Destroy releases the input buffer and memo table.
func (p *{{.Pub}}Parser) Destroy() {
	p.r, p.buf, p.memo, p.errs = nil, nil, nil, nil
	p.destroyed = true
}

// Parse matches the start rule at the current position. On success the
// actions run and their value is returned; Pos reports how far input was
// consumed. Repeated calls continue from where the previous match ended.
func (p *{{.Pub}}Parser) Parse() ({{.Value}}, bool) {
	var zero {{.Value}}
	if p.destroyed {
		p.err = {{.Pub}}ErrDestroyed
		return zero, false
	}
	if p.err != nil {
		return zero, false
	}
	p.depth = 0
	c := p.{{.Start}}()
	p.memo = nil
	if c == nil || p.err != nil {
		return zero, false
	}
	return p.{{.Priv}}Run(c), true
}

// Pos returns the input offset reached by the last successful Parse.
func (p *{{.Pub}}Parser) Pos() int { return p.pos }

// Err returns the condition that aborted a parse: a read failure, rule
// nesting beyond MaxDepth, or use after Destroy.
func (p *{{.Pub}}Parser) Err() error { return p.err }

// Errors returns the messages recorded by error blocks.
func (p *{{.Pub}}Parser) Errors() []{{.Pub}}Error { return p.errs }

func (p *{{.Pub}}Parser) {{.Priv}}Fill(n int) bool {
	for len(p.buf)-p.pos < n && !p.eof {
		var chunk [4096]byte
		m, err := p.r.Read(chunk[:])
		p.buf = append(p.buf, chunk[:m]...)
		if err != nil {
			p.eof = true
			if err != {{.Priv}}io.EOF && p.err == nil {
				p.err = err
			}
		}
	}
	return len(p.buf)-p.pos >= n
}

func (p *{{.Pub}}Parser) {{.Priv}}MatchString(s string) bool {
	if !p.{{.Priv}}Fill(len(s)) {
		return false
	}
	if string(p.buf[p.pos:p.pos+len(s)]) != s {
		return false
	}
	p.pos += len(s)
	return true
}

func (p *{{.Pub}}Parser) {{.Priv}}Rune() (rune, int) {
	p.{{.Priv}}Fill({{.Priv}}utf8.UTFMax)
	if p.pos >= len(p.buf) {
		return 0, 0
	}
	return {{.Priv}}utf8.DecodeRune(p.buf[p.pos:])
}

func (p *{{.Pub}}Parser) {{.Priv}}MatchCapture(c *{{.Priv}}Chunk, i int) bool {
	sp := c.capts[i]
	if !sp.set {
		return false
	}
	return p.{{.Priv}}MatchString(string(p.buf[sp.start:sp.end]))
}

func (p *{{.Pub}}Parser) {{.Priv}}Text(sp {{.Priv}}Span) string {
	if !sp.set {
		return ""
	}
	return string(p.buf[sp.start:sp.end])
}

func (p *{{.Pub}}Parser) {{.Priv}}Mark(c *{{.Priv}}Chunk) {{.Priv}}Mark {
	return {{.Priv}}Mark{pos: p.pos, thunks: len(c.thunks), undo: len(c.undo)}
}

// {{.Priv}}Rollback restores the position and discards the thunks and
// captures recorded since m.
func (p *{{.Pub}}Parser) {{.Priv}}Rollback(c *{{.Priv}}Chunk, m {{.Priv}}Mark) {
	p.pos = m.pos
	c.thunks = c.thunks[:m.thunks]
	for len(c.undo) > m.undo {
		u := c.undo[len(c.undo)-1]
		c.capts[u.index] = u.prev
		c.undo = c.undo[:len(c.undo)-1]
	}
}

func (p *{{.Pub}}Parser) {{.Priv}}SetCapture(c *{{.Priv}}Chunk, i, s, e int) {
	c.undo = append(c.undo, {{.Priv}}Undo{index: i, prev: c.capts[i]})
	c.capts[i] = {{.Priv}}Span{start: s, end: e, set: true}
}

func (p *{{.Pub}}Parser) {{.Priv}}Errorf(pos int, format string, args ...any) {
	p.errs = append(p.errs, {{.Pub}}Error{Pos: pos, Message: {{.Priv}}fmt.Sprintf(format, args...)})
}
{{if .Debug}}
func (p *{{.Pub}}Parser) {{.Priv}}Trace(event, rule string, pos, n int) {
	if p.Trace != nil {
		p.Trace(event, rule, pos, n)
	}
}
{{end}}
// {{.Priv}}Apply evaluates a rule at the current position through the memo
// table. A cached outcome is returned without running the rule body again.
func (p *{{.Pub}}Parser) {{.Priv}}Apply(id int, name string, nvars, ncapts int, body func(*{{.Priv}}Chunk) bool) *{{.Priv}}Chunk {
	if p.err != nil {
		return nil
	}
	for len(p.memo) <= p.pos {
		p.memo = append(p.memo, nil)
	}
	if p.memo[p.pos] == nil {
		p.memo[p.pos] = make([]{{.Priv}}Memo, {{.NumRules}})
	}
	if m := p.memo[p.pos][id]; m.state != {{.Priv}}Unknown {
		if m.state == {{.Priv}}Failed {
			return nil
		}
		p.pos = m.chunk.end
		return m.chunk
	}
	if p.depth >= p.MaxDepth {
		p.err = {{.Pub}}ErrDepth
		return nil
	}
	p.depth++
	c := &{{.Priv}}Chunk{start: p.pos, vars: make([]{{.Value}}, nvars), capts: make([]{{.Priv}}Span, ncapts)}
{{- if .Debug}}
	p.{{.Priv}}Trace("evaluate", name, c.start, 0)
{{- end}}
	ok := body(c)
	p.depth--
	if p.err != nil {
		p.pos = c.start
		return nil
	}
	if !ok {
		p.pos = c.start
		p.memo[c.start][id] = {{.Priv}}Memo{state: {{.Priv}}Failed}
{{- if .Debug}}
		p.{{.Priv}}Trace("nomatch", name, c.start, 0)
{{- end}}
		return nil
	}
	c.end = p.pos
	p.memo[c.start][id] = {{.Priv}}Memo{state: {{.Priv}}Matched, chunk: c}
{{- if .Debug}}
	p.{{.Priv}}Trace("match", name, c.start, c.end-c.start)
{{- end}}
	return c
}

// {{.Priv}}Run executes the thunks of a matched chunk once and caches the value.
func (p *{{.Pub}}Parser) {{.Priv}}Run(c *{{.Priv}}Chunk) {{.Value}} {
	if c.done {
		return c.value
	}
	c.done = true
	for i := range c.thunks {
		t := &c.thunks[i]
		if t.child != nil {
			v := p.{{.Priv}}Run(t.child)
			if t.slot >= 0 {
				c.vars[t.slot] = v
			}
			continue
		}
		t.action(p, c, &c.value, t.s, t.e)
	}
	return c.value
}
`))

var interfaceTemplate = template.Must(template.New("interface").Parse(`
{{- range .EarlyHeader}}{{.}}

{{end -}}
// Code generated by pcc from {{.Input}}. DO NOT EDIT.

package {{.Package}}
{{range .Header}}
{{.}}
{{end}}
// {{.Pub}}Interface is the public surface of {{.Pub}}Parser.
type {{.Pub}}Interface interface {
	// Parse matches the start rule and returns its semantic value.
	Parse() ({{.Value}}, bool)
	// Pos returns the input offset reached by the last successful Parse.
	Pos() int
	// Err returns the condition that aborted a parse, if any.
	Err() error
	// Errors returns the messages recorded by error blocks.
	Errors() []{{.Pub}}Error
	// Destroy releases the parser's buffers.
	Destroy()
}
`))
