package source

import (
	"errors"
	"fmt"
	"io"
)

const chunkSize = 4096

// Reader streams text from an io.Reader into a growing buffer and exposes a
// rewindable cursor over it. Bytes are pulled from the underlying reader only
// when the cursor looks past what has been buffered.
type Reader struct {
	r    io.Reader
	buf  []byte
	eof  bool
	err  error
	pos  int
	line int
	col  int
}

// Mark is a saved cursor. Restoring it rewinds position, line and column.
type Mark struct {
	pos  int
	line int
	col  int
}

func (m Mark) Pos() int { return m.pos }

func (m Mark) Line() int { return m.line }

func (m Mark) Col() int { return m.col }

func NewReader(r io.Reader) *Reader {
	return &Reader{r: r, line: 1, col: 1}
}

// fill makes sure at least n bytes are buffered past the cursor, unless the
// input ends first.
func (r *Reader) fill(n int) bool {
	for len(r.buf)-r.pos < n && !r.eof {
		var chunk [chunkSize]byte
		m, err := r.r.Read(chunk[:])
		r.buf = append(r.buf, chunk[:m]...)
		if err != nil {
			r.eof = true
			if !errors.Is(err, io.EOF) {
				r.err = fmt.Errorf("reading grammar: %w", err)
			}
		}
	}
	return len(r.buf)-r.pos >= n
}

// Err returns the first read failure other than io.EOF.
func (r *Reader) Err() error { return r.err }

// EOF reports whether the cursor is at the end of input.
func (r *Reader) EOF() bool { return !r.fill(1) }

// Peek returns the byte off positions past the cursor.
func (r *Reader) Peek(off int) (byte, bool) {
	if !r.fill(off + 1) {
		return 0, false
	}
	return r.buf[r.pos+off], true
}

// Next consumes one byte.
func (r *Reader) Next() (byte, bool) {
	if !r.fill(1) {
		return 0, false
	}
	b := r.buf[r.pos]
	r.pos++
	if b == '\n' {
		r.line++
		r.col = 1
	} else if b&0xC0 != 0x80 {
		r.col++
	}
	return b, true
}

// Skip consumes n bytes or up to end of input.
func (r *Reader) Skip(n int) {
	for i := 0; i < n; i++ {
		if _, ok := r.Next(); !ok {
			return
		}
	}
}

// HasPrefix reports whether the text at the cursor starts with s.
func (r *Reader) HasPrefix(s string) bool {
	if !r.fill(len(s)) {
		return false
	}
	return string(r.buf[r.pos:r.pos+len(s)]) == s
}

// Consume advances past s when the text at the cursor starts with it.
func (r *Reader) Consume(s string) bool {
	if !r.HasPrefix(s) {
		return false
	}
	r.Skip(len(s))
	return true
}

// Text returns the buffered text between two positions.
func (r *Reader) Text(start, end int) string {
	return string(r.buf[start:end])
}

func (r *Reader) Pos() int { return r.pos }

func (r *Reader) Line() int { return r.line }

func (r *Reader) Col() int { return r.col }

func (r *Reader) Mark() Mark {
	return Mark{pos: r.pos, line: r.line, col: r.col}
}

func (r *Reader) Reset(m Mark) {
	r.pos, r.line, r.col = m.pos, m.line, m.col
}

// Attempt runs fn and rewinds the cursor when it reports failure. This is the
// same mark/rollback discipline the generated parsers apply to every sequence,
// alternative and predicate.
func (r *Reader) Attempt(fn func() bool) bool {
	m := r.Mark()
	if fn() {
		return true
	}
	r.Reset(m)
	return false
}

// Lookahead runs fn and always rewinds, returning fn's verdict.
func (r *Reader) Lookahead(fn func() bool) bool {
	m := r.Mark()
	ok := fn()
	r.Reset(m)
	return ok
}
