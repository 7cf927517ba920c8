package diag

import "fmt"

// Severity says whether a diagnostic fails the compile.
type Severity int

const (
	Error Severity = iota
	Warning
)

func (s Severity) String() string {
	if s == Warning {
		return "warning"
	}
	return "error"
}

// ParseSeverity is the inverse of Severity.String.
func ParseSeverity(s string) Severity {
	if s == "warning" {
		return Warning
	}
	return Error
}

// Kind classifies where a diagnostic came from.
type Kind int

const (
	Syntax Kind = iota
	Semantic
	Internal
)

func (k Kind) String() string {
	switch k {
	case Syntax:
		return "syntax"
	case Semantic:
		return "semantic"
	case Internal:
		return "internal"
	}
	return "unknown"
}

// ParseKind is the inverse of Kind.String. Unknown names map to Internal.
func ParseKind(s string) Kind {
	switch s {
	case "syntax":
		return Syntax
	case "semantic":
		return Semantic
	}
	return Internal
}

// Diagnostic is a compiler message with a 1-based source location.
// Line and Col are zero when the message has no position.
type Diagnostic struct {
	Severity Severity
	Kind     Kind
	Line     int
	Col      int
	Message  string
}

func (d Diagnostic) String() string {
	if d.Line == 0 {
		return fmt.Sprintf("%s: %s", d.Severity, d.Message)
	}
	return fmt.Sprintf("%d:%d: %s: %s", d.Line, d.Col, d.Severity, d.Message)
}

// Sink receives diagnostics as they are produced.
type Sink interface {
	Report(d Diagnostic)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(d Diagnostic)

func (f SinkFunc) Report(d Diagnostic) { f(d) }

// Collector accumulates diagnostics and counts them by severity, forwarding
// each one to an optional downstream sink.
type Collector struct {
	Next     Sink
	All      []Diagnostic
	errors   int
	warnings int
}

func (c *Collector) Report(d Diagnostic) {
	c.All = append(c.All, d)
	if d.Severity == Warning {
		c.warnings++
	} else {
		c.errors++
	}
	if c.Next != nil {
		c.Next.Report(d)
	}
}

// Errors returns the number of diagnostics that fail the compile.
func (c *Collector) Errors() int { return c.errors }

func (c *Collector) Warnings() int { return c.warnings }

// Count returns the number of diagnostics of the given kind and severity.
func (c *Collector) Count(k Kind, s Severity) int {
	n := 0
	for _, d := range c.All {
		if d.Kind == k && d.Severity == s {
			n++
		}
	}
	return n
}

// Multi fans a diagnostic out to several sinks, skipping nil entries.
func Multi(sinks ...Sink) Sink {
	return SinkFunc(func(d Diagnostic) {
		for _, s := range sinks {
			if s != nil {
				s.Report(d)
			}
		}
	})
}
