package grammar

import (
	"fmt"
	"log/slog"

	"github.com/chriserin/pcc/internal/diag"
)

// Session is the state of one compilation. It is created by the caller,
// threaded through parsing, resolution and generation, and never shared.
type Session struct {
	Name     string
	Tree     *Tree
	Rules    []NodeID          // top-level rules in declaration order
	Table    map[string]NodeID // name -> Rule, filled by the resolver
	Sections []Section
	Options  Options
	Diags    *diag.Collector
	Logger   *slog.Logger
}

// NewSession starts a compilation of the named input. Diagnostics are
// counted in the session and forwarded to sink when it is not nil.
func NewSession(name string, sink diag.Sink, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Session{
		Name:   name,
		Tree:   &Tree{},
		Table:  make(map[string]NodeID),
		Diags:  &diag.Collector{Next: sink},
		Logger: logger.With(slog.String("input", name)),
	}
}

func (s *Session) report(sev diag.Severity, kind diag.Kind, loc Location, format string, args ...any) {
	s.Diags.Report(diag.Diagnostic{
		Severity: sev,
		Kind:     kind,
		Line:     loc.Line,
		Col:      loc.Col,
		Message:  fmt.Sprintf(format, args...),
	})
}

func (s *Session) SyntaxError(loc Location, format string, args ...any) {
	s.report(diag.Error, diag.Syntax, loc, format, args...)
}

func (s *Session) SemanticError(loc Location, format string, args ...any) {
	s.report(diag.Error, diag.Semantic, loc, format, args...)
}

func (s *Session) Warn(loc Location, format string, args ...any) {
	s.report(diag.Warning, diag.Semantic, loc, format, args...)
}

func (s *Session) InternalError(format string, args ...any) {
	s.report(diag.Error, diag.Internal, Location{}, format, args...)
}

// Failed reports whether any error has been recorded.
func (s *Session) Failed() bool { return s.Diags.Errors() > 0 }

// Start returns the start rule, the first one declared.
func (s *Session) Start() *Rule {
	if len(s.Rules) == 0 {
		return nil
	}
	return s.Tree.Rule(s.Rules[0])
}

// Lookup finds a resolved rule by name.
func (s *Session) Lookup(name string) *Rule {
	id, ok := s.Table[name]
	if !ok {
		return nil
	}
	return s.Tree.Rule(id)
}

// SectionText joins every section with the given name in declaration order.
func (s *Session) SectionText(name string) []string {
	var out []string
	for _, sec := range s.Sections {
		if sec.Name == name {
			out = append(out, sec.Text)
		}
	}
	return out
}
