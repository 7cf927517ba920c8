package compiler

import (
	"log/slog"

	"github.com/chriserin/pcc/internal/grammar"
)

// Resolved is what Transform hands to its callback: the resolved rules in
// declaration order, the pass-through sections and the options with defaults
// applied.
type Resolved struct {
	Tree     *grammar.Tree
	Rules    []*grammar.Rule
	Sections []grammar.Section
	Value    string
	Auxil    string
	Prefix   string
}

// TransformFunc receives a resolved grammar. A non-nil error fails the
// transform.
type TransformFunc func(*Resolved) error

// Transform parses and resolves input and, when it has no errors, calls fn.
// It returns 0 on success and 1 otherwise.
func Transform(input string, fn TransformFunc, cfg Config) int {
	s, res := load(input, cfg)
	if res.Status != StatusOK {
		return 1
	}

	opts := s.Options.Resolved()
	r := &Resolved{
		Tree:     s.Tree,
		Sections: s.Sections,
		Value:    opts.Value,
		Auxil:    opts.Auxil,
		Prefix:   opts.Prefix,
	}
	for _, id := range s.Rules {
		r.Rules = append(r.Rules, s.Tree.Rule(id))
	}
	if err := fn(r); err != nil {
		s.Logger.Debug("transform callback failed", slog.Any("err", err))
		return 1
	}
	return 0
}
