// Package manifest reads build manifests listing several grammars to compile.
//
//	# comment
//	grammar "calc.peg" {
//	  output = "calc/calc.go"
//	  debug  = true
//	}
package manifest

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"
)

// DefaultFile is the manifest read when no path is given.
const DefaultFile = "pcc.build"

type file struct {
	Entries []*entry `parser:"@@*"`
}

type entry struct {
	Pos      lexer.Position
	Input    string     `parser:"'grammar' @String"`
	Settings []*setting `parser:"'{' @@* '}'"`
}

type setting struct {
	Pos   lexer.Position
	Key   string `parser:"@Ident '='"`
	Value *value `parser:"@@"`
}

type value struct {
	String *string  `parser:"  @String"`
	Bool   *boolean `parser:"| @('true' | 'false')"`
}

type boolean bool

func (b *boolean) Capture(values []string) error {
	*b = values[0] == "true"
	return nil
}

var manifestLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "Comment", Pattern: `#[^\n]*`},
	{Name: "String", Pattern: `"(\\.|[^"\\\n])*"`},
	{Name: "Ident", Pattern: `[a-zA-Z_][a-zA-Z0-9_]*`},
	{Name: "Punct", Pattern: `[{}=]`},
	{Name: "Whitespace", Pattern: `[ \t\r\n]+`},
})

var parser = participle.MustBuild[file](
	participle.Lexer(manifestLexer),
	participle.Elide("Comment", "Whitespace"),
	participle.Unquote("String"),
)

// Target is one grammar to compile.
type Target struct {
	Input  string
	Output string // empty selects the default next to Input
	Debug  bool
}

// Load reads the manifest at path. Relative grammar and output paths are
// taken relative to the manifest's directory.
func Load(path string) ([]Target, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening manifest: %w", err)
	}
	defer f.Close()

	targets, err := Parse(path, f)
	if err != nil {
		return nil, err
	}
	dir := filepath.Dir(path)
	for i := range targets {
		targets[i].Input = relativeTo(dir, targets[i].Input)
		if targets[i].Output != "" {
			targets[i].Output = relativeTo(dir, targets[i].Output)
		}
	}
	return targets, nil
}

func relativeTo(dir, path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(dir, path)
}

// Parse reads a manifest. Every invalid setting is reported, not only the first.
func Parse(name string, r io.Reader) ([]Target, error) {
	m, err := parser.Parse(name, r)
	if err != nil {
		return nil, fmt.Errorf("parsing manifest: %w", err)
	}

	var errs []error
	targets := make([]Target, 0, len(m.Entries))
	for _, e := range m.Entries {
		t := Target{Input: e.Input}
		if e.Input == "" {
			errs = append(errs, fmt.Errorf("%s: grammar path is empty", e.Pos))
		}
		seen := map[string]bool{}
		for _, s := range e.Settings {
			if seen[s.Key] {
				errs = append(errs, fmt.Errorf("%s: %q set twice", s.Pos, s.Key))
				continue
			}
			seen[s.Key] = true
			switch s.Key {
			case "output":
				if s.Value.String == nil {
					errs = append(errs, fmt.Errorf("%s: output must be a string", s.Pos))
					continue
				}
				t.Output = *s.Value.String
			case "debug":
				if s.Value.Bool == nil {
					errs = append(errs, fmt.Errorf("%s: debug must be true or false", s.Pos))
					continue
				}
				t.Debug = bool(*s.Value.Bool)
			default:
				errs = append(errs, fmt.Errorf("%s: unknown key %q", s.Pos, s.Key))
			}
		}
		targets = append(targets, t)
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return targets, nil
}
