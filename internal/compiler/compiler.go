// Package compiler runs the grammar pipeline: parse, resolve and generate.
package compiler

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/chriserin/pcc/internal/codegen"
	"github.com/chriserin/pcc/internal/diag"
	"github.com/chriserin/pcc/internal/grammar"
	"github.com/chriserin/pcc/internal/resolve"
)

// Compile status codes.
const (
	StatusOK       = 0
	StatusIO       = 2
	StatusInternal = 3
	StatusGrammar  = 10
)

// ErrGrammar is returned in a Result when the grammar has errors.
var ErrGrammar = errors.New("grammar has errors")

// Config carries the collaborators of one run.
type Config struct {
	Sink   diag.Sink
	Logger *slog.Logger
}

func (c Config) logger() *slog.Logger {
	if c.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return c.Logger
}

// Result describes one compilation.
type Result struct {
	Status    int
	Session   *grammar.Session
	Parser    string // path of the generated parser, empty unless written
	Interface string // path of the generated interface file
	Err       error
}

// OutputPath is the parser path used when none is given: the input with its
// extension replaced by .go.
func OutputPath(input string) string {
	return strings.TrimSuffix(input, filepath.Ext(input)) + ".go"
}

// InterfacePath is the path of the interface file paired with a parser.
func InterfacePath(output string) string {
	return strings.TrimSuffix(output, ".go") + "_iface.go"
}

// Check parses and resolves input without generating anything.
func Check(input string, cfg Config) Result {
	_, res := load(input, cfg)
	return res
}

// Compile translates the grammar at input into a parser written to output
// and an interface file next to it. Nothing is written unless every stage
// succeeds, and a failed run removes the files an earlier run generated
// there so no stale parser outlives the grammar it came from.
func Compile(input, output string, debug bool, cfg Config) Result {
	if output == "" {
		output = OutputPath(input)
	}
	iface := InterfacePath(output)
	s, res := load(input, cfg)
	if res.Status != StatusOK {
		removeStale(s.Logger, output, iface)
		return res
	}

	out, err := codegen.Generate(s, codegen.Options{Input: filepath.Base(input), Debug: debug})
	if err != nil {
		removeStale(s.Logger, output, iface)
		return Result{Status: StatusInternal, Session: s, Err: err}
	}

	if err := writeFiles(file{output, out.Parser}, file{iface, out.Interface}); err != nil {
		return Result{Status: StatusIO, Session: s, Err: err}
	}
	s.Logger.Debug("compiled grammar",
		slog.String("output", output),
		slog.Int("rules", len(s.Rules)),
		slog.Int("warnings", s.Diags.Warnings()))
	return Result{Status: StatusOK, Session: s, Parser: output, Interface: iface}
}

// generatedMarker starts the header line of every file Compile writes.
const generatedMarker = "// Code generated by pcc from "

// removeStale deletes the files at paths that pcc generated. Anything else,
// including files it cannot read, is left alone.
func removeStale(logger *slog.Logger, paths ...string) {
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil || !bytes.Contains(data, []byte(generatedMarker)) {
			continue
		}
		if err := os.Remove(path); err != nil {
			logger.Debug("removing stale output failed", slog.String("path", path), slog.Any("err", err))
			continue
		}
		logger.Debug("removed stale output", slog.String("path", path))
	}
}

func load(input string, cfg Config) (*grammar.Session, Result) {
	s := grammar.NewSession(input, cfg.Sink, cfg.logger())
	f, err := os.Open(input)
	if err != nil {
		return s, Result{Status: StatusIO, Session: s, Err: fmt.Errorf("opening grammar: %w", err)}
	}
	defer f.Close()

	if err := grammar.Parse(s, f); err != nil {
		return s, Result{Status: StatusIO, Session: s, Err: err}
	}
	if n := resolve.Resolve(s); n > 0 {
		status := StatusGrammar
		if s.Diags.Count(diag.Internal, diag.Error) > 0 {
			status = StatusInternal
		}
		return s, Result{Status: status, Session: s, Err: fmt.Errorf("%s: %w (%d errors)", input, ErrGrammar, n)}
	}
	return s, Result{Status: StatusOK, Session: s}
}

type file struct {
	path string
	data []byte
}

// writeFiles writes every file to a temporary sibling first and renames them
// into place once all writes succeeded. Files being replaced are kept aside
// until the last rename and put back if any rename fails.
func writeFiles(files ...file) error {
	var temps []string
	for _, f := range files {
		tmp, err := writeTemp(f.path, f.data)
		if err != nil {
			removeAll(temps)
			return err
		}
		temps = append(temps, tmp)
	}

	type placed struct {
		path, backup string
	}
	var done []placed
	rollback := func() {
		for i := len(done) - 1; i >= 0; i-- {
			os.Remove(done[i].path)
			if done[i].backup != "" {
				os.Rename(done[i].backup, done[i].path)
			}
		}
	}
	for i, f := range files {
		backup, err := setAside(f.path)
		if err != nil {
			rollback()
			removeAll(temps[i:])
			return err
		}
		if err := os.Rename(temps[i], f.path); err != nil {
			if backup != "" {
				os.Rename(backup, f.path)
			}
			rollback()
			removeAll(temps[i:])
			return fmt.Errorf("writing %s: %w", f.path, err)
		}
		done = append(done, placed{path: f.path, backup: backup})
	}
	for _, p := range done {
		if p.backup != "" {
			os.Remove(p.backup)
		}
	}
	return nil
}

// setAside moves an existing file at path to a backup name and returns it.
// It returns "" when there is no file to move. Directories stay where they
// are so the rename over them fails.
func setAside(path string) (string, error) {
	fi, err := os.Lstat(path)
	if errors.Is(err, os.ErrNotExist) || (err == nil && fi.IsDir()) {
		return "", nil
	}
	backup := filepath.Join(filepath.Dir(path), "."+filepath.Base(path)+".orig")
	if err := os.Rename(path, backup); err != nil {
		return "", fmt.Errorf("replacing %s: %w", path, err)
	}
	return backup, nil
}

func removeAll(paths []string) {
	for _, p := range paths {
		os.Remove(p)
	}
}

func writeTemp(path string, data []byte) (string, error) {
	f, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return "", fmt.Errorf("creating %s: %w", path, err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", fmt.Errorf("writing %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("writing %s: %w", path, err)
	}
	if err := os.Chmod(f.Name(), 0o644); err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("writing %s: %w", path, err)
	}
	return f.Name(), nil
}
