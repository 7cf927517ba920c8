package db

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/chriserin/pcc/internal/diag"
)

// ErrNotFound is returned when a compilation id does not exist.
var ErrNotFound = errors.New("compilation not found")

// Compilation is one recorded run of the compiler.
type Compilation struct {
	ID         int64
	InputPath  string
	OutputPath string
	Status     int
	Errors     int
	Warnings   int
	Rules      int
	StartedAt  time.Time
}

// Recorder collects the diagnostics of one compilation and stores them with
// its outcome. It is a diag.Sink.
type Recorder struct {
	db      *sql.DB
	input   string
	output  string
	started time.Time
	diags   []diag.Diagnostic
}

func NewRecorder(db *sql.DB, input, output string) *Recorder {
	return &Recorder{db: db, input: input, output: output, started: time.Now()}
}

func (r *Recorder) Report(d diag.Diagnostic) {
	r.diags = append(r.diags, d)
}

// Finish writes the compilation and its diagnostics and returns the new id.
func (r *Recorder) Finish(status, rules int) (int64, error) {
	var errs, warns int
	for _, d := range r.diags {
		if d.Severity == diag.Warning {
			warns++
		} else {
			errs++
		}
	}

	tx, err := r.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("beginning history write: %w", err)
	}
	res, err := tx.Exec(`INSERT INTO compilations (input_path, output_path, status, errors, warnings, rules, started_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.input, r.output, status, errs, warns, rules, r.started.UTC().Format(time.RFC3339Nano))
	if err != nil {
		tx.Rollback()
		return 0, fmt.Errorf("inserting compilation: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		tx.Rollback()
		return 0, fmt.Errorf("reading compilation id: %w", err)
	}

	for _, d := range r.diags {
		_, err := tx.Exec(`INSERT INTO diagnostics (compilation_id, severity, kind, line, col, message)
			VALUES (?, ?, ?, ?, ?, ?)`,
			id, d.Severity.String(), d.Kind.String(), d.Line, d.Col, d.Message)
		if err != nil {
			tx.Rollback()
			return 0, fmt.Errorf("inserting diagnostic: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing history: %w", err)
	}
	return id, nil
}

const compilationColumns = `id, input_path, output_path, status, errors, warnings, rules, started_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanCompilation(row scanner) (Compilation, error) {
	var c Compilation
	var started string
	if err := row.Scan(&c.ID, &c.InputPath, &c.OutputPath, &c.Status, &c.Errors, &c.Warnings, &c.Rules, &started); err != nil {
		return c, err
	}
	t, err := time.Parse(time.RFC3339Nano, started)
	if err != nil {
		return c, fmt.Errorf("parsing started_at %q: %w", started, err)
	}
	c.StartedAt = t
	return c, nil
}

// Recent returns up to limit compilations, newest first.
func Recent(db *sql.DB, limit int) ([]Compilation, error) {
	rows, err := db.Query(`SELECT `+compilationColumns+` FROM compilations ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying compilations: %w", err)
	}
	defer rows.Close()

	var out []Compilation
	for rows.Next() {
		c, err := scanCompilation(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning compilation row: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Get returns one compilation and its diagnostics in the order reported.
func Get(db *sql.DB, id int64) (Compilation, []diag.Diagnostic, error) {
	c, err := scanCompilation(db.QueryRow(`SELECT `+compilationColumns+` FROM compilations WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return c, nil, fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	if err != nil {
		return c, nil, fmt.Errorf("reading compilation %d: %w", id, err)
	}

	rows, err := db.Query(`SELECT severity, kind, line, col, message FROM diagnostics
		WHERE compilation_id = ? ORDER BY id`, id)
	if err != nil {
		return c, nil, fmt.Errorf("querying diagnostics: %w", err)
	}
	defer rows.Close()

	var diags []diag.Diagnostic
	for rows.Next() {
		var d diag.Diagnostic
		var sev, kind string
		if err := rows.Scan(&sev, &kind, &d.Line, &d.Col, &d.Message); err != nil {
			return c, nil, fmt.Errorf("scanning diagnostic row: %w", err)
		}
		d.Severity = diag.ParseSeverity(sev)
		d.Kind = diag.ParseKind(kind)
		diags = append(diags, d)
	}
	return c, diags, rows.Err()
}
