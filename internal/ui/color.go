package ui

import (
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/chriserin/pcc/internal/db"
	"github.com/chriserin/pcc/internal/diag"
)

var (
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	errorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("1")).Bold(true)
	warnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
	faintStyle = lipgloss.NewStyle().Faint(true)
)

func severity(s diag.Severity) string {
	if s == diag.Warning {
		return warnStyle.Render(s.String())
	}
	return errorStyle.Render(s.String())
}

// DiagnosticLine prints a diagnostic prefixed with the file it belongs to.
func DiagnosticLine(w io.Writer, file string, d diag.Diagnostic) {
	if d.Line == 0 {
		fmt.Fprintf(w, "%s: %s: %s\n", file, severity(d.Severity), d.Message)
		return
	}
	fmt.Fprintf(w, "%s:%d:%d: %s: %s\n", file, d.Line, d.Col, severity(d.Severity), d.Message)
}

func CompiledLine(w io.Writer, input, output string) {
	fmt.Fprintln(w, okStyle.Render("ok")+"    "+input+" -> "+output)
}

func FailedLine(w io.Writer, input string, status int) {
	fmt.Fprintf(w, "%s  %s (status %d)\n", errorStyle.Render("fail"), input, status)
}

func CheckedLine(w io.Writer, input string, rules int) {
	fmt.Fprintf(w, "%s    %s (%s)\n", okStyle.Render("ok"), input, plural(rules, "rule"))
}

func SummaryLine(w io.Writer, errors, warnings int) {
	fmt.Fprintf(w, "%s, %s\n", plural(errors, "error"), plural(warnings, "warning"))
}

func plural(n int, noun string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, noun)
	}
	return fmt.Sprintf("%d %ss", n, noun)
}

// HistoryRow prints one compilation as a table row.
func HistoryRow(w io.Writer, c db.Compilation) {
	status := okStyle.Render(fmt.Sprintf("%-4d", c.Status))
	if c.Status != 0 {
		status = errorStyle.Render(fmt.Sprintf("%-4d", c.Status))
	}
	fmt.Fprintf(w, "%5d  %s  %s  %s  %s\n",
		c.ID, faintStyle.Render(c.StartedAt.Local().Format(time.DateTime)), status,
		c.InputPath, faintStyle.Render(fmt.Sprintf("%d/%d", c.Errors, c.Warnings)))
}

// HistoryHeader prints the details of one compilation above its diagnostics.
func HistoryHeader(w io.Writer, c db.Compilation) {
	fmt.Fprintf(w, "compilation %d  %s\n", c.ID, faintStyle.Render(c.StartedAt.Local().Format(time.DateTime)))
	fmt.Fprintf(w, "  input:  %s\n", c.InputPath)
	if c.OutputPath != "" {
		fmt.Fprintf(w, "  output: %s\n", c.OutputPath)
	}
	fmt.Fprintf(w, "  status: %d  rules: %d  ", c.Status, c.Rules)
	SummaryLine(w, c.Errors, c.Warnings)
}
