package cmd

import (
	"database/sql"
	"fmt"
	"io"

	"github.com/chriserin/pcc/internal/compiler"
	"github.com/chriserin/pcc/internal/db"
	"github.com/chriserin/pcc/internal/diag"
	"github.com/chriserin/pcc/internal/ui"
	"github.com/spf13/cobra"
)

var (
	outputFlag  string
	debugFlag   bool
	historyFlag string
)

var compileCmd = &cobra.Command{
	Use:   "compile <grammar>",
	Short: "Generate a Go parser from a PEG grammar",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return RunCompile(cmd.OutOrStdout(), args[0], outputFlag, debugFlag, historyFlag)
	},
}

func init() {
	compileCmd.Flags().StringVarP(&outputFlag, "output", "o", "", "Parser file to write (default: grammar with .go extension)")
	compileCmd.Flags().BoolVar(&debugFlag, "debug", false, "Add a Trace hook to the generated parser")
	compileCmd.Flags().StringVar(&historyFlag, "history", "", "Record the run in a history database")
	compileCmd.Flags().Lookup("history").NoOptDefVal = db.DefaultPath
	rootCmd.AddCommand(compileCmd)
}

func RunCompile(w io.Writer, input, output string, debug bool, historyPath string) error {
	hist, err := openHistory(historyPath)
	if err != nil {
		return err
	}
	if hist != nil {
		defer hist.Close()
	}

	res, err := compileOne(w, hist, input, output, debug)
	if err != nil {
		return err
	}
	return statusOf(res)
}

func openHistory(path string) (*sql.DB, error) {
	if path == "" {
		return nil, nil
	}
	sqlDB, err := db.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening history: %w", err)
	}
	return sqlDB, nil
}

// compileOne compiles a grammar, printing its diagnostics and outcome, and
// records the run when hist is not nil.
func compileOne(w io.Writer, hist *sql.DB, input, output string, debug bool) (compiler.Result, error) {
	var sink diag.Sink = diagnosticPrinter(w, input)
	var rec *db.Recorder
	if hist != nil {
		out := output
		if out == "" {
			out = compiler.OutputPath(input)
		}
		rec = db.NewRecorder(hist, input, out)
		sink = diag.Multi(sink, rec)
	}

	res := compiler.Compile(input, output, debug, compiler.Config{Sink: sink, Logger: logger})
	report(w, input, res)
	if res.Status == compiler.StatusOK {
		ui.CompiledLine(w, input, res.Parser)
	}

	if rec != nil {
		if _, err := rec.Finish(res.Status, ruleCount(res)); err != nil {
			return res, fmt.Errorf("recording history: %w", err)
		}
	}
	return res, nil
}

func diagnosticPrinter(w io.Writer, input string) diag.Sink {
	return diag.SinkFunc(func(d diag.Diagnostic) {
		ui.DiagnosticLine(w, input, d)
	})
}

// report prints the error summary of a failed or noisy run.
func report(w io.Writer, input string, res compiler.Result) {
	if res.Session != nil {
		errs, warns := res.Session.Diags.Errors(), res.Session.Diags.Warnings()
		if errs+warns > 0 {
			ui.SummaryLine(w, errs, warns)
		}
	}
	if res.Status != compiler.StatusOK {
		ui.FailedLine(w, input, res.Status)
	}
}

func ruleCount(res compiler.Result) int {
	if res.Session == nil {
		return 0
	}
	return len(res.Session.Rules)
}

func statusOf(res compiler.Result) error {
	if res.Status == compiler.StatusOK {
		return nil
	}
	err := res.Err
	if err == nil {
		err = fmt.Errorf("compile failed with status %d", res.Status)
	}
	return &statusError{status: res.Status, err: err}
}
