package cmd

import (
	"errors"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

var (
	verboseFlag bool
	logger      = slog.New(slog.DiscardHandler)
)

var rootCmd = &cobra.Command{
	Use:          "pcc",
	Short:        "pcc: a packrat parser generator for Go",
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if verboseFlag {
			logger = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: slog.LevelDebug}))
		}
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", false, "Log pipeline stages to stderr")
}

// statusError carries a compiler status out to the process exit code.
type statusError struct {
	status int
	err    error
}

func (e *statusError) Error() string { return e.err.Error() }

func (e *statusError) Unwrap() error { return e.err }

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		var se *statusError
		if errors.As(err, &se) {
			os.Exit(se.status)
		}
		os.Exit(1)
	}
}
