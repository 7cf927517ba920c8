package cmd

import (
	"io"

	"github.com/chriserin/pcc/internal/compiler"
	"github.com/chriserin/pcc/internal/ui"
	"github.com/spf13/cobra"
)

var checkCmd = &cobra.Command{
	Use:   "check <grammar>",
	Short: "Report a grammar's diagnostics without generating code",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return RunCheck(cmd.OutOrStdout(), args[0])
	},
}

func init() {
	rootCmd.AddCommand(checkCmd)
}

func RunCheck(w io.Writer, input string) error {
	res := compiler.Check(input, compiler.Config{Sink: diagnosticPrinter(w, input), Logger: logger})
	report(w, input, res)
	if res.Status == compiler.StatusOK {
		ui.CheckedLine(w, input, ruleCount(res))
	}
	return statusOf(res)
}
