package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/chriserin/pcc/internal/compiler"
	"github.com/chriserin/pcc/internal/resolve"
	"github.com/spf13/cobra"
)

var transformCmd = &cobra.Command{
	Use:   "transform <grammar>",
	Short: "Print the resolved rules, options and sections of a grammar",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return RunTransform(cmd.OutOrStdout(), args[0])
	},
}

func init() {
	rootCmd.AddCommand(transformCmd)
}

func RunTransform(w io.Writer, input string) error {
	status := compiler.Transform(input, func(r *compiler.Resolved) error {
		printResolved(w, r)
		return nil
	}, compiler.Config{Sink: diagnosticPrinter(w, input), Logger: logger})
	if status != 0 {
		return &statusError{status: status, err: fmt.Errorf("%s: transform failed", input)}
	}
	return nil
}

func printResolved(w io.Writer, r *compiler.Resolved) {
	fmt.Fprintf(w, "value:  %s\n", r.Value)
	fmt.Fprintf(w, "auxil:  %s\n", r.Auxil)
	fmt.Fprintf(w, "prefix: %s\n", r.Prefix)

	fmt.Fprintln(w, "rules:")
	for _, rule := range r.Rules {
		fmt.Fprintf(w, "  %s <- %s\n", rule.Name, r.Tree.String(rule.Expr))
		fmt.Fprintf(w, "    %s\n", resolve.Describe(r.Tree, rule))
	}

	if len(r.Sections) == 0 {
		return
	}
	fmt.Fprintln(w, "sections:")
	for _, sec := range r.Sections {
		lines := strings.Count(strings.TrimSpace(sec.Text), "\n") + 1
		fmt.Fprintf(w, "  %s at line %d (%d lines)\n", sec.Name, sec.Line, lines)
	}
}
