package cmd

import (
	"fmt"
	"io"

	"github.com/chriserin/pcc/internal/compiler"
	"github.com/chriserin/pcc/internal/db"
	"github.com/chriserin/pcc/internal/manifest"
	"github.com/spf13/cobra"
)

var (
	manifestFlag     string
	buildHistoryFlag string
)

var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Compile every grammar listed in a build manifest",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return RunBuild(cmd.OutOrStdout(), manifestFlag, buildHistoryFlag)
	},
}

func init() {
	buildCmd.Flags().StringVarP(&manifestFlag, "file", "f", manifest.DefaultFile, "Build manifest")
	buildCmd.Flags().StringVar(&buildHistoryFlag, "history", "", "Record each run in a history database")
	buildCmd.Flags().Lookup("history").NoOptDefVal = db.DefaultPath
	rootCmd.AddCommand(buildCmd)
}

// RunBuild compiles every target, continuing past failures. The returned
// error carries the status of the first failing grammar.
func RunBuild(w io.Writer, manifestPath, historyPath string) error {
	targets, err := manifest.Load(manifestPath)
	if err != nil {
		return err
	}

	hist, err := openHistory(historyPath)
	if err != nil {
		return err
	}
	if hist != nil {
		defer hist.Close()
	}

	var first error
	failed := 0
	for _, t := range targets {
		res, err := compileOne(w, hist, t.Input, t.Output, t.Debug)
		if err != nil {
			return err
		}
		if res.Status != compiler.StatusOK {
			failed++
			if first == nil {
				first = statusOf(res)
			}
		}
	}

	fmt.Fprintf(w, "built %d of %d grammars\n", len(targets)-failed, len(targets))
	return first
}
