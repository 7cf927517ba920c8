package cmd

import (
	"database/sql"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/chriserin/pcc/internal/db"
	"github.com/chriserin/pcc/internal/ui"
	"github.com/spf13/cobra"
)

var (
	historyDBFlag string
	limitFlag     int
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recorded compilations",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return RunHistory(cmd.OutOrStdout(), historyDBFlag, limitFlag)
	},
}

var historyShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one compilation and its diagnostics",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return RunHistoryShow(cmd.OutOrStdout(), historyDBFlag, args[0])
	},
}

func init() {
	historyCmd.PersistentFlags().StringVar(&historyDBFlag, "db", db.DefaultPath, "History database")
	historyCmd.Flags().IntVar(&limitFlag, "limit", 20, "Number of compilations to list")
	historyCmd.AddCommand(historyShowCmd)
	rootCmd.AddCommand(historyCmd)
}

func openExistingHistory(path string) (*sql.DB, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("no history at %s: run `pcc init` or compile with --history", path)
	}
	sqlDB, err := db.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening history: %w", err)
	}
	return sqlDB, nil
}

func RunHistory(w io.Writer, path string, limit int) error {
	sqlDB, err := openExistingHistory(path)
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	recent, err := db.Recent(sqlDB, limit)
	if err != nil {
		return err
	}
	if len(recent) == 0 {
		fmt.Fprintln(w, "no compilations recorded")
		return nil
	}
	for _, c := range recent {
		ui.HistoryRow(w, c)
	}
	return nil
}

func RunHistoryShow(w io.Writer, path, rawID string) error {
	id, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid compilation ID: %s", rawID)
	}

	sqlDB, err := openExistingHistory(path)
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	c, diags, err := db.Get(sqlDB, id)
	if err != nil {
		return err
	}
	ui.HistoryHeader(w, c)
	if len(diags) > 0 {
		fmt.Fprintln(w)
	}
	for _, d := range diags {
		ui.DiagnosticLine(w, c.InputPath, d)
	}
	return nil
}
