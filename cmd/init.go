package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/chriserin/pcc/internal/db"
	"github.com/chriserin/pcc/internal/manifest"
	"github.com/spf13/cobra"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Set up a build manifest and compile history in the current directory",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return RunInit(cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}

const manifestTemplate = `# Grammars compiled by "pcc build".
#
# grammar "calc.peg" {
#   output = "calc/calc.go"
#   debug  = false
# }
`

func RunInit(w io.Writer) error {
	// history database
	_, err := os.Stat(db.DefaultPath)
	dbExists := err == nil
	sqlDB, err := db.Open(db.DefaultPath)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	sqlDB.Close()
	if dbExists {
		fmt.Fprintf(w, "%s already exists\n", db.DefaultPath)
	} else {
		fmt.Fprintf(w, "%s created\n", db.DefaultPath)
	}

	// build manifest
	if _, err := os.Stat(manifest.DefaultFile); err == nil {
		fmt.Fprintf(w, "%s already exists\n", manifest.DefaultFile)
	} else {
		if err := os.WriteFile(manifest.DefaultFile, []byte(manifestTemplate), 0o644); err != nil {
			return fmt.Errorf("writing %s: %w", manifest.DefaultFile, err)
		}
		fmt.Fprintf(w, "%s created\n", manifest.DefaultFile)
	}

	// gitignore
	msgs, err := ensureGitignore(filepath.Dir(db.DefaultPath) + "/")
	if err != nil {
		return fmt.Errorf("updating .gitignore: %w", err)
	}
	for _, msg := range msgs {
		fmt.Fprintln(w, msg)
	}

	return nil
}

func ensureGitignore(entry string) ([]string, error) {
	data, err := os.ReadFile(".gitignore")
	if os.IsNotExist(err) {
		if err := os.WriteFile(".gitignore", []byte(entry+"\n"), 0o644); err != nil {
			return nil, err
		}
		return []string{".gitignore created", entry + " added to .gitignore"}, nil
	}
	if err != nil {
		return nil, err
	}

	for _, line := range strings.Split(string(data), "\n") {
		if strings.TrimSpace(line) == entry {
			return []string{entry + " already in .gitignore"}, nil
		}
	}

	content := string(data)
	if len(content) > 0 && !strings.HasSuffix(content, "\n") {
		content += "\n"
	}
	content += entry + "\n"

	if err := os.WriteFile(".gitignore", []byte(content), 0o644); err != nil {
		return nil, err
	}
	return []string{entry + " added to .gitignore"}, nil
}
