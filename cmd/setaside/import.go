package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/hyperengineering/setaside"
)

var importCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Import collections from an export file",
	Long: `Import collections from a file written by 'setaside export'. Use - to read
stdin.

Collections that already exist (same ID) are handled by --strategy:
  skip     keep the existing collection untouched (default)
  replace  overwrite the existing collection`,
	Example: `  setaside import tabs-backup.json
  setaside import work.json --profile work --strategy replace --dry-run`,
	Args: cobra.ExactArgs(1),
	RunE: runImport,
}

var (
	importStrategy string
	importDryRun   bool
)

func init() {
	importCmd.Flags().StringVar(&importStrategy, "strategy", "skip", "How to handle existing collections: skip, replace")
	importCmd.Flags().BoolVar(&importDryRun, "dry-run", false, "Report what would change without writing")
	rootCmd.AddCommand(importCmd)
}

func runImport(cmd *cobra.Command, args []string) error {
	strategy, err := setaside.ParseMergeStrategy(importStrategy)
	if err != nil {
		return err
	}

	var in io.Reader = cmd.InOrStdin()
	if args[0] != "-" {
		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("open import file: %w", err)
		}
		defer closeQuietly(f)
		in = f
	}

	client, closeClient, err := openClient(cmd, setaside.ClientOptions{})
	if err != nil {
		return err
	}
	defer closeClient()

	result, err := client.Coordinator().ImportJSON(cmd.Context(), in, strategy, importDryRun)
	if err != nil {
		return fmt.Errorf("import: %w", err)
	}

	if outputJSON {
		return outputAsJSON(cmd, result)
	}
	out := cmd.OutOrStdout()
	if importDryRun {
		printInfo(out, "Dry run: nothing was written")
	}
	printSuccess(out, "Imported %d collections", result.Total)
	printField(out, "  Created:", fmt.Sprint(result.Created))
	printField(out, "  Replaced:", fmt.Sprint(result.Replaced))
	printField(out, "  Skipped:", fmt.Sprint(result.Skipped))
	for _, e := range result.Errors {
		printWarning(out, "%s", e)
	}
	return nil
}
