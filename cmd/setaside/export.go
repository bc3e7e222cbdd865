package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/hyperengineering/setaside"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export every collection to a JSON file",
	Long: `Export every collection of the profile, attachments included, as one JSON
document. Without --output the document is written to stdout.`,
	Example: `  setaside export -o tabs-backup.json
  setaside export --profile work > work.json`,
	Args: cobra.NoArgs,
	RunE: runExport,
}

var exportOutputPath string

func init() {
	exportCmd.Flags().StringVarP(&exportOutputPath, "output", "o", "", "Output file path (default: stdout)")
	rootCmd.AddCommand(exportCmd)
}

// ExportResult for JSON output.
type ExportResult struct {
	Profile     string `json:"profile"`
	Collections int    `json:"collections"`
	FilePath    string `json:"file_path"`
	FileSize    int64  `json:"file_size"`
	Duration    string `json:"duration"`
}

func runExport(cmd *cobra.Command, args []string) error {
	client, closeClient, err := openClient(cmd, setaside.ClientOptions{})
	if err != nil {
		return err
	}
	defer closeClient()

	coord := client.Coordinator()
	profileID := client.Config().Profile

	if exportOutputPath == "" {
		return coord.ExportJSON(cmd.Context(), profileID, cmd.OutOrStdout())
	}

	start := time.Now()
	if err := writeFileAtomic(exportOutputPath, func(w io.Writer) error {
		return coord.ExportJSON(cmd.Context(), profileID, w)
	}); err != nil {
		return fmt.Errorf("export: %w", err)
	}

	result := ExportResult{
		Profile:     profileID,
		Collections: len(coord.Collections()),
		FilePath:    exportOutputPath,
		Duration:    time.Since(start).Round(time.Millisecond).String(),
	}
	if fi, err := os.Stat(exportOutputPath); err == nil {
		result.FileSize = fi.Size()
	}

	if outputJSON {
		return outputAsJSON(cmd, result)
	}
	out := cmd.OutOrStdout()
	printSuccess(out, "Exported %d collections from profile %q", result.Collections, profileID)
	printField(out, "  File:", fmt.Sprintf("%s (%s)", result.FilePath, formatBytes(result.FileSize)))
	printField(out, "  Took:", result.Duration)
	return nil
}

// writeFileAtomic writes path through a temporary file in the same directory so
// a failed export never leaves a truncated file behind.
func writeFileAtomic(path string, write func(io.Writer) error) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".setaside-export-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := write(tmp); err != nil {
		closeQuietly(tmp)
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	return os.Rename(tmp.Name(), path)
}

// formatBytes formats a byte count as a human-readable string.
func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(n)/float64(div), "KMGTPE"[exp])
}
