package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/hyperengineering/setaside"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show store configuration and health",
	Long: `Display the active profile, where its stores live, and whether they are
usable.`,
	Example: `  setaside status
  setaside status --json`,
	Args: cobra.NoArgs,
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

// StatusResult for JSON output.
type StatusResult struct {
	Profile  string                `json:"profile"`
	Metadata string                `json:"metadata"`
	SyncDir  string                `json:"sync_dir,omitempty"`
	Blobs    string                `json:"blobs"`
	BlobPath string                `json:"blob_path,omitempty"`
	Tabs     int                   `json:"tabs"`
	Health   setaside.HealthStatus `json:"health"`
}

func runStatus(cmd *cobra.Command, args []string) error {
	client, closeClient, err := openClient(cmd, setaside.ClientOptions{})
	if err != nil {
		return err
	}
	defer closeClient()

	ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
	defer cancel()

	cfg := client.Config()
	result := StatusResult{
		Profile:  cfg.Profile,
		Metadata: cfg.Metadata,
		Blobs:    cfg.Blobs,
		Health:   client.HealthCheck(ctx),
	}
	if cfg.Metadata == setaside.MetadataFile {
		result.SyncDir = cfg.SyncDir
	}
	if cfg.Blobs != setaside.BlobsMemory {
		result.BlobPath = cfg.BlobPath
	}
	for _, col := range client.Coordinator().Collections() {
		result.Tabs += len(col.Items)
	}

	if outputJSON {
		return outputAsJSON(cmd, result)
	}

	out := cmd.OutOrStdout()
	printField(out, "Profile:    ", result.Profile)
	metadata := result.Metadata
	if result.SyncDir != "" {
		metadata += " (" + result.SyncDir + ")"
	}
	printField(out, "Metadata:   ", metadata)
	blobs := result.Blobs
	if result.BlobPath != "" {
		blobs += " (" + result.BlobPath + ")"
	}
	printField(out, "Attachments:", blobs)
	printField(out, "Collections:", fmt.Sprintf("%d (%d tabs)", result.Health.Collections, result.Tabs))
	fmt.Fprintln(out)

	if result.Health.Healthy {
		printSuccess(out, "Healthy")
	} else {
		printError(out, "Unhealthy: %s", result.Health.Error)
	}
	if !result.Health.BlobsOK {
		printWarning(out, "Attachment store unavailable; collections are kept without favicons")
	}
	return nil
}
