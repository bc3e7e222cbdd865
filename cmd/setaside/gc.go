package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hyperengineering/setaside"
)

var gcCmd = &cobra.Command{
	Use:   "gc",
	Short: "Delete attachments of collections that no longer exist",
	Long: `Delete favicon and thumbnail records left behind in the local attachment
store by collections removed on this or another device. This also runs on every
startup.`,
	Args: cobra.NoArgs,
	RunE: runGC,
}

func init() {
	rootCmd.AddCommand(gcCmd)
}

func runGC(cmd *cobra.Command, args []string) error {
	client, closeClient, err := openClient(cmd, setaside.ClientOptions{})
	if err != nil {
		return err
	}
	defer closeClient()

	n, err := client.Coordinator().CollectGarbage(cmd.Context())
	if err != nil {
		return fmt.Errorf("collect garbage: %w", err)
	}
	if outputJSON {
		return outputAsJSON(cmd, map[string]int{"deleted": n})
	}
	printSuccess(cmd.OutOrStdout(), "Deleted %d stale attachment records", n)
	return nil
}
