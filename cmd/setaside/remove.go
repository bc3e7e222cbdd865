package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hyperengineering/setaside"
)

var removeCmd = &cobra.Command{
	Use:     "remove <collection> [item]",
	Aliases: []string{"rm"},
	Short:   "Remove a collection, or one tab of it",
	Long: `Remove a collection without reopening its tabs. With an item (its ID or its
1-based position) only that tab is removed; removing the last tab removes the
collection.`,
	Example: `  setaside remove C2
  setaside remove 3f2a9c1e 4`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runRemove,
}

func init() {
	rootCmd.AddCommand(removeCmd)
}

type removeResult struct {
	CollectionID string `json:"collection_id"`
	ItemID       string `json:"item_id,omitempty"`
	Removed      int    `json:"removed"`
}

func runRemove(cmd *cobra.Command, args []string) error {
	client, closeClient, err := openClient(cmd, setaside.ClientOptions{})
	if err != nil {
		return err
	}
	defer closeClient()

	coord := client.Coordinator()
	col, err := findCollection(coord, args[0])
	if err != nil {
		return err
	}

	result := removeResult{CollectionID: col.ID}
	if len(args) == 2 {
		it, err := findItem(col, args[1])
		if err != nil {
			return err
		}
		if err := coord.RemoveItem(cmd.Context(), col.ID, it.ID); err != nil {
			return fmt.Errorf("remove item: %w", err)
		}
		result.ItemID = it.ID
		result.Removed = 1
	} else {
		if err := coord.RemoveCollection(cmd.Context(), col.ID); err != nil {
			return fmt.Errorf("remove collection: %w", err)
		}
		result.Removed = len(col.Items)
	}

	if outputJSON {
		return outputAsJSON(cmd, result)
	}
	printSuccess(cmd.OutOrStdout(), "Removed %d tabs from %s", result.Removed, shortID(col.ID))
	return nil
}
