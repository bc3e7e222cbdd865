package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hyperengineering/setaside"
	"github.com/hyperengineering/setaside/internal/opener"
)

var restoreCmd = &cobra.Command{
	Use:     "restore <collection> [item]",
	Aliases: []string{"open"},
	Short:   "Reopen a collection, or one tab of it",
	Long: `Reopen every tab of a collection in the browser, then remove the collection.
If any tab fails to open the collection is kept. With an item (its ID or its
1-based position) only that tab is reopened and removed.

--destination names the browser executable to use instead of the system URL
handler. --print writes the URLs to stdout instead of opening them.`,
	Example: `  setaside restore C1
  setaside restore C1 2 --destination firefox
  setaside restore golang --print | xargs -n1 echo`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runRestore,
}

var (
	restoreDestination string
	restorePrint       bool
)

func init() {
	restoreCmd.Flags().StringVarP(&restoreDestination, "destination", "d", "", "Browser executable to open tabs with")
	restoreCmd.Flags().BoolVar(&restorePrint, "print", false, "Print URLs instead of opening them")
	rootCmd.AddCommand(restoreCmd)
}

type restoreResult struct {
	CollectionID string   `json:"collection_id"`
	URLs         []string `json:"urls"`
}

func runRestore(cmd *cobra.Command, args []string) error {
	var tabOpener setaside.TabOpener = opener.NewCommand()
	if restorePrint {
		tabOpener = opener.NewPrinter(cmd.OutOrStdout())
	}
	client, closeClient, err := openClient(cmd, setaside.ClientOptions{Opener: tabOpener})
	if err != nil {
		return err
	}
	defer closeClient()

	coord := client.Coordinator()
	col, err := findCollection(coord, args[0])
	if err != nil {
		return err
	}

	result := restoreResult{CollectionID: col.ID}
	if len(args) == 2 {
		it, err := findItem(col, args[1])
		if err != nil {
			return err
		}
		if err := coord.RestoreItem(cmd.Context(), col.ID, it.ID, restoreDestination); err != nil {
			return restoreError(err)
		}
		result.URLs = []string{it.URL}
	} else {
		if err := coord.RestoreCollection(cmd.Context(), col.ID, restoreDestination); err != nil {
			return restoreError(err)
		}
		for _, it := range col.Items {
			result.URLs = append(result.URLs, it.URL)
		}
	}

	if restorePrint {
		return nil
	}
	if outputJSON {
		return outputAsJSON(cmd, result)
	}
	printSuccess(cmd.OutOrStdout(), "Restored %d tabs from %s", len(result.URLs), shortID(col.ID))
	return nil
}

func restoreError(err error) error {
	if errors.Is(err, opener.ErrNoLauncher) {
		return fmt.Errorf("restore: %w (use --destination or --print)", err)
	}
	return fmt.Errorf("restore: %w", err)
}
