package main

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/hyperengineering/setaside"
)

var listCmd = &cobra.Command{
	Use:     "list [filter]",
	Aliases: []string{"ls"},
	Short:   "List set-aside collections",
	Long: `List collections, newest first, with references (C1, C2, ...) that other
commands accept in place of collection IDs.`,
	Example: `  setaside list
  setaside list golang --long
  setaside list --json`,
	Args: cobra.MaximumNArgs(1),
	RunE: runList,
}

var listLong bool

func init() {
	listCmd.Flags().BoolVarP(&listLong, "long", "l", false, "Show every tab of each collection")
	rootCmd.AddCommand(listCmd)
}

func runList(cmd *cobra.Command, args []string) error {
	client, closeClient, err := openClient(cmd, setaside.ClientOptions{})
	if err != nil {
		return err
	}
	defer closeClient()

	session, cols := listed(client.Coordinator())
	filter := ""
	if len(args) > 0 {
		filter = strings.ToLower(args[0])
	}

	var views []CollectionView
	for _, col := range cols {
		if filter != "" && !strings.Contains(strings.ToLower(setaside.Describe(col)), filter) {
			continue
		}
		views = append(views, viewCollection(session.Track(col.ID), col))
	}
	return outputCollections(cmd, views, listLong)
}
