package main

import (
	"github.com/spf13/cobra"

	"github.com/hyperengineering/setaside/internal/profile"
)

var profilesCmd = &cobra.Command{
	Use:   "profiles",
	Short: "List profiles under the data directory",
	Long: `List the profiles that have data under the data directory. Each profile has
its own synced metadata file and local attachment database; select one with
--profile or SETASIDE_PROFILE.`,
	Args: cobra.NoArgs,
	RunE: runProfiles,
}

func init() {
	rootCmd.AddCommand(profilesCmd)
}

// ProfileEntry represents a profile in list output.
type ProfileEntry struct {
	ID      string `json:"id"`
	Active  bool   `json:"active"`
	SyncDir string `json:"sync_dir"`
}

func runProfiles(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ids, err := profile.List(cfg.DataDir)
	if err != nil {
		return err
	}

	entries := make([]ProfileEntry, 0, len(ids))
	for _, id := range ids {
		layout := profile.Layout{Root: cfg.DataDir, ID: id}
		entries = append(entries, ProfileEntry{ID: id, Active: id == cfg.Profile, SyncDir: layout.SyncDir()})
	}

	if outputJSON {
		return outputAsJSON(cmd, entries)
	}
	out := cmd.OutOrStdout()
	if len(entries) == 0 {
		printMuted(out, "No profiles under %s yet.", cfg.DataDir)
		return nil
	}
	rows := make([][]string, len(entries))
	for i, e := range entries {
		marker := ""
		if e.Active {
			marker = "*"
		}
		rows[i] = []string{marker, e.ID, e.SyncDir}
	}
	outputText(cmd, "%s", renderTable([]string{"", "PROFILE", "SYNC DIR"}, rows))
	return nil
}
