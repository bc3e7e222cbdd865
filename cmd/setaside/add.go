package main

import (
	"fmt"
	"net/url"

	"github.com/go-kit/log"
	"github.com/spf13/cobra"

	"github.com/hyperengineering/setaside"
	"github.com/hyperengineering/setaside/internal/capture"
)

var addCmd = &cobra.Command{
	Use:     "add <url>...",
	Aliases: []string{"set-aside"},
	Short:   "Set URLs aside as a new collection",
	Long: `Set one or more URLs aside as a new collection. URLs that cannot be reopened
later (about:, file:, chrome:, ...) are skipped. Each site's /favicon.ico is
fetched and kept in the local attachment store unless --no-favicons is given.`,
	Example: `  setaside add https://go.dev/doc https://pkg.go.dev
  setaside add https://example.com --title "Example" --no-favicons`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAdd,
}

var (
	addTitles     []string
	addNoFavicons bool
)

func init() {
	addCmd.Flags().StringArrayVarP(&addTitles, "title", "t", nil, "Title for the URL in the same position (repeatable)")
	addCmd.Flags().BoolVar(&addNoFavicons, "no-favicons", false, "Do not fetch favicons")
	rootCmd.AddCommand(addCmd)
}

func runAdd(cmd *cobra.Command, args []string) error {
	tabs := make([]setaside.Tab, len(args))
	for i, u := range args {
		tabs[i] = setaside.Tab{URL: u}
		if i < len(addTitles) {
			tabs[i].Title = addTitles[i]
		}
		if !addNoFavicons {
			tabs[i].FaviconURL = faviconURL(u)
		}
	}

	client, closeClient, err := openClientWith(cmd, func(logger log.Logger) setaside.ClientOptions {
		if addNoFavicons {
			return setaside.ClientOptions{}
		}
		return setaside.ClientOptions{Capturer: capture.NewHTTP(logger)}
	})
	if err != nil {
		return err
	}
	defer closeClient()

	var col *setaside.Collection
	err = runWithSpinner(cmd.ErrOrStderr(), "Setting tabs aside", func() error {
		var err error
		col, err = client.Coordinator().SetAside(cmd.Context(), tabs)
		return err
	})
	if err != nil {
		return fmt.Errorf("set aside: %w", err)
	}

	if col == nil {
		if outputJSON {
			return outputAsJSON(cmd, nil)
		}
		printWarning(cmd.OutOrStdout(), "Nothing set aside: none of the URLs can be reopened later")
		return nil
	}
	if outputJSON {
		return outputAsJSON(cmd, viewCollection("", col))
	}
	printSuccess(cmd.OutOrStdout(), "Set aside %d tabs as %s", len(col.Items), col.ID)
	if skipped := len(args) - len(col.Items); skipped > 0 {
		printMuted(cmd.OutOrStdout(), "Skipped %d URLs that cannot be reopened", skipped)
	}
	return nil
}

// faviconURL guesses the conventional favicon location of a page.
func faviconURL(page string) string {
	u, err := url.Parse(page)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return ""
	}
	return u.Scheme + "://" + u.Host + "/favicon.ico"
}
