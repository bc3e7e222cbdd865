package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/hyperengineering/setaside"
)

// outputAsJSON writes any value as formatted JSON to the command's stdout.
func outputAsJSON(cmd *cobra.Command, v interface{}) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// outputText prints text to the command's stdout.
func outputText(cmd *cobra.Command, format string, args ...interface{}) {
	fmt.Fprintf(cmd.OutOrStdout(), format, args...)
}

// outputError prints an error to w with any configured secret redacted.
func outputError(w io.Writer, err error) {
	msg := scrubSensitiveData(err.Error())
	if isTTY() {
		printError(w, "%s", msg)
		return
	}
	fmt.Fprintf(w, "Error: %s\n", msg)
}

// scrubSensitiveData removes the JWT secret and database password from msg.
func scrubSensitiveData(msg string) string {
	for _, secret := range []string{os.Getenv("SETASIDE_JWT_SECRET"), tokenSecret} {
		if secret != "" {
			msg = strings.ReplaceAll(msg, secret, "[REDACTED]")
		}
	}
	for _, dsn := range []string{cfgMetadataDSN, os.Getenv("SETASIDE_METADATA_DSN")} {
		if pw := dsnPassword(dsn); pw != "" {
			msg = strings.ReplaceAll(msg, pw, "[REDACTED]")
		}
	}
	return msg
}

// dsnPassword extracts the password of a postgres:// URL or a key=value DSN.
func dsnPassword(dsn string) string {
	if dsn == "" {
		return ""
	}
	if i := strings.Index(dsn, "://"); i >= 0 {
		rest := dsn[i+3:]
		at := strings.LastIndex(rest, "@")
		if at < 0 {
			return ""
		}
		if _, pw, ok := strings.Cut(rest[:at], ":"); ok {
			return pw
		}
		return ""
	}
	for _, field := range strings.Fields(dsn) {
		if pw, ok := strings.CutPrefix(field, "password="); ok {
			return strings.Trim(pw, "'")
		}
	}
	return ""
}

// CollectionView is the JSON shape of a listed collection.
type CollectionView struct {
	Ref       string     `json:"ref"`
	ID        string     `json:"id"`
	CreatedAt time.Time  `json:"created_at"`
	Items     []ItemView `json:"items"`
}

// ItemView is the JSON shape of a listed item. Attachments are reported by size.
type ItemView struct {
	ID           string `json:"id"`
	URL          string `json:"url"`
	Title        string `json:"title"`
	FaviconBytes int    `json:"favicon_bytes,omitempty"`
}

func viewCollection(ref string, col *setaside.Collection) CollectionView {
	v := CollectionView{Ref: ref, ID: col.ID, CreatedAt: col.CreatedAt, Items: make([]ItemView, len(col.Items))}
	for i, it := range col.Items {
		v.Items[i] = ItemView{ID: it.ID, URL: it.URL, Title: it.Title, FaviconBytes: len(it.Favicon)}
	}
	return v
}

// outputCollections prints collections as a table, as markdown, or as JSON.
func outputCollections(cmd *cobra.Command, views []CollectionView, long bool) error {
	if outputJSON {
		if views == nil {
			views = []CollectionView{}
		}
		return outputAsJSON(cmd, views)
	}

	out := cmd.OutOrStdout()
	if len(views) == 0 {
		fmt.Fprintln(out, "No collections set aside.")
		return nil
	}
	if long {
		fmt.Fprintln(out, renderMarkdown(collectionsMarkdown(views)))
		return nil
	}

	rows := make([][]string, len(views))
	for i, v := range views {
		first := ""
		if len(v.Items) > 0 {
			first = itemLabel(v.Items[0])
		}
		rows[i] = []string{v.Ref, shortID(v.ID), formatAge(v.CreatedAt), strconv.Itoa(len(v.Items)), truncate(first, 60)}
	}
	fmt.Fprint(out, renderTable([]string{"REF", "ID", "CREATED", "TABS", "FIRST TAB"}, rows))
	return nil
}

// collectionsMarkdown renders every collection as a section with a numbered
// list of links.
func collectionsMarkdown(views []CollectionView) string {
	var sb strings.Builder
	for _, v := range views {
		fmt.Fprintf(&sb, "## %s · %s\n\n", v.Ref, v.CreatedAt.Local().Format("Mon 2 Jan 2006 15:04"))
		fmt.Fprintf(&sb, "`%s` · %d tabs\n\n", v.ID, len(v.Items))
		for i, it := range v.Items {
			fmt.Fprintf(&sb, "%d. [%s](%s)\n", i+1, escapeMarkdown(itemLabel(it)), it.URL)
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

func itemLabel(it ItemView) string {
	if it.Title != "" {
		return it.Title
	}
	return it.URL
}

var markdownEscaper = strings.NewReplacer("[", `\[`, "]", `\]`, "*", `\*`, "_", `\_`, "`", "\\`")

func escapeMarkdown(s string) string {
	return markdownEscaper.Replace(s)
}

// formatAge formats a timestamp relative to now, falling back to the date after
// a week.
func formatAge(t time.Time) string {
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	case d < 7*24*time.Hour:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	default:
		return t.Local().Format("2006-01-02")
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
