package setaside

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
)

// ExportVersion is the current version of the export format.
const ExportVersion = "1.0"

// MergeStrategy defines how to handle collections that already exist during
// import. Imported items are never added to an existing collection.
type MergeStrategy string

const (
	// MergeStrategySkip skips collections that already exist (by ID). Default.
	MergeStrategySkip MergeStrategy = "skip"
	// MergeStrategyReplace replaces existing collections with the imported version.
	MergeStrategyReplace MergeStrategy = "replace"
)

// ParseMergeStrategy returns the strategy named s. Empty means skip.
func ParseMergeStrategy(s string) (MergeStrategy, error) {
	switch MergeStrategy(s) {
	case "", MergeStrategySkip:
		return MergeStrategySkip, nil
	case MergeStrategyReplace:
		return MergeStrategyReplace, nil
	}
	return "", fmt.Errorf("unknown merge strategy %q (want skip or replace)", s)
}

// ImportResult summarizes an import operation.
type ImportResult struct {
	Total    int      `json:"total"`
	Created  int      `json:"created"`
	Replaced int      `json:"replaced"`
	Skipped  int      `json:"skipped"`
	Errors   []string `json:"errors,omitempty"`
}

// ExportJSON streams every collection, attachments included, as one JSON document:
//
//	{"version":"1.0","exported_at":...,"profile":...,"collections":[...]}
func (c *Coordinator) ExportJSON(ctx context.Context, profileID string, w io.Writer) error {
	if err := c.waitReady(ctx); err != nil {
		return err
	}

	header := fmt.Sprintf(`{"version":%s,"exported_at":%s,"profile":%s,"collections":[`,
		jsonString(ExportVersion),
		jsonString(formatTime(c.now())),
		jsonString(profileID),
	)
	if _, err := io.WriteString(w, header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	enc := json.NewEncoder(w)
	for i, col := range c.Collections() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if i > 0 {
			if _, err := io.WriteString(w, ","); err != nil {
				return fmt.Errorf("write separator: %w", err)
			}
		}
		if err := enc.Encode(col); err != nil {
			return fmt.Errorf("encode collection %s: %w", col.ID, err)
		}
	}

	if _, err := io.WriteString(w, "]}"); err != nil {
		return fmt.Errorf("write footer: %w", err)
	}
	stats.Operation("export", nil)
	return nil
}

func jsonString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}
