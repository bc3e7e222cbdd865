package setaside

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/go-kit/log/level"
)

// exportedCollection is a collection as written by ExportJSON.
type exportedCollection struct {
	ID        string `json:"id"`
	CreatedAt string `json:"createdAt"`
	Items     []Item `json:"items"`
}

func (e *exportedCollection) collection() (*Collection, error) {
	if _, ok := CollectionIDFromKey(CollectionKey(e.ID)); !ok {
		return nil, fmt.Errorf("invalid collection id %q", e.ID)
	}
	created, err := time.Parse(time.RFC3339Nano, e.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("collection %s: createdAt: %w", e.ID, err)
	}
	if len(e.Items) == 0 {
		return nil, fmt.Errorf("collection %s: %w", e.ID, ErrEmptyCollection)
	}

	col := &Collection{ID: e.ID, CreatedAt: created.UTC().Truncate(time.Millisecond)}
	seen := make(map[string]bool, len(e.Items))
	for _, it := range e.Items {
		if it.ID == "" || it.URL == "" {
			return nil, fmt.Errorf("collection %s: item without id or url", e.ID)
		}
		if seen[it.ID] {
			continue
		}
		seen[it.ID] = true
		col.Items = append(col.Items, it)
	}
	return col, nil
}

// ImportJSON reads an ExportJSON document and stores its collections. Existing
// collections are handled according to strategy. With dryRun set nothing is
// written and the result reports what would have happened.
func (c *Coordinator) ImportJSON(ctx context.Context, r io.Reader, strategy MergeStrategy, dryRun bool) (*ImportResult, error) {
	if err := c.waitReady(ctx); err != nil {
		return nil, err
	}

	dec := json.NewDecoder(r)
	result := &ImportResult{}

	token, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("read opening token: %w", err)
	}
	if delim, ok := token.(json.Delim); !ok || delim != '{' {
		return nil, fmt.Errorf("expected opening brace, got %v", token)
	}

	var version string
	for dec.More() {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		token, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("read field name: %w", err)
		}
		field, ok := token.(string)
		if !ok {
			return nil, fmt.Errorf("expected field name, got %v", token)
		}

		switch field {
		case "version":
			if err := dec.Decode(&version); err != nil {
				return nil, fmt.Errorf("decode version: %w", err)
			}
			if version != ExportVersion {
				return nil, fmt.Errorf("unsupported export version %q (expected %q)", version, ExportVersion)
			}
		case "collections":
			if version == "" {
				return nil, fmt.Errorf("version field must precede collections")
			}
			if err := c.importArray(ctx, dec, strategy, dryRun, result); err != nil {
				return result, fmt.Errorf("import collections: %w", err)
			}
		default:
			var discard any
			if err := dec.Decode(&discard); err != nil {
				return nil, fmt.Errorf("decode %s: %w", field, err)
			}
		}
	}

	if version == "" {
		return nil, fmt.Errorf("missing version field in export file")
	}
	stats.Operation("import", nil)
	return result, nil
}

func (c *Coordinator) importArray(ctx context.Context, dec *json.Decoder, strategy MergeStrategy, dryRun bool, result *ImportResult) error {
	token, err := dec.Token()
	if err != nil {
		return fmt.Errorf("read array start: %w", err)
	}
	if delim, ok := token.(json.Delim); !ok || delim != '[' {
		return fmt.Errorf("expected array, got %v", token)
	}

	for dec.More() {
		if err := ctx.Err(); err != nil {
			return err
		}

		var e exportedCollection
		if err := dec.Decode(&e); err != nil {
			return fmt.Errorf("decode collection: %w", err)
		}
		result.Total++

		col, err := e.collection()
		if err != nil {
			result.Errors = append(result.Errors, err.Error())
			continue
		}

		var outcome string
		err = c.queue.Do(ctx, col.ID, func() error {
			var err error
			outcome, err = c.importLocked(ctx, col, strategy, dryRun)
			return err
		})
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("collection %s: %v", col.ID, err))
			continue
		}
		switch outcome {
		case "created":
			result.Created++
		case "replaced":
			result.Replaced++
		default:
			result.Skipped++
		}
	}

	_, err = dec.Token()
	return err
}

func (c *Coordinator) importLocked(ctx context.Context, col *Collection, strategy MergeStrategy, dryRun bool) (string, error) {
	_, ok := c.get(col.ID)
	if !ok {
		if dryRun {
			return "created", nil
		}
		_, err := c.createLocked(ctx, col)
		return "created", err
	}

	if strategy != MergeStrategyReplace {
		return "skipped", nil
	}
	if dryRun {
		return "replaced", nil
	}
	return "replaced", c.updateLocked(ctx, col)
}

// updateLocked overwrites an existing collection. The metadata record is
// written first so a failed write leaves the stored attachments untouched.
func (c *Coordinator) updateLocked(ctx context.Context, col *Collection) error {
	value, err := Serialize(col)
	if err != nil {
		return err
	}
	key := col.Key()
	c.expect(key, value)
	if err := c.meta.Set(ctx, key, value); err != nil {
		c.unexpect(key)
		return fmt.Errorf("update collection %s: %w", col.ID, err)
	}
	c.put(col)

	att, err := encodeAttachments(col)
	if err == nil {
		err = c.blobs.Set(ctx, col.ID, att)
	}
	if err != nil {
		level.Warn(c.logger).Log("op", "import", "collection", col.ID, "msg", "attachments not stored", "error", err)
	}
	return nil
}
