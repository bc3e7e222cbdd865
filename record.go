package setaside

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// KeyPrefix prefixes every collection key in the metadata store.
const KeyPrefix = "collection:"

// TimeFormat is the createdAt layout: ISO-8601 in UTC with milliseconds.
const TimeFormat = "2006-01-02T15:04:05.000Z07:00"

var keyRegex = regexp.MustCompile(`^collection:[0-9a-f]{8}-([0-9a-f]{4}-){3}[0-9a-f]{12}$`)

// CollectionKey returns the metadata store key for a collection id.
func CollectionKey(id string) string {
	return KeyPrefix + id
}

// CollectionIDFromKey extracts the collection id from a metadata store key. Keys
// that do not have the collection key form are reported as not ok.
func CollectionIDFromKey(key string) (string, bool) {
	if !keyRegex.MatchString(key) {
		return "", false
	}
	return strings.TrimPrefix(key, KeyPrefix), true
}

type collectionRecord struct {
	ID        string       `json:"id"`
	CreatedAt string       `json:"createdAt"`
	Items     []itemRecord `json:"items"`
}

type itemRecord struct {
	ID    string `json:"id"`
	URL   string `json:"url"`
	Title string `json:"title"`
}

const collectionSchema = `{
	"type": "object",
	"required": ["id", "createdAt", "items"],
	"properties": {
		"id": {"type": "string", "pattern": "^[0-9a-f]{8}-([0-9a-f]{4}-){3}[0-9a-f]{12}$"},
		"createdAt": {"type": "string", "minLength": 1},
		"items": {
			"type": "array",
			"minItems": 1,
			"items": {
				"type": "object",
				"required": ["id", "url"],
				"properties": {
					"id": {"type": "string", "minLength": 1},
					"url": {"type": "string"},
					"title": {"type": "string"}
				}
			}
		}
	}
}`

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
	schemaErr  error
)

func recordSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		doc, err := jsonschema.UnmarshalJSON(strings.NewReader(collectionSchema))
		if err != nil {
			schemaErr = fmt.Errorf("parse collection schema: %w", err)
			return
		}
		c := jsonschema.NewCompiler()
		if err := c.AddResource("collection.json", doc); err != nil {
			schemaErr = fmt.Errorf("add collection schema: %w", err)
			return
		}
		schema, schemaErr = c.Compile("collection.json")
	})
	return schema, schemaErr
}

// Serialize encodes c in its metadata store form: attachments are left out.
func Serialize(c *Collection) ([]byte, error) {
	if len(c.Items) == 0 {
		return nil, ErrEmptyCollection
	}
	rec := collectionRecord{
		ID:        c.ID,
		CreatedAt: formatTime(c.CreatedAt),
		Items:     make([]itemRecord, len(c.Items)),
	}
	for i, it := range c.Items {
		rec.Items[i] = itemRecord{ID: it.ID, URL: it.URL, Title: it.Title}
	}
	return json.Marshal(rec)
}

// Deserialize decodes a metadata store value. Attachments of the result are nil.
// Failures match ErrMalformedRecord.
func Deserialize(data []byte) (*Collection, error) {
	sch, err := recordSchema()
	if err != nil {
		return nil, err
	}
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return nil, &RecordError{Err: err}
	}
	if err := sch.Validate(doc); err != nil {
		return nil, &RecordError{Err: err}
	}

	var rec collectionRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, &RecordError{Key: CollectionKey(rec.ID), Err: err}
	}
	created, err := time.Parse(time.RFC3339Nano, rec.CreatedAt)
	if err != nil {
		return nil, &RecordError{Key: CollectionKey(rec.ID), Err: fmt.Errorf("createdAt: %w", err)}
	}

	c := &Collection{
		ID:        rec.ID,
		CreatedAt: created.UTC().Truncate(time.Millisecond),
		Items:     make([]Item, 0, len(rec.Items)),
	}
	seen := make(map[string]bool, len(rec.Items))
	for _, it := range rec.Items {
		if seen[it.ID] {
			return nil, &RecordError{Key: CollectionKey(rec.ID), Err: fmt.Errorf("duplicate item %s", it.ID)}
		}
		seen[it.ID] = true
		c.Items = append(c.Items, Item{ID: it.ID, URL: it.URL, Title: it.Title})
	}
	return c, nil
}

// MarshalJSON renders the collection with its attachments base64 encoded.
func (c Collection) MarshalJSON() ([]byte, error) {
	items := c.Items
	if items == nil {
		items = []Item{}
	}
	return json.Marshal(struct {
		ID        string `json:"id"`
		CreatedAt string `json:"createdAt"`
		Items     []Item `json:"items"`
	}{c.ID, formatTime(c.CreatedAt), items})
}

func formatTime(t time.Time) string {
	return t.UTC().Format(TimeFormat)
}

// attachmentRecord is the blob store value for one collection.
type attachmentRecord struct {
	ID    string                    `json:"id"`
	Items map[string]attachmentPair `json:"items"`
}

type attachmentPair struct {
	Favicon   []byte `json:"favicon"`
	Thumbnail []byte `json:"thumbnail"`
}

func encodeAttachments(c *Collection) ([]byte, error) {
	rec := attachmentRecord{ID: c.ID, Items: make(map[string]attachmentPair, len(c.Items))}
	for _, it := range c.Items {
		rec.Items[it.ID] = attachmentPair{Favicon: it.Favicon, Thumbnail: it.Thumbnail}
	}
	return json.Marshal(rec)
}

func decodeAttachments(key string, data []byte) (attachmentRecord, error) {
	var rec attachmentRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return rec, &RecordError{Key: key, Err: err}
	}
	if rec.ID != key {
		return rec, &RecordError{Key: key, Err: fmt.Errorf("blob record names collection %q", rec.ID)}
	}
	return rec, nil
}

// merge copies attachments onto the matching items of c. Items without an entry
// keep what they have.
func (rec attachmentRecord) merge(c *Collection) {
	for i := range c.Items {
		pair, ok := rec.Items[c.Items[i].ID]
		if !ok {
			continue
		}
		c.Items[i].Favicon = pair.Favicon
		c.Items[i].Thumbnail = pair.Thumbnail
	}
}

// sameValue compares two metadata values as JSON documents. nil means absent.
func sameValue(a, b []byte) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return bytes.Equal(compactJSON(a), compactJSON(b))
}

func compactJSON(v []byte) []byte {
	var buf bytes.Buffer
	if err := json.Compact(&buf, v); err != nil {
		return v
	}
	return buf.Bytes()
}
