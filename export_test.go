package setaside

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestExportJSON_Format(t *testing.T) {
	f := newFixture(t)
	col := testCollection(idA, "https://a")
	col.Items[0].Favicon = []byte("hi")
	seed(t, f.meta, f.blobs, col)
	c := f.start(t)

	var buf bytes.Buffer
	if err := c.ExportJSON(context.Background(), "work", &buf); err != nil {
		t.Fatalf("ExportJSON failed: %v", err)
	}

	var doc struct {
		Version     string            `json:"version"`
		ExportedAt  string            `json:"exported_at"`
		Profile     string            `json:"profile"`
		Collections []json.RawMessage `json:"collections"`
	}
	if err := json.Unmarshal(buf.Bytes(), &doc); err != nil {
		t.Fatalf("export is not valid JSON: %v\n%s", err, buf.String())
	}
	if doc.Version != ExportVersion || doc.Profile != "work" || doc.ExportedAt != "2024-03-01T12:00:00.000Z" {
		t.Errorf("header = %+v", doc)
	}
	if len(doc.Collections) != 1 || !strings.Contains(string(doc.Collections[0]), `"favicon":"aGk="`) {
		t.Errorf("collections = %s, want one with its favicon", doc.Collections)
	}
}

func TestExportJSON_Empty(t *testing.T) {
	f := newFixture(t)
	c := f.start(t)

	var buf bytes.Buffer
	if err := c.ExportJSON(context.Background(), "default", &buf); err != nil {
		t.Fatalf("ExportJSON failed: %v", err)
	}
	if !strings.HasSuffix(buf.String(), `"collections":[]}`) {
		t.Errorf("export = %s, want an empty collections array", buf.String())
	}
}

func TestImportJSON_RoundTrip(t *testing.T) {
	src := newFixture(t)
	a := testCollection(idA, "https://a", "https://b")
	a.Items[1].Thumbnail = []byte("thumb")
	seed(t, src.meta, src.blobs, a)
	seed(t, src.meta, src.blobs, testCollection(idB, "https://c"))
	var buf bytes.Buffer
	if err := src.start(t).ExportJSON(context.Background(), "default", &buf); err != nil {
		t.Fatalf("ExportJSON failed: %v", err)
	}

	dst := newFixture(t)
	c := dst.start(t)
	res, err := c.ImportJSON(context.Background(), &buf, MergeStrategySkip, false)
	if err != nil {
		t.Fatalf("ImportJSON failed: %v", err)
	}
	if diff := cmp.Diff(&ImportResult{Total: 2, Created: 2}, res); diff != "" {
		t.Errorf("result mismatch (-want +got):\n%s", diff)
	}

	got, ok := c.Collection(idA)
	if !ok {
		t.Fatal("imported collection missing")
	}
	if diff := cmp.Diff(a, got); diff != "" {
		t.Errorf("imported collection mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{idA, idB}, dst.blobKeys(t)); diff != "" {
		t.Errorf("blob keys mismatch (-want +got):\n%s", diff)
	}
}

func TestImportJSON_Strategies(t *testing.T) {
	doc := `{"version":"1.0","collections":[{"id":"` + idA + `","createdAt":"2024-01-02T03:04:05.678Z","items":[` +
		`{"id":"0a0a0a0a-item-0","url":"https://a","title":"Page 0"},` +
		`{"id":"new","url":"https://new","title":"New"}]}]}`

	tests := []struct {
		strategy  MergeStrategy
		dryRun    bool
		want      ImportResult
		wantItems int
	}{
		{MergeStrategySkip, false, ImportResult{Total: 1, Skipped: 1}, 1},
		{MergeStrategyReplace, false, ImportResult{Total: 1, Replaced: 1}, 2},
		{MergeStrategyReplace, true, ImportResult{Total: 1, Replaced: 1}, 1},
	}

	for _, tt := range tests {
		name := string(tt.strategy)
		if tt.dryRun {
			name += " dry run"
		}
		t.Run(name, func(t *testing.T) {
			f := newFixture(t)
			seed(t, f.meta, f.blobs, testCollection(idA, "https://a"))
			c := f.start(t)

			res, err := c.ImportJSON(context.Background(), strings.NewReader(doc), tt.strategy, tt.dryRun)
			if err != nil {
				t.Fatalf("ImportJSON failed: %v", err)
			}
			if diff := cmp.Diff(&tt.want, res); diff != "" {
				t.Errorf("result mismatch (-want +got):\n%s", diff)
			}
			got, _ := c.Collection(idA)
			if len(got.Items) != tt.wantItems {
				t.Errorf("collection has %d items, want %d", len(got.Items), tt.wantItems)
			}
			stored, err := Deserialize(f.metaKeys(t)[CollectionKey(idA)])
			if err != nil {
				t.Fatalf("stored record does not decode: %v", err)
			}
			if len(stored.Items) != tt.wantItems {
				t.Errorf("stored record has %d items, want %d", len(stored.Items), tt.wantItems)
			}
		})
	}
}

func TestImportJSON_ReplaceFailureKeepsAttachments(t *testing.T) {
	f := newFixture(t)
	a := testCollection(idA, "https://a")
	a.Items[0].Favicon = []byte("icon")
	seed(t, f.meta, f.blobs, a)
	c := f.start(t)
	before, ok, err := f.blobs.Get(context.Background(), idA)
	if err != nil || !ok {
		t.Fatalf("seeded blob record missing: %v", err)
	}

	f.meta.FailWrites(errors.New("quota exceeded"))
	doc := `{"version":"1.0","collections":[{"id":"` + idA + `","createdAt":"2024-01-02T03:04:05.678Z","items":[` +
		`{"id":"0a0a0a0a-item-0","url":"https://a","title":"Page 0"}]}]}`
	res, err := c.ImportJSON(context.Background(), strings.NewReader(doc), MergeStrategyReplace, false)
	if err != nil {
		t.Fatalf("ImportJSON failed: %v", err)
	}
	if res.Replaced != 0 || len(res.Errors) != 1 {
		t.Errorf("result = %+v, want one error and nothing replaced", res)
	}

	after, _, err := f.blobs.Get(context.Background(), idA)
	if err != nil {
		t.Fatalf("Get blob failed: %v", err)
	}
	if !bytes.Equal(before, after) {
		t.Errorf("blob record changed after failed replace:\n got %s\nwant %s", after, before)
	}
	got, _ := c.Collection(idA)
	if diff := cmp.Diff(a, got); diff != "" {
		t.Errorf("collection changed after failed replace (-want +got):\n%s", diff)
	}
}

func TestImportJSON_BadInput(t *testing.T) {
	tests := []struct {
		name    string
		doc     string
		wantErr bool
		want    ImportResult
	}{
		{name: "not an object", doc: `[]`, wantErr: true},
		{name: "wrong version", doc: `{"version":"9.9","collections":[]}`, wantErr: true},
		{name: "no version", doc: `{"collections":[]}`, wantErr: true},
		{
			name: "invalid entries are reported",
			doc: `{"version":"1.0","collections":[` +
				`{"id":"nope","createdAt":"2024-01-01T00:00:00Z","items":[{"id":"x","url":"u"}]},` +
				`{"id":"` + idB + `","createdAt":"2024-01-01T00:00:00Z","items":[]},` +
				`{"id":"` + idC + `","createdAt":"2024-01-01T00:00:00Z","items":[{"id":"x","url":"https://x"}]}]}`,
			want: ImportResult{Total: 3, Created: 1},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			c := f.start(t)

			res, err := c.ImportJSON(context.Background(), strings.NewReader(tt.doc), MergeStrategySkip, false)
			if tt.wantErr {
				if err == nil {
					t.Errorf("ImportJSON succeeded, want error")
				}
				return
			}
			if err != nil {
				t.Fatalf("ImportJSON failed: %v", err)
			}
			if len(res.Errors) != 2 {
				t.Errorf("Errors = %v, want 2 entries", res.Errors)
			}
			res.Errors = nil
			if diff := cmp.Diff(&tt.want, res); diff != "" {
				t.Errorf("result mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestParseMergeStrategy(t *testing.T) {
	for in, want := range map[string]MergeStrategy{"": MergeStrategySkip, "skip": MergeStrategySkip, "replace": MergeStrategyReplace} {
		got, err := ParseMergeStrategy(in)
		if err != nil || got != want {
			t.Errorf("ParseMergeStrategy(%q) = %q, %v; want %q", in, got, err, want)
		}
	}
	for _, in := range []string{"upsert", "merge"} {
		if _, err := ParseMergeStrategy(in); err == nil {
			t.Errorf("ParseMergeStrategy(%q) succeeded, want error", in)
		}
	}
}
