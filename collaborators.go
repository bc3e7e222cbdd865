package setaside

import (
	"context"
	"net/url"

	"github.com/google/uuid"
	"github.com/hyperengineering/setaside/internal/metadata"
)

// MetadataStore is the quota-limited, synced key-value area holding collections.
// OnChange listeners are called for local and remote changes alike and must not
// block or call back into the store.
type MetadataStore interface {
	Area() string
	GetAll(ctx context.Context) (map[string][]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Remove(ctx context.Context, key string) error
	OnChange(fn func(metadata.Change)) (cancel func())
}

// BlobStore is the device-local store holding attachment records.
type BlobStore interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	GetAll(ctx context.Context) (map[string][]byte, error)
	Keys(ctx context.Context) ([]string, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Clear(ctx context.Context) error
}

// TabOpener opens a URL in the given destination (a window, a browser profile, or
// whatever the implementation understands).
type TabOpener interface {
	Open(ctx context.Context, url, destination string) error
}

// Capturer turns live tabs into Items with their attachments resolved. Attachments
// it cannot produce are left nil. An error matching ErrCaptureFailed means no
// attachments at all could be produced.
type Capturer interface {
	Capture(ctx context.Context, tabs []Tab) ([]Item, error)
}

// IDGenerator produces unique collection and item ids.
type IDGenerator interface {
	NewID() string
}

// UUIDs generates random UUID v4 ids.
type UUIDs struct{}

// NewID returns a new UUID v4 string.
func (UUIDs) NewID() string { return uuid.NewString() }

// OpenerFunc adapts a function to TabOpener.
type OpenerFunc func(ctx context.Context, url, destination string) error

// Open calls f.
func (f OpenerFunc) Open(ctx context.Context, url, destination string) error {
	return f(ctx, url, destination)
}

type noOpener struct{}

func (noOpener) Open(context.Context, string, string) error { return ErrOpenUnavailable }

// plainCapture produces items without attachments.
type plainCapture struct{}

func (plainCapture) Capture(_ context.Context, tabs []Tab) ([]Item, error) {
	return itemsFromTabs(tabs), nil
}

func itemsFromTabs(tabs []Tab) []Item {
	items := make([]Item, len(tabs))
	for i, t := range tabs {
		items[i] = Item{URL: t.URL, Title: t.Title}
	}
	return items
}

var supportedSchemes = map[string]bool{"http": true, "https": true, "ftp": true}

// Restorable reports whether a tab with this URL can be reopened later.
func Restorable(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	return supportedSchemes[u.Scheme]
}
