package setaside

import (
	"time"
)

// Item is one saved tab. Favicon and Thumbnail are device-local attachments and are
// never written to the metadata store.
type Item struct {
	ID        string `json:"id"`
	URL       string `json:"url"`
	Title     string `json:"title"`
	Favicon   []byte `json:"favicon"`
	Thumbnail []byte `json:"thumbnail"`
}

// Collection is a timestamped group of saved tabs. Items keeps insertion order.
type Collection struct {
	ID        string
	CreatedAt time.Time
	Items     []Item
}

// Key returns the metadata store key of the collection.
func (c *Collection) Key() string {
	return CollectionKey(c.ID)
}

// Item returns the item with the given id.
func (c *Collection) Item(id string) (Item, bool) {
	for _, it := range c.Items {
		if it.ID == id {
			return it, true
		}
	}
	return Item{}, false
}

// Without returns a copy of c with the item id removed. The receiver is unchanged.
func (c *Collection) Without(id string) *Collection {
	out := &Collection{ID: c.ID, CreatedAt: c.CreatedAt, Items: make([]Item, 0, len(c.Items))}
	for _, it := range c.Items {
		if it.ID != id {
			out.Items = append(out.Items, it)
		}
	}
	return out
}

// Clone returns a copy of c that shares no slices with it.
func (c *Collection) Clone() *Collection {
	out := &Collection{ID: c.ID, CreatedAt: c.CreatedAt, Items: make([]Item, len(c.Items))}
	for i, it := range c.Items {
		it.Favicon = cloneBytes(it.Favicon)
		it.Thumbnail = cloneBytes(it.Thumbnail)
		out.Items[i] = it
	}
	return out
}

// Tab is a live browser tab offered for setting aside.
type Tab struct {
	URL        string `json:"url"`
	Title      string `json:"title"`
	FaviconURL string `json:"faviconUrl,omitempty"`
	Incognito  bool   `json:"incognito,omitempty"`
	// Discarded tabs are not loaded; capture skips their attachments.
	Discarded bool `json:"discarded,omitempty"`
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	return append([]byte{}, b...)
}
