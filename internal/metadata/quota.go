package metadata

import (
	"errors"
	"fmt"
)

// ErrQuotaExceeded is returned when a write would exceed the area's capacity.
var ErrQuotaExceeded = errors.New("metadata quota exceeded")

// Quota limits mirror the browser sync storage area.
type Quota struct {
	// TotalBytes caps the summed size of all keys and values.
	TotalBytes int
	// ItemBytes caps the size of a single key plus its value.
	ItemBytes int
	// MaxItems caps the number of keys.
	MaxItems int
}

// DefaultQuota returns the sync storage limits: 100 KiB total, 8 KiB per item,
// 512 items.
func DefaultQuota() Quota {
	return Quota{TotalBytes: 102400, ItemBytes: 8192, MaxItems: 512}
}

// QuotaError reports which limit a write would have exceeded.
// Extractable via errors.As(); matches ErrQuotaExceeded via errors.Is().
type QuotaError struct {
	Key   string
	Limit string
	Size  int
	Max   int
}

func (e *QuotaError) Error() string {
	return fmt.Sprintf("metadata: %s: %s would be %d, limit %d", e.Key, e.Limit, e.Size, e.Max)
}

func (e *QuotaError) Is(target error) bool {
	return target == ErrQuotaExceeded
}

// usage describes an area's current occupancy as seen by a pending write.
type usage struct {
	bytes    int
	items    int
	existing int // size of the key's current entry, 0 if absent
	present  bool
}

func usageOf(values map[string][]byte, key string) usage {
	u := usage{items: len(values)}
	for k, v := range values {
		u.bytes += len(k) + len(v)
	}
	if cur, ok := values[key]; ok {
		u.existing = len(key) + len(cur)
		u.present = true
	}
	return u
}

// check reports whether writing value under key fits. A zero limit disables that check.
func (q Quota) check(key string, value []byte, u usage) error {
	size := len(key) + len(value)
	if q.ItemBytes > 0 && size > q.ItemBytes {
		return &QuotaError{Key: key, Limit: "item bytes", Size: size, Max: q.ItemBytes}
	}
	if total := u.bytes - u.existing + size; q.TotalBytes > 0 && total > q.TotalBytes {
		return &QuotaError{Key: key, Limit: "total bytes", Size: total, Max: q.TotalBytes}
	}
	if !u.present && q.MaxItems > 0 && u.items+1 > q.MaxItems {
		return &QuotaError{Key: key, Limit: "items", Size: u.items + 1, Max: q.MaxItems}
	}
	return nil
}
