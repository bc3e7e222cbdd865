// Package metadata provides the quota-limited, multi-device key-value areas that hold
// Collection metadata. Every backend reports every change to its area, local or
// remote, to the listeners registered with OnChange.
package metadata

import (
	"bytes"
	"sort"
	"sync"
)

// Change describes one key transition in an area. A nil OldValue means the key was
// created, a nil NewValue means it was removed.
type Change struct {
	Area     string
	Key      string
	OldValue []byte
	NewValue []byte
}

// listeners fans changes out to registered callbacks in registration order.
type listeners struct {
	mu   sync.Mutex
	next int
	fns  map[int]func(Change)
}

func (l *listeners) add(fn func(Change)) func() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.fns == nil {
		l.fns = make(map[int]func(Change))
	}
	id := l.next
	l.next++
	l.fns[id] = fn
	return func() {
		l.mu.Lock()
		delete(l.fns, id)
		l.mu.Unlock()
	}
}

func (l *listeners) emit(c Change) {
	l.mu.Lock()
	ids := make([]int, 0, len(l.fns))
	for id := range l.fns {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	fns := make([]func(Change), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, l.fns[id])
	}
	l.mu.Unlock()

	for _, fn := range fns {
		fn(c)
	}
}

// diff returns the changes that turn before into after, sorted by key.
func diff(area string, before, after map[string][]byte) []Change {
	var changes []Change
	for key, old := range before {
		cur, ok := after[key]
		if !ok {
			changes = append(changes, Change{Area: area, Key: key, OldValue: old})
			continue
		}
		if !bytes.Equal(old, cur) {
			changes = append(changes, Change{Area: area, Key: key, OldValue: old, NewValue: cur})
		}
	}
	for key, cur := range after {
		if _, ok := before[key]; !ok {
			changes = append(changes, Change{Area: area, Key: key, NewValue: cur})
		}
	}
	sort.Slice(changes, func(i, j int) bool { return changes[i].Key < changes[j].Key })
	return changes
}

func cloneValues(m map[string][]byte) map[string][]byte {
	out := make(map[string][]byte, len(m))
	for k, v := range m {
		out[k] = append([]byte(nil), v...)
	}
	return out
}
