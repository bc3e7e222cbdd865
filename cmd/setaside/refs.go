package main

import (
	"fmt"
	"strconv"

	"github.com/hyperengineering/setaside"
)

// listed assigns session references to every collection in listing order, so
// C2 names the same collection in `list` and in a following `restore`.
func listed(coord *setaside.Coordinator) (*setaside.Session, []*setaside.Collection) {
	session := setaside.NewSession()
	cols := coord.Collections()
	for _, col := range cols {
		session.Track(col.ID)
	}
	return session, cols
}

// findCollection resolves a collection reference: C1, a full or prefixed ID, or a
// snippet of its URLs or titles.
func findCollection(coord *setaside.Coordinator, ref string) (*setaside.Collection, error) {
	session, cols := listed(coord)
	ids := make([]string, len(cols))
	byID := make(map[string]*setaside.Collection, len(cols))
	for i, col := range cols {
		ids[i] = col.ID
		byID[col.ID] = col
	}
	id, ok := session.Match(ref, ids, func(id string) string {
		return setaside.Describe(byID[id])
	})
	if !ok {
		return nil, fmt.Errorf("%w: %q (see 'setaside list')", setaside.ErrNotFound, ref)
	}
	return byID[id], nil
}

// findItem resolves an item by ID or by 1-based position.
func findItem(col *setaside.Collection, ref string) (setaside.Item, error) {
	if it, ok := col.Item(ref); ok {
		return it, nil
	}
	if n, err := strconv.Atoi(ref); err == nil && n >= 1 && n <= len(col.Items) {
		return col.Items[n-1], nil
	}
	return setaside.Item{}, fmt.Errorf("no item %q in collection %s (%d tabs)", ref, shortID(col.ID), len(col.Items))
}
