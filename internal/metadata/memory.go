package metadata

import (
	"context"
	"sync"
)

// memoryBacking is the state shared by every handle onto one in-memory area.
type memoryBacking struct {
	mu        sync.Mutex
	values    map[string][]byte
	listeners listeners
}

// Memory is an in-process area. Handles created with Peer share the same data, which
// lets tests play the part of a second device writing to the synced area.
type Memory struct {
	area    string
	quota   Quota
	backing *memoryBacking
	failSet error
}

// NewMemory creates an empty in-memory area with the default quota.
func NewMemory(area string) *Memory {
	return &Memory{
		area:    area,
		quota:   DefaultQuota(),
		backing: &memoryBacking{values: make(map[string][]byte)},
	}
}

// WithQuota replaces the quota enforced by this handle.
func (m *Memory) WithQuota(q Quota) *Memory {
	m.quota = q
	return m
}

// Peer returns another handle onto the same area, as another device would see it.
func (m *Memory) Peer() *Memory {
	return &Memory{area: m.area, quota: m.quota, backing: m.backing}
}

// FailWrites makes subsequent Set and Remove calls on this handle return err.
// Passing nil restores normal behaviour.
func (m *Memory) FailWrites(err error) {
	m.backing.mu.Lock()
	m.failSet = err
	m.backing.mu.Unlock()
}

// Area returns the area name.
func (m *Memory) Area() string { return m.area }

// GetAll returns a copy of every entry in the area.
func (m *Memory) GetAll(ctx context.Context) (map[string][]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.backing.mu.Lock()
	defer m.backing.mu.Unlock()
	return cloneValues(m.backing.values), nil
}

// Set stores value under key and notifies listeners.
func (m *Memory) Set(ctx context.Context, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b := m.backing
	b.mu.Lock()
	defer b.mu.Unlock()

	if m.failSet != nil {
		return m.failSet
	}
	if err := m.quota.check(key, value, usageOf(b.values, key)); err != nil {
		return err
	}

	old, existed := b.values[key]
	stored := append([]byte(nil), value...)
	b.values[key] = stored

	c := Change{Area: m.area, Key: key, NewValue: append([]byte(nil), stored...)}
	if existed {
		c.OldValue = old
	}
	// Emitting under the lock keeps notifications in write order.
	b.listeners.emit(c)
	return nil
}

// Remove deletes key. Removing an absent key is a no-op and emits nothing.
func (m *Memory) Remove(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b := m.backing
	b.mu.Lock()
	defer b.mu.Unlock()

	if m.failSet != nil {
		return m.failSet
	}
	old, ok := b.values[key]
	if !ok {
		return nil
	}
	delete(b.values, key)
	b.listeners.emit(Change{Area: m.area, Key: key, OldValue: old})
	return nil
}

// OnChange registers fn for every change made through any handle on the area.
// fn must not call back into the area.
func (m *Memory) OnChange(fn func(Change)) func() {
	return m.backing.listeners.add(fn)
}
