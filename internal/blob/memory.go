package blob

import (
	"context"
	"sort"
	"sync"
)

// Memory is an in-process blob store.
type Memory struct {
	mu      sync.Mutex
	records map[string][]byte
	fail    error
}

// NewMemory returns an empty in-process store.
func NewMemory() *Memory {
	return &Memory{records: make(map[string][]byte)}
}

// Fail makes every subsequent operation return err wrapped as a storage failure.
// A nil err restores normal operation.
func (m *Memory) Fail(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fail = err
}

// Get returns the record stored under key.
func (m *Memory) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.fail != nil {
		return nil, false, ioErr("get", key, m.fail)
	}
	v, ok := m.records[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), v...), true, nil
}

// GetAll returns a copy of every record.
func (m *Memory) GetAll(_ context.Context) (map[string][]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.fail != nil {
		return nil, ioErr("get all", "", m.fail)
	}
	out := make(map[string][]byte, len(m.records))
	for k, v := range m.records {
		out[k] = append([]byte(nil), v...)
	}
	return out, nil
}

// Keys returns every key in ascending order.
func (m *Memory) Keys(_ context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.fail != nil {
		return nil, ioErr("keys", "", m.fail)
	}
	keys := make([]string, 0, len(m.records))
	for k := range m.records {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

// Set stores a copy of value under key.
func (m *Memory) Set(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.fail != nil {
		return ioErr("set", key, m.fail)
	}
	m.records[key] = append([]byte{}, value...)
	return nil
}

// Delete removes key.
func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.fail != nil {
		return ioErr("delete", key, m.fail)
	}
	delete(m.records, key)
	return nil
}

// Clear removes every record.
func (m *Memory) Clear(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.fail != nil {
		return ioErr("clear", "", m.fail)
	}
	m.records = make(map[string][]byte)
	return nil
}

// Close is a no-op.
func (m *Memory) Close() error { return nil }
