package metadata

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
)

// ErrInvalidValue is returned by File when a value is not a JSON document.
var ErrInvalidValue = errors.New("metadata value is not valid JSON")

// errTruncated marks a zero-length area file, usually a sync client mid-write.
var errTruncated = errors.New("metadata: area file is empty")

// FileOptions configures a File area.
type FileOptions struct {
	Quota  Quota
	Logger log.Logger
}

// File keeps an area in <dir>/<area>.json. The directory is expected to be shared
// between devices by an external file sync tool; edits made by other devices are
// picked up through fsnotify and reported as changes.
type File struct {
	area   string
	path   string
	quota  Quota
	logger log.Logger

	mu        sync.Mutex
	snapshot  map[string][]byte
	listeners listeners

	watcher *fsnotify.Watcher
	done    chan struct{}
	closed  sync.Once
}

// OpenFile opens (creating if needed) the area file in dir and starts watching it.
func OpenFile(dir, area string, opts FileOptions) (*File, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("metadata: create area directory: %w", err)
	}
	if opts.Quota == (Quota{}) {
		opts.Quota = DefaultQuota()
	}
	if opts.Logger == nil {
		opts.Logger = log.NewNopLogger()
	}

	f := &File{
		area:   area,
		path:   filepath.Join(dir, area+".json"),
		quota:  opts.Quota,
		logger: log.With(opts.Logger, "component", "metadata-file", "area", area),
		done:   make(chan struct{}),
	}

	values, err := f.read()
	if errors.Is(err, errTruncated) {
		values, err = make(map[string][]byte), nil
	}
	if err != nil {
		return nil, err
	}
	f.snapshot = values

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("metadata: create watcher: %w", err)
	}
	// Watch the directory: writes land via rename, which replaces the file's inode.
	if err := watcher.Add(dir); err != nil {
		_ = watcher.Close()
		return nil, fmt.Errorf("metadata: watch %s: %w", dir, err)
	}
	f.watcher = watcher
	go f.watch()

	return f, nil
}

// Close stops watching the area file.
func (f *File) Close() error {
	var err error
	f.closed.Do(func() {
		close(f.done)
		err = f.watcher.Close()
	})
	return err
}

// Area returns the area name.
func (f *File) Area() string { return f.area }

// GetAll returns every entry, after folding in any edits not yet observed.
func (f *File) GetAll(ctx context.Context) (map[string][]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.refreshLocked(); err != nil {
		return nil, err
	}
	return cloneValues(f.snapshot), nil
}

// Set stores value under key. value must be a JSON document.
func (f *File) Set(ctx context.Context, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	var compact bytes.Buffer
	if err := json.Compact(&compact, value); err != nil {
		return fmt.Errorf("metadata: %s: %w", key, ErrInvalidValue)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.refreshLocked(); err != nil {
		return err
	}
	if err := f.quota.check(key, compact.Bytes(), usageOf(f.snapshot, key)); err != nil {
		return err
	}

	next := cloneValues(f.snapshot)
	old, existed := next[key]
	next[key] = compact.Bytes()
	if err := f.write(next); err != nil {
		return err
	}
	f.snapshot = next

	c := Change{Area: f.area, Key: key, NewValue: append([]byte(nil), compact.Bytes()...)}
	if existed {
		c.OldValue = old
	}
	f.listeners.emit(c)
	return nil
}

// Remove deletes key. Removing an absent key is a no-op.
func (f *File) Remove(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.refreshLocked(); err != nil {
		return err
	}
	old, ok := f.snapshot[key]
	if !ok {
		return nil
	}
	next := cloneValues(f.snapshot)
	delete(next, key)
	if err := f.write(next); err != nil {
		return err
	}
	f.snapshot = next
	f.listeners.emit(Change{Area: f.area, Key: key, OldValue: old})
	return nil
}

// OnChange registers fn for local writes and for edits observed on disk.
func (f *File) OnChange(fn func(Change)) func() {
	return f.listeners.add(fn)
}

func (f *File) watch() {
	base := filepath.Base(f.path)
	for {
		select {
		case <-f.done:
			return
		case ev, ok := <-f.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(ev.Name) != base {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Remove) && !ev.Has(fsnotify.Rename) {
				continue
			}
			f.mu.Lock()
			err := f.refreshLocked()
			f.mu.Unlock()
			if err != nil {
				level.Warn(f.logger).Log("msg", "area file unreadable, keeping last snapshot", "err", err)
			}
		case err, ok := <-f.watcher.Errors:
			if !ok {
				return
			}
			level.Error(f.logger).Log("msg", "watcher error", "err", err)
		}
	}
}

// refreshLocked re-reads the file and emits the difference from the last snapshot.
func (f *File) refreshLocked() error {
	current, err := f.read()
	if errors.Is(err, errTruncated) {
		return nil
	}
	if err != nil {
		return err
	}
	for _, c := range diff(f.area, f.snapshot, current) {
		f.listeners.emit(c)
	}
	f.snapshot = current
	return nil
}

func (f *File) read() (map[string][]byte, error) {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return make(map[string][]byte), nil
	}
	if err != nil {
		return nil, fmt.Errorf("metadata: read area file: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, errTruncated
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("metadata: parse area file: %w", err)
	}
	values := make(map[string][]byte, len(raw))
	for k, v := range raw {
		var compact bytes.Buffer
		if err := json.Compact(&compact, v); err != nil {
			return nil, fmt.Errorf("metadata: parse area file: %s: %w", k, err)
		}
		values[k] = compact.Bytes()
	}
	return values, nil
}

// write replaces the area file atomically.
func (f *File) write(values map[string][]byte) error {
	raw := make(map[string]json.RawMessage, len(values))
	for k, v := range values {
		raw[k] = v
	}
	data, err := json.MarshalIndent(raw, "", "  ")
	if err != nil {
		return fmt.Errorf("metadata: encode area file: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(f.path), "."+filepath.Base(f.path)+".*")
	if err != nil {
		return fmt.Errorf("metadata: create temp file: %w", err)
	}
	success := false
	defer func() {
		if !success {
			_ = os.Remove(tmp.Name())
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("metadata: write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("metadata: sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("metadata: close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), f.path); err != nil {
		return fmt.Errorf("metadata: replace area file: %w", err)
	}
	success = true
	return nil
}
