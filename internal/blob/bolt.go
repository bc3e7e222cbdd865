package blob

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"go.etcd.io/bbolt"
)

var bucketBlobs = []byte("blobs")

// Bolt stores attachment records in a single bbolt bucket.
type Bolt struct {
	path    string
	timeout time.Duration

	initOnce sync.Once
	initErr  error
	db       *bbolt.DB

	mu     sync.RWMutex
	closed bool
}

// NewBolt returns a store backed by the bbolt file at path. Nothing is opened until
// the first operation.
func NewBolt(path string) *Bolt {
	return &Bolt{path: path, timeout: time.Second}
}

func (b *Bolt) handle() (*bbolt.DB, error) {
	b.initOnce.Do(func() {
		b.db, b.initErr = openBolt(b.path, b.timeout)
	})
	if b.initErr != nil {
		return nil, ioErr("open", "", b.initErr)
	}
	return b.db, nil
}

func openBolt(path string, timeout time.Duration) (*bbolt.DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create store directory: %w", err)
	}
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: timeout})
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketBlobs); err != nil {
			return fmt.Errorf("creating bucket %s: %w", bucketBlobs, err)
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func (b *Bolt) ready(op, key string) (*bbolt.DB, func(), error) {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return nil, nil, ioErr(op, key, ErrClosed)
	}
	db, err := b.handle()
	if err != nil {
		b.mu.RUnlock()
		return nil, nil, err
	}
	return db, b.mu.RUnlock, nil
}

// Get returns the record stored under key.
func (b *Bolt) Get(_ context.Context, key string) ([]byte, bool, error) {
	db, done, err := b.ready("get", key)
	if err != nil {
		return nil, false, err
	}
	defer done()

	var data []byte
	err = db.View(func(tx *bbolt.Tx) error {
		val := tx.Bucket(bucketBlobs).Get([]byte(key))
		if val == nil {
			return nil
		}
		data = make([]byte, len(val))
		copy(data, val)
		return nil
	})
	if err != nil {
		return nil, false, ioErr("get", key, err)
	}
	return data, data != nil, nil
}

// GetAll returns every record keyed by its key.
func (b *Bolt) GetAll(_ context.Context) (map[string][]byte, error) {
	db, done, err := b.ready("get all", "")
	if err != nil {
		return nil, err
	}
	defer done()

	out := make(map[string][]byte)
	err = db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketBlobs).ForEach(func(k, v []byte) error {
			data := make([]byte, len(v))
			copy(data, v)
			out[string(k)] = data
			return nil
		})
	})
	if err != nil {
		return nil, ioErr("get all", "", err)
	}
	return out, nil
}

// Keys returns every key in ascending order.
func (b *Bolt) Keys(_ context.Context) ([]string, error) {
	db, done, err := b.ready("keys", "")
	if err != nil {
		return nil, err
	}
	defer done()

	var keys []string
	err = db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketBlobs).ForEach(func(k, _ []byte) error {
			keys = append(keys, string(k))
			return nil
		})
	})
	if err != nil {
		return nil, ioErr("keys", "", err)
	}
	sort.Strings(keys)
	return keys, nil
}

// Set stores value under key.
func (b *Bolt) Set(_ context.Context, key string, value []byte) error {
	db, done, err := b.ready("set", key)
	if err != nil {
		return err
	}
	defer done()

	if value == nil {
		value = []byte{}
	}
	return ioErr("set", key, db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketBlobs).Put([]byte(key), value)
	}))
}

// Delete removes key. Deleting an absent key succeeds.
func (b *Bolt) Delete(_ context.Context, key string) error {
	db, done, err := b.ready("delete", key)
	if err != nil {
		return err
	}
	defer done()

	return ioErr("delete", key, db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketBlobs).Delete([]byte(key))
	}))
}

// Clear removes every record.
func (b *Bolt) Clear(_ context.Context) error {
	db, done, err := b.ready("clear", "")
	if err != nil {
		return err
	}
	defer done()

	return ioErr("clear", "", db.Update(func(tx *bbolt.Tx) error {
		if err := tx.DeleteBucket(bucketBlobs); err != nil {
			return err
		}
		_, err := tx.CreateBucket(bucketBlobs)
		return err
	}))
}

// Close closes the database if it was opened.
func (b *Bolt) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true
	if b.db != nil {
		return b.db.Close()
	}
	return nil
}
