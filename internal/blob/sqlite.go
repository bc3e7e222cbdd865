package blob

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/hyperengineering/setaside/internal/blob/migrations"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"
)

// ErrClosed is returned when operating on a closed store.
var ErrClosed = errors.New("store is closed")

// SQLite stores attachment records in a local SQLite database. Each overwrite of a
// key bumps its version.
type SQLite struct {
	path string

	initOnce sync.Once
	initErr  error
	db       *sql.DB

	mu     sync.RWMutex
	closed bool
}

// NewSQLite returns a store backed by the database at path. Nothing is opened until
// the first operation.
func NewSQLite(path string) *SQLite {
	return &SQLite{path: path}
}

func (s *SQLite) handle() (*sql.DB, error) {
	s.initOnce.Do(func() {
		s.db, s.initErr = openSQLite(s.path)
	})
	if s.initErr != nil {
		return nil, ioErr("open", "", s.initErr)
	}
	return s.db, nil
}

func openSQLite(path string) (*sql.DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create store directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// WAL lets a CLI invocation read while a server holds the database open.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate schema: %w", err)
	}
	return db, nil
}

var migrateMu sync.Mutex

func migrate(db *sql.DB) error {
	// goose keeps its configuration in package globals.
	migrateMu.Lock()
	defer migrateMu.Unlock()

	goose.SetBaseFS(migrations.FS)
	goose.SetLogger(goose.NopLogger())
	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}
	if err := goose.Up(db, "."); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

func (s *SQLite) ready(op, key string) (*sql.DB, func(), error) {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return nil, nil, ioErr(op, key, ErrClosed)
	}
	db, err := s.handle()
	if err != nil {
		s.mu.RUnlock()
		return nil, nil, err
	}
	return db, s.mu.RUnlock, nil
}

// Get returns the record stored under key.
func (s *SQLite) Get(ctx context.Context, key string) ([]byte, bool, error) {
	db, done, err := s.ready("get", key)
	if err != nil {
		return nil, false, err
	}
	defer done()

	var value []byte
	err = db.QueryRowContext(ctx, `SELECT value FROM blobs WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, ioErr("get", key, err)
	}
	return value, true, nil
}

// GetAll returns every record keyed by its key.
func (s *SQLite) GetAll(ctx context.Context) (map[string][]byte, error) {
	db, done, err := s.ready("get all", "")
	if err != nil {
		return nil, err
	}
	defer done()

	rows, err := db.QueryContext(ctx, `SELECT key, value FROM blobs`)
	if err != nil {
		return nil, ioErr("get all", "", err)
	}
	defer rows.Close()

	out := make(map[string][]byte)
	for rows.Next() {
		var key string
		var value []byte
		if err := rows.Scan(&key, &value); err != nil {
			return nil, ioErr("get all", "", err)
		}
		out[key] = value
	}
	return out, ioErr("get all", "", rows.Err())
}

// Keys returns every key in ascending order.
func (s *SQLite) Keys(ctx context.Context) ([]string, error) {
	db, done, err := s.ready("keys", "")
	if err != nil {
		return nil, err
	}
	defer done()

	rows, err := db.QueryContext(ctx, `SELECT key FROM blobs ORDER BY key`)
	if err != nil {
		return nil, ioErr("keys", "", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, ioErr("keys", "", err)
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		return nil, ioErr("keys", "", err)
	}
	sort.Strings(keys)
	return keys, nil
}

// Set stores value under key, replacing and re-versioning any existing record.
func (s *SQLite) Set(ctx context.Context, key string, value []byte) error {
	db, done, err := s.ready("set", key)
	if err != nil {
		return err
	}
	defer done()

	if value == nil {
		value = []byte{}
	}
	_, err = db.ExecContext(ctx, `
		INSERT INTO blobs (key, value, version, updated_at) VALUES (?, ?, 1, ?)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			version = blobs.version + 1,
			updated_at = excluded.updated_at
	`, key, value, time.Now().UTC().Format(time.RFC3339Nano))
	return ioErr("set", key, err)
}

// Version returns the number of times key has been written, or 0 if absent.
func (s *SQLite) Version(ctx context.Context, key string) (int, error) {
	db, done, err := s.ready("version", key)
	if err != nil {
		return 0, err
	}
	defer done()

	var version int
	err = db.QueryRowContext(ctx, `SELECT version FROM blobs WHERE key = ?`, key).Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	return version, ioErr("version", key, err)
}

// Delete removes key. Deleting an absent key succeeds.
func (s *SQLite) Delete(ctx context.Context, key string) error {
	db, done, err := s.ready("delete", key)
	if err != nil {
		return err
	}
	defer done()

	_, err = db.ExecContext(ctx, `DELETE FROM blobs WHERE key = ?`, key)
	return ioErr("delete", key, err)
}

// Clear removes every record.
func (s *SQLite) Clear(ctx context.Context) error {
	db, done, err := s.ready("clear", "")
	if err != nil {
		return err
	}
	defer done()

	_, err = db.ExecContext(ctx, `DELETE FROM blobs`)
	return ioErr("clear", "", err)
}

// Close closes the database if it was opened.
func (s *SQLite) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
