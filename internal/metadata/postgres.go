package metadata

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/lib/pq"
)

const (
	postgresOperationTimeout = 5 * time.Second
	postgresPingInterval     = 90 * time.Second
	postgresNotifyChannel    = "setaside_metadata"
	defaultPostgresPrefix    = "setaside"
)

// ErrInvalidDSN is returned when a Postgres area is configured without a DSN.
var ErrInvalidDSN = errors.New("metadata: postgres DSN is required")

type sqlOpenFunc func(driverName, dsn string) (*sql.DB, error)

// PostgresOptions configures a Postgres area.
type PostgresOptions struct {
	Quota Quota
	// TablePrefix names the value and change-log tables; defaults to "setaside".
	TablePrefix string
	Logger      log.Logger
}

// Postgres keeps an area in a shared Postgres database. Every write appends a row to
// a change log and notifies listeners over LISTEN/NOTIFY; each handle replays the log
// from the last id it has seen, so changes survive dropped notifications.
type Postgres struct {
	dsn          string
	area         string
	quota        Quota
	valuesTable  string
	changesTable string
	logger       log.Logger
	openDB       sqlOpenFunc

	initOnce sync.Once
	initErr  error
	db       *sql.DB
	listener *pq.Listener

	catchUpMu sync.Mutex
	lastID    int64
	listeners listeners

	done      chan struct{}
	closeOnce sync.Once
}

// NewPostgres configures a Postgres area. The connection is opened on first use.
func NewPostgres(dsn, area string, opts PostgresOptions) (*Postgres, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, ErrInvalidDSN
	}
	if opts.Quota == (Quota{}) {
		opts.Quota = DefaultQuota()
	}
	if opts.TablePrefix == "" {
		opts.TablePrefix = defaultPostgresPrefix
	}
	if opts.Logger == nil {
		opts.Logger = log.NewNopLogger()
	}
	return &Postgres{
		dsn:          dsn,
		area:         area,
		quota:        opts.Quota,
		valuesTable:  pq.QuoteIdentifier(opts.TablePrefix + "_metadata"),
		changesTable: pq.QuoteIdentifier(opts.TablePrefix + "_metadata_changes"),
		logger:       log.With(opts.Logger, "component", "metadata-postgres", "area", area),
		openDB:       sql.Open,
		done:         make(chan struct{}),
	}, nil
}

// Area returns the area name.
func (p *Postgres) Area() string { return p.area }

// Close stops listening and closes the connection pool.
func (p *Postgres) Close() error {
	var err error
	p.closeOnce.Do(func() {
		close(p.done)
		if p.listener != nil {
			err = p.listener.Close()
		}
		if p.db != nil {
			if cerr := p.db.Close(); err == nil {
				err = cerr
			}
		}
	})
	return err
}

func (p *Postgres) ensureReady() error {
	p.initOnce.Do(func() {
		db, err := p.openDB("postgres", p.dsn)
		if err != nil {
			p.initErr = err
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), postgresOperationTimeout)
		defer cancel()

		schema := fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %[1]s (
				area TEXT NOT NULL,
				key TEXT NOT NULL,
				value TEXT NOT NULL,
				updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
				PRIMARY KEY (area, key)
			);
			CREATE TABLE IF NOT EXISTS %[2]s (
				id BIGSERIAL PRIMARY KEY,
				area TEXT NOT NULL,
				key TEXT NOT NULL,
				old_value TEXT,
				new_value TEXT,
				changed_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
			)`, p.valuesTable, p.changesTable)
		if _, err := db.ExecContext(ctx, schema); err != nil {
			_ = db.Close()
			p.initErr = fmt.Errorf("metadata: create tables: %w", err)
			return
		}

		query := fmt.Sprintf(`SELECT COALESCE(MAX(id), 0) FROM %s WHERE area = $1`, p.changesTable)
		if err := db.QueryRowContext(ctx, query, p.area).Scan(&p.lastID); err != nil {
			_ = db.Close()
			p.initErr = fmt.Errorf("metadata: read change log position: %w", err)
			return
		}

		listener := pq.NewListener(p.dsn, 10*time.Second, time.Minute, func(ev pq.ListenerEventType, err error) {
			if err != nil {
				level.Warn(p.logger).Log("msg", "listener event", "event", int(ev), "err", err)
			}
		})
		if err := listener.Listen(postgresNotifyChannel); err != nil {
			_ = listener.Close()
			_ = db.Close()
			p.initErr = fmt.Errorf("metadata: listen: %w", err)
			return
		}

		p.db = db
		p.listener = listener
		go p.listen()
	})
	return p.initErr
}

// GetAll returns every entry in the area.
func (p *Postgres) GetAll(ctx context.Context) (map[string][]byte, error) {
	if err := p.ensureReady(); err != nil {
		return nil, err
	}
	rows, err := p.db.QueryContext(ctx, fmt.Sprintf(`SELECT key, value FROM %s WHERE area = $1`, p.valuesTable), p.area)
	if err != nil {
		return nil, fmt.Errorf("metadata: query area: %w", err)
	}
	defer rows.Close()

	values := make(map[string][]byte)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("metadata: scan entry: %w", err)
		}
		values[key] = []byte(value)
	}
	return values, rows.Err()
}

// Set stores value under key.
func (p *Postgres) Set(ctx context.Context, key string, value []byte) error {
	return p.write(ctx, key, value, false)
}

// Remove deletes key. Removing an absent key is a no-op.
func (p *Postgres) Remove(ctx context.Context, key string) error {
	return p.write(ctx, key, nil, true)
}

// OnChange registers fn for changes replayed from the change log.
func (p *Postgres) OnChange(fn func(Change)) func() {
	return p.listeners.add(fn)
}

func (p *Postgres) write(ctx context.Context, key string, value []byte, remove bool) error {
	if err := p.ensureReady(); err != nil {
		return err
	}
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("metadata: begin transaction: %w", err)
	}
	defer tx.Rollback() // no-op if committed

	// Serialize writers of one area so the quota check sees a stable total.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, p.area); err != nil {
		return fmt.Errorf("metadata: lock area: %w", err)
	}

	var old sql.NullString
	err = tx.QueryRowContext(ctx, fmt.Sprintf(`SELECT value FROM %s WHERE area = $1 AND key = $2`, p.valuesTable), p.area, key).Scan(&old)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("metadata: read %s: %w", key, err)
	}

	var newValue sql.NullString
	if remove {
		if !old.Valid {
			return nil
		}
		if _, err := tx.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE area = $1 AND key = $2`, p.valuesTable), p.area, key); err != nil {
			return fmt.Errorf("metadata: delete %s: %w", key, err)
		}
	} else {
		u := usage{present: old.Valid}
		if old.Valid {
			u.existing = len(key) + len(old.String)
		}
		err := tx.QueryRowContext(ctx, fmt.Sprintf(`
			SELECT COALESCE(SUM(octet_length(key) + octet_length(value)), 0), COUNT(*)
			FROM %s WHERE area = $1`, p.valuesTable), p.area).Scan(&u.bytes, &u.items)
		if err != nil {
			return fmt.Errorf("metadata: read usage: %w", err)
		}
		if err := p.quota.check(key, value, u); err != nil {
			return err
		}
		newValue = sql.NullString{String: string(value), Valid: true}
		_, err = tx.ExecContext(ctx, fmt.Sprintf(`
			INSERT INTO %s (area, key, value, updated_at) VALUES ($1, $2, $3, NOW())
			ON CONFLICT (area, key) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()`, p.valuesTable),
			p.area, key, newValue.String)
		if err != nil {
			return fmt.Errorf("metadata: upsert %s: %w", key, err)
		}
	}

	var id int64
	err = tx.QueryRowContext(ctx, fmt.Sprintf(`
		INSERT INTO %s (area, key, old_value, new_value) VALUES ($1, $2, $3, $4) RETURNING id`, p.changesTable),
		p.area, key, old, newValue).Scan(&id)
	if err != nil {
		return fmt.Errorf("metadata: append change: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `SELECT pg_notify($1, $2)`, postgresNotifyChannel, strconv.FormatInt(id, 10)); err != nil {
		return fmt.Errorf("metadata: notify: %w", err)
	}
	return tx.Commit()
}

func (p *Postgres) listen() {
	for {
		select {
		case <-p.done:
			return
		case <-p.listener.Notify:
			// A nil notification follows a reconnect; catching up covers both cases.
		case <-time.After(postgresPingInterval):
			if err := p.listener.Ping(); err != nil {
				level.Warn(p.logger).Log("msg", "listener ping failed", "err", err)
			}
		}
		if err := p.catchUp(); err != nil {
			level.Error(p.logger).Log("msg", "replay change log", "err", err)
		}
	}
}

// catchUp emits every change logged after the last one seen.
func (p *Postgres) catchUp() error {
	p.catchUpMu.Lock()
	defer p.catchUpMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), postgresOperationTimeout)
	defer cancel()

	rows, err := p.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT id, key, old_value, new_value FROM %s
		WHERE area = $1 AND id > $2 ORDER BY id`, p.changesTable), p.area, p.lastID)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			id       int64
			key      string
			old, cur sql.NullString
		)
		if err := rows.Scan(&id, &key, &old, &cur); err != nil {
			return err
		}
		c := Change{Area: p.area, Key: key}
		if old.Valid {
			c.OldValue = []byte(old.String)
		}
		if cur.Valid {
			c.NewValue = []byte(cur.String)
		}
		p.listeners.emit(c)
		p.lastID = id
	}
	return rows.Err()
}
