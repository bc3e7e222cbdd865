package metadata

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/lib/pq"
)

var postgresIntegrationCounter uint64

func postgresIntegrationDSN(t *testing.T) string {
	t.Helper()
	dsn := strings.TrimSpace(os.Getenv("SETASIDE_TEST_POSTGRES_DSN"))
	if dsn == "" {
		t.Skip("set SETASIDE_TEST_POSTGRES_DSN to run Postgres integration tests")
	}
	return dsn
}

func postgresIntegrationArea(t *testing.T, dsn, prefix string, quota Quota) *Postgres {
	t.Helper()
	p, err := NewPostgres(dsn, "sync", PostgresOptions{TablePrefix: prefix, Quota: quota})
	if err != nil {
		t.Fatalf("NewPostgres: %v", err)
	}
	t.Cleanup(func() { _ = p.Close() })
	return p
}

func postgresIntegrationPrefix(t *testing.T, dsn string) string {
	t.Helper()
	n := atomic.AddUint64(&postgresIntegrationCounter, 1)
	prefix := fmt.Sprintf("setaside_it_%d_%d", time.Now().UnixNano(), n)
	t.Cleanup(func() {
		db, err := sql.Open("postgres", dsn)
		if err != nil {
			return
		}
		defer db.Close()
		for _, table := range []string{prefix + "_metadata", prefix + "_metadata_changes"} {
			_, _ = db.Exec("DROP TABLE IF EXISTS " + pq.QuoteIdentifier(table))
		}
	})
	return prefix
}

func TestNewPostgres_RequiresDSN(t *testing.T) {
	if _, err := NewPostgres("  ", "sync", PostgresOptions{}); !errors.Is(err, ErrInvalidDSN) {
		t.Errorf("error = %v, want ErrInvalidDSN", err)
	}
}

func TestPostgresIntegration_ChangesReachOtherDevice(t *testing.T) {
	dsn := postgresIntegrationDSN(t)
	prefix := postgresIntegrationPrefix(t, dsn)
	ctx := context.Background()

	local := postgresIntegrationArea(t, dsn, prefix, Quota{})
	remote := postgresIntegrationArea(t, dsn, prefix, Quota{})

	// Force both handles to initialise before any write so they start from the same log position.
	if _, err := local.GetAll(ctx); err != nil {
		t.Fatalf("GetAll: %v", err)
	}
	if _, err := remote.GetAll(ctx); err != nil {
		t.Fatalf("GetAll: %v", err)
	}

	rec := newChangeRecorder()
	local.OnChange(rec.record)

	if err := remote.Set(ctx, "collection:a", []byte(`{"v":1}`)); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := remote.Remove(ctx, "collection:a"); err != nil {
		t.Fatalf("Remove: %v", err)
	}

	changes := rec.waitFor(t, 2)
	if changes[0].OldValue != nil || string(changes[0].NewValue) != `{"v":1}` {
		t.Errorf("first change = %+v, want creation", changes[0])
	}
	if changes[1].NewValue != nil || string(changes[1].OldValue) != `{"v":1}` {
		t.Errorf("second change = %+v, want removal", changes[1])
	}
}

func TestPostgresIntegration_Quota(t *testing.T) {
	dsn := postgresIntegrationDSN(t)
	prefix := postgresIntegrationPrefix(t, dsn)
	ctx := context.Background()

	area := postgresIntegrationArea(t, dsn, prefix, Quota{ItemBytes: 16})
	err := area.Set(ctx, "collection:a", []byte(`{"long":"value"}`))
	if !errors.Is(err, ErrQuotaExceeded) {
		t.Fatalf("Set error = %v, want ErrQuotaExceeded", err)
	}
	all, err := area.GetAll(ctx)
	if err != nil {
		t.Fatalf("GetAll: %v", err)
	}
	if len(all) != 0 {
		t.Errorf("area has %d entries after rejected write", len(all))
	}
}
