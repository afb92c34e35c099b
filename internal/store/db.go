// Package store is the embedded relational persistence layer (C1):
// schema migrations, typed row accessors, and the two guarded
// transition primitives that serialize concurrent status changes.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// DB wraps a single-writer sqlite connection, mirroring the teacher's
// NewSQLiteStore connection handling (graph/store/sqlite.go): one open
// connection, WAL mode, foreign keys on, a busy timeout, all configured
// before any table is touched.
type DB struct {
	conn   *sql.DB
	mu     sync.RWMutex
	closed bool
	path   string
}

// Open opens (creating if necessary) the sqlite database at path and
// runs all pending migrations.
func Open(ctx context.Context, path string) (*DB, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite connection: %w", err)
	}
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)
	conn.SetConnMaxLifetime(0)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := conn.ExecContext(ctx, pragma); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("apply %q: %w", pragma, err)
		}
	}

	db := &DB{conn: conn, path: path}
	if err := db.migrate(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return db, nil
}

// migrate runs every migration pass. Passes are idempotent (IF NOT
// EXISTS DDL, DROP-then-CREATE triggers) so re-running them on an
// already-migrated database is a no-op; schema_migrations additionally
// lets callers confirm which passes have applied without re-parsing DDL.
func (d *DB) migrate(ctx context.Context) error {
	// The bookkeeping table itself must exist before we can record
	// anything in it, and it is created by the first core-schema pass,
	// so run every pass unconditionally and then upsert its row.
	for _, m := range migrations {
		if err := m.up(ctx, d.conn); err != nil {
			return fmt.Errorf("migration %s: %w", m.id, err)
		}
		if _, err := d.conn.ExecContext(ctx,
			`INSERT INTO schema_migrations (id) VALUES (?) ON CONFLICT(id) DO NOTHING`, m.id); err != nil {
			return fmt.Errorf("record migration %s: %w", m.id, err)
		}
	}
	return nil
}

// Close closes the underlying connection.
func (d *DB) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	return d.conn.Close()
}

// now returns the current time formatted as spec's ISO-8601 UTC string.
func nowUTC() string {
	return time.Now().UTC().Format("2006-01-02T15:04:05.000Z")
}
