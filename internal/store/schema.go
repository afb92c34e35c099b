package store

import (
	"context"
	"database/sql"
)

// execer is satisfied by both *sql.DB and *sql.Tx, letting migration
// steps run either at startup (no transaction) or nested in a caller's
// transaction during tests.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// migrations is the ordered list of idempotent migration passes. Each
// entry creates missing tables/indices/triggers and is safe to re-run:
// table/index DDL uses IF NOT EXISTS, and every trigger whose policy may
// evolve is dropped and recreated so a later pass can change a trigger
// body without leaving two conflicting versions installed (spec §4.1).
var migrations = []struct {
	id string
	up func(ctx context.Context, tx execer) error
}{
	{"0001_core_schema", migrateCoreSchema},
	{"0002_triggers", migrateTriggers},
}
