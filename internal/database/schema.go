package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

const schema = `
CREATE TABLE IF NOT EXISTS recruiters (
	id         TEXT PRIMARY KEY,
	email      TEXT NOT NULL,
	org_name   TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS sessions (
	id             UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	recruiter_id   TEXT NOT NULL,
	candidate_name TEXT NOT NULL,
	position       TEXT NOT NULL,
	platform       TEXT NOT NULL,
	notes          TEXT NOT NULL DEFAULT '',
	status         TEXT NOT NULL DEFAULT 'active' CHECK (status IN ('active', 'completed')),
	trust_score    INTEGER NOT NULL DEFAULT 100 CHECK (trust_score BETWEEN 0 AND 100),
	flags          INTEGER NOT NULL DEFAULT 0 CHECK (flags >= 0),
	severity       TEXT NOT NULL DEFAULT 'low' CHECK (severity IN ('low', 'medium', 'high', 'critical')),
	created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_sessions_recruiter ON sessions (recruiter_id, created_at DESC);

CREATE TABLE IF NOT EXISTS flagged_events (
	id         UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	session_id UUID NOT NULL REFERENCES sessions (id) ON DELETE CASCADE,
	type       TEXT NOT NULL CHECK (type IN ('paste', 'overlay', 'tab_switch', 'click', 'other')),
	details    TEXT NOT NULL,
	severity   TEXT NOT NULL CHECK (severity IN ('low', 'medium', 'high', 'critical')),
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_flagged_events_session ON flagged_events (session_id, created_at);
`

// Migrate creates the tables and indexes if they do not exist. The whole
// schema is applied in one transaction.
func (db *DB) Migrate(ctx context.Context) error {
	return db.WithTransaction(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, schema); err != nil {
			return fmt.Errorf("migrate schema: %w", err)
		}
		return nil
	})
}
