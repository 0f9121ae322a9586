// Package localstore implements the session store on a single SQLite file,
// for local development and offline use of the CLI.
package localstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	_ "modernc.org/sqlite"

	"github.com/shadowsight/shadowsight/internal/model"
	"github.com/shadowsight/shadowsight/internal/store"
)

// timeLayout is fixed width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// SQLiteStore implements store.Store using SQLite.
type SQLiteStore struct {
	db *sql.DB

	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
	now     func() time.Time
}

var _ store.Store = (*SQLiteStore)(nil)

// New opens or creates a SQLite database at the given path.
func New(dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=foreign_keys(on)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	s := &SQLiteStore{
		db:      db,
		entropy: ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0),
		now:     time.Now,
	}

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return s, nil
}

// newID returns a time-ordered ID and the timestamp it encodes.
func (s *SQLiteStore) newID() (string, time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now().UTC()
	return ulid.MustNew(ulid.Timestamp(now), s.entropy).String(), now
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS recruiters (
		id         TEXT PRIMARY KEY,
		email      TEXT NOT NULL,
		org_name   TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS sessions (
		id             TEXT PRIMARY KEY,
		recruiter_id   TEXT NOT NULL,
		candidate_name TEXT NOT NULL,
		position       TEXT NOT NULL,
		platform       TEXT NOT NULL,
		notes          TEXT NOT NULL DEFAULT '',
		status         TEXT NOT NULL DEFAULT 'active',
		trust_score    INTEGER NOT NULL DEFAULT 100,
		flags          INTEGER NOT NULL DEFAULT 0,
		severity       TEXT NOT NULL DEFAULT 'low',
		created_at     TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_sessions_recruiter ON sessions(recruiter_id, created_at DESC);

	CREATE TABLE IF NOT EXISTS flagged_events (
		id         TEXT PRIMARY KEY,
		session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
		type       TEXT NOT NULL,
		details    TEXT NOT NULL,
		severity   TEXT NOT NULL,
		created_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_flagged_events_session ON flagged_events(session_id, created_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Health pings the database.
func (s *SQLiteStore) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		t, _ = time.Parse(time.RFC3339Nano, s)
	}
	return t.UTC()
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrNotFound
	}
	return err
}

func affected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

// UpsertRecruiter inserts or replaces a recruiter, keeping the original
// creation time.
func (s *SQLiteStore) UpsertRecruiter(ctx context.Context, r *model.Recruiter) error {
	created := formatTime(s.now())
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO recruiters (id, email, org_name, created_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET email = excluded.email, org_name = excluded.org_name
		RETURNING created_at`,
		r.ID, r.Email, r.OrgName, created)
	var createdAt string
	if err := row.Scan(&createdAt); err != nil {
		return fmt.Errorf("upsert recruiter: %w", err)
	}
	r.CreatedAt = parseTime(createdAt)
	return nil
}

// GetRecruiter retrieves a recruiter by ID.
func (s *SQLiteStore) GetRecruiter(ctx context.Context, id string) (*model.Recruiter, error) {
	r := &model.Recruiter{}
	var createdAt string
	err := s.db.QueryRowContext(ctx, `SELECT id, email, org_name, created_at FROM recruiters WHERE id = ?`, id).
		Scan(&r.ID, &r.Email, &r.OrgName, &createdAt)
	if err != nil {
		return nil, fmt.Errorf("get recruiter: %w", notFound(err))
	}
	r.CreatedAt = parseTime(createdAt)
	return r, nil
}
