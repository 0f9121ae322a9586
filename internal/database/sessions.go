package database

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/shadowsight/shadowsight/internal/model"
	"github.com/shadowsight/shadowsight/internal/store"
)

const sessionColumns = `
	id, recruiter_id, candidate_name, position, platform, notes,
	status, trust_score, flags, severity, created_at
`

// scanSession reads one sessions row in sessionColumns order
func scanSession(row pgx.Row) (*model.Session, error) {
	var (
		id               uuid.UUID
		status, severity string
		createdAt        time.Time
		session          model.Session
	)
	err := row.Scan(
		&id, &session.RecruiterID, &session.CandidateName, &session.Position,
		&session.Platform, &session.Notes, &status, &session.TrustScore,
		&session.Flags, &severity, &createdAt,
	)
	if err != nil {
		return nil, err
	}
	session.ID = id.String()
	session.Status = model.SessionStatus(status)
	session.Severity = model.Severity(severity)
	session.Timestamp = createdAt.UTC()
	return &session, nil
}

// CreateSession inserts a new session record
func (db *DB) CreateSession(ctx context.Context, s *model.Session) error {
	query := `
		INSERT INTO sessions (
			recruiter_id, candidate_name, position, platform, notes,
			status, trust_score, flags, severity
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at
	`

	var (
		id        uuid.UUID
		createdAt time.Time
	)
	err := db.pool.QueryRow(ctx, query,
		s.RecruiterID,
		s.CandidateName,
		s.Position,
		s.Platform,
		s.Notes,
		string(s.Status),
		s.TrustScore,
		s.Flags,
		string(s.Severity),
	).Scan(&id, &createdAt)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}

	s.ID = id.String()
	s.Timestamp = createdAt.UTC()
	return nil
}

// GetSession retrieves a session by ID
func (db *DB) GetSession(ctx context.Context, id string) (*model.Session, error) {
	sid, err := parseID(id)
	if err != nil {
		return nil, err
	}

	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE id = $1`
	session, err := scanSession(db.pool.QueryRow(ctx, query, sid))
	if err != nil {
		return nil, fmt.Errorf("get session: %w", notFound(err))
	}
	return session, nil
}

// ListSessions retrieves a recruiter's sessions, newest first
func (db *DB) ListSessions(ctx context.Context, recruiterID string) ([]*model.Session, error) {
	query := `SELECT ` + sessionColumns + `
		FROM sessions
		WHERE recruiter_id = $1
		ORDER BY created_at DESC
	`

	rows, err := db.pool.Query(ctx, query, recruiterID)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	sessions := make([]*model.Session, 0)
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session row: %w", err)
		}
		sessions = append(sessions, session)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}

	return sessions, nil
}

// ListSessionIDs pages through all session IDs ordered by ID
func (db *DB) ListSessionIDs(ctx context.Context, after string, limit int) ([]string, error) {
	var (
		rows pgx.Rows
		err  error
	)
	if after == "" {
		rows, err = db.pool.Query(ctx, `SELECT id FROM sessions ORDER BY id LIMIT $1`, limit)
	} else {
		cursor, perr := uuid.Parse(after)
		if perr != nil {
			return nil, fmt.Errorf("parse cursor: %w", perr)
		}
		rows, err = db.pool.Query(ctx, `SELECT id FROM sessions WHERE id > $1 ORDER BY id LIMIT $2`, cursor, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("query session ids: %w", err)
	}
	defer rows.Close()

	ids := make([]string, 0, limit)
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan session id: %w", err)
		}
		ids = append(ids, id.String())
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate session ids: %w", err)
	}

	return ids, nil
}

// UpdateSession applies the set fields of a patch
func (db *DB) UpdateSession(ctx context.Context, id string, p model.SessionPatch) error {
	sid, err := parseID(id)
	if err != nil {
		return err
	}

	var status *string
	if p.Status != nil {
		s := string(*p.Status)
		status = &s
	}

	query := `
		UPDATE sessions
		SET candidate_name = COALESCE($1, candidate_name),
		    position = COALESCE($2, position),
		    platform = COALESCE($3, platform),
		    notes = COALESCE($4, notes),
		    status = COALESCE($5, status)
		WHERE id = $6
	`
	ok, err := db.exec(ctx, query, p.CandidateName, p.Position, p.Platform, p.Notes, status, sid)
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	if !ok {
		return store.ErrNotFound
	}
	return nil
}

// UpdateSessionScore updates the fields derived from a session's events
func (db *DB) UpdateSessionScore(ctx context.Context, id string, d model.Derived) error {
	sid, err := parseID(id)
	if err != nil {
		return err
	}

	query := `
		UPDATE sessions
		SET trust_score = $1, flags = $2, severity = $3
		WHERE id = $4
	`
	ok, err := db.exec(ctx, query, d.TrustScore, d.Flags, string(d.Severity), sid)
	if err != nil {
		return fmt.Errorf("update session score: %w", err)
	}
	if !ok {
		return store.ErrNotFound
	}
	return nil
}

// DeleteSession removes a session; its events go with it via ON DELETE CASCADE
func (db *DB) DeleteSession(ctx context.Context, id string) error {
	sid, err := parseID(id)
	if err != nil {
		return err
	}

	ok, err := db.exec(ctx, `DELETE FROM sessions WHERE id = $1`, sid)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	if !ok {
		return store.ErrNotFound
	}
	return nil
}
