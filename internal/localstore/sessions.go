package localstore

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/shadowsight/shadowsight/internal/model"
)

const sessionColumns = `id, recruiter_id, candidate_name, position, platform, notes,
	status, trust_score, flags, severity, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*model.Session, error) {
	var (
		sess             model.Session
		status, severity string
		createdAt        string
	)
	err := row.Scan(&sess.ID, &sess.RecruiterID, &sess.CandidateName, &sess.Position, &sess.Platform,
		&sess.Notes, &status, &sess.TrustScore, &sess.Flags, &severity, &createdAt)
	if err != nil {
		return nil, err
	}
	sess.Status = model.SessionStatus(status)
	sess.Severity = model.Severity(severity)
	sess.Timestamp = parseTime(createdAt)
	return &sess, nil
}

// CreateSession stores a new session.
func (s *SQLiteStore) CreateSession(ctx context.Context, sess *model.Session) error {
	id, now := s.newID()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (`+sessionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, sess.RecruiterID, sess.CandidateName, sess.Position, sess.Platform, sess.Notes,
		string(sess.Status), sess.TrustScore, sess.Flags, string(sess.Severity), formatTime(now))
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	sess.ID = id
	sess.Timestamp = parseTime(formatTime(now))
	return nil
}

// GetSession retrieves a session by ID.
func (s *SQLiteStore) GetSession(ctx context.Context, id string) (*model.Session, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, id)
	sess, err := scanSession(row)
	if err != nil {
		return nil, fmt.Errorf("get session: %w", notFound(err))
	}
	return sess, nil
}

// ListSessions lists a recruiter's sessions, newest first.
func (s *SQLiteStore) ListSessions(ctx context.Context, recruiterID string) ([]*model.Session, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+sessionColumns+` FROM sessions
		WHERE recruiter_id = ? ORDER BY created_at DESC, id DESC`, recruiterID)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	sessions := make([]*model.Session, 0)
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}

// ListSessionIDs pages through all session IDs in ID order.
func (s *SQLiteStore) ListSessionIDs(ctx context.Context, after string, limit int) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM sessions WHERE id > ? ORDER BY id LIMIT ?`, after, limit)
	if err != nil {
		return nil, fmt.Errorf("query session ids: %w", err)
	}
	defer rows.Close()

	ids := make([]string, 0, limit)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan session id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// UpdateSession applies the set fields of p.
func (s *SQLiteStore) UpdateSession(ctx context.Context, id string, p model.SessionPatch) error {
	var status sql.NullString
	if p.Status != nil {
		status = sql.NullString{String: string(*p.Status), Valid: true}
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE sessions SET
			candidate_name = COALESCE(?, candidate_name),
			position = COALESCE(?, position),
			platform = COALESCE(?, platform),
			notes = COALESCE(?, notes),
			status = COALESCE(?, status)
		WHERE id = ?`,
		nullString(p.CandidateName), nullString(p.Position), nullString(p.Platform), nullString(p.Notes), status, id)
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	return affected(res)
}

// UpdateSessionScore persists recomputed derived fields.
func (s *SQLiteStore) UpdateSessionScore(ctx context.Context, id string, d model.Derived) error {
	res, err := s.db.ExecContext(ctx, `UPDATE sessions SET trust_score = ?, flags = ?, severity = ? WHERE id = ?`,
		d.TrustScore, d.Flags, string(d.Severity), id)
	if err != nil {
		return fmt.Errorf("update session score: %w", err)
	}
	return affected(res)
}

// DeleteSession removes a session; foreign keys cascade to its events.
func (s *SQLiteStore) DeleteSession(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return affected(res)
}

func nullString(p *string) sql.NullString {
	if p == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *p, Valid: true}
}
