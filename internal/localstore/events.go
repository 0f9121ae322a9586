package localstore

import (
	"context"
	"fmt"

	"github.com/shadowsight/shadowsight/internal/model"
	"github.com/shadowsight/shadowsight/internal/store"
)

// CreateEvent stores a flagged event for an existing session.
func (s *SQLiteStore) CreateEvent(ctx context.Context, ev *model.Event) error {
	id, now := s.newID()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO flagged_events (id, session_id, type, details, severity, created_at)
		SELECT ?, id, ?, ?, ?, ? FROM sessions WHERE id = ?`,
		id, string(ev.Type), ev.Details, string(ev.Severity), formatTime(now), ev.SessionID)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("insert event: %w", err)
	} else if n == 0 {
		return fmt.Errorf("insert event: %w", store.ErrNotFound)
	}
	ev.ID = id
	ev.Timestamp = parseTime(formatTime(now))
	return nil
}

// ListEvents returns a session's events, oldest first.
func (s *SQLiteStore) ListEvents(ctx context.Context, sessionID string) ([]model.Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, type, details, severity, created_at
		FROM flagged_events WHERE session_id = ?
		ORDER BY created_at ASC, id ASC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	events := make([]model.Event, 0)
	for rows.Next() {
		var (
			ev                       model.Event
			typ, severity, createdAt string
		)
		if err := rows.Scan(&ev.ID, &ev.SessionID, &typ, &ev.Details, &severity, &createdAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		ev.Type = model.EventType(typ)
		ev.Severity = model.Severity(severity)
		ev.Timestamp = parseTime(createdAt)
		events = append(events, ev)
	}
	return events, rows.Err()
}
