package database

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/shadowsight/shadowsight/internal/model"
)

// CreateEvent inserts a flagged event for an existing session
func (db *DB) CreateEvent(ctx context.Context, ev *model.Event) error {
	sid, err := parseID(ev.SessionID)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO flagged_events (session_id, type, details, severity)
		SELECT id, $2, $3, $4 FROM sessions WHERE id = $1
		RETURNING id, created_at
	`

	var (
		id        uuid.UUID
		createdAt time.Time
	)
	err = db.pool.QueryRow(ctx, query, sid, string(ev.Type), ev.Details, string(ev.Severity)).Scan(&id, &createdAt)
	if err != nil {
		return fmt.Errorf("insert event: %w", notFound(err))
	}

	ev.ID = id.String()
	ev.Timestamp = createdAt.UTC()
	return nil
}

// ListEvents retrieves a session's events in timeline order
func (db *DB) ListEvents(ctx context.Context, sessionID string) ([]model.Event, error) {
	sid, err := parseID(sessionID)
	if err != nil {
		return nil, err
	}

	query := `
		SELECT id, session_id, type, details, severity, created_at
		FROM flagged_events
		WHERE session_id = $1
		ORDER BY created_at ASC, id ASC
	`

	rows, err := db.pool.Query(ctx, query, sid)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	events := make([]model.Event, 0)
	for rows.Next() {
		var (
			id, session   uuid.UUID
			typ, severity string
			createdAt     time.Time
			ev            model.Event
		)
		if err := rows.Scan(&id, &session, &typ, &ev.Details, &severity, &createdAt); err != nil {
			return nil, fmt.Errorf("scan event row: %w", err)
		}
		ev.ID = id.String()
		ev.SessionID = session.String()
		ev.Type = model.EventType(typ)
		ev.Severity = model.Severity(severity)
		ev.Timestamp = createdAt.UTC()
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}

	return events, nil
}
