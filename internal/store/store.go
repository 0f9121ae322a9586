// Package store defines the persistence contract shared by the PostgreSQL,
// Firestore and SQLite backends.
package store

import (
	"context"
	"errors"

	"github.com/shadowsight/shadowsight/internal/model"
)

// ErrNotFound is returned when a session, event or recruiter does not exist.
var ErrNotFound = errors.New("not found")

// Store defines the session storage interface.
type Store interface {
	// CreateSession assigns ID and Timestamp and stores the session.
	CreateSession(ctx context.Context, s *model.Session) error

	// GetSession retrieves a session by ID.
	GetSession(ctx context.Context, id string) (*model.Session, error)

	// ListSessions lists a recruiter's sessions, newest first.
	ListSessions(ctx context.Context, recruiterID string) ([]*model.Session, error)

	// ListSessionIDs pages through every session ID in a stable order,
	// starting after the given cursor ("" for the first page).
	ListSessionIDs(ctx context.Context, after string, limit int) ([]string, error)

	// UpdateSession applies a patch to the recruiter-editable fields.
	UpdateSession(ctx context.Context, id string, p model.SessionPatch) error

	// UpdateSessionScore persists recomputed trust score, flags and severity.
	UpdateSessionScore(ctx context.Context, id string, d model.Derived) error

	// DeleteSession removes a session and its events.
	DeleteSession(ctx context.Context, id string) error

	// CreateEvent assigns ID and Timestamp and stores the event.
	CreateEvent(ctx context.Context, ev *model.Event) error

	// ListEvents returns every event of a session, oldest first.
	ListEvents(ctx context.Context, sessionID string) ([]model.Event, error)

	// UpsertRecruiter creates or replaces a recruiter profile.
	UpsertRecruiter(ctx context.Context, r *model.Recruiter) error

	// GetRecruiter retrieves a recruiter profile by ID.
	GetRecruiter(ctx context.Context, id string) (*model.Recruiter, error)

	// Health checks the backend is reachable.
	Health(ctx context.Context) error

	// Close releases the backend's resources.
	Close() error
}
