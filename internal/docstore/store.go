// Package docstore implements the session store on Cloud Firestore, using the
// same collections as the hosted dashboard: sessions, flaggedEvents and
// recruiters.
package docstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/shadowsight/shadowsight/internal/model"
	"github.com/shadowsight/shadowsight/internal/store"
)

// Collections names the Firestore collections used by the store.
type Collections struct {
	Sessions   string
	Events     string
	Recruiters string
}

// DefaultCollections matches the collection names of the web dashboard.
var DefaultCollections = Collections{
	Sessions:   "sessions",
	Events:     "flaggedEvents",
	Recruiters: "recruiters",
}

// Store implements store.Store on Firestore.
type Store struct {
	client *firestore.Client
	cols   Collections
	now    func() time.Time
}

var _ store.Store = (*Store)(nil)

// New connects to Firestore in the given project.
func New(ctx context.Context, projectID string, cols Collections) (*Store, error) {
	client, err := firestore.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("create firestore client: %w", err)
	}
	return NewWithClient(client, cols), nil
}

// NewWithClient wraps an existing client. Empty collection names take their
// defaults.
func NewWithClient(client *firestore.Client, cols Collections) *Store {
	if cols.Sessions == "" {
		cols.Sessions = DefaultCollections.Sessions
	}
	if cols.Events == "" {
		cols.Events = DefaultCollections.Events
	}
	if cols.Recruiters == "" {
		cols.Recruiters = DefaultCollections.Recruiters
	}
	return &Store{client: client, cols: cols, now: time.Now}
}

// Close closes the Firestore client.
func (s *Store) Close() error {
	return s.client.Close()
}

// Health reads at most one session document.
func (s *Store) Health(ctx context.Context) error {
	iter := s.client.Collection(s.cols.Sessions).Select().Limit(1).Documents(ctx)
	defer iter.Stop()
	if _, err := iter.Next(); err != nil && err != iterator.Done {
		return fmt.Errorf("firestore health: %w", err)
	}
	return nil
}

// validID rejects IDs Firestore would interpret as paths.
func validID(id string) bool {
	return id != "" && !strings.Contains(id, "/")
}

func translate(err error) error {
	if status.Code(err) == codes.NotFound {
		return store.ErrNotFound
	}
	return err
}

// CreateSession stores a new session under an auto-generated document ID.
func (s *Store) CreateSession(ctx context.Context, sess *model.Session) error {
	ref := s.client.Collection(s.cols.Sessions).NewDoc()
	sess.Timestamp = s.now().UTC()
	if _, err := ref.Create(ctx, fromSession(sess)); err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	sess.ID = ref.ID
	return nil
}

// GetSession reads one session document.
func (s *Store) GetSession(ctx context.Context, id string) (*model.Session, error) {
	if !validID(id) {
		return nil, store.ErrNotFound
	}
	snap, err := s.client.Collection(s.cols.Sessions).Doc(id).Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("get session: %w", translate(err))
	}
	var doc sessionDoc
	if err := snap.DataTo(&doc); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", id, err)
	}
	return doc.toModel(snap.Ref.ID), nil
}

// ListSessions queries a recruiter's sessions, newest first.
func (s *Store) ListSessions(ctx context.Context, recruiterID string) ([]*model.Session, error) {
	iter := s.client.Collection(s.cols.Sessions).
		Where("recruiterId", "==", recruiterID).
		OrderBy("timestamp", firestore.Desc).
		Documents(ctx)
	defer iter.Stop()

	sessions := make([]*model.Session, 0)
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("list sessions: %w", err)
		}
		var doc sessionDoc
		if err := snap.DataTo(&doc); err != nil {
			return nil, fmt.Errorf("decode session %s: %w", snap.Ref.ID, err)
		}
		sessions = append(sessions, doc.toModel(snap.Ref.ID))
	}
	return sessions, nil
}

// ListSessionIDs pages through session document IDs in ID order.
func (s *Store) ListSessionIDs(ctx context.Context, after string, limit int) ([]string, error) {
	q := s.client.Collection(s.cols.Sessions).Select().OrderBy(firestore.DocumentID, firestore.Asc).Limit(limit)
	if after != "" {
		q = q.StartAfter(after)
	}
	iter := q.Documents(ctx)
	defer iter.Stop()

	ids := make([]string, 0, limit)
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("list session ids: %w", err)
		}
		ids = append(ids, snap.Ref.ID)
	}
	return ids, nil
}

// UpdateSession applies the set fields of p. Firestore rejects updates of
// missing documents, which maps to store.ErrNotFound.
func (s *Store) UpdateSession(ctx context.Context, id string, p model.SessionPatch) error {
	if !validID(id) {
		return store.ErrNotFound
	}
	var updates []firestore.Update
	if p.CandidateName != nil {
		updates = append(updates, firestore.Update{Path: "candidateName", Value: *p.CandidateName})
	}
	if p.Position != nil {
		updates = append(updates, firestore.Update{Path: "position", Value: *p.Position})
	}
	if p.Platform != nil {
		updates = append(updates, firestore.Update{Path: "platform", Value: *p.Platform})
	}
	if p.Notes != nil {
		updates = append(updates, firestore.Update{Path: "notes", Value: *p.Notes})
	}
	if p.Status != nil {
		updates = append(updates, firestore.Update{Path: "status", Value: string(*p.Status)})
	}
	if len(updates) == 0 {
		return nil
	}
	if _, err := s.client.Collection(s.cols.Sessions).Doc(id).Update(ctx, updates); err != nil {
		return fmt.Errorf("update session: %w", translate(err))
	}
	return nil
}

// UpdateSessionScore writes the derived fields of a session.
func (s *Store) UpdateSessionScore(ctx context.Context, id string, d model.Derived) error {
	if !validID(id) {
		return store.ErrNotFound
	}
	_, err := s.client.Collection(s.cols.Sessions).Doc(id).Update(ctx, []firestore.Update{
		{Path: "trustScore", Value: d.TrustScore},
		{Path: "flags", Value: d.Flags},
		{Path: "severity", Value: string(d.Severity)},
	})
	if err != nil {
		return fmt.Errorf("update session score: %w", translate(err))
	}
	return nil
}

// DeleteSession deletes a session's events, then the session document. The
// session is only removed once every event delete has been confirmed, so a
// failed cascade can be retried.
func (s *Store) DeleteSession(ctx context.Context, id string) error {
	if !validID(id) {
		return store.ErrNotFound
	}

	if err := s.deleteEvents(ctx, id); err != nil {
		return fmt.Errorf("delete session events: %w", err)
	}

	ref := s.client.Collection(s.cols.Sessions).Doc(id)
	if _, err := ref.Delete(ctx, firestore.Exists); err != nil {
		return fmt.Errorf("delete session: %w", translate(err))
	}
	return nil
}

func (s *Store) deleteEvents(ctx context.Context, sessionID string) error {
	iter := s.client.Collection(s.cols.Events).Where("sessionId", "==", sessionID).Select().Documents(ctx)
	defer iter.Stop()

	bw := s.client.BulkWriter(ctx)
	var jobs []writeJob
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			bw.End()
			return fmt.Errorf("list events: %w", err)
		}
		job, err := bw.Delete(snap.Ref)
		if err != nil {
			bw.End()
			return fmt.Errorf("queue delete of event %s: %w", snap.Ref.ID, err)
		}
		jobs = append(jobs, job)
	}
	bw.End()
	return waitJobs(jobs)
}

// writeJob is the part of *firestore.BulkWriterJob used to confirm a write.
type writeJob interface {
	Results() (*firestore.WriteResult, error)
}

// waitJobs blocks until every job has a result and joins their errors.
func waitJobs(jobs []writeJob) error {
	var errs []error
	for _, job := range jobs {
		if _, err := job.Results(); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("%d of %d writes failed: %w", len(errs), len(jobs), errors.Join(errs...))
	}
	return nil
}

// CreateEvent stores an event in a transaction that first checks the owning
// session exists.
func (s *Store) CreateEvent(ctx context.Context, ev *model.Event) error {
	if !validID(ev.SessionID) {
		return fmt.Errorf("create event: %w", store.ErrNotFound)
	}
	sessRef := s.client.Collection(s.cols.Sessions).Doc(ev.SessionID)
	evRef := s.client.Collection(s.cols.Events).NewDoc()
	ev.Timestamp = s.now().UTC()

	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		if _, err := tx.Get(sessRef); err != nil {
			return err
		}
		return tx.Create(evRef, fromEvent(ev))
	})
	if err != nil {
		return fmt.Errorf("create event: %w", translate(err))
	}
	ev.ID = evRef.ID
	return nil
}

// ListEvents queries a session's events, oldest first.
func (s *Store) ListEvents(ctx context.Context, sessionID string) ([]model.Event, error) {
	if !validID(sessionID) {
		return nil, store.ErrNotFound
	}
	iter := s.client.Collection(s.cols.Events).
		Where("sessionId", "==", sessionID).
		OrderBy("timestamp", firestore.Asc).
		Documents(ctx)
	defer iter.Stop()

	events := make([]model.Event, 0)
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("list events: %w", err)
		}
		var doc eventDoc
		if err := snap.DataTo(&doc); err != nil {
			return nil, fmt.Errorf("decode event %s: %w", snap.Ref.ID, err)
		}
		events = append(events, doc.toModel(snap.Ref.ID))
	}
	return events, nil
}

// UpsertRecruiter writes a recruiter profile, keeping createdAt of an
// existing document.
func (s *Store) UpsertRecruiter(ctx context.Context, r *model.Recruiter) error {
	if !validID(r.ID) {
		return fmt.Errorf("upsert recruiter: invalid id %q", r.ID)
	}
	ref := s.client.Collection(s.cols.Recruiters).Doc(r.ID)
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		doc := recruiterDoc{Email: r.Email, OrgName: r.OrgName, CreatedAt: s.now().UTC()}
		snap, err := tx.Get(ref)
		switch {
		case err == nil:
			var existing recruiterDoc
			if err := snap.DataTo(&existing); err == nil && !existing.CreatedAt.IsZero() {
				doc.CreatedAt = existing.CreatedAt
			}
		case status.Code(err) != codes.NotFound:
			return err
		}
		r.CreatedAt = doc.CreatedAt.UTC()
		return tx.Set(ref, doc)
	})
	if err != nil {
		return fmt.Errorf("upsert recruiter: %w", err)
	}
	return nil
}

// GetRecruiter reads a recruiter profile.
func (s *Store) GetRecruiter(ctx context.Context, id string) (*model.Recruiter, error) {
	if !validID(id) {
		return nil, store.ErrNotFound
	}
	snap, err := s.client.Collection(s.cols.Recruiters).Doc(id).Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("get recruiter: %w", translate(err))
	}
	var doc recruiterDoc
	if err := snap.DataTo(&doc); err != nil {
		return nil, fmt.Errorf("decode recruiter %s: %w", id, err)
	}
	return doc.toModel(id), nil
}
