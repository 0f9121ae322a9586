package localstore

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/shadowsight/shadowsight/internal/model"
	"github.com/shadowsight/shadowsight/internal/store"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dir := t.TempDir()
	s, err := New(filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatalf("create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func newSession(recruiter, candidate string) *model.Session {
	return &model.Session{
		RecruiterID:   recruiter,
		CandidateName: candidate,
		Position:      "Backend Engineer",
		Platform:      "CoderPad",
		Status:        model.StatusActive,
		TrustScore:    100,
		Severity:      model.SeverityLow,
	}
}

func TestCreateAndGetSession(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	sess := newSession("r-1", "Anonymous Candidate #1")
	if err := s.CreateSession(ctx, sess); err != nil {
		t.Fatalf("create session: %v", err)
	}
	if sess.ID == "" || sess.Timestamp.IsZero() {
		t.Fatalf("expected ID and timestamp to be assigned: %+v", sess)
	}

	got, err := s.GetSession(ctx, sess.ID)
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if got.CandidateName != sess.CandidateName || got.Status != model.StatusActive || got.TrustScore != 100 {
		t.Fatalf("unexpected session: %+v", got)
	}
	if !got.Timestamp.Equal(sess.Timestamp) {
		t.Fatalf("timestamp mismatch: %v vs %v", got.Timestamp, sess.Timestamp)
	}

	if _, err := s.GetSession(ctx, "missing"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListSessionsNewestFirstPerRecruiter(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	base := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	step := 0
	s.now = func() time.Time {
		step++
		return base.Add(time.Duration(step) * time.Minute)
	}

	for _, name := range []string{"first", "second", "third"} {
		if err := s.CreateSession(ctx, newSession("r-1", name)); err != nil {
			t.Fatalf("create session: %v", err)
		}
	}
	if err := s.CreateSession(ctx, newSession("r-2", "other")); err != nil {
		t.Fatalf("create session: %v", err)
	}

	got, err := s.ListSessions(ctx, "r-1")
	if err != nil {
		t.Fatalf("list sessions: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 sessions, got %d", len(got))
	}
	if got[0].CandidateName != "third" || got[2].CandidateName != "first" {
		t.Fatalf("unexpected order: %s, %s, %s", got[0].CandidateName, got[1].CandidateName, got[2].CandidateName)
	}
}

func TestUpdateSessionPatch(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	sess := newSession("r-1", "Before")
	if err := s.CreateSession(ctx, sess); err != nil {
		t.Fatalf("create session: %v", err)
	}

	name := "After"
	status := model.StatusCompleted
	if err := s.UpdateSession(ctx, sess.ID, model.SessionPatch{CandidateName: &name, Status: &status}); err != nil {
		t.Fatalf("update session: %v", err)
	}

	got, _ := s.GetSession(ctx, sess.ID)
	if got.CandidateName != "After" || got.Status != model.StatusCompleted || got.Platform != "CoderPad" {
		t.Fatalf("unexpected session after patch: %+v", got)
	}

	if err := s.UpdateSession(ctx, "missing", model.SessionPatch{CandidateName: &name}); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestEventsAndScore(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	sess := newSession("r-1", "Candidate")
	if err := s.CreateSession(ctx, sess); err != nil {
		t.Fatalf("create session: %v", err)
	}

	types := []model.EventType{model.EventPaste, model.EventOverlay, model.EventTabSwitch}
	for _, typ := range types {
		ev := &model.Event{SessionID: sess.ID, Type: typ, Details: "flagged", Severity: model.SeverityHigh}
		if err := s.CreateEvent(ctx, ev); err != nil {
			t.Fatalf("create event: %v", err)
		}
		if ev.ID == "" {
			t.Fatal("expected event ID")
		}
	}

	events, err := s.ListEvents(ctx, sess.ID)
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(events))
	}
	for i, typ := range types {
		if events[i].Type != typ {
			t.Fatalf("event %d type = %q, want %q", i, events[i].Type, typ)
		}
	}

	err = s.CreateEvent(ctx, &model.Event{SessionID: "missing", Type: model.EventPaste, Details: "x", Severity: model.SeverityLow})
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for orphan event, got %v", err)
	}

	d := model.Derived{TrustScore: 72, Flags: 3, Severity: model.SeverityMedium}
	if err := s.UpdateSessionScore(ctx, sess.ID, d); err != nil {
		t.Fatalf("update score: %v", err)
	}
	got, _ := s.GetSession(ctx, sess.ID)
	if got.Derived() != d {
		t.Fatalf("derived = %+v, want %+v", got.Derived(), d)
	}
}

func TestDeleteSessionCascades(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	sess := newSession("r-1", "Candidate")
	if err := s.CreateSession(ctx, sess); err != nil {
		t.Fatalf("create session: %v", err)
	}
	if err := s.CreateEvent(ctx, &model.Event{SessionID: sess.ID, Type: model.EventClick, Details: "clicks", Severity: model.SeverityLow}); err != nil {
		t.Fatalf("create event: %v", err)
	}

	if err := s.DeleteSession(ctx, sess.ID); err != nil {
		t.Fatalf("delete session: %v", err)
	}
	events, err := s.ListEvents(ctx, sess.ID)
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	if len(events) != 0 {
		t.Fatalf("expected events to be deleted, got %d", len(events))
	}
	if err := s.DeleteSession(ctx, sess.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second delete, got %v", err)
	}
}

func TestListSessionIDsPages(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	for i := 0; i < 5; i++ {
		if err := s.CreateSession(ctx, newSession("r-1", "c")); err != nil {
			t.Fatalf("create session: %v", err)
		}
	}

	var all []string
	after := ""
	for {
		page, err := s.ListSessionIDs(ctx, after, 2)
		if err != nil {
			t.Fatalf("list ids: %v", err)
		}
		if len(page) == 0 {
			break
		}
		all = append(all, page...)
		after = page[len(page)-1]
	}
	if len(all) != 5 {
		t.Fatalf("expected 5 ids, got %d", len(all))
	}
	for i := 1; i < len(all); i++ {
		if all[i] <= all[i-1] {
			t.Fatalf("ids not ascending: %v", all)
		}
	}
}

func TestRecruiterUpsertKeepsCreatedAt(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	r := &model.Recruiter{ID: "uid-1", Email: "jane@example.com", OrgName: "Acme"}
	if err := s.UpsertRecruiter(ctx, r); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	first := r.CreatedAt

	s.now = func() time.Time { return first.Add(time.Hour) }
	r2 := &model.Recruiter{ID: "uid-1", Email: "jane@acme.io", OrgName: "Acme Inc"}
	if err := s.UpsertRecruiter(ctx, r2); err != nil {
		t.Fatalf("upsert again: %v", err)
	}
	if !r2.CreatedAt.Equal(first) {
		t.Fatalf("created_at changed: %v vs %v", r2.CreatedAt, first)
	}

	got, err := s.GetRecruiter(ctx, "uid-1")
	if err != nil {
		t.Fatalf("get recruiter: %v", err)
	}
	if got.Email != "jane@acme.io" || got.OrgName != "Acme Inc" {
		t.Fatalf("unexpected recruiter: %+v", got)
	}
	if _, err := s.GetRecruiter(ctx, "nobody"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
