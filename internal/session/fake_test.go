package session

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shadowsight/shadowsight/internal/model"
	"github.com/shadowsight/shadowsight/internal/notify"
	"github.com/shadowsight/shadowsight/internal/store"
)

// memStore is an in-memory store.Store for service tests.
type memStore struct {
	mu         sync.Mutex
	seq        int
	clock      time.Time
	sessions   map[string]*model.Session
	events     map[string][]model.Event
	recruiters map[string]*model.Recruiter

	failScore error
}

func newMemStore() *memStore {
	return &memStore{
		clock:      time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC),
		sessions:   make(map[string]*model.Session),
		events:     make(map[string][]model.Event),
		recruiters: make(map[string]*model.Recruiter),
	}
}

func (m *memStore) next(prefix string) (string, time.Time) {
	m.seq++
	m.clock = m.clock.Add(time.Second)
	return fmt.Sprintf("%s-%03d", prefix, m.seq), m.clock
}

func (m *memStore) CreateSession(_ context.Context, s *model.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s.ID, s.Timestamp = m.next("sess")
	cp := *s
	m.sessions[s.ID] = &cp
	return nil
}

func (m *memStore) GetSession(_ context.Context, id string) (*model.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *memStore) ListSessions(_ context.Context, recruiterID string) ([]*model.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*model.Session, 0)
	for _, s := range m.sessions {
		if s.RecruiterID == recruiterID {
			cp := *s
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	return out, nil
}

func (m *memStore) ListSessionIDs(_ context.Context, after string, limit int) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		if id > after {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	if len(ids) > limit {
		ids = ids[:limit]
	}
	return ids, nil
}

func (m *memStore) UpdateSession(_ context.Context, id string, p model.SessionPatch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return store.ErrNotFound
	}
	p.Apply(s)
	return nil
}

func (m *memStore) UpdateSessionScore(_ context.Context, id string, d model.Derived) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failScore != nil {
		return m.failScore
	}
	s, ok := m.sessions[id]
	if !ok {
		return store.ErrNotFound
	}
	s.TrustScore, s.Flags, s.Severity = d.TrustScore, d.Flags, d.Severity
	return nil
}

func (m *memStore) DeleteSession(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[id]; !ok {
		return store.ErrNotFound
	}
	delete(m.sessions, id)
	delete(m.events, id)
	return nil
}

func (m *memStore) CreateEvent(_ context.Context, ev *model.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[ev.SessionID]; !ok {
		return store.ErrNotFound
	}
	ev.ID, ev.Timestamp = m.next("ev")
	m.events[ev.SessionID] = append(m.events[ev.SessionID], *ev)
	return nil
}

func (m *memStore) ListEvents(_ context.Context, sessionID string) ([]model.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.Event(nil), m.events[sessionID]...), nil
}

func (m *memStore) UpsertRecruiter(_ context.Context, r *model.Recruiter) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.recruiters[r.ID]; ok {
		r.CreatedAt = existing.CreatedAt
	} else {
		_, r.CreatedAt = m.next("rec")
	}
	cp := *r
	m.recruiters[r.ID] = &cp
	return nil
}

func (m *memStore) GetRecruiter(_ context.Context, id string) (*model.Recruiter, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.recruiters[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (m *memStore) Health(context.Context) error { return nil }
func (m *memStore) Close() error                 { return nil }

// recordingPublisher keeps every published message.
type recordingPublisher struct {
	mu   sync.Mutex
	msgs []notify.Message
	err  error
}

func (p *recordingPublisher) Publish(_ context.Context, msg notify.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.msgs = append(p.msgs, msg)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) kinds() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.msgs))
	for i, m := range p.msgs {
		out[i] = m.Kind
	}
	return out
}

var errBoom = errors.New("boom")
