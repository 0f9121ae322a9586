// Package session implements the recruiter-facing operations on interview
// sessions: CRUD scoped to the owning recruiter, flagged events with an
// automatic rescore, analysis and dashboard statistics.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/shadowsight/shadowsight/internal/integrity"
	"github.com/shadowsight/shadowsight/internal/model"
	"github.com/shadowsight/shadowsight/internal/notify"
	"github.com/shadowsight/shadowsight/internal/store"
)

const tracerName = "github.com/shadowsight/shadowsight/internal/session"

// Service is safe for concurrent use.
type Service struct {
	store     store.Store
	publisher notify.Publisher
	weights   integrity.Weights
	logger    *log.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithWeights overrides the default deduction weights. NewService rejects a
// table that fails integrity.Weights.Validate.
func WithWeights(w integrity.Weights) Option {
	return func(s *Service) { s.weights = w.Clone() }
}

// WithLogger sets the logger; the standard logrus logger is used otherwise.
func WithLogger(l *log.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// NewService creates a service over st. A nil publisher discards
// notifications.
func NewService(st store.Store, pub notify.Publisher, opts ...Option) (*Service, error) {
	if pub == nil {
		pub = notify.Nop{}
	}
	s := &Service{
		store:     st,
		publisher: pub,
		weights:   integrity.DefaultWeights(),
		logger:    log.StandardLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.weights.Validate(); err != nil {
		return nil, fmt.Errorf("scoring weights: %w", err)
	}
	return s, nil
}

// Weights returns a copy of the deduction weights used for scoring.
func (s *Service) Weights() integrity.Weights {
	return s.weights.Clone()
}

func startSpan(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "session."+op, trace.WithAttributes(attrs...))
}

func endSpan(span trace.Span, err error) {
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// CreateSession validates in and stores a new active session for recruiterID.
func (s *Service) CreateSession(ctx context.Context, recruiterID string, in integrity.SessionInput) (_ *model.Session, err error) {
	ctx, span := startSpan(ctx, "CreateSession", attribute.String("recruiter.id", recruiterID))
	defer func() { endSpan(span, err) }()

	sess, err := integrity.NewSession(recruiterID, in)
	if err != nil {
		return nil, err
	}
	if err := s.store.CreateSession(ctx, &sess); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	span.SetAttributes(attribute.String("session.id", sess.ID))
	s.logger.WithFields(log.Fields{"recruiter": recruiterID, "session": sess.ID}).Info("session created")
	return &sess, nil
}

// ListSessions returns the recruiter's sessions, newest first. A non-empty
// query keeps sessions whose candidate name, ID or platform contains it,
// ignoring case.
func (s *Service) ListSessions(ctx context.Context, recruiterID, query string) (_ []*model.Session, err error) {
	ctx, span := startSpan(ctx, "ListSessions", attribute.String("recruiter.id", recruiterID))
	defer func() { endSpan(span, err) }()

	sessions, err := s.store.ListSessions(ctx, recruiterID)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	sessions = Filter(sessions, query)
	span.SetAttributes(attribute.Int("session.count", len(sessions)))
	return sessions, nil
}

// Filter keeps the sessions matching query the way the dashboard search box
// does.
func Filter(sessions []*model.Session, query string) []*model.Session {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return sessions
	}
	out := make([]*model.Session, 0, len(sessions))
	for _, sess := range sessions {
		if strings.Contains(strings.ToLower(sess.CandidateName), q) ||
			strings.Contains(strings.ToLower(sess.ID), q) ||
			strings.Contains(strings.ToLower(sess.Platform), q) {
			out = append(out, sess)
		}
	}
	return out
}

// GetSession returns a session owned by recruiterID. Sessions of other
// recruiters are reported as store.ErrNotFound.
func (s *Service) GetSession(ctx context.Context, recruiterID, id string) (_ *model.Session, err error) {
	ctx, span := startSpan(ctx, "GetSession", attribute.String("recruiter.id", recruiterID), attribute.String("session.id", id))
	defer func() { endSpan(span, err) }()
	return s.owned(ctx, recruiterID, id)
}

func (s *Service) owned(ctx context.Context, recruiterID, id string) (*model.Session, error) {
	sess, err := s.store.GetSession(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	if sess.RecruiterID != recruiterID {
		return nil, fmt.Errorf("get session: %w", store.ErrNotFound)
	}
	return sess, nil
}

// UpdateSession applies p to a session owned by recruiterID and returns the
// updated session.
func (s *Service) UpdateSession(ctx context.Context, recruiterID, id string, p model.SessionPatch) (_ *model.Session, err error) {
	ctx, span := startSpan(ctx, "UpdateSession", attribute.String("recruiter.id", recruiterID), attribute.String("session.id", id))
	defer func() { endSpan(span, err) }()

	if err := integrity.ValidatePatch(&p); err != nil {
		return nil, err
	}
	sess, err := s.owned(ctx, recruiterID, id)
	if err != nil {
		return nil, err
	}
	if err := s.store.UpdateSession(ctx, id, p); err != nil {
		return nil, fmt.Errorf("update session: %w", err)
	}
	p.Apply(sess)
	return sess, nil
}

// DeleteSession removes a session owned by recruiterID along with its events.
func (s *Service) DeleteSession(ctx context.Context, recruiterID, id string) (err error) {
	ctx, span := startSpan(ctx, "DeleteSession", attribute.String("recruiter.id", recruiterID), attribute.String("session.id", id))
	defer func() { endSpan(span, err) }()

	if _, err := s.owned(ctx, recruiterID, id); err != nil {
		return err
	}
	if err := s.store.DeleteSession(ctx, id); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	s.logger.WithFields(log.Fields{"recruiter": recruiterID, "session": id}).Info("session deleted")
	return nil
}

// RegisterRecruiter creates or updates the profile of recruiter id.
func (s *Service) RegisterRecruiter(ctx context.Context, id, email, orgName string) (*model.Recruiter, error) {
	verr := &integrity.ValidationError{}
	email = strings.TrimSpace(email)
	orgName = strings.TrimSpace(orgName)
	if id == "" {
		verr.Fields = append(verr.Fields, integrity.FieldError{Field: "id", Message: "recruiter ID is required"})
	}
	if !strings.Contains(email, "@") {
		verr.Fields = append(verr.Fields, integrity.FieldError{Field: "email", Message: "please enter a valid email"})
	}
	if len([]rune(orgName)) < integrity.MinTextLength {
		verr.Fields = append(verr.Fields, integrity.FieldError{Field: "orgName", Message: fmt.Sprintf("organization name must be at least %d characters", integrity.MinTextLength)})
	}
	if len(verr.Fields) > 0 {
		return nil, verr
	}

	r := &model.Recruiter{ID: id, Email: email, OrgName: orgName}
	if err := s.store.UpsertRecruiter(ctx, r); err != nil {
		return nil, fmt.Errorf("register recruiter: %w", err)
	}
	return r, nil
}

// GetRecruiter returns the profile of recruiter id.
func (s *Service) GetRecruiter(ctx context.Context, id string) (*model.Recruiter, error) {
	r, err := s.store.GetRecruiter(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get recruiter: %w", err)
	}
	return r, nil
}
