package session

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"

	"github.com/shadowsight/shadowsight/internal/integrity"
	"github.com/shadowsight/shadowsight/internal/model"
	"github.com/shadowsight/shadowsight/internal/notify"
)

// Analysis is everything the session detail page shows.
type Analysis struct {
	Session   *model.Session      `json:"session"`
	Events    []model.Event       `json:"events"`
	Breakdown integrity.Breakdown `json:"breakdown"`
}

// AddEvent checks that recruiterID owns the session, validates in, stores it
// as a flagged event and rescores the session. A failed rescore is logged rather
// than returned since the event is already stored; the scheduler picks the
// session up on its next pass.
func (s *Service) AddEvent(ctx context.Context, recruiterID, sessionID string, in integrity.EventInput) (_ *model.Event, err error) {
	ctx, span := startSpan(ctx, "AddEvent", attribute.String("recruiter.id", recruiterID), attribute.String("session.id", sessionID))
	defer func() { endSpan(span, err) }()

	sess, err := s.owned(ctx, recruiterID, sessionID)
	if err != nil {
		return nil, err
	}
	ev, err := integrity.NewEvent(sessionID, in)
	if err != nil {
		return nil, err
	}
	if err := s.store.CreateEvent(ctx, &ev); err != nil {
		return nil, fmt.Errorf("create event: %w", err)
	}
	span.SetAttributes(attribute.String("event.id", ev.ID), attribute.String("event.type", string(ev.Type)))

	logger := s.logger.WithFields(log.Fields{"session": sessionID, "event": ev.ID, "type": ev.Type})
	msg := notify.Message{Kind: notify.KindEventCreated, SessionID: sessionID, RecruiterID: recruiterID, Event: &ev}

	d, _, rerr := s.rescore(ctx, sess)
	if rerr != nil {
		logger.WithError(rerr).Warn("rescore after event failed")
	} else {
		msg.Derived = &d
		logger.WithField("trust_score", d.TrustScore).Info("event added")
	}
	if perr := s.publisher.Publish(ctx, msg); perr != nil {
		logger.WithError(perr).Warn("publish event notification failed")
	}
	return &ev, nil
}

// ListEvents returns the timeline of a session owned by recruiterID, oldest
// first.
func (s *Service) ListEvents(ctx context.Context, recruiterID, sessionID string) (_ []model.Event, err error) {
	ctx, span := startSpan(ctx, "ListEvents", attribute.String("recruiter.id", recruiterID), attribute.String("session.id", sessionID))
	defer func() { endSpan(span, err) }()

	if _, err := s.owned(ctx, recruiterID, sessionID); err != nil {
		return nil, err
	}
	events, err := s.store.ListEvents(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	return events, nil
}

// Analysis returns a session with its timeline and score breakdown.
func (s *Service) Analysis(ctx context.Context, recruiterID, sessionID string) (_ *Analysis, err error) {
	ctx, span := startSpan(ctx, "Analysis", attribute.String("recruiter.id", recruiterID), attribute.String("session.id", sessionID))
	defer func() { endSpan(span, err) }()

	sess, err := s.owned(ctx, recruiterID, sessionID)
	if err != nil {
		return nil, err
	}
	events, err := s.store.ListEvents(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	return &Analysis{Session: sess, Events: events, Breakdown: s.weights.Explain(events)}, nil
}

// Rescore recomputes the derived fields of a session from its stored events
// and writes them when they differ from the stored ones. It reports whether
// a write happened.
func (s *Service) Rescore(ctx context.Context, sessionID string) (_ model.Derived, _ bool, err error) {
	ctx, span := startSpan(ctx, "Rescore", attribute.String("session.id", sessionID))
	defer func() { endSpan(span, err) }()

	sess, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return model.Derived{}, false, fmt.Errorf("get session: %w", err)
	}
	d, changed, err := s.rescore(ctx, sess)
	if err != nil {
		return model.Derived{}, false, err
	}
	if changed {
		msg := notify.Message{Kind: notify.KindSessionRescored, SessionID: sessionID, RecruiterID: sess.RecruiterID, Derived: &d}
		if perr := s.publisher.Publish(ctx, msg); perr != nil {
			s.logger.WithError(perr).WithField("session", sessionID).Warn("publish rescore notification failed")
		}
	}
	return d, changed, nil
}

func (s *Service) rescore(ctx context.Context, sess *model.Session) (model.Derived, bool, error) {
	events, err := s.store.ListEvents(ctx, sess.ID)
	if err != nil {
		return model.Derived{}, false, fmt.Errorf("list events: %w", err)
	}
	d := s.weights.Derive(events)
	if d == sess.Derived() {
		return d, false, nil
	}
	if err := s.store.UpdateSessionScore(ctx, sess.ID, d); err != nil {
		return model.Derived{}, false, fmt.Errorf("update session score: %w", err)
	}
	sess.TrustScore, sess.Flags, sess.Severity = d.TrustScore, d.Flags, d.Severity
	return d, true, nil
}
