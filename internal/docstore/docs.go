package docstore

import (
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/shadowsight/shadowsight/internal/integrity"
	"github.com/shadowsight/shadowsight/internal/model"
)

// sessionDoc mirrors a document in the sessions collection.
type sessionDoc struct {
	RecruiterID   string    `firestore:"recruiterId"`
	CandidateName string    `firestore:"candidateName"`
	Position      string    `firestore:"position"`
	Platform      string    `firestore:"platform"`
	Notes         string    `firestore:"notes"`
	Status        string    `firestore:"status"`
	TrustScore    int64     `firestore:"trustScore"`
	Flags         int64     `firestore:"flags"`
	Severity      string    `firestore:"severity"`
	Timestamp     time.Time `firestore:"timestamp"`
}

// eventDoc mirrors a document in the flaggedEvents collection.
type eventDoc struct {
	SessionID string    `firestore:"sessionId"`
	Type      string    `firestore:"type"`
	Details   string    `firestore:"details"`
	Severity  string    `firestore:"severity"`
	Timestamp time.Time `firestore:"timestamp"`
}

// recruiterDoc mirrors a document in the recruiters collection.
type recruiterDoc struct {
	Email     string    `firestore:"email"`
	OrgName   string    `firestore:"orgName"`
	CreatedAt time.Time `firestore:"createdAt"`
}

func fromSession(s *model.Session) sessionDoc {
	return sessionDoc{
		RecruiterID:   s.RecruiterID,
		CandidateName: s.CandidateName,
		Position:      s.Position,
		Platform:      s.Platform,
		Notes:         s.Notes,
		Status:        string(s.Status),
		TrustScore:    int64(s.TrustScore),
		Flags:         int64(s.Flags),
		Severity:      string(s.Severity),
		Timestamp:     s.Timestamp,
	}
}

// toModel validates the loosely typed document at the store boundary.
// Unknown enum values fall back to the session defaults and out of range
// scores are clamped.
func (d sessionDoc) toModel(id string) *model.Session {
	status, err := model.ParseSessionStatus(d.Status)
	if err != nil {
		log.WithField("session", id).WithError(err).Warn("session has unknown status; treating as active")
		status = model.StatusActive
	}
	severity, err := model.ParseSeverity(d.Severity)
	if err != nil {
		log.WithField("session", id).WithError(err).Warn("session has unknown severity; deriving from score")
		severity = ""
	}

	score := int(d.TrustScore)
	if score < 0 {
		score = 0
	}
	if score > integrity.MaxScore {
		score = integrity.MaxScore
	}
	if severity == "" {
		severity = integrity.SeverityForScore(score)
	}

	flags := int(d.Flags)
	if flags < 0 {
		flags = 0
	}

	return &model.Session{
		ID:            id,
		RecruiterID:   d.RecruiterID,
		CandidateName: d.CandidateName,
		Position:      d.Position,
		Platform:      d.Platform,
		Notes:         d.Notes,
		Status:        status,
		TrustScore:    score,
		Flags:         flags,
		Severity:      severity,
		Timestamp:     d.Timestamp.UTC(),
	}
}

func fromEvent(ev *model.Event) eventDoc {
	return eventDoc{
		SessionID: ev.SessionID,
		Type:      string(ev.Type),
		Details:   ev.Details,
		Severity:  string(ev.Severity),
		Timestamp: ev.Timestamp,
	}
}

// toModel keeps an unknown event type verbatim so the event still shows on
// the timeline; the calculator scores it as zero.
func (d eventDoc) toModel(id string) model.Event {
	typ, err := model.ParseEventType(d.Type)
	if err != nil {
		log.WithFields(log.Fields{"event": id, "session": d.SessionID, "type": d.Type}).Warn("event has unknown type")
		typ = model.EventType(d.Type)
	}
	sev, err := model.ParseSeverity(d.Severity)
	if err != nil {
		log.WithFields(log.Fields{"event": id, "session": d.SessionID, "severity": d.Severity}).Warn("event has unknown severity; treating as low")
		sev = model.SeverityLow
	}
	return model.Event{
		ID:        id,
		SessionID: d.SessionID,
		Type:      typ,
		Details:   d.Details,
		Severity:  sev,
		Timestamp: d.Timestamp.UTC(),
	}
}

func (d recruiterDoc) toModel(id string) *model.Recruiter {
	return &model.Recruiter{ID: id, Email: d.Email, OrgName: d.OrgName, CreatedAt: d.CreatedAt.UTC()}
}
