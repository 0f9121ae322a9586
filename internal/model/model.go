// Package model defines the session, event and recruiter records shared by
// every store and service.
package model

import (
	"fmt"
	"strings"
	"time"
)

// EventType is the kind of flagged behavior an Event records.
type EventType string

const (
	EventPaste     EventType = "paste"
	EventOverlay   EventType = "overlay"
	EventTabSwitch EventType = "tab_switch"
	EventClick     EventType = "click"
	EventOther     EventType = "other"
)

// EventTypes lists the closed set of accepted event types.
var EventTypes = []EventType{EventPaste, EventOverlay, EventTabSwitch, EventClick, EventOther}

// Valid reports whether t is one of EventTypes.
func (t EventType) Valid() bool {
	switch t {
	case EventPaste, EventOverlay, EventTabSwitch, EventClick, EventOther:
		return true
	}
	return false
}

// ParseEventType normalizes s and checks it against the closed set.
func ParseEventType(s string) (EventType, error) {
	t := EventType(strings.ToLower(strings.TrimSpace(s)))
	if !t.Valid() {
		return "", fmt.Errorf("unknown event type %q", s)
	}
	return t, nil
}

// Severity is a qualitative risk label attached to a session or event.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Severities lists the closed set of severities, least to most severe.
var Severities = []Severity{SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical}

func (s Severity) Valid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	}
	return false
}

// ParseSeverity normalizes s and checks it against the closed set.
func ParseSeverity(s string) (Severity, error) {
	sev := Severity(strings.ToLower(strings.TrimSpace(s)))
	if !sev.Valid() {
		return "", fmt.Errorf("unknown severity %q", s)
	}
	return sev, nil
}

// SessionStatus tracks whether an interview is still in progress.
type SessionStatus string

const (
	StatusActive    SessionStatus = "active"
	StatusCompleted SessionStatus = "completed"
)

func (s SessionStatus) Valid() bool {
	return s == StatusActive || s == StatusCompleted
}

// ParseSessionStatus normalizes s and checks it against the known statuses.
func ParseSessionStatus(s string) (SessionStatus, error) {
	st := SessionStatus(strings.ToLower(strings.TrimSpace(s)))
	if !st.Valid() {
		return "", fmt.Errorf("unknown session status %q", s)
	}
	return st, nil
}

// Event is a single flagged behavior observed during a session. Events are
// immutable once stored.
type Event struct {
	ID        string    `json:"id"`
	SessionID string    `json:"sessionId"`
	Type      EventType `json:"type"`
	Details   string    `json:"details"`
	Severity  Severity  `json:"severity"`
	Timestamp time.Time `json:"timestamp"`
}

// Session is one monitored candidate interview. TrustScore, Flags and
// Severity are derived from the session's events.
type Session struct {
	ID            string        `json:"id"`
	RecruiterID   string        `json:"recruiterId"`
	CandidateName string        `json:"candidateName"`
	Position      string        `json:"position"`
	Platform      string        `json:"platform"`
	Notes         string        `json:"notes"`
	Status        SessionStatus `json:"status"`
	TrustScore    int           `json:"trustScore"`
	Flags         int           `json:"flags"`
	Severity      Severity      `json:"severity"`
	Timestamp     time.Time     `json:"timestamp"`
}

// Recruiter is the profile written when a recruiter signs up.
type Recruiter struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	OrgName   string    `json:"orgName"`
	CreatedAt time.Time `json:"createdAt"`
}

// Derived holds the session fields recomputed from events.
type Derived struct {
	TrustScore int      `json:"trustScore"`
	Flags      int      `json:"flags"`
	Severity   Severity `json:"severity"`
}

// Derived returns the session's current derived fields.
func (s *Session) Derived() Derived {
	return Derived{TrustScore: s.TrustScore, Flags: s.Flags, Severity: s.Severity}
}

// SessionPatch is a partial update of the recruiter-editable session fields.
// Nil fields are left unchanged.
type SessionPatch struct {
	CandidateName *string        `json:"candidateName,omitempty"`
	Position      *string        `json:"position,omitempty"`
	Platform      *string        `json:"platform,omitempty"`
	Notes         *string        `json:"notes,omitempty"`
	Status        *SessionStatus `json:"status,omitempty"`
}

// Empty reports whether the patch changes nothing.
func (p SessionPatch) Empty() bool {
	return p.CandidateName == nil && p.Position == nil && p.Platform == nil && p.Notes == nil && p.Status == nil
}

// Apply writes the set fields of p onto s.
func (p SessionPatch) Apply(s *Session) {
	if p.CandidateName != nil {
		s.CandidateName = *p.CandidateName
	}
	if p.Position != nil {
		s.Position = *p.Position
	}
	if p.Platform != nil {
		s.Platform = *p.Platform
	}
	if p.Notes != nil {
		s.Notes = *p.Notes
	}
	if p.Status != nil {
		s.Status = *p.Status
	}
}
