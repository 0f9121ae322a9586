package integrity

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/shadowsight/shadowsight/internal/model"
)

// MinTextLength is the minimum length of names, positions, platforms and
// event details.
const MinTextLength = 2

// FieldError describes one rejected input field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError collects every rejected field of an input.
type ValidationError struct {
	Fields []FieldError `json:"fields"`
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		parts[i] = f.Field + ": " + f.Message
	}
	return "invalid input: " + strings.Join(parts, "; ")
}

func (e *ValidationError) add(field, format string, args ...any) {
	e.Fields = append(e.Fields, FieldError{Field: field, Message: fmt.Sprintf(format, args...)})
}

func (e *ValidationError) orNil() error {
	if len(e.Fields) == 0 {
		return nil
	}
	return e
}

// EventInput is a flagged event as submitted by a recruiter.
type EventInput struct {
	Type     string `json:"type"`
	Details  string `json:"details"`
	Severity string `json:"severity"`
}

// SessionInput is a new session as submitted by a recruiter.
type SessionInput struct {
	CandidateName string `json:"candidateName"`
	Position      string `json:"position"`
	Platform      string `json:"platform"`
	Notes         string `json:"notes"`
}

// NewEvent validates in and returns an unsaved event for sessionID. An empty
// severity defaults to medium.
func NewEvent(sessionID string, in EventInput) (model.Event, error) {
	verr := &ValidationError{}

	if strings.TrimSpace(sessionID) == "" {
		verr.add("sessionId", "session ID is required")
	}

	var typ model.EventType
	if strings.TrimSpace(in.Type) == "" {
		verr.add("type", "please select an event type")
	} else if t, err := model.ParseEventType(in.Type); err != nil {
		verr.add("type", "must be one of %s", joinEventTypes())
	} else {
		typ = t
	}

	details := strings.TrimSpace(in.Details)
	if utf8.RuneCountInString(details) < MinTextLength {
		verr.add("details", "details must be at least %d characters", MinTextLength)
	}

	sev := model.SeverityMedium
	if strings.TrimSpace(in.Severity) != "" {
		s, err := model.ParseSeverity(in.Severity)
		if err != nil {
			verr.add("severity", "must be one of low, medium, high, critical")
		}
		sev = s
	}

	if err := verr.orNil(); err != nil {
		return model.Event{}, err
	}
	return model.Event{SessionID: sessionID, Type: typ, Details: details, Severity: sev}, nil
}

// NewSession validates in and returns an unsaved session owned by
// recruiterID, carrying the defaults of a freshly started interview.
func NewSession(recruiterID string, in SessionInput) (model.Session, error) {
	verr := &ValidationError{}
	if strings.TrimSpace(recruiterID) == "" {
		verr.add("recruiterId", "recruiter ID is required")
	}
	candidate := checkText(verr, "candidateName", "candidate name", in.CandidateName)
	position := checkText(verr, "position", "position", in.Position)
	platform := checkText(verr, "platform", "platform", in.Platform)

	if err := verr.orNil(); err != nil {
		return model.Session{}, err
	}
	return model.Session{
		RecruiterID:   recruiterID,
		CandidateName: candidate,
		Position:      position,
		Platform:      platform,
		Notes:         strings.TrimSpace(in.Notes),
		Status:        model.StatusActive,
		TrustScore:    MaxScore,
		Flags:         0,
		Severity:      model.SeverityLow,
	}, nil
}

// ValidatePatch checks the set fields of p with the rules of NewSession and
// trims them in place.
func ValidatePatch(p *model.SessionPatch) error {
	verr := &ValidationError{}
	if p.Empty() {
		verr.add("patch", "no fields to update")
		return verr
	}
	if p.CandidateName != nil {
		v := checkText(verr, "candidateName", "candidate name", *p.CandidateName)
		p.CandidateName = &v
	}
	if p.Position != nil {
		v := checkText(verr, "position", "position", *p.Position)
		p.Position = &v
	}
	if p.Platform != nil {
		v := checkText(verr, "platform", "platform", *p.Platform)
		p.Platform = &v
	}
	if p.Notes != nil {
		v := strings.TrimSpace(*p.Notes)
		p.Notes = &v
	}
	if p.Status != nil {
		st, err := model.ParseSessionStatus(string(*p.Status))
		if err != nil {
			verr.add("status", "must be one of active, completed")
		} else {
			p.Status = &st
		}
	}
	return verr.orNil()
}

func checkText(verr *ValidationError, field, label, value string) string {
	v := strings.TrimSpace(value)
	if utf8.RuneCountInString(v) < MinTextLength {
		verr.add(field, "%s must be at least %d characters", label, MinTextLength)
	}
	return v
}

func joinEventTypes() string {
	names := make([]string, len(model.EventTypes))
	for i, t := range model.EventTypes {
		names[i] = string(t)
	}
	return strings.Join(names, ", ")
}
