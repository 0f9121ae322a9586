package session

import (
	"context"
	"fmt"
	"math"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"github.com/shadowsight/shadowsight/internal/model"
)

// Stats are the dashboard counters of one recruiter.
type Stats struct {
	TotalSessions     int     `json:"totalSessions"`
	ActiveSessions    int     `json:"activeSessions"`
	UniqueCandidates  int     `json:"uniqueCandidates"`
	FlaggedSessions   int     `json:"flaggedSessions"`
	FlaggedPercent    float64 `json:"flaggedPercent"`
	AverageTrustScore float64 `json:"averageTrustScore"`
}

// Stats computes the dashboard counters over every session of recruiterID.
func (s *Service) Stats(ctx context.Context, recruiterID string) (_ Stats, err error) {
	ctx, span := startSpan(ctx, "Stats", attribute.String("recruiter.id", recruiterID))
	defer func() { endSpan(span, err) }()

	sessions, err := s.store.ListSessions(ctx, recruiterID)
	if err != nil {
		return Stats{}, fmt.Errorf("list sessions: %w", err)
	}
	return ComputeStats(sessions), nil
}

// ComputeStats aggregates sessions. Candidates are counted by name, ignoring
// case and surrounding space. Percentages and averages are rounded to one
// decimal and are 0 for an empty list.
func ComputeStats(sessions []*model.Session) Stats {
	st := Stats{TotalSessions: len(sessions)}
	if len(sessions) == 0 {
		return st
	}

	candidates := make(map[string]struct{}, len(sessions))
	total := 0
	for _, sess := range sessions {
		if sess.Status == model.StatusActive {
			st.ActiveSessions++
		}
		if sess.Flags > 0 {
			st.FlaggedSessions++
		}
		candidates[strings.ToLower(strings.TrimSpace(sess.CandidateName))] = struct{}{}
		total += sess.TrustScore
	}
	st.UniqueCandidates = len(candidates)
	st.FlaggedPercent = round1(float64(st.FlaggedSessions) * 100 / float64(st.TotalSessions))
	st.AverageTrustScore = round1(float64(total) / float64(st.TotalSessions))
	return st
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
