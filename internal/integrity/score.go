// Package integrity turns the flagged events of an interview session into a
// trust score.
package integrity

import (
	"fmt"
	"sort"

	"github.com/shadowsight/shadowsight/internal/model"
)

// MaxScore is the score of a session with no deductions.
const MaxScore = 100

// Weights is the per-event deduction for each scored event type. Event types
// without a weight deduct nothing.
type Weights map[model.EventType]int

// defaultWeights ranks overlays above tab switches above pastes.
var defaultWeights = Weights{
	model.EventPaste:     5,
	model.EventOverlay:   15,
	model.EventTabSwitch: 8,
}

// DefaultWeights returns a copy of the standard deduction table.
func DefaultWeights() Weights {
	return defaultWeights.Clone()
}

// Clone returns a copy of w.
func (w Weights) Clone() Weights {
	out := make(Weights, len(w))
	for t, v := range w {
		out[t] = v
	}
	return out
}

// Validate rejects weights for event types outside the closed set and
// negative weights, either of which would let a score rise as events are
// added.
func (w Weights) Validate() error {
	for t, v := range w {
		if !t.Valid() {
			return fmt.Errorf("weight for unknown event type %q", t)
		}
		if v < 0 {
			return fmt.Errorf("negative weight %d for %s", v, t)
		}
	}
	return nil
}

// ComputeTrustScore calculates the trust score of a session from its events.
// Score starts at 100, subtracts the weight of every scored event and is
// floored at 0. Unknown or unscored types contribute nothing.
func ComputeTrustScore(events []model.Event) int {
	return defaultWeights.Score(events)
}

// Score applies w to events.
func (w Weights) Score(events []model.Event) int {
	score := MaxScore
	for _, ev := range events {
		score -= w[ev.Type]
	}

	// Floor at 0, cap at 100
	if score < 0 {
		score = 0
	}
	if score > MaxScore {
		score = MaxScore
	}

	return score
}

// Deduction is the contribution of one event type to a breakdown.
type Deduction struct {
	Type   model.EventType `json:"type"`
	Count  int             `json:"count"`
	Weight int             `json:"weight"`
	Points int             `json:"points"`
}

// Breakdown explains how a score was reached.
type Breakdown struct {
	Score      int            `json:"score"`
	RawScore   int            `json:"rawScore"`
	Events     int            `json:"events"`
	Unscored   int            `json:"unscored"`
	Deductions []Deduction    `json:"deductions"`
	Band       string         `json:"band"`
	Severity   model.Severity `json:"severity"`
}

// Explain returns the breakdown of events under the default weights.
func Explain(events []model.Event) Breakdown {
	return defaultWeights.Explain(events)
}

// Explain counts events per scored type and reports each deduction. The
// deductions follow model.EventTypes order; any other weighted type comes
// after them, sorted by name.
func (w Weights) Explain(events []model.Event) Breakdown {
	counts := make(map[model.EventType]int, len(w))
	unscored := 0
	for _, ev := range events {
		if w[ev.Type] == 0 {
			unscored++
			continue
		}
		counts[ev.Type]++
	}

	b := Breakdown{
		RawScore:   MaxScore,
		Events:     len(events),
		Unscored:   unscored,
		Deductions: make([]Deduction, 0, len(w)),
	}
	for _, t := range weightedTypes(w) {
		weight := w[t]
		d := Deduction{Type: t, Count: counts[t], Weight: weight, Points: counts[t] * weight}
		b.RawScore -= d.Points
		b.Deductions = append(b.Deductions, d)
	}

	b.Score = w.Score(events)
	b.Band = Band(b.Score)
	b.Severity = SeverityForScore(b.Score)
	return b
}

func weightedTypes(w Weights) []model.EventType {
	types := make([]model.EventType, 0, len(w))
	for _, t := range model.EventTypes {
		if _, ok := w[t]; ok {
			types = append(types, t)
		}
	}
	var extra []model.EventType
	for t := range w {
		if !t.Valid() {
			extra = append(extra, t)
		}
	}
	sort.Slice(extra, func(i, j int) bool { return extra[i] < extra[j] })
	return append(types, extra...)
}

// Derive recomputes the derived session fields from its events under the
// default weights.
func Derive(events []model.Event) model.Derived {
	return defaultWeights.Derive(events)
}

// Derive recomputes the derived session fields from its events. Every
// stored event counts as a flag, scored or not.
func (w Weights) Derive(events []model.Event) model.Derived {
	score := w.Score(events)
	return model.Derived{
		TrustScore: score,
		Flags:      len(events),
		Severity:   SeverityForScore(score),
	}
}
