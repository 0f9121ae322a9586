package integrity

import "github.com/shadowsight/shadowsight/internal/model"

// Score band labels shown on the trust score card.
const (
	BandTrustworthy       = "Trustworthy"
	BandMostlyTrustworthy = "Mostly Trustworthy"
	BandQuestionable      = "Questionable"
	BandSuspicious        = "Suspicious"
)

// Band returns the label for a trust score.
func Band(score int) string {
	switch {
	case score >= 90:
		return BandTrustworthy
	case score >= 70:
		return BandMostlyTrustworthy
	case score >= 50:
		return BandQuestionable
	default:
		return BandSuspicious
	}
}

// SeverityForScore maps a trust score onto the session severity scale using
// the same thresholds as Band.
func SeverityForScore(score int) model.Severity {
	switch {
	case score >= 90:
		return model.SeverityLow
	case score >= 70:
		return model.SeverityMedium
	case score >= 50:
		return model.SeverityHigh
	default:
		return model.SeverityCritical
	}
}
