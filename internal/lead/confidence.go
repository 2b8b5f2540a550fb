// Package lead holds the pure lead-quality functions: confidence scoring
// and dedupe key normalization.
package lead

// Signals are the boolean inputs to the confidence score.
type Signals struct {
	AddressParsed  bool
	PhonePresent   bool
	WebsitePresent bool
	WithinRadius   bool
	DirectoryOnly  bool
}

// Confidence computes a deterministic 0–1 score from extraction signals.
// Directory-extracted leads are penalized: a block on a listing page is
// noisier than a dedicated business page.
func Confidence(s Signals) float64 {
	score := 0.0
	if s.AddressParsed {
		score += 0.4
	}
	if s.PhonePresent {
		score += 0.2
	}
	if s.WebsitePresent {
		score += 0.2
	}
	if s.WithinRadius {
		score += 0.2
	}
	if s.DirectoryOnly {
		score -= 0.2
	}
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}
