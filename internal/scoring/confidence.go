package scoring

// Confidence is the discrete likelihood tier derived from a score. It is
// the single source of truth for hot/warm/cold treatment everywhere a deal
// is color-coded or bucketed for forecasting.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// Score bands for classification. The bounds are half-open: a score equal
// to the threshold lands in the higher tier.
const (
	highConfidenceFloor   = 70
	mediumConfidenceFloor = 40
)

// Classify maps a score to its confidence tier.
func Classify(score int) Confidence {
	switch {
	case score >= highConfidenceFloor:
		return ConfidenceHigh
	case score >= mediumConfidenceFloor:
		return ConfidenceMedium
	default:
		return ConfidenceLow
	}
}

// Rank orders tiers for sorting: higher is more confident.
func (c Confidence) Rank() int {
	switch c {
	case ConfidenceHigh:
		return 2
	case ConfidenceMedium:
		return 1
	default:
		return 0
	}
}
