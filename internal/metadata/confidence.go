package metadata

// Confidence band thresholds on the 0-100 scale. These are a hard contract
// shared by the parser, the auto-apply policy engine, and the report
// renderers; no call site recomputes bands with different cut points.
const (
	HighConfidence   = 80
	MediumConfidence = 50
)

// ConfidenceBand classifies a 0-100 confidence score.
type ConfidenceBand string

const (
	BandHigh   ConfidenceBand = "high"
	BandMedium ConfidenceBand = "medium"
	BandLow    ConfidenceBand = "low"
)

// Band maps a confidence score to its band: >=80 high, 50-79 medium, <50 low.
func Band(confidence int) ConfidenceBand {
	switch {
	case confidence >= HighConfidence:
		return BandHigh
	case confidence >= MediumConfidence:
		return BandMedium
	default:
		return BandLow
	}
}

// ClampConfidence forces a score into the 0-100 range.
func ClampConfidence(confidence int) int {
	if confidence < 0 {
		return 0
	}
	if confidence > 100 {
		return 100
	}
	return confidence
}
