package classify

import (
	"math"

	"github.com/shopspring/decimal"
)

// ConfidenceLevel buckets a confidence score.
type ConfidenceLevel string

const (
	High   ConfidenceLevel = "high"
	Medium ConfidenceLevel = "medium"
	Low    ConfidenceLevel = "low"
)

const (
	highThreshold   = 0.9
	mediumThreshold = 0.7
)

// ConfidenceLevelOf returns high for >= 0.9, medium for >= 0.7, low otherwise.
func ConfidenceLevelOf(c float64) ConfidenceLevel {
	switch {
	case c >= highThreshold:
		return High
	case c >= mediumThreshold:
		return Medium
	default:
		return Low
	}
}

// ConfidenceColor returns the indicator color for a confidence score.
func ConfidenceColor(c float64) string {
	switch ConfidenceLevelOf(c) {
	case High:
		return colorGreen
	case Medium:
		return colorYellow
	default:
		return colorRed
	}
}

// Percent renders a 0..1 score as a whole percentage, e.g. 0.855 -> "86%".
// Rounding happens in decimal so 0.285 does not turn into 28%.
func Percent(c float64) string {
	if math.IsNaN(c) || math.IsInf(c, 0) {
		return "0%"
	}
	return decimal.NewFromFloat(c).Shift(2).Round(0).String() + "%"
}
