// Package classify maps pattern names and confidence scores to display
// attributes. Every function is total: unknown inputs get a default.
package classify

// Sentiment is the directional bias of a pattern.
type Sentiment string

const (
	Bullish Sentiment = "bullish"
	Bearish Sentiment = "bearish"
	Neutral Sentiment = "neutral"
)

const (
	colorGreen  = "#10b981"
	colorYellow = "#f59e0b"
	colorBlue   = "#3b82f6"
	colorRed    = "#ef4444"
	colorGray   = "#6b7280"
)

var patternColors = map[string]string{
	"Hammer":               colorGreen,
	"Doji":                 colorYellow,
	"Engulfing":            colorBlue,
	"Shooting Star":        colorRed,
	"Morning Star":         colorGreen,
	"Evening Star":         colorRed,
	"Hanging Man":          colorRed,
	"Three White Soldiers": colorGreen,
	"Three Black Crows":    colorRed,
}

var patternDescriptions = map[string]string{
	"Hammer":               "Bullish reversal pattern with small body and long lower shadow",
	"Doji":                 "Indecision pattern with open and close at same level",
	"Engulfing":            "Strong reversal pattern where one candle engulfs the previous",
	"Shooting Star":        "Bearish reversal pattern with small body and long upper shadow",
	"Morning Star":         "Three-candle bullish reversal pattern",
	"Evening Star":         "Three-candle bearish reversal pattern",
	"Hanging Man":          "Bearish reversal pattern similar to hammer but at top",
	"Three White Soldiers": "Strong bullish continuation pattern",
	"Three Black Crows":    "Strong bearish continuation pattern",
	"Dragonfly Doji":       "Bullish reversal doji with a long lower shadow",
	"Rising Window":        "Bullish continuation gap between two candles",
}

var sentiments = map[string]Sentiment{
	"Hammer":               Bullish,
	"Morning Star":         Bullish,
	"Three White Soldiers": Bullish,
	"Engulfing":            Bullish,
	"Dragonfly Doji":       Bullish,
	"Rising Window":        Bullish,
	"Shooting Star":        Bearish,
	"Evening Star":         Bearish,
	"Hanging Man":          Bearish,
	"Three Black Crows":    Bearish,
}

// DefaultDescription is used for patterns without a known description.
const DefaultDescription = "Pattern detected"

// Color returns the marker color for a pattern name.
func Color(name string) string {
	if c, ok := patternColors[name]; ok {
		return c
	}
	return colorGray
}

// Description returns a one-line explanation of the pattern.
func Description(name string) string {
	if d, ok := patternDescriptions[name]; ok {
		return d
	}
	return DefaultDescription
}

// SentimentOf classifies a pattern as bullish, bearish or neutral.
func SentimentOf(name string) Sentiment {
	if s, ok := sentiments[name]; ok {
		return s
	}
	return Neutral
}

// Icon returns the card icon for a pattern.
func Icon(name string) string {
	switch SentimentOf(name) {
	case Bullish:
		return "📈"
	case Bearish:
		return "📉"
	default:
		return "⚖️"
	}
}

// BadgeClass returns the CSS classes of the pattern badge.
func BadgeClass(name string) string {
	switch SentimentOf(name) {
	case Bullish:
		return "bg-green-100 text-green-800 border-green-200"
	case Bearish:
		return "bg-red-100 text-red-800 border-red-200"
	default:
		return "bg-yellow-100 text-yellow-800 border-yellow-200"
	}
}
