package core

import "time"

// Candle is one OHLCV bar as delivered by the pattern API.
type Candle struct {
	Timestamp string  `json:"timestamp"`
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
	Volume    float64 `json:"volume"`
}

// Time parses the candle timestamp. ok is false for unrecognised formats.
func (c Candle) Time() (time.Time, bool) {
	return ParseTimestamp(c.Timestamp)
}

// Bullish reports whether the bar closed at or above its open.
func (c Candle) Bullish() bool {
	return c.Close >= c.Open
}

// UnresolvedIndex marks a pattern that has not been placed on a candle series yet.
const UnresolvedIndex = -1

// Pattern is a detected technical-analysis pattern.
type Pattern struct {
	ID          string  `json:"id"`
	Symbol      string  `json:"symbol"`
	Pattern     string  `json:"pattern"`
	Timeframe   string  `json:"timeframe"`
	CandleIndex int     `json:"candleIndex"`
	Confidence  float64 `json:"confidence"`
	Timestamp   string  `json:"timestamp"`
	Description string  `json:"description"`
}

// Time parses the pattern start time.
func (p Pattern) Time() (time.Time, bool) {
	return ParseTimestamp(p.Timestamp)
}

// Resolved reports whether the pattern points at a candle.
func (p Pattern) Resolved() bool {
	return p.CandleIndex >= 0
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"02-01-2006 15:04:05",
}

// ParseTimestamp accepts the date formats the pattern API and its fixtures use,
// plus unix seconds or milliseconds.
func ParseTimestamp(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	if n, ok := parseUnix(s); ok {
		// Anything past year 33658 in seconds is really milliseconds.
		if n > 1e12 {
			return time.UnixMilli(n).UTC(), true
		}
		return time.Unix(n, 0).UTC(), true
	}
	return time.Time{}, false
}

func parseUnix(s string) (int64, bool) {
	var n int64
	for i, r := range s {
		if r == '-' && i == 0 {
			continue
		}
		if r < '0' || r > '9' {
			return 0, false
		}
		n = n*10 + int64(r-'0')
	}
	if s[0] == '-' {
		if len(s) == 1 {
			return 0, false
		}
		n = -n
	}
	return n, true
}
