// Package chart places pattern annotations on a candle series and renders
// the series as an interactive chart.
package chart

import (
	"github.com/newthinker/candlescope/internal/classify"
	"github.com/newthinker/candlescope/internal/core"
)

// HighlightName identifies the selected-pattern annotation.
const HighlightName = "pattern-highlight"

// highlightLift puts the marker just above the candle's high.
const highlightLift = 1.02

// Annotation is a labelled marker anchored to a candle.
type Annotation struct {
	Name        string  `json:"name"`
	X           string  `json:"x"`
	Y           float64 `json:"y"`
	CandleIndex int     `json:"candleIndex"`
	PatternID   string  `json:"patternId"`
	Label       string  `json:"label"`
	Color       string  `json:"color"`
}

// Highlight anchors an annotation for p at candles[p.CandleIndex]. ok is
// false when the index does not address a candle.
func Highlight(p core.Pattern, candles []core.Candle) (Annotation, bool) {
	if p.CandleIndex < 0 || p.CandleIndex >= len(candles) {
		return Annotation{}, false
	}
	c := candles[p.CandleIndex]
	return Annotation{
		Name:        HighlightName,
		X:           c.Timestamp,
		Y:           c.High * highlightLift,
		CandleIndex: p.CandleIndex,
		PatternID:   p.ID,
		Label:       p.Pattern,
		Color:       classify.Color(p.Pattern),
	}, true
}

// HighlightByID finds pattern id in ps and anchors it on candles.
func HighlightByID(ps []core.Pattern, candles []core.Candle, id string) (Annotation, bool) {
	for _, p := range ps {
		if p.ID == id {
			return Highlight(p, candles)
		}
	}
	return Annotation{}, false
}

// Layout carries the annotations drawn over a chart.
type Layout struct {
	Title       string
	Annotations []Annotation
}

// SetHighlight replaces any existing highlight with a. A nil a only removes.
func (l *Layout) SetHighlight(a *Annotation) {
	kept := l.Annotations[:0:0]
	for _, existing := range l.Annotations {
		if existing.Name != HighlightName {
			kept = append(kept, existing)
		}
	}
	if a != nil {
		h := *a
		h.Name = HighlightName
		kept = append(kept, h)
	}
	l.Annotations = kept
}

// Highlight returns the current highlight, if any.
func (l *Layout) Highlight() (Annotation, bool) {
	for _, a := range l.Annotations {
		if a.Name == HighlightName {
			return a, true
		}
	}
	return Annotation{}, false
}
