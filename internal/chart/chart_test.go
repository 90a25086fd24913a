package chart

import (
	"bytes"
	"errors"
	"testing"

	"github.com/newthinker/candlescope/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHighlight(t *testing.T) {
	candles := []core.Candle{{Timestamp: "1", Open: 10, High: 12, Low: 9, Close: 11, Volume: 100}}
	p := core.Pattern{ID: "p1", Pattern: "Hammer", CandleIndex: 0, Confidence: 0.85}

	a, ok := Highlight(p, candles)
	require.True(t, ok)
	assert.Equal(t, HighlightName, a.Name)
	assert.Equal(t, "1", a.X)
	assert.InDelta(t, 12.24, a.Y, 1e-9)
	assert.Equal(t, "p1", a.PatternID)
	assert.Equal(t, "Hammer", a.Label)
	assert.Equal(t, "#10b981", a.Color)
}

func TestHighlight_OutOfRange(t *testing.T) {
	candles := []core.Candle{{Timestamp: "1", High: 12}}

	for _, idx := range []int{-1, 1, 5} {
		_, ok := Highlight(core.Pattern{CandleIndex: idx}, candles)
		assert.False(t, ok, "index %d", idx)
	}
	_, ok := Highlight(core.Pattern{CandleIndex: 0}, nil)
	assert.False(t, ok)
}

func TestHighlightByID(t *testing.T) {
	candles := []core.Candle{{Timestamp: "a", High: 10}, {Timestamp: "b", High: 20}}
	ps := []core.Pattern{
		{ID: "x", Pattern: "Doji", CandleIndex: 1},
		{ID: "y", Pattern: "Hammer", CandleIndex: core.UnresolvedIndex},
	}

	a, ok := HighlightByID(ps, candles, "x")
	require.True(t, ok)
	assert.Equal(t, "b", a.X)

	_, ok = HighlightByID(ps, candles, "y")
	assert.False(t, ok, "unplaced pattern")
	_, ok = HighlightByID(ps, candles, "z")
	assert.False(t, ok, "unknown id")
}

func TestLayout_SetHighlightReplaces(t *testing.T) {
	other := Annotation{Name: "earnings", X: "0"}
	l := Layout{Annotations: []Annotation{other}}

	first := Annotation{X: "1", Y: 10, PatternID: "a"}
	second := Annotation{X: "2", Y: 20, PatternID: "b"}

	l.SetHighlight(&first)
	l.SetHighlight(&second)

	count := 0
	for _, a := range l.Annotations {
		if a.Name == HighlightName {
			count++
		}
	}
	assert.Equal(t, 1, count, "at most one highlight")

	h, ok := l.Highlight()
	require.True(t, ok)
	assert.Equal(t, "b", h.PatternID)
	assert.Contains(t, l.Annotations, other)

	l.SetHighlight(nil)
	_, ok = l.Highlight()
	assert.False(t, ok)
	assert.Len(t, l.Annotations, 1)
}

func TestLayout_SetHighlightDoesNotAliasInput(t *testing.T) {
	base := []Annotation{{Name: "note"}}
	l := Layout{Annotations: base}
	l.SetHighlight(&Annotation{X: "1"})
	assert.Len(t, base, 1)
	assert.Equal(t, "note", base[0].Name)
}

func TestRender(t *testing.T) {
	candles := []core.Candle{
		{Timestamp: "2024-01-01", Open: 10, High: 12, Low: 9, Close: 11, Volume: 100},
		{Timestamp: "2024-01-02", Open: 11, High: 13, Low: 10, Close: 10.5, Volume: 80},
	}
	in := Input{Symbol: "tcs", Candles: candles}
	a, _ := Highlight(core.Pattern{ID: "p1", Pattern: "Doji", CandleIndex: 1}, candles)
	in.Layout.SetHighlight(&a)

	var buf bytes.Buffer
	require.NoError(t, Render(&buf, in))

	html := buf.String()
	assert.Contains(t, html, "<html")
	assert.Contains(t, html, "TCS")
	assert.Contains(t, html, "Volume")
	assert.Contains(t, html, "2024-01-02")
	assert.Contains(t, html, "Doji")
}

func TestRender_EmptySeries(t *testing.T) {
	var buf bytes.Buffer
	err := Render(&buf, Input{Symbol: "TCS"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrNoData))
	assert.Zero(t, buf.Len())
}
