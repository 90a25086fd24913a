package payload

import (
	"errors"
	"testing"

	"github.com/newthinker/candlescope/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCandles(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    int
		wantErr *core.Error
	}{
		{
			name: "valid series",
			raw: `[{"timestamp":"2024-01-01","open":10,"high":12,"low":9,"close":11,"volume":100},
			       {"timestamp":"2024-01-02","open":11,"high":13,"low":10,"close":12,"volume":80}]`,
			want: 2,
		},
		{
			name: "numeric timestamp kept",
			raw:  `[{"timestamp":1,"open":10,"high":12,"low":9,"close":11,"volume":100}]`,
			want: 1,
		},
		{
			name: "invalid elements dropped",
			raw: `[{"timestamp":"2024-01-01","open":10,"high":12,"low":9,"close":11,"volume":100},
			       {"timestamp":"2024-01-02","open":"11","high":13,"low":10,"close":12,"volume":80},
			       {"timestamp":"","open":1,"high":1,"low":1,"close":1,"volume":1},
			       {"open":1,"high":1,"low":1,"close":1,"volume":1},
			       {"timestamp":"2024-01-03","open":1,"high":1,"low":1,"close":1},
			       42]`,
			want: 1,
		},
		{name: "empty array", raw: `[]`, wantErr: core.ErrNoData},
		{name: "nothing valid", raw: `[{"timestamp":"x"}]`, wantErr: core.ErrNoData},
		{name: "object instead of array", raw: `{"data":[]}`, wantErr: core.ErrInvalidPayload},
		{name: "malformed", raw: `[{"timestamp":`, wantErr: core.ErrInvalidPayload},
		{name: "empty body", raw: ``, wantErr: core.ErrInvalidPayload},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Candles([]byte(tt.raw))
			if tt.wantErr != nil {
				require.Error(t, err)
				assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
				return
			}
			require.NoError(t, err)
			assert.Len(t, got, tt.want)
		})
	}
}

func TestCandles_NumericTimestampText(t *testing.T) {
	got, err := Candles([]byte(`[{"timestamp":1,"open":10,"high":12,"low":9,"close":11,"volume":100}]`))
	require.NoError(t, err)
	assert.Equal(t, core.Candle{Timestamp: "1", Open: 10, High: 12, Low: 9, Close: 11, Volume: 100}, got[0])
}

func TestPatterns(t *testing.T) {
	raw := `[
	  {"company_name":"tcs","pattern":"Hammer","timeframe":"1d","pattern_start_time":"2024-01-02","confidence":0.85},
	  {"pattern":"Doji","timeframe":"1h","timestamp":"2024-01-03","candleIndex":4,"id":"abc","description":"custom"},
	  {"pattern":"","timeframe":"1d","pattern_start_time":"2024-01-02"},
	  {"pattern":"Doji","pattern_start_time":"2024-01-02"},
	  {"pattern":"Doji","timeframe":"1d"},
	  {"pattern":"Doji","timeframe":"1d","pattern_start_time":"2024-01-02","confidence":1.5},
	  {"pattern":"Doji","timeframe":"1d","pattern_start_time":"2024-01-02","confidence":"high"},
	  {"pattern":"Doji","timeframe":"1d","pattern_start_time":"2024-01-02","candleIndex":1.5},
	  {"pattern":"Doji","timeframe":"1d","pattern_start_time":"2024-01-02","candleIndex":-3},
	  "junk"
	]`

	got, err := Patterns([]byte(raw), "infy")
	require.NoError(t, err)
	require.Len(t, got, 2)

	first := got[0]
	assert.Equal(t, "TCS", first.Symbol)
	assert.Equal(t, "Hammer", first.Pattern)
	assert.Equal(t, 0.85, first.Confidence)
	assert.Equal(t, core.UnresolvedIndex, first.CandleIndex)
	assert.Equal(t, PatternID("TCS", "Hammer", "1d", "2024-01-02"), first.ID)
	assert.NotEmpty(t, first.Description)

	second := got[1]
	assert.Equal(t, "INFY", second.Symbol)
	assert.Equal(t, "abc", second.ID)
	assert.Equal(t, 4, second.CandleIndex)
	assert.Equal(t, 0.0, second.Confidence)
	assert.Equal(t, "2024-01-03", second.Timestamp)
	assert.Equal(t, "custom", second.Description)
}

func TestPatterns_Shapes(t *testing.T) {
	got, err := Patterns([]byte(`[]`), "TCS")
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = Patterns([]byte(`{"patterns":[]}`), "TCS")
	require.NoError(t, err)
	assert.Empty(t, got)

	_, err = Patterns([]byte(`[{`), "TCS")
	assert.True(t, errors.Is(err, core.ErrInvalidPayload))
}

func TestPatternID_Deterministic(t *testing.T) {
	a := PatternID("TCS", "Hammer", "1d", "2024-01-02")
	b := PatternID("TCS", "Hammer", "1d", "2024-01-02")
	c := PatternID("TCS", "Hammer", "1h", "2024-01-02")
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}

func TestPlace(t *testing.T) {
	candles := []core.Candle{
		{Timestamp: "2024-01-01 09:15:00"},
		{Timestamp: "2024-01-01 09:20:00"},
		{Timestamp: "2024-01-01 09:25:00"},
	}

	patterns := []core.Pattern{
		{ID: "explicit", CandleIndex: 1},
		{ID: "out-of-range", CandleIndex: 3},
		{ID: "exact", CandleIndex: core.UnresolvedIndex, Timestamp: "2024-01-01 09:25:00"},
		{ID: "between", CandleIndex: core.UnresolvedIndex, Timestamp: "2024-01-01 09:22:00"},
		{ID: "before-series", CandleIndex: core.UnresolvedIndex, Timestamp: "2024-01-01 09:00:00"},
		{ID: "after-series", CandleIndex: core.UnresolvedIndex, Timestamp: "2024-01-01 10:00:00"},
		{ID: "unparseable", CandleIndex: core.UnresolvedIndex, Timestamp: "soon"},
	}

	placed := Place(patterns, candles)

	got := map[string]int{}
	for _, p := range placed {
		got[p.ID] = p.CandleIndex
	}
	assert.Equal(t, map[string]int{"explicit": 1, "exact": 2, "between": 1}, got)
	for _, p := range placed {
		assert.True(t, p.CandleIndex >= 0 && p.CandleIndex < len(candles))
	}
}

func TestPlace_NoCandles(t *testing.T) {
	assert.Empty(t, Place([]core.Pattern{{CandleIndex: 0}}, nil))
}
