package payload

import (
	"math"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/newthinker/candlescope/internal/classify"
	"github.com/newthinker/candlescope/internal/core"
	"github.com/tidwall/gjson"
)

// patternNamespace seeds the deterministic ids of records without one.
var patternNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("candlescope/patterns"))

// Patterns parses an array of pattern records. Malformed JSON is an error; a
// well-formed body that is not an array yields no patterns. Records missing
// required fields or carrying an out-of-range confidence are dropped.
//
// symbol is used for records without a company_name.
func Patterns(raw []byte, symbol string) ([]core.Pattern, error) {
	parsed, err := parseArray(raw)
	if err != nil {
		return nil, err
	}
	if !parsed.IsArray() {
		return []core.Pattern{}, nil
	}

	fallback := strings.ToUpper(strings.TrimSpace(symbol))
	patterns := make([]core.Pattern, 0, len(parsed.Array()))
	parsed.ForEach(func(_, elem gjson.Result) bool {
		if p, ok := pattern(elem, fallback); ok {
			patterns = append(patterns, p)
		}
		return true
	})
	return patterns, nil
}

func pattern(elem gjson.Result, fallbackSymbol string) (core.Pattern, bool) {
	if !elem.IsObject() {
		return core.Pattern{}, false
	}

	name := strings.TrimSpace(firstString(elem, "pattern"))
	timeframe := strings.TrimSpace(firstString(elem, "timeframe"))
	start := strings.TrimSpace(firstString(elem, "pattern_start_time", "timestamp"))
	if name == "" || timeframe == "" || start == "" {
		return core.Pattern{}, false
	}

	symbol := strings.ToUpper(strings.TrimSpace(firstString(elem, "company_name", "symbol")))
	if symbol == "" {
		symbol = fallbackSymbol
	}

	confidence := 0.0
	if v := elem.Get("confidence"); v.Exists() && v.Type != gjson.Null {
		if v.Type != gjson.Number {
			return core.Pattern{}, false
		}
		confidence = v.Float()
		if math.IsNaN(confidence) || math.IsInf(confidence, 0) || confidence < 0 || confidence > 1 {
			return core.Pattern{}, false
		}
	}

	index := core.UnresolvedIndex
	if v := elem.Get("candleIndex"); v.Exists() && v.Type != gjson.Null {
		if v.Type != gjson.Number {
			return core.Pattern{}, false
		}
		f := v.Float()
		if f != math.Trunc(f) || f < core.UnresolvedIndex || f > math.MaxInt32 {
			return core.Pattern{}, false
		}
		index = int(f)
	}

	id := strings.TrimSpace(elem.Get("id").String())
	if id == "" {
		id = PatternID(symbol, name, timeframe, start)
	}

	description := strings.TrimSpace(elem.Get("description").String())
	if description == "" {
		description = classify.Description(name)
	}

	return core.Pattern{
		ID:          id,
		Symbol:      symbol,
		Pattern:     name,
		Timeframe:   timeframe,
		CandleIndex: index,
		Confidence:  confidence,
		Timestamp:   start,
		Description: description,
	}, true
}

// PatternID derives a stable id for a record the API sent without one.
func PatternID(symbol, name, timeframe, start string) string {
	key := strings.Join([]string{symbol, name, timeframe, start}, "|")
	return uuid.NewSHA1(patternNamespace, []byte(key)).String()
}

func firstString(elem gjson.Result, keys ...string) string {
	for _, k := range keys {
		if v := elem.Get(k); v.Exists() && v.Type != gjson.Null {
			if s := v.String(); s != "" {
				return s
			}
		}
	}
	return ""
}

type stamp struct {
	at    time.Time
	index int
}

// Place pins every pattern to a candle of the series and drops those that
// cannot be pinned. An explicit candleIndex must be in range. Otherwise the
// pattern start is matched against candle timestamps, first exactly and then
// to the last candle at or before it; starts after the final candle are
// dropped.
func Place(patterns []core.Pattern, candles []core.Candle) []core.Pattern {
	if len(candles) == 0 {
		return []core.Pattern{}
	}

	exact := make(map[string]int, len(candles))
	stamps := make([]stamp, 0, len(candles))
	for i, c := range candles {
		if _, seen := exact[c.Timestamp]; !seen {
			exact[c.Timestamp] = i
		}
		if t, ok := c.Time(); ok {
			stamps = append(stamps, stamp{at: t, index: i})
		}
	}
	sort.SliceStable(stamps, func(i, j int) bool { return stamps[i].at.Before(stamps[j].at) })

	placed := make([]core.Pattern, 0, len(patterns))
	for _, p := range patterns {
		if p.CandleIndex != core.UnresolvedIndex {
			if p.CandleIndex >= 0 && p.CandleIndex < len(candles) {
				placed = append(placed, p)
			}
			continue
		}
		if i, ok := exact[p.Timestamp]; ok {
			p.CandleIndex = i
			placed = append(placed, p)
			continue
		}
		if i, ok := nearestBefore(stamps, p); ok {
			p.CandleIndex = i
			placed = append(placed, p)
		}
	}
	return placed
}

func nearestBefore(stamps []stamp, p core.Pattern) (int, bool) {
	t, ok := p.Time()
	if !ok || len(stamps) == 0 {
		return 0, false
	}
	// First candle strictly after t; the one before it is the match.
	n := sort.Search(len(stamps), func(i int) bool { return stamps[i].at.After(t) })
	if n == 0 || n == len(stamps) && t.After(stamps[len(stamps)-1].at) {
		return 0, false
	}
	return stamps[n-1].index, true
}
