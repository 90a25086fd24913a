// Package payload validates raw JSON payloads from the pattern API and turns
// the acceptable parts into core types.
package payload

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/newthinker/candlescope/internal/core"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/tidwall/gjson"
)

const candleSchemaJSON = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["timestamp", "open", "high", "low", "close", "volume"],
  "properties": {
    "timestamp": {"type": ["string", "number"], "minLength": 1},
    "open":      {"type": "number"},
    "high":      {"type": "number"},
    "low":       {"type": "number"},
    "close":     {"type": "number"},
    "volume":    {"type": "number"}
  }
}`

var candleSchema = mustCompile("candle.json", candleSchemaJSON)

func mustCompile(name, schema string) *jsonschema.Schema {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(name, strings.NewReader(schema)); err != nil {
		panic(fmt.Sprintf("adding schema %s: %v", name, err))
	}
	compiled, err := compiler.Compile(name)
	if err != nil {
		panic(fmt.Sprintf("compiling schema %s: %v", name, err))
	}
	return compiled
}

// Candles parses an OHLCV array. Elements that fail validation are dropped;
// an array with no acceptable candle is ErrNoData.
func Candles(raw []byte) ([]core.Candle, error) {
	parsed, err := parseArray(raw)
	if err != nil {
		return nil, err
	}
	if !parsed.IsArray() {
		return nil, core.WrapError(core.ErrInvalidPayload, fmt.Errorf("expected a JSON array of candles"))
	}

	candles := make([]core.Candle, 0, len(parsed.Array()))
	parsed.ForEach(func(_, elem gjson.Result) bool {
		if c, ok := candle(elem); ok {
			candles = append(candles, c)
		}
		return true
	})

	if len(candles) == 0 {
		return nil, core.WrapError(core.ErrNoData, fmt.Errorf("no valid candles in payload"))
	}
	return candles, nil
}

func candle(elem gjson.Result) (core.Candle, bool) {
	if !elem.IsObject() {
		return core.Candle{}, false
	}

	var doc any
	dec := json.NewDecoder(bytes.NewReader([]byte(elem.Raw)))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return core.Candle{}, false
	}
	if err := candleSchema.Validate(doc); err != nil {
		return core.Candle{}, false
	}

	c := core.Candle{
		Timestamp: elem.Get("timestamp").String(),
		Open:      elem.Get("open").Float(),
		High:      elem.Get("high").Float(),
		Low:       elem.Get("low").Float(),
		Close:     elem.Get("close").Float(),
		Volume:    elem.Get("volume").Float(),
	}
	if c.Timestamp == "" {
		return core.Candle{}, false
	}
	for _, v := range []float64{c.Open, c.High, c.Low, c.Close, c.Volume} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return core.Candle{}, false
		}
	}
	return c, true
}

func parseArray(raw []byte) (gjson.Result, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return gjson.Result{}, core.WrapError(core.ErrInvalidPayload, fmt.Errorf("empty body"))
	}
	if !gjson.ValidBytes(raw) {
		return gjson.Result{}, core.WrapError(core.ErrInvalidPayload, fmt.Errorf("malformed JSON"))
	}
	return gjson.ParseBytes(raw), nil
}
