// Package static serves candle and pattern payloads from fixture files laid
// out as patterns.json and ohlcv/{symbol}.json.
package static

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"strings"

	"github.com/newthinker/candlescope/internal/core"
	"github.com/tidwall/gjson"
)

const (
	patternsFile = "patterns.json"
	candlesDir   = "ohlcv"
)

// Static reads fixture files from an fs.FS.
type Static struct {
	fsys fs.FS
}

// New creates a static source over fsys.
func New(fsys fs.FS) *Static {
	return &Static{fsys: fsys}
}

// NewDir creates a static source rooted at dir.
func NewDir(dir string) *Static {
	return New(os.DirFS(dir))
}

func (s *Static) Name() string {
	return "static"
}

// FetchCandles returns ohlcv/{symbol}.json.
func (s *Static) FetchCandles(ctx context.Context, symbol string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	name := path.Join(candlesDir, symbol+".json")
	if strings.ContainsAny(symbol, `/\`) || !fs.ValidPath(name) {
		return nil, core.WrapError(core.ErrSymbolNotFound, fmt.Errorf("invalid symbol %q", symbol))
	}
	return s.read(name)
}

// FetchPatterns returns the entries of patterns.json belonging to symbol.
func (s *Static) FetchPatterns(ctx context.Context, symbol string) ([]byte, error) {
	raw, err := s.AllPatterns(ctx)
	if err != nil {
		return nil, err
	}
	all := gjson.ParseBytes(raw)
	if !all.IsArray() {
		return []byte("[]"), nil
	}

	var buf bytes.Buffer
	buf.WriteByte('[')
	n := 0
	all.ForEach(func(_, elem gjson.Result) bool {
		owner := elem.Get("company_name").String()
		if owner == "" {
			owner = elem.Get("symbol").String()
		}
		if !strings.EqualFold(strings.TrimSpace(owner), symbol) {
			return true
		}
		if n > 0 {
			buf.WriteByte(',')
		}
		buf.WriteString(elem.Raw)
		n++
		return true
	})
	buf.WriteByte(']')
	return buf.Bytes(), nil
}

// AllPatterns returns patterns.json as stored.
func (s *Static) AllPatterns(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	raw, err := s.read(patternsFile)
	if err != nil {
		return nil, err
	}
	if !gjson.ValidBytes(raw) {
		return nil, core.WrapError(core.ErrInvalidPayload, fmt.Errorf("%s is not valid JSON", patternsFile))
	}
	return raw, nil
}

func (s *Static) read(name string) ([]byte, error) {
	raw, err := fs.ReadFile(s.fsys, name)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, core.WrapError(core.ErrNoData, fmt.Errorf("%s not found", name))
	}
	if err != nil {
		return nil, core.WrapError(core.ErrStorageFailed, fmt.Errorf("reading %s: %w", name, err))
	}
	return raw, nil
}
