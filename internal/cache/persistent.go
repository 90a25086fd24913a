package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/newthinker/candlescope/internal/core"
	"github.com/newthinker/candlescope/internal/payload"
	"github.com/newthinker/candlescope/internal/storage/kv"
	"go.uber.org/zap"
)

// envelope is the stored form of a persisted entry. timestamp is unix
// milliseconds.
type envelope struct {
	Data      json.RawMessage `json:"data"`
	Timestamp int64           `json:"timestamp"`
}

// Persistent stores pattern lists in a kv backend so they survive restarts.
// Stored payloads are re-validated on read; anything malformed or expired is
// treated as a miss and removed.
type Persistent struct {
	storage kv.Storage
	ttl     time.Duration
	now     func() time.Time
	logger  *zap.Logger
}

// NewPersistent wraps storage. A nil storage yields a Persistent that never
// hits.
func NewPersistent(storage kv.Storage, ttl time.Duration, logger *zap.Logger) *Persistent {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Persistent{storage: storage, ttl: ttl, now: time.Now, logger: logger}
}

// Enabled reports whether a backend is configured.
func (p *Persistent) Enabled() bool {
	return p != nil && p.storage != nil
}

// SavePatterns stores patterns under key.
func (p *Persistent) SavePatterns(ctx context.Context, key string, patterns []core.Pattern) error {
	if !p.Enabled() {
		return nil
	}
	data, err := json.Marshal(patterns)
	if err != nil {
		return core.WrapError(core.ErrStorageFailed, fmt.Errorf("encoding %s: %w", key, err))
	}
	raw, err := json.Marshal(envelope{Data: data, Timestamp: p.now().UnixMilli()})
	if err != nil {
		return core.WrapError(core.ErrStorageFailed, fmt.Errorf("encoding %s: %w", key, err))
	}
	return p.storage.Write(ctx, key, raw)
}

// LoadPatterns returns the patterns stored under key if present, unexpired
// and well formed.
func (p *Persistent) LoadPatterns(ctx context.Context, key string) ([]core.Pattern, bool) {
	if !p.Enabled() {
		return nil, false
	}
	raw, err := p.storage.Read(ctx, key)
	if err != nil {
		if !errors.Is(err, kv.ErrNotFound) {
			p.logger.Warn("reading persisted cache", zap.String("key", key), zap.Error(err))
		}
		return nil, false
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil || env.Timestamp <= 0 || len(env.Data) == 0 {
		p.discard(ctx, key, "malformed envelope")
		return nil, false
	}
	if !p.fresh(env.Timestamp) {
		p.discard(ctx, key, "expired")
		return nil, false
	}

	patterns, err := payload.Patterns(env.Data, "")
	if err != nil {
		p.discard(ctx, key, "invalid pattern payload")
		return nil, false
	}
	return patterns, true
}

// Cleanup removes every expired or unreadable entry and reports how many were
// dropped.
func (p *Persistent) Cleanup(ctx context.Context) (int, error) {
	if !p.Enabled() {
		return 0, nil
	}
	keys, err := p.storage.List(ctx, "")
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, key := range keys {
		raw, err := p.storage.Read(ctx, key)
		if err != nil {
			continue
		}
		var env envelope
		if json.Unmarshal(raw, &env) == nil && p.fresh(env.Timestamp) {
			continue
		}
		if err := p.storage.Delete(ctx, key); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}

// Delete removes key.
func (p *Persistent) Delete(ctx context.Context, key string) error {
	if !p.Enabled() {
		return nil
	}
	return p.storage.Delete(ctx, key)
}

func (p *Persistent) fresh(stampMillis int64) bool {
	return p.now().Sub(time.UnixMilli(stampMillis)) < p.ttl
}

func (p *Persistent) discard(ctx context.Context, key, reason string) {
	p.logger.Debug("discarding persisted entry", zap.String("key", key), zap.String("reason", reason))
	if err := p.storage.Delete(ctx, key); err != nil {
		p.logger.Warn("deleting persisted entry", zap.String("key", key), zap.Error(err))
	}
}
