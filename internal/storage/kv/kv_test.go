package kv

import (
	"errors"
	"strings"
	"testing"

	"github.com/newthinker/candlescope/internal/core"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantNil bool
		wantErr bool
	}{
		{name: "none", cfg: Config{Type: "none"}, wantNil: true},
		{name: "empty", cfg: Config{}, wantNil: true},
		{name: "localfs", cfg: Config{Type: "localfs", Path: t.TempDir()}},
		{name: "s3", cfg: Config{Type: "s3", S3: S3Config{Bucket: "b", Region: "us-east-1"}}},
		{name: "redis", cfg: Config{Type: "redis", Redis: RedisConfig{Addr: "localhost:6379"}}},
		{name: "unknown", cfg: Config{Type: "etcd"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := New(tt.cfg)
			if (err != nil) != tt.wantErr {
				t.Fatalf("New() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				if !errors.Is(err, core.ErrConfigInvalid) {
					t.Errorf("expected CONFIG_INVALID, got %v", err)
				}
				return
			}
			if (s == nil) != tt.wantNil {
				t.Errorf("New() storage = %v, wantNil %v", s, tt.wantNil)
			}
		})
	}
}

func TestS3Storage_ImplementsStorage(t *testing.T) {
	var _ Storage = (*S3Storage)(nil)
}

func TestS3Storage_Key(t *testing.T) {
	tests := []struct {
		prefix string
		key    string
		want   string
	}{
		{"", "browse_all.json", "browse_all.json"},
		{"candlescope", "browse_all.json", "candlescope/browse_all.json"},
		{"candlescope/", "browse_all.json", "candlescope/browse_all.json"},
	}

	for _, tt := range tests {
		s := &S3Storage{prefix: strings.Trim(tt.prefix, "/")}
		if got := s.key(tt.key); got != tt.want {
			t.Errorf("key(%q) with prefix %q = %q, want %q", tt.key, tt.prefix, got, tt.want)
		}
		if got := s.relative(s.key(tt.key)); got != tt.key {
			t.Errorf("relative(key(%q)) = %q", tt.key, got)
		}
	}
}

func TestRedisStorage_ImplementsStorage(t *testing.T) {
	var _ Storage = (*RedisStorage)(nil)
}

func TestRedisStorage_Key(t *testing.T) {
	r := &RedisStorage{prefix: "candlescope"}
	if got := r.key("browse_all"); got != "candlescope:browse_all" {
		t.Errorf("unexpected key %q", got)
	}
	if got := r.relative("candlescope:browse_all"); got != "browse_all" {
		t.Errorf("unexpected relative key %q", got)
	}

	bare := &RedisStorage{}
	if got := bare.key("browse_all"); got != "browse_all" {
		t.Errorf("unexpected bare key %q", got)
	}
}
