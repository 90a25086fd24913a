package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/newthinker/candlescope/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type countingCleaner struct {
	calls atomic.Int32
	n     int
}

func (c *countingCleaner) Cleanup() int {
	c.calls.Add(1)
	return c.n
}

type persistCleaner struct {
	n   int
	err error
}

func (p persistCleaner) Cleanup(context.Context) (int, error) { return p.n, p.err }

type warmer struct {
	calls  atomic.Int32
	err    error
	ctxErr atomic.Value
}

func (w *warmer) Refresh(ctx context.Context) ([]core.Pattern, error) {
	w.calls.Add(1)
	w.ctxErr.Store(fmt.Sprint(ctx.Err()))
	if w.err != nil {
		return nil, w.err
	}
	return []core.Pattern{{ID: "p"}}, nil
}

func TestRegister(t *testing.T) {
	tests := []struct {
		name    string
		cleanup string
		warm    string
		entries int
		wantErr bool
	}{
		{"both", "@every 1m", "*/5 * * * *", 2, false},
		{"cleanup only", "@every 1m", "", 1, false},
		{"none", "", "", 0, false},
		{"bad spec", "every minute", "", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New(Jobs{}, nil)
			err := s.Register(tt.cleanup, tt.warm)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, core.ErrConfigInvalid))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.entries, s.Entries())
		})
	}
}

func TestRunCleanup(t *testing.T) {
	mem := &countingCleaner{n: 3}
	s := New(Jobs{Memory: mem, Persist: persistCleaner{n: 2}}, nil)

	memory, persisted := s.RunCleanup()
	assert.Equal(t, 3, memory)
	assert.Equal(t, 2, persisted)
}

func TestRunCleanup_PersistErrorIsLogged(t *testing.T) {
	obs, logs := observer.New(zap.WarnLevel)
	s := New(Jobs{Persist: persistCleaner{err: core.ErrStorageFailed}}, zap.New(obs))

	_, persisted := s.RunCleanup()
	assert.Zero(t, persisted)
	assert.Equal(t, 1, logs.FilterMessage("persistent cleanup failed").Len())
}

func TestRunWarm(t *testing.T) {
	w := &warmer{}
	s := New(Jobs{Warm: w}, nil)
	s.RunWarm()
	assert.EqualValues(t, 1, w.calls.Load())

	obs, logs := observer.New(zap.WarnLevel)
	failing := New(Jobs{Warm: &warmer{err: core.ErrNoData}}, zap.New(obs))
	failing.RunWarm()
	assert.Equal(t, 1, logs.FilterMessage("warming pattern list failed").Len())

	// Nil warmer is a no-op
	New(Jobs{}, nil).RunWarm()
}

func TestScheduler_RunsOnSchedule(t *testing.T) {
	mem := &countingCleaner{}
	s := New(Jobs{Memory: mem}, nil)
	require.NoError(t, s.Register("@every 1s", ""))

	s.Start()
	defer s.Stop()

	assert.Eventually(t, func() bool { return mem.calls.Load() > 0 }, 3*time.Second, 50*time.Millisecond)
}

func TestScheduler_RestartGetsLiveContext(t *testing.T) {
	w := &warmer{}
	s := New(Jobs{Warm: w}, nil)

	s.Start()
	s.Stop()
	s.RunWarm()
	assert.Equal(t, "context canceled", w.ctxErr.Load(), "jobs after Stop see the cancellation")

	s.Start()
	defer s.Stop()
	s.RunWarm()
	assert.Equal(t, "<nil>", w.ctxErr.Load())
}
