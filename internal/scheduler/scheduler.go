// Package scheduler runs periodic cache maintenance.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/newthinker/candlescope/internal/core"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// jobTimeout bounds a single run of a job.
const jobTimeout = 2 * time.Minute

// MemoryCleaner drops expired in-memory entries.
type MemoryCleaner interface {
	Cleanup() int
}

// PersistCleaner drops expired persisted entries.
type PersistCleaner interface {
	Cleanup(ctx context.Context) (int, error)
}

// Warmer rebuilds the aggregated pattern list.
type Warmer interface {
	Refresh(ctx context.Context) ([]core.Pattern, error)
}

// Jobs are the collaborators the scheduled tasks act on. Any may be nil.
type Jobs struct {
	Memory  MemoryCleaner
	Persist PersistCleaner
	Warm    Warmer
}

// Scheduler manages the cron tasks.
type Scheduler struct {
	cron   *cron.Cron
	jobs   Jobs
	logger *zap.Logger

	// ctx is replaced on every Start so a restart does not inherit a
	// cancelled context.
	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a scheduler. Overlapping runs of the same job are skipped.
func New(jobs Jobs, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	cl := cronLogger{logger.Sugar()}
	return &Scheduler{
		cron:   cron.New(cron.WithLogger(cl), cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl))),
		jobs:   jobs,
		logger: logger,
		ctx:    context.Background(),
		cancel: func() {},
	}
}

// Register adds the cleanup and warm-up tasks. An empty spec leaves the task
// unscheduled.
func (s *Scheduler) Register(cleanupSpec, warmSpec string) error {
	if cleanupSpec != "" {
		if _, err := s.cron.AddFunc(cleanupSpec, func() { s.RunCleanup() }); err != nil {
			return core.WrapError(core.ErrConfigInvalid, fmt.Errorf("cleanup schedule %q: %w", cleanupSpec, err))
		}
	}
	if warmSpec != "" {
		if _, err := s.cron.AddFunc(warmSpec, s.RunWarm); err != nil {
			return core.WrapError(core.ErrConfigInvalid, fmt.Errorf("warm schedule %q: %w", warmSpec, err))
		}
	}
	return nil
}

// Entries reports how many tasks are scheduled.
func (s *Scheduler) Entries() int {
	return len(s.cron.Entries())
}

// Start starts the cron scheduler.
func (s *Scheduler) Start() {
	s.mu.Lock()
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.mu.Unlock()

	s.cron.Start()
	s.logger.Info("scheduler started", zap.Int("tasks", s.Entries()))
}

// Stop cancels running jobs and waits for them to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	s.cancel()
	s.mu.Unlock()

	<-s.cron.Stop().Done()
	s.logger.Info("scheduler stopped")
}

// RunCleanup removes expired entries from memory and the persistent store.
func (s *Scheduler) RunCleanup() (memory, persisted int) {
	if s.jobs.Memory != nil {
		memory = s.jobs.Memory.Cleanup()
	}
	if s.jobs.Persist != nil {
		ctx, cancel := context.WithTimeout(s.jobContext(), jobTimeout)
		defer cancel()
		n, err := s.jobs.Persist.Cleanup(ctx)
		if err != nil {
			s.logger.Warn("persistent cleanup failed", zap.Error(err))
		}
		persisted = n
	}
	if memory > 0 || persisted > 0 {
		s.logger.Debug("cache cleanup", zap.Int("memory", memory), zap.Int("persisted", persisted))
	}
	return memory, persisted
}

// RunWarm refreshes the aggregated pattern list ahead of the next visitor.
func (s *Scheduler) RunWarm() {
	if s.jobs.Warm == nil {
		return
	}
	ctx, cancel := context.WithTimeout(s.jobContext(), jobTimeout)
	defer cancel()

	start := time.Now()
	ps, err := s.jobs.Warm.Refresh(ctx)
	if err != nil {
		s.logger.Warn("warming pattern list failed", zap.Error(err))
		return
	}
	s.logger.Info("pattern list warmed",
		zap.Int("patterns", len(ps)),
		zap.Duration("took", time.Since(start)),
	)
}

func (s *Scheduler) jobContext() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ctx
}

// cronLogger routes cron's own logging through zap.
type cronLogger struct {
	l *zap.SugaredLogger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.l.Debugw(msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.l.Errorw(msg, append(keysAndValues, "error", err)...)
}
