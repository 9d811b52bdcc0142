// Package scheduler triggers background sync runs while auto-sync is
// enabled, backing off after failed runs.
package scheduler

import (
	"context"
	stdsync "sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/jcarville/intelsync/internal/errors"
	"github.com/jcarville/intelsync/internal/logging"
	"github.com/jcarville/intelsync/internal/models"
	"github.com/jcarville/intelsync/internal/settings"
	syncpkg "github.com/jcarville/intelsync/internal/sync"
)

// Runner executes one sync run. Satisfied by *sync.Engine.
type Runner interface {
	RunSync(ctx context.Context, credential syncpkg.Credential) (*models.SyncStats, error)
}

// Config holds scheduler configuration.
type Config struct {
	// Interval between automatic sync attempts.
	Interval time.Duration

	// Credential passed through to every background run.
	Credential syncpkg.Credential
}

// DefaultConfig returns the default scheduler configuration.
func DefaultConfig() Config {
	return Config{Interval: 15 * time.Minute}
}

// Scheduler drives periodic background sync. Runs are skipped while
// auto-sync is disabled in settings, and after a failed run the next
// attempt is held back with exponential backoff.
type Scheduler struct {
	runner     Runner
	settings   *settings.Manager
	interval   time.Duration
	credential syncpkg.Credential

	// ticks overrides the wall-clock ticker when non-nil, so tests can
	// drive the loop without real waits.
	ticks <-chan time.Time
	now   func() time.Time

	stopCh chan struct{}
	wg     stdsync.WaitGroup

	mu        stdsync.Mutex
	isRunning bool
	lastRun   time.Time
	holdUntil time.Time
	backoff   backoff.BackOff
}

// New creates a scheduler around a sync runner.
func New(runner Runner, mgr *settings.Manager, cfg Config) *Scheduler {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultConfig().Interval
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = mgr.Get().RetryDelay()
	b.MaxElapsedTime = 0
	return &Scheduler{
		runner:     runner,
		settings:   mgr,
		interval:   cfg.Interval,
		credential: cfg.Credential,
		now:        time.Now,
		stopCh:     make(chan struct{}),
		backoff:    b,
	}
}

// Start launches the background loop. A second Start while running is a
// no-op.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = true
	s.mu.Unlock()

	s.wg.Add(1)
	go s.loop(ctx)

	logging.Info("background sync scheduler started",
		map[string]interface{}{"interval": s.interval.String()})
}

// Stop shuts the loop down and waits for it to exit.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = false
	s.mu.Unlock()

	close(s.stopCh)
	s.wg.Wait()

	logging.Info("background sync scheduler stopped", nil)
}

// IsRunning reports whether the background loop is active.
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isRunning
}

// LastRun returns the completion time of the last successful background
// run, zero if none has completed.
func (s *Scheduler) LastRun() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastRun
}

// TriggerSync runs one sync immediately, regardless of the auto-sync
// setting and backoff hold. Returns false when a run was already in flight.
func (s *Scheduler) TriggerSync(ctx context.Context) bool {
	_, err := s.runner.RunSync(ctx, s.credential)
	if errors.Is(err, errors.ErrSyncInProgress) {
		return false
	}
	s.noteResult(err)
	return true
}

func (s *Scheduler) loop(ctx context.Context) {
	defer s.wg.Done()

	ticks := s.ticks
	if ticks == nil {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		ticks = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticks:
			s.tick(ctx)
		}
	}
}

// tick runs one scheduled attempt if the current settings and backoff hold
// allow it.
func (s *Scheduler) tick(ctx context.Context) {
	if !s.settings.Get().AutoSync {
		return
	}
	s.mu.Lock()
	held := s.now().Before(s.holdUntil)
	s.mu.Unlock()
	if held {
		return
	}

	_, err := s.runner.RunSync(ctx, s.credential)
	if errors.Is(err, errors.ErrSyncInProgress) {
		return
	}
	s.noteResult(err)
}

// noteResult updates the backoff hold after a completed attempt: failures
// push the next attempt out, success resets the pacing.
func (s *Scheduler) noteResult(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		delay := s.backoff.NextBackOff()
		s.holdUntil = s.now().Add(delay)
		logging.Warn("background sync failed, backing off",
			map[string]interface{}{"retry_in": delay.String(), "error": err.Error()})
		return
	}
	s.backoff.Reset()
	s.holdUntil = time.Time{}
	s.lastRun = s.now()
}
