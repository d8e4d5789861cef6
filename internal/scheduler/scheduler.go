// Package scheduler drives periodic refresh cycles with an exclusive-run
// guard and a minimum-interval policy.
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/ldevineau/pullwatch/internal/store"
)

const (
	// DefaultTick is how often eligibility is re-checked.
	DefaultTick = time.Minute
	// DefaultRefreshDelay is the minimum time between two full refreshes.
	DefaultRefreshDelay = 10 * time.Minute
)

// Refresher is the store surface the scheduler drives.
type Refresher interface {
	Refresh(ctx context.Context) error
	Running() bool
	LastCheck() time.Time
}

type Scheduler struct {
	refresher Refresher
	tick      time.Duration
	delay     time.Duration
	logger    *slog.Logger
}

func New(refresher Refresher, tick, delay time.Duration, logger *slog.Logger) *Scheduler {
	if tick <= 0 {
		tick = DefaultTick
	}
	if delay <= 0 {
		delay = DefaultRefreshDelay
	}
	return &Scheduler{
		refresher: refresher,
		tick:      tick,
		delay:     delay,
		logger:    logger,
	}
}

// Run polls until the context is cancelled. A tick that lands while a
// refresh is in flight is dropped, not queued; the next tick re-checks
// eligibility. Refresh failures are logged and never stop the loop.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info("scheduler started", "tick", s.tick, "refresh_delay", s.delay)

	// First eligibility check happens immediately so a cold start (or an
	// expired persisted lastCheck) does not wait a full tick.
	s.maybeRefresh(ctx)

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return nil
		case <-ticker.C:
			s.maybeRefresh(ctx)
		}
	}
}

func (s *Scheduler) maybeRefresh(ctx context.Context) {
	if s.refresher.Running() {
		return
	}
	if time.Since(s.refresher.LastCheck()) < s.delay {
		return
	}

	if err := s.refresher.Refresh(ctx); err != nil {
		switch {
		case errors.Is(err, store.ErrRefreshInFlight):
			// Lost the race with a manual refresh, fine.
		case ctx.Err() != nil:
		default:
			s.logger.Error("refresh failed", "err", err)
		}
	}
}
