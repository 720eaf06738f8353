// Package scheduler runs the background cycle loops: tax collection,
// price fluctuation, and scenario automation. Each loop owns its own
// per-session failure budget so one malformed session cannot starve the
// scan for everyone else, and each loop observes session status at the
// start of a scan, never mid-mutation.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/oakbridge-games/homestead/internal/game"
	"github.com/oakbridge-games/homestead/internal/logger"
	"github.com/oakbridge-games/homestead/internal/session"
)

// TickFunc processes one session for one loop iteration.
type TickFunc func(ctx context.Context, code string) error

// Loop is one interval scanner over all in-progress sessions. State that
// used to be process-global (failure counters) lives here, owned by the
// loop, so loops are independently testable and restartable.
type Loop struct {
	name        string
	interval    time.Duration
	threshold   int
	maxAge      time.Duration
	concurrency int64

	mgr  *session.Manager
	tick TickFunc
	now  func() time.Time

	mu       sync.Mutex
	failures map[string]int
}

func newLoop(name string, interval time.Duration, threshold int, maxAge time.Duration, concurrency int, mgr *session.Manager, tick TickFunc) *Loop {
	if threshold <= 0 {
		threshold = 5
	}
	if maxAge <= 0 {
		maxAge = 12 * time.Hour
	}
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Loop{
		name:        name,
		interval:    interval,
		threshold:   threshold,
		maxAge:      maxAge,
		concurrency: int64(concurrency),
		mgr:         mgr,
		tick:        tick,
		now:         time.Now,
		failures:    make(map[string]int),
	}
}

// SetClock overrides the loop's clock; tests only.
func (l *Loop) SetClock(now func() time.Time) {
	l.now = now
}

// Start runs the loop until ctx is cancelled. In-flight scans complete
// before the next interval check; there is no hard cancellation mid-tick.
func (l *Loop) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(l.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				slog.Info("Scheduler loop stopped",
					slog.String("type", "sys"),
					slog.String("loop", l.name))
				return
			case <-ticker.C:
				l.RunOnce(ctx)
			}
		}
	}()
}

// RunOnce scans every in-progress session once. Failures are caught and
// counted per session; a session over its budget is skipped until it
// succeeds again or ends.
func (l *Loop) RunOnce(ctx context.Context) {
	codes, err := l.mgr.Store().ListInProgress(ctx)
	if err != nil {
		logger.LogError("Scheduler scan failed", err,
			slog.String("loop", l.name))
		return
	}

	sem := semaphore.NewWeighted(l.concurrency)
	g, gctx := errgroup.WithContext(ctx)
	for _, code := range codes {
		code := code
		if !l.shouldProcess(gctx, code) {
			continue
		}
		g.Go(func() error {
			if err := sem.Acquire(gctx, 1); err != nil {
				return nil
			}
			defer sem.Release(1)
			l.processSession(gctx, code)
			return nil
		})
	}
	g.Wait()
}

func (l *Loop) shouldProcess(ctx context.Context, code string) bool {
	l.mu.Lock()
	over := l.failures[code] >= l.threshold
	l.mu.Unlock()
	if over {
		return false
	}

	s, err := l.mgr.Get(ctx, code)
	if err != nil {
		return false
	}
	if s.Status != game.StatusInProgress {
		return false
	}
	// Presumed abandoned.
	if s.Age(l.now()) > l.maxAge {
		return false
	}
	return true
}

func (l *Loop) processSession(ctx context.Context, code string) {
	err := l.tick(ctx, code)

	l.mu.Lock()
	defer l.mu.Unlock()
	if err != nil {
		l.failures[code]++
		logger.LogError("Scheduler tick failed", err,
			slog.String("loop", l.name),
			slog.String("session", code),
			slog.Int("consecutive", l.failures[code]))
		return
	}
	delete(l.failures, code)
}

// FailureCount reports a session's consecutive-failure count; tests and
// the ops surface use it.
func (l *Loop) FailureCount(code string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.failures[code]
}
