package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoop_FailureBudget(t *testing.T) {
	env := newTestEnv(t)
	s := env.startedSession(t)

	calls := 0
	l := newLoop("test", time.Second, 3, 12*time.Hour, 1, env.mgr,
		func(context.Context, string) error {
			calls++
			return errors.New("boom")
		})
	l.SetClock(env.clock.Now)

	for i := 0; i < 5; i++ {
		l.RunOnce(context.Background())
	}

	// Three failures exhaust the budget; the remaining scans skip it.
	assert.Equal(t, 3, calls)
	assert.Equal(t, 3, l.FailureCount(s.Code))
}

func TestLoop_SuccessResetsFailures(t *testing.T) {
	env := newTestEnv(t)
	s := env.startedSession(t)

	var fail bool
	l := newLoop("test", time.Second, 3, 12*time.Hour, 1, env.mgr,
		func(context.Context, string) error {
			if fail {
				return errors.New("boom")
			}
			return nil
		})
	l.SetClock(env.clock.Now)

	fail = true
	l.RunOnce(context.Background())
	l.RunOnce(context.Background())
	require.Equal(t, 2, l.FailureCount(s.Code))

	fail = false
	l.RunOnce(context.Background())
	assert.Zero(t, l.FailureCount(s.Code))
}

func TestLoop_SkipsAbandonedSession(t *testing.T) {
	env := newTestEnv(t)
	env.startedSession(t)

	calls := 0
	l := newLoop("test", time.Second, 3, 12*time.Hour, 1, env.mgr,
		func(context.Context, string) error {
			calls++
			return nil
		})
	l.SetClock(env.clock.Now)

	l.RunOnce(context.Background())
	require.Equal(t, 1, calls)

	// Past the maximum age the session is presumed abandoned.
	env.clock.Advance(13 * time.Hour)
	l.RunOnce(context.Background())
	assert.Equal(t, 1, calls)
}

func TestLoop_SkipsNonRunningSessions(t *testing.T) {
	env := newTestEnv(t)
	s := env.startedSession(t)

	calls := 0
	l := newLoop("test", time.Second, 3, 12*time.Hour, 1, env.mgr,
		func(context.Context, string) error {
			calls++
			return nil
		})
	l.SetClock(env.clock.Now)

	_, err := env.mgr.Complete(context.Background(), s.Code)
	require.NoError(t, err)

	l.RunOnce(context.Background())
	assert.Zero(t, calls)
}
