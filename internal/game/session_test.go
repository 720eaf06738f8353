package game

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestElapsedActive(t *testing.T) {
	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	s := &Session{Status: StatusInProgress, StartedAt: &start}

	assert.Equal(t, 10*time.Minute, s.ElapsedActive(start.Add(10*time.Minute)))

	// Completed pauses subtract from elapsed time.
	s.PausedTotal = 3 * time.Minute
	assert.Equal(t, 7*time.Minute, s.ElapsedActive(start.Add(10*time.Minute)))

	// An ongoing pause freezes the value as of the pause start.
	pausedAt := start.Add(8 * time.Minute)
	s.PausedAt = &pausedAt
	assert.Equal(t, 5*time.Minute, s.ElapsedActive(start.Add(10*time.Minute)))
	assert.Equal(t, 5*time.Minute, s.ElapsedActive(start.Add(2*time.Hour)))
}

func TestElapsedActive_NotStarted(t *testing.T) {
	s := &Session{Status: StatusWaiting}
	assert.Zero(t, s.ElapsedActive(time.Now()))
}

func TestActive(t *testing.T) {
	s := &Session{Status: StatusInProgress, Economy: NewEconomyState()}
	assert.True(t, s.Active())

	s.Status = StatusPaused
	assert.False(t, s.Active())

	s.Status = StatusInProgress
	s.Economy = nil
	assert.False(t, s.Active())
}

func TestShiftDeadlines(t *testing.T) {
	due := time.Date(2026, 3, 1, 9, 5, 0, 0, time.UTC)
	e := NewEconomyState()
	e.TaxTimers["alpha"] = &TaxTimer{TeamID: "alpha", NextDue: due, WarningSent: true}
	e.TaxTimers["beta"] = &TaxTimer{TeamID: "beta", NextDue: due.Add(time.Minute)}

	e.ShiftDeadlines(4 * time.Minute)

	assert.Equal(t, due.Add(4*time.Minute), e.TaxTimers["alpha"].NextDue)
	assert.Equal(t, due.Add(5*time.Minute), e.TaxTimers["beta"].NextDue)
	// The warning re-arms against the new deadline.
	assert.False(t, e.TaxTimers["alpha"].WarningSent)
}

func TestShiftDeadlines_ZeroIsNoop(t *testing.T) {
	due := time.Date(2026, 3, 1, 9, 5, 0, 0, time.UTC)
	e := NewEconomyState()
	e.TaxTimers["alpha"] = &TaxTimer{TeamID: "alpha", NextDue: due, WarningSent: true}

	e.ShiftDeadlines(0)

	assert.Equal(t, due, e.TaxTimers["alpha"].NextDue)
	assert.True(t, e.TaxTimers["alpha"].WarningSent)
}
