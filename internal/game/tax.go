package game

import "time"

// TaxTimer tracks one team's periodic food tax. Deadlines are stored as
// absolute timestamps so pause compensation is a plain shift; the timer is
// created at session start and lives until the session completes.
type TaxTimer struct {
	TeamID      string        `json:"team_id"`
	NextDue     time.Time     `json:"next_due"`
	Interval    time.Duration `json:"interval"`
	WarningSent bool          `json:"warning_sent"`

	TaxesPaid         int `json:"taxes_paid"`
	Famines           int `json:"famines"`
	ConsecutiveUnpaid int `json:"consecutive_unpaid"`
}

// Reschedule advances the deadline by one interval and re-arms the warning.
// The deadline always moves, whether or not the tax was collected.
func (t *TaxTimer) Reschedule() {
	t.NextDue = t.NextDue.Add(t.Interval)
	t.WarningSent = false
}

// RuleState tracks one scenario rule's firing history for a session.
// FiredElapsed values are in active (unpaused) session time so cooldowns
// survive pause/resume without adjustment.
type RuleState struct {
	FireCount        int           `json:"fire_count"`
	LastFiredElapsed time.Duration `json:"last_fired_elapsed"`
}
