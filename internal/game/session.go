package game

import (
	"time"
)

// Status is the lifecycle state of a session.
type Status string

const (
	StatusWaiting    Status = "waiting"
	StatusInProgress Status = "in_progress"
	StatusPaused     Status = "paused"
	StatusCompleted  Status = "completed"
)

// Difficulty scales event damage and tax pressure.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// ValidDifficulty reports whether d is a known difficulty.
func ValidDifficulty(d Difficulty) bool {
	switch d {
	case DifficultyEasy, DifficultyMedium, DifficultyHard:
		return true
	}
	return false
}

// Session is one running game, keyed by its join code. The economy exists
// only once the session has been started; engines treat a session without
// an economy (or not in progress) as a no-op.
type Session struct {
	Code       string        `json:"code"`
	Name       string        `json:"name"`
	Status     Status        `json:"status"`
	Difficulty Difficulty    `json:"difficulty"`
	Duration   time.Duration `json:"duration"`
	ScenarioID string        `json:"scenario_id,omitempty"`

	CreatedAt time.Time  `json:"created_at"`
	StartedAt *time.Time `json:"started_at,omitempty"`

	// PausedAt is set while the session is paused; PausedTotal accumulates
	// the duration of every completed pause.
	PausedAt    *time.Time    `json:"paused_at,omitempty"`
	PausedTotal time.Duration `json:"paused_total"`

	Economy *EconomyState `json:"economy,omitempty"`

	// Version is the optimistic-concurrency token managed by the store.
	Version int64 `json:"version"`
}

// EconomyState is the mutable per-session economy blob. It is owned by the
// session store; engines never retain it between calls.
type EconomyState struct {
	Teams     map[string]*Team          `json:"teams"`
	Prices    map[Resource]*PriceState  `json:"prices"`
	Events    map[string]*ActiveEvent   `json:"events"`
	TaxTimers map[string]*TaxTimer      `json:"tax_timers"`
	Bank      map[Resource]int          `json:"bank"`
	Scenario  map[string]*RuleState     `json:"scenario,omitempty"`
	Degraded  bool                      `json:"degraded,omitempty"`
}

// NewEconomyState returns an empty economy ready to be populated at start.
func NewEconomyState() *EconomyState {
	return &EconomyState{
		Teams:     make(map[string]*Team),
		Prices:    make(map[Resource]*PriceState),
		Events:    make(map[string]*ActiveEvent),
		TaxTimers: make(map[string]*TaxTimer),
		Bank:      make(map[Resource]int),
		Scenario:  make(map[string]*RuleState),
	}
}

// Active reports whether engine operations should run against the session.
func (s *Session) Active() bool {
	return s.Status == StatusInProgress && s.Economy != nil
}

// ElapsedActive returns wall-clock time since start minus all paused time,
// including a pause still in progress. Scenario rules key off this value so
// that pausing never accelerates or skips scheduled effects.
func (s *Session) ElapsedActive(now time.Time) time.Duration {
	if s.StartedAt == nil {
		return 0
	}
	elapsed := now.Sub(*s.StartedAt) - s.PausedTotal
	if s.PausedAt != nil {
		elapsed -= now.Sub(*s.PausedAt)
	}
	if elapsed < 0 {
		return 0
	}
	return elapsed
}

// Age returns how long ago the session was created.
func (s *Session) Age(now time.Time) time.Duration {
	return now.Sub(s.CreatedAt)
}

// ShiftDeadlines moves every stored absolute deadline forward by d and
// clears warning flags so a warning can fire again before the new deadline.
// Shifting by zero is a no-op.
func (e *EconomyState) ShiftDeadlines(d time.Duration) {
	if d <= 0 {
		return
	}
	for _, timer := range e.TaxTimers {
		timer.NextDue = timer.NextDue.Add(d)
		timer.WarningSent = false
	}
}
