// Package session owns the per-session mutation discipline: every change
// to a session's economy, foreground or background, goes through one
// read-modify-write helper that serializes writers per session and
// retries on store conflicts, so concurrent mutators queue instead of
// silently dropping each other's updates.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/oakbridge-games/homestead/internal/broadcast"
	"github.com/oakbridge-games/homestead/internal/config"
	"github.com/oakbridge-games/homestead/internal/event"
	"github.com/oakbridge-games/homestead/internal/game"
	"github.com/oakbridge-games/homestead/internal/pricing"
	"github.com/oakbridge-games/homestead/internal/production"
	"github.com/oakbridge-games/homestead/internal/scenario"
	"github.com/oakbridge-games/homestead/internal/store"
)

var (
	ErrSessionNotActive  = errors.New("session is not in progress")
	ErrSessionNotWaiting = errors.New("session has already started")
	ErrSessionNotPaused  = errors.New("session is not paused")
	ErrUnknownTeam       = errors.New("unknown team")
	ErrUnknownResource   = errors.New("unknown resource")
	ErrUnknownBuilding   = errors.New("unknown building")
	ErrUnknownEvent      = errors.New("unknown event kind")
	ErrInvalidSeverity   = errors.New("severity must be between 1 and 5")
	ErrInvalidQuantity   = errors.New("quantity must be positive")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrBuildingCapped    = errors.New("building count at maximum")
	ErrProductionBusy    = errors.New("production already in flight")
	ErrUnknownScenario   = errors.New("unknown scenario")

	// ErrNotApplicable maps the engines' precondition failures to a
	// user-facing rejection, not a system error.
	ErrNotApplicable = errors.New("not applicable")
)

const maxCommitRetries = 3

// Manager wires the engines to the store and broadcast sink.
type Manager struct {
	store     store.SessionStore
	history   store.PriceHistory
	calc      *pricing.Calculator
	events    *event.Engine
	bus       broadcast.Broadcaster
	cfg       config.EconomyConfig
	gate      *production.Gate
	scenarios map[string]scenario.Scenario

	locks sync.Map // session code -> *sync.Mutex

	// now is injectable for tests.
	now func() time.Time
	rng *rand.Rand
}

// NewManager creates a session manager.
func NewManager(
	st store.SessionStore,
	history store.PriceHistory,
	calc *pricing.Calculator,
	events *event.Engine,
	bus broadcast.Broadcaster,
	cfg config.EconomyConfig,
) *Manager {
	return &Manager{
		store:     st,
		history:   history,
		calc:      calc,
		events:    events,
		bus:       bus,
		cfg:       cfg,
		gate:      production.NewGate(),
		scenarios: scenario.Builtin(),
		now:       time.Now,
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// SetClock overrides the manager's clock; tests only.
func (m *Manager) SetClock(now func() time.Time) {
	m.now = now
}

// Scenario resolves a scenario ID against the built-in catalogue.
func (m *Manager) Scenario(id string) (scenario.Scenario, bool) {
	sc, ok := m.scenarios[id]
	return sc, ok
}

// Events exposes the event engine for read paths.
func (m *Manager) Events() *event.Engine {
	return m.events
}

// Pricing exposes the calculator for the pricing loop.
func (m *Manager) Pricing() *pricing.Calculator {
	return m.calc
}

// History exposes the price-history log.
func (m *Manager) History() store.PriceHistory {
	return m.history
}

// Store exposes the session store for read paths and the schedulers' scan.
func (m *Manager) Store() store.SessionStore {
	return m.store
}

// Publish forwards to the broadcast sink.
func (m *Manager) Publish(code string, ev broadcast.Event) {
	m.bus.Publish(code, ev)
}

func (m *Manager) lock(code string) *sync.Mutex {
	mu, _ := m.locks.LoadOrStore(code, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// Mutate runs fn inside the session's exclusive critical section and
// commits the result. A commit conflict (another process wrote the blob)
// re-reads and replays fn rather than dropping the mutation. fn returning
// an error aborts without committing.
func (m *Manager) Mutate(ctx context.Context, code string, fn func(*game.Session) error) (*game.Session, error) {
	mu := m.lock(code)
	mu.Lock()
	defer mu.Unlock()

	for attempt := 0; ; attempt++ {
		s, err := m.store.Get(ctx, code)
		if err != nil {
			return nil, err
		}
		if err := fn(s); err != nil {
			return nil, err
		}
		err = m.store.Commit(ctx, s)
		if err == nil {
			return s, nil
		}
		if !errors.Is(err, store.ErrConflict) || attempt >= maxCommitRetries {
			return nil, fmt.Errorf("commit session %s: %w", code, err)
		}
		slog.Warn("Session commit conflict, retrying",
			slog.String("type", "sys"),
			slog.String("session", code),
			slog.Int("attempt", attempt+1))
	}
}

// Get returns a read-only copy of a session.
func (m *Manager) Get(ctx context.Context, code string) (*game.Session, error) {
	return m.store.Get(ctx, code)
}

// TeamSpec names a team joining at creation.
type TeamSpec struct {
	ID   string
	Name string
}

// Create registers a new waiting session.
func (m *Manager) Create(ctx context.Context, name string, difficulty game.Difficulty, duration time.Duration, scenarioID string, teams []TeamSpec) (*game.Session, error) {
	if scenarioID != "" {
		if _, ok := m.scenarios[scenarioID]; !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownScenario, scenarioID)
		}
	}
	s := &game.Session{
		Code:       newCode(),
		Name:       name,
		Status:     game.StatusWaiting,
		Difficulty: difficulty,
		Duration:   duration,
		ScenarioID: scenarioID,
		CreatedAt:  m.now().UTC(),
		Economy:    game.NewEconomyState(),
	}
	for _, spec := range teams {
		id := spec.ID
		if id == "" {
			id = uuid.NewString()
		}
		team := game.NewTeam(id, spec.Name)
		for res, qty := range m.cfg.StartingResources {
			team.Resources[res] = qty
		}
		s.Economy.Teams[id] = team
	}
	if err := m.store.Put(ctx, s); err != nil {
		return nil, err
	}
	return s, nil
}

func newCode() string {
	// Join codes are short and human-typable; collisions are guarded by
	// the store's primary key.
	return uuid.NewString()[:8]
}

// Start flips a waiting session in progress and initializes its economy:
// bank prices quoted around the configured baselines, bank inventory
// stocked, and a tax timer armed per team.
func (m *Manager) Start(ctx context.Context, code string) (*game.Session, error) {
	now := m.now().UTC()
	s, err := m.Mutate(ctx, code, func(s *game.Session) error {
		if s.Status != game.StatusWaiting {
			return ErrSessionNotWaiting
		}
		s.Status = game.StatusInProgress
		s.StartedAt = &now

		interval := config.TaxInterval(s.Difficulty, s.Duration)
		for res, baseline := range m.cfg.Baselines {
			s.Economy.Prices[res] = m.calc.InitialState(baseline)
		}
		for res, qty := range m.cfg.BankInventory {
			s.Economy.Bank[res] = qty
		}
		for id := range s.Economy.Teams {
			s.Economy.TaxTimers[id] = &game.TaxTimer{
				TeamID:   id,
				NextDue:  now.Add(interval),
				Interval: interval,
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	for res, state := range s.Economy.Prices {
		rec := game.PriceRecord{Timestamp: now, Buy: state.Buy, Sell: state.Sell, Baseline: state.Baseline}
		if herr := m.history.Append(ctx, code, res, rec); herr != nil {
			slog.Warn("Failed to seed price history",
				slog.String("type", "sys"),
				slog.String("session", code),
				slog.Any("error", herr))
		}
	}
	return s, nil
}

// Pause freezes the session. Timers are untouched: loops simply skip
// paused sessions, and Resume compensates the deadlines.
func (m *Manager) Pause(ctx context.Context, code string) (*game.Session, error) {
	now := m.now().UTC()
	s, err := m.Mutate(ctx, code, func(s *game.Session) error {
		if s.Status != game.StatusInProgress {
			return ErrSessionNotActive
		}
		s.Status = game.StatusPaused
		s.PausedAt = &now
		return nil
	})
	if err != nil {
		return nil, err
	}
	m.bus.Publish(code, broadcast.Event{Type: broadcast.TypeSessionPaused})
	return s, nil
}

// Resume unfreezes the session and shifts every stored deadline forward
// by the measured pause duration, re-arming warnings.
func (m *Manager) Resume(ctx context.Context, code string) (*game.Session, error) {
	now := m.now().UTC()
	var pauseDur time.Duration
	s, err := m.Mutate(ctx, code, func(s *game.Session) error {
		if s.Status != game.StatusPaused || s.PausedAt == nil {
			return ErrSessionNotPaused
		}
		pauseDur = now.Sub(*s.PausedAt)
		if pauseDur < 0 {
			pauseDur = 0
		}
		s.Status = game.StatusInProgress
		s.PausedAt = nil
		s.PausedTotal += pauseDur
		s.Economy.ShiftDeadlines(pauseDur)
		return nil
	})
	if err != nil {
		return nil, err
	}
	m.bus.Publish(code, broadcast.Event{
		Type:    broadcast.TypeSessionResumed,
		Payload: map[string]any{"paused_for_ms": pauseDur.Milliseconds()},
	})
	return s, nil
}

// Complete ends the session; schedulers observe the status at the start
// of their next scan.
func (m *Manager) Complete(ctx context.Context, code string) (*game.Session, error) {
	return m.Mutate(ctx, code, func(s *game.Session) error {
		if s.Status != game.StatusInProgress && s.Status != game.StatusPaused {
			return ErrSessionNotActive
		}
		s.Status = game.StatusCompleted
		return nil
	})
}
