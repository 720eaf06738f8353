package session

import (
	"context"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oakbridge-games/homestead/internal/broadcast"
	"github.com/oakbridge-games/homestead/internal/config"
	"github.com/oakbridge-games/homestead/internal/event"
	"github.com/oakbridge-games/homestead/internal/game"
	"github.com/oakbridge-games/homestead/internal/pricing"
	"github.com/oakbridge-games/homestead/internal/store"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func newTestManager(t *testing.T, st store.SessionStore) (*Manager, *fakeClock) {
	t.Helper()
	cfg := config.Default()
	clock := newFakeClock()
	mgr := NewManager(
		st,
		store.NewMemoryHistory(cfg.Store.HistorySize),
		pricing.NewCalculator(cfg.Economy.Pricing, rand.New(rand.NewSource(1))),
		event.NewEngine(cfg.Economy.Events, rand.New(rand.NewSource(1))),
		broadcast.NopBroadcaster{},
		cfg.Economy,
	)
	mgr.SetClock(clock.Now)
	return mgr, clock
}

func createStarted(t *testing.T, mgr *Manager) *game.Session {
	t.Helper()
	ctx := context.Background()
	s, err := mgr.Create(ctx, "test", game.DifficultyMedium, time.Hour, "",
		[]TeamSpec{{ID: "alpha", Name: "Alpha"}, {ID: "beta", Name: "Beta"}})
	require.NoError(t, err)
	s, err = mgr.Start(ctx, s.Code)
	require.NoError(t, err)
	return s
}

func TestCreate(t *testing.T) {
	mgr, _ := newTestManager(t, store.NewMemoryStore())
	ctx := context.Background()

	s, err := mgr.Create(ctx, "game night", game.DifficultyEasy, time.Hour, "",
		[]TeamSpec{{ID: "alpha", Name: "Alpha"}})
	require.NoError(t, err)

	assert.Len(t, s.Code, 8)
	assert.Equal(t, game.StatusWaiting, s.Status)

	// Teams arrive seeded with the starting inventory.
	team := s.Economy.Teams["alpha"]
	require.NotNil(t, team)
	assert.Equal(t, 50, team.Resources[game.ResourceFood])
	assert.Equal(t, 100, team.Resources[game.ResourceCurrency])
	assert.Equal(t, game.TierSettlement, team.Tier)
}

func TestCreate_UnknownScenario(t *testing.T) {
	mgr, _ := newTestManager(t, store.NewMemoryStore())
	_, err := mgr.Create(context.Background(), "x", game.DifficultyEasy, time.Hour, "atlantis",
		[]TeamSpec{{ID: "alpha"}})
	assert.ErrorIs(t, err, ErrUnknownScenario)
}

func TestStart(t *testing.T) {
	mgr, clock := newTestManager(t, store.NewMemoryStore())
	ctx := context.Background()
	s := createStarted(t, mgr)

	assert.Equal(t, game.StatusInProgress, s.Status)
	require.NotNil(t, s.StartedAt)

	// Quotes open around the configured baselines.
	food := s.Economy.Prices[game.ResourceFood]
	require.NotNil(t, food)
	assert.Equal(t, 12, food.Buy)
	assert.Equal(t, 8, food.Sell)

	assert.Equal(t, 500, s.Economy.Bank[game.ResourceFood])

	// Tax timers are armed one interval out for every team.
	for _, id := range []string{"alpha", "beta"} {
		timer := s.Economy.TaxTimers[id]
		require.NotNil(t, timer, id)
		assert.Equal(t, clock.Now().Add(5*time.Minute), timer.NextDue)
	}

	// The opening quote seeds the momentum history.
	records, err := mgr.History().Window(ctx, s.Code, game.ResourceFood, time.Time{})
	require.NoError(t, err)
	assert.Len(t, records, 1)

	_, err = mgr.Start(ctx, s.Code)
	assert.ErrorIs(t, err, ErrSessionNotWaiting)
}

func TestPauseResume(t *testing.T) {
	mgr, clock := newTestManager(t, store.NewMemoryStore())
	ctx := context.Background()
	s := createStarted(t, mgr)

	_, err := mgr.Resume(ctx, s.Code)
	assert.ErrorIs(t, err, ErrSessionNotPaused)

	clock.Advance(time.Minute)
	_, err = mgr.Pause(ctx, s.Code)
	require.NoError(t, err)
	_, err = mgr.Pause(ctx, s.Code)
	assert.ErrorIs(t, err, ErrSessionNotActive)

	clock.Advance(2 * time.Minute)
	s, err = mgr.Resume(ctx, s.Code)
	require.NoError(t, err)

	assert.Equal(t, game.StatusInProgress, s.Status)
	assert.Nil(t, s.PausedAt)
	assert.Equal(t, 2*time.Minute, s.PausedTotal)
	// One active minute regardless of the pause.
	assert.Equal(t, time.Minute, s.ElapsedActive(clock.Now()))
}

func TestResume_ZeroPauseIsIdentity(t *testing.T) {
	mgr, _ := newTestManager(t, store.NewMemoryStore())
	ctx := context.Background()
	s := createStarted(t, mgr)

	due := s.Economy.TaxTimers["alpha"].NextDue

	_, err := mgr.Pause(ctx, s.Code)
	require.NoError(t, err)
	s, err = mgr.Resume(ctx, s.Code)
	require.NoError(t, err)

	assert.Zero(t, s.PausedTotal)
	assert.Equal(t, due, s.Economy.TaxTimers["alpha"].NextDue)
}

// conflictingStore rejects the first n commits to exercise the retry path.
type conflictingStore struct {
	*store.MemoryStore
	mu        sync.Mutex
	conflicts int
}

func (c *conflictingStore) Commit(ctx context.Context, s *game.Session) error {
	c.mu.Lock()
	reject := c.conflicts > 0
	if reject {
		c.conflicts--
	}
	c.mu.Unlock()
	if reject {
		return store.ErrConflict
	}
	return c.MemoryStore.Commit(ctx, s)
}

func TestMutate_RetriesOnConflict(t *testing.T) {
	st := &conflictingStore{MemoryStore: store.NewMemoryStore()}
	mgr, _ := newTestManager(t, st)
	ctx := context.Background()
	s := createStarted(t, mgr)

	st.mu.Lock()
	st.conflicts = 2
	st.mu.Unlock()

	calls := 0
	_, err := mgr.Mutate(ctx, s.Code, func(s *game.Session) error {
		calls++
		s.Economy.Bank[game.ResourceFood] = 123
		return nil
	})
	require.NoError(t, err)
	// The mutation replayed once per conflict and landed exactly once.
	assert.Equal(t, 3, calls)

	got, err := mgr.Get(ctx, s.Code)
	require.NoError(t, err)
	assert.Equal(t, 123, got.Economy.Bank[game.ResourceFood])
}

func TestMutate_GivesUpAfterRetries(t *testing.T) {
	st := &conflictingStore{MemoryStore: store.NewMemoryStore()}
	mgr, _ := newTestManager(t, st)
	ctx := context.Background()
	s := createStarted(t, mgr)

	st.mu.Lock()
	st.conflicts = 100
	st.mu.Unlock()

	_, err := mgr.Mutate(ctx, s.Code, func(*game.Session) error { return nil })
	assert.ErrorIs(t, err, store.ErrConflict)
}

func TestExecuteTrade_Buy(t *testing.T) {
	mgr, _ := newTestManager(t, store.NewMemoryStore())
	ctx := context.Background()
	s := createStarted(t, mgr)

	result, err := mgr.ExecuteTrade(ctx, s.Code, "alpha", game.ResourceFood, 5, TradeBuy)
	require.NoError(t, err)
	assert.Equal(t, 12, result.UnitPrice)
	assert.Equal(t, 60, result.Total)

	s, _ = mgr.Get(ctx, s.Code)
	team := s.Economy.Teams["alpha"]
	assert.Equal(t, 55, team.Resources[game.ResourceFood])
	assert.Equal(t, 40, team.Resources[game.ResourceCurrency])
	assert.Equal(t, 495, s.Economy.Bank[game.ResourceFood])
}

func TestExecuteTrade_Sell(t *testing.T) {
	mgr, _ := newTestManager(t, store.NewMemoryStore())
	ctx := context.Background()
	s := createStarted(t, mgr)

	result, err := mgr.ExecuteTrade(ctx, s.Code, "alpha", game.ResourceFood, 10, TradeSell)
	require.NoError(t, err)
	assert.Equal(t, 8, result.UnitPrice)
	assert.Equal(t, 80, result.Total)

	s, _ = mgr.Get(ctx, s.Code)
	team := s.Economy.Teams["alpha"]
	assert.Equal(t, 40, team.Resources[game.ResourceFood])
	assert.Equal(t, 180, team.Resources[game.ResourceCurrency])
	assert.Equal(t, 510, s.Economy.Bank[game.ResourceFood])
}

func TestExecuteTrade_Validation(t *testing.T) {
	mgr, _ := newTestManager(t, store.NewMemoryStore())
	ctx := context.Background()
	s := createStarted(t, mgr)

	_, err := mgr.ExecuteTrade(ctx, s.Code, "alpha", game.ResourceCurrency, 5, TradeBuy)
	assert.ErrorIs(t, err, ErrUnknownResource)

	_, err = mgr.ExecuteTrade(ctx, s.Code, "alpha", game.ResourceFood, 0, TradeBuy)
	assert.ErrorIs(t, err, ErrInvalidQuantity)

	_, err = mgr.ExecuteTrade(ctx, s.Code, "ghosts", game.ResourceFood, 5, TradeBuy)
	assert.ErrorIs(t, err, ErrUnknownTeam)

	// 10 food at buy 12 needs 120; the team holds 100.
	_, err = mgr.ExecuteTrade(ctx, s.Code, "alpha", game.ResourceFood, 10, TradeBuy)
	assert.ErrorIs(t, err, ErrInsufficientFunds)

	// A failed trade mutates nothing.
	s, _ = mgr.Get(ctx, s.Code)
	assert.Equal(t, 100, s.Economy.Teams["alpha"].Resources[game.ResourceCurrency])
	assert.Equal(t, 500, s.Economy.Bank[game.ResourceFood])

	_, err = mgr.ExecuteTrade(ctx, s.Code, "alpha", game.ResourceFood, 501, TradeSell)
	assert.ErrorIs(t, err, ErrInsufficientStock)
}

func TestExecuteTrade_RecessionInflatesSettlement(t *testing.T) {
	mgr, _ := newTestManager(t, store.NewMemoryStore())
	ctx := context.Background()
	s := createStarted(t, mgr)

	_, err := mgr.TriggerEvent(ctx, s.Code, game.EventRecession, 2)
	require.NoError(t, err)

	// Quote is still 12; settlement doubles under a severity-2 recession.
	result, err := mgr.ExecuteTrade(ctx, s.Code, "alpha", game.ResourceFood, 4, TradeBuy)
	require.NoError(t, err)
	assert.Equal(t, 24, result.UnitPrice)
	assert.Equal(t, 96, result.Total)
}

func TestExecuteTrade_LargeOrderMovesMarket(t *testing.T) {
	mgr, _ := newTestManager(t, store.NewMemoryStore())
	ctx := context.Background()
	s := createStarted(t, mgr)

	// Fund the buyer for a full lot.
	_, err := mgr.Mutate(ctx, s.Code, func(s *game.Session) error {
		s.Economy.Teams["alpha"].Resources[game.ResourceCurrency] = 5000
		return nil
	})
	require.NoError(t, err)

	_, err = mgr.ExecuteTrade(ctx, s.Code, "alpha", game.ResourceFood, 100, TradeBuy)
	require.NoError(t, err)

	s, _ = mgr.Get(ctx, s.Code)
	assert.Greater(t, s.Economy.Prices[game.ResourceFood].Mid(), 10)

	// The move is on the history log marked as trade-driven.
	last, ok := mgr.History().LastPrice(ctx, s.Code, game.ResourceFood)
	require.True(t, ok)
	assert.True(t, last.Trade)
}

func TestPurchaseBuilding(t *testing.T) {
	mgr, _ := newTestManager(t, store.NewMemoryStore())
	ctx := context.Background()
	s := createStarted(t, mgr)

	cost, err := mgr.PurchaseBuilding(ctx, s.Code, "alpha", game.BuildingFarm)
	require.NoError(t, err)
	assert.Equal(t, 60, cost)

	s, _ = mgr.Get(ctx, s.Code)
	team := s.Economy.Teams["alpha"]
	assert.Equal(t, 1, team.BuildingCount(game.BuildingFarm))
	assert.Equal(t, 40, team.Resources[game.ResourceCurrency])

	// A second farm is no longer affordable.
	_, err = mgr.PurchaseBuilding(ctx, s.Code, "alpha", game.BuildingFarm)
	assert.ErrorIs(t, err, ErrInsufficientFunds)

	_, err = mgr.PurchaseBuilding(ctx, s.Code, "alpha", game.Building("castle"))
	assert.ErrorIs(t, err, ErrUnknownBuilding)
}

func TestPurchaseBuilding_Cap(t *testing.T) {
	mgr, _ := newTestManager(t, store.NewMemoryStore())
	ctx := context.Background()
	s := createStarted(t, mgr)

	_, err := mgr.Mutate(ctx, s.Code, func(s *game.Session) error {
		team := s.Economy.Teams["alpha"]
		team.Resources[game.ResourceCurrency] = 10000
		for i := 0; i < game.MaxBuildingCount; i++ {
			team.AddBuilding(game.BuildingFarm)
		}
		return nil
	})
	require.NoError(t, err)

	_, err = mgr.PurchaseBuilding(ctx, s.Code, "alpha", game.BuildingFarm)
	assert.ErrorIs(t, err, ErrBuildingCapped)
}

func TestOverridePrice(t *testing.T) {
	mgr, _ := newTestManager(t, store.NewMemoryStore())
	ctx := context.Background()
	s := createStarted(t, mgr)

	require.NoError(t, mgr.OverridePrice(ctx, s.Code, game.ResourceFood, 40))

	s, _ = mgr.Get(ctx, s.Code)
	state := s.Economy.Prices[game.ResourceFood]
	assert.Equal(t, 40, state.Baseline)
	assert.Equal(t, 48, state.Buy)
	assert.Equal(t, 32, state.Sell)

	assert.ErrorIs(t, mgr.OverridePrice(ctx, s.Code, game.ResourceCurrency, 10), ErrUnknownResource)
}

func TestTriggerEvent_Validation(t *testing.T) {
	mgr, _ := newTestManager(t, store.NewMemoryStore())
	ctx := context.Background()
	s := createStarted(t, mgr)

	_, err := mgr.TriggerEvent(ctx, s.Code, game.EventKind("meteor"), 3)
	assert.ErrorIs(t, err, ErrUnknownEvent)

	_, err = mgr.TriggerEvent(ctx, s.Code, game.EventDrought, 0)
	assert.ErrorIs(t, err, ErrInvalidSeverity)

	_, err = mgr.TriggerEvent(ctx, s.Code, game.EventDrought, 3)
	require.NoError(t, err)

	// A duplicate kind is rejected as inapplicable, not stored twice.
	_, err = mgr.TriggerEvent(ctx, s.Code, game.EventDrought, 3)
	assert.ErrorIs(t, err, ErrNotApplicable)
}

func TestCompleteChallenge(t *testing.T) {
	mgr, _ := newTestManager(t, store.NewMemoryStore())
	ctx := context.Background()
	s := createStarted(t, mgr)

	_, err := mgr.Mutate(ctx, s.Code, func(s *game.Session) error {
		team := s.Economy.Teams["alpha"]
		team.AddBuilding(game.BuildingFarm)
		team.AddBuilding(game.BuildingFarm)
		return nil
	})
	require.NoError(t, err)

	grant, err := mgr.CompleteChallenge(ctx, s.Code, "alpha", "p1", game.BuildingFarm)
	require.NoError(t, err)
	assert.Equal(t, game.ResourceFood, grant.Resource)
	assert.Equal(t, 20, grant.Amount)

	s, _ = mgr.Get(ctx, s.Code)
	assert.Equal(t, 70, s.Economy.Teams["alpha"].Resources[game.ResourceFood])
}

func TestCompleteChallenge_DroughtHalvesOutput(t *testing.T) {
	mgr, _ := newTestManager(t, store.NewMemoryStore())
	ctx := context.Background()
	s := createStarted(t, mgr)

	_, err := mgr.Mutate(ctx, s.Code, func(s *game.Session) error {
		s.Economy.Teams["alpha"].AddBuilding(game.BuildingFarm)
		return nil
	})
	require.NoError(t, err)
	_, err = mgr.TriggerEvent(ctx, s.Code, game.EventDrought, 3)
	require.NoError(t, err)

	grant, err := mgr.CompleteChallenge(ctx, s.Code, "alpha", "p1", game.BuildingFarm)
	require.NoError(t, err)
	// One farm at 10 food under the severity-3 multiplier of 0.5.
	assert.Equal(t, 5, grant.Amount)
}

func TestCompleteChallenge_RejectsDuplicateInFlight(t *testing.T) {
	mgr, _ := newTestManager(t, store.NewMemoryStore())
	ctx := context.Background()
	s := createStarted(t, mgr)

	_, err := mgr.Mutate(ctx, s.Code, func(s *game.Session) error {
		s.Economy.Teams["alpha"].AddBuilding(game.BuildingFarm)
		return nil
	})
	require.NoError(t, err)

	cur, err := mgr.Get(ctx, s.Code)
	require.NoError(t, err)
	team := cur.Economy.Teams["alpha"]

	// A pending request for the same team and building turns the second
	// one away; without a school the whole team shares the slot, so the
	// player ID does not matter.
	require.True(t, mgr.gate.Acquire(s.Code, team, "p1", game.BuildingFarm))
	defer mgr.gate.Release(s.Code, team, "p1", game.BuildingFarm)

	_, err = mgr.CompleteChallenge(ctx, s.Code, "alpha", "p2", game.BuildingFarm)
	assert.ErrorIs(t, err, ErrProductionBusy)

	// The other team is unaffected.
	_, err = mgr.CompleteChallenge(ctx, s.Code, "beta", "p1", game.BuildingFarm)
	require.NoError(t, err)
}

func TestCompleteChallenge_SchoolLocksPerPlayer(t *testing.T) {
	mgr, _ := newTestManager(t, store.NewMemoryStore())
	ctx := context.Background()
	s := createStarted(t, mgr)

	_, err := mgr.Mutate(ctx, s.Code, func(s *game.Session) error {
		team := s.Economy.Teams["alpha"]
		team.AddBuilding(game.BuildingFarm)
		team.AddBuilding(game.BuildingSchool)
		return nil
	})
	require.NoError(t, err)

	cur, err := mgr.Get(ctx, s.Code)
	require.NoError(t, err)
	team := cur.Economy.Teams["alpha"]

	require.True(t, mgr.gate.Acquire(s.Code, team, "p1", game.BuildingFarm))
	defer mgr.gate.Release(s.Code, team, "p1", game.BuildingFarm)

	_, err = mgr.CompleteChallenge(ctx, s.Code, "alpha", "p1", game.BuildingFarm)
	assert.ErrorIs(t, err, ErrProductionBusy)

	// With a school each player holds their own slot.
	grant, err := mgr.CompleteChallenge(ctx, s.Code, "alpha", "p2", game.BuildingFarm)
	require.NoError(t, err)
	assert.Equal(t, 10, grant.Amount)
}

func TestSnapshot(t *testing.T) {
	mgr, clock := newTestManager(t, store.NewMemoryStore())
	ctx := context.Background()
	s := createStarted(t, mgr)

	clock.Advance(90 * time.Second)
	snap, err := mgr.Snapshot(ctx, s.Code)
	require.NoError(t, err)

	assert.Equal(t, s.Code, snap.Code)
	assert.Equal(t, game.StatusInProgress, snap.Status)
	assert.Equal(t, 90*time.Second, snap.Elapsed)
	assert.Len(t, snap.Teams, 2)
	assert.NotNil(t, snap.Prices[game.ResourceFood])

	_, err = mgr.Snapshot(ctx, "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestComplete(t *testing.T) {
	mgr, _ := newTestManager(t, store.NewMemoryStore())
	ctx := context.Background()
	s := createStarted(t, mgr)

	s, err := mgr.Complete(ctx, s.Code)
	require.NoError(t, err)
	assert.Equal(t, game.StatusCompleted, s.Status)

	_, err = mgr.Complete(ctx, s.Code)
	assert.ErrorIs(t, err, ErrSessionNotActive)
}
