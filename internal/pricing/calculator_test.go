package pricing

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oakbridge-games/homestead/internal/game"
)

func testCalc(seed int64) *Calculator {
	return NewCalculator(DefaultConfig(), rand.New(rand.NewSource(seed)))
}

func TestSpread(t *testing.T) {
	c := testCalc(1)

	assert.Equal(t, 2, c.Spread(10))
	assert.Equal(t, 20, c.Spread(100))
	// Never below one unit, even when the percentage rounds to zero.
	assert.Equal(t, 1, c.Spread(1))
	assert.Equal(t, 1, c.Spread(2))
}

func TestInitialState(t *testing.T) {
	c := testCalc(1)

	state := c.InitialState(10)
	assert.Equal(t, 12, state.Buy)
	assert.Equal(t, 8, state.Sell)
	assert.Equal(t, 10, state.Baseline)
	assert.Equal(t, 10, state.Mid())

	// Tiny baselines still quote a valid gap.
	state = c.InitialState(2)
	assert.Greater(t, state.Buy, state.Sell)
	assert.GreaterOrEqual(t, state.Sell, 1)
}

func TestBounds(t *testing.T) {
	c := testCalc(1)

	lo, hi := c.Bounds(10)
	assert.Equal(t, 5, lo)
	assert.Equal(t, 35, hi)

	lo, hi = c.Bounds(1)
	assert.Equal(t, 1, lo)
	assert.Greater(t, hi, lo)
}

func TestMomentum(t *testing.T) {
	c := testCalc(1)
	now := time.Now()

	rising := []game.PriceRecord{
		{Timestamp: now.Add(-30 * time.Second), Buy: 12, Sell: 8},
		{Timestamp: now.Add(-20 * time.Second), Buy: 13, Sell: 9},
		{Timestamp: now.Add(-10 * time.Second), Buy: 14, Sell: 10},
	}
	assert.Greater(t, c.Momentum(rising, now), 0.0)

	falling := []game.PriceRecord{
		{Timestamp: now.Add(-30 * time.Second), Buy: 14, Sell: 10},
		{Timestamp: now.Add(-20 * time.Second), Buy: 13, Sell: 9},
		{Timestamp: now.Add(-10 * time.Second), Buy: 12, Sell: 8},
	}
	assert.Less(t, c.Momentum(falling, now), 0.0)
}

func TestMomentum_InsufficientSamples(t *testing.T) {
	c := testCalc(1)
	now := time.Now()

	assert.Zero(t, c.Momentum(nil, now))
	assert.Zero(t, c.Momentum([]game.PriceRecord{
		{Timestamp: now, Buy: 12, Sell: 8},
	}, now))
}

func TestMomentum_IgnoresStaleSamples(t *testing.T) {
	c := testCalc(1)
	now := time.Now()

	// Strong old trend, flat recent window: the old samples must not count.
	history := []game.PriceRecord{
		{Timestamp: now.Add(-time.Hour), Buy: 6, Sell: 2},
		{Timestamp: now.Add(-time.Hour + time.Second), Buy: 30, Sell: 26},
		{Timestamp: now.Add(-20 * time.Second), Buy: 12, Sell: 8},
		{Timestamp: now.Add(-10 * time.Second), Buy: 12, Sell: 8},
	}
	assert.Zero(t, c.Momentum(history, now))
}

func TestMomentum_Clamped(t *testing.T) {
	c := testCalc(1)
	now := time.Now()

	spike := []game.PriceRecord{
		{Timestamp: now.Add(-20 * time.Second), Buy: 12, Sell: 8},
		{Timestamp: now.Add(-10 * time.Second), Buy: 40, Sell: 30},
	}
	assert.Equal(t, 1.0, c.Momentum(spike, now))
}

func TestReversionPressure(t *testing.T) {
	c := testCalc(1)

	assert.Zero(t, c.ReversionPressure(10, 10))
	assert.Less(t, c.ReversionPressure(20, 10), 0.0)
	assert.Greater(t, c.ReversionPressure(6, 10), 0.0)

	// Saturation at the bound multiples.
	assert.GreaterOrEqual(t, c.ReversionPressure(100, 10), -1.0)
	assert.LessOrEqual(t, c.ReversionPressure(1, 10), 1.0)
}

func TestStep_HoldsInvariants(t *testing.T) {
	c := testCalc(42)
	now := time.Now()
	state := c.InitialState(10)
	lo, hi := c.Bounds(10)

	var history []game.PriceRecord
	for i := 0; i < 500; i++ {
		now = now.Add(time.Second)
		next, rec := c.Step(state, history, 0, now)
		if next == nil {
			continue
		}
		require.NotNil(t, rec)
		require.Greater(t, next.Buy, next.Sell)
		require.GreaterOrEqual(t, next.Sell, 1)
		require.LessOrEqual(t, next.Buy, hi)
		require.GreaterOrEqual(t, next.Sell, lo)
		state = next
		history = append(history, *rec)
	}
	require.NotEmpty(t, history, "500 ticks at probability 1.0 should move at least once")
}

func TestStep_ProbabilityGate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.FluctuationProb = 0
	c := NewCalculator(cfg, rand.New(rand.NewSource(1)))

	next, rec := c.Step(c.InitialState(10), nil, 0, time.Now())
	assert.Nil(t, next)
	assert.Nil(t, rec)
}

func TestStep_NilState(t *testing.T) {
	c := testCalc(1)

	next, rec := c.Step(nil, nil, 0, time.Now())
	assert.Nil(t, next)
	assert.Nil(t, rec)
}

func TestStep_EventBiasPushesDirection(t *testing.T) {
	now := time.Now()

	// A saturating positive bias forces every accepted change upward.
	c := testCalc(7)
	state := c.InitialState(100)
	ups := 0
	for i := 0; i < 200; i++ {
		now = now.Add(time.Second)
		next, _ := c.Step(state, nil, 5, now)
		if next == nil {
			continue
		}
		if next.Mid() > state.Mid() {
			ups++
		}
		state = next
	}
	assert.Greater(t, ups, 0)

	// With the same seed and a strong negative bias the walk trends down.
	c = testCalc(7)
	state = c.InitialState(100)
	for i := 0; i < 200; i++ {
		now = now.Add(time.Second)
		if next, _ := c.Step(state, nil, -5, now); next != nil {
			state = next
		}
	}
	assert.Less(t, state.Mid(), 100)
}

func TestRequote_ClampsToBounds(t *testing.T) {
	c := testCalc(1)

	next, ok := c.Requote(500, 10)
	require.True(t, ok)
	assert.LessOrEqual(t, next.Buy, 35)
	assert.Greater(t, next.Buy, next.Sell)

	next, ok = c.Requote(1, 10)
	require.True(t, ok)
	assert.GreaterOrEqual(t, next.Sell, 1)
	assert.Greater(t, next.Buy, next.Sell)
}

func TestTradeAdjustment(t *testing.T) {
	c := testCalc(1)

	// Half a lot: volume scales linearly, no depth bonus.
	assert.InDelta(t, 0.5, c.TradeAdjustment(10, 50), 1e-9)
	// One full lot picks up the first depth step.
	assert.InDelta(t, 1.25, c.TradeAdjustment(10, 100), 1e-9)
	// Depth saturates at 3x regardless of size.
	assert.InDelta(t, 3.0, c.TradeAdjustment(10, 10000), 1e-9)

	assert.Zero(t, c.TradeAdjustment(10, 0))
	assert.Zero(t, c.TradeAdjustment(0, 100))
}

func TestApplyTradeImpact(t *testing.T) {
	c := testCalc(1)
	now := time.Now()
	prices := map[game.Resource]*game.PriceState{
		game.ResourceFood:       c.InitialState(10),
		game.ResourceElectrical: c.InitialState(20),
	}

	changed := c.ApplyTradeImpact(prices, game.ResourceFood, 100, true, now)
	require.Contains(t, changed, game.ResourceFood)

	// Buying pushes the traded resource up.
	assert.Greater(t, prices[game.ResourceFood].Mid(), 10)
	assert.True(t, changed[game.ResourceFood].Trade)

	// The ripple of a one-lot trade rounds away on the other resource.
	assert.NotContains(t, changed, game.ResourceElectrical)
	assert.Equal(t, 20, prices[game.ResourceElectrical].Mid())
}

func TestApplyTradeImpact_SellPushesDown(t *testing.T) {
	c := testCalc(1)
	prices := map[game.Resource]*game.PriceState{
		game.ResourceFood: c.InitialState(10),
	}

	changed := c.ApplyTradeImpact(prices, game.ResourceFood, 100, false, time.Now())
	require.Contains(t, changed, game.ResourceFood)
	assert.Less(t, prices[game.ResourceFood].Mid(), 10)
}

func TestApplyTradeImpact_Interconnection(t *testing.T) {
	c := testCalc(1)
	now := time.Now()
	prices := map[game.Resource]*game.PriceState{
		game.ResourceFood:    c.InitialState(10),
		game.ResourceMedical: c.InitialState(25),
	}

	// A large buy ripples far enough to move the other market too.
	changed := c.ApplyTradeImpact(prices, game.ResourceFood, 1000, true, now)
	require.Contains(t, changed, game.ResourceFood)
	require.Contains(t, changed, game.ResourceMedical)
	assert.Greater(t, prices[game.ResourceMedical].Mid(), 25)
}

func TestApplyTradeImpact_UnknownResource(t *testing.T) {
	c := testCalc(1)
	prices := map[game.Resource]*game.PriceState{}
	assert.Nil(t, c.ApplyTradeImpact(prices, game.ResourceFood, 100, true, time.Now()))
}

func TestManualOverride(t *testing.T) {
	c := testCalc(1)

	next, rec, ok := c.ManualOverride(40, time.Now())
	require.True(t, ok)
	assert.Equal(t, 40, next.Baseline)
	assert.Equal(t, 48, next.Buy)
	assert.Equal(t, 32, next.Sell)
	assert.False(t, rec.Trade)

	_, _, ok = c.ManualOverride(0, time.Now())
	assert.False(t, ok)
}
