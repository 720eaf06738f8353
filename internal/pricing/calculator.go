package pricing

import (
	"math"
	"math/rand"
	"time"

	"github.com/oakbridge-games/homestead/internal/game"
)

// Calculator owns the pure price math. It keeps no per-session state;
// every call receives the price slice it operates on and returns the
// result, so foreground and background callers can share one instance.
type Calculator struct {
	cfg Config
	rng *rand.Rand
}

// NewCalculator creates a calculator with the given configuration and
// randomness source. Tests pass a seeded source for determinism.
func NewCalculator(cfg Config, rng *rand.Rand) *Calculator {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Calculator{cfg: cfg, rng: rng}
}

// Config returns the calculator's tuning.
func (c *Calculator) Config() Config {
	return c.cfg
}

// Spread returns the half-gap applied around a midpoint, derived from the
// baseline. Never below one unit, so buy > sell holds at any baseline.
func (c *Calculator) Spread(baseline int) int {
	s := int(math.Round(float64(baseline) * c.cfg.SpreadPct))
	if s < 1 {
		s = 1
	}
	return s
}

// InitialState quotes a fresh price state around the baseline.
func (c *Calculator) InitialState(baseline int) *game.PriceState {
	s := c.Spread(baseline)
	sell := baseline - s
	if sell < 1 {
		sell = 1
	}
	return &game.PriceState{Baseline: baseline, Buy: baseline + s, Sell: sell}
}

// Bounds returns the inclusive [min, max] price range for a baseline.
func (c *Calculator) Bounds(baseline int) (int, int) {
	lo := int(math.Round(float64(baseline) * c.cfg.MinMult))
	if lo < 1 {
		lo = 1
	}
	hi := int(math.Round(float64(baseline) * c.cfg.MaxMult))
	if hi <= lo {
		hi = lo + 1
	}
	return lo, hi
}

// Momentum derives the short-window trend signal from history: the average
// pairwise percentage change of the midpoint over the lookback, normalized
// by the reference change magnitude and clamped to [-1, 1]. Fewer than two
// usable samples yield zero.
func (c *Calculator) Momentum(history []game.PriceRecord, now time.Time) float64 {
	cutoff := now.Add(-c.cfg.Lookback)
	window := make([]game.PriceRecord, 0, len(history))
	for _, rec := range history {
		if rec.Timestamp.Before(cutoff) {
			continue
		}
		window = append(window, rec)
	}
	if n := c.cfg.LookbackSamples; n > 0 && len(window) > n {
		window = window[len(window)-n:]
	}
	if len(window) < 2 {
		return 0
	}

	var sum float64
	var count int
	for i := 1; i < len(window); i++ {
		prev := window[i-1].Mid()
		if prev <= 0 {
			continue
		}
		sum += (window[i].Mid() - prev) / prev
		count++
	}
	if count == 0 {
		return 0
	}
	return clamp(sum/float64(count)/c.cfg.RefChangePct, -1, 1)
}

// ReversionPressure pulls a deviated midpoint back toward baseline:
// -((mid-baseline)/baseline) normalized by the maximum allowed deviation,
// clamped to [-1, 1]. Zero at baseline.
func (c *Calculator) ReversionPressure(mid, baseline int) float64 {
	if baseline <= 0 {
		return 0
	}
	maxDeviation := math.Max(c.cfg.MaxMult-1, 1-c.cfg.MinMult)
	if maxDeviation <= 0 {
		return 0
	}
	deviation := float64(mid-baseline) / float64(baseline)
	return clamp(-deviation/maxDeviation, -1, 1)
}

// Step runs one fluctuation candidate against state. It returns the new
// state and a history record when a change was accepted, or (nil, nil)
// when the tick passed (probability miss, no effective movement, or a step
// discarded because the bounds would have collapsed the spread).
func (c *Calculator) Step(state *game.PriceState, history []game.PriceRecord, eventBias float64, now time.Time) (*game.PriceState, *game.PriceRecord) {
	if state == nil || state.Baseline <= 0 {
		return nil, nil
	}
	if c.rng.Float64() >= c.cfg.FluctuationProb {
		return nil, nil
	}

	momentum := c.Momentum(history, now)
	reversion := c.ReversionPressure(state.Mid(), state.Baseline)
	w := c.cfg.MomentumWeight
	directionBias := w*momentum + (1-w)*reversion + eventBias

	change := (c.rng.Float64()*2 - 1) * c.cfg.MaxChangePct
	if directionBias != 0 {
		// Bias the sign, not the magnitude, toward the direction signal.
		p := 0.5 + math.Min(math.Abs(directionBias), 1)*0.5
		if c.rng.Float64() < p {
			change = math.Copysign(change, directionBias)
		}
	}

	// Integer prices swallow sub-unit percentage moves at small baselines,
	// so an accepted step always moves the midpoint at least one unit.
	delta := int(math.Round(float64(state.Mid()) * change))
	if delta == 0 && change != 0 {
		delta = 1
		if change < 0 {
			delta = -1
		}
	}
	newMid := state.Mid() + delta
	next, ok := c.Requote(newMid, state.Baseline)
	if !ok || (next.Buy == state.Buy && next.Sell == state.Sell) {
		return nil, nil
	}

	rec := &game.PriceRecord{
		Timestamp: now,
		Buy:       next.Buy,
		Sell:      next.Sell,
		Baseline:  next.Baseline,
	}
	return next, rec
}

// Requote clamps a midpoint into the baseline bounds and re-applies the
// spread. If clamping collapses the spread, it is recomputed from the
// clamped midpoint; a quote that still cannot satisfy buy > sell >= 1 is
// rejected rather than persisted.
func (c *Calculator) Requote(mid, baseline int) (*game.PriceState, bool) {
	lo, hi := c.Bounds(baseline)
	mid = clampInt(mid, lo, hi)

	buy, sell := c.applySpread(mid, c.Spread(baseline), lo, hi)
	if buy <= sell {
		// Spread collapsed against the bounds; derive it from the clamped
		// midpoint instead of the baseline.
		fallback := int(math.Round(float64(mid) * c.cfg.SpreadPct))
		if fallback < 1 {
			fallback = 1
		}
		buy, sell = c.applySpread(mid, fallback, lo, hi)
	}
	if buy <= sell || sell < 1 {
		return nil, false
	}
	return &game.PriceState{Baseline: baseline, Buy: buy, Sell: sell}, true
}

func (c *Calculator) applySpread(mid, spread, lo, hi int) (int, int) {
	buy := mid + spread
	sell := mid - spread
	if buy > hi {
		buy = hi
	}
	if sell < lo {
		sell = lo
	}
	if sell < 1 {
		sell = 1
	}
	return buy, sell
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
