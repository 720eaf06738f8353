package pricing

import (
	"math"
	"time"

	"github.com/oakbridge-games/homestead/internal/game"
)

// TradeAdjustment computes the unsigned midpoint move a bank trade of qty
// units causes: baseline * impact * min(qty/100, 1) * depth, where depth
// grows with each full hundred units and caps at 3x.
func (c *Calculator) TradeAdjustment(baseline, qty int) float64 {
	if baseline <= 0 || qty <= 0 {
		return 0
	}
	volume := math.Min(float64(qty)/100, 1)
	depth := math.Min(1+math.Floor(float64(qty)/100)*c.cfg.DepthFactor, 3.0)
	return float64(baseline) * c.cfg.TradeImpactPct * volume * depth
}

// ApplyTradeImpact adjusts the traded resource's price in the direction of
// the trade (a team buying pushes the price up) and echoes a fraction of
// the adjustment into every other resource. Each resource is independently
// clamped and respread; quotes that would invert are left untouched. The
// returned records, keyed by resource, cover exactly the prices that
// changed.
func (c *Calculator) ApplyTradeImpact(prices map[game.Resource]*game.PriceState, traded game.Resource, qty int, teamBuys bool, now time.Time) map[game.Resource]*game.PriceRecord {
	state, ok := prices[traded]
	if !ok || state == nil {
		return nil
	}

	adjustment := c.TradeAdjustment(state.Baseline, qty)
	if !teamBuys {
		adjustment = -adjustment
	}
	if adjustment == 0 {
		return nil
	}

	changed := make(map[game.Resource]*game.PriceRecord)
	if rec := c.shiftMid(prices, traded, adjustment, now); rec != nil {
		changed[traded] = rec
	}

	// Market interconnection: other resources drift the same direction.
	ripple := adjustment * c.cfg.InterconnectPct
	for res, other := range prices {
		if res == traded || other == nil {
			continue
		}
		if rec := c.shiftMid(prices, res, ripple, now); rec != nil {
			changed[res] = rec
		}
	}

	if len(changed) == 0 {
		return nil
	}
	return changed
}

func (c *Calculator) shiftMid(prices map[game.Resource]*game.PriceState, res game.Resource, adjustment float64, now time.Time) *game.PriceRecord {
	state := prices[res]
	newMid := int(math.Round(float64(state.Mid()) + adjustment))
	next, ok := c.Requote(newMid, state.Baseline)
	if !ok || (next.Buy == state.Buy && next.Sell == state.Sell) {
		return nil
	}
	prices[res] = next
	return &game.PriceRecord{
		Timestamp: now,
		Buy:       next.Buy,
		Sell:      next.Sell,
		Baseline:  next.Baseline,
		Trade:     true,
	}
}

// ManualOverride replaces a resource's baseline outright and requotes
// around it. Host action; logged as a non-trade history record.
func (c *Calculator) ManualOverride(newBaseline int, now time.Time) (*game.PriceState, *game.PriceRecord, bool) {
	if newBaseline <= 0 {
		return nil, nil, false
	}
	next := c.InitialState(newBaseline)
	rec := &game.PriceRecord{
		Timestamp: now,
		Buy:       next.Buy,
		Sell:      next.Sell,
		Baseline:  next.Baseline,
	}
	return next, rec, true
}
