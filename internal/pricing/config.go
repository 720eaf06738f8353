package pricing

import "time"

// Config holds every tunable of the pricing engine. Defaults mirror the
// shipped game balance; hosts override them through the TOML config.
type Config struct {
	// SpreadPct sets the half-gap between buy and sell as a fraction of the
	// baseline price. The spread never drops below one unit.
	SpreadPct float64 `toml:"spread_pct"`

	// MinMult and MaxMult bound buy/sell within
	// [baseline*MinMult, baseline*MaxMult].
	MinMult float64 `toml:"min_mult"`
	MaxMult float64 `toml:"max_mult"`

	// MomentumWeight blends momentum against mean reversion when deriving
	// the direction bias: W*momentum + (1-W)*reversion.
	MomentumWeight float64 `toml:"momentum_weight"`

	// MaxChangePct is the magnitude bound on a single fluctuation step.
	MaxChangePct float64 `toml:"max_change_pct"`

	// RefChangePct normalizes the momentum signal; an average move of this
	// size over the lookback saturates momentum at +/-1.
	RefChangePct float64 `toml:"ref_change_pct"`

	// FluctuationProb is the per-tick probability that a step is attempted.
	// Kept as a first-class tunable even though the default considers every
	// tick a candidate.
	FluctuationProb float64 `toml:"fluctuation_prob"`

	// TradeImpactPct scales the synchronous price adjustment on bank trades.
	TradeImpactPct float64 `toml:"trade_impact_pct"`

	// DepthFactor grows trade impact with order size; the resulting depth
	// multiplier is capped at 3x.
	DepthFactor float64 `toml:"depth_factor"`

	// InterconnectPct is the fraction of a trade adjustment echoed into
	// every other resource.
	InterconnectPct float64 `toml:"interconnect_pct"`

	// Lookback bounds the momentum window by age and sample count.
	Lookback        time.Duration `toml:"lookback"`
	LookbackSamples int           `toml:"lookback_samples"`
}

// DefaultConfig returns the shipped pricing balance.
func DefaultConfig() Config {
	return Config{
		SpreadPct:       0.20,
		MinMult:         0.5,
		MaxMult:         3.5,
		MomentumWeight:  0.6,
		MaxChangePct:    0.02,
		RefChangePct:    0.05,
		FluctuationProb: 1.0,
		TradeImpactPct:  0.10,
		DepthFactor:     0.25,
		InterconnectPct: 0.20,
		Lookback:        2 * time.Minute,
		LookbackSamples: 20,
	}
}
