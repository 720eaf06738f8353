package game

import "time"

// PriceState is the bank's live quote for one resource. The baseline is the
// host-adjustable reference price; buy and sell always satisfy
// buy > sell >= 1 and both stay within the configured multiplier bounds of
// the baseline.
type PriceState struct {
	Baseline int `json:"baseline"`
	Buy      int `json:"buy"`
	Sell     int `json:"sell"`
}

// Mid returns the midpoint the fluctuation step operates on.
func (p *PriceState) Mid() int {
	return (p.Buy + p.Sell) / 2
}

// PriceRecord is one append-only price-history sample. History exists only
// to feed the momentum lookback; it is not an audit ledger.
type PriceRecord struct {
	Timestamp time.Time `json:"timestamp"`
	Buy       int       `json:"buy"`
	Sell      int       `json:"sell"`
	Baseline  int       `json:"baseline"`
	Trade     bool      `json:"trade"`
}

// Mid returns the record's midpoint price.
func (r PriceRecord) Mid() float64 {
	return float64(r.Buy+r.Sell) / 2
}
