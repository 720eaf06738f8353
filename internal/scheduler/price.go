package scheduler

import (
	"context"
	"sort"
	"time"

	"github.com/oakbridge-games/homestead/internal/config"
	"github.com/oakbridge-games/homestead/internal/game"
	"github.com/oakbridge-games/homestead/internal/session"
)

// priceTicker runs one fluctuation step per resource per interval. The
// random walk itself lives in the pricing calculator; the ticker only
// feeds it the momentum window and the active events' bias, then persists
// and broadcasts whatever actually moved.
type priceTicker struct {
	mgr *session.Manager
	now func() time.Time
}

// NewPriceLoop builds the price fluctuation loop. It is the only loop
// that fans out across sessions, bounded by MaxConcurrentSessions.
func NewPriceLoop(mgr *session.Manager, sched config.SchedulerConfig) *Loop {
	p := &priceTicker{mgr: mgr}
	l := newLoop("price", sched.PriceInterval, sched.FailureThreshold, sched.MaxSessionAge,
		sched.MaxConcurrentSessions, mgr, p.tick)
	p.now = func() time.Time { return l.now() }
	return l
}

func (p *priceTicker) tick(ctx context.Context, code string) error {
	now := p.now().UTC()
	lookback := p.mgr.Pricing().Config().Lookback
	var changed map[game.Resource]*game.PriceRecord

	_, err := p.mgr.Mutate(ctx, code, func(s *game.Session) error {
		changed = make(map[game.Resource]*game.PriceRecord)
		if !s.Active() {
			return nil
		}

		for _, res := range sortedResources(s) {
			state := s.Economy.Prices[res]
			window, herr := p.mgr.History().Window(ctx, code, res, now.Add(-lookback))
			if herr != nil {
				return herr
			}
			bias := p.mgr.Events().PriceBias(s, res)
			next, rec := p.mgr.Pricing().Step(state, window, bias, now)
			if next == nil {
				continue
			}
			s.Economy.Prices[res] = next
			changed[res] = rec
		}
		return nil
	})
	if err != nil {
		return err
	}

	p.mgr.RecordPriceChanges(ctx, code, changed)
	return nil
}

func sortedResources(s *game.Session) []game.Resource {
	out := make([]game.Resource, 0, len(s.Economy.Prices))
	for res := range s.Economy.Prices {
		out = append(out, res)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
