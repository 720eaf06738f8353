package scheduler

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/oakbridge-games/homestead/internal/broadcast"
	"github.com/oakbridge-games/homestead/internal/config"
	"github.com/oakbridge-games/homestead/internal/game"
	"github.com/oakbridge-games/homestead/internal/logger"
	"github.com/oakbridge-games/homestead/internal/session"
)

// taxTicker collects the periodic food tax and, on each collection pass,
// advances cycle-scoped event lifetimes in the same commit so a tax cycle
// and an event cycle can never observe each other half-applied.
type taxTicker struct {
	mgr *session.Manager
	cfg config.EconomyConfig
	now func() time.Time
}

// NewTaxLoop builds the tax collection loop.
func NewTaxLoop(mgr *session.Manager, econ config.EconomyConfig, sched config.SchedulerConfig) *Loop {
	t := &taxTicker{mgr: mgr, cfg: econ}
	l := newLoop("tax", sched.TaxInterval, sched.FailureThreshold, sched.MaxSessionAge, 1, mgr, t.tick)
	// Share the loop's clock so SetClock steers the ticker too.
	t.now = func() time.Time { return l.now() }
	return l
}

// taxOutcome is one team's result for a collection pass, gathered inside
// the mutation and broadcast only after the commit lands.
type taxOutcome struct {
	event   string
	payload map[string]any
}

func (t *taxTicker) tick(ctx context.Context, code string) error {
	now := t.now().UTC()
	var outcomes []taxOutcome
	var expired []*game.ActiveEvent

	_, err := t.mgr.Mutate(ctx, code, func(s *game.Session) error {
		// Reset on retry; the closure may replay after a commit conflict.
		outcomes = nil
		expired = nil
		if !s.Active() {
			return nil
		}

		collected := false
		for _, id := range sortedTimerIDs(s) {
			timer := s.Economy.TaxTimers[id]
			team, ok := s.Economy.Teams[id]
			if !ok {
				continue
			}

			if !timer.WarningSent && now.Before(timer.NextDue) &&
				!now.Before(timer.NextDue.Add(-t.cfg.TaxWarningWindow)) {
				timer.WarningSent = true
				outcomes = append(outcomes, taxOutcome{
					event: broadcast.TypeTaxWarning,
					payload: map[string]any{
						"team": id,
						"due":  timer.NextDue,
					},
				})
			}

			if now.Before(timer.NextDue) {
				continue
			}
			outcomes = append(outcomes, t.collect(s, team, timer))
			timer.Reschedule()
			collected = true
		}

		if collected {
			expired = t.mgr.Events().AdvanceCycle(s)
		}
		return nil
	})
	if err != nil {
		return err
	}

	for _, o := range outcomes {
		// Logged here, after the commit, so a conflict replay inside the
		// mutation cannot double-report a famine.
		if o.event == broadcast.TypeFamine {
			logger.LogGame("Famine penalty charged", code,
				slog.Any("team", o.payload["team"]),
				slog.Any("shortage", o.payload["shortage"]),
				slog.Any("penalty", o.payload["penalty"]))
		}
		t.mgr.Publish(code, broadcast.Event{Type: o.event, Payload: o.payload})
	}
	for _, ev := range expired {
		t.mgr.Publish(code, broadcast.Event{Type: broadcast.TypeEventExpired, Payload: ev.Name})
	}
	return nil
}

// collect settles one team's due tax. The amount is food; a shortage
// converts into a currency famine penalty, and a team that cannot pay
// even that is recorded unpaid with nothing confiscated.
func (t *taxTicker) collect(s *game.Session, team *game.Team, timer *game.TaxTimer) taxOutcome {
	amount := t.amountDue(s, team)
	food := team.Resource(game.ResourceFood)

	if food >= amount {
		team.SpendResource(game.ResourceFood, amount)
		s.Economy.Bank[game.ResourceFood] += amount
		timer.TaxesPaid++
		timer.ConsecutiveUnpaid = 0
		return taxOutcome{
			event: broadcast.TypeTaxCollected,
			payload: map[string]any{
				"team":   team.ID,
				"amount": amount,
			},
		}
	}

	shortage := amount - food
	penalty := int(float64(shortage*t.cfg.Baselines[game.ResourceFood]) * t.cfg.FamineMultiplier)
	if team.SpendResource(game.ResourceCurrency, penalty) {
		// Famine: whatever food the team held is confiscated with the
		// penalty, and the famine counts against the team.
		if food > 0 {
			team.SpendResource(game.ResourceFood, food)
			s.Economy.Bank[game.ResourceFood] += food
		}
		timer.Famines++
		timer.ConsecutiveUnpaid = 0
		return taxOutcome{
			event: broadcast.TypeFamine,
			payload: map[string]any{
				"team":     team.ID,
				"owed":     amount,
				"shortage": shortage,
				"penalty":  penalty,
			},
		}
	}

	// Can pay neither food nor penalty. Nothing is taken and the famine
	// count is unchanged; the miss is tracked separately.
	timer.ConsecutiveUnpaid++
	if t.cfg.FaminePolicy == "flag" && timer.ConsecutiveUnpaid >= t.cfg.FamineDegradedThreshold {
		if !s.Economy.Degraded {
			s.Economy.Degraded = true
			slog.Warn("Session flagged degraded after repeated unpaid taxes",
				slog.String("type", "sys"),
				slog.String("session", s.Code),
				slog.String("team", team.ID),
				slog.Int("consecutive_unpaid", timer.ConsecutiveUnpaid))
		}
	}
	return taxOutcome{
		event: broadcast.TypeTaxFailed,
		payload: map[string]any{
			"team":    team.ID,
			"owed":    amount,
			"penalty": penalty,
		},
	}
}

// amountDue is the food owed by one team this cycle: the tier base,
// floored up by a school, then scaled by any active blizzard.
func (t *taxTicker) amountDue(s *game.Session, team *game.Team) int {
	amount := t.cfg.TaxBase[team.Tier]
	if team.BuildingCount(game.BuildingSchool) > 0 {
		amount = int(float64(amount) * t.cfg.SchoolTaxMultiplier)
	}
	if mult := t.mgr.Events().FoodTaxMultiplier(s); mult != 1 {
		amount = int(float64(amount) * mult)
	}
	return amount
}

func sortedTimerIDs(s *game.Session) []string {
	ids := make([]string, 0, len(s.Economy.TaxTimers))
	for id := range s.Economy.TaxTimers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
