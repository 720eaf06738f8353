package scheduler

import (
	"context"
	"math/rand"
	"time"

	"github.com/oakbridge-games/homestead/internal/broadcast"
	"github.com/oakbridge-games/homestead/internal/config"
	"github.com/oakbridge-games/homestead/internal/game"
	"github.com/oakbridge-games/homestead/internal/scenario"
	"github.com/oakbridge-games/homestead/internal/session"
)

// scenarioTicker evaluates a session's selected scenario rules against
// elapsed active time. Sessions without a scenario are untouched.
type scenarioTicker struct {
	mgr *session.Manager
	rng *rand.Rand
	now func() time.Time
}

// NewScenarioLoop builds the scenario automation loop.
func NewScenarioLoop(mgr *session.Manager, sched config.SchedulerConfig, rng *rand.Rand) *Loop {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	sc := &scenarioTicker{mgr: mgr, rng: rng}
	l := newLoop("scenario", sched.ScenarioInterval, sched.FailureThreshold, sched.MaxSessionAge, 1, mgr, sc.tick)
	sc.now = func() time.Time { return l.now() }
	return l
}

func (t *scenarioTicker) tick(ctx context.Context, code string) error {
	now := t.now().UTC()
	var effects []scenario.Effect

	_, err := t.mgr.Mutate(ctx, code, func(s *game.Session) error {
		effects = nil
		if !s.Active() || s.ScenarioID == "" {
			return nil
		}
		sc, ok := t.mgr.Scenario(s.ScenarioID)
		if !ok {
			return nil
		}
		effects = scenario.Evaluate(s, sc, s.ElapsedActive(now), t.rng)
		return nil
	})
	if err != nil {
		return err
	}

	if len(effects) > 0 {
		t.mgr.Publish(code, broadcast.Event{Type: broadcast.TypeScenarioEffect, Payload: effects})
	}
	return nil
}
