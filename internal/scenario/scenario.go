// Package scenario evaluates the historical-scenario automation rules: a
// session can opt into a rule set whose effects fire against elapsed
// unpaused time, so pausing the game never skips or bunches them.
package scenario

import (
	"fmt"
	"math"
	"math/rand"
	"sort"
	"time"

	"github.com/oakbridge-games/homestead/internal/game"
)

// RuleType distinguishes the four automation rule shapes.
type RuleType string

const (
	// PeriodicGrant credits currency on a fixed interval with a decaying
	// amount per firing.
	PeriodicGrant RuleType = "periodic_grant"

	// PeriodicPenalty removes a percentage of a resource on a fixed
	// interval.
	PeriodicPenalty RuleType = "periodic_penalty"

	// ThresholdPenalty fires when any team's holding crosses a threshold,
	// then cools down.
	ThresholdPenalty RuleType = "threshold_penalty"

	// RandomRaid strikes a random team with low per-tick probability.
	RandomRaid RuleType = "random_raid"
)

// Rule is one automation rule. Field use depends on Type.
type Rule struct {
	ID          string        `toml:"id"`
	Type        RuleType      `toml:"type"`
	Interval    time.Duration `toml:"interval"`
	Amount      int           `toml:"amount"`
	Decay       float64       `toml:"decay"`
	Resource    game.Resource `toml:"resource"`
	Percent     float64       `toml:"percent"`
	Threshold   int           `toml:"threshold"`
	Cooldown    time.Duration `toml:"cooldown"`
	Probability float64       `toml:"probability"`
}

// Scenario is a named rule set a session can select at creation.
type Scenario struct {
	ID    string `toml:"id"`
	Name  string `toml:"name"`
	Rules []Rule `toml:"rules"`
}

// Builtin returns the shipped scenarios.
func Builtin() map[string]Scenario {
	return map[string]Scenario{
		"drought-years": {
			ID:   "drought-years",
			Name: "The Drought Years",
			Rules: []Rule{
				{ID: "relief-fund", Type: PeriodicGrant, Interval: 5 * time.Minute, Amount: 60, Decay: 0.8},
				{ID: "crop-failure", Type: PeriodicPenalty, Interval: 4 * time.Minute, Resource: game.ResourceFood, Percent: 0.10},
				{ID: "hoarding-levy", Type: ThresholdPenalty, Resource: game.ResourceFood, Threshold: 200, Percent: 0.15, Cooldown: 6 * time.Minute},
				{ID: "bandit-raid", Type: RandomRaid, Probability: 0.02, Percent: 0.10},
			},
		},
		"railroad-boom": {
			ID:   "railroad-boom",
			Name: "Railroad Boom",
			Rules: []Rule{
				{ID: "investor-capital", Type: PeriodicGrant, Interval: 4 * time.Minute, Amount: 80, Decay: 0.7},
				{ID: "steel-quota", Type: PeriodicPenalty, Interval: 5 * time.Minute, Resource: game.ResourceRawMaterials, Percent: 0.12},
				{ID: "speculation-tax", Type: ThresholdPenalty, Resource: game.ResourceCurrency, Threshold: 400, Percent: 0.20, Cooldown: 8 * time.Minute},
				{ID: "train-robbery", Type: RandomRaid, Probability: 0.03, Percent: 0.12},
			},
		},
	}
}

// Effect describes one applied rule firing, for broadcast and logs.
type Effect struct {
	RuleID   string        `json:"rule_id"`
	TeamID   string        `json:"team_id,omitempty"`
	Resource game.Resource `json:"resource,omitempty"`
	Delta    int           `json:"delta"`
	Note     string        `json:"note,omitempty"`
}

// Evaluate runs every rule of sc against the session at the given elapsed
// active time, mutating teams and the per-rule firing state in place. All
// timing is in elapsed (unpaused) time; wall-clock never enters the math.
func Evaluate(s *game.Session, sc Scenario, elapsed time.Duration, rng *rand.Rand) []Effect {
	if !s.Active() {
		return nil
	}
	if s.Economy.Scenario == nil {
		s.Economy.Scenario = make(map[string]*game.RuleState)
	}

	var effects []Effect
	for _, rule := range sc.Rules {
		state := s.Economy.Scenario[rule.ID]
		if state == nil {
			state = &game.RuleState{}
			s.Economy.Scenario[rule.ID] = state
		}
		switch rule.Type {
		case PeriodicGrant:
			effects = append(effects, firePeriodicGrant(s, rule, state, elapsed)...)
		case PeriodicPenalty:
			effects = append(effects, firePeriodicPenalty(s, rule, state, elapsed)...)
		case ThresholdPenalty:
			effects = append(effects, fireThresholdPenalty(s, rule, state, elapsed)...)
		case RandomRaid:
			effects = append(effects, fireRandomRaid(s, rule, state, elapsed, rng)...)
		}
	}
	return effects
}

func teamsSorted(s *game.Session) []*game.Team {
	teams := make([]*game.Team, 0, len(s.Economy.Teams))
	for _, t := range s.Economy.Teams {
		teams = append(teams, t)
	}
	sort.Slice(teams, func(i, j int) bool { return teams[i].ID < teams[j].ID })
	return teams
}

func firePeriodicGrant(s *game.Session, rule Rule, state *game.RuleState, elapsed time.Duration) []Effect {
	if rule.Interval <= 0 {
		return nil
	}
	due := int(elapsed / rule.Interval)
	if state.FireCount >= due {
		return nil
	}
	// One firing per tick; a long gap catches up over subsequent ticks.
	amount := int(math.Round(float64(rule.Amount) * math.Pow(rule.Decay, float64(state.FireCount))))
	state.FireCount++
	state.LastFiredElapsed = elapsed
	if amount <= 0 {
		return nil
	}

	var effects []Effect
	for _, team := range teamsSorted(s) {
		team.AddResource(game.ResourceCurrency, amount)
		effects = append(effects, Effect{
			RuleID:   rule.ID,
			TeamID:   team.ID,
			Resource: game.ResourceCurrency,
			Delta:    amount,
		})
	}
	return effects
}

func firePeriodicPenalty(s *game.Session, rule Rule, state *game.RuleState, elapsed time.Duration) []Effect {
	if rule.Interval <= 0 {
		return nil
	}
	due := int(elapsed / rule.Interval)
	if state.FireCount >= due {
		return nil
	}
	state.FireCount++
	state.LastFiredElapsed = elapsed

	var effects []Effect
	for _, team := range teamsSorted(s) {
		lost := int(math.Round(float64(team.Resource(rule.Resource)) * rule.Percent))
		if lost == 0 {
			continue
		}
		team.AddResource(rule.Resource, -lost)
		effects = append(effects, Effect{
			RuleID:   rule.ID,
			TeamID:   team.ID,
			Resource: rule.Resource,
			Delta:    -lost,
		})
	}
	return effects
}

func fireThresholdPenalty(s *game.Session, rule Rule, state *game.RuleState, elapsed time.Duration) []Effect {
	if state.FireCount > 0 && elapsed-state.LastFiredElapsed < rule.Cooldown {
		return nil
	}
	var effects []Effect
	for _, team := range teamsSorted(s) {
		held := team.Resource(rule.Resource)
		if held < rule.Threshold {
			continue
		}
		lost := int(math.Round(float64(held) * rule.Percent))
		if lost == 0 {
			continue
		}
		team.AddResource(rule.Resource, -lost)
		effects = append(effects, Effect{
			RuleID:   rule.ID,
			TeamID:   team.ID,
			Resource: rule.Resource,
			Delta:    -lost,
			Note:     fmt.Sprintf("held %d, threshold %d", held, rule.Threshold),
		})
	}
	if len(effects) > 0 {
		state.FireCount++
		state.LastFiredElapsed = elapsed
	}
	return effects
}

func fireRandomRaid(s *game.Session, rule Rule, state *game.RuleState, elapsed time.Duration, rng *rand.Rand) []Effect {
	if rng == nil || rng.Float64() >= rule.Probability {
		return nil
	}
	teams := teamsSorted(s)
	if len(teams) == 0 {
		return nil
	}
	target := teams[rng.Intn(len(teams))]
	state.FireCount++
	state.LastFiredElapsed = elapsed

	var effects []Effect
	for _, res := range game.TradeableResources {
		lost := int(math.Round(float64(target.Resource(res)) * rule.Percent))
		if lost == 0 {
			continue
		}
		target.AddResource(res, -lost)
		effects = append(effects, Effect{
			RuleID:   rule.ID,
			TeamID:   target.ID,
			Resource: res,
			Delta:    -lost,
			Note:     "raid",
		})
	}
	return effects
}
