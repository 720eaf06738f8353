package scenario

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oakbridge-games/homestead/internal/game"
)

func testSession(teams ...*game.Team) *game.Session {
	s := &game.Session{
		Code:    "test",
		Status:  game.StatusInProgress,
		Economy: game.NewEconomyState(),
	}
	for _, t := range teams {
		s.Economy.Teams[t.ID] = t
	}
	return s
}

func testTeam(id string, resources map[game.Resource]int) *game.Team {
	t := game.NewTeam(id, id)
	for res, qty := range resources {
		t.Resources[res] = qty
	}
	return t
}

func TestPeriodicGrant_DecaysPerFiring(t *testing.T) {
	s := testSession(testTeam("alpha", nil))
	sc := Scenario{ID: "x", Rules: []Rule{
		{ID: "grant", Type: PeriodicGrant, Interval: 5 * time.Minute, Amount: 100, Decay: 0.5},
	}}

	effects := Evaluate(s, sc, 5*time.Minute, nil)
	require.Len(t, effects, 1)
	assert.Equal(t, 100, effects[0].Delta)

	effects = Evaluate(s, sc, 10*time.Minute, nil)
	require.Len(t, effects, 1)
	assert.Equal(t, 50, effects[0].Delta)

	team := s.Economy.Teams["alpha"]
	assert.Equal(t, 150, team.Resources[game.ResourceCurrency])

	// No interval elapsed, nothing more to pay.
	effects = Evaluate(s, sc, 10*time.Minute, nil)
	assert.Empty(t, effects)
}

func TestPeriodicGrant_CatchesUpOnePerTick(t *testing.T) {
	s := testSession(testTeam("alpha", nil))
	sc := Scenario{ID: "x", Rules: []Rule{
		{ID: "grant", Type: PeriodicGrant, Interval: 5 * time.Minute, Amount: 100, Decay: 0.5},
	}}

	// Three intervals passed in one gap; each tick settles one firing.
	for _, want := range []int{100, 50, 25} {
		effects := Evaluate(s, sc, 16*time.Minute, nil)
		require.Len(t, effects, 1)
		assert.Equal(t, want, effects[0].Delta)
	}
	effects := Evaluate(s, sc, 16*time.Minute, nil)
	assert.Empty(t, effects)
}

func TestPeriodicGrant_PaysEveryTeam(t *testing.T) {
	s := testSession(testTeam("alpha", nil), testTeam("beta", nil))
	sc := Scenario{ID: "x", Rules: []Rule{
		{ID: "grant", Type: PeriodicGrant, Interval: time.Minute, Amount: 40, Decay: 1.0},
	}}

	effects := Evaluate(s, sc, time.Minute, nil)
	require.Len(t, effects, 2)
	assert.Equal(t, 40, s.Economy.Teams["alpha"].Resources[game.ResourceCurrency])
	assert.Equal(t, 40, s.Economy.Teams["beta"].Resources[game.ResourceCurrency])
}

func TestPeriodicPenalty(t *testing.T) {
	s := testSession(testTeam("alpha", map[game.Resource]int{game.ResourceFood: 50}))
	sc := Scenario{ID: "x", Rules: []Rule{
		{ID: "penalty", Type: PeriodicPenalty, Interval: 4 * time.Minute, Resource: game.ResourceFood, Percent: 0.10},
	}}

	effects := Evaluate(s, sc, 4*time.Minute, nil)
	require.Len(t, effects, 1)
	assert.Equal(t, -5, effects[0].Delta)
	assert.Equal(t, 45, s.Economy.Teams["alpha"].Resources[game.ResourceFood])

	// A team with nothing to lose produces no effect.
	s2 := testSession(testTeam("broke", nil))
	effects = Evaluate(s2, sc, 4*time.Minute, nil)
	assert.Empty(t, effects)
}

func TestThresholdPenalty(t *testing.T) {
	rich := testTeam("rich", map[game.Resource]int{game.ResourceFood: 250})
	poor := testTeam("poor", map[game.Resource]int{game.ResourceFood: 100})
	s := testSession(rich, poor)
	sc := Scenario{ID: "x", Rules: []Rule{
		{ID: "levy", Type: ThresholdPenalty, Resource: game.ResourceFood, Threshold: 200, Percent: 0.15, Cooldown: 6 * time.Minute},
	}}

	effects := Evaluate(s, sc, time.Minute, nil)
	require.Len(t, effects, 1)
	assert.Equal(t, "rich", effects[0].TeamID)
	assert.Equal(t, -38, effects[0].Delta)
	assert.Equal(t, 212, rich.Resources[game.ResourceFood])
	assert.Equal(t, 100, poor.Resources[game.ResourceFood])

	// Still above threshold but inside the cooldown.
	effects = Evaluate(s, sc, 4*time.Minute, nil)
	assert.Empty(t, effects)

	// Cooldown over, still hoarding, fires again.
	effects = Evaluate(s, sc, 7*time.Minute, nil)
	require.Len(t, effects, 1)
	assert.Equal(t, -32, effects[0].Delta)
}

func TestThresholdPenalty_NeverCrossed(t *testing.T) {
	s := testSession(testTeam("alpha", map[game.Resource]int{game.ResourceFood: 100}))
	sc := Scenario{ID: "x", Rules: []Rule{
		{ID: "levy", Type: ThresholdPenalty, Resource: game.ResourceFood, Threshold: 200, Percent: 0.15, Cooldown: time.Minute},
	}}

	for elapsed := time.Minute; elapsed <= 10*time.Minute; elapsed += time.Minute {
		assert.Empty(t, Evaluate(s, sc, elapsed, nil))
	}
}

func TestRandomRaid(t *testing.T) {
	team := testTeam("alpha", map[game.Resource]int{
		game.ResourceFood:     100,
		game.ResourceCurrency: 200,
	})
	s := testSession(team)
	sc := Scenario{ID: "x", Rules: []Rule{
		{ID: "raid", Type: RandomRaid, Probability: 1.0, Percent: 0.10},
	}}

	effects := Evaluate(s, sc, time.Minute, rand.New(rand.NewSource(1)))
	require.NotEmpty(t, effects)
	assert.Equal(t, 90, team.Resources[game.ResourceFood])
	// Currency is the settlement medium; raids only take goods.
	assert.Equal(t, 200, team.Resources[game.ResourceCurrency])
	for _, e := range effects {
		assert.Equal(t, "raid", e.Note)
		assert.Equal(t, "alpha", e.TeamID)
	}
}

func TestRandomRaid_ProbabilityGate(t *testing.T) {
	s := testSession(testTeam("alpha", map[game.Resource]int{game.ResourceFood: 100}))
	sc := Scenario{ID: "x", Rules: []Rule{
		{ID: "raid", Type: RandomRaid, Probability: 0, Percent: 0.10},
	}}

	effects := Evaluate(s, sc, time.Minute, rand.New(rand.NewSource(1)))
	assert.Empty(t, effects)
	assert.Equal(t, 100, s.Economy.Teams["alpha"].Resources[game.ResourceFood])
}

func TestEvaluate_InactiveSession(t *testing.T) {
	s := testSession(testTeam("alpha", nil))
	s.Status = game.StatusPaused
	sc := Builtin()["drought-years"]

	assert.Nil(t, Evaluate(s, sc, 10*time.Minute, rand.New(rand.NewSource(1))))
}

func TestBuiltinScenariosAreWellFormed(t *testing.T) {
	for id, sc := range Builtin() {
		assert.Equal(t, id, sc.ID)
		assert.NotEmpty(t, sc.Name)
		assert.NotEmpty(t, sc.Rules, id)
		seen := map[string]bool{}
		for _, rule := range sc.Rules {
			assert.NotEmpty(t, rule.ID)
			assert.False(t, seen[rule.ID], "duplicate rule id %s", rule.ID)
			seen[rule.ID] = true
		}
	}
}
