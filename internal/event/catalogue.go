package event

import (
	"github.com/oakbridge-games/homestead/internal/game"
)

// BiasSpec is one event kind's contribution to the pricing engine's
// direction bias. Resource narrows the effect to a single good; empty
// means all resources move together. PerSeverity is signed: positive
// pushes prices up.
type BiasSpec struct {
	Resource    game.Resource `toml:"resource"`
	PerSeverity float64       `toml:"per_severity"`
}

// Config holds the event engine's tunables: difficulty scaling, base
// effect constants, and the per-event price-bias table.
type Config struct {
	DifficultyModifiers map[game.Difficulty]float64 `toml:"difficulty_modifiers"`

	// MitigationPerBuilding is the damage reduction each relevant
	// mitigation building contributes; five buildings fully negate.
	MitigationPerBuilding float64 `toml:"mitigation_per_building"`

	// PlagueCureCost is the medical goods owed per cure, before the
	// difficulty modifier.
	PlagueCureCost int `toml:"plague_cure_cost"`

	// PlagueProductionPenalty is the production multiplier applied to
	// infected teams.
	PlagueProductionPenalty float64 `toml:"plague_production_penalty"`

	// BreakthroughCost is the electrical goods owed to activate the
	// automation bonus, before the difficulty modifier.
	BreakthroughCost int `toml:"breakthrough_cost"`

	// RecessionRestaurantRebate is the per-cycle currency rebate per
	// restaurant while a recession is active, before the difficulty
	// modifier.
	RecessionRestaurantRebate int `toml:"recession_restaurant_rebate"`

	PriceBias map[game.EventKind]BiasSpec `toml:"price_bias"`
}

// DefaultConfig returns the shipped event balance.
func DefaultConfig() Config {
	return Config{
		DifficultyModifiers: map[game.Difficulty]float64{
			game.DifficultyEasy:   0.75,
			game.DifficultyMedium: 1.0,
			game.DifficultyHard:   1.5,
		},
		MitigationPerBuilding:     0.2,
		PlagueCureCost:            5,
		PlagueProductionPenalty:   0.5,
		BreakthroughCost:          30,
		RecessionRestaurantRebate: 10,
		PriceBias: map[game.EventKind]BiasSpec{
			game.EventEarthquake:   {PerSeverity: 0.05},
			game.EventFire:         {Resource: game.ResourceElectrical, PerSeverity: 0.08},
			game.EventDrought:      {Resource: game.ResourceFood, PerSeverity: 0.10},
			game.EventPlague:       {Resource: game.ResourceMedical, PerSeverity: 0.10},
			game.EventBlizzard:     {Resource: game.ResourceFood, PerSeverity: 0.08},
			game.EventTornado:      {PerSeverity: 0.04},
			game.EventRecession:    {PerSeverity: 0.06},
			game.EventBreakthrough: {Resource: game.ResourceElectrical, PerSeverity: -0.05},
		},
	}
}

// displayNames for broadcast payloads.
var displayNames = map[game.EventKind]string{
	game.EventEarthquake:   "Earthquake",
	game.EventFire:         "Fire",
	game.EventDrought:      "Drought",
	game.EventPlague:       "Plague",
	game.EventBlizzard:     "Blizzard",
	game.EventTornado:      "Tornado",
	game.EventRecession:    "Economic Recession",
	game.EventBreakthrough: "Automation Breakthrough",
}

// mitigationBuildings maps each kind to the building type that reduces its
// damage. Kinds absent here cannot be mitigated (the restaurant's recession
// rebate is a currency credit, not damage reduction).
var mitigationBuildings = map[game.EventKind]game.Building{
	game.EventEarthquake: game.BuildingInfrastructure,
	game.EventDrought:    game.BuildingInfrastructure,
	game.EventTornado:    game.BuildingInfrastructure,
	game.EventFire:       game.BuildingHospital,
	game.EventPlague:     game.BuildingHospital,
}
