package config

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/oakbridge-games/homestead/internal/event"
	"github.com/oakbridge-games/homestead/internal/game"
	"github.com/oakbridge-games/homestead/internal/pricing"
	"github.com/oakbridge-games/homestead/internal/production"
	"github.com/oakbridge-games/homestead/internal/store"
)

// Load reads a TOML config file over the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config: %w", err)
	}
	defer file.Close()
	if err = toml.NewDecoder(file).Decode(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type Config struct {
	Log       LogConfig       `toml:"log"`
	Server    ServerConfig    `toml:"server"`
	DB        store.DBConfig  `toml:"db"`
	Store     StoreConfig     `toml:"store"`
	Economy   EconomyConfig   `toml:"economy"`
	Scheduler SchedulerConfig `toml:"scheduler"`
}

type LogConfig struct {
	Level     slog.Level `toml:"level"`
	AddSource bool       `toml:"add_source"`
}

type ServerConfig struct {
	Addr string `toml:"addr"`
}

// StoreConfig selects the persistence backend.
type StoreConfig struct {
	// Backend is "memory" or "postgres".
	Backend string `toml:"backend"`

	// HistorySize caps the in-memory price series per resource.
	HistorySize int `toml:"history_size"`
}

// EconomyConfig is the game-balance surface: engine tunables plus the
// session bootstrap tables.
type EconomyConfig struct {
	Pricing    pricing.Config     `toml:"pricing"`
	Events     event.Config       `toml:"events"`
	Production production.Catalog `toml:"production"`

	// Baselines seed the bank price table at session start.
	Baselines map[game.Resource]int `toml:"baselines"`

	// BankInventory seeds the bank's stock.
	BankInventory map[game.Resource]int `toml:"bank_inventory"`

	// StartingResources seed every team.
	StartingResources map[game.Resource]int `toml:"starting_resources"`

	// BuildingCosts are currency prices before any recession multiplier.
	BuildingCosts map[game.Building]int `toml:"building_costs"`

	// TaxBase is the food owed per cycle by development tier.
	TaxBase map[game.Tier]int `toml:"tax_base"`

	// SchoolTaxMultiplier inflates tax for teams that built a school.
	SchoolTaxMultiplier float64 `toml:"school_tax_multiplier"`

	// FamineMultiplier scales the currency penalty on a food shortage.
	FamineMultiplier float64 `toml:"famine_multiplier"`

	// TaxWarningWindow is how long before the deadline the warning fires.
	TaxWarningWindow time.Duration `toml:"tax_warning_window"`

	// FaminePolicy is "ignore" or "flag": whether repeated unpayable taxes
	// mark the session degraded. There is deliberately no mechanism that
	// ends a team over it.
	FaminePolicy string `toml:"famine_policy"`

	// FamineDegradedThreshold is the consecutive-unpaid count that flags
	// the session when FaminePolicy is "flag".
	FamineDegradedThreshold int `toml:"famine_degraded_threshold"`
}

// SchedulerConfig drives the three background loops.
type SchedulerConfig struct {
	TaxInterval      time.Duration `toml:"tax_interval"`
	PriceInterval    time.Duration `toml:"price_interval"`
	ScenarioInterval time.Duration `toml:"scenario_interval"`

	// FailureThreshold is the consecutive-failure budget per session before
	// a loop skips it.
	FailureThreshold int `toml:"failure_threshold"`

	// MaxSessionAge marks sessions presumed abandoned.
	MaxSessionAge time.Duration `toml:"max_session_age"`

	// MaxConcurrentSessions bounds the pricing loop's fan-out.
	MaxConcurrentSessions int `toml:"max_concurrent_sessions"`
}

// Default returns the shipped configuration.
func Default() Config {
	return Config{
		Log:    LogConfig{Level: slog.LevelInfo},
		Server: ServerConfig{Addr: ":8080"},
		Store:  StoreConfig{Backend: "memory", HistorySize: 256},
		Economy: EconomyConfig{
			Pricing:    pricing.DefaultConfig(),
			Events:     event.DefaultConfig(),
			Production: production.DefaultCatalog(),
			Baselines: map[game.Resource]int{
				game.ResourceFood:         10,
				game.ResourceRawMaterials: 12,
				game.ResourceElectrical:   20,
				game.ResourceMedical:      25,
			},
			BankInventory: map[game.Resource]int{
				game.ResourceFood:         500,
				game.ResourceRawMaterials: 400,
				game.ResourceElectrical:   250,
				game.ResourceMedical:      200,
			},
			StartingResources: map[game.Resource]int{
				game.ResourceFood:         50,
				game.ResourceRawMaterials: 30,
				game.ResourceElectrical:   10,
				game.ResourceMedical:      10,
				game.ResourceCurrency:     100,
			},
			BuildingCosts: map[game.Building]int{
				game.BuildingFarm:              60,
				game.BuildingMine:              80,
				game.BuildingElectricalFactory: 120,
				game.BuildingMedicalFactory:    140,
				game.BuildingSchool:            100,
				game.BuildingHospital:          150,
				game.BuildingRestaurant:        90,
				game.BuildingInfrastructure:    110,
			},
			TaxBase: map[game.Tier]int{
				game.TierSettlement: 10,
				game.TierTown:       12,
				game.TierDeveloped:  15,
			},
			SchoolTaxMultiplier:     1.5,
			FamineMultiplier:        2.0,
			TaxWarningWindow:        3 * time.Minute,
			FaminePolicy:            "ignore",
			FamineDegradedThreshold: 3,
		},
		Scheduler: SchedulerConfig{
			TaxInterval:           30 * time.Second,
			PriceInterval:         time.Second,
			ScenarioInterval:      30 * time.Second,
			FailureThreshold:      5,
			MaxSessionAge:         12 * time.Hour,
			MaxConcurrentSessions: 8,
		},
	}
}

// taxIntervals is the per-team tax cadence by difficulty and session
// length bucket. Shorter games and harder difficulties collect faster.
var taxIntervals = map[game.Difficulty][3]time.Duration{
	game.DifficultyEasy:   {6 * time.Minute, 8 * time.Minute, 10 * time.Minute},
	game.DifficultyMedium: {5 * time.Minute, 6 * time.Minute, 8 * time.Minute},
	game.DifficultyHard:   {3 * time.Minute, 4 * time.Minute, 6 * time.Minute},
}

// TaxInterval returns the per-team tax cadence for a session shape.
func TaxInterval(d game.Difficulty, duration time.Duration) time.Duration {
	buckets, ok := taxIntervals[d]
	if !ok {
		buckets = taxIntervals[game.DifficultyMedium]
	}
	switch {
	case duration <= time.Hour:
		return buckets[0]
	case duration <= 2*time.Hour:
		return buckets[1]
	default:
		return buckets[2]
	}
}
