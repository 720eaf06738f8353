// Package production is the boundary to the physical-challenge subsystem:
// it maps buildings to the resources they grant on challenge completion
// and gates duplicate in-flight production requests. The challenge
// mechanics themselves live outside the core.
package production

import (
	"sync"

	"github.com/oakbridge-games/homestead/internal/game"
)

// Grant is what one building of a type yields per completed challenge.
type Grant struct {
	Resource          game.Resource `toml:"resource"`
	AmountPerBuilding int           `toml:"amount_per_building"`
}

// Catalog maps production buildings to their grants.
type Catalog map[game.Building]Grant

// DefaultCatalog returns the shipped production table.
func DefaultCatalog() Catalog {
	return Catalog{
		game.BuildingFarm:              {Resource: game.ResourceFood, AmountPerBuilding: 10},
		game.BuildingMine:              {Resource: game.ResourceRawMaterials, AmountPerBuilding: 8},
		game.BuildingElectricalFactory: {Resource: game.ResourceElectrical, AmountPerBuilding: 6},
		game.BuildingMedicalFactory:    {Resource: game.ResourceMedical, AmountPerBuilding: 6},
	}
}

// Grant returns the yield for a building type, if it produces anything.
func (c Catalog) Grant(b game.Building) (Grant, bool) {
	g, ok := c[b]
	return g, ok
}

// LockScope controls how duplicate in-flight production requests are
// gated: a team with a school locks per player, otherwise the whole team
// shares one lock.
type LockScope string

const (
	LockPerPlayer LockScope = "player"
	LockPerTeam   LockScope = "team"
)

// ScopeFor returns the lock scope a team has earned.
func ScopeFor(team *game.Team) LockScope {
	if team.BuildingCount(game.BuildingSchool) > 0 {
		return LockPerPlayer
	}
	return LockPerTeam
}

// Gate tracks in-flight production requests so the same team (or player,
// with a school) cannot stack duplicate challenges for one building type.
type Gate struct {
	mu       sync.Mutex
	inFlight map[string]struct{}
}

// NewGate creates an empty gate.
func NewGate() *Gate {
	return &Gate{inFlight: make(map[string]struct{})}
}

func gateKey(sessionCode string, team *game.Team, playerID string, b game.Building) string {
	scope := string(ScopeFor(team))
	owner := team.ID
	if ScopeFor(team) == LockPerPlayer {
		owner = team.ID + ":" + playerID
	}
	return sessionCode + "/" + scope + "/" + owner + "/" + string(b)
}

// Acquire reserves a production slot; false means one is already pending.
func (g *Gate) Acquire(sessionCode string, team *game.Team, playerID string, b game.Building) bool {
	key := gateKey(sessionCode, team, playerID, b)
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, busy := g.inFlight[key]; busy {
		return false
	}
	g.inFlight[key] = struct{}{}
	return true
}

// Release frees a previously acquired slot.
func (g *Gate) Release(sessionCode string, team *game.Team, playerID string, b game.Building) {
	key := gateKey(sessionCode, team, playerID, b)
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.inFlight, key)
}
