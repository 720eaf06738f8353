package event

import (
	"math"
	"math/rand"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/oakbridge-games/homestead/internal/game"
)

// Engine applies disasters, economic shocks, and positive events to a
// session's economy. It holds no session state; every operation re-reads
// the economy it is handed and mutates it in place, leaving persistence to
// the caller. At most one event of a kind is active at a time.
type Engine struct {
	cfg Config
	rng *rand.Rand
}

// NewEngine creates an event engine. Tests pass a seeded randomness source.
func NewEngine(cfg Config, rng *rand.Rand) *Engine {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Engine{cfg: cfg, rng: rng}
}

// DifficultyModifier scales event effects by session difficulty.
func (e *Engine) DifficultyModifier(d game.Difficulty) float64 {
	if m, ok := e.cfg.DifficultyModifiers[d]; ok {
		return m
	}
	return 1.0
}

// Mitigation returns the 0..1 damage multiplier a team's mitigation
// buildings earn against kind: 1 - min(count*0.2, 1). Unmitigable kinds
// always return 1.
func (e *Engine) Mitigation(team *game.Team, kind game.EventKind) float64 {
	building, ok := mitigationBuildings[kind]
	if !ok {
		return 1.0
	}
	reduction := math.Min(float64(team.BuildingCount(building))*e.cfg.MitigationPerBuilding, 1.0)
	return 1 - reduction
}

// ActiveEvents returns the session's live events sorted by trigger time.
func (e *Engine) ActiveEvents(s *game.Session) []*game.ActiveEvent {
	if s.Economy == nil {
		return nil
	}
	events := make([]*game.ActiveEvent, 0, len(s.Economy.Events))
	for _, ev := range s.Economy.Events {
		events = append(events, ev)
	}
	sort.Slice(events, func(i, j int) bool {
		return events[i].TriggeredAt.Before(events[j].TriggeredAt)
	})
	return events
}

// PriceBias sums the configured price effect of every active event for one
// resource. Events with no resource target contribute to every resource.
func (e *Engine) PriceBias(s *game.Session, res game.Resource) float64 {
	if s.Economy == nil {
		return 0
	}
	var bias float64
	for _, ev := range s.Economy.Events {
		spec, ok := e.cfg.PriceBias[ev.Kind]
		if !ok {
			continue
		}
		if spec.Resource != "" && spec.Resource != res {
			continue
		}
		bias += spec.PerSeverity * float64(ev.Severity)
	}
	return bias
}

// PriceMultiplier returns the bank-price multiplier from active economic
// events (recession), applied to trade settlement amounts.
func (e *Engine) PriceMultiplier(s *game.Session) float64 {
	if s.Economy == nil {
		return 1.0
	}
	mult := 1.0
	for _, ev := range s.Economy.Events {
		if p, ok := ev.Payload.(*game.RecessionPayload); ok {
			mult *= p.PriceMultiplier
		}
	}
	return mult
}

// BuildingCostMultiplier returns the construction-cost multiplier from
// active economic events.
func (e *Engine) BuildingCostMultiplier(s *game.Session) float64 {
	if s.Economy == nil {
		return 1.0
	}
	mult := 1.0
	for _, ev := range s.Economy.Events {
		if p, ok := ev.Payload.(*game.RecessionPayload); ok {
			mult *= p.BuildingCostMultiplier
		}
	}
	return mult
}

// FoodTaxMultiplier folds active blizzards into the tax amount.
func (e *Engine) FoodTaxMultiplier(s *game.Session) float64 {
	if s.Economy == nil {
		return 1.0
	}
	mult := 1.0
	for _, ev := range s.Economy.Events {
		if p, ok := ev.Payload.(*game.BlizzardPayload); ok {
			mult *= p.FoodTaxMultiplier
		}
	}
	return mult
}

// ProductionMultiplier folds every active event's effect on one team's
// output from one building type.
func (e *Engine) ProductionMultiplier(s *game.Session, team *game.Team, building game.Building) float64 {
	if s.Economy == nil {
		return 1.0
	}
	mult := 1.0
	for _, ev := range s.Economy.Events {
		switch p := ev.Payload.(type) {
		case *game.DroughtPayload:
			if building == game.BuildingFarm || building == game.BuildingMine {
				// Infrastructure softens the drought penalty, not the
				// multiplier directly: with full mitigation the team
				// produces at the normal rate.
				penalty := (1 - p.ProductionMultiplier) * e.Mitigation(team, game.EventDrought)
				mult *= 1 - penalty
			}
		case *game.BlizzardPayload:
			mult *= 1 - p.ProductionPenalty
		case *game.PlaguePayload:
			if p.InfectedContains(team.ID) {
				mult *= e.cfg.PlagueProductionPenalty
			}
		case *game.BreakthroughPayload:
			if p.Activated && p.TargetTeam == team.ID && isFactory(building) {
				mult *= 1 + p.Bonus
			}
		}
	}
	return mult
}

func isFactory(b game.Building) bool {
	for _, f := range game.FactoryBuildings {
		if b == f {
			return true
		}
	}
	return false
}

// Trigger dispatches by kind. Instant events (earthquake, fire, tornado)
// apply immediately and come back already expired; duration events are
// inserted into the active map. It returns nil when the trigger has no
// eligible target, the severity is out of range, or an event of the same
// kind is already active.
func (e *Engine) Trigger(s *game.Session, kind game.EventKind, severity int) *game.ActiveEvent {
	if !s.Active() || severity < 1 || severity > 5 {
		return nil
	}
	if _, exists := s.Economy.Events[string(kind)]; exists {
		return nil
	}
	switch kind {
	case game.EventEarthquake:
		return e.triggerEarthquake(s, severity)
	case game.EventFire:
		return e.triggerFire(s, severity)
	case game.EventDrought:
		return e.triggerDrought(s, severity)
	case game.EventPlague:
		return e.triggerPlague(s, severity)
	case game.EventBlizzard:
		return e.triggerBlizzard(s, severity)
	case game.EventTornado:
		return e.triggerTornado(s, severity)
	case game.EventRecession:
		return e.triggerRecession(s, severity)
	case game.EventBreakthrough:
		return e.triggerBreakthrough(s, severity)
	default:
		return nil
	}
}

func (e *Engine) newEvent(kind game.EventKind, severity int, cycles *int, payload game.EventPayload) *game.ActiveEvent {
	return &game.ActiveEvent{
		ID:              uuid.NewString(),
		Kind:            kind,
		Name:            displayNames[kind],
		Severity:        severity,
		Status:          game.EventActive,
		CyclesRemaining: cycles,
		TriggeredAt:     time.Now().UTC(),
		Payload:         payload,
	}
}

func cycles(n int) *int { return &n }

// sortedTeams iterates teams deterministically.
func sortedTeams(s *game.Session) []*game.Team {
	teams := make([]*game.Team, 0, len(s.Economy.Teams))
	for _, t := range s.Economy.Teams {
		teams = append(teams, t)
	}
	sort.Slice(teams, func(i, j int) bool { return teams[i].ID < teams[j].ID })
	return teams
}

func (e *Engine) triggerEarthquake(s *game.Session, severity int) *game.ActiveEvent {
	diff := e.DifficultyModifier(s.Difficulty)
	payload := &game.EarthquakePayload{Destroyed: make(map[string]int)}
	for _, team := range sortedTeams(s) {
		n := int(math.Round(float64(severity) * diff * e.Mitigation(team, game.EventEarthquake)))
		if n > 5 {
			n = 5
		}
		payload.Destroyed[team.ID] = e.destroyRandomBuildings(team, n)
	}
	ev := e.newEvent(game.EventEarthquake, severity, nil, payload)
	ev.Status = game.EventExpired
	return ev
}

// destroyRandomBuildings removes up to n structures chosen uniformly
// across the team's standing inventory.
func (e *Engine) destroyRandomBuildings(team *game.Team, n int) int {
	destroyed := 0
	for i := 0; i < n; i++ {
		var standing []game.Building
		for _, b := range game.AllBuildings {
			for j := 0; j < team.BuildingCount(b); j++ {
				standing = append(standing, b)
			}
		}
		if len(standing) == 0 {
			break
		}
		if team.RemoveBuilding(standing[e.rng.Intn(len(standing))]) {
			destroyed++
		}
	}
	return destroyed
}

func (e *Engine) triggerFire(s *game.Session, severity int) *game.ActiveEvent {
	diff := e.DifficultyModifier(s.Difficulty)
	payload := &game.FirePayload{Destroyed: make(map[string]int)}
	for _, team := range sortedTeams(s) {
		fraction := math.Min(0.20*float64(severity)*diff*e.Mitigation(team, game.EventFire), 1.0)
		count := team.BuildingCount(game.BuildingElectricalFactory)
		lost := int(math.Round(float64(count) * fraction))
		for i := 0; i < lost; i++ {
			team.RemoveBuilding(game.BuildingElectricalFactory)
		}
		payload.Destroyed[team.ID] = lost
	}
	ev := e.newEvent(game.EventFire, severity, nil, payload)
	ev.Status = game.EventExpired
	return ev
}

func (e *Engine) triggerDrought(s *game.Session, severity int) *game.ActiveEvent {
	payload := &game.DroughtPayload{
		ProductionMultiplier: 0.5 + float64(3-severity)*0.1,
	}
	ev := e.newEvent(game.EventDrought, severity, cycles(2), payload)
	s.Economy.Events[string(ev.Kind)] = ev
	return ev
}

func (e *Engine) triggerPlague(s *game.Session, severity int) *game.ActiveEvent {
	teams := sortedTeams(s)
	if len(teams) == 0 {
		return nil
	}
	count := 1
	if severity > 3 {
		count = 2
	}
	if count > len(teams) {
		count = len(teams)
	}
	e.rng.Shuffle(len(teams), func(i, j int) { teams[i], teams[j] = teams[j], teams[i] })
	infected := make([]string, 0, count)
	for _, t := range teams[:count] {
		infected = append(infected, t.ID)
	}
	sort.Strings(infected)

	diff := e.DifficultyModifier(s.Difficulty)
	payload := &game.PlaguePayload{
		Infected: infected,
		CureCost: int(math.Round(float64(e.cfg.PlagueCureCost) * diff)),
	}
	// No cycle count: a plague only ends when every team is cured.
	ev := e.newEvent(game.EventPlague, severity, nil, payload)
	s.Economy.Events[string(ev.Kind)] = ev
	return ev
}

func (e *Engine) triggerBlizzard(s *game.Session, severity int) *game.ActiveEvent {
	diff := e.DifficultyModifier(s.Difficulty)
	penalty := 0.10
	switch s.Difficulty {
	case game.DifficultyMedium:
		penalty = 0.20
	case game.DifficultyHard:
		penalty = 0.30
	}
	payload := &game.BlizzardPayload{
		FoodTaxMultiplier: 2 * float64(severity) * diff,
		ProductionPenalty: penalty,
	}
	ev := e.newEvent(game.EventBlizzard, severity, cycles(2), payload)
	s.Economy.Events[string(ev.Kind)] = ev
	return ev
}

func (e *Engine) triggerTornado(s *game.Session, severity int) *game.ActiveEvent {
	diff := e.DifficultyModifier(s.Difficulty)
	payload := &game.TornadoPayload{Removed: make(map[string]int)}
	for _, team := range sortedTeams(s) {
		fraction := math.Min(0.15*float64(severity)*diff*e.Mitigation(team, game.EventTornado), 1.0)
		removed := 0
		for res, qty := range team.Resources {
			lost := int(math.Round(float64(qty) * fraction))
			team.AddResource(res, -lost)
			removed += lost
		}
		payload.Removed[team.ID] = removed
	}
	ev := e.newEvent(game.EventTornado, severity, nil, payload)
	ev.Status = game.EventExpired
	return ev
}

func (e *Engine) triggerRecession(s *game.Session, severity int) *game.ActiveEvent {
	diff := e.DifficultyModifier(s.Difficulty)
	duration := 2 + severity - 3
	if duration < 1 {
		duration = 1
	}
	payload := &game.RecessionPayload{
		PriceMultiplier:        1 + 0.5*float64(severity)*diff,
		BuildingCostMultiplier: 1 + 0.25*float64(severity)*diff,
		RestaurantRebate:       int(math.Round(float64(e.cfg.RecessionRestaurantRebate) * diff)),
	}
	ev := e.newEvent(game.EventRecession, severity, cycles(duration), payload)
	s.Economy.Events[string(ev.Kind)] = ev
	return ev
}

func (e *Engine) triggerBreakthrough(s *game.Session, severity int) *game.ActiveEvent {
	teams := sortedTeams(s)
	if len(teams) == 0 {
		return nil
	}
	best := []*game.Team{teams[0]}
	for _, t := range teams[1:] {
		switch {
		case t.FactoryCount() > best[0].FactoryCount():
			best = []*game.Team{t}
		case t.FactoryCount() == best[0].FactoryCount():
			best = append(best, t)
		}
	}
	target := best[e.rng.Intn(len(best))]

	diff := e.DifficultyModifier(s.Difficulty)
	payload := &game.BreakthroughPayload{
		TargetTeam: target.ID,
		PaymentDue: int(math.Round(float64(e.cfg.BreakthroughCost) * diff)),
		Bonus:      0.5 * float64(severity) * diff,
	}
	// One cycle to pay; activation stretches the clock to the bonus window.
	ev := e.newEvent(game.EventBreakthrough, severity, cycles(1), payload)
	s.Economy.Events[string(ev.Kind)] = ev
	return ev
}

// CureCost is what one team owes in medical goods to clear its infection:
// the plague's base cost reduced by the team's hospitals.
func (e *Engine) CureCost(ev *game.ActiveEvent, team *game.Team) int {
	payload, ok := ev.Payload.(*game.PlaguePayload)
	if !ok {
		return 0
	}
	return int(math.Round(float64(payload.CureCost) * e.Mitigation(team, game.EventPlague)))
}

// Cure removes teamID from the active plague's infected set, charging the
// hospital-mitigated cure cost in medical goods. Once the set empties the
// event is cured and removed. Returns false on any failed precondition: no
// plague, team not infected, or team unable to pay.
func (e *Engine) Cure(s *game.Session, teamID string) bool {
	if !s.Active() {
		return false
	}
	ev, ok := s.Economy.Events[string(game.EventPlague)]
	if !ok {
		return false
	}
	payload, ok := ev.Payload.(*game.PlaguePayload)
	if !ok || !payload.InfectedContains(teamID) {
		return false
	}
	team, ok := s.Economy.Teams[teamID]
	if !ok || !team.SpendResource(game.ResourceMedical, e.CureCost(ev, team)) {
		return false
	}

	remaining := payload.Infected[:0]
	for _, id := range payload.Infected {
		if id != teamID {
			remaining = append(remaining, id)
		}
	}
	payload.Infected = remaining
	if len(payload.Infected) == 0 {
		ev.Status = game.EventCured
		delete(s.Economy.Events, string(game.EventPlague))
	}
	return true
}

// CompleteBreakthrough accepts the targeted team's payment and flips the
// pending bonus active for two cycles. Returns false when there is no
// pending breakthrough, the team is not the target, it already activated,
// or the team cannot afford the payment.
func (e *Engine) CompleteBreakthrough(s *game.Session, teamID string) bool {
	if !s.Active() {
		return false
	}
	ev, ok := s.Economy.Events[string(game.EventBreakthrough)]
	if !ok {
		return false
	}
	payload, ok := ev.Payload.(*game.BreakthroughPayload)
	if !ok || payload.Activated || payload.TargetTeam != teamID {
		return false
	}
	team, ok := s.Economy.Teams[teamID]
	if !ok || !team.SpendResource(game.ResourceElectrical, payload.PaymentDue) {
		return false
	}
	payload.Activated = true
	ev.CyclesRemaining = cycles(2)
	return true
}

// AdvanceCycle ages every duration-bearing active event by one tax cycle:
// per-cycle effects (the recession restaurant rebate) apply, remaining
// cycles decrement, and events reaching zero are expired out of the active
// map. Plagues carry no cycle count and are untouched. The removed events
// are returned for broadcast.
func (e *Engine) AdvanceCycle(s *game.Session) []*game.ActiveEvent {
	if !s.Active() {
		return nil
	}
	var expired []*game.ActiveEvent
	for key, ev := range s.Economy.Events {
		if p, ok := ev.Payload.(*game.RecessionPayload); ok {
			for _, team := range s.Economy.Teams {
				rebate := p.RestaurantRebate * team.BuildingCount(game.BuildingRestaurant)
				team.AddResource(game.ResourceCurrency, rebate)
			}
		}
		if ev.CyclesRemaining == nil {
			continue
		}
		*ev.CyclesRemaining--
		if *ev.CyclesRemaining <= 0 {
			ev.Status = game.EventExpired
			delete(s.Economy.Events, key)
			expired = append(expired, ev)
		}
	}
	sort.Slice(expired, func(i, j int) bool { return expired[i].Kind < expired[j].Kind })
	return expired
}
