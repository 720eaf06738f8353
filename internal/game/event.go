package game

import (
	"encoding/json"
	"fmt"
	"time"
)

// EventKind is the stable identifier for an event variant.
type EventKind string

const (
	EventEarthquake   EventKind = "earthquake"
	EventFire         EventKind = "fire"
	EventDrought      EventKind = "drought"
	EventPlague       EventKind = "plague"
	EventBlizzard     EventKind = "blizzard"
	EventTornado      EventKind = "tornado"
	EventRecession    EventKind = "recession"
	EventBreakthrough EventKind = "breakthrough"
)

// AllEventKinds lists every kind in a stable order.
var AllEventKinds = []EventKind{
	EventEarthquake, EventFire, EventDrought, EventPlague,
	EventBlizzard, EventTornado, EventRecession, EventBreakthrough,
}

// ValidEventKind reports whether k names a known event.
func ValidEventKind(k EventKind) bool {
	for _, known := range AllEventKinds {
		if k == known {
			return true
		}
	}
	return false
}

// EventCategory groups kinds for display and price-bias direction.
type EventCategory string

const (
	CategoryNaturalDisaster EventCategory = "natural_disaster"
	CategoryEconomicEvent   EventCategory = "economic_event"
	CategoryPositiveEvent   EventCategory = "positive_event"
)

// Category returns the category for a kind.
func (k EventKind) Category() EventCategory {
	switch k {
	case EventRecession:
		return CategoryEconomicEvent
	case EventBreakthrough:
		return CategoryPositiveEvent
	default:
		return CategoryNaturalDisaster
	}
}

// EventStatus is the lifecycle state of an active event.
type EventStatus string

const (
	EventActive  EventStatus = "active"
	EventExpired EventStatus = "expired"
	EventCured   EventStatus = "cured"
)

// EventPayload is the kind-specific data carried by an active event.
// Exactly one concrete payload type exists per kind, so cycle advance and
// effect application can switch exhaustively.
type EventPayload interface {
	Kind() EventKind
}

// EarthquakePayload records per-team destruction counts.
type EarthquakePayload struct {
	Destroyed map[string]int `json:"destroyed"`
}

func (EarthquakePayload) Kind() EventKind { return EventEarthquake }

// FirePayload records per-team electrical factory losses.
type FirePayload struct {
	Destroyed map[string]int `json:"destroyed"`
}

func (FirePayload) Kind() EventKind { return EventFire }

// DroughtPayload carries the farm/mine output multiplier while active.
type DroughtPayload struct {
	ProductionMultiplier float64 `json:"production_multiplier"`
}

func (DroughtPayload) Kind() EventKind { return EventDrought }

// PlaguePayload tracks infected teams and the medical-goods cure cost.
type PlaguePayload struct {
	Infected []string `json:"infected"`
	CureCost int      `json:"cure_cost"`
}

func (PlaguePayload) Kind() EventKind { return EventPlague }

// InfectedContains reports whether teamID is still infected.
func (p PlaguePayload) InfectedContains(teamID string) bool {
	for _, id := range p.Infected {
		if id == teamID {
			return true
		}
	}
	return false
}

// BlizzardPayload multiplies food tax and penalizes all production.
type BlizzardPayload struct {
	FoodTaxMultiplier float64 `json:"food_tax_multiplier"`
	ProductionPenalty float64 `json:"production_penalty"`
}

func (BlizzardPayload) Kind() EventKind { return EventBlizzard }

// TornadoPayload records total units removed per team.
type TornadoPayload struct {
	Removed map[string]int `json:"removed"`
}

func (TornadoPayload) Kind() EventKind { return EventTornado }

// RecessionPayload inflates prices and building costs and grants a
// per-cycle restaurant rebate.
type RecessionPayload struct {
	PriceMultiplier        float64 `json:"price_multiplier"`
	BuildingCostMultiplier float64 `json:"building_cost_multiplier"`
	RestaurantRebate       int     `json:"restaurant_rebate"`
}

func (RecessionPayload) Kind() EventKind { return EventRecession }

// BreakthroughPayload gates a factory-production bonus behind an
// electrical-goods payment from the targeted team.
type BreakthroughPayload struct {
	TargetTeam string  `json:"target_team"`
	PaymentDue int     `json:"payment_due"`
	Activated  bool    `json:"activated"`
	Bonus      float64 `json:"bonus"`
}

func (BreakthroughPayload) Kind() EventKind { return EventBreakthrough }

// ActiveEvent is one live event instance. CyclesRemaining is nil for
// events that only end via an explicit cure (plague).
type ActiveEvent struct {
	ID              string       `json:"id"`
	Kind            EventKind    `json:"kind"`
	Name            string       `json:"name"`
	Severity        int          `json:"severity"`
	Status          EventStatus  `json:"status"`
	CyclesRemaining *int         `json:"cycles_remaining,omitempty"`
	TriggeredAt     time.Time    `json:"triggered_at"`
	Payload         EventPayload `json:"-"`
}

// activeEventJSON is the wire/blob form; the payload is dispatched by kind.
type activeEventJSON struct {
	ID              string          `json:"id"`
	Kind            EventKind       `json:"kind"`
	Name            string          `json:"name"`
	Severity        int             `json:"severity"`
	Status          EventStatus     `json:"status"`
	CyclesRemaining *int            `json:"cycles_remaining,omitempty"`
	TriggeredAt     time.Time       `json:"triggered_at"`
	Payload         json.RawMessage `json:"payload,omitempty"`
}

// MarshalJSON encodes the payload under its kind.
func (e ActiveEvent) MarshalJSON() ([]byte, error) {
	var raw json.RawMessage
	if e.Payload != nil {
		b, err := json.Marshal(e.Payload)
		if err != nil {
			return nil, fmt.Errorf("marshal %s payload: %w", e.Kind, err)
		}
		raw = b
	}
	return json.Marshal(activeEventJSON{
		ID:              e.ID,
		Kind:            e.Kind,
		Name:            e.Name,
		Severity:        e.Severity,
		Status:          e.Status,
		CyclesRemaining: e.CyclesRemaining,
		TriggeredAt:     e.TriggeredAt,
		Payload:         raw,
	})
}

// UnmarshalJSON decodes the payload into the concrete type for the kind.
func (e *ActiveEvent) UnmarshalJSON(data []byte) error {
	var wire activeEventJSON
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	e.ID = wire.ID
	e.Kind = wire.Kind
	e.Name = wire.Name
	e.Severity = wire.Severity
	e.Status = wire.Status
	e.CyclesRemaining = wire.CyclesRemaining
	e.TriggeredAt = wire.TriggeredAt
	e.Payload = nil
	if len(wire.Payload) == 0 {
		return nil
	}
	payload, err := decodePayload(wire.Kind, wire.Payload)
	if err != nil {
		return err
	}
	e.Payload = payload
	return nil
}

func decodePayload(kind EventKind, raw json.RawMessage) (EventPayload, error) {
	unmarshal := func(v EventPayload) (EventPayload, error) {
		if err := json.Unmarshal(raw, v); err != nil {
			return nil, fmt.Errorf("unmarshal %s payload: %w", kind, err)
		}
		return v, nil
	}
	switch kind {
	case EventEarthquake:
		return unmarshal(&EarthquakePayload{})
	case EventFire:
		return unmarshal(&FirePayload{})
	case EventDrought:
		return unmarshal(&DroughtPayload{})
	case EventPlague:
		return unmarshal(&PlaguePayload{})
	case EventBlizzard:
		return unmarshal(&BlizzardPayload{})
	case EventTornado:
		return unmarshal(&TornadoPayload{})
	case EventRecession:
		return unmarshal(&RecessionPayload{})
	case EventBreakthrough:
		return unmarshal(&BreakthroughPayload{})
	default:
		return nil, fmt.Errorf("unknown event kind %q", kind)
	}
}
