// Package broadcast is the push boundary toward clients. The core treats
// delivery as fire-and-forget, at most once; any transport needing
// stronger guarantees layers them on its side of the sink.
package broadcast

// Event is one state-change notification scoped to a session.
type Event struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

// Broadcaster publishes session-scoped events. Publish must never block
// the caller; slow or absent subscribers lose messages.
type Broadcaster interface {
	Publish(sessionCode string, ev Event)
}

// Event types emitted by the engines and schedulers.
const (
	TypePriceUpdate      = "price_update"
	TypeTradeExecuted    = "trade_executed"
	TypeTaxWarning       = "tax_warning"
	TypeTaxCollected     = "tax_collected"
	TypeFamine           = "famine"
	TypeTaxFailed        = "tax_failed"
	TypeEventTriggered   = "event_triggered"
	TypeEventExpired     = "event_expired"
	TypeEventCured       = "event_cured"
	TypeBreakthroughPaid = "breakthrough_paid"
	TypeScenarioEffect   = "scenario_effect"
	TypeSessionPaused    = "session_paused"
	TypeSessionResumed   = "session_resumed"
	TypeBuildingBuilt    = "building_built"
	TypeProductionGrant  = "production_grant"
)

// NopBroadcaster drops everything; useful in tests.
type NopBroadcaster struct{}

func (NopBroadcaster) Publish(string, Event) {}
