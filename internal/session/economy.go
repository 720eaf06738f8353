package session

import (
	"context"
	"log/slog"
	"math"
	"time"

	"github.com/oakbridge-games/homestead/internal/broadcast"
	"github.com/oakbridge-games/homestead/internal/game"
	"github.com/oakbridge-games/homestead/internal/logger"
)

// TradeSide is the team's side of a bank trade.
type TradeSide string

const (
	TradeBuy  TradeSide = "buy"
	TradeSell TradeSide = "sell"
)

// TradeResult summarizes an executed bank trade.
type TradeResult struct {
	Resource  game.Resource `json:"resource"`
	Side      TradeSide     `json:"side"`
	Quantity  int           `json:"quantity"`
	UnitPrice int           `json:"unit_price"`
	Total     int           `json:"total"`
}

// ExecuteTrade settles a bank trade for one team and synchronously runs
// the pricing engine's trade-impact adjustment, so large orders move the
// market before the next background tick. Validation failures reject the
// whole trade; nothing is partially applied.
func (m *Manager) ExecuteTrade(ctx context.Context, code, teamID string, res game.Resource, qty int, side TradeSide) (*TradeResult, error) {
	if !game.ValidResource(res) || res == game.ResourceCurrency {
		return nil, ErrUnknownResource
	}
	if qty <= 0 {
		return nil, ErrInvalidQuantity
	}

	now := m.now().UTC()
	var result TradeResult
	var changed map[game.Resource]*game.PriceRecord

	_, err := m.Mutate(ctx, code, func(s *game.Session) error {
		if !s.Active() {
			return ErrSessionNotActive
		}
		team, ok := s.Economy.Teams[teamID]
		if !ok {
			return ErrUnknownTeam
		}
		state, ok := s.Economy.Prices[res]
		if !ok {
			return ErrUnknownResource
		}

		// Recessions inflate settlement prices without moving the quote.
		priceMult := m.events.PriceMultiplier(s)

		switch side {
		case TradeBuy:
			unit := int(math.Round(float64(state.Buy) * priceMult))
			total := unit * qty
			if s.Economy.Bank[res] < qty {
				return ErrInsufficientStock
			}
			if !team.SpendResource(game.ResourceCurrency, total) {
				return ErrInsufficientFunds
			}
			s.Economy.Bank[res] -= qty
			team.AddResource(res, qty)
			result = TradeResult{Resource: res, Side: side, Quantity: qty, UnitPrice: unit, Total: total}
		case TradeSell:
			unit := int(math.Round(float64(state.Sell) * priceMult))
			total := unit * qty
			if !team.SpendResource(res, qty) {
				return ErrInsufficientStock
			}
			s.Economy.Bank[res] += qty
			team.AddResource(game.ResourceCurrency, total)
			result = TradeResult{Resource: res, Side: side, Quantity: qty, UnitPrice: unit, Total: total}
		default:
			return ErrInvalidQuantity
		}

		changed = m.calc.ApplyTradeImpact(s.Economy.Prices, res, qty, side == TradeBuy, now)
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.LogGame("Trade executed", code,
		slog.String("team", teamID),
		slog.String("resource", string(res)),
		slog.String("side", string(side)),
		slog.Int("quantity", qty),
		slog.Int("total", result.Total))

	m.RecordPriceChanges(ctx, code, changed)
	m.bus.Publish(code, broadcast.Event{Type: broadcast.TypeTradeExecuted, Payload: map[string]any{
		"team":       teamID,
		"resource":   res,
		"side":       side,
		"quantity":   qty,
		"unit_price": result.UnitPrice,
		"total":      result.Total,
	}})
	return &result, nil
}

// RecordPriceChanges appends history records and broadcasts the
// resources that moved. Shared by foreground trades and the pricing loop.
func (m *Manager) RecordPriceChanges(ctx context.Context, code string, changed map[game.Resource]*game.PriceRecord) {
	if len(changed) == 0 {
		return
	}
	prices := make(map[game.Resource]map[string]int, len(changed))
	for res, rec := range changed {
		if err := m.history.Append(ctx, code, res, *rec); err != nil {
			slog.Warn("Failed to append price history",
				slog.String("type", "sys"),
				slog.String("session", code),
				slog.String("resource", string(res)),
				slog.Any("error", err))
		}
		prices[res] = map[string]int{"buy": rec.Buy, "sell": rec.Sell}
	}
	m.bus.Publish(code, broadcast.Event{Type: broadcast.TypePriceUpdate, Payload: prices})
}

// PurchaseBuilding buys one structure at the configured cost, inflated by
// any active recession.
func (m *Manager) PurchaseBuilding(ctx context.Context, code, teamID string, b game.Building) (int, error) {
	baseCost, ok := m.cfg.BuildingCosts[b]
	if !ok {
		return 0, ErrUnknownBuilding
	}

	var cost int
	_, err := m.Mutate(ctx, code, func(s *game.Session) error {
		if !s.Active() {
			return ErrSessionNotActive
		}
		team, ok := s.Economy.Teams[teamID]
		if !ok {
			return ErrUnknownTeam
		}
		cost = int(math.Round(float64(baseCost) * m.events.BuildingCostMultiplier(s)))
		if team.BuildingCount(b) >= game.MaxBuildingCount {
			return ErrBuildingCapped
		}
		if !team.SpendResource(game.ResourceCurrency, cost) {
			return ErrInsufficientFunds
		}
		team.AddBuilding(b)
		return nil
	})
	if err != nil {
		return 0, err
	}

	m.bus.Publish(code, broadcast.Event{Type: broadcast.TypeBuildingBuilt, Payload: map[string]any{
		"team":     teamID,
		"building": b,
		"cost":     cost,
	}})
	return cost, nil
}

// OverridePrice is the host action that rebases one resource's price.
func (m *Manager) OverridePrice(ctx context.Context, code string, res game.Resource, newBaseline int) error {
	if !game.ValidResource(res) || res == game.ResourceCurrency {
		return ErrUnknownResource
	}
	now := m.now().UTC()
	var rec *game.PriceRecord
	_, err := m.Mutate(ctx, code, func(s *game.Session) error {
		if !s.Active() {
			return ErrSessionNotActive
		}
		if _, ok := s.Economy.Prices[res]; !ok {
			return ErrUnknownResource
		}
		next, r, ok := m.calc.ManualOverride(newBaseline, now)
		if !ok {
			return ErrInvalidQuantity
		}
		s.Economy.Prices[res] = next
		rec = r
		return nil
	})
	if err != nil {
		return err
	}
	m.RecordPriceChanges(ctx, code, map[game.Resource]*game.PriceRecord{res: rec})
	return nil
}

// TriggerEvent fires a disaster, shock, or positive event by host action.
func (m *Manager) TriggerEvent(ctx context.Context, code string, kind game.EventKind, severity int) (*game.ActiveEvent, error) {
	if !game.ValidEventKind(kind) {
		return nil, ErrUnknownEvent
	}
	if severity < 1 || severity > 5 {
		return nil, ErrInvalidSeverity
	}

	var triggered *game.ActiveEvent
	_, err := m.Mutate(ctx, code, func(s *game.Session) error {
		if !s.Active() {
			return ErrSessionNotActive
		}
		triggered = m.events.Trigger(s, kind, severity)
		if triggered == nil {
			return ErrNotApplicable
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	m.bus.Publish(code, broadcast.Event{Type: broadcast.TypeEventTriggered, Payload: triggered})
	if triggered.Status == game.EventExpired {
		m.bus.Publish(code, broadcast.Event{Type: broadcast.TypeEventExpired, Payload: triggered.Name})
	}
	return triggered, nil
}

// CureTeam pays a team's plague cure.
func (m *Manager) CureTeam(ctx context.Context, code, teamID string) error {
	_, err := m.Mutate(ctx, code, func(s *game.Session) error {
		if !s.Active() {
			return ErrSessionNotActive
		}
		if !m.events.Cure(s, teamID) {
			return ErrNotApplicable
		}
		return nil
	})
	if err != nil {
		return err
	}
	m.bus.Publish(code, broadcast.Event{Type: broadcast.TypeEventCured, Payload: map[string]any{"team": teamID}})
	return nil
}

// CompleteBreakthrough accepts the automation payment from the targeted
// team.
func (m *Manager) CompleteBreakthrough(ctx context.Context, code, teamID string) error {
	_, err := m.Mutate(ctx, code, func(s *game.Session) error {
		if !s.Active() {
			return ErrSessionNotActive
		}
		if !m.events.CompleteBreakthrough(s, teamID) {
			return ErrNotApplicable
		}
		return nil
	})
	if err != nil {
		return err
	}
	m.bus.Publish(code, broadcast.Event{Type: broadcast.TypeBreakthroughPaid, Payload: map[string]any{"team": teamID}})
	return nil
}

// ProductionGrant is the yield of one completed challenge.
type ProductionGrant struct {
	Building game.Building `json:"building"`
	Resource game.Resource `json:"resource"`
	Amount   int           `json:"amount"`
}

// CompleteChallenge credits a team's production for one building type
// after a physical challenge, scaled by building count and every active
// event's production effect. Duplicate in-flight requests for the same
// scope are rejected; teams with a school lock per player instead of per
// team.
func (m *Manager) CompleteChallenge(ctx context.Context, code, teamID, playerID string, b game.Building) (*ProductionGrant, error) {
	grant, ok := m.cfg.Production.Grant(b)
	if !ok {
		return nil, ErrUnknownBuilding
	}

	// The slot is reserved before the serialized mutation so a concurrent
	// duplicate is rejected instead of queueing on the session lock. The
	// lock scope comes from a plain read; the mutation re-checks the team.
	cur, err := m.store.Get(ctx, code)
	if err != nil {
		return nil, err
	}
	if !cur.Active() {
		return nil, ErrSessionNotActive
	}
	gateTeam, ok := cur.Economy.Teams[teamID]
	if !ok {
		return nil, ErrUnknownTeam
	}
	if !m.gate.Acquire(code, gateTeam, playerID, b) {
		return nil, ErrProductionBusy
	}
	defer m.gate.Release(code, gateTeam, playerID, b)

	var out *ProductionGrant
	_, err = m.Mutate(ctx, code, func(s *game.Session) error {
		if !s.Active() {
			return ErrSessionNotActive
		}
		team, ok := s.Economy.Teams[teamID]
		if !ok {
			return ErrUnknownTeam
		}

		count := team.BuildingCount(b)
		mult := m.events.ProductionMultiplier(s, team, b)
		amount := int(math.Round(float64(grant.AmountPerBuilding*count) * mult))
		if amount < 0 {
			amount = 0
		}
		team.AddResource(grant.Resource, amount)
		out = &ProductionGrant{Building: b, Resource: grant.Resource, Amount: amount}
		return nil
	})
	if err != nil {
		return nil, err
	}

	m.bus.Publish(code, broadcast.Event{Type: broadcast.TypeProductionGrant, Payload: map[string]any{
		"team":     teamID,
		"building": out.Building,
		"resource": out.Resource,
		"amount":   out.Amount,
	}})
	return out, nil
}

// Snapshot is the read model the HTTP surface serves.
type Snapshot struct {
	Code      string                             `json:"code"`
	Status    game.Status                        `json:"status"`
	Prices    map[game.Resource]*game.PriceState `json:"prices"`
	Events    []*game.ActiveEvent                `json:"events"`
	Bank      map[game.Resource]int              `json:"bank"`
	Teams     map[string]*game.Team              `json:"teams"`
	TaxTimers map[string]*game.TaxTimer          `json:"tax_timers"`
	Elapsed   time.Duration                      `json:"elapsed_active"`
}

// Snapshot assembles the current economy view of a session.
func (m *Manager) Snapshot(ctx context.Context, code string) (*Snapshot, error) {
	s, err := m.store.Get(ctx, code)
	if err != nil {
		return nil, err
	}
	snap := &Snapshot{
		Code:    s.Code,
		Status:  s.Status,
		Elapsed: s.ElapsedActive(m.now().UTC()),
	}
	if s.Economy != nil {
		snap.Prices = s.Economy.Prices
		snap.Bank = s.Economy.Bank
		snap.Teams = s.Economy.Teams
		snap.TaxTimers = s.Economy.TaxTimers
		snap.Events = m.events.ActiveEvents(s)
	}
	return snap, nil
}
