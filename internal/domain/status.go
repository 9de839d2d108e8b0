// Package domain holds the closed status vocabularies of the trade lifecycle
// and the transition rules the batch jobs rely on. Statuses are stored as
// strings but only the constants below are ever written.
package domain

import "strings"

// TradeStatus is the lifecycle state of a trade journal entry.
type TradeStatus string

const (
	TradeOrdered   TradeStatus = "ORDERED"
	TradePosition  TradeStatus = "POSITION"
	TradeClosed    TradeStatus = "CLOSED"
	TradeCancelled TradeStatus = "CANCELLED"
)

// tradeTransitions is the complete transition table. Anything not listed is
// illegal and treated as a no-op by callers.
var tradeTransitions = map[TradeStatus][]TradeStatus{
	TradeOrdered:  {TradePosition, TradeCancelled},
	TradePosition: {TradeClosed},
}

// CanTransition reports whether from -> to is a legal trade transition.
func CanTransition(from, to TradeStatus) bool {
	for _, next := range tradeTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Terminal reports whether no further transition is possible.
func (s TradeStatus) Terminal() bool {
	return len(tradeTransitions[s]) == 0
}

// OrderType distinguishes the entry order from its protective children.
type OrderType string

const (
	OrderEntry      OrderType = "ENTRY"
	OrderStopLoss   OrderType = "STOP_LOSS"
	OrderTakeProfit OrderType = "TAKE_PROFIT"
)

// Protective reports whether the order exits an open position.
func (t OrderType) Protective() bool {
	return t == OrderStopLoss || t == OrderTakeProfit
}

// OrderStatus is the local order vocabulary the broker statuses map into.
type OrderStatus string

const (
	OrderPending         OrderStatus = "pending"
	OrderPartiallyFilled OrderStatus = "partially_filled"
	OrderFilled          OrderStatus = "filled"
	OrderCancelled       OrderStatus = "cancelled"
)

// MapBrokerStatus folds the broker's order status vocabulary into ours.
// Unknown values pass through unchanged so a new broker status is visible in
// the store rather than silently swallowed.
func MapBrokerStatus(raw string) OrderStatus {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "new", "accepted", "pending_new":
		return OrderPending
	case "filled":
		return OrderFilled
	case "partially_filled":
		return OrderPartiallyFilled
	case "canceled", "cancelled", "rejected", "expired":
		return OrderCancelled
	default:
		return OrderStatus(strings.ToLower(strings.TrimSpace(raw)))
	}
}

// ExitReason records why a trade left POSITION (or ORDERED, for cancels).
type ExitReason string

const (
	ExitStoppedOut ExitReason = "STOPPED_OUT"
	ExitTargetHit  ExitReason = "TARGET_HIT"
	ExitManual     ExitReason = "MANUAL_EXIT"
	ExitCancelled  ExitReason = "CANCELLED"
)

// Side is the order side sent to the broker.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Strategy tags carried on trades. TAKE_PROFIT orders are only planned for
// swing trades; trend trades ride without a target.
const (
	StrategySwing = "SWING"
	StrategyTrend = "TREND"
)
