// Package broker abstracts the brokerage the lifecycle jobs talk to. The
// jobs never see the Alpaca SDK directly; they depend on Gateway so tests and
// paper simulation can substitute an in-memory implementation.
package broker

import (
	"context"
	"errors"
	"time"

	"tradeflow/internal/domain"

	"github.com/shopspring/decimal"
)

// ErrOrderNotFound is returned by GetOrderByID when the broker does not know
// the order id.
var ErrOrderNotFound = errors.New("broker: order not found")

// Order is the minimal order view the state machine depends on.
type Order struct {
	ID             string
	ClientOrderID  string
	Symbol         string
	Side           domain.Side
	Status         string
	Qty            decimal.Decimal
	FilledQty      decimal.Decimal
	FilledAvgPrice decimal.Decimal
	LimitPrice     decimal.Decimal
	StopPrice      decimal.Decimal
	FilledAt       *time.Time
	CreatedAt      time.Time
}

// Position is one open position as the broker reports it.
type Position struct {
	Symbol        string
	Qty           decimal.Decimal
	AvgEntryPrice decimal.Decimal
}

// Quote is the latest bid/ask for a symbol. A zero side means the feed had no
// price for that side.
type Quote struct {
	Symbol    string
	BidPrice  decimal.Decimal
	AskPrice  decimal.Decimal
	Timestamp time.Time
}

// MidOrAsk returns the bid/ask midpoint when both sides are present, the ask
// alone otherwise. ok is false when no usable price exists.
func (q Quote) MidOrAsk() (decimal.Decimal, bool) {
	switch {
	case q.BidPrice.IsPositive() && q.AskPrice.IsPositive():
		return q.BidPrice.Add(q.AskPrice).Div(decimal.NewFromInt(2)), true
	case q.AskPrice.IsPositive():
		return q.AskPrice, true
	default:
		return decimal.Zero, false
	}
}

// LimitOrderRequest submits an entry or take-profit limit order.
type LimitOrderRequest struct {
	Symbol        string
	Qty           decimal.Decimal
	Side          domain.Side
	TimeInForce   string
	LimitPrice    decimal.Decimal
	ClientOrderID string
}

// StopOrderRequest submits a stop-loss order.
type StopOrderRequest struct {
	Symbol        string
	Qty           decimal.Decimal
	Side          domain.Side
	TimeInForce   string
	StopPrice     decimal.Decimal
	ClientOrderID string
}

// Gateway is the capability surface the three jobs consume. Every call can
// fail or return stale data; callers treat the broker as the system of record
// and re-query rather than trusting earlier responses.
type Gateway interface {
	SubmitLimitOrder(ctx context.Context, req LimitOrderRequest) (*Order, error)
	SubmitStopOrder(ctx context.Context, req StopOrderRequest) (*Order, error)
	GetOrderByID(ctx context.Context, orderID string) (*Order, error)
	CancelOrderByID(ctx context.Context, orderID string) error
	ListOpenPositions(ctx context.Context) ([]Position, error)
	GetLatestQuote(ctx context.Context, symbol string) (*Quote, error)
}
