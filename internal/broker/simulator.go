package broker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"tradeflow/internal/domain"

	"github.com/shopspring/decimal"
)

// Simulator is an in-memory Gateway for tests and paper simulation. Orders
// rest as accepted until a test fills or cancels them; quotes and positions
// are whatever the test sets. All methods are safe for concurrent use.
type Simulator struct {
	mu        sync.Mutex
	seq       int
	orders    map[string]*Order
	positions map[string]Position
	quotes    map[string]Quote

	// FailSubmit, FailCancel and FailQuote force the next matching call to
	// error, simulating a broker outage.
	FailSubmit bool
	FailCancel bool
	FailQuote  bool

	SubmitCalls int
	CancelCalls int

	nowFn func() time.Time
}

var _ Gateway = (*Simulator)(nil)

// NewSimulator returns an empty simulator.
func NewSimulator() *Simulator {
	return &Simulator{
		orders:    make(map[string]*Order),
		positions: make(map[string]Position),
		quotes:    make(map[string]Quote),
		nowFn:     time.Now,
	}
}

// SetNow injects a clock for deterministic timestamps.
func (s *Simulator) SetNow(fn func() time.Time) {
	s.mu.Lock()
	s.nowFn = fn
	s.mu.Unlock()
}

func (s *Simulator) SubmitLimitOrder(_ context.Context, req LimitOrderRequest) (*Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.SubmitCalls++
	if s.FailSubmit {
		return nil, fmt.Errorf("simulator: submit rejected")
	}
	o := s.newOrder(req.Symbol, req.Side, req.Qty)
	o.LimitPrice = req.LimitPrice
	o.ClientOrderID = req.ClientOrderID
	return cloneOrder(o), nil
}

func (s *Simulator) SubmitStopOrder(_ context.Context, req StopOrderRequest) (*Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.SubmitCalls++
	if s.FailSubmit {
		return nil, fmt.Errorf("simulator: submit rejected")
	}
	o := s.newOrder(req.Symbol, req.Side, req.Qty)
	o.StopPrice = req.StopPrice
	o.ClientOrderID = req.ClientOrderID
	return cloneOrder(o), nil
}

func (s *Simulator) GetOrderByID(_ context.Context, orderID string) (*Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[orderID]
	if !ok {
		return nil, ErrOrderNotFound
	}
	return cloneOrder(o), nil
}

func (s *Simulator) CancelOrderByID(_ context.Context, orderID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CancelCalls++
	if s.FailCancel {
		return fmt.Errorf("simulator: cancel rejected")
	}
	o, ok := s.orders[orderID]
	if !ok {
		return ErrOrderNotFound
	}
	if o.Status != "filled" {
		o.Status = "canceled"
	}
	return nil
}

func (s *Simulator) ListOpenPositions(_ context.Context) ([]Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Position, 0, len(s.positions))
	for _, p := range s.positions {
		out = append(out, p)
	}
	return out, nil
}

func (s *Simulator) GetLatestQuote(_ context.Context, symbol string) (*Quote, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailQuote {
		return nil, fmt.Errorf("simulator: quote feed unavailable")
	}
	q, ok := s.quotes[symbol]
	if !ok {
		return nil, fmt.Errorf("simulator: no quote for %s", symbol)
	}
	return &q, nil
}

// FillOrder marks an order filled at the given price, as if the broker
// executed it between polls.
func (s *Simulator) FillOrder(orderID string, price, qty decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[orderID]
	if !ok {
		return
	}
	now := s.nowFn()
	o.Status = "filled"
	o.FilledQty = qty
	o.FilledAvgPrice = price
	o.FilledAt = &now
}

// ExpireOrder moves an order to the given terminal broker status
// (canceled/expired/rejected).
func (s *Simulator) ExpireOrder(orderID, status string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if o, ok := s.orders[orderID]; ok {
		o.Status = status
	}
}

// OrderStatus returns the broker-side status for assertions.
func (s *Simulator) OrderStatus(orderID string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if o, ok := s.orders[orderID]; ok {
		return o.Status
	}
	return ""
}

// SetPosition upserts a broker-side open position.
func (s *Simulator) SetPosition(symbol string, qty, avgEntry decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.positions[symbol] = Position{Symbol: symbol, Qty: qty, AvgEntryPrice: avgEntry}
}

// RemovePosition drops a broker-side position, simulating an external close.
func (s *Simulator) RemovePosition(symbol string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.positions, symbol)
}

// SetQuote sets the latest quote for a symbol. Zero sides are allowed.
func (s *Simulator) SetQuote(symbol string, bid, ask decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.quotes[symbol] = Quote{Symbol: symbol, BidPrice: bid, AskPrice: ask, Timestamp: s.nowFn()}
}

func (s *Simulator) newOrder(symbol string, side domain.Side, qty decimal.Decimal) *Order {
	s.seq++
	o := &Order{
		ID:        fmt.Sprintf("sim-%04d", s.seq),
		Symbol:    symbol,
		Side:      side,
		Status:    "accepted",
		Qty:       qty,
		CreatedAt: s.nowFn(),
	}
	s.orders[o.ID] = o
	return o
}

func cloneOrder(o *Order) *Order {
	cp := *o
	if o.FilledAt != nil {
		t := *o.FilledAt
		cp.FilledAt = &t
	}
	return &cp
}
