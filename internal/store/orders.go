package store

import (
	"context"
	"errors"
	"time"

	"tradeflow/internal/domain"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// CreateOrder inserts an order execution record.
func (s *Store) CreateOrder(ctx context.Context, o *OrderExecution) error {
	return s.db.WithContext(ctx).Create(o).Error
}

// GetOrderByBrokerID looks up an order by its broker-side id.
func (s *Store) GetOrderByBrokerID(ctx context.Context, brokerOrderID string) (*OrderExecution, error) {
	var o OrderExecution
	err := s.db.WithContext(ctx).Where("broker_order_id = ?", brokerOrderID).First(&o).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &o, nil
}

// ListOrdersToSync returns every order the reconciler should poll, oldest
// first: live orders, plus cancelled entry orders whose parent trade is still
// ORDERED and needs the ORDERED->CANCELLED follow-up. Cancelled orders of
// settled trades are excluded so the poll set does not grow with history.
func (s *Store) ListOrdersToSync(ctx context.Context) ([]OrderExecution, error) {
	var out []OrderExecution
	err := s.db.WithContext(ctx).
		Model(&OrderExecution{}).
		Joins("JOIN trade_journal ON trade_journal.id = order_executions.trade_journal_id").
		Where(
			s.db.Where("order_executions.order_status IN ?", []domain.OrderStatus{
				domain.OrderPending,
				domain.OrderPartiallyFilled,
			}).Or(
				"order_executions.order_status = ? AND order_executions.order_type = ? AND trade_journal.status = ?",
				domain.OrderCancelled, domain.OrderEntry, domain.TradeOrdered,
			),
		).
		Order("order_executions.created_at ASC").
		Find(&out).Error
	return out, err
}

// UpdateOrderSync persists the broker-reported state onto the order record.
// It is deliberately unconditional: sync writes ground truth every poll, even
// when nothing changed.
func (s *Store) UpdateOrderSync(ctx context.Context, id uint, status domain.OrderStatus, filledQty, filledAvgPrice decimal.NullDecimal, filledAt *time.Time) error {
	return s.db.WithContext(ctx).
		Model(&OrderExecution{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"order_status":     status,
			"filled_qty":       filledQty,
			"filled_avg_price": filledAvgPrice,
			"filled_at":        filledAt,
			"updated_at":       time.Now(),
		}).Error
}

// MarkOrderCancelled sets an order's local status to cancelled by broker id.
func (s *Store) MarkOrderCancelled(ctx context.Context, brokerOrderID string) error {
	return s.db.WithContext(ctx).
		Model(&OrderExecution{}).
		Where("broker_order_id = ?", brokerOrderID).
		Updates(map[string]any{
			"order_status": domain.OrderCancelled,
			"updated_at":   time.Now(),
		}).Error
}

// ListOpenProtectiveOrders returns still-live STOP_LOSS/TAKE_PROFIT orders of
// a trade, optionally excluding one broker order id (the one that just
// filled).
func (s *Store) ListOpenProtectiveOrders(ctx context.Context, tradeJournalID uint, excludeBrokerOrderID string) ([]OrderExecution, error) {
	q := s.db.WithContext(ctx).
		Where("trade_journal_id = ?", tradeJournalID).
		Where("order_type IN ?", []domain.OrderType{domain.OrderStopLoss, domain.OrderTakeProfit}).
		Where("order_status IN ?", []domain.OrderStatus{domain.OrderPending, domain.OrderPartiallyFilled})
	if excludeBrokerOrderID != "" {
		q = q.Where("broker_order_id <> ?", excludeBrokerOrderID)
	}
	var out []OrderExecution
	err := q.Find(&out).Error
	return out, err
}

// LatestFilledProtectiveOrder returns the most recently filled protective
// order of a trade, or nil when none filled. The position reconciler uses it
// to repair a missed exit fill.
func (s *Store) LatestFilledProtectiveOrder(ctx context.Context, tradeJournalID uint) (*OrderExecution, error) {
	var o OrderExecution
	err := s.db.WithContext(ctx).
		Where("trade_journal_id = ?", tradeJournalID).
		Where("order_type IN ?", []domain.OrderType{domain.OrderStopLoss, domain.OrderTakeProfit}).
		Where("order_status = ?", domain.OrderFilled).
		Order("filled_at DESC").
		First(&o).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &o, nil
}

// ListOrdersByTrade returns all orders of one trade, oldest first.
func (s *Store) ListOrdersByTrade(ctx context.Context, tradeJournalID uint) ([]OrderExecution, error) {
	var out []OrderExecution
	err := s.db.WithContext(ctx).
		Where("trade_journal_id = ?", tradeJournalID).
		Order("created_at ASC").
		Find(&out).Error
	return out, err
}

// OrderFilter narrows the paginated order listing.
type OrderFilter struct {
	Status    domain.OrderStatus
	OrderType domain.OrderType
	TradeID   uint
}

// ListOrders serves the read API: filtered, newest first, paginated.
func (s *Store) ListOrders(ctx context.Context, f OrderFilter, page Page) ([]OrderExecution, int64, error) {
	q := s.db.WithContext(ctx).Model(&OrderExecution{})
	if f.Status != "" {
		q = q.Where("order_status = ?", f.Status)
	}
	if f.OrderType != "" {
		q = q.Where("order_type = ?", f.OrderType)
	}
	if f.TradeID != 0 {
		q = q.Where("trade_journal_id = ?", f.TradeID)
	}
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var out []OrderExecution
	err := q.Order("created_at DESC").Scopes(paginate(page)).Find(&out).Error
	return out, total, err
}

// CountOrdersByType returns order counts keyed by (type, status) via one raw
// aggregate query, for the analytics layer.
func (s *Store) CountOrdersByType(ctx context.Context) (map[string]int64, error) {
	rows := []struct {
		OrderType   string
		OrderStatus string
		N           int64
	}{}
	err := s.db.WithContext(ctx).
		Raw("SELECT order_type, order_status, COUNT(*) AS n FROM order_executions GROUP BY order_type, order_status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(rows))
	for _, r := range rows {
		out[r.OrderType+"/"+r.OrderStatus] = r.N
	}
	return out, nil
}
