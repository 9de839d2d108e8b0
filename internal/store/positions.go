package store

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// CreatePosition inserts the open snapshot for a trade. The unique index on
// trade_journal_id enforces the 1:1 invariant with a POSITION trade.
func (s *Store) CreatePosition(ctx context.Context, p *PositionTracking) error {
	return s.db.WithContext(ctx).Create(p).Error
}

// GetPositionByTradeID returns the position for a trade, or nil.
func (s *Store) GetPositionByTradeID(ctx context.Context, tradeJournalID uint) (*PositionTracking, error) {
	var p PositionTracking
	err := s.db.WithContext(ctx).Where("trade_journal_id = ?", tradeJournalID).First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// ListPositionsOrdered returns all tracked positions, symbol order.
func (s *Store) ListPositionsOrdered(ctx context.Context) ([]PositionTracking, error) {
	var out []PositionTracking
	err := s.db.WithContext(ctx).Order("symbol ASC").Find(&out).Error
	return out, err
}

// UpdatePositionValuation persists the valuation pass output for one
// position.
func (s *Store) UpdatePositionValuation(ctx context.Context, id uint, mark, marketValue, unrealizedPnL decimal.Decimal) error {
	return s.db.WithContext(ctx).
		Model(&PositionTracking{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"current_price":  mark,
			"market_value":   marketValue,
			"unrealized_pnl": unrealizedPnL,
			"updated_at":     time.Now(),
		}).Error
}

// SetPositionProtectiveOrders back-references the live protective order ids
// onto the position.
func (s *Store) SetPositionProtectiveOrders(ctx context.Context, tradeJournalID uint, stopLossOrderID, takeProfitOrderID string) error {
	updates := map[string]any{"updated_at": time.Now()}
	if stopLossOrderID != "" {
		updates["stop_loss_order_id"] = stopLossOrderID
	}
	if takeProfitOrderID != "" {
		updates["take_profit_order_id"] = takeProfitOrderID
	}
	return s.db.WithContext(ctx).
		Model(&PositionTracking{}).
		Where("trade_journal_id = ?", tradeJournalID).
		Updates(updates).Error
}

// DeletePositionByTradeID tears down the open snapshot when a trade closes.
// Deleting an already-deleted position is a no-op.
func (s *Store) DeletePositionByTradeID(ctx context.Context, tradeJournalID uint) error {
	return s.db.WithContext(ctx).
		Where("trade_journal_id = ?", tradeJournalID).
		Delete(&PositionTracking{}).Error
}

// CountPositions returns the number of tracked positions.
func (s *Store) CountPositions(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&PositionTracking{}).Count(&n).Error
	return n, err
}

// SumUnrealizedPnL totals unrealized P&L across open positions.
func (s *Store) SumUnrealizedPnL(ctx context.Context) (decimal.Decimal, error) {
	var row struct{ Total decimal.NullDecimal }
	err := s.db.WithContext(ctx).
		Raw("SELECT COALESCE(SUM(unrealized_pnl), 0) AS total FROM position_tracking").
		Scan(&row).Error
	if err != nil {
		return decimal.Zero, err
	}
	if !row.Total.Valid {
		return decimal.Zero, nil
	}
	return row.Total.Decimal, nil
}

// ListPositions serves the read API, paginated.
func (s *Store) ListPositions(ctx context.Context, page Page) ([]PositionTracking, int64, error) {
	var total int64
	if err := s.db.WithContext(ctx).Model(&PositionTracking{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var out []PositionTracking
	err := s.db.WithContext(ctx).Order("symbol ASC").Scopes(paginate(page)).Find(&out).Error
	return out, total, err
}
