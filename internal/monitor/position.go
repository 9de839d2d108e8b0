package monitor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"tradeflow/internal/broker"
	"tradeflow/internal/domain"
	"tradeflow/internal/logger"
	"tradeflow/internal/store"

	"github.com/shopspring/decimal"
)

// PositionReconciler revalues open position snapshots from live quotes and
// reconciles them against the broker's position list. A symbol the broker no
// longer holds means an exit happened outside the order poll; the trade is
// closed from the best evidence available.
type PositionReconciler struct {
	store  *store.Store
	broker broker.Gateway
	nowFn  func() time.Time
}

// NewPositionReconciler builds the position sync job.
func NewPositionReconciler(s *store.Store, g broker.Gateway) *PositionReconciler {
	return &PositionReconciler{store: s, broker: g, nowFn: time.Now}
}

// SetNow injects a clock for tests.
func (r *PositionReconciler) SetNow(fn func() time.Time) { r.nowFn = fn }

// Run revalues every tracked position, then closes the ones the broker no
// longer reports. Per-position failures are contained.
func (r *PositionReconciler) Run(ctx context.Context) error {
	positions, err := r.store.ListPositionsOrdered(ctx)
	if err != nil {
		return fmt.Errorf("position sync: listing positions: %w", err)
	}
	if len(positions) == 0 {
		logger.Debugf("position sync: nothing to do")
		return nil
	}
	logger.Infof("position sync: %d positions tracked", len(positions))

	for i := range positions {
		if err := r.revalue(ctx, &positions[i]); err != nil {
			logger.Errorf("position sync: revaluing %s: %v", positions[i].Symbol, err)
		}
	}

	held, err := r.broker.ListOpenPositions(ctx)
	if err != nil {
		// leave reconciliation for the next tick rather than closing trades
		// off a failed listing
		return fmt.Errorf("position sync: listing broker positions: %w", err)
	}
	heldSymbols := make(map[string]bool, len(held))
	for _, p := range held {
		heldSymbols[p.Symbol] = true
	}

	for i := range positions {
		pos := &positions[i]
		if heldSymbols[pos.Symbol] {
			continue
		}
		if err := r.closeDeparted(ctx, pos); err != nil {
			logger.Errorf("position sync: closing departed %s: %v", pos.Symbol, err)
		}
	}
	return nil
}

// revalue refreshes mark, market value and unrealized P&L from the latest
// quote. An unusable quote leaves the previous valuation in place.
func (r *PositionReconciler) revalue(ctx context.Context, pos *store.PositionTracking) error {
	quote, err := r.broker.GetLatestQuote(ctx, pos.Symbol)
	if err != nil {
		return fmt.Errorf("quoting %s: %w", pos.Symbol, err)
	}
	mark, ok := quote.MidOrAsk()
	if !ok {
		logger.Warnf("position sync: no usable quote for %s, keeping last valuation", pos.Symbol)
		return nil
	}
	marketValue := mark.Mul(pos.Qty)
	unrealized := mark.Sub(pos.AvgEntryPrice).Mul(pos.Qty)
	if err := r.store.UpdatePositionValuation(ctx, pos.ID, mark, marketValue, unrealized); err != nil {
		return fmt.Errorf("writing valuation for %s: %w", pos.Symbol, err)
	}
	// keep the in-memory copy current for a possible close in the same run
	pos.CurrentPrice = mark
	pos.UnrealizedPnL = unrealized
	logger.Debugf("position sync: %s mark=%s upnl=%s", pos.Symbol, mark, unrealized)
	return nil
}

// closeDeparted closes a trade whose symbol the broker no longer holds. A
// filled protective order is the preferred evidence for exit price and
// reason; without one the last mark is used and the exit recorded as manual.
func (r *PositionReconciler) closeDeparted(ctx context.Context, pos *store.PositionTracking) error {
	exitPrice := pos.CurrentPrice
	exitPnL := pos.UnrealizedPnL
	reason := domain.ExitManual
	exitAt := r.nowFn()

	filled, err := r.store.LatestFilledProtectiveOrder(ctx, pos.TradeJournalID)
	if err != nil {
		return fmt.Errorf("checking protective fills for trade %d: %w", pos.TradeJournalID, err)
	}
	if filled != nil && filled.FilledAvgPrice.Valid {
		exitPrice = filled.FilledAvgPrice.Decimal
		exitPnL = exitPrice.Sub(pos.AvgEntryPrice).Mul(pos.Qty)
		if filled.OrderType == domain.OrderTakeProfit {
			reason = domain.ExitTargetHit
		} else {
			reason = domain.ExitStoppedOut
		}
		if filled.FilledAt != nil {
			exitAt = *filled.FilledAt
		}
	}

	applied, err := r.store.TransitionTrade(ctx, pos.TradeJournalID, domain.TradePosition, domain.TradeClosed, map[string]any{
		"exit_date":   exitAt,
		"exit_price":  decimal.NullDecimal{Decimal: exitPrice, Valid: true},
		"actual_pnl":  decimal.NullDecimal{Decimal: exitPnL, Valid: true},
		"exit_reason": reason,
	})
	if err != nil {
		return fmt.Errorf("closing trade %d: %w", pos.TradeJournalID, err)
	}
	if !applied {
		logger.Infof("position sync: trade %d already closed, removing stale snapshot", pos.TradeJournalID)
	} else {
		logger.Infof("position sync: %s gone at broker, trade %d closed via %s exit=%s pnl=%s",
			pos.Symbol, pos.TradeJournalID, reason, exitPrice, exitPnL)
	}

	if err := r.store.DeletePositionByTradeID(ctx, pos.TradeJournalID); err != nil {
		return fmt.Errorf("removing position for trade %d: %w", pos.TradeJournalID, err)
	}

	r.cancelLeftovers(ctx, pos.TradeJournalID)
	return nil
}

// cancelLeftovers cancels any protective order still live for a trade that
// just closed. Errors are swallowed; the orders are harmless once the
// position is gone and most brokers reject or expire them anyway.
func (r *PositionReconciler) cancelLeftovers(ctx context.Context, tradeJournalID uint) {
	leftovers, err := r.store.ListOpenProtectiveOrders(ctx, tradeJournalID, "")
	if err != nil {
		logger.Errorf("position sync: listing leftovers for trade %d: %v", tradeJournalID, err)
		return
	}
	for _, o := range leftovers {
		if err := r.broker.CancelOrderByID(ctx, o.BrokerOrderID); err != nil && !errors.Is(err, broker.ErrOrderNotFound) {
			logger.Warnf("position sync: cancelling leftover %s: %v", o.BrokerOrderID, err)
			continue
		}
		if err := r.store.MarkOrderCancelled(ctx, o.BrokerOrderID); err != nil {
			logger.Errorf("position sync: marking leftover %s cancelled: %v", o.BrokerOrderID, err)
		}
	}
}
