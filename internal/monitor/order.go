// Package monitor holds the two reconciliation jobs that keep the local
// lifecycle state aligned with the broker: OrderReconciler polls order fills
// and drives trade transitions, PositionReconciler revalues open positions
// and repairs exits the order poll missed.
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

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OrderReconciler polls non-terminal orders against the broker and applies
// the fill-driven lifecycle: entry fill opens a position and places the
// protective orders, protective fill closes the trade and cancels the
// sibling.
type OrderReconciler struct {
	store  *store.Store
	broker broker.Gateway
	nowFn  func() time.Time
}

// NewOrderReconciler builds the order sync job.
func NewOrderReconciler(s *store.Store, g broker.Gateway) *OrderReconciler {
	return &OrderReconciler{store: s, broker: g, nowFn: time.Now}
}

// SetNow injects a clock for tests.
func (r *OrderReconciler) SetNow(fn func() time.Time) { r.nowFn = fn }

// Run syncs every order that may still move. One order failing never stops
// the rest; its sync is retried on the next tick.
func (r *OrderReconciler) Run(ctx context.Context) error {
	orders, err := r.store.ListOrdersToSync(ctx)
	if err != nil {
		return fmt.Errorf("order sync: listing orders: %w", err)
	}
	logger.Infof("order sync: %d orders to check", len(orders))
	for i := range orders {
		if err := r.syncOrder(ctx, &orders[i]); err != nil {
			logger.Errorf("order sync: order %s failed: %v", orders[i].BrokerOrderID, err)
		}
	}
	return nil
}

func (r *OrderReconciler) syncOrder(ctx context.Context, rec *store.OrderExecution) error {
	remote, err := r.broker.GetOrderByID(ctx, rec.BrokerOrderID)
	if errors.Is(err, broker.ErrOrderNotFound) {
		logger.Warnf("order sync: order %s unknown at broker, skipping", rec.BrokerOrderID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("querying order: %w", err)
	}

	status := domain.MapBrokerStatus(remote.Status)
	filledQty := decimal.NullDecimal{Decimal: remote.FilledQty, Valid: remote.FilledQty.IsPositive()}
	filledAvg := decimal.NullDecimal{Decimal: remote.FilledAvgPrice, Valid: remote.FilledAvgPrice.IsPositive()}
	if err := r.store.UpdateOrderSync(ctx, rec.ID, status, filledQty, filledAvg, remote.FilledAt); err != nil {
		return fmt.Errorf("writing sync state: %w", err)
	}

	switch {
	case status == domain.OrderFilled && rec.OrderType == domain.OrderEntry:
		return r.handleEntryFilled(ctx, rec, remote)
	case status == domain.OrderFilled && rec.OrderType.Protective():
		return r.handleExitFilled(ctx, rec, remote)
	case status == domain.OrderCancelled && rec.OrderType == domain.OrderEntry:
		return r.handleEntryCancelled(ctx, rec)
	}
	return nil
}

// handleEntryFilled transitions the trade ORDERED->POSITION, opens the
// position snapshot and places the protective orders. The transition is the
// gate: on a replayed fill it reports not-applied and everything downstream
// is skipped, so no duplicate protective orders are submitted.
func (r *OrderReconciler) handleEntryFilled(ctx context.Context, rec *store.OrderExecution, remote *broker.Order) error {
	fillPrice := remote.FilledAvgPrice
	fillQty := remote.FilledQty
	if !fillPrice.IsPositive() || !fillQty.IsPositive() {
		logger.Warnf("order sync: entry %s reported filled without fill data, skipping", rec.BrokerOrderID)
		return nil
	}

	applied, err := r.store.TransitionTrade(ctx, rec.TradeJournalID, domain.TradeOrdered, domain.TradePosition, map[string]any{
		"actual_entry": decimal.NullDecimal{Decimal: fillPrice, Valid: true},
		"actual_qty":   decimal.NullDecimal{Decimal: fillQty, Valid: true},
	})
	if err != nil {
		return fmt.Errorf("opening trade %d: %w", rec.TradeJournalID, err)
	}
	if !applied {
		logger.Infof("order sync: trade %d already left ORDERED, entry fill replay ignored", rec.TradeJournalID)
		return nil
	}
	logger.Infof("order sync: entry %s filled, trade %d now holds %s @ %s", rec.BrokerOrderID, rec.TradeJournalID, fillQty, fillPrice)

	trade, err := r.store.GetTrade(ctx, rec.TradeJournalID)
	if err != nil {
		return fmt.Errorf("loading trade %d: %w", rec.TradeJournalID, err)
	}

	cost := fillPrice.Mul(fillQty)
	if err := r.store.CreatePosition(ctx, &store.PositionTracking{
		TradeJournalID: trade.ID,
		Symbol:         trade.Symbol,
		Qty:            fillQty,
		AvgEntryPrice:  fillPrice,
		CurrentPrice:   fillPrice,
		MarketValue:    cost,
		CostBasis:      cost,
	}); err != nil {
		return fmt.Errorf("creating position for trade %d: %w", trade.ID, err)
	}

	return r.placeProtectiveOrders(ctx, trade, fillQty)
}

// placeProtectiveOrders submits the stop-loss (always) and the take-profit
// (swing trades with a target). A failed submission is logged and retried
// implicitly: the position reconciler falls back to MANUAL_EXIT handling if
// the trade ends without them, and the stop is the one that matters most.
func (r *OrderReconciler) placeProtectiveOrders(ctx context.Context, trade *store.TradeJournal, qty decimal.Decimal) error {
	slOrder, err := r.broker.SubmitStopOrder(ctx, broker.StopOrderRequest{
		Symbol:        trade.Symbol,
		Qty:           qty,
		Side:          domain.SideSell,
		TimeInForce:   "gtc",
		StopPrice:     trade.PlannedStopLoss,
		ClientOrderID: uuid.NewString(),
	})
	if err != nil {
		return fmt.Errorf("submitting stop-loss for trade %d: %w", trade.ID, err)
	}
	if err := r.store.CreateOrder(ctx, &store.OrderExecution{
		TradeJournalID: trade.ID,
		BrokerOrderID:  slOrder.ID,
		ClientOrderID:  slOrder.ClientOrderID,
		OrderType:      domain.OrderStopLoss,
		Side:           domain.SideSell,
		Status:         domain.OrderPending,
		TimeInForce:    "gtc",
		Qty:            qty,
		StopPrice:      decimal.NullDecimal{Decimal: trade.PlannedStopLoss, Valid: true},
	}); err != nil {
		return fmt.Errorf("recording stop-loss %s: %w", slOrder.ID, err)
	}
	logger.Infof("order sync: stop-loss %s placed for trade %d @ %s", slOrder.ID, trade.ID, trade.PlannedStopLoss)

	tpID := ""
	if trade.PlansTakeProfit() {
		tpOrder, err := r.broker.SubmitLimitOrder(ctx, broker.LimitOrderRequest{
			Symbol:        trade.Symbol,
			Qty:           qty,
			Side:          domain.SideSell,
			TimeInForce:   "gtc",
			LimitPrice:    trade.PlannedTakeProfit.Decimal,
			ClientOrderID: uuid.NewString(),
		})
		if err != nil {
			// the stop is already working; a missing target degrades to a
			// manual exit, not an unprotected position
			logger.Errorf("order sync: take-profit submission failed for trade %d: %v", trade.ID, err)
		} else {
			if err := r.store.CreateOrder(ctx, &store.OrderExecution{
				TradeJournalID: trade.ID,
				BrokerOrderID:  tpOrder.ID,
				ClientOrderID:  tpOrder.ClientOrderID,
				OrderType:      domain.OrderTakeProfit,
				Side:           domain.SideSell,
				Status:         domain.OrderPending,
				TimeInForce:    "gtc",
				Qty:            qty,
				LimitPrice:     decimal.NullDecimal{Decimal: trade.PlannedTakeProfit.Decimal, Valid: true},
			}); err != nil {
				return fmt.Errorf("recording take-profit %s: %w", tpOrder.ID, err)
			}
			tpID = tpOrder.ID
			logger.Infof("order sync: take-profit %s placed for trade %d @ %s", tpOrder.ID, trade.ID, trade.PlannedTakeProfit.Decimal)
		}
	}

	if err := r.store.SetPositionProtectiveOrders(ctx, trade.ID, slOrder.ID, tpID); err != nil {
		return fmt.Errorf("linking protective orders for trade %d: %w", trade.ID, err)
	}
	return nil
}

// handleExitFilled closes the trade off a protective fill. Realized P&L is
// (exit - actual entry) * filled qty; the sibling protective order is
// cancelled best-effort.
func (r *OrderReconciler) handleExitFilled(ctx context.Context, rec *store.OrderExecution, remote *broker.Order) error {
	trade, err := r.store.GetTrade(ctx, rec.TradeJournalID)
	if err != nil {
		return fmt.Errorf("loading trade %d: %w", rec.TradeJournalID, err)
	}
	if !trade.ActualEntry.Valid {
		return fmt.Errorf("trade %d has a protective fill but no recorded entry", trade.ID)
	}

	exitPrice := remote.FilledAvgPrice
	exitQty := remote.FilledQty
	if !exitQty.IsPositive() {
		exitQty = rec.Qty
	}
	pnl := exitPrice.Sub(trade.ActualEntry.Decimal).Mul(exitQty)

	reason := domain.ExitStoppedOut
	if rec.OrderType == domain.OrderTakeProfit {
		reason = domain.ExitTargetHit
	}
	exitAt := r.nowFn()
	if remote.FilledAt != nil {
		exitAt = *remote.FilledAt
	}

	applied, err := r.store.TransitionTrade(ctx, trade.ID, domain.TradePosition, domain.TradeClosed, map[string]any{
		"exit_date":   exitAt,
		"exit_price":  decimal.NullDecimal{Decimal: exitPrice, Valid: true},
		"actual_pnl":  decimal.NullDecimal{Decimal: pnl, Valid: true},
		"exit_reason": reason,
	})
	if err != nil {
		return fmt.Errorf("closing trade %d: %w", trade.ID, err)
	}
	if !applied {
		logger.Infof("order sync: trade %d already closed, exit fill replay ignored", trade.ID)
		return nil
	}
	logger.Infof("order sync: trade %d closed via %s, exit=%s pnl=%s", trade.ID, reason, exitPrice, pnl)

	if err := r.store.DeletePositionByTradeID(ctx, trade.ID); err != nil {
		return fmt.Errorf("removing position for trade %d: %w", trade.ID, err)
	}

	r.cancelSiblings(ctx, trade.ID, rec.BrokerOrderID)
	return nil
}

// cancelSiblings cancels the other protective order(s) of a closed trade.
// Failures are logged only: the trade is already closed locally and the
// position reconciler cleans up leftovers.
func (r *OrderReconciler) cancelSiblings(ctx context.Context, tradeJournalID uint, excludeBrokerOrderID string) {
	siblings, err := r.store.ListOpenProtectiveOrders(ctx, tradeJournalID, excludeBrokerOrderID)
	if err != nil {
		logger.Errorf("order sync: listing siblings for trade %d: %v", tradeJournalID, err)
		return
	}
	for _, sib := range siblings {
		if err := r.broker.CancelOrderByID(ctx, sib.BrokerOrderID); err != nil && !errors.Is(err, broker.ErrOrderNotFound) {
			logger.Errorf("order sync: cancelling sibling %s: %v", sib.BrokerOrderID, err)
			continue
		}
		if err := r.store.MarkOrderCancelled(ctx, sib.BrokerOrderID); err != nil {
			logger.Errorf("order sync: marking sibling %s cancelled: %v", sib.BrokerOrderID, err)
		}
	}
}

// handleEntryCancelled finishes a trade whose entry never filled. The gated
// transition keeps a stale cancel from clobbering a trade that progressed.
func (r *OrderReconciler) handleEntryCancelled(ctx context.Context, rec *store.OrderExecution) error {
	applied, err := r.store.TransitionTrade(ctx, rec.TradeJournalID, domain.TradeOrdered, domain.TradeCancelled, map[string]any{
		"exit_date":   r.nowFn(),
		"exit_reason": domain.ExitCancelled,
	})
	if err != nil {
		return fmt.Errorf("cancelling trade %d: %w", rec.TradeJournalID, err)
	}
	if applied {
		logger.Infof("order sync: entry %s cancelled, trade %d marked CANCELLED", rec.BrokerOrderID, rec.TradeJournalID)
	}
	return nil
}
