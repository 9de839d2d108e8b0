// Package executor turns approved analysis decisions into broker orders.
// It runs once per schedule tick, oldest decision first, and a failure on one
// decision never stops the rest. The broker call always happens before the
// local write: a crash in between leaves the decision unexecuted and the next
// run repairs state by re-querying the broker.
package executor

import (
	"context"
	"fmt"
	"strings"
	"time"

	"tradeflow/internal/broker"
	"tradeflow/internal/decision"
	"tradeflow/internal/domain"
	"tradeflow/internal/logger"
	"tradeflow/internal/store"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Executor is the decision execution job.
type Executor struct {
	store  *store.Store
	broker broker.Gateway
	nowFn  func() time.Time
}

// New builds an Executor. The broker gateway is injected so tests and paper
// simulation can substitute one.
func New(s *store.Store, g broker.Gateway) *Executor {
	return &Executor{store: s, broker: g, nowFn: time.Now}
}

// SetNow injects a clock for tests.
func (e *Executor) SetNow(fn func() time.Time) { e.nowFn = fn }

// Run processes every eligible decision. It only returns an error when the
// work list itself cannot be fetched; per-decision failures are logged and
// the decision stays unexecuted for the next run.
func (e *Executor) Run(ctx context.Context) error {
	decisions, err := e.store.ListEligibleDecisions(ctx, decision.ExecutableActions)
	if err != nil {
		return fmt.Errorf("executor: listing eligible decisions: %w", err)
	}
	logger.Infof("executor: %d eligible decisions", len(decisions))
	for i := range decisions {
		dec := decisions[i]
		if err := e.processDecision(ctx, &dec); err != nil {
			logger.Errorf("executor: decision %s failed: %v", dec.AnalysisID, err)
		}
	}
	return nil
}

func (e *Executor) processDecision(ctx context.Context, dec *store.AnalysisDecision) error {
	payload, err := decision.Parse(dec.Payload)
	if err != nil {
		// malformed payload: skip and leave unexecuted so a corrected
		// upstream record is picked up next run
		logger.Warnf("executor: decision %s payload rejected: %v", dec.AnalysisID, err)
		return nil
	}
	logger.Infof("executor: processing decision %s action=%s ticker=%s", dec.AnalysisID, payload.PrimaryAction, dec.Ticker)

	switch payload.PrimaryAction {
	case decision.ActionNewTrade:
		return e.handleNewTrade(ctx, dec, payload.NewTrade)
	case decision.ActionCancel:
		return e.handleCancel(ctx, dec)
	case decision.ActionAmend:
		return e.handleAmend(ctx, dec, payload.NewTrade)
	default:
		logger.Warnf("executor: decision %s has unknown primary_action %q, skipping", dec.AnalysisID, payload.PrimaryAction)
		return nil
	}
}

func (e *Executor) handleNewTrade(ctx context.Context, dec *store.AnalysisDecision, nt *decision.NewTrade) error {
	if nt == nil {
		logger.Warnf("executor: decision %s has no new_trade block, skipping", dec.AnalysisID)
		return nil
	}
	// validation guard, not an error path: the decision stays unexecuted
	if !nt.Qty.IsPositive() || !nt.LimitPrice.IsPositive() || !nt.StopPrice.IsPositive() {
		logger.Warnf("executor: decision %s missing required fields qty=%s limit=%s stop=%s, skipping",
			dec.AnalysisID, nt.Qty, nt.LimitPrice, nt.StopPrice)
		return nil
	}
	symbol := normalizeSymbol(dec.Ticker)

	order, err := e.broker.SubmitLimitOrder(ctx, broker.LimitOrderRequest{
		Symbol:        symbol,
		Qty:           nt.Qty,
		Side:          nt.Side,
		TimeInForce:   nt.TimeInForce,
		LimitPrice:    nt.LimitPrice,
		ClientOrderID: uuid.NewString(),
	})
	if err != nil {
		return fmt.Errorf("submitting entry order for %s: %w", symbol, err)
	}
	logger.Infof("executor: entry order %s submitted for %s qty=%s limit=%s", order.ID, symbol, nt.Qty, nt.LimitPrice)

	trade := &store.TradeJournal{
		TradeID:           newTradeID(symbol, e.nowFn()),
		Symbol:            symbol,
		Strategy:          nt.Strategy,
		Pattern:           nt.Pattern,
		Status:            domain.TradeOrdered,
		InitialAnalysisID: dec.AnalysisID,
		PlannedEntry:      nt.LimitPrice,
		PlannedStopLoss:   nt.StopPrice,
		PlannedQty:        nt.Qty,
	}
	if nt.PlansTakeProfit() {
		trade.PlannedTakeProfit = decimal.NullDecimal{Decimal: nt.TakeProfitPrice, Valid: true}
	}
	if err := e.store.CreateTrade(ctx, trade); err != nil {
		return fmt.Errorf("creating trade journal entry: %w", err)
	}

	rec := &store.OrderExecution{
		TradeJournalID:     trade.ID,
		AnalysisDecisionID: dec.AnalysisID,
		BrokerOrderID:      order.ID,
		ClientOrderID:      order.ClientOrderID,
		OrderType:          domain.OrderEntry,
		Side:               nt.Side,
		Status:             domain.OrderPending,
		TimeInForce:        nt.TimeInForce,
		Qty:                nt.Qty,
		LimitPrice:         decimal.NullDecimal{Decimal: nt.LimitPrice, Valid: true},
	}
	if err := e.store.CreateOrder(ctx, rec); err != nil {
		return fmt.Errorf("creating order record for %s: %w", order.ID, err)
	}

	applied, err := e.store.MarkDecisionExecuted(ctx, dec.ID, order.ID, &trade.ID)
	if err != nil {
		return fmt.Errorf("marking decision %s executed: %w", dec.AnalysisID, err)
	}
	if !applied {
		logger.Warnf("executor: decision %s was already marked executed", dec.AnalysisID)
	}
	logger.Infof("executor: decision %s executed, trade=%s order=%s", dec.AnalysisID, trade.TradeID, order.ID)
	return nil
}

func (e *Executor) handleCancel(ctx context.Context, dec *store.AnalysisDecision) error {
	if dec.BrokerOrderID == "" {
		// nothing to cancel; mark executed anyway to stop reprocessing
		logger.Warnf("executor: decision %s has no order to cancel", dec.AnalysisID)
		_, err := e.store.MarkDecisionExecuted(ctx, dec.ID, "", nil)
		return err
	}
	if err := e.cancelExisting(ctx, dec); err != nil {
		return err
	}
	_, err := e.store.MarkDecisionExecuted(ctx, dec.ID, "", nil)
	if err != nil {
		return fmt.Errorf("marking cancel decision %s executed: %w", dec.AnalysisID, err)
	}
	logger.Infof("executor: decision %s executed, order %s cancelled", dec.AnalysisID, dec.BrokerOrderID)
	return nil
}

// handleAmend cancels the referenced order and places a fresh trade from the
// same payload. The cancelled trade keeps its history; a new journal entry is
// created rather than rewriting the old one.
func (e *Executor) handleAmend(ctx context.Context, dec *store.AnalysisDecision, nt *decision.NewTrade) error {
	if dec.BrokerOrderID != "" {
		if err := e.cancelExisting(ctx, dec); err != nil {
			return err
		}
	}
	return e.handleNewTrade(ctx, dec, nt)
}

// cancelExisting cancels the decision's back-referenced order at the broker
// and applies the local follow-up: order marked cancelled, parent trade
// ORDERED->CANCELLED. Broker first, store second.
func (e *Executor) cancelExisting(ctx context.Context, dec *store.AnalysisDecision) error {
	if err := e.broker.CancelOrderByID(ctx, dec.BrokerOrderID); err != nil {
		return fmt.Errorf("cancelling order %s: %w", dec.BrokerOrderID, err)
	}
	if err := e.store.MarkOrderCancelled(ctx, dec.BrokerOrderID); err != nil {
		return fmt.Errorf("marking order %s cancelled: %w", dec.BrokerOrderID, err)
	}
	if dec.TradeJournalID != nil {
		now := e.nowFn()
		applied, err := e.store.TransitionTrade(ctx, *dec.TradeJournalID, domain.TradeOrdered, domain.TradeCancelled, map[string]any{
			"exit_date":   now,
			"exit_reason": domain.ExitCancelled,
		})
		if err != nil {
			return fmt.Errorf("cancelling trade %d: %w", *dec.TradeJournalID, err)
		}
		if !applied {
			logger.Infof("executor: trade %d already left ORDERED, cancel transition skipped", *dec.TradeJournalID)
		}
	}
	return nil
}

// normalizeSymbol strips an exchange suffix such as "AAPL:NASDAQ".
func normalizeSymbol(ticker string) string {
	if i := strings.IndexByte(ticker, ':'); i >= 0 {
		return ticker[:i]
	}
	return ticker
}

// newTradeID builds a human-distinguishable trade id with enough entropy to
// avoid collisions within the same second.
func newTradeID(symbol string, now time.Time) string {
	return fmt.Sprintf("%s_%s_%s", symbol, now.Format("20060102150405"), uuid.NewString()[:8])
}
