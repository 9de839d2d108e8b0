package monitor

import (
	"context"
	"testing"
	"time"

	"tradeflow/internal/domain"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRevalueFromQuote(t *testing.T) {
	ctx := context.Background()
	s, sim := newFixture(t)
	r := NewPositionReconciler(s, sim)
	trade, _ := seedPositionTrade(t, s, sim, "AAPL", domain.OrderStopLoss, d("145.50"))

	sim.SetPosition("AAPL", d("10"), d("150.25"))
	sim.SetQuote("AAPL", d("154.90"), d("155.10"))
	require.NoError(t, r.Run(ctx))

	pos, err := s.GetPositionByTradeID(ctx, trade.ID)
	require.NoError(t, err)
	require.NotNil(t, pos)
	assert.True(t, pos.CurrentPrice.Equal(d("155")), "mid of 154.90/155.10")
	assert.True(t, pos.MarketValue.Equal(d("1550")))
	assert.True(t, pos.UnrealizedPnL.Equal(d("47.50")))

	got, err := s.GetTrade(ctx, trade.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TradePosition, got.Status)
}

func TestRevalueAskOnlyQuote(t *testing.T) {
	ctx := context.Background()
	s, sim := newFixture(t)
	r := NewPositionReconciler(s, sim)
	trade, _ := seedPositionTrade(t, s, sim, "AAPL", domain.OrderStopLoss, d("145.50"))

	sim.SetPosition("AAPL", d("10"), d("150.25"))
	sim.SetQuote("AAPL", decimal.Zero, d("152"))
	require.NoError(t, r.Run(ctx))

	pos, err := s.GetPositionByTradeID(ctx, trade.ID)
	require.NoError(t, err)
	assert.True(t, pos.CurrentPrice.Equal(d("152")))
}

func TestUnusableQuoteKeepsLastValuation(t *testing.T) {
	ctx := context.Background()
	s, sim := newFixture(t)
	r := NewPositionReconciler(s, sim)
	trade, _ := seedPositionTrade(t, s, sim, "AAPL", domain.OrderStopLoss, d("145.50"))

	sim.SetPosition("AAPL", d("10"), d("150.25"))
	sim.SetQuote("AAPL", decimal.Zero, decimal.Zero)
	require.NoError(t, r.Run(ctx))

	pos, err := s.GetPositionByTradeID(ctx, trade.ID)
	require.NoError(t, err)
	require.NotNil(t, pos)
	assert.True(t, pos.CurrentPrice.Equal(d("150.25")))
}

func TestDepartedPositionPrefersProtectiveFill(t *testing.T) {
	ctx := context.Background()
	s, sim := newFixture(t)
	r := NewPositionReconciler(s, sim)
	trade, slID := seedPositionTrade(t, s, sim, "AAPL", domain.OrderStopLoss, d("145.50"))

	// the stop filled between polls and the broker already dropped the
	// position; the order poll never saw the fill
	filledAt := time.Date(2025, 6, 2, 15, 30, 0, 0, time.UTC)
	rec, err := s.GetOrderByBrokerID(ctx, slID)
	require.NoError(t, err)
	require.NoError(t, s.UpdateOrderSync(ctx, rec.ID, domain.OrderFilled, nd("10"), nd("147.45"), &filledAt))
	sim.SetQuote("AAPL", d("147.40"), d("147.50"))

	require.NoError(t, r.Run(ctx))

	got, err := s.GetTrade(ctx, trade.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TradeClosed, got.Status)
	assert.Equal(t, domain.ExitStoppedOut, got.ExitReason) // not manual: the fill is the evidence
	assert.True(t, got.ExitPrice.Decimal.Equal(d("147.45")))
	assert.True(t, got.ActualPnL.Decimal.Equal(d("-28.00")))
	require.NotNil(t, got.ExitDate)
	assert.Equal(t, filledAt.Unix(), got.ExitDate.Unix())

	pos, err := s.GetPositionByTradeID(ctx, trade.ID)
	require.NoError(t, err)
	assert.Nil(t, pos)
}

func TestDepartedPositionFallsBackToManualExit(t *testing.T) {
	ctx := context.Background()
	s, sim := newFixture(t)
	r := NewPositionReconciler(s, sim)
	trade, slID := seedPositionTrade(t, s, sim, "AAPL", domain.OrderStopLoss, d("145.50"))

	// position liquidated by hand in the broker UI; the stop is still resting
	sim.SetQuote("AAPL", d("151.95"), d("152.05"))

	require.NoError(t, r.Run(ctx))

	got, err := s.GetTrade(ctx, trade.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TradeClosed, got.Status)
	assert.Equal(t, domain.ExitManual, got.ExitReason)
	assert.True(t, got.ExitPrice.Decimal.Equal(d("152")), "last mark")
	assert.True(t, got.ActualPnL.Decimal.Equal(d("17.50")))

	// the leftover stop gets cancelled both sides
	assert.Equal(t, "canceled", sim.OrderStatus(slID))
	slRec, err := s.GetOrderByBrokerID(ctx, slID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderCancelled, slRec.Status)

	pos, err := s.GetPositionByTradeID(ctx, trade.ID)
	require.NoError(t, err)
	assert.Nil(t, pos)
}

func TestQuoteOutageLeavesPositionOpen(t *testing.T) {
	ctx := context.Background()
	s, sim := newFixture(t)
	r := NewPositionReconciler(s, sim)
	trade, _ := seedPositionTrade(t, s, sim, "AAPL", domain.OrderStopLoss, d("145.50"))

	// quote feed down and no broker position either; revalue fails per
	// position but the run itself continues to reconciliation
	sim.FailQuote = true
	sim.SetPosition("AAPL", d("10"), d("150.25"))
	require.NoError(t, r.Run(ctx))

	got, err := s.GetTrade(ctx, trade.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TradePosition, got.Status)
	pos, err := s.GetPositionByTradeID(ctx, trade.ID)
	require.NoError(t, err)
	require.NotNil(t, pos)
	assert.True(t, pos.CurrentPrice.Equal(d("150.25")))
}
