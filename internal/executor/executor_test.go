package executor

import (
	"context"
	"testing"
	"time"

	"tradeflow/internal/broker"
	"tradeflow/internal/domain"
	"tradeflow/internal/store"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

func newFixture(t *testing.T) (*store.Store, *broker.Simulator, *Executor) {
	t.Helper()
	s, err := store.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	sim := broker.NewSimulator()
	return s, sim, New(s, sim)
}

func seedDecision(t *testing.T, s *store.Store, analysisID, ticker, payload string, at time.Time) *store.AnalysisDecision {
	t.Helper()
	dec := &store.AnalysisDecision{
		AnalysisID: analysisID,
		Ticker:     ticker,
		AnalyzedAt: at,
		Payload:    datatypes.JSON([]byte(payload)),
		Approved:   true,
	}
	require.NoError(t, s.CreateDecision(context.Background(), dec))
	return dec
}

const newTradePayload = `{
	"primary_action": "NEW_TRADE",
	"new_trade": {
		"side": "buy", "qty": 10, "limit_price": 150.25,
		"stop_loss": {"stop_price": 145.50},
		"take_profit": {"limit_price": 160.10},
		"strategy": "SWING", "time_in_force": "gtc"
	}
}`

func TestNewTradePlacesOrderAndRecords(t *testing.T) {
	ctx := context.Background()
	s, sim, ex := newFixture(t)
	dec := seedDecision(t, s, "a1", "AAPL:NASDAQ", newTradePayload, time.Now())

	require.NoError(t, ex.Run(ctx))

	got, err := s.GetDecision(ctx, dec.ID)
	require.NoError(t, err)
	assert.True(t, got.Executed)
	assert.NotEmpty(t, got.BrokerOrderID)
	require.NotNil(t, got.TradeJournalID)

	trade, err := s.GetTrade(ctx, *got.TradeJournalID)
	require.NoError(t, err)
	assert.Equal(t, "AAPL", trade.Symbol) // exchange suffix stripped
	assert.Equal(t, domain.TradeOrdered, trade.Status)
	assert.True(t, trade.PlannedEntry.Equal(d("150.25")))
	assert.True(t, trade.PlannedStopLoss.Equal(d("145.50")))
	assert.True(t, trade.PlannedTakeProfit.Decimal.Equal(d("160.10")))
	assert.True(t, trade.PlannedQty.Equal(d("10")))

	orders, err := s.ListOrdersByTrade(ctx, trade.ID)
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, domain.OrderEntry, orders[0].OrderType)
	assert.Equal(t, domain.OrderPending, orders[0].Status)
	assert.Equal(t, got.BrokerOrderID, orders[0].BrokerOrderID)
	assert.Equal(t, 1, sim.SubmitCalls)
}

func TestAtMostOnceExecution(t *testing.T) {
	ctx := context.Background()
	s, sim, ex := newFixture(t)
	seedDecision(t, s, "a1", "AAPL", newTradePayload, time.Now())

	require.NoError(t, ex.Run(ctx))
	require.NoError(t, ex.Run(ctx))

	// no duplicate broker order, no duplicate trade
	assert.Equal(t, 1, sim.SubmitCalls)
	trades, total, err := s.ListTrades(ctx, store.TradeFilter{}, store.Page{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Len(t, trades, 1)
}

func TestPartialFailureIsolation(t *testing.T) {
	ctx := context.Background()
	s, sim, ex := newFixture(t)
	base := time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)

	first := seedDecision(t, s, "a1", "AAPL", newTradePayload, base)
	// second is missing qty/limit/stop
	second := seedDecision(t, s, "a2", "MSFT", `{"primary_action":"NEW_TRADE","new_trade":{"side":"buy"}}`, base.Add(time.Minute))
	third := seedDecision(t, s, "a3", "NFLX", newTradePayload, base.Add(2*time.Minute))

	require.NoError(t, ex.Run(ctx))

	for _, tc := range []struct {
		id   uint
		want bool
	}{{first.ID, true}, {second.ID, false}, {third.ID, true}} {
		got, err := s.GetDecision(ctx, tc.id)
		require.NoError(t, err)
		assert.Equal(t, tc.want, got.Executed, "decision %d", tc.id)
	}
	assert.Equal(t, 2, sim.SubmitCalls)
}

func TestBrokerFailureLeavesDecisionUnexecuted(t *testing.T) {
	ctx := context.Background()
	s, sim, ex := newFixture(t)
	dec := seedDecision(t, s, "a1", "AAPL", newTradePayload, time.Now())

	sim.FailSubmit = true
	require.NoError(t, ex.Run(ctx))

	got, err := s.GetDecision(ctx, dec.ID)
	require.NoError(t, err)
	assert.False(t, got.Executed)
	_, total, err := s.ListTrades(ctx, store.TradeFilter{}, store.Page{})
	require.NoError(t, err)
	assert.Zero(t, total)

	// broker recovers; next run retries the same decision
	sim.FailSubmit = false
	require.NoError(t, ex.Run(ctx))
	got, err = s.GetDecision(ctx, dec.ID)
	require.NoError(t, err)
	assert.True(t, got.Executed)
}

func TestCancelWithoutReference(t *testing.T) {
	ctx := context.Background()
	s, sim, ex := newFixture(t)
	dec := seedDecision(t, s, "a1", "AAPL", `{"primary_action":"CANCEL"}`, time.Now())

	require.NoError(t, ex.Run(ctx))

	got, err := s.GetDecision(ctx, dec.ID)
	require.NoError(t, err)
	assert.True(t, got.Executed)
	assert.Zero(t, sim.CancelCalls) // no broker call
}

func TestCancelWithReference(t *testing.T) {
	ctx := context.Background()
	s, sim, ex := newFixture(t)

	// place an initial trade first
	first := seedDecision(t, s, "a1", "AAPL", newTradePayload, time.Now())
	require.NoError(t, ex.Run(ctx))
	orig, err := s.GetDecision(ctx, first.ID)
	require.NoError(t, err)

	cancelDec := &store.AnalysisDecision{
		AnalysisID:     "a2",
		Ticker:         "AAPL",
		AnalyzedAt:     time.Now(),
		Payload:        datatypes.JSON([]byte(`{"primary_action":"CANCEL"}`)),
		Approved:       true,
		BrokerOrderID:  orig.BrokerOrderID,
		TradeJournalID: orig.TradeJournalID,
	}
	require.NoError(t, s.CreateDecision(ctx, cancelDec))

	require.NoError(t, ex.Run(ctx))

	got, err := s.GetDecision(ctx, cancelDec.ID)
	require.NoError(t, err)
	assert.True(t, got.Executed)
	assert.Positive(t, sim.CancelCalls)

	trade, err := s.GetTrade(ctx, *orig.TradeJournalID)
	require.NoError(t, err)
	assert.Equal(t, domain.TradeCancelled, trade.Status)
	assert.Equal(t, domain.ExitCancelled, trade.ExitReason)

	order, err := s.GetOrderByBrokerID(ctx, orig.BrokerOrderID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderCancelled, order.Status)
}

func TestAmendCreatesFreshTradePreservingHistory(t *testing.T) {
	ctx := context.Background()
	s, sim, ex := newFixture(t)

	first := seedDecision(t, s, "a1", "AAPL", newTradePayload, time.Now())
	require.NoError(t, ex.Run(ctx))
	orig, err := s.GetDecision(ctx, first.ID)
	require.NoError(t, err)

	amend := &store.AnalysisDecision{
		AnalysisID: "a2",
		Ticker:     "AAPL",
		AnalyzedAt: time.Now(),
		Payload: datatypes.JSON([]byte(`{
			"primary_action": "AMEND",
			"new_trade": {"side": "buy", "qty": 5, "limit_price": 148.00, "stop_loss": 143.00, "strategy": "TREND"}
		}`)),
		Approved:       true,
		BrokerOrderID:  orig.BrokerOrderID,
		TradeJournalID: orig.TradeJournalID,
	}
	require.NoError(t, s.CreateDecision(ctx, amend))

	require.NoError(t, ex.Run(ctx))

	got, err := s.GetDecision(ctx, amend.ID)
	require.NoError(t, err)
	assert.True(t, got.Executed)
	require.NotNil(t, got.TradeJournalID)
	assert.NotEqual(t, *orig.TradeJournalID, *got.TradeJournalID)

	oldTrade, err := s.GetTrade(ctx, *orig.TradeJournalID)
	require.NoError(t, err)
	assert.Equal(t, domain.TradeCancelled, oldTrade.Status) // history preserved

	newTrade, err := s.GetTrade(ctx, *got.TradeJournalID)
	require.NoError(t, err)
	assert.Equal(t, domain.TradeOrdered, newTrade.Status)
	assert.True(t, newTrade.PlannedEntry.Equal(d("148")))
	assert.False(t, newTrade.PlannedTakeProfit.Valid)
	assert.Equal(t, 2, sim.SubmitCalls)
}

func TestMissingNewTradeBlockLeftUnexecuted(t *testing.T) {
	ctx := context.Background()
	s, _, ex := newFixture(t)
	dec := seedDecision(t, s, "a1", "AAPL", `{"primary_action":"NEW_TRADE"}`, time.Now())

	require.NoError(t, ex.Run(ctx))

	got, err := s.GetDecision(ctx, dec.ID)
	require.NoError(t, err)
	assert.False(t, got.Executed) // no new_trade block: skipped, retried later
}
