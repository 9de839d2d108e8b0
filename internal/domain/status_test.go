package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanTransition(t *testing.T) {
	assert.True(t, CanTransition(TradeOrdered, TradePosition))
	assert.True(t, CanTransition(TradeOrdered, TradeCancelled))
	assert.True(t, CanTransition(TradePosition, TradeClosed))

	assert.False(t, CanTransition(TradeOrdered, TradeClosed))
	assert.False(t, CanTransition(TradePosition, TradeCancelled))
	assert.False(t, CanTransition(TradeClosed, TradePosition))
	assert.False(t, CanTransition(TradeCancelled, TradeOrdered))
	assert.False(t, CanTransition(TradePosition, TradePosition))
}

func TestTerminal(t *testing.T) {
	assert.False(t, TradeOrdered.Terminal())
	assert.False(t, TradePosition.Terminal())
	assert.True(t, TradeClosed.Terminal())
	assert.True(t, TradeCancelled.Terminal())
}

func TestMapBrokerStatus(t *testing.T) {
	cases := map[string]OrderStatus{
		"new":              OrderPending,
		"accepted":         OrderPending,
		"pending_new":      OrderPending,
		"filled":           OrderFilled,
		"partially_filled": OrderPartiallyFilled,
		"canceled":         OrderCancelled,
		"rejected":         OrderCancelled,
		"expired":          OrderCancelled,
		"FILLED":           OrderFilled,
		" done_for_day ":   OrderStatus("done_for_day"),
	}
	for raw, want := range cases {
		assert.Equal(t, want, MapBrokerStatus(raw), "raw=%q", raw)
	}
}

func TestProtective(t *testing.T) {
	assert.False(t, OrderEntry.Protective())
	assert.True(t, OrderStopLoss.Protective())
	assert.True(t, OrderTakeProfit.Protective())
}
