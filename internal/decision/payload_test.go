package decision

import (
	"testing"

	"tradeflow/internal/domain"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestParseNewTrade(t *testing.T) {
	raw := []byte(`{
		"primary_action": "NEW_TRADE",
		"new_trade": {
			"side": "buy",
			"qty": 10,
			"limit_price": 150.25,
			"stop_loss": {"stop_price": 145.50},
			"take_profit": {"limit_price": 160.10},
			"strategy": "SWING",
			"pattern": "bull flag",
			"time_in_force": "day"
		}
	}`)

	p, err := Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, ActionNewTrade, p.PrimaryAction)
	require.NotNil(t, p.NewTrade)
	nt := p.NewTrade
	assert.Equal(t, domain.SideBuy, nt.Side)
	assert.True(t, nt.Qty.Equal(dec("10")))
	assert.True(t, nt.LimitPrice.Equal(dec("150.25")))
	assert.True(t, nt.StopPrice.Equal(dec("145.50")))
	assert.True(t, nt.TakeProfitPrice.Equal(dec("160.10")))
	assert.Equal(t, "SWING", nt.Strategy)
	assert.Equal(t, "bull flag", nt.Pattern)
	assert.Equal(t, "day", nt.TimeInForce)
	assert.True(t, nt.PlansTakeProfit())
}

func TestParseScalarProtectivePrices(t *testing.T) {
	// older payloads carried bare numbers instead of nested objects
	raw := []byte(`{
		"primary_action": "AMEND",
		"new_trade": {"side": "sell", "qty": "2.5", "limit_price": 99.9, "stop_loss": 101.2, "take_profit": 95}
	}`)

	p, err := Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, ActionAmend, p.PrimaryAction)
	require.NotNil(t, p.NewTrade)
	assert.Equal(t, domain.SideSell, p.NewTrade.Side)
	assert.True(t, p.NewTrade.Qty.Equal(dec("2.5")))
	assert.True(t, p.NewTrade.StopPrice.Equal(dec("101.2")))
	assert.True(t, p.NewTrade.TakeProfitPrice.Equal(dec("95")))
}

func TestParseDefaults(t *testing.T) {
	raw := []byte(`{"primary_action": "new_trade", "new_trade": {"qty": 1, "limit_price": 5, "stop_loss": 4}}`)

	p, err := Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, ActionNewTrade, p.PrimaryAction)
	assert.Equal(t, domain.SideBuy, p.NewTrade.Side)
	assert.Equal(t, "SWING", p.NewTrade.Strategy)
	assert.Equal(t, "gtc", p.NewTrade.TimeInForce)
	assert.False(t, p.NewTrade.PlansTakeProfit())
}

func TestParseCancelWithoutNewTrade(t *testing.T) {
	p, err := Parse([]byte(`{"primary_action": "CANCEL"}`))
	require.NoError(t, err)
	assert.Equal(t, ActionCancel, p.PrimaryAction)
	assert.Nil(t, p.NewTrade)
}

func TestParseToleratesUnknownFields(t *testing.T) {
	raw := []byte(`{
		"primary_action": "NEW_TRADE",
		"confidence": 0.82,
		"new_trade": {"qty": 3, "limit_price": 20, "stop_loss": 18, "entry_window": "open"}
	}`)
	p, err := Parse(raw)
	require.NoError(t, err)
	assert.True(t, p.NewTrade.Qty.Equal(dec("3")))
}

func TestParseRejectsMalformed(t *testing.T) {
	_, err := Parse(nil)
	assert.Error(t, err)

	_, err = Parse([]byte(`{`))
	assert.Error(t, err)

	// missing primary_action
	_, err = Parse([]byte(`{"new_trade": {"qty": 1}}`))
	assert.Error(t, err)

	// new_trade must be an object when present
	_, err = Parse([]byte(`{"primary_action": "NEW_TRADE", "new_trade": 7}`))
	assert.Error(t, err)
}

func TestMissingFieldsComeBackZero(t *testing.T) {
	p, err := Parse([]byte(`{"primary_action": "NEW_TRADE", "new_trade": {"side": "buy"}}`))
	require.NoError(t, err)
	assert.True(t, p.NewTrade.Qty.IsZero())
	assert.True(t, p.NewTrade.LimitPrice.IsZero())
	assert.True(t, p.NewTrade.StopPrice.IsZero())
}
