package apihttp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"tradeflow/internal/broker"
	"tradeflow/internal/domain"
	"tradeflow/internal/store"
	"tradeflow/internal/tickers"

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

func nd(s string) decimal.NullDecimal {
	return decimal.NullDecimal{Decimal: d(s), Valid: true}
}

func newTestServer(t *testing.T) (*store.Store, http.Handler) {
	t.Helper()
	s, err := store.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	srv, err := NewServer(ServerConfig{
		Store:   s,
		Tickers: tickers.NewSearchCache(simAssetSource{}, time.Minute),
	})
	require.NoError(t, err)
	return s, srv.Handler()
}

// simAssetSource is a fixed two-symbol universe for handler tests.
type simAssetSource struct{}

func (simAssetSource) SearchAssets(_ context.Context, query string) ([]broker.Asset, error) {
	all := []broker.Asset{
		{Symbol: "AAPL", Name: "Apple Inc. Common Stock", Exchange: "NASDAQ"},
		{Symbol: "MSFT", Name: "Microsoft Corporation", Exchange: "NASDAQ"},
	}
	var out []broker.Asset
	for _, a := range all {
		if strings.Contains(a.Symbol, query) {
			out = append(out, a)
		}
	}
	return out, nil
}

func doJSON(t *testing.T, h http.Handler, method, target, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	out := map[string]any{}
	if strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") && w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	}
	return w, out
}

func seedTrade(t *testing.T, s *store.Store, symbol string, status domain.TradeStatus) *store.TradeJournal {
	t.Helper()
	tr := &store.TradeJournal{
		TradeID:         symbol + "_" + string(status),
		Symbol:          symbol,
		Strategy:        domain.StrategySwing,
		Status:          status,
		PlannedEntry:    d("150.25"),
		PlannedStopLoss: d("145.50"),
		PlannedQty:      d("10"),
	}
	if status == domain.TradeClosed {
		exit := time.Date(2025, 6, 2, 16, 0, 0, 0, time.UTC)
		tr.ExitDate = &exit
		tr.ExitPrice = nd("160.10")
		tr.ActualPnL = nd("98.50")
		tr.ExitReason = domain.ExitTargetHit
	}
	require.NoError(t, s.CreateTrade(context.Background(), tr))
	return tr
}

func TestHealthz(t *testing.T) {
	_, h := newTestServer(t)
	w, body := doJSON(t, h, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", body["status"])
}

func TestListTradesFiltered(t *testing.T) {
	s, h := newTestServer(t)
	seedTrade(t, s, "AAPL", domain.TradeOrdered)
	seedTrade(t, s, "AAPL", domain.TradeClosed)
	seedTrade(t, s, "MSFT", domain.TradePosition)

	w, body := doJSON(t, h, http.MethodGet, "/api/trades?status=CLOSED", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 1, body["total"])

	w, body = doJSON(t, h, http.MethodGet, "/api/trades?symbol=AAPL", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 2, body["total"])
	assert.EqualValues(t, 1, body["page"])
}

func TestTradeDetailIncludesOrdersAndPosition(t *testing.T) {
	s, h := newTestServer(t)
	ctx := context.Background()
	tr := seedTrade(t, s, "AAPL", domain.TradePosition)
	require.NoError(t, s.CreateOrder(ctx, &store.OrderExecution{
		TradeJournalID: tr.ID, BrokerOrderID: "bo-1", OrderType: domain.OrderEntry,
		Side: domain.SideBuy, Status: domain.OrderFilled, Qty: d("10"),
	}))
	require.NoError(t, s.CreatePosition(ctx, &store.PositionTracking{
		TradeJournalID: tr.ID, Symbol: "AAPL", Qty: d("10"),
		AvgEntryPrice: d("150.25"), CurrentPrice: d("150.25"),
		MarketValue: d("1502.50"), CostBasis: d("1502.50"),
	}))

	w, body := doJSON(t, h, http.MethodGet, "/api/trades/1", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotNil(t, body["trade"])
	assert.Len(t, body["orders"], 1)
	assert.NotNil(t, body["position"])

	w, _ = doJSON(t, h, http.MethodGet, "/api/trades/999", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, _ = doJSON(t, h, http.MethodGet, "/api/trades/abc", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPerformanceEndpoint(t *testing.T) {
	s, h := newTestServer(t)
	seedTrade(t, s, "AAPL", domain.TradeClosed)

	w, body := doJSON(t, h, http.MethodGet, "/api/analytics/performance", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 1, body["total_trades"])
	assert.EqualValues(t, 1, body["winning_trades"])
}

func TestEquityCurveEndpoints(t *testing.T) {
	s, h := newTestServer(t)
	seedTrade(t, s, "AAPL", domain.TradeClosed)

	w, body := doJSON(t, h, http.MethodGet, "/api/analytics/equity-curve", "")
	require.Equal(t, http.StatusOK, w.Code)
	points := body["points"].([]any)
	require.Len(t, points, 1)

	req := httptest.NewRequest(http.MethodGet, "/api/analytics/equity-curve/chart", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, rec.Body.String(), "Equity Curve")
}

func TestAnalyticsBreakdownEndpoints(t *testing.T) {
	s, h := newTestServer(t)
	exit := time.Date(2025, 6, 2, 16, 0, 0, 0, time.UTC)
	require.NoError(t, s.CreateTrade(context.Background(), &store.TradeJournal{
		TradeID: "AAPL_bd", Symbol: "AAPL", Strategy: domain.StrategySwing, Pattern: "BULL_FLAG",
		Status: domain.TradeClosed, PlannedEntry: d("150.25"), PlannedStopLoss: d("145.50"), PlannedQty: d("10"),
		ExitDate: &exit, ExitPrice: nd("160.10"), ActualPnL: nd("98.50"), ExitReason: domain.ExitTargetHit,
	}))

	w, body := doJSON(t, h, http.MethodGet, "/api/analytics/pnl-by-period?period=monthly", "")
	require.Equal(t, http.StatusOK, w.Code)
	points := body["points"].([]any)
	require.Len(t, points, 1)
	assert.Equal(t, "2025-06-01", points[0].(map[string]any)["period"])

	w, _ = doJSON(t, h, http.MethodGet, "/api/analytics/pnl-by-period?period=hourly", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, body = doJSON(t, h, http.MethodGet, "/api/analytics/pattern-performance", "")
	require.Equal(t, http.StatusOK, w.Code)
	groups := body["groups"].([]any)
	require.Len(t, groups, 1)
	assert.Equal(t, "BULL_FLAG", groups[0].(map[string]any)["group"])

	w, body = doJSON(t, h, http.MethodGet, "/api/analytics/style-performance", "")
	require.Equal(t, http.StatusOK, w.Code)
	groups = body["groups"].([]any)
	require.Len(t, groups, 1)
	assert.Equal(t, "SWING", groups[0].(map[string]any)["group"])

	w, body = doJSON(t, h, http.MethodGet, "/api/analytics/drawdown-curve", "")
	require.Equal(t, http.StatusOK, w.Code)
	points = body["points"].([]any)
	require.Len(t, points, 1)
	assert.Equal(t, "2025-06-02", points[0].(map[string]any)["date"])
}

func TestWatchlistCRUD(t *testing.T) {
	_, h := newTestServer(t)

	w, created := doJSON(t, h, http.MethodPost, "/api/watchlist", `{"ticker":"aapl","name":"Apple","exchange":"NASDAQ"}`)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "AAPL", created["ticker"])
	assert.Equal(t, true, created["active"])

	// duplicate ticker conflicts
	w, _ = doJSON(t, h, http.MethodPost, "/api/watchlist", `{"ticker":"AAPL"}`)
	assert.Equal(t, http.StatusConflict, w.Code)

	// missing ticker rejected
	w, _ = doJSON(t, h, http.MethodPost, "/api/watchlist", `{"name":"x"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, updated := doJSON(t, h, http.MethodPatch, "/api/watchlist/1", `{"active":false,"industry":"Tech"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, updated["active"])
	assert.Equal(t, "Tech", updated["industry"])

	w, body := doJSON(t, h, http.MethodGet, "/api/watchlist", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 1, body["total"])

	w, _ = doJSON(t, h, http.MethodDelete, "/api/watchlist/1", "")
	assert.Equal(t, http.StatusNoContent, w.Code)
	w, _ = doJSON(t, h, http.MethodDelete, "/api/watchlist/1", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestTickerSearch(t *testing.T) {
	_, h := newTestServer(t)

	w, body := doJSON(t, h, http.MethodGet, "/api/tickers/search?q=AA", "")
	require.Equal(t, http.StatusOK, w.Code)
	results := body["results"].([]any)
	require.Len(t, results, 1)

	w, _ = doJSON(t, h, http.MethodGet, "/api/tickers/search", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListDecisionsFilter(t *testing.T) {
	s, h := newTestServer(t)
	ctx := context.Background()
	require.NoError(t, s.CreateDecision(ctx, &store.AnalysisDecision{
		AnalysisID: "a1", Ticker: "AAPL", AnalyzedAt: time.Now(), Approved: true,
		Payload: datatypes.JSON([]byte(`{"primary_action":"NEW_TRADE"}`)),
	}))
	require.NoError(t, s.CreateDecision(ctx, &store.AnalysisDecision{
		AnalysisID: "a2", Ticker: "MSFT", AnalyzedAt: time.Now(), Approved: false,
		Payload: datatypes.JSON([]byte(`{"primary_action":"HOLD"}`)),
	}))

	w, body := doJSON(t, h, http.MethodGet, "/api/analysis?approved=true", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 1, body["total"])

	w, body = doJSON(t, h, http.MethodGet, "/api/analysis?ticker=msft", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 1, body["total"])
}
