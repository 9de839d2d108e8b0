package apihttp

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"tradeflow/internal/domain"
	"tradeflow/internal/logger"
	"tradeflow/internal/store"
	"tradeflow/internal/tickers"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

// Router mounts the query endpoints under /api.
type Router struct {
	store   *store.Store
	tickers *tickers.SearchCache
}

// Register attaches all routes to the given group.
func (r *Router) Register(group *gin.RouterGroup) {
	if group == nil {
		return
	}
	group.GET("/analysis", r.handleListDecisions)
	group.GET("/analysis/:id", r.handleDecisionByID)
	group.GET("/trades", r.handleListTrades)
	group.GET("/trades/:id", r.handleTradeByID)
	group.GET("/orders", r.handleListOrders)
	group.GET("/positions", r.handleListPositions)

	group.GET("/analytics/equity-curve", r.handleEquityCurve)
	group.GET("/analytics/equity-curve/chart", r.handleEquityCurveChart)
	group.GET("/analytics/performance", r.handlePerformance)
	group.GET("/analytics/pnl-histogram", r.handlePnLHistogram)
	group.GET("/analytics/pnl-by-period", r.handlePnLByPeriod)
	group.GET("/analytics/pattern-performance", r.handlePatternPerformance)
	group.GET("/analytics/style-performance", r.handleStylePerformance)
	group.GET("/analytics/drawdown-curve", r.handleDrawdownCurve)

	group.GET("/watchlist", r.handleListWatchlist)
	group.POST("/watchlist", r.handleCreateWatchlist)
	group.PATCH("/watchlist/:id", r.handleUpdateWatchlist)
	group.DELETE("/watchlist/:id", r.handleDeleteWatchlist)

	group.GET("/tickers/search", r.handleTickerSearch)
}

func pageFromQuery(c *gin.Context) store.Page {
	number, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	size, _ := strconv.Atoi(c.DefaultQuery("page_size", "0"))
	if size <= 0 {
		size, _ = strconv.Atoi(c.DefaultQuery("limit", "0"))
	}
	return store.Page{Number: number, Size: size}.Normalize()
}

func boolQuery(c *gin.Context, key string) *bool {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return nil
	}
	return &v
}

func dateQuery(c *gin.Context, key string) *time.Time {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return nil
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return nil
	}
	return &t
}

func idParam(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return 0, false
	}
	return uint(id), true
}

func listResponse(c *gin.Context, page store.Page, total int64, items any) {
	c.JSON(http.StatusOK, gin.H{
		"page":      page.Number,
		"page_size": page.Size,
		"total":     total,
		"items":     items,
	})
}

func (r *Router) handleListDecisions(c *gin.Context) {
	page := pageFromQuery(c)
	filter := store.DecisionFilter{
		Ticker:   strings.ToUpper(strings.TrimSpace(c.Query("ticker"))),
		Approved: boolQuery(c, "approved"),
		Executed: boolQuery(c, "executed"),
	}
	items, total, err := r.store.ListDecisions(c.Request.Context(), filter, page)
	if err != nil {
		logger.Errorf("[api] list decisions failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	listResponse(c, page, total, items)
}

func (r *Router) handleDecisionByID(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	dec, err := r.store.GetDecision(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "decision not found"})
		return
	}
	c.JSON(http.StatusOK, dec)
}

func (r *Router) handleListTrades(c *gin.Context) {
	page := pageFromQuery(c)
	filter := store.TradeFilter{
		Status:   domain.TradeStatus(strings.ToUpper(strings.TrimSpace(c.Query("status")))),
		Symbol:   strings.ToUpper(strings.TrimSpace(c.Query("symbol"))),
		Strategy: strings.ToUpper(strings.TrimSpace(c.Query("strategy"))),
		ExitFrom: dateQuery(c, "from"),
		ExitTo:   dateQuery(c, "to"),
	}
	items, total, err := r.store.ListTrades(c.Request.Context(), filter, page)
	if err != nil {
		logger.Errorf("[api] list trades failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	listResponse(c, page, total, items)
}

func (r *Router) handleTradeByID(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	trade, err := r.store.GetTrade(ctx, id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "trade not found"})
		return
	}
	orders, err := r.store.ListOrdersByTrade(ctx, id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	position, err := r.store.GetPositionByTradeID(ctx, id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"trade":    trade,
		"orders":   orders,
		"position": position,
	})
}

func (r *Router) handleListOrders(c *gin.Context) {
	page := pageFromQuery(c)
	tradeID, _ := strconv.ParseUint(c.Query("trade_id"), 10, 32)
	filter := store.OrderFilter{
		Status:    domain.OrderStatus(strings.ToLower(strings.TrimSpace(c.Query("status")))),
		OrderType: domain.OrderType(strings.ToUpper(strings.TrimSpace(c.Query("type")))),
		TradeID:   uint(tradeID),
	}
	items, total, err := r.store.ListOrders(c.Request.Context(), filter, page)
	if err != nil {
		logger.Errorf("[api] list orders failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	listResponse(c, page, total, items)
}

func (r *Router) handleListPositions(c *gin.Context) {
	page := pageFromQuery(c)
	items, total, err := r.store.ListPositions(c.Request.Context(), page)
	if err != nil {
		logger.Errorf("[api] list positions failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	listResponse(c, page, total, items)
}

func (r *Router) handleEquityCurve(c *gin.Context) {
	points, err := r.store.EquityCurve(c.Request.Context(), dateQuery(c, "from"), dateQuery(c, "to"))
	if err != nil {
		logger.Errorf("[api] equity curve failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"points": points})
}

func (r *Router) handlePerformance(c *gin.Context) {
	metrics, err := r.store.Performance(c.Request.Context(), dateQuery(c, "from"), dateQuery(c, "to"))
	if err != nil {
		logger.Errorf("[api] performance failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, metrics)
}

func (r *Router) handlePnLHistogram(c *gin.Context) {
	width := decimal.Zero
	if raw := strings.TrimSpace(c.Query("bucket_width")); raw != "" {
		if v, err := decimal.NewFromString(raw); err == nil {
			width = v
		}
	}
	buckets, err := r.store.PnLHistogram(c.Request.Context(), width)
	if err != nil {
		logger.Errorf("[api] pnl histogram failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"buckets": buckets})
}

func (r *Router) handlePnLByPeriod(c *gin.Context) {
	period := strings.ToLower(strings.TrimSpace(c.DefaultQuery("period", "daily")))
	periods, err := r.store.PnLByPeriod(c.Request.Context(), period, dateQuery(c, "from"), dateQuery(c, "to"))
	if err != nil {
		if errors.Is(err, store.ErrInvalidPeriod) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "period must be daily, weekly or monthly"})
			return
		}
		logger.Errorf("[api] pnl by period failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"period": period, "points": periods})
}

func (r *Router) handlePatternPerformance(c *gin.Context) {
	groups, err := r.store.PatternPerformance(c.Request.Context(), dateQuery(c, "from"), dateQuery(c, "to"))
	if err != nil {
		logger.Errorf("[api] pattern performance failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"groups": groups})
}

func (r *Router) handleStylePerformance(c *gin.Context) {
	groups, err := r.store.StylePerformance(c.Request.Context(), dateQuery(c, "from"), dateQuery(c, "to"))
	if err != nil {
		logger.Errorf("[api] style performance failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"groups": groups})
}

func (r *Router) handleDrawdownCurve(c *gin.Context) {
	points, err := r.store.DrawdownCurve(c.Request.Context(), dateQuery(c, "from"), dateQuery(c, "to"))
	if err != nil {
		logger.Errorf("[api] drawdown curve failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"points": points})
}

type watchlistCreateRequest struct {
	Ticker   string `json:"ticker" binding:"required"`
	Name     string `json:"name"`
	Exchange string `json:"exchange"`
	Industry string `json:"industry"`
}

func (r *Router) handleListWatchlist(c *gin.Context) {
	page := pageFromQuery(c)
	items, total, err := r.store.ListWatchlist(c.Request.Context(), page)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	listResponse(c, page, total, items)
}

func (r *Router) handleCreateWatchlist(c *gin.Context) {
	var req watchlistCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	entry := &store.TickerWatchlist{
		Ticker:   strings.ToUpper(strings.TrimSpace(req.Ticker)),
		Name:     req.Name,
		Exchange: req.Exchange,
		Industry: req.Industry,
		Active:   true,
	}
	if err := r.store.CreateWatchlistEntry(c.Request.Context(), entry); err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, entry)
}

type watchlistUpdateRequest struct {
	Industry *string `json:"industry"`
	Active   *bool   `json:"active"`
}

func (r *Router) handleUpdateWatchlist(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	var req watchlistUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	applied, err := r.store.UpdateWatchlistEntry(c.Request.Context(), id, store.WatchlistUpdate{
		Industry: req.Industry,
		Active:   req.Active,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if !applied {
		c.JSON(http.StatusNotFound, gin.H{"error": "entry not found"})
		return
	}
	entry, err := r.store.GetWatchlistEntry(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, entry)
}

func (r *Router) handleDeleteWatchlist(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	applied, err := r.store.DeleteWatchlistEntry(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if !applied {
		c.JSON(http.StatusNotFound, gin.H{"error": "entry not found"})
		return
	}
	c.Status(http.StatusNoContent)
}

func (r *Router) handleTickerSearch(c *gin.Context) {
	if r.tickers == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "ticker search not configured"})
		return
	}
	query := strings.TrimSpace(c.Query("q"))
	if query == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "q is required"})
		return
	}
	r.tickers.Purge()
	assets, err := r.tickers.Search(c.Request.Context(), query)
	if err != nil {
		logger.Errorf("[api] ticker search %q failed: %v", query, err)
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"query": query, "results": assets})
}
