package apihttp

import (
	"net/http"

	"tradeflow/internal/logger"

	"github.com/gin-gonic/gin"
	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/go-echarts/go-echarts/v2/types"
)

// handleEquityCurveChart renders the equity curve as a self-contained HTML
// page. Intended for a browser, not for API consumers; those use the JSON
// endpoint.
func (r *Router) handleEquityCurveChart(c *gin.Context) {
	points, err := r.store.EquityCurve(c.Request.Context(), dateQuery(c, "from"), dateQuery(c, "to"))
	if err != nil {
		logger.Errorf("[api] equity curve chart failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	dates := make([]string, 0, len(points))
	cumulative := make([]opts.LineData, 0, len(points))
	daily := make([]opts.LineData, 0, len(points))
	for _, p := range points {
		dates = append(dates, p.Date)
		cumulative = append(cumulative, opts.LineData{Value: p.CumulativePnL.InexactFloat64()})
		daily = append(daily, opts.LineData{Value: p.RealizedPnL.InexactFloat64()})
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Theme: types.ThemeWesteros, Width: "1200px", Height: "600px"}),
		charts.WithTitleOpts(opts.Title{Title: "Equity Curve", Subtitle: "daily and cumulative realized P&L"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithXAxisOpts(opts.XAxis{Name: "date"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "P&L"}),
	)
	line.SetXAxis(dates).
		AddSeries("cumulative", cumulative).
		AddSeries("daily", daily).
		SetSeriesOptions(charts.WithLineChartOpts(opts.LineChart{Smooth: opts.Bool(true)}))

	c.Header("Content-Type", "text/html; charset=utf-8")
	c.Status(http.StatusOK)
	if err := line.Render(c.Writer); err != nil {
		logger.Errorf("[api] rendering equity chart: %v", err)
	}
}
