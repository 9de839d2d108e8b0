package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"tradeflow/internal/domain"

	"github.com/shopspring/decimal"
)

// EquityPoint is one day on the equity curve.
type EquityPoint struct {
	Date          string          `json:"date"`
	RealizedPnL   decimal.Decimal `json:"realized_pnl"`
	CumulativePnL decimal.Decimal `json:"cumulative_pnl"`
	UnrealizedPnL decimal.Decimal `json:"unrealized_pnl"`
}

// PerformanceMetrics aggregates closed-trade outcomes.
type PerformanceMetrics struct {
	TotalTrades   int             `json:"total_trades"`
	WinningTrades int             `json:"winning_trades"`
	LosingTrades  int             `json:"losing_trades"`
	WinRate       decimal.Decimal `json:"win_rate"`
	TotalPnL      decimal.Decimal `json:"total_pnl"`
	AvgWin        decimal.Decimal `json:"avg_win"`
	AvgLoss       decimal.Decimal `json:"avg_loss"`
	ProfitFactor  decimal.Decimal `json:"profit_factor"`
	LargestWin    decimal.Decimal `json:"largest_win"`
	LargestLoss   decimal.Decimal `json:"largest_loss"`
	OpenPositions int64           `json:"open_positions"`
	UnrealizedPnL decimal.Decimal `json:"unrealized_pnl"`
}

// HistogramBucket is one bar of the closed-trade P&L distribution.
type HistogramBucket struct {
	From  decimal.Decimal `json:"from"`
	To    decimal.Decimal `json:"to"`
	Count int             `json:"count"`
}

// PeriodPnL is realized P&L aggregated over one calendar period.
type PeriodPnL struct {
	Period      string          `json:"period"`
	RealizedPnL decimal.Decimal `json:"realized_pnl"`
	TotalPnL    decimal.Decimal `json:"total_pnl"`
}

// GroupPerformance is the closed-trade outcome aggregate for one grouping
// key (chart pattern or strategy).
type GroupPerformance struct {
	Group      string          `json:"group"`
	TradeCount int             `json:"trade_count"`
	Wins       int             `json:"wins"`
	WinRate    decimal.Decimal `json:"win_rate"`
	AvgPnL     decimal.Decimal `json:"avg_pnl"`
	TotalPnL   decimal.Decimal `json:"total_pnl"`
}

// DrawdownPoint is one day of cumulative realized value against its running
// peak.
type DrawdownPoint struct {
	Date           string          `json:"date"`
	PortfolioValue decimal.Decimal `json:"portfolio_value"`
	PeakValue      decimal.Decimal `json:"peak_value"`
	DrawdownPct    decimal.Decimal `json:"drawdown_pct"`
}

const (
	periodDay   = "daily"
	periodWeek  = "weekly"
	periodMonth = "monthly"
)

// ErrInvalidPeriod marks an unrecognized aggregation period.
var ErrInvalidPeriod = errors.New("store: period must be daily, weekly or monthly")

// periodKey truncates an exit date to its period label. Weeks start Monday.
func periodKey(period string, t time.Time) string {
	switch period {
	case periodWeek:
		shift := (int(t.Weekday()) + 6) % 7
		return t.AddDate(0, 0, -shift).Format("2006-01-02")
	case periodMonth:
		return t.Format("2006-01") + "-01"
	default:
		return t.Format("2006-01-02")
	}
}

// realizedByPeriod sums closed-trade P&L per period, returning the labels in
// ascending order alongside the sums.
func realizedByPeriod(trades []TradeJournal, period string) ([]string, map[string]decimal.Decimal) {
	sums := make(map[string]decimal.Decimal)
	for _, t := range trades {
		if t.ExitDate == nil || !t.ActualPnL.Valid {
			continue
		}
		key := periodKey(period, *t.ExitDate)
		sums[key] = sums[key].Add(t.ActualPnL.Decimal)
	}
	keys := make([]string, 0, len(sums))
	for key := range sums {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys, sums
}

func (s *Store) closedTrades(ctx context.Context, from, to *time.Time) ([]TradeJournal, error) {
	q := s.db.WithContext(ctx).
		Where("status = ?", domain.TradeClosed).
		Where("exit_date IS NOT NULL")
	if from != nil {
		q = q.Where("exit_date >= ?", *from)
	}
	if to != nil {
		q = q.Where("exit_date <= ?", *to)
	}
	var out []TradeJournal
	err := q.Order("exit_date ASC").Find(&out).Error
	return out, err
}

// EquityCurve returns daily realized P&L and its running sum over closed
// trades, with the current total unrealized P&L folded into every cumulative
// point (matching what the account would be worth if liquidated that day).
func (s *Store) EquityCurve(ctx context.Context, from, to *time.Time) ([]EquityPoint, error) {
	trades, err := s.closedTrades(ctx, from, to)
	if err != nil {
		return nil, err
	}
	unrealized, err := s.SumUnrealizedPnL(ctx)
	if err != nil {
		return nil, err
	}

	days, daily := realizedByPeriod(trades, periodDay)

	out := make([]EquityPoint, 0, len(days))
	cumulative := decimal.Zero
	for _, day := range days {
		cumulative = cumulative.Add(daily[day])
		out = append(out, EquityPoint{
			Date:          day,
			RealizedPnL:   daily[day],
			CumulativePnL: cumulative.Add(unrealized),
			UnrealizedPnL: unrealized,
		})
	}
	return out, nil
}

// Performance computes win/loss aggregates over closed trades in the window.
func (s *Store) Performance(ctx context.Context, from, to *time.Time) (*PerformanceMetrics, error) {
	trades, err := s.closedTrades(ctx, from, to)
	if err != nil {
		return nil, err
	}
	m := &PerformanceMetrics{}
	grossWin, grossLoss := decimal.Zero, decimal.Zero
	for _, t := range trades {
		if !t.ActualPnL.Valid {
			continue
		}
		pnl := t.ActualPnL.Decimal
		m.TotalTrades++
		m.TotalPnL = m.TotalPnL.Add(pnl)
		if pnl.IsPositive() {
			m.WinningTrades++
			grossWin = grossWin.Add(pnl)
			if pnl.GreaterThan(m.LargestWin) {
				m.LargestWin = pnl
			}
		} else {
			m.LosingTrades++
			grossLoss = grossLoss.Add(pnl)
			if pnl.LessThan(m.LargestLoss) {
				m.LargestLoss = pnl
			}
		}
	}
	if m.TotalTrades > 0 {
		m.WinRate = decimal.NewFromInt(int64(m.WinningTrades)).
			Div(decimal.NewFromInt(int64(m.TotalTrades))).
			Round(4)
	}
	if m.WinningTrades > 0 {
		m.AvgWin = grossWin.Div(decimal.NewFromInt(int64(m.WinningTrades))).Round(2)
	}
	if m.LosingTrades > 0 {
		m.AvgLoss = grossLoss.Div(decimal.NewFromInt(int64(m.LosingTrades))).Round(2)
	}
	if grossLoss.IsNegative() {
		m.ProfitFactor = grossWin.Div(grossLoss.Neg()).Round(2)
	}
	m.OpenPositions, err = s.CountPositions(ctx)
	if err != nil {
		return nil, err
	}
	m.UnrealizedPnL, err = s.SumUnrealizedPnL(ctx)
	if err != nil {
		return nil, err
	}
	return m, nil
}

// PnLHistogram buckets closed-trade P&L into fixed-width bars.
func (s *Store) PnLHistogram(ctx context.Context, bucketWidth decimal.Decimal) ([]HistogramBucket, error) {
	if !bucketWidth.IsPositive() {
		bucketWidth = decimal.NewFromInt(50)
	}
	trades, err := s.closedTrades(ctx, nil, nil)
	if err != nil {
		return nil, err
	}
	counts := make(map[int64]int)
	var lo, hi int64
	seen := false
	for _, t := range trades {
		if !t.ActualPnL.Valid {
			continue
		}
		idx := t.ActualPnL.Decimal.Div(bucketWidth).Floor().IntPart()
		counts[idx]++
		if !seen || idx < lo {
			lo = idx
		}
		if !seen || idx > hi {
			hi = idx
		}
		seen = true
	}
	if !seen {
		return nil, nil
	}
	out := make([]HistogramBucket, 0, hi-lo+1)
	for i := lo; i <= hi; i++ {
		from := bucketWidth.Mul(decimal.NewFromInt(i))
		out = append(out, HistogramBucket{
			From:  from,
			To:    from.Add(bucketWidth),
			Count: counts[i],
		})
	}
	return out, nil
}

// PnLByPeriod aggregates realized P&L by day, ISO week or month.
func (s *Store) PnLByPeriod(ctx context.Context, period string, from, to *time.Time) ([]PeriodPnL, error) {
	switch period {
	case periodDay, periodWeek, periodMonth:
	default:
		return nil, fmt.Errorf("%w: got %q", ErrInvalidPeriod, period)
	}
	trades, err := s.closedTrades(ctx, from, to)
	if err != nil {
		return nil, err
	}
	keys, sums := realizedByPeriod(trades, period)
	out := make([]PeriodPnL, 0, len(keys))
	for _, key := range keys {
		out = append(out, PeriodPnL{
			Period:      key,
			RealizedPnL: sums[key],
			TotalPnL:    sums[key],
		})
	}
	return out, nil
}

func groupPerformance(trades []TradeJournal, keyFn func(*TradeJournal) string) []GroupPerformance {
	byGroup := make(map[string]*GroupPerformance)
	order := []string{}
	for i := range trades {
		t := &trades[i]
		if !t.ActualPnL.Valid {
			continue
		}
		key := keyFn(t)
		if key == "" {
			continue
		}
		g, ok := byGroup[key]
		if !ok {
			g = &GroupPerformance{Group: key}
			byGroup[key] = g
			order = append(order, key)
		}
		g.TradeCount++
		g.TotalPnL = g.TotalPnL.Add(t.ActualPnL.Decimal)
		if t.ActualPnL.Decimal.IsPositive() {
			g.Wins++
		}
	}
	out := make([]GroupPerformance, 0, len(order))
	for _, key := range order {
		g := byGroup[key]
		g.WinRate = decimal.NewFromInt(int64(g.Wins)).
			Div(decimal.NewFromInt(int64(g.TradeCount))).
			Round(4)
		g.AvgPnL = g.TotalPnL.Div(decimal.NewFromInt(int64(g.TradeCount))).Round(2)
		out = append(out, *g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TotalPnL.GreaterThan(out[j].TotalPnL) })
	return out
}

// PatternPerformance groups closed-trade outcomes by chart pattern, best
// total P&L first. Trades without a recorded pattern are skipped.
func (s *Store) PatternPerformance(ctx context.Context, from, to *time.Time) ([]GroupPerformance, error) {
	trades, err := s.closedTrades(ctx, from, to)
	if err != nil {
		return nil, err
	}
	return groupPerformance(trades, func(t *TradeJournal) string { return t.Pattern }), nil
}

// StylePerformance groups closed-trade outcomes by strategy (SWING vs TREND).
func (s *Store) StylePerformance(ctx context.Context, from, to *time.Time) ([]GroupPerformance, error) {
	trades, err := s.closedTrades(ctx, from, to)
	if err != nil {
		return nil, err
	}
	return groupPerformance(trades, func(t *TradeJournal) string { return t.Strategy }), nil
}

// DrawdownCurve tracks daily cumulative realized value against its running
// peak, with the decline expressed as a percentage of the peak.
func (s *Store) DrawdownCurve(ctx context.Context, from, to *time.Time) ([]DrawdownPoint, error) {
	trades, err := s.closedTrades(ctx, from, to)
	if err != nil {
		return nil, err
	}
	days, daily := realizedByPeriod(trades, periodDay)

	out := make([]DrawdownPoint, 0, len(days))
	value, peak := decimal.Zero, decimal.Zero
	hundred := decimal.NewFromInt(100)
	for _, day := range days {
		value = value.Add(daily[day])
		if value.GreaterThan(peak) {
			peak = value
		}
		pct := decimal.Zero
		if peak.IsPositive() {
			pct = value.Sub(peak).Div(peak).Mul(hundred).Round(2)
		}
		out = append(out, DrawdownPoint{
			Date:           day,
			PortfolioValue: value,
			PeakValue:      peak,
			DrawdownPct:    pct,
		})
	}
	return out, nil
}
