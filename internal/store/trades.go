package store

import (
	"context"
	"time"

	"tradeflow/internal/domain"
)

// CreateTrade inserts a new trade journal entry.
func (s *Store) CreateTrade(ctx context.Context, t *TradeJournal) error {
	return s.db.WithContext(ctx).Create(t).Error
}

// GetTrade looks up one trade by primary key.
func (s *Store) GetTrade(ctx context.Context, id uint) (*TradeJournal, error) {
	var t TradeJournal
	if err := s.db.WithContext(ctx).First(&t, id).Error; err != nil {
		return nil, err
	}
	return &t, nil
}

// TransitionTrade applies from->to along with the given field updates, but
// only when the transition is legal and the row is still in the expected
// prior state. applied=false means the precondition did not hold (already
// transitioned, or illegal edge) and nothing was written; callers treat that
// as an idempotent no-op, not an error.
func (s *Store) TransitionTrade(ctx context.Context, id uint, from, to domain.TradeStatus, updates map[string]any) (bool, error) {
	if !domain.CanTransition(from, to) {
		return false, nil
	}
	if updates == nil {
		updates = map[string]any{}
	}
	updates["status"] = to
	updates["updated_at"] = time.Now()
	res := s.db.WithContext(ctx).
		Model(&TradeJournal{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	return res.RowsAffected > 0, res.Error
}

// TradeFilter narrows the paginated trade listing.
type TradeFilter struct {
	Status   domain.TradeStatus
	Symbol   string
	Strategy string
	ExitFrom *time.Time
	ExitTo   *time.Time
}

// ListTrades serves the read API: filtered, newest first, paginated.
func (s *Store) ListTrades(ctx context.Context, f TradeFilter, page Page) ([]TradeJournal, int64, error) {
	q := s.db.WithContext(ctx).Model(&TradeJournal{})
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.Symbol != "" {
		q = q.Where("symbol = ?", f.Symbol)
	}
	if f.Strategy != "" {
		q = q.Where("strategy = ?", f.Strategy)
	}
	if f.ExitFrom != nil {
		q = q.Where("exit_date >= ?", *f.ExitFrom)
	}
	if f.ExitTo != nil {
		q = q.Where("exit_date <= ?", *f.ExitTo)
	}
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var out []TradeJournal
	err := q.Order("created_at DESC").Scopes(paginate(page)).Find(&out).Error
	return out, total, err
}

// CountTradesByStatus returns trade counts keyed by status via one raw
// aggregate query. Only the analytics layer uses it.
func (s *Store) CountTradesByStatus(ctx context.Context) (map[domain.TradeStatus]int64, error) {
	rows := []struct {
		Status domain.TradeStatus
		N      int64
	}{}
	err := s.db.WithContext(ctx).
		Raw("SELECT status AS status, COUNT(*) AS n FROM trade_journal GROUP BY status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make(map[domain.TradeStatus]int64, len(rows))
	for _, r := range rows {
		out[r.Status] = r.N
	}
	return out, nil
}
