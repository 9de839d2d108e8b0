package store

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
)

// CreateWatchlistEntry adds a ticker to the watchlist.
func (s *Store) CreateWatchlistEntry(ctx context.Context, e *TickerWatchlist) error {
	return s.db.WithContext(ctx).Create(e).Error
}

// GetWatchlistEntry looks up one entry, or nil.
func (s *Store) GetWatchlistEntry(ctx context.Context, id uint) (*TickerWatchlist, error) {
	var e TickerWatchlist
	err := s.db.WithContext(ctx).First(&e, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// WatchlistUpdate carries the mutable watchlist fields. Ticker and exchange
// are locked once created.
type WatchlistUpdate struct {
	Industry *string
	Active   *bool
}

// UpdateWatchlistEntry patches an entry; applied=false when the id is
// unknown.
func (s *Store) UpdateWatchlistEntry(ctx context.Context, id uint, upd WatchlistUpdate) (bool, error) {
	updates := map[string]any{"updated_at": time.Now()}
	if upd.Industry != nil {
		updates["industry"] = *upd.Industry
	}
	if upd.Active != nil {
		updates["active"] = *upd.Active
	}
	res := s.db.WithContext(ctx).Model(&TickerWatchlist{}).Where("id = ?", id).Updates(updates)
	return res.RowsAffected > 0, res.Error
}

// DeleteWatchlistEntry removes an entry by id.
func (s *Store) DeleteWatchlistEntry(ctx context.Context, id uint) (bool, error) {
	res := s.db.WithContext(ctx).Delete(&TickerWatchlist{}, id)
	return res.RowsAffected > 0, res.Error
}

// ListWatchlist serves the read API, paginated, active entries first.
func (s *Store) ListWatchlist(ctx context.Context, page Page) ([]TickerWatchlist, int64, error) {
	var total int64
	if err := s.db.WithContext(ctx).Model(&TickerWatchlist{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var out []TickerWatchlist
	err := s.db.WithContext(ctx).
		Order("active DESC, ticker ASC").
		Scopes(paginate(page)).
		Find(&out).Error
	return out, total, err
}
