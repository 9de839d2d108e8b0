package store

import (
	"context"
	"time"

	"gorm.io/gorm"
)

// ListEligibleDecisions returns approved, unexecuted decisions whose payload
// carries one of the given primary actions, oldest first. Ordering preserves
// the intended sequence of capital allocation.
func (s *Store) ListEligibleDecisions(ctx context.Context, actions []string) ([]AnalysisDecision, error) {
	var out []AnalysisDecision
	err := s.db.WithContext(ctx).
		Where("approved = ? AND executed = ?", true, false).
		Where("json_extract(payload, '$.primary_action') IN ?", actions).
		Order("analyzed_at ASC").
		Find(&out).Error
	return out, err
}

// GetDecision looks up one decision by primary key.
func (s *Store) GetDecision(ctx context.Context, id uint) (*AnalysisDecision, error) {
	var d AnalysisDecision
	if err := s.db.WithContext(ctx).First(&d, id).Error; err != nil {
		return nil, err
	}
	return &d, nil
}

// CreateDecision inserts a decision record. The core never does this in
// production (decisions arrive from upstream); tests and backfills do.
func (s *Store) CreateDecision(ctx context.Context, d *AnalysisDecision) error {
	return s.db.WithContext(ctx).Create(d).Error
}

// MarkDecisionExecuted flips executed false->true, stamps execution_time and
// records the back-references. The WHERE executed = false gate makes the flip
// at-most-once: a second attempt reports applied=false and changes nothing.
func (s *Store) MarkDecisionExecuted(ctx context.Context, id uint, brokerOrderID string, tradeJournalID *uint) (bool, error) {
	now := time.Now()
	updates := map[string]any{
		"executed":       true,
		"execution_time": now,
		"updated_at":     now,
	}
	if brokerOrderID != "" {
		updates["broker_order_id"] = brokerOrderID
	}
	if tradeJournalID != nil {
		updates["trade_journal_id"] = *tradeJournalID
	}
	res := s.db.WithContext(ctx).
		Model(&AnalysisDecision{}).
		Where("id = ? AND executed = ?", id, false).
		Updates(updates)
	return res.RowsAffected > 0, res.Error
}

// DecisionFilter narrows the paginated decision listing.
type DecisionFilter struct {
	Ticker   string
	Approved *bool
	Executed *bool
}

// ListDecisions serves the read API: filtered, newest first, paginated.
func (s *Store) ListDecisions(ctx context.Context, f DecisionFilter, page Page) ([]AnalysisDecision, int64, error) {
	q := s.db.WithContext(ctx).Model(&AnalysisDecision{})
	if f.Ticker != "" {
		q = q.Where("ticker = ?", f.Ticker)
	}
	if f.Approved != nil {
		q = q.Where("approved = ?", *f.Approved)
	}
	if f.Executed != nil {
		q = q.Where("executed = ?", *f.Executed)
	}
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var out []AnalysisDecision
	err := q.Order("analyzed_at DESC").Scopes(paginate(page)).Find(&out).Error
	return out, total, err
}

// Page is the shared pagination parameter set of the read API.
type Page struct {
	Number int
	Size   int
}

const (
	defaultPageSize = 50
	maxPageSize     = 500
)

// Normalize clamps page parameters to sane bounds.
func (p Page) Normalize() Page {
	if p.Number < 1 {
		p.Number = 1
	}
	if p.Size <= 0 {
		p.Size = defaultPageSize
	}
	if p.Size > maxPageSize {
		p.Size = maxPageSize
	}
	return p
}

func paginate(p Page) func(*gorm.DB) *gorm.DB {
	p = p.Normalize()
	return func(db *gorm.DB) *gorm.DB {
		return db.Offset((p.Number - 1) * p.Size).Limit(p.Size)
	}
}
