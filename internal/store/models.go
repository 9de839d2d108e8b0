package store

import (
	"time"

	"tradeflow/internal/domain"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// AnalysisDecision is an externally produced trading instruction. The core
// only writes the executed/execution_time/back-reference fields; everything
// else is read-only here.
type AnalysisDecision struct {
	ID             uint           `gorm:"column:id;primaryKey" json:"id"`
	AnalysisID     string         `gorm:"column:analysis_id;uniqueIndex" json:"analysis_id"`
	Ticker         string         `gorm:"column:ticker;index" json:"ticker"`
	AnalyzedAt     time.Time      `gorm:"column:analyzed_at" json:"analyzed_at"`
	Payload        datatypes.JSON `gorm:"column:payload;type:TEXT" json:"payload"`
	Approved       bool           `gorm:"column:approved" json:"approved"`
	Executed       bool           `gorm:"column:executed;index" json:"executed"`
	ExecutionTime  *time.Time     `gorm:"column:execution_time" json:"execution_time,omitempty"`
	BrokerOrderID  string         `gorm:"column:broker_order_id" json:"broker_order_id,omitempty"`
	TradeJournalID *uint          `gorm:"column:trade_journal_id" json:"trade_journal_id,omitempty"`
	Remarks        string         `gorm:"column:remarks" json:"remarks,omitempty"`
	CreatedAt      time.Time      `gorm:"column:created_at" json:"created_at"`
	UpdatedAt      time.Time      `gorm:"column:updated_at" json:"updated_at"`
}

func (AnalysisDecision) TableName() string { return "analysis_decisions" }

// TradeJournal tracks one intended position from order through close.
type TradeJournal struct {
	ID                uint                `gorm:"column:id;primaryKey" json:"id"`
	TradeID           string              `gorm:"column:trade_id;uniqueIndex" json:"trade_id"`
	Symbol            string              `gorm:"column:symbol;index" json:"symbol"`
	Strategy          string              `gorm:"column:strategy" json:"strategy"`
	Pattern           string              `gorm:"column:pattern" json:"pattern,omitempty"`
	Status            domain.TradeStatus  `gorm:"column:status;index" json:"status"`
	InitialAnalysisID string              `gorm:"column:initial_analysis_id" json:"initial_analysis_id,omitempty"`
	PlannedEntry      decimal.Decimal     `gorm:"column:planned_entry;type:decimal(18,6)" json:"planned_entry"`
	PlannedStopLoss   decimal.Decimal     `gorm:"column:planned_stop_loss;type:decimal(18,6)" json:"planned_stop_loss"`
	PlannedTakeProfit decimal.NullDecimal `gorm:"column:planned_take_profit;type:decimal(18,6)" json:"planned_take_profit,omitempty"`
	PlannedQty        decimal.Decimal     `gorm:"column:planned_qty;type:decimal(18,6)" json:"planned_qty"`
	ActualEntry       decimal.NullDecimal `gorm:"column:actual_entry;type:decimal(18,6)" json:"actual_entry,omitempty"`
	ActualQty         decimal.NullDecimal `gorm:"column:actual_qty;type:decimal(18,6)" json:"actual_qty,omitempty"`
	ExitDate          *time.Time          `gorm:"column:exit_date" json:"exit_date,omitempty"`
	ExitPrice         decimal.NullDecimal `gorm:"column:exit_price;type:decimal(18,6)" json:"exit_price,omitempty"`
	ActualPnL         decimal.NullDecimal `gorm:"column:actual_pnl;type:decimal(18,6)" json:"actual_pnl,omitempty"`
	ExitReason        domain.ExitReason   `gorm:"column:exit_reason" json:"exit_reason,omitempty"`
	CreatedAt         time.Time           `gorm:"column:created_at" json:"created_at"`
	UpdatedAt         time.Time           `gorm:"column:updated_at" json:"updated_at"`
}

func (TradeJournal) TableName() string { return "trade_journal" }

// PlansTakeProfit reports whether a take-profit order should exist once the
// entry fills. Only swing trades carry a target.
func (t *TradeJournal) PlansTakeProfit() bool {
	return t.Strategy == domain.StrategySwing && t.PlannedTakeProfit.Valid && t.PlannedTakeProfit.Decimal.IsPositive()
}

// OrderExecution is one broker order tied to a trade.
type OrderExecution struct {
	ID                 uint                `gorm:"column:id;primaryKey" json:"id"`
	TradeJournalID     uint                `gorm:"column:trade_journal_id;index" json:"trade_journal_id"`
	AnalysisDecisionID string              `gorm:"column:analysis_decision_id" json:"analysis_decision_id,omitempty"`
	BrokerOrderID      string              `gorm:"column:broker_order_id;uniqueIndex" json:"broker_order_id"`
	ClientOrderID      string              `gorm:"column:client_order_id" json:"client_order_id,omitempty"`
	OrderType          domain.OrderType    `gorm:"column:order_type;index" json:"order_type"`
	Side               domain.Side         `gorm:"column:side" json:"side"`
	Status             domain.OrderStatus  `gorm:"column:order_status;index" json:"order_status"`
	TimeInForce        string              `gorm:"column:time_in_force" json:"time_in_force,omitempty"`
	Qty                decimal.Decimal     `gorm:"column:qty;type:decimal(18,6)" json:"qty"`
	LimitPrice         decimal.NullDecimal `gorm:"column:limit_price;type:decimal(18,6)" json:"limit_price,omitempty"`
	StopPrice          decimal.NullDecimal `gorm:"column:stop_price;type:decimal(18,6)" json:"stop_price,omitempty"`
	FilledQty          decimal.NullDecimal `gorm:"column:filled_qty;type:decimal(18,6)" json:"filled_qty,omitempty"`
	FilledAvgPrice     decimal.NullDecimal `gorm:"column:filled_avg_price;type:decimal(18,6)" json:"filled_avg_price,omitempty"`
	FilledAt           *time.Time          `gorm:"column:filled_at" json:"filled_at,omitempty"`
	CreatedAt          time.Time           `gorm:"column:created_at" json:"created_at"`
	UpdatedAt          time.Time           `gorm:"column:updated_at" json:"updated_at"`
}

func (OrderExecution) TableName() string { return "order_executions" }

// PositionTracking is the open snapshot for exactly one trade in POSITION
// status. Deleted on close; its existence is the invariant the position
// reconciler polices.
type PositionTracking struct {
	ID                uint            `gorm:"column:id;primaryKey" json:"id"`
	TradeJournalID    uint            `gorm:"column:trade_journal_id;uniqueIndex" json:"trade_journal_id"`
	Symbol            string          `gorm:"column:symbol;index" json:"symbol"`
	Qty               decimal.Decimal `gorm:"column:qty;type:decimal(18,6)" json:"qty"`
	AvgEntryPrice     decimal.Decimal `gorm:"column:avg_entry_price;type:decimal(18,6)" json:"avg_entry_price"`
	CurrentPrice      decimal.Decimal `gorm:"column:current_price;type:decimal(18,6)" json:"current_price"`
	MarketValue       decimal.Decimal `gorm:"column:market_value;type:decimal(18,6)" json:"market_value"`
	CostBasis         decimal.Decimal `gorm:"column:cost_basis;type:decimal(18,6)" json:"cost_basis"`
	UnrealizedPnL     decimal.Decimal `gorm:"column:unrealized_pnl;type:decimal(18,6)" json:"unrealized_pnl"`
	StopLossOrderID   string          `gorm:"column:stop_loss_order_id" json:"stop_loss_order_id,omitempty"`
	TakeProfitOrderID string          `gorm:"column:take_profit_order_id" json:"take_profit_order_id,omitempty"`
	CreatedAt         time.Time       `gorm:"column:created_at" json:"created_at"`
	UpdatedAt         time.Time       `gorm:"column:updated_at" json:"updated_at"`
}

func (PositionTracking) TableName() string { return "position_tracking" }

// TickerWatchlist is the peripheral watchlist consumed by the analysis
// pipeline upstream.
type TickerWatchlist struct {
	ID        uint      `gorm:"column:id;primaryKey" json:"id"`
	Ticker    string    `gorm:"column:ticker;uniqueIndex" json:"ticker"`
	Name      string    `gorm:"column:name" json:"name"`
	Exchange  string    `gorm:"column:exchange" json:"exchange"`
	Industry  string    `gorm:"column:industry" json:"industry,omitempty"`
	Active    bool      `gorm:"column:active" json:"active"`
	CreatedAt time.Time `gorm:"column:created_at" json:"created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at" json:"updated_at"`
}

func (TickerWatchlist) TableName() string { return "ticker_watchlist" }
