package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// TradeOutcome is the engine's primary output: one row per buy decision,
// describing how its tokens were disposed of and what that realized.
// Re-runs upsert on (wallet, trade_id) with computed_at as the tiebreak.
type TradeOutcome struct {
	ID           uint64 `gorm:"primaryKey;autoIncrement"`
	Wallet       string `gorm:"type:varchar(64);not null;uniqueIndex:uq_trade_outcomes_wallet_trade,priority:1"`
	TradeID      string `gorm:"type:varchar(100);not null;uniqueIndex:uq_trade_outcomes_wallet_trade,priority:2"`
	MarketID     string `gorm:"type:varchar(100);not null;index"`
	OutcomeIndex uint8  `gorm:"not null"`

	EntryTime time.Time       `gorm:"type:timestamptz;not null;index"`
	Tokens    decimal.Decimal `gorm:"type:numeric(30,10);not null"`
	// Use explicit column names because default GORM naming turns "PnL" into "pn_l".
	CostUSD            decimal.Decimal  `gorm:"column:cost_usd;type:numeric(30,10);not null"`
	ExitValueUSD       decimal.Decimal  `gorm:"column:exit_value_usd;type:numeric(30,10);not null"`
	PnLUSD             decimal.Decimal  `gorm:"column:pnl_usd;type:numeric(30,10);not null"`
	ROI                *decimal.Decimal `gorm:"column:roi;type:numeric(20,10)"`
	PctTokensSoldEarly decimal.Decimal  `gorm:"type:numeric(20,10);not null"`

	IsMaker    bool      `gorm:"not null;default:false"`
	ResolvedAt time.Time `gorm:"type:timestamptz;not null"`
	ComputedAt time.Time `gorm:"type:timestamptz;not null;index"`
}

func (TradeOutcome) TableName() string {
	return "trade_outcomes"
}
