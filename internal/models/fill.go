package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Fill is one atomic execution from the upstream ledger. This table is
// read-only for the engine; the ingestion pipeline owns writes.
type Fill struct {
	ID            uint64 `gorm:"primaryKey;autoIncrement"`
	TransactionID string `gorm:"type:varchar(100);not null;index"`
	Wallet        string `gorm:"type:varchar(64);not null;index"`
	MarketID      string `gorm:"type:varchar(100);not null;index:idx_fills_market_time,priority:1"`
	OutcomeIndex  uint8  `gorm:"not null"`

	EventTime  time.Time       `gorm:"type:timestamptz;not null;index:idx_fills_market_time,priority:2"`
	TokenDelta decimal.Decimal `gorm:"type:numeric(30,10);not null"`
	CashDelta  decimal.Decimal `gorm:"type:numeric(30,10);not null"`

	IsMaker    bool `gorm:"not null;default:false"`
	IsSelfFill bool `gorm:"not null;default:false"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime"`
}

func (Fill) TableName() string {
	return "fills"
}
