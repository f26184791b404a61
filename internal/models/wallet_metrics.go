package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// WalletMetrics is one row per wallet per computed window, rebuilt wholesale
// from trade_outcomes on every aggregation run. Rate statistics cover scored
// trades only (roi present); volume and pnl cover everything.
type WalletMetrics struct {
	ID          uint64    `gorm:"primaryKey;autoIncrement"`
	Wallet      string    `gorm:"type:varchar(64);not null;uniqueIndex:uq_wallet_metrics_wallet_window,priority:1"`
	WindowStart time.Time `gorm:"type:timestamptz;not null;uniqueIndex:uq_wallet_metrics_wallet_window,priority:2"`
	WindowEnd   time.Time `gorm:"type:timestamptz;not null"`

	TradesTotal  int `gorm:"not null"`
	TradesScored int `gorm:"not null"`
	Wins         int `gorm:"not null"`
	Losses       int `gorm:"not null"`

	WinRate      *decimal.Decimal `gorm:"type:numeric(20,10)"`
	Expectancy   *decimal.Decimal `gorm:"type:numeric(20,10)"`
	Score        *decimal.Decimal `gorm:"type:numeric(20,10);index"`
	AvgWinROI    *decimal.Decimal `gorm:"column:avg_win_roi;type:numeric(20,10)"`
	MedianWinROI *decimal.Decimal `gorm:"column:median_win_roi;type:numeric(20,10)"`
	AvgLossROI   *decimal.Decimal `gorm:"column:avg_loss_roi;type:numeric(20,10)"`
	P95WinROI    *decimal.Decimal `gorm:"column:p95_win_roi;type:numeric(20,10)"`
	P95LossROI   *decimal.Decimal `gorm:"column:p95_loss_roi;type:numeric(20,10)"`
	ROIStdDev    *decimal.Decimal `gorm:"column:roi_stddev;type:numeric(20,10)"`

	VolumeUSD   decimal.Decimal `gorm:"column:volume_usd;type:numeric(30,10);not null;default:0"`
	RealizedPnL decimal.Decimal `gorm:"column:realized_pnl;type:numeric(30,10);not null;default:0"`

	FirstEntryAt *time.Time       `gorm:"type:timestamptz"`
	LastEntryAt  *time.Time       `gorm:"type:timestamptz"`
	ActiveDays   int              `gorm:"not null;default:0"`
	TradesPerDay *decimal.Decimal `gorm:"type:numeric(20,10)"`

	MakerRatio      *decimal.Decimal `gorm:"type:numeric(20,10)"`
	AvgPctSoldEarly *decimal.Decimal `gorm:"column:avg_pct_sold_early;type:numeric(20,10)"`

	ComputedAt time.Time `gorm:"type:timestamptz;not null"`
}

func (WalletMetrics) TableName() string {
	return "wallet_metrics"
}
