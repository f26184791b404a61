package models

import (
	"time"

	"gorm.io/datatypes"
)

// MarketResolution is the local mirror of the external resolution registry,
// kept current by the resolution sync service. PayoutNumerators is a JSON
// array of unsigned integers; payout rate per outcome is numerator / sum.
type MarketResolution struct {
	ID       uint64 `gorm:"primaryKey;autoIncrement"`
	MarketID string `gorm:"type:varchar(100);not null;uniqueIndex"`
	Question string `gorm:"type:text"`

	PayoutNumerators datatypes.JSON `gorm:"type:jsonb;not null"`
	ResolvedAt       time.Time      `gorm:"type:timestamptz;not null;index"`
	IsDeleted        bool           `gorm:"not null;default:false;index"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime"`
	UpdatedAt time.Time `gorm:"type:timestamptz;autoUpdateTime"`
}

func (MarketResolution) TableName() string {
	return "market_resolutions"
}
