package models

import (
	"time"

	"gorm.io/datatypes"
)

// SyncState is a per-scope cursor for external-source sync jobs. The
// resolution sync stores its high-water resolved_at here so restarts resume
// instead of re-scanning.
type SyncState struct {
	Scope         string         `gorm:"primaryKey;type:text"`
	WatermarkTS   *time.Time     `gorm:"type:timestamptz"`
	LastSuccessAt *time.Time     `gorm:"type:timestamptz"`
	LastAttemptAt *time.Time     `gorm:"type:timestamptz"`
	LastError     *string        `gorm:"type:text"`
	StatsJSON     datatypes.JSON `gorm:"type:jsonb"`
}

func (SyncState) TableName() string {
	return "sync_state"
}
