package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

const (
	RunStatusRunning   = "running"
	RunStatusSucceeded = "succeeded"
	RunStatusFailed    = "failed"

	RunTriggerCron = "cron"
	RunTriggerHTTP = "http"
	RunTriggerCLI  = "cli"
)

// EngineRun records one attribution pass: the requested scope and knobs,
// and the final summary counters.
type EngineRun struct {
	ID      string `gorm:"type:uuid;primaryKey"`
	Trigger string `gorm:"type:varchar(20);not null"`
	Status  string `gorm:"type:varchar(20);not null;index"`

	Scope        datatypes.JSON  `gorm:"type:jsonb"`
	WorkerCount  int             `gorm:"not null"`
	MinTradeCost decimal.Decimal `gorm:"type:numeric(20,10);not null;default:0"`

	Summary datatypes.JSON `gorm:"type:jsonb"`
	Error   *string        `gorm:"type:text"`

	StartedAt  time.Time  `gorm:"type:timestamptz;not null;index"`
	FinishedAt *time.Time `gorm:"type:timestamptz"`
}

func (EngineRun) TableName() string {
	return "engine_runs"
}
