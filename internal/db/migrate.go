package db

import (
	"github.com/Scotty108/Cascadian-sub021/internal/models"
)

func AutoMigrate(db *DB) error {
	if db == nil || db.Gorm == nil || db.SQL == nil {
		return nil
	}

	return db.Gorm.AutoMigrate(
		&models.Fill{},
		&models.MarketResolution{},
		&models.TradeOutcome{},
		&models.WalletMetrics{},
		&models.EngineRun{},
		&models.SyncState{},
	)
}
