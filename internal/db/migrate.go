package db

import (
	"github.com/skybase-int/tarmac-sub003/internal/models"
)

func AutoMigrate(db *DB) error {
	if db == nil || db.Gorm == nil || db.SQL == nil {
		return nil
	}

	return db.Gorm.AutoMigrate(
		&models.SystemSetting{},
		&models.TxAttempt{},
		&models.WizardSession{},
	)
}
