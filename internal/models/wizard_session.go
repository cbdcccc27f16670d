package models

import (
	"time"

	"gorm.io/datatypes"
)

// WizardSession checkpoints a wallet's wizard so a restarted process can
// resume the draft. Snapshots and driver state are never stored.
type WizardSession struct {
	ID    uint64 `gorm:"primaryKey;autoIncrement"`
	Owner string `gorm:"type:varchar(42);not null;uniqueIndex"`

	Flow   string `gorm:"type:varchar(20);not null"`
	Step   string `gorm:"type:varchar(20);not null"`
	Action string `gorm:"type:varchar(20);not null"`
	Screen string `gorm:"type:varchar(20);not null"`

	State datatypes.JSON `gorm:"type:jsonb"`
	Draft datatypes.JSON `gorm:"type:jsonb"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime"`
	UpdatedAt time.Time `gorm:"type:timestamptz;autoUpdateTime;index"`
}

func (WizardSession) TableName() string {
	return "wizard_sessions"
}
