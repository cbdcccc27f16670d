package models

import (
	"time"

	"gorm.io/datatypes"
)

// TxAttempt is the audit row of one transaction attempt. Every status change
// overwrites the row; the driver never reads it back.
type TxAttempt struct {
	ID    string `gorm:"type:varchar(36);primaryKey"`
	Owner string `gorm:"type:varchar(42);not null;index"`

	Group  string `gorm:"column:tx_group;type:varchar(20);not null;index"`
	Flow   string `gorm:"type:varchar(20);not null"`
	Status string `gorm:"type:varchar(20);not null;index"`

	TxHash string `gorm:"type:varchar(66);index"`
	Error  string `gorm:"type:text"`

	Calls datatypes.JSON `gorm:"type:jsonb;not null"`

	CreatedAt time.Time `gorm:"type:timestamptz;not null;index"`
	UpdatedAt time.Time `gorm:"type:timestamptz;not null"`
}

func (TxAttempt) TableName() string {
	return "tx_attempts"
}
