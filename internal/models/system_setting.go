package models

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

// SystemSetting holds runtime switches (feature.*) and overrides such as
// executor.mode that apply without a restart.
type SystemSetting struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"`

	Key string `gorm:"type:varchar(120);not null;uniqueIndex"`

	// JSON value: a bool for switches, a string for modes.
	Value datatypes.JSON `gorm:"type:jsonb;not null"`

	Description string    `gorm:"type:text"`
	CreatedAt   time.Time `gorm:"type:timestamptz;autoCreateTime"`
	UpdatedAt   time.Time `gorm:"type:timestamptz;autoUpdateTime;index"`
}

func (SystemSetting) TableName() string {
	return "system_settings"
}

// Bool decodes a switch value. ok is false when the value is not a bool.
func (s *SystemSetting) Bool() (value bool, ok bool) {
	if s == nil || len(s.Value) == 0 {
		return false, false
	}
	if err := json.Unmarshal(s.Value, &value); err != nil {
		return false, false
	}
	return value, true
}

func (s *SystemSetting) Text() (value string, ok bool) {
	if s == nil || len(s.Value) == 0 {
		return "", false
	}
	if err := json.Unmarshal(s.Value, &value); err != nil {
		return "", false
	}
	return value, true
}
