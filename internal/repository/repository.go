package repository

import (
	"context"
	"time"

	"github.com/skybase-int/tarmac-sub003/internal/models"
)

type SettingsRepository interface {
	UpsertSystemSetting(ctx context.Context, item *models.SystemSetting) error
	GetSystemSettingByKey(ctx context.Context, key string) (*models.SystemSetting, error)
	ListSystemSettings(ctx context.Context, params ListSystemSettingsParams) ([]models.SystemSetting, error)
	CountSystemSettings(ctx context.Context, params ListSystemSettingsParams) (int64, error)
}

// Repository is everything the wizard service persists. Nothing read from it
// drives wizard decisions; attempts are an audit trail and sessions a
// restart checkpoint.
type Repository interface {
	SettingsRepository

	UpsertTxAttempt(ctx context.Context, item *models.TxAttempt) error
	GetTxAttempt(ctx context.Context, id string) (*models.TxAttempt, error)
	ListTxAttempts(ctx context.Context, params ListTxAttemptsParams) ([]models.TxAttempt, error)
	CountTxAttempts(ctx context.Context, params ListTxAttemptsParams) (int64, error)
	DeleteTxAttemptsBefore(ctx context.Context, before time.Time) (int64, error)

	UpsertWizardSession(ctx context.Context, item *models.WizardSession) error
	GetWizardSession(ctx context.Context, owner string) (*models.WizardSession, error)
	DeleteWizardSessionsBefore(ctx context.Context, before time.Time) (int64, error)
}

type ListSystemSettingsParams struct {
	Limit   int
	Offset  int
	Prefix  *string
	OrderBy string
	Asc     *bool
}

type ListTxAttemptsParams struct {
	Limit   int
	Offset  int
	Owner   *string
	Group   *string
	Status  *string
	OrderBy string
	Asc     *bool
}
