package gormrepository

import (
	"context"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/skybase-int/tarmac-sub003/internal/models"
	"github.com/skybase-int/tarmac-sub003/internal/repository"
)

var _ repository.Repository = (*Store)(nil)

type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// --- settings ---------------------------------------------------------------

func (s *Store) UpsertSystemSetting(ctx context.Context, item *models.SystemSetting) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	item.Key = strings.TrimSpace(item.Key)
	if item.Key == "" {
		return nil
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"value",
			"description",
			"updated_at",
		}),
	}).Create(item).Error
}

func (s *Store) GetSystemSettingByKey(ctx context.Context, key string) (*models.SystemSetting, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, nil
	}
	var item models.SystemSetting
	err := s.db.WithContext(ctx).Model(&models.SystemSetting{}).Where("key = ?", key).First(&item).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func settingsQuery(db *gorm.DB, params repository.ListSystemSettingsParams) *gorm.DB {
	query := db.Model(&models.SystemSetting{})
	if params.Prefix != nil && strings.TrimSpace(*params.Prefix) != "" {
		query = query.Where("key LIKE ?", strings.TrimSpace(*params.Prefix)+"%")
	}
	return query
}

func (s *Store) ListSystemSettings(ctx context.Context, params repository.ListSystemSettingsParams) ([]models.SystemSetting, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := applyOrder(settingsQuery(s.db.WithContext(ctx), params), params.OrderBy, params.Asc, "key")
	var items []models.SystemSetting
	if err := query.Limit(normalizeLimit(params.Limit, 500)).Offset(normalizeOffset(params.Offset)).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) CountSystemSettings(ctx context.Context, params repository.ListSystemSettingsParams) (int64, error) {
	if s == nil || s.db == nil {
		return 0, nil
	}
	var total int64
	if err := settingsQuery(s.db.WithContext(ctx), params).Count(&total).Error; err != nil {
		return 0, err
	}
	return total, nil
}

// --- attempts ---------------------------------------------------------------

func (s *Store) UpsertTxAttempt(ctx context.Context, item *models.TxAttempt) error {
	if s == nil || s.db == nil || item == nil || item.ID == "" {
		return nil
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"status",
			"tx_hash",
			"error",
			"updated_at",
		}),
	}).Create(item).Error
}

func (s *Store) GetTxAttempt(ctx context.Context, id string) (*models.TxAttempt, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, nil
	}
	var item models.TxAttempt
	err := s.db.WithContext(ctx).Model(&models.TxAttempt{}).Where("id = ?", id).First(&item).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func attemptsQuery(db *gorm.DB, params repository.ListTxAttemptsParams) *gorm.DB {
	query := db.Model(&models.TxAttempt{})
	if params.Owner != nil && strings.TrimSpace(*params.Owner) != "" {
		query = query.Where("LOWER(owner) = ?", strings.ToLower(strings.TrimSpace(*params.Owner)))
	}
	if params.Group != nil && strings.TrimSpace(*params.Group) != "" {
		query = query.Where("tx_group = ?", strings.TrimSpace(*params.Group))
	}
	if params.Status != nil && strings.TrimSpace(*params.Status) != "" {
		query = query.Where("status = ?", strings.TrimSpace(*params.Status))
	}
	return query
}

func (s *Store) ListTxAttempts(ctx context.Context, params repository.ListTxAttemptsParams) ([]models.TxAttempt, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := applyOrder(attemptsQuery(s.db.WithContext(ctx), params), params.OrderBy, params.Asc, "created_at")
	var items []models.TxAttempt
	if err := query.Limit(normalizeLimit(params.Limit, 100)).Offset(normalizeOffset(params.Offset)).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) CountTxAttempts(ctx context.Context, params repository.ListTxAttemptsParams) (int64, error) {
	if s == nil || s.db == nil {
		return 0, nil
	}
	var total int64
	if err := attemptsQuery(s.db.WithContext(ctx), params).Count(&total).Error; err != nil {
		return 0, err
	}
	return total, nil
}

func (s *Store) DeleteTxAttemptsBefore(ctx context.Context, before time.Time) (int64, error) {
	if s == nil || s.db == nil {
		return 0, nil
	}
	if before.IsZero() {
		return 0, nil
	}
	res := s.db.WithContext(ctx).
		Where("updated_at < ?", before).
		Where("status IN ?", []string{"success", "error", "cancelled", "idle"}).
		Delete(&models.TxAttempt{})
	return res.RowsAffected, res.Error
}

// --- sessions ---------------------------------------------------------------

func (s *Store) UpsertWizardSession(ctx context.Context, item *models.WizardSession) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	item.Owner = strings.ToLower(strings.TrimSpace(item.Owner))
	if item.Owner == "" {
		return nil
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "owner"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"flow",
			"step",
			"action",
			"screen",
			"state",
			"draft",
			"updated_at",
		}),
	}).Create(item).Error
}

func (s *Store) GetWizardSession(ctx context.Context, owner string) (*models.WizardSession, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	owner = strings.ToLower(strings.TrimSpace(owner))
	if owner == "" {
		return nil, nil
	}
	var item models.WizardSession
	err := s.db.WithContext(ctx).Model(&models.WizardSession{}).Where("owner = ?", owner).First(&item).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) DeleteWizardSessionsBefore(ctx context.Context, before time.Time) (int64, error) {
	if s == nil || s.db == nil {
		return 0, nil
	}
	if before.IsZero() {
		return 0, nil
	}
	res := s.db.WithContext(ctx).Where("updated_at < ?", before).Delete(&models.WizardSession{})
	return res.RowsAffected, res.Error
}

func applyOrder(query *gorm.DB, orderBy string, asc *bool, fallback string) *gorm.DB {
	column := strings.TrimSpace(orderBy)
	if column == "" {
		column = fallback
	}
	direction := "desc"
	if asc != nil && *asc {
		direction = "asc"
	}
	return query.Order(column + " " + direction)
}

func normalizeLimit(limit, fallback int) int {
	if limit <= 0 {
		return fallback
	}
	if limit > 500 {
		return 500
	}
	return limit
}

func normalizeOffset(offset int) int {
	if offset < 0 {
		return 0
	}
	return offset
}
