package service

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"gorm.io/datatypes"

	"github.com/skybase-int/tarmac-sub003/internal/models"
	"github.com/skybase-int/tarmac-sub003/internal/repository"
)

const (
	FeatureMigrate           = "feature.migrate"
	FeatureClaim             = "feature.claim"
	FeatureSessionCheckpoint = "feature.session_checkpoint"
	FeatureAttemptPrune      = "feature.attempt_prune"

	// ExecutorModeKey overrides executor.mode from the config file.
	ExecutorModeKey = "executor.mode"
)

func DefaultFeatureSwitches() map[string]bool {
	return map[string]bool{
		FeatureMigrate:           true,
		FeatureClaim:             true,
		FeatureSessionCheckpoint: true,
		FeatureAttemptPrune:      true,
	}
}

type SystemSettingsService struct {
	Repo repository.SettingsRepository
	// DefaultMode is returned by Mode when no override is stored.
	DefaultMode string
}

func (s *SystemSettingsService) EnsureDefaultSwitches(ctx context.Context) error {
	if s == nil || s.Repo == nil {
		return nil
	}
	now := time.Now().UTC()
	for key, enabled := range DefaultFeatureSwitches() {
		existing, err := s.Repo.GetSystemSettingByKey(ctx, key)
		if err != nil {
			return err
		}
		if existing != nil {
			continue
		}
		raw, _ := json.Marshal(enabled)
		item := &models.SystemSetting{
			Key:         key,
			Value:       datatypes.JSON(raw),
			Description: "feature switch",
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := s.Repo.UpsertSystemSetting(ctx, item); err != nil {
			return err
		}
	}
	return nil
}

func (s *SystemSettingsService) IsEnabled(ctx context.Context, key string, fallback bool) bool {
	if s == nil || s.Repo == nil {
		return fallback
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return fallback
	}
	item, err := s.Repo.GetSystemSettingByKey(ctx, key)
	if err != nil || item == nil {
		return fallback
	}
	enabled, ok := item.Bool()
	if !ok {
		return fallback
	}
	return enabled
}

func (s *SystemSettingsService) SetEnabled(ctx context.Context, key string, enabled bool) error {
	if s == nil || s.Repo == nil {
		return nil
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return nil
	}
	raw, _ := json.Marshal(enabled)
	item := &models.SystemSetting{
		Key:         key,
		Value:       datatypes.JSON(raw),
		Description: "feature switch",
		UpdatedAt:   time.Now().UTC(),
	}
	return s.Repo.UpsertSystemSetting(ctx, item)
}

// Mode is the submitter mode for new attempts. A stored override wins over
// DefaultMode.
func (s *SystemSettingsService) Mode(ctx context.Context) string {
	if s == nil {
		return ""
	}
	if s.Repo == nil {
		return s.DefaultMode
	}
	item, err := s.Repo.GetSystemSettingByKey(ctx, ExecutorModeKey)
	if err != nil || item == nil {
		return s.DefaultMode
	}
	mode, ok := item.Text()
	if !ok || strings.TrimSpace(mode) == "" {
		return s.DefaultMode
	}
	return strings.TrimSpace(mode)
}

func (s *SystemSettingsService) SetMode(ctx context.Context, mode string) error {
	if s == nil || s.Repo == nil {
		return nil
	}
	raw, _ := json.Marshal(strings.TrimSpace(mode))
	item := &models.SystemSetting{
		Key:         ExecutorModeKey,
		Value:       datatypes.JSON(raw),
		Description: "submitter mode",
		UpdatedAt:   time.Now().UTC(),
	}
	return s.Repo.UpsertSystemSetting(ctx, item)
}
