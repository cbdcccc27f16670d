// Package memrepository is an in-process repository.Repository. It backs the
// service when no database is configured and doubles as the test store.
package memrepository

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/skybase-int/tarmac-sub003/internal/models"
	"github.com/skybase-int/tarmac-sub003/internal/repository"
)

var _ repository.Repository = (*Store)(nil)

type Store struct {
	mu       sync.RWMutex
	settings map[string]models.SystemSetting
	attempts map[string]models.TxAttempt
	sessions map[string]models.WizardSession
	nextID   uint64

	now func() time.Time
}

func New() *Store {
	return &Store{
		settings: map[string]models.SystemSetting{},
		attempts: map[string]models.TxAttempt{},
		sessions: map[string]models.WizardSession{},
		now:      time.Now,
	}
}

// SetClock replaces the clock used for created/updated stamps.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	s.now = now
	s.mu.Unlock()
}

func (s *Store) stamp() time.Time {
	if s.now == nil {
		return time.Now().UTC()
	}
	return s.now().UTC()
}

// --- settings ---------------------------------------------------------------

func (s *Store) UpsertSystemSetting(ctx context.Context, item *models.SystemSetting) error {
	if s == nil || item == nil {
		return nil
	}
	item.Key = strings.TrimSpace(item.Key)
	if item.Key == "" {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.stamp()
	if prev, ok := s.settings[item.Key]; ok {
		item.ID = prev.ID
		item.CreatedAt = prev.CreatedAt
	} else {
		s.nextID++
		item.ID = s.nextID
		item.CreatedAt = now
	}
	item.UpdatedAt = now
	s.settings[item.Key] = *item
	return nil
}

func (s *Store) GetSystemSettingByKey(ctx context.Context, key string) (*models.SystemSetting, error) {
	if s == nil {
		return nil, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	item, ok := s.settings[strings.TrimSpace(key)]
	if !ok {
		return nil, nil
	}
	return &item, nil
}

func (s *Store) filterSettings(params repository.ListSystemSettingsParams) []models.SystemSetting {
	prefix := ""
	if params.Prefix != nil {
		prefix = strings.TrimSpace(*params.Prefix)
	}
	out := make([]models.SystemSetting, 0, len(s.settings))
	for _, item := range s.settings {
		if prefix != "" && !strings.HasPrefix(item.Key, prefix) {
			continue
		}
		out = append(out, item)
	}
	return out
}

func (s *Store) ListSystemSettings(ctx context.Context, params repository.ListSystemSettingsParams) ([]models.SystemSetting, error) {
	if s == nil {
		return nil, nil
	}
	s.mu.RLock()
	items := s.filterSettings(params)
	s.mu.RUnlock()

	asc := params.Asc != nil && *params.Asc
	sort.Slice(items, func(i, j int) bool {
		var less bool
		switch params.OrderBy {
		case "updated_at":
			less = items[i].UpdatedAt.Before(items[j].UpdatedAt)
		case "created_at":
			less = items[i].CreatedAt.Before(items[j].CreatedAt)
		default:
			less = items[i].Key < items[j].Key
		}
		if asc {
			return less
		}
		return !less
	})
	return page(items, params.Limit, params.Offset, 500), nil
}

func (s *Store) CountSystemSettings(ctx context.Context, params repository.ListSystemSettingsParams) (int64, error) {
	if s == nil {
		return 0, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.filterSettings(params))), nil
}

// --- attempts ---------------------------------------------------------------

// UpsertTxAttempt inserts the attempt or, for a known id, updates only its
// status columns like the SQL store does.
func (s *Store) UpsertTxAttempt(ctx context.Context, item *models.TxAttempt) error {
	if s == nil || item == nil || item.ID == "" {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if prev, ok := s.attempts[item.ID]; ok {
		prev.Status = item.Status
		prev.TxHash = item.TxHash
		prev.Error = item.Error
		prev.UpdatedAt = item.UpdatedAt
		s.attempts[item.ID] = prev
		return nil
	}
	s.attempts[item.ID] = *item
	return nil
}

func (s *Store) GetTxAttempt(ctx context.Context, id string) (*models.TxAttempt, error) {
	if s == nil {
		return nil, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	item, ok := s.attempts[strings.TrimSpace(id)]
	if !ok {
		return nil, nil
	}
	return &item, nil
}

func (s *Store) filterAttempts(params repository.ListTxAttemptsParams) []models.TxAttempt {
	owner := trimmed(params.Owner)
	group := trimmed(params.Group)
	status := trimmed(params.Status)
	out := make([]models.TxAttempt, 0, len(s.attempts))
	for _, item := range s.attempts {
		if owner != "" && !strings.EqualFold(item.Owner, owner) {
			continue
		}
		if group != "" && item.Group != group {
			continue
		}
		if status != "" && item.Status != status {
			continue
		}
		out = append(out, item)
	}
	return out
}

func (s *Store) ListTxAttempts(ctx context.Context, params repository.ListTxAttemptsParams) ([]models.TxAttempt, error) {
	if s == nil {
		return nil, nil
	}
	s.mu.RLock()
	items := s.filterAttempts(params)
	s.mu.RUnlock()

	asc := params.Asc != nil && *params.Asc
	sort.Slice(items, func(i, j int) bool {
		a, b := items[i].CreatedAt, items[j].CreatedAt
		if params.OrderBy == "updated_at" {
			a, b = items[i].UpdatedAt, items[j].UpdatedAt
		}
		if a.Equal(b) {
			return items[i].ID < items[j].ID
		}
		if asc {
			return a.Before(b)
		}
		return a.After(b)
	})
	return page(items, params.Limit, params.Offset, 100), nil
}

func (s *Store) CountTxAttempts(ctx context.Context, params repository.ListTxAttemptsParams) (int64, error) {
	if s == nil {
		return 0, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.filterAttempts(params))), nil
}

// DeleteTxAttemptsBefore drops settled attempts last touched before the
// cutoff. Attempts still in flight are kept.
func (s *Store) DeleteTxAttemptsBefore(ctx context.Context, before time.Time) (int64, error) {
	if s == nil || before.IsZero() {
		return 0, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, item := range s.attempts {
		if !item.UpdatedAt.Before(before) {
			continue
		}
		switch item.Status {
		case "success", "error", "cancelled", "idle":
			delete(s.attempts, id)
			n++
		}
	}
	return n, nil
}

// --- sessions ---------------------------------------------------------------

func (s *Store) UpsertWizardSession(ctx context.Context, item *models.WizardSession) error {
	if s == nil || item == nil {
		return nil
	}
	item.Owner = strings.ToLower(strings.TrimSpace(item.Owner))
	if item.Owner == "" {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.stamp()
	if prev, ok := s.sessions[item.Owner]; ok {
		item.ID = prev.ID
		item.CreatedAt = prev.CreatedAt
	} else {
		s.nextID++
		item.ID = s.nextID
		item.CreatedAt = now
	}
	item.UpdatedAt = now
	s.sessions[item.Owner] = *item
	return nil
}

func (s *Store) GetWizardSession(ctx context.Context, owner string) (*models.WizardSession, error) {
	if s == nil {
		return nil, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	item, ok := s.sessions[strings.ToLower(strings.TrimSpace(owner))]
	if !ok {
		return nil, nil
	}
	return &item, nil
}

func (s *Store) DeleteWizardSessionsBefore(ctx context.Context, before time.Time) (int64, error) {
	if s == nil || before.IsZero() {
		return 0, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for owner, item := range s.sessions {
		if item.UpdatedAt.Before(before) {
			delete(s.sessions, owner)
			n++
		}
	}
	return n, nil
}

func trimmed(v *string) string {
	if v == nil {
		return ""
	}
	return strings.TrimSpace(*v)
}

func page[T any](items []T, limit, offset, fallback int) []T {
	if limit <= 0 {
		limit = fallback
	}
	if limit > 500 {
		limit = 500
	}
	if offset < 0 {
		offset = 0
	}
	if offset >= len(items) {
		return []T{}
	}
	end := offset + limit
	if end > len(items) {
		end = len(items)
	}
	return items[offset:end]
}
