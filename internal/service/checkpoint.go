package service

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"

	"github.com/skybase-int/tarmac-sub003/internal/draft"
	"github.com/skybase-int/tarmac-sub003/internal/flow"
	"github.com/skybase-int/tarmac-sub003/internal/models"
	"github.com/skybase-int/tarmac-sub003/internal/txdriver"
	"github.com/skybase-int/tarmac-sub003/internal/wizard"
)

const persistTimeout = 5 * time.Second

// record writes an attempt change to the audit table. Failures are logged
// and never block the wizard.
func (s *Session) record(a txdriver.Attempt) {
	if s.deps.Repo == nil {
		return
	}
	calls, err := json.Marshal(a.Calls)
	if err != nil {
		calls = []byte("[]")
	}
	item := &models.TxAttempt{
		ID:        a.ID.String(),
		Owner:     strings.ToLower(a.Owner),
		Group:     string(a.Group),
		Flow:      string(s.state.Flow),
		Status:    string(a.Status),
		TxHash:    a.Hash,
		Error:     a.Err,
		Calls:     datatypes.JSON(calls),
		CreatedAt: a.CreatedAt,
		UpdatedAt: a.UpdatedAt,
	}
	ctx, cancel := context.WithTimeout(s.ctx, persistTimeout)
	defer cancel()
	if err := s.deps.Repo.UpsertTxAttempt(ctx, item); err != nil && s.logger != nil {
		s.logger.Warn("persist tx attempt failed", zap.String("attempt", item.ID), zap.Error(err))
	}
}

// checkpointModel captures the state worth keeping across a restart, or nil
// when nothing changed since the last checkpoint.
func (s *Session) checkpointModel() *models.WizardSession {
	if s.version == s.saved {
		return nil
	}
	state, err := json.Marshal(s.state)
	if err != nil {
		return nil
	}
	d, err := json.Marshal(s.drafts.Snapshot())
	if err != nil {
		return nil
	}
	return &models.WizardSession{
		Owner:  strings.ToLower(s.Owner.Hex()),
		Flow:   string(s.state.Flow),
		Step:   string(s.state.Step),
		Action: string(s.state.Action),
		Screen: string(s.state.Screen),
		State:  datatypes.JSON(state),
		Draft:  datatypes.JSON(d),
	}
}

// Checkpoint persists the session if it changed. It reports whether a row
// was written.
func (s *Session) Checkpoint(ctx context.Context) (bool, error) {
	if s == nil || s.deps.Repo == nil {
		return false, nil
	}
	var (
		item    *models.WizardSession
		version uint64
	)
	if err := s.call(ctx, func() {
		item = s.checkpointModel()
		version = s.version
	}); err != nil {
		return false, err
	}
	if item == nil {
		return false, nil
	}
	if err := s.deps.Repo.UpsertWizardSession(ctx, item); err != nil {
		return false, err
	}
	s.post(func() {
		if version > s.saved {
			s.saved = version
		}
	})
	return true, nil
}

// checkpointNow is Checkpoint for a session whose goroutine may already be
// gone; it reads the fields directly and must only run after Close.
func (s *Session) checkpointNow(ctx context.Context) error {
	if s.deps.Repo == nil {
		return nil
	}
	item := s.checkpointModel()
	if item == nil {
		return nil
	}
	return s.deps.Repo.UpsertWizardSession(ctx, item)
}

// restore installs a checkpoint. Only the draft and a settled ACTION screen
// come back; attempts in flight are not resumable.
func (s *Session) restore(m *models.WizardSession) {
	if m == nil {
		return
	}
	if len(m.Draft) > 0 {
		var d draft.Draft
		if err := json.Unmarshal(m.Draft, &d); err == nil {
			s.drafts.Replace(d)
		}
	}
	if len(m.State) > 0 {
		var st wizard.State
		if err := json.Unmarshal(m.State, &st); err == nil {
			if st.Initialized && st.Screen == flow.ScreenAction && st.Flow.Valid() {
				st.Anchor = nil
				s.state = st
			} else {
				s.state.Skip = st.Skip
				s.state.SliderMode = st.SliderMode
			}
		}
	}
	s.saved = s.version
}
