package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/skybase-int/tarmac-sub003/internal/repository"
)

const defaultRetention = 30 * 24 * time.Hour

// Pruner removes settled attempts and idle session checkpoints older than
// Retention.
type Pruner struct {
	Repo      repository.Repository
	Retention time.Duration
	Logger    *zap.Logger
	now       func() time.Time
}

func (p *Pruner) Prune(ctx context.Context) (attempts int64, sessions int64, err error) {
	if p == nil || p.Repo == nil {
		return 0, 0, nil
	}
	retention := p.Retention
	if retention <= 0 {
		retention = defaultRetention
	}
	now := time.Now().UTC()
	if p.now != nil {
		now = p.now()
	}
	cutoff := now.Add(-retention)
	attempts, err = p.Repo.DeleteTxAttemptsBefore(ctx, cutoff)
	if err != nil {
		return 0, 0, err
	}
	sessions, err = p.Repo.DeleteWizardSessionsBefore(ctx, cutoff)
	if err != nil {
		return attempts, 0, err
	}
	if p.Logger != nil && (attempts > 0 || sessions > 0) {
		p.Logger.Info("pruned wizard history",
			zap.Int64("attempts", attempts),
			zap.Int64("sessions", sessions),
			zap.Time("cutoff", cutoff),
		)
	}
	return attempts, sessions, nil
}
