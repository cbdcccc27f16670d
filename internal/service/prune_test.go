package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/skybase-int/tarmac-sub003/internal/models"
	"github.com/skybase-int/tarmac-sub003/internal/repository"
	memrepository "github.com/skybase-int/tarmac-sub003/internal/repository/memory"
)

func TestPruner_KeepsLiveAttempts(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	old := now.Add(-48 * time.Hour)
	repo := memrepository.New()

	for _, a := range []models.TxAttempt{
		{ID: uuid.NewString(), Owner: testOwner, Group: "approve", Status: "success", CreatedAt: old, UpdatedAt: old},
		{ID: uuid.NewString(), Owner: testOwner, Group: "multicall", Status: "loading", CreatedAt: old, UpdatedAt: old},
		{ID: uuid.NewString(), Owner: testOwner, Group: "claim", Status: "error", CreatedAt: now, UpdatedAt: now},
	} {
		if err := repo.UpsertTxAttempt(ctx, &a); err != nil {
			t.Fatalf("upsert: %v", err)
		}
	}
	repo.SetClock(func() time.Time { return old })
	if err := repo.UpsertWizardSession(ctx, &models.WizardSession{Owner: testOwner, Flow: "manage"}); err != nil {
		t.Fatalf("upsert session: %v", err)
	}
	repo.SetClock(func() time.Time { return now })
	if err := repo.UpsertWizardSession(ctx, &models.WizardSession{Owner: "0x00000000000000000000000000000000000000b2", Flow: "open"}); err != nil {
		t.Fatalf("upsert session: %v", err)
	}

	p := &Pruner{Repo: repo, Retention: 24 * time.Hour, now: func() time.Time { return now }}
	attempts, sessions, err := p.Prune(ctx)
	if err != nil {
		t.Fatalf("prune: %v", err)
	}
	if attempts != 1 || sessions != 1 {
		t.Fatalf("attempts=%d sessions=%d want=1,1", attempts, sessions)
	}
	total, _ := repo.CountTxAttempts(ctx, repository.ListTxAttemptsParams{})
	if total != 2 {
		t.Fatalf("remaining=%d want=2", total)
	}
}
