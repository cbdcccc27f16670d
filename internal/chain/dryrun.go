package chain

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"

	"github.com/skybase-int/tarmac-sub003/internal/txdriver"
)

// DryRun acknowledges every attempt with a synthetic hash derived from the
// attempt and its calldata. Nothing is broadcast.
type DryRun struct {
	Logger *zap.Logger
	// Delay postpones success. Zero reports inline.
	Delay time.Duration
}

func SyntheticHash(a txdriver.Attempt) string {
	parts := [][]byte{a.ID[:]}
	for _, c := range a.Calls {
		parts = append(parts, c.To.Bytes(), c.Data)
	}
	return crypto.Keccak256Hash(parts...).Hex()
}

func (d *DryRun) Submit(ctx context.Context, a txdriver.Attempt, h txdriver.Hooks) error {
	hash := SyntheticHash(a)
	if d != nil && d.Logger != nil {
		d.Logger.Info("dry-run attempt",
			zap.String("owner", a.Owner),
			zap.String("group", string(a.Group)),
			zap.String("hash", hash),
			zap.Int("calls", len(a.Calls)),
		)
	}
	h.OnStart(hash)
	if d == nil || d.Delay <= 0 {
		h.OnSuccess(hash)
		return nil
	}
	go func() {
		t := time.NewTimer(d.Delay)
		defer t.Stop()
		select {
		case <-t.C:
			h.OnSuccess(hash)
		case <-ctx.Done():
			h.OnError(ctx.Err())
		}
	}()
	return nil
}
