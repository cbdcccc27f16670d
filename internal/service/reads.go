package service

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/skybase-int/tarmac-sub003/internal/chain"
	"github.com/skybase-int/tarmac-sub003/internal/draft"
	"github.com/skybase-int/tarmac-sub003/internal/metrics"
	"github.com/skybase-int/tarmac-sub003/internal/risk"
	"github.com/skybase-int/tarmac-sub003/internal/snapshot"
	"github.com/skybase-int/tarmac-sub003/internal/wizard"
)

// ChainReader is what a session reads from chain. *chain.Reader satisfies it.
type ChainReader interface {
	PositionCount(ctx context.Context, e draft.Engine, owner common.Address) (uint64, error)
	Position(ctx context.Context, e draft.Engine, owner common.Address, index uint64) (risk.Position, error)
	Ilk(ctx context.Context, e draft.Engine) (chain.IlkInfo, error)
	Allowance(ctx context.Context, asset draft.Asset, owner common.Address, e draft.Engine) (decimal.Decimal, error)
	Balance(ctx context.Context, asset draft.Asset, owner common.Address) (decimal.Decimal, error)
	MigratorAuthorized(ctx context.Context, e draft.Engine, owner common.Address, index uint64) (bool, error)
}

var _ ChainReader = (*chain.Reader)(nil)

const (
	kindCount     = "count"
	kindPosition  = "position"
	kindAllowance = "allowance"
	kindBalance   = "balance"
	kindAuth      = "auth"
	kindIlk       = "ilk"
)

// readKey names one external read. Its string form is the snapshot key.
type readKey struct {
	kind   string
	engine draft.Engine
	asset  draft.Asset
	index  uint64
}

func (k readKey) String() string {
	switch k.kind {
	case kindCount, kindIlk:
		return k.kind + ":" + string(k.engine)
	case kindPosition, kindAuth:
		return fmt.Sprintf("%s:%s:%d", k.kind, k.engine, k.index)
	case kindAllowance:
		return k.kind + ":" + string(k.engine) + ":" + string(k.asset)
	case kindBalance:
		return k.kind + ":" + string(k.asset)
	}
	return k.kind
}

func countKey(e draft.Engine) readKey  { return readKey{kind: kindCount, engine: e} }
func ilkKey(e draft.Engine) readKey    { return readKey{kind: kindIlk, engine: e} }
func balanceKey(a draft.Asset) readKey { return readKey{kind: kindBalance, asset: a} }

func positionKey(e draft.Engine, index uint64) readKey {
	return readKey{kind: kindPosition, engine: e, index: index}
}

func authKey(e draft.Engine, index uint64) readKey {
	return readKey{kind: kindAuth, engine: e, index: index}
}

func allowanceKey(e draft.Engine, a draft.Asset) readKey {
	return readKey{kind: kindAllowance, engine: e, asset: a}
}

// lookup reads k from the session's snapshots. Keys never seen before are
// queued so the next load fetches them.
func lookup[T any](s *Session, k readKey) snapshot.Value[T] {
	key := k.String()
	if _, ok := s.known[key]; !ok {
		s.known[key] = k
	}
	v := snapshot.Get[T](s.snaps, key)
	if v.Status == snapshot.StatusUnknown {
		s.missing[key] = k
	}
	return v
}

// load marks keys loading and fetches them in the background. A single
// Recompute is posted once every read has landed.
func (s *Session) load(keys []readKey) {
	if len(keys) == 0 || s.deps.Reader == nil {
		return
	}
	type job struct {
		key   readKey
		token uint64
	}
	jobs := make([]job, 0, len(keys))
	for _, k := range keys {
		jobs = append(jobs, job{key: k, token: s.snaps.Begin(k.String())})
		delete(s.missing, k.String())
	}

	s.mu.Lock()
	s.inflight++
	s.mu.Unlock()

	go func() {
		var g errgroup.Group
		limit := s.deps.RefreshLimit
		if limit <= 0 {
			limit = 4
		}
		g.SetLimit(limit)
		for _, j := range jobs {
			j := j
			g.Go(func() error {
				s.read(s.ctx, j.key, j.token)
				return nil
			})
		}
		_ = g.Wait()
		s.post(func() { s.apply(wizard.Recompute{}) })

		s.mu.Lock()
		s.inflight--
		s.mu.Unlock()
	}()
}

func (s *Session) read(ctx context.Context, k readKey, token uint64) {
	val, err := s.fetch(ctx, k)
	key := k.String()
	result := "resolved"
	var applied bool
	if err != nil {
		result = "failed"
		applied = s.snaps.Fail(key, token, err)
		if s.logger != nil {
			s.logger.Warn("snapshot read failed", zap.String("key", key), zap.Error(err))
		}
	} else {
		applied = s.snaps.Resolve(key, token, val)
	}
	if !applied {
		result = "dropped"
	}
	metrics.IncSnapshotRead(k.kind, result)
}

func (s *Session) fetch(ctx context.Context, k readKey) (any, error) {
	r := s.deps.Reader
	switch k.kind {
	case kindCount:
		return r.PositionCount(ctx, k.engine, s.Owner)
	case kindPosition:
		return r.Position(ctx, k.engine, s.Owner, k.index)
	case kindIlk:
		return r.Ilk(ctx, k.engine)
	case kindAllowance:
		return r.Allowance(ctx, k.asset, s.Owner, k.engine)
	case kindBalance:
		return r.Balance(ctx, k.asset, s.Owner)
	case kindAuth:
		return r.MigratorAuthorized(ctx, k.engine, s.Owner, k.index)
	}
	return nil, fmt.Errorf("unknown read kind %q", k.kind)
}

// knownOf lists every key of the given kinds that has been looked up.
func (s *Session) knownOf(kinds ...string) []readKey {
	var out []readKey
	for _, k := range s.known {
		for _, kind := range kinds {
			if k.kind == kind {
				out = append(out, k)
				break
			}
		}
	}
	return out
}
