package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	"github.com/skybase-int/tarmac-sub003/internal/metrics"
	"github.com/skybase-int/tarmac-sub003/internal/models"
)

const defaultSessionTTL = 30 * time.Minute

// Registry keeps one live session per owner. Sessions idle for longer than
// the TTL are checkpointed and closed.
type Registry struct {
	Deps Deps

	once     sync.Once
	mu       sync.Mutex
	sessions *cache.Cache
	ttl      time.Duration
}

func NewRegistry(deps Deps, ttl time.Duration) *Registry {
	if ttl <= 0 {
		ttl = defaultSessionTTL
	}
	r := &Registry{Deps: deps, ttl: ttl}
	r.init()
	return r
}

func (r *Registry) init() {
	r.once.Do(func() {
		if r.ttl <= 0 {
			r.ttl = defaultSessionTTL
		}
		r.sessions = cache.New(r.ttl, r.ttl/2)
		r.sessions.OnEvicted(func(key string, v interface{}) {
			s, ok := v.(*Session)
			if !ok {
				return
			}
			r.retire(s)
		})
	})
}

func (r *Registry) retire(s *Session) {
	s.Close()
	metrics.SessionClosed()
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	if err := s.checkpointNow(ctx); err != nil && r.Deps.Logger != nil {
		r.Deps.Logger.Warn("session checkpoint on evict failed",
			zap.String("owner", s.Owner.Hex()),
			zap.Error(err),
		)
	}
}

func ownerKey(owner string) (string, common.Address, error) {
	owner = strings.TrimSpace(owner)
	if !common.IsHexAddress(owner) {
		return "", common.Address{}, ErrBadOwner
	}
	addr := common.HexToAddress(owner)
	return strings.ToLower(addr.Hex()), addr, nil
}

// Get returns the owner's session, creating it (and restoring its last
// checkpoint) on first use. Every Get extends the idle deadline.
func (r *Registry) Get(ctx context.Context, owner string) (*Session, error) {
	if r == nil {
		return nil, ErrSessionClosed
	}
	r.init()
	key, addr, err := ownerKey(owner)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if v, ok := r.sessions.Get(key); ok {
		s := v.(*Session)
		r.sessions.Set(key, s, cache.DefaultExpiration)
		return s, nil
	}

	checkpoint := r.load(ctx, key)
	s := newSession(addr, &r.Deps, checkpoint)
	r.sessions.Set(key, s, cache.DefaultExpiration)
	metrics.SessionOpened()
	if r.Deps.Logger != nil {
		r.Deps.Logger.Info("session opened", zap.String("owner", key), zap.Bool("restored", checkpoint != nil))
	}
	if err := s.Start(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// Peek returns a live session without creating one.
func (r *Registry) Peek(owner string) (*Session, bool) {
	if r == nil {
		return nil, false
	}
	r.init()
	key, _, err := ownerKey(owner)
	if err != nil {
		return nil, false
	}
	v, ok := r.sessions.Get(key)
	if !ok {
		return nil, false
	}
	return v.(*Session), true
}

func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	r.init()
	return r.sessions.ItemCount()
}

// Checkpoint persists every live session that changed. It returns how many
// rows were written.
func (r *Registry) Checkpoint(ctx context.Context) (int, error) {
	if r == nil {
		return 0, nil
	}
	r.init()
	written := 0
	for _, item := range r.sessions.Items() {
		s, ok := item.Object.(*Session)
		if !ok {
			continue
		}
		wrote, err := s.Checkpoint(ctx)
		if err != nil {
			if errors.Is(err, ErrSessionClosed) {
				continue
			}
			return written, err
		}
		if wrote {
			written++
		}
	}
	return written, nil
}

// Close checkpoints and closes every session.
func (r *Registry) Close() {
	if r == nil {
		return
	}
	r.init()
	r.mu.Lock()
	defer r.mu.Unlock()
	for key := range r.sessions.Items() {
		r.sessions.Delete(key)
	}
}

func (r *Registry) load(ctx context.Context, key string) *models.WizardSession {
	if r.Deps.Repo == nil {
		return nil
	}
	item, err := r.Deps.Repo.GetWizardSession(ctx, key)
	if err != nil {
		if r.Deps.Logger != nil {
			r.Deps.Logger.Warn("load session checkpoint failed", zap.String("owner", key), zap.Error(err))
		}
		return nil
	}
	return item
}
