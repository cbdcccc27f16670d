package chain

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/skybase-int/tarmac-sub003/internal/txdriver"
)

var (
	ErrUnknownAttempt = errors.New("no pending attempt with that id")
	ErrBadHash        = errors.New("invalid transaction hash")
	// ErrRejected is the wallet declining to sign.
	ErrRejected = txdriver.ErrRejected
)

// WalletReport is what the connected wallet posts back for a parked attempt.
// Exactly one of Hash, Rejected or Error is expected.
type WalletReport struct {
	Hash     string `json:"hash"`
	Rejected bool   `json:"rejected"`
	Error    string `json:"error"`
}

type parked struct {
	attempt txdriver.Attempt
	hooks   txdriver.Hooks
}

// WalletBridge parks prepared attempts until the owner's wallet fetches,
// signs and broadcasts them. Once a hash is reported the receipt is watched
// on BaseCtx, which outlives the request that reported it.
type WalletBridge struct {
	Watcher *ReceiptWatcher
	Logger  *zap.Logger
	BaseCtx context.Context

	mu      sync.Mutex
	pending map[uuid.UUID]*parked
	wg      sync.WaitGroup
}

func (b *WalletBridge) Submit(_ context.Context, a txdriver.Attempt, h txdriver.Hooks) error {
	if b == nil {
		return errors.New("wallet bridge not configured")
	}
	b.mu.Lock()
	if b.pending == nil {
		b.pending = map[uuid.UUID]*parked{}
	}
	b.pending[a.ID] = &parked{attempt: a, hooks: h}
	b.mu.Unlock()
	if b.Logger != nil {
		b.Logger.Info("attempt parked for wallet",
			zap.String("owner", a.Owner),
			zap.String("group", string(a.Group)),
			zap.String("attempt", a.ID.String()),
		)
	}
	return nil
}

// Pending lists the attempts of owner that still wait for the wallet, oldest
// first.
func (b *WalletBridge) Pending(owner string) []txdriver.Attempt {
	if b == nil {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []txdriver.Attempt
	for _, p := range b.pending {
		if strings.EqualFold(p.attempt.Owner, owner) {
			out = append(out, p.attempt)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// Discard drops every parked attempt of owner without reporting on them.
func (b *WalletBridge) Discard(owner string) {
	if b == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, p := range b.pending {
		if strings.EqualFold(p.attempt.Owner, owner) {
			delete(b.pending, id)
		}
	}
}

// Withdraw drops the parked attempt id. It reports false when the attempt is
// not parked, which includes one whose report is already being delivered.
func (b *WalletBridge) Withdraw(id uuid.UUID) bool {
	if b == nil {
		return false
	}
	p, ok := b.take(id)
	if ok && b.Logger != nil {
		b.Logger.Info("parked attempt withdrawn",
			zap.String("owner", p.attempt.Owner),
			zap.String("group", string(p.attempt.Group)),
			zap.String("attempt", id.String()),
		)
	}
	return ok
}

func (b *WalletBridge) take(id uuid.UUID) (*parked, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	p, ok := b.pending[id]
	if ok {
		delete(b.pending, id)
	}
	return p, ok
}

// Report delivers the wallet's outcome for attempt id.
func (b *WalletBridge) Report(id uuid.UUID, r WalletReport) error {
	if b == nil {
		return ErrUnknownAttempt
	}
	if r.Hash != "" && !r.Rejected && r.Error == "" {
		raw, err := hexutil.Decode(r.Hash)
		if err != nil || len(raw) != common.HashLength {
			return ErrBadHash
		}
	}
	p, ok := b.take(id)
	if !ok {
		return ErrUnknownAttempt
	}
	switch {
	case r.Rejected:
		p.hooks.OnError(ErrRejected)
	case r.Error != "":
		p.hooks.OnError(errors.New(r.Error))
	case r.Hash != "":
		hash := common.HexToHash(r.Hash)
		p.hooks.OnStart(hash.Hex())
		b.watch(p, hash)
	default:
		p.hooks.OnError(errors.New("empty wallet report"))
	}
	return nil
}

func (b *WalletBridge) watch(p *parked, hash common.Hash) {
	ctx := b.BaseCtx
	if ctx == nil {
		ctx = context.Background()
	}
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		if b.Watcher == nil {
			p.hooks.OnSuccess(hash.Hex())
			return
		}
		if _, err := b.Watcher.Wait(ctx, hash); err != nil {
			if b.Logger != nil {
				b.Logger.Warn("wallet transaction failed",
					zap.String("attempt", p.attempt.ID.String()),
					zap.String("hash", hash.Hex()),
					zap.Error(err),
				)
			}
			p.hooks.OnError(err)
			return
		}
		p.hooks.OnSuccess(hash.Hex())
	}()
}

// Wait blocks until every receipt watch has finished.
func (b *WalletBridge) Wait() {
	if b == nil {
		return
	}
	b.wg.Wait()
}
