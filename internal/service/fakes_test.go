package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/skybase-int/tarmac-sub003/internal/calldata"
	"github.com/skybase-int/tarmac-sub003/internal/chain"
	"github.com/skybase-int/tarmac-sub003/internal/draft"
	memrepository "github.com/skybase-int/tarmac-sub003/internal/repository/memory"
	"github.com/skybase-int/tarmac-sub003/internal/risk"
	"github.com/skybase-int/tarmac-sub003/internal/txdriver"
)

const testOwner = "0x00000000000000000000000000000000000000a1"

var (
	farmAddr     = common.HexToAddress("0x00000000000000000000000000000000000000f1")
	errReadFails = errors.New("rpc unavailable")
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// fakeChain is a mutable stand-in for the on-chain reads of one owner.
type fakeChain struct {
	mu         sync.Mutex
	count      uint64
	positions  map[string]risk.Position
	allowances map[draft.Asset]decimal.Decimal
	balances   map[draft.Asset]decimal.Decimal
	auth       map[string]bool
	failCount  bool
}

func newFakeChain() *fakeChain {
	return &fakeChain{
		positions:  map[string]risk.Position{},
		allowances: map[draft.Asset]decimal.Decimal{},
		balances:   map[draft.Asset]decimal.Decimal{},
		auth:       map[string]bool{},
	}
}

func posKey(e draft.Engine, index uint64) string { return fmt.Sprintf("%s:%d", e, index) }

func (f *fakeChain) update(fn func(f *fakeChain)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

func (f *fakeChain) PositionCount(_ context.Context, _ draft.Engine, _ common.Address) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failCount {
		return 0, errReadFails
	}
	return f.count, nil
}

func (f *fakeChain) Position(_ context.Context, e draft.Engine, _ common.Address, index uint64) (risk.Position, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if p, ok := f.positions[posKey(e, index)]; ok {
		return p, nil
	}
	return risk.Position{Index: index, Collateral: decimal.Zero, Debt: decimal.Zero}, nil
}

func (f *fakeChain) Ilk(context.Context, draft.Engine) (chain.IlkInfo, error) {
	return chain.IlkInfo{Rate: decimal.NewFromInt(1)}, nil
}

func (f *fakeChain) Allowance(_ context.Context, asset draft.Asset, _ common.Address, _ draft.Engine) (decimal.Decimal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.allowances[asset], nil
}

func (f *fakeChain) Balance(_ context.Context, asset draft.Asset, _ common.Address) (decimal.Decimal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.balances[asset], nil
}

func (f *fakeChain) MigratorAuthorized(_ context.Context, e draft.Engine, _ common.Address, index uint64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.auth[posKey(e, index)], nil
}

// landingSubmitter confirms every attempt inline and applies the chain
// effect registered for its group first, the way a mined tx would.
type landingSubmitter struct {
	chain   *fakeChain
	effects map[txdriver.Group]func(f *fakeChain)
	failOn  map[txdriver.Group]error

	mu     sync.Mutex
	groups []txdriver.Group
}

func (l *landingSubmitter) Submit(_ context.Context, a txdriver.Attempt, h txdriver.Hooks) error {
	l.mu.Lock()
	l.groups = append(l.groups, a.Group)
	effect := l.effects[a.Group]
	failure := l.failOn[a.Group]
	l.mu.Unlock()

	hash := chain.SyntheticHash(a)
	h.OnStart(hash)
	if failure != nil {
		h.OnError(failure)
		return nil
	}
	if effect != nil {
		l.chain.update(effect)
	}
	h.OnSuccess(hash)
	return nil
}

func (l *landingSubmitter) submitted() []txdriver.Group {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]txdriver.Group(nil), l.groups...)
}

func testAddresses() calldata.Addresses {
	return calldata.Addresses{
		Engines: map[draft.Engine]common.Address{
			draft.EngineStake: common.HexToAddress("0x0000000000000000000000000000000000000e01"),
			draft.EngineSeal:  common.HexToAddress("0x0000000000000000000000000000000000000e02"),
		},
		Tokens: map[draft.Asset]common.Address{
			draft.AssetSKY:  common.HexToAddress("0x0000000000000000000000000000000000000c01"),
			draft.AssetMKR:  common.HexToAddress("0x0000000000000000000000000000000000000c02"),
			draft.AssetUSDS: common.HexToAddress("0x0000000000000000000000000000000000000c03"),
		},
		Migrator: common.HexToAddress("0x0000000000000000000000000000000000000d01"),
	}
}

type harness struct {
	chain *fakeChain
	sub   *landingSubmitter
	repo  *memrepository.Store
	deps  Deps
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	fc := newFakeChain()
	repo := memrepository.New()
	h := &harness{
		chain: fc,
		sub:   &landingSubmitter{chain: fc, effects: map[txdriver.Group]func(*fakeChain){}},
		repo:  repo,
	}
	h.deps = Deps{
		Reader:    fc,
		Submitter: h.sub,
		Addresses: testAddresses(),
		Repo:      repo,
		Settings:  &SystemSettingsService{Repo: repo, DefaultMode: chain.ModeDryRun},
		Risk: risk.Params{
			CollateralPrice:  decimal.NewFromInt(1),
			LiquidationRatio: dec("1.5"),
			MaxRiskPct:       decimal.NewFromInt(100),
		},
		Logger: zap.NewNop(),
	}
	return h
}

func (h *harness) registry(t *testing.T) *Registry {
	t.Helper()
	r := NewRegistry(h.deps, time.Hour)
	t.Cleanup(r.Close)
	return r
}

func (h *harness) session(t *testing.T) *Session {
	t.Helper()
	s, err := h.registry(t).Get(context.Background(), testOwner)
	require.NoError(t, err)
	flush(t, s)
	return s
}

func flush(t *testing.T, s *Session) SessionView {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, s.Flush(ctx))
	return s.View()
}

func command(t *testing.T, s *Session, name string, body CommandBody) SessionView {
	t.Helper()
	_, err := s.Command(context.Background(), name, body)
	require.NoError(t, err)
	return flush(t, s)
}

func index(i uint64) *uint64 { return &i }

// heldSubmitter broadcasts every attempt and leaves the receipt to the test.
type heldSubmitter struct {
	mu    sync.Mutex
	hooks []txdriver.Hooks
	seen  []txdriver.Attempt
}

func (p *heldSubmitter) Submit(_ context.Context, a txdriver.Attempt, h txdriver.Hooks) error {
	p.mu.Lock()
	p.hooks = append(p.hooks, h)
	p.seen = append(p.seen, a)
	p.mu.Unlock()
	h.OnStart(chain.SyntheticHash(a))
	return nil
}

func (p *heldSubmitter) land() {
	p.mu.Lock()
	h, a := p.hooks[len(p.hooks)-1], p.seen[len(p.seen)-1]
	p.mu.Unlock()
	h.OnSuccess(chain.SyntheticHash(a))
}

func (p *heldSubmitter) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.seen)
}

func txHashFor(n int) string { return fmt.Sprintf("0x%064x", n) }
