package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/skybase-int/tarmac-sub003/internal/calldata"
	"github.com/skybase-int/tarmac-sub003/internal/chain"
	"github.com/skybase-int/tarmac-sub003/internal/draft"
	"github.com/skybase-int/tarmac-sub003/internal/flow"
	"github.com/skybase-int/tarmac-sub003/internal/gatekeeper"
	"github.com/skybase-int/tarmac-sub003/internal/logger"
	"github.com/skybase-int/tarmac-sub003/internal/metrics"
	"github.com/skybase-int/tarmac-sub003/internal/models"
	"github.com/skybase-int/tarmac-sub003/internal/repository"
	"github.com/skybase-int/tarmac-sub003/internal/risk"
	"github.com/skybase-int/tarmac-sub003/internal/snapshot"
	"github.com/skybase-int/tarmac-sub003/internal/txdriver"
	"github.com/skybase-int/tarmac-sub003/internal/wizard"
)

var (
	ErrSessionClosed  = errors.New("session closed")
	ErrUnknownCommand = errors.New("unknown command")
	ErrMissingIndex   = errors.New("position index required")
	ErrNoAnchor       = errors.New("risk slider is only available on the entry step")
	ErrBadOwner       = errors.New("owner must be a hex address")
)

// Discarder drops wallet payloads that were never signed.
type Discarder interface {
	Discard(owner string)
}

// Deps are shared by every session of a registry.
type Deps struct {
	Reader    ChainReader
	Submitter txdriver.Submitter
	Discarder Discarder
	Addresses calldata.Addresses
	Repo      repository.Repository
	Settings  *SystemSettingsService
	Risk      risk.Params
	Referral  uint16
	// Buffer scales the debt approved for repay-all.
	Buffer       decimal.Decimal
	Debounce     time.Duration
	RefreshLimit int
	Logger       *zap.Logger
	BaseCtx      context.Context
}

// Session is the single writer of one owner's wizard. Every mutation runs on
// the session goroutine; callers and driver hooks post closures to it.
type Session struct {
	Owner common.Address

	deps   *Deps
	logger *zap.Logger
	ctx    context.Context
	cancel context.CancelFunc

	// owned by the session goroutine
	state    wizard.State
	drafts   *draft.Store
	snaps    *snapshot.Store
	driver   *txdriver.Driver
	features wizard.Features
	known    map[string]readKey
	missing  map[string]readKey
	settling bool
	prepErr  error
	debounce *time.Timer
	bounceID uint64
	version  uint64
	saved    uint64

	mu       sync.Mutex
	queue    []func()
	closed   bool
	inflight int
	view     SessionView
	subs     map[uint64]chan SessionView
	nextSub  uint64

	wake    chan struct{}
	stopped chan struct{}
}

// SessionView is what clients render.
type SessionView struct {
	Owner         string            `json:"owner"`
	Wizard        wizard.View       `json:"wizard"`
	Draft         draft.Draft       `json:"draft"`
	Projection    *risk.Projection  `json:"projection,omitempty"`
	Current       *risk.Projection  `json:"current,omitempty"`
	Attempt       *txdriver.Attempt `json:"attempt,omitempty"`
	CalldataError string            `json:"calldata_error,omitempty"`
	Settling      bool              `json:"settling"`
	UpdatedAt     time.Time         `json:"updated_at"`
}

// newSession builds a session, installs the checkpoint if one is given and
// starts its goroutine.
func newSession(owner common.Address, deps *Deps, checkpoint *models.WizardSession) *Session {
	base := deps.BaseCtx
	if base == nil {
		base = context.Background()
	}
	ctx, cancel := context.WithCancel(base)
	s := &Session{
		Owner:   owner,
		deps:    deps,
		logger:  logger.ForOwner(deps.Logger, owner.Hex()),
		ctx:     ctx,
		cancel:  cancel,
		drafts:  draft.NewStore(),
		snaps:   snapshot.NewStore(),
		known:   map[string]readKey{},
		missing: map[string]readKey{},
		subs:    map[uint64]chan SessionView{},
		wake:    make(chan struct{}, 1),
		stopped: make(chan struct{}),
	}
	s.driver = &txdriver.Driver{
		Owner:     owner.Hex(),
		Encoder:   calldata.Encoder{Addresses: deps.Addresses},
		Submitter: deps.Submitter,
		Logger:    deps.Logger,
		OnUpdate:  s.onAttempt,
	}
	s.features = s.loadFeatures()
	s.restore(checkpoint)
	go s.loop()
	return s
}

func (s *Session) loop() {
	defer close(s.stopped)
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-s.wake:
		}
		for {
			fn := s.pop()
			if fn == nil {
				break
			}
			fn()
		}
	}
}

func (s *Session) pop() func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queue) == 0 {
		return nil
	}
	fn := s.queue[0]
	s.queue = s.queue[1:]
	return fn
}

// post queues fn for the session goroutine without waiting.
func (s *Session) post(fn func()) bool {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return false
	}
	s.queue = append(s.queue, fn)
	s.mu.Unlock()
	select {
	case s.wake <- struct{}{}:
	default:
	}
	return true
}

// call runs fn on the session goroutine and waits for it.
func (s *Session) call(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	if !s.post(func() { defer close(done); fn() }) {
		return ErrSessionClosed
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-s.stopped:
		return ErrSessionClosed
	}
}

// Start kicks off the first reads.
func (s *Session) Start(ctx context.Context) error {
	return s.call(ctx, func() { s.apply(wizard.Recompute{}) })
}

// Dispatch applies one wizard event and returns the resulting view.
func (s *Session) Dispatch(ctx context.Context, ev wizard.Event) (SessionView, error) {
	if err := s.call(ctx, func() { s.apply(ev) }); err != nil {
		return SessionView{}, err
	}
	return s.View(), nil
}

// View is the last published view.
func (s *Session) View() SessionView {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view
}

// apply runs ev through the reducer, carries out the commands it returns and
// settles the derived state.
func (s *Session) apply(ev wizard.Event) {
	metrics.IncEvent(ev.Name())
	if tc, ok := ev.(wizard.TxChanged); ok {
		s.record(tc.Attempt)
		if cur, ok := s.driver.Attempt(tc.Attempt.Group); !ok || cur.ID != tc.Attempt.ID {
			// queued before the driver was reset for another flow
			return
		}
	}
	in := s.inputs()
	next, cmds := wizard.Reduce(s.state, in, ev)
	if !samePosition(s.state, next) {
		// in was derived for the previous position; settle captures the anchor again
		next.Anchor = nil
	}
	s.state = next
	s.version++
	if s.logger != nil && ev.Name() != "recompute" {
		s.logger.Debug("wizard event",
			zap.String("event", ev.Name()),
			zap.String("flow", string(next.Flow)),
			zap.String("step", string(next.Step)),
			zap.String("action", string(next.Action)),
			zap.String("screen", string(next.Screen)),
			zap.Int("commands", len(cmds)),
		)
	}
	for _, cmd := range cmds {
		s.run(cmd)
	}
	s.settle()
}

func samePosition(a, b wizard.State) bool {
	if a.Flow != b.Flow || a.Position != b.Position {
		return false
	}
	if a.Source == nil || b.Source == nil {
		return a.Source == b.Source
	}
	return *a.Source == *b.Source
}

func (s *Session) run(cmd wizard.Command) {
	switch cmd.Kind {
	case wizard.CmdResetDraft:
		s.drafts.Reset()
		s.stopDebounce()
	case wizard.CmdResetDriver:
		s.driver.Reset()
		if s.deps.Discarder != nil {
			s.deps.Discarder.Discard(s.Owner.Hex())
		}
	case wizard.CmdSetMigrationTarget:
		target := cmd.Target
		s.drafts.SetMigrationTarget(&target)
	case wizard.CmdRefresh:
		s.refresh(cmd.Scope)
	case wizard.CmdAbandon:
		s.driver.Abandon(cmd.Group)
	case wizard.CmdSubmit, wizard.CmdRetry:
		s.prepare(s.inputs())
		var err error
		if cmd.Kind == wizard.CmdSubmit {
			_, err = s.driver.Start(s.ctx, cmd.Group)
		} else {
			_, err = s.driver.Retry(s.ctx, cmd.Group)
		}
		if err != nil {
			if s.logger != nil {
				s.logger.Warn("tx attempt refused", zap.String("group", string(cmd.Group)), zap.Error(err))
			}
			s.apply(wizard.SubmitFailed{Group: cmd.Group, Err: err})
		}
	}
}

func (s *Session) refresh(scope wizard.RefreshScope) {
	var keys []readKey
	switch scope {
	case wizard.ScopeAllowances:
		keys = s.knownOf(kindAllowance, kindBalance)
	case wizard.ScopeAuthorizations:
		keys = s.knownOf(kindAuth)
	case wizard.ScopePositions:
		keys = s.knownOf(kindCount, kindPosition, kindIlk, kindBalance)
	default:
		s.features = s.loadFeatures()
		keys = s.knownOf(kindCount, kindPosition, kindIlk, kindAllowance, kindBalance, kindAuth)
	}
	s.load(keys)
}

// settle reconciles the state with fresh inputs, prepares the calldata of the
// current action and publishes the view. Reads that inputs asked for but were
// never made are started here.
func (s *Session) settle() {
	in := s.inputs()
	s.state, _ = wizard.Reduce(s.state, in, wizard.Recompute{})
	s.prepare(s.inputs())

	missing := make([]readKey, 0, len(s.missing))
	for _, k := range s.missing {
		missing = append(missing, k)
	}
	s.load(missing)
	s.publish(s.inputs())
}

// engine is the engine of the position being edited.
func (s *Session) engine() draft.Engine {
	if s.state.Position.Engine == "" {
		return draft.EngineStake
	}
	return s.state.Position.Engine
}

func (s *Session) simulator() *risk.Simulator {
	p := s.deps.Risk
	if ilk := lookup[chain.IlkInfo](s, ilkKey(s.engine())); ilk.Resolved() {
		p.Dust = ilk.Val.Dust
		p.DebtCeiling = ilk.Val.Ceiling
		p.DebtUtilized = ilk.Val.Utilized
	}
	return &risk.Simulator{Params: p}
}

// position is the on-chain state of the edited position. A position that is
// about to be opened is a resolved zero.
func (s *Session) position() snapshot.Value[risk.Position] {
	ref := s.state.Position
	if s.state.Initialized && s.state.Flow == flow.FlowOpen {
		return snapshot.Resolved(risk.Position{Index: ref.Index, Collateral: decimal.Zero, Debt: decimal.Zero})
	}
	return lookup[risk.Position](s, positionKey(s.engine(), ref.Index))
}

func (s *Session) source() (snapshot.Value[risk.Position], bool) {
	if s.state.Flow != flow.FlowMigrate || s.state.Source == nil {
		return snapshot.Value[risk.Position]{}, false
	}
	return lookup[risk.Position](s, positionKey(s.state.Source.Engine, s.state.Source.Index)), true
}

// inputs derives the reducer inputs from the draft and the latest snapshots.
func (s *Session) inputs() wizard.Inputs {
	d := s.drafts.Snapshot()
	e := s.engine()
	in := wizard.Inputs{
		PositionCount: lookup[uint64](s, countKey(draft.EngineStake)),
		Features:      s.features,
	}
	pos := s.position()
	debt := snapshot.Value[decimal.Decimal]{Status: pos.Status, Err: pos.Err}
	if pos.Resolved() {
		debt.Val = pos.Val.Debt
	}
	in.Approval = gatekeeper.Decide(gatekeeper.Input{
		Draft:  d,
		Engine: e,
		Debt:   debt,
		Allowance: func(a draft.Asset) snapshot.Value[decimal.Decimal] {
			return lookup[decimal.Decimal](s, allowanceKey(e, a))
		},
		Buffer: s.deps.Buffer,
	})

	sim := s.simulator()
	in.Issues = sim.Validate(risk.ValidationInput{
		Draft:    d,
		Engine:   e,
		Position: pos,
		Balance: func(a draft.Asset) snapshot.Value[decimal.Decimal] {
			return lookup[decimal.Decimal](s, balanceKey(a))
		},
	})
	if s.settling {
		in.Issues.Pending = true
	}

	current := pos
	if src, ok := s.source(); ok {
		current = src
		in.Migration = gatekeeper.DecideMigration(s.migrationInput(in.PositionCount))
	}
	in.CurrentRisk = snapshot.Value[decimal.Decimal]{Status: current.Status, Err: current.Err}
	if current.Resolved() {
		in.CurrentRisk.Val = sim.Project(current.Val, draft.Empty(), e).RiskPct
	}

	if g := wizard.GroupFor(s.state.Action); g != "" {
		in.Ready = s.driver.Ready(g)
		in.Attempt = s.driver.Status(g)
	}
	return in
}

func (s *Session) migrationInput(count snapshot.Value[uint64]) gatekeeper.MigrationInput {
	dest := s.state.Position
	out := gatekeeper.MigrationInput{
		DestinationExists: snapshot.Value[bool]{Status: count.Status, Err: count.Err},
	}
	if count.Resolved() {
		out.DestinationExists.Val = dest.Index < count.Val
	}
	if out.DestinationExists.Resolved() && out.DestinationExists.Val {
		out.DestinationAuth = lookup[bool](s, authKey(dest.Engine, dest.Index))
		if out.DestinationAuth.Resolved() && out.DestinationAuth.Val {
			out.SourceAuth = lookup[bool](s, authKey(s.state.Source.Engine, s.state.Source.Index))
		}
	}
	return out
}

func (s *Session) target(ref wizard.PositionRef, pos snapshot.Value[risk.Position]) calldata.Target {
	t := calldata.Target{Engine: ref.Engine, Owner: s.Owner, Index: ref.Index, Ref: s.deps.Referral}
	if t.Engine == "" {
		t.Engine = draft.EngineStake
	}
	if pos.Resolved() {
		t.CurrentReward = pos.Val.RewardStream
		t.CurrentDelegate = pos.Val.Delegate
	}
	return t
}

// batch assembles the calldata of the current action. ok is false while a
// read the batch depends on is outstanding.
func (s *Session) batch(in wizard.Inputs) (calldata.Batch, bool) {
	st := s.state
	d := s.drafts.Snapshot()
	pos := s.position()
	dest := s.target(st.Position, pos)

	switch st.Action {
	case flow.ActionApprove:
		if in.Approval.Loading {
			return nil, false
		}
		if in.Approval.Approve == nil {
			return nil, true
		}
		return calldata.Batch{*in.Approval.Approve}, true
	case flow.ActionMulticall:
		if st.Flow == flow.FlowMigrate {
			if in.Migration.Loading {
				return nil, false
			}
			return calldata.AssembleMigration(calldata.StageCreate, d, calldata.Target{}, dest, false), true
		}
		if in.Approval.Loading || in.Issues.Pending || !in.PositionCount.Resolved() {
			return nil, false
		}
		exists := st.Position.Index < in.PositionCount.Val
		return calldata.Assemble(d, st.Flow, exists, dest), true
	case flow.ActionAuthorize, flow.ActionMigrate:
		if in.Migration.Loading || st.Source == nil {
			return nil, false
		}
		src, _ := s.source()
		return calldata.AssembleMigration(in.Migration.Stage, d, s.target(*st.Source, src), dest, true), true
	case flow.ActionClaim:
		if !pos.Resolved() {
			return nil, false
		}
		return calldata.Assemble(d, flow.FlowClaim, true, dest), true
	}
	return nil, false
}

// prepare hands the current batch to the driver unless its group is in
// flight or its inputs are still loading.
func (s *Session) prepare(in wizard.Inputs) {
	s.prepErr = nil
	g := wizard.GroupFor(s.state.Action)
	if g == "" || s.driver.Status(g).Live() {
		return
	}
	b, ok := s.batch(in)
	if !ok {
		return
	}
	err := s.driver.Prepare(g, b)
	switch {
	case err == nil, errors.Is(err, txdriver.ErrBusy), errors.Is(err, txdriver.ErrSettled):
	default:
		s.prepErr = err
		if s.logger != nil {
			s.logger.Warn("prepare calldata failed", zap.String("group", string(g)), zap.Error(err))
		}
	}
}

func (s *Session) onAttempt(a txdriver.Attempt) {
	metrics.IncAttempt(string(a.Group), string(a.Status))
	s.post(func() { s.apply(wizard.TxChanged{Attempt: a}) })
}

func (s *Session) loadFeatures() wizard.Features {
	ctx, cancel := context.WithTimeout(s.ctx, 5*time.Second)
	defer cancel()
	return wizard.Features{
		Migrate: s.deps.Settings.IsEnabled(ctx, FeatureMigrate, true),
		Claim:   s.deps.Settings.IsEnabled(ctx, FeatureClaim, true),
	}
}

func (s *Session) publish(in wizard.Inputs) {
	v := SessionView{
		Owner:     strings.ToLower(s.Owner.Hex()),
		Wizard:    wizard.Derive(s.state, in),
		Draft:     s.drafts.Snapshot(),
		Settling:  s.settling,
		UpdatedAt: time.Now().UTC(),
	}
	if s.prepErr != nil {
		v.CalldataError = s.prepErr.Error()
	}
	sim := s.simulator()
	if pos := s.position(); pos.Resolved() {
		proj := sim.Project(pos.Val, v.Draft, s.engine())
		cur := sim.Project(pos.Val, draft.Empty(), s.engine())
		v.Projection = &proj
		v.Current = &cur
	}
	if g := wizard.GroupFor(s.state.Action); g != "" {
		if a, ok := s.driver.Attempt(g); ok {
			v.Attempt = &a
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.view = v
	for _, ch := range s.subs {
		// latest view wins for slow subscribers
		select {
		case <-ch:
		default:
		}
		ch <- v
	}
}

// Subscribe returns a channel carrying every published view, starting with
// the current one. cancel must be called when the subscriber goes away.
func (s *Session) Subscribe() (<-chan SessionView, func()) {
	ch := make(chan SessionView, 1)
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch
	ch <- s.view
	s.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			if _, ok := s.subs[id]; ok {
				delete(s.subs, id)
				close(ch)
			}
			s.mu.Unlock()
		})
	}
}

// Flush waits until no reads are outstanding and every queued closure ran.
func (s *Session) Flush(ctx context.Context) error {
	for {
		if err := s.call(ctx, func() {}); err != nil {
			return err
		}
		s.mu.Lock()
		busy := s.inflight > 0 || len(s.queue) > 0
		s.mu.Unlock()
		if !busy {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Millisecond):
		}
	}
}

// Close stops the session goroutine and ends every subscription.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	for id, ch := range s.subs {
		close(ch)
		delete(s.subs, id)
	}
	s.mu.Unlock()

	s.cancel()
	<-s.stopped
	s.stopDebounce()
}
