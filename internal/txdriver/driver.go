// Package txdriver runs operation groups through their transaction lifecycle.
// Each group has at most one live attempt, and success of a group invalidates
// the prepared calldata of the groups that depend on it.
package txdriver

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/skybase-int/tarmac-sub003/internal/calldata"
)

type Group string

const (
	GroupApprove   Group = "approve"
	GroupMulticall Group = "multicall"
	GroupAuthorize Group = "authorize"
	GroupMigrate   Group = "migrate"
	GroupClaim     Group = "claim"
)

type Status string

const (
	StatusIdle        Status = "idle"
	StatusInitialized Status = "initialized"
	StatusLoading     Status = "loading"
	StatusSuccess     Status = "success"
	StatusError       Status = "error"
	StatusCancelled   Status = "cancelled"
)

func (s Status) Live() bool { return s == StatusInitialized || s == StatusLoading }

func (s Status) Terminal() bool {
	return s == StatusSuccess || s == StatusError || s == StatusCancelled
}

var (
	ErrBusy         = errors.New("an attempt for this group is still in flight")
	ErrNotReady     = errors.New("calldata not prepared")
	ErrNotRetryable = errors.New("attempt is not in a retryable state")
	ErrSettled      = errors.New("these calls already succeeded")
	// ErrRejected is returned by submitters when the user declines to sign.
	ErrRejected = errors.New("rejected by user")
)

// DefaultEdges: approval unlocks the main batch, destination creation unlocks
// its authorization, and authorization unlocks the migration.
var DefaultEdges = map[Group][]Group{
	GroupApprove:   {GroupMulticall},
	GroupMulticall: {GroupAuthorize},
	GroupAuthorize: {GroupMigrate},
}

type Attempt struct {
	ID        uuid.UUID       `json:"id"`
	Owner     string          `json:"owner"`
	Group     Group           `json:"group"`
	Status    Status          `json:"status"`
	Hash      string          `json:"hash,omitempty"`
	Err       string          `json:"error,omitempty"`
	Calls     []calldata.Call `json:"calls"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Hooks are handed to the submitter for one attempt. They may be called from
// any goroutine; calls for an attempt that is no longer current are ignored.
type Hooks struct {
	OnStart   func(hash string)
	OnSuccess func(hash string)
	OnError   func(err error)
}

// Submitter hands calls to whatever signs and broadcasts them. Submit must not
// block until confirmation; progress is reported through the hooks.
type Submitter interface {
	Submit(ctx context.Context, a Attempt, h Hooks) error
}

// Withdrawer is implemented by submitters that hold an attempt until a signer
// picks it up. Withdraw reports whether the attempt was still held; false
// means the signer already has it.
type Withdrawer interface {
	Withdraw(id uuid.UUID) bool
}

type groupState struct {
	batch   calldata.Batch
	calls   []calldata.Call
	ready   bool
	stale   bool
	attempt *Attempt
}

type Driver struct {
	Owner     string
	Encoder   calldata.Encoder
	Submitter Submitter
	Logger    *zap.Logger
	// OnUpdate receives a copy of every attempt change, outside the lock.
	OnUpdate func(Attempt)
	Edges    map[Group][]Group

	mu     sync.Mutex
	groups map[Group]*groupState
	now    func() time.Time
}

func (d *Driver) state(g Group) *groupState {
	if d.groups == nil {
		d.groups = map[Group]*groupState{}
	}
	st, ok := d.groups[g]
	if !ok {
		st = &groupState{}
		d.groups[g] = st
	}
	return st
}

func (d *Driver) clock() time.Time {
	if d.now != nil {
		return d.now()
	}
	return time.Now().UTC()
}

func (d *Driver) edges() map[Group][]Group {
	if d.Edges != nil {
		return d.Edges
	}
	return DefaultEdges
}

// Prepare encodes batch for g and marks it ready. An empty batch leaves the
// group not ready. Preparing a group with a live attempt fails with ErrBusy,
// and preparing the calls of the group's successful attempt again fails with
// ErrSettled until Reset or a dependency success marks the group stale.
func (d *Driver) Prepare(g Group, batch calldata.Batch) error {
	if d == nil {
		return nil
	}
	calls, err := d.Encoder.Encode(batch)
	if err != nil {
		return fmt.Errorf("prepare %s: %w", g, err)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	st := d.state(g)
	if st.attempt != nil && st.attempt.Status.Live() {
		return ErrBusy
	}
	if st.attempt != nil && st.attempt.Status == StatusSuccess && !st.stale && sameCalls(st.attempt.Calls, calls) {
		st.ready = false
		return ErrSettled
	}
	st.batch = batch
	st.calls = calls
	st.stale = false
	st.ready = len(calls) > 0
	return nil
}

// Ready reports whether g can start a new attempt.
func (d *Driver) Ready(g Group) bool {
	if d == nil {
		return false
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	st := d.state(g)
	if st.attempt != nil && st.attempt.Status.Live() {
		return false
	}
	return st.ready && !st.stale
}

func (d *Driver) Stale(g Group) bool {
	if d == nil {
		return false
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state(g).stale
}

// Attempt returns the latest attempt for g.
func (d *Driver) Attempt(g Group) (Attempt, bool) {
	if d == nil {
		return Attempt{}, false
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	st := d.state(g)
	if st.attempt == nil {
		return Attempt{}, false
	}
	return copyAttempt(*st.attempt), true
}

func (d *Driver) Status(g Group) Status {
	a, ok := d.Attempt(g)
	if !ok {
		return StatusIdle
	}
	return a.Status
}

// Start opens an attempt for g and hands it to the submitter.
func (d *Driver) Start(ctx context.Context, g Group) (Attempt, error) {
	if d == nil {
		return Attempt{}, nil
	}
	return d.begin(ctx, g, false)
}

// Retry starts a new attempt after ERROR or CANCELLED. The group must have
// been prepared again since the failure.
func (d *Driver) Retry(ctx context.Context, g Group) (Attempt, error) {
	if d == nil {
		return Attempt{}, nil
	}
	return d.begin(ctx, g, true)
}

func (d *Driver) begin(ctx context.Context, g Group, retry bool) (Attempt, error) {
	d.mu.Lock()
	st := d.state(g)
	if st.attempt != nil && st.attempt.Status.Live() {
		d.mu.Unlock()
		return Attempt{}, ErrBusy
	}
	if retry {
		if st.attempt == nil || (st.attempt.Status != StatusError && st.attempt.Status != StatusCancelled) {
			d.mu.Unlock()
			return Attempt{}, ErrNotRetryable
		}
	}
	if !st.ready || st.stale {
		d.mu.Unlock()
		return Attempt{}, ErrNotReady
	}
	now := d.clock()
	a := &Attempt{
		ID:        uuid.New(),
		Owner:     d.Owner,
		Group:     g,
		Status:    StatusInitialized,
		Calls:     append([]calldata.Call(nil), st.calls...),
		CreatedAt: now,
		UpdatedAt: now,
	}
	st.attempt = a
	snap := copyAttempt(*a)
	d.mu.Unlock()

	d.emit(snap)
	if d.Logger != nil {
		d.Logger.Info("tx attempt started",
			zap.String("owner", d.Owner),
			zap.String("group", string(g)),
			zap.String("attempt", snap.ID.String()),
			zap.Int("calls", len(snap.Calls)),
		)
	}
	if d.Submitter == nil {
		d.fail(g, snap.ID, errors.New("no submitter configured"))
		return d.current(g, snap), nil
	}
	id := snap.ID
	hooks := Hooks{
		OnStart:   func(hash string) { d.transition(g, id, StatusLoading, hash, nil) },
		OnSuccess: func(hash string) { d.transition(g, id, StatusSuccess, hash, nil) },
		OnError:   func(err error) { d.fail(g, id, err) },
	}
	if err := d.Submitter.Submit(ctx, snap, hooks); err != nil {
		d.fail(g, id, err)
	}
	return d.current(g, snap), nil
}

func (d *Driver) current(g Group, fallback Attempt) Attempt {
	if a, ok := d.Attempt(g); ok && a.ID == fallback.ID {
		return a
	}
	return fallback
}

func (d *Driver) fail(g Group, id uuid.UUID, err error) {
	status := StatusError
	if errors.Is(err, ErrRejected) {
		status = StatusCancelled
	}
	d.transition(g, id, status, "", err)
}

// Abandon drops an attempt the user walked away from before it was
// broadcast, withdrawing it from the submitter so it cannot be signed later.
// An attempt the signer already picked up stays live and its report lands.
func (d *Driver) Abandon(g Group) {
	if d == nil {
		return
	}
	d.mu.Lock()
	st := d.state(g)
	if st.attempt == nil || st.attempt.Status != StatusInitialized {
		d.mu.Unlock()
		return
	}
	if w, ok := d.Submitter.(Withdrawer); ok && !w.Withdraw(st.attempt.ID) {
		d.mu.Unlock()
		return
	}
	st.attempt.Status = StatusIdle
	st.attempt.UpdatedAt = d.clock()
	snap := copyAttempt(*st.attempt)
	d.mu.Unlock()
	d.emit(snap)
}

// Reset forgets every group. Attempts still waiting for a signer are
// withdrawn and hooks from earlier attempts become no-ops.
func (d *Driver) Reset() {
	if d == nil {
		return
	}
	d.mu.Lock()
	if w, ok := d.Submitter.(Withdrawer); ok {
		for _, st := range d.groups {
			if st.attempt != nil && st.attempt.Status == StatusInitialized {
				w.Withdraw(st.attempt.ID)
			}
		}
	}
	d.groups = map[Group]*groupState{}
	d.mu.Unlock()
}

func (d *Driver) transition(g Group, id uuid.UUID, to Status, hash string, err error) {
	d.mu.Lock()
	st := d.state(g)
	a := st.attempt
	if a == nil || a.ID != id || a.Status.Terminal() {
		d.mu.Unlock()
		return
	}
	if to == StatusLoading && a.Status == StatusLoading {
		d.mu.Unlock()
		return
	}
	a.Status = to
	if hash != "" {
		a.Hash = hash
	}
	if err != nil {
		a.Err = err.Error()
	}
	a.UpdatedAt = d.clock()
	if to.Terminal() {
		// calldata is rebuilt before any further attempt
		st.ready = false
	}
	if to == StatusSuccess {
		for _, dep := range d.edges()[g] {
			ds := d.state(dep)
			ds.stale = true
			ds.ready = false
		}
	}
	snap := copyAttempt(*a)
	d.mu.Unlock()

	if d.Logger != nil {
		fields := []zap.Field{
			zap.String("owner", d.Owner),
			zap.String("group", string(g)),
			zap.String("attempt", id.String()),
			zap.String("status", string(to)),
		}
		if snap.Hash != "" {
			fields = append(fields, zap.String("hash", snap.Hash))
		}
		if err != nil {
			fields = append(fields, zap.Error(err))
			d.Logger.Warn("tx attempt failed", fields...)
		} else {
			d.Logger.Info("tx attempt updated", fields...)
		}
	}
	d.emit(snap)
}

func (d *Driver) emit(a Attempt) {
	if d.OnUpdate != nil {
		d.OnUpdate(a)
	}
}

func sameCalls(a, b []calldata.Call) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].To != b[i].To || !bytes.Equal(a[i].Data, b[i].Data) {
			return false
		}
	}
	return true
}

func copyAttempt(a Attempt) Attempt {
	a.Calls = append([]calldata.Call(nil), a.Calls...)
	return a
}
