package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/skybase-int/tarmac-sub003/internal/draft"
	"github.com/skybase-int/tarmac-sub003/internal/riskslider"
	"github.com/skybase-int/tarmac-sub003/internal/wizard"
)

// DraftEdit is a partial update of the draft. Nil fields are left alone.
type DraftEdit struct {
	Collateral *draft.Collateral                    `json:"collateral"`
	Lock       map[draft.Collateral]decimal.Decimal `json:"lock"`
	Free       map[draft.Collateral]decimal.Decimal `json:"free"`
	Borrow     *decimal.Decimal                     `json:"borrow"`
	Repay      *decimal.Decimal                     `json:"repay"`
	RepayAll   *bool                                `json:"repay_all"`
	// An empty address selects "none"; the Clear flags drop the selection.
	RewardStream      *string `json:"reward_stream"`
	ClearRewardStream bool    `json:"clear_reward_stream"`
	Delegate          *string `json:"delegate"`
	ClearDelegate     bool    `json:"clear_delegate"`
}

func (e DraftEdit) touchesAmounts() bool {
	return len(e.Lock) > 0 || len(e.Free) > 0 || e.Borrow != nil || e.Repay != nil || e.RepayAll != nil
}

func (e DraftEdit) apply(st *draft.Store) error {
	if e.Collateral != nil {
		if err := st.SetCollateral(*e.Collateral); err != nil {
			return err
		}
	}
	for _, c := range draft.Collaterals {
		if amt, ok := e.Lock[c]; ok {
			if err := st.SetLock(c, amt); err != nil {
				return fmt.Errorf("lock %s: %w", c, err)
			}
		}
		if amt, ok := e.Free[c]; ok {
			if err := st.SetFree(c, amt); err != nil {
				return fmt.Errorf("free %s: %w", c, err)
			}
		}
	}
	for c := range e.Lock {
		if !known(c) {
			return fmt.Errorf("lock: %w: %s", draft.ErrBadCollateral, c)
		}
	}
	for c := range e.Free {
		if !known(c) {
			return fmt.Errorf("free: %w: %s", draft.ErrBadCollateral, c)
		}
	}
	if e.Borrow != nil {
		if err := st.SetBorrow(*e.Borrow); err != nil {
			return fmt.Errorf("borrow: %w", err)
		}
	}
	if e.Repay != nil {
		if err := st.SetRepay(*e.Repay); err != nil {
			return fmt.Errorf("repay: %w", err)
		}
	}
	if e.RepayAll != nil {
		st.SetRepayAll(*e.RepayAll)
	}
	switch {
	case e.ClearRewardStream:
		_ = st.SetRewardStream(nil)
	case e.RewardStream != nil:
		if err := st.SetRewardStream(e.RewardStream); err != nil {
			return fmt.Errorf("reward stream: %w", err)
		}
	}
	switch {
	case e.ClearDelegate:
		_ = st.SetDelegate(nil)
	case e.Delegate != nil:
		if err := st.SetDelegate(e.Delegate); err != nil {
			return fmt.Errorf("delegate: %w", err)
		}
	}
	return nil
}

func known(c draft.Collateral) bool {
	for _, k := range draft.Collaterals {
		if k == c {
			return true
		}
	}
	return false
}

// EditDraft applies an edit. Amount changes hold validation as pending until
// the debounce window has passed without another amount change.
func (s *Session) EditDraft(ctx context.Context, edit DraftEdit) (SessionView, error) {
	var editErr error
	err := s.call(ctx, func() {
		// validate against a copy so a rejected edit changes nothing
		trial := draft.NewStore()
		trial.Replace(s.drafts.Snapshot())
		if editErr = edit.apply(trial); editErr != nil {
			return
		}
		_ = edit.apply(s.drafts)
		if edit.touchesAmounts() {
			s.bounce()
		}
		s.apply(wizard.Recompute{})
	})
	if err != nil {
		return SessionView{}, err
	}
	if editErr != nil {
		return SessionView{}, editErr
	}
	return s.View(), nil
}

// bounce restarts the debounce window.
func (s *Session) bounce() {
	if s.deps.Debounce <= 0 {
		return
	}
	s.stopDebounce()
	s.settling = true
	s.bounceID++
	id := s.bounceID
	s.debounce = time.AfterFunc(s.deps.Debounce, func() {
		s.post(func() {
			if id != s.bounceID {
				return
			}
			s.settling = false
			s.debounce = nil
			s.apply(wizard.Recompute{})
		})
	})
}

func (s *Session) stopDebounce() {
	if s.debounce != nil {
		s.debounce.Stop()
		s.debounce = nil
	}
	s.settling = false
}

// RiskResult is the amount a slider position maps to.
type RiskResult struct {
	Mode    riskslider.Mode `json:"mode"`
	Anchor  decimal.Decimal `json:"anchor_pct"`
	Percent decimal.Decimal `json:"percent"`
	Max     decimal.Decimal `json:"max"`
	Amount  decimal.Decimal `json:"amount"`
}

// SetRisk converts slider position pct into a borrow or repay amount relative
// to the anchor captured on entry, and writes it to the draft.
func (s *Session) SetRisk(ctx context.Context, pct decimal.Decimal) (RiskResult, SessionView, error) {
	var (
		res    RiskResult
		errOut error
	)
	err := s.call(ctx, func() {
		anchor := s.state.Anchor
		if anchor == nil {
			errOut = ErrNoAnchor
			return
		}
		pos := s.position()
		if !pos.Resolved() {
			errOut = ErrNoAnchor
			return
		}
		base := s.drafts.Snapshot()
		base.Borrow = decimal.Zero
		base.Repay = decimal.Zero
		base.RepayAll = false
		proj := s.simulator().Project(pos.Val, base, s.engine())

		res = RiskResult{Mode: anchor.Mode(), Anchor: anchor.Percent(), Percent: pct}
		if anchor.Mode() == riskslider.ModeRepay {
			res.Max = proj.MaxRepayable
		} else {
			res.Max = proj.MaxBorrowable
		}
		res.Amount = anchor.Amount(res.Max, pct).Truncate(18)

		// one slider position maps to one amount; the other side is cleared
		if anchor.Mode() == riskslider.ModeRepay {
			_ = s.drafts.SetBorrow(decimal.Zero)
			_ = s.drafts.SetRepay(res.Amount)
			s.drafts.SetRepayAll(false)
		} else {
			_ = s.drafts.SetRepay(decimal.Zero)
			s.drafts.SetRepayAll(false)
			_ = s.drafts.SetBorrow(res.Amount)
		}
		s.bounce()
		s.apply(wizard.Recompute{})
	})
	if err != nil {
		return RiskResult{}, SessionView{}, err
	}
	if errOut != nil {
		return RiskResult{}, SessionView{}, errOut
	}
	return res, s.View(), nil
}

// CommandBody carries the arguments of a named command.
type CommandBody struct {
	Index        *uint64 `json:"index"`
	Destination  *uint64 `json:"destination"`
	SkipRewards  bool    `json:"skip_rewards"`
	SkipDelegate bool    `json:"skip_delegate"`
	Mode         string  `json:"mode"`
}

// Commands lists the names Command accepts.
var Commands = []string{"advance", "back", "confirm", "retry", "exit", "open", "manage", "migrate", "claim", "skip", "slider", "refresh"}

// Command maps a named command onto a wizard event and dispatches it.
func (s *Session) Command(ctx context.Context, name string, body CommandBody) (SessionView, error) {
	var errOut error
	err := s.call(ctx, func() {
		ev, err := s.event(strings.ToLower(strings.TrimSpace(name)), body)
		if err != nil {
			errOut = err
			return
		}
		if ev == nil {
			s.refresh(wizard.ScopeAll)
			s.apply(wizard.Recompute{})
			return
		}
		s.apply(ev)
	})
	if err != nil {
		return SessionView{}, err
	}
	if errOut != nil {
		return SessionView{}, errOut
	}
	return s.View(), nil
}

// event runs on the session goroutine. A nil event with no error is a refresh.
func (s *Session) event(name string, body CommandBody) (wizard.Event, error) {
	switch name {
	case "advance":
		return wizard.Continue{}, nil
	case "back":
		return wizard.Back{}, nil
	case "confirm":
		return wizard.Confirm{}, nil
	case "retry":
		return wizard.Retry{}, nil
	case "exit":
		return wizard.Exit{}, nil
	case "open":
		return wizard.StartOpen{}, nil
	case "manage":
		if body.Index == nil {
			return nil, ErrMissingIndex
		}
		return wizard.SelectPosition{Index: *body.Index}, nil
	case "claim":
		idx := s.state.Position.Index
		if body.Index != nil {
			idx = *body.Index
		}
		return wizard.Claim{Index: idx}, nil
	case "migrate":
		if body.Index == nil {
			return nil, ErrMissingIndex
		}
		dest := body.Destination
		if dest == nil {
			count := lookup[uint64](s, countKey(draft.EngineStake))
			if !count.Resolved() {
				return nil, fmt.Errorf("%w: position count not loaded", ErrMissingIndex)
			}
			dest = &count.Val
		}
		return wizard.StartMigrate{
			Source:      wizard.PositionRef{Engine: draft.EngineSeal, Index: *body.Index},
			Destination: *dest,
		}, nil
	case "skip":
		return wizard.SetSkip{Rewards: body.SkipRewards, Delegate: body.SkipDelegate}, nil
	case "slider":
		mode := riskslider.Mode(strings.ToLower(strings.TrimSpace(body.Mode)))
		if mode != riskslider.ModeBorrow && mode != riskslider.ModeRepay {
			return nil, fmt.Errorf("%w: slider mode %q", ErrUnknownCommand, body.Mode)
		}
		return wizard.SetSliderMode{Mode: mode}, nil
	case "refresh":
		return nil, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownCommand, name)
}
