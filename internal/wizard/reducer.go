package wizard

import (
	"github.com/skybase-int/tarmac-sub003/internal/calldata"
	"github.com/skybase-int/tarmac-sub003/internal/draft"
	"github.com/skybase-int/tarmac-sub003/internal/flow"
	"github.com/skybase-int/tarmac-sub003/internal/riskslider"
	"github.com/skybase-int/tarmac-sub003/internal/txdriver"
)

// Reduce applies ev and then reconciles the result against in. The returned
// commands are effects for the owner to run in order.
func Reduce(s State, in Inputs, ev Event) (State, []Command) {
	var cmds []Command
	if s.Initialized {
		switch e := ev.(type) {
		case StartOpen:
			s, cmds = onStartOpen(s, in)
		case SelectPosition:
			s, cmds = onSelectPosition(s, in, e)
		case StartMigrate:
			s, cmds = onStartMigrate(s, in, e)
		case Claim:
			s, cmds = onClaim(s, in, e)
		case Continue:
			if CanContinue(s, in) {
				s.Step = s.Sequencer().Next(s.Step)
			}
		case Back:
			s, cmds = onBack(s)
		case Confirm:
			if CanConfirm(s, in) {
				s.Screen = flow.ScreenTransaction
				cmds = append(cmds, submit(GroupFor(s.Action)))
			}
		case Retry:
			if s.Screen == flow.ScreenTransaction && (in.Attempt == txdriver.StatusError || in.Attempt == txdriver.StatusCancelled) {
				cmds = append(cmds, retry(GroupFor(s.Action)))
			}
		case Exit:
			s, cmds = onExit(s, in)
		case TxChanged:
			s, cmds = onTxChanged(s, e.Attempt)
		case SubmitFailed:
			if s.Screen == flow.ScreenTransaction && e.Group == GroupFor(s.Action) {
				s.Screen = flow.ScreenAction
			}
		case SetSkip:
			s.Skip = flow.Skip{Rewards: e.Rewards, Delegate: e.Delegate}
			if s.Action != flow.ActionOverview {
				s.Step = s.Sequencer().Resolve(s.Step)
			}
		case SetSliderMode:
			s.SliderMode = e.Mode
			if s.Anchor != nil {
				a := s.Anchor.WithMode(e.Mode)
				s.Anchor = &a
			}
		}
	}
	return reconcile(s, in), cmds
}

func initial(prev State, count uint64) State {
	s := State{
		Initialized: true,
		Skip:        prev.Skip,
		SliderMode:  prev.SliderMode,
		Screen:      flow.ScreenAction,
		Position:    PositionRef{Engine: draft.EngineStake},
	}
	if s.SliderMode == "" {
		s.SliderMode = riskslider.ModeBorrow
	}
	if count == 0 {
		s.Flow = flow.FlowOpen
		s.Action = flow.ActionMulticall
	} else {
		s.Flow = flow.FlowManage
		s.Action = flow.ActionOverview
	}
	s.Step = s.Sequencer().First()
	return s
}

func entryAction(in Inputs) flow.Action {
	if !in.Approval.Loading && in.Approval.NeedsApproval() {
		return flow.ActionApprove
	}
	return flow.ActionMulticall
}

func enter(s State, f flow.Flow, pos PositionRef, action flow.Action) State {
	s.Flow = f
	s.Position = pos
	s.Source = nil
	s.Stage = ""
	s.Anchor = nil
	s.Screen = flow.ScreenAction
	s.Action = action
	s.Step = s.Sequencer().First()
	return s
}

func onStartOpen(s State, in Inputs) (State, []Command) {
	if s.Screen != flow.ScreenAction || !in.PositionCount.Resolved() {
		return s, nil
	}
	pos := PositionRef{Engine: draft.EngineStake, Index: in.PositionCount.Val}
	return enter(s, flow.FlowOpen, pos, entryAction(in)), []Command{resetDraft, resetDriver}
}

func onSelectPosition(s State, in Inputs, e SelectPosition) (State, []Command) {
	if s.Screen != flow.ScreenAction || !in.PositionCount.Resolved() || e.Index >= in.PositionCount.Val {
		return s, nil
	}
	pos := PositionRef{Engine: draft.EngineStake, Index: e.Index}
	return enter(s, flow.FlowManage, pos, entryAction(in)), []Command{resetDraft, resetDriver}
}

func onStartMigrate(s State, in Inputs, e StartMigrate) (State, []Command) {
	if !in.Features.Migrate || s.Screen != flow.ScreenAction {
		return s, nil
	}
	pos := PositionRef{Engine: draft.EngineStake, Index: e.Destination}
	s = enter(s, flow.FlowMigrate, pos, flow.ActionMulticall)
	src := e.Source
	s.Source = &src
	s.Stage = calldata.StageCreate
	return s, []Command{resetDraft, resetDriver, setTarget(e.Destination)}
}

func onClaim(s State, in Inputs, e Claim) (State, []Command) {
	if !in.Features.Claim || s.Screen != flow.ScreenAction || !in.PositionCount.Resolved() || e.Index >= in.PositionCount.Val {
		return s, nil
	}
	s = enter(s, flow.FlowClaim, PositionRef{Engine: draft.EngineStake, Index: e.Index}, flow.ActionClaim)
	s.Step = flow.StepSummary
	s.Screen = flow.ScreenTransaction
	return s, []Command{resetDriver, submit(txdriver.GroupClaim)}
}

func onBack(s State) (State, []Command) {
	if s.Screen == flow.ScreenTransaction {
		cmds := []Command{abandon(GroupFor(s.Action))}
		s.Screen = flow.ScreenAction
		if s.Action == flow.ActionClaim {
			s.Flow = flow.FlowManage
			s.Action = flow.ActionOverview
			s.Step = s.Sequencer().First()
		}
		return s, cmds
	}
	if s.Action == flow.ActionOverview {
		return s, nil
	}
	s.Step = s.Sequencer().Previous(s.Step)
	return s, nil
}

func onExit(s State, in Inputs) (State, []Command) {
	var cmds []Command
	if s.Screen == flow.ScreenTransaction {
		cmds = append(cmds, abandon(GroupFor(s.Action)))
	}
	cmds = append(cmds, resetDraft, resetDriver, refresh(ScopeAll))
	if !in.PositionCount.Resolved() {
		return State{Skip: s.Skip, SliderMode: s.SliderMode}, cmds
	}
	next := initial(s, in.PositionCount.Val)
	next.Position.Index = s.Position.Index
	if s.Position.Index >= in.PositionCount.Val {
		next.Position.Index = 0
	}
	return next, cmds
}

// onTxChanged applies a success whatever the screen. The user may have
// stepped back while the transaction was loading; the chain moved anyway.
func onTxChanged(s State, a txdriver.Attempt) (State, []Command) {
	if a.Status != txdriver.StatusSuccess {
		return s, nil
	}
	var cmds []Command
	switch {
	case a.Group == txdriver.GroupApprove:
		cmds = []Command{refresh(ScopeAllowances)}
	case a.Group == txdriver.GroupAuthorize:
		cmds = []Command{refresh(ScopeAuthorizations)}
	case a.Group == txdriver.GroupMulticall && s.Flow == flow.FlowMigrate:
		cmds = []Command{refresh(ScopePositions), refresh(ScopeAuthorizations)}
	default:
		return complete(s)
	}
	if s.Screen == flow.ScreenTransaction && a.Group == GroupFor(s.Action) {
		s.Screen = flow.ScreenAction
	}
	return s, cmds
}

// complete returns to the overview of the position that was just written.
func complete(s State) (State, []Command) {
	next := State{
		Initialized: true,
		Flow:        flow.FlowManage,
		Action:      flow.ActionOverview,
		Screen:      flow.ScreenAction,
		Skip:        s.Skip,
		SliderMode:  s.SliderMode,
		Position:    s.Position,
	}
	next.Step = next.Sequencer().First()
	return next, []Command{resetDraft, resetDriver, refresh(ScopeAll)}
}

// reconcile applies the reactive rules that follow from inputs alone. Reads
// that have not resolved leave the affected part of the state untouched.
func reconcile(s State, in Inputs) State {
	if !s.Initialized {
		if !in.PositionCount.Resolved() {
			return s
		}
		s = initial(s, in.PositionCount.Val)
	}
	if s.Action != flow.ActionOverview {
		s.Step = s.Sequencer().Resolve(s.Step)
	}

	if s.Screen == flow.ScreenAction {
		switch s.Flow {
		case flow.FlowOpen, flow.FlowManage:
			if (s.Action == flow.ActionApprove || s.Action == flow.ActionMulticall) && !in.Approval.Loading {
				s.Action = entryAction(in)
			}
		case flow.FlowMigrate:
			if !in.Migration.Loading {
				s = applyStage(s, in.Migration.Stage)
			}
		}
	}

	if s.Step == flow.StepEntry && s.Action != flow.ActionOverview && s.Flow != flow.FlowClaim {
		if s.Anchor == nil && in.CurrentRisk.Resolved() {
			a := riskslider.Capture(s.SliderMode, in.CurrentRisk.Val)
			s.Anchor = &a
		}
	} else {
		s.Anchor = nil
	}
	return s
}

func applyStage(s State, stage calldata.MigrationStage) State {
	s.Stage = stage
	switch stage {
	case calldata.StageCreate:
		s.Action = flow.ActionMulticall
		if s.Step == flow.StepAuthorizeOld || s.Step == flow.StepMigrate {
			s.Step = flow.StepSummary
		}
	case calldata.StageAuthorizeDestination:
		s.Action = flow.ActionAuthorize
		s.Step = flow.StepEntry
	case calldata.StageAuthorizeSource:
		s.Action = flow.ActionAuthorize
		s.Step = flow.StepAuthorizeOld
	case calldata.StageMigrate:
		s.Action = flow.ActionMigrate
		s.Step = flow.StepMigrate
	}
	return s
}

// ConfirmStep reports whether the current step is where the current action is
// confirmed.
func ConfirmStep(s State) bool {
	switch s.Flow {
	case flow.FlowOpen, flow.FlowManage, flow.FlowClaim:
		return s.Step == flow.StepSummary && s.Action != flow.ActionOverview
	case flow.FlowMigrate:
		switch s.Action {
		case flow.ActionMulticall:
			return s.Step == flow.StepSummary
		case flow.ActionAuthorize:
			return s.Step == flow.StepEntry || s.Step == flow.StepAuthorizeOld
		case flow.ActionMigrate:
			return s.Step == flow.StepMigrate
		}
	}
	return false
}

func CanContinue(s State, in Inputs) bool {
	if !s.Initialized || s.Screen != flow.ScreenAction || s.Action == flow.ActionOverview || s.Flow == flow.FlowClaim {
		return false
	}
	if ConfirmStep(s) {
		return false
	}
	switch s.Step {
	case flow.StepSummary, flow.StepAuthorizeOld, flow.StepMigrate:
		return false
	case flow.StepEntry:
		if s.Flow != flow.FlowMigrate && in.Issues.Blocking() {
			return false
		}
	}
	return true
}

func CanConfirm(s State, in Inputs) bool {
	if !s.Initialized || s.Screen != flow.ScreenAction || !ConfirmStep(s) || !in.Ready {
		return false
	}
	switch s.Flow {
	case flow.FlowOpen, flow.FlowManage:
		return !in.Approval.Loading && !in.Issues.Blocking()
	case flow.FlowMigrate:
		return !in.Migration.Loading
	}
	return true
}
