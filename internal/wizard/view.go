package wizard

import (
	"github.com/shopspring/decimal"

	"github.com/skybase-int/tarmac-sub003/internal/flow"
	"github.com/skybase-int/tarmac-sub003/internal/txdriver"
)

type Button struct {
	Label   string `json:"label"`
	Enabled bool   `json:"enabled"`
	Loading bool   `json:"loading"`
}

// View is what the presentation layer renders.
type View struct {
	State      State              `json:"state"`
	Steps      []flow.Step        `json:"steps"`
	StepIndex  int                `json:"step_index"`
	TotalSteps int                `json:"total_steps"`
	Completed  map[flow.Step]bool `json:"completed"`
	Button     Button             `json:"button"`
	CanBack    bool               `json:"can_back"`
	Issues     []string           `json:"issues,omitempty"`
	Attempt    txdriver.Status    `json:"attempt"`
	AnchorPct  *decimal.Decimal   `json:"anchor_pct,omitempty"`
}

func Derive(s State, in Inputs) View {
	seq := s.Sequencer()
	v := View{
		State:      s,
		Steps:      seq.Steps(),
		StepIndex:  seq.Index(s.Step),
		TotalSteps: seq.Total(),
		Completed:  map[flow.Step]bool{},
		Issues:     in.Issues.List(),
		Attempt:    in.Attempt,
		Button:     button(s, in),
	}
	if s.Action != flow.ActionOverview {
		for i, st := range v.Steps {
			v.Completed[st] = i+1 < v.StepIndex
		}
	}
	if s.Anchor != nil {
		p := s.Anchor.Percent()
		v.AnchorPct = &p
	}
	switch {
	case !s.Initialized || s.Action == flow.ActionOverview:
	case s.Screen == flow.ScreenTransaction:
		v.CanBack = true
	default:
		v.CanBack = seq.Index(s.Step) > 1
	}
	return v
}

var actionLabels = map[flow.Action]string{
	flow.ActionApprove:   "approve",
	flow.ActionMulticall: "confirm",
	flow.ActionAuthorize: "authorize",
	flow.ActionMigrate:   "migrate",
	flow.ActionClaim:     "claim",
}

func button(s State, in Inputs) Button {
	if !s.Initialized {
		return Button{Label: "loading", Loading: true}
	}
	if s.Screen == flow.ScreenTransaction {
		switch in.Attempt {
		case txdriver.StatusError, txdriver.StatusCancelled:
			return Button{Label: "retry", Enabled: true}
		case txdriver.StatusSuccess:
			return Button{Label: "done"}
		default:
			return Button{Label: "awaiting_confirmation", Loading: true}
		}
	}
	if s.Action == flow.ActionOverview {
		return Button{Label: "manage", Enabled: in.PositionCount.Resolved()}
	}
	if ConfirmStep(s) {
		loading := in.Approval.Loading
		if s.Flow == flow.FlowMigrate {
			loading = in.Migration.Loading
		}
		return Button{Label: actionLabels[s.Action], Enabled: CanConfirm(s, in), Loading: loading}
	}
	return Button{Label: "continue", Enabled: CanContinue(s, in), Loading: in.Issues.Pending}
}
