// Package flow holds the wizard vocabulary (flows, steps, actions, screens)
// and the step sequencer that orders steps per flow.
package flow

type Flow string

const (
	FlowOpen    Flow = "open"
	FlowManage  Flow = "manage"
	FlowMigrate Flow = "migrate"
	FlowClaim   Flow = "claim"
)

func (f Flow) Valid() bool {
	switch f {
	case FlowOpen, FlowManage, FlowMigrate, FlowClaim:
		return true
	}
	return false
}

type Step string

const (
	StepEntry        Step = "entry"
	StepRewards      Step = "rewards"
	StepDelegate     Step = "delegate"
	StepSummary      Step = "summary"
	StepAuthorizeOld Step = "authorize_old"
	StepMigrate      Step = "migrate"
)

type Action string

const (
	ActionApprove   Action = "approve"
	ActionMulticall Action = "multicall"
	ActionAuthorize Action = "authorize"
	ActionMigrate   Action = "migrate"
	ActionClaim     Action = "claim"
	ActionOverview  Action = "overview"
)

type Screen string

const (
	ScreenAction      Screen = "action"
	ScreenTransaction Screen = "transaction"
)
