// Package wizard is the controller for the position wizard. It is a pure
// reducer: Reduce maps (state, inputs, event) to the next state plus the
// side effects the owner must carry out. It never performs I/O.
package wizard

import (
	"github.com/shopspring/decimal"

	"github.com/skybase-int/tarmac-sub003/internal/calldata"
	"github.com/skybase-int/tarmac-sub003/internal/draft"
	"github.com/skybase-int/tarmac-sub003/internal/flow"
	"github.com/skybase-int/tarmac-sub003/internal/gatekeeper"
	"github.com/skybase-int/tarmac-sub003/internal/risk"
	"github.com/skybase-int/tarmac-sub003/internal/riskslider"
	"github.com/skybase-int/tarmac-sub003/internal/snapshot"
	"github.com/skybase-int/tarmac-sub003/internal/txdriver"
)

// PositionRef addresses one position.
type PositionRef struct {
	Engine draft.Engine `json:"engine"`
	Index  uint64       `json:"index"`
}

type State struct {
	Initialized bool        `json:"initialized"`
	Flow        flow.Flow   `json:"flow"`
	Step        flow.Step   `json:"step"`
	Action      flow.Action `json:"action"`
	Screen      flow.Screen `json:"screen"`
	Skip        flow.Skip   `json:"skip"`
	// Position is the position being edited; for OPEN it is the index the new
	// position will get, for MIGRATE the destination.
	Position   PositionRef             `json:"position"`
	Source     *PositionRef            `json:"source,omitempty"`
	Stage      calldata.MigrationStage `json:"stage,omitempty"`
	SliderMode riskslider.Mode         `json:"slider_mode"`
	// Anchor is captured on entry to ENTRY and dropped when the step is left.
	Anchor *riskslider.Anchor `json:"-"`
}

func (s State) Sequencer() flow.Sequencer {
	return flow.NewSequencer(s.Flow, s.Skip)
}

type Features struct {
	Migrate bool `json:"migrate"`
	Claim   bool `json:"claim"`
}

// Inputs are derived by the owner from the draft and the latest snapshots
// right before each Reduce call. They are never stored.
type Inputs struct {
	// PositionCount is the owner's number of stake positions.
	PositionCount snapshot.Value[uint64]
	Approval      gatekeeper.Decision
	Migration     gatekeeper.MigrationDecision
	Issues        risk.Issues
	// CurrentRisk is the risk percentage of the position as it is on chain.
	CurrentRisk snapshot.Value[decimal.Decimal]
	// Ready and Attempt describe the driver group of the current action.
	Ready    bool
	Attempt  txdriver.Status
	Features Features
}

// GroupFor maps an action to the driver group that executes it.
func GroupFor(a flow.Action) txdriver.Group {
	switch a {
	case flow.ActionApprove:
		return txdriver.GroupApprove
	case flow.ActionMulticall:
		return txdriver.GroupMulticall
	case flow.ActionAuthorize:
		return txdriver.GroupAuthorize
	case flow.ActionMigrate:
		return txdriver.GroupMigrate
	case flow.ActionClaim:
		return txdriver.GroupClaim
	}
	return ""
}

type CommandKind string

const (
	CmdSubmit             CommandKind = "submit"
	CmdRetry              CommandKind = "retry"
	CmdAbandon            CommandKind = "abandon"
	CmdRefresh            CommandKind = "refresh"
	CmdResetDraft         CommandKind = "reset_draft"
	CmdResetDriver        CommandKind = "reset_driver"
	CmdSetMigrationTarget CommandKind = "set_migration_target"
)

type RefreshScope string

const (
	ScopeAll            RefreshScope = "all"
	ScopeAllowances     RefreshScope = "allowances"
	ScopeAuthorizations RefreshScope = "authorizations"
	ScopePositions      RefreshScope = "positions"
)

// Command is an effect requested by the reducer.
type Command struct {
	Kind   CommandKind
	Group  txdriver.Group
	Scope  RefreshScope
	Target uint64
}

func submit(g txdriver.Group) Command  { return Command{Kind: CmdSubmit, Group: g} }
func retry(g txdriver.Group) Command   { return Command{Kind: CmdRetry, Group: g} }
func abandon(g txdriver.Group) Command { return Command{Kind: CmdAbandon, Group: g} }
func refresh(sc RefreshScope) Command  { return Command{Kind: CmdRefresh, Scope: sc} }
func setTarget(index uint64) Command   { return Command{Kind: CmdSetMigrationTarget, Target: index} }

var (
	resetDraft  = Command{Kind: CmdResetDraft}
	resetDriver = Command{Kind: CmdResetDriver}
)
