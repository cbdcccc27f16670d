package wizard

import (
	"github.com/skybase-int/tarmac-sub003/internal/riskslider"
	"github.com/skybase-int/tarmac-sub003/internal/txdriver"
)

// Event is a named transition trigger.
type Event interface {
	Name() string
}

// Recompute re-derives the state from fresh inputs without user intent.
type Recompute struct{}

type StartOpen struct{}

type SelectPosition struct {
	Index uint64
}

type StartMigrate struct {
	Source      PositionRef
	Destination uint64
}

type Claim struct {
	Index uint64
}

type Continue struct{}

type Back struct{}

type Confirm struct{}

type Retry struct{}

type Exit struct{}

// TxChanged carries the latest attempt of a driver group.
type TxChanged struct {
	Attempt txdriver.Attempt
}

// SubmitFailed reports that the driver refused to start an attempt.
type SubmitFailed struct {
	Group txdriver.Group
	Err   error
}

type SetSkip struct {
	Rewards  bool
	Delegate bool
}

type SetSliderMode struct {
	Mode riskslider.Mode
}

func (Recompute) Name() string      { return "recompute" }
func (StartOpen) Name() string      { return "start_open" }
func (SelectPosition) Name() string { return "select_position" }
func (StartMigrate) Name() string   { return "start_migrate" }
func (Claim) Name() string          { return "claim" }
func (Continue) Name() string       { return "continue" }
func (Back) Name() string           { return "back" }
func (Confirm) Name() string        { return "confirm" }
func (Retry) Name() string          { return "retry" }
func (Exit) Name() string           { return "exit" }
func (TxChanged) Name() string      { return "tx_changed" }
func (SubmitFailed) Name() string   { return "submit_failed" }
func (SetSkip) Name() string        { return "set_skip" }
func (SetSliderMode) Name() string  { return "set_slider_mode" }
