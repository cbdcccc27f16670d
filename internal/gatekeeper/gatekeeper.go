// Package gatekeeper decides which precursor operation, if any, has to land
// before the main batch: a token approval for edit flows, or one of the
// authorization stages for a migration.
package gatekeeper

import (
	"github.com/shopspring/decimal"

	"github.com/skybase-int/tarmac-sub003/internal/calldata"
	"github.com/skybase-int/tarmac-sub003/internal/draft"
	"github.com/skybase-int/tarmac-sub003/internal/snapshot"
)

// RepayAllBuffer covers stability fee accrual between signing and inclusion.
var RepayAllBuffer = decimal.RequireFromString("1.00005")

// NeedsAllowance is true when the allowance is not a resolved value or is
// below required.
func NeedsAllowance(required decimal.Decimal, current snapshot.Value[decimal.Decimal]) bool {
	if !current.Resolved() {
		return true
	}
	return current.Val.LessThan(required)
}

// NeedsAuthorization is true unless the flag resolved to true.
func NeedsAuthorization(current snapshot.Value[bool]) bool {
	return !current.Resolved() || !current.Val
}

// Requirement is an amount the engine will pull from the owner.
type Requirement struct {
	Asset  draft.Asset
	Amount decimal.Decimal
}

// Requirements lists the token pulls a draft implies, collateral first and USDS
// last. debt is only consulted for repay-all.
func Requirements(d draft.Draft, debt, buffer decimal.Decimal) []Requirement {
	var out []Requirement
	for _, c := range draft.Collaterals {
		if amt := d.LockOf(c); amt.IsPositive() {
			out = append(out, Requirement{Asset: c.Asset(), Amount: amt})
		}
	}
	switch {
	case d.RepayAll:
		if debt.IsPositive() {
			out = append(out, Requirement{Asset: draft.AssetUSDS, Amount: debt.Mul(buffer)})
		}
	case d.Repay.IsPositive():
		out = append(out, Requirement{Asset: draft.AssetUSDS, Amount: d.Repay})
	}
	return out
}

type Input struct {
	Draft  draft.Draft
	Engine draft.Engine
	// Debt is the position's current debt; unused unless the draft repays all.
	Debt      snapshot.Value[decimal.Decimal]
	Allowance func(asset draft.Asset) snapshot.Value[decimal.Decimal]
	Buffer    decimal.Decimal
}

// Decision is the precursor for an edit flow.
type Decision struct {
	Approve *calldata.Approve
	// Loading is set when a read the decision depends on has not resolved.
	// Callers must hold rather than act on the decision.
	Loading bool
}

func (d Decision) NeedsApproval() bool { return d.Approve != nil }

// Decide walks requirements in order and returns the first approval that is
// missing. A pending read stops the walk with Loading set.
func Decide(in Input) Decision {
	buffer := in.Buffer
	if buffer.IsZero() {
		buffer = RepayAllBuffer
	}
	debt := decimal.Zero
	if in.Draft.RepayAll {
		if !in.Debt.Resolved() {
			return Decision{Loading: true}
		}
		debt = in.Debt.Val
	}
	for _, req := range Requirements(in.Draft, debt, buffer) {
		var cur snapshot.Value[decimal.Decimal]
		if in.Allowance != nil {
			cur = in.Allowance(req.Asset)
		}
		if cur.Pending() {
			return Decision{Loading: true}
		}
		if NeedsAllowance(req.Amount, cur) {
			return Decision{Approve: &calldata.Approve{Asset: req.Asset, Engine: in.Engine, Amount: req.Amount}}
		}
	}
	return Decision{}
}

type MigrationInput struct {
	DestinationExists snapshot.Value[bool]
	DestinationAuth   snapshot.Value[bool]
	SourceAuth        snapshot.Value[bool]
}

type MigrationDecision struct {
	Stage   calldata.MigrationStage
	Loading bool
}

// DecideMigration evaluates the migration reads strictly in order. A later read
// is never looked at until every earlier one has resolved and passed.
func DecideMigration(in MigrationInput) MigrationDecision {
	if !in.DestinationExists.Resolved() {
		return MigrationDecision{Stage: calldata.StageCreate, Loading: true}
	}
	if !in.DestinationExists.Val {
		return MigrationDecision{Stage: calldata.StageCreate}
	}
	if !in.DestinationAuth.Resolved() {
		return MigrationDecision{Stage: calldata.StageAuthorizeDestination, Loading: true}
	}
	if NeedsAuthorization(in.DestinationAuth) {
		return MigrationDecision{Stage: calldata.StageAuthorizeDestination}
	}
	if !in.SourceAuth.Resolved() {
		return MigrationDecision{Stage: calldata.StageAuthorizeSource, Loading: true}
	}
	if NeedsAuthorization(in.SourceAuth) {
		return MigrationDecision{Stage: calldata.StageAuthorizeSource}
	}
	return MigrationDecision{Stage: calldata.StageMigrate}
}
