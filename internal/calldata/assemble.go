package calldata

import (
	"github.com/ethereum/go-ethereum/common"

	"github.com/skybase-int/tarmac-sub003/internal/draft"
	"github.com/skybase-int/tarmac-sub003/internal/flow"
)

// Target describes the position a batch addresses, including the selections it
// currently holds on chain so unchanged selections can be dropped.
type Target struct {
	Engine          draft.Engine
	Owner           common.Address
	Index           uint64
	CurrentReward   common.Address
	CurrentDelegate common.Address
	Ref             uint16
}

// Assemble builds the batch for one confirmation of a flow. Zero amounts and
// unchanged selections are left out.
//
// For FlowMigrate it returns the destination-creation batch, which is empty
// once the destination exists; later migration stages use AssembleMigration.
func Assemble(d draft.Draft, f flow.Flow, hasExistingPosition bool, t Target) Batch {
	switch f {
	case flow.FlowOpen:
		return assembleOpen(d, hasExistingPosition, t)
	case flow.FlowManage:
		return assembleManage(d, t)
	case flow.FlowMigrate:
		if hasExistingPosition {
			return nil
		}
		return assembleCreateDestination(d, t)
	case flow.FlowClaim:
		return assembleClaim(d, t)
	}
	return nil
}

// open, lock, borrow, selectReward, selectDelegate
func assembleOpen(d draft.Draft, exists bool, t Target) Batch {
	var b Batch
	if !exists {
		b = append(b, Open{Engine: t.Engine, Index: t.Index})
	}
	b = appendLocks(b, d, t)
	b = appendBorrow(b, d, t)
	b = appendSelections(b, d, t)
	return b
}

// repay|repayAll, free, selectReward, selectDelegate, lock, borrow.
//
// Debt is reduced before collateral leaves, and free (with the selections
// that touch the same position) must land before lock: the delegate contract
// rejects a lock and free of the same position in one block in the other order.
func assembleManage(d draft.Draft, t Target) Batch {
	var b Batch
	if d.RepayAll {
		b = append(b, RepayAll{Engine: t.Engine, Owner: t.Owner, Index: t.Index})
	} else if d.Repay.IsPositive() {
		b = append(b, Repay{Engine: t.Engine, Owner: t.Owner, Index: t.Index, Amount: d.Repay})
	}
	for _, c := range draft.Collaterals {
		amt := d.FreeOf(c)
		if !amt.IsPositive() {
			continue
		}
		b = append(b, Free{Engine: t.Engine, Owner: t.Owner, Index: t.Index, To: t.Owner, Collateral: c, Amount: amt})
	}
	b = appendSelections(b, d, t)
	b = appendLocks(b, d, t)
	b = appendBorrow(b, d, t)
	return b
}

func assembleCreateDestination(d draft.Draft, t Target) Batch {
	b := Batch{Open{Engine: t.Engine, Index: t.Index}}
	b = appendSelections(b, d, t)
	b = append(b, AuthorizeMigrator{Engine: t.Engine, Owner: t.Owner, Index: t.Index})
	return b
}

func assembleClaim(d draft.Draft, t Target) Batch {
	farm := t.CurrentReward
	if addr, ok := d.RewardAddress(); ok && addr != (common.Address{}) {
		farm = addr
	}
	if farm == (common.Address{}) {
		return nil
	}
	return Batch{Claim{Engine: t.Engine, Owner: t.Owner, Index: t.Index, Farm: farm, To: t.Owner}}
}

func appendLocks(b Batch, d draft.Draft, t Target) Batch {
	for _, c := range draft.Collaterals {
		amt := d.LockOf(c)
		if !amt.IsPositive() {
			continue
		}
		b = append(b, Lock{Engine: t.Engine, Owner: t.Owner, Index: t.Index, Collateral: c, Amount: amt, Ref: t.Ref})
	}
	return b
}

func appendBorrow(b Batch, d draft.Draft, t Target) Batch {
	if !d.Borrow.IsPositive() {
		return b
	}
	return append(b, Borrow{Engine: t.Engine, Owner: t.Owner, Index: t.Index, To: t.Owner, Amount: d.Borrow})
}

func appendSelections(b Batch, d draft.Draft, t Target) Batch {
	if farm, ok := d.RewardAddress(); ok && farm != t.CurrentReward {
		b = append(b, SelectReward{Engine: t.Engine, Owner: t.Owner, Index: t.Index, Farm: farm, Ref: t.Ref})
	}
	if del, ok := d.DelegateAddress(); ok && del != t.CurrentDelegate {
		b = append(b, SelectDelegate{Engine: t.Engine, Owner: t.Owner, Index: t.Index, Delegate: del})
	}
	return b
}

type MigrationStage string

const (
	StageCreate               MigrationStage = "create"
	StageAuthorizeDestination MigrationStage = "authorize_destination"
	StageAuthorizeSource      MigrationStage = "authorize_source"
	StageMigrate              MigrationStage = "migrate"
)

// AssembleMigration returns the single-confirmation batch for a migration
// stage. Stages never share a batch; each waits for the previous one to land.
func AssembleMigration(stage MigrationStage, d draft.Draft, source, dest Target, destExists bool) Batch {
	switch stage {
	case StageCreate:
		return Assemble(d, flow.FlowMigrate, destExists, dest)
	case StageAuthorizeDestination:
		return Batch{AuthorizeMigrator{Engine: dest.Engine, Owner: dest.Owner, Index: dest.Index}}
	case StageAuthorizeSource:
		return Batch{AuthorizeMigrator{Engine: source.Engine, Owner: source.Owner, Index: source.Index}}
	case StageMigrate:
		return Batch{Migrate{
			OldOwner: source.Owner,
			OldIndex: source.Index,
			NewOwner: dest.Owner,
			NewIndex: dest.Index,
			Ref:      dest.Ref,
		}}
	}
	return nil
}
