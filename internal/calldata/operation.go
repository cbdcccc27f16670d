// Package calldata turns a position draft into the ordered list of primitive
// engine operations and encodes them into contract calls.
package calldata

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/skybase-int/tarmac-sub003/internal/draft"
)

type Kind string

const (
	KindOpen              Kind = "open"
	KindLock              Kind = "lock"
	KindFree              Kind = "free"
	KindBorrow            Kind = "borrow"
	KindRepay             Kind = "repay"
	KindRepayAll          Kind = "repay_all"
	KindSelectReward      Kind = "select_reward"
	KindSelectDelegate    Kind = "select_delegate"
	KindAuthorizeMigrator Kind = "authorize_migrator"
	KindMigrate           Kind = "migrate"
	KindClaim             Kind = "claim"
	KindApprove           Kind = "approve"
)

// Operation is one primitive action. Implementations are immutable values.
type Operation interface {
	Kind() Kind
}

type Open struct {
	Engine draft.Engine
	Index  uint64
}

type Lock struct {
	Engine     draft.Engine
	Owner      common.Address
	Index      uint64
	Collateral draft.Collateral
	Amount     decimal.Decimal
	Ref        uint16
}

type Free struct {
	Engine     draft.Engine
	Owner      common.Address
	Index      uint64
	To         common.Address
	Collateral draft.Collateral
	Amount     decimal.Decimal
}

type Borrow struct {
	Engine draft.Engine
	Owner  common.Address
	Index  uint64
	To     common.Address
	Amount decimal.Decimal
}

type Repay struct {
	Engine draft.Engine
	Owner  common.Address
	Index  uint64
	Amount decimal.Decimal
}

type RepayAll struct {
	Engine draft.Engine
	Owner  common.Address
	Index  uint64
}

type SelectReward struct {
	Engine draft.Engine
	Owner  common.Address
	Index  uint64
	Farm   common.Address
	Ref    uint16
}

type SelectDelegate struct {
	Engine   draft.Engine
	Owner    common.Address
	Index    uint64
	Delegate common.Address
}

// AuthorizeMigrator grants the migrator contract access to a position. The
// migrator address itself is resolved at encoding time.
type AuthorizeMigrator struct {
	Engine draft.Engine
	Owner  common.Address
	Index  uint64
}

type Migrate struct {
	OldOwner common.Address
	OldIndex uint64
	NewOwner common.Address
	NewIndex uint64
	Ref      uint16
}

type Claim struct {
	Engine draft.Engine
	Owner  common.Address
	Index  uint64
	Farm   common.Address
	To     common.Address
}

// Approve lets an engine pull Amount of Asset from the owner.
type Approve struct {
	Asset  draft.Asset
	Engine draft.Engine
	Amount decimal.Decimal
}

func (Open) Kind() Kind              { return KindOpen }
func (Lock) Kind() Kind              { return KindLock }
func (Free) Kind() Kind              { return KindFree }
func (Borrow) Kind() Kind            { return KindBorrow }
func (Repay) Kind() Kind             { return KindRepay }
func (RepayAll) Kind() Kind          { return KindRepayAll }
func (SelectReward) Kind() Kind      { return KindSelectReward }
func (SelectDelegate) Kind() Kind    { return KindSelectDelegate }
func (AuthorizeMigrator) Kind() Kind { return KindAuthorizeMigrator }
func (Migrate) Kind() Kind           { return KindMigrate }
func (Claim) Kind() Kind             { return KindClaim }
func (Approve) Kind() Kind           { return KindApprove }

// Batch is an ordered operation list. It is rebuilt on every change and never
// edited in place.
type Batch []Operation

func (b Batch) Kinds() []Kind {
	out := make([]Kind, 0, len(b))
	for _, op := range b {
		out = append(out, op.Kind())
	}
	return out
}

// IndexOf returns the position of the first operation of kind k, or -1.
func (b Batch) IndexOf(k Kind) int {
	for i, op := range b {
		if op.Kind() == k {
			return i
		}
	}
	return -1
}

func (b Batch) Has(k Kind) bool { return b.IndexOf(k) >= 0 }
