// Package draft holds the user's pending position edits. The Store is the only
// writer of a Draft; everything downstream reads copies.
package draft

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// Engine identifies which staking engine a position lives in.
type Engine string

const (
	EngineStake Engine = "stake"
	EngineSeal  Engine = "seal"
)

// Collateral is a token that can be locked into a position.
type Collateral string

const (
	CollateralSKY Collateral = "SKY"
	CollateralMKR Collateral = "MKR"
)

// Collaterals lists variants in the fixed order used for assembly.
var Collaterals = []Collateral{CollateralSKY, CollateralMKR}

// Asset names an ERC-20 token the engines pull from the owner.
type Asset string

const (
	AssetSKY  Asset = "SKY"
	AssetMKR  Asset = "MKR"
	AssetUSDS Asset = "USDS"
)

func (c Collateral) Asset() Asset { return Asset(c) }

// Accepts reports whether collateral c can be locked into or freed from e.
// The stake engine only takes SKY.
func (e Engine) Accepts(c Collateral) bool {
	switch e {
	case EngineStake:
		return c == CollateralSKY
	case EngineSeal:
		return c == CollateralSKY || c == CollateralMKR
	}
	return false
}

// SkyPerMkr is the fixed conversion rate between the two collateral tokens.
var SkyPerMkr = decimal.NewFromInt(24000)

// Units converts an amount of collateral c into the engine's native ink units.
// The seal engine accounts in MKR; the stake engine in SKY.
func Units(e Engine, c Collateral, amount decimal.Decimal) decimal.Decimal {
	switch {
	case e == EngineSeal && c == CollateralSKY:
		return amount.Div(SkyPerMkr)
	case e == EngineStake && c == CollateralMKR:
		return amount.Mul(SkyPerMkr)
	default:
		return amount
	}
}

var (
	ErrNegativeAmount = errors.New("amount must not be negative")
	ErrBadAddress     = errors.New("invalid address")
	ErrBadCollateral  = errors.New("unknown collateral")
)

// Draft is a plain value; copy it freely.
type Draft struct {
	Lock            map[Collateral]decimal.Decimal `json:"lock,omitempty"`
	Free            map[Collateral]decimal.Decimal `json:"free,omitempty"`
	Borrow          decimal.Decimal                `json:"borrow"`
	Repay           decimal.Decimal                `json:"repay"`
	RepayAll        bool                           `json:"repay_all"`
	RewardStream    *string                        `json:"reward_stream,omitempty"`
	Delegate        *string                        `json:"delegate,omitempty"`
	Collateral      Collateral                     `json:"collateral"`
	MigrationTarget *uint64                        `json:"migration_target,omitempty"`
}

func Empty() Draft {
	return Draft{
		Lock:       map[Collateral]decimal.Decimal{},
		Free:       map[Collateral]decimal.Decimal{},
		Borrow:     decimal.Zero,
		Repay:      decimal.Zero,
		Collateral: CollateralSKY,
	}
}

func (d Draft) Clone() Draft {
	out := d
	out.Lock = make(map[Collateral]decimal.Decimal, len(d.Lock))
	for k, v := range d.Lock {
		out.Lock[k] = v
	}
	out.Free = make(map[Collateral]decimal.Decimal, len(d.Free))
	for k, v := range d.Free {
		out.Free[k] = v
	}
	if d.RewardStream != nil {
		v := *d.RewardStream
		out.RewardStream = &v
	}
	if d.Delegate != nil {
		v := *d.Delegate
		out.Delegate = &v
	}
	if d.MigrationTarget != nil {
		v := *d.MigrationTarget
		out.MigrationTarget = &v
	}
	return out
}

func (d Draft) LockOf(c Collateral) decimal.Decimal { return d.Lock[c] }
func (d Draft) FreeOf(c Collateral) decimal.Decimal { return d.Free[c] }

// LockUnits sums all lock amounts in the engine's native units.
func (d Draft) LockUnits(e Engine) decimal.Decimal {
	total := decimal.Zero
	for _, c := range Collaterals {
		total = total.Add(Units(e, c, d.Lock[c]))
	}
	return total
}

func (d Draft) FreeUnits(e Engine) decimal.Decimal {
	total := decimal.Zero
	for _, c := range Collaterals {
		total = total.Add(Units(e, c, d.Free[c]))
	}
	return total
}

// HasAmounts reports whether any amount field is non-zero.
func (d Draft) HasAmounts() bool {
	for _, c := range Collaterals {
		if d.Lock[c].IsPositive() || d.Free[c].IsPositive() {
			return true
		}
	}
	return d.Borrow.IsPositive() || d.Repay.IsPositive() || d.RepayAll
}

// RewardAddress returns the selected reward stream, or ok=false when the user
// has not touched the selection.
func (d Draft) RewardAddress() (common.Address, bool) {
	return selection(d.RewardStream)
}

func (d Draft) DelegateAddress() (common.Address, bool) {
	return selection(d.Delegate)
}

func selection(v *string) (common.Address, bool) {
	if v == nil {
		return common.Address{}, false
	}
	if strings.TrimSpace(*v) == "" {
		return common.Address{}, true
	}
	return common.HexToAddress(*v), true
}

// Store owns a Draft. It is not safe for concurrent use; the owning session
// serializes access.
type Store struct {
	d       Draft
	version uint64
}

func NewStore() *Store {
	return &Store{d: Empty()}
}

// Snapshot returns a deep copy of the current draft.
func (s *Store) Snapshot() Draft { return s.d.Clone() }

// Version increases on every mutation.
func (s *Store) Version() uint64 { return s.version }

func (s *Store) touch() { s.version++ }

func (s *Store) Reset() {
	s.d = Empty()
	s.touch()
}

// Replace installs a restored draft (e.g. from a checkpoint).
func (s *Store) Replace(d Draft) {
	s.d = d.Clone()
	if s.d.Lock == nil {
		s.d.Lock = map[Collateral]decimal.Decimal{}
	}
	if s.d.Free == nil {
		s.d.Free = map[Collateral]decimal.Decimal{}
	}
	s.touch()
}

func validCollateral(c Collateral) error {
	switch c {
	case CollateralSKY, CollateralMKR:
		return nil
	}
	return fmt.Errorf("%w: %s", ErrBadCollateral, c)
}

func nonNegative(v decimal.Decimal) error {
	if v.IsNegative() {
		return ErrNegativeAmount
	}
	return nil
}

func (s *Store) SetLock(c Collateral, amount decimal.Decimal) error {
	if err := validCollateral(c); err != nil {
		return err
	}
	if err := nonNegative(amount); err != nil {
		return err
	}
	s.d.Lock[c] = amount
	s.touch()
	return nil
}

func (s *Store) SetFree(c Collateral, amount decimal.Decimal) error {
	if err := validCollateral(c); err != nil {
		return err
	}
	if err := nonNegative(amount); err != nil {
		return err
	}
	s.d.Free[c] = amount
	s.touch()
	return nil
}

func (s *Store) SetBorrow(amount decimal.Decimal) error {
	if err := nonNegative(amount); err != nil {
		return err
	}
	s.d.Borrow = amount
	s.touch()
	return nil
}

func (s *Store) SetRepay(amount decimal.Decimal) error {
	if err := nonNegative(amount); err != nil {
		return err
	}
	s.d.Repay = amount
	s.touch()
	return nil
}

func (s *Store) SetRepayAll(v bool) {
	s.d.RepayAll = v
	s.touch()
}

// SetRewardStream selects a reward stream. nil clears the selection; an empty
// string selects "no reward stream".
func (s *Store) SetRewardStream(addr *string) error {
	v, err := normalizeAddress(addr)
	if err != nil {
		return err
	}
	s.d.RewardStream = v
	s.touch()
	return nil
}

func (s *Store) SetDelegate(addr *string) error {
	v, err := normalizeAddress(addr)
	if err != nil {
		return err
	}
	s.d.Delegate = v
	s.touch()
	return nil
}

func (s *Store) SetCollateral(c Collateral) error {
	if err := validCollateral(c); err != nil {
		return err
	}
	s.d.Collateral = c
	s.touch()
	return nil
}

func (s *Store) SetMigrationTarget(index *uint64) {
	if index == nil {
		s.d.MigrationTarget = nil
	} else {
		v := *index
		s.d.MigrationTarget = &v
	}
	s.touch()
}

func normalizeAddress(addr *string) (*string, error) {
	if addr == nil {
		return nil, nil
	}
	v := strings.TrimSpace(*addr)
	if v == "" {
		return &v, nil
	}
	if !common.IsHexAddress(v) {
		return nil, fmt.Errorf("%w: %s", ErrBadAddress, v)
	}
	v = common.HexToAddress(v).Hex()
	return &v, nil
}
