package calldata

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/shopspring/decimal"

	"github.com/skybase-int/tarmac-sub003/internal/draft"
)

var (
	ErrUnknownOperation      = errors.New("unknown operation")
	ErrMissingAddress        = errors.New("missing contract address")
	ErrUnsupportedCollateral = errors.New("collateral not supported by engine")
)

// Addresses resolves the contracts operations are sent to.
type Addresses struct {
	Engines  map[draft.Engine]common.Address
	Tokens   map[draft.Asset]common.Address
	Migrator common.Address
}

func (a Addresses) engine(e draft.Engine) (common.Address, error) {
	addr, ok := a.Engines[e]
	if !ok || addr == (common.Address{}) {
		return common.Address{}, fmt.Errorf("%w: engine %s", ErrMissingAddress, e)
	}
	return addr, nil
}

func (a Addresses) token(asset draft.Asset) (common.Address, error) {
	addr, ok := a.Tokens[asset]
	if !ok || addr == (common.Address{}) {
		return common.Address{}, fmt.Errorf("%w: token %s", ErrMissingAddress, asset)
	}
	return addr, nil
}

func (a Addresses) migrator() (common.Address, error) {
	if a.Migrator == (common.Address{}) {
		return common.Address{}, fmt.Errorf("%w: migrator", ErrMissingAddress)
	}
	return a.Migrator, nil
}

// Call is one transaction the wallet is asked to sign.
type Call struct {
	To    common.Address `json:"to"`
	Data  hexutil.Bytes  `json:"data"`
	Kinds []Kind         `json:"kinds"`
}

type Encoder struct {
	Addresses Addresses
}

// Encode packs a batch into calls. Consecutive operations against the same
// engine collapse into one multicall; token approvals and migrations are
// standalone calls.
func (e Encoder) Encode(b Batch) ([]Call, error) {
	var (
		out     []Call
		pending [][]byte
		kinds   []Kind
		target  common.Address
	)
	flush := func() error {
		if len(pending) == 0 {
			return nil
		}
		data := pending[0]
		if len(pending) > 1 {
			packed, err := EngineABI.Pack("multicall", pending)
			if err != nil {
				return fmt.Errorf("pack multicall: %w", err)
			}
			data = packed
		}
		out = append(out, Call{To: target, Data: data, Kinds: kinds})
		pending, kinds = nil, nil
		return nil
	}

	for _, op := range b {
		eng, data, err := e.packEngine(op)
		if err != nil {
			return nil, err
		}
		if data != nil {
			if len(pending) > 0 && eng != target {
				if err := flush(); err != nil {
					return nil, err
				}
			}
			target = eng
			pending = append(pending, data)
			kinds = append(kinds, op.Kind())
			continue
		}

		if err := flush(); err != nil {
			return nil, err
		}
		call, err := e.packStandalone(op)
		if err != nil {
			return nil, err
		}
		out = append(out, call)
	}
	if err := flush(); err != nil {
		return nil, err
	}
	return out, nil
}

// packEngine returns nil data for operations that are not engine calls.
func (e Encoder) packEngine(op Operation) (common.Address, []byte, error) {
	var (
		engine draft.Engine
		method string
		args   []interface{}
	)
	switch o := op.(type) {
	case Open:
		engine, method, args = o.Engine, "open", []interface{}{idx(o.Index)}
	case Lock:
		name, err := lockMethod(o.Engine, o.Collateral)
		if err != nil {
			return common.Address{}, nil, err
		}
		engine, method = o.Engine, name
		args = []interface{}{o.Owner, idx(o.Index), Wad(o.Amount), o.Ref}
	case Free:
		name, err := freeMethod(o.Engine, o.Collateral)
		if err != nil {
			return common.Address{}, nil, err
		}
		engine, method = o.Engine, name
		args = []interface{}{o.Owner, idx(o.Index), o.To, Wad(o.Amount)}
	case Borrow:
		engine, method = o.Engine, "draw"
		args = []interface{}{o.Owner, idx(o.Index), o.To, Wad(o.Amount)}
	case Repay:
		engine, method = o.Engine, "wipe"
		args = []interface{}{o.Owner, idx(o.Index), Wad(o.Amount)}
	case RepayAll:
		engine, method = o.Engine, "wipeAll"
		args = []interface{}{o.Owner, idx(o.Index)}
	case SelectReward:
		engine, method = o.Engine, "selectFarm"
		args = []interface{}{o.Owner, idx(o.Index), o.Farm, o.Ref}
	case SelectDelegate:
		engine, method = o.Engine, "selectVoteDelegate"
		args = []interface{}{o.Owner, idx(o.Index), o.Delegate}
	case AuthorizeMigrator:
		mig, err := e.Addresses.migrator()
		if err != nil {
			return common.Address{}, nil, err
		}
		engine, method = o.Engine, "hope"
		args = []interface{}{o.Owner, idx(o.Index), mig}
	case Claim:
		engine, method = o.Engine, "getReward"
		args = []interface{}{o.Owner, idx(o.Index), o.Farm, o.To}
	case Approve, Migrate:
		return common.Address{}, nil, nil
	default:
		return common.Address{}, nil, fmt.Errorf("%w: %T", ErrUnknownOperation, op)
	}

	addr, err := e.Addresses.engine(engine)
	if err != nil {
		return common.Address{}, nil, err
	}
	data, err := EngineABI.Pack(method, args...)
	if err != nil {
		return common.Address{}, nil, fmt.Errorf("pack %s: %w", method, err)
	}
	return addr, data, nil
}

func (e Encoder) packStandalone(op Operation) (Call, error) {
	switch o := op.(type) {
	case Approve:
		token, err := e.Addresses.token(o.Asset)
		if err != nil {
			return Call{}, err
		}
		spender, err := e.Addresses.engine(o.Engine)
		if err != nil {
			return Call{}, err
		}
		data, err := ERC20ABI.Pack("approve", spender, Wad(o.Amount))
		if err != nil {
			return Call{}, fmt.Errorf("pack approve: %w", err)
		}
		return Call{To: token, Data: data, Kinds: []Kind{KindApprove}}, nil
	case Migrate:
		mig, err := e.Addresses.migrator()
		if err != nil {
			return Call{}, err
		}
		data, err := MigratorABI.Pack("migrate", o.OldOwner, idx(o.OldIndex), o.NewOwner, idx(o.NewIndex), o.Ref)
		if err != nil {
			return Call{}, fmt.Errorf("pack migrate: %w", err)
		}
		return Call{To: mig, Data: data, Kinds: []Kind{KindMigrate}}, nil
	}
	return Call{}, fmt.Errorf("%w: %T", ErrUnknownOperation, op)
}

func lockMethod(e draft.Engine, c draft.Collateral) (string, error) {
	switch {
	case e == draft.EngineStake && c == draft.CollateralSKY:
		return "lock", nil
	case e == draft.EngineSeal && c == draft.CollateralMKR:
		return "lock", nil
	case e == draft.EngineSeal && c == draft.CollateralSKY:
		return "lockSky", nil
	}
	return "", fmt.Errorf("%w: %s on %s", ErrUnsupportedCollateral, c, e)
}

func freeMethod(e draft.Engine, c draft.Collateral) (string, error) {
	switch {
	case e == draft.EngineStake && c == draft.CollateralSKY:
		return "free", nil
	case e == draft.EngineSeal && c == draft.CollateralMKR:
		return "free", nil
	case e == draft.EngineSeal && c == draft.CollateralSKY:
		return "freeSky", nil
	}
	return "", fmt.Errorf("%w: %s on %s", ErrUnsupportedCollateral, c, e)
}

func idx(i uint64) *big.Int { return new(big.Int).SetUint64(i) }

// Wad converts a token amount into its 18-decimal integer representation,
// truncating anything below one wei.
func Wad(d decimal.Decimal) *big.Int {
	return d.Shift(18).Truncate(0).BigInt()
}

// FromWad is the inverse of Wad.
func FromWad(v *big.Int) decimal.Decimal {
	if v == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(v, -18)
}
