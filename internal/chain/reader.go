// Package chain reads position, allowance and authorization state from the
// engines over JSON-RPC and carries signed transactions to their receipts.
package chain

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/big"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/skybase-int/tarmac-sub003/internal/calldata"
	"github.com/skybase-int/tarmac-sub003/internal/draft"
	"github.com/skybase-int/tarmac-sub003/internal/risk"
)

// ContractCaller is the read half of ethclient.Client.
type ContractCaller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

var ErrUnexpectedOutput = errors.New("unexpected call output")

const defaultReadMaxElapsed = 10 * time.Second

// Reader issues eth_call reads against the configured contracts. Transient
// transport failures are retried; reverts and decode errors are not.
type Reader struct {
	Client     ContractCaller
	Contracts  Contracts
	Logger     *zap.Logger
	MaxElapsed time.Duration
	// RetryInterval is the first backoff step; later steps grow from it.
	RetryInterval time.Duration
}

func (r *Reader) newBackoff() backoff.BackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = r.RetryInterval
	if bo.InitialInterval <= 0 {
		bo.InitialInterval = 200 * time.Millisecond
	}
	bo.MaxElapsedTime = r.MaxElapsed
	if bo.MaxElapsedTime <= 0 {
		bo.MaxElapsedTime = defaultReadMaxElapsed
	}
	return bo
}

// isTransient reports whether an RPC error is worth another attempt.
func isTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, s := range []string{
		"connection reset",
		"connection refused",
		"broken pipe",
		"i/o timeout",
		"too many requests",
		"429",
		"502 bad gateway",
		"503 service unavailable",
		"header not found",
	} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

func (r *Reader) call(ctx context.Context, to common.Address, parsed abi.ABI, method string, args ...any) ([]any, error) {
	if r == nil || r.Client == nil {
		return nil, errors.New("chain reader not configured")
	}
	data, err := parsed.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	var out []byte
	attempt := 0
	err = backoff.Retry(func() error {
		attempt++
		res, err := r.Client.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
		if err != nil {
			if isTransient(err) {
				if r.Logger != nil {
					r.Logger.Debug("rpc read retry",
						zap.String("method", method),
						zap.Int("attempt", attempt),
						zap.Error(err),
					)
				}
				return err
			}
			return backoff.Permanent(err)
		}
		out = res
		return nil
	}, backoff.WithContext(r.newBackoff(), ctx))
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", method, err)
	}
	values, err := parsed.Unpack(method, out)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	return values, nil
}

func bigAt(values []any, i int) (*big.Int, error) {
	if i >= len(values) {
		return nil, ErrUnexpectedOutput
	}
	v, ok := values[i].(*big.Int)
	if !ok {
		return nil, ErrUnexpectedOutput
	}
	return v, nil
}

func addressAt(values []any, i int) (common.Address, error) {
	if i >= len(values) {
		return common.Address{}, ErrUnexpectedOutput
	}
	v, ok := values[i].(common.Address)
	if !ok {
		return common.Address{}, ErrUnexpectedOutput
	}
	return v, nil
}

// PositionCount is the number of positions owner has opened on engine.
func (r *Reader) PositionCount(ctx context.Context, e draft.Engine, owner common.Address) (uint64, error) {
	engine, err := r.Contracts.engine(e)
	if err != nil {
		return 0, err
	}
	values, err := r.call(ctx, engine, calldata.EngineABI, "ownerUrnsCount", owner)
	if err != nil {
		return 0, err
	}
	n, err := bigAt(values, 0)
	if err != nil {
		return 0, err
	}
	return n.Uint64(), nil
}

// Urn resolves the vault address of a position.
func (r *Reader) Urn(ctx context.Context, e draft.Engine, owner common.Address, index uint64) (common.Address, error) {
	engine, err := r.Contracts.engine(e)
	if err != nil {
		return common.Address{}, err
	}
	values, err := r.call(ctx, engine, calldata.EngineABI, "ownerUrns", owner, new(big.Int).SetUint64(index))
	if err != nil {
		return common.Address{}, err
	}
	return addressAt(values, 0)
}

// Position reads collateral, debt and selections of one position. A position
// that was never opened reads as a zero position.
func (r *Reader) Position(ctx context.Context, e draft.Engine, owner common.Address, index uint64) (risk.Position, error) {
	pos := risk.Position{Index: index, Collateral: decimal.Zero, Debt: decimal.Zero}
	urn, err := r.Urn(ctx, e, owner, index)
	if err != nil {
		return pos, err
	}
	if urn == (common.Address{}) {
		return pos, nil
	}
	pos.Urn = urn

	ilk, err := r.Contracts.ilk(e)
	if err != nil {
		return pos, err
	}
	values, err := r.call(ctx, r.Contracts.Vat, calldata.VatABI, "urns", ilk, urn)
	if err != nil {
		return pos, err
	}
	ink, err := bigAt(values, 0)
	if err != nil {
		return pos, err
	}
	art, err := bigAt(values, 1)
	if err != nil {
		return pos, err
	}
	info, err := r.Ilk(ctx, e)
	if err != nil {
		return pos, err
	}
	pos.Collateral = calldata.FromWad(ink)
	pos.Debt = calldata.FromWad(art).Mul(info.Rate)

	engine, _ := r.Contracts.engine(e)
	if values, err = r.call(ctx, engine, calldata.EngineABI, "urnFarms", urn); err != nil {
		return pos, err
	}
	if pos.RewardStream, err = addressAt(values, 0); err != nil {
		return pos, err
	}
	if values, err = r.call(ctx, engine, calldata.EngineABI, "urnVoteDelegates", urn); err != nil {
		return pos, err
	}
	if pos.Delegate, err = addressAt(values, 0); err != nil {
		return pos, err
	}
	return pos, nil
}

// IlkInfo is the collateral type state relevant to simulation.
type IlkInfo struct {
	// Rate is the accumulated stability fee multiplier.
	Rate decimal.Decimal
	// Utilized is the total normalized debt times rate.
	Utilized decimal.Decimal
	Ceiling  decimal.Decimal
	Dust     decimal.Decimal
}

var (
	ray = decimal.New(1, 27)
	rad = decimal.New(1, 45)
)

func (r *Reader) Ilk(ctx context.Context, e draft.Engine) (IlkInfo, error) {
	ilk, err := r.Contracts.ilk(e)
	if err != nil {
		return IlkInfo{}, err
	}
	values, err := r.call(ctx, r.Contracts.Vat, calldata.VatABI, "ilks", ilk)
	if err != nil {
		return IlkInfo{}, err
	}
	nums := make([]*big.Int, 5)
	for i := range nums {
		if nums[i], err = bigAt(values, i); err != nil {
			return IlkInfo{}, err
		}
	}
	rate := decimal.NewFromBigInt(nums[1], 0).Div(ray)
	return IlkInfo{
		Rate:     rate,
		Utilized: calldata.FromWad(nums[0]).Mul(rate),
		Ceiling:  decimal.NewFromBigInt(nums[3], 0).Div(rad),
		Dust:     decimal.NewFromBigInt(nums[4], 0).Div(rad),
	}, nil
}

// Allowance is what owner has approved engine to pull of asset.
func (r *Reader) Allowance(ctx context.Context, asset draft.Asset, owner common.Address, e draft.Engine) (decimal.Decimal, error) {
	token, err := r.Contracts.token(asset)
	if err != nil {
		return decimal.Zero, err
	}
	spender, err := r.Contracts.engine(e)
	if err != nil {
		return decimal.Zero, err
	}
	values, err := r.call(ctx, token, calldata.ERC20ABI, "allowance", owner, spender)
	if err != nil {
		return decimal.Zero, err
	}
	v, err := bigAt(values, 0)
	if err != nil {
		return decimal.Zero, err
	}
	return calldata.FromWad(v), nil
}

func (r *Reader) Balance(ctx context.Context, asset draft.Asset, owner common.Address) (decimal.Decimal, error) {
	token, err := r.Contracts.token(asset)
	if err != nil {
		return decimal.Zero, err
	}
	values, err := r.call(ctx, token, calldata.ERC20ABI, "balanceOf", owner)
	if err != nil {
		return decimal.Zero, err
	}
	v, err := bigAt(values, 0)
	if err != nil {
		return decimal.Zero, err
	}
	return calldata.FromWad(v), nil
}

// MigratorAuthorized reports whether the migrator may act on the position.
// A position that does not exist is not authorized.
func (r *Reader) MigratorAuthorized(ctx context.Context, e draft.Engine, owner common.Address, index uint64) (bool, error) {
	if r.Contracts.Migrator == (common.Address{}) {
		return false, fmt.Errorf("%w: migrator", calldata.ErrMissingAddress)
	}
	urn, err := r.Urn(ctx, e, owner, index)
	if err != nil {
		return false, err
	}
	if urn == (common.Address{}) {
		return false, nil
	}
	engine, _ := r.Contracts.engine(e)
	values, err := r.call(ctx, engine, calldata.EngineABI, "isUrnAuth", urn, r.Contracts.Migrator)
	if err != nil {
		return false, err
	}
	if len(values) == 0 {
		return false, ErrUnexpectedOutput
	}
	ok, isBool := values[0].(bool)
	if !isBool {
		return false, ErrUnexpectedOutput
	}
	return ok, nil
}
