package chain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"
)

type ReceiptReader interface {
	TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error)
}

var (
	ErrReverted       = errors.New("transaction reverted")
	ErrReceiptTimeout = errors.New("timed out waiting for receipt")
)

// ReceiptWatcher polls for a receipt until it appears or MaxWait elapses.
type ReceiptWatcher struct {
	Client   ReceiptReader
	Logger   *zap.Logger
	Interval time.Duration
	MaxWait  time.Duration
}

func (w *ReceiptWatcher) newBackoff() backoff.BackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = w.Interval
	if bo.InitialInterval <= 0 {
		bo.InitialInterval = time.Second
	}
	bo.MaxInterval = 15 * time.Second
	bo.MaxElapsedTime = w.MaxWait
	if bo.MaxElapsedTime <= 0 {
		bo.MaxElapsedTime = 10 * time.Minute
	}
	return bo
}

// Wait returns the mined receipt of hash. A mined but failed transaction
// returns the receipt together with ErrReverted.
func (w *ReceiptWatcher) Wait(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	if w == nil || w.Client == nil {
		return nil, errors.New("receipt watcher not configured")
	}
	var receipt *types.Receipt
	err := backoff.Retry(func() error {
		r, err := w.Client.TransactionReceipt(ctx, hash)
		if err != nil {
			if errors.Is(err, ethereum.NotFound) || isTransient(err) {
				return err
			}
			return backoff.Permanent(err)
		}
		receipt = r
		return nil
	}, backoff.WithContext(w.newBackoff(), ctx))
	if err != nil {
		if errors.Is(err, ethereum.NotFound) {
			return nil, fmt.Errorf("%w: %s", ErrReceiptTimeout, hash.Hex())
		}
		return nil, fmt.Errorf("receipt %s: %w", hash.Hex(), err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		if w.Logger != nil {
			w.Logger.Warn("transaction reverted", zap.String("hash", hash.Hex()))
		}
		return receipt, ErrReverted
	}
	return receipt, nil
}
