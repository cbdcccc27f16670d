package chain

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/skybase-int/tarmac-sub003/internal/calldata"
	"github.com/skybase-int/tarmac-sub003/internal/config"
	"github.com/skybase-int/tarmac-sub003/internal/draft"
)

// Contracts is the deployment the service talks to.
type Contracts struct {
	Engines  map[draft.Engine]common.Address
	Tokens   map[draft.Asset]common.Address
	Ilks     map[draft.Engine][32]byte
	Vat      common.Address
	Migrator common.Address
}

func (c Contracts) engine(e draft.Engine) (common.Address, error) {
	addr, ok := c.Engines[e]
	if !ok || addr == (common.Address{}) {
		return common.Address{}, fmt.Errorf("%w: engine %s", calldata.ErrMissingAddress, e)
	}
	return addr, nil
}

func (c Contracts) token(a draft.Asset) (common.Address, error) {
	addr, ok := c.Tokens[a]
	if !ok || addr == (common.Address{}) {
		return common.Address{}, fmt.Errorf("%w: token %s", calldata.ErrMissingAddress, a)
	}
	return addr, nil
}

func (c Contracts) ilk(e draft.Engine) ([32]byte, error) {
	id, ok := c.Ilks[e]
	if !ok || id == ([32]byte{}) {
		return id, fmt.Errorf("%w: ilk for %s", calldata.ErrMissingAddress, e)
	}
	if c.Vat == (common.Address{}) {
		return id, fmt.Errorf("%w: vat", calldata.ErrMissingAddress)
	}
	return id, nil
}

// Addresses is the subset the encoder needs.
func (c Contracts) Addresses() calldata.Addresses {
	return calldata.Addresses{Engines: c.Engines, Tokens: c.Tokens, Migrator: c.Migrator}
}

// IlkName packs a collateral type name into its bytes32 identifier.
func IlkName(name string) [32]byte {
	var out [32]byte
	copy(out[:], name)
	return out
}

func parseAddress(field, raw string) (common.Address, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return common.Address{}, nil
	}
	if !common.IsHexAddress(raw) {
		return common.Address{}, fmt.Errorf("chain.%s: invalid address %q", field, raw)
	}
	return common.HexToAddress(raw), nil
}

// ContractsFromConfig parses the configured addresses. Empty entries are left
// zero and fail at first use.
func ContractsFromConfig(cfg config.ChainConfig) (Contracts, error) {
	out := Contracts{
		Engines: map[draft.Engine]common.Address{},
		Tokens:  map[draft.Asset]common.Address{},
		Ilks:    map[draft.Engine][32]byte{},
	}
	var errs []error
	set := func(field, raw string, dst *common.Address) {
		addr, err := parseAddress(field, raw)
		if err != nil {
			errs = append(errs, err)
			return
		}
		*dst = addr
	}
	var stake, seal, sky, mkr, usds common.Address
	set("stake_engine", cfg.StakeEngine, &stake)
	set("seal_engine", cfg.SealEngine, &seal)
	set("sky_token", cfg.SkyToken, &sky)
	set("mkr_token", cfg.MkrToken, &mkr)
	set("usds_token", cfg.UsdsToken, &usds)
	set("vat", cfg.Vat, &out.Vat)
	set("migrator", cfg.Migrator, &out.Migrator)
	if err := errors.Join(errs...); err != nil {
		return Contracts{}, err
	}
	out.Engines[draft.EngineStake] = stake
	out.Engines[draft.EngineSeal] = seal
	out.Tokens[draft.AssetSKY] = sky
	out.Tokens[draft.AssetMKR] = mkr
	out.Tokens[draft.AssetUSDS] = usds
	if cfg.StakeIlk != "" {
		out.Ilks[draft.EngineStake] = IlkName(cfg.StakeIlk)
	}
	if cfg.SealIlk != "" {
		out.Ilks[draft.EngineSeal] = IlkName(cfg.SealIlk)
	}
	return out, nil
}

// Dial connects to the configured RPC endpoint. An empty URL returns nil so
// the process can run without chain access in dry-run setups.
func Dial(ctx context.Context, cfg config.ChainConfig) (*ethclient.Client, error) {
	if strings.TrimSpace(cfg.RPCURL) == "" {
		return nil, nil
	}
	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}
	client, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("dial rpc: %w", err)
	}
	if cfg.ChainID > 0 {
		id, err := client.ChainID(ctx)
		if err != nil {
			client.Close()
			return nil, fmt.Errorf("read chain id: %w", err)
		}
		if id.Int64() != cfg.ChainID {
			client.Close()
			return nil, fmt.Errorf("chain id mismatch: got %s want %d", id, cfg.ChainID)
		}
	}
	return client, nil
}
