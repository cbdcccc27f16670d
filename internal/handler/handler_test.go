package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/skybase-int/tarmac-sub003/internal/calldata"
	"github.com/skybase-int/tarmac-sub003/internal/chain"
	"github.com/skybase-int/tarmac-sub003/internal/draft"
	memrepository "github.com/skybase-int/tarmac-sub003/internal/repository/memory"
	"github.com/skybase-int/tarmac-sub003/internal/risk"
	"github.com/skybase-int/tarmac-sub003/internal/service"
	"github.com/skybase-int/tarmac-sub003/internal/txdriver"
)

const owner = "0x00000000000000000000000000000000000000b2"

type stubReader struct {
	mu       sync.Mutex
	count    uint64
	position risk.Position
}

func (r *stubReader) PositionCount(context.Context, draft.Engine, common.Address) (uint64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count, nil
}

func (r *stubReader) Position(_ context.Context, _ draft.Engine, _ common.Address, index uint64) (risk.Position, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p := r.position
	p.Index = index
	return p, nil
}

func (r *stubReader) Ilk(context.Context, draft.Engine) (chain.IlkInfo, error) {
	return chain.IlkInfo{Rate: decimal.NewFromInt(1)}, nil
}

func (r *stubReader) Allowance(context.Context, draft.Asset, common.Address, draft.Engine) (decimal.Decimal, error) {
	return decimal.NewFromInt(1_000_000), nil
}

func (r *stubReader) Balance(context.Context, draft.Asset, common.Address) (decimal.Decimal, error) {
	return decimal.NewFromInt(1_000_000), nil
}

func (r *stubReader) MigratorAuthorized(context.Context, draft.Engine, common.Address, uint64) (bool, error) {
	return false, nil
}

type testServer struct {
	engine   *gin.Engine
	repo     *memrepository.Store
	reader   *stubReader
	registry *service.Registry
	wallet   *chain.WalletBridge
	settings *service.SystemSettingsService
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	repo := memrepository.New()
	reader := &stubReader{}
	settings := &service.SystemSettingsService{Repo: repo, DefaultMode: chain.ModeDryRun}
	require.NoError(t, settings.EnsureDefaultSwitches(context.Background()))
	wallet := &chain.WalletBridge{Logger: zap.NewNop(), BaseCtx: context.Background()}
	submitter := &chain.ModeSwitch{
		Mode:    settings.Mode,
		Default: chain.ModeDryRun,
		Submitters: map[string]txdriver.Submitter{
			chain.ModeDryRun: &chain.DryRun{Logger: zap.NewNop()},
			chain.ModeWallet: wallet,
		},
	}
	registry := service.NewRegistry(service.Deps{
		Reader:    reader,
		Submitter: submitter,
		Discarder: wallet,
		Addresses: calldata.Addresses{
			Engines: map[draft.Engine]common.Address{
				draft.EngineStake: common.HexToAddress("0x0000000000000000000000000000000000000e01"),
				draft.EngineSeal:  common.HexToAddress("0x0000000000000000000000000000000000000e02"),
			},
			Tokens: map[draft.Asset]common.Address{
				draft.AssetSKY:  common.HexToAddress("0x0000000000000000000000000000000000000c01"),
				draft.AssetMKR:  common.HexToAddress("0x0000000000000000000000000000000000000c02"),
				draft.AssetUSDS: common.HexToAddress("0x0000000000000000000000000000000000000c03"),
			},
		},
		Repo:     repo,
		Settings: settings,
		Risk: risk.Params{
			CollateralPrice:  decimal.NewFromInt(1),
			LiquidationRatio: decimal.RequireFromString("1.5"),
			MaxRiskPct:       decimal.NewFromInt(100),
		},
		Logger: zap.NewNop(),
	}, time.Hour)
	t.Cleanup(registry.Close)

	r := gin.New()
	(&HealthHandler{Registry: registry}).Register(r)
	(&SessionHandler{Registry: registry, Wallet: wallet, Logger: zap.NewNop()}).Register(r)
	(&AttemptHandler{Repo: repo}).Register(r)
	(&SettingsHandler{Repo: repo, Settings: settings}).Register(r)

	return &testServer{engine: r, repo: repo, reader: reader, registry: registry, wallet: wallet, settings: settings}
}

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Meta    map[string]any  `json:"meta"`
}

func (s *testServer) do(t *testing.T, method, path string, body any) (int, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)

	var env envelope
	if strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	}
	return w.Code, env
}

type viewJSON struct {
	Owner  string `json:"owner"`
	Wizard struct {
		State struct {
			Flow   string `json:"flow"`
			Step   string `json:"step"`
			Action string `json:"action"`
			Screen string `json:"screen"`
		} `json:"state"`
		Button struct {
			Label   string `json:"label"`
			Enabled bool   `json:"enabled"`
		} `json:"button"`
	} `json:"wizard"`
	Draft struct {
		Borrow string `json:"borrow"`
	} `json:"draft"`
	Settling bool `json:"settling"`
}

func decodeView(t *testing.T, raw json.RawMessage) viewJSON {
	t.Helper()
	var v viewJSON
	require.NoError(t, json.Unmarshal(raw, &v))
	return v
}

func sessionPath(suffix string) string {
	return "/api/v1/sessions/" + owner + suffix
}

func TestSessions_BadOwner(t *testing.T) {
	s := newTestServer(t)
	code, env := s.do(t, http.MethodGet, "/api/v1/sessions/not-an-address", nil)
	require.Equal(t, http.StatusBadRequest, code)
	require.Equal(t, http.StatusBadRequest, env.Code)
	require.Contains(t, env.Message, "hex address")
}

func TestSessions_SettledView(t *testing.T) {
	s := newTestServer(t)
	code, env := s.do(t, http.MethodGet, sessionPath("?settle=true"), nil)
	require.Equal(t, http.StatusOK, code)
	v := decodeView(t, env.Data)
	require.False(t, v.Settling)
	require.Equal(t, "open", v.Wizard.State.Flow)
	require.True(t, strings.EqualFold(owner, v.Owner))
}

func TestSessions_DraftEdits(t *testing.T) {
	s := newTestServer(t)

	code, env := s.do(t, http.MethodPatch, sessionPath("/draft?settle=true"), map[string]any{"borrow": "25"})
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, "25", decodeView(t, env.Data).Draft.Borrow)

	code, env = s.do(t, http.MethodPatch, sessionPath("/draft"), map[string]any{"borrow": "-1"})
	require.Equal(t, http.StatusBadRequest, code)
	require.NotEmpty(t, env.Message)

	code, _ = s.do(t, http.MethodPatch, sessionPath("/draft"), map[string]any{"delegate": "nope"})
	require.Equal(t, http.StatusBadRequest, code)

	code, _ = s.do(t, http.MethodPatch, sessionPath("/draft"), "not an object")
	require.Equal(t, http.StatusBadRequest, code)
}

func TestSessions_UnknownCommand(t *testing.T) {
	s := newTestServer(t)
	code, _ := s.do(t, http.MethodPost, sessionPath("/commands/fly"), nil)
	require.Equal(t, http.StatusBadRequest, code)

	code, env := s.do(t, http.MethodGet, "/api/v1/commands", nil)
	require.Equal(t, http.StatusOK, code)
	require.Contains(t, string(env.Data), "claim")
}

func TestSessions_ClaimIsAudited(t *testing.T) {
	s := newTestServer(t)
	s.reader.count = 1
	s.reader.position = risk.Position{
		Collateral:   decimal.NewFromInt(100),
		Debt:         decimal.Zero,
		RewardStream: common.HexToAddress("0x00000000000000000000000000000000000000f1"),
	}

	code, _ := s.do(t, http.MethodGet, sessionPath("?settle=true"), nil)
	require.Equal(t, http.StatusOK, code)

	code, env := s.do(t, http.MethodPost, sessionPath("/commands/claim?settle=true"), nil)
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, "overview", decodeView(t, env.Data).Wizard.State.Action)

	code, env = s.do(t, http.MethodGet, "/api/v1/attempts?owner="+owner, nil)
	require.Equal(t, http.StatusOK, code)
	var items []struct {
		ID     string
		Group  string
		Status string
	}
	require.NoError(t, json.Unmarshal(env.Data, &items))
	require.Len(t, items, 1)
	require.Equal(t, "claim", items[0].Group)
	require.Equal(t, "success", items[0].Status)
	require.EqualValues(t, 1, env.Meta["total"])

	code, _ = s.do(t, http.MethodGet, "/api/v1/attempts/"+items[0].ID, nil)
	require.Equal(t, http.StatusOK, code)
	code, _ = s.do(t, http.MethodGet, "/api/v1/attempts/missing", nil)
	require.Equal(t, http.StatusNotFound, code)
}

func TestSessions_RiskNeedsEntryStep(t *testing.T) {
	s := newTestServer(t)
	s.reader.count = 1
	s.reader.position = risk.Position{Collateral: decimal.NewFromInt(100), Debt: decimal.NewFromInt(10)}

	code, env := s.do(t, http.MethodGet, sessionPath("?settle=true"), nil)
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, "overview", decodeView(t, env.Data).Wizard.State.Action)

	code, env = s.do(t, http.MethodPost, sessionPath("/risk"), map[string]any{"percent": "40"})
	require.Equal(t, http.StatusConflict, code)
	require.Contains(t, env.Message, "risk slider")
}

func TestSessions_PendingUnknownAttempt(t *testing.T) {
	s := newTestServer(t)

	code, env := s.do(t, http.MethodGet, sessionPath("/pending"), nil)
	require.Equal(t, http.StatusOK, code)
	require.JSONEq(t, "[]", string(env.Data))

	code, _ = s.do(t, http.MethodPost, sessionPath("/pending/not-a-uuid"), map[string]any{"rejected": true})
	require.Equal(t, http.StatusBadRequest, code)

	code, _ = s.do(t, http.MethodPost, sessionPath("/pending/6f1c1d4e-7f7a-4a43-9d0b-9c8f7b7f2a11"), map[string]any{"rejected": true})
	require.Equal(t, http.StatusNotFound, code)
}

func TestSettings_SwitchesAndMode(t *testing.T) {
	s := newTestServer(t)

	code, env := s.do(t, http.MethodGet, "/api/v1/settings/switches", nil)
	require.Equal(t, http.StatusOK, code)
	require.Contains(t, string(env.Data), "session_checkpoint")

	code, _ = s.do(t, http.MethodPut, "/api/v1/settings/switches/claim", map[string]any{"enabled": false})
	require.Equal(t, http.StatusOK, code)
	require.False(t, s.settings.IsEnabled(context.Background(), service.FeatureClaim, true))

	code, env = s.do(t, http.MethodGet, "/api/v1/settings/switches/claim", nil)
	require.Equal(t, http.StatusOK, code)
	require.JSONEq(t, `{"name":"claim","key":"feature.claim","enabled":false}`, string(env.Data))

	code, _ = s.do(t, http.MethodPut, "/api/v1/settings/mode", map[string]any{"mode": "mainnet"})
	require.Equal(t, http.StatusBadRequest, code)

	code, _ = s.do(t, http.MethodPut, "/api/v1/settings/mode", map[string]any{"mode": "Wallet"})
	require.Equal(t, http.StatusOK, code)
	code, env = s.do(t, http.MethodGet, "/api/v1/settings/mode", nil)
	require.Equal(t, http.StatusOK, code)
	require.JSONEq(t, `{"mode":"wallet"}`, string(env.Data))

	code, _ = s.do(t, http.MethodGet, "/api/v1/settings/executor.mode", nil)
	require.Equal(t, http.StatusOK, code)
	code, _ = s.do(t, http.MethodGet, "/api/v1/settings/nothing.here", nil)
	require.Equal(t, http.StatusNotFound, code)
}

func TestSessions_WalletRoundTrip(t *testing.T) {
	s := newTestServer(t)
	s.reader.count = 1
	s.reader.position = risk.Position{
		Collateral:   decimal.NewFromInt(100),
		RewardStream: common.HexToAddress("0x00000000000000000000000000000000000000f1"),
	}
	require.NoError(t, s.settings.SetMode(context.Background(), chain.ModeWallet))

	code, _ := s.do(t, http.MethodPost, sessionPath("/commands/claim?settle=true"), nil)
	require.Equal(t, http.StatusOK, code)

	code, env := s.do(t, http.MethodGet, sessionPath("/pending"), nil)
	require.Equal(t, http.StatusOK, code)
	var pending []struct {
		ID    string `json:"id"`
		Group string `json:"group"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &pending))
	require.Len(t, pending, 1)
	require.Equal(t, "claim", pending[0].Group)

	code, env = s.do(t, http.MethodPost, sessionPath("/pending/"+pending[0].ID+"?settle=true"), map[string]any{"rejected": true})
	require.Equal(t, http.StatusOK, code)
	v := decodeView(t, env.Data)
	require.Equal(t, "claim", v.Wizard.State.Flow)
	require.Equal(t, "retry", v.Wizard.Button.Label)

	code, env = s.do(t, http.MethodGet, sessionPath("/pending"), nil)
	require.Equal(t, http.StatusOK, code)
	require.JSONEq(t, "[]", string(env.Data))
}

func TestHealth_Ready(t *testing.T) {
	s := newTestServer(t)
	code, _ := s.do(t, http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, code)

	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `"store":"memory"`)
}
