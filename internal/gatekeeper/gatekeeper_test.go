package gatekeeper

import (
	"errors"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/shopspring/decimal"

	"github.com/skybase-int/tarmac-sub003/internal/calldata"
	"github.com/skybase-int/tarmac-sub003/internal/draft"
	"github.com/skybase-int/tarmac-sub003/internal/snapshot"
)

func amt(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func TestNeedsAllowance_UnresolvedProperty(t *testing.T) {
	properties := gopter.NewProperties(nil)
	properties.Property("unresolved allowance always needs approval", prop.ForAll(
		func(required int64, status int) bool {
			cur := snapshot.Value[decimal.Decimal]{Val: amt(1 << 40), Status: snapshot.Status(status)}
			return NeedsAllowance(amt(required), cur)
		},
		gen.Int64Range(0, 1<<40), gen.OneConstOf(int(snapshot.StatusUnknown), int(snapshot.StatusLoading), int(snapshot.StatusFailed)),
	))
	properties.TestingRun(t)
}

func TestNeedsAllowance_Resolved(t *testing.T) {
	if !NeedsAllowance(amt(100), snapshot.Resolved(amt(0))) {
		t.Fatalf("0 < 100 should need allowance")
	}
	if NeedsAllowance(amt(100), snapshot.Resolved(amt(100))) {
		t.Fatalf("equal allowance should be enough")
	}
}

func TestNeedsAuthorization(t *testing.T) {
	if !NeedsAuthorization(snapshot.Loading[bool]()) {
		t.Fatalf("loading should need auth")
	}
	if !NeedsAuthorization(snapshot.Resolved(false)) {
		t.Fatalf("false should need auth")
	}
	if NeedsAuthorization(snapshot.Resolved(true)) {
		t.Fatalf("true should not need auth")
	}
}

func allowances(m map[draft.Asset]snapshot.Value[decimal.Decimal]) func(draft.Asset) snapshot.Value[decimal.Decimal] {
	return func(a draft.Asset) snapshot.Value[decimal.Decimal] { return m[a] }
}

func TestDecide_ApproveThenMulticall(t *testing.T) {
	d := draft.Empty()
	d.Lock[draft.CollateralSKY] = amt(100)
	in := Input{
		Draft:  d,
		Engine: draft.EngineStake,
		Allowance: allowances(map[draft.Asset]snapshot.Value[decimal.Decimal]{
			draft.AssetSKY: snapshot.Resolved(amt(0)),
		}),
	}
	dec := Decide(in)
	if !dec.NeedsApproval() || dec.Approve.Asset != draft.AssetSKY || !dec.Approve.Amount.Equal(amt(100)) {
		t.Fatalf("decision=%+v", dec)
	}

	in.Allowance = allowances(map[draft.Asset]snapshot.Value[decimal.Decimal]{
		draft.AssetSKY: snapshot.Resolved(amt(100)),
	})
	if dec := Decide(in); dec.NeedsApproval() || dec.Loading {
		t.Fatalf("decision=%+v want none", dec)
	}
}

func TestDecide_LoadingHolds(t *testing.T) {
	d := draft.Empty()
	d.Lock[draft.CollateralSKY] = amt(1)
	dec := Decide(Input{Draft: d, Allowance: allowances(nil)})
	if !dec.Loading || dec.NeedsApproval() {
		t.Fatalf("decision=%+v want loading", dec)
	}
}

func TestDecide_FailedReadRequiresApproval(t *testing.T) {
	d := draft.Empty()
	d.Repay = amt(5)
	failed := snapshot.Value[decimal.Decimal]{Status: snapshot.StatusFailed, Err: errors.New("rpc")}
	dec := Decide(Input{Draft: d, Allowance: allowances(map[draft.Asset]snapshot.Value[decimal.Decimal]{draft.AssetUSDS: failed})})
	if !dec.NeedsApproval() || dec.Approve.Asset != draft.AssetUSDS {
		t.Fatalf("decision=%+v", dec)
	}
}

func TestDecide_RepayAllBuffer(t *testing.T) {
	d := draft.Empty()
	d.RepayAll = true
	in := Input{
		Draft: d,
		Debt:  snapshot.Resolved(amt(100000)),
		Allowance: allowances(map[draft.Asset]snapshot.Value[decimal.Decimal]{
			draft.AssetUSDS: snapshot.Resolved(amt(100000)),
		}),
	}
	dec := Decide(in)
	if !dec.NeedsApproval() {
		t.Fatalf("exact debt allowance must not cover the buffer")
	}
	if want := decimal.RequireFromString("100005"); !dec.Approve.Amount.Equal(want) {
		t.Fatalf("amount=%s want=%s", dec.Approve.Amount, want)
	}

	in.Debt = snapshot.Loading[decimal.Decimal]()
	if dec := Decide(in); !dec.Loading {
		t.Fatalf("unknown debt must hold")
	}
}

func TestRequirements_Order(t *testing.T) {
	d := draft.Empty()
	d.Repay = amt(3)
	d.Lock[draft.CollateralMKR] = amt(2)
	d.Lock[draft.CollateralSKY] = amt(1)
	reqs := Requirements(d, decimal.Zero, RepayAllBuffer)
	if len(reqs) != 3 || reqs[0].Asset != draft.AssetSKY || reqs[1].Asset != draft.AssetMKR || reqs[2].Asset != draft.AssetUSDS {
		t.Fatalf("reqs=%+v", reqs)
	}
}

func TestDecideMigration_PriorityOrder(t *testing.T) {
	tests := []struct {
		name    string
		in      MigrationInput
		stage   calldata.MigrationStage
		loading bool
	}{
		{"destination unknown", MigrationInput{DestinationExists: snapshot.Loading[bool]()}, calldata.StageCreate, true},
		{"destination absent ignores source auth", MigrationInput{
			DestinationExists: snapshot.Resolved(false),
			SourceAuth:        snapshot.Resolved(false),
		}, calldata.StageCreate, false},
		{"destination unauthorized", MigrationInput{
			DestinationExists: snapshot.Resolved(true),
			DestinationAuth:   snapshot.Resolved(false),
		}, calldata.StageAuthorizeDestination, false},
		{"source auth loading", MigrationInput{
			DestinationExists: snapshot.Resolved(true),
			DestinationAuth:   snapshot.Resolved(true),
			SourceAuth:        snapshot.Loading[bool](),
		}, calldata.StageAuthorizeSource, true},
		{"ready", MigrationInput{
			DestinationExists: snapshot.Resolved(true),
			DestinationAuth:   snapshot.Resolved(true),
			SourceAuth:        snapshot.Resolved(true),
		}, calldata.StageMigrate, false},
	}
	for _, tt := range tests {
		got := DecideMigration(tt.in)
		if got.Stage != tt.stage || got.Loading != tt.loading {
			t.Fatalf("%s: got=%+v want stage=%s loading=%v", tt.name, got, tt.stage, tt.loading)
		}
	}
}
