package risk

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/skybase-int/tarmac-sub003/internal/draft"
	"github.com/skybase-int/tarmac-sub003/internal/snapshot"
)

func dec(v string) decimal.Decimal { return decimal.RequireFromString(v) }

func testSimulator() *Simulator {
	return &Simulator{Params: Params{
		CollateralPrice:  dec("1"),
		LiquidationRatio: dec("1.25"),
		Dust:             dec("10"),
		MaxRiskPct:       dec("80"),
	}}
}

func TestSimulate_Basics(t *testing.T) {
	s := testSimulator()
	p := s.Simulate(dec("1000"), dec("400"), dec("400"))
	if !p.RiskPct.Equal(dec("50")) {
		t.Fatalf("risk=%s want=50", p.RiskPct)
	}
	if p.Level != LevelMedium {
		t.Fatalf("level=%s want=medium", p.Level)
	}
	if !p.LiquidationPrice.Equal(dec("0.5")) {
		t.Fatalf("liquidation price=%s want=0.5", p.LiquidationPrice)
	}
	// 1000 * 0.8 / 1.25 = 640 max debt.
	if !p.MaxBorrowable.Equal(dec("240")) {
		t.Fatalf("max borrowable=%s want=240", p.MaxBorrowable)
	}
}

func TestSimulate_NoDebt(t *testing.T) {
	p := testSimulator().Simulate(dec("100"), decimal.Zero, decimal.Zero)
	if !p.RiskPct.IsZero() || p.Level != LevelNone || !p.Ratio.IsZero() {
		t.Fatalf("projection=%+v", p)
	}
}

func TestSimulate_CeilingCapsBorrowable(t *testing.T) {
	s := testSimulator()
	s.Params.DebtCeiling = dec("1000")
	s.Params.DebtUtilized = dec("950")
	p := s.Simulate(dec("1000"), dec("0"), dec("0"))
	if !p.MaxBorrowable.Equal(dec("50")) {
		t.Fatalf("max borrowable=%s want=50", p.MaxBorrowable)
	}
	p = s.Simulate(dec("1000"), dec("60"), dec("0"))
	if !p.AboveCeiling {
		t.Fatalf("borrowing past headroom should flag ceiling")
	}
}

func TestSimulate_NilSimulator(t *testing.T) {
	var s *Simulator
	if p := s.Simulate(dec("1"), dec("1"), dec("0")); p.Level != LevelNone {
		t.Fatalf("level=%s", p.Level)
	}
}

func TestProject_SealEngineConvertsSky(t *testing.T) {
	d := draft.Empty()
	d.Lock[draft.CollateralSKY] = dec("48000")
	p := testSimulator().Project(Position{}, d, draft.EngineSeal)
	if !p.Collateral.Equal(dec("2")) {
		t.Fatalf("collateral=%s want=2", p.Collateral)
	}
}

func resolvedBalances(v string) func(draft.Asset) snapshot.Value[decimal.Decimal] {
	return func(draft.Asset) snapshot.Value[decimal.Decimal] { return snapshot.Resolved(dec(v)) }
}

func TestValidate_MinDebtNotMet(t *testing.T) {
	d := draft.Empty()
	d.Repay = dec("95")
	issues := testSimulator().Validate(ValidationInput{
		Draft:    d,
		Engine:   draft.EngineStake,
		Position: snapshot.Resolved(Position{Collateral: dec("1000"), Debt: dec("100")}),
		Balance:  resolvedBalances("1000"),
	})
	if !issues.MinDebtNotMet {
		t.Fatalf("resulting debt 5 is below dust 10: %+v", issues)
	}
	if !issues.Blocking() {
		t.Fatalf("min debt must block")
	}
}

func TestValidate_RepayAllClearsDust(t *testing.T) {
	d := draft.Empty()
	d.RepayAll = true
	issues := testSimulator().Validate(ValidationInput{
		Draft:    d,
		Engine:   draft.EngineStake,
		Position: snapshot.Resolved(Position{Collateral: dec("1000"), Debt: dec("100")}),
		Balance:  resolvedBalances("1000"),
	})
	if issues.Blocking() {
		t.Fatalf("issues=%v", issues.List())
	}
}

func TestValidate_Flags(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*draft.Draft)
		balance string
		want    string
	}{
		{"insufficient balance", func(d *draft.Draft) { d.Lock[draft.CollateralSKY] = dec("500") }, "100", "insufficient_balance"},
		{"exceeds debt", func(d *draft.Draft) { d.Repay = dec("150") }, "1000", "exceeds_debt"},
		{"exceeds collateral", func(d *draft.Draft) { d.Free[draft.CollateralSKY] = dec("2000") }, "1000", "exceeds_collateral"},
		{"risk too high", func(d *draft.Draft) { d.Borrow = dec("600") }, "1000", "risk_too_high"},
		{"mkr on stake", func(d *draft.Draft) { d.Lock[draft.CollateralMKR] = dec("1") }, "1000", "unsupported_collateral"},
		{"free mkr on stake", func(d *draft.Draft) { d.Free[draft.CollateralMKR] = dec("1") }, "1000", "unsupported_collateral"},
	}
	for _, tt := range tests {
		d := draft.Empty()
		tt.mutate(&d)
		issues := testSimulator().Validate(ValidationInput{
			Draft:    d,
			Engine:   draft.EngineStake,
			Position: snapshot.Resolved(Position{Collateral: dec("1000"), Debt: dec("100")}),
			Balance:  resolvedBalances(tt.balance),
		})
		found := false
		for _, name := range issues.List() {
			if name == tt.want {
				found = true
			}
		}
		if !found {
			t.Fatalf("%s: issues=%v want contains %s", tt.name, issues.List(), tt.want)
		}
	}
}

func TestValidate_PendingReads(t *testing.T) {
	d := draft.Empty()
	d.Lock[draft.CollateralSKY] = dec("1")
	issues := testSimulator().Validate(ValidationInput{
		Draft:    d,
		Position: snapshot.Loading[Position](),
	})
	if !issues.Pending || !issues.Blocking() {
		t.Fatalf("unresolved position must block: %+v", issues)
	}

	issues = testSimulator().Validate(ValidationInput{
		Draft:    d,
		Engine:   draft.EngineStake,
		Position: snapshot.Resolved(Position{}),
		Balance:  func(draft.Asset) snapshot.Value[decimal.Decimal] { return snapshot.Loading[decimal.Decimal]() },
	})
	if !issues.Pending || issues.InsufficientBalance {
		t.Fatalf("unresolved balance must be pending, not insufficient: %+v", issues)
	}
}
