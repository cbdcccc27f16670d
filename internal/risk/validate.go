package risk

import (
	"github.com/shopspring/decimal"

	"github.com/skybase-int/tarmac-sub003/internal/draft"
	"github.com/skybase-int/tarmac-sub003/internal/snapshot"
)

// Issues are the local validation failures for a draft. Any of them, or a
// pending read, blocks completion of the entry step.
type Issues struct {
	InsufficientBalance   bool `json:"insufficient_balance"`
	ExceedsDebt           bool `json:"exceeds_debt"`
	MinDebtNotMet         bool `json:"min_debt_not_met"`
	RiskTooHigh           bool `json:"risk_too_high"`
	AboveDebtCeiling      bool `json:"above_debt_ceiling"`
	ExceedsCollateral     bool `json:"exceeds_collateral"`
	UnsupportedCollateral bool `json:"unsupported_collateral"`
	Pending               bool `json:"pending"`
}

func (i Issues) Blocking() bool {
	return i.Pending || len(i.List()) > 0
}

// List names the failed checks.
func (i Issues) List() []string {
	var out []string
	if i.InsufficientBalance {
		out = append(out, "insufficient_balance")
	}
	if i.ExceedsDebt {
		out = append(out, "exceeds_debt")
	}
	if i.MinDebtNotMet {
		out = append(out, "min_debt_not_met")
	}
	if i.RiskTooHigh {
		out = append(out, "risk_too_high")
	}
	if i.AboveDebtCeiling {
		out = append(out, "above_debt_ceiling")
	}
	if i.ExceedsCollateral {
		out = append(out, "exceeds_collateral")
	}
	if i.UnsupportedCollateral {
		out = append(out, "unsupported_collateral")
	}
	return out
}

type ValidationInput struct {
	Draft    draft.Draft
	Engine   draft.Engine
	Position snapshot.Value[Position]
	Balance  func(asset draft.Asset) snapshot.Value[decimal.Decimal]
}

// Validate checks the draft against the current position. The position read
// must be resolved; for a new position callers pass a resolved zero value.
func (s *Simulator) Validate(in ValidationInput) Issues {
	var out Issues
	if !in.Position.Resolved() {
		out.Pending = true
		return out
	}
	pos := in.Position.Val
	d := in.Draft

	balance := func(a draft.Asset, need decimal.Decimal) {
		if !need.IsPositive() {
			return
		}
		var v snapshot.Value[decimal.Decimal]
		if in.Balance != nil {
			v = in.Balance(a)
		}
		if !v.Resolved() {
			out.Pending = true
			return
		}
		if v.Val.LessThan(need) {
			out.InsufficientBalance = true
		}
	}
	for _, c := range draft.Collaterals {
		if !in.Engine.Accepts(c) && (d.LockOf(c).IsPositive() || d.FreeOf(c).IsPositive()) {
			out.UnsupportedCollateral = true
		}
		balance(c.Asset(), d.LockOf(c))
	}
	repay := d.Repay
	if d.RepayAll {
		repay = pos.Debt
	}
	balance(draft.AssetUSDS, repay)

	if !d.RepayAll && d.Repay.GreaterThan(pos.Debt) {
		out.ExceedsDebt = true
	}
	if d.FreeUnits(in.Engine).GreaterThan(pos.Collateral.Add(d.LockUnits(in.Engine))) {
		out.ExceedsCollateral = true
	}

	proj := s.Project(pos, d, in.Engine)
	if proj.Debt.IsPositive() && proj.Debt.LessThan(proj.MinDebt) {
		out.MinDebtNotMet = true
	}
	if s != nil && raisesRisk(d) && proj.Debt.IsPositive() {
		limit := s.Params.MaxRiskPct
		if !limit.IsPositive() {
			limit = hundred
		}
		if proj.RiskPct.GreaterThan(limit) {
			out.RiskTooHigh = true
		}
	}
	out.AboveDebtCeiling = proj.AboveCeiling
	return out
}

func raisesRisk(d draft.Draft) bool {
	if d.Borrow.IsPositive() {
		return true
	}
	for _, c := range draft.Collaterals {
		if d.FreeOf(c).IsPositive() {
			return true
		}
	}
	return false
}
