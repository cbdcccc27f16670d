// Package risk projects a position after a pending edit and checks the edit
// against local protocol limits before anything is submitted.
package risk

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/skybase-int/tarmac-sub003/internal/draft"
)

var hundred = decimal.NewFromInt(100)

type Params struct {
	// CollateralPrice is the USDS value of one engine collateral unit.
	CollateralPrice  decimal.Decimal
	LiquidationRatio decimal.Decimal
	Dust             decimal.Decimal
	// DebtCeiling of zero means no ceiling.
	DebtCeiling  decimal.Decimal
	DebtUtilized decimal.Decimal
	// MaxRiskPct bounds the max safe borrowable amount and the risk check.
	MaxRiskPct decimal.Decimal
}

// Position is the on-chain state of one vault.
type Position struct {
	Index        uint64          `json:"index"`
	Urn          common.Address  `json:"urn"`
	Collateral   decimal.Decimal `json:"collateral"`
	Debt         decimal.Decimal `json:"debt"`
	RewardStream common.Address  `json:"reward_stream"`
	Delegate     common.Address  `json:"delegate"`
}

type Level string

const (
	LevelNone        Level = "none"
	LevelLow         Level = "low"
	LevelMedium      Level = "medium"
	LevelHigh        Level = "high"
	LevelLiquidation Level = "liquidation"
)

// LevelFor buckets a risk percentage.
func LevelFor(pct decimal.Decimal) Level {
	switch {
	case !pct.IsPositive():
		return LevelNone
	case pct.LessThan(decimal.NewFromInt(50)):
		return LevelLow
	case pct.LessThan(decimal.NewFromInt(75)):
		return LevelMedium
	case pct.LessThan(hundred):
		return LevelHigh
	default:
		return LevelLiquidation
	}
}

type Projection struct {
	Collateral       decimal.Decimal `json:"collateral"`
	Debt             decimal.Decimal `json:"debt"`
	CollateralValue  decimal.Decimal `json:"collateral_value"`
	Ratio            decimal.Decimal `json:"ratio"`
	LiquidationPrice decimal.Decimal `json:"liquidation_price"`
	// RiskPct is 100 at the liquidation threshold.
	RiskPct       decimal.Decimal `json:"risk_pct"`
	Level         Level           `json:"level"`
	MinDebt       decimal.Decimal `json:"min_debt"`
	MaxBorrowable decimal.Decimal `json:"max_borrowable"`
	MaxRepayable  decimal.Decimal `json:"max_repayable"`
	Headroom      decimal.Decimal `json:"headroom"`
	AboveCeiling  bool            `json:"above_ceiling"`
}

type Simulator struct {
	Params Params
}

// Simulate projects a position holding collateral units and debt. currentDebt
// is the debt before the edit; only the added part counts against the ceiling.
func (s *Simulator) Simulate(collateral, debt, currentDebt decimal.Decimal) Projection {
	out := Projection{
		Collateral: collateral,
		Debt:       debt,
		Level:      LevelNone,
	}
	if s == nil {
		return out
	}
	p := s.Params
	out.MinDebt = p.Dust
	out.CollateralValue = collateral.Mul(p.CollateralPrice)
	out.Headroom = headroom(p)

	if debt.IsPositive() {
		if out.CollateralValue.IsPositive() {
			out.Ratio = out.CollateralValue.Div(debt)
		}
		if collateral.IsPositive() {
			out.LiquidationPrice = debt.Mul(p.LiquidationRatio).Div(collateral)
		}
		out.RiskPct = riskPct(out.CollateralValue, debt, p.LiquidationRatio)
	}
	out.Level = LevelFor(out.RiskPct)

	if p.LiquidationRatio.IsPositive() && p.MaxRiskPct.IsPositive() {
		maxDebt := out.CollateralValue.Mul(p.MaxRiskPct).Div(hundred).Div(p.LiquidationRatio)
		room := maxDebt.Sub(debt)
		if room.IsNegative() {
			room = decimal.Zero
		}
		if p.DebtCeiling.IsPositive() && room.GreaterThan(out.Headroom) {
			room = out.Headroom
		}
		out.MaxBorrowable = room
	}
	out.MaxRepayable = debt

	if p.DebtCeiling.IsPositive() {
		added := debt.Sub(currentDebt)
		out.AboveCeiling = added.IsPositive() && added.GreaterThan(out.Headroom)
	}
	return out
}

// Project applies a draft to pos and simulates the result.
func (s *Simulator) Project(pos Position, d draft.Draft, e draft.Engine) Projection {
	collateral := pos.Collateral.Add(d.LockUnits(e)).Sub(d.FreeUnits(e))
	if collateral.IsNegative() {
		collateral = decimal.Zero
	}
	debt := pos.Debt.Add(d.Borrow)
	if d.RepayAll {
		debt = d.Borrow
	} else {
		debt = debt.Sub(d.Repay)
	}
	if debt.IsNegative() {
		debt = decimal.Zero
	}
	return s.Simulate(collateral, debt, pos.Debt)
}

func riskPct(value, debt, lr decimal.Decimal) decimal.Decimal {
	if !debt.IsPositive() {
		return decimal.Zero
	}
	if !value.IsPositive() {
		return hundred
	}
	pct := debt.Mul(lr).Mul(hundred).Div(value)
	if pct.GreaterThan(hundred) {
		return hundred
	}
	return pct
}

func headroom(p Params) decimal.Decimal {
	if !p.DebtCeiling.IsPositive() {
		return decimal.Zero
	}
	room := p.DebtCeiling.Sub(p.DebtUtilized)
	if room.IsNegative() {
		return decimal.Zero
	}
	return room
}
