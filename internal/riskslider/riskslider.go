// Package riskslider converts a risk slider position into a borrow or repay
// amount, interpolating from a risk anchor captured when the step opened.
package riskslider

import (
	"github.com/shopspring/decimal"
)

type Mode string

const (
	ModeBorrow Mode = "borrow"
	ModeRepay  Mode = "repay"
)

var hundred = decimal.NewFromInt(100)

// Anchor is the risk percentage the slider interpolates from. In borrow mode
// it is a floor, in repay mode a ceiling. Anchors are immutable; use
// WithMode to flip direction while keeping the same percentage.
type Anchor struct {
	percent decimal.Decimal
	mode    Mode
}

// Capture records r0 (clamped to [0,100]) for the given mode.
func Capture(mode Mode, r0 decimal.Decimal) Anchor {
	if mode != ModeRepay {
		mode = ModeBorrow
	}
	return Anchor{percent: clampPct(r0), mode: mode}
}

func (a Anchor) Percent() decimal.Decimal { return a.percent }
func (a Anchor) Mode() Mode               { return a.mode }

func (a Anchor) WithMode(mode Mode) Anchor {
	return Capture(mode, a.percent)
}

// Amount maps slider position p to an amount in [0, max].
//
// borrow: max * (p - r0) / (100 - r0) for p > r0, else 0
// repay:  max * (r0 - p) / r0         for p < r0, else 0
func (a Anchor) Amount(max, p decimal.Decimal) decimal.Decimal {
	if !max.IsPositive() {
		return decimal.Zero
	}
	p = clampPct(p)
	r0 := a.percent
	var out decimal.Decimal
	switch a.mode {
	case ModeRepay:
		if p.GreaterThanOrEqual(r0) || !r0.IsPositive() {
			return decimal.Zero
		}
		out = max.Mul(r0.Sub(p)).Div(r0)
	default:
		if p.LessThanOrEqual(r0) || r0.GreaterThanOrEqual(hundred) {
			return decimal.Zero
		}
		out = max.Mul(p.Sub(r0)).Div(hundred.Sub(r0))
	}
	return clamp(out, decimal.Zero, max)
}

func clampPct(v decimal.Decimal) decimal.Decimal {
	return clamp(v, decimal.Zero, hundred)
}

func clamp(v, lo, hi decimal.Decimal) decimal.Decimal {
	if v.LessThan(lo) {
		return lo
	}
	if v.GreaterThan(hi) {
		return hi
	}
	return v
}
