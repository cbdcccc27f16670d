package riskslider

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/shopspring/decimal"
)

func d(v string) decimal.Decimal { return decimal.RequireFromString(v) }

func TestAmount_Borrow(t *testing.T) {
	a := Capture(ModeBorrow, d("20"))
	tests := []struct {
		p    string
		want string
	}{
		{"0", "0"},
		{"20", "0"},
		{"60", "500"},
		{"100", "1000"},
		{"150", "1000"},
	}
	for _, tt := range tests {
		got := a.Amount(d("1000"), d(tt.p))
		if !got.Equal(d(tt.want)) {
			t.Fatalf("p=%s amount=%s want=%s", tt.p, got, tt.want)
		}
	}
}

func TestAmount_Repay(t *testing.T) {
	a := Capture(ModeRepay, d("40"))
	tests := []struct {
		p    string
		want string
	}{
		{"40", "0"},
		{"80", "0"},
		{"20", "50"},
		{"0", "100"},
	}
	for _, tt := range tests {
		got := a.Amount(d("100"), d(tt.p))
		if !got.Equal(d(tt.want)) {
			t.Fatalf("p=%s amount=%s want=%s", tt.p, got, tt.want)
		}
	}
}

func TestAmount_ZeroMaxIsNoop(t *testing.T) {
	a := Capture(ModeBorrow, d("10"))
	if got := a.Amount(decimal.Zero, d("90")); !got.IsZero() {
		t.Fatalf("amount=%s want 0", got)
	}
}

func TestAnchor_WithModeKeepsPercent(t *testing.T) {
	a := Capture(ModeBorrow, d("35"))
	b := a.WithMode(ModeRepay)
	if !b.Percent().Equal(a.Percent()) || b.Mode() != ModeRepay {
		t.Fatalf("anchor=%v/%s", b.Percent(), b.Mode())
	}
	if a.Mode() != ModeBorrow {
		t.Fatalf("original anchor mutated")
	}
}

func TestAmount_BorrowProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 300
	properties := gopter.NewProperties(parameters)

	properties.Property("p <= r0 borrows nothing", prop.ForAll(
		func(r0, p float64, max int64) bool {
			if p > r0 {
				p, r0 = r0, p
			}
			a := Capture(ModeBorrow, decimal.NewFromFloat(r0))
			return a.Amount(decimal.NewFromInt(max), decimal.NewFromFloat(p)).IsZero()
		},
		gen.Float64Range(0, 100), gen.Float64Range(0, 100), gen.Int64Range(0, 1000000),
	))

	properties.Property("amount is monotone above r0 and reaches max at 100", prop.ForAll(
		func(r0, p1, p2 float64, max int64) bool {
			if p1 > p2 {
				p1, p2 = p2, p1
			}
			a := Capture(ModeBorrow, decimal.NewFromFloat(r0))
			m := decimal.NewFromInt(max)
			lo := a.Amount(m, decimal.NewFromFloat(p1))
			hi := a.Amount(m, decimal.NewFromFloat(p2))
			if lo.GreaterThan(hi) {
				return false
			}
			if r0 >= 100 || !m.IsPositive() {
				return true
			}
			return a.Amount(m, decimal.NewFromInt(100)).Equal(m)
		},
		gen.Float64Range(0, 99), gen.Float64Range(0, 100), gen.Float64Range(0, 100), gen.Int64Range(0, 1000000),
	))

	properties.TestingRun(t)
}
