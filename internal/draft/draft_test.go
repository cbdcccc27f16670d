package draft

import (
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

func TestStore_SettersAndVersion(t *testing.T) {
	s := NewStore()
	v0 := s.Version()
	if err := s.SetLock(CollateralSKY, decimal.NewFromInt(50)); err != nil {
		t.Fatalf("err=%v", err)
	}
	if err := s.SetBorrow(decimal.NewFromInt(10)); err != nil {
		t.Fatalf("err=%v", err)
	}
	if s.Version() != v0+2 {
		t.Fatalf("version=%d want=%d", s.Version(), v0+2)
	}
	d := s.Snapshot()
	if !d.LockOf(CollateralSKY).Equal(decimal.NewFromInt(50)) {
		t.Fatalf("lock=%s", d.LockOf(CollateralSKY))
	}
	if !d.HasAmounts() {
		t.Fatalf("expected amounts")
	}
}

func TestStore_RejectsNegativeAndUnknown(t *testing.T) {
	s := NewStore()
	if err := s.SetRepay(decimal.NewFromInt(-1)); !errors.Is(err, ErrNegativeAmount) {
		t.Fatalf("err=%v want ErrNegativeAmount", err)
	}
	if err := s.SetLock("DAI", decimal.NewFromInt(1)); !errors.Is(err, ErrBadCollateral) {
		t.Fatalf("err=%v want ErrBadCollateral", err)
	}
	bad := "0x123"
	if err := s.SetDelegate(&bad); !errors.Is(err, ErrBadAddress) {
		t.Fatalf("err=%v want ErrBadAddress", err)
	}
}

func TestStore_SnapshotIsolation(t *testing.T) {
	s := NewStore()
	_ = s.SetLock(CollateralSKY, decimal.NewFromInt(5))
	snap := s.Snapshot()
	snap.Lock[CollateralSKY] = decimal.NewFromInt(99)
	if got := s.Snapshot().LockOf(CollateralSKY); !got.Equal(decimal.NewFromInt(5)) {
		t.Fatalf("store mutated through snapshot: %s", got)
	}
}

func TestSelection(t *testing.T) {
	s := NewStore()
	if _, ok := s.Snapshot().RewardAddress(); ok {
		t.Fatalf("untouched selection should report ok=false")
	}
	none := ""
	_ = s.SetRewardStream(&none)
	addr, ok := s.Snapshot().RewardAddress()
	if !ok || addr != (common.Address{}) {
		t.Fatalf("empty selection should be the zero address, got %s ok=%v", addr.Hex(), ok)
	}
	farm := "0x0000000000000000000000000000000000000abc"
	_ = s.SetRewardStream(&farm)
	addr, ok = s.Snapshot().RewardAddress()
	if !ok || addr != common.HexToAddress(farm) {
		t.Fatalf("addr=%s", addr.Hex())
	}
}

func TestUnits(t *testing.T) {
	got := Units(EngineSeal, CollateralSKY, decimal.NewFromInt(48000))
	if !got.Equal(decimal.NewFromInt(2)) {
		t.Fatalf("units=%s want=2", got)
	}
	got = Units(EngineStake, CollateralSKY, decimal.NewFromInt(7))
	if !got.Equal(decimal.NewFromInt(7)) {
		t.Fatalf("units=%s want=7", got)
	}
}

func TestEngineAccepts(t *testing.T) {
	tests := []struct {
		e    Engine
		c    Collateral
		want bool
	}{
		{EngineStake, CollateralSKY, true},
		{EngineStake, CollateralMKR, false},
		{EngineSeal, CollateralSKY, true},
		{EngineSeal, CollateralMKR, true},
		{Engine("other"), CollateralSKY, false},
	}
	for _, tt := range tests {
		if got := tt.e.Accepts(tt.c); got != tt.want {
			t.Fatalf("%s accepts %s = %v want %v", tt.e, tt.c, got, tt.want)
		}
	}
}
