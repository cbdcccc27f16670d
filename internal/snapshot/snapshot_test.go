package snapshot

import (
	"errors"
	"testing"
)

func TestStore_OutOfOrderResolution(t *testing.T) {
	s := NewStore()
	first := s.Begin("allowance")
	second := s.Begin("allowance")

	if !s.Resolve("allowance", second, 100) {
		t.Fatalf("newest result should apply")
	}
	if s.Resolve("allowance", first, 5) {
		t.Fatalf("older result must not overwrite a newer one")
	}
	v := Get[int](s, "allowance")
	if !v.Resolved() || v.Val != 100 {
		t.Fatalf("value=%+v want resolved 100", v)
	}
}

func TestStore_SupersededIsLoading(t *testing.T) {
	s := NewStore()
	first := s.Begin("k")
	_ = s.Begin("k")
	s.Resolve("k", first, 1)
	v := Get[int](s, "k")
	if v.Resolved() || !v.Pending() {
		t.Fatalf("superseded value must stay pending, got %+v", v)
	}
}

func TestStore_UnknownAndFailed(t *testing.T) {
	s := NewStore()
	if v := Get[bool](s, "missing"); v.Resolved() || !v.Pending() {
		t.Fatalf("missing key should be unknown, got %+v", v)
	}
	tok := s.Begin("auth")
	s.Fail("auth", tok, errors.New("rpc down"))
	v := Get[bool](s, "auth")
	if v.Resolved() || v.Pending() || v.Err == nil {
		t.Fatalf("failed read should be neither resolved nor pending: %+v", v)
	}
}

func TestStore_WrongTypeIsFailed(t *testing.T) {
	s := NewStore()
	s.Set("k", "text")
	if v := Get[int](s, "k"); v.Status != StatusFailed {
		t.Fatalf("status=%s want failed", v.Status)
	}
}

func TestStore_Keys(t *testing.T) {
	s := NewStore()
	s.Set("allowance:stake:SKY", 1)
	s.Set("allowance:stake:USDS", 1)
	s.Set("balance:SKY", 1)
	keys := s.Keys("allowance:")
	if len(keys) != 2 || keys[0] != "allowance:stake:SKY" {
		t.Fatalf("keys=%v", keys)
	}
}
