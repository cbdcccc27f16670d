package chain

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/skybase-int/tarmac-sub003/internal/calldata"
	"github.com/skybase-int/tarmac-sub003/internal/draft"
	"github.com/skybase-int/tarmac-sub003/internal/txdriver"
)

func approveBatch() calldata.Batch {
	return calldata.Batch{calldata.Approve{Asset: draft.AssetSKY, Engine: draft.EngineStake, Amount: decimal.NewFromInt(5)}}
}

func TestDryRun_InlineSuccess(t *testing.T) {
	d := &txdriver.Driver{Owner: "0xabc", Submitter: &DryRun{}}
	d.Encoder.Addresses = testContracts().Addresses()
	if err := d.Prepare(txdriver.GroupApprove, approveBatch()); err != nil {
		t.Fatalf("prepare: %v", err)
	}
	a, err := d.Start(context.Background(), txdriver.GroupApprove)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if a.Status != txdriver.StatusSuccess {
		t.Fatalf("status=%s want success", a.Status)
	}
	if a.Hash != SyntheticHash(a) {
		t.Fatalf("hash=%s want %s", a.Hash, SyntheticHash(a))
	}
}

func TestDryRun_DelayedSuccess(t *testing.T) {
	rec := &recorder{}
	done := make(chan struct{})
	h := rec.hooks()
	success := h.OnSuccess
	h.OnSuccess = func(hash string) { success(hash); close(done) }
	if err := (&DryRun{Delay: 5 * time.Millisecond}).Submit(context.Background(), parkedAttempt("0xabc"), h); err != nil {
		t.Fatalf("submit: %v", err)
	}
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("no success reported")
	}
	if rec.started == "" || rec.started != rec.done {
		t.Fatalf("started=%s done=%s", rec.started, rec.done)
	}
}

type countingSubmitter struct{ n int }

func (c *countingSubmitter) Submit(context.Context, txdriver.Attempt, txdriver.Hooks) error {
	c.n++
	return nil
}

func TestModeSwitch_RoutesPerAttempt(t *testing.T) {
	dry, wallet := &countingSubmitter{}, &countingSubmitter{}
	mode := ModeDryRun
	m := &ModeSwitch{
		Mode:       func(context.Context) string { return mode },
		Submitters: map[string]txdriver.Submitter{ModeDryRun: dry, ModeWallet: wallet},
		Default:    ModeDryRun,
	}
	_ = m.Submit(context.Background(), txdriver.Attempt{}, txdriver.Hooks{})
	mode = " Wallet "
	_ = m.Submit(context.Background(), txdriver.Attempt{}, txdriver.Hooks{})
	mode = ""
	_ = m.Submit(context.Background(), txdriver.Attempt{}, txdriver.Hooks{})
	if dry.n != 2 || wallet.n != 1 {
		t.Fatalf("dry=%d wallet=%d want 2/1", dry.n, wallet.n)
	}

	mode = "live"
	if err := m.Submit(context.Background(), txdriver.Attempt{}, txdriver.Hooks{}); err == nil {
		t.Fatalf("unknown mode must fail")
	}
}
