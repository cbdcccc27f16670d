package cronrunner

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestRunner_GateSkipsRun(t *testing.T) {
	r := New(zap.NewNop(), context.Background())
	var runs atomic.Int32
	var open atomic.Bool

	job := Job{
		Name: "checkpoint",
		Gate: func(context.Context) bool { return open.Load() },
		Run: func(context.Context) error {
			runs.Add(1)
			return nil
		},
	}
	r.run(job)
	if got := runs.Load(); got != 0 {
		t.Fatalf("runs=%d want=0 while gated", got)
	}
	open.Store(true)
	r.run(job)
	if got := runs.Load(); got != 1 {
		t.Fatalf("runs=%d want=1", got)
	}
}

func TestRunner_TimeoutReachesJob(t *testing.T) {
	r := New(nil, context.Background())
	var deadline bool
	r.run(Job{
		Name:    "prune",
		Timeout: time.Minute,
		Run: func(ctx context.Context) error {
			_, deadline = ctx.Deadline()
			return errors.New("db down")
		},
	})
	if !deadline {
		t.Fatalf("job ctx has no deadline")
	}
}

func TestRunner_CancelledBaseSkips(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r := New(zap.NewNop(), ctx)
	called := false
	r.run(Job{Name: "prune", Run: func(context.Context) error { called = true; return nil }})
	if called {
		t.Fatalf("job ran after shutdown")
	}
}

func TestRunner_Add(t *testing.T) {
	r := New(zap.NewNop(), context.Background())
	if id, err := r.Add(Job{Name: "off"}); err != nil || id != 0 {
		t.Fatalf("id=%v err=%v want disabled", id, err)
	}
	if _, err := r.Add(Job{Name: "bad", Spec: "not a spec", Run: func(context.Context) error { return nil }}); err == nil {
		t.Fatalf("bad spec accepted")
	}
	if _, err := r.Add(Job{Name: "norun", Spec: "@every 1m"}); err == nil {
		t.Fatalf("job without run func accepted")
	}
	id, err := r.Add(Job{Name: "checkpoint", Spec: "@every 1m", Run: func(context.Context) error { return nil }})
	if err != nil || id == 0 {
		t.Fatalf("id=%v err=%v", id, err)
	}
	r.Start()
	r.Stop()
}
