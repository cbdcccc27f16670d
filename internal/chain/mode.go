package chain

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/skybase-int/tarmac-sub003/internal/txdriver"
)

const (
	ModeDryRun = "dry-run"
	ModeWallet = "wallet"
)

// ModeSwitch routes each attempt to the submitter of the mode in force when
// the attempt starts. Mode is consulted per attempt so a runtime setting
// change applies to the next confirmation.
type ModeSwitch struct {
	Mode       func(ctx context.Context) string
	Submitters map[string]txdriver.Submitter
	Default    string
}

func (m *ModeSwitch) current(ctx context.Context) string {
	mode := ""
	if m.Mode != nil {
		mode = strings.ToLower(strings.TrimSpace(m.Mode(ctx)))
	}
	if mode == "" {
		mode = m.Default
	}
	return mode
}

func (m *ModeSwitch) Submit(ctx context.Context, a txdriver.Attempt, h txdriver.Hooks) error {
	if m == nil {
		return fmt.Errorf("submitter not configured")
	}
	mode := m.current(ctx)
	sub, ok := m.Submitters[mode]
	if !ok || sub == nil {
		return fmt.Errorf("no submitter for executor mode %q", mode)
	}
	return sub.Submit(ctx, a, h)
}

// Withdraw asks every submitter that parks attempts to drop id. The mode may
// have changed since the attempt started, so none is singled out.
func (m *ModeSwitch) Withdraw(id uuid.UUID) bool {
	if m == nil {
		return false
	}
	held := false
	for _, sub := range m.Submitters {
		if w, ok := sub.(txdriver.Withdrawer); ok && w.Withdraw(id) {
			held = true
		}
	}
	return held
}
