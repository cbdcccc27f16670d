package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_EnvOnlyDefaults(t *testing.T) {
	t.Setenv("SF_WIZARD_DEBOUNCE", "250ms")
	t.Setenv("SF_CHAIN_REFERRAL_CODE", "42")
	cfg, err := Load("", true)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Wizard.Debounce != 250*time.Millisecond {
		t.Fatalf("debounce=%s want=250ms", cfg.Wizard.Debounce)
	}
	if cfg.Chain.ReferralCode != 42 {
		t.Fatalf("referral=%d want=42", cfg.Chain.ReferralCode)
	}
	if cfg.Executor.Mode != "dry-run" {
		t.Fatalf("mode=%s want=dry-run", cfg.Executor.Mode)
	}
	if cfg.Risk.MaxRiskPct != 80 || cfg.Risk.LiquidationRatio != 1.25 {
		t.Fatalf("risk=%+v", cfg.Risk)
	}
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	raw := []byte("server:\n  http_addr: \":9090\"\nchain:\n  stake_engine: \"0x0000000000000000000000000000000000000e01\"\nexecutor:\n  mode: wallet\n")
	if err := os.WriteFile(path, raw, 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := Load(path, false)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.HTTPAddr != ":9090" || cfg.Executor.Mode != "wallet" {
		t.Fatalf("server=%+v executor=%+v", cfg.Server, cfg.Executor)
	}
	if cfg.Chain.StakeEngine == "" || cfg.Chain.StakeIlk != "LSEV2-SKY-A" {
		t.Fatalf("chain=%+v", cfg.Chain)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml"), false); err == nil {
		t.Fatalf("expected error for a missing config file")
	}
}
