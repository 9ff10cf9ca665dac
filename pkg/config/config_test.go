package config

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/xplshn/zabi/pkg/abi"
	"github.com/xplshn/zabi/pkg/cli"
)

func TestApplyPreset(t *testing.T) {
	cfg := NewConfig()
	if err := cfg.ApplyPreset("hardened"); err != nil {
		t.Fatalf("ApplyPreset: %v", err)
	}
	want := abi.Flags{
		UnwindInfo:            true,
		PreserveFramePointers: true,
		EnableProbestack:      true,
		ProbestackGuardSize:   abi.DefaultProbestackGuardSize,
	}
	if diff := cmp.Diff(want, cfg.ABIFlags()); diff != "" {
		t.Errorf("ABIFlags (-want +got):\n%s", diff)
	}

	err := cfg.ApplyPreset("turbo")
	if err == nil || !strings.Contains(err.Error(), "debug, default, hardened, minimal, wasm") {
		t.Errorf("unknown preset error = %v", err)
	}
}

func TestSetTarget(t *testing.T) {
	cfg := NewConfig()
	for _, target := range []string{"s390x", "zarch", "s390x-linux"} {
		if err := cfg.SetTarget("linux", "amd64", target); err != nil || cfg.Target != "s390x" {
			t.Errorf("SetTarget(%q) = %v, target %q", target, err, cfg.Target)
		}
	}
	if err := cfg.SetTarget("linux", "amd64", "riscv64"); err == nil {
		t.Error("SetTarget accepted riscv64")
	}
}

func TestDirectiveFlags(t *testing.T) {
	cfg := NewConfig()
	cfg.ProcessDirectiveFlags("-Fno-unwind-info -Fmulti-ret-implicit-sret -Wstack-args -Wno-implicit-ref -Fbogus")

	if cfg.IsFeatureEnabled(FeatUnwindInfo) || !cfg.IsFeatureEnabled(FeatMultiRetImplicitSret) {
		t.Error("feature flags not applied")
	}
	if !cfg.IsWarningEnabled(WarnStackArgs) || cfg.IsWarningEnabled(WarnImplicitRef) {
		t.Error("warning flags not applied")
	}
}

func TestPedanticEnablesEverything(t *testing.T) {
	cfg := NewConfig()
	cfg.ProcessDirectiveFlags("-Wno-all")
	if cfg.IsWarningEnabled(WarnLargeFrame) {
		t.Fatal("-Wno-all left large-frame on")
	}
	cfg.ProcessDirectiveFlags("-pedantic")
	for w := Warning(0); w < WarnCount; w++ {
		if !cfg.IsWarningEnabled(w) {
			t.Errorf("warning %s off under -pedantic", cfg.Warnings[w].Name)
		}
	}
}

func TestProcessFlagsOrder(t *testing.T) {
	cfg := NewConfig()
	fs := cli.NewFlagSet("zabi")
	var wall bool
	fs.Bool(&wall, "Wall", "", false, "")
	cfg.SetupFlagGroups(fs)

	// -Wall comes last but must not undo the more specific flag.
	if err := fs.Parse([]string{"-Wno-backchain", "-Wall", "-Fprobestack", "in.sig"}); err != nil {
		t.Fatalf("Parse: %v", err)
	}
	cfg.ProcessFlags(fs.Visit)

	if cfg.IsWarningEnabled(WarnBackchain) {
		t.Error("-Wall overrode -Wno-backchain")
	}
	if !cfg.IsWarningEnabled(WarnStackArgs) || !cfg.IsFeatureEnabled(FeatProbestack) {
		t.Error("flags not applied")
	}
	if diff := cmp.Diff([]string{"in.sig"}, fs.Args()); diff != "" {
		t.Errorf("args (-want +got):\n%s", diff)
	}
}
