package config

import (
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/samber/lo"

	"github.com/xplshn/zabi/pkg/abi"
	"github.com/xplshn/zabi/pkg/cli"
)

type Feature int

const (
	FeatUnwindInfo Feature = iota
	FeatPreserveFramePointers
	FeatPinnedReg
	FeatMultiRetImplicitSret
	FeatProbestack
	FeatCount
)

type Warning int

const (
	WarnImplicitRef Warning = iota
	WarnStackArgs
	WarnLargeFrame
	WarnBackchain
	WarnPedantic
	WarnCount
)

type Info struct {
	Name        string
	Enabled     bool
	Description string
}

// DefaultLargeFrameSize is the frame size above which -Wlarge-frame fires.
const DefaultLargeFrameSize = 64 * 1024

type Config struct {
	Features       map[Feature]Info
	Warnings       map[Warning]Info
	FeatureMap     map[string]Feature
	WarningMap     map[string]Warning
	PresetName     string
	Target         string
	WordSize       int
	StackAlignment int

	ProbestackGuardSize uint32
	LargeFrameSize      uint32
}

func NewConfig() *Config {
	cfg := &Config{
		Features:            make(map[Feature]Info),
		Warnings:            make(map[Warning]Info),
		FeatureMap:          make(map[string]Feature),
		WarningMap:          make(map[string]Warning),
		ProbestackGuardSize: abi.DefaultProbestackGuardSize,
		LargeFrameSize:      DefaultLargeFrameSize,
	}

	features := map[Feature]Info{
		FeatUnwindInfo:            {"unwind-info", true, "Emit unwind directives alongside the prologue."},
		FeatPreserveFramePointers: {"preserve-frame-pointers", false, "Maintain the stack backchain in every frame."},
		FeatPinnedReg:             {"pinned-reg", false, "Reserve a pinned register (not available on s390x)."},
		FeatMultiRetImplicitSret:  {"multi-ret-implicit-sret", false, "Return values that do not fit in registers through a hidden return area."},
		FeatProbestack:            {"probestack", false, "Probe every guard page of large frames in the prologue."},
	}

	warnings := map[Warning]Info{
		WarnImplicitRef: {"implicit-ref", true, "Warn when a parameter is passed by implicit reference."},
		WarnStackArgs:   {"stack-args", false, "Warn when a signature passes arguments on the stack."},
		WarnLargeFrame:  {"large-frame", true, "Warn about frames larger than 64 KiB."},
		WarnBackchain:   {"backchain", false, "Warn when the backchain forces an outgoing area onto a leaf function."},
		WarnPedantic:    {"pedantic", false, "Issue every warning, including the noisy ones."},
	}

	cfg.Features, cfg.Warnings = features, warnings
	for ft, info := range features {
		cfg.FeatureMap[info.Name] = ft
	}
	for wt, info := range warnings {
		cfg.WarningMap[info.Name] = wt
	}

	return cfg
}

// SetTarget configures the lowering target. Only s390x is available; an empty target
// selects it.
func (c *Config) SetTarget(goos, goarch, target string) error {
	if target == "" {
		target = "s390x"
		fmt.Fprintf(os.Stderr, "zabi: info: no target specified, defaulting to '%s' (host is %s/%s)\n", target, goos, goarch)
	}

	switch target {
	case "s390x", "s390x-linux", "zarch":
		c.Target = "s390x"
		c.WordSize, c.StackAlignment = 8, 8
	default:
		return fmt.Errorf("unsupported target '%s'. Supported: 's390x'", target)
	}
	return nil
}

func (c *Config) SetFeature(ft Feature, enabled bool) {
	if info, ok := c.Features[ft]; ok {
		info.Enabled = enabled
		c.Features[ft] = info
	}
}

func (c *Config) IsFeatureEnabled(ft Feature) bool { return c.Features[ft].Enabled }

func (c *Config) SetWarning(wt Warning, enabled bool) {
	if info, ok := c.Warnings[wt]; ok {
		info.Enabled = enabled
		c.Warnings[wt] = info
	}
}

// IsWarningEnabled reports whether wt fires. -Wpedantic turns every warning on.
func (c *Config) IsWarningEnabled(wt Warning) bool {
	return c.Warnings[wt].Enabled || c.Warnings[WarnPedantic].Enabled
}

type presetSettings struct {
	feature Feature
	value   bool
}

var presets = map[string][]presetSettings{
	"default": {
		{FeatUnwindInfo, true},
		{FeatPreserveFramePointers, false},
		{FeatProbestack, false},
		{FeatMultiRetImplicitSret, false},
	},
	"debug": {
		{FeatUnwindInfo, true},
		{FeatPreserveFramePointers, true},
		{FeatProbestack, false},
		{FeatMultiRetImplicitSret, false},
	},
	"hardened": {
		{FeatUnwindInfo, true},
		{FeatPreserveFramePointers, true},
		{FeatProbestack, true},
		{FeatMultiRetImplicitSret, false},
	},
	"wasm": {
		{FeatUnwindInfo, true},
		{FeatPreserveFramePointers, false},
		{FeatProbestack, false},
		{FeatMultiRetImplicitSret, true},
	},
	"minimal": {
		{FeatUnwindInfo, false},
		{FeatPreserveFramePointers, false},
		{FeatProbestack, false},
		{FeatMultiRetImplicitSret, false},
	},
}

// ApplyPreset sets the features a named preset controls. Explicit -F flags applied
// afterwards override it.
func (c *Config) ApplyPreset(name string) error {
	settings, ok := presets[name]
	if !ok {
		names := lo.Keys(presets)
		slices.Sort(names)
		return fmt.Errorf("unknown preset '%s'. Supported: %s", name, strings.Join(names, ", "))
	}
	c.PresetName = name
	for _, s := range settings {
		c.SetFeature(s.feature, s.value)
	}
	return nil
}

func (c *Config) applyFlag(flag string) {
	trimmed := strings.TrimPrefix(flag, "-")
	isNo := strings.HasPrefix(trimmed, "Wno-") || strings.HasPrefix(trimmed, "Fno-")
	enable := !isNo

	var name string
	var isWarning bool

	switch {
	case strings.HasPrefix(trimmed, "W"):
		name = strings.TrimPrefix(trimmed, "W")
		if isNo {
			name = strings.TrimPrefix(name, "no-")
		}
		isWarning = true
	case strings.HasPrefix(trimmed, "F"):
		name = strings.TrimPrefix(trimmed, "F")
		if isNo {
			name = strings.TrimPrefix(name, "no-")
		}
	default:
		name = trimmed
		isWarning = true
	}

	if name == "all" && isWarning {
		for i := Warning(0); i < WarnCount; i++ {
			if i != WarnPedantic {
				c.SetWarning(i, enable)
			}
		}
		return
	}

	if isWarning {
		if w, ok := c.WarningMap[name]; ok {
			c.SetWarning(w, enable)
		}
	} else {
		if f, ok := c.FeatureMap[name]; ok {
			c.SetFeature(f, enable)
		}
	}
}

// ProcessFlags applies -W/-F flags in two rounds so that -Wall and -pedantic never
// override a more specific flag, whatever the order on the command line.
func (c *Config) ProcessFlags(visitFlag func(fn func(name string))) {
	visitFlag(func(name string) {
		if name == "Wall" || name == "Wno-all" || name == "pedantic" {
			c.applyFlag("-" + name)
		}
	})
	visitFlag(func(name string) {
		if name != "Wall" && name != "Wno-all" && name != "pedantic" {
			c.applyFlag("-" + name)
		}
	})
}

// ProcessDirectiveFlags applies the flags of a `// [zabi]:` directive.
func (c *Config) ProcessDirectiveFlags(flagStr string) {
	for _, flag := range strings.Fields(flagStr) {
		c.applyFlag(flag)
	}
}

// SetupFlagGroups registers -W<warning> and -F<feature> flags on fs. The returned entries
// are indexed by Warning and Feature respectively.
func (c *Config) SetupFlagGroups(fs *cli.FlagSet) (warningFlags, featureFlags []cli.FlagGroupEntry) {
	warningFlags = make([]cli.FlagGroupEntry, WarnCount)
	for i := Warning(0); i < WarnCount; i++ {
		info := c.Warnings[i]
		enabled, disabled := new(bool), new(bool)
		*enabled = info.Enabled
		warningFlags[i] = cli.FlagGroupEntry{Name: info.Name, Prefix: "W", Usage: info.Description, Enabled: enabled, Disabled: disabled}
	}
	featureFlags = make([]cli.FlagGroupEntry, FeatCount)
	for i := Feature(0); i < FeatCount; i++ {
		info := c.Features[i]
		enabled, disabled := new(bool), new(bool)
		*enabled = info.Enabled
		featureFlags[i] = cli.FlagGroupEntry{Name: info.Name, Prefix: "F", Usage: info.Description, Enabled: enabled, Disabled: disabled}
	}

	fs.AddFlagGroup("Warning Flags", "Diagnostics about the lowered signatures.", "warning", "Available Warnings:", warningFlags)
	fs.AddFlagGroup("Feature Flags", "Settings that change the generated code.", "feature", "Available Features:", featureFlags)
	return warningFlags, featureFlags
}

// ABIFlags converts the feature set into the flags consumed by ABI lowering.
func (c *Config) ABIFlags() abi.Flags {
	return abi.Flags{
		UnwindInfo:                 c.IsFeatureEnabled(FeatUnwindInfo),
		PreserveFramePointers:      c.IsFeatureEnabled(FeatPreserveFramePointers),
		EnablePinnedReg:            c.IsFeatureEnabled(FeatPinnedReg),
		EnableMultiRetImplicitSret: c.IsFeatureEnabled(FeatMultiRetImplicitSret),
		EnableProbestack:           c.IsFeatureEnabled(FeatProbestack),
		ProbestackGuardSize:        c.ProbestackGuardSize,
	}
}
