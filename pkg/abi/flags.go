package abi

import (
	"errors"
	"fmt"
)

// Flags are the target-wide settings that influence lowering.
type Flags struct {
	UnwindInfo                 bool
	PreserveFramePointers      bool
	EnablePinnedReg            bool
	EnableMultiRetImplicitSret bool
	EnableProbestack           bool
	// ProbestackGuardSize is the guard page granularity in bytes.
	ProbestackGuardSize uint32
}

const DefaultProbestackGuardSize = 4096

func DefaultFlags() Flags {
	return Flags{ProbestackGuardSize: DefaultProbestackGuardSize}
}

// String is a canonical encoding used for cache keys.
func (f Flags) String() string {
	b := func(v bool) byte {
		if v {
			return '1'
		}
		return '0'
	}
	return fmt.Sprintf("unwind=%c fp=%c pinned=%c multiret=%c probe=%c guard=%d",
		b(f.UnwindInfo), b(f.PreserveFramePointers), b(f.EnablePinnedReg),
		b(f.EnableMultiRetImplicitSret), b(f.EnableProbestack), f.ProbestackGuardSize)
}

var (
	// ErrUnsupported reports a feature the backend declines to lower.
	ErrUnsupported = errors.New("unsupported feature")
	// ErrImplLimitExceeded reports an input that exceeds a fixed implementation limit.
	ErrImplLimitExceeded = errors.New("implementation limit exceeded")
)

func Unsupportedf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrUnsupported, fmt.Sprintf(format, args...))
}

func ImplLimitf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrImplLimitExceeded, fmt.Sprintf(format, args...))
}
