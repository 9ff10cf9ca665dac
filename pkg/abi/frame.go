package abi

import (
	"fmt"
	"strings"

	"github.com/xplshn/zabi/pkg/regalloc"
)

// FrameLayout is the single source of truth for a function's stack geometry. Consumers
// derive offsets from it and never recompute region sizes themselves.
type FrameLayout struct {
	WordBytes uint32

	// IncomingArgsSize is the size of the incoming argument area.
	IncomingArgsSize uint32
	// TailArgsSize is the size of the argument area including room for outgoing tail calls.
	TailArgsSize uint32

	SetupAreaSize         uint32
	ClobberSize           uint32
	FixedFrameStorageSize uint32
	StackslotsSize        uint32
	OutgoingArgsSize      uint32

	// ClobberedCalleeSaves is sorted by class, then encoding.
	ClobberedCalleeSaves []regalloc.RealReg
}

// ClobberedCalleeSavesByClass splits the sorted clobber list into integer registers and the rest.
func (f *FrameLayout) ClobberedCalleeSavesByClass() (ints, floats []regalloc.RealReg) {
	split := len(f.ClobberedCalleeSaves)
	for i, r := range f.ClobberedCalleeSaves {
		if r.Class() != regalloc.ClassInt {
			split = i
			break
		}
	}
	return f.ClobberedCalleeSaves[:split], f.ClobberedCalleeSaves[split:]
}

// ActiveSize is the amount the prologue allocates below the setup area.
func (f *FrameLayout) ActiveSize() uint32 {
	return f.OutgoingArgsSize + f.FixedFrameStorageSize + f.ClobberSize
}

// SlotBase is the SP-relative offset of the explicit stack slot area.
func (f *FrameLayout) SlotBase() int64 { return int64(f.OutgoingArgsSize) }

// SpillBase is the SP-relative offset of the spill slot area, which follows the stack slots.
func (f *FrameLayout) SpillBase() int64 { return int64(f.OutgoingArgsSize) + int64(f.StackslotsSize) }

// ClobberBase is the SP-relative offset of the clobber save area.
func (f *FrameLayout) ClobberBase() int64 {
	return int64(f.OutgoingArgsSize) + int64(f.FixedFrameStorageSize)
}

func (f *FrameLayout) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "word=%d incoming=%d tail_args=%d setup=%d clobber=%d fixed=%d stackslots=%d outgoing=%d",
		f.WordBytes, f.IncomingArgsSize, f.TailArgsSize, f.SetupAreaSize, f.ClobberSize,
		f.FixedFrameStorageSize, f.StackslotsSize, f.OutgoingArgsSize)
	sb.WriteString(" clobbered=[")
	for i, r := range f.ClobberedCalleeSaves {
		if i > 0 {
			sb.WriteString(" ")
		}
		sb.WriteString(r.String())
	}
	sb.WriteString("]")
	return sb.String()
}
