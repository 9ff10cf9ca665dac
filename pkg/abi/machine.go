package abi

import (
	"sync/atomic"

	"github.com/xplshn/zabi/pkg/ir"
	"github.com/xplshn/zabi/pkg/regalloc"
)

// MachineSpec is the per-target ABI policy. I is the target's instruction type.
type MachineSpec[I any] interface {
	WordBits() uint32
	StackAlign(cc ir.CallConv) uint32
	// StackArgRetSizeLimit bounds argument and return areas so later 32-bit offset
	// arithmetic cannot overflow.
	StackArgRetSizeLimit() uint32

	// ComputeArgLocs assigns locations for params, appending them to args. It returns the
	// size of the stack area used and the index of the synthesized return-area pointer
	// argument, or -1.
	ComputeArgLocs(cc ir.CallConv, flags Flags, params []ir.AbiParam, argsOrRets ArgsOrRets,
		addRetAreaPtr bool, args *ArgsAccumulator) (uint32, int, error)

	ComputeFrameLayout(cc ir.CallConv, flags Flags, clobbered []regalloc.RealReg,
		incomingArgsSize, tailArgsSize, stackslotsSize, fixedFrameStorageSize,
		outgoingArgsSize uint32) *FrameLayout

	GenPrologueFrameSetup(cc ir.CallConv, flags Flags, layout *FrameLayout) []I
	GenEpilogueFrameRestore(cc ir.CallConv, flags Flags, layout *FrameLayout) []I
	GenReturn(cc ir.CallConv, flags Flags, layout *FrameLayout) []I
	GenClobberSave(cc ir.CallConv, flags Flags, layout *FrameLayout) []I
	GenClobberRestore(cc ir.CallConv, flags Flags, layout *FrameLayout) []I
	GenInlineProbestack(cc ir.CallConv, frameSize, guardSize uint32) []I
	GenStackLowerBoundTrap(limit regalloc.RealReg) []I
	GenAddImm(cc ir.CallConv, into, from regalloc.RealReg, imm uint32) []I
	GenMemcpy(cc ir.CallConv, dst, src regalloc.RealReg, size uint32) []I
	StackLimitReg(cc ir.CallConv) regalloc.RealReg

	SpillSlotsForClass(rc regalloc.RegClass) uint32
	MachineEnv(flags Flags, cc ir.CallConv) *regalloc.MachineEnv
	RegsClobberedByCall(cc ir.CallConv, isException bool) regalloc.PRegSet
	ExceptionPayloadRegs(cc ir.CallConv) []regalloc.RealReg
}

// OnceCell lazily holds one immutable value. Initialization races are settled by
// compare-and-swap; init must be pure so every contender computes an identical value.
// Readers never block.
type OnceCell[T any] struct{ p atomic.Pointer[T] }

func (c *OnceCell[T]) Get(init func() T) *T {
	if v := c.p.Load(); v != nil {
		return v
	}
	v := init()
	c.p.CompareAndSwap(nil, &v)
	return c.p.Load()
}

func AlignTo(n, align uint32) uint32 {
	if align == 0 {
		return n
	}
	return (n + align - 1) &^ (align - 1)
}

func alignTo64(n, align uint64) uint64 {
	if align == 0 {
		return n
	}
	return (n + align - 1) &^ (align - 1)
}
