package abi

import (
	"fmt"

	"github.com/xplshn/zabi/pkg/regalloc"
)

// UnwindInst is a directive for the unwind-table emitter, placed inline with prologue code.
type UnwindInst interface {
	isUnwindInst()
	String() string
}

// DefineNewFrame marks the point where the frame's CFA and clobber area become known.
type DefineNewFrame struct {
	OffsetUpwardToCallerSP   uint32
	OffsetDownwardToClobbers uint32
}

// SaveReg records that Reg was saved at ClobberOffset above the unwind-frame base.
type SaveReg struct {
	ClobberOffset uint32
	Reg           regalloc.RealReg
}

// RegStackOffset records that Reg's caller value equals the CFA-relative address ClobberOffset
// instead of a saved copy.
type RegStackOffset struct {
	ClobberOffset uint32
	Reg           regalloc.RealReg
}

// StackAlloc records an explicit stack pointer decrement.
type StackAlloc struct{ Size uint32 }

func (DefineNewFrame) isUnwindInst() {}
func (SaveReg) isUnwindInst()        {}
func (RegStackOffset) isUnwindInst() {}
func (StackAlloc) isUnwindInst()     {}

func (u DefineNewFrame) String() string {
	return fmt.Sprintf("define_new_frame up=%d down=%d", u.OffsetUpwardToCallerSP, u.OffsetDownwardToClobbers)
}
func (u SaveReg) String() string {
	return fmt.Sprintf("save_reg %v at %d", u.Reg, u.ClobberOffset)
}
func (u RegStackOffset) String() string {
	return fmt.Sprintf("reg_stack_offset %v at %d", u.Reg, u.ClobberOffset)
}
func (u StackAlloc) String() string { return fmt.Sprintf("stack_alloc %d", u.Size) }
