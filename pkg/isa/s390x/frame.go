package s390x

import (
	"fmt"
	"slices"

	"github.com/samber/lo"

	"github.com/xplshn/zabi/pkg/abi"
	"github.com/xplshn/zabi/pkg/ir"
	"github.com/xplshn/zabi/pkg/regalloc"
)

// The s390x frame, high addresses first:
//
//	CFA ->                  caller's stack arguments
//	                        160-byte register save area (GPRs saved here by STMG)
//	SP at entry ->          clobbered FPRs
//	                        spill slots
//	                        stack slots
//	                        outgoing arguments and outgoing register save area
//	SP in body ->
//
// There is no frame pointer; everything is addressed from SP, which does not move after
// the prologue. With the tail convention the caller allocates the incoming argument area
// below its own frame, so it sits between the register save area and the clobbers.

// isRegSavedInPrologue reports whether r is callee-saved under cc.
func isRegSavedInPrologue(cc ir.CallConv, r regalloc.RealReg) bool {
	switch r.Class() {
	case regalloc.ClassInt:
		if cc == ir.CallConvTail {
			return r.HwEnc() >= 8 && r.HwEnc() <= 15
		}
		return r.HwEnc() >= 6 && r.HwEnc() <= 15
	case regalloc.ClassFloat:
		return r.HwEnc() >= 8 && r.HwEnc() <= 15
	default:
		panic(fmt.Sprintf("BUG: register class %v is not used on s390x", r.Class()))
	}
}

func (MachineDeps) ComputeFrameLayout(cc ir.CallConv, flags abi.Flags, clobbered []regalloc.RealReg,
	incomingArgsSize, tailArgsSize, stackslotsSize, fixedFrameStorageSize, outgoingArgsSize uint32) *abi.FrameLayout {
	if flags.EnablePinnedReg {
		panic("BUG: pinned register not supported on s390x")
	}

	regs := lo.Uniq(lo.Filter(clobbered, func(r regalloc.RealReg, _ int) bool {
		return isRegSavedInPrologue(cc, r)
	}))

	// The backchain lives in the outgoing register save area, so it must exist even in
	// leaf functions.
	if flags.PreserveFramePointers && outgoingArgsSize < RegSaveAreaSize {
		outgoingArgsSize = RegSaveAreaSize
	}

	// Calls clobber the link register without the body ever naming it.
	if outgoingArgsSize > 0 && !lo.Contains(regs, LinkReg) {
		regs = append(regs, LinkReg)
	}

	slices.Sort(regs)

	// GPRs go to the caller's register save area; only FPRs need room here.
	var clobberSize uint32
	for _, r := range regs {
		switch r.Class() {
		case regalloc.ClassInt:
		case regalloc.ClassFloat:
			clobberSize += 8
		default:
			panic(fmt.Sprintf("BUG: register class %v is not used on s390x", r.Class()))
		}
	}

	// Tail-call arguments are not part of the caller's frame under the tail convention.
	// Counting them as clobber space keeps the total frame size right for generic code.
	if cc == ir.CallConvTail {
		clobberSize += tailArgsSize
	}

	return &abi.FrameLayout{
		WordBytes:             8,
		IncomingArgsSize:      incomingArgsSize,
		TailArgsSize:          incomingArgsSize,
		SetupAreaSize:         0,
		ClobberSize:           clobberSize,
		FixedFrameStorageSize: fixedFrameStorageSize,
		StackslotsSize:        stackslotsSize,
		OutgoingArgsSize:      outgoingArgsSize,
		ClobberedCalleeSaves:  regs,
	}
}

// clobberedGPRs returns the range saved by STMG and restored by LMG.
func clobberedGPRs(layout *abi.FrameLayout) (first, last uint8, ok bool) {
	gprs, _ := layout.ClobberedCalleeSavesByClass()
	if len(gprs) == 0 {
		return 0, 0, false
	}
	return gprs[0].HwEnc(), gprs[len(gprs)-1].HwEnc(), true
}

func clobberedFPRs(layout *abi.FrameLayout) []regalloc.RealReg {
	_, fprs := layout.ClobberedCalleeSavesByClass()
	return fprs
}

// incomingTailArgsSize is the part of this frame the caller allocated: the incoming
// argument area, under the tail convention only.
func incomingTailArgsSize(cc ir.CallConv, layout *abi.FrameLayout) uint32 {
	if cc == ir.CallConvTail {
		return layout.IncomingArgsSize
	}
	return 0
}

// FinalizeMemArg resolves the symbolic frame addresses in mem to SP-relative addresses.
func FinalizeMemArg(cc ir.CallConv, layout *abi.FrameLayout, mem MemArg) MemArg {
	frame := int64(layout.ActiveSize())
	switch mem.Kind {
	case MemBXD12, MemBXD20, MemRegOffset:
		return mem
	case MemIncomingArgOffset:
		// Disp counts down from the top of the incoming area, and arguments start above
		// the register save area at the bottom of it. Under the tail convention the
		// area is already inside the allocated frame.
		top := frame + int64(layout.IncomingArgsSize)
		if cc == ir.CallConvTail {
			top = frame
		}
		return RegPlusOff(StackReg, top+RegSaveAreaSize+mem.Disp)
	case MemSlotOffset:
		return RegPlusOff(StackReg, layout.SlotBase()+mem.Disp)
	case MemOutgoingArgOffset:
		return RegPlusOff(StackReg, RegSaveAreaSize+mem.Disp)
	case MemSpillOffset:
		return RegPlusOff(StackReg, layout.SpillBase()+mem.Disp)
	default:
		panic(fmt.Sprintf("BUG: unhandled address kind %d", mem.Kind))
	}
}

// Finalize resolves every symbolic address in insts in place.
func Finalize(cc ir.CallConv, layout *abi.FrameLayout, insts []*Inst) {
	for _, inst := range insts {
		if inst.Mem.Symbolic() {
			inst.Mem = FinalizeMemArg(cc, layout, inst.Mem)
		}
	}
}
