package s390x

import (
	"fmt"
	"math"

	"github.com/xplshn/zabi/pkg/abi"
	"github.com/xplshn/zabi/pkg/ir"
	"github.com/xplshn/zabi/pkg/regalloc"
)

// probeMaxUnroll caps unrolled probes: a probe is two instructions and the loop is four.
const probeMaxUnroll = 2

// GenSPRegAdjust adds imm to the stack pointer.
func GenSPRegAdjust(imm int32) []*Inst {
	switch {
	case imm == 0: return nil
	case imm >= math.MinInt16 && imm <= math.MaxInt16:
		return []*Inst{{Kind: AluRSImm16, Rd: StackReg, Rn: StackReg, Imm: int64(imm)}}
	default:
		return []*Inst{{Kind: AluRSImm32, Rd: StackReg, Rn: StackReg, Imm: int64(imm)}}
	}
}

// GenAddImm computes into = from + imm, using LOAD ADDRESS when the displacement fits.
func (MachineDeps) GenAddImm(_ ir.CallConv, into, from regalloc.RealReg, imm uint32) []*Inst {
	return genAddImm(into, from, imm)
}

func genAddImm(into, from regalloc.RealReg, imm uint32) []*Inst {
	if fitsUImm12(int64(imm)) {
		return []*Inst{{Kind: LoadAddr, Rd: into, Mem: MemArg{Kind: MemBXD12, Base: from, Index: ZeroReg, Disp: int64(imm)}}}
	}
	if fitsSImm20(int64(imm)) {
		return []*Inst{{Kind: LoadAddr, Rd: into, Mem: MemArg{Kind: MemBXD20, Base: from, Index: ZeroReg, Disp: int64(imm)}}}
	}
	var insts []*Inst
	if from != into {
		insts = append(insts, mov64(into, from))
	}
	return append(insts, &Inst{Kind: AluRUImm32, Rd: into, Rn: into, Imm: int64(imm)})
}

// GenStackLowerBoundTrap traps with a stack overflow if SP <= limit (unsigned).
func (MachineDeps) GenStackLowerBoundTrap(limit regalloc.RealReg) []*Inst {
	return []*Inst{{Kind: CmpTrapRR, Rd: StackReg, Rn: limit}}
}

func (MachineDeps) StackLimitReg(ir.CallConv) regalloc.RealReg { return SpillTmpReg }

// Frame setup and teardown happen entirely in the clobber save and restore sequences.
func (MachineDeps) GenPrologueFrameSetup(ir.CallConv, abi.Flags, *abi.FrameLayout) []*Inst {
	return nil
}

func (MachineDeps) GenEpilogueFrameRestore(ir.CallConv, abi.Flags, *abi.FrameLayout) []*Inst {
	return nil
}

func (MachineDeps) GenReturn(ir.CallConv, abi.Flags, *abi.FrameLayout) []*Inst {
	return []*Inst{{Kind: Ret, Rn: LinkReg}}
}

// GenInlineProbestack touches every guard-sized page the frame will cover, then returns SP
// to where it was.
func (MachineDeps) GenInlineProbestack(_ ir.CallConv, frameSize, guardSize uint32) []*Inst {
	if guardSize == 0 {
		panic("BUG: probestack with zero guard size")
	}
	probeCount := frameSize / guardSize
	if probeCount == 0 {
		return nil
	}

	var insts []*Inst
	if probeCount <= probeMaxUnroll {
		for range probeCount {
			insts = append(insts, GenSPRegAdjust(-int32(guardSize))...)
			insts = append(insts, &Inst{Kind: StoreImm8, Imm: 0, Mem: MemReg(StackReg)})
		}
	} else {
		// Probing runs after register allocation, so the spill temp is free as a counter.
		if probeCount <= math.MaxInt16 {
			insts = append(insts, &Inst{Kind: Mov32SImm16, Rd: SpillTmpReg, Imm: int64(probeCount)})
		} else {
			insts = append(insts, &Inst{Kind: Mov32Imm, Rd: SpillTmpReg, Imm: int64(probeCount)})
		}
		if guardSize > math.MaxInt16 {
			panic(fmt.Sprintf("BUG: guard size %d does not fit in 16 bits", guardSize))
		}
		insts = append(insts, &Inst{Kind: StackProbeLoop, Rd: SpillTmpReg, Imm: int64(guardSize)})
	}
	return append(insts, GenSPRegAdjust(int32(probeCount*guardSize))...)
}

func (MachineDeps) GenClobberSave(cc ir.CallConv, flags abi.Flags, layout *abi.FrameLayout) []*Inst {
	var insts []*Inst
	incomingTail := incomingTailArgsSize(cc, layout)

	if flags.UnwindInfo {
		insts = append(insts, unwind(abi.DefineNewFrame{
			OffsetUpwardToCallerSP:   RegSaveAreaSize + incomingTail,
			OffsetDownwardToClobbers: layout.ClobberSize - incomingTail,
		}))
	}

	// STMG always includes %r15 when anything is saved.
	if first, _, ok := clobberedGPRs(layout); ok {
		last := uint8(15)
		off := 8*int64(first) + int64(incomingTail)
		insts = append(insts, &Inst{Kind: StoreMultiple64, Rd: Gpr(first), Rt2: Gpr(last), Mem: RegPlusOff(StackReg, off)})
		if flags.UnwindInfo {
			// With incoming tail arguments the saved %r15 is not the caller's SP; describe
			// it relative to the CFA instead.
			if incomingTail != 0 {
				insts = append(insts, unwind(abi.RegStackOffset{ClobberOffset: layout.ClobberSize, Reg: Gpr(last)}))
				last--
			}
			for i := first; i <= last; i++ {
				insts = append(insts, unwind(abi.SaveReg{ClobberOffset: layout.ClobberSize + 8*uint32(i), Reg: Gpr(i)}))
			}
		}
	}

	if flags.PreserveFramePointers {
		if incomingTail == 0 {
			insts = append(insts, mov64(SpillTmpReg, StackReg))
		} else {
			insts = append(insts, genAddImm(SpillTmpReg, StackReg, incomingTail)...)
		}
	}

	stackSize := int32(layout.OutgoingArgsSize + layout.ClobberSize + layout.FixedFrameStorageSize - incomingTail)
	insts = append(insts, GenSPRegAdjust(-stackSize)...)
	if flags.UnwindInfo {
		insts = append(insts, unwind(abi.StackAlloc{Size: uint32(stackSize)}))
	}

	if flags.PreserveFramePointers {
		insts = append(insts, &Inst{Kind: Store64, Rn: SpillTmpReg, Mem: MemReg(StackReg)})
	}

	base := layout.ClobberBase()
	for i, r := range clobberedFPRs(layout) {
		insts = append(insts, &Inst{Kind: VecStoreLane, Rn: r, Mem: RegPlusOff(StackReg, base+8*int64(i)), Lane: 0})
		if flags.UnwindInfo {
			insts = append(insts, unwind(abi.SaveReg{ClobberOffset: 8 * uint32(i), Reg: r}))
		}
	}
	return insts
}

func (MachineDeps) GenClobberRestore(cc ir.CallConv, _ abi.Flags, layout *abi.FrameLayout) []*Inst {
	insts := restoreFPRs(layout)
	return append(insts, restoreGPRs(cc, layout, 0)...)
}

func restoreFPRs(layout *abi.FrameLayout) []*Inst {
	var insts []*Inst
	base := layout.ClobberBase()
	for i, r := range clobberedFPRs(layout) {
		insts = append(insts, &Inst{Kind: VecLoadLaneUndef, Rd: r, Mem: RegPlusOff(StackReg, base+8*int64(i)), Lane: 0})
	}
	return insts
}

// restoreGPRs reloads the saved GPR range and releases the frame plus popSize bytes of
// caller-allocated arguments. It never touches %r1, which may hold a tail call target.
func restoreGPRs(cc ir.CallConv, layout *abi.FrameLayout, popSize uint32) []*Inst {
	var insts []*Inst
	first, last, ok := clobberedGPRs(layout)

	stackSize := int64(layout.OutgoingArgsSize) + int64(layout.ClobberSize) + int64(layout.FixedFrameStorageSize)

	// LMG can reload %r15 from the save area instead of adjusting SP, unless tail call
	// arguments make the saved value differ from the one we need.
	implicitSPRestore := popSize == 0 &&
		(cc != ir.CallConvTail || layout.IncomingArgsSize == 0) &&
		ok && fitsSImm20(8*int64(first)+stackSize)
	if !implicitSPRestore {
		insts = append(insts, GenSPRegAdjust(int32(stackSize-int64(popSize)))...)
	}

	if ok {
		base := StackReg
		off := int64(popSize) + 8*int64(first)
		if implicitSPRestore {
			off += stackSize - int64(popSize)
			last = 15
		}
		// The first restored GPR is about to be overwritten anyway, so it can hold
		// the address.
		if !fitsSImm20(off) {
			insts = append(insts, genAddImm(Gpr(first), StackReg, uint32(off))...)
			base, off = Gpr(first), 0
		}
		insts = append(insts, &Inst{Kind: LoadMultiple64, Rd: Gpr(first), Rt2: Gpr(last), Mem: RegPlusOff(base, off)})
	}
	return insts
}

// CallInstDest is the target of a call.
type CallInstDest interface {
	isCallInstDest()
	String() string
}

type CallDirect struct{ Symbol string }

type CallIndirect struct{ Reg regalloc.RealReg }

func (CallDirect) isCallInstDest()   {}
func (CallIndirect) isCallInstDest() {}

func (d CallDirect) String() string   { return d.Symbol }
func (d CallIndirect) String() string { return RegName(d.Reg) }

// GenTailEpilogue tears the frame down ahead of a tail call that pops popSize bytes of
// arguments. If dest sits in a callee-saved GPR it is moved to %r1 first and the returned
// register is where the call must now find its target.
func GenTailEpilogue(layout *abi.FrameLayout, popSize uint32, dest CallInstDest) ([]*Inst, regalloc.RealReg, bool) {
	cc := ir.CallConvTail

	// FPR restores may use %r1, so they go first.
	insts := restoreFPRs(layout)

	tmp, moved := regalloc.InvalidReg, false
	switch d := dest.(type) {
	case CallIndirect:
		if d.Reg.Valid() && d.Reg.Class() == regalloc.ClassInt && isRegSavedInPrologue(cc, d.Reg) {
			insts = append(insts, mov64(SpillTmpReg, d.Reg))
			tmp, moved = SpillTmpReg, true
		}
	case CallDirect:
	default:
		panic(fmt.Sprintf("BUG: unhandled call destination %T", dest))
	}

	return append(insts, restoreGPRs(cc, layout, popSize)...), tmp, moved
}

// GenMemcpy would copy struct arguments, which this target does not support.
func (MachineDeps) GenMemcpy(ir.CallConv, regalloc.RealReg, regalloc.RealReg, uint32) []*Inst {
	panic("BUG: struct argument copies are not implemented for s390x")
}
