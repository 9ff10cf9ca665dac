package s390x

import (
	"fmt"

	"github.com/xplshn/zabi/pkg/abi"
	"github.com/xplshn/zabi/pkg/ir"
	"github.com/xplshn/zabi/pkg/regalloc"
)

type InstKind uint8

const (
	// Move copies Rn to Rd; Ty picks the register width.
	Move InstKind = iota
	Mov32SImm16
	Mov32Imm
	LoadAddr
	AluRSImm16
	AluRSImm32
	AluRUImm32
	StoreMultiple64
	LoadMultiple64
	Store64
	StoreImm8
	Load
	Store
	VecStoreLane
	VecLoadLaneUndef
	VecEltRev
	StackProbeLoop
	CmpTrapRR
	Extend
	Ret
	Unwind
)

// Inst is one s390x instruction as produced by ABI lowering. Fields not used by a
// kind are left zero.
type Inst struct {
	Kind InstKind
	Rd   regalloc.RealReg
	Rn   regalloc.RealReg
	// Rt2 ends the register range of STMG/LMG.
	Rt2 regalloc.RealReg
	Mem MemArg
	Imm int64
	Ty  ir.Type
	// Lane is the element index of VSTEG/VLEG, or the lane count of VecEltRev.
	Lane uint32

	Signed           bool
	FromBits, ToBits uint8

	Unwind abi.UnwindInst
}

type MemKind uint8

const (
	// MemBXD12 is base + index + unsigned 12-bit displacement.
	MemBXD12 MemKind = iota
	// MemBXD20 is base + index + signed 20-bit displacement.
	MemBXD20
	// MemRegOffset is a base register plus an offset that fits neither displacement form.
	MemRegOffset
	MemIncomingArgOffset
	MemSlotOffset
	MemOutgoingArgOffset
	MemSpillOffset
)

// MemArg is an address. The *Offset kinds name a frame region and are resolved against
// the final FrameLayout by FinalizeMemArg.
type MemArg struct {
	Kind  MemKind
	Base  regalloc.RealReg
	Index regalloc.RealReg
	Disp  int64
}

func fitsUImm12(v int64) bool { return v >= 0 && v <= 4095 }
func fitsSImm20(v int64) bool { return v >= -(1<<19) && v < 1<<19 }

// RegPlusOff addresses base+off using the narrowest displacement form that fits.
func RegPlusOff(base regalloc.RealReg, off int64) MemArg {
	switch {
	case fitsUImm12(off): return MemArg{Kind: MemBXD12, Base: base, Index: ZeroReg, Disp: off}
	case fitsSImm20(off): return MemArg{Kind: MemBXD20, Base: base, Index: ZeroReg, Disp: off}
	default: return MemArg{Kind: MemRegOffset, Base: base, Index: ZeroReg, Disp: off}
	}
}

func MemReg(base regalloc.RealReg) MemArg { return RegPlusOff(base, 0) }

// StackAModeMem converts a symbolic stack address into the matching pseudo address. Incoming
// arguments are addressed from the top of the incoming area.
func StackAModeMem(m abi.StackAMode) MemArg {
	switch m := m.(type) {
	case abi.IncomingArg:
		return MemArg{Kind: MemIncomingArgOffset, Disp: m.Off - int64(m.StackArgsSize)}
	case abi.Slot:
		return MemArg{Kind: MemSlotOffset, Disp: m.Off}
	case abi.OutgoingArg:
		return MemArg{Kind: MemOutgoingArgOffset, Disp: m.Off}
	default:
		panic(fmt.Sprintf("BUG: unhandled stack address mode %T", m))
	}
}

// SpillMem addresses spill slot n.
func SpillMem(n int) MemArg { return MemArg{Kind: MemSpillOffset, Disp: 8 * int64(n)} }

func (m MemArg) Symbolic() bool { return m.Kind >= MemIncomingArgOffset }

func mov64(rd, rn regalloc.RealReg) *Inst { return &Inst{Kind: Move, Rd: rd, Rn: rn, Ty: ir.I64} }

// genLoad and genStore pick the access width from ty; integer loads zero-extend to 64 bits.
func genLoad(rd regalloc.RealReg, mem MemArg, ty ir.Type) *Inst {
	return &Inst{Kind: Load, Rd: rd, Mem: mem, Ty: ty}
}

func genStore(mem MemArg, rn regalloc.RealReg, ty ir.Type) *Inst {
	return &Inst{Kind: Store, Rn: rn, Mem: mem, Ty: ty}
}

func unwind(u abi.UnwindInst) *Inst { return &Inst{Kind: Unwind, Unwind: u} }

// canonicalTypeForClass is the type used to spill a whole register of class rc.
func canonicalTypeForClass(rc regalloc.RegClass) ir.Type {
	switch rc {
	case regalloc.ClassInt: return ir.I64
	case regalloc.ClassFloat: return ir.I8X16
	default: panic(fmt.Sprintf("BUG: no canonical type for class %v", rc))
	}
}
