package s390x

import (
	"fmt"

	"github.com/xplshn/zabi/pkg/abi"
	"github.com/xplshn/zabi/pkg/ir"
	"github.com/xplshn/zabi/pkg/regalloc"
)

// MachineDeps is the s390x ABI policy. It carries no state.
type MachineDeps struct{}

var _ abi.MachineSpec[*Inst] = MachineDeps{}

// Callee lowers one s390x function's frame.
type Callee = abi.Callee[*Inst]

func NewCallee(sig *abi.SigData, flags abi.Flags) (*Callee, error) {
	return abi.NewCallee[*Inst](MachineDeps{}, sig, flags)
}

func NewSigData(sig *ir.Signature, flags abi.Flags) (*abi.SigData, error) {
	return abi.NewSigData[*Inst](MachineDeps{}, sig, flags)
}

func (MachineDeps) WordBits() uint32 { return 64 }

func (MachineDeps) StackAlign(ir.CallConv) uint32 { return 8 }

func (MachineDeps) StackArgRetSizeLimit() uint32 { return StackArgRetSizeLimit }

func GenLoadStack(mem abi.StackAMode, into regalloc.RealReg, ty ir.Type) *Inst {
	return genLoad(into, StackAModeMem(mem), ty)
}

func GenStoreStack(mem abi.StackAMode, from regalloc.RealReg, ty ir.Type) *Inst {
	return genStore(StackAModeMem(mem), from, ty)
}

func GenMove(to, from regalloc.RealReg, ty ir.Type) *Inst {
	return &Inst{Kind: Move, Rd: to, Rn: from, Ty: ty}
}

// GenExtend widens the low fromBits of from into to.
func GenExtend(to, from regalloc.RealReg, signed bool, fromBits, toBits uint8) *Inst {
	if fromBits >= toBits {
		panic(fmt.Sprintf("BUG: extend from %d to %d bits", fromBits, toBits))
	}
	return &Inst{Kind: Extend, Rd: to, Rn: from, Signed: signed, FromBits: fromBits, ToBits: toBits}
}

func GenGetStackAddr(mem abi.StackAMode, into regalloc.RealReg) *Inst {
	return &Inst{Kind: LoadAddr, Rd: into, Mem: StackAModeMem(mem)}
}

func GenLoadBaseOffset(into, base regalloc.RealReg, off int32, ty ir.Type) *Inst {
	return genLoad(into, RegPlusOff(base, int64(off)), ty)
}

func GenStoreBaseOffset(base regalloc.RealReg, off int32, from regalloc.RealReg, ty ir.Type) *Inst {
	return genStore(RegPlusOff(base, int64(off)), from, ty)
}

// GenArgLoad fetches incoming argument idx into into. Register arguments become plain
// moves; extension was done by the caller. For implicit references the body receives
// the pointer.
func GenArgLoad(sig *abi.SigData, idx int, into regalloc.RealReg) []*Inst {
	switch arg := sig.Args[idx].(type) {
	case *abi.Slots:
		var insts []*Inst
		for _, slot := range arg.Slots {
			insts = append(insts, genSlotLoad(slot, sig.SizedStackArgSpace, into)...)
		}
		return insts
	case *abi.ImplicitPtrArg:
		return genSlotLoad(arg.Pointer, sig.SizedStackArgSpace, into)
	default:
		panic(fmt.Sprintf("BUG: unhandled argument kind %T", arg))
	}
}

func genSlotLoad(slot abi.ABIArgSlot, stackArgsSize uint32, into regalloc.RealReg) []*Inst {
	switch s := slot.(type) {
	case abi.RegSlot:
		if s.Reg == into {
			return nil
		}
		return []*Inst{GenMove(into, s.Reg, s.Ty)}
	case abi.StackSlot:
		mode := abi.IncomingArg{Off: s.Offset, StackArgsSize: stackArgsSize}
		return []*Inst{GenLoadStack(mode, into, s.Ty)}
	default:
		panic(fmt.Sprintf("BUG: unhandled slot kind %T", s))
	}
}
