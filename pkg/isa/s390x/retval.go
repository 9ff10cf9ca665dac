package s390x

import (
	"fmt"

	"github.com/xplshn/zabi/pkg/abi"
	"github.com/xplshn/zabi/pkg/ir"
	"github.com/xplshn/zabi/pkg/regalloc"
)

// LaneOrder is the element numbering a convention uses within vector registers.
type LaneOrder uint8

const (
	LittleEndian LaneOrder = iota
	BigEndian
)

func LaneOrderOf(cc ir.CallConv) LaneOrder {
	if cc == ir.CallConvTail {
		return LittleEndian
	}
	return BigEndian
}

// RetLocation is where a callee leaves a return value.
type RetLocation interface {
	isRetLocation()
	String() string
}

type RetReg struct {
	Reg regalloc.RealReg
	Ty  ir.Type
}

type RetStack struct {
	Mode abi.StackAMode
	Ty   ir.Type
}

func (RetReg) isRetLocation()   {}
func (RetStack) isRetLocation() {}

func (l RetReg) String() string   { return fmt.Sprintf("%s:%v", RegName(l.Reg), l.Ty) }
func (l RetStack) String() string { return fmt.Sprintf("%v:%v", l.Mode, l.Ty) }

// CallRetPair links a return value's location to where the allocator wants it.
type CallRetPair struct {
	Dest     regalloc.Allocation
	Location RetLocation
}

type CallInfo struct {
	Dest       CallInstDest
	Defs       []CallRetPair
	CallerConv ir.CallConv
	CalleeConv ir.CallConv
}

// RetLocations lists where a call to sig leaves its return values. The return area
// follows the outgoing argument area.
func RetLocations(sig *abi.SigData) []RetLocation {
	locs := make([]RetLocation, 0, len(sig.Rets))
	for _, ret := range sig.Rets {
		slots, ok := ret.(*abi.Slots)
		if !ok || len(slots.Slots) != 1 {
			panic(fmt.Sprintf("BUG: unexpected return location %v", ret))
		}
		switch s := slots.Slots[0].(type) {
		case abi.RegSlot:
			locs = append(locs, RetReg{Reg: s.Reg, Ty: s.Ty})
		case abi.StackSlot:
			off := int64(sig.SizedStackArgSpace) + s.Offset
			locs = append(locs, RetStack{Mode: abi.OutgoingArg{Off: off}, Ty: s.Ty})
		default:
			panic(fmt.Sprintf("BUG: unhandled slot kind %T", s))
		}
	}
	return locs
}

// CallOutgoingArgsSize is the outgoing area a caller of sig must reserve: the callee's
// register save area, its stack arguments and its return buffer.
func CallOutgoingArgsSize(sig *abi.SigData) uint32 {
	return RegSaveAreaSize + sig.SizedStackArgSpace + sig.SizedStackRetSpace
}

// retvalTempReg picks by register class. 128-bit scalars only ever come back on the stack
// and travel through a vector register like any other 16-byte value.
func retvalTempReg(ty ir.Type) regalloc.RealReg {
	switch ClassOf(ty) {
	case ClassInt: return Gpr(0)
	case ClassFloat, ClassVector: return Vr(1)
	case ClassNone:
		if ty.Bits() == 128 {
			return Vr(1)
		}
	}
	panic(fmt.Sprintf("BUG: no temp register for %v", ty))
}

// GenRetvalLoads moves stack-returned values to their destinations and fixes the lane order
// of vector returns when caller and callee disagree on it.
func GenRetvalLoads(info *CallInfo) []*Inst {
	var insts []*Inst
	swap := LaneOrderOf(info.CallerConv) != LaneOrderOf(info.CalleeConv)
	laneSwap := func(r regalloc.RealReg, ty ir.Type) {
		if swap && ty.IsVector() && ty.LaneCount() >= 2 {
			insts = append(insts, &Inst{Kind: VecEltRev, Rd: r, Rn: r, Lane: ty.LaneCount()})
		}
	}

	// Copies into spill slots go through the temp registers, so they run before anything
	// that might load into a temp register. No return register is ever a temp.
	for _, def := range info.Defs {
		switch loc := def.Location.(type) {
		case RetReg:
			if loc.Reg == retvalTempReg(loc.Ty) {
				panic(fmt.Sprintf("BUG: return register %s collides with the temp register", RegName(loc.Reg)))
			}
		case RetStack:
			if slot, ok := def.Dest.AsSpillSlot(); ok {
				tmp := retvalTempReg(loc.Ty)
				insts = append(insts, genLoad(tmp, StackAModeMem(loc.Mode), loc.Ty))
				laneSwap(tmp, loc.Ty)
				insts = append(insts, genStore(SpillMem(slot), tmp, canonicalTypeForClass(tmp.Class())))
			}
		default:
			panic(fmt.Sprintf("BUG: unhandled return location %T", loc))
		}
	}

	for _, def := range info.Defs {
		switch loc := def.Location.(type) {
		case RetReg:
			laneSwap(loc.Reg, loc.Ty)
		case RetStack:
			if reg, ok := def.Dest.AsReg(); ok {
				insts = append(insts, genLoad(reg, StackAModeMem(loc.Mode), loc.Ty))
				laneSwap(reg, loc.Ty)
			}
		}
	}
	return insts
}
