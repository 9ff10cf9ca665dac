package s390x

import (
	"fmt"

	"github.com/xplshn/zabi/pkg/abi"
	"github.com/xplshn/zabi/pkg/ir"
	"github.com/xplshn/zabi/pkg/regalloc"
)

// ValueClass says which kind of register carries a value across a call.
type ValueClass uint8

const (
	// ClassNone values fit no register: arguments go by implicit reference, returns
	// go to memory.
	ClassNone ValueClass = iota
	ClassInt
	ClassFloat
	ClassVector
	numValueClasses
)

func (c ValueClass) String() string {
	switch c {
	case ClassInt: return "int"
	case ClassFloat: return "float"
	case ClassVector: return "vector"
	default: return "none"
	}
}

func inIntReg(ty ir.Type) bool {
	switch ty {
	case ir.I8, ir.I16, ir.I32, ir.I64: return true
	}
	return false
}

func inFltReg(ty ir.Type) bool {
	switch ty {
	case ir.F16, ir.F32, ir.F64: return true
	}
	return false
}

func inVecReg(ty ir.Type) bool { return ty.IsVector() && ty.Bits() == 128 }

func ClassOf(ty ir.Type) ValueClass {
	i, f, v := inIntReg(ty), inFltReg(ty), inVecReg(ty)
	n := 0
	for _, b := range []bool{i, f, v} {
		if b {
			n++
		}
	}
	if n > 1 {
		panic(fmt.Sprintf("BUG: type %v matches more than one register class", ty))
	}
	switch {
	case i: return ClassInt
	case f: return ClassFloat
	case v: return ClassVector
	}
	return ClassNone
}

var (
	sysvIntRegs = []uint8{2, 3, 4, 5}
	tailIntRegs = []uint8{2, 3, 4, 5, 6, 7}
	fltRegs     = []uint8{0, 2, 4, 6}
	vecRegs     = []uint8{24, 25, 26, 27, 28, 29, 30, 31}
)

// slotRegister maps slot idx of class c to its register. Argument and return tables are
// the same on this target; %r3-%r5 and the extra float and vector return registers
// extend the hardware ABI for multi-value returns.
func slotRegister(cc ir.CallConv, c ValueClass, idx int) (regalloc.RealReg, bool) {
	var encs []uint8
	mk := Vr
	switch c {
	case ClassInt:
		encs, mk = sysvIntRegs, Gpr
		if cc == ir.CallConvTail {
			encs = tailIntRegs
		}
	case ClassFloat:
		encs = fltRegs
	case ClassVector:
		encs = vecRegs
	default:
		return regalloc.InvalidReg, false
	}
	if idx < 0 || idx >= len(encs) {
		return regalloc.InvalidReg, false
	}
	return mk(encs[idx]), true
}

// ArgRegister returns the register for the idx'th argument of class c, if there is one.
func ArgRegister(cc ir.CallConv, c ValueClass, idx int) (regalloc.RealReg, bool) {
	return slotRegister(cc, c, idx)
}

// RetRegister returns the register for the idx'th return value of class c, if there is one.
func RetRegister(cc ir.CallConv, c ValueClass, idx int) (regalloc.RealReg, bool) {
	return slotRegister(cc, c, idx)
}

func slotFor(cc ir.CallConv, argsOrRets abi.ArgsOrRets, c ValueClass, idx int) (regalloc.RealReg, bool) {
	if argsOrRets == abi.Rets {
		return RetRegister(cc, c, idx)
	}
	return ArgRegister(cc, c, idx)
}

// checkCallConv rejects conventions this target cannot lower.
func checkCallConv(cc ir.CallConv) error {
	switch cc {
	case ir.CallConvSystemV, ir.CallConvTail, ir.CallConvFast, ir.CallConvCold:
		return nil
	case ir.CallConvWinch:
		return abi.Unsupportedf("s390x does not support the '%v' calling convention", cc)
	default:
		return abi.Unsupportedf("unknown calling convention %v", cc)
	}
}
