package s390x

import (
	"fmt"
	"strings"

	"github.com/xplshn/zabi/pkg/ir"
	"github.com/xplshn/zabi/pkg/regalloc"
)

// Symbolic frame addresses print against the FP and SP pseudo registers.
func (m MemArg) String() string {
	switch m.Kind {
	case MemIncomingArgOffset: return fmt.Sprintf("arg%+d(FP)", m.Disp)
	case MemSlotOffset: return fmt.Sprintf("slot%+d(SP)", m.Disp)
	case MemOutgoingArgOffset: return fmt.Sprintf("out%+d(SP)", m.Disp)
	case MemSpillOffset: return fmt.Sprintf("spill%+d(SP)", m.Disp)
	}
	if m.Index.Valid() && m.Index != ZeroReg {
		return fmt.Sprintf("%d(%s)(%s)", m.Disp, RegName(m.Index), RegName(m.Base))
	}
	return fmt.Sprintf("%d(%s)", m.Disp, RegName(m.Base))
}

// String renders the instruction in Go assembler syntax: sources first, destination last.
// A few kinds expand to several lines.
func (i *Inst) String() string {
	switch i.Kind {
	case Move: return fmt.Sprintf("%s %s, %s", moveOp(i.Ty), operandName(i.Rn, i.Ty), operandName(i.Rd, i.Ty))
	case Mov32SImm16: return fmt.Sprintf("LHI $%d, %s", i.Imm, RegName(i.Rd))
	case Mov32Imm: return fmt.Sprintf("IILF $%d, %s", i.Imm, RegName(i.Rd))
	case LoadAddr:
		op := "LA"
		if i.Mem.Kind == MemBXD20 {
			op = "LAY"
		}
		return fmt.Sprintf("%s %v, %s", op, i.Mem, RegName(i.Rd))
	case AluRSImm16: return fmt.Sprintf("AGHI $%d, %s", i.Imm, RegName(i.Rd))
	case AluRSImm32: return fmt.Sprintf("AGFI $%d, %s", i.Imm, RegName(i.Rd))
	case AluRUImm32: return fmt.Sprintf("ALGFI $%d, %s", i.Imm, RegName(i.Rd))
	case StoreMultiple64: return fmt.Sprintf("STMG %s, %s, %v", RegName(i.Rd), RegName(i.Rt2), i.Mem)
	case LoadMultiple64: return fmt.Sprintf("LMG %v, %s, %s", i.Mem, RegName(i.Rd), RegName(i.Rt2))
	case Store64: return fmt.Sprintf("STG %s, %v", RegName(i.Rn), i.Mem)
	case StoreImm8: return fmt.Sprintf("MVI $%d, %v", i.Imm, i.Mem)
	case Load: return loadString(i)
	case Store: return storeString(i)
	case VecStoreLane: return fmt.Sprintf("VSTEG $%d, %v, %s", i.Lane, i.Mem, VecName(i.Rn))
	case VecLoadLaneUndef: return fmt.Sprintf("VLEG $%d, %v, %s", i.Lane, i.Mem, VecName(i.Rd))
	case VecEltRev: return eltRevString(i)
	case StackProbeLoop:
		return fmt.Sprintf("AGHI $%d, %s\nMVI $0, 0(%s)\nBRCTG %s, -2(PC)",
			-i.Imm, RegName(StackReg), RegName(StackReg), RegName(i.Rd))
	case CmpTrapRR: return fmt.Sprintf("CLGRTLE %s, %s // stack overflow", RegName(i.Rd), RegName(i.Rn))
	case Extend: return fmt.Sprintf("%s %s, %s", extendOp(i), RegName(i.Rn), RegName(i.Rd))
	case Ret: return fmt.Sprintf("BR %s", RegName(i.Rn))
	case Unwind: return "// unwind: " + i.Unwind.String()
	}
	return fmt.Sprintf("<inst %d>", i.Kind)
}

func operandName(r regalloc.RealReg, ty ir.Type) string {
	if ty.IsInt() || ty.IsFloat() {
		return RegName(r)
	}
	return VecName(r)
}

func moveOp(ty ir.Type) string {
	switch {
	case ty == ir.I64: return "LGR"
	case ty.IsInt(): return "LR"
	case ty == ir.F32 || ty == ir.F16: return "LER"
	case ty == ir.F64: return "LDR"
	default: return "VLR"
	}
}

func loadString(i *Inst) string {
	switch i.Ty {
	case ir.I8: return fmt.Sprintf("LLGC %v, %s", i.Mem, RegName(i.Rd))
	case ir.I16: return fmt.Sprintf("LLGH %v, %s", i.Mem, RegName(i.Rd))
	case ir.I32: return fmt.Sprintf("LLGF %v, %s", i.Mem, RegName(i.Rd))
	case ir.I64: return fmt.Sprintf("LG %v, %s", i.Mem, RegName(i.Rd))
	case ir.F16: return fmt.Sprintf("VLEH $0, %v, %s", i.Mem, VecName(i.Rd))
	case ir.F32: return fmt.Sprintf("LE %v, %s", i.Mem, RegName(i.Rd))
	case ir.F64: return fmt.Sprintf("LD %v, %s", i.Mem, RegName(i.Rd))
	}
	return fmt.Sprintf("VL %v, %s", i.Mem, VecName(i.Rd))
}

func storeString(i *Inst) string {
	switch i.Ty {
	case ir.I8: return fmt.Sprintf("STC %s, %v", RegName(i.Rn), i.Mem)
	case ir.I16: return fmt.Sprintf("STH %s, %v", RegName(i.Rn), i.Mem)
	case ir.I32: return fmt.Sprintf("ST %s, %v", RegName(i.Rn), i.Mem)
	case ir.I64: return fmt.Sprintf("STG %s, %v", RegName(i.Rn), i.Mem)
	case ir.F16: return fmt.Sprintf("VSTEH $0, %v, %s", i.Mem, VecName(i.Rn))
	case ir.F32: return fmt.Sprintf("STE %s, %v", RegName(i.Rn), i.Mem)
	case ir.F64: return fmt.Sprintf("STD %s, %v", RegName(i.Rn), i.Mem)
	}
	return fmt.Sprintf("VST %s, %v", VecName(i.Rn), i.Mem)
}

// eltRevString swaps doublewords, then rotates within ever smaller elements.
func eltRevString(i *Inst) string {
	rd, rn := VecName(i.Rd), VecName(i.Rn)
	lines := []string{fmt.Sprintf("VPDI $4, %s, %s, %s", rn, rn, rd)}
	for _, step := range []struct {
		lanes uint32
		op    string
		amt   int
	}{{4, "VERLLG", 32}, {8, "VERLLF", 16}, {16, "VERLLH", 8}} {
		if i.Lane < step.lanes {
			break
		}
		lines = append(lines, fmt.Sprintf("%s $%d, %s, %s", step.op, step.amt, rd, rd))
	}
	return strings.Join(lines, "\n")
}

func extendOp(i *Inst) string {
	wide := i.ToBits > 32
	switch {
	case i.FromBits == 8 && i.Signed && wide: return "LGBR"
	case i.FromBits == 8 && i.Signed: return "LBR"
	case i.FromBits == 8 && wide: return "LLGCR"
	case i.FromBits == 8: return "LLCR"
	case i.FromBits == 16 && i.Signed && wide: return "LGHR"
	case i.FromBits == 16 && i.Signed: return "LHR"
	case i.FromBits == 16 && wide: return "LLGHR"
	case i.FromBits == 16: return "LLHR"
	case i.FromBits == 32 && i.Signed: return "LGFR"
	case i.FromBits == 32: return "LLGFR"
	}
	panic(fmt.Sprintf("BUG: unsupported extension from %d to %d bits", i.FromBits, i.ToBits))
}
