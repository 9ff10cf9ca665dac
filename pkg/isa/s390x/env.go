package s390x

import (
	"fmt"

	"github.com/xplshn/zabi/pkg/abi"
	"github.com/xplshn/zabi/pkg/ir"
	"github.com/xplshn/zabi/pkg/regalloc"
)

var (
	sysvEnv abi.OnceCell[regalloc.MachineEnv]
	tailEnv abi.OnceCell[regalloc.MachineEnv]

	sysvClobbers abi.OnceCell[regalloc.PRegSet]
	tailClobbers abi.OnceCell[regalloc.PRegSet]
	allClobbers  abi.OnceCell[regalloc.PRegSet]

	payloadRegs = []regalloc.RealReg{Gpr(6), Gpr(7)}
)

func gprRange(lo, hi uint8) []regalloc.RealReg {
	var regs []regalloc.RealReg
	for i := lo; i <= hi; i++ {
		regs = append(regs, Gpr(i))
	}
	return regs
}

func vrRange(lo, hi uint8) []regalloc.RealReg {
	var regs []regalloc.RealReg
	for i := lo; i <= hi; i++ {
		regs = append(regs, Vr(i))
	}
	return regs
}

// newMachineEnv builds the allocator's view for a convention whose argument GPRs end at
// lastArgGpr. %r0 is unusable for addressing, %r1 is the spill temp and %r15 is SP.
func newMachineEnv(lastArgGpr uint8) regalloc.MachineEnv {
	var env regalloc.MachineEnv
	env.PreferredRegsByClass[regalloc.ClassInt] = gprRange(2, lastArgGpr)
	env.NonPreferredRegsByClass[regalloc.ClassInt] = gprRange(lastArgGpr+1, 14)
	env.PreferredRegsByClass[regalloc.ClassFloat] = append(vrRange(0, 7), vrRange(16, 31)...)
	env.NonPreferredRegsByClass[regalloc.ClassFloat] = vrRange(8, 15)
	for c := range env.ScratchByClass {
		env.ScratchByClass[c] = regalloc.InvalidReg
	}
	return env
}

// MachineEnv returns the shared, read-only allocator environment for cc.
func (MachineDeps) MachineEnv(_ abi.Flags, cc ir.CallConv) *regalloc.MachineEnv {
	if cc == ir.CallConvTail {
		return tailEnv.Get(func() regalloc.MachineEnv { return newMachineEnv(7) })
	}
	return sysvEnv.Get(func() regalloc.MachineEnv { return newMachineEnv(5) })
}

// newClobbers is every GPR up to lastGpr plus all vector registers. Only the high halves of
// %v8-%v15 are caller-saved, but the allocator cannot describe partial registers.
func newClobbers(lastGpr uint8) regalloc.PRegSet {
	return regalloc.NewPRegSet(append(gprRange(0, lastGpr), vrRange(0, 31)...)...)
}

func (MachineDeps) RegsClobberedByCall(cc ir.CallConv, isException bool) regalloc.PRegSet {
	switch {
	case cc == ir.CallConvTail && isException:
		return *allClobbers.Get(func() regalloc.PRegSet { return newClobbers(15) })
	case cc == ir.CallConvTail:
		return *tailClobbers.Get(func() regalloc.PRegSet { return newClobbers(7) })
	default:
		return *sysvClobbers.Get(func() regalloc.PRegSet { return newClobbers(5) })
	}
}

// ExceptionPayloadRegs returns the registers carrying exception state into a landing pad.
// The slice is shared and must not be modified.
func (MachineDeps) ExceptionPayloadRegs(cc ir.CallConv) []regalloc.RealReg {
	switch cc {
	case ir.CallConvSystemV, ir.CallConvTail:
		return payloadRegs
	}
	return nil
}

// SpillSlotsForClass counts 8-byte slots; a float class register spills all 128 bits.
func (MachineDeps) SpillSlotsForClass(rc regalloc.RegClass) uint32 {
	switch rc {
	case regalloc.ClassInt: return 1
	case regalloc.ClassFloat: return 2
	default: panic(fmt.Sprintf("BUG: register class %v is not used on s390x", rc))
	}
}
