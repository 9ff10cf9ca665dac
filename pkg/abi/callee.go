package abi

import (
	"math"

	"github.com/xplshn/zabi/pkg/ir"
	"github.com/xplshn/zabi/pkg/regalloc"
)

// SigData is a signature with every parameter and return value assigned a location.
type SigData struct {
	Sig  *ir.Signature
	Args []ABIArg
	Rets []ABIArg

	SizedStackArgSpace uint32
	SizedStackRetSpace uint32

	// StackRetArg indexes Args for the synthesized return-area pointer, or is -1.
	StackRetArg int
}

// NewSigData lowers sig. Returns are assigned first: if any of them lands on the stack, the
// argument list gains a return-area pointer.
func NewSigData[I any](m MachineSpec[I], sig *ir.Signature, flags Flags) (*SigData, error) {
	limit := m.StackArgRetSizeLimit()

	var rets ArgsAccumulator
	retSpace, _, err := m.ComputeArgLocs(sig.CallConv, flags, sig.Returns, Rets, false, &rets)
	if err != nil {
		return nil, err
	}
	if retSpace > limit {
		return nil, ImplLimitf("return area of %d bytes exceeds the %d byte limit", retSpace, limit)
	}

	var args ArgsAccumulator
	argSpace, retArg, err := m.ComputeArgLocs(sig.CallConv, flags, sig.Params, Args, retSpace > 0, &args)
	if err != nil {
		return nil, err
	}
	if argSpace > limit {
		return nil, ImplLimitf("argument area of %d bytes exceeds the %d byte limit", argSpace, limit)
	}

	return &SigData{
		Sig:                sig,
		Args:               args.Args(),
		Rets:               rets.Args(),
		SizedStackArgSpace: argSpace,
		SizedStackRetSpace: retSpace,
		StackRetArg:        retArg,
	}, nil
}

// StackRetAreaArg returns the return-area pointer argument, if the signature needs one.
func (s *SigData) StackRetAreaArg() ABIArg {
	if s.StackRetArg < 0 {
		return nil
	}
	return s.Args[s.StackRetArg]
}

// Callee drives the lowering of one function body's frame: it collects storage requests,
// computes the FrameLayout and assembles the prologue and epilogue.
type Callee[I any] struct {
	m     MachineSpec[I]
	sig   *SigData
	flags Flags

	stackslotsSize   uint64
	spillslots       uint64
	outgoingArgsSize uint32
	tailArgsSize     uint32
	stackLimit       regalloc.RealReg

	layout *FrameLayout
}

func NewCallee[I any](m MachineSpec[I], sig *SigData, flags Flags) (*Callee[I], error) {
	c := &Callee[I]{
		m:            m,
		sig:          sig,
		flags:        flags,
		tailArgsSize: sig.SizedStackArgSpace,
		stackLimit:   regalloc.InvalidReg,
	}
	if idx := sig.Sig.SpecialParamIndex(ir.PurposeStackLimit); idx >= 0 {
		slots, ok := sig.Args[idx].(*Slots)
		if !ok || len(slots.Slots) != 1 {
			return nil, Unsupportedf("stack limit parameter must be passed in a register")
		}
		reg, ok := slots.Slots[0].(RegSlot)
		if !ok {
			return nil, Unsupportedf("stack limit parameter must be passed in a register")
		}
		c.stackLimit = reg.Reg
	}
	return c, nil
}

func (c *Callee[I]) Sig() *SigData { return c.sig }

func (c *Callee[I]) CallConv() ir.CallConv { return c.sig.Sig.CallConv }

// AllocateStackSlot reserves size bytes of explicit stack storage and returns its offset
// within the stack slot area. Sizes accumulate in 64 bits; ComputeFrameLayout rejects
// frames that grew too large.
func (c *Callee[I]) AllocateStackSlot(size, align uint32) int64 {
	if align == 0 {
		align = 1
	}
	off := alignTo64(c.stackslotsSize, uint64(align))
	c.stackslotsSize = off + uint64(size)
	return int64(off)
}

// AllocateSpillSlots reserves n word-sized spill slots and returns the first slot index.
func (c *Callee[I]) AllocateSpillSlots(n uint64) uint64 {
	first := c.spillslots
	c.spillslots += n
	return first
}

// SpillSlotsFor returns the number of spill slots a value of class rc occupies.
func (c *Callee[I]) SpillSlotsFor(rc regalloc.RegClass) uint32 { return c.m.SpillSlotsForClass(rc) }

func (c *Callee[I]) AccumulateOutgoingArgsSize(size uint32) {
	c.outgoingArgsSize = max(c.outgoingArgsSize, size)
}

func (c *Callee[I]) AccumulateTailArgsSize(size uint32) {
	c.tailArgsSize = max(c.tailArgsSize, size)
}

// frameSizeLimit bounds every frame region and the frame total, so that the 32-bit
// arithmetic of the sequencer and the signed SP adjustment cannot overflow.
func (c *Callee[I]) frameSizeLimit() uint64 {
	return min(uint64(c.m.StackArgRetSizeLimit()), math.MaxInt32)
}

// ComputeFrameLayout fixes the frame geometry given the registers the body writes. It fails
// with ErrImplLimitExceeded when the requested storage does not fit a frame.
func (c *Callee[I]) ComputeFrameLayout(clobbered []regalloc.RealReg) (*FrameLayout, error) {
	cc := c.CallConv()
	limit := c.frameSizeLimit()
	word := uint64(c.m.WordBits() / 8)

	stackslots := alignTo64(c.stackslotsSize, word)
	fixed := alignTo64(stackslots+c.spillslots*word, uint64(c.m.StackAlign(cc)))
	if c.spillslots > limit || fixed > limit {
		return nil, ImplLimitf("fixed frame storage of %d bytes exceeds the %d byte limit", fixed, limit)
	}
	if uint64(c.outgoingArgsSize) > limit {
		return nil, ImplLimitf("outgoing argument area of %d bytes exceeds the %d byte limit", c.outgoingArgsSize, limit)
	}

	layout := c.m.ComputeFrameLayout(cc, c.flags, clobbered, c.sig.SizedStackArgSpace,
		c.tailArgsSize, uint32(stackslots), uint32(fixed), c.outgoingArgsSize)
	total := uint64(layout.SetupAreaSize) + uint64(layout.OutgoingArgsSize) +
		uint64(layout.FixedFrameStorageSize) + uint64(layout.ClobberSize)
	if total > limit {
		return nil, ImplLimitf("frame of %d bytes exceeds the %d byte limit", total, limit)
	}
	c.layout = layout
	return layout, nil
}

func (c *Callee[I]) FrameLayout() *FrameLayout {
	if c.layout == nil {
		panic("BUG: frame layout requested before ComputeFrameLayout")
	}
	return c.layout
}

// FrameSize is the number of bytes the prologue allocates.
func (c *Callee[I]) FrameSize() uint32 {
	l := c.FrameLayout()
	return l.SetupAreaSize + l.ActiveSize()
}

func (c *Callee[I]) GenPrologue() []I {
	cc, layout := c.CallConv(), c.FrameLayout()
	insts := c.m.GenPrologueFrameSetup(cc, c.flags, layout)

	frameSize := c.FrameSize()
	if c.stackLimit.Valid() {
		insts = append(insts, c.genStackCheck(frameSize)...)
	}
	if c.flags.EnableProbestack {
		guard := c.flags.ProbestackGuardSize
		if guard == 0 {
			guard = DefaultProbestackGuardSize
		}
		if frameSize >= guard {
			insts = append(insts, c.m.GenInlineProbestack(cc, frameSize, guard)...)
		}
	}
	return append(insts, c.m.GenClobberSave(cc, c.flags, layout)...)
}

const stackCheckGuardFrameSize = 32 * 1024

func (c *Callee[I]) genStackCheck(frameSize uint32) []I {
	if frameSize == 0 {
		return c.m.GenStackLowerBoundTrap(c.stackLimit)
	}
	// limit+frameSize may wrap for big frames, so first check the limit on its own.
	var insts []I
	if frameSize >= stackCheckGuardFrameSize {
		insts = c.m.GenStackLowerBoundTrap(c.stackLimit)
	}
	scratch := c.m.StackLimitReg(c.CallConv())
	insts = append(insts, c.m.GenAddImm(c.CallConv(), scratch, c.stackLimit, frameSize)...)
	return append(insts, c.m.GenStackLowerBoundTrap(scratch)...)
}

func (c *Callee[I]) GenEpilogue() []I {
	cc, layout := c.CallConv(), c.FrameLayout()
	insts := c.m.GenClobberRestore(cc, c.flags, layout)
	insts = append(insts, c.m.GenEpilogueFrameRestore(cc, c.flags, layout)...)
	return append(insts, c.m.GenReturn(cc, c.flags, layout)...)
}
