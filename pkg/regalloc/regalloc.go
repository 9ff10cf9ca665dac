// Package regalloc holds the register model shared between ABI lowering and the register
// allocator: physical registers, register classes, register sets and the machine environment.
package regalloc

import (
	"fmt"
	"math/bits"
	"strings"
)

// RegClass is the allocation class of a physical register.
type RegClass uint8

const (
	ClassInt RegClass = iota
	ClassFloat
	ClassVector
	NumRegClass
)

func (c RegClass) String() string {
	switch c {
	case ClassInt:
		return "int"
	case ClassFloat:
		return "float"
	case ClassVector:
		return "vector"
	default:
		return fmt.Sprintf("class(%d)", uint8(c))
	}
}

const maxHwEnc = 63

// RealReg is a physical register: its class in the top two bits, its hardware encoding below.
// Ordering RealReg values orders by class first, then by encoding.
type RealReg uint8

// InvalidReg marks the absence of a register (e.g. no index register in an address).
const InvalidReg RealReg = 0xff

func NewRealReg(class RegClass, hwEnc uint8) RealReg {
	if class >= NumRegClass || hwEnc > maxHwEnc {
		panic(fmt.Sprintf("BUG: register out of range: class=%d enc=%d", class, hwEnc))
	}
	return RealReg(uint8(class)<<6 | hwEnc)
}

func (r RealReg) Valid() bool      { return r != InvalidReg }
func (r RealReg) Class() RegClass  { return RegClass(r >> 6) }
func (r RealReg) HwEnc() uint8     { return uint8(r) & maxHwEnc }

func (r RealReg) String() string {
	if !r.Valid() {
		return "invalid"
	}
	return fmt.Sprintf("p%d%c", r.HwEnc(), "ifv"[r.Class()])
}

// PRegSet is an immutable bitset of physical registers. Builder methods return copies.
type PRegSet struct{ bits [NumRegClass]uint64 }

func NewPRegSet(regs ...RealReg) PRegSet {
	var s PRegSet
	for _, r := range regs {
		s = s.With(r)
	}
	return s
}

func (s PRegSet) With(r RealReg) PRegSet {
	s.bits[r.Class()] |= 1 << r.HwEnc()
	return s
}

func (s PRegSet) Without(r RealReg) PRegSet {
	s.bits[r.Class()] &^= 1 << r.HwEnc()
	return s
}

func (s PRegSet) Union(o PRegSet) PRegSet {
	for i := range s.bits {
		s.bits[i] |= o.bits[i]
	}
	return s
}

func (s PRegSet) Contains(r RealReg) bool {
	return r.Valid() && s.bits[r.Class()]&(1<<r.HwEnc()) != 0
}

func (s PRegSet) Len() int {
	n := 0
	for _, b := range s.bits {
		n += bits.OnesCount64(b)
	}
	return n
}

// Regs lists the members in ascending order.
func (s PRegSet) Regs() []RealReg {
	out := make([]RealReg, 0, s.Len())
	for c, b := range s.bits {
		for b != 0 {
			enc := bits.TrailingZeros64(b)
			out = append(out, NewRealReg(RegClass(c), uint8(enc)))
			b &= b - 1
		}
	}
	return out
}

func (s PRegSet) String() string {
	regs := s.Regs()
	names := make([]string, len(regs))
	for i, r := range regs {
		names[i] = r.String()
	}
	return "{" + strings.Join(names, ", ") + "}"
}

// MachineEnv tells the register allocator which registers it may use, per class.
type MachineEnv struct {
	PreferredRegsByClass    [NumRegClass][]RealReg
	NonPreferredRegsByClass [NumRegClass][]RealReg
	ScratchByClass          [NumRegClass]RealReg
	FixedStackSlots         []RealReg
}

// Allocatable returns the union of preferred and non-preferred registers of every class.
func (e *MachineEnv) Allocatable() PRegSet {
	var s PRegSet
	for c := range e.PreferredRegsByClass {
		for _, r := range e.PreferredRegsByClass[c] {
			s = s.With(r)
		}
		for _, r := range e.NonPreferredRegsByClass[c] {
			s = s.With(r)
		}
	}
	return s
}

// Allocation is where the register allocator placed a value: a register or a spill slot.
type Allocation struct {
	reg   RealReg
	slot  int
	spill bool
}

func AllocReg(r RealReg) Allocation  { return Allocation{reg: r} }
func AllocSpill(slot int) Allocation { return Allocation{reg: InvalidReg, slot: slot, spill: true} }

func (a Allocation) AsReg() (RealReg, bool) { return a.reg, !a.spill }

func (a Allocation) AsSpillSlot() (int, bool) { return a.slot, a.spill }

func (a Allocation) String() string {
	if a.spill {
		return fmt.Sprintf("spill%d", a.slot)
	}
	return a.reg.String()
}
