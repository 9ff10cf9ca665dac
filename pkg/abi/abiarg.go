// Package abi contains the architecture-independent half of ABI lowering: the argument
// location model, the frame layout record, unwind directives and the MachineSpec policy
// interface that each target implements.
package abi

import (
	"fmt"

	"github.com/xplshn/zabi/pkg/ir"
	"github.com/xplshn/zabi/pkg/regalloc"
)

// ArgsOrRets selects whether a descriptor list holds parameters or return values.
type ArgsOrRets uint8

const (
	Args ArgsOrRets = iota
	Rets
)

func (a ArgsOrRets) String() string {
	if a == Rets {
		return "rets"
	}
	return "args"
}

// ABIArgSlot is one piece of an argument: either a register or a stack slot.
type ABIArgSlot interface {
	isABIArgSlot()
	String() string
}

type RegSlot struct {
	Reg regalloc.RealReg
	Ty  ir.Type
	Ext ir.ArgumentExtension
}

// StackSlot offsets are relative to the start of the argument (or return) area.
type StackSlot struct {
	Offset int64
	Ty     ir.Type
	Ext    ir.ArgumentExtension
}

func (RegSlot) isABIArgSlot()   {}
func (StackSlot) isABIArgSlot() {}

func (s RegSlot) String() string   { return fmt.Sprintf("reg(%v, %v%s)", s.Reg, s.Ty, extSuffix(s.Ext)) }
func (s StackSlot) String() string { return fmt.Sprintf("stack(%d, %v%s)", s.Offset, s.Ty, extSuffix(s.Ext)) }

func extSuffix(e ir.ArgumentExtension) string {
	if e == ir.ExtNone {
		return ""
	}
	return " " + e.String()
}

// ABIArg is the location of one formal parameter or return value.
type ABIArg interface {
	isABIArg()
	ArgPurpose() ir.ArgumentPurpose
	String() string
}

// Slots is a value held in one or more register or stack slots.
type Slots struct {
	Slots   []ABIArgSlot
	Purpose ir.ArgumentPurpose
}

// ImplicitPtrArg is a value passed by reference: the caller copies it into a buffer at
// Offset within the argument area and passes the buffer's address in Pointer.
type ImplicitPtrArg struct {
	Pointer ABIArgSlot
	Offset  int64
	Ty      ir.Type
	Purpose ir.ArgumentPurpose
}

func (*Slots) isABIArg()          {}
func (*ImplicitPtrArg) isABIArg() {}

func (a *Slots) ArgPurpose() ir.ArgumentPurpose          { return a.Purpose }
func (a *ImplicitPtrArg) ArgPurpose() ir.ArgumentPurpose { return a.Purpose }

func (a *Slots) String() string {
	s := "slots["
	for i, slot := range a.Slots {
		if i > 0 {
			s += ", "
		}
		s += slot.String()
	}
	return s + "]"
}

func (a *ImplicitPtrArg) String() string {
	return fmt.Sprintf("implicit_ptr(%v, buffer=%d, %v)", a.Pointer, a.Offset, a.Ty)
}

// RegArg builds a single-register argument.
func RegArg(reg regalloc.RealReg, ty ir.Type, ext ir.ArgumentExtension, purpose ir.ArgumentPurpose) ABIArg {
	return &Slots{Slots: []ABIArgSlot{RegSlot{Reg: reg, Ty: ty, Ext: ext}}, Purpose: purpose}
}

// ArgsAccumulator collects the locations computed for one descriptor list.
type ArgsAccumulator struct {
	args      []ABIArg
	nonFormal int
}

func (a *ArgsAccumulator) Push(arg ABIArg) { a.args = append(a.args, arg) }

// PushNonFormal appends an argument the signature does not list, such as a return-area pointer.
func (a *ArgsAccumulator) PushNonFormal(arg ABIArg) {
	a.args = append(a.args, arg)
	a.nonFormal++
}

func (a *ArgsAccumulator) Args() []ABIArg { return a.args }

func (a *ArgsAccumulator) Len() int { return len(a.args) }

// StackAMode addresses a stack location before the final frame layout is known.
type StackAMode interface {
	isStackAMode()
	String() string
}

// IncomingArg addresses an incoming argument; StackArgsSize is the size of the whole
// incoming area so targets can address it from the top.
type IncomingArg struct {
	Off           int64
	StackArgsSize uint32
}

type Slot struct{ Off int64 }

type OutgoingArg struct{ Off int64 }

func (IncomingArg) isStackAMode() {}
func (Slot) isStackAMode()        {}
func (OutgoingArg) isStackAMode() {}

func (m IncomingArg) String() string { return fmt.Sprintf("incoming_arg(%d, %d)", m.Off, m.StackArgsSize) }
func (m Slot) String() string        { return fmt.Sprintf("slot(%d)", m.Off) }
func (m OutgoingArg) String() string { return fmt.Sprintf("outgoing_arg(%d)", m.Off) }
