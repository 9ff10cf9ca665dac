package s390x

import (
	"fmt"

	"github.com/xplshn/zabi/pkg/abi"
	"github.com/xplshn/zabi/pkg/ir"
)

// StackArgRetSizeLimit bounds the argument and return areas so that offset arithmetic
// stays well inside 32 bits.
const StackArgRetSizeLimit = 128 * 1024 * 1024

func alignTo64(n, align uint64) uint64 { return (n + align - 1) &^ (align - 1) }

// ComputeArgLocs assigns a location to every parameter (or return value) in params, left to
// right, and appends it to acc. It returns the size of the stack area and the index in acc of
// the return-area pointer, or -1.
func (MachineDeps) ComputeArgLocs(cc ir.CallConv, flags abi.Flags, params []ir.AbiParam,
	argsOrRets abi.ArgsOrRets, addRetAreaPtr bool, acc *abi.ArgsAccumulator) (uint32, int, error) {
	if err := checkCallConv(cc); err != nil {
		return 0, -1, err
	}

	var next [numValueClasses]int
	var nextStack uint64

	var retAreaPtr abi.ABIArg
	if addRetAreaPtr {
		if argsOrRets != abi.Args {
			panic("BUG: return-area pointer requested for return values")
		}
		reg, _ := ArgRegister(cc, ClassInt, 0)
		next[ClassInt]++
		retAreaPtr = abi.RegArg(reg, ir.I64, ir.ExtNone, ir.PurposeNormal)
	}

	for _, param := range params {
		if param.Purpose == ir.PurposeStructArgument {
			return 0, -1, abi.Unsupportedf("struct arguments are not supported on s390x, pass a pointer instead")
		}

		class := ClassOf(param.ValueType)
		forceStack := false
		implicitRef := ir.TypeInvalid
		if class == ClassNone {
			class = ClassInt
			if argsOrRets == abi.Rets {
				forceStack = true
			} else {
				implicitRef = param.ValueType
				param = ir.NewAbiParam(ir.I64)
			}
		}

		var slot abi.ABIArgSlot
		if reg, ok := slotFor(cc, argsOrRets, class, next[class]); ok && !forceStack {
			next[class]++
			slot = abi.RegSlot{Reg: reg, Ty: param.ValueType, Ext: param.Extension}
		} else {
			if argsOrRets == abi.Rets && !flags.EnableMultiRetImplicitSret {
				return 0, -1, abi.Unsupportedf("too many return values to fit in registers, use a struct return argument instead")
			}
			size := uint64(param.ValueType.Bytes())
			slotSize := max(size, 8)
			if slotSize&(slotSize-1) != 0 {
				panic(fmt.Sprintf("BUG: stack slot size %d of %v is not a power of two", slotSize, param.ValueType))
			}
			nextStack = alignTo64(nextStack, min(slotSize, 8))

			// Narrow unextended values are right-justified in their slot.
			off := uint64(0)
			if size < slotSize && param.Extension == ir.ExtNone {
				off = slotSize - size
			}
			slot = abi.StackSlot{Offset: int64(nextStack + off), Ty: param.ValueType, Ext: param.Extension}
			nextStack += slotSize
		}

		if implicitRef != ir.TypeInvalid {
			if implicitRef.Bytes()%8 != 0 {
				panic(fmt.Sprintf("BUG: implicit argument %v is not a multiple of 8 bytes", implicitRef))
			}
			acc.Push(&abi.ImplicitPtrArg{Pointer: slot, Ty: implicitRef, Purpose: param.Purpose})
		} else {
			acc.Push(&abi.Slots{Slots: []abi.ABIArgSlot{slot}, Purpose: param.Purpose})
		}
	}

	nextStack = alignTo64(nextStack, 8)

	extra := -1
	if retAreaPtr != nil {
		acc.PushNonFormal(retAreaPtr)
		extra = acc.Len() - 1
	}

	// Buffers for implicit references go after every fixed location.
	for _, arg := range acc.Args() {
		switch arg := arg.(type) {
		case *abi.ImplicitPtrArg:
			arg.Offset = int64(nextStack)
			nextStack += uint64(arg.Ty.Bytes())
		case *abi.Slots:
		default:
			panic(fmt.Sprintf("BUG: unhandled argument kind %T", arg))
		}
	}

	// Tail-call arguments live in the callee's frame, so the callee's register save area
	// sits between them and the return buffer.
	if cc == ir.CallConvTail && argsOrRets == abi.Args && nextStack != 0 {
		nextStack += RegSaveAreaSize
	}

	if nextStack > StackArgRetSizeLimit {
		return 0, -1, abi.ImplLimitf("%s area of %d bytes exceeds the %d byte limit", argsOrRets, nextStack, StackArgRetSizeLimit)
	}
	return uint32(nextStack), extra, nil
}
