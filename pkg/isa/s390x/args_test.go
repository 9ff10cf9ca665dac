package s390x

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/xplshn/zabi/pkg/abi"
	"github.com/xplshn/zabi/pkg/ir"
)

func params(tys ...ir.Type) []ir.AbiParam {
	ps := make([]ir.AbiParam, len(tys))
	for i, ty := range tys {
		ps[i] = ir.NewAbiParam(ty)
	}
	return ps
}

func repeat(ty ir.Type, n int) []ir.Type {
	tys := make([]ir.Type, n)
	for i := range tys {
		tys[i] = ty
	}
	return tys
}

type lowered struct {
	args  []abi.ABIArg
	size  uint32
	extra int
}

func computeLocs(t *testing.T, cc ir.CallConv, flags abi.Flags, ps []ir.AbiParam, aor abi.ArgsOrRets, addRet bool) lowered {
	t.Helper()
	var acc abi.ArgsAccumulator
	size, extra, err := MachineDeps{}.ComputeArgLocs(cc, flags, ps, aor, addRet, &acc)
	if err != nil {
		t.Fatalf("ComputeArgLocs: %v", err)
	}
	return lowered{args: acc.Args(), size: size, extra: extra}
}

func singleSlot(t *testing.T, arg abi.ABIArg) abi.ABIArgSlot {
	t.Helper()
	s, ok := arg.(*abi.Slots)
	if !ok || len(s.Slots) != 1 {
		t.Fatalf("expected one slot, got %v", arg)
	}
	return s.Slots[0]
}

func TestStandardConventionSpillsFifthInt(t *testing.T) {
	got := computeLocs(t, ir.CallConvSystemV, abi.DefaultFlags(), params(repeat(ir.I64, 6)...), abi.Args, false)

	want := []abi.ABIArgSlot{
		abi.RegSlot{Reg: Gpr(2), Ty: ir.I64},
		abi.RegSlot{Reg: Gpr(3), Ty: ir.I64},
		abi.RegSlot{Reg: Gpr(4), Ty: ir.I64},
		abi.RegSlot{Reg: Gpr(5), Ty: ir.I64},
		abi.StackSlot{Offset: 0, Ty: ir.I64},
		abi.StackSlot{Offset: 8, Ty: ir.I64},
	}
	var slots []abi.ABIArgSlot
	for _, a := range got.args {
		slots = append(slots, singleSlot(t, a))
	}
	if diff := cmp.Diff(want, slots); diff != "" {
		t.Fatalf("slots mismatch (-want +got):\n%s", diff)
	}
	if got.size != 16 {
		t.Fatalf("stack size = %d, want 16", got.size)
	}
	if got.extra != -1 {
		t.Fatalf("return-area pointer index = %d, want -1", got.extra)
	}
}

func TestRegisterOnlySignatureUsesNoStack(t *testing.T) {
	for _, cc := range []ir.CallConv{ir.CallConvSystemV, ir.CallConvTail, ir.CallConvFast, ir.CallConvCold} {
		tys := append(repeat(ir.I32, 4), ir.F64, ir.F32, ir.F16, ir.F64)
		tys = append(tys, repeat(ir.I32X4, 8)...)
		got := computeLocs(t, cc, abi.DefaultFlags(), params(tys...), abi.Args, false)
		if got.size != 0 {
			t.Fatalf("%v: stack size = %d, want 0", cc, got.size)
		}
		for i, a := range got.args {
			if _, ok := singleSlot(t, a).(abi.RegSlot); !ok {
				t.Fatalf("%v: arg %d not in a register: %v", cc, i, a)
			}
		}
	}
}

func TestIntArgsRoundTrip(t *testing.T) {
	cases := map[ir.CallConv]int{ir.CallConvSystemV: 4, ir.CallConvTail: 6}
	for cc, n := range cases {
		for k := 0; k <= n; k++ {
			got := computeLocs(t, cc, abi.DefaultFlags(), params(repeat(ir.I64, k)...), abi.Args, false)
			if got.size != 0 || len(got.args) != k {
				t.Fatalf("%v with %d ints: size=%d args=%d", cc, k, got.size, len(got.args))
			}
			for i, a := range got.args {
				reg, ok := singleSlot(t, a).(abi.RegSlot)
				if !ok || reg.Reg != Gpr(uint8(2+i)) {
					t.Fatalf("%v arg %d = %v, want %s", cc, i, a, RegName(Gpr(uint8(2+i))))
				}
			}
		}
	}
}

func TestReturnAreaPointerTakesR2(t *testing.T) {
	got := computeLocs(t, ir.CallConvSystemV, abi.DefaultFlags(), params(ir.I64, ir.I32), abi.Args, true)
	if len(got.args) != 3 || got.extra != 2 {
		t.Fatalf("args=%d extra=%d, want 3 and 2", len(got.args), got.extra)
	}
	for i, want := range []uint8{3, 4, 2} {
		reg := singleSlot(t, got.args[i]).(abi.RegSlot)
		if reg.Reg != Gpr(want) {
			t.Fatalf("arg %d in %s, want %s", i, RegName(reg.Reg), RegName(Gpr(want)))
		}
	}
	if ptr := singleSlot(t, got.args[2]).(abi.RegSlot); ptr.Ty != ir.I64 {
		t.Fatalf("return-area pointer type = %v, want i64", ptr.Ty)
	}
}

func TestNarrowStackArgsJustification(t *testing.T) {
	ps := params(repeat(ir.I64, 4)...)
	ps = append(ps, ir.NewAbiParam(ir.I8), ir.AbiParam{ValueType: ir.I8, Extension: ir.ExtSext})
	got := computeLocs(t, ir.CallConvSystemV, abi.DefaultFlags(), ps, abi.Args, false)

	if off := singleSlot(t, got.args[4]).(abi.StackSlot).Offset; off != 7 {
		t.Fatalf("unextended i8 at %d, want 7", off)
	}
	if off := singleSlot(t, got.args[5]).(abi.StackSlot).Offset; off != 8 {
		t.Fatalf("extended i8 at %d, want 8", off)
	}
	if got.size != 16 {
		t.Fatalf("stack size = %d, want 16", got.size)
	}
}

func TestStackOffsetsMonotoneAndAligned(t *testing.T) {
	ps := params(repeat(ir.I64, 4)...)
	ps = append(ps, ir.NewAbiParam(ir.I32), ir.AbiParam{ValueType: ir.I16, Extension: ir.ExtUext})
	ps = append(ps, params(repeat(ir.F32, 6)...)...)
	ps = append(ps, params(repeat(ir.F64X2, 10)...)...)
	ps = append(ps, ir.NewAbiParam(ir.I8))

	got := computeLocs(t, ir.CallConvSystemV, abi.DefaultFlags(), ps, abi.Args, false)
	last := int64(-1)
	for i, a := range got.args {
		s, ok := singleSlot(t, a).(abi.StackSlot)
		if !ok {
			continue
		}
		size := int64(s.Ty.Bytes())
		slotSize := max(size, 8)
		start := s.Offset
		if size < slotSize && s.Ext == ir.ExtNone {
			start -= slotSize - size
		}
		if start%min(slotSize, 8) != 0 {
			t.Fatalf("arg %d slot at %d is misaligned", i, start)
		}
		if s.Offset < last {
			t.Fatalf("arg %d at %d precedes previous offset %d", i, s.Offset, last)
		}
		last = s.Offset
	}
	if got.size%8 != 0 {
		t.Fatalf("stack size %d not word aligned", got.size)
	}
}

func TestTailConventionSaveAreaAddend(t *testing.T) {
	regsOnly := computeLocs(t, ir.CallConvTail, abi.DefaultFlags(), params(repeat(ir.I64, 6)...), abi.Args, false)
	if regsOnly.size != 0 {
		t.Fatalf("register-only tail args: size %d, want 0", regsOnly.size)
	}

	spilled := computeLocs(t, ir.CallConvTail, abi.DefaultFlags(), params(repeat(ir.I64, 7)...), abi.Args, false)
	if spilled.size != 8+RegSaveAreaSize {
		t.Fatalf("tail args with one stack slot: size %d, want %d", spilled.size, 8+RegSaveAreaSize)
	}
	if off := singleSlot(t, spilled.args[6]).(abi.StackSlot).Offset; off != 0 {
		t.Fatalf("seventh tail arg at %d, want 0", off)
	}

	flags := abi.DefaultFlags()
	flags.EnableMultiRetImplicitSret = true
	rets := computeLocs(t, ir.CallConvTail, flags, params(repeat(ir.I64, 7)...), abi.Rets, false)
	if rets.size != 8 {
		t.Fatalf("tail return area: size %d, want 8", rets.size)
	}
}

func TestImplicitReferenceArgs(t *testing.T) {
	got := computeLocs(t, ir.CallConvSystemV, abi.DefaultFlags(), params(ir.I128), abi.Args, false)
	want := &abi.ImplicitPtrArg{
		Pointer: abi.RegSlot{Reg: Gpr(2), Ty: ir.I64},
		Offset:  0,
		Ty:      ir.I128,
	}
	if diff := cmp.Diff(abi.ABIArg(want), got.args[0]); diff != "" {
		t.Fatalf("implicit ref mismatch (-want +got):\n%s", diff)
	}
	if got.size != 16 {
		t.Fatalf("stack size = %d, want 16", got.size)
	}

	tys := append(repeat(ir.I64, 4), ir.F128, ir.I64)
	got = computeLocs(t, ir.CallConvSystemV, abi.DefaultFlags(), params(tys...), abi.Args, false)
	ptr := got.args[4].(*abi.ImplicitPtrArg)
	if s, ok := ptr.Pointer.(abi.StackSlot); !ok || s.Offset != 0 {
		t.Fatalf("pointer of fifth arg = %v, want stack offset 0", ptr.Pointer)
	}
	if ptr.Offset != 16 {
		t.Fatalf("buffer offset = %d, want 16 after both stack slots", ptr.Offset)
	}
	if got.size != 32 {
		t.Fatalf("stack size = %d, want 32", got.size)
	}
}

func TestArgLocErrors(t *testing.T) {
	var acc abi.ArgsAccumulator
	m := MachineDeps{}

	structArg := []ir.AbiParam{{ValueType: ir.I64, Purpose: ir.PurposeStructArgument, StructSize: 24}}
	if _, _, err := m.ComputeArgLocs(ir.CallConvSystemV, abi.DefaultFlags(), structArg, abi.Args, false, &acc); !errors.Is(err, abi.ErrUnsupported) {
		t.Fatalf("struct argument: err = %v, want ErrUnsupported", err)
	}
	if _, _, err := m.ComputeArgLocs(ir.CallConvWinch, abi.DefaultFlags(), nil, abi.Args, false, &acc); !errors.Is(err, abi.ErrUnsupported) {
		t.Fatalf("winch: err = %v, want ErrUnsupported", err)
	}
	if _, _, err := m.ComputeArgLocs(ir.CallConvSystemV, abi.DefaultFlags(), params(repeat(ir.I64, 5)...), abi.Rets, false, &acc); !errors.Is(err, abi.ErrUnsupported) {
		t.Fatalf("five returns: err = %v, want ErrUnsupported", err)
	}
}

func TestReturnsForcedToMemory(t *testing.T) {
	flags := abi.DefaultFlags()
	flags.EnableMultiRetImplicitSret = true
	got := computeLocs(t, ir.CallConvSystemV, flags, params(ir.I128, ir.I64), abi.Rets, false)
	if s, ok := singleSlot(t, got.args[0]).(abi.StackSlot); !ok || s.Offset != 0 || s.Ty != ir.I128 {
		t.Fatalf("i128 return = %v, want stack slot 0", got.args[0])
	}
	if r, ok := singleSlot(t, got.args[1]).(abi.RegSlot); !ok || r.Reg != Gpr(2) {
		t.Fatalf("i64 return = %v, want R2", got.args[1])
	}
	if got.size != 16 {
		t.Fatalf("return area = %d, want 16", got.size)
	}
}

func TestClassOf(t *testing.T) {
	cases := map[ir.Type]ValueClass{
		ir.I8: ClassInt, ir.I64: ClassInt, ir.F16: ClassFloat, ir.F64: ClassFloat,
		ir.I8X16: ClassVector, ir.F64X2: ClassVector,
		ir.I128: ClassNone, ir.F128: ClassNone, ir.I32X2: ClassNone,
	}
	for ty, want := range cases {
		if got := ClassOf(ty); got != want {
			t.Errorf("ClassOf(%v) = %v, want %v", ty, got, want)
		}
	}
	if r, ok := ArgRegister(ir.CallConvTail, ClassInt, 5); !ok || r != Gpr(7) {
		t.Errorf("tail int arg 5 = %v %v, want R7", r, ok)
	}
	if _, ok := ArgRegister(ir.CallConvSystemV, ClassInt, 4); ok {
		t.Error("standard convention has only four integer argument registers")
	}
	if r, ok := RetRegister(ir.CallConvSystemV, ClassFloat, 3); !ok || r != Vr(6) {
		t.Errorf("float ret 3 = %v %v, want F6", r, ok)
	}
}
