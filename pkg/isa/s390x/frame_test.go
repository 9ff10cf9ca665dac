package s390x

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/xplshn/zabi/pkg/abi"
	"github.com/xplshn/zabi/pkg/ir"
	"github.com/xplshn/zabi/pkg/regalloc"
)

func layoutFor(cc ir.CallConv, flags abi.Flags, clobbered []regalloc.RealReg, incoming, tail, stackslots, fixed, outgoing uint32) *abi.FrameLayout {
	return MachineDeps{}.ComputeFrameLayout(cc, flags, clobbered, incoming, tail, stackslots, fixed, outgoing)
}

func TestIntegerClobbersTakeNoClobberSpace(t *testing.T) {
	l := layoutFor(ir.CallConvSystemV, abi.DefaultFlags(), []regalloc.RealReg{Gpr(7), Gpr(6)}, 0, 0, 0, 0, 0)
	if l.ClobberSize != 0 {
		t.Fatalf("clobber size = %d, want 0", l.ClobberSize)
	}
	if diff := cmp.Diff([]regalloc.RealReg{Gpr(6), Gpr(7)}, l.ClobberedCalleeSaves); diff != "" {
		t.Fatalf("clobbered mismatch (-want +got):\n%s", diff)
	}
}

func TestFrameLayoutDeterministic(t *testing.T) {
	a := []regalloc.RealReg{Vr(9), Gpr(7), Gpr(6), Vr(8), Gpr(2), Vr(3), Gpr(6)}
	b := []regalloc.RealReg{Gpr(6), Vr(3), Vr(8), Gpr(2), Gpr(7), Vr(9)}

	la := layoutFor(ir.CallConvSystemV, abi.DefaultFlags(), a, 16, 16, 8, 24, 160)
	lb := layoutFor(ir.CallConvSystemV, abi.DefaultFlags(), b, 16, 16, 8, 24, 160)
	if diff := cmp.Diff(la, lb); diff != "" {
		t.Fatalf("layouts differ (-a +b):\n%s", diff)
	}

	want := []regalloc.RealReg{Gpr(6), Gpr(7), LinkReg, Vr(8), Vr(9)}
	if diff := cmp.Diff(want, la.ClobberedCalleeSaves); diff != "" {
		t.Fatalf("clobbered mismatch (-want +got):\n%s", diff)
	}
	if la.ClobberSize != 16 {
		t.Fatalf("clobber size = %d, want 16", la.ClobberSize)
	}
}

func TestLinkRegisterSavedByNonLeaf(t *testing.T) {
	leaf := layoutFor(ir.CallConvSystemV, abi.DefaultFlags(), []regalloc.RealReg{Gpr(8)}, 0, 0, 0, 0, 0)
	if diff := cmp.Diff([]regalloc.RealReg{Gpr(8)}, leaf.ClobberedCalleeSaves); diff != "" {
		t.Fatalf("leaf clobbers mismatch (-want +got):\n%s", diff)
	}

	caller := layoutFor(ir.CallConvSystemV, abi.DefaultFlags(), []regalloc.RealReg{Gpr(8)}, 0, 0, 0, 0, 160)
	if diff := cmp.Diff([]regalloc.RealReg{Gpr(8), LinkReg}, caller.ClobberedCalleeSaves); diff != "" {
		t.Fatalf("non-leaf clobbers mismatch (-want +got):\n%s", diff)
	}

	flags := abi.DefaultFlags()
	flags.PreserveFramePointers = true
	backchain := layoutFor(ir.CallConvSystemV, flags, nil, 0, 0, 0, 0, 0)
	if backchain.OutgoingArgsSize != RegSaveAreaSize {
		t.Fatalf("backchain outgoing size = %d, want %d", backchain.OutgoingArgsSize, RegSaveAreaSize)
	}
	if diff := cmp.Diff([]regalloc.RealReg{LinkReg}, backchain.ClobberedCalleeSaves); diff != "" {
		t.Fatalf("backchain clobbers mismatch (-want +got):\n%s", diff)
	}
}

func TestTailFrameLayout(t *testing.T) {
	clobbered := []regalloc.RealReg{Gpr(6), Gpr(7), Gpr(8), Vr(10)}
	l := layoutFor(ir.CallConvTail, abi.DefaultFlags(), clobbered, 168, 200, 0, 0, 0)

	if diff := cmp.Diff([]regalloc.RealReg{Gpr(8), Vr(10)}, l.ClobberedCalleeSaves); diff != "" {
		t.Fatalf("tail clobbers mismatch (-want +got):\n%s", diff)
	}
	if l.ClobberSize != 8+200 {
		t.Fatalf("clobber size = %d, want %d", l.ClobberSize, 8+200)
	}
	if l.TailArgsSize != 168 {
		t.Fatalf("tail args size = %d, want the incoming size 168", l.TailArgsSize)
	}
}

func TestPinnedRegisterPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected a panic for pinned register")
		}
	}()
	flags := abi.DefaultFlags()
	flags.EnablePinnedReg = true
	layoutFor(ir.CallConvSystemV, flags, nil, 0, 0, 0, 0, 0)
}

func TestFinalizeMemArg(t *testing.T) {
	l := layoutFor(ir.CallConvSystemV, abi.DefaultFlags(), []regalloc.RealReg{Vr(8), Vr(9)}, 16, 16, 16, 32, 160)
	// active frame: 160 outgoing + 32 fixed + 16 clobbers
	cases := []struct {
		in   MemArg
		want int64
	}{
		{StackAModeMem(abi.Slot{Off: 8}), 168},
		{SpillMem(0), 176},
		{StackAModeMem(abi.OutgoingArg{Off: 8}), 168},
		{StackAModeMem(abi.IncomingArg{Off: 8, StackArgsSize: 16}), 208 + 160 + 8},
	}
	for _, c := range cases {
		got := FinalizeMemArg(ir.CallConvSystemV, l, c.in)
		if got.Base != StackReg || got.Disp != c.want || got.Symbolic() {
			t.Errorf("%v finalized to %v, want %d(R15)", c.in, got, c.want)
		}
	}

	// Under the tail convention the incoming area is inside the allocated frame.
	tl := layoutFor(ir.CallConvTail, abi.DefaultFlags(), nil, 168, 168, 0, 0, 0)
	got := FinalizeMemArg(ir.CallConvTail, tl, StackAModeMem(abi.IncomingArg{Off: 0, StackArgsSize: 168}))
	if got.Disp != RegSaveAreaSize {
		t.Fatalf("first tail stack arg at %v, want %d(R15)", got, RegSaveAreaSize)
	}
}
