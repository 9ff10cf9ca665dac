package regalloc

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestRealRegOrdering(t *testing.T) {
	i15 := NewRealReg(ClassInt, 15)
	f0 := NewRealReg(ClassFloat, 0)
	if !(i15 < f0) {
		t.Fatalf("int registers must order before float registers: %v >= %v", i15, f0)
	}
	if i15.Class() != ClassInt || i15.HwEnc() != 15 {
		t.Fatalf("decoded %v as class=%v enc=%d", i15, i15.Class(), i15.HwEnc())
	}
	if InvalidReg.Valid() {
		t.Fatal("InvalidReg reported valid")
	}
}

func TestPRegSet(t *testing.T) {
	r2 := NewRealReg(ClassInt, 2)
	r6 := NewRealReg(ClassInt, 6)
	v31 := NewRealReg(ClassFloat, 31)

	s := NewPRegSet(r6, v31, r2)
	if s.Len() != 3 {
		t.Fatalf("Len = %d, want 3", s.Len())
	}
	if diff := cmp.Diff([]RealReg{r2, r6, v31}, s.Regs()); diff != "" {
		t.Fatalf("Regs mismatch (-want +got):\n%s", diff)
	}
	without := s.Without(r6)
	if without.Contains(r6) || !s.Contains(r6) {
		t.Fatal("Without must not mutate the receiver")
	}
	if !without.Union(NewPRegSet(r6)).Contains(r6) {
		t.Fatal("Union lost a register")
	}
	if s.Contains(InvalidReg) {
		t.Fatal("set must never contain InvalidReg")
	}
}

func TestAllocation(t *testing.T) {
	r := NewRealReg(ClassInt, 3)
	if got, ok := AllocReg(r).AsReg(); !ok || got != r {
		t.Fatalf("AllocReg round trip failed: %v %v", got, ok)
	}
	if _, ok := AllocReg(r).AsSpillSlot(); ok {
		t.Fatal("register allocation reported as spill")
	}
	if slot, ok := AllocSpill(4).AsSpillSlot(); !ok || slot != 4 {
		t.Fatalf("AllocSpill round trip failed: %d %v", slot, ok)
	}
}
