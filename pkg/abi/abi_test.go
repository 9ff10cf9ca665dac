package abi_test

import (
	"errors"
	"sync"
	"testing"

	"github.com/xplshn/zabi/pkg/abi"
	"github.com/xplshn/zabi/pkg/ir"
	"github.com/xplshn/zabi/pkg/isa/s390x"
)

func i64Sig(n int, cc ir.CallConv) *ir.Signature {
	sig := ir.NewSignature(cc)
	for range n {
		sig.Params = append(sig.Params, ir.NewAbiParam(ir.I64))
	}
	sig.Returns = []ir.AbiParam{ir.NewAbiParam(ir.I64)}
	return sig
}

func TestLookupSigCaches(t *testing.T) {
	var set abi.SigSet
	m := s390x.MachineDeps{}
	flags := abi.DefaultFlags()

	a, err := abi.LookupSig[*s390x.Inst](&set, m, i64Sig(6, ir.CallConvSystemV), flags)
	if err != nil {
		t.Fatalf("LookupSig: %v", err)
	}
	b, err := abi.LookupSig[*s390x.Inst](&set, m, i64Sig(6, ir.CallConvSystemV), flags)
	if err != nil {
		t.Fatalf("LookupSig: %v", err)
	}
	if a != b {
		t.Fatal("equal signatures must share one SigData")
	}
	if a.SizedStackArgSpace != 16 {
		t.Fatalf("stack arg space = %d, want 16", a.SizedStackArgSpace)
	}

	flags.UnwindInfo = true
	c, err := abi.LookupSig[*s390x.Inst](&set, m, i64Sig(6, ir.CallConvSystemV), flags)
	if err != nil {
		t.Fatalf("LookupSig: %v", err)
	}
	if c == a {
		t.Fatal("different flags must not share an entry")
	}
	if set.Len() != 2 {
		t.Fatalf("set holds %d entries, want 2", set.Len())
	}
}

func TestLookupSigDoesNotCacheErrors(t *testing.T) {
	var set abi.SigSet
	sig := i64Sig(0, ir.CallConvSystemV)
	sig.Returns = make([]ir.AbiParam, 5)
	for i := range sig.Returns {
		sig.Returns[i] = ir.NewAbiParam(ir.I64)
	}

	_, err := abi.LookupSig[*s390x.Inst](&set, s390x.MachineDeps{}, sig, abi.DefaultFlags())
	if !errors.Is(err, abi.ErrUnsupported) {
		t.Fatalf("error = %v, want ErrUnsupported", err)
	}
	if set.Len() != 0 {
		t.Fatalf("failed lowering was cached")
	}
}

func TestLookupSigConcurrent(t *testing.T) {
	var set abi.SigSet
	const workers = 16
	got := make([]*abi.SigData, workers)
	var wg sync.WaitGroup
	for i := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			data, err := abi.LookupSig[*s390x.Inst](&set, s390x.MachineDeps{}, i64Sig(3, ir.CallConvTail), abi.DefaultFlags())
			if err != nil {
				t.Errorf("LookupSig: %v", err)
				return
			}
			got[i] = data
		}()
	}
	wg.Wait()
	if set.Len() != 1 {
		t.Fatalf("set holds %d entries, want 1", set.Len())
	}
	for i := range got {
		if got[i] == nil || got[i].SizedStackArgSpace != got[0].SizedStackArgSpace {
			t.Fatalf("worker %d lowered a different signature", i)
		}
	}
}

// tinyLimit shrinks the area limit so overflow is reachable with small signatures.
type tinyLimit struct{ s390x.MachineDeps }

func (tinyLimit) StackArgRetSizeLimit() uint32 { return 16 }

func TestSigDataAreaLimit(t *testing.T) {
	m := tinyLimit{}
	if _, err := abi.NewSigData[*s390x.Inst](m, i64Sig(6, ir.CallConvSystemV), abi.DefaultFlags()); err != nil {
		t.Fatalf("16 byte argument area rejected: %v", err)
	}
	_, err := abi.NewSigData[*s390x.Inst](m, i64Sig(7, ir.CallConvSystemV), abi.DefaultFlags())
	if !errors.Is(err, abi.ErrImplLimitExceeded) {
		t.Fatalf("error = %v, want ErrImplLimitExceeded", err)
	}
}

func TestStackRetAreaArg(t *testing.T) {
	flags := abi.DefaultFlags()
	flags.EnableMultiRetImplicitSret = true
	sig := i64Sig(1, ir.CallConvSystemV)
	for range 5 {
		sig.Returns = append(sig.Returns, ir.NewAbiParam(ir.F64))
	}
	data, err := s390x.NewSigData(sig, flags)
	if err != nil {
		t.Fatalf("NewSigData: %v", err)
	}
	ptr := data.StackRetAreaArg()
	if ptr == nil {
		t.Fatal("expected a return-area pointer")
	}
	if len(data.Args) != 2 || data.StackRetArg != 1 {
		t.Fatalf("args=%v retArg=%d", data.Args, data.StackRetArg)
	}

	plain, err := s390x.NewSigData(i64Sig(1, ir.CallConvSystemV), flags)
	if err != nil {
		t.Fatalf("NewSigData: %v", err)
	}
	if plain.StackRetAreaArg() != nil {
		t.Fatal("register-only returns need no pointer")
	}
}

func TestFingerprint(t *testing.T) {
	a := []*s390x.Inst{s390x.GenMove(s390x.Gpr(2), s390x.Gpr(3), ir.I64)}
	b := []*s390x.Inst{s390x.GenMove(s390x.Gpr(3), s390x.Gpr(2), ir.I64)}

	if abi.Fingerprint(a, b) != abi.Fingerprint(a, b) {
		t.Fatal("fingerprint is not deterministic")
	}
	if abi.Fingerprint(a, b) == abi.Fingerprint(b, a) {
		t.Fatal("fingerprint ignores sequence order")
	}
	if abi.Fingerprint(append(a, b...)) == abi.Fingerprint(a, b) {
		t.Fatal("fingerprint ignores sequence boundaries")
	}
}

func TestOnceCell(t *testing.T) {
	var cell abi.OnceCell[[]int]
	var calls sync.WaitGroup
	results := make([]*[]int, 8)
	for i := range results {
		calls.Add(1)
		go func() {
			defer calls.Done()
			results[i] = cell.Get(func() []int { return []int{1, 2, 3} })
		}()
	}
	calls.Wait()
	for i, r := range results {
		if r != results[0] {
			t.Fatalf("reader %d saw a different value", i)
		}
	}
	if got := cell.Get(func() []int { return nil }); len(*got) != 3 {
		t.Fatal("initializer ran after the cell was set")
	}
}

func TestAlignTo(t *testing.T) {
	cases := []struct{ n, align, want uint32 }{
		{0, 8, 0}, {1, 8, 8}, {8, 8, 8}, {9, 16, 16}, {5, 0, 5},
	}
	for _, c := range cases {
		if got := abi.AlignTo(c.n, c.align); got != c.want {
			t.Errorf("AlignTo(%d, %d) = %d, want %d", c.n, c.align, got, c.want)
		}
	}
}

func TestFrameLayoutBases(t *testing.T) {
	l := &abi.FrameLayout{OutgoingArgsSize: 160, StackslotsSize: 16, FixedFrameStorageSize: 32, ClobberSize: 24}
	if l.SlotBase() != 160 || l.SpillBase() != 176 || l.ClobberBase() != 192 || l.ActiveSize() != 216 {
		t.Fatalf("bases: slot=%d spill=%d clobber=%d active=%d",
			l.SlotBase(), l.SpillBase(), l.ClobberBase(), l.ActiveSize())
	}
}
