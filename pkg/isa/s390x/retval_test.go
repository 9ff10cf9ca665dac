package s390x

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/xplshn/zabi/pkg/abi"
	"github.com/xplshn/zabi/pkg/ir"
	"github.com/xplshn/zabi/pkg/regalloc"
)

func TestRetvalLoadsOrderAndLaneSwap(t *testing.T) {
	info := &CallInfo{
		Dest:       CallDirect{Symbol: "callee"},
		CallerConv: ir.CallConvSystemV,
		CalleeConv: ir.CallConvTail,
		Defs: []CallRetPair{
			{Dest: regalloc.AllocReg(Vr(24)), Location: RetReg{Reg: Vr(24), Ty: ir.I32X4}},
			{Dest: regalloc.AllocSpill(3), Location: RetStack{Mode: abi.OutgoingArg{Off: 8}, Ty: ir.I64}},
			{Dest: regalloc.AllocReg(Gpr(0)), Location: RetStack{Mode: abi.OutgoingArg{Off: 16}, Ty: ir.I64}},
		},
	}
	checkListing(t, "retval", []string{
		"LG out+8(SP), R0",
		"STG R0, spill+24(SP)",
		"VPDI $4, V24, V24, V24",
		"VERLLG $32, V24, V24",
		"LG out+16(SP), R0",
	}, GenRetvalLoads(info))
}

func TestRetvalLoadsSameLaneOrder(t *testing.T) {
	info := &CallInfo{
		CallerConv: ir.CallConvTail,
		CalleeConv: ir.CallConvTail,
		Defs: []CallRetPair{
			{Dest: regalloc.AllocReg(Vr(24)), Location: RetReg{Reg: Vr(24), Ty: ir.I8X16}},
			{Dest: regalloc.AllocSpill(1), Location: RetStack{Mode: abi.OutgoingArg{Off: 0}, Ty: ir.F64}},
		},
	}
	checkListing(t, "retval", []string{
		"LD out+0(SP), F1",
		"VST V1, spill+8(SP)",
	}, GenRetvalLoads(info))
}

func TestRetvalFullLaneReversal(t *testing.T) {
	info := &CallInfo{
		CallerConv: ir.CallConvTail,
		CalleeConv: ir.CallConvSystemV,
		Defs:       []CallRetPair{{Dest: regalloc.AllocReg(Vr(25)), Location: RetReg{Reg: Vr(25), Ty: ir.I8X16}}},
	}
	checkListing(t, "retval", []string{
		"VPDI $4, V25, V25, V25",
		"VERLLG $32, V25, V25",
		"VERLLF $16, V25, V25",
		"VERLLH $8, V25, V25",
	}, GenRetvalLoads(info))
}

func TestRetvalWideScalarThroughVectorTemp(t *testing.T) {
	info := &CallInfo{
		CallerConv: ir.CallConvSystemV,
		CalleeConv: ir.CallConvSystemV,
		Defs: []CallRetPair{
			{Dest: regalloc.AllocSpill(0), Location: RetStack{Mode: abi.OutgoingArg{Off: 0}, Ty: ir.I128}},
			{Dest: regalloc.AllocSpill(2), Location: RetStack{Mode: abi.OutgoingArg{Off: 16}, Ty: ir.F128}},
		},
	}
	checkListing(t, "retval", []string{
		"VL out+0(SP), V1",
		"VST V1, spill+0(SP)",
		"VL out+16(SP), V1",
		"VST V1, spill+16(SP)",
	}, GenRetvalLoads(info))
}

func TestRetvalTempCollisionPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected a panic")
		}
	}()
	GenRetvalLoads(&CallInfo{Defs: []CallRetPair{{Dest: regalloc.AllocReg(Gpr(0)), Location: RetReg{Reg: Gpr(0), Ty: ir.I64}}}})
}

func TestRetLocationsFromSignature(t *testing.T) {
	flags := abi.DefaultFlags()
	flags.EnableMultiRetImplicitSret = true
	sig := &ir.Signature{Params: params(repeat(ir.I64, 5)...), Returns: params(repeat(ir.I64, 5)...)}
	data, err := NewSigData(sig, flags)
	if err != nil {
		t.Fatalf("NewSigData: %v", err)
	}
	if data.SizedStackArgSpace != 16 || data.SizedStackRetSpace != 8 || data.StackRetArg != 5 {
		t.Fatalf("args=%d rets=%d retArg=%d, want 16, 8 and 5",
			data.SizedStackArgSpace, data.SizedStackRetSpace, data.StackRetArg)
	}

	locs := RetLocations(data)
	want := RetLocation(RetStack{Mode: abi.OutgoingArg{Off: 16}, Ty: ir.I64})
	if diff := cmp.Diff(want, locs[4]); diff != "" {
		t.Fatalf("fifth return location (-want +got):\n%s", diff)
	}
	if got := CallOutgoingArgsSize(data); got != RegSaveAreaSize+16+8 {
		t.Fatalf("outgoing size = %d, want %d", got, RegSaveAreaSize+16+8)
	}
}
