package codegen

import (
	"errors"
	"fmt"
	"runtime"
	"sync"

	"github.com/xplshn/zabi/pkg/abi"
	"github.com/xplshn/zabi/pkg/ast"
	"github.com/xplshn/zabi/pkg/config"
	"github.com/xplshn/zabi/pkg/ir"
	"github.com/xplshn/zabi/pkg/isa/s390x"
	"github.com/xplshn/zabi/pkg/regalloc"
	"github.com/xplshn/zabi/pkg/token"
	"github.com/xplshn/zabi/pkg/util"
)

// FuncDecl is a resolved signature declaration together with the frame requests of its body.
type FuncDecl struct {
	Name      string
	Tok       token.Token
	Sig       *ir.Signature
	ParamToks []token.Token
	HasBody   bool

	Clobbers   []regalloc.RealReg
	StackSlots []uint32
	SpillSlots uint64
	Outgoing   uint32
	TailCall   *TailCall
	Calls      []*CallSite
}

type TailCall struct {
	Tok    token.Token
	Target string
	Dest   s390x.CallInstDest
	Pop    uint32
	HasPop bool
}

// CallSite is a call made by a body. Dests is empty when the results are unused.
type CallSite struct {
	Tok      token.Token
	Callee   string
	Dests    []regalloc.Allocation
	DestToks []token.Token
}

// Diagnostic is a warning raised while lowering. Warnings are collected rather than printed
// so that concurrent lowering reports them in declaration order.
type Diagnostic struct {
	Tok     token.Token
	Warning config.Warning
	Msg     string
}

// Call is a lowered call site.
type Call struct {
	Site             *CallSite
	Sig              *abi.SigData
	Rets             []s390x.RetLocation
	OutgoingArgsSize uint32
	// Setup passes the return-area pointer; RetvalLoads runs after the call returns.
	Setup       []*s390x.Inst
	RetvalLoads []*s390x.Inst
}

// Func is the lowering of one declaration. Layout is nil for bodiless declarations.
type Func struct {
	Decl *FuncDecl
	Sig  *abi.SigData

	Layout           *abi.FrameLayout
	FrameSize        uint32
	StackSlotOffsets []int64
	// ArgLoads fetches each stack-passed argument, indexed like Sig.Args.
	ArgLoads     [][]*s390x.Inst
	Prologue     []*s390x.Inst
	Epilogue     []*s390x.Inst
	Calls        []*Call
	TailEpilogue []*s390x.Inst
	TailTarget   s390x.CallInstDest

	Warnings    []Diagnostic
	Fingerprint uint64
}

type Context struct {
	cfg   *config.Config
	flags abi.Flags
	sigs  abi.SigSet
	decls map[string]*FuncDecl
}

func NewContext(cfg *config.Config) *Context {
	return &Context{cfg: cfg, flags: cfg.ABIFlags(), decls: make(map[string]*FuncDecl)}
}

// Sigs exposes the signature cache shared by all lowerings of this context.
func (ctx *Context) Sigs() *abi.SigSet { return &ctx.sigs }

// Declare applies the file directives, then resolves every function declaration. Errors of
// independent declarations are joined.
func (ctx *Context) Declare(root *ast.Node) ([]*FuncDecl, error) {
	nodes := root.Data.(ast.FileNode).Decls
	for _, node := range nodes {
		if node.Type == ast.Directive {
			ctx.cfg.ProcessDirectiveFlags(node.Data.(ast.DirectiveNode).Flags)
		}
	}
	ctx.flags = ctx.cfg.ABIFlags()

	var decls []*FuncDecl
	var errs []error
	for _, node := range nodes {
		if node.Type != ast.FuncDecl {
			continue
		}
		d := node.Data.(ast.FuncDeclNode)
		if prev, ok := ctx.decls[d.Name]; ok {
			errs = append(errs, util.Errorf(node.Tok, "Redefinition of '%s' (first declared on line %d)", d.Name, prev.Tok.Line))
			continue
		}
		sig, err := ctx.codegenSignature(node)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		decl := &FuncDecl{Name: d.Name, Tok: node.Tok, Sig: sig, HasBody: d.HasBody}
		for _, p := range d.Params {
			decl.ParamToks = append(decl.ParamToks, p.Tok)
		}
		if err := ctx.codegenBody(decl, d.Body); err != nil {
			errs = append(errs, err)
			continue
		}
		ctx.decls[d.Name] = decl
		decls = append(decls, decl)
	}

	for _, decl := range decls {
		for _, call := range decl.Calls {
			if _, ok := ctx.decls[call.Callee]; !ok {
				errs = append(errs, util.Errorf(call.Tok, "Call to undeclared function '%s'", call.Callee))
			}
		}
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return decls, nil
}

func (ctx *Context) warn(f *Func, wt config.Warning, tok token.Token, format string, args ...any) {
	if ctx.cfg.IsWarningEnabled(wt) {
		f.Warnings = append(f.Warnings, Diagnostic{Tok: tok, Warning: wt, Msg: fmt.Sprintf(format, args...)})
	}
}

func (ctx *Context) lookupSig(tok token.Token, name string, sig *ir.Signature) (*abi.SigData, error) {
	data, err := abi.LookupSig[*s390x.Inst](&ctx.sigs, s390x.MachineDeps{}, sig, ctx.flags)
	if err != nil {
		return nil, util.Wrap(tok, err, "Cannot lower the signature of '%s'", name)
	}
	return data, nil
}

// Lower assigns argument locations for d and, if it has a body, plans its frame and builds
// the prologue, epilogue, call and tail call sequences.
func (ctx *Context) Lower(d *FuncDecl) (*Func, error) {
	if ctx.flags.EnablePinnedReg {
		return nil, util.Wrap(d.Tok, abi.Unsupportedf("s390x has no pinned register"), "Cannot lower '%s'", d.Name)
	}
	sig, err := ctx.lookupSig(d.Tok, d.Name, d.Sig)
	if err != nil {
		return nil, err
	}

	f := &Func{Decl: d, Sig: sig}
	for i, arg := range sig.Args {
		if ptr, ok := arg.(*abi.ImplicitPtrArg); ok && i < len(d.ParamToks) {
			ctx.warn(f, config.WarnImplicitRef, d.ParamToks[i], "'%v' is passed by implicit reference", ptr.Ty)
		}
	}
	if sig.SizedStackArgSpace > 0 {
		ctx.warn(f, config.WarnStackArgs, d.Tok, "'%s' passes %d bytes of arguments on the stack", d.Name, sig.SizedStackArgSpace)
	}
	if !d.HasBody {
		return f, nil
	}

	callee, err := s390x.NewCallee(sig, ctx.flags)
	if err != nil {
		return nil, util.Wrap(d.Tok, err, "Cannot lower '%s'", d.Name)
	}
	for _, size := range d.StackSlots {
		f.StackSlotOffsets = append(f.StackSlotOffsets, callee.AllocateStackSlot(size, 8))
	}
	if d.SpillSlots > 0 {
		callee.AllocateSpillSlots(d.SpillSlots)
	}
	callee.AccumulateOutgoingArgsSize(d.Outgoing)

	for _, site := range d.Calls {
		call, err := ctx.lowerCall(d, site)
		if err != nil {
			return nil, err
		}
		callee.AccumulateOutgoingArgsSize(call.OutgoingArgsSize)
		f.Calls = append(f.Calls, call)
	}

	var tailTargetArgs uint32
	if tc := d.TailCall; tc != nil {
		if d.Sig.CallConv != ir.CallConvTail {
			return nil, util.Wrap(tc.Tok, abi.Unsupportedf("calling convention is %v", d.Sig.CallConv), "Tail calls need the tail calling convention")
		}
		if target, ok := ctx.decls[tc.Target]; ok {
			if target.Sig.CallConv != ir.CallConvTail {
				return nil, util.Errorf(tc.Tok, "Tail call target '%s' does not use the tail calling convention", tc.Target)
			}
			tsig, err := ctx.lookupSig(tc.Tok, tc.Target, target.Sig)
			if err != nil {
				return nil, err
			}
			tailTargetArgs = tsig.SizedStackArgSpace
		}
		callee.AccumulateTailArgsSize(tailTargetArgs)
	}

	layout, err := callee.ComputeFrameLayout(d.Clobbers)
	if err != nil {
		return nil, util.Wrap(d.Tok, err, "Cannot lay out the frame of '%s'", d.Name)
	}
	f.Layout, f.FrameSize = layout, callee.FrameSize()
	f.Prologue = callee.GenPrologue()
	f.Epilogue = callee.GenEpilogue()

	cc := d.Sig.CallConv
	f.ArgLoads = make([][]*s390x.Inst, len(sig.Args))
	for i := range sig.Args {
		if !passedOnStack(sig.Args[i]) {
			continue
		}
		f.ArgLoads[i] = s390x.GenArgLoad(sig, i, argScratch(sig.Args[i]))
		s390x.Finalize(cc, layout, f.ArgLoads[i])
	}
	for _, call := range f.Calls {
		s390x.Finalize(cc, layout, call.Setup)
		s390x.Finalize(cc, layout, call.RetvalLoads)
	}

	if tc := d.TailCall; tc != nil {
		pop := layout.IncomingArgsSize - min(layout.IncomingArgsSize, tailTargetArgs)
		if tc.HasPop {
			if tc.Pop > layout.IncomingArgsSize {
				return nil, util.Errorf(tc.Tok, "Tail call pops %d bytes but '%s' only has %d bytes of incoming arguments",
					tc.Pop, d.Name, layout.IncomingArgsSize)
			}
			pop = tc.Pop
		}
		insts, tmp, moved := s390x.GenTailEpilogue(layout, pop, tc.Dest)
		f.TailEpilogue, f.TailTarget = insts, tc.Dest
		if moved {
			f.TailTarget = s390x.CallIndirect{Reg: tmp}
		}
	}

	if f.FrameSize > ctx.cfg.LargeFrameSize {
		ctx.warn(f, config.WarnLargeFrame, d.Tok, "Frame of '%s' is %d bytes", d.Name, f.FrameSize)
	}
	if ctx.flags.PreserveFramePointers && len(d.Calls) == 0 && d.Outgoing < s390x.RegSaveAreaSize {
		ctx.warn(f, config.WarnBackchain, d.Tok, "Backchain reserves a %d byte register save area in leaf function '%s'",
			s390x.RegSaveAreaSize, d.Name)
	}

	seqs := [][]*s390x.Inst{f.Prologue, f.Epilogue, f.TailEpilogue}
	seqs = append(seqs, f.ArgLoads...)
	for _, call := range f.Calls {
		seqs = append(seqs, call.Setup, call.RetvalLoads)
	}
	f.Fingerprint = abi.Fingerprint(seqs...)
	return f, nil
}

func passedOnStack(arg abi.ABIArg) bool {
	switch a := arg.(type) {
	case *abi.Slots:
		for _, slot := range a.Slots {
			if _, ok := slot.(abi.StackSlot); ok {
				return true
			}
		}
	case *abi.ImplicitPtrArg:
		_, ok := a.Pointer.(abi.StackSlot)
		return ok
	}
	return false
}

// argScratch picks the register a stack argument is fetched into: %r1 for integers and
// pointers, %v1 otherwise.
func argScratch(arg abi.ABIArg) regalloc.RealReg {
	if a, ok := arg.(*abi.Slots); ok {
		if s, ok := a.Slots[0].(abi.StackSlot); ok && s390x.ClassOf(s.Ty) != s390x.ClassInt {
			return s390x.Vr(1)
		}
	}
	return s390x.SpillTmpReg
}

func (ctx *Context) lowerCall(d *FuncDecl, site *CallSite) (*Call, error) {
	target := ctx.decls[site.Callee]
	sig, err := ctx.lookupSig(site.Tok, site.Callee, target.Sig)
	if err != nil {
		return nil, err
	}
	rets := s390x.RetLocations(sig)
	if len(site.Dests) != 0 && len(site.Dests) != len(rets) {
		return nil, util.Errorf(site.Tok, "'%s' returns %d values, got %d destinations", site.Callee, len(rets), len(site.Dests))
	}

	call := &Call{Site: site, Sig: sig, Rets: rets, OutgoingArgsSize: s390x.CallOutgoingArgsSize(sig)}
	if ptr, ok := sig.StackRetAreaArg().(*abi.Slots); ok {
		area := abi.OutgoingArg{Off: int64(sig.SizedStackArgSpace)}
		switch slot := ptr.Slots[0].(type) {
		case abi.RegSlot:
			call.Setup = append(call.Setup, s390x.GenGetStackAddr(area, slot.Reg))
		case abi.StackSlot:
			call.Setup = append(call.Setup,
				s390x.GenGetStackAddr(area, s390x.SpillTmpReg),
				s390x.GenStoreStack(abi.OutgoingArg{Off: slot.Offset}, s390x.SpillTmpReg, ir.I64))
		}
	}

	info := &s390x.CallInfo{
		Dest:       s390x.CallDirect{Symbol: site.Callee},
		CallerConv: d.Sig.CallConv,
		CalleeConv: target.Sig.CallConv,
	}
	for i, dest := range site.Dests {
		if err := checkRetDest(d, rets[i], dest, site.DestToks[i]); err != nil {
			return nil, err
		}
		info.Defs = append(info.Defs, s390x.CallRetPair{Dest: dest, Location: rets[i]})
	}
	call.RetvalLoads = s390x.GenRetvalLoads(info)
	return call, nil
}

func checkRetDest(d *FuncDecl, loc s390x.RetLocation, dest regalloc.Allocation, tok token.Token) error {
	var ty ir.Type
	switch l := loc.(type) {
	case s390x.RetReg: ty = l.Ty
	case s390x.RetStack: ty = l.Ty
	}
	class := s390x.ClassOf(ty)
	want := regalloc.ClassInt
	if class != s390x.ClassInt {
		want = regalloc.ClassFloat
	}

	if slot, ok := dest.AsSpillSlot(); ok {
		n := s390x.MachineDeps{}.SpillSlotsForClass(want)
		if uint64(slot)+uint64(n) > d.SpillSlots {
			return util.Errorf(tok, "Spill slot %d needs %d slot(s) but '%s' only has %d", slot, n, d.Name, d.SpillSlots)
		}
		return nil
	}
	if class == s390x.ClassNone {
		return util.Wrap(tok, abi.Unsupportedf("%v does not fit in a register", ty), "Cannot receive return value")
	}
	reg, _ := dest.AsReg()
	if reg.Class() != want {
		return util.Errorf(tok, "%s cannot hold a %v value", s390x.RegName(reg), ty)
	}
	return nil
}

// LowerAll lowers decls on up to jobs workers. Results keep the order of decls; the errors of
// all failed declarations are joined.
func (ctx *Context) LowerAll(decls []*FuncDecl, jobs int) ([]*Func, error) {
	if jobs <= 0 {
		jobs = runtime.NumCPU()
	}
	funcs := make([]*Func, len(decls))
	errs := make([]error, len(decls))

	work := make(chan int, len(decls))
	for i := range decls {
		work <- i
	}
	close(work)

	var wg sync.WaitGroup
	for range min(jobs, len(decls)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range work {
				funcs[i], errs[i] = ctx.Lower(decls[i])
			}
		}()
	}
	wg.Wait()

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return funcs, nil
}
