package codegen

import (
	"github.com/xplshn/zabi/pkg/ast"
	"github.com/xplshn/zabi/pkg/ir"
	"github.com/xplshn/zabi/pkg/isa/s390x"
	"github.com/xplshn/zabi/pkg/regalloc"
	"github.com/xplshn/zabi/pkg/util"
)

var purposeAttrs = map[string]ir.ArgumentPurpose{
	"vmctx":       ir.PurposeVMContext,
	"sret":        ir.PurposeStructReturn,
	"stack_limit": ir.PurposeStackLimit,
	"struct":      ir.PurposeStructArgument,
}

// codegenParam resolves a parameter or return node into a descriptor.
func (ctx *Context) codegenParam(node *ast.Node, isReturn bool) (ir.AbiParam, error) {
	d := node.Data.(ast.ParamNode)
	ty, ok := ir.ParseType(d.TypeName)
	if !ok {
		return ir.AbiParam{}, util.Errorf(node.Tok, "Unknown type '%s'", d.TypeName)
	}
	param := ir.NewAbiParam(ty)

	hasPurpose := false
	for _, attr := range d.Attrs {
		switch attr {
		case "sext", "uext":
			if param.Extension != ir.ExtNone {
				return ir.AbiParam{}, util.Errorf(node.Tok, "Conflicting extensions on '%s'", d.TypeName)
			}
			if !ty.IsInt() {
				return ir.AbiParam{}, util.Errorf(node.Tok, "'%s' needs an integer type, got '%s'", attr, ty)
			}
			param.Extension = ir.ExtUext
			if attr == "sext" {
				param.Extension = ir.ExtSext
			}
		default:
			purpose := purposeAttrs[attr]
			if hasPurpose {
				return ir.AbiParam{}, util.Errorf(node.Tok, "'%s' conflicts with '%s'", attr, param.Purpose)
			}
			if isReturn && purpose != ir.PurposeStructReturn {
				return ir.AbiParam{}, util.Errorf(node.Tok, "'%s' is not valid on a return value", attr)
			}
			hasPurpose = true
			param.Purpose = purpose
			if purpose == ir.PurposeStructArgument {
				param.StructSize = d.StructSize
			}
		}
	}
	return param, nil
}

func (ctx *Context) codegenSignature(node *ast.Node) (*ir.Signature, error) {
	d := node.Data.(ast.FuncDeclNode)
	cc := ir.CallConvSystemV
	if d.Conv != nil {
		name := d.Conv.Data.(ast.IdentNode).Name
		var ok bool
		if cc, ok = ir.ParseCallConv(name); !ok {
			return nil, util.Errorf(d.Conv.Tok, "Unknown calling convention '%s'", name)
		}
	}

	sig := ir.NewSignature(cc)
	for _, p := range d.Params {
		param, err := ctx.codegenParam(p, false)
		if err != nil {
			return nil, err
		}
		sig.Params = append(sig.Params, param)
	}
	for _, r := range d.Returns {
		ret, err := ctx.codegenParam(r, true)
		if err != nil {
			return nil, err
		}
		sig.Returns = append(sig.Returns, ret)
	}
	return sig, nil
}

func (ctx *Context) codegenReg(node *ast.Node) (regalloc.RealReg, error) {
	name := node.Data.(ast.IdentNode).Name
	r, err := s390x.ParseReg(name)
	if err != nil {
		return regalloc.InvalidReg, util.Errorf(node.Tok, "Invalid register '%s'", name)
	}
	return r, nil
}

// codegenBody fills in the frame requests of decl from its body directives.
func (ctx *Context) codegenBody(decl *FuncDecl, body []*ast.Node) error {
	for _, node := range body {
		switch node.Type {
		case ast.Clobbers:
			for _, rn := range node.Data.(ast.ClobbersNode).Regs {
				r, err := ctx.codegenReg(rn)
				if err != nil {
					return err
				}
				decl.Clobbers = append(decl.Clobbers, r)
			}
		case ast.StackSlots: decl.StackSlots = append(decl.StackSlots, node.Data.(ast.SizeNode).Size)
		case ast.SpillSlots: decl.SpillSlots += uint64(node.Data.(ast.SizeNode).Size)
		case ast.Outgoing: decl.Outgoing = max(decl.Outgoing, node.Data.(ast.SizeNode).Size)
		case ast.TailCall:
			if decl.TailCall != nil {
				return util.Errorf(node.Tok, "'%s' already has a tail call", decl.Name)
			}
			tc := node.Data.(ast.TailCallNode)
			var dest s390x.CallInstDest = s390x.CallDirect{Symbol: tc.Target}
			if r, err := s390x.ParseReg(tc.Target); err == nil {
				if r.Class() != regalloc.ClassInt {
					return util.Errorf(node.Tok, "Tail call target '%s' is not a general purpose register", tc.Target)
				}
				dest = s390x.CallIndirect{Reg: r}
			}
			decl.TailCall = &TailCall{Tok: node.Tok, Dest: dest, Target: tc.Target, Pop: tc.Pop, HasPop: tc.HasPop}
		case ast.Call:
			call, err := ctx.codegenCallSite(node)
			if err != nil {
				return err
			}
			decl.Calls = append(decl.Calls, call)
		default:
			return util.Errorf(node.Tok, "Unexpected node in function body")
		}
	}
	return nil
}

func (ctx *Context) codegenCallSite(node *ast.Node) (*CallSite, error) {
	d := node.Data.(ast.CallNode)
	call := &CallSite{Tok: node.Tok, Callee: d.Callee}
	for _, dn := range d.Dests {
		switch dn.Type {
		case ast.Spill:
			call.Dests = append(call.Dests, regalloc.AllocSpill(int(dn.Data.(ast.SpillNode).Slot)))
		default:
			r, err := ctx.codegenReg(dn)
			if err != nil {
				return nil, err
			}
			call.Dests = append(call.Dests, regalloc.AllocReg(r))
		}
		call.DestToks = append(call.DestToks, dn.Tok)
	}
	return call, nil
}
