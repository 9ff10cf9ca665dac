package codegen

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/klauspost/asmfmt"

	"github.com/xplshn/zabi/pkg/config"
	"github.com/xplshn/zabi/pkg/isa/s390x"
)

type listingBackend struct{}

// NewListingBackend renders each function as a commented Go assembler listing.
func NewListingBackend() Backend { return listingBackend{} }

func (b listingBackend) Generate(funcs []*Func, cfg *config.Config) (*bytes.Buffer, error) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "// Code generated by zabi for %s. DO NOT EDIT.\n", cfg.Target)
	fmt.Fprintf(&sb, "// preset: %s\n", cfg.PresetName)
	for _, fn := range funcs {
		sb.WriteString("\n")
		b.genFunc(&sb, fn)
	}

	formatted, err := asmfmt.Format(strings.NewReader(sb.String()))
	if err != nil {
		return nil, fmt.Errorf("formatting listing: %w", err)
	}
	return bytes.NewBuffer(formatted), nil
}

func (b listingBackend) genFunc(out *strings.Builder, fn *Func) {
	d := fn.Decl
	fmt.Fprintf(out, "// func %s%s\n", d.Name, fn.Sig.Sig)
	for i, arg := range fn.Sig.Args {
		tag := ""
		if i == fn.Sig.StackRetArg {
			tag = " (return area)"
		}
		fmt.Fprintf(out, "// arg %d: %v%s\n", i, arg, tag)
	}
	for i, ret := range fn.Sig.Rets {
		fmt.Fprintf(out, "// ret %d: %v\n", i, ret)
	}
	if fn.Sig.SizedStackArgSpace > 0 || fn.Sig.SizedStackRetSpace > 0 {
		fmt.Fprintf(out, "// stack args %d, stack rets %d\n", fn.Sig.SizedStackArgSpace, fn.Sig.SizedStackRetSpace)
	}
	if fn.Layout == nil {
		return
	}

	fmt.Fprintf(out, "// frame: %v\n", fn.Layout)
	for i, off := range fn.StackSlotOffsets {
		fmt.Fprintf(out, "// stackslot %d: slot+%d(SP), %d bytes\n", i, off, d.StackSlots[i])
	}
	fmt.Fprintf(out, "TEXT ·%s(SB), NOSPLIT, $%d-%d\n", d.Name, fn.FrameSize, fn.Sig.SizedStackArgSpace)
	b.genInsts(out, fn.Prologue)

	for i, loads := range fn.ArgLoads {
		if len(loads) > 0 {
			fmt.Fprintf(out, "\t// load arg %d\n", i)
			b.genInsts(out, loads)
		}
	}

	for _, call := range fn.Calls {
		fmt.Fprintf(out, "\t// call %s, outgoing area %d\n", call.Site.Callee, call.OutgoingArgsSize)
		b.genInsts(out, call.Setup)
		fmt.Fprintf(out, "\tCALL %s(SB)\n", call.Site.Callee)
		for i, ret := range call.Rets {
			fmt.Fprintf(out, "\t// ret %d in %v\n", i, ret)
		}
		b.genInsts(out, call.RetvalLoads)
	}

	if fn.TailEpilogue == nil && d.TailCall == nil {
		b.genInsts(out, fn.Epilogue)
		return
	}
	fmt.Fprintf(out, "\t// tail call %s\n", d.TailCall.Target)
	b.genInsts(out, fn.TailEpilogue)
	switch dest := fn.TailTarget.(type) {
	case s390x.CallDirect: fmt.Fprintf(out, "\tJMP %s(SB)\n", dest.Symbol)
	case s390x.CallIndirect: fmt.Fprintf(out, "\tBR %s\n", s390x.RegName(dest.Reg))
	}
}

// genInsts writes one instruction per line; some instructions render as several lines.
func (b listingBackend) genInsts(out *strings.Builder, insts []*s390x.Inst) {
	for _, inst := range insts {
		for _, line := range strings.Split(inst.String(), "\n") {
			fmt.Fprintf(out, "\t%s\n", line)
		}
	}
}
