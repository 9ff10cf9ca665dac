package codegen

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/xplshn/zabi/pkg/config"
	"github.com/xplshn/zabi/pkg/isa/s390x"
)

type jsonBackend struct{}

// NewJSONBackend emits a machine-readable report of every lowering.
func NewJSONBackend() Backend { return jsonBackend{} }

type jsonReport struct {
	Target    string     `json:"target"`
	Preset    string     `json:"preset"`
	Functions []jsonFunc `json:"functions"`
}

type jsonFunc struct {
	Name          string     `json:"name"`
	Signature     string     `json:"signature"`
	Args          []string   `json:"args"`
	Rets          []string   `json:"rets"`
	StackArgSpace uint32     `json:"stack_arg_space"`
	StackRetSpace uint32     `json:"stack_ret_space"`
	RetAreaArg    int        `json:"ret_area_arg"`
	Frame         *jsonFrame `json:"frame,omitempty"`
	Prologue      []string   `json:"prologue,omitempty"`
	Epilogue      []string   `json:"epilogue,omitempty"`
	TailEpilogue  []string   `json:"tail_epilogue,omitempty"`
	TailTarget    string     `json:"tail_target,omitempty"`
	Calls         []jsonCall `json:"calls,omitempty"`
	Warnings      []string   `json:"warnings,omitempty"`
	Fingerprint   string     `json:"fingerprint,omitempty"`
}

type jsonFrame struct {
	Size             uint32   `json:"size"`
	IncomingArgsSize uint32   `json:"incoming_args_size"`
	TailArgsSize     uint32   `json:"tail_args_size"`
	ClobberSize      uint32   `json:"clobber_size"`
	FixedStorageSize uint32   `json:"fixed_storage_size"`
	StackslotsSize   uint32   `json:"stackslots_size"`
	OutgoingArgsSize uint32   `json:"outgoing_args_size"`
	CalleeSaves      []string `json:"callee_saves"`
}

type jsonCall struct {
	Callee           string   `json:"callee"`
	OutgoingArgsSize uint32   `json:"outgoing_args_size"`
	Rets             []string `json:"rets"`
	Insts            []string `json:"insts,omitempty"`
}

func renderInsts(seqs ...[]*s390x.Inst) []string {
	var out []string
	for _, seq := range seqs {
		for _, inst := range seq {
			out = append(out, inst.String())
		}
	}
	return out
}

func stringsOf[T fmt.Stringer](xs []T) []string {
	out := make([]string, len(xs))
	for i, x := range xs {
		out[i] = x.String()
	}
	return out
}

func (jsonBackend) Generate(funcs []*Func, cfg *config.Config) (*bytes.Buffer, error) {
	report := jsonReport{Target: cfg.Target, Preset: cfg.PresetName, Functions: make([]jsonFunc, 0, len(funcs))}
	for _, fn := range funcs {
		jf := jsonFunc{
			Name:          fn.Decl.Name,
			Signature:     fn.Sig.Sig.String(),
			Args:          stringsOf(fn.Sig.Args),
			Rets:          stringsOf(fn.Sig.Rets),
			StackArgSpace: fn.Sig.SizedStackArgSpace,
			StackRetSpace: fn.Sig.SizedStackRetSpace,
			RetAreaArg:    fn.Sig.StackRetArg,
		}
		for _, w := range fn.Warnings {
			jf.Warnings = append(jf.Warnings, fmt.Sprintf("%s [-W%s]", w.Msg, cfg.Warnings[w.Warning].Name))
		}
		if l := fn.Layout; l != nil {
			jf.Frame = &jsonFrame{
				Size:             fn.FrameSize,
				IncomingArgsSize: l.IncomingArgsSize,
				TailArgsSize:     l.TailArgsSize,
				ClobberSize:      l.ClobberSize,
				FixedStorageSize: l.FixedFrameStorageSize,
				StackslotsSize:   l.StackslotsSize,
				OutgoingArgsSize: l.OutgoingArgsSize,
				CalleeSaves:      make([]string, 0, len(l.ClobberedCalleeSaves)),
			}
			for _, r := range l.ClobberedCalleeSaves {
				jf.Frame.CalleeSaves = append(jf.Frame.CalleeSaves, s390x.RegName(r))
			}
			jf.Prologue = renderInsts(append(fn.Prologue[:len(fn.Prologue):len(fn.Prologue)], flatten(fn.ArgLoads)...))
			jf.Epilogue = renderInsts(fn.Epilogue)
			jf.TailEpilogue = renderInsts(fn.TailEpilogue)
			if fn.TailTarget != nil {
				jf.TailTarget = fn.TailTarget.String()
			}
			jf.Fingerprint = fmt.Sprintf("%016x", fn.Fingerprint)
		}
		for _, call := range fn.Calls {
			jf.Calls = append(jf.Calls, jsonCall{
				Callee:           call.Site.Callee,
				OutgoingArgsSize: call.OutgoingArgsSize,
				Rets:             stringsOf(call.Rets),
				Insts:            renderInsts(call.Setup, call.RetvalLoads),
			})
		}
		report.Functions = append(report.Functions, jf)
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		return nil, err
	}
	return &buf, nil
}

func flatten(seqs [][]*s390x.Inst) []*s390x.Inst {
	var out []*s390x.Inst
	for _, seq := range seqs {
		out = append(out, seq...)
	}
	return out
}
