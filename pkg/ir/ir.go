// Package ir defines the value types and signature descriptors consumed by ABI lowering.
package ir

import (
	"fmt"
	"strings"
)

type Type uint8

const (
	TypeInvalid Type = iota
	I8
	I16
	I32
	I64
	I128
	F16
	F32
	F64
	F128
	I8X8
	I16X4
	I32X2
	F32X2
	I8X16
	I16X8
	I32X4
	I64X2
	F32X4
	F64X2
	typeCount
)

type typeInfo struct {
	name     string
	laneBits uint32
	lanes    uint32
	float    bool
}

var types = [typeCount]typeInfo{
	TypeInvalid: {"invalid", 0, 0, false},
	I8:          {"i8", 8, 1, false},
	I16:         {"i16", 16, 1, false},
	I32:         {"i32", 32, 1, false},
	I64:         {"i64", 64, 1, false},
	I128:        {"i128", 128, 1, false},
	F16:         {"f16", 16, 1, true},
	F32:         {"f32", 32, 1, true},
	F64:         {"f64", 64, 1, true},
	F128:        {"f128", 128, 1, true},
	I8X8:        {"i8x8", 8, 8, false},
	I16X4:       {"i16x4", 16, 4, false},
	I32X2:       {"i32x2", 32, 2, false},
	F32X2:       {"f32x2", 32, 2, true},
	I8X16:       {"i8x16", 8, 16, false},
	I16X8:       {"i16x8", 16, 8, false},
	I32X4:       {"i32x4", 32, 4, false},
	I64X2:       {"i64x2", 64, 2, false},
	F32X4:       {"f32x4", 32, 4, true},
	F64X2:       {"f64x2", 64, 2, true},
}

var typeNames = func() map[string]Type {
	m := make(map[string]Type, typeCount)
	for t := I8; t < typeCount; t++ {
		m[types[t].name] = t
	}
	return m
}()

// ParseType looks up a type by its textual name (e.g. "i64", "f32x4").
func ParseType(name string) (Type, bool) {
	t, ok := typeNames[strings.ToLower(name)]
	return t, ok
}

func (t Type) valid() bool { return t > TypeInvalid && t < typeCount }

func (t Type) String() string {
	if t >= typeCount {
		return fmt.Sprintf("type(%d)", uint8(t))
	}
	return types[t].name
}

// Bits returns the total width of the type.
func (t Type) Bits() uint32 {
	if !t.valid() {
		return 0
	}
	return types[t].laneBits * types[t].lanes
}

func (t Type) Bytes() uint32 { return t.Bits() / 8 }

func (t Type) LaneCount() uint32 {
	if !t.valid() {
		return 0
	}
	return types[t].lanes
}

func (t Type) LaneBits() uint32 {
	if !t.valid() {
		return 0
	}
	return types[t].laneBits
}

func (t Type) IsVector() bool { return t.valid() && types[t].lanes > 1 }
func (t Type) IsInt() bool    { return t.valid() && !types[t].float && types[t].lanes == 1 }
func (t Type) IsFloat() bool  { return t.valid() && types[t].float && types[t].lanes == 1 }

type ArgumentExtension uint8

const (
	ExtNone ArgumentExtension = iota
	ExtUext
	ExtSext
)

func (e ArgumentExtension) String() string {
	switch e {
	case ExtUext: return "uext"
	case ExtSext: return "sext"
	default: return ""
	}
}

type ArgumentPurpose uint8

const (
	PurposeNormal ArgumentPurpose = iota
	PurposeVMContext
	PurposeStructReturn
	PurposeStackLimit
	// PurposeStructArgument passes an aggregate of AbiParam.StructSize bytes by value.
	PurposeStructArgument
)

func (p ArgumentPurpose) String() string {
	switch p {
	case PurposeVMContext: return "vmctx"
	case PurposeStructReturn: return "sret"
	case PurposeStackLimit: return "stack_limit"
	case PurposeStructArgument: return "struct"
	default: return "normal"
	}
}

// AbiParam describes one parameter or return value of a signature.
type AbiParam struct {
	ValueType  Type
	Purpose    ArgumentPurpose
	Extension  ArgumentExtension
	StructSize uint32
}

func NewAbiParam(t Type) AbiParam { return AbiParam{ValueType: t} }

func (p AbiParam) String() string {
	var sb strings.Builder
	sb.WriteString(p.ValueType.String())
	if p.Extension != ExtNone {
		sb.WriteString(" " + p.Extension.String())
	}
	switch p.Purpose {
	case PurposeNormal:
	case PurposeStructArgument:
		fmt.Fprintf(&sb, " struct(%d)", p.StructSize)
	default:
		sb.WriteString(" " + p.Purpose.String())
	}
	return sb.String()
}

type CallConv uint8

const (
	CallConvSystemV CallConv = iota
	CallConvTail
	CallConvFast
	CallConvCold
	CallConvWinch
)

var callConvNames = map[CallConv]string{
	CallConvSystemV: "system_v",
	CallConvTail:    "tail",
	CallConvFast:    "fast",
	CallConvCold:    "cold",
	CallConvWinch:   "winch",
}

func (c CallConv) String() string {
	if name, ok := callConvNames[c]; ok {
		return name
	}
	return fmt.Sprintf("callconv(%d)", uint8(c))
}

func ParseCallConv(name string) (CallConv, bool) {
	for cc, n := range callConvNames {
		if n == name {
			return cc, true
		}
	}
	return 0, false
}

// Signature is an ordered list of parameters and returns under one calling convention.
type Signature struct {
	Params   []AbiParam
	Returns  []AbiParam
	CallConv CallConv
}

func NewSignature(cc CallConv) *Signature { return &Signature{CallConv: cc} }

// String renders the signature canonically; equal signatures render identically.
func (s *Signature) String() string {
	var sb strings.Builder
	writeList := func(ps []AbiParam) {
		sb.WriteByte('(')
		for i, p := range ps {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(p.String())
		}
		sb.WriteByte(')')
	}
	writeList(s.Params)
	sb.WriteString(" -> ")
	writeList(s.Returns)
	sb.WriteString(" " + s.CallConv.String())
	return sb.String()
}

// SpecialParamIndex returns the index of the first parameter with the given purpose, or -1.
func (s *Signature) SpecialParamIndex(purpose ArgumentPurpose) int {
	for i, p := range s.Params {
		if p.Purpose == purpose {
			return i
		}
	}
	return -1
}
