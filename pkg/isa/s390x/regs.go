// Package s390x implements ABI lowering for IBM z/Architecture: argument and return value
// placement, frame layout, prologue and epilogue sequences, the register allocator's machine
// environment and call clobber sets.
package s390x

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/xplshn/zabi/pkg/regalloc"
)

// RegSaveAreaSize is the register save area every caller provides to its callee.
const RegSaveAreaSize = 160

const (
	numGprs = 16
	numVrs  = 32
)

// Gpr returns general purpose register %r<n>.
func Gpr(n uint8) regalloc.RealReg {
	if n >= numGprs {
		panic(fmt.Sprintf("BUG: no such GPR: %d", n))
	}
	return regalloc.NewRealReg(regalloc.ClassInt, n)
}

// Vr returns vector register %v<n>. %f0-%f15 are the leftmost halves of %v0-%v15, so
// floating-point values live in the same class.
func Vr(n uint8) regalloc.RealReg {
	if n >= numVrs {
		panic(fmt.Sprintf("BUG: no such VR: %d", n))
	}
	return regalloc.NewRealReg(regalloc.ClassFloat, n)
}

var (
	StackReg    = Gpr(15)
	LinkReg     = Gpr(14)
	SpillTmpReg = Gpr(1)
	// ZeroReg stands for "no register" in base and index positions.
	ZeroReg = Gpr(0)
)

// RegName renders r the way the listing does: R<n> for GPRs, F<n> for the low sixteen
// vector registers and V<n> above.
func RegName(r regalloc.RealReg) string {
	if !r.Valid() {
		return "<invalid>"
	}
	switch r.Class() {
	case regalloc.ClassInt: return "R" + strconv.Itoa(int(r.HwEnc()))
	case regalloc.ClassFloat:
		if r.HwEnc() < 16 {
			return "F" + strconv.Itoa(int(r.HwEnc()))
		}
		return "V" + strconv.Itoa(int(r.HwEnc()))
	}
	return r.String()
}

// VecName renders r as a full vector register, for instructions operating on all 128 bits.
func VecName(r regalloc.RealReg) string {
	if r.Class() != regalloc.ClassFloat {
		panic(fmt.Sprintf("BUG: %v is not a vector register", r))
	}
	return "V" + strconv.Itoa(int(r.HwEnc()))
}

// ParseReg accepts r6, %r6, R6, f8, v24 and the aliases sp and lr.
func ParseReg(s string) (regalloc.RealReg, error) {
	name := strings.ToLower(strings.TrimPrefix(s, "%"))
	switch name {
	case "sp": return StackReg, nil
	case "lr": return LinkReg, nil
	}
	if len(name) < 2 {
		return regalloc.InvalidReg, fmt.Errorf("invalid register '%s'", s)
	}
	n, err := strconv.ParseUint(name[1:], 10, 8)
	if err != nil {
		return regalloc.InvalidReg, fmt.Errorf("invalid register '%s'", s)
	}
	switch name[0] {
	case 'r':
		if n < numGprs {
			return Gpr(uint8(n)), nil
		}
	case 'f':
		if n < 16 {
			return Vr(uint8(n)), nil
		}
	case 'v':
		if n < numVrs {
			return Vr(uint8(n)), nil
		}
	}
	return regalloc.InvalidReg, fmt.Errorf("invalid register '%s'", s)
}
