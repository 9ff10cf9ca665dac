package abi

import (
	"fmt"
	"sync"

	"github.com/cespare/xxhash/v2"

	"github.com/xplshn/zabi/pkg/ir"
)

// SigSet memoizes lowered signatures for one target. It is safe for concurrent use; cached
// SigData values are shared and must be treated as read-only. Failures are never cached.
type SigSet struct {
	entries sync.Map // uint64 -> *sigEntry
}

type sigEntry struct {
	key  string
	data *SigData
}

func sigKey(sig *ir.Signature, flags Flags) (string, uint64) {
	key := sig.String() + "|" + flags.String()
	return key, xxhash.Sum64String(key)
}

// LookupSig returns the cached SigData for sig, lowering it on a miss.
func LookupSig[I any](set *SigSet, m MachineSpec[I], sig *ir.Signature, flags Flags) (*SigData, error) {
	key, h := sigKey(sig, flags)
	if v, ok := set.entries.Load(h); ok {
		if e := v.(*sigEntry); e.key == key {
			return e.data, nil
		}
		return NewSigData(m, sig, flags)
	}

	data, err := NewSigData(m, sig, flags)
	if err != nil {
		return nil, err
	}
	v, _ := set.entries.LoadOrStore(h, &sigEntry{key: key, data: data})
	if e := v.(*sigEntry); e.key == key {
		return e.data, nil
	}
	return data, nil
}

func (s *SigSet) Len() int {
	n := 0
	s.entries.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

// Fingerprint hashes instruction sequences by their rendered text.
func Fingerprint[I fmt.Stringer](seqs ...[]I) uint64 {
	h := xxhash.New()
	for _, seq := range seqs {
		for _, inst := range seq {
			h.WriteString(inst.String())
			h.WriteString("\n")
		}
		h.WriteString("--\n")
	}
	return h.Sum64()
}
