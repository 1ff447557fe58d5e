package sctp

import "github.com/pion/randutil"

// RNG supplies the random values this package needs: verification
// tags, initial TSNs, and heartbeat nonces. Config takes one so a host
// can swap in a deterministic generator for tests, the same seam
// pion/webrtc's rtpsender.go uses randutil for SSRC generation.
type RNG interface {
	Uint32() uint32
	Uint64() uint64
}

type mathRNG struct {
	gen randutil.MathRandomGenerator
}

// NewMathRNG returns the default RNG, backed by pion/randutil's
// non-cryptographic generator — adequate here since verification tags
// and TSNs only need to avoid accidental collision, not resist an
// adversary guessing them.
func NewMathRNG() RNG {
	return &mathRNG{gen: randutil.NewMathRandomGenerator()}
}

func (r *mathRNG) Uint32() uint32 {
	return r.gen.Uint32()
}

func (r *mathRNG) Uint64() uint64 {
	return uint64(r.gen.Uint32())<<32 | uint64(r.gen.Uint32())
}
