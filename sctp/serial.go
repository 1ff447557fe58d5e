package sctp

// tsn and ssn are dedicated serial-number types over uint32/uint16.
// Comparisons follow RFC 1982 serial-number arithmetic modulo the
// width: a < b iff (b - a) mod 2^n is in the open range (0, 2^(n-1)).
// Using the native integer '<' on a wrapped counter is a silent bug,
// so every comparison in this package goes through these methods.
type tsn uint32

const tsnHalf = uint32(1) << 31

func (a tsn) lt(b tsn) bool {
	d := uint32(b) - uint32(a)
	return d != 0 && d < tsnHalf
}

func (a tsn) lte(b tsn) bool { return a == b || a.lt(b) }
func (a tsn) gt(b tsn) bool  { return b.lt(a) }
func (a tsn) gte(b tsn) bool { return a == b || a.gt(b) }

func (a tsn) add(n uint32) tsn { return tsn(uint32(a) + n) }
func (a tsn) sub(n uint32) tsn { return tsn(uint32(a) - n) }

// diff returns b - a as an unsigned distance, valid only when a <= b in
// serial order (the mapping array never asks for distances spanning
// more than 2^31).
func (a tsn) diff(b tsn) uint32 { return uint32(b) - uint32(a) }

type ssn uint16

const ssnHalf = uint16(1) << 15

func (a ssn) lt(b ssn) bool {
	d := uint16(b) - uint16(a)
	return d != 0 && d < ssnHalf
}

func (a ssn) lte(b ssn) bool { return a == b || a.lt(b) }

func (a ssn) add(n uint16) ssn { return ssn(uint16(a) + n) }

// pathSeq is the recovery engine's internal 64-bit per-send sequence. It
// never wraps in practice, so plain integer comparison is correct and
// no serial-number wrapper is needed.
type pathSeq uint64
