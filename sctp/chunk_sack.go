package sctp

import (
	"encoding/binary"
	"fmt"
)

const sackChunkFixedLength = 12

// gapAckBlock is one maximal contiguous run of received-but-not-yet-
// cumulatively-acked TSNs, expressed as an offset from CumAck.
type gapAckBlock struct {
	Start uint16
	End   uint16
}

// chunkSack advertises the cumulative ack point and gap blocks computed
// by the mapping array. Duplicate-TSN reporting is not implemented, per
// spec.md §4.2.
type chunkSack struct {
	CumAck       uint32
	ARwnd        uint32
	GapAckBlocks []gapAckBlock
}

func (c *chunkSack) chunkType() chunkType { return ctSack }

func (c *chunkSack) marshal() ([]byte, error) {
	raw := make([]byte, sackChunkFixedLength+4*len(c.GapAckBlocks))
	binary.BigEndian.PutUint32(raw[0:4], c.CumAck)
	binary.BigEndian.PutUint32(raw[4:8], c.ARwnd)
	binary.BigEndian.PutUint16(raw[8:10], uint16(len(c.GapAckBlocks)))
	binary.BigEndian.PutUint16(raw[10:12], 0) // num_dup_ack, always 0
	off := sackChunkFixedLength
	for _, g := range c.GapAckBlocks {
		binary.BigEndian.PutUint16(raw[off:off+2], g.Start)
		binary.BigEndian.PutUint16(raw[off+2:off+4], g.End)
		off += 4
	}
	return raw, nil
}

func (c *chunkSack) unmarshal(_ uint8, value []byte) error {
	if len(value) < sackChunkFixedLength {
		return fmt.Errorf("%w: SACK chunk needs %d bytes, have %d", ErrInvalidChunk, sackChunkFixedLength, len(value))
	}
	c.CumAck = binary.BigEndian.Uint32(value[0:4])
	c.ARwnd = binary.BigEndian.Uint32(value[4:8])
	numGap := int(binary.BigEndian.Uint16(value[8:10]))
	numDup := int(binary.BigEndian.Uint16(value[10:12]))
	need := sackChunkFixedLength + 4*numGap + 4*numDup
	if len(value) < need {
		return fmt.Errorf("%w: SACK chunk claims %d gap/dup blocks but only has %d bytes", ErrInvalidChunk, numGap+numDup, len(value))
	}
	off := sackChunkFixedLength
	c.GapAckBlocks = make([]gapAckBlock, numGap)
	for i := 0; i < numGap; i++ {
		c.GapAckBlocks[i] = gapAckBlock{
			Start: binary.BigEndian.Uint16(value[off : off+2]),
			End:   binary.BigEndian.Uint16(value[off+2 : off+4]),
		}
		off += 4
	}
	// Duplicate-TSN blocks are parsed-past but discarded: the core does
	// not implement duplicate reporting.
	return nil
}
