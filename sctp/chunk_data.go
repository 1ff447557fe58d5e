package sctp

import (
	"encoding/binary"
	"fmt"
)

const dataChunkFixedLength = 12

const (
	dataFlagUBit = 0x04 // unordered
	dataFlagBBit = 0x02 // beginning fragment
	dataFlagEBit = 0x01 // ending fragment
)

// chunkData carries a (possibly partial) user message fragment.
type chunkData struct {
	TSN               uint32
	StreamIdentifier  uint16
	StreamSeq         uint16
	PayloadProtocolID uint32
	UserData          []byte

	Unordered bool
	Beginning bool
	Ending    bool
}

func (c *chunkData) chunkType() chunkType { return ctData }

func (c *chunkData) flags() uint8 {
	var f uint8
	if c.Unordered {
		f |= dataFlagUBit
	}
	if c.Beginning {
		f |= dataFlagBBit
	}
	if c.Ending {
		f |= dataFlagEBit
	}
	return f
}

func (c *chunkData) marshal() ([]byte, error) {
	raw := make([]byte, dataChunkFixedLength+len(c.UserData))
	binary.BigEndian.PutUint32(raw[0:4], c.TSN)
	binary.BigEndian.PutUint16(raw[4:6], c.StreamIdentifier)
	binary.BigEndian.PutUint16(raw[6:8], c.StreamSeq)
	binary.BigEndian.PutUint32(raw[8:12], c.PayloadProtocolID)
	copy(raw[dataChunkFixedLength:], c.UserData)
	return raw, nil
}

func (c *chunkData) unmarshal(flags uint8, value []byte) error {
	if len(value) < dataChunkFixedLength {
		return fmt.Errorf("%w: DATA chunk needs %d bytes, have %d", ErrInvalidChunk, dataChunkFixedLength, len(value))
	}
	c.TSN = binary.BigEndian.Uint32(value[0:4])
	c.StreamIdentifier = binary.BigEndian.Uint16(value[4:6])
	c.StreamSeq = binary.BigEndian.Uint16(value[6:8])
	c.PayloadProtocolID = binary.BigEndian.Uint32(value[8:12])
	c.UserData = append([]byte(nil), value[dataChunkFixedLength:]...)
	c.Unordered = flags&dataFlagUBit != 0
	c.Beginning = flags&dataFlagBBit != 0
	c.Ending = flags&dataFlagEBit != 0
	return nil
}

// marshalChunkData is a convenience wrapper since DATA's flags live in
// the struct rather than a caller-supplied flags byte.
func marshalChunkData(c *chunkData) ([]byte, error) {
	return marshalChunk(c, c.flags())
}
