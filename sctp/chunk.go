package sctp

import (
	"encoding/binary"
	"fmt"
)

// chunkType identifies one of the supported SCTP chunk types on the
// wire (RFC 4960 §3.2). Types outside the supported set are preserved
// as chunkUnknown and never acted upon.
type chunkType uint8

const (
	ctData             chunkType = 0
	ctInit             chunkType = 1
	ctInitAck          chunkType = 2
	ctSack             chunkType = 3
	ctHeartbeat        chunkType = 4
	ctHeartbeatAck     chunkType = 5
	ctAbort            chunkType = 6
	ctShutdown         chunkType = 7
	ctShutdownAck      chunkType = 8
	ctCookieEcho       chunkType = 10
	ctCookieAck        chunkType = 11
	ctShutdownComplete chunkType = 14
)

func (t chunkType) String() string {
	switch t {
	case ctData:
		return "DATA"
	case ctInit:
		return "INIT"
	case ctInitAck:
		return "INIT-ACK"
	case ctSack:
		return "SACK"
	case ctHeartbeat:
		return "HEARTBEAT"
	case ctHeartbeatAck:
		return "HEARTBEAT-ACK"
	case ctAbort:
		return "ABORT"
	case ctShutdown:
		return "SHUTDOWN"
	case ctShutdownAck:
		return "SHUTDOWN-ACK"
	case ctCookieEcho:
		return "COOKIE-ECHO"
	case ctCookieAck:
		return "COOKIE-ACK"
	case ctShutdownComplete:
		return "SHUTDOWN-COMPLETE"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(t))
	}
}

const chunkHeaderSize = 4

// flagTBit marks ABORT/SHUTDOWN-COMPLETE as sent against a verification
// tag the sender never had an association for (RFC 4960 §8.5.1).
const flagTBit = 0x01

// chunk is the tagged-variant interface every supported chunk type
// implements. Protocol handling dispatches on the concrete type with a
// type switch (see "Wire codec" in DESIGN.md); only encoding and
// decoding go through the interface methods.
type chunk interface {
	chunkType() chunkType
	marshal() ([]byte, error)
	unmarshal(flags uint8, value []byte) error
}

func getPadding(length int) int {
	if length%4 == 0 {
		return 0
	}
	return 4 - (length % 4)
}

// marshalChunk serializes a chunk to its full TLV form including the
// 4-byte aligned zero padding.
func marshalChunk(c chunk, flags uint8) ([]byte, error) {
	value, err := c.marshal()
	if err != nil {
		return nil, err
	}
	raw := make([]byte, chunkHeaderSize+len(value))
	raw[0] = uint8(c.chunkType())
	raw[1] = flags
	binary.BigEndian.PutUint16(raw[2:4], uint16(chunkHeaderSize+len(value)))
	copy(raw[chunkHeaderSize:], value)
	if pad := getPadding(len(raw)); pad > 0 {
		raw = append(raw, make([]byte, pad)...)
	}
	return raw, nil
}

// unmarshalChunk parses one chunk TLV (including its padding) at the
// head of raw and returns the decoded chunk, its flags byte, and the
// total number of bytes consumed (header + value + padding).
func unmarshalChunk(raw []byte) (c chunk, flags uint8, consumed int, err error) {
	if len(raw) < chunkHeaderSize {
		return nil, 0, 0, fmt.Errorf("%w: chunk header needs %d bytes, have %d", ErrInvalidChunk, chunkHeaderSize, len(raw))
	}
	ct := chunkType(raw[0])
	flags = raw[1]
	length := int(binary.BigEndian.Uint16(raw[2:4]))
	if length < chunkHeaderSize || length > len(raw) {
		return nil, 0, 0, fmt.Errorf("%w: chunk length %d out of range (have %d)", ErrInvalidChunk, length, len(raw))
	}
	value := raw[chunkHeaderSize:length]

	switch ct {
	case ctData:
		c = &chunkData{}
	case ctInit:
		c = &chunkInit{}
	case ctInitAck:
		c = &chunkInitAck{}
	case ctSack:
		c = &chunkSack{}
	case ctHeartbeat:
		c = &chunkHeartbeat{}
	case ctHeartbeatAck:
		c = &chunkHeartbeatAck{}
	case ctAbort:
		c = &chunkAbort{}
	case ctShutdown:
		c = &chunkShutdown{}
	case ctShutdownAck:
		c = &chunkShutdownAck{}
	case ctCookieEcho:
		c = &chunkCookieEcho{}
	case ctCookieAck:
		c = &chunkCookieAck{}
	case ctShutdownComplete:
		c = &chunkShutdownComplete{}
	default:
		c = &chunkUnknown{typ: ct, value: append([]byte(nil), value...)}
	}

	if err := c.unmarshal(flags, value); err != nil {
		return nil, 0, 0, err
	}

	padded := length + getPadding(length)
	if padded > len(raw) {
		return nil, 0, 0, fmt.Errorf("%w: chunk padding runs past end of datagram (need %d, have %d)", ErrInvalidChunk, padded, len(raw))
	}
	return c, flags, padded, nil
}

// chunkUnknown preserves a chunk of a type the core does not implement
// so it round-trips on re-encode without being acted upon.
type chunkUnknown struct {
	typ   chunkType
	value []byte
}

func (c *chunkUnknown) chunkType() chunkType { return c.typ }

func (c *chunkUnknown) marshal() ([]byte, error) {
	return append([]byte(nil), c.value...), nil
}

func (c *chunkUnknown) unmarshal(_ uint8, value []byte) error {
	c.value = append([]byte(nil), value...)
	return nil
}
