package sctp

import (
	"encoding/binary"
	"fmt"

	"github.com/userspace-sctp/sctp/internal/util"
)

const initChunkFixedLength = 16

// minAdvertisedRwnd is the smallest receiver window RFC 4960 §3.3.2
// tolerates from a peer; anything smaller cannot hold even one chunk.
const minAdvertisedRwnd = 1500

// chunkInitCommon holds the fields shared verbatim between INIT and
// INIT-ACK (RFC 4960 §3.3.2/§3.3.3).
type chunkInitCommon struct {
	InitiateTag      uint32
	AdvertisedRwnd   uint32
	NumOutboundStreams uint16
	NumInboundStreams  uint16
	InitialTSN       uint32
	Params           []param
}

func (c *chunkInitCommon) marshalCommon() ([]byte, error) {
	raw := make([]byte, initChunkFixedLength)
	binary.BigEndian.PutUint32(raw[0:4], c.InitiateTag)
	binary.BigEndian.PutUint32(raw[4:8], c.AdvertisedRwnd)
	binary.BigEndian.PutUint16(raw[8:10], c.NumOutboundStreams)
	binary.BigEndian.PutUint16(raw[10:12], c.NumInboundStreams)
	binary.BigEndian.PutUint32(raw[12:16], c.InitialTSN)
	params, err := marshalParams(c.Params)
	if err != nil {
		return nil, err
	}
	return append(raw, params...), nil
}

func (c *chunkInitCommon) unmarshalCommon(value []byte) error {
	if len(value) < initChunkFixedLength {
		return fmt.Errorf("%w: INIT/INIT-ACK needs %d bytes, have %d", ErrInvalidChunk, initChunkFixedLength, len(value))
	}
	c.InitiateTag = binary.BigEndian.Uint32(value[0:4])
	c.AdvertisedRwnd = binary.BigEndian.Uint32(value[4:8])
	c.NumOutboundStreams = binary.BigEndian.Uint16(value[8:10])
	c.NumInboundStreams = binary.BigEndian.Uint16(value[10:12])
	c.InitialTSN = binary.BigEndian.Uint32(value[12:16])
	params, err := unmarshalParams(value[initChunkFixedLength:])
	if err != nil {
		return err
	}
	c.Params = params
	return nil
}

// chunkInit is the client's connection request.
type chunkInit struct {
	chunkInitCommon
}

func (c *chunkInit) chunkType() chunkType        { return ctInit }
func (c *chunkInit) marshal() ([]byte, error)    { return c.marshalCommon() }
func (c *chunkInit) unmarshal(_ uint8, v []byte) error { return c.unmarshalCommon(v) }

// chunkInitAck is the server's stateless reply, always carrying a
// Cookie parameter.
type chunkInitAck struct {
	chunkInitCommon
}

func (c *chunkInitAck) chunkType() chunkType        { return ctInitAck }
func (c *chunkInitAck) marshal() ([]byte, error)    { return c.marshalCommon() }
func (c *chunkInitAck) unmarshal(_ uint8, v []byte) error { return c.unmarshalCommon(v) }

// cookie returns the Cookie parameter's payload, or ok=false if INIT-ACK
// carries none (a protocol violation per spec.md §4.6).
func (c *chunkInitAck) cookie() ([]byte, bool) {
	for _, p := range c.Params {
		if pc, ok := p.(*paramCookie); ok {
			return pc.Cookie, true
		}
	}
	return nil, false
}

// validate checks the mandatory INIT/INIT-ACK fields (RFC 4960 §3.3.2/
// §3.3.3), collecting every violation instead of stopping at the first
// so an ABORT's error cause reflects everything wrong with the chunk.
func (c *chunkInitCommon) validate() error {
	var errs []error
	if c.InitiateTag == 0 {
		errs = append(errs, fmt.Errorf("%w: initiate tag must not be zero", ErrProtocolViolation))
	}
	if c.NumOutboundStreams == 0 {
		errs = append(errs, fmt.Errorf("%w: outbound stream count must not be zero", ErrProtocolViolation))
	}
	if c.NumInboundStreams == 0 {
		errs = append(errs, fmt.Errorf("%w: inbound stream count must not be zero", ErrProtocolViolation))
	}
	if c.AdvertisedRwnd < minAdvertisedRwnd {
		errs = append(errs, fmt.Errorf("%w: advertised receiver window %d below minimum %d", ErrProtocolViolation, c.AdvertisedRwnd, minAdvertisedRwnd))
	}
	return util.FlattenErrs(errs)
}

func (c *chunkInitCommon) addresses() []string {
	var out []string
	for _, p := range c.Params {
		if ip, ok := paramToIP(p); ok {
			out = append(out, ip.String())
		}
	}
	return out
}
