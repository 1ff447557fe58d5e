package sctp

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"net"
)

// hmacTagSize is the length of the HMAC-SHA-256 tag appended to every
// state cookie. crypto/hmac + crypto/sha256 are standard-library here
// deliberately: the teacher's own DTLS/SRTP layers reach for keyed MACs
// from the standard library rather than a third-party HMAC package, and
// there is no ecosystem HMAC implementation in the retrieval pack that
// improves on it (see DESIGN.md).
const hmacTagSize = 32

// stateCookie is the self-contained, HMAC-authenticated blob returned
// in INIT-ACK and replayed by the peer in COOKIE-ECHO (spec.md §3, §6).
// It freezes everything accept() needs to materialize an association
// without having kept any per-client state since INIT.
type stateCookie struct {
	Init      *chunkInit
	InitAck   *chunkInitAck
	MyVtag    uint32
	PeerVtag  uint32
	SrcPort   uint16
	DstPort   uint16
	PeerAddr  net.IP
	Timestamp uint64
}

// encode serializes the cookie and appends the HMAC-SHA-256 tag keyed
// by secret. The layout is
// len ∥ INIT ∥ len ∥ INIT-ACK ∥ my_vtag ∥ peer_vtag ∥ src_port ∥
// dst_port ∥ time ∥ peer-address-parameter ∥ HMAC,
// where each len is a 4-byte big-endian length of the marshalled chunk
// that follows it; the chunks are not concatenated bare.
func (s *stateCookie) encode(secret []byte) ([]byte, error) {
	initRaw, err := marshalChunk(s.Init, 0)
	if err != nil {
		return nil, err
	}
	initAckRaw, err := marshalChunk(s.InitAck, 0)
	if err != nil {
		return nil, err
	}
	addrRaw, err := marshalParam(ipParam(s.PeerAddr))
	if err != nil {
		return nil, err
	}

	body := make([]byte, 0, len(initRaw)+len(initAckRaw)+20+len(addrRaw))
	body = appendUint32Prefixed(body, initRaw)
	body = appendUint32Prefixed(body, initAckRaw)

	var fixed [20]byte
	binary.BigEndian.PutUint32(fixed[0:4], s.MyVtag)
	binary.BigEndian.PutUint32(fixed[4:8], s.PeerVtag)
	binary.BigEndian.PutUint16(fixed[8:10], s.SrcPort)
	binary.BigEndian.PutUint16(fixed[10:12], s.DstPort)
	binary.BigEndian.PutUint64(fixed[12:20], s.Timestamp)
	body = append(body, fixed[:]...)
	body = append(body, addrRaw...)

	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	tag := mac.Sum(nil)

	return append(body, tag...), nil
}

// decodeStateCookie verifies the trailing HMAC tag against secret and, only on a
// match, parses the cookie body. A forged or stale-secret cookie fails
// closed with ErrInvalidChunk (spec.md §8 "Cookie authenticity").
func decodeStateCookie(raw []byte, secret []byte) (*stateCookie, error) {
	if len(raw) < hmacTagSize {
		return nil, fmt.Errorf("%w: cookie shorter than HMAC tag", ErrInvalidChunk)
	}
	body, theirTag := raw[:len(raw)-hmacTagSize], raw[len(raw)-hmacTagSize:]

	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	ourTag := mac.Sum(nil)
	if !hmac.Equal(ourTag, theirTag) {
		return nil, fmt.Errorf("%w: state cookie HMAC mismatch", ErrInvalidChunk)
	}

	offset := 0
	initRaw, offset, err := readUint32Prefixed(body, offset)
	if err != nil {
		return nil, err
	}
	initAckRaw, offset, err := readUint32Prefixed(body, offset)
	if err != nil {
		return nil, err
	}
	if len(body)-offset < 20 {
		return nil, fmt.Errorf("%w: cookie truncated before fixed fields", ErrInvalidChunk)
	}
	s := &stateCookie{}
	s.MyVtag = binary.BigEndian.Uint32(body[offset : offset+4])
	s.PeerVtag = binary.BigEndian.Uint32(body[offset+4 : offset+8])
	s.SrcPort = binary.BigEndian.Uint16(body[offset+8 : offset+10])
	s.DstPort = binary.BigEndian.Uint16(body[offset+10 : offset+12])
	s.Timestamp = binary.BigEndian.Uint64(body[offset+12 : offset+20])
	offset += 20

	addrParams, err := unmarshalParams(body[offset:])
	if err != nil {
		return nil, err
	}
	if len(addrParams) != 1 {
		return nil, fmt.Errorf("%w: cookie must carry exactly one peer-address parameter", ErrInvalidChunk)
	}
	ip, ok := paramToIP(addrParams[0])
	if !ok {
		return nil, fmt.Errorf("%w: cookie peer-address parameter malformed", ErrInvalidChunk)
	}
	s.PeerAddr = ip

	init := &chunkInit{}
	if _, _, _, err := unmarshalAsChunk(init, initRaw); err != nil {
		return nil, err
	}
	s.Init = init

	initAck := &chunkInitAck{}
	if _, _, _, err := unmarshalAsChunk(initAck, initAckRaw); err != nil {
		return nil, err
	}
	s.InitAck = initAck

	return s, nil
}

// unmarshalAsChunk decodes a standalone previously-marshalled chunk
// buffer (no surrounding datagram) back into c.
func unmarshalAsChunk(c chunk, raw []byte) (chunk, uint8, int, error) {
	decoded, flags, consumed, err := unmarshalChunk(raw)
	if err != nil {
		return nil, 0, 0, err
	}
	switch v := c.(type) {
	case *chunkInit:
		*v = *decoded.(*chunkInit)
	case *chunkInitAck:
		*v = *decoded.(*chunkInitAck)
	}
	return decoded, flags, consumed, nil
}

func appendUint32Prefixed(dst, value []byte) []byte {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(value)))
	dst = append(dst, lenBuf[:]...)
	return append(dst, value...)
}

func readUint32Prefixed(body []byte, offset int) ([]byte, int, error) {
	if len(body)-offset < 4 {
		return nil, 0, fmt.Errorf("%w: cookie truncated before length prefix", ErrInvalidChunk)
	}
	n := int(binary.BigEndian.Uint32(body[offset : offset+4]))
	offset += 4
	if n < 0 || len(body)-offset < n {
		return nil, 0, fmt.Errorf("%w: cookie length prefix %d out of range", ErrInvalidChunk, n)
	}
	return body[offset : offset+n], offset + n, nil
}
