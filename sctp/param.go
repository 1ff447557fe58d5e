package sctp

import (
	"encoding/binary"
	"fmt"
	"net"
)

// paramType identifies a parameter TLV nested inside INIT/INIT-ACK or
// the state cookie (RFC 4960 §3.3.2.1 and common extensions).
type paramType uint16

const (
	ptIPv4                 paramType = 5
	ptIPv6                 paramType = 6
	ptCookie               paramType = 7
	ptSupportedAddrTypes   paramType = 12
	ptECN                  paramType = 32768
	ptRandom               paramType = 32770
	ptChunks               paramType = 32771
	ptHMACAlgo             paramType = 32772
	ptSupportedExtensions  paramType = 32776
	ptForwardTSNSupported  paramType = 49152
)

const paramHeaderSize = 4

// param is the tagged-variant interface for a parameter TLV. Unknown
// parameter types round-trip as paramRaw.
type param interface {
	paramType() paramType
	marshal() ([]byte, error)
}

func marshalParam(p param) ([]byte, error) {
	value, err := p.marshal()
	if err != nil {
		return nil, err
	}
	raw := make([]byte, paramHeaderSize+len(value))
	binary.BigEndian.PutUint16(raw[0:2], uint16(p.paramType()))
	binary.BigEndian.PutUint16(raw[2:4], uint16(paramHeaderSize+len(value)))
	copy(raw[paramHeaderSize:], value)
	if pad := getPadding(len(raw)); pad > 0 {
		raw = append(raw, make([]byte, pad)...)
	}
	return raw, nil
}

// marshalParams concatenates a list of parameters with their own
// 4-byte-aligned padding, the form used inside INIT/INIT-ACK chunks and
// the state cookie's peer-address field.
func marshalParams(params []param) ([]byte, error) {
	var out []byte
	for _, p := range params {
		raw, err := marshalParam(p)
		if err != nil {
			return nil, err
		}
		out = append(out, raw...)
	}
	return out, nil
}

// unmarshalParams parses a back-to-back run of parameter TLVs filling
// exactly raw (no trailing bytes allowed other than valid padding).
func unmarshalParams(raw []byte) ([]param, error) {
	var params []param
	offset := 0
	for offset < len(raw) {
		if len(raw)-offset < paramHeaderSize {
			return nil, fmt.Errorf("%w: trailing %d bytes too short for a parameter header", ErrInvalidChunk, len(raw)-offset)
		}
		pt := paramType(binary.BigEndian.Uint16(raw[offset : offset+2]))
		length := int(binary.BigEndian.Uint16(raw[offset+2 : offset+4]))
		if length < paramHeaderSize || offset+length > len(raw) {
			return nil, fmt.Errorf("%w: parameter length %d out of range", ErrInvalidChunk, length)
		}
		value := raw[offset+paramHeaderSize : offset+length]

		p, err := unmarshalOneParam(pt, value)
		if err != nil {
			return nil, err
		}
		params = append(params, p)

		consumed := length + getPadding(length)
		if offset+consumed > len(raw) {
			consumed = length
		}
		offset += consumed
	}
	return params, nil
}

func unmarshalOneParam(pt paramType, value []byte) (param, error) {
	switch pt {
	case ptIPv4:
		if len(value) < 4 {
			return nil, fmt.Errorf("%w: IPv4 parameter needs 4 bytes", ErrInvalidChunk)
		}
		return &paramIPv4Address{Addr: net.IPv4(value[0], value[1], value[2], value[3]).To4()}, nil
	case ptIPv6:
		if len(value) < 16 {
			return nil, fmt.Errorf("%w: IPv6 parameter needs 16 bytes", ErrInvalidChunk)
		}
		ip := make(net.IP, 16)
		copy(ip, value[:16])
		return &paramIPv6Address{Addr: ip}, nil
	case ptCookie:
		return &paramCookie{Cookie: append([]byte(nil), value...)}, nil
	case ptSupportedAddrTypes:
		return &paramRaw{Type: pt, Value: append([]byte(nil), value...)}, nil
	default:
		return &paramRaw{Type: pt, Value: append([]byte(nil), value...)}, nil
	}
}

// paramIPv4Address carries an IPv4 address in INIT/INIT-ACK and the
// state cookie's peer-address field.
type paramIPv4Address struct {
	Addr net.IP
}

func (p *paramIPv4Address) paramType() paramType { return ptIPv4 }

func (p *paramIPv4Address) marshal() ([]byte, error) {
	v4 := p.Addr.To4()
	if v4 == nil {
		return nil, fmt.Errorf("%w: not an IPv4 address: %s", ErrInvalidValue, p.Addr)
	}
	return append([]byte(nil), v4...), nil
}

// paramIPv6Address carries an IPv6 address the same way.
type paramIPv6Address struct {
	Addr net.IP
}

func (p *paramIPv6Address) paramType() paramType { return ptIPv6 }

func (p *paramIPv6Address) marshal() ([]byte, error) {
	v6 := p.Addr.To16()
	if v6 == nil {
		return nil, fmt.Errorf("%w: not an IPv6 address: %s", ErrInvalidValue, p.Addr)
	}
	return append([]byte(nil), v6...), nil
}

// paramCookie carries the opaque state cookie blob inside INIT-ACK.
type paramCookie struct {
	Cookie []byte
}

func (p *paramCookie) paramType() paramType { return ptCookie }

func (p *paramCookie) marshal() ([]byte, error) {
	return append([]byte(nil), p.Cookie...), nil
}

// paramRaw preserves any parameter type this core does not act upon
// (ECN, Random, Chunks, HMAC-Algo, Supported-Exts, Forward-TSN-Supported,
// Supported-Address-Types, and any type not in the enumerated set).
type paramRaw struct {
	Type  paramType
	Value []byte
}

func (p *paramRaw) paramType() paramType { return p.Type }

func (p *paramRaw) marshal() ([]byte, error) {
	return append([]byte(nil), p.Value...), nil
}

// newRandomParam builds the Random parameter carried by INIT/INIT-ACK;
// this core never validates its contents, not even its length.
func newRandomParam(value []byte) param {
	return &paramRaw{Type: ptRandom, Value: value}
}

func ipParam(ip net.IP) param {
	if v4 := ip.To4(); v4 != nil {
		return &paramIPv4Address{Addr: v4}
	}
	return &paramIPv6Address{Addr: ip.To16()}
}

func paramToIP(p param) (net.IP, bool) {
	switch v := p.(type) {
	case *paramIPv4Address:
		return v.Addr, true
	case *paramIPv6Address:
		return v.Addr, true
	default:
		return nil, false
	}
}
