package sctp

// chunkAbort terminates the association immediately. ErrorCauses are
// preserved opaquely; the core only distinguishes "has a cause" from
// "has none" (spec.md §4.6 ABORT handling).
type chunkAbort struct {
	TBit        bool
	ErrorCauses []byte
}

func (c *chunkAbort) chunkType() chunkType { return ctAbort }

func (c *chunkAbort) marshal() ([]byte, error) {
	return append([]byte(nil), c.ErrorCauses...), nil
}

func (c *chunkAbort) unmarshal(flags uint8, value []byte) error {
	c.TBit = flags&flagTBit != 0
	c.ErrorCauses = append([]byte(nil), value...)
	return nil
}

func (c *chunkAbort) flags() uint8 {
	if c.TBit {
		return flagTBit
	}
	return 0
}

// chunkShutdown begins the graceful close handshake, carrying the
// sender's current cumulative TSN ack point.
type chunkShutdown struct {
	CumAck uint32
}

func (c *chunkShutdown) chunkType() chunkType { return ctShutdown }

func (c *chunkShutdown) marshal() ([]byte, error) {
	raw := make([]byte, 4)
	putUint32(raw, c.CumAck)
	return raw, nil
}

func (c *chunkShutdown) unmarshal(_ uint8, value []byte) error {
	if len(value) < 4 {
		return errTooShortChunk("SHUTDOWN", 4, len(value))
	}
	c.CumAck = getUint32(value)
	return nil
}

type chunkShutdownAck struct{}

func (c *chunkShutdownAck) chunkType() chunkType       { return ctShutdownAck }
func (c *chunkShutdownAck) marshal() ([]byte, error)   { return nil, nil }
func (c *chunkShutdownAck) unmarshal(_ uint8, _ []byte) error { return nil }

type chunkShutdownComplete struct {
	TBit bool
}

func (c *chunkShutdownComplete) chunkType() chunkType { return ctShutdownComplete }

func (c *chunkShutdownComplete) marshal() ([]byte, error) { return nil, nil }

func (c *chunkShutdownComplete) unmarshal(flags uint8, _ []byte) error {
	c.TBit = flags&flagTBit != 0
	return nil
}

func (c *chunkShutdownComplete) flags() uint8 {
	if c.TBit {
		return flagTBit
	}
	return 0
}

// chunkCookieEcho replays the opaque state cookie minted by INIT-ACK.
type chunkCookieEcho struct {
	Cookie []byte
}

func (c *chunkCookieEcho) chunkType() chunkType { return ctCookieEcho }

func (c *chunkCookieEcho) marshal() ([]byte, error) {
	return append([]byte(nil), c.Cookie...), nil
}

func (c *chunkCookieEcho) unmarshal(_ uint8, value []byte) error {
	c.Cookie = append([]byte(nil), value...)
	return nil
}

type chunkCookieAck struct{}

func (c *chunkCookieAck) chunkType() chunkType       { return ctCookieAck }
func (c *chunkCookieAck) marshal() ([]byte, error)   { return nil, nil }
func (c *chunkCookieAck) unmarshal(_ uint8, _ []byte) error { return nil }
