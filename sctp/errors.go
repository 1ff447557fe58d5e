package sctp

import "errors"

// Sentinel errors for the association core's error taxonomy. Call sites
// wrap these with fmt.Errorf("%w: ...") to attach context; callers use
// errors.Is against these values to classify a failure.
var (
	// ErrDone means there is nothing more to produce on this pass. It is
	// benign and callers should not treat it as a failure.
	ErrDone = errors.New("sctp: done")

	// ErrInvalidChunk means the wire bytes were truncated, malformed, or
	// had an impossible length or padding overrun.
	ErrInvalidChunk = errors.New("sctp: invalid chunk")

	// ErrTooShort means the supplied buffer is below a required minimum.
	ErrTooShort = errors.New("sctp: buffer too short")

	// ErrInvalidValue means a semantic check on an otherwise well-formed
	// value failed (e.g. an ack behind the mapping array's base TSN).
	ErrInvalidValue = errors.New("sctp: invalid value")

	// ErrProtocolViolation means the peer broke the protocol. Recv
	// escalates this to an ABORT and transitions the association to
	// Closed.
	ErrProtocolViolation = errors.New("sctp: protocol violation")

	// ErrNotFound means a referenced stream id does not exist.
	ErrNotFound = errors.New("sctp: not found")

	// ErrOOTB means a datagram arrived from a peer IP address the
	// association does not recognize as a path.
	ErrOOTB = errors.New("sctp: out-of-the-blue datagram")

	// ErrInvalidPathID means a path operation referenced a missing path.
	ErrInvalidPathID = errors.New("sctp: invalid path id")
)
