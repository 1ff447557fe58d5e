package sctp

import (
	"testing"

	"github.com/go-test/deep"
	"github.com/stretchr/testify/require"
)

func TestPacketRoundTrip(t *testing.T) {
	pkt := &packet{
		SourcePort:      1234,
		DestinationPort: 5678,
		VerificationTag: 0xdeadbeef,
		Chunks: []chunk{
			&chunkData{
				TSN:               42,
				StreamIdentifier:  3,
				StreamSeq:         7,
				PayloadProtocolID: 0,
				UserData:          []byte("hello sctp"),
				Beginning:         true,
				Ending:            true,
			},
			&chunkSack{
				CumAck:       41,
				ARwnd:        1 << 16,
				GapAckBlocks: []gapAckBlock{{Start: 2, End: 3}},
			},
		},
	}

	raw, err := pkt.marshal()
	require.NoError(t, err)
	require.True(t, len(raw)%4 == 0, "a marshaled packet must be 4-byte aligned")

	var decoded packet
	require.NoError(t, decoded.unmarshal(raw))

	require.Equal(t, pkt.SourcePort, decoded.SourcePort)
	require.Equal(t, pkt.DestinationPort, decoded.DestinationPort)
	require.Equal(t, pkt.VerificationTag, decoded.VerificationTag)
	require.Len(t, decoded.Chunks, 2)

	if diff := deep.Equal(pkt.Chunks[0], decoded.Chunks[0]); diff != nil {
		t.Errorf("DATA chunk round trip mismatch: %v", diff)
	}
	if diff := deep.Equal(pkt.Chunks[1], decoded.Chunks[1]); diff != nil {
		t.Errorf("SACK chunk round trip mismatch: %v", diff)
	}
}

func TestPacketChecksumVerification(t *testing.T) {
	pkt := &packet{SourcePort: 1, DestinationPort: 2, VerificationTag: 3, Chunks: []chunk{&chunkCookieAck{}}}
	raw, err := pkt.marshal()
	require.NoError(t, err)
	require.True(t, VerifyChecksum(raw))

	raw[len(raw)-1] ^= 0xFF
	require.False(t, VerifyChecksum(raw))
}

func TestPacketUnmarshalTooShort(t *testing.T) {
	var p packet
	require.ErrorIs(t, p.unmarshal([]byte{1, 2, 3}), ErrTooShort)
}

func TestUnknownChunkRoundTrips(t *testing.T) {
	pkt := &packet{
		SourcePort:      1,
		DestinationPort: 2,
		VerificationTag: 3,
		Chunks:          []chunk{&chunkUnknown{typ: chunkType(99), value: []byte{0xAA, 0xBB, 0xCC, 0xDD}}},
	}
	raw, err := pkt.marshal()
	require.NoError(t, err)

	var decoded packet
	require.NoError(t, decoded.unmarshal(raw))
	require.Len(t, decoded.Chunks, 1)
	uc, ok := decoded.Chunks[0].(*chunkUnknown)
	require.True(t, ok)
	require.EqualValues(t, 99, uc.typ)
	require.Equal(t, []byte{0xAA, 0xBB, 0xCC, 0xDD}, uc.value)
}
