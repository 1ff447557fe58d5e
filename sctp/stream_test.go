package sctp

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func chunkFor(tsnVal uint32, streamSeq uint16, data string, begin, end bool) *chunkData {
	return &chunkData{
		TSN:               tsnVal,
		StreamIdentifier:  1,
		StreamSeq:         streamSeq,
		UserData:          []byte(data),
		Beginning:         begin,
		Ending:            end,
	}
}

// TestOrderedReassemblyIsOrderIndependent delivers the same set of
// fragments across several arrival permutations and checks the
// reassembled, readable message is identical every time, per spec.md
// §4.3: arrival order must never leak into delivery order for an
// ordered message.
func TestOrderedReassemblyIsOrderIndependent(t *testing.T) {
	frags := []*chunkData{
		chunkFor(10, 0, "foo", true, false),
		chunkFor(11, 0, "bar", false, false),
		chunkFor(12, 0, "baz", false, true),
	}

	orders := [][]int{
		{0, 1, 2},
		{2, 1, 0},
		{1, 0, 2},
		{2, 0, 1},
	}

	for _, order := range orders {
		s := newInboundStream(1)
		for _, i := range order {
			require.NoError(t, s.handle(frags[i]))
		}
		require.True(t, s.hasReadable())
		buf := make([]byte, 64)
		n, truncated, err := s.read(buf)
		require.NoError(t, err)
		require.False(t, truncated)
		require.Equal(t, "foobarbaz", string(buf[:n]))
	}
}

func TestOrderedStreamHoldsBackLaterMessage(t *testing.T) {
	s := newInboundStream(1)
	later := chunkFor(20, 1, "second", true, true)
	require.NoError(t, s.handle(later))
	require.False(t, s.hasReadable(), "stream_seq 1 must wait behind stream_seq 0")

	first := chunkFor(19, 0, "first", true, true)
	require.NoError(t, s.handle(first))

	buf := make([]byte, 32)
	n, _, err := s.read(buf)
	require.NoError(t, err)
	require.Equal(t, "first", string(buf[:n]))

	n, _, err = s.read(buf)
	require.NoError(t, err)
	require.Equal(t, "second", string(buf[:n]))
}

func TestUnorderedReassemblyDoesNotWaitForSequence(t *testing.T) {
	s := newInboundStream(1)
	c := &chunkData{TSN: 5, StreamIdentifier: 1, Unordered: true, Beginning: true, Ending: true, UserData: []byte("no order needed")}
	require.NoError(t, s.handle(c))
	require.True(t, s.hasReadable())
}

// TestUnorderedFragmentsReassembleOutOfOrder delivers the begin, middle,
// and end fragments of one unordered message with the end arriving
// before the middle, which forces the two waiting partial messages to
// merge once the gap between them closes (spec.md §4.3 step 4).
func TestUnorderedFragmentsReassembleOutOfOrder(t *testing.T) {
	s := newInboundStream(1)
	begin := &chunkData{TSN: 5, Unordered: true, Beginning: true, UserData: []byte("X")}
	end := &chunkData{TSN: 7, Unordered: true, Ending: true, UserData: []byte("Z")}
	middle := &chunkData{TSN: 6, Unordered: true, UserData: []byte("Y")}

	require.NoError(t, s.handle(begin))
	require.NoError(t, s.handle(end))
	require.False(t, s.hasReadable(), "a gap at TSN 6 must hold the message back")
	require.NoError(t, s.handle(middle))
	require.True(t, s.hasReadable())

	buf := make([]byte, 16)
	n, _, err := s.read(buf)
	require.NoError(t, err)
	require.Equal(t, "XYZ", string(buf[:n]))
}

// TestUnorderedReassemblyKeepsAdjacentMessagesDistinct sends two
// back-to-back unordered messages (A: TSN 10-12, B: TSN 13-15) whose
// fragments arrive out of order such that A's begin and B's end are
// known before A's own end arrives. A's end (TSN 12) must not be
// absorbed into B's one-chunk waiting message, and B's begin (TSN 13)
// must not later be absorbed into what is actually A's end fragment:
// each message must reassemble separately and correctly (spec.md
// §4.3 step 3's ownership guard against cross-message absorption).
func TestUnorderedReassemblyKeepsAdjacentMessagesDistinct(t *testing.T) {
	s := newInboundStream(1)

	aBegin := &chunkData{TSN: 10, Unordered: true, Beginning: true, UserData: []byte("A1")}
	bEnd := &chunkData{TSN: 15, Unordered: true, Ending: true, UserData: []byte("B3")}
	aEnd := &chunkData{TSN: 12, Unordered: true, Ending: true, UserData: []byte("A3")}
	aMid := &chunkData{TSN: 11, Unordered: true, UserData: []byte("A2")}
	bBegin := &chunkData{TSN: 13, Unordered: true, Beginning: true, UserData: []byte("B1")}
	bMid := &chunkData{TSN: 14, Unordered: true, UserData: []byte("B2")}

	require.NoError(t, s.handle(aBegin))
	require.NoError(t, s.handle(bEnd))
	require.NoError(t, s.handle(aEnd))
	require.False(t, s.hasReadable(), "A is still missing its middle fragment")

	require.NoError(t, s.handle(aMid))
	require.True(t, s.hasReadable(), "A should be complete and distinct from B")

	require.NoError(t, s.handle(bBegin))
	require.NoError(t, s.handle(bMid))

	buf := make([]byte, 16)
	n, _, err := s.read(buf)
	require.NoError(t, err)
	require.Equal(t, "A1A2A3", string(buf[:n]))

	require.True(t, s.hasReadable(), "B should now also be complete")
	n, _, err = s.read(buf)
	require.NoError(t, err)
	require.Equal(t, "B1B2B3", string(buf[:n]))
}

func TestOutboundStreamFragmentsAtMTU(t *testing.T) {
	s := newOutboundStream(1)
	s.write([]byte("0123456789"), false, true)

	c1, ok := s.generateData(100, 4)
	require.True(t, ok)
	require.Equal(t, "0123", string(c1.UserData))
	require.True(t, c1.Beginning)
	require.False(t, c1.Ending)

	c2, ok := s.generateData(101, 4)
	require.True(t, ok)
	require.Equal(t, "4567", string(c2.UserData))
	require.False(t, c2.Beginning)
	require.False(t, c2.Ending)

	c3, ok := s.generateData(102, 4)
	require.True(t, ok)
	require.Equal(t, "89", string(c3.UserData))
	require.True(t, c3.Ending)

	require.False(t, s.hasPending())
}

func TestOutboundStreamCoalescesConsecutiveWrites(t *testing.T) {
	s := newOutboundStream(1)
	s.write([]byte("ab"), false, false)
	s.write([]byte("cd"), false, true)
	require.Len(t, s.pending, 1)

	c, ok := s.generateData(1, 100)
	require.True(t, ok)
	require.Equal(t, "abcd", string(c.UserData))
	require.True(t, c.Beginning)
	require.True(t, c.Ending)
}
