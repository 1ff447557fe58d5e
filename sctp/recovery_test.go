package sctp

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestPathWithRecovery() (*recovery, *path) {
	r := newRecovery()
	p := newPath(1, net.ParseIP("192.0.2.1"))
	p.confirmed = true
	r.addPath(p)
	return r, p
}

func dataChunk(t uint32) *chunkData {
	return &chunkData{TSN: t, UserData: []byte("x")}
}

func TestOnSendArmsT3Timer(t *testing.T) {
	r, p := newTestPathWithRecovery()
	now := time.Now()
	require.True(t, p.t3Deadline.IsZero())

	r.onSend(p, tsn(1), dataChunk(1), 100, now)

	require.False(t, p.t3Deadline.IsZero())
	require.Equal(t, 100, p.bytesInFlight)
	require.Len(t, p.inFlight, 1)
}

func TestOnSackRetiresCumulativelyAckedChunks(t *testing.T) {
	r, p := newTestPathWithRecovery()
	now := time.Now()
	r.onSend(p, tsn(1), dataChunk(1), 100, now)
	r.onSend(p, tsn(2), dataChunk(2), 100, now)
	r.onSend(p, tsn(3), dataChunk(3), 100, now)

	res := r.onSack(&chunkSack{CumAck: 2}, now.Add(10*time.Millisecond))

	require.Len(t, p.inFlight, 1, "only TSN 3 should remain outstanding")
	require.Equal(t, 100, p.bytesInFlight)
	require.ElementsMatch(t, []uint32{1, 2}, res.newlyAcked)
	require.Equal(t, 200, res.ackedBytes[p.id])
	require.True(t, res.cumAdvanced)
}

func TestOnSackDuplicateCumAckDoesNotReadvance(t *testing.T) {
	r, p := newTestPathWithRecovery()
	now := time.Now()
	r.onSend(p, tsn(1), dataChunk(1), 100, now)

	res1 := r.onSack(&chunkSack{CumAck: 1}, now)
	require.True(t, res1.cumAdvanced)

	res2 := r.onSack(&chunkSack{CumAck: 1}, now)
	require.False(t, res2.cumAdvanced)
}

// TestFastRetransmitAfterThreeMisses leaves TSN 1 unacknowledged across
// three SACKs, each advancing the gap-acked high-water mark, and checks
// the chunk is queued for fast retransmit only once the miss count
// reaches the threshold (spec.md §4.5 fast-retransmit supplement).
func TestFastRetransmitAfterThreeMisses(t *testing.T) {
	r, p := newTestPathWithRecovery()
	now := time.Now()
	for _, tsnVal := range []uint32{1, 2, 3, 4} {
		r.onSend(p, tsn(tsnVal), dataChunk(tsnVal), 100, now)
	}

	r.onSack(&chunkSack{CumAck: 0, GapAckBlocks: []gapAckBlock{{Start: 2, End: 2}}}, now)
	require.Empty(t, p.fastRetrans)
	require.False(t, p.inFastRecovery)

	r.onSack(&chunkSack{CumAck: 0, GapAckBlocks: []gapAckBlock{{Start: 3, End: 3}}}, now)
	require.Empty(t, p.fastRetrans)

	r.onSack(&chunkSack{CumAck: 0, GapAckBlocks: []gapAckBlock{{Start: 4, End: 4}}}, now)
	require.Equal(t, []uint32{1}, p.fastRetrans)
	require.True(t, p.inFastRecovery)
}

func TestOnT3ExpireQueuesOutstandingChunksWithoutLosingData(t *testing.T) {
	r, p := newTestPathWithRecovery()
	now := time.Now()
	r.onSend(p, tsn(1), dataChunk(1), 100, now)
	r.onSend(p, tsn(2), dataChunk(2), 100, now)

	r.onT3Expire(p, now)

	require.ElementsMatch(t, []uint32{1, 2}, p.t3Retrans)
	require.Equal(t, 0, p.bytesInFlight)

	retransmitted := p.retransmit(1, now)
	require.NotNil(t, retransmitted)
	require.Equal(t, uint32(1), retransmitted.TSN)
	require.False(t, p.inFlight[p.seqByTSN[1]].doRTT, "a retransmitted chunk must not contribute an RTT sample")
}

func TestBytesInFlightNeverGoesNegative(t *testing.T) {
	r, p := newTestPathWithRecovery()
	p.bytesInFlight = 10
	p.cwnd = 1000
	r.retireChunk(p, 0, &inFlightChunk{pathID: p.id, bytes: 10000, state: chunkSent}, time.Now(), &sackResult{ackedBytes: map[int]int{}})
	require.Equal(t, 0, p.bytesInFlight)
}

// TestOnT3ExpireMarksPathInactiveAtThreshold checks the path is marked
// Inactive on exactly its fifth consecutive T3 timeout, matching the
// ">= maxRetransCount" threshold association.go uses for T1 timeouts
// (spec.md §4.5: retransCount reaching 5 marks the path Inactive).
func TestOnT3ExpireMarksPathInactiveAtThreshold(t *testing.T) {
	r, p := newTestPathWithRecovery()
	now := time.Now()
	r.onSend(p, tsn(1), dataChunk(1), 100, now)

	for i := 0; i < maxRetransCount-1; i++ {
		r.onT3Expire(p, now)
		require.Equal(t, pathActive, p.state)
	}
	r.onT3Expire(p, now)
	require.Equal(t, pathInactive, p.state)
	require.False(t, p.confirmed)
}

// TestOnHeartbeatTimeoutMarksPathInactiveAtThreshold mirrors the T3 case
// for unanswered heartbeats.
func TestOnHeartbeatTimeoutMarksPathInactiveAtThreshold(t *testing.T) {
	r, p := newTestPathWithRecovery()
	now := time.Now()

	for i := 0; i < maxRetransCount-1; i++ {
		r.onHeartbeatTimeout(p, now)
		require.Equal(t, pathActive, p.state)
	}
	r.onHeartbeatTimeout(p, now)
	require.Equal(t, pathInactive, p.state)
	require.False(t, p.confirmed)
}

func TestEnterAndExitFastRecovery(t *testing.T) {
	_, p := newTestPathWithRecovery()
	cwndBefore := p.cwnd

	p.enterFastRecovery(tsn(100))
	require.True(t, p.inFastRecovery)
	require.LessOrEqual(t, p.cwnd, cwndBefore)
	require.Equal(t, tsn(100), p.recoveryPoint)

	p.maybeExitFastRecovery(tsn(50))
	require.True(t, p.inFastRecovery, "cum ack still behind the recovery point")

	p.maybeExitFastRecovery(tsn(101))
	require.False(t, p.inFastRecovery)
}
