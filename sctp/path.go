package sctp

import (
	"net"
	"time"
)

// pathState mirrors spec.md §3 "Remote path": a path is eligible to be
// primary only if confirmed && Active.
type pathState uint8

const (
	pathActive pathState = iota
	pathInactive
)

const (
	defaultRawMTU     = 1500
	ipv4HeaderLen     = 20
	ipv6HeaderLen     = 40
	udpHeaderLen      = 8
	maxRetransCount   = 5
	initialCwndInMTUs = 4
)

// inFlightChunk is the recovery engine's bookkeeping for one
// transmitted DATA chunk, keyed by the path's per-send sequence.
type inFlightChunk struct {
	pathID   int
	tsn      uint32
	bytes    int
	state    chunkSendState
	sentAt   time.Time
	doRTT    bool
	missIndications int
	data     *chunkData // retained so a Lost chunk can be re-marshalled on retransmit
}

type chunkSendState uint8

const (
	chunkSent chunkSendState = iota
	chunkAcked
	chunkLost
)

// path is one remote IP address with its own RTT, congestion, and
// timer state (spec.md §3 "Remote path").
type path struct {
	id        int
	addr      net.IP
	rawMTU    int
	isIPv6    bool
	state     pathState
	confirmed bool
	primary   bool

	// RTT / RTO
	srtt        time.Duration
	rttvar      time.Duration
	haveRTT     bool
	rto         time.Duration
	retransCount int

	// congestion control
	cwnd              int
	ssthresh           int // 0 means +Inf per spec.md §4.5
	bytesInFlight     int
	partialBytesAcked int
	inFastRecovery    bool
	recoveryPoint     tsn

	// per-send sequencing and outstanding chunks
	nextSeq   pathSeq
	inFlight  map[pathSeq]*inFlightChunk
	seqByTSN  map[uint32]pathSeq

	// timers, expressed as absolute deadlines; zero means disarmed
	t1Deadline        time.Time
	t1SentAt          time.Time
	t3Deadline        time.Time
	idleDeadline      time.Time
	heartbeatOutstanding bool
	heartbeatSeq      uint64
	heartbeatRandom   uint64
	heartbeatSentAt   time.Time
	nextHBSeq         uint64

	// queued control chunks awaiting T1, and fast/T3 retransmit queues
	pendingT1   []chunk
	fastRetrans []uint32
	t3Retrans   []uint32
}

func newPath(id int, addr net.IP) *path {
	isV6 := addr.To4() == nil
	p := &path{
		id:       id,
		addr:     addr,
		rawMTU:   defaultRawMTU,
		isIPv6:   isV6,
		state:    pathActive,
		rto:      3 * time.Second,
		inFlight: make(map[pathSeq]*inFlightChunk),
		seqByTSN: make(map[uint32]pathSeq),
	}
	p.cwnd = initialCwndInMTUs * p.payloadMTU()
	p.ssthresh = 0 // +Inf sentinel
	return p
}

// payloadMTU returns the per-path payload budget: raw MTU minus the IP
// header (20 for IPv4, 40 for IPv6), UDP header, and the 12-byte SCTP
// common header (spec.md §6, §4.5 supplemented).
func (p *path) payloadMTU() int {
	ipHeader := ipv4HeaderLen
	if p.isIPv6 {
		ipHeader = ipv6HeaderLen
	}
	budget := p.rawMTU - ipHeader - udpHeaderLen - commonHeaderSize
	if budget < 64 {
		budget = 64
	}
	return budget
}

func (p *path) eligiblePrimary() bool {
	return p.confirmed && p.state == pathActive
}

// PathStats is the read-only snapshot exposed for instrumentation
// (spec.md §4.5.1, ambient).
type PathStats struct {
	Address           string
	State             string
	Confirmed         bool
	SRTT              time.Duration
	RTTVar            time.Duration
	RTO               time.Duration
	Cwnd              int
	Ssthresh          int
	BytesInFlight     int
	RetransCount      int
	InFastRecovery    bool
}

func (p *path) stats() PathStats {
	state := "Active"
	if p.state == pathInactive {
		state = "Inactive"
	}
	ssthresh := p.ssthresh
	return PathStats{
		Address:        p.addr.String(),
		State:          state,
		Confirmed:      p.confirmed,
		SRTT:           p.srtt,
		RTTVar:         p.rttvar,
		RTO:            p.rto,
		Cwnd:           p.cwnd,
		Ssthresh:       ssthresh,
		BytesInFlight:  p.bytesInFlight,
		RetransCount:   p.retransCount,
		InFastRecovery: p.inFastRecovery,
	}
}

const (
	minRTO     = 1 * time.Second
	maxRTO     = 60 * time.Second
	initialRTO = 3 * time.Second
)

func clampRTO(d time.Duration) time.Duration {
	if d < minRTO {
		return minRTO
	}
	if d > maxRTO {
		return maxRTO
	}
	return d
}

// sampleRTT feeds one round-trip measurement into the path's SRTT/RTTVAR
// and recomputes RTO, per spec.md §4.5.
func (p *path) sampleRTT(rtt time.Duration) {
	if !p.haveRTT {
		p.srtt = rtt
		p.rttvar = rtt / 2
		p.haveRTT = true
	} else {
		diff := p.srtt - rtt
		if diff < 0 {
			diff = -diff
		}
		p.rttvar = time.Duration(0.75*float64(p.rttvar) + 0.25*float64(diff))
		p.srtt = time.Duration(0.875*float64(p.srtt) + 0.125*float64(rtt))
	}
	p.recomputeRTO()
}

func (p *path) recomputeRTO() {
	base := initialRTO
	if p.haveRTT {
		base = p.srtt + 4*p.rttvar
	}
	mult := uint(1) << uint(minInt(p.retransCount, 10))
	p.rto = clampRTO(base * time.Duration(mult))
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// ssthreshOrInf returns ssthresh treating 0 as +Inf.
func (p *path) ssthreshOrInf() int {
	if p.ssthresh == 0 {
		return int(^uint(0) >> 1)
	}
	return p.ssthresh
}

// onCongestionAck applies the slow-start / congestion-avoidance update
// for one SACK that advanced the cumulative ack by ackedBytes, per
// spec.md §4.5.
func (p *path) onCongestionAck(ackedBytes int) {
	if p.inFastRecovery {
		return
	}
	mtu := p.payloadMTU()
	if p.bytesInFlight+ackedBytes < p.cwnd {
		return
	}
	if p.cwnd <= p.ssthreshOrInf() {
		inc := ackedBytes
		if inc < mtu {
			inc = mtu
		}
		p.cwnd += inc
	} else {
		p.partialBytesAcked += ackedBytes
		if p.partialBytesAcked >= p.cwnd {
			p.cwnd += mtu
			p.partialBytesAcked -= p.cwnd
			if p.partialBytesAcked < 0 {
				p.partialBytesAcked = 0
			}
		}
	}
}

// onT3Timeout applies the RFC 4960-style congestion collapse on a data
// retransmission timeout.
func (p *path) onT3Timeout() {
	mtu := p.payloadMTU()
	half := p.cwnd / 2
	if 4*mtu > half {
		p.ssthresh = 4 * mtu
	} else {
		p.ssthresh = half
	}
	p.cwnd = mtu
}

// enterFastRecovery marks the path in fast recovery, per spec.md §4.5.
func (p *path) enterFastRecovery(largestTSN tsn) {
	mtu := p.payloadMTU()
	half := p.cwnd / 2
	if half > 4*mtu {
		p.ssthresh = half
	} else {
		p.ssthresh = 4 * mtu
	}
	p.cwnd = p.ssthresh
	p.inFastRecovery = true
	p.recoveryPoint = largestTSN
}

func (p *path) maybeExitFastRecovery(cumTSN tsn) {
	if p.inFastRecovery && cumTSN.gt(p.recoveryPoint) {
		p.inFastRecovery = false
	}
}
