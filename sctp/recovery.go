package sctp

import "time"

// recovery is the association-wide retransmission and congestion
// engine: it owns the sent-but-unacked chunk ledger across every path
// and turns incoming SACKs into RTT samples, cwnd updates, and
// retransmission decisions (spec.md §4.5).
type recovery struct {
	paths   []*path
	primary int // index into paths

	highestTSNAcked tsn
	haveAcked       bool

	missIndicationThreshold int
}

func newRecovery() *recovery {
	return &recovery{missIndicationThreshold: 3}
}

func (r *recovery) addPath(p *path) {
	r.paths = append(r.paths, p)
}

// hasOutstandingData reports whether any path still has unacked DATA,
// the signal the association waits on before ShutdownPending can
// advance to ShutdownSent (spec.md §4.6).
func (r *recovery) hasOutstandingData() bool {
	for _, p := range r.paths {
		if len(p.inFlight) > 0 {
			return true
		}
	}
	return false
}

func (r *recovery) pathFor(id int) *path {
	for _, p := range r.paths {
		if p.id == id {
			return p
		}
	}
	return nil
}

func (r *recovery) setPrimary(pathID int) {
	for i, p := range r.paths {
		if p.id == pathID {
			r.primary = i
			return
		}
	}
}

func (r *recovery) primaryPath() *path {
	if len(r.paths) == 0 {
		return nil
	}
	if r.paths[r.primary].eligiblePrimary() {
		return r.paths[r.primary]
	}
	for _, p := range r.paths {
		if p.eligiblePrimary() {
			return p
		}
	}
	return r.paths[r.primary]
}

// onSend records a freshly transmitted DATA chunk against its path,
// arming T3 if this is the path's first outstanding chunk.
func (r *recovery) onSend(p *path, t tsn, data *chunkData, size int, now time.Time) {
	seq := p.nextSeq
	p.nextSeq++
	doRTT := len(p.inFlight) == 0 || !p.hasRTTMeasurementInFlight()
	ch := &inFlightChunk{pathID: p.id, tsn: uint32(t), bytes: size, state: chunkSent, sentAt: now, doRTT: doRTT, data: data}
	p.inFlight[seq] = ch
	p.seqByTSN[uint32(t)] = seq
	p.bytesInFlight += size
	if p.t3Deadline.IsZero() {
		p.t3Deadline = now.Add(p.rto)
	}
}

// retransmit marks the chunk owning tsnVal on its path as sent again
// (fast or T3 retransmission) and returns its retained DATA chunk for
// the caller to marshal into the outbound packet. Karn's algorithm
// applies: a retransmitted chunk never contributes an RTT sample.
func (p *path) retransmit(tsnVal uint32, now time.Time) *chunkData {
	seq, ok := p.seqByTSN[tsnVal]
	if !ok {
		return nil
	}
	ch := p.inFlight[seq]
	if ch == nil || ch.data == nil {
		return nil
	}
	ch.state = chunkSent
	ch.sentAt = now
	ch.doRTT = false
	ch.missIndications = 0
	p.bytesInFlight += ch.bytes
	return ch.data
}

func (p *path) hasRTTMeasurementInFlight() bool {
	for _, ch := range p.inFlight {
		if ch.state == chunkSent && ch.doRTT {
			return true
		}
	}
	return false
}

// sackResult summarizes what processing one SACK changed, so the
// association layer knows whether to wake a blocked writer or fire a
// path-failure transition.
type sackResult struct {
	newlyAcked  []uint32
	ackedBytes  map[int]int // per path id
	cumAdvanced bool
}

// onSack applies one SACK chunk against the outstanding ledger on
// every path, per spec.md §4.5: cumulative ack retires chunks and
// feeds RTT samples; gap blocks mark chunks reaching a 3-miss threshold
// for fast retransmit; the ack clears or restarts T3 as appropriate.
func (r *recovery) onSack(s *chunkSack, now time.Time) *sackResult {
	res := &sackResult{ackedBytes: make(map[int]int)}
	cum := tsn(s.CumAck)

	ackedTSNs := map[uint32]bool{}
	highest := cum
	for _, p := range r.paths {
		for seq, ch := range p.inFlight {
			if ch.state != chunkSent {
				continue
			}
			if tsn(ch.tsn).lte(cum) {
				ackedTSNs[ch.tsn] = true
				r.retireChunk(p, seq, ch, now, res)
			}
		}
	}
	for _, g := range s.GapAckBlocks {
		for off := g.Start; off <= g.End; off++ {
			t := cum.add(uint32(off))
			if t.gt(highest) {
				highest = t
			}
			for _, p := range r.paths {
				seq, ok := p.seqByTSN[uint32(t)]
				if !ok {
					continue
				}
				ch := p.inFlight[seq]
				if ch == nil || ch.state != chunkSent {
					continue
				}
				ackedTSNs[uint32(t)] = true
				r.retireChunk(p, seq, ch, now, res)
			}
			if off == 65535 {
				break
			}
		}
	}

	if !r.haveAcked || cum.gt(r.highestTSNAcked) {
		r.highestTSNAcked = cum
		r.haveAcked = true
		res.cumAdvanced = true
	}

	for _, p := range r.paths {
		for _, ch := range p.inFlight {
			if ch.state != chunkSent {
				continue
			}
			if !tsn(ch.tsn).lt(highest) {
				continue
			}
			// Still outstanding despite a higher TSN being acked: this
			// chunk was skipped by a gap block, a miss indication per
			// spec.md §4.5 fast-retransmit supplement.
			ch.missIndications++
			if ch.missIndications >= r.missIndicationThreshold {
				ch.missIndications = 0
				ch.state = chunkLost
				p.bytesInFlight -= ch.bytes
				if p.bytesInFlight < 0 {
					p.bytesInFlight = 0
				}
				p.fastRetrans = append(p.fastRetrans, ch.tsn)
				if !p.inFastRecovery {
					p.enterFastRecovery(highest)
				}
			}
		}
		p.maybeExitFastRecovery(cum)
		if len(p.inFlight) == 0 {
			p.t3Deadline = time.Time{}
		} else {
			p.t3Deadline = now.Add(p.rto)
		}
	}

	for id, bytes := range res.ackedBytes {
		if p := r.pathFor(id); p != nil {
			p.onCongestionAck(bytes)
		}
	}

	for t := range ackedTSNs {
		res.newlyAcked = append(res.newlyAcked, t)
	}
	return res
}

func (r *recovery) retireChunk(p *path, seq pathSeq, ch *inFlightChunk, now time.Time, res *sackResult) {
	ch.state = chunkAcked
	if ch.doRTT {
		p.sampleRTT(now.Sub(ch.sentAt))
		p.retransCount = 0
	}
	p.bytesInFlight -= ch.bytes
	if p.bytesInFlight < 0 {
		p.bytesInFlight = 0
	}
	res.ackedBytes[p.id] += ch.bytes
	delete(p.inFlight, seq)
	delete(p.seqByTSN, ch.tsn)
}

// expiredT3 returns every path whose T3 timer is due, for the
// association's send pass to retransmit from.
func (r *recovery) expiredT3(now time.Time) []*path {
	var out []*path
	for _, p := range r.paths {
		if !p.t3Deadline.IsZero() && !now.Before(p.t3Deadline) {
			out = append(out, p)
		}
	}
	return out
}

// onT3Expire applies the timeout congestion penalty and backs off RTO,
// per spec.md §4.5. Every outstanding chunk on the path is marked Lost
// and queued on t3Retrans, retaining its data for the send pass to
// re-marshal; onT3Expire never discards ch.data the way a plain delete
// would.
func (r *recovery) onT3Expire(p *path, now time.Time) {
	p.onT3Timeout()
	p.retransCount++
	p.recomputeRTO()
	p.t3Deadline = now.Add(p.rto)

	for _, ch := range p.inFlight {
		if ch.state != chunkSent {
			continue
		}
		ch.state = chunkLost
		ch.missIndications = 0
		p.t3Retrans = append(p.t3Retrans, ch.tsn)
	}
	p.bytesInFlight = 0

	if p.retransCount >= maxRetransCount {
		p.state = pathInactive
		p.confirmed = false
	}
}

// nextHeartbeatTarget picks the path most overdue for a heartbeat probe
// (spec.md §4.5, heartbeat idle-timer probing): the one whose idle
// deadline is furthest in the past, skipping a path with a heartbeat
// already outstanding.
func (r *recovery) nextHeartbeatTarget(now time.Time) *path {
	var best *path
	for _, p := range r.paths {
		if p.heartbeatOutstanding {
			continue
		}
		if p.idleDeadline.IsZero() || now.Before(p.idleDeadline) {
			continue
		}
		if best == nil || p.idleDeadline.Before(best.idleDeadline) {
			best = p
		}
	}
	return best
}

const heartbeatInterval = 30 * time.Second

func (r *recovery) armIdleTimer(p *path, now time.Time) {
	p.idleDeadline = now.Add(heartbeatInterval + p.rto)
}

// onHeartbeatTimeout treats an unanswered heartbeat like a T3 timeout
// for RTO backoff and path-failure accounting, per spec.md §4.5.
func (r *recovery) onHeartbeatTimeout(p *path, now time.Time) {
	p.retransCount++
	p.recomputeRTO()
	p.heartbeatOutstanding = false
	if p.retransCount >= maxRetransCount {
		p.state = pathInactive
		p.confirmed = false
	}
}
