package sctp

import "sort"

// fragment is one DATA chunk kept by the reassembly engine while its
// message is still incomplete.
type fragment struct {
	tsn  tsn
	data []byte
}

// dataMessage is one or more fragments (begin/middle/end chunks)
// belonging to a single application message, per spec.md §3 "Inbound
// stream".
type dataMessage struct {
	unordered bool
	streamSeq ssn
	hasSeq    bool // false until the first fragment carrying a seq arrives (unordered has none)

	fragments []fragment // kept sorted by tsn

	startTSN    tsn
	endTSN      tsn
	haveStart   bool
	haveEnd     bool
	smallestTSN tsn
	largestTSN  tsn
	hasAny      bool
}

func newFragmentMessage(c *chunkData) *dataMessage {
	m := &dataMessage{unordered: c.Unordered}
	if !c.Unordered {
		m.streamSeq = ssn(c.StreamSeq)
		m.hasSeq = true
	}
	m.insertFragment(c)
	return m
}

// insertFragment merges one chunk into the message, per spec.md §4.3
// step 3 ("merge into it with insert").
func (m *dataMessage) insertFragment(c *chunkData) bool {
	t := tsn(c.TSN)
	for _, f := range m.fragments {
		if f.tsn == t {
			return false // duplicate TSN within the message, rejected
		}
	}

	idx := len(m.fragments)
	for i, f := range m.fragments {
		if t.lt(f.tsn) {
			idx = i
			break
		}
	}
	m.fragments = append(m.fragments, fragment{})
	copy(m.fragments[idx+1:], m.fragments[idx:])
	m.fragments[idx] = fragment{tsn: t, data: c.UserData}

	if !m.hasAny || t.lt(m.smallestTSN) {
		m.smallestTSN = t
	}
	if !m.hasAny || t.gt(m.largestTSN) {
		m.largestTSN = t
	}
	m.hasAny = true

	if c.Beginning {
		m.startTSN = t
		m.haveStart = true
	}
	if c.Ending {
		m.endTSN = t
		m.haveEnd = true
	}
	return true
}

// includes reports whether this message could own the given chunk: same
// stream sequence for ordered messages; for unordered messages, a TSN
// immediately adjacent to [smallest, largest], so a fragment that
// extends the run by one is recognized as a continuation rather than
// mistaken for a new message (spec.md §4.3 step 3).
//
// A begin or end chunk additionally owns this message only if it
// matches an already-known boundary exactly, or strictly extends the
// range past it (a begin must land below smallestTSN, an end above
// largestTSN). Without this a begin or end belonging to a different,
// TSN-adjacent message could be absorbed here instead, producing a
// message whose startTSN sits above its endTSN that can never
// complete (ported from the reference's is_include start_tsn/end_tsn
// ownership checks).
func (m *dataMessage) includes(c *chunkData) bool {
	if !m.unordered {
		return m.hasSeq && ssn(c.StreamSeq) == m.streamSeq
	}
	if !m.hasAny {
		return false
	}
	t := tsn(c.TSN)

	if c.Beginning {
		if m.haveStart {
			return t == m.startTSN
		}
		if !t.lt(m.smallestTSN) {
			return false
		}
	} else if m.haveStart && t.lt(m.startTSN) {
		return false
	}

	if c.Ending {
		if m.haveEnd {
			return t == m.endTSN
		}
		if !t.gt(m.largestTSN) {
			return false
		}
	} else if m.haveEnd && t.gt(m.endTSN) {
		return false
	}

	return t.gte(m.smallestTSN.sub(1)) && t.lte(m.largestTSN.add(1))
}

// adjacentTo reports whether m and other cover touching TSN runs with no
// gap between them, meaning they are really one message split in two by
// out-of-order arrival.
func (m *dataMessage) adjacentTo(other *dataMessage) bool {
	if !m.hasAny || !other.hasAny {
		return false
	}
	return other.smallestTSN == m.largestTSN.add(1) || m.smallestTSN == other.largestTSN.add(1)
}

// mergeFrom absorbs other's fragments and endpoints into m.
func (m *dataMessage) mergeFrom(other *dataMessage) {
	m.fragments = append(m.fragments, other.fragments...)
	sort.Slice(m.fragments, func(i, j int) bool { return m.fragments[i].tsn.lt(m.fragments[j].tsn) })
	if other.haveStart {
		m.startTSN = other.startTSN
		m.haveStart = true
	}
	if other.haveEnd {
		m.endTSN = other.endTSN
		m.haveEnd = true
	}
	m.recomputeBounds()
}

// splittable reports whether this unordered message could be split to
// absorb a chunk whose TSN falls inside its (not yet fully bounded)
// range but does not already belong to it (spec.md §4.3 step 4).
func (m *dataMessage) splittable(c *chunkData) bool {
	if !m.unordered || m.haveStart && m.haveEnd {
		return false
	}
	t := tsn(c.TSN)
	return m.hasAny && t.gte(m.smallestTSN) && t.lte(m.largestTSN)
}

// split breaks the message in two at t, moving chunk into the new half.
// Used only for unordered fragments of distinct messages that arrived
// out of order (spec.md §4.3 step 4).
func (m *dataMessage) split(c *chunkData) *dataMessage {
	t := tsn(c.TSN)
	other := &dataMessage{unordered: true}

	var keep, move []fragment
	for _, f := range m.fragments {
		if f.tsn.lt(t) {
			keep = append(keep, f)
		} else {
			move = append(move, f)
		}
	}
	if m.haveEnd && !m.endTSN.lt(t) {
		other.endTSN, other.haveEnd = m.endTSN, true
	}
	m.fragments = keep

	m.recomputeBounds()
	other.insertFragment(c)
	for _, f := range move {
		if f.tsn != t {
			other.absorb(f)
		}
	}
	other.recomputeBounds()
	return other
}

func (m *dataMessage) absorb(f fragment) {
	m.fragments = append(m.fragments, f)
}

// recomputeBounds recalculates smallest/largest TSN from the current
// fragment set. haveStart/haveEnd are preserved, not recomputed here:
// they only ever become true or false at insertFragment/mergeFrom, and
// are cleared if the endpoint fragment they refer to no longer appears
// in the set (true after a split moves it to the other half).
func (m *dataMessage) recomputeBounds() {
	m.hasAny = false
	for _, f := range m.fragments {
		if !m.hasAny || f.tsn.lt(m.smallestTSN) {
			m.smallestTSN = f.tsn
		}
		if !m.hasAny || f.tsn.gt(m.largestTSN) {
			m.largestTSN = f.tsn
		}
		m.hasAny = true
	}
	m.haveStart = m.haveStart && m.contains(m.startTSN)
	m.haveEnd = m.haveEnd && m.contains(m.endTSN)
}

func (m *dataMessage) contains(t tsn) bool {
	for _, f := range m.fragments {
		if f.tsn == t {
			return true
		}
	}
	return false
}

// complete reports whether the message has both endpoints and a
// gapless TSN run between them (spec.md §4.3 step 6).
func (m *dataMessage) complete() bool {
	if !m.haveStart || !m.haveEnd {
		return false
	}
	for i, f := range m.fragments {
		if f.tsn != m.startTSN.add(uint32(i)) {
			return false
		}
	}
	return true
}

// payload concatenates fragment payloads in TSN order.
func (m *dataMessage) payload() []byte {
	var out []byte
	for _, f := range m.fragments {
		out = append(out, f.data...)
	}
	return out
}

// inboundStream holds per-stream reassembly state, per spec.md §3
// "Inbound stream".
type inboundStream struct {
	id      uint16
	nextSeq ssn

	waitingOrdered   []*dataMessage
	waitingUnordered []*dataMessage
	readableOrdered  []*dataMessage
	readableUnordered []*dataMessage
}

func newInboundStream(id uint16) *inboundStream {
	return &inboundStream{id: id}
}

// handle processes one inbound DATA chunk destined for this stream,
// implementing spec.md §4.3 in full.
func (s *inboundStream) handle(c *chunkData) error {
	if !c.Unordered && ssn(c.StreamSeq).lt(s.nextSeq) {
		return ErrProtocolViolation
	}

	if c.Beginning && c.Ending {
		msg := newFragmentMessage(c)
		if c.Unordered {
			s.readableUnordered = append(s.readableUnordered, msg)
			return nil
		}
		if ssn(c.StreamSeq) == s.nextSeq {
			s.readableOrdered = append(s.readableOrdered, msg)
			s.nextSeq = s.nextSeq.add(1)
			s.drainOrdered()
			return nil
		}
		return s.insertWaitingOrdered(msg)
	}

	// A fragment: find an owning, splittable, or brand-new message.
	waiting := s.waitingUnordered
	if !c.Unordered {
		waiting = s.waitingOrdered
	}
	for _, msg := range waiting {
		if msg.includes(c) {
			if !msg.insertFragment(c) && !c.Unordered {
				return ErrProtocolViolation
			}
			s.drain()
			return nil
		}
	}

	if c.Unordered {
		for i, msg := range s.waitingUnordered {
			if msg.splittable(c) {
				other := msg.split(c)
				s.waitingUnordered = append(s.waitingUnordered, other)
				_ = i
				s.drain()
				return nil
			}
		}
		msg := newFragmentMessage(c)
		s.insertWaitingUnordered(msg)
		s.drain()
		return nil
	}

	msg := newFragmentMessage(c)
	if err := s.insertWaitingOrdered(msg); err != nil {
		return err
	}
	s.drain()
	return nil
}

func (s *inboundStream) insertWaitingOrdered(msg *dataMessage) error {
	for _, existing := range s.waitingOrdered {
		if existing.streamSeq == msg.streamSeq {
			return ErrProtocolViolation
		}
	}
	idx := len(s.waitingOrdered)
	for i := len(s.waitingOrdered) - 1; i >= 0; i-- {
		if s.waitingOrdered[i].streamSeq.lt(msg.streamSeq) {
			idx = i + 1
			break
		}
		idx = i
	}
	s.waitingOrdered = append(s.waitingOrdered, nil)
	copy(s.waitingOrdered[idx+1:], s.waitingOrdered[idx:])
	s.waitingOrdered[idx] = msg
	return nil
}

func (s *inboundStream) insertWaitingUnordered(msg *dataMessage) {
	idx := len(s.waitingUnordered)
	for i := len(s.waitingUnordered) - 1; i >= 0; i-- {
		if s.waitingUnordered[i].smallestTSN.lt(msg.smallestTSN) {
			idx = i + 1
			break
		}
		idx = i
	}
	s.waitingUnordered = append(s.waitingUnordered, nil)
	copy(s.waitingUnordered[idx+1:], s.waitingUnordered[idx:])
	s.waitingUnordered[idx] = msg
}

func (s *inboundStream) drain() {
	s.drainOrdered()
	s.mergeWaitingUnordered()
	s.drainUnordered()
}

// mergeWaitingUnordered folds together any two waiting unordered messages
// whose TSN runs have become adjacent, which happens when a message's
// fragments arrive with a gap that a later fragment fills.
func (s *inboundStream) mergeWaitingUnordered() {
	for {
		merged := false
		for i := 0; i < len(s.waitingUnordered) && !merged; i++ {
			for j := i + 1; j < len(s.waitingUnordered); j++ {
				a, b := s.waitingUnordered[i], s.waitingUnordered[j]
				if !a.adjacentTo(b) {
					continue
				}
				if b.smallestTSN.lt(a.smallestTSN) {
					a, b = b, a
				}
				a.mergeFrom(b)
				s.waitingUnordered[i] = a
				s.waitingUnordered = append(s.waitingUnordered[:j], s.waitingUnordered[j+1:]...)
				merged = true
				break
			}
		}
		if !merged {
			return
		}
	}
}

// drainOrdered moves every complete message at the head of the waiting
// queue whose stream_seq == next_seq to readable, in order.
func (s *inboundStream) drainOrdered() {
	for len(s.waitingOrdered) > 0 {
		head := s.waitingOrdered[0]
		if head.streamSeq != s.nextSeq || !head.complete() {
			break
		}
		s.readableOrdered = append(s.readableOrdered, head)
		s.waitingOrdered = s.waitingOrdered[1:]
		s.nextSeq = s.nextSeq.add(1)
	}
}

func (s *inboundStream) drainUnordered() {
	remaining := s.waitingUnordered[:0]
	for _, msg := range s.waitingUnordered {
		if msg.complete() {
			s.readableUnordered = append(s.readableUnordered, msg)
		} else {
			remaining = append(remaining, msg)
		}
	}
	s.waitingUnordered = remaining
}

// read pops the next readable message and copies its payload into wbuf.
// Readable ordered messages always go before readable unordered ones,
// whatever their arrival order.
func (s *inboundStream) read(wbuf []byte) (int, bool, error) {
	var msg *dataMessage
	if len(s.readableOrdered) > 0 {
		msg = s.readableOrdered[0]
		s.readableOrdered = s.readableOrdered[1:]
	} else if len(s.readableUnordered) > 0 {
		msg = s.readableUnordered[0]
		s.readableUnordered = s.readableUnordered[1:]
	} else {
		return 0, false, ErrDone
	}
	payload := msg.payload()
	n := copy(wbuf, payload)
	truncated := n < len(payload)
	return n, truncated, nil
}

func (s *inboundStream) hasReadable() bool {
	return len(s.readableOrdered) > 0 || len(s.readableUnordered) > 0
}

// --- outbound side ---------------------------------------------------

// pendingWrite is one producer-submitted write, possibly spanning
// several DATA chunks once fragmented.
type pendingWrite struct {
	data      []byte
	offset    int
	unordered bool
	complete  bool
	inFlight  bool
	streamSeq ssn
}

// outboundStream holds the per-stream write FIFO, per spec.md §3
// "Outbound stream".
type outboundStream struct {
	id      uint16
	nextSeq ssn
	pending []*pendingWrite
}

func newOutboundStream(id uint16) *outboundStream {
	return &outboundStream{id: id}
}

// write appends application bytes to the FIFO, concatenating into the
// tail entry if it is not yet complete (spec.md §4.4).
func (s *outboundStream) write(data []byte, unordered, complete bool) {
	if n := len(s.pending); n > 0 {
		tail := s.pending[n-1]
		if !tail.complete && tail.unordered == unordered {
			tail.data = append(tail.data, data...)
			tail.complete = complete
			return
		}
	}
	s.pending = append(s.pending, &pendingWrite{data: data, unordered: unordered, complete: complete})
}

func (s *outboundStream) hasPending() bool {
	return len(s.pending) > 0
}

// generateData produces the next DATA chunk to send, per spec.md §4.4.
func (s *outboundStream) generateData(nextTSN uint32, fragmentPoint int) (*chunkData, bool) {
	if len(s.pending) == 0 {
		return nil, false
	}
	head := s.pending[0]
	remaining := head.data[head.offset:]

	c := &chunkData{
		TSN:               nextTSN,
		StreamIdentifier:  s.id,
		PayloadProtocolID: 0,
	}
	if !head.unordered {
		if !head.inFlight {
			head.streamSeq = s.nextSeq
		}
		c.StreamSeq = uint16(head.streamSeq)
	}
	c.Unordered = head.unordered
	c.Beginning = !head.inFlight

	if head.complete && len(remaining) <= fragmentPoint {
		c.UserData = remaining
		c.Ending = true
		s.pending = s.pending[1:]
		if !head.unordered {
			s.nextSeq = s.nextSeq.add(1)
		}
		return c, true
	}

	take := fragmentPoint
	if take > len(remaining) {
		take = len(remaining)
	}
	c.UserData = remaining[:take]
	c.Ending = false
	head.offset += take
	head.inFlight = true
	return c, true
}
