package sctp

import (
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/pion/logging"
)

// state is one of the association's lifecycle states, exactly one
// active at a time (spec.md §3 "Lifecycle states").
type state uint8

const (
	stateClosed state = iota
	stateCookieWait
	stateCookieEchoed
	stateEstablished
	stateShutdownPending
	stateShutdownSent
	stateShutdownReceived
	stateShutdownAckSent
)

func (s state) String() string {
	switch s {
	case stateClosed:
		return "Closed"
	case stateCookieWait:
		return "CookieWait"
	case stateCookieEchoed:
		return "CookieEchoed"
	case stateEstablished:
		return "Established"
	case stateShutdownPending:
		return "ShutdownPending"
	case stateShutdownSent:
		return "ShutdownSent"
	case stateShutdownReceived:
		return "ShutdownReceived"
	case stateShutdownAckSent:
		return "ShutdownAckSent"
	default:
		return "unknown"
	}
}

// localAddrState tracks one local address through its own small
// lifecycle (spec.md §3 "Local address"). Nothing in this module
// currently drives Adding/Deleting transitions — addresses are fixed
// at Connect()/accept() time — but the states are modeled so a future
// ASCONF-style extension has somewhere to put them (spec.md §10).
type localAddrState uint8

const (
	localEmpty localAddrState = iota
	localAdding
	localAdded
	localDeleting
	localDeleted
)

type localAddress struct {
	ip    net.IP
	state localAddrState
}

const (
	maxStreams            = uint16(65535)
	delayedAckTimeout      = 200 * time.Millisecond
	ackFreq                = 2
	defaultAdvertisedRwnd  = 128 * 1024
	burstMax               = 4
)

// Config supplies an association's dependencies: no package-level
// singletons, per spec.md §9.
type Config struct {
	RNG            RNG
	Secret         []byte
	LoggerFactory  logging.LoggerFactory
	AdvertisedRwnd uint32
}

func (cfg *Config) fillDefaults() {
	if cfg.RNG == nil {
		cfg.RNG = NewMathRNG()
	}
	if cfg.AdvertisedRwnd == 0 {
		cfg.AdvertisedRwnd = defaultAdvertisedRwnd
	}
}

// pendingControlEntry is one control chunk queued for the next Send(),
// keyed by a monotonic sequence (spec.md §3 "pending-control queue").
type pendingControlEntry struct {
	seq uint64
	c   chunk
}

// Association is one userspace SCTP endpoint state machine (spec.md §3
// "Association"). Methods are not internally synchronized; a host
// sharing one Association across goroutines must serialize access
// itself (spec.md §5).
type Association struct {
	cfg Config
	log logging.LeveledLogger
	id  string

	srcPort, dstPort   uint16
	myVtag, peerVtag   uint32
	st                 state

	advertisedRwnd                     uint32
	peerRwnd                           uint32
	initialTSN                         uint32
	nextTSN                            tsn
	numOutboundStreams, numInboundStreams uint16

	paths       []*path
	localAddrs  []localAddress

	mapping  *mappingArray
	recovery *recovery

	inbound  map[uint16]*inboundStream
	outbound map[uint16]*outboundStream

	nextControlSeq uint64
	pendingControl []pendingControlEntry

	delayedAck      deadline
	sendSack        bool
	numDataPktsSeen int
	lastDataPath    int

	burstCount int

	abortCause []byte

	t2Deadline    deadline
	shutdownChunk chunk
}

// NewAssociation constructs an idle Association in the Closed state.
func NewAssociation(cfg Config) *Association {
	cfg.fillDefaults()
	log, id := newAssociationLogger(cfg.LoggerFactory)
	return &Association{
		cfg:            cfg,
		log:            log,
		id:             id,
		st:             stateClosed,
		advertisedRwnd: cfg.AdvertisedRwnd,
		recovery:       newRecovery(),
		inbound:        make(map[uint16]*inboundStream),
		outbound:       make(map[uint16]*outboundStream),
	}
}

func (a *Association) addPath(ip net.IP) *path {
	p := newPath(len(a.paths), ip)
	a.paths = append(a.paths, p)
	a.recovery.addPath(p)
	return p
}

func (a *Association) pathByIP(ip net.IP) *path {
	for _, p := range a.paths {
		if p.addr.Equal(ip) {
			return p
		}
	}
	return nil
}

func (a *Association) primaryPath() *path {
	return a.recovery.primaryPath()
}

func (a *Association) queueControl(c chunk) {
	a.pendingControl = append(a.pendingControl, pendingControlEntry{seq: a.nextControlSeq, c: c})
	a.nextControlSeq++
}

func (a *Association) inboundStreamFor(id uint16) *inboundStream {
	s, ok := a.inbound[id]
	if !ok {
		s = newInboundStream(id)
		a.inbound[id] = s
	}
	return s
}

func (a *Association) outboundStreamFor(id uint16) *outboundStream {
	s, ok := a.outbound[id]
	if !ok {
		s = newOutboundStream(id)
		a.outbound[id] = s
	}
	return s
}

// Connect starts the client side of the handshake: random tags,
// registers local addresses and one remote path, transitions to
// CookieWait, and queues an INIT on that path (spec.md §4.6 connect).
func (a *Association) Connect(srcPort, dstPort uint16, srcIPs []net.IP, dstIP net.IP) error {
	if a.st != stateClosed {
		return fmt.Errorf("%w: Connect called in state %s", ErrInvalidValue, a.st)
	}
	a.srcPort, a.dstPort = srcPort, dstPort
	a.myVtag = a.cfg.RNG.Uint32()
	a.initialTSN = a.cfg.RNG.Uint32()
	a.nextTSN = tsn(a.initialTSN)

	for _, ip := range srcIPs {
		a.localAddrs = append(a.localAddrs, localAddress{ip: ip, state: localAdded})
	}

	p := a.addPath(dstIP)
	a.recovery.setPrimary(p.id)

	var params []param
	for _, la := range a.localAddrs {
		params = append(params, ipParam(la.ip))
	}

	init := &chunkInit{chunkInitCommon{
		InitiateTag:        a.myVtag,
		AdvertisedRwnd:     a.advertisedRwnd,
		NumOutboundStreams: maxStreams,
		NumInboundStreams:  maxStreams,
		InitialTSN:         a.initialTSN,
		Params:             params,
	}}

	p.pendingT1 = []chunk{init}
	a.st = stateCookieWait
	a.log.Infof("connect: src=%d dst=%d -> %s, state CookieWait", srcPort, dstPort, dstIP)
	return nil
}

// Accept is the stateless server entry point: no association exists
// until a valid COOKIE-ECHO arrives (spec.md §4.6 accept).
func Accept(fromIP net.IP, rbuf []byte, sbuf []byte, cfg Config) (*Association, int, error) {
	cfg.fillDefaults()
	var pkt packet
	if err := pkt.unmarshal(rbuf); err != nil {
		return nil, 0, err
	}
	if len(pkt.Chunks) == 0 {
		return nil, 0, fmt.Errorf("%w: empty datagram", ErrInvalidChunk)
	}

	switch c := pkt.Chunks[0].(type) {
	case *chunkInit:
		return acceptInit(fromIP, &pkt, c, sbuf, cfg)
	case *chunkCookieEcho:
		return acceptCookieEcho(fromIP, &pkt, c, sbuf, cfg)
	default:
		resp := ootbResponse(pkt.Chunks[0])
		if resp == nil {
			return nil, 0, nil
		}
		out := &packet{SourcePort: pkt.DestinationPort, DestinationPort: pkt.SourcePort, VerificationTag: pkt.VerificationTag, Chunks: []chunk{resp}}
		raw, err := out.marshal()
		if err != nil {
			return nil, 0, err
		}
		n := copy(sbuf, raw)
		return nil, n, nil
	}
}

// ootbResponse implements the out-of-the-blue table from spec.md §4.6
// (supplemented in SPEC_FULL.md §4.6) for every chunk type that is not
// handled by a dedicated branch in its caller. A nil return means
// silent drop.
func ootbResponse(c chunk) chunk {
	switch c.(type) {
	case *chunkShutdownAck:
		return &chunkShutdownComplete{TBit: true}
	case *chunkAbort, *chunkShutdownComplete:
		return nil
	default:
		return &chunkAbort{TBit: true}
	}
}

func acceptInit(fromIP net.IP, pkt *packet, init *chunkInit, sbuf []byte, cfg Config) (*Association, int, error) {
	if err := init.validate(); err != nil {
		return nil, 0, fmt.Errorf("%w: %s", ErrProtocolViolation, err)
	}

	myVtag := cfg.RNG.Uint32()
	initialTSN := cfg.RNG.Uint32()

	initAck := &chunkInitAck{chunkInitCommon{
		InitiateTag:        myVtag,
		AdvertisedRwnd:     cfg.AdvertisedRwnd,
		NumOutboundStreams: maxStreams,
		NumInboundStreams:  maxStreams,
		InitialTSN:         initialTSN,
	}}

	cookie := &stateCookie{
		Init:      init,
		InitAck:   initAck,
		MyVtag:    myVtag,
		PeerVtag:  init.InitiateTag,
		SrcPort:   pkt.DestinationPort,
		DstPort:   pkt.SourcePort,
		PeerAddr:  fromIP,
		Timestamp: uint64(time.Now().UnixNano()),
	}
	raw, err := cookie.encode(cfg.Secret)
	if err != nil {
		return nil, 0, err
	}
	initAck.Params = append(initAck.Params, &paramCookie{Cookie: raw})

	out := &packet{SourcePort: pkt.DestinationPort, DestinationPort: pkt.SourcePort, VerificationTag: init.InitiateTag, Chunks: []chunk{initAck}}
	outRaw, err := out.marshal()
	if err != nil {
		return nil, 0, err
	}
	n := copy(sbuf, outRaw)
	return nil, n, nil
}

func acceptCookieEcho(fromIP net.IP, pkt *packet, echo *chunkCookieEcho, sbuf []byte, cfg Config) (*Association, int, error) {
	cookie, err := decodeStateCookie(echo.Cookie, cfg.Secret)
	if err != nil {
		// Invalid HMAC: silent drop per spec.md §4.6.
		return nil, 0, nil
	}

	a := NewAssociation(cfg)
	a.srcPort, a.dstPort = cookie.DstPort, cookie.SrcPort
	a.myVtag = cookie.MyVtag
	a.peerVtag = cookie.PeerVtag
	a.initialTSN = cookie.InitAck.InitialTSN
	a.nextTSN = tsn(a.initialTSN)
	a.numOutboundStreams = cookie.Init.NumInboundStreams
	a.numInboundStreams = cookie.Init.NumOutboundStreams

	a.mapping = newMappingArray()
	a.mapping.initialize(cookie.Init.InitialTSN)

	a.localAddrs = append(a.localAddrs, localAddress{ip: cookie.PeerAddr, state: localAdded})
	p := a.addPath(cookie.PeerAddr)
	a.recovery.setPrimary(p.id)
	p.confirmed = true

	a.st = stateEstablished
	a.queueControl(&chunkCookieAck{})

	out := &packet{SourcePort: a.srcPort, DestinationPort: a.dstPort, VerificationTag: a.peerVtag}
	n, err := a.drainOneControl(sbuf, out)
	if err != nil {
		return nil, 0, err
	}
	return a, n, nil
}

// Recv processes one inbound datagram. It returns the number of bytes
// written into sbuf (0 unless an immediate response is required before
// the next Send()) and an error classifying any failure.
func (a *Association) Recv(fromIP net.IP, rbuf []byte, sbuf []byte) (int, error) {
	var pkt packet
	if err := pkt.unmarshal(rbuf); err != nil {
		return 0, err
	}

	p := a.pathByIP(fromIP)
	if p == nil {
		a.st = stateClosed
		a.abortCause = []byte("datagram from unrecognized path")
		a.log.Warnf("recv: datagram from unrecognized path %s, closing", fromIP)
		return 0, ErrOOTB
	}

	sawData := false
	for _, c := range pkt.Chunks {
		if _, ok := c.(*chunkData); ok {
			sawData = true
			continue
		}
		if sawData {
			return a.abort(p, "DATA followed by control chunk in the same datagram", sbuf)
		}
	}

	now := time.Now()
	for _, c := range pkt.Chunks {
		if err := a.handleChunk(p, c, now); err != nil {
			if errors.Is(err, ErrProtocolViolation) {
				return a.abort(p, err.Error(), sbuf)
			}
			return 0, err
		}
	}
	return 0, nil
}

func (a *Association) abort(p *path, cause string, sbuf []byte) (int, error) {
	a.abortCause = []byte(cause)
	a.st = stateClosed
	a.log.Warnf("association aborted: %s", cause)
	out := &packet{SourcePort: a.srcPort, DestinationPort: a.dstPort, VerificationTag: a.peerVtag, Chunks: []chunk{&chunkAbort{ErrorCauses: a.abortCause}}}
	raw, err := out.marshal()
	if err != nil {
		return 0, err
	}
	return copy(sbuf, raw), ErrProtocolViolation
}

// handleChunk dispatches one parsed chunk per spec.md §4.6 recv().
func (a *Association) handleChunk(p *path, c chunk, now time.Time) error {
	switch v := c.(type) {
	case *chunkData:
		return a.handleData(p, v, now)
	case *chunkInitAck:
		return a.handleInitAck(p, v, now)
	case *chunkSack:
		return a.handleSack(v, now)
	case *chunkHeartbeat:
		a.queueControl(&chunkHeartbeatAck{Info: v.Info})
		return nil
	case *chunkHeartbeatAck:
		return a.handleHeartbeatAck(p, v, now)
	case *chunkAbort:
		a.abortCause = v.ErrorCauses
		a.st = stateClosed
		a.log.Warnf("peer sent ABORT")
		return nil
	case *chunkShutdown:
		a.st = stateShutdownReceived
		a.queueControl(&chunkShutdownAck{})
		return nil
	case *chunkShutdownAck:
		if a.st != stateShutdownSent {
			return nil
		}
		a.st = stateClosed
		a.t2Deadline.disarm()
		a.queueControl(&chunkShutdownComplete{})
		return nil
	case *chunkCookieAck:
		if a.st == stateCookieEchoed {
			a.st = stateEstablished
			p.t1Deadline = time.Time{}
			p.pendingT1 = nil
			a.log.Infof("association established")
		}
		return nil
	case *chunkShutdownComplete:
		a.st = stateClosed
		return nil
	default:
		return nil // unknown chunk type, preserved but inert
	}
}

func (a *Association) handleData(p *path, c *chunkData, now time.Time) error {
	if a.mapping == nil {
		a.mapping = newMappingArray()
		a.mapping.initialize(c.TSN)
	}
	if _, _, err := a.mapping.update(c.TSN); err != nil {
		return err
	}

	stream := a.inboundStreamFor(c.StreamIdentifier)
	if err := stream.handle(c); err != nil {
		return err
	}

	a.lastDataPath = p.id
	a.numDataPktsSeen++
	if a.numDataPktsSeen >= ackFreq {
		a.sendSack = true
		a.delayedAck.disarm()
	} else if !a.delayedAck.set {
		a.delayedAck.arm(now.Add(delayedAckTimeout))
	}
	return nil
}

func (a *Association) handleInitAck(p *path, c *chunkInitAck, now time.Time) error {
	if a.st != stateCookieWait {
		return nil
	}
	if err := c.validate(); err != nil {
		return fmt.Errorf("%w: %s", ErrProtocolViolation, err)
	}
	cookie, ok := c.cookie()
	if !ok {
		return fmt.Errorf("%w: INIT-ACK carries no Cookie parameter", ErrProtocolViolation)
	}

	if p.retransCount == 0 && !p.t1SentAt.IsZero() {
		p.sampleRTT(now.Sub(p.t1SentAt))
	}
	p.t1Deadline = time.Time{}
	p.pendingT1 = nil
	p.retransCount = 0

	a.peerVtag = c.InitiateTag
	a.numOutboundStreams = c.NumInboundStreams
	a.numInboundStreams = c.NumOutboundStreams
	a.mapping = newMappingArray()
	a.mapping.initialize(c.InitialTSN)

	for _, addr := range c.addresses() {
		ip := net.ParseIP(addr)
		if ip == nil || a.pathByIP(ip) != nil {
			continue
		}
		a.addPath(ip)
	}

	p.confirmed = true
	a.recovery.setPrimary(p.id)

	a.st = stateCookieEchoed
	echo := &chunkCookieEcho{Cookie: cookie}
	p.pendingT1 = []chunk{echo}
	a.log.Infof("INIT-ACK received, state CookieEchoed")
	return nil
}

func (a *Association) handleSack(s *chunkSack, now time.Time) error {
	a.recovery.onSack(s, now)
	if a.st == stateShutdownPending && !a.recovery.hasOutstandingData() {
		a.st = stateShutdownSent
		sd := &chunkShutdown{CumAck: uint32(a.mappingCumTSN())}
		a.shutdownChunk = sd
		a.queueControl(sd)
		a.t2Deadline.arm(now.Add(a.primaryRTO()))
	}
	return nil
}

func (a *Association) mappingCumTSN() tsn {
	if a.mapping == nil {
		return 0
	}
	return a.mapping.cumTSN
}

func (a *Association) primaryRTO() time.Duration {
	if pp := a.primaryPath(); pp != nil {
		return pp.rto
	}
	return initialRTO
}

func (a *Association) handleHeartbeatAck(p *path, c *chunkHeartbeatAck, now time.Time) error {
	if !p.heartbeatOutstanding {
		return nil
	}
	if len(c.Info) != 20 || getUint32(c.Info[0:4]) != uint32(p.id) ||
		getUint64(c.Info[4:12]) != p.heartbeatSeq || getUint64(c.Info[12:20]) != p.heartbeatRandom {
		return nil
	}
	p.heartbeatOutstanding = false
	p.sampleRTT(now.Sub(p.heartbeatSentAt))
	p.retransCount = 0
	p.confirmed = true
	a.recovery.armIdleTimer(p, now)
	return nil
}

// Send is the outbound pacer, writing chunks into sbuf in the priority
// order from spec.md §4.6 send(): fast-retrans, T3-retrans, delayed
// SACK, control chunks, further fast/T3 retransmissions, then fresh
// data, burst-capped and bounded by the primary path's MTU and cwnd.
func (a *Association) Send(sbuf []byte) (int, net.IP, error) {
	pp := a.primaryPath()
	if pp == nil {
		return 0, nil, ErrDone
	}

	now := time.Now()
	var chunks []chunk
	budget := pp.payloadMTU()

	// One single-packet retransmission pass per queue before anything
	// else goes out, per spec.md §4.6 send() priority order.
	chunks = a.drainRetransQueue(pp, &pp.fastRetrans, &budget, now, 1)
	chunks = append(chunks, a.drainRetransQueue(pp, &pp.t3Retrans, &budget, now, 1)...)

	if a.sendSack || a.delayedAck.due(now) {
		if a.mapping != nil {
			chunks = append(chunks, a.mapping.generateSack(a.advertisedRwnd))
			a.sendSack = false
			a.delayedAck.disarm()
			a.numDataPktsSeen = 0
		}
	}

	for len(a.pendingControl) > 0 && a.burstCount < burstMax {
		entry := a.pendingControl[0]
		raw, err := marshalChunk(entry.c, flagsFor(entry.c))
		if err != nil {
			return 0, nil, err
		}
		if len(raw) > budget {
			break
		}
		chunks = append(chunks, entry.c)
		budget -= len(raw)
		a.pendingControl = a.pendingControl[1:]
	}

	for _, p := range a.paths {
		for _, c := range p.pendingT1 {
			raw, err := marshalChunk(c, flagsFor(c))
			if err != nil {
				return 0, nil, err
			}
			if len(raw) > budget {
				continue
			}
			chunks = append(chunks, c)
			budget -= len(raw)
			if p.t1Deadline.IsZero() {
				p.t1Deadline = now.Add(p.rto)
				p.t1SentAt = now
			}
		}
	}

	if a.st == stateShutdownSent || a.st == stateShutdownAckSent {
		if a.shutdownChunk != nil && a.t2Deadline.due(now) {
			chunks = append(chunks, a.shutdownChunk)
			a.t2Deadline.arm(now.Add(pp.rto))
		}
	}

	// Further retransmissions, honoring cwnd this time unlike the single
	// guaranteed first pass above.
	if pp.bytesInFlight < pp.cwnd {
		chunks = append(chunks, a.drainRetransQueue(pp, &pp.fastRetrans, &budget, now, burstMax)...)
	}
	if pp.bytesInFlight < pp.cwnd {
		chunks = append(chunks, a.drainRetransQueue(pp, &pp.t3Retrans, &budget, now, burstMax)...)
	}

	for len(a.outboundStreamsWithPending()) > 0 && a.burstCount < burstMax {
		s := a.nextOutboundWithPending()
		if s == nil {
			break
		}
		if pp.bytesInFlight >= pp.cwnd {
			break
		}
		if budget <= chunkHeaderSize+dataChunkFixedLength {
			break
		}
		c, ok := s.generateData(uint32(a.nextTSN), budget-chunkHeaderSize-dataChunkFixedLength)
		if !ok {
			break
		}
		raw, err := marshalChunkData(c)
		if err != nil {
			return 0, nil, err
		}
		if len(raw) > budget {
			break
		}
		chunks = append(chunks, c)
		budget -= len(raw)
		a.recovery.onSend(pp, a.nextTSN, c, len(raw), now)
		a.nextTSN = a.nextTSN.add(1)
	}

	if len(chunks) == 0 {
		a.burstCount = 0
		return 0, nil, ErrDone
	}
	a.burstCount++

	out := &packet{SourcePort: a.srcPort, DestinationPort: a.dstPort, VerificationTag: a.peerVtag, Chunks: chunks}
	raw, err := out.marshal()
	if err != nil {
		return 0, nil, err
	}
	n := copy(sbuf, raw)
	return n, pp.addr, nil
}

// drainRetransQueue pops up to max TSNs off queue, fetches each chunk via
// p.retransmit, re-marshals it, and returns the chunks that fit within
// budget. A TSN
// whose chunk is no longer outstanding (already acked, or from a path
// that no longer tracks it) is simply dropped from the queue.
func (a *Association) drainRetransQueue(p *path, queue *[]uint32, budget *int, now time.Time, max int) []chunk {
	var out []chunk
	sent := 0
	for len(*queue) > 0 && sent < max {
		t := (*queue)[0]
		*queue = (*queue)[1:]
		c := p.retransmit(t, now)
		if c == nil {
			continue
		}
		raw, err := marshalChunkData(c)
		if err != nil || len(raw) > *budget {
			*queue = append(*queue, t)
			break
		}
		out = append(out, c)
		*budget -= len(raw)
		sent++
	}
	return out
}

func (a *Association) drainOneControl(sbuf []byte, out *packet) (int, error) {
	if len(a.pendingControl) == 0 {
		return 0, nil
	}
	out.Chunks = []chunk{a.pendingControl[0].c}
	a.pendingControl = a.pendingControl[1:]
	raw, err := out.marshal()
	if err != nil {
		return 0, err
	}
	return copy(sbuf, raw), nil
}

func (a *Association) outboundStreamsWithPending() []uint16 {
	var ids []uint16
	for id, s := range a.outbound {
		if s.hasPending() {
			ids = append(ids, id)
		}
	}
	return ids
}

func (a *Association) nextOutboundWithPending() *outboundStream {
	for _, s := range a.outbound {
		if s.hasPending() {
			return s
		}
	}
	return nil
}

// GetTimeout returns the minimum of the delayed-ack and recovery
// timeouts as a duration from now, or false if nothing is armed.
func (a *Association) GetTimeout(now time.Time) (time.Duration, bool) {
	best, ok := a.delayedAck.until(now)
	if t2, set := a.t2Deadline.until(now); set {
		best, ok = minTimeout(best, t2, ok, set)
	}
	for _, p := range a.paths {
		if t1, set := (deadline{at: p.t1Deadline, set: !p.t1Deadline.IsZero()}).until(now); set {
			best, ok = minTimeout(best, t1, ok, set)
		}
		if t3, set := (deadline{at: p.t3Deadline, set: !p.t3Deadline.IsZero()}).until(now); set {
			best, ok = minTimeout(best, t3, ok, set)
		}
		if idle, set := (deadline{at: p.idleDeadline, set: !p.idleDeadline.IsZero()}).until(now); set {
			best, ok = minTimeout(best, idle, ok, set)
		}
	}
	return best, ok
}

// OnTimeout advances every timer that is due (spec.md §4.6 on_timeout).
func (a *Association) OnTimeout(now time.Time) {
	if a.delayedAck.due(now) {
		a.sendSack = true
		a.delayedAck.disarm()
	}

	for _, p := range a.paths {
		if !p.t1Deadline.IsZero() && !now.Before(p.t1Deadline) {
			p.retransCount++
			p.recomputeRTO()
			if p.retransCount >= maxRetransCount {
				p.state = pathInactive
			}
			p.t1Deadline = now.Add(p.rto)
		}
	}

	for _, p := range a.recovery.expiredT3(now) {
		a.recovery.onT3Expire(p, now)
	}

	if target := a.recovery.nextHeartbeatTarget(now); target != nil {
		a.sendHeartbeat(target, now)
	}
	for _, p := range a.paths {
		if p.heartbeatOutstanding && !now.Before(p.heartbeatSentAt.Add(p.rto)) {
			a.recovery.onHeartbeatTimeout(p, now)
		}
	}

	if a.t2Deadline.due(now) && a.shutdownChunk != nil {
		a.t2Deadline.arm(now.Add(a.primaryRTO()))
	}
}

func (a *Association) sendHeartbeat(p *path, now time.Time) {
	p.nextHBSeq++
	p.heartbeatSeq = p.nextHBSeq
	p.heartbeatRandom = a.cfg.RNG.Uint64()
	p.heartbeatOutstanding = true
	p.heartbeatSentAt = now

	info := make([]byte, 4+8+8)
	putUint32(info[0:4], uint32(p.id))
	putUint64(info[4:12], p.heartbeatSeq)
	putUint64(info[12:20], p.heartbeatRandom)
	a.queueControl(&chunkHeartbeat{Info: info})
	a.recovery.armIdleTimer(p, now)
}

// ReadFromStream copies the next readable message on stream id into
// wbuf, ordered messages before unordered ones. The bool return reports whether the message was truncated.
func (a *Association) ReadFromStream(id uint16, wbuf []byte) (int, bool, error) {
	s, ok := a.inbound[id]
	if !ok {
		return 0, false, ErrNotFound
	}
	return s.read(wbuf)
}

// GetReadable lists stream ids with at least one fully reassembled
// message waiting to be read.
func (a *Association) GetReadable() []uint16 {
	var ids []uint16
	for id, s := range a.inbound {
		if s.hasReadable() {
			ids = append(ids, id)
		}
	}
	return ids
}

// WriteIntoStream appends application bytes to stream id's outbound
// FIFO (spec.md §4.4).
func (a *Association) WriteIntoStream(id uint16, rbuf []byte, unordered, complete bool) error {
	if a.numOutboundStreams != 0 && id >= a.numOutboundStreams {
		return ErrNotFound
	}
	s := a.outboundStreamFor(id)
	data := append([]byte(nil), rbuf...)
	s.write(data, unordered, complete)
	return nil
}

// GetPending lists stream ids with outbound data not yet fully sent.
func (a *Association) GetPending() []uint16 {
	return a.outboundStreamsWithPending()
}

// Close begins (or completes) the graceful shutdown handshake per
// spec.md §4.6 close().
func (a *Association) Close() error {
	switch a.st {
	case stateEstablished:
		if !a.recovery.hasOutstandingData() {
			a.st = stateShutdownSent
			sd := &chunkShutdown{CumAck: uint32(a.mappingCumTSN())}
			a.shutdownChunk = sd
			a.queueControl(sd)
			a.t2Deadline.arm(time.Now().Add(a.primaryRTO()))
		} else {
			a.st = stateShutdownPending
		}
		return nil
	case stateCookieWait, stateCookieEchoed:
		return fmt.Errorf("%w: Close called during handshake (state %s)", ErrInvalidValue, a.st)
	default:
		return nil
	}
}

func (a *Association) IsEstablished() bool { return a.st == stateEstablished }
func (a *Association) IsClosed() bool      { return a.st == stateClosed }

// PathStats snapshots every path's instrumentation fields, for
// sctp/metrics and sctp/snapshot to read without reaching into
// unexported association state.
func (a *Association) PathStats() []PathStats {
	out := make([]PathStats, len(a.paths))
	for i, p := range a.paths {
		out[i] = p.stats()
	}
	return out
}

// ID returns the association's short correlation id, the same one
// tagging its log lines.
func (a *Association) ID() string { return a.id }
