// Package eventloop implements the single-threaded peer-coordination core:
// one worker owns all peer, timer and downloader state and drains a
// mutex-guarded event queue, exactly mirroring the "single mutex plus
// condition variable, everything else loop-private" design used throughout
// go-ethereum's p2p/eth stack, generalized here to a generic tagged-union
// event queue since Go has no std::variant.
package eventloop

import (
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/I-luk-I/Warthog/blockdownload"
	"github.com/I-luk-I/Warthog/chain"
	"github.com/I-luk-I/Warthog/chainserver"
	"github.com/I-luk-I/Warthog/config"
	"github.com/I-luk-I/Warthog/eventloop/addrmgr"
	"github.com/I-luk-I/Warthog/eventloop/peers"
	"github.com/I-luk-I/Warthog/eventloop/wheel"
	"github.com/I-luk-I/Warthog/headerdownload"
	"github.com/I-luk-I/Warthog/mempool"
	"github.com/I-luk-I/Warthog/protocol"
	"github.com/I-luk-I/Warthog/transport"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
)

// Loop is the coordinator's event queue, dispatcher and downloader host, in
// one struct. Every field below the queue/closeReason line is loop-private:
// touched only from inside handle/doRequests/garbageCollect, never guarded
// by mu, exactly per the "shared resource discipline" design note.
type Loop struct {
	mu          sync.Mutex
	cond        *sync.Cond
	queue       []Event
	closeReason *string

	cfg    config.Config
	server chainserver.Server
	dialer transport.Dialer
	mp     *mempool.Mirror

	peerSet  *peers.Set
	addrBook *addrmgr.Book
	wheel    *wheel.Wheel

	headerDL *headerdownload.Downloader
	blockDL  *blockdownload.Downloader

	consensus chain.Headerchain
	stage     chain.Headerchain
	haveStage bool
	synced    bool

	snapshot chain.SnapshotInfo

	nonceCounter uint64
	addrByConn   map[peers.ConnID]addrmgr.Endpoint
	connByAddr   map[string]peers.ConnID // dial key -> connection id, for outbound-only peers
	dialTimer    *wheel.Handle

	bodiesSubmitted chain.Height // pop watermark into blockDL's contiguous body stream

	shutdownDone chan struct{}
}

// New creates a Loop rooted at consensus, ready for StartAsyncLoop.
func New(cfg config.Config, server chainserver.Server, dialer transport.Dialer, consensus chain.Headerchain) *Loop {
	l := &Loop{
		cfg:          cfg,
		server:       server,
		dialer:       dialer,
		mp:           mempool.New(),
		peerSet:      peers.NewSet(),
		addrBook:     addrmgr.New(cfg.DialInterval.Duration),
		wheel:        wheel.New(),
		consensus:    consensus,
		headerDL:     headerdownload.New(consensus),
		blockDL:      blockdownload.New(consensus),
		addrByConn:   make(map[peers.ConnID]addrmgr.Endpoint),
		connByAddr:   make(map[string]peers.ConnID),
		shutdownDone: make(chan struct{}),
	}
	l.cond = sync.NewCond(&l.mu)
	for _, seed := range cfg.Seeds {
		addr, err := parseEndpoint(seed)
		if err != nil {
			log.Warn("skipping malformed seed address", "addr", seed, "err", err)
			continue
		}
		l.addrBook.Pin(addr)
	}
	if tip, ok := consensus.Tip(); ok {
		log.Info("chain snapshot loaded", "height", consensus.Length(), "work", consensus.TotalWork().Double(), "tip", tip.Hash())
	} else {
		log.Info("starting from empty chain")
	}
	return l
}

// parseEndpoint parses a "host:port" seed address into an addrmgr.Endpoint.
func parseEndpoint(s string) (addrmgr.Endpoint, error) {
	host, portStr, err := net.SplitHostPort(s)
	if err != nil {
		return addrmgr.Endpoint{}, err
	}
	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		return addrmgr.Endpoint{}, err
	}
	ip := net.ParseIP(host)
	if ip == nil {
		resolved, err := net.ResolveIPAddr("ip", host)
		if err != nil {
			return addrmgr.Endpoint{}, err
		}
		ip = resolved.IP
	}
	return addrmgr.Endpoint{IP: ip, Port: uint16(port)}, nil
}

// Defer is the universal cross-thread entrypoint: it returns false iff the
// loop is shutting down and the event was rejected.
func (l *Loop) Defer(e Event) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closeReason != nil {
		return false
	}
	l.queue = append(l.queue, e)
	l.cond.Broadcast()
	return true
}

// DeferInbound implements transport.EventSink. It blocks until the loop has
// processed the admission and assigned an id, since the caller's Serve loop
// needs that id before it can start delivering buffers.
func (l *Loop) DeferInbound(conn transport.Connection) (peers.ConnID, bool) {
	return l.admit(conn, nil)
}

// admitOutbound is the loop-internal counterpart to DeferInbound used by
// dialOne, which knows the address it connected to and records it for
// dial-backoff bookkeeping once the connection is admitted.
func (l *Loop) admitOutbound(conn transport.Connection, addr addrmgr.Endpoint) (peers.ConnID, bool) {
	return l.admit(conn, &addr)
}

func (l *Loop) admit(conn transport.Connection, addr *addrmgr.Endpoint) (peers.ConnID, bool) {
	reply := make(chan peers.ConnID, 1)
	if !l.Defer(NewConnection{Conn: conn, Inbound: addr == nil, Addr: addr, IDReply: reply}) {
		return 0, false
	}
	return <-reply, true
}

// DeferReleased implements transport.EventSink.
func (l *Loop) DeferReleased(id peers.ConnID, closeCode int32) {
	l.Defer(ConnectionReleased{ID: id, ErrorCode: closeCode})
}

// DeferInboundBuffer implements transport.EventSink.
func (l *Loop) DeferInboundBuffer(id peers.ConnID, buf []byte) bool {
	return l.Defer(InboundBuffer{ID: id, Buf: buf})
}

// DeferChainUpdate implements chainserver.EventSink.
func (l *Loop) DeferChainUpdate(update chainserver.Update, mempoolLog []common.Hash) bool {
	return l.Defer(ChainStateUpdate{MempoolLog: mempoolLog, Update: update})
}

// DeferStageResult implements chainserver.EventSink.
func (l *Loop) DeferStageResult(result chainserver.StageResult) bool {
	return l.Defer(StageResultEvent{Result: result})
}

// AsyncShutdown requests the loop stop; it drains its current queue and
// timers, closes every peer, then returns from StartAsyncLoop's goroutine.
func (l *Loop) AsyncShutdown(reason string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closeReason == nil {
		l.closeReason = &reason
	}
	l.cond.Broadcast()
}

// StartAsyncLoop runs the loop until AsyncShutdown, on the calling
// goroutine — callers wanting it backgrounded spawn their own goroutine
// around this call, matching p2p.Server.Start's own bring-your-own-
// goroutine convention.
func (l *Loop) StartAsyncLoop() {
	defer close(l.shutdownDone)
	for {
		timers, batch := l.awaitWork()
		for _, payload := range timers {
			l.handleTimer(payload)
		}
		for _, e := range batch {
			l.handle(e)
		}
		removed := l.peerSet.GarbageCollect()
		for _, id := range removed {
			l.headerDL.AbandonPeer(id)
			l.blockDL.AbandonPeer(id)
			if addr, ok := l.addrByConn[id]; ok {
				delete(l.connByAddr, addr.String())
			}
			delete(l.addrByConn, id)
		}
		l.doRequests()
		if l.isShuttingDown() && l.drained() {
			l.closeAllPeers()
			return
		}
	}
}

// Wait blocks until StartAsyncLoop has returned.
func (l *Loop) Wait() { <-l.shutdownDone }

func (l *Loop) isShuttingDown() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closeReason != nil
}

func (l *Loop) drained() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.queue) == 0
}

// awaitWork blocks until either an event is queued, a timer's deadline
// arrives, or shutdown is requested, then atomically pops both whatever
// timers are now expired and whatever events are now queued in the same
// critical section — so the caller can fire the timers before dispatching
// the events, per this tick's ordering guarantee, without a timer that
// expired in between ever being attributed to the wrong tick.
func (l *Loop) awaitWork() (timers []any, batch []Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for len(l.queue) == 0 && l.closeReason == nil {
		deadline, ok := l.wheel.NextDeadline()
		if !ok {
			l.cond.Wait()
			continue
		}
		wait := time.Until(deadline)
		if wait <= 0 {
			break
		}
		l.waitTimeoutLocked(wait)
		break
	}
	timers = l.wheel.PopExpired(time.Now())
	batch = l.queue
	l.queue = nil
	return timers, batch
}

// waitTimeoutLocked blocks on l.cond for at most d, using a helper timer
// goroutine since sync.Cond has no native timeout. Must be called with l.mu
// held; returns with l.mu held.
func (l *Loop) waitTimeoutLocked(d time.Duration) {
	timer := time.AfterFunc(d, func() {
		l.mu.Lock()
		l.cond.Broadcast()
		l.mu.Unlock()
	})
	l.cond.Wait()
	timer.Stop()
}

func (l *Loop) closeAllPeers() {
	for _, p := range l.peerSet.All() {
		if conn, ok := p.Sender.(transport.Connection); ok {
			conn.Close()
		}
	}
}

func (l *Loop) nextNonce() uint64 {
	l.nonceCounter = protocol.NextNonce(l.nonceCounter)
	return l.nonceCounter
}

func (l *Loop) send(p *peers.Peer, msg protocol.Message) {
	buf, err := protocol.Frame(msg)
	if err != nil {
		log.Error("failed to frame outbound message", "kind", msg.Kind(), "err", err)
		return
	}
	l.queueThrottled(p, buf)
}

// queueThrottled enforces the per-peer throttle gap: if the peer's last
// flush was recent enough, buf joins the queue and a ThrottledSend timer is
// armed (if not already); otherwise it is sent immediately.
func (l *Loop) queueThrottled(p *peers.Peer, buf []byte) {
	now := time.Now()
	gap := l.cfg.ThrottleGap.Duration
	if now.Sub(p.LastSendAt()) >= gap || p.LastSendAt().IsZero() {
		p.Sender.Enqueue(buf)
		p.MarkSent(now)
		return
	}
	p.QueueSend(buf)
	if p.ThrottleTimer() == nil {
		h := l.wheel.Insert(gap, timerThrottledSend{id: p.ID})
		p.SetThrottleTimer(&h)
	}
}

func (l *Loop) closePeer(p *peers.Peer, code protocol.Code) {
	if p.Erased {
		return
	}
	log.Debug("closing peer", "id", p.ID, "code", code)
	p.Erased = true
	p.CloseCode = int32(code)
	if conn, ok := p.Sender.(transport.Connection); ok {
		conn.Close()
	}
	l.headerDL.AbandonPeer(p.ID)
	l.blockDL.AbandonPeer(p.ID)
	l.mp.ForgetPeer(uint64(p.ID))
}
