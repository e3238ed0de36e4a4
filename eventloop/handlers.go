package eventloop

import (
	"net"
	"time"

	"github.com/I-luk-I/Warthog/chain"
	"github.com/I-luk-I/Warthog/chainserver"
	"github.com/I-luk-I/Warthog/eventloop/addrmgr"
	"github.com/I-luk-I/Warthog/eventloop/peers"
	"github.com/I-luk-I/Warthog/protocol"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
)

func (l *Loop) cancelExpire(p *peers.Peer) {
	if p.Job.ExpireTimer != nil {
		l.wheel.Cancel(*p.Job.ExpireTimer)
		p.Job.ExpireTimer = nil
	}
}

func (l *Loop) armPingCycle(p *peers.Peer) {
	h := l.wheel.Insert(l.cfg.PingInterval.Duration, timerSendPing{id: p.ID})
	p.PingTimer = &h
}

// getDescriptorHeaderLocal answers a probe at a given height from whichever
// chain the loop holds in memory (stage takes priority since it is a
// superset built on top of consensus), falling back to the chain server for
// anything deeper than what the loop keeps resident. The requester's own
// descriptor is only used as a fallback key into chain-server history; the
// requester compares hashes itself to decide whether the two chains agree.
func (l *Loop) getDescriptorHeaderLocal(descriptor chain.Descriptor, height chain.Height) (chain.Header, bool) {
	if l.haveStage {
		if hdr, ok := l.stage.HeaderAt(height); ok {
			return hdr, true
		}
	}
	if hdr, ok := l.consensus.HeaderAt(height); ok {
		return hdr, true
	}
	return l.server.GetDescriptorHeader(descriptor, height)
}

func (l *Loop) handleInit(p *peers.Peer, m protocol.InitMsg) error {
	if m.Length > 0 && m.Descriptor == (chain.Descriptor{}) {
		return protocol.Errorf(protocol.EINVINIT, "nonzero length with empty descriptor")
	}
	stageLen := l.consensus.Length()
	if l.haveStage {
		stageLen = l.stage.Length()
	}
	view := chain.NewView(m.Descriptor, m.Length, chain.WorkFromBytes32(m.TotalWork), l.consensus.Length(), stageLen)
	l.cancelExpire(p)
	p.SetView(view)
	l.armPingCycle(p)
	log.Debug("peer initialized", "id", p.ID, "length", m.Length)
	return nil
}

func (l *Loop) handlePing(p *peers.Peer, m protocol.PingMsg) error {
	verified := l.addrBook.Verified()
	if len(verified) > l.cfg.MaxAddresses {
		verified = verified[:l.cfg.MaxAddresses]
	}
	addrs := make([]protocol.Endpoint, 0, len(verified))
	for _, e := range verified {
		addrs = append(addrs, protocol.Endpoint{IP: []byte(e.IP), Port: e.Port})
	}
	txIds := l.mp.Known(l.cfg.MaxTransactions)
	l.send(p, protocol.PongMsg{Nonce: m.Nonce, Addresses: addrs, TxIds: txIds})
	return nil
}

func (l *Loop) handlePong(p *peers.Peer, m protocol.PongMsg) error {
	if p.PingState != peers.PingAwaitingPong {
		return protocol.Errorf(protocol.EUNREQUESTED, "unexpected pong")
	}
	if err := checkNonce(m.Nonce, p.LastPingNonce); err != nil {
		return err
	}
	if p.PingTimer != nil {
		l.wheel.Cancel(*p.PingTimer)
		p.PingTimer = nil
	}
	p.PingState = peers.PingSleeping
	l.armPingCycle(p)

	for _, addr := range m.Addresses {
		l.addrBook.AddVerified(addrFromWire(addr))
	}
	for _, id := range m.TxIds {
		l.mp.MarkSeen(uint64(p.ID), id)
	}
	return nil
}

func (l *Loop) handleProbeReq(p *peers.Peer, m protocol.ProbereqMsg) error {
	header, ok := l.getDescriptorHeaderLocal(m.Descriptor, m.Height)
	l.send(p, protocol.ProberepMsg{Nonce: m.Nonce, Found: ok, Header: header})
	return nil
}

func (l *Loop) handleProbeRep(p *peers.Peer, m protocol.ProberepMsg) error {
	if p.Job.Kind != peers.JobProbe {
		return protocol.Errorf(protocol.EUNREQUESTED, "no outstanding probe")
	}
	if err := checkNonce(m.Nonce, p.Job.Probe.Nonce); err != nil {
		return err
	}
	height := p.Job.Probe.Height
	l.cancelExpire(p)
	p.Job = peers.Job{Kind: peers.JobIdle}
	p.View = l.headerDL.OnProbeReply(p.View, height, m)
	return nil
}

func (l *Loop) handleBatchReq(p *peers.Peer, m protocol.BatchreqMsg) error {
	if m.Length == 0 {
		return protocol.Errorf(protocol.EEMPTY, "zero-length batch request")
	}
	end := m.Start + chain.Height(m.Length) - 1
	headers, err := l.getHeadersLocal(chainserver.HeightRange{Start: m.Start, End: end})
	if err != nil || len(headers) == 0 {
		l.send(p, protocol.BatchrepMsg{Nonce: m.Nonce, Headers: nil})
		return nil
	}
	l.send(p, protocol.BatchrepMsg{Nonce: m.Nonce, Headers: headers})
	return nil
}

func (l *Loop) getHeadersLocal(r chainserver.HeightRange) ([]chain.Header, error) {
	src := l.consensus
	if l.haveStage && l.stage.Length() >= r.End {
		src = l.stage
	}
	var out []chain.Header
	for h := r.Start; h <= r.End; h++ {
		hdr, ok := src.HeaderAt(h)
		if !ok {
			break
		}
		out = append(out, hdr)
	}
	if len(out) > 0 {
		return out, nil
	}
	return l.server.GetHeaders(r)
}

func (l *Loop) handleBatchRep(p *peers.Peer, m protocol.BatchrepMsg) error {
	if p.Job.Kind != peers.JobBatch {
		return protocol.Errorf(protocol.EUNREQUESTED, "no outstanding batch request")
	}
	if err := checkNonce(m.Nonce, p.Job.Batch.Nonce); err != nil {
		return err
	}
	req := p.Job.Batch
	l.cancelExpire(p)
	p.Job = peers.Job{Kind: peers.JobIdle}
	if err := l.headerDL.OnBatchReply(req, m); err != nil {
		return err
	}
	if candidate, known, ok := l.headerDL.PopData(); ok {
		l.stage = candidate
		l.haveStage = true
		l.blockDL.RetargetFrom(candidate, known)
		l.bodiesSubmitted = known
		l.server.AsyncStageRequest(candidate)
	}
	return nil
}

func (l *Loop) handleBlockReq(p *peers.Peer, m protocol.BlockreqMsg) error {
	if m.End < m.Start {
		return protocol.Errorf(protocol.EEMPTY, "empty block range")
	}
	id, nonce, start := p.ID, m.Nonce, m.Start
	l.server.AsyncGetBlocks(chainserver.HeightRange{Start: m.Start, End: m.End}, func(bodies [][]byte, err error) {
		l.Defer(ForwardBlockReply{ID: id, Start: start, Data: bodies, Err: err, Nonce: nonce})
	})
	return nil
}

func (l *Loop) handleForwardBlockReply(ev ForwardBlockReply) {
	p := l.peerSet.Find(ev.ID)
	if p == nil || p.Erased {
		return
	}
	if ev.Err != nil {
		log.Debug("failed to serve block request", "id", ev.ID, "err", ev.Err)
		return
	}
	bodies := make([]protocol.Body, len(ev.Data))
	for i, d := range ev.Data {
		bodies[i] = protocol.Body{Height: ev.Start + chain.Height(i), Data: d}
	}
	l.send(p, protocol.BlockrepMsg{Nonce: ev.Nonce, Bodies: bodies})
}

func (l *Loop) handleBlockRep(p *peers.Peer, m protocol.BlockrepMsg) error {
	if p.Job.Kind != peers.JobBlock {
		return protocol.Errorf(protocol.EUNREQUESTED, "no outstanding block request")
	}
	if err := checkNonce(m.Nonce, p.Job.Block.Nonce); err != nil {
		return err
	}
	req := p.Job.Block
	l.cancelExpire(p)
	p.Job = peers.Job{Kind: peers.JobIdle}
	if err := l.blockDL.OnBlockReply(req, m); err != nil {
		return err
	}
	popped := l.blockDL.PopContiguous(l.bodiesSubmitted)
	if len(popped) > 0 {
		l.server.AsyncSubmitBodies(popped)
		l.bodiesSubmitted += chain.Height(len(popped))
	}
	l.updateSyncState()
	return nil
}

func (l *Loop) handleAppend(p *peers.Peer, m protocol.AppendMsg) error {
	if len(m.Headers) == 0 {
		return protocol.Errorf(protocol.EEMPTY, "empty append")
	}
	tip := m.Headers[len(m.Headers)-1]
	if tip.Height > p.View.Length {
		p.View.Length = tip.Height
	}
	p.View = p.View.OnConsensusAppend(tip.Height)
	return nil
}

func (l *Loop) handleFork(p *peers.Peer, m protocol.ForkMsg) error {
	p.View = p.View.OnFork(m.ForkHeight)
	if m.NewTip.Height > p.View.Length {
		p.View.Length = m.NewTip.Height
	}
	return nil
}

// maxRollbackDepth bounds how far back a signed rollback may reach before
// being rejected as exceeding retained history.
const maxRollbackDepth = 500_000

func (l *Loop) handleSignedPinRollback(p *peers.Peer, m protocol.SignedPinRollbackMsg) error {
	snap := m.Snapshot
	if snap.Priority.Importance <= l.snapshot.Priority {
		return protocol.Errorf(protocol.ELOWPRIORITY, "rollback priority %d does not exceed current %d", snap.Priority.Importance, l.snapshot.Priority)
	}
	if snap.Height > l.consensus.Length() {
		return protocol.Errorf(protocol.EBADROLLBACK, "rollback target height %d exceeds consensus length %d", snap.Height, l.consensus.Length())
	}
	if l.consensus.Length()-snap.Height > maxRollbackDepth {
		return protocol.Errorf(protocol.EBADROLLBACKLEN, "rollback depth %d exceeds retained history", l.consensus.Length()-snap.Height)
	}
	l.snapshot = chain.SnapshotInfo{Height: snap.Height, Priority: snap.Priority.Importance, Signature: snap.Signature, Have: true}
	l.server.AsyncSetSignedCheckpoint(l.consensus.Descriptor(), snap.Height, snap.Priority.Importance, snap.Signature)
	l.resetSyncTo(snap.Height)
	l.considerSendSnapshot()
	return nil
}

func (l *Loop) handleTxNotify(p *peers.Peer, m protocol.TxnotifyMsg) error {
	var unknown []common.Hash
	for _, id := range m.TxIds {
		l.mp.MarkSeen(uint64(p.ID), id)
		if !l.mp.IsKnown(id) {
			unknown = append(unknown, id)
		}
	}
	if len(unknown) > 0 {
		l.send(p, protocol.TxreqMsg{TxIds: unknown})
	}
	return nil
}

func (l *Loop) handleTxReq(p *peers.Peer, m protocol.TxreqMsg) error {
	// Mempool storage and lookup by id is the chain server's concern; the
	// coordinator only mirrors ids it has seen, so it cannot serve bodies.
	l.send(p, protocol.TxrepMsg{Txs: nil})
	return nil
}

func (l *Loop) handleTxRep(p *peers.Peer, m protocol.TxrepMsg) error {
	l.server.AsyncPutMempool(m.Txs)
	return nil
}

func (l *Loop) handleLeader(p *peers.Peer, m protocol.LeaderMsg) error {
	if m.Snapshot.Priority.Importance <= l.snapshot.Priority {
		return protocol.Errorf(protocol.ELOWPRIORITY, "leader priority %d does not exceed current %d", m.Snapshot.Priority.Importance, l.snapshot.Priority)
	}
	l.snapshot = chain.SnapshotInfo{Height: m.Snapshot.Height, Priority: m.Snapshot.Priority.Importance, Signature: m.Snapshot.Signature, Have: true}
	p.TheirsAcknowledged = m.Snapshot.Priority.Importance
	l.server.AsyncSetSignedCheckpoint(l.consensus.Descriptor(), m.Snapshot.Height, m.Snapshot.Priority.Importance, m.Snapshot.Signature)
	l.considerSendSnapshot()
	return nil
}

func addrFromWire(e protocol.Endpoint) addrmgr.Endpoint {
	return addrmgr.Endpoint{IP: net.IP(e.IP), Port: e.Port}
}

// --- timer handlers ---

func (l *Loop) handleTimerConnect(timerConnect) {
	l.maybeDialMore()
}

func (l *Loop) handleTimerSendPing(t timerSendPing) {
	p := l.peerSet.Find(t.id)
	if p == nil || p.Erased || !p.HasView() {
		return
	}
	nonce := l.nextNonce()
	p.LastPingNonce = nonce
	p.PingState = peers.PingAwaitingPong
	l.send(p, protocol.PingMsg{Nonce: nonce})
	timeout := l.cfg.PongTimeout.Duration
	if l.cfg.Debug {
		timeout *= 10
	}
	h := l.wheel.Insert(timeout, timerCloseNoPong{id: p.ID})
	p.PingTimer = &h
}

func (l *Loop) handleTimerCloseNoPong(t timerCloseNoPong) {
	p := l.peerSet.Find(t.id)
	if p == nil {
		return
	}
	l.closePeer(p, protocol.ETIMEOUT)
}

func (l *Loop) handleTimerCloseNoReply(t timerCloseNoReply) {
	p := l.peerSet.Find(t.id)
	if p == nil {
		return
	}
	l.closePeer(p, protocol.ETIMEOUT)
}

// closeNoReplyGrace is the extra window granted after a request's initial
// reply timeout before the peer is actually closed.
const closeNoReplyGrace = 10 * time.Second

func (l *Loop) handleTimerExpire(t timerExpire) {
	p := l.peerSet.Find(t.id)
	if p == nil || p.Erased {
		return
	}
	if p.Job.Kind == peers.JobIdle || p.Job.Kind == peers.JobAwaitingInit {
		return
	}
	h := l.wheel.Insert(closeNoReplyGrace, timerCloseNoReply{id: p.ID})
	p.Job.ExpireTimer = &h
}

func (l *Loop) handleTimerThrottledSend(t timerThrottledSend) {
	p := l.peerSet.Find(t.id)
	if p == nil {
		return
	}
	p.SetThrottleTimer(nil)
	buf, ok := p.PopSend()
	if !ok {
		return
	}
	p.Sender.Enqueue(buf)
	p.MarkSent(time.Now())
	if p.QueueLen() > 0 {
		h := l.wheel.Insert(l.cfg.ThrottleGap.Duration, timerThrottledSend{id: p.ID})
		p.SetThrottleTimer(&h)
	}
}
