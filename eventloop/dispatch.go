package eventloop

import (
	"github.com/I-luk-I/Warthog/eventloop/peers"
	"github.com/I-luk-I/Warthog/protocol"
	"github.com/ethereum/go-ethereum/log"
)

// handle is the sole entrypoint applying a queued Event to loop state; it
// is never called concurrently with itself, so nothing here needs locking.
func (l *Loop) handle(e Event) {
	switch ev := e.(type) {
	case NewConnection:
		l.handleNewConnection(ev)
	case ConnectionReleased:
		l.handleConnectionReleased(ev)
	case InboundBuffer:
		l.handleInboundBuffer(ev)
	case ChainStateUpdate:
		l.handleChainStateUpdate(ev)
	case StageResultEvent:
		l.handleStageResult(ev)
	case ForwardBlockReply:
		l.handleForwardBlockReply(ev)
	case FailedOutbound:
		l.addrBook.OnFailedOutbound(ev.Addr)
		delete(l.connByAddr, ev.Addr.String())
	case PinAddress:
		l.addrBook.Pin(ev.Addr)
	case UnpinAddress:
		l.addrBook.Unpin(ev.Addr)
	case MempoolLogEvent:
		l.mp.Add(ev.TxIds...)
		l.broadcastTxNotify(ev.TxIds, 0)
	case GetPeers:
		ev.Reply <- l.apiGetPeers()
	case GetSynced:
		ev.Reply <- l.apiGetSynced()
	case GetHashrate:
		ev.Reply <- l.apiGetHashrate(ev.LastN)
	case GetHashrateChart:
		ev.Reply <- l.apiGetHashrateChart(ev.From, ev.To, ev.Window)
	case Inspect:
		ev.Reply <- l.apiInspect()
	case GetSignedSnapshot:
		ev.Reply <- l.snapshot
	default:
		log.Error("eventloop: unhandled event type", "type", e)
	}
}

func (l *Loop) handleNewConnection(ev NewConnection) {
	p := l.peerSet.Insert(ev.Conn)
	log.Debug("connection admitted", "id", p.ID, "inbound", ev.Inbound)
	if ev.Addr != nil {
		l.addrByConn[p.ID] = *ev.Addr
		l.connByAddr[ev.Addr.String()] = p.ID
	}
	h := l.wheel.Insert(l.cfg.ReplyTimeout.Duration, timerCloseNoReply{id: p.ID})
	p.Job.ExpireTimer = &h
	if ev.IDReply != nil {
		ev.IDReply <- p.ID
	}
}

func (l *Loop) handleConnectionReleased(ev ConnectionReleased) {
	p := l.peerSet.Find(ev.ID)
	if p == nil {
		return
	}
	l.closePeer(p, protocol.Code(ev.ErrorCode))
	if addr, ok := l.addrByConn[ev.ID]; ok && ev.ErrorCode != 0 {
		l.addrBook.OnFailedOutbound(addr)
	}
}

func (l *Loop) handleInboundBuffer(ev InboundBuffer) {
	p := l.peerSet.Find(ev.ID)
	if p == nil || p.Erased {
		return
	}
	msg, err := protocol.Parse(ev.Buf)
	if err != nil {
		l.rejectPeer(p, err)
		return
	}
	if err := l.sequenceCheck(p, msg); err != nil {
		l.rejectPeer(p, err)
		return
	}
	if err := l.dispatchMessage(p, msg); err != nil {
		l.rejectPeer(p, err)
		return
	}
}

// rejectPeer converts a protocol error into the taxonomy's prescribed
// action: close the peer, or (ENOTFOUND) mark an address failed with no
// peer to close.
func (l *Loop) rejectPeer(p *peers.Peer, err error) {
	perr, ok := err.(*protocol.Error)
	code := protocol.ECHECKSUM
	if ok {
		code = perr.Code
	}
	log.Debug("peer protocol violation", "id", p.ID, "err", err)
	if code.Action() == protocol.ActionMarkAddressFailed {
		if addr, ok := l.addrByConn[p.ID]; ok {
			l.addrBook.OnFailedOutbound(addr)
		}
		return
	}
	l.closePeer(p, code)
}

// sequenceCheck enforces that the first message on a connection is Init,
// and that no further Init arrives afterward.
func (l *Loop) sequenceCheck(p *peers.Peer, msg protocol.Message) error {
	if !p.HasView() {
		if msg.Kind() != protocol.KindInit {
			return protocol.Errorf(protocol.ENOINIT, "first message was %s, not Init", msg.Kind())
		}
		return nil
	}
	if msg.Kind() == protocol.KindInit {
		return protocol.Errorf(protocol.EINVINIT, "duplicate Init")
	}
	return nil
}

// checkNonce enforces invariant 5: a reply's nonce must match the specific
// outstanding request it answers.
func checkNonce(got, want uint64) error {
	if got != want {
		return protocol.Errorf(protocol.EUNREQUESTED, "nonce %d does not match outstanding request %d", got, want)
	}
	return nil
}

// dispatchMessage routes a parsed, sequence-valid message to its handler.
func (l *Loop) dispatchMessage(p *peers.Peer, msg protocol.Message) error {
	switch m := msg.(type) {
	case protocol.InitMsg:
		return l.handleInit(p, m)
	case protocol.PingMsg:
		return l.handlePing(p, m)
	case protocol.PongMsg:
		return l.handlePong(p, m)
	case protocol.ProbereqMsg:
		return l.handleProbeReq(p, m)
	case protocol.ProberepMsg:
		return l.handleProbeRep(p, m)
	case protocol.BatchreqMsg:
		return l.handleBatchReq(p, m)
	case protocol.BatchrepMsg:
		return l.handleBatchRep(p, m)
	case protocol.BlockreqMsg:
		return l.handleBlockReq(p, m)
	case protocol.BlockrepMsg:
		return l.handleBlockRep(p, m)
	case protocol.AppendMsg:
		return l.handleAppend(p, m)
	case protocol.ForkMsg:
		return l.handleFork(p, m)
	case protocol.SignedPinRollbackMsg:
		return l.handleSignedPinRollback(p, m)
	case protocol.TxnotifyMsg:
		return l.handleTxNotify(p, m)
	case protocol.TxreqMsg:
		return l.handleTxReq(p, m)
	case protocol.TxrepMsg:
		return l.handleTxRep(p, m)
	case protocol.LeaderMsg:
		return l.handleLeader(p, m)
	default:
		return protocol.Errorf(protocol.EINVBODY, "unknown message kind %v", msg.Kind())
	}
}

// handleTimer applies the effect of one expired wheel entry.
func (l *Loop) handleTimer(payload any) {
	switch t := payload.(type) {
	case timerConnect:
		l.handleTimerConnect(t)
	case timerSendPing:
		l.handleTimerSendPing(t)
	case timerCloseNoPong:
		l.handleTimerCloseNoPong(t)
	case timerCloseNoReply:
		l.handleTimerCloseNoReply(t)
	case timerExpire:
		l.handleTimerExpire(t)
	case timerThrottledSend:
		l.handleTimerThrottledSend(t)
	default:
		log.Error("eventloop: unhandled timer payload", "type", payload)
	}
}
