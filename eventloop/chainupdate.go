package eventloop

import (
	"time"

	"github.com/I-luk-I/Warthog/blockdownload"
	"github.com/I-luk-I/Warthog/chain"
	"github.com/I-luk-I/Warthog/chainserver"
	"github.com/I-luk-I/Warthog/eventloop/addrmgr"
	"github.com/I-luk-I/Warthog/eventloop/peers"
	"github.com/I-luk-I/Warthog/headerdownload"
	"github.com/I-luk-I/Warthog/protocol"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
)

// doRequests is the per-tick scheduling pass: dial due addresses, then hand
// every idle initialized peer to the header downloader first and whatever
// remains idle to the block downloader, arming a Job and an Expire timer for
// each assignment actually issued.
func (l *Loop) doRequests() {
	l.maybeDialMore()

	activeJobs := l.peerSet.ActiveJobs()
	maxRequests := l.cfg.MaxRequests

	var headerInputs []headerdownload.PeerInput
	for _, p := range l.peerSet.Initialized() {
		if p.Erased || p.Job.Kind != peers.JobIdle {
			continue
		}
		headerInputs = append(headerInputs, headerdownload.PeerInput{ID: p.ID, View: p.View, Phase: headerdownload.PhaseIdle})
	}
	for _, a := range l.headerDL.Plan(headerInputs, activeJobs, maxRequests) {
		p := l.peerSet.Find(a.Peer)
		if p == nil || p.Erased || p.Job.Kind != peers.JobIdle {
			continue
		}
		l.armHeaderAssignment(p, a)
		activeJobs++
	}

	var blockInputs []blockdownload.PeerInput
	for _, p := range l.peerSet.Initialized() {
		if p.Erased || p.Job.Kind != peers.JobIdle {
			continue
		}
		blockInputs = append(blockInputs, blockdownload.PeerInput{ID: p.ID, Idle: true, TotalWork: p.View.TotalWork})
	}
	for _, a := range l.blockDL.Plan(blockInputs, activeJobs, maxRequests) {
		p := l.peerSet.Find(a.Peer)
		if p == nil || p.Erased || p.Job.Kind != peers.JobIdle {
			continue
		}
		l.armBlockAssignment(p, a)
		activeJobs++
	}
}

func (l *Loop) armHeaderAssignment(p *peers.Peer, a headerdownload.Assignment) {
	nonce := l.nextNonce()
	switch a.Phase {
	case headerdownload.PhaseProbing:
		p.Job = peers.Job{Kind: peers.JobProbe, Probe: peers.ProbeRequest{Nonce: nonce, Height: a.Probe.Height}}
		l.send(p, protocol.ProbereqMsg{Nonce: nonce, Descriptor: l.consensus.Descriptor(), Height: a.Probe.Height})
	case headerdownload.PhaseBatchRequesting:
		p.Job = peers.Job{Kind: peers.JobBatch, Batch: peers.BatchRequest{Nonce: nonce, Start: a.Batch.Start, Length: a.Batch.Length}}
		l.send(p, protocol.BatchreqMsg{Nonce: nonce, Start: a.Batch.Start, Length: a.Batch.Length})
	default:
		return
	}
	h := l.wheel.Insert(l.cfg.ReplyTimeout.Duration, timerExpire{id: p.ID})
	p.Job.ExpireTimer = &h
}

func (l *Loop) armBlockAssignment(p *peers.Peer, a blockdownload.Assignment) {
	nonce := l.nextNonce()
	p.Job = peers.Job{Kind: peers.JobBlock, Block: peers.BlockRequest{Nonce: nonce, Start: a.Block.Start, End: a.Block.End}}
	l.send(p, protocol.BlockreqMsg{Nonce: nonce, Start: a.Block.Start, End: a.Block.End})
	h := l.wheel.Insert(l.cfg.ReplyTimeout.Duration, timerExpire{id: p.ID})
	p.Job.ExpireTimer = &h
}

// maybeDialMore consults the address book's dial schedule and spawns one
// goroutine per due address to dial and admit it, then re-arms a single
// wheel entry for the next time the schedule should be reconsidered. The
// dial itself never runs on the loop goroutine — a slow or hanging TCP
// connect must not stall the whole coordinator.
func (l *Loop) maybeDialMore() {
	now := time.Now()
	due, next := l.addrBook.NextDue(now)
	for _, addr := range due {
		key := addr.String()
		if _, ok := l.connByAddr[key]; ok {
			continue
		}
		l.addrBook.MarkDialed(addr, now)
		l.connByAddr[key] = 0 // reserved: replaced with the real id once handleNewConnection admits it
		go l.dialOne(addr)
	}
	if l.dialTimer != nil {
		l.wheel.Cancel(*l.dialTimer)
	}
	h := l.wheel.InsertAt(next, timerConnect{})
	l.dialTimer = &h
}

// dialOne dials addr and, on success, admits the connection and runs its
// read loop, all off the loop goroutine. It reports a failed dial as a
// FailedOutbound event so the address book's backoff stays loop-private.
func (l *Loop) dialOne(addr addrmgr.Endpoint) {
	conn, err := l.dialer.Dial(addr.String())
	if err != nil {
		l.Defer(FailedOutbound{Addr: addr})
		return
	}
	id, ok := l.admitOutbound(conn, addr)
	if !ok {
		conn.Close()
		return
	}
	conn.Serve(l, id)
}

// handleChainStateUpdate applies one of the three chain-server-pushed
// variants, always in emission order (the queue never reorders events).
func (l *Loop) handleChainStateUpdate(ev ChainStateUpdate) {
	u := ev.Update
	switch u.Action {
	case chainserver.ActionAppend:
		if len(u.AppendedHeaders) > 0 {
			prev := l.consensus.Length()
			l.consensus = chain.NewHeaderchain(append(l.consensus.Headers(), u.AppendedHeaders...))
			l.headerDL.SetConsensus(l.consensus)
			l.blockDL.SetMinWork(l.consensus.TotalWork())
			l.blockDL.Extend(l.consensus)
			l.broadcastAppendFrom(prev)
			l.logChainLength()
		}
	case chainserver.ActionFork:
		l.resetSyncTo(u.ForkHeight)
		l.broadcastFork(u.ForkHeight, u.NewTip)
	case chainserver.ActionRollback:
		l.resetSyncTo(u.ToHeight)
	}
	if len(ev.MempoolLog) > 0 {
		l.mp.Add(ev.MempoolLog...)
		l.broadcastTxNotify(ev.MempoolLog, 0)
	}
	l.updateSyncState()
	l.considerSendSnapshot()
}

// handleStageResult applies the chain server's verdict on a previously
// submitted candidate: close whichever peers supplied a bad batch, and if
// accepted, replace consensus and re-target the block downloader at it.
func (l *Loop) handleStageResult(ev StageResultEvent) {
	r := ev.Result
	for _, offender := range r.Offenders {
		for _, p := range l.peerSet.All() {
			if p.View.Descriptor == chain.Descriptor(offender) {
				l.closePeer(p, protocol.EINVBODY)
			}
		}
	}
	if r.Accepted {
		prev := l.consensus.Length()
		l.consensus = r.NewConsensus
		l.haveStage = false
		l.headerDL.SetConsensus(l.consensus)
		l.blockDL.SetMinWork(l.consensus.TotalWork())
		if !l.blockDL.Extend(l.consensus) {
			l.bodiesSubmitted = 0
		}
		l.broadcastAppendFrom(prev)
		l.logChainLength()
	} else {
		l.haveStage = false
		// The staged candidate was rejected: undo the speculative ourWork
		// bump OnBatchReply applied when it staged, so peers offering more
		// work than the real (unchanged) consensus become plannable again.
		l.headerDL.SetConsensus(l.consensus)
		l.blockDL.Retarget(l.consensus)
	}
	l.updateSyncState()
}

func (l *Loop) broadcastAppendFrom(from chain.Height) {
	var headers []chain.Header
	for h := from + 1; h <= l.consensus.Length(); h++ {
		hdr, ok := l.consensus.HeaderAt(h)
		if !ok {
			break
		}
		headers = append(headers, hdr)
	}
	if len(headers) == 0 {
		return
	}
	for _, p := range l.peerSet.Initialized() {
		l.send(p, protocol.AppendMsg{Headers: headers})
	}
}

func (l *Loop) broadcastFork(forkHeight chain.Height, newTip chain.Header) {
	for _, p := range l.peerSet.Initialized() {
		l.send(p, protocol.ForkMsg{ForkHeight: forkHeight, NewTip: newTip})
	}
}

// broadcastTxNotify fans out newly-known transaction ids to every
// initialized peer that hasn't already been told about them, per peer.
func (l *Loop) broadcastTxNotify(ids []common.Hash, exceptPeer uint64) {
	if len(ids) == 0 {
		return
	}
	for _, p := range l.peerSet.Initialized() {
		if uint64(p.ID) == exceptPeer {
			continue
		}
		var toSend []common.Hash
		for _, id := range ids {
			if !l.mp.HasSeen(uint64(p.ID), id) {
				toSend = append(toSend, id)
				l.mp.MarkSeen(uint64(p.ID), id)
			}
		}
		if len(toSend) > 0 {
			l.send(p, protocol.TxnotifyMsg{TxIds: toSend})
		}
	}
}

// resetSyncTo truncates local chain-tracking state back to h, invalidating
// any in-progress stage candidate and in-flight body ranges — used for both
// forks (shallow, wire-driven) and rollbacks (deep, snapshot-driven).
func (l *Loop) resetSyncTo(h chain.Height) {
	l.consensus = l.consensus.Truncate(h)
	l.haveStage = false
	l.stage = l.consensus
	l.bodiesSubmitted = h
	l.headerDL.SetConsensus(l.consensus)
	l.blockDL.SetMinWork(l.consensus.TotalWork())
	l.blockDL.Retarget(l.consensus)
	l.synced = false
	for _, p := range l.peerSet.Initialized() {
		p.View = p.View.OnFork(h)
	}
}

func (l *Loop) updateSyncState() {
	l.synced = !l.haveStage && l.blockDL.Done()
}

// considerSendSnapshot forwards the loop's current best signed snapshot to
// any initialized peer that hasn't already been told about it, used after
// every chain-state update, after a signed rollback is applied, and whenever
// a fresh Leader arrives.
func (l *Loop) considerSendSnapshot() {
	if !l.snapshot.Have {
		return
	}
	msg := protocol.LeaderMsg{Snapshot: protocol.SignedSnapshot{
		Height:    l.snapshot.Height,
		Priority:  protocol.Priority{Importance: l.snapshot.Priority},
		Signature: l.snapshot.Signature,
	}}
	for _, p := range l.peerSet.Initialized() {
		if p.TheirsAcknowledged >= l.snapshot.Priority {
			continue
		}
		l.send(p, msg)
		p.TheirsAcknowledged = l.snapshot.Priority
	}
}

func (l *Loop) logChainLength() {
	log.Info("consensus extended", "height", l.consensus.Length(), "work", l.consensus.TotalWork().Double())
}
