// Package peers owns the per-peer state the coordinator loop maintains:
// connection identity, chain view, the single in-flight job, ping state and
// a throttled send queue. Downloaders index into this registry by
// connection id rather than holding strong references, per the "arena +
// stable id" guidance for back-references between the registry and the
// downloaders.
package peers

import (
	"time"

	"github.com/I-luk-I/Warthog/chain"
	"github.com/I-luk-I/Warthog/eventloop/wheel"
)

// ConnID is a monotonic connection identifier, stable for the lifetime of a
// peer and never reused.
type ConnID uint64

// JobKind tags which of the mutually-exclusive job variants a peer's job
// currently holds, modeled as a tagged sum rather than by inheritance.
type JobKind int

const (
	JobIdle JobKind = iota
	JobAwaitingInit
	JobProbe
	JobBatch
	JobBlock
)

// ProbeRequest is the in-flight state of a probe job.
type ProbeRequest struct {
	Nonce  uint64
	Height chain.Height
}

// BatchRequest is the in-flight state of a header-batch job.
type BatchRequest struct {
	Nonce  uint64
	Start  chain.Height
	Length uint16
}

// BlockRequest is the in-flight state of a block-range job.
type BlockRequest struct {
	Nonce uint64
	Start chain.Height
	End   chain.Height
}

// Job is the peer's single outstanding correlated request, modeled as a
// tagged variant: at most one of Probe/Batch/Block is meaningful, selected
// by Kind.
type Job struct {
	Kind  JobKind
	Probe ProbeRequest
	Batch BatchRequest
	Block BlockRequest

	ExpireTimer *wheel.Handle // armed while Kind != JobIdle
}

// PingState tracks the peer's ping/pong cycle.
type PingState int

const (
	PingSleeping PingState = iota
	PingAwaitingPong
)

// Sender abstracts the transport-side send queue a peer owns; the loop calls
// Enqueue on it, and Close when the sender is also a transport.Connection.
type Sender interface {
	Enqueue(buf []byte)
}

// Peer is the coordinator's complete view of one connection.
type Peer struct {
	ID        ConnID
	Sender    Sender
	Erased    bool
	CloseCode int32

	View    chain.View
	haveView bool

	Job Job

	PingState    PingState
	PingTimer    *wheel.Handle
	LastPingNonce uint64

	TheirsKnown       uint64
	TheirsAcknowledged uint64

	sendQueue     [][]byte
	lastSendAt    time.Time
	throttleTimer *wheel.Handle
}

// NewPeer constructs a freshly-admitted peer awaiting its INIT message.
func NewPeer(id ConnID, sender Sender) *Peer {
	return &Peer{
		ID:     id,
		Sender: sender,
		Job:    Job{Kind: JobAwaitingInit},
	}
}

// HasView reports whether the peer has completed its INIT handshake.
func (p *Peer) HasView() bool { return p.haveView }

// SetView installs the peer's chain view, transitioning it out of
// awaiting-init.
func (p *Peer) SetView(v chain.View) {
	p.View = v
	p.haveView = true
	if p.Job.Kind == JobAwaitingInit {
		p.Job = Job{Kind: JobIdle}
	}
}

// IsActive reports whether the peer currently holds a correlated request
// that counts against the global maxRequests budget.
func (p *Peer) IsActive() bool {
	switch p.Job.Kind {
	case JobProbe, JobBatch, JobBlock:
		return true
	default:
		return false
	}
}

// QueueSend appends a buffer to the peer's throttled send queue. The loop's
// throttle policy (Loop.queueThrottled) decides when to actually flush it.
func (p *Peer) QueueSend(buf []byte) {
	p.sendQueue = append(p.sendQueue, buf)
}

// PopSend removes and returns the head of the send queue, if any.
func (p *Peer) PopSend() ([]byte, bool) {
	if len(p.sendQueue) == 0 {
		return nil, false
	}
	buf := p.sendQueue[0]
	p.sendQueue = p.sendQueue[1:]
	return buf, true
}

// QueueLen reports how many buffers are waiting to drain.
func (p *Peer) QueueLen() int { return len(p.sendQueue) }

// LastSendAt returns when the peer last had a buffer flushed to it.
func (p *Peer) LastSendAt() time.Time { return p.lastSendAt }

// MarkSent records that a buffer was just flushed, for throttle-gap timing.
func (p *Peer) MarkSent(at time.Time) { p.lastSendAt = at }

// ThrottleTimer returns the peer's currently-armed ThrottledSend handle, if
// any.
func (p *Peer) ThrottleTimer() *wheel.Handle { return p.throttleTimer }

// SetThrottleTimer records the peer's currently-armed ThrottledSend handle.
func (p *Peer) SetThrottleTimer(h *wheel.Handle) { p.throttleTimer = h }
