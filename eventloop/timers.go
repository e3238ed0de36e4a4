package eventloop

import "github.com/I-luk-I/Warthog/eventloop/peers"

// timerPayload is the tagged union of what a wheel.Handle's payload can be;
// popExpired hands these back as `any` and the loop type-switches on them.
type timerPayload interface{ isTimerPayload() }

// timerConnect fires when the address book's dial schedule should be
// re-checked for newly-due addresses.
type timerConnect struct{}

func (timerConnect) isTimerPayload() {}

// timerSendPing fires on a peer's ping interval.
type timerSendPing struct{ id peers.ConnID }

func (timerSendPing) isTimerPayload() {}

// timerCloseNoPong fires if a Ping went unanswered past the pong timeout.
type timerCloseNoPong struct{ id peers.ConnID }

func (timerCloseNoPong) isTimerPayload() {}

// timerCloseNoReply fires if a re-armed reply-timeout also elapses with no
// reply, closing the peer with ETIMEOUT.
type timerCloseNoReply struct{ id peers.ConnID }

func (timerCloseNoReply) isTimerPayload() {}

// timerExpire fires when a correlated request (probe/batch/block) has not
// been answered within the reply timeout; the handler re-arms a shorter
// CloseNoReply grace window rather than closing immediately.
type timerExpire struct{ id peers.ConnID }

func (timerExpire) isTimerPayload() {}

// timerThrottledSend fires to drain one more buffer off a peer's throttled
// send queue.
type timerThrottledSend struct{ id peers.ConnID }

func (timerThrottledSend) isTimerPayload() {}
