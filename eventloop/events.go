package eventloop

import (
	"github.com/I-luk-I/Warthog/chain"
	"github.com/I-luk-I/Warthog/chainserver"
	"github.com/I-luk-I/Warthog/eventloop/addrmgr"
	"github.com/I-luk-I/Warthog/eventloop/peers"
	"github.com/I-luk-I/Warthog/transport"
	"github.com/ethereum/go-ethereum/common"
)

// Event is implemented by every tagged variant the loop's queue carries.
// Go has no std::variant, so the tagged union is modeled as an interface
// plus a type switch in Loop.handle, exactly the way Job models a peer's
// single outstanding request.
type Event interface{ isEvent() }

// NewConnection is posted by the transport when a socket (inbound or
// outbound) is ready to be admitted into the peer registry. IDReply, if
// set, receives the assigned id so the posting goroutine can start Serve.
type NewConnection struct {
	Conn    transport.Connection
	Inbound bool
	Addr    *addrmgr.Endpoint // set for outbound connections, nil for inbound
	IDReply chan<- peers.ConnID
}

func (NewConnection) isEvent() {}

// ConnectionReleased is posted once a connection's read loop has ended, for
// any reason (transport error, remote close, or the loop's own Close call).
type ConnectionReleased struct {
	ID        peers.ConnID
	ErrorCode int32
}

func (ConnectionReleased) isEvent() {}

// InboundBuffer carries one framed, checksum-unverified buffer read off a
// connection, on its way to dispatch.go.
type InboundBuffer struct {
	ID  peers.ConnID
	Buf []byte
}

func (InboundBuffer) isEvent() {}

// ChainStateUpdate is one of the three variants the chain server pushes,
// always applied by the loop in emission order.
type ChainStateUpdate struct {
	MempoolLog []common.Hash
	Update     chainserver.Update
}

func (ChainStateUpdate) isEvent() {}

// StageResultEvent reports the chain server's verdict on a previously
// submitted candidate chain.
type StageResultEvent struct {
	Result chainserver.StageResult
}

func (StageResultEvent) isEvent() {}

// ForwardBlockReply carries bodies fulfilled by the chain server back to
// whichever peer requested them.
type ForwardBlockReply struct {
	ID    peers.ConnID
	Nonce uint64
	Start chain.Height
	Data  [][]byte
	Err   error
}

func (ForwardBlockReply) isEvent() {}

// FailedOutbound reports a dial failure to be recorded in the address book.
type FailedOutbound struct {
	Addr addrmgr.Endpoint
}

func (FailedOutbound) isEvent() {}

// PinAddress and UnpinAddress are event shapes handled by the loop; no
// public Async{Pin,Unpin} method exposes them today, mirroring the
// source's own unreachable-but-declared handle_event(OnPinAddress).
type PinAddress struct{ Addr addrmgr.Endpoint }

func (PinAddress) isEvent() {}

type UnpinAddress struct{ Addr addrmgr.Endpoint }

func (UnpinAddress) isEvent() {}

// MempoolLogEvent announces transaction ids accepted into the mempool,
// independent of a chain-state update, for immediate TxNotify fan-out.
type MempoolLogEvent struct {
	TxIds []common.Hash
}

func (MempoolLogEvent) isEvent() {}

// PeerInfo is the read-only snapshot apiGetPeers returns per connection.
type PeerInfo struct {
	ID     peers.ConnID
	Length chain.Height
	Work   chain.Work
}

// GetPeers is the API callback family member answering apiGetPeers.
type GetPeers struct{ Reply chan<- []PeerInfo }

func (GetPeers) isEvent() {}

// GetSynced answers apiGetSynced.
type GetSynced struct{ Reply chan<- bool }

func (GetSynced) isEvent() {}

// GetHashrate answers apiGetHashrate: estimated network hashrate over the
// last N blocks of consensus.
type GetHashrate struct {
	LastN int
	Reply chan<- float64
}

func (GetHashrate) isEvent() {}

// GetHashrateChart answers apiGetHashrateChart: a windowed hashrate series
// over a height range, per original_source's overloaded api_get_hashrate_chart.
type GetHashrateChart struct {
	From, To chain.Height
	Window   int
	Reply    chan<- []float64
}

func (GetHashrateChart) isEvent() {}

// Inspect answers apiInspect with a human-readable dump of loop state.
type Inspect struct{ Reply chan<- string }

func (Inspect) isEvent() {}

// GetSignedSnapshot answers a request for the loop's current best signed
// snapshot, used by API callers deciding whether to broadcast a new Leader.
type GetSignedSnapshot struct {
	Reply chan<- chain.SnapshotInfo
}

func (GetSignedSnapshot) isEvent() {}
