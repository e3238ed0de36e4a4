// Package protocol defines the wire message taxonomy exchanged between
// peers, and the checksum framing used to validate inbound buffers before
// they are parsed. Byte-level codec details beyond message shape (varint
// packing, compression, ...) belong to the transport layer, not here.
package protocol

import (
	"github.com/I-luk-I/Warthog/chain"
	"github.com/ethereum/go-ethereum/common"
)

// Kind identifies which of the sixteen message shapes a buffer decodes to.
type Kind uint8

const (
	KindInit Kind = iota + 1
	KindPing
	KindPong
	KindProbeReq
	KindProbeRep
	KindBatchReq
	KindBatchRep
	KindBlockReq
	KindBlockRep
	KindAppend
	KindFork
	KindSignedPinRollback
	KindTxNotify
	KindTxReq
	KindTxRep
	KindLeader
)

func (k Kind) String() string {
	switch k {
	case KindInit:
		return "Init"
	case KindPing:
		return "Ping"
	case KindPong:
		return "Pong"
	case KindProbeReq:
		return "ProbeReq"
	case KindProbeRep:
		return "ProbeRep"
	case KindBatchReq:
		return "BatchReq"
	case KindBatchRep:
		return "BatchRep"
	case KindBlockReq:
		return "BlockReq"
	case KindBlockRep:
		return "BlockRep"
	case KindAppend:
		return "Append"
	case KindFork:
		return "Fork"
	case KindSignedPinRollback:
		return "SignedPinRollback"
	case KindTxNotify:
		return "TxNotify"
	case KindTxReq:
		return "TxReq"
	case KindTxRep:
		return "TxRep"
	case KindLeader:
		return "Leader"
	default:
		return "Unknown"
	}
}

// Message is implemented by every wire message shape.
type Message interface {
	Kind() Kind
}

// Requestable is implemented by messages that carry a correlation nonce, as
// either the initiating request or the matching reply.
type Requestable interface {
	Message
	RequestNonce() uint64
}

// Endpoint is a dialable peer address, exchanged in Pong replies for address
// book seeding.
type Endpoint struct {
	IP   []byte
	Port uint16
}

// Priority ranks signed snapshots; a strictly higher Importance supersedes a
// prior pin.
type Priority struct {
	Importance uint64
}

// SignedSnapshot is an authoritative, priority-ranked pinning of a historical
// height, used to resolve deep rollbacks.
type SignedSnapshot struct {
	Height    chain.Height
	Priority  Priority
	Signature []byte
}

// InitMsg is the mandatory first message on every connection, advertising
// the sender's chain state.
type InitMsg struct {
	Descriptor chain.Descriptor
	Length     chain.Height
	TotalWork  [32]byte
}

func (InitMsg) Kind() Kind { return KindInit }

// PingMsg requests a Pong and, indirectly, address/tx gossip.
type PingMsg struct {
	Nonce uint64
}

func (PingMsg) Kind() Kind             { return KindPing }
func (m PingMsg) RequestNonce() uint64 { return m.Nonce }

// PongMsg answers a Ping, carrying sampled peer endpoints and known tx ids.
type PongMsg struct {
	Nonce     uint64
	Addresses []Endpoint
	TxIds     []common.Hash
}

func (PongMsg) Kind() Kind             { return KindPong }
func (m PongMsg) RequestNonce() uint64 { return m.Nonce }

// ProbereqMsg asks the peer whether their chain agrees with descriptor at a
// given height.
type ProbereqMsg struct {
	Nonce      uint64
	Descriptor chain.Descriptor
	Height     chain.Height
}

func (ProbereqMsg) Kind() Kind             { return KindProbeReq }
func (m ProbereqMsg) RequestNonce() uint64 { return m.Nonce }

// ProberepMsg answers a probe with the header actually at that height on the
// responder's chain (Found=false if the responder has no header there).
type ProberepMsg struct {
	Nonce  uint64
	Found  bool
	Header chain.Header
}

func (ProberepMsg) Kind() Kind             { return KindProbeRep }
func (m ProberepMsg) RequestNonce() uint64 { return m.Nonce }

// BatchreqMsg requests a contiguous run of headers.
type BatchreqMsg struct {
	Nonce  uint64
	Start  chain.Height
	Length uint16
}

func (BatchreqMsg) Kind() Kind             { return KindBatchReq }
func (m BatchreqMsg) RequestNonce() uint64 { return m.Nonce }

// BatchrepMsg answers a BatchreqMsg with the requested headers.
type BatchrepMsg struct {
	Nonce   uint64
	Headers []chain.Header
}

func (BatchrepMsg) Kind() Kind             { return KindBatchRep }
func (m BatchrepMsg) RequestNonce() uint64 { return m.Nonce }

// BlockreqMsg requests a contiguous, inclusive range of block bodies at
// heights [Start, End].
type BlockreqMsg struct {
	Nonce uint64
	Start chain.Height
	End   chain.Height
}

func (BlockreqMsg) Kind() Kind             { return KindBlockReq }
func (m BlockreqMsg) RequestNonce() uint64 { return m.Nonce }

// Body is an opaque, size-bounded block body payload.
type Body struct {
	Height chain.Height
	Data   []byte
}

// BlockrepMsg answers a BlockreqMsg with the requested bodies, in height
// order.
type BlockrepMsg struct {
	Nonce  uint64
	Bodies []Body
}

func (BlockrepMsg) Kind() Kind             { return KindBlockRep }
func (m BlockrepMsg) RequestNonce() uint64 { return m.Nonce }

// AppendMsg broadcasts newly accepted headers extending consensus.
type AppendMsg struct {
	Headers []chain.Header
}

func (AppendMsg) Kind() Kind { return KindAppend }

// ForkMsg broadcasts a reorg: the height at which the new tip diverges from
// what peers previously knew, plus the new tip header.
type ForkMsg struct {
	ForkHeight chain.Height
	NewTip     chain.Header
}

func (ForkMsg) Kind() Kind { return KindFork }

// SignedPinRollbackMsg proposes rolling consensus back to a signed snapshot.
type SignedPinRollbackMsg struct {
	Snapshot SignedSnapshot
}

func (SignedPinRollbackMsg) Kind() Kind { return KindSignedPinRollback }

// TxnotifyMsg announces transaction ids the sender holds.
type TxnotifyMsg struct {
	TxIds []common.Hash
}

func (TxnotifyMsg) Kind() Kind { return KindTxNotify }

// TxreqMsg requests full transaction bodies by id.
type TxreqMsg struct {
	TxIds []common.Hash
}

func (TxreqMsg) Kind() Kind { return KindTxReq }

// TxrepMsg answers a TxreqMsg with opaque transaction blobs.
type TxrepMsg struct {
	Txs [][]byte
}

func (TxrepMsg) Kind() Kind { return KindTxRep }

// LeaderMsg forwards a signed snapshot to be considered as our new pin.
type LeaderMsg struct {
	Snapshot SignedSnapshot
}

func (LeaderMsg) Kind() Kind { return KindLeader }
