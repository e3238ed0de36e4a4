// Package chainserver defines the coordinator's view of the chain-state
// server it sits in front of: storage, validation and consensus live on the
// other side of this interface, reached only through async submissions and
// a narrow set of synchronous reads used solely for probe replies.
package chainserver

import (
	"github.com/I-luk-I/Warthog/chain"
	"github.com/I-luk-I/Warthog/protocol"
	"github.com/ethereum/go-ethereum/common"
)

// HeightRange is an inclusive block-height range, as requested by a peer's
// BlockReq.
type HeightRange struct {
	Start, End chain.Height
}

// StageResult is the chain server's verdict on a previously submitted
// candidate chain: which peers (if any) supplied a batch that failed
// header-level validation, and the chain's new consensus tip after applying
// whatever portion validated cleanly. Body-level offenses are not folded in
// here: this chain model's Header carries no body commitment for the server
// to check a delivered body against, so a bad body can only be caught by the
// reassembly-level checksum/size validation in blockdownload.OnBlockReply,
// which closes its peer directly rather than waiting on a StageResult.
type StageResult struct {
	Offenders    []common.Hash // fingerprints of bad batches, correlated by the loop back to peers
	NewConsensus chain.Headerchain
	Accepted     bool
}

// ChainAction tags the three variants of ChainStateUpdate the chain server
// can emit, mirroring the tagged-union style used for Job and Event.
type ChainAction int

const (
	ActionAppend ChainAction = iota
	ActionFork
	ActionRollback
)

// Update is one chain-state notification pushed asynchronously by the chain
// server, always applied by the loop in emission order.
type Update struct {
	Action ChainAction

	// Append
	AppendedHeaders []chain.Header

	// Fork
	ForkHeight chain.Height
	NewTip     chain.Header

	// Rollback
	Snapshot chain.Descriptor
	ToHeight chain.Height

	MempoolLog []common.Hash
}

// BlocksCallback receives the bodies fulfilling an asyncGetBlocks request,
// or an error if the range could not be served.
type BlocksCallback func(bodies [][]byte, err error)

// EventSink is the narrow slice of the loop's Defer API a chain server
// needs to post its async replies back, without either side importing the
// other (chainserver.Server is a dependency of eventloop, so the reverse
// import would cycle).
type EventSink interface {
	DeferChainUpdate(update Update, mempoolLog []common.Hash) bool
	DeferStageResult(result StageResult) bool
}

// Server is the coordinator's view of the chain-state server: everything
// the loop needs to drive header/block sync and forward peer submissions,
// without owning any storage or consensus logic itself.
type Server interface {
	// AsyncGetBlocks fulfills a peer's block-body request; the callback is
	// posted back to the loop's event queue, never invoked inline.
	AsyncGetBlocks(r HeightRange, cb BlocksCallback)

	// AsyncStageRequest submits a candidate header chain for validation;
	// the eventual verdict arrives as a StageResult event.
	AsyncStageRequest(candidate chain.Headerchain)

	// AsyncSubmitBodies delivers a contiguous run of freshly downloaded
	// block bodies for storage against the currently staged chain, once
	// blockdownload has assembled them into a contiguous prefix.
	AsyncSubmitBodies(bodies []protocol.Body)

	// AsyncSetSignedCheckpoint propagates a leader-forwarded signed
	// snapshot into the chain server's pinning logic.
	AsyncSetSignedCheckpoint(snapshot chain.Descriptor, height chain.Height, priority uint64, signature []byte)

	// AsyncPutMempool forwards transaction blobs received via TxRep.
	AsyncPutMempool(txs [][]byte)

	// GetHeaders returns headers in the given inclusive range from
	// consensus, used only synchronously inside the loop to answer
	// BatchReq/ProbeReq without a round trip to the chain server.
	GetHeaders(r HeightRange) ([]chain.Header, error)

	// GetDescriptorHeader returns the header at height on the chain
	// identified by descriptor, or false if unknown — used to answer
	// ProbeReq.
	GetDescriptorHeader(descriptor chain.Descriptor, height chain.Height) (chain.Header, bool)
}
