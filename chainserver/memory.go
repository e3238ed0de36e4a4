package chainserver

import (
	"fmt"

	"github.com/I-luk-I/Warthog/chain"
	"github.com/I-luk-I/Warthog/protocol"
)

// Memory is a minimal in-memory Server, sufficient for exercising the
// coordinator loop in tests without a real storage/validation backend.
// Submissions are applied synchronously; callers wanting async-shaped
// semantics should invoke its methods and then drain results themselves —
// production code talks to Server through the loop's own event queue
// instead.
type Memory struct {
	consensus chain.Headerchain
	bodies    map[chain.Height][]byte
	mempool   [][]byte
	sink      EventSink
	checkpoint struct {
		descriptor chain.Descriptor
		height     chain.Height
		priority   uint64
	}
}

// NewMemory creates a Memory server seeded with the given consensus chain.
func NewMemory(consensus chain.Headerchain) *Memory {
	return &Memory{consensus: consensus, bodies: make(map[chain.Height][]byte)}
}

// SetSink wires the loop's event sink so staging and chain updates can be
// posted back. Tests exercising Memory in isolation may leave this unset;
// AsyncStageRequest then just mutates local state silently, which is
// sufficient for headerdownload/blockdownload package tests that don't run
// a full loop.
func (m *Memory) SetSink(sink EventSink) { m.sink = sink }

// PutBody seeds a body for a given height, for tests that need
// AsyncGetBlocks to succeed.
func (m *Memory) PutBody(h chain.Height, data []byte) { m.bodies[h] = data }

func (m *Memory) AsyncGetBlocks(r HeightRange, cb BlocksCallback) {
	var out [][]byte
	for h := r.Start; h <= r.End; h++ {
		b, ok := m.bodies[h]
		if !ok {
			cb(nil, fmt.Errorf("chainserver: no body at height %d", h))
			return
		}
		out = append(out, b)
	}
	cb(out, nil)
}

func (m *Memory) AsyncStageRequest(candidate chain.Headerchain) {
	accepted := candidate.TotalWork().Cmp(m.consensus.TotalWork()) > 0
	if accepted {
		m.consensus = candidate
	}
	if m.sink != nil {
		m.sink.DeferStageResult(StageResult{NewConsensus: m.consensus, Accepted: accepted})
	}
}

// AsyncSubmitBodies stores each delivered body, making it servable by a
// later AsyncGetBlocks the way a real chain server would persist it once
// received.
func (m *Memory) AsyncSubmitBodies(bodies []protocol.Body) {
	for _, b := range bodies {
		m.bodies[b.Height] = b.Data
	}
}

func (m *Memory) AsyncSetSignedCheckpoint(descriptor chain.Descriptor, height chain.Height, priority uint64, signature []byte) {
	if priority <= m.checkpoint.priority {
		return
	}
	m.checkpoint.descriptor = descriptor
	m.checkpoint.height = height
	m.checkpoint.priority = priority
}

func (m *Memory) AsyncPutMempool(txs [][]byte) {
	m.mempool = append(m.mempool, txs...)
}

func (m *Memory) GetHeaders(r HeightRange) ([]chain.Header, error) {
	var out []chain.Header
	for h := r.Start; h <= r.End; h++ {
		hdr, ok := m.consensus.HeaderAt(h)
		if !ok {
			return nil, fmt.Errorf("chainserver: no header at height %d", h)
		}
		out = append(out, hdr)
	}
	return out, nil
}

func (m *Memory) GetDescriptorHeader(descriptor chain.Descriptor, height chain.Height) (chain.Header, bool) {
	if m.consensus.Descriptor() != descriptor {
		return chain.Header{}, false
	}
	return m.consensus.HeaderAt(height)
}

// Consensus returns the server's current consensus chain, for test
// assertions.
func (m *Memory) Consensus() chain.Headerchain { return m.consensus }
