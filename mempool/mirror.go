// Package mempool implements the coordinator's mempool mirror: a bounded
// record of transaction ids recently seen, used to answer Pong gossip and
// to dedupe TxNotify fan-out. The mempool's own indexing, validation and
// eviction policy live in the chain server; this is only the loop-local
// cache needed to avoid re-announcing ids a peer has already told us about.
package mempool

import (
	"github.com/ethereum/go-ethereum/common"
	lru "github.com/hashicorp/golang-lru"
)

const defaultCapacity = 4096

// Mirror tracks recently-known transaction ids and, per peer, which ids
// have already been exchanged with them.
type Mirror struct {
	known *lru.Cache // common.Hash -> struct{}
	seenByPeer map[uint64]*lru.Cache
}

// New creates an empty mirror.
func New() *Mirror {
	known, err := lru.New(defaultCapacity)
	if err != nil {
		panic(err) // defaultCapacity is a positive constant; New only errors on size <= 0
	}
	return &Mirror{known: known, seenByPeer: make(map[uint64]*lru.Cache)}
}

// Add records ids as known to the node, e.g. from a chain-state update's
// mempool log.
func (m *Mirror) Add(ids ...common.Hash) {
	for _, id := range ids {
		m.known.Add(id, struct{}{})
	}
}

// Known returns up to k known transaction ids, for Pong sampling.
func (m *Mirror) Known(k int) []common.Hash {
	keys := m.known.Keys()
	if len(keys) > k {
		keys = keys[len(keys)-k:]
	}
	out := make([]common.Hash, 0, len(keys))
	for _, key := range keys {
		out = append(out, key.(common.Hash))
	}
	return out
}

// IsKnown reports whether id is already recorded as known to the node.
func (m *Mirror) IsKnown(id common.Hash) bool {
	return m.known.Contains(id)
}

// MarkSeen records that peerID has announced or been sent id, so future
// gossip rounds skip it.
func (m *Mirror) MarkSeen(peerID uint64, id common.Hash) {
	c, ok := m.seenByPeer[peerID]
	if !ok {
		c, _ = lru.New(defaultCapacity)
		m.seenByPeer[peerID] = c
	}
	c.Add(id, struct{}{})
}

// HasSeen reports whether id has already been exchanged with peerID.
func (m *Mirror) HasSeen(peerID uint64, id common.Hash) bool {
	c, ok := m.seenByPeer[peerID]
	if !ok {
		return false
	}
	return c.Contains(id)
}

// ForgetPeer drops per-peer dedupe state for a closed connection.
func (m *Mirror) ForgetPeer(peerID uint64) {
	delete(m.seenByPeer, peerID)
}
