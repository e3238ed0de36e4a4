package peers

import (
	"fmt"
	"sort"
)

// Set is the coordinator's peer registry: a map of connection id to Peer,
// the sole authority on which peers exist. Downloaders never hold *Peer
// pointers across event-loop ticks; they re-resolve by ConnID each time,
// keeping the registry the single owner.
type Set struct {
	byID map[ConnID]*Peer
	next ConnID
}

// NewSet creates an empty peer registry.
func NewSet() *Set {
	return &Set{byID: make(map[ConnID]*Peer)}
}

// ErrDuplicateConnection reports a duplicate connection id. Insert assigns
// each peer a fresh id and returns no error, so it never produces this one.
var ErrDuplicateConnection = fmt.Errorf("peer: duplicate connection id")

// Insert admits a new peer awaiting its INIT handshake and returns it.
func (s *Set) Insert(sender Sender) *Peer {
	s.next++
	id := s.next
	p := NewPeer(id, sender)
	s.byID[id] = p
	return p
}

// Erase removes a peer from the registry. It is a no-op if the peer is
// already gone.
func (s *Set) Erase(id ConnID) {
	delete(s.byID, id)
}

// Find returns the peer with the given id, or nil.
func (s *Set) Find(id ConnID) *Peer {
	return s.byID[id]
}

// All returns every registered peer, in connection-id order for
// determinism.
func (s *Set) All() []*Peer {
	out := make([]*Peer, 0, len(s.byID))
	for _, p := range s.byID {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Initialized returns every peer that has completed its INIT handshake.
func (s *Set) Initialized() []*Peer {
	all := s.All()
	out := all[:0:0]
	for _, p := range all {
		if p.HasView() {
			out = append(out, p)
		}
	}
	return out
}

// Len returns the number of registered peers, erased or not.
func (s *Set) Len() int { return len(s.byID) }

// ActiveJobs counts peers currently holding a job that counts against the
// global maxRequests budget (invariant 1 of the testable properties).
func (s *Set) ActiveJobs() int {
	n := 0
	for _, p := range s.byID {
		if p.IsActive() {
			n++
		}
	}
	return n
}

// SampleVerified returns up to k initialized peers, including any marked
// Erased that GarbageCollect has not yet removed. Peers are returned in
// connection-id order; callers wanting randomness should shuffle the address
// book instead of this list.
func (s *Set) SampleVerified(k int) []*Peer {
	init := s.Initialized()
	if len(init) > k {
		init = init[:k]
	}
	return init
}

// GarbageCollect removes every peer marked Erased. Called once per event
// loop tick, after all handlers for that tick have run, so no handler
// invalidates another handler's peer iteration mid-tick.
func (s *Set) GarbageCollect() (removed []ConnID) {
	for id, p := range s.byID {
		if p.Erased {
			delete(s.byID, id)
			removed = append(removed, id)
		}
	}
	return removed
}
