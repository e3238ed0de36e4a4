// Package blockdownload implements the block-body download state machine:
// once a staged header chain exists, fetch bodies for a sliding focus
// window from whichever initialized peers are idle, fanning the window out
// across multiple peers the way a body queue would.
package blockdownload

import (
	"sort"

	"github.com/I-luk-I/Warthog/chain"
	"github.com/I-luk-I/Warthog/eventloop/peers"
	"github.com/I-luk-I/Warthog/protocol"
)

// SlotSize bounds how many block bodies a single BlockReq asks for.
const SlotSize = 128

// WindowSize is how many heights ahead of the last delivered body the
// downloader keeps in flight at once.
const WindowSize = 4 * SlotSize

// Assignment is a block-range request the coordinator should issue.
type Assignment struct {
	Peer  peers.ConnID
	Block peers.BlockRequest
}

// Downloader tracks the staged header chain being materialized into full
// blocks: which height ranges are already delivered, which are in flight,
// and which peer owns each in-flight range.
type Downloader struct {
	target    chain.Headerchain // the staged chain we're fetching bodies for
	minWork   chain.Work        // minWorksum gate: peers claiming less than this are ineligible
	delivered chain.Height      // highest height with a body already delivered, contiguous from 1
	inFlight  []span            // outstanding [start,end] ranges, sorted by start
	bodies    map[chain.Height]protocol.Body
}

type span struct {
	peer       peers.ConnID
	start, end chain.Height
}

// New creates a block downloader targeting the given staged header chain,
// gating peer eligibility at that chain's own work until SetMinWork says
// otherwise. target is assumed already fully known (e.g. the persisted
// consensus at startup), so delivered starts at its tip rather than 0 —
// otherwise the downloader would immediately plan requests for bodies the
// chain already has.
func New(target chain.Headerchain) *Downloader {
	return &Downloader{target: target, minWork: target.TotalWork(), delivered: target.Length(), bodies: make(map[chain.Height]protocol.Body)}
}

// SetMinWork updates the minWorksum gate: only peers claiming at least w
// total work are eligible for block-body assignments. Called whenever
// consensus work changes, independently of Retarget/Extend, since the gate
// tracks consensus rather than whatever chain is currently being fetched.
func (d *Downloader) SetMinWork(w chain.Work) {
	d.minWork = w
}

// Retarget replaces the chain being downloaded, discarding all in-flight
// state and treating the whole of target as already known — called whenever
// the new target is itself a chain already validated elsewhere (the
// unchanged consensus after a rejected stage, a rollback target), so
// nothing needs to be (re-)fetched.
func (d *Downloader) Retarget(target chain.Headerchain) {
	d.RetargetFrom(target, target.Length())
}

// RetargetFrom replaces the chain being downloaded with target, discarding
// all in-flight and delivered state and seeding delivered at known: the
// height up to which target's own headers already have validated bodies
// elsewhere (e.g. the point a freshly staged candidate forked from the
// previously known chain). Only heights beyond known are treated as
// missing and planned for download.
func (d *Downloader) RetargetFrom(target chain.Headerchain, known chain.Height) {
	d.target = target
	d.delivered = known
	d.inFlight = nil
	d.bodies = make(map[chain.Height]protocol.Body)
}

// Extend updates the target to newTarget, preserving delivered bodies and
// in-flight ranges when newTarget shares the current target's entire header
// history (the common case: a staged candidate gets accepted into consensus
// unchanged, or consensus grows by plain Append). Falls back to treating
// newTarget as entirely unfetched if it diverges anywhere in the shared
// prefix: header content changed, so any bodies delivered against the old
// content can't be assumed to match. Reports whether progress was
// preserved.
func (d *Downloader) Extend(newTarget chain.Headerchain) (preserved bool) {
	if extendsSamePrefix(d.target, newTarget) {
		d.target = newTarget
		return true
	}
	d.RetargetFrom(newTarget, 0)
	return false
}

func extendsSamePrefix(old, new chain.Headerchain) bool {
	if new.Length() < old.Length() {
		return false
	}
	for h := chain.Height(1); h <= old.Length(); h++ {
		oh, _ := old.HeaderAt(h)
		nh, _ := new.HeaderAt(h)
		if oh.Hash() != nh.Hash() {
			return false
		}
	}
	return true
}

// Done reports whether every body up to the staged chain's tip has been
// delivered.
func (d *Downloader) Done() bool { return d.delivered >= d.target.Length() }

// PeerInput is the read-only view the downloader needs of one peer.
type PeerInput struct {
	ID        peers.ConnID
	Idle      bool
	TotalWork chain.Work // the peer's self-reported total work, checked against minWorksum
}

// Plan fans the focus window out across idle, minWorksum-eligible peers,
// skipping ranges already in flight, honoring the global request budget.
func (d *Downloader) Plan(inputs []PeerInput, activeJobs, maxRequests int) []Assignment {
	if d.Done() {
		return nil
	}
	windowEnd := d.delivered + WindowSize
	if windowEnd > d.target.Length() {
		windowEnd = d.target.Length()
	}
	free := d.freeRanges(d.delivered+1, windowEnd)

	sort.Slice(inputs, func(i, j int) bool { return inputs[i].ID < inputs[j].ID })

	var out []Assignment
	budget := maxRequests - activeJobs
	fi := 0
	for _, in := range inputs {
		if budget <= 0 || fi >= len(free) {
			break
		}
		if !in.Idle || in.TotalWork.Cmp(d.minWork) < 0 {
			continue
		}
		r := free[fi]
		end := r.end
		if end-r.start+1 > SlotSize {
			end = r.start + SlotSize - 1
		}
		if end < r.end {
			free[fi].start = end + 1 // rest of this range stays free for the next peer
		} else {
			fi++
		}
		d.inFlight = append(d.inFlight, span{peer: in.ID, start: r.start, end: end})
		out = append(out, Assignment{
			Peer:  in.ID,
			Block: peers.BlockRequest{Start: r.start, End: end},
		})
		budget--
	}
	return out
}

func (d *Downloader) freeRanges(lo, hi chain.Height) []span {
	if lo > hi {
		return nil
	}
	occupied := make([]span, len(d.inFlight))
	copy(occupied, d.inFlight)
	sort.Slice(occupied, func(i, j int) bool { return occupied[i].start < occupied[j].start })

	var free []span
	cursor := lo
	for _, o := range occupied {
		if o.start > cursor {
			end := o.start - 1
			if end > hi {
				end = hi
			}
			if cursor <= end {
				free = append(free, span{start: cursor, end: end})
			}
		}
		if o.end+1 > cursor {
			cursor = o.end + 1
		}
	}
	if cursor <= hi {
		free = append(free, span{start: cursor, end: hi})
	}
	return free
}

// OnBlockReply validates and records a block-body reply, sliding the
// delivered watermark forward over any now-contiguous run.
func (d *Downloader) OnBlockReply(req peers.BlockRequest, msg protocol.BlockrepMsg) error {
	want := int(req.End - req.Start + 1)
	if len(msg.Bodies) != want {
		return protocol.Errorf(protocol.EBLOCKSIZE, "got %d bodies, requested %d", len(msg.Bodies), want)
	}
	seen := make(map[chain.Height]bool, want)
	for _, b := range msg.Bodies {
		h := b.Height
		if h < req.Start || h > req.End || seen[h] {
			return protocol.Errorf(protocol.EINVBODY, "body height %d out of requested range [%d,%d]", h, req.Start, req.End)
		}
		seen[h] = true
		d.bodies[h] = b
	}
	d.removeInFlight(req.Start, req.End)

	for {
		if _, ok := d.bodies[d.delivered+1]; !ok {
			break
		}
		d.delivered++
	}
	return nil
}

func (d *Downloader) removeInFlight(start, end chain.Height) {
	out := d.inFlight[:0]
	for _, s := range d.inFlight {
		if s.start != start || s.end != end {
			out = append(out, s)
		}
	}
	d.inFlight = out
}

// AbandonPeer releases any in-flight range owned by a peer that just got
// closed, so it can be reassigned.
func (d *Downloader) AbandonPeer(id peers.ConnID) {
	out := d.inFlight[:0]
	for _, s := range d.inFlight {
		if s.peer != id {
			out = append(out, s)
		}
	}
	d.inFlight = out
}

// PopContiguous drains and returns every body above from that is now
// contiguously available; the caller tracks and advances its own pop
// watermark.
func (d *Downloader) PopContiguous(from chain.Height) []protocol.Body {
	var out []protocol.Body
	for h := from + 1; h <= d.delivered; h++ {
		b, ok := d.bodies[h]
		if !ok {
			break
		}
		out = append(out, b)
		delete(d.bodies, h)
	}
	return out
}

// Delivered returns the highest contiguously-delivered height.
func (d *Downloader) Delivered() chain.Height { return d.delivered }
