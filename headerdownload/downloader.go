// Package headerdownload implements the header-download state machine: for
// every peer, narrow the fork range by bisecting probes; for the peer
// currently offering the most work, pull header batches from the fork point
// toward its tip; once a candidate chain surpasses consensus work, stage it.
package headerdownload

import (
	"fmt"

	"github.com/I-luk-I/Warthog/chain"
	"github.com/I-luk-I/Warthog/eventloop/peers"
	"github.com/I-luk-I/Warthog/protocol"
)

// BatchSize bounds how many headers a single BatchReq asks for.
const BatchSize = 500

// minReturn is the fewest headers a compliant BatchRep may contain; the
// request's own length is the most.
const minReturn = 1

// Phase is a peer's position in the header-download state machine.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseProbing
	PhaseBatchRequesting
)

// Assignment is a request the downloader wants issued to a peer; the
// coordinator loop is responsible for actually arming the job and sending
// the wire message.
type Assignment struct {
	Peer  peers.ConnID
	Phase Phase
	Probe peers.ProbeRequest
	Batch peers.BatchRequest
}

// Candidate is the header chain currently under construction, heavier than
// consensus but not yet fully verified.
type Candidate struct {
	base    chain.Headerchain // the chain the candidate extends (usually consensus)
	built   chain.Headerchain // base plus every verified batch so far
	peer    peers.ConnID      // whose tip we are chasing
	nextAt  chain.Height      // next height to request
	target  chain.Height      // the peer's advertised length when we started
}

// Downloader is the per-loop header-download state machine.
type Downloader struct {
	ourWork       chain.Work
	consensus     chain.Headerchain
	candidate     *Candidate
	completed     *chain.Headerchain // set once a heavier chain finishes verification, cleared by PopData
	completedBase chain.Height       // height completed forked from, i.e. already has known bodies
}

// New creates a header downloader rooted at consensus.
func New(consensus chain.Headerchain) *Downloader {
	return &Downloader{
		ourWork:   consensus.TotalWork(),
		consensus: consensus,
	}
}

// SetConsensus updates the base chain the downloader measures against and
// drops any in-flight candidate and any completed, not yet popped chain,
// whether or not they still extend c.
func (d *Downloader) SetConsensus(c chain.Headerchain) {
	d.consensus = c
	d.ourWork = c.TotalWork()
	if d.candidate != nil {
		d.candidate = nil
	}
	d.completed = nil
}

// PeerInput is the read-only view the downloader needs of one peer to plan
// its next request.
type PeerInput struct {
	ID    peers.ConnID
	View  chain.View
	Phase Phase // the peer's current job classified into a downloader phase
}

// Plan walks candidates in fair order (highest advertised work first, then
// connection id) and returns at most one new Assignment per idle,
// initialized peer, stopping once activeJobs+len(result) would exceed
// budget.
func (d *Downloader) Plan(inputs []PeerInput, activeJobs, maxRequests int) []Assignment {
	sortByWorkThenID(inputs)

	var out []Assignment
	budget := maxRequests - activeJobs
	for _, in := range inputs {
		if budget <= 0 {
			break
		}
		if in.Phase != PhaseIdle {
			continue
		}
		if !in.View.HasMoreWork(d.ourWork) {
			continue
		}
		if a, ok := d.planOne(in); ok {
			out = append(out, a)
			budget--
		}
	}
	return out
}

func (d *Downloader) planOne(in PeerInput) (Assignment, bool) {
	if _, agreed := in.View.AgreesAt(); !agreed {
		h := in.View.ConsensusRange.Bisect()
		return Assignment{
			Peer:  in.ID,
			Phase: PhaseProbing,
			Probe: peers.ProbeRequest{Height: h},
		}, true
	}

	// Fork point known: if no candidate is under construction, focus on this
	// peer; while one is, only the peer it chases gets batch requests.
	if d.candidate == nil || d.candidate.peer != in.ID {
		if d.candidate != nil {
			// Already chasing a different (possibly still-best) peer; only
			// steal focus if this peer strictly outweighs it. We don't have
			// the other peer's live view here, so we conservatively keep
			// the existing candidate and let this peer idle for now.
			return Assignment{}, false
		}
		forkLo, _ := in.View.AgreesAt()
		d.candidate = &Candidate{
			base:   d.consensus.Truncate(forkLo),
			built:  d.consensus.Truncate(forkLo),
			peer:   in.ID,
			nextAt: forkLo + 1,
			target: in.View.Length,
		}
	}
	c := d.candidate
	if c.nextAt > c.target {
		return Assignment{}, false
	}
	length := c.target - c.nextAt + 1
	if length > BatchSize {
		length = BatchSize
	}
	return Assignment{
		Peer:  in.ID,
		Phase: PhaseBatchRequesting,
		Batch: peers.BatchRequest{Start: c.nextAt, Length: uint16(length)},
	}, true
}

// OnProbeReply validates and applies a probe reply, narrowing the peer's
// fork range. It never returns a protocol error: an unhelpful (Found=false)
// reply just narrows nothing.
func (d *Downloader) OnProbeReply(view chain.View, height chain.Height, msg protocol.ProberepMsg) chain.View {
	if !msg.Found {
		view.ConsensusRange = view.ConsensusRange.NarrowHi(height)
		return view
	}
	ours, ok := d.consensus.HeaderAt(height)
	if ok && ours.Hash() == msg.Header.Hash() {
		view.ConsensusRange = view.ConsensusRange.NarrowLo(height)
	} else {
		view.ConsensusRange = view.ConsensusRange.NarrowHi(height)
	}
	return view
}

// OnBatchReply validates a header batch reply against the taxonomy in
// spec §4.4: size bounds, correct chaining, and correct declared work.
func (d *Downloader) OnBatchReply(req peers.BatchRequest, msg protocol.BatchrepMsg) error {
	if len(msg.Headers) < minReturn || len(msg.Headers) > int(req.Length) {
		return protocol.Errorf(protocol.EBATCHSIZE, "got %d headers, requested up to %d", len(msg.Headers), req.Length)
	}
	if d.candidate == nil {
		return protocol.Errorf(protocol.EUNREQUESTED, "no candidate in progress")
	}
	c := d.candidate
	if req.Start != c.nextAt {
		return protocol.Errorf(protocol.EUNREQUESTED, "batch starts at %d, expected %d", req.Start, c.nextAt)
	}
	batch := chain.Batch{Start: req.Start, Headers: msg.Headers}
	extended, err := c.built.AppendBatch(batch)
	if err != nil {
		return protocol.Errorf(protocol.EINVBODY, "%v", err)
	}
	c.built = extended
	c.nextAt = extended.Length() + 1

	if c.nextAt > c.target {
		if extended.TotalWork().Cmp(d.ourWork) > 0 {
			completed := extended
			d.completed = &completed
			d.completedBase = c.base.Length()
			// A candidate staged here is committed to the chain server well
			// before its (async) verdict comes back. Raise ourWork now so
			// Plan doesn't treat the peer that just supplied it as still
			// having more work than we do and re-issue a duplicate batch
			// request for the range just verified. SetConsensus reconciles
			// this with reality once the verdict arrives, in either
			// direction.
			d.ourWork = extended.TotalWork()
		}
		d.candidate = nil
	}
	return nil
}

// PopData returns and clears a completed heavier candidate chain, if one is
// ready to be staged, along with the height it forked from: everything up
// to and including that height already has a validated body elsewhere.
func (d *Downloader) PopData() (chain.Headerchain, chain.Height, bool) {
	if d.completed == nil {
		return chain.Headerchain{}, 0, false
	}
	out := *d.completed
	known := d.completedBase
	d.completed = nil
	return out, known, true
}

// AbandonPeer drops any in-progress candidate focused on a peer that just
// got closed, returning its range to the pool for the next Plan call.
func (d *Downloader) AbandonPeer(id peers.ConnID) {
	if d.candidate != nil && d.candidate.peer == id {
		d.candidate = nil
	}
}

func sortByWorkThenID(inputs []PeerInput) {
	// Insertion sort: input sizes are small (bounded by peer count) and this
	// keeps the comparator readable without pulling in sort.Slice closures
	// at every Plan call.
	for i := 1; i < len(inputs); i++ {
		j := i
		for j > 0 && less(inputs[j], inputs[j-1]) {
			inputs[j], inputs[j-1] = inputs[j-1], inputs[j]
			j--
		}
	}
}

func less(a, b PeerInput) bool {
	cmp := a.View.TotalWork.Cmp(b.View.TotalWork)
	if cmp != 0 {
		return cmp > 0 // heavier work sorts first
	}
	return a.ID < b.ID
}

// String renders an assignment for logging.
func (a Assignment) String() string {
	switch a.Phase {
	case PhaseProbing:
		return fmt.Sprintf("probe(peer=%d height=%d)", a.Peer, a.Probe.Height)
	case PhaseBatchRequesting:
		return fmt.Sprintf("batch(peer=%d start=%d len=%d)", a.Peer, a.Batch.Start, a.Batch.Length)
	default:
		return "idle"
	}
}
