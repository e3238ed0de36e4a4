package headerdownload

import (
	"testing"

	"github.com/I-luk-I/Warthog/chain"
	"github.com/I-luk-I/Warthog/eventloop/peers"
	"github.com/I-luk-I/Warthog/protocol"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

// easyTarget requires no leading zero bits, so essentially any hash
// satisfies it — keeping fixture construction independent of real mining.
var easyTarget = chain.NewTargetV2(1.0)

func mkHeader(prev chain.Header, height chain.Height, nonce uint64) chain.Header {
	h := chain.Header{
		PrevHash:  prev.Hash(),
		Height:    height,
		Target:    easyTarget,
		Timestamp: uint64(height),
		Nonce:     nonce,
	}
	for i := uint64(0); i < 1<<8; i++ {
		h.Nonce = nonce + i
		digest := chain.HashExponentialDigestOf(h.Hash())
		if h.Target.Compatible(digest) {
			return h
		}
	}
	return h
}

func buildChain(n int) chain.Headerchain {
	var headers []chain.Header
	prev := chain.Header{}
	for i := 1; i <= n; i++ {
		h := mkHeader(prev, chain.Height(i), uint64(i)*1000)
		headers = append(headers, h)
		prev = h
	}
	return chain.NewHeaderchain(headers)
}

func TestPlanProbesUnresolvedPeer(t *testing.T) {
	base := buildChain(5)
	full := buildChain(10)
	d := New(base)

	view := chain.NewView(chain.Descriptor(common.Hash{9}), 10, full.TotalWork(), 5, 0)

	assignments := d.Plan([]PeerInput{{ID: 1, View: view, Phase: PhaseIdle}}, 0, 8)
	require.Len(t, assignments, 1)
	require.Equal(t, PhaseProbing, assignments[0].Phase)
}

func TestPlanRespectsBudget(t *testing.T) {
	base := buildChain(0)
	d := New(base)
	heavy := chain.ZeroWork().Add(easyTarget)
	view := chain.NewView(chain.Descriptor{}, 1, heavy, 0, 0)

	inputs := []PeerInput{
		{ID: 1, View: view, Phase: PhaseIdle},
		{ID: 2, View: view, Phase: PhaseIdle},
	}
	assignments := d.Plan(inputs, 8, 8)
	require.Empty(t, assignments)
}

func TestOnProbeReplyNarrowsRange(t *testing.T) {
	base := buildChain(5)
	d := New(base)
	view := chain.NewView(chain.Descriptor{}, 10, chain.ZeroWork(), 5, 0)

	tip, _ := base.HeaderAt(3)
	view = d.OnProbeReply(view, 3, protocol.ProberepMsg{Found: true, Header: tip})
	require.Equal(t, chain.Height(3), view.ConsensusRange.Lo)

	view = d.OnProbeReply(view, 5, protocol.ProberepMsg{Found: false})
	require.Equal(t, chain.Height(5), view.ConsensusRange.Hi)
}

func TestOnBatchReplyExtendsAndCompletes(t *testing.T) {
	base := buildChain(2)
	d := New(base)
	full := buildChain(4)

	view := chain.NewView(chain.Descriptor{}, 4, full.TotalWork(), 2, 0)
	view.ConsensusRange = chain.ForkRange{Lo: 2, Hi: 3}
	require.True(t, view.ConsensusRange.Empty())

	assignments := d.Plan([]PeerInput{{ID: 7, View: view, Phase: PhaseIdle}}, 0, 8)
	require.Len(t, assignments, 1)
	require.Equal(t, PhaseBatchRequesting, assignments[0].Phase)
	req := assignments[0].Batch
	require.Equal(t, chain.Height(3), req.Start)

	var batch []chain.Header
	for h := req.Start; h <= 4; h++ {
		hh, _ := full.HeaderAt(h)
		batch = append(batch, hh)
	}
	err := d.OnBatchReply(peers.BatchRequest{Start: req.Start, Length: req.Length}, protocol.BatchrepMsg{Headers: batch})
	require.NoError(t, err)

	got, known, ok := d.PopData()
	require.True(t, ok)
	require.Equal(t, chain.Height(4), got.Length())
	require.Equal(t, chain.Height(2), known) // forked from base's length (2), heights 1-2 already known
}

// TestPlanDoesNotReissueBatchAfterCandidateStages guards against re-planning
// a duplicate batch request for a peer whose chain was just fully verified
// and staged, before the (async) chain-server verdict updates consensus.
func TestPlanDoesNotReissueBatchAfterCandidateStages(t *testing.T) {
	base := buildChain(2)
	d := New(base)
	full := buildChain(4)

	view := chain.NewView(chain.Descriptor{}, 4, full.TotalWork(), 2, 0)
	view.ConsensusRange = chain.ForkRange{Lo: 2, Hi: 3}

	assignments := d.Plan([]PeerInput{{ID: 7, View: view, Phase: PhaseIdle}}, 0, 8)
	require.Len(t, assignments, 1)
	req := assignments[0].Batch

	var batch []chain.Header
	for h := req.Start; h <= 4; h++ {
		hh, _ := full.HeaderAt(h)
		batch = append(batch, hh)
	}
	err := d.OnBatchReply(peers.BatchRequest{Start: req.Start, Length: req.Length}, protocol.BatchrepMsg{Headers: batch})
	require.NoError(t, err)

	_, _, ok := d.PopData()
	require.True(t, ok)

	// Same peer, same view (chain server hasn't accepted yet, so consensus
	// hasn't moved) — must now be idle rather than re-issued a batch.
	assignments = d.Plan([]PeerInput{{ID: 7, View: view, Phase: PhaseIdle}}, 0, 8)
	require.Empty(t, assignments)
}

func TestOnBatchReplyRejectsTargetOutsideRetargetBound(t *testing.T) {
	base := buildChain(2)
	d := New(base)
	full := buildChain(4)

	view := chain.NewView(chain.Descriptor{}, 4, full.TotalWork(), 2, 0)
	view.ConsensusRange = chain.ForkRange{Lo: 2, Hi: 3}

	assignments := d.Plan([]PeerInput{{ID: 7, View: view, Phase: PhaseIdle}}, 0, 8)
	require.Len(t, assignments, 1)
	req := assignments[0].Batch

	tip, _ := base.HeaderAt(2)
	liar := mkHeader(tip, 3, 1)
	liar.Target = chain.NewTargetV2(1e12) // wildly harder than tip's easyTarget, well outside the bound
	extra := mkHeader(liar, 4, 1)

	err := d.OnBatchReply(peers.BatchRequest{Start: req.Start, Length: req.Length}, protocol.BatchrepMsg{Headers: []chain.Header{liar, extra}})
	require.Error(t, err)
	var perr *protocol.Error
	require.ErrorAs(t, err, &perr)
	require.Equal(t, protocol.EINVBODY, perr.Code)
}

func TestOnBatchReplyRejectsOversize(t *testing.T) {
	base := buildChain(0)
	d := New(base)
	d.candidate = &Candidate{nextAt: 1, target: 10}
	err := d.OnBatchReply(peers.BatchRequest{Start: 1, Length: 2}, protocol.BatchrepMsg{Headers: make([]chain.Header, 5)})
	require.Error(t, err)
	var perr *protocol.Error
	require.ErrorAs(t, err, &perr)
	require.Equal(t, protocol.EBATCHSIZE, perr.Code)
}
