package blockdownload

import (
	"testing"

	"github.com/I-luk-I/Warthog/chain"
	"github.com/I-luk-I/Warthog/eventloop/peers"
	"github.com/I-luk-I/Warthog/protocol"
	"github.com/stretchr/testify/require"
)

var easyTarget = chain.NewTargetV2(1.0)

func buildChain(n int) chain.Headerchain {
	var headers []chain.Header
	prev := chain.Header{}
	for i := 1; i <= n; i++ {
		h := chain.Header{PrevHash: prev.Hash(), Height: chain.Height(i), Target: easyTarget, Timestamp: uint64(i), Nonce: uint64(i)}
		headers = append(headers, h)
		prev = h
	}
	return chain.NewHeaderchain(headers)
}

func TestPlanFansOutAcrossIdlePeers(t *testing.T) {
	target := buildChain(300)
	work := target.TotalWork()
	d := New(target)
	d.RetargetFrom(target, 0) // nothing delivered yet

	inputs := []PeerInput{
		{ID: 1, Idle: true, TotalWork: work},
		{ID: 2, Idle: true, TotalWork: work},
		{ID: 3, Idle: false, TotalWork: work},
	}
	assignments := d.Plan(inputs, 0, 8)
	require.Len(t, assignments, 2)
	require.Equal(t, chain.Height(1), assignments[0].Block.Start)
	require.Equal(t, chain.Height(SlotSize), assignments[0].Block.End)
	require.Equal(t, chain.Height(SlotSize+1), assignments[1].Block.Start)
}

func TestPlanSkipsInFlightRanges(t *testing.T) {
	target := buildChain(300)
	work := target.TotalWork()
	d := New(target)
	d.RetargetFrom(target, 0) // nothing delivered yet
	d.Plan([]PeerInput{{ID: 1, Idle: true, TotalWork: work}}, 0, 8)

	assignments := d.Plan([]PeerInput{{ID: 1, Idle: false, TotalWork: work}, {ID: 2, Idle: true, TotalWork: work}}, 1, 8)
	require.Len(t, assignments, 1)
	require.Equal(t, chain.Height(SlotSize+1), assignments[0].Block.Start)
}

func TestPlanSkipsPeersBelowMinWorksum(t *testing.T) {
	target := buildChain(300)
	d := New(target)
	d.RetargetFrom(target, 0) // nothing delivered yet
	d.SetMinWork(target.TotalWork())

	light := buildChain(1).TotalWork() // strictly less work than the 300-header target
	inputs := []PeerInput{{ID: 1, Idle: true, TotalWork: light}, {ID: 2, Idle: true, TotalWork: target.TotalWork()}}
	assignments := d.Plan(inputs, 0, 8)
	require.Len(t, assignments, 1)
	require.Equal(t, peers.ConnID(2), assignments[0].Peer)
}

func TestOnBlockReplyAdvancesDelivered(t *testing.T) {
	target := buildChain(10)
	d := New(target)
	req := peers.BlockRequest{Start: 1, End: 10}
	var bodies []protocol.Body
	for h := chain.Height(1); h <= 10; h++ {
		bodies = append(bodies, protocol.Body{Height: h, Data: []byte("x")})
	}
	err := d.OnBlockReply(req, protocol.BlockrepMsg{Bodies: bodies})
	require.NoError(t, err)
	require.True(t, d.Done())
	require.Equal(t, chain.Height(10), d.Delivered())
}

func TestOnBlockReplyRejectsWrongCount(t *testing.T) {
	target := buildChain(10)
	d := New(target)
	req := peers.BlockRequest{Start: 1, End: 10}
	err := d.OnBlockReply(req, protocol.BlockrepMsg{Bodies: []protocol.Body{{Height: 1}}})
	require.Error(t, err)
	var perr *protocol.Error
	require.ErrorAs(t, err, &perr)
	require.Equal(t, protocol.EBLOCKSIZE, perr.Code)
}

func TestExtendPreservesProgressOnPurePrefix(t *testing.T) {
	base := buildChain(10)
	d := New(base)
	req := peers.BlockRequest{Start: 1, End: 10}
	var bodies []protocol.Body
	for h := chain.Height(1); h <= 10; h++ {
		bodies = append(bodies, protocol.Body{Height: h, Data: []byte("x")})
	}
	require.NoError(t, d.OnBlockReply(req, protocol.BlockrepMsg{Bodies: bodies}))
	require.True(t, d.Done())

	longer := buildChain(20)
	require.True(t, d.Extend(longer))
	require.Equal(t, chain.Height(10), d.Delivered())
	require.False(t, d.Done())
}

func TestExtendResetsOnDivergentPrefix(t *testing.T) {
	base := buildChain(10)
	d := New(base)
	req := peers.BlockRequest{Start: 1, End: 10}
	var bodies []protocol.Body
	for h := chain.Height(1); h <= 10; h++ {
		bodies = append(bodies, protocol.Body{Height: h, Data: []byte("x")})
	}
	require.NoError(t, d.OnBlockReply(req, protocol.BlockrepMsg{Bodies: bodies}))

	forked := buildChain(10)
	headers := forked.Headers()
	headers[5].Timestamp++ // same length, diverges partway through the prefix
	forked = chain.NewHeaderchain(headers)

	require.False(t, d.Extend(forked))
	require.Equal(t, chain.Height(0), d.Delivered())
}

func TestAbandonPeerFreesRange(t *testing.T) {
	target := buildChain(300)
	work := target.TotalWork()
	d := New(target)
	d.RetargetFrom(target, 0) // nothing delivered yet
	d.Plan([]PeerInput{{ID: 1, Idle: true, TotalWork: work}}, 0, 8)
	d.AbandonPeer(1)

	assignments := d.Plan([]PeerInput{{ID: 2, Idle: true, TotalWork: work}}, 0, 8)
	require.Len(t, assignments, 1)
	require.Equal(t, chain.Height(1), assignments[0].Block.Start)
}
