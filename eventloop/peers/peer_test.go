package peers

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNewPeerStartsAwaitingInit(t *testing.T) {
	p := NewPeer(1, nopSender{})
	require.False(t, p.HasView())
	require.Equal(t, JobAwaitingInit, p.Job.Kind)
	require.False(t, p.IsActive())
}

func TestSetViewTransitionsAwaitingInitToIdle(t *testing.T) {
	p := NewPeer(1, nopSender{})
	p.SetView(chainViewFixture())
	require.True(t, p.HasView())
	require.Equal(t, JobIdle, p.Job.Kind)
}

func TestSetViewDoesNotClobberAnInFlightJob(t *testing.T) {
	p := NewPeer(1, nopSender{})
	p.Job = Job{Kind: JobProbe}
	p.SetView(chainViewFixture())
	require.Equal(t, JobProbe, p.Job.Kind, "SetView must only reset JobAwaitingInit, not an already-assigned job")
}

func TestIsActiveByJobKind(t *testing.T) {
	cases := []struct {
		kind   JobKind
		active bool
	}{
		{JobIdle, false},
		{JobAwaitingInit, false},
		{JobProbe, true},
		{JobBatch, true},
		{JobBlock, true},
	}
	for _, c := range cases {
		p := &Peer{Job: Job{Kind: c.kind}}
		require.Equal(t, c.active, p.IsActive())
	}
}

func TestSendQueueFIFO(t *testing.T) {
	p := NewPeer(1, nopSender{})
	require.Equal(t, 0, p.QueueLen())

	p.QueueSend([]byte("a"))
	p.QueueSend([]byte("b"))
	require.Equal(t, 2, p.QueueLen())

	buf, ok := p.PopSend()
	require.True(t, ok)
	require.Equal(t, []byte("a"), buf)

	buf, ok = p.PopSend()
	require.True(t, ok)
	require.Equal(t, []byte("b"), buf)

	_, ok = p.PopSend()
	require.False(t, ok)
}

func TestMarkSentUpdatesLastSendAt(t *testing.T) {
	p := NewPeer(1, nopSender{})
	require.True(t, p.LastSendAt().IsZero())

	now := time.Now()
	p.MarkSent(now)
	require.Equal(t, now, p.LastSendAt())
}
