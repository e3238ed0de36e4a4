package peers

import (
	"testing"

	"github.com/I-luk-I/Warthog/chain"
	"github.com/stretchr/testify/require"
)

type nopSender struct{}

func (nopSender) Enqueue(buf []byte) {}

func chainViewFixture() chain.View {
	return chain.NewView(chain.Descriptor{}, 10, chain.ZeroWork(), 0, 0)
}

func TestSetInsertAssignsStableIncreasingIDs(t *testing.T) {
	s := NewSet()
	a := s.Insert(nopSender{})
	b := s.Insert(nopSender{})
	require.NotEqual(t, a.ID, b.ID)
	require.Less(t, a.ID, b.ID)
	require.Equal(t, a, s.Find(a.ID))
}

func TestSetInitializedExcludesAwaitingInit(t *testing.T) {
	s := NewSet()
	a := s.Insert(nopSender{})
	s.Insert(nopSender{})
	require.Empty(t, s.Initialized())

	a.SetView(chainViewFixture())
	init := s.Initialized()
	require.Len(t, init, 1)
	require.Equal(t, a.ID, init[0].ID)
}

func TestSetActiveJobsCountsOnlyCorrelatedJobs(t *testing.T) {
	s := NewSet()
	a := s.Insert(nopSender{})
	a.SetView(chainViewFixture())
	require.Equal(t, 0, s.ActiveJobs())

	a.Job = Job{Kind: JobProbe}
	require.Equal(t, 1, s.ActiveJobs())

	a.Job = Job{Kind: JobIdle}
	require.Equal(t, 0, s.ActiveJobs())
}

func TestSetGarbageCollectRemovesOnlyErased(t *testing.T) {
	s := NewSet()
	a := s.Insert(nopSender{})
	b := s.Insert(nopSender{})
	a.Erased = true

	removed := s.GarbageCollect()
	require.Equal(t, []ConnID{a.ID}, removed)
	require.Nil(t, s.Find(a.ID))
	require.Equal(t, b, s.Find(b.ID))
}

func TestSetSampleVerifiedRespectsLimit(t *testing.T) {
	s := NewSet()
	for i := 0; i < 5; i++ {
		p := s.Insert(nopSender{})
		p.SetView(chainViewFixture())
	}
	require.Len(t, s.SampleVerified(3), 3)
	require.Len(t, s.SampleVerified(10), 5)
}
