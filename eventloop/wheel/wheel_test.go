package wheel

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestWheelOrdersByDeadline(t *testing.T) {
	w := New()
	w.Insert(30*time.Millisecond, "third")
	w.Insert(10*time.Millisecond, "first")
	w.Insert(20*time.Millisecond, "second")

	time.Sleep(40 * time.Millisecond)
	expired := w.PopExpired(time.Now())
	require.Equal(t, []any{"first", "second", "third"}, expired)
	require.Equal(t, 0, w.Len())
}

func TestWheelCancelRemovesEntry(t *testing.T) {
	w := New()
	h1 := w.Insert(10*time.Millisecond, "keep")
	h2 := w.Insert(10*time.Millisecond, "cancel-me")
	w.Cancel(h2)
	require.Equal(t, 1, w.Len())

	time.Sleep(15 * time.Millisecond)
	expired := w.PopExpired(time.Now())
	require.Equal(t, []any{"keep"}, expired)
	_ = h1
}

func TestWheelCancelIsIdempotent(t *testing.T) {
	w := New()
	h := w.Insert(10*time.Millisecond, "x")
	w.Cancel(h)
	w.Cancel(h) // must not panic or corrupt the heap
	require.Equal(t, 0, w.Len())
}

func TestWheelNextDeadline(t *testing.T) {
	w := New()
	_, ok := w.NextDeadline()
	require.False(t, ok)

	w.Insert(5*time.Millisecond, "a")
	w.Insert(50*time.Millisecond, "b")
	d, ok := w.NextDeadline()
	require.True(t, ok)
	require.WithinDuration(t, time.Now().Add(5*time.Millisecond), d, 5*time.Millisecond)
}

func TestWheelCancelMidHeapPreservesOrder(t *testing.T) {
	w := New()
	handles := make([]Handle, 0, 10)
	for i := 0; i < 10; i++ {
		handles = append(handles, w.Insert(time.Duration(i+1)*time.Millisecond, i))
	}
	// cancel a handful scattered through the heap
	w.Cancel(handles[2])
	w.Cancel(handles[5])
	w.Cancel(handles[8])

	time.Sleep(15 * time.Millisecond)
	expired := w.PopExpired(time.Now())
	require.Equal(t, []any{0, 1, 3, 4, 6, 7, 9}, expired)
}
