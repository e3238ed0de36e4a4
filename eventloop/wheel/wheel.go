// Package wheel implements the coordinator's timer wheel: a time-ordered
// dispatch structure for scheduled callbacks with O(log n) insert and
// cancel, carrying an arbitrary tagged payload per entry.
//
// The heap itself is grounded on go-ethereum's common/prque priority queue
// (container/heap plus a setIndex callback for O(log n) removal), adapted
// here to a generic min-heap over deadlines instead of a max-heap over
// int64 priorities, and specialized to carry timer payloads rather than
// arbitrary values.
package wheel

import (
	"container/heap"
	"time"
)

// Handle identifies one scheduled entry; it becomes invalid the instant the
// entry fires or is cancelled.
type Handle struct {
	item *entry
}

type entry struct {
	deadline time.Time
	payload  any
	index    int // current position in the heap, maintained by heap.Interface
}

// Wheel is an ordered map from deadline to tagged payload.
type Wheel struct {
	entries entryHeap
}

// New creates an empty timer wheel.
func New() *Wheel {
	return &Wheel{}
}

// Insert schedules payload to fire after delay and returns a handle that can
// later be passed to Cancel. Handles are stable under further insertions.
func (w *Wheel) Insert(delay time.Duration, payload any) Handle {
	e := &entry{deadline: time.Now().Add(delay), payload: payload}
	heap.Push(&w.entries, e)
	return Handle{item: e}
}

// InsertAt schedules payload to fire at an absolute deadline.
func (w *Wheel) InsertAt(deadline time.Time, payload any) Handle {
	e := &entry{deadline: deadline, payload: payload}
	heap.Push(&w.entries, e)
	return Handle{item: e}
}

// Cancel removes the entry identified by h, if it is still pending. Cancelled
// handles must not be reused: subsequent calls are no-ops.
func (w *Wheel) Cancel(h Handle) {
	if h.item == nil || h.item.index < 0 {
		return
	}
	heap.Remove(&w.entries, h.item.index)
	h.item.index = -1
}

// NextDeadline returns the deadline of the earliest pending entry and true.
// If the wheel is empty it returns the zero time and false.
func (w *Wheel) NextDeadline() (time.Time, bool) {
	if w.entries.Len() == 0 {
		return time.Time{}, false
	}
	return w.entries[0].deadline, true
}

// PopExpired removes and returns, in deadline order, every entry whose
// deadline is at or before now.
func (w *Wheel) PopExpired(now time.Time) []any {
	var out []any
	for w.entries.Len() > 0 && !w.entries[0].deadline.After(now) {
		e := heap.Pop(&w.entries).(*entry)
		e.index = -1
		out = append(out, e.payload)
	}
	return out
}

// Len returns the number of pending entries.
func (w *Wheel) Len() int { return w.entries.Len() }

type entryHeap []*entry

func (h entryHeap) Len() int { return len(h) }
func (h entryHeap) Less(i, j int) bool {
	return h[i].deadline.Before(h[j].deadline)
}
func (h entryHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}
func (h *entryHeap) Push(x any) {
	e := x.(*entry)
	e.index = len(*h)
	*h = append(*h, e)
}
func (h *entryHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return e
}
