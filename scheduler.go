// scheduler.go - Shared hardware event scheduler for the dual-CPU kernel.
//
// The scheduler is a fixed-capacity binary min-heap keyed on an absolute,
// monotonically increasing cycle timestamp. Every hardware block that needs
// to fire "N cycles from now" (timers, DMA, display timing, the APU) goes
// through here rather than polling its own deadline on every CPU step.
//
// Events live in a fixed slab; the heap orders slab indices. A handle is
// the event's slab slot, which never moves for the event's lifetime - the
// event records its own heap position instead, so cancellation stays
// O(log n) no matter how often the heap reorders around it.

package main

import "log"

// schedCapacity is the maximum number of events live at once. The full
// machine keeps well under this; a busier event set indicates a bug rather
// than a need for more capacity.
const schedCapacity = 64

// EventCallback receives cyclesLate, the number of cycles the scheduler was
// overdue in invoking the event (now - timestamp). Callbacks use this to
// correct drift when rescheduling themselves.
type EventCallback func(cyclesLate int)

// EventHandle identifies a live scheduler event for cancellation: the
// event's slab slot. It is only valid until the event fires or is
// cancelled; the slot may then be reused by a later Add.
type EventHandle int

type schedEvent struct {
	timestamp uint64
	seq       uint64 // insertion order, used to break timestamp ties
	callback  EventCallback
	heapIdx   int // position in the heap while live, -1 when free
}

// Scheduler is the shared event min-heap plus the monotonic "now" cycle
// counter. It is not safe for concurrent use; all scheduling happens on
// the single simulation thread.
type Scheduler struct {
	pool    [schedCapacity]schedEvent
	heap    [schedCapacity]int // slab indices ordered as a min-heap
	free    [schedCapacity]int // stack of free slab slots
	nfree   int
	size    int
	now     uint64
	nextSeq uint64
}

// NewScheduler returns a scheduler with an empty event heap at time zero.
func NewScheduler() *Scheduler {
	s := &Scheduler{}
	s.Reset()
	return s
}

// Reset empties the event heap and resets the cycle counter to zero.
func (s *Scheduler) Reset() {
	s.size = 0
	s.now = 0
	s.nextSeq = 0
	s.nfree = schedCapacity
	for i := range s.free {
		s.free[i] = schedCapacity - 1 - i
		s.pool[i].heapIdx = -1
		s.pool[i].callback = nil
	}
}

// Now returns the scheduler's current absolute cycle count.
func (s *Scheduler) Now() uint64 { return s.now }

// AddCycles advances the cycle counter without firing any events. Callers
// must invoke Step afterward to drain events whose time has come.
func (s *Scheduler) AddCycles(n uint64) { s.now += n }

// less reports whether the event at heap position i should sit above the
// one at j: earlier timestamp wins; ties are broken by insertion order
// rather than relying on the heap's incidental ordering, since the display
// timing unit schedules its per-line events in a fixed sequence.
func (s *Scheduler) less(i, j int) bool {
	a, b := &s.pool[s.heap[i]], &s.pool[s.heap[j]]
	if a.timestamp != b.timestamp {
		return a.timestamp < b.timestamp
	}
	return a.seq < b.seq
}

func (s *Scheduler) swap(i, j int) {
	s.heap[i], s.heap[j] = s.heap[j], s.heap[i]
	s.pool[s.heap[i]].heapIdx = i
	s.pool[s.heap[j]].heapIdx = j
}

func parentIdx(n int) int { return (n - 1) / 2 }
func leftIdx(n int) int   { return n*2 + 1 }
func rightIdx(n int) int  { return n*2 + 2 }

// Add schedules callback to fire at now+delay cycles. It panics if the
// fixed-capacity slab is already full: a full scheduler heap is a design
// bug in the emulator, not a recoverable guest condition.
func (s *Scheduler) Add(delay uint64, callback EventCallback) EventHandle {
	if s.nfree == 0 {
		log.Panicf("scheduler: heap full (capacity %d)", schedCapacity)
	}

	s.nfree--
	slot := s.free[s.nfree]

	n := s.size
	s.size++

	s.pool[slot] = schedEvent{
		timestamp: s.now + delay,
		seq:       s.nextSeq,
		callback:  callback,
		heapIdx:   n,
	}
	s.nextSeq++
	s.heap[n] = slot

	s.siftUp(n)
	return EventHandle(slot)
}

func (s *Scheduler) siftUp(n int) {
	for n != 0 {
		p := parentIdx(n)
		if !s.less(n, p) {
			break
		}
		s.swap(n, p)
		n = p
	}
}

func (s *Scheduler) siftDown(n int) {
	for {
		l, r := leftIdx(n), rightIdx(n)
		smallest := n
		if l < s.size && s.less(l, smallest) {
			smallest = l
		}
		if r < s.size && s.less(r, smallest) {
			smallest = r
		}
		if smallest == n {
			return
		}
		s.swap(n, smallest)
		n = smallest
	}
}

// Cancel removes a previously scheduled event by handle. It is a no-op if
// the handle no longer refers to a live event (already fired or
// cancelled).
func (s *Scheduler) Cancel(handle EventHandle) {
	slot := int(handle)
	if slot < 0 || slot >= schedCapacity {
		return
	}
	n := s.pool[slot].heapIdx
	if n < 0 {
		return
	}
	s.removeAt(n)
}

// removeAt unlinks the event at heap position n, swapping the last heap
// entry into its place and restoring heap order (sift up if the parent key
// is larger, else sift down), then returns the slab slot to the free
// stack.
func (s *Scheduler) removeAt(n int) {
	slot := s.heap[n]

	s.size--
	last := s.size
	if n != last {
		s.swap(n, last)
		p := parentIdx(n)
		if n != 0 && s.less(n, p) {
			s.siftUp(n)
		} else {
			s.siftDown(n)
		}
	}

	s.pool[slot].heapIdx = -1
	s.pool[slot].callback = nil
	s.free[s.nfree] = slot
	s.nfree++
}

// Step drains every event whose timestamp has reached "now", invoking each
// callback with how many cycles late it fired. Callbacks may freely add or
// cancel events; the popped slot is reclaimed before the callback runs.
func (s *Scheduler) Step() {
	for s.size > 0 && s.pool[s.heap[0]].timestamp <= s.now {
		ev := s.pool[s.heap[0]]
		cyclesLate := int(s.now - ev.timestamp)
		s.removeAt(0)
		ev.callback(cyclesLate)
	}
}

// Pending reports the number of live events, chiefly for tests.
func (s *Scheduler) Pending() int { return s.size }

// NextTimestamp returns the timestamp of the earliest pending event, or
// math.MaxUint64 if the heap is empty.
func (s *Scheduler) NextTimestamp() uint64 {
	if s.size == 0 {
		return ^uint64(0)
	}
	return s.pool[s.heap[0]].timestamp
}
