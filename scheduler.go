package fdloop

import "container/heap"

// timerEntry is a single scheduled deadline. live is cleared by cancel and
// left in the heap as a tombstone until amortized cleanup discards it.
type timerEntry struct {
	id       uint64
	deadline Deadline
	cb       func()
	live     bool
	index    int // heap.Interface bookkeeping
}

// timerHeap is a binary min-heap ordered by deadline, implementing
// container/heap.Interface directly over *timerEntry slices.
type timerHeap []*timerEntry

func (h timerHeap) Len() int { return len(h) }
func (h timerHeap) Less(i, j int) bool {
	return h[i].deadline < h[j].deadline
}
func (h timerHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}
func (h *timerHeap) Push(x any) {
	e := x.(*timerEntry)
	e.index = len(*h)
	*h = append(*h, e)
}
func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*h = old[:n-1]
	return e
}

// tombstoneThreshold is the cancellation count at which the scheduler
// compacts tombstoned entries out of the heap, per §4.2 of the dispatch
// engine's timer queue design.
const tombstoneThreshold = 32

// scheduler is a min-heap of absolute monotonic deadlines with cancellation
// by id. Ids are dense, monotonically increasing, and never reused for the
// lifetime of the scheduler.
type scheduler struct {
	clock      *clock
	heap       timerHeap
	byID       map[uint64]*timerEntry
	nextID     uint64
	tombstones int
}

func newScheduler(c *clock) *scheduler {
	return &scheduler{
		clock:  c,
		byID:   make(map[uint64]*timerEntry),
		nextID: 1,
	}
}

// atNs enqueues cb to run at the given absolute deadline, returning a
// strictly positive, process-lifetime-unique id.
func (s *scheduler) atNs(deadline Deadline, cb func()) uint64 {
	id := s.nextID
	s.nextID++
	e := &timerEntry{id: id, deadline: deadline, cb: cb, live: true}
	heap.Push(&s.heap, e)
	s.byID[id] = e
	return id
}

// afterNs enqueues cb to run delta nanoseconds from now; negative delta is
// clamped to zero so the timer fires on the next iteration.
func (s *scheduler) afterNs(delta int64, cb func()) uint64 {
	return s.atNs(s.clock.deadlineInNs(delta), cb)
}

// cancel marks id as a tombstone, returning whether it was live. Compaction
// is amortized: it only runs once tombstones cross tombstoneThreshold.
func (s *scheduler) cancel(id uint64) bool {
	e, ok := s.byID[id]
	if !ok || !e.live {
		return false
	}
	e.live = false
	delete(s.byID, id)
	s.tombstones++
	if s.tombstones > tombstoneThreshold {
		s.compact()
	}
	return true
}

// compact rebuilds the heap over live entries only, discarding tombstones.
func (s *scheduler) compact() {
	live := make(timerHeap, 0, len(s.heap)-s.tombstones)
	for _, e := range s.heap {
		if e.live {
			live = append(live, e)
		}
	}
	s.heap = live
	heap.Init(&s.heap)
	s.tombstones = 0
}

// nextDeadlineNs peeks the root deadline after discarding tombstoned roots.
// Returns false if no live entries remain.
func (s *scheduler) nextDeadlineNs() (Deadline, bool) {
	for s.heap.Len() > 0 {
		root := s.heap[0]
		if root.live {
			return root.deadline, true
		}
		heap.Pop(&s.heap)
		s.tombstones--
	}
	return 0, false
}

// popExpired pops every entry whose deadline is <= now, in non-decreasing
// deadline order, and invokes its callback. A callback that schedules a new
// entry via after/at inserts it into the heap normally: if its deadline is
// already <= now, this same call pops and runs it too, so new entries go to
// the tail of the current batch.
func (s *scheduler) popExpired(now Deadline) {
	for s.heap.Len() > 0 {
		root := s.heap[0]
		if !root.live {
			heap.Pop(&s.heap)
			s.tombstones--
			continue
		}
		if root.deadline > now {
			return
		}
		heap.Pop(&s.heap)
		delete(s.byID, root.id)
		root.cb()
	}
}
