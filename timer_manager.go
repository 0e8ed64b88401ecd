package evnet

import (
	"container/heap"
	"math"
	"time"
)

// timerItem is one heap entry: {timer, deadline} per spec.md §4.1, plus a
// monotonically increasing sequence number so that equal deadlines expire in
// insertion order (the spec's tie-break rule) and an index slot so Cancel can
// remove an arbitrary entry in O(log n).
type timerItem struct {
	timer    *Timer
	deadline time.Time
	seq      uint64
	index    int
}

type timerHeap []*timerItem

func (h timerHeap) Len() int { return len(h) }

func (h timerHeap) Less(i, j int) bool {
	if h[i].deadline.Equal(h[j].deadline) {
		return h[i].seq < h[j].seq
	}
	return h[i].deadline.Before(h[j].deadline)
}

func (h timerHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *timerHeap) Push(x any) {
	item := x.(*timerItem)
	item.index = len(*h)
	*h = append(*h, item)
}

func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	item.index = -1
	*h = old[:n-1]
	return item
}

// TimerManager maintains the list of {timer, deadline} entries sorted by
// deadline for a single EventLoop, per spec.md §4.1.
type TimerManager struct {
	items   timerHeap
	byTimer map[*Timer]*timerItem
	seq     uint64

	// justCancelled is reset at the start of every Expire() call and records
	// each Cancel made while its batch is processed, so an in-flight
	// expiration already popped off the heap is discarded instead of firing
	// (spec.md §4.1).
	justCancelled map[*Timer]struct{}
}

// NewTimerManager constructs an empty TimerManager.
func NewTimerManager() *TimerManager {
	return &TimerManager{
		byTimer:       make(map[*Timer]*timerItem),
		justCancelled: make(map[*Timer]struct{}),
	}
}

// Start removes any prior pending entry for t and inserts a new one at
// now+interval.
func (m *TimerManager) Start(t *Timer) {
	m.removeItem(t)

	m.seq++
	item := &timerItem{
		timer:    t,
		deadline: time.Now().Add(time.Duration(t.interval) * time.Millisecond),
		seq:      m.seq,
	}
	heap.Push(&m.items, item)
	m.byTimer[t] = item

	t.manager = m
	t.running = true
}

// Cancel removes t's pending entry, if any, and records it as just-cancelled
// so an expiration already captured by an in-progress Expire() call is
// discarded rather than fired.
func (m *TimerManager) Cancel(t *Timer) {
	m.removeItem(t)
	m.justCancelled[t] = struct{}{}
	t.running = false
}

func (m *TimerManager) removeItem(t *Timer) {
	item, ok := m.byTimer[t]
	if !ok {
		return
	}
	heap.Remove(&m.items, item.index)
	delete(m.byTimer, t)
}

// NextTimeoutMS returns max(0, head.deadline-now) clamped to a 32-bit
// millisecond horizon, and ok=false if there are no pending timers.
func (m *TimerManager) NextTimeoutMS() (ms uint32, ok bool) {
	if len(m.items) == 0 {
		return 0, false
	}
	remaining := time.Until(m.items[0].deadline)
	if remaining <= 0 {
		return 0, true
	}
	millis := remaining.Milliseconds()
	if millis > math.MaxUint32 {
		millis = math.MaxUint32
	}
	return uint32(millis), true
}

// Expire pops every entry with deadline <= now and, for each not discarded by
// a same-batch Cancel, invokes its handler, re-arming it if it repeats.
func (m *TimerManager) Expire() {
	now := time.Now()
	if len(m.justCancelled) > 0 {
		m.justCancelled = make(map[*Timer]struct{})
	}

	var batch []*timerItem
	for len(m.items) > 0 && !m.items[0].deadline.After(now) {
		item := heap.Pop(&m.items).(*timerItem)
		delete(m.byTimer, item.timer)
		batch = append(batch, item)
	}
	if len(batch) == 0 {
		return
	}

	for _, item := range batch {
		t := item.timer
		if _, cancelled := m.justCancelled[t]; cancelled {
			continue
		}

		t.handler(t)

		if t.repeat {
			// The handler may have started a new timer on t itself; only
			// re-arm if it is still the same logical run (not cancelled
			// nor restarted) — re-check via byTimer and justCancelled.
			_, started := m.byTimer[t]
			_, cancelledNow := m.justCancelled[t]
			if !started && !cancelledNow {
				m.Start(t)
			}
		} else if _, started := m.byTimer[t]; !started {
			t.running = false
		}
	}
}

// CancelAll disarms every pending timer without invoking handlers, used on
// Thread/EventLoop exit.
func (m *TimerManager) CancelAll() {
	for t := range m.byTimer {
		t.running = false
	}
	m.items = nil
	m.byTimer = make(map[*Timer]*timerItem)
	m.justCancelled = make(map[*Timer]struct{})
}
