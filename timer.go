package evnet

// TimerHandler is invoked synchronously on the owning EventLoop's goroutine
// when a Timer expires. It may itself start or cancel timers (spec.md §4.1).
type TimerHandler func(t *Timer)

// Timer is a one-shot or repeating timer keyed to a monotonic clock. A Timer
// is only valid on the Thread that started it (spec.md §3) and is owned by
// user code; the TimerManager holds only a reference while it is running.
type Timer struct {
	interval uint32 // milliseconds
	repeat   bool
	handler  TimerHandler
	running  bool

	manager *TimerManager
	gen     uint64 // not read or written; cancel tracking uses TimerManager.justCancelled
}

// IntervalMS reports the configured repeat/delay interval in milliseconds.
func (t *Timer) IntervalMS() uint32 { return t.interval }

// Repeat reports whether the timer re-arms itself after firing.
func (t *Timer) Repeat() bool { return t.repeat }

// IsRunning reports whether the timer is currently armed.
func (t *Timer) IsRunning() bool { return t.running }

// Start arms the timer on loop, replacing any prior pending entry for it
// (TimerManager.Start removes a previous entry before inserting the new one).
func (t *Timer) Start(loop *EventLoop, msec uint32, repeat bool, handler TimerHandler) {
	t.interval = msec
	t.repeat = repeat
	t.handler = handler
	loop.startTimer(t)
}

// Cancel disarms the timer. A TimerHandler for this Timer never runs after
// Cancel returns on the owning thread (spec.md §3 invariant).
func (t *Timer) Cancel() {
	if t.manager != nil {
		t.manager.Cancel(t)
	}
}
