package evnet

import (
	"sync"
	"time"
)

// WaitResult is the outcome of an EventController.Wait call.
type WaitResult int

const (
	WaitSuccess WaitResult = iota
	WaitTimeout
	WaitCancel
	WaitError
)

// EventController is a thread-safe FIFO of Events with a single consumer
// (spec.md §4.2). Any goroutine may Push; only the owning Thread's goroutine
// calls Wait.
//
// It is grounded on session.go's bucketNotify/die channel idiom: a
// non-blocking "notify" send paired with a mutex-protected slice, rather than
// a raw semaphore primitive.
type EventController struct {
	mu       sync.Mutex
	queue    []Event
	notify   chan struct{}
	tearDown bool
}

// NewEventController constructs an empty EventController.
func NewEventController() *EventController {
	return &EventController{
		notify: make(chan struct{}, 1),
	}
}

// Push enqueues event for the single consumer and signals it. It returns
// false (dropping the event) only if the controller is being torn down.
func (c *EventController) Push(ev Event) bool {
	c.mu.Lock()
	if c.tearDown {
		c.mu.Unlock()
		return false
	}
	c.queue = append(c.queue, ev)
	c.mu.Unlock()

	c.signal()
	return true
}

func (c *EventController) signal() {
	select {
	case c.notify <- struct{}{}:
	default:
	}
}

// Wakeup signals the consumer without enqueueing anything, used to make an
// idle Wait return promptly (e.g. for Thread.Stop).
func (c *EventController) Wakeup() {
	c.signal()
}

// pop removes and returns the head event, if any.
func (c *EventController) pop() (Event, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.queue) == 0 {
		return Event{}, false
	}
	ev := c.queue[0]
	c.queue[0] = Event{}
	c.queue = c.queue[1:]
	return ev, true
}

// Wait returns the head event at once if one is queued. Otherwise it blocks
// on the notify channel, for at most timeoutMS when hasTimeout is true and
// without limit when it is false. On a signal it pops the head event: a
// wakeup-without-event still reports WaitSuccess with a nil Event pointer,
// per spec.md §4.2.
func (c *EventController) Wait(timeoutMS uint32, hasTimeout bool) (WaitResult, *Event) {
	// A queued event always takes priority over waiting again, since a
	// buffered notify channel can coalesce several Push signals into one
	// wakeup (spec.md §4.2's "wakeup without event" case only applies when
	// the queue is genuinely empty).
	if ev, ok := c.pop(); ok {
		return WaitSuccess, &ev
	}

	var timer *time.Timer
	var timeoutCh <-chan time.Time
	if hasTimeout {
		timer = time.NewTimer(time.Duration(timeoutMS) * time.Millisecond)
		timeoutCh = timer.C
		defer timer.Stop()
	}

	select {
	case <-c.notify:
		if ev, ok := c.pop(); ok {
			return WaitSuccess, &ev
		}
		return WaitSuccess, nil
	case <-timeoutCh:
		return WaitTimeout, nil
	}
}

// Clear destroys all queued events. Safe only during teardown.
func (c *EventController) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.queue = nil
	c.tearDown = true
}

// QueuedEventCount reports the number of events currently pending.
func (c *EventController) QueuedEventCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.queue)
}
