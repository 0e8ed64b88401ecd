package evnet

import "sync/atomic"

// LoopStatus mirrors the state machine of spec.md §4.4:
// Init → Running ↔ Waiting → Exit.
type LoopStatus int32

const (
	LoopInit LoopStatus = iota
	LoopRunning
	LoopWaiting
	LoopExit
)

// Controller is the abstract event source an EventLoop waits on. A plain
// *EventController implements it directly; *SocketController embeds one and
// shadows Wait, per spec.md §4.2 ("the controller is an abstract base: the
// socket-aware subclass overrides wait"), realized in Go as embedding plus
// method shadowing rather than virtual dispatch. Its Wait only delegates to
// the embedded EventController, because socket readiness already arrives as
// events pushed by the per-socket goroutines.
type Controller interface {
	Push(ev Event) bool
	Wait(timeoutMS uint32, hasTimeout bool) (WaitResult, *Event)
	Wakeup()
	Clear()
	QueuedEventCount() int
}

// EventLoop merges a TimerManager and a Controller into a single serialized
// dispatch stream, per spec.md §4.4.
type EventLoop struct {
	controller   Controller
	timerManager *TimerManager
	handlers     map[EventID]EventHandler
	status       atomic.Int32
}

// NewEventLoop constructs an EventLoop with the default EventController. Call
// SetController to install a socket-aware one (e.g. *SocketController)
// before Run.
func NewEventLoop() *EventLoop {
	l := &EventLoop{
		controller:   NewEventController(),
		timerManager: NewTimerManager(),
		handlers:     make(map[EventID]EventHandler),
	}
	l.status.Store(int32(LoopInit))
	return l
}

// Controller returns the Controller driving this loop's Wait calls.
func (l *EventLoop) Controller() Controller { return l.controller }

// SetController installs controller as the Controller this loop waits on.
// Must be called before Run.
func (l *EventLoop) SetController(controller Controller) {
	l.controller = controller
}

// Status reports the current loop state.
func (l *EventLoop) Status() LoopStatus {
	return LoopStatus(l.status.Load())
}

// SetHandler registers handler for events carrying id, replacing any
// previous handler for that id.
func (l *EventLoop) SetHandler(id EventID, handler EventHandler) {
	l.handlers[id] = handler
}

// RemoveHandler unregisters any handler for id.
func (l *EventLoop) RemoveHandler(id EventID) {
	delete(l.handlers, id)
}

// Push enqueues event on this loop's controller.
func (l *EventLoop) Push(ev Event) bool {
	return l.controller.Push(ev)
}

func (l *EventLoop) startTimer(t *Timer) {
	l.timerManager.Start(t)
}

func (l *EventLoop) cancelTimer(t *Timer) {
	l.timerManager.Cancel(t)
}

// Run drives the loop until a StopEventID event is dispatched. It returns
// when the loop has transitioned to LoopExit.
func (l *EventLoop) Run() {
	l.status.Store(int32(LoopRunning))

	for {
		ms, hasTimeout := l.timerManager.NextTimeoutMS()

		l.status.Store(int32(LoopWaiting))
		result, ev := l.controller.Wait(ms, hasTimeout)
		l.status.Store(int32(LoopRunning))

		l.timerManager.Expire()

		if result == WaitSuccess && ev != nil {
			if ev.ID == StopEventID {
				l.status.Store(int32(LoopExit))
				l.teardownController()
				l.controller.Clear()
				l.timerManager.CancelAll()
				return
			}
			l.dispatch(ev)
		}
	}
}

// socketControllerTeardown is implemented by *SocketController to close
// every socket still registered with it once the owning loop exits, the Go
// analogue of the source's SocketController::onExit() (original_source's
// socket_controller.hpp's onExit()/closeAllItems()). A plain
// *EventController has no sockets to close and doesn't implement it.
type socketControllerTeardown interface {
	closeAll()
}

// teardownController closes every socket still registered with this loop's
// Controller, if it is socket-aware, guaranteeing spec.md §4.6's "controller
// teardown closes all registered sockets" regardless of whether the owning
// Thread installed its own onExit hook.
func (l *EventLoop) teardownController() {
	if td, ok := l.controller.(socketControllerTeardown); ok {
		td.closeAll()
	}
}

func (l *EventLoop) dispatch(ev *Event) {
	if handler, ok := l.handlers[ev.ID]; ok {
		handler(ev)
	}
	// Unregistered ids are silently dropped per spec.md §4.4 step 4.
}

// Stop posts a StopEventID event and wakes the controller so an idle Waiting
// loop terminates promptly.
func (l *EventLoop) Stop() {
	l.controller.Push(NewEvent(StopEventID, nil))
	l.controller.Wakeup()
}
