package evnet

import (
	"sync"
	"sync/atomic"
)

// ChildFinishedHandler is invoked on the parent Thread when a child Thread
// exits (spec.md §4.5).
type ChildFinishedHandler func(child *Thread)

// InitHandler runs once on the new goroutine before the loop starts; a false
// return aborts startup.
type InitHandler func() bool

// ExitHandler runs once after the loop exits, before the goroutine ends.
type ExitHandler func()

// Thread owns one EventLoop and the goroutine driving it. Cross-thread
// communication happens only through Post; every other method is meant to be
// called from the owning goroutine (spec.md §5).
type Thread struct {
	name string
	loop *EventLoop

	parent  *Thread
	childMu sync.Mutex
	childs  []*Thread

	childFinishedHandler ChildFinishedHandler
	onInit               InitHandler
	onExit               ExitHandler

	started atomic.Bool
	done    chan struct{}
}

// NewThread constructs a Thread with a plain EventController. Use
// NewSocketThread to build one whose loop can register sockets.
func NewThread(name string, parent *Thread) *Thread {
	t := &Thread{
		name:   name,
		loop:   NewEventLoop(),
		parent: parent,
		done:   make(chan struct{}),
	}
	t.installSystemHandlers()
	if parent != nil {
		parent.addChild(t)
	}
	return t
}

// NewSocketThread constructs a Thread whose EventLoop is driven by a
// SocketController, enabling TCP/UDP registration (spec.md §4.6).
func NewSocketThread(name string, parent *Thread) (*Thread, *SocketController) {
	t := NewThread(name, parent)
	sc := NewSocketController(t.loop)
	t.loop.SetController(sc)
	return t, sc
}

func (t *Thread) installSystemHandlers() {
	t.loop.SetHandler(ChildFinishedEventID, t.onChildFinished)
	t.loop.SetHandler(TaskEventID, t.onTaskEvent)
}

func (t *Thread) onChildFinished(ev *Event) {
	if t.childFinishedHandler == nil {
		return
	}
	if params, ok := ev.Params.(ChildFinishedParams); ok {
		t.childFinishedHandler(params.Child)
	}
}

func (t *Thread) onTaskEvent(ev *Event) {
	if task, ok := ev.Params.(Task); ok {
		task()
	}
}

// Loop returns the Thread's EventLoop, for registering additional handlers
// before Start.
func (t *Thread) Loop() *EventLoop { return t.loop }

// Name reports the Thread's human-readable name.
func (t *Thread) Name() string { return t.name }

// Parent returns the Thread that created this one, or nil for a root thread.
func (t *Thread) Parent() *Thread { return t.parent }

// SetOnInit installs a hook invoked once on the new goroutine before the
// loop runs; returning false aborts startup and Start reports failure.
func (t *Thread) SetOnInit(h InitHandler) { t.onInit = h }

// SetOnExit installs a hook invoked once after the loop exits.
func (t *Thread) SetOnExit(h ExitHandler) { t.onExit = h }

// SetChildFinishedHandler installs the handler invoked when a child of this
// Thread exits.
func (t *Thread) SetChildFinishedHandler(h ChildFinishedHandler) {
	t.childFinishedHandler = h
}

// SetEventHandler registers handler for events carrying id on this Thread's
// loop.
func (t *Thread) SetEventHandler(id EventID, handler EventHandler) {
	t.loop.SetHandler(id, handler)
}

// Start launches the goroutine: onInit, then the event loop, then onExit. It
// returns false if onInit reports failure (the loop never runs in that
// case).
func (t *Thread) Start() bool {
	if !t.started.CompareAndSwap(false, true) {
		return false
	}

	initOK := make(chan bool, 1)
	go func() {
		defer close(t.done)

		if t.onInit != nil {
			if !t.onInit() {
				initOK <- false
				return
			}
		}
		initOK <- true

		t.loop.Run()

		if t.onExit != nil {
			t.onExit()
		}

		if t.parent != nil {
			t.parent.Post(NewEvent(ChildFinishedEventID, ChildFinishedParams{Child: t}))
		}
	}()

	return <-initOK
}

// Wait blocks until the Thread's goroutine has exited.
func (t *Thread) Wait() {
	<-t.done
}

// Stop requests the event loop to exit at its next iteration.
func (t *Thread) Stop() {
	t.loop.Stop()
}

// Post enqueues ev on this Thread's controller. Safe from any goroutine.
func (t *Thread) Post(ev Event) bool {
	return t.loop.Push(ev)
}

// PostID enqueues a parameterless Event carrying id.
func (t *Thread) PostID(id EventID) bool {
	return t.Post(NewEvent(id, nil))
}

// PostTask wraps task in a TaskEventID event and enqueues it.
func (t *Thread) PostTask(task Task) bool {
	return t.Post(NewEvent(TaskEventID, task))
}

// Childs returns the Threads created with this one as parent.
func (t *Thread) Childs() []*Thread {
	t.childMu.Lock()
	defer t.childMu.Unlock()
	out := make([]*Thread, len(t.childs))
	copy(out, t.childs)
	return out
}

func (t *Thread) addChild(child *Thread) {
	t.childMu.Lock()
	t.childs = append(t.childs, child)
	t.childMu.Unlock()
}

// QueuedEventCount reports the number of events pending on this Thread's
// controller.
func (t *Thread) QueuedEventCount() int {
	return t.loop.Controller().QueuedEventCount()
}
