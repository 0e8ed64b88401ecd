package evnet

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestThreadStartPostStop(t *testing.T) {
	thread := NewThread("worker", nil)

	var mu sync.Mutex
	var got []int
	thread.SetEventHandler(EventID(1), func(ev *Event) {
		mu.Lock()
		got = append(got, ev.Params.(int))
		mu.Unlock()
	})

	require.True(t, thread.Start())

	for i := 0; i < 5; i++ {
		thread.Post(NewEvent(EventID(1), i))
	}

	deadline := time.Now().Add(time.Second)
	for {
		mu.Lock()
		n := len(got)
		mu.Unlock()
		if n == 5 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for events")
		}
		time.Sleep(time.Millisecond)
	}

	mu.Lock()
	assert.Equal(t, []int{0, 1, 2, 3, 4}, got)
	mu.Unlock()

	thread.Stop()
	thread.Wait()
}

func TestThreadOnInitFailureAbortsStart(t *testing.T) {
	thread := NewThread("bad", nil)
	thread.SetOnInit(func() bool { return false })

	ok := thread.Start()
	assert.False(t, ok)
}

func TestThreadPostTask(t *testing.T) {
	thread := NewThread("tasker", nil)
	require.True(t, thread.Start())
	defer func() {
		thread.Stop()
		thread.Wait()
	}()

	done := make(chan struct{})
	thread.PostTask(func() { close(done) })

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("task never ran")
	}
}

func TestThreadChildFinishedNotifiesParent(t *testing.T) {
	parent := NewThread("parent", nil)

	finished := make(chan *Thread, 1)
	parent.SetChildFinishedHandler(func(child *Thread) {
		finished <- child
	})

	require.True(t, parent.Start())
	defer func() {
		parent.Stop()
		parent.Wait()
	}()

	child := NewThread("child", parent)
	require.True(t, child.Start())
	child.Stop()
	child.Wait()

	select {
	case got := <-finished:
		assert.Same(t, child, got)
	case <-time.After(time.Second):
		t.Fatal("parent never received ChildFinishedEventID")
	}
}

func TestApplicationCurrentApplication(t *testing.T) {
	app := NewApplication("app")
	require.True(t, app.Start())
	defer func() {
		app.Stop()
		app.Wait()
	}()

	deadline := time.Now().Add(time.Second)
	for CurrentApplication() != app {
		if time.Now().After(deadline) {
			t.Fatal("CurrentApplication never reflected the running Application")
		}
		time.Sleep(time.Millisecond)
	}
}
