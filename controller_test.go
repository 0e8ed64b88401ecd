package evnet

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSocketControllerCountsAcrossArenas(t *testing.T) {
	_, controller := newTestSocketThread(t)

	assert.Equal(t, 0, controller.SocketCount())

	server, err := OpenTCPServer(controller, NewEndpoint(loopbackIP(), 0), 16, SocketOption{})
	require.NoError(t, err)
	defer server.Close()

	assert.Equal(t, 1, controller.SocketCount())

	receiver, err := OpenUDPReceiver(controller, NewEndpoint(loopbackIP(), 0), SocketOption{})
	require.NoError(t, err)
	defer receiver.Close()

	assert.Equal(t, 2, controller.SocketCount())
}

func TestSocketControllerIsFullRespectsMaxSockets(t *testing.T) {
	_, controller := newTestSocketThread(t)
	controller.MaxSockets = 1

	assert.False(t, controller.IsFull())

	server, err := OpenTCPServer(controller, NewEndpoint(loopbackIP(), 0), 16, SocketOption{})
	require.NoError(t, err)
	defer server.Close()

	assert.True(t, controller.IsFull())
}

func TestSocketControllerZeroMaxSocketsNeverFull(t *testing.T) {
	_, controller := newTestSocketThread(t)
	assert.Equal(t, 0, controller.MaxSockets)
	assert.False(t, controller.IsFull())
}

// TestThreadStopClosesAllRegisteredSockets is the Go analogue of spec.md
// §4.6's "controller teardown closes all registered sockets": stopping the
// owning Thread must close a channel that was never explicitly closed by
// the caller.
func TestThreadStopClosesAllRegisteredSockets(t *testing.T) {
	thread, controller := NewSocketThread("teardown", nil)
	require.True(t, thread.Start())

	server, err := OpenTCPServer(controller, NewEndpoint(loopbackIP(), 0), 16, SocketOption{})
	require.NoError(t, err)

	_, clientController := newTestSocketThread(t)
	endpoint := endpointFromAddr(server.Addr())

	closed := make(chan struct{}, 1)
	server.SetAcceptHandler(func(ch *TCPChannel) {
		ch.SetCloseHandler(func(ch *TCPChannel, err error) {
			select {
			case closed <- struct{}{}:
			default:
			}
		})
	})

	client := NewTCPClient(clientController)
	connected := make(chan *TCPChannel, 1)
	client.Connect([]Endpoint{endpoint}, 2*time.Second, func(ch *TCPChannel, err error) {
		require.NoError(t, err)
		connected <- ch
	})
	<-connected

	thread.Stop()
	thread.Wait()

	select {
	case <-closed:
	case <-time.After(2 * time.Second):
		t.Fatal("accepted channel was never closed by teardown")
	}
}
