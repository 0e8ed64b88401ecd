package evnet

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSocketThread(t *testing.T) (*Thread, *SocketController) {
	t.Helper()
	thread, controller := NewSocketThread("test", nil)
	require.True(t, thread.Start())
	t.Cleanup(func() {
		thread.Stop()
		thread.Wait()
	})
	return thread, controller
}

// TestChannelEcho is scenario S1: the client sends "hello\x00" to an echo
// server and observes exactly those bytes back before any close callback.
func TestChannelEcho(t *testing.T) {
	_, serverController := newTestSocketThread(t)
	_, clientController := newTestSocketThread(t)

	server, err := OpenTCPServer(serverController, NewEndpoint(loopbackIP(), 0), 16, SocketOption{})
	require.NoError(t, err)
	defer server.Close()

	server.SetAcceptHandler(func(ch *TCPChannel) {
		ch.SetReceiveHandler(func(ch *TCPChannel, data []byte) {
			ch.Send(data, nil)
		})
	})

	endpoint := endpointFromAddr(server.Addr())

	received := make(chan []byte, 1)
	client := NewTCPClient(clientController)
	connected := make(chan *TCPChannel, 1)

	client.Connect([]Endpoint{endpoint}, 2*time.Second, func(ch *TCPChannel, err error) {
		require.NoError(t, err)
		ch.SetReceiveHandler(func(ch *TCPChannel, data []byte) {
			buf := make([]byte, len(data))
			copy(buf, data)
			received <- buf
		})
		connected <- ch
	})

	var ch *TCPChannel
	select {
	case ch = <-connected:
	case <-time.After(2 * time.Second):
		t.Fatal("client never connected")
	}

	ch.SendString("hello\x00", nil)

	select {
	case data := <-received:
		assert.Equal(t, []byte("hello\x00"), data)
	case <-time.After(2 * time.Second):
		t.Fatal("client never received echoed bytes")
	}
}

// TestConnectTimeout is scenario S2: connecting to a loopback port where
// nothing listens (127.0.0.1:1) must report an error within two seconds.
func TestConnectTimeout(t *testing.T) {
	_, controller := newTestSocketThread(t)

	client := NewTCPClient(controller)
	blackhole := NewEndpoint(loopbackIP(), 1) // nothing listens on a low reserved port

	done := make(chan error, 1)
	start := time.Now()
	client.Connect([]Endpoint{blackhole}, 200*time.Millisecond, func(ch *TCPChannel, err error) {
		done <- err
	})

	select {
	case err := <-done:
		elapsed := time.Since(start)
		assert.Error(t, err)
		assert.Less(t, elapsed, 2*time.Second)
	case <-time.After(2 * time.Second):
		t.Fatal("connect attempt never completed")
	}
}

// TestChannelSendOrdering exercises testable property 1: bytes handed to
// Send arrive on the peer in order, and property about per-channel send
// completion ordering (spec.md §5).
func TestChannelSendOrdering(t *testing.T) {
	_, serverController := newTestSocketThread(t)
	_, clientController := newTestSocketThread(t)

	server, err := OpenTCPServer(serverController, NewEndpoint(loopbackIP(), 0), 16, SocketOption{})
	require.NoError(t, err)
	defer server.Close()

	var mu sync.Mutex
	var received []byte
	accepted := make(chan struct{})
	server.SetAcceptHandler(func(ch *TCPChannel) {
		ch.SetReceiveHandler(func(ch *TCPChannel, data []byte) {
			mu.Lock()
			received = append(received, data...)
			mu.Unlock()
		})
		close(accepted)
	})

	endpoint := endpointFromAddr(server.Addr())
	client := NewTCPClient(clientController)
	connected := make(chan *TCPChannel, 1)
	client.Connect([]Endpoint{endpoint}, 2*time.Second, func(ch *TCPChannel, err error) {
		require.NoError(t, err)
		connected <- ch
	})

	ch := <-connected

	var completionOrder []int
	var compMu sync.Mutex
	const n = 50
	for i := 0; i < n; i++ {
		i := i
		ch.Send([]byte{byte(i)}, func(err error) {
			compMu.Lock()
			completionOrder = append(completionOrder, i)
			compMu.Unlock()
		})
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		compMu.Lock()
		done := len(completionOrder) == n
		compMu.Unlock()
		if done || time.Now().After(deadline) {
			break
		}
		time.Sleep(time.Millisecond)
	}

	compMu.Lock()
	for i, v := range completionOrder {
		require.Equal(t, i, v, "send completion handlers must fire in submission order")
	}
	compMu.Unlock()

	<-accepted
	deadline = time.Now().Add(2 * time.Second)
	for {
		mu.Lock()
		got := len(received)
		mu.Unlock()
		if got == n || time.Now().After(deadline) {
			break
		}
		time.Sleep(time.Millisecond)
	}

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, received, n)
	for i := 0; i < n; i++ {
		assert.Equal(t, byte(i), received[i], "bytes must be observed by the peer in order")
	}
}

// TestGracefulCloseRace is scenario S5: the client sends 4 KiB then closes;
// the peer must observe all bytes and exactly one close callback.
func TestGracefulCloseRace(t *testing.T) {
	_, serverController := newTestSocketThread(t)
	_, clientController := newTestSocketThread(t)

	server, err := OpenTCPServer(serverController, NewEndpoint(loopbackIP(), 0), 16, SocketOption{})
	require.NoError(t, err)
	defer server.Close()

	var mu sync.Mutex
	var received int
	var closeCount int
	server.SetAcceptHandler(func(ch *TCPChannel) {
		ch.SetReceiveHandler(func(ch *TCPChannel, data []byte) {
			mu.Lock()
			received += len(data)
			mu.Unlock()
		})
		ch.SetCloseHandler(func(ch *TCPChannel, err error) {
			mu.Lock()
			closeCount++
			mu.Unlock()
		})
	})

	endpoint := endpointFromAddr(server.Addr())
	client := NewTCPClient(clientController)
	connected := make(chan *TCPChannel, 1)
	client.Connect([]Endpoint{endpoint}, 2*time.Second, func(ch *TCPChannel, err error) {
		require.NoError(t, err)
		connected <- ch
	})
	ch := <-connected

	payload := make([]byte, 4096)
	for i := range payload {
		payload[i] = byte(i)
	}
	ch.Send(payload, nil)
	ch.Close()

	deadline := time.Now().Add(2 * time.Second)
	for {
		mu.Lock()
		done := received == len(payload) && closeCount == 1
		mu.Unlock()
		if done || time.Now().After(deadline) {
			break
		}
		time.Sleep(time.Millisecond)
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, len(payload), received, "no bytes may be lost before the close callback")
	assert.Equal(t, 1, closeCount, "close callback must fire exactly once")
}

func TestChannelSendZeroLengthIsSynchronousNoOp(t *testing.T) {
	_, controller := newTestSocketThread(t)
	server, err := OpenTCPServer(controller, NewEndpoint(loopbackIP(), 0), 16, SocketOption{})
	require.NoError(t, err)
	defer server.Close()

	server.SetAcceptHandler(func(ch *TCPChannel) {})

	client := NewTCPClient(controller)
	connected := make(chan *TCPChannel, 1)
	client.Connect([]Endpoint{endpointFromAddr(server.Addr())}, 2*time.Second, func(ch *TCPChannel, err error) {
		require.NoError(t, err)
		connected <- ch
	})
	ch := <-connected

	called := make(chan error, 1)
	ch.Send(nil, func(err error) { called <- err })

	select {
	case err := <-called:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("zero-length Send must invoke its completion handler")
	}
}

// TestCancelConnectFiresNoCallback exercises spec.md §4.6's cancelTcpConnect
// contract: once cancelled, the connect handler must never fire, even though
// the dial itself may go on to succeed or fail in the background.
func TestCancelConnectFiresNoCallback(t *testing.T) {
	_, serverController := newTestSocketThread(t)
	_, clientController := newTestSocketThread(t)

	server, err := OpenTCPServer(serverController, NewEndpoint(loopbackIP(), 0), 16, SocketOption{})
	require.NoError(t, err)
	defer server.Close()
	server.SetAcceptHandler(func(ch *TCPChannel) {})

	endpoint := endpointFromAddr(server.Addr())
	client := NewTCPClient(clientController)

	fired := make(chan struct{}, 1)
	client.Connect([]Endpoint{endpoint}, 2*time.Second, func(ch *TCPChannel, err error) {
		fired <- struct{}{}
	})
	client.CancelConnect()

	select {
	case <-fired:
		t.Fatal("connect handler must not fire after CancelConnect")
	case <-time.After(300 * time.Millisecond):
	}
}

func loopbackIP() []byte { return []byte{127, 0, 0, 1} }
