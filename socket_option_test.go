package evnet

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// TestSocketOptionsApplyWithoutError exercises the deferred pre-bind
// (SO_REUSEADDR/SO_RCVBUF/SO_SNDBUF) and post-create (SO_KEEPALIVE,
// SO_LINGER, TCP_NODELAY) option paths against real listeners and
// connections (spec.md §3's "options applied before create() are stored and
// replayed post-create"). The options are set on the server only; success
// here is simply that the server accepts and the client connects.
func TestSocketOptionsApplyWithoutError(t *testing.T) {
	_, serverController := newTestSocketThread(t)
	_, clientController := newTestSocketThread(t)

	var opt SocketOption
	opt.SetReuseAddress(true)
	opt.SetReceiveBuffSize(64 * 1024)
	opt.SetSendBuffSize(64 * 1024)
	opt.SetKeepAlive(true)
	opt.SetTCPNoDelay(true)
	opt.SetLinger(true, 1)

	server, err := OpenTCPServer(serverController, NewEndpoint(loopbackIP(), 0), 16, opt)
	require.NoError(t, err)
	defer server.Close()

	accepted := make(chan *TCPChannel, 1)
	server.SetAcceptHandler(func(ch *TCPChannel) { accepted <- ch })

	endpoint := endpointFromAddr(server.Addr())

	client := NewTCPClient(clientController)
	connected := make(chan *TCPChannel, 1)
	client.Connect([]Endpoint{endpoint}, 2*time.Second, func(ch *TCPChannel, err error) {
		require.NoError(t, err)
		connected <- ch
	})

	select {
	case <-accepted:
	case <-time.After(2 * time.Second):
		t.Fatal("server never accepted the connection with socket options set")
	}
	select {
	case <-connected:
	case <-time.After(2 * time.Second):
		t.Fatal("client never connected with socket options set")
	}
}

// TestUDPReceiverBroadcastOption exercises the UDP-only broadcast option
// path (applyPlatformBroadcast); SetBroadcast must not prevent an ordinary
// unicast receive from working.
func TestUDPReceiverBroadcastOption(t *testing.T) {
	_, controller := newTestSocketThread(t)

	var opt SocketOption
	opt.SetBroadcast(true)

	receiver, err := OpenUDPReceiver(controller, NewEndpoint(loopbackIP(), 0), opt)
	require.NoError(t, err)
	defer receiver.Close()

	sender, err := NewUDPSender(NewEndpoint(loopbackIP(), 0), SocketOption{})
	require.NoError(t, err)
	defer sender.Close()

	received := make(chan []byte, 1)
	receiver.SetReceiveHandler(func(r *UDPReceiver, from Endpoint, data []byte) {
		received <- append([]byte(nil), data...)
	})

	dst := receiver.LocalEndpoint()
	_, err = sender.SendTo([]byte("broadcast-option-payload"), dst)
	require.NoError(t, err)

	select {
	case got := <-received:
		require.Equal(t, "broadcast-option-payload", string(got))
	case <-time.After(2 * time.Second):
		t.Fatal("receiver never got the datagram")
	}
}
