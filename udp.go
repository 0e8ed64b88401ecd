package evnet

import (
	"context"
	"net"
	"sync"
)

// UDPReceiveHandler is invoked with each datagram read from a UDPReceiver,
// along with the endpoint it arrived from.
type UDPReceiveHandler func(receiver *UDPReceiver, from Endpoint, data []byte)

type udpReceiverItem struct {
	id       ChannelID
	receiver *UDPReceiver
}

// UDPReceiver listens for inbound datagrams on a bound UDP socket, the Go
// analogue of the source's UdpReceiver / UdpReceiverItem pair
// (socket_controller.hpp), again built on a dedicated reader goroutine per
// spec.md's readiness-to-event translation design rather than a select()
// readiness loop.
type UDPReceiver struct {
	id         ChannelID
	controller *SocketController
	conn       *net.UDPConn

	receiveHandler UDPReceiveHandler

	closeOnce sync.Once
	closed    chan struct{}
}

// OpenUDPReceiver binds a UDP socket on endpoint and registers it with
// controller. The read loop starts immediately.
func OpenUDPReceiver(controller *SocketController, endpoint Endpoint, opt SocketOption) (*UDPReceiver, error) {
	lc := opt.applyListenConfig()
	pc, err := lc.ListenPacket(context.Background(), "udp", endpoint.String())
	if err != nil {
		return nil, err
	}
	conn := pc.(*net.UDPConn)
	opt.applyPostCreate(conn)

	r := &UDPReceiver{
		id:         nextChannelID(),
		controller: controller,
		conn:       conn,
		closed:     make(chan struct{}),
	}

	controller.registerUDPReceiver(&udpReceiverItem{id: r.id, receiver: r})
	go r.readLoop()
	return r, nil
}

// ID returns the receiver's registration handle.
func (r *UDPReceiver) ID() ChannelID { return r.id }

// LocalEndpoint reports the bound local address.
func (r *UDPReceiver) LocalEndpoint() Endpoint { return endpointFromAddr(r.conn.LocalAddr()) }

// SetReceiveHandler installs the handler invoked for each datagram received.
func (r *UDPReceiver) SetReceiveHandler(h UDPReceiveHandler) { r.receiveHandler = h }

func (r *UDPReceiver) readLoop() {
	buf := make([]byte, 64*1024)
	for {
		n, addr, err := r.conn.ReadFromUDP(buf)
		if err != nil {
			select {
			case <-r.closed:
				return
			default:
			}
			return
		}
		chunk := make([]byte, n)
		copy(chunk, buf[:n])
		from := endpointFromAddr(addr)
		r.postTask(func() {
			if r.receiveHandler != nil {
				r.receiveHandler(r, from, chunk)
			}
		})
	}
}

func (r *UDPReceiver) postTask(fn func()) {
	r.controller.loop.Push(NewEvent(TaskEventID, Task(fn)))
}

// Close stops the read loop and unregisters the receiver.
func (r *UDPReceiver) Close() error {
	var err error
	r.closeOnce.Do(func() {
		close(r.closed)
		err = r.conn.Close()
		r.controller.unregisterUDPReceiver(r.id)
	})
	return err
}

// UDPSender sends datagrams to arbitrary endpoints from an unbound or
// locally-bound UDP socket, the Go analogue of the source's UdpSender.
// Unlike UDPReceiver it does not register with a SocketController: sends are
// fire-and-forget from the caller's goroutine, and UDPSender has nothing to
// wait on.
type UDPSender struct {
	conn *net.UDPConn
}

// NewUDPSender opens a UDP socket bound to localEndpoint (the zero Endpoint
// picks an ephemeral port on all interfaces).
func NewUDPSender(localEndpoint Endpoint, opt SocketOption) (*UDPSender, error) {
	addr := ":0"
	if localEndpoint.IP != nil {
		addr = localEndpoint.String()
	}
	lc := opt.applyListenConfig()
	pc, err := lc.ListenPacket(context.Background(), "udp", addr)
	if err != nil {
		return nil, err
	}
	conn := pc.(*net.UDPConn)
	opt.applyPostCreate(conn)
	return &UDPSender{conn: conn}, nil
}

// SendTo writes data to the given endpoint.
func (s *UDPSender) SendTo(data []byte, to Endpoint) (int, error) {
	return s.conn.WriteToUDP(data, to.udpAddr())
}

// LocalEndpoint reports the bound local address.
func (s *UDPSender) LocalEndpoint() Endpoint { return endpointFromAddr(s.conn.LocalAddr()) }

// Close closes the underlying socket.
func (s *UDPSender) Close() error { return s.conn.Close() }
