package evnet

import (
	"context"
	"crypto/tls"
	"errors"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sagernet/sing/common/bufio"
)

// AcceptHandler is invoked on the owning Thread's loop when a TCPServer
// accepts a new connection (spec.md §4.7).
type AcceptHandler func(channel *TCPChannel)

// ReceiveHandler is invoked with the bytes read from a TCPChannel. The slice
// is only valid for the duration of the call.
type ReceiveHandler func(channel *TCPChannel, data []byte)

// CloseHandler is invoked once when a TCPChannel's underlying connection is
// closed, whether by local request, peer EOF, or error. err is nil for a
// locally-requested graceful close.
type CloseHandler func(channel *TCPChannel, err error)

// ConnectHandler is invoked when a TCPClient's connect attempt finishes,
// successfully or not.
type ConnectHandler func(channel *TCPChannel, err error)

// SendCompleteHandler is invoked after a queued Send has been written (or
// failed), in submission order, per spec.md §4.7's ordered-completion
// guarantee.
type SendCompleteHandler func(err error)

type tcpServerItem struct {
	id     ChannelID
	server *TCPServer
}

// TCPServer listens for inbound TCP connections and hands each accepted
// connection to AcceptHandler as a *TCPChannel already registered with the
// same SocketController, the Go analogue of the source's TcpServer /
// TcpServerItem pair (socket_controller.hpp) realized with a dedicated
// Accept-loop goroutine per spec.md's "reader goroutine translates a
// blocking call's return into a posted event" design.
type TCPServer struct {
	id         ChannelID
	controller *SocketController
	listener   net.Listener
	endpoint   Endpoint

	acceptHandler AcceptHandler
	closeHandler  func()

	// rawAcceptHandler, when set, receives each accepted net.Conn directly
	// instead of a TCPChannel wrapped by this server's own controller,
	// letting a caller (e.g. http.ServerApp) hand the connection off to a
	// different worker's SocketController via AdoptTCPChannel. Mutually
	// exclusive with acceptHandler/tlsConfig: when set, those are ignored.
	rawAcceptHandler func(conn net.Conn)

	// tlsConfig, when non-nil, makes the server perform a TLS handshake on
	// each accepted connection before it is wrapped in a TCPChannel, so the
	// channel's reader/writer goroutines never see raw handshake bytes.
	tlsConfig *tls.Config

	// opt carries the post-create options (SO_KEEPALIVE, SO_LINGER,
	// TCP_NODELAY, buffer sizes) replayed against every accepted connection,
	// the other half of spec.md §3's deferred-option contract (the pre-bind
	// half is applied once via applyListenConfig in OpenTCPServer).
	opt SocketOption

	// logger is the spec.md §6 collaborator sink for non-critical failures
	// (accept errors other than local close, TLS handshake failures) that
	// the caller has no handler slot to observe otherwise.
	logger Logger

	closeOnce sync.Once
	closed    chan struct{}
}

// OpenTCPServer binds and listens on endpoint, registering the server with
// controller. The accept loop starts immediately; handler fires for every
// accepted connection once SetAcceptHandler has been called (connections
// accepted before a handler is installed are held in the TCPChannel's
// registered state but never dispatched, matching spec.md §4.7's "server
// must install its handler before Open returns control to the caller").
func OpenTCPServer(controller *SocketController, endpoint Endpoint, backlog int, opt SocketOption) (*TCPServer, error) {
	lc := opt.applyListenConfig()
	ln, err := lc.Listen(context.Background(), "tcp", endpoint.String())
	if err != nil {
		return nil, err
	}

	s := &TCPServer{
		id:         nextChannelID(),
		controller: controller,
		listener:   ln,
		endpoint:   endpoint,
		opt:        opt,
		closed:     make(chan struct{}),
	}

	controller.registerTCPServer(&tcpServerItem{id: s.id, server: s})
	go s.acceptLoop()
	return s, nil
}

// ID returns the server's registration handle.
func (s *TCPServer) ID() ChannelID { return s.id }

// Addr reports the bound local address.
func (s *TCPServer) Addr() net.Addr { return s.listener.Addr() }

// SetAcceptHandler installs the handler invoked for each accepted
// connection. Safe to call only from the owning loop's goroutine.
func (s *TCPServer) SetAcceptHandler(h AcceptHandler) { s.acceptHandler = h }

// SetCloseHandler installs the handler invoked on the owning loop when the
// accept loop stops because Accept failed. A local Close does not invoke it.
func (s *TCPServer) SetCloseHandler(h func()) { s.closeHandler = h }

// SetTLSConfig makes the server perform a TLS handshake on every accepted
// connection before handing it to AcceptHandler, per spec.md §4.9. A
// connection that fails its handshake is dropped silently, never reaching
// AcceptHandler.
func (s *TCPServer) SetTLSConfig(cfg *tls.Config) { s.tlsConfig = cfg }

// SetRawAcceptHandler installs a handoff callback invoked from the accept
// goroutine (not the owning loop) with each accepted net.Conn, bypassing
// this server's own controller entirely. Used by cross-thread worker pools;
// see AdoptTCPChannel.
func (s *TCPServer) SetRawAcceptHandler(h func(conn net.Conn)) { s.rawAcceptHandler = h }

// SetLogger installs the sink for non-critical failures this server has no
// other way to surface (TLS handshake failures on accepted connections,
// accept-loop errors other than a local Close). Defaults to slog.Default()
// via loggerOrDefault if never called.
func (s *TCPServer) SetLogger(l Logger) { s.logger = l }

func (s *TCPServer) acceptLoop() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.closed:
				return
			default:
			}
			loggerOrDefault(s.logger).Warn("evnet: accept failed", "endpoint", s.endpoint, "error", err)
			s.postTask(func() {
				if s.closeHandler != nil {
					s.closeHandler()
				}
			})
			return
		}

		s.opt.applyPostCreate(conn)

		if s.rawAcceptHandler != nil {
			s.rawAcceptHandler(conn)
			continue
		}

		if s.tlsConfig != nil {
			go s.handshakeAndAccept(conn)
			continue
		}

		channel := newTCPChannel(s.controller, conn)
		s.postTask(func() {
			s.controller.registerTCPChannel(&tcpChannelItem{id: channel.id, channel: channel})
			if s.acceptHandler != nil {
				s.acceptHandler(channel)
			}
		})
	}
}

func (s *TCPServer) handshakeAndAccept(raw net.Conn) {
	tlsConn := tls.Server(raw, s.tlsConfig)
	if err := tlsConn.HandshakeContext(context.Background()); err != nil {
		loggerOrDefault(s.logger).Warn("evnet: TLS handshake failed", "remote", raw.RemoteAddr(), "error", err)
		_ = raw.Close()
		return
	}

	channel := newTCPChannel(s.controller, tlsConn)
	s.postTask(func() {
		s.controller.registerTCPChannel(&tcpChannelItem{id: channel.id, channel: channel})
		if s.acceptHandler != nil {
			s.acceptHandler(channel)
		}
	})
}

func (s *TCPServer) postTask(fn func()) {
	s.controller.loop.Push(NewEvent(TaskEventID, Task(fn)))
}

// Close stops accepting new connections and unregisters the server. Already
// accepted channels are unaffected.
func (s *TCPServer) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.closed)
		err = s.listener.Close()
		s.controller.unregisterTCPServer(s.id)
	})
	return err
}

type sendRequest struct {
	data []byte
	done SendCompleteHandler
}

type tcpChannelItem struct {
	id      ChannelID
	channel *TCPChannel
}

// TCPChannel is an established TCP connection: the Go analogue of
// TcpChannel / TcpChannelItem (socket_controller.hpp), rebuilt around one
// reader goroutine and one writer goroutine per channel instead of a
// select()-driven readiness loop, per spec.md §4.7 and the reader-goroutine
// design documented on SocketController.
type TCPChannel struct {
	id         ChannelID
	controller *SocketController
	conn       net.Conn

	receiveHandler ReceiveHandler
	closeHandler   CloseHandler

	sendMu      sync.Mutex
	sendQueue   []sendRequest
	sendNotify  chan struct{}
	writerDone  chan struct{}

	closeOnce sync.Once
	closed    chan struct{}

	closeTimer    *Timer
	closeTimeout  time.Duration
}

// AdoptTCPChannel wraps an already-established net.Conn as a TCPChannel
// registered with controller, without involving TCPServer or TCPClient.
// This is the hook a cross-thread accept handoff uses: the accept goroutine
// calls AdoptTCPChannel with the SocketController of the worker Thread chosen
// to own the connection, so the channel's reader/writer goroutines post back
// to that worker's loop, and then posts the wrapped channel to the worker
// (http.ServerApp uses a TCPAcceptEventID event) (spec.md §4.7, "cross-thread
// case posts a TcpAcceptEvent").
func AdoptTCPChannel(controller *SocketController, conn net.Conn) *TCPChannel {
	channel := newTCPChannel(controller, conn)
	controller.registerTCPChannel(&tcpChannelItem{id: channel.id, channel: channel})
	return channel
}

func newTCPChannel(controller *SocketController, conn net.Conn) *TCPChannel {
	c := &TCPChannel{
		id:         nextChannelID(),
		controller: controller,
		conn:       conn,
		sendNotify: make(chan struct{}, 1),
		writerDone: make(chan struct{}),
		closed:     make(chan struct{}),
	}
	go c.readLoop()
	go c.writeLoop()
	return c
}

// ID returns the channel's registration handle.
func (c *TCPChannel) ID() ChannelID { return c.id }

// LocalEndpoint reports the local address of the underlying connection.
func (c *TCPChannel) LocalEndpoint() Endpoint { return endpointFromAddr(c.conn.LocalAddr()) }

// RemoteEndpoint reports the peer address of the underlying connection.
func (c *TCPChannel) RemoteEndpoint() Endpoint { return endpointFromAddr(c.conn.RemoteAddr()) }

// SetReceiveHandler installs the handler invoked with each chunk read from
// the connection.
func (c *TCPChannel) SetReceiveHandler(h ReceiveHandler) { c.receiveHandler = h }

// SetCloseHandler installs the handler invoked once the channel closes.
func (c *TCPChannel) SetCloseHandler(h CloseHandler) { c.closeHandler = h }

// SetCloseTimeout overrides the graceful-close timer duration Close() arms
// before forcing the connection closed (spec.md §4.6's "default 15 s").
func (c *TCPChannel) SetCloseTimeout(d time.Duration) { c.closeTimeout = d }

func (c *TCPChannel) readLoop() {
	buf := make([]byte, 64*1024)
	for {
		n, err := c.conn.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			c.postTask(func() {
				if c.receiveHandler != nil {
					c.receiveHandler(c, chunk)
				}
			})
		}
		if err != nil {
			c.postTask(func() { c.finishClose(err) })
			return
		}
	}
}

func (c *TCPChannel) writeLoop() {
	defer close(c.writerDone)

	bw, vectorised := bufio.CreateVectorisedWriter(c.conn)

	for {
		reqs := c.drainSendQueue()
		if reqs == nil {
			select {
			case <-c.sendNotify:
				continue
			case <-c.closed:
				// Close may have raced a final Send: flush what is queued.
				if reqs = c.drainSendQueue(); reqs == nil {
					return
				}
			}
		}

		if vectorised && len(reqs) > 1 {
			vec := make([][]byte, len(reqs))
			for i, r := range reqs {
				vec[i] = r.data
			}
			_, err := bufio.WriteVectorised(bw, vec)
			for _, r := range reqs {
				c.completeSend(r, err)
			}
			if err != nil {
				c.postTask(func() { c.finishClose(err) })
				return
			}
			continue
		}

		for _, r := range reqs {
			_, err := c.conn.Write(r.data)
			c.completeSend(r, err)
			if err != nil {
				c.postTask(func() { c.finishClose(err) })
				return
			}
		}
	}
}

func (c *TCPChannel) completeSend(r sendRequest, err error) {
	if r.done == nil {
		return
	}
	c.postTask(func() { r.done(err) })
}

func (c *TCPChannel) drainSendQueue() []sendRequest {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if len(c.sendQueue) == 0 {
		return nil
	}
	reqs := c.sendQueue
	c.sendQueue = nil
	return reqs
}

func (c *TCPChannel) notifySend() {
	select {
	case c.sendNotify <- struct{}{}:
	default:
	}
}

func (c *TCPChannel) postTask(fn func()) {
	c.controller.loop.Push(NewEvent(TaskEventID, Task(fn)))
}

// Send enqueues data for writing and returns immediately. done, if non-nil,
// fires on the owning loop after the write completes or fails, in
// submission order (spec.md §4.7). A zero-length data is a synchronous
// no-op success, per the queued-send Open Question resolved in DESIGN.md.
// Send returns ErrClosed synchronously, without enqueuing anything or
// invoking done, once the channel has started closing — there is no writer
// goroutine left to drain a queue at that point (spec.md §4.7, "returns 0 on
// success ..., negative on closed/unknown state; never blocks").
func (c *TCPChannel) Send(data []byte, done SendCompleteHandler) error {
	select {
	case <-c.closed:
		return ErrClosed
	default:
	}

	if len(data) == 0 {
		if done != nil {
			done(nil)
		}
		return nil
	}

	buf := make([]byte, len(data))
	copy(buf, data)

	c.sendMu.Lock()
	select {
	case <-c.closed:
		c.sendMu.Unlock()
		return ErrClosed
	default:
	}
	c.sendQueue = append(c.sendQueue, sendRequest{data: buf, done: done})
	c.sendMu.Unlock()

	c.notifySend()
	return nil
}

// SendString is a convenience wrapper around Send for UTF-8 payloads.
func (c *TCPChannel) SendString(s string, done SendCompleteHandler) error {
	return c.Send([]byte(s), done)
}

// CancelSend clears any send entries not yet handed to the writer goroutine,
// without invoking their completion handlers (spec.md §4.7). A send already
// drained into the connection, or actively being written, is unaffected.
func (c *TCPChannel) CancelSend() {
	c.sendMu.Lock()
	c.sendQueue = nil
	c.sendMu.Unlock()
}

// Close starts a graceful shutdown: pending sends are allowed to flush, the
// connection is then closed, and CloseHandler fires with a nil error. A
// close timer (default DefaultCloseTimeout, see SetCloseTimeout) guarantees
// the channel still closes and fires CloseHandler even if the queued sends
// never finish flushing (for example, a peer that stops reading), per
// spec.md §4.6. Use CloseNow to close immediately without
// waiting for queued sends.
func (c *TCPChannel) Close() error {
	c.closeOnce.Do(func() {
		close(c.closed)
		c.notifySend()
		c.armCloseTimer()
		go func() {
			<-c.writerDone
			_ = c.conn.Close()
		}()
	})
	return nil
}

// armCloseTimer starts the graceful-close liveness timer on the owning
// loop; Close (like every TCPChannel method other than Send/construction)
// is only ever called from the owning goroutine, so starting a Timer here
// is safe per spec.md §3 ("a timer is only valid on the thread that started
// it").
func (c *TCPChannel) armCloseTimer() {
	timeout := c.closeTimeout
	if timeout <= 0 {
		timeout = DefaultCloseTimeout
	}
	c.closeTimer = &Timer{}
	c.closeTimer.Start(c.controller.loop, uint32(timeout.Milliseconds()), false, func(t *Timer) {
		_ = c.conn.Close()
	})
}

// CloseNow closes the underlying connection immediately, abandoning any
// queued sends.
func (c *TCPChannel) CloseNow() error {
	c.closeOnce.Do(func() {
		close(c.closed)
	})
	return c.conn.Close()
}

func (c *TCPChannel) finishClose(err error) {
	if c.closeTimer != nil {
		c.closeTimer.Cancel()
	}
	c.controller.unregisterTCPChannel(c.id)
	// EOF from the peer and the read error caused by a local Close/CloseNow
	// are both reported as a graceful close.
	if err == io.EOF || errors.Is(err, net.ErrClosed) {
		err = nil
	}
	if c.closeHandler != nil {
		c.closeHandler(c, err)
	}
}

type tcpClientItem struct {
	id          ChannelID
	client      *TCPClient
	cancelTimer *Timer
	cancel      context.CancelFunc
	cancelled   atomic.Bool
}

// TCPClient performs outbound TCP connection attempts, trying each endpoint
// in order until one succeeds or the list and timeout are exhausted, the Go
// analogue of TcpClient / TcpClientItem's endPointList fallback
// (socket_controller.hpp, tryTcpConnect).
type TCPClient struct {
	id         ChannelID
	controller *SocketController
	opt        SocketOption
}

// NewTCPClient constructs a TCPClient registered with controller.
func NewTCPClient(controller *SocketController) *TCPClient {
	return &TCPClient{id: nextChannelID(), controller: controller}
}

// ID returns the client's registration handle.
func (c *TCPClient) ID() ChannelID { return c.id }

// SetSocketOption installs the post-create options (SO_KEEPALIVE,
// SO_LINGER, TCP_NODELAY, buffer sizes) replayed against the dialed
// connection as soon as Connect or DialTLS succeeds, the client-side half of
// spec.md §3's deferred-option contract.
func (c *TCPClient) SetSocketOption(opt SocketOption) { c.opt = opt }

// Connect dials endpoints in order, trying the next one as soon as a prior
// attempt fails, until one attempt succeeds or every candidate has been
// tried. Each candidate gets its own fresh timeout budget rather than a
// single deadline shared across the whole list, per spec.md §4.6 ("arm a
// cancel timer at timeout_ms for this attempt" — one timer per endpoint).
// handler fires exactly once on the owning loop.
func (c *TCPClient) Connect(endpoints []Endpoint, timeout time.Duration, handler ConnectHandler) {
	if len(endpoints) == 0 {
		c.controller.loop.Push(NewEvent(TaskEventID, Task(func() {
			handler(nil, ErrNoEndpoints)
		})))
		return
	}

	parentCtx, cancel := context.WithCancel(context.Background())

	item := &tcpClientItem{id: c.id, client: c, cancel: cancel}
	c.controller.registerTCPClient(item)

	go func() {
		defer cancel()

		var lastErr error
		dialer := net.Dialer{}
		for _, ep := range endpoints {
			attemptCtx, cancelAttempt := context.WithTimeout(parentCtx, timeout)
			conn, err := dialer.DialContext(attemptCtx, "tcp", ep.String())
			timedOut := attemptCtx.Err() == context.DeadlineExceeded && parentCtx.Err() == nil
			cancelAttempt()
			if err == nil {
				c.opt.applyPostCreate(conn)
				if item.cancelled.Load() {
					_ = conn.Close()
					c.controller.unregisterTCPClient(c.id)
					return
				}
				channel := newTCPChannel(c.controller, conn)
				c.controller.loop.Push(NewEvent(TaskEventID, Task(func() {
					c.controller.unregisterTCPClient(c.id)
					c.controller.registerTCPChannel(&tcpChannelItem{id: channel.id, channel: channel})
					handler(channel, nil)
				})))
				return
			}
			if timedOut {
				lastErr = ErrTimeout
			} else {
				lastErr = err
			}
			if parentCtx.Err() != nil {
				break
			}
		}

		c.controller.unregisterTCPClient(c.id)
		if item.cancelled.Load() {
			return
		}

		if lastErr == nil {
			lastErr = ErrCancelled
		}
		c.controller.loop.Push(NewEvent(TaskEventID, Task(func() {
			handler(nil, lastErr)
		})))
	}()
}

// CancelConnect aborts an in-flight Connect attempt: the socket for any
// attempt still in flight is closed and the attempt is abandoned without
// invoking handler, per spec.md §4.6 ("cancelTcpConnect ... no callback
// fires"). It returns ErrNotRegistered if no Connect/DialTLS attempt is
// currently in flight for this client (already resolved, already cancelled,
// or never started).
func (c *TCPClient) CancelConnect() error {
	item, ok := c.controller.lookupTCPClient(c.id)
	if !ok {
		return ErrNotRegistered
	}
	item.cancelled.Store(true)
	item.cancel()
	return nil
}
