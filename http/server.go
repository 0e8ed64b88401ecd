package http

import (
	"net"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync/atomic"

	"evnet"
)

// RequestHandler handles one fully-received request on a server Channel.
type RequestHandler func(ch *Channel, req *Request)

// HandlerMap routes request targets to RequestHandlers and, separately, a
// document root for static file/directory serving, the Go analogue of the
// source's HttpServer handler table (http.hpp / http_server.hpp).
type HandlerMap struct {
	files map[string]RequestHandler
	dirs  map[string]RequestHandler

	defaultHandler RequestHandler
	docRoot        string
}

// NewHandlerMap constructs an empty HandlerMap.
func NewHandlerMap() *HandlerMap {
	return &HandlerMap{
		files: make(map[string]RequestHandler),
		dirs:  make(map[string]RequestHandler),
	}
}

// Handle registers handler for target, per spec.md §4.11's two key classes:
// a target ending in "/" is a directory key matching any request path with
// it as a proper prefix (longest match wins); any other target is a file
// key matching only that exact path.
func (m *HandlerMap) Handle(target string, handler RequestHandler) {
	if strings.HasSuffix(target, "/") {
		m.dirs[target] = handler
	} else {
		m.files[target] = handler
	}
}

// SetDefaultHandler installs the handler invoked when no file or directory
// key matches; if never set, an unmatched request gets 404 Not Found
// (spec.md §4.11).
func (m *HandlerMap) SetDefaultHandler(handler RequestHandler) { m.defaultHandler = handler }

// ServeDir makes the server answer any unmatched GET request by serving
// files under root, resolving "/" to "index.html" the way a conventional
// static file server does. Implemented as the default handler.
func (m *HandlerMap) ServeDir(root string) {
	m.docRoot = root
	m.defaultHandler = m.serveFile
}

// resolve implements spec.md §4.11's lookup order: exact file match, then
// longest directory-prefix match, then the default handler.
func (m *HandlerMap) resolve(target string) (RequestHandler, bool) {
	if h, ok := m.files[target]; ok {
		return h, true
	}

	var best string
	var bestHandler RequestHandler
	for prefix, h := range m.dirs {
		if strings.HasPrefix(target, prefix) && len(target) > len(prefix) && len(prefix) > len(best) {
			best = prefix
			bestHandler = h
		}
	}
	if bestHandler != nil {
		return bestHandler, true
	}

	if m.defaultHandler != nil {
		return m.defaultHandler, true
	}
	return nil, false
}

func (m *HandlerMap) serveFile(ch *Channel, req *Request) {
	target := req.Target
	if target == "/" || target == "" {
		target = "/index.html"
	}
	clean := path.Clean(target)
	if strings.Contains(clean, "..") {
		ch.WriteResponse(NewResponse(403, "Forbidden"))
		return
	}

	full := filepath.Join(m.docRoot, filepath.FromSlash(clean))
	data, err := os.ReadFile(full)
	if err != nil {
		ch.WriteResponse(NewResponse(404, "Not Found"))
		return
	}

	resp := NewResponse(200, "OK")
	resp.Body = data
	ch.WriteResponse(resp)
}

// Channel is an accepted HTTP connection layered over an evnet.TCPChannel,
// the Go analogue of the source's HttpServer connection object: it decodes
// one request at a time and serializes the matching response, closing the
// connection after a response that carries "Connection: close".
type Channel struct {
	tcp     *evnet.TCPChannel
	handlers *HandlerMap

	recvBuf []byte
	req     *Request
	chunked *chunkedDecoder
	bodyLen int64
	haveLen bool
}

func newChannel(tcp *evnet.TCPChannel, handlers *HandlerMap) *Channel {
	c := &Channel{tcp: tcp, handlers: handlers}
	tcp.SetReceiveHandler(func(ch *evnet.TCPChannel, data []byte) { c.onReceive(data) })
	return c
}

// NewChannel wraps tcp as a server-side HTTP Channel routed through
// handlers, for callers (such as evnet/ws's upgrade helpers) that accept a
// raw TCPChannel directly instead of going through a ServerApp.
func NewChannel(tcp *evnet.TCPChannel, handlers *HandlerMap) *Channel {
	return newChannel(tcp, handlers)
}

// Underlying returns the Channel's backing TCPChannel, for callers that need
// raw endpoint/close access (e.g. a WebSocket upgrade).
func (c *Channel) Underlying() *evnet.TCPChannel { return c.tcp }

func (c *Channel) onReceive(data []byte) {
	c.recvBuf = append(c.recvBuf, data...)

	if c.req == nil {
		req, rest, ok := ParseRequestLine(c.recvBuf)
		if !ok {
			return
		}
		c.req = req
		c.recvBuf = rest

		if req.Header.IsChunked() {
			c.chunked = newChunkedDecoder()
		} else if n, ok := req.Header.ContentLength(); ok {
			c.bodyLen = n
			c.haveLen = true
		}
	}

	if c.chunked != nil {
		if err := c.chunked.Feed(c.recvBuf); err != nil {
			c.tcp.Close()
			return
		}
		c.recvBuf = nil
		c.req.Body = append(c.req.Body, c.chunked.Decoded()...)
		if !c.chunked.Done() {
			return
		}
	} else if c.haveLen {
		if int64(len(c.recvBuf)) < c.bodyLen {
			return
		}
		c.req.Body = c.recvBuf[:c.bodyLen]
		c.recvBuf = c.recvBuf[c.bodyLen:]
	}

	req := c.req
	c.req = nil
	c.chunked = nil
	c.haveLen = false

	handler, ok := c.handlers.resolve(req.Target)
	if !ok {
		c.WriteResponse(NewResponse(404, "Not Found"))
		return
	}
	handler(c, req)
}

// WriteResponse serializes and sends resp. The connection is closed after
// the send only if resp carries "Connection: close" or the send fails;
// otherwise it stays open for the next request.
func (c *Channel) WriteResponse(resp *Response) {
	keepAlive := resp.Header.Get("Connection") != "close"
	c.tcp.Send(resp.Serialize(), func(err error) {
		if !keepAlive || err != nil {
			c.tcp.Close()
		}
	})
}

// ServerApp is a multi-worker HTTP server: one accept thread distributes
// connections round-robin across a fixed pool of worker Threads, each
// running its own SocketController, the Go analogue of the source's
// TcpServerApp / HttpServerWorker pairing (tcp_server_app.hpp,
// http_server_worker.hpp) and spec.md §4.11's "workers reject new accepted
// channels once MaxChannelsPerWorker is reached".
type ServerApp struct {
	workers   []*workerSlot
	nextIndex atomic.Uint32

	handlers *HandlerMap
	logger   evnet.Logger
}

// SetLogger installs the logger used to report refused connections.
func (app *ServerApp) SetLogger(l evnet.Logger) { app.logger = l }

type workerSlot struct {
	thread     *evnet.Thread
	controller *evnet.SocketController
	count      atomic.Int32
}

// NewServerApp builds workerCount worker Threads, each with its own
// SocketController capped at maxChannelsPerWorker concurrent channels (0
// means unlimited), and starts them all.
func NewServerApp(workerCount int, maxChannelsPerWorker int, handlers *HandlerMap) *ServerApp {
	app := &ServerApp{handlers: handlers}
	for i := 0; i < workerCount; i++ {
		thread, controller := evnet.NewSocketThread("http-worker", nil)
		controller.MaxSockets = maxChannelsPerWorker
		slot := &workerSlot{thread: thread, controller: controller}

		// TCPAcceptEventID/TCPAcceptParams carry the handed-off channel
		// across the accept-to-worker thread boundary (spec.md §4.7,
		// "cross-thread case posts a TcpAcceptEvent").
		thread.SetEventHandler(evnet.TCPAcceptEventID, func(ev *evnet.Event) {
			params := ev.Params.(evnet.TCPAcceptParams)
			params.Channel.SetCloseHandler(func(ch *evnet.TCPChannel, err error) {
				slot.count.Add(-1)
			})
			newChannel(params.Channel, app.handlers)
		})

		app.workers = append(app.workers, slot)
		thread.Start()
	}
	return app
}

// Listen binds a TCPServer on the root accept thread and distributes each
// accepted connection across the workers in round-robin order, skipping
// workers at their cap and refusing (closing immediately) connections once
// every worker is full.
func (app *ServerApp) Listen(acceptController *evnet.SocketController, endpoint evnet.Endpoint, backlog int, opt evnet.SocketOption) (*evnet.TCPServer, error) {
	server, err := evnet.OpenTCPServer(acceptController, endpoint, backlog, opt)
	if err != nil {
		return nil, err
	}
	server.SetRawAcceptHandler(func(conn net.Conn) {
		app.dispatch(conn)
	})
	return server, nil
}

// dispatch hands conn to the next worker with spare capacity, in round-robin
// order starting after the last chosen worker; a connection is refused
// (closed immediately) only once every worker is at its cap.
func (app *ServerApp) dispatch(conn net.Conn) {
	n := len(app.workers)
	for i := 0; i < n; i++ {
		idx := int(app.nextIndex.Add(1)) % n
		slot := app.workers[idx]
		if slot.controller.MaxSockets > 0 && int(slot.count.Load()) >= slot.controller.MaxSockets {
			continue
		}
		slot.count.Add(1)
		channel := evnet.AdoptTCPChannel(slot.controller, conn)
		if !slot.thread.Post(evnet.NewEvent(evnet.TCPAcceptEventID, evnet.TCPAcceptParams{Channel: channel})) {
			evnet.LoggerOrDefault(app.logger).Warn("evnet: worker loop stopped, dropping accepted connection",
				"remote", conn.RemoteAddr(), "error", evnet.ErrLoopStopped)
			slot.count.Add(-1)
			_ = conn.Close()
		}
		return
	}
	evnet.LoggerOrDefault(app.logger).Warn("evnet: refusing accepted connection, all workers full",
		"remote", conn.RemoteAddr(), "error", evnet.ErrChannelOverflow)
	_ = conn.Close()
}

// Stop stops every worker Thread.
func (app *ServerApp) Stop() {
	for _, w := range app.workers {
		w.thread.Stop()
	}
}
