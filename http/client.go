package http

import (
	"crypto/sha1"
	"crypto/tls"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"evnet"
)

// ClientState mirrors the request lifecycle of spec.md §4.10's client state
// machine, the Go analogue of the source HttpClient's internal phase.
type ClientState int

const (
	ClientIdle ClientState = iota
	ClientResolving
	ClientConnecting
	ClientSending
	ClientReceiving
	ClientRedirecting
	ClientDone
	ClientFailed
)

// MaxRedirects bounds automatic redirect following; exceeding it surfaces
// ErrTooManyRedirects instead of looping forever.
const MaxRedirects = 20

// ResponseHandler is invoked once a Client's request finishes, successfully
// or not.
type ResponseHandler func(resp *Response, err error)

// Client drives one HTTP request (plus any redirects) to completion over a
// TCPChannel it owns, the Go analogue of the source's HttpClient
// (http.hpp), built on evnet.TCPClient/evnet.TCPChannel instead of directly
// on Socket.
type Client struct {
	controller *evnet.SocketController
	tlsConfig  *tls.Config
	timeout    time.Duration

	state ClientState

	url     *URL
	req     *Request
	channel *evnet.TCPChannel

	recvBuf  []byte
	resp     *Response
	chunked  *chunkedDecoder
	bodyLen  int64
	haveLen  bool

	visited map[string]struct{}

	handler ResponseHandler
}

// NewClient constructs a Client driven by controller's owning loop.
func NewClient(controller *evnet.SocketController, tlsConfig *tls.Config, timeout time.Duration) *Client {
	return &Client{
		controller: controller,
		tlsConfig:  tlsConfig,
		timeout:    timeout,
		visited:    make(map[string]struct{}),
	}
}

// State reports the client's current lifecycle phase.
func (c *Client) State() ClientState { return c.state }

// Do sends req against target and invokes handler once with the final
// response (after following any redirects) or a terminal error.
func (c *Client) Do(target *URL, req *Request, handler ResponseHandler) {
	c.url = target
	c.req = req
	c.handler = handler
	c.startAttempt()
}

// resolveRedirectURL parses loc as an absolute URL, falling back to
// resolving it relative to the current request's URL (most servers send a
// path-only Location per RFC 7231 §7.1.2's "a URI-reference", not strictly
// an absolute URI).
func (c *Client) resolveRedirectURL(loc string) (*URL, error) {
	if next, err := ParseURL(loc); err == nil {
		return next, nil
	}
	next := c.url.Clone()
	if i := strings.IndexByte(loc, '?'); i >= 0 {
		next.Path, next.Query = loc[:i], loc[i+1:]
	} else {
		next.Path, next.Query = loc, ""
	}
	next.Fragment = ""
	return next, nil
}

func (c *Client) visitKey(u *URL) string {
	sum := sha1.Sum([]byte(u.Scheme + "://" + u.Host + ":" + fmt.Sprint(u.Port) + u.RequestTarget()))
	return hex.EncodeToString(sum[:])
}

func (c *Client) startAttempt() {
	key := c.visitKey(c.url)
	if _, seen := c.visited[key]; seen {
		c.fail(ErrRedirectLoop)
		return
	}
	c.visited[key] = struct{}{}
	// visited holds the original URL plus one entry per redirect followed.
	if len(c.visited)-1 > MaxRedirects {
		c.fail(ErrTooManyRedirects)
		return
	}

	c.state = ClientResolving
	c.req.Header.Set("Host", c.url.Host)
	if !c.req.Header.Has("Connection") {
		c.req.Header.Set("Connection", "close")
	}

	endpoints, err := evnet.ResolveTCPName(c.url.Host, c.url.Port)
	if err != nil {
		c.fail(err)
		return
	}

	c.state = ClientConnecting
	client := evnet.NewTCPClient(c.controller)

	onConnect := func(channel *evnet.TCPChannel, err error) {
		if err != nil {
			c.fail(err)
			return
		}
		c.channel = channel
		c.onConnected()
	}

	if c.url.Scheme == "https" || c.url.Scheme == "wss" {
		client.DialTLS(endpoints, c.timeout, evnet.TCPClientTLSOption{Config: c.tlsConfig}, onConnect)
	} else {
		client.Connect(endpoints, c.timeout, onConnect)
	}
}

func (c *Client) onConnected() {
	c.state = ClientSending
	c.recvBuf = nil
	c.resp = nil
	c.chunked = nil
	c.bodyLen = 0
	c.haveLen = false

	c.channel.SetReceiveHandler(func(ch *evnet.TCPChannel, data []byte) {
		c.onReceive(data)
	})
	c.channel.SetCloseHandler(func(ch *evnet.TCPChannel, err error) {
		c.onClosed(err)
	})

	c.req.Target = c.url.RequestTarget()
	c.channel.Send(c.req.Serialize(), func(err error) {
		if err != nil {
			c.fail(err)
			return
		}
		c.state = ClientReceiving
	})
}

func (c *Client) onReceive(data []byte) {
	c.recvBuf = append(c.recvBuf, data...)

	if c.resp == nil {
		resp, rest, ok := ParseResponseLine(c.recvBuf)
		if !ok {
			return
		}
		c.resp = resp
		c.recvBuf = rest

		if resp.Header.IsChunked() {
			c.chunked = newChunkedDecoder()
		} else if n, ok := resp.Header.ContentLength(); ok {
			c.bodyLen = n
			c.haveLen = true
		}
	}

	if c.chunked != nil {
		if err := c.chunked.Feed(c.recvBuf); err != nil {
			c.fail(err)
			return
		}
		c.recvBuf = nil
		c.resp.Body = append(c.resp.Body, c.chunked.Decoded()...)
		if c.chunked.Done() {
			c.finishResponse()
		}
		return
	}

	if c.haveLen {
		c.resp.Body = c.recvBuf
		if int64(len(c.resp.Body)) >= c.bodyLen {
			c.resp.Body = c.resp.Body[:c.bodyLen]
			c.finishResponse()
		}
		return
	}

	// no framing header: body runs until the connection closes.
}

func (c *Client) onClosed(err error) {
	if c.state == ClientDone || c.state == ClientFailed {
		return
	}
	if c.resp != nil && !c.haveLen && c.chunked == nil {
		c.resp.Body = c.recvBuf
		c.finishResponse()
		return
	}
	if err != nil {
		c.fail(err)
	}
}

func (c *Client) finishResponse() {
	resp := c.resp

	if resp.IsRedirect() {
		loc := resp.Header.Get("Location")
		if loc == "" {
			c.fail(ErrMissingLocation)
			return
		}
		next, err := c.resolveRedirectURL(loc)
		if err != nil {
			c.fail(err)
			return
		}
		method := c.req.Method
		if resp.StatusCode == 303 {
			method = "GET"
		}
		c.state = ClientRedirecting
		c.url = next
		c.req = NewRequest(method, next.RequestTarget())
		c.startAttempt()
		return
	}

	c.state = ClientDone
	if c.handler != nil {
		c.handler(resp, nil)
	}
}

func (c *Client) fail(err error) {
	c.state = ClientFailed
	if c.handler != nil {
		c.handler(nil, err)
	}
}

// request is the shared implementation behind the verb convenience methods:
// parse target, build a Request with method and body, and Do it.
func (c *Client) request(method, target string, body []byte, handler ResponseHandler) {
	u, err := ParseURL(target)
	if err != nil {
		handler(nil, err)
		return
	}
	req := NewRequest(method, u.RequestTarget())
	req.Body = body
	c.Do(u, req, handler)
}

// RequestGet issues a GET request against target.
func (c *Client) RequestGet(target string, handler ResponseHandler) {
	c.request("GET", target, nil, handler)
}

// RequestHead issues a HEAD request against target.
func (c *Client) RequestHead(target string, handler ResponseHandler) {
	c.request("HEAD", target, nil, handler)
}

// RequestDelete issues a DELETE request against target.
func (c *Client) RequestDelete(target string, handler ResponseHandler) {
	c.request("DELETE", target, nil, handler)
}

// RequestPost issues a POST request against target with body.
func (c *Client) RequestPost(target string, body []byte, handler ResponseHandler) {
	c.request("POST", target, body, handler)
}

// RequestPut issues a PUT request against target with body.
func (c *Client) RequestPut(target string, body []byte, handler ResponseHandler) {
	c.request("PUT", target, body, handler)
}

// RequestPatch issues a PATCH request against target with body.
func (c *Client) RequestPatch(target string, body []byte, handler ResponseHandler) {
	c.request("PATCH", target, body, handler)
}
