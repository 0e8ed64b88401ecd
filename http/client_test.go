package http

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"evnet"
)

func newTestServer(t *testing.T, handle func(conn *evnet.TCPChannel, req *Request)) (*evnet.SocketController, *evnet.Endpoint) {
	t.Helper()
	thread, controller := evnet.NewSocketThread("http-test-server", nil)
	require.True(t, thread.Start())
	t.Cleanup(func() {
		thread.Stop()
		thread.Wait()
	})

	server, err := evnet.OpenTCPServer(controller, evnet.NewEndpoint([]byte{127, 0, 0, 1}, 0), 16, evnet.SocketOption{})
	require.NoError(t, err)
	t.Cleanup(func() { server.Close() })

	server.SetAcceptHandler(func(ch *evnet.TCPChannel) {
		var buf []byte
		ch.SetReceiveHandler(func(ch *evnet.TCPChannel, data []byte) {
			buf = append(buf, data...)
			req, _, ok := ParseRequestLine(buf)
			if !ok {
				return
			}
			handle(ch, req)
		})
	})

	ep := endpointOf(t, server)
	return controller, &ep
}

func endpointOf(t *testing.T, server *evnet.TCPServer) evnet.Endpoint {
	t.Helper()
	addr := server.Addr().String()
	ep, err := evnet.ParseEndpoint(addr)
	require.NoError(t, err)
	return ep
}

func clientController(t *testing.T) *evnet.SocketController {
	t.Helper()
	thread, controller := evnet.NewSocketThread("http-test-client", nil)
	require.True(t, thread.Start())
	t.Cleanup(func() {
		thread.Stop()
		thread.Wait()
	})
	return controller
}

// TestHTTPGetChunked is scenario S3: the server replies with a chunked body
// and the client must assemble "hello world".
func TestHTTPGetChunked(t *testing.T) {
	serverController, ep := newTestServer(t, func(ch *evnet.TCPChannel, req *Request) {
		raw := "HTTP/1.1 200 OK\r\nTransfer-Encoding: chunked\r\n\r\n5\r\nhello\r\n6\r\n world\r\n0\r\n\r\n"
		ch.Send([]byte(raw), nil)
	})
	_ = serverController

	cc := clientController(t)
	client := NewClient(cc, nil, 2*time.Second)

	done := make(chan struct{})
	var gotResp *Response
	var gotErr error
	client.RequestGet(fmt.Sprintf("http://%s:%d/", ep.IP.String(), ep.Port), func(resp *Response, err error) {
		gotResp, gotErr = resp, err
		close(done)
	})

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("request never completed")
	}

	require.NoError(t, gotErr)
	require.NotNil(t, gotResp)
	assert.Equal(t, 200, gotResp.StatusCode)
	assert.Equal(t, "hello world", string(gotResp.Body))
}

func TestHTTPGetContentLength(t *testing.T) {
	_, ep := newTestServer(t, func(ch *evnet.TCPChannel, req *Request) {
		resp := NewResponse(200, "OK")
		resp.Body = []byte("exact-body")
		ch.Send(resp.Serialize(), nil)
	})

	cc := clientController(t)
	client := NewClient(cc, nil, 2*time.Second)

	done := make(chan *Response, 1)
	client.RequestGet(fmt.Sprintf("http://%s:%d/", ep.IP.String(), ep.Port), func(resp *Response, err error) {
		require.NoError(t, err)
		done <- resp
	})

	select {
	case resp := <-done:
		assert.Equal(t, "exact-body", string(resp.Body))
	case <-time.After(3 * time.Second):
		t.Fatal("request never completed")
	}
}

// TestRedirectLoopTerminates is testable property 7: a cycle in the
// redirect graph must terminate with ErrRedirectLoop after finitely many
// hops, not hang forever.
func TestRedirectLoopTerminates(t *testing.T) {
	var ep1, ep2 *evnet.Endpoint

	_, ep1 = newTestServer(t, func(ch *evnet.TCPChannel, req *Request) {
		resp := NewResponse(302, "Found")
		resp.Header.Set("Location", fmt.Sprintf("http://%s:%d/", ep2.IP.String(), ep2.Port))
		ch.Send(resp.Serialize(), nil)
	})
	_, ep2 = newTestServer(t, func(ch *evnet.TCPChannel, req *Request) {
		resp := NewResponse(302, "Found")
		resp.Header.Set("Location", fmt.Sprintf("http://%s:%d/", ep1.IP.String(), ep1.Port))
		ch.Send(resp.Serialize(), nil)
	})

	cc := clientController(t)
	client := NewClient(cc, nil, 2*time.Second)

	done := make(chan error, 1)
	client.RequestGet(fmt.Sprintf("http://%s:%d/", ep1.IP.String(), ep1.Port), func(resp *Response, err error) {
		done <- err
	})

	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrRedirectLoop)
	case <-time.After(5 * time.Second):
		t.Fatal("redirect loop never terminated")
	}
}
