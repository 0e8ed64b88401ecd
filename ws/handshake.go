package ws

import (
	"crypto/rand"
	"crypto/sha1"
	"encoding/base64"
	"strings"

	"evnet"
	evhttp "evnet/http"
)

// keySuffix is the GUID RFC 6455 §1.3 appends to the client's handshake key
// before hashing, the Go analogue of the source's SEV_WS_KEY_SUFFIX
// (ws.hpp). Treated as a black-box constant per spec.md §1.
const keySuffix = "258EAFA5-E914-47DA-95CA-C5AB0DC85B11"

// acceptValue computes the Sec-WebSocket-Accept value for a given
// Sec-WebSocket-Key, per RFC 6455 §4.2.2.
func acceptValue(key string) string {
	sum := sha1.Sum([]byte(key + keySuffix))
	return base64.StdEncoding.EncodeToString(sum[:])
}

// generateKey produces a random 16-byte Sec-WebSocket-Key, base64-encoded,
// per RFC 6455 §4.1.
func generateKey() (string, error) {
	var raw [16]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(raw[:]), nil
}

// IsHandshakeRequest reports whether req is a valid WebSocket upgrade
// request, the Go analogue of the source's WsChannel upgrade check inside
// http_server.hpp's request routing.
func IsHandshakeRequest(req *evhttp.Request) bool {
	return strings.EqualFold(req.Header.Get("Upgrade"), "websocket") &&
		strings.Contains(strings.ToLower(req.Header.Get("Connection")), "upgrade") &&
		req.Header.Get("Sec-WebSocket-Key") != ""
}

// Upgrade replies to req's handshake over ch with a 101 Switching Protocols
// response and returns a server-side Channel for the now-upgraded
// connection. Callers must not use ch after calling Upgrade.
func Upgrade(ch *evhttp.Channel, req *evhttp.Request) *Channel {
	key := req.Header.Get("Sec-WebSocket-Key")

	resp := evhttp.NewResponse(101, "Switching Protocols")
	resp.Header.Set("Upgrade", "websocket")
	resp.Header.Set("Connection", "Upgrade")
	resp.Header.Set("Sec-WebSocket-Accept", acceptValue(key))

	tcp := ch.Underlying()
	tcp.Send(resp.Serialize(), nil)

	return NewChannel(tcp, true)
}

// ClientUpgrade performs a client-side WebSocket handshake: it sends the
// upgrade request over an already-connected evnet.TCPChannel and invokes
// handler once the 101 response has been validated (or the handshake
// fails), the Go analogue of the source's HttpClient-based Upgrade() helper
// (spec.md §4.13). The channel's own evhttp.Client machinery isn't reused
// here because a 101 response carries no body-framing headers for the
// generic Client state machine to key off of; the handshake instead parses
// the status line and headers directly off the TCPChannel.
func ClientUpgrade(controller *evnet.SocketController, tcp *evnet.TCPChannel, url *evhttp.URL, handler func(*Channel, error)) error {
	key, err := generateKey()
	if err != nil {
		return err
	}

	req := evhttp.NewRequest("GET", url.RequestTarget())
	req.Header.Set("Host", url.Host)
	req.Header.Set("Upgrade", "websocket")
	req.Header.Set("Connection", "Upgrade")
	req.Header.Set("Sec-WebSocket-Key", key)
	req.Header.Set("Sec-WebSocket-Version", "13")

	var recvBuf []byte
	tcp.SetReceiveHandler(func(t *evnet.TCPChannel, data []byte) {
		recvBuf = append(recvBuf, data...)
		resp, rest, ok := evhttp.ParseResponseLine(recvBuf)
		if !ok {
			return
		}
		if resp.StatusCode != 101 || resp.Header.Get("Sec-WebSocket-Accept") != acceptValue(key) {
			handler(nil, errBadHandshake)
			return
		}

		channel := NewChannel(tcp, false)
		if len(rest) > 0 {
			channel.onReceive(rest)
		}
		handler(channel, nil)
	})

	tcp.Send(req.Serialize(), nil)
	return nil
}
