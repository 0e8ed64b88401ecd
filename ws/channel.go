package ws

import (
	"sync"

	"evnet"
)

// MessageHandler is invoked once a complete (possibly reassembled) text or
// binary message has arrived.
type MessageHandler func(ch *Channel, opcode OpCode, payload []byte)

// CloseHandler is invoked once the close handshake completes or the
// underlying TCPChannel closes.
type CloseHandler func(ch *Channel, statusCode uint16, reason string)

type closeState int

const (
	closeIdle closeState = iota
	closeSent
	closeReceived
)

// Channel is an established WebSocket connection layered over an
// evnet.TCPChannel, the Go analogue of the source's WsChannel (ws.hpp).
// Channel holds a direct pointer to its TCPChannel; it is not registered in
// any ChannelID arena, and its id field is never assigned (it stays zero).
type Channel struct {
	id  evnet.ChannelID
	tcp *evnet.TCPChannel

	// isServer controls whether outgoing frames are masked: client frames
	// must be masked, server frames must not be (RFC 6455 §5.1).
	isServer bool

	dec *decoder

	mu               sync.Mutex
	continuationOp   OpCode
	continuationBuf  []byte
	inContinuation   bool

	messageHandler MessageHandler
	closeHandler   CloseHandler
	closeState     closeState

	// logger is the spec.md §6/§7 sink for protocol violations (invalid
	// frame header, oversized/fragmented control frame) that close the
	// channel with 1002 before any CloseHandler fires with a reason.
	logger evnet.Logger
}

// SetLogger installs the sink for protocol-violation warnings. Defaults to
// evnet.LoggerOrDefault(nil) if never called.
func (c *Channel) SetLogger(l evnet.Logger) { c.logger = l }

// NewChannel wraps tcp as a WebSocket Channel. isServer must be true for
// connections accepted by a server (so outgoing frames go unmasked) and
// false for connections established by a client.
func NewChannel(tcp *evnet.TCPChannel, isServer bool) *Channel {
	c := &Channel{
		id:       0,
		tcp:      tcp,
		isServer: isServer,
		dec:      newDecoder(),
	}
	tcp.SetReceiveHandler(func(t *evnet.TCPChannel, data []byte) { c.onReceive(data) })
	tcp.SetCloseHandler(func(t *evnet.TCPChannel, err error) { c.onTCPClosed() })
	return c
}

// Underlying returns the Channel's backing TCPChannel.
func (c *Channel) Underlying() *evnet.TCPChannel { return c.tcp }

// SetMessageHandler installs the handler invoked for each reassembled
// text/binary message.
func (c *Channel) SetMessageHandler(h MessageHandler) { c.messageHandler = h }

// SetCloseHandler installs the handler invoked when the channel closes.
func (c *Channel) SetCloseHandler(h CloseHandler) { c.closeHandler = h }

func (c *Channel) onReceive(data []byte) {
	c.dec.feed(data)
	for {
		frame, ok, err := c.dec.next()
		if err != nil {
			evnet.LoggerOrDefault(c.logger).Warn("evnet/ws: protocol violation, closing", "error", err)
			c.sendClose(StatusProtocolError, "")
			c.tcp.Close()
			return
		}
		if !ok {
			return
		}
		c.handleFrame(frame)
	}
}

func (c *Channel) handleFrame(frame *Frame) {
	if frame.OpCode.IsControl() {
		c.handleControlFrame(frame)
		return
	}

	switch frame.OpCode {
	case OpText, OpBinary:
		if c.inContinuation {
			// a new data frame without FIN on the prior one is a protocol
			// error; treat it as resetting continuation state.
			c.continuationBuf = nil
		}
		if frame.Fin {
			c.deliver(frame.OpCode, frame.Payload)
			c.inContinuation = false
			c.continuationBuf = nil
			return
		}
		c.inContinuation = true
		c.continuationOp = frame.OpCode
		c.continuationBuf = append([]byte(nil), frame.Payload...)

	case OpContinuation:
		if !c.inContinuation {
			return
		}
		c.continuationBuf = append(c.continuationBuf, frame.Payload...)
		if frame.Fin {
			c.deliver(c.continuationOp, c.continuationBuf)
			c.inContinuation = false
			c.continuationBuf = nil
		}
	}
}

func (c *Channel) deliver(opcode OpCode, payload []byte) {
	if c.messageHandler != nil {
		c.messageHandler(c, opcode, payload)
	}
}

func (c *Channel) handleControlFrame(frame *Frame) {
	switch frame.OpCode {
	case OpPing:
		c.writeFrame(&Frame{Fin: true, OpCode: OpPong, Payload: frame.Payload})

	case OpPong:
		// unsolicited pongs are accepted silently, per RFC 6455 §5.5.3.

	case OpClose:
		c.mu.Lock()
		alreadySent := c.closeState == closeSent
		c.closeState = closeReceived
		c.mu.Unlock()

		code, _ := frame.CloseStatusCode()
		reason := ""
		if len(frame.Payload) > 2 {
			reason = string(frame.Payload[2:])
		}

		if alreadySent {
			// a Close arriving after we already sent one completes the
			// handshake immediately, per the Open Question decision in
			// DESIGN.md ("close TCP immediately").
			c.tcp.CloseNow()
		} else {
			c.sendClose(code, "")
			c.tcp.Close()
		}

		if c.closeHandler != nil {
			c.closeHandler(c, code, reason)
		}
	}
}

func (c *Channel) onTCPClosed() {
	c.mu.Lock()
	already := c.closeState != closeIdle
	c.mu.Unlock()
	if already {
		return
	}
	if c.closeHandler != nil {
		c.closeHandler(c, StatusAbnormalClosure, "")
	}
}

func (c *Channel) writeFrame(frame *Frame) {
	frame.Masked = !c.isServer
	data, err := frame.Encode()
	if err != nil {
		return
	}
	c.tcp.Send(data, nil)
}

// SendText sends a final text frame.
func (c *Channel) SendText(text string) { c.writeFrame(NewTextFrame(text)) }

// SendBinary sends a final binary frame.
func (c *Channel) SendBinary(data []byte) { c.writeFrame(NewBinaryFrame(data)) }

// Ping sends a ping control frame carrying an optional application payload
// (must be <=125 bytes; longer payloads are silently dropped).
func (c *Channel) Ping(payload []byte) {
	c.writeFrame(&Frame{Fin: true, OpCode: OpPing, Payload: payload})
}

// Close starts the closing handshake by sending a close frame; the
// connection closes once the peer's close frame arrives (or immediately, if
// the peer already sent one first).
func (c *Channel) Close(statusCode uint16, reason string) {
	c.sendClose(statusCode, reason)
}

func (c *Channel) sendClose(statusCode uint16, reason string) {
	c.mu.Lock()
	if c.closeState == closeSent {
		c.mu.Unlock()
		return
	}
	alreadyReceived := c.closeState == closeReceived
	c.closeState = closeSent
	c.mu.Unlock()

	c.writeFrame(NewCloseFrame(statusCode, reason))
	if alreadyReceived {
		// graceful close, so the close frame just queued is flushed first.
		c.tcp.Close()
	}
}
