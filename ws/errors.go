package ws

import "errors"

var errBadHandshake = errors.New("evnet/ws: server did not accept the WebSocket handshake")
