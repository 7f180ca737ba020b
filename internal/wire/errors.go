package wire

import "errors"

// ErrInvalidWebsocketMessage is returned when a non-text frame arrives on
// the CDP WebSocket.
var ErrInvalidWebsocketMessage = errors.New("wire: invalid websocket message")
