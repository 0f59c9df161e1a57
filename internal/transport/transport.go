// Package transport selects the websocket library used for the live channel.
package transport

import (
	"fmt"
	"time"

	"github.com/omochice/toy-chat-client/internal/chat"
	"github.com/omochice/toy-chat-client/internal/transport/gobwas"
	"github.com/omochice/toy-chat-client/internal/transport/gorilla"
	"github.com/omochice/toy-chat-client/internal/transport/ws"
)

// Supported transport names.
const (
	Gobwas  = "gobwas"
	Nhooyr  = "nhooyr"
	Gorilla = "gorilla"
)

// maxFrameSize bounds inbound frames on transports that support a read limit.
const maxFrameSize = 64 << 10

// NewDialer returns the dialer registered under name.
func NewDialer(name string, timeout time.Duration) (chat.Dialer, error) {
	switch name {
	case "", Gobwas:
		return gobwas.Dialer{Timeout: timeout}, nil
	case Nhooyr:
		return ws.Dialer{ReadLimit: maxFrameSize}, nil
	case Gorilla:
		return gorilla.Dialer{HandshakeTimeout: timeout}, nil
	default:
		return nil, fmt.Errorf("unknown transport %q", name)
	}
}
