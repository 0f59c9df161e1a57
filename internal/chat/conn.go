// Package chat provides the transport-agnostic pieces of the live channel:
// the connection and dialer abstractions and the subscriber hub.
package chat

import (
	"context"
	"fmt"
	"net/http"
)

// Close codes reported to subscribers. They follow RFC 6455.
const (
	CloseNormal   = 1000
	CloseAbnormal = 1006
)

// Conn abstracts a bidirectional message connection.
// This interface isolates websocket library details from session logic.
type Conn interface {
	// Read reads a single message frame.
	// Returns a *CloseError when the peer closed the connection.
	Read(ctx context.Context) ([]byte, error)

	// Write sends a single text frame.
	Write(ctx context.Context, data []byte) error

	// Close closes the connection.
	Close() error

	// RemoteAddr returns the remote address for logging.
	RemoteAddr() string
}

// Dialer opens a Conn to a websocket URL. The header is sent with the
// HTTP upgrade request.
type Dialer interface {
	Dial(ctx context.Context, url string, header http.Header) (Conn, error)
}

// DialerFunc adapts a function to the Dialer interface.
type DialerFunc func(ctx context.Context, url string, header http.Header) (Conn, error)

// Dial implements Dialer.
func (f DialerFunc) Dial(ctx context.Context, url string, header http.Header) (Conn, error) {
	return f(ctx, url, header)
}

// CloseError carries the close code and reason of a closed connection.
type CloseError struct {
	Code   int
	Reason string
}

func (e *CloseError) Error() string {
	return fmt.Sprintf("connection closed: %d %s", e.Code, e.Reason)
}
