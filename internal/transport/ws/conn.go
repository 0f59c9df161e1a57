// Package ws provides the nhooyr.io/websocket implementation of the live channel transport.
package ws

import (
	"context"
	"errors"
	"net/http"

	"github.com/omochice/toy-chat-client/internal/chat"
	"nhooyr.io/websocket"
)

// Conn adapts nhooyr.io/websocket to chat.Conn interface.
type Conn struct {
	conn       *websocket.Conn
	remoteAddr string
}

// NewConn wraps a websocket.Conn with empty remote address.
func NewConn(conn *websocket.Conn) *Conn {
	return &Conn{conn: conn}
}

// NewConnWithAddr wraps a websocket.Conn with the specified remote address.
func NewConnWithAddr(conn *websocket.Conn, addr string) *Conn {
	return &Conn{conn: conn, remoteAddr: addr}
}

// Read implements chat.Conn.
// Close frames from the server are reported as *chat.CloseError.
func (c *Conn) Read(ctx context.Context) ([]byte, error) {
	_, data, err := c.conn.Read(ctx)
	if err != nil {
		var ce websocket.CloseError
		if errors.As(err, &ce) {
			return nil, &chat.CloseError{Code: int(ce.Code), Reason: ce.Reason}
		}
		return nil, err
	}
	return data, nil
}

// Write implements chat.Conn.
// Writes a text message to the WebSocket connection.
func (c *Conn) Write(ctx context.Context, data []byte) error {
	return c.conn.Write(ctx, websocket.MessageText, data)
}

// Close implements chat.Conn.
func (c *Conn) Close() error {
	return c.conn.Close(websocket.StatusNormalClosure, "")
}

// RemoteAddr implements chat.Conn.
func (c *Conn) RemoteAddr() string {
	return c.remoteAddr
}

// Dialer dials the live channel with nhooyr.io/websocket.
type Dialer struct {
	// ReadLimit caps the size of a single inbound frame. Zero keeps the library default.
	ReadLimit int64
}

// Dial implements chat.Dialer.
func (d Dialer) Dial(ctx context.Context, url string, header http.Header) (chat.Conn, error) {
	conn, resp, err := websocket.Dial(ctx, url, &websocket.DialOptions{HTTPHeader: header})
	if err != nil {
		return nil, err
	}
	if d.ReadLimit > 0 {
		conn.SetReadLimit(d.ReadLimit)
	}
	addr := ""
	if resp != nil && resp.Request != nil {
		addr = resp.Request.URL.Host
	}
	return NewConnWithAddr(conn, addr), nil
}
