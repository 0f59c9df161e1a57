// Package gorilla provides the github.com/gorilla/websocket implementation of the live channel transport.
package gorilla

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/omochice/toy-chat-client/internal/chat"
)

const closeWait = time.Second

// Conn adapts a gorilla websocket.Conn to chat.Conn.
type Conn struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

// NewConn wraps a websocket.Conn.
func NewConn(conn *websocket.Conn) *Conn {
	return &Conn{conn: conn}
}

// Read implements chat.Conn.
func (c *Conn) Read(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	stop := context.AfterFunc(ctx, func() {
		_ = c.conn.SetReadDeadline(time.Now())
	})
	defer stop()

	_, data, err := c.conn.ReadMessage()
	if err != nil {
		var ce *websocket.CloseError
		if errors.As(err, &ce) {
			return nil, &chat.CloseError{Code: ce.Code, Reason: ce.Text}
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, err
	}
	return data, nil
}

// Write implements chat.Conn.
func (c *Conn) Write(ctx context.Context, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if deadline, ok := ctx.Deadline(); ok {
		_ = c.conn.SetWriteDeadline(deadline)
		defer c.conn.SetWriteDeadline(time.Time{})
	}
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// Close implements chat.Conn.
func (c *Conn) Close() error {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeWait))
	return c.conn.Close()
}

// RemoteAddr implements chat.Conn.
func (c *Conn) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}

// Dialer dials the live channel with github.com/gorilla/websocket.
type Dialer struct {
	HandshakeTimeout time.Duration
}

// Dial implements chat.Dialer.
func (d Dialer) Dial(ctx context.Context, url string, header http.Header) (chat.Conn, error) {
	dialer := *websocket.DefaultDialer
	if d.HandshakeTimeout > 0 {
		dialer.HandshakeTimeout = d.HandshakeTimeout
	}
	conn, resp, err := dialer.DialContext(ctx, url, header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return nil, err
	}
	return NewConn(conn), nil
}
