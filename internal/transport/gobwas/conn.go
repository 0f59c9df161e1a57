// Package gobwas provides the github.com/gobwas/ws implementation of the live channel transport.
package gobwas

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"github.com/omochice/toy-chat-client/internal/chat"
)

// Conn wraps a client side net.Conn speaking the websocket framing.
type Conn struct {
	conn   net.Conn
	reader io.Reader
	mu     sync.Mutex
}

// NewConn wraps an upgraded connection. br is the buffered reader returned by
// the handshake and may be nil.
func NewConn(conn net.Conn, br *bufio.Reader) *Conn {
	var r io.Reader = conn
	if br != nil {
		r = io.MultiReader(br, conn)
	}
	return &Conn{conn: conn, reader: r}
}

// Read implements chat.Conn.
// Control frames are answered inline; a close frame is reported as *chat.CloseError.
func (c *Conn) Read(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	stop := context.AfterFunc(ctx, func() {
		_ = c.conn.SetReadDeadline(time.Now())
	})
	defer stop()

	rw := struct {
		io.Reader
		io.Writer
	}{c.reader, lockedWriter{c}}

	data, _, err := wsutil.ReadServerData(rw)
	if err != nil {
		var ce wsutil.ClosedError
		if errors.As(err, &ce) {
			return nil, &chat.CloseError{Code: int(ce.Code), Reason: ce.Reason}
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
	return wsutil.WriteClientText(c.conn, data)
}

// Close implements chat.Conn.
func (c *Conn) Close() error {
	c.mu.Lock()
	_ = wsutil.WriteClientMessage(c.conn, ws.OpClose, ws.NewCloseFrameBody(ws.StatusNormalClosure, ""))
	c.mu.Unlock()
	return c.conn.Close()
}

// RemoteAddr implements chat.Conn.
func (c *Conn) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}

// lockedWriter serialises control frame replies with data frames written by Write.
type lockedWriter struct {
	c *Conn
}

func (w lockedWriter) Write(p []byte) (int, error) {
	w.c.mu.Lock()
	defer w.c.mu.Unlock()
	return w.c.conn.Write(p)
}

// Dialer dials the live channel with github.com/gobwas/ws.
type Dialer struct {
	Timeout time.Duration
}

// Dial implements chat.Dialer.
func (d Dialer) Dial(ctx context.Context, url string, header http.Header) (chat.Conn, error) {
	dialer := ws.Dialer{Timeout: d.Timeout}
	if len(header) > 0 {
		dialer.Header = ws.HandshakeHeaderHTTP(header)
	}
	conn, br, _, err := dialer.Dial(ctx, url)
	if err != nil {
		return nil, err
	}
	return NewConn(conn, br), nil
}
