package gobwas_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/omochice/toy-chat-client/internal/chat"
	"github.com/omochice/toy-chat-client/internal/transport/gobwas"
	"nhooyr.io/websocket"
)

func newServer(t *testing.T, handle func(c *websocket.Conn, r *http.Request)) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		handle(c, r)
	}))
	t.Cleanup(server.Close)
	return server
}

func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func TestDialer_ReadWrite(t *testing.T) {
	server := newServer(t, func(c *websocket.Conn, r *http.Request) {
		defer c.Close(websocket.StatusNormalClosure, "")
		_, data, err := c.Read(context.Background())
		if err != nil {
			return
		}
		c.Write(context.Background(), websocket.MessageText, append([]byte("echo:"), data...))
		c.Read(context.Background())
	})

	conn, err := gobwas.Dialer{Timeout: time.Second}.Dial(context.Background(), wsURL(server), nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.Close()

	if err := conn.Write(context.Background(), []byte("ping")); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	data, err := conn.Read(context.Background())
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if string(data) != "echo:ping" {
		t.Errorf("Read() = %q, want %q", data, "echo:ping")
	}
}

func TestDialer_SendsUpgradeHeader(t *testing.T) {
	gotAuth := make(chan string, 1)
	server := newServer(t, func(c *websocket.Conn, r *http.Request) {
		gotAuth <- r.Header.Get("Authorization")
		defer c.Close(websocket.StatusNormalClosure, "")
		c.Read(context.Background())
	})

	header := http.Header{}
	header.Set("Authorization", "Bearer secret")
	conn, err := gobwas.Dialer{}.Dial(context.Background(), wsURL(server), header)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.Close()

	if got := <-gotAuth; got != "Bearer secret" {
		t.Errorf("Authorization = %q, want %q", got, "Bearer secret")
	}
	if conn.RemoteAddr() == "" {
		t.Error("RemoteAddr() returned empty string")
	}
}

func TestConn_ReadCloseFrame(t *testing.T) {
	server := newServer(t, func(c *websocket.Conn, r *http.Request) {
		c.Close(websocket.StatusGoingAway, "bye")
	})

	conn, err := gobwas.Dialer{}.Dial(context.Background(), wsURL(server), nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.Close()

	_, err = conn.Read(context.Background())
	var ce *chat.CloseError
	if !errors.As(err, &ce) {
		t.Fatalf("Read() error = %v, want *chat.CloseError", err)
	}
	if ce.Code != int(websocket.StatusGoingAway) {
		t.Errorf("Code = %d, want %d", ce.Code, websocket.StatusGoingAway)
	}
}

func TestConn_ReadHonoursContext(t *testing.T) {
	server := newServer(t, func(c *websocket.Conn, r *http.Request) {
		defer c.Close(websocket.StatusNormalClosure, "")
		c.Read(context.Background())
	})

	conn, err := gobwas.Dialer{}.Dial(context.Background(), wsURL(server), nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err = conn.Read(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Read() error = %v, want context.DeadlineExceeded", err)
	}
}

func TestDialer_RejectedUpgrade(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
	}))
	defer server.Close()

	_, err := gobwas.Dialer{}.Dial(context.Background(), wsURL(server), nil)
	if err == nil {
		t.Error("expected error for rejected upgrade, got nil")
	}
}
