package devserver

import (
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/omochice/toy-chat-client/pkg/protocol"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// wsClient is one live-channel connection of an authenticated user.
type wsClient struct {
	conn     *websocket.Conn
	username string
	outgoing chan []byte
}

// handleWebSocket upgrades the request once the token subject matches the
// username query parameter.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request, subject string) {
	if r.FormValue("username") != subject {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warnw("Failed to upgrade connection", "error", err)
		return
	}

	client := &wsClient{
		conn:     conn,
		username: subject,
		outgoing: make(chan []byte, 16),
	}

	s.mu.Lock()
	s.clients[client] = true
	s.mu.Unlock()

	s.logger.Infow("User connected", "username", subject)

	s.wg.Add(1)
	go s.handleClient(client)
}

func (s *Server) handleClient(client *wsClient) {
	defer s.wg.Done()
	defer func() {
		s.mu.Lock()
		delete(s.clients, client)
		close(client.outgoing)
		s.mu.Unlock()
		client.conn.Close()
		s.logger.Infow("User disconnected", "username", client.username)
	}()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for data := range client.outgoing {
			if err := client.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				s.logger.Warnw("Failed to send message to client", "username", client.username, "error", err)
				return
			}
		}
	}()

	for {
		_, data, err := client.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Debugw("WebSocket error", "username", client.username, "error", err)
			}
			return
		}

		var msg protocol.Message
		if err := msg.Decode(data); err != nil {
			s.logger.Warnw("Failed to decode message", "username", client.username, "error", err)
			continue
		}
		// The sender is always the authenticated user.
		msg.From = client.username

		chat, err := s.store.SaveMessage(msg)
		if err != nil {
			s.logger.Warnw("Dropped message", "username", client.username, "chat_id", msg.ChatID, "error", err)
			continue
		}
		out, err := msg.Encode()
		if err != nil {
			continue
		}
		s.fanOut(out, chat, client)
	}
}

// fanOut delivers data to every connection of the chat's members except the
// one it came from.
func (s *Server) fanOut(data []byte, chat protocol.Chat, sender *wsClient) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for client := range s.clients {
		if client == sender || !isMember(chat, client.username) {
			continue
		}
		select {
		case client.outgoing <- data:
		default:
			s.logger.Warnw("Client channel full, skipping", "username", client.username)
		}
	}
}
