// Package devserver is an in-memory chat server speaking the same REST and
// live-channel contract as the production backend. It backs end-to-end tests
// and local development.
package devserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/omochice/toy-chat-client/pkg/protocol"
	"go.uber.org/zap"
)

const minPasswordLength = 8

// Config configures a Server.
type Config struct {
	Address    string
	SigningKey string
}

// Server serves the REST endpoints and the live channel.
type Server struct {
	address string
	store   *Store
	tokens  *Tokens
	logger  *zap.SugaredLogger

	listener net.Listener
	server   *http.Server
	router   *mux.Router

	clients map[*wsClient]bool
	mu      sync.RWMutex
	wg      sync.WaitGroup
}

// New creates a Server. Nothing listens until Start is called.
func New(cfg Config, logger *zap.SugaredLogger) *Server {
	s := &Server{
		address: cfg.Address,
		store:   NewStore(),
		tokens:  NewTokens(cfg.SigningKey),
		logger:  logger,
		clients: make(map[*wsClient]bool),
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/register", s.handleRegister).Methods(http.MethodPost)
	r.HandleFunc("/login", s.handleLogin).Methods(http.MethodPost)
	r.HandleFunc("/user/{username}", s.handleUser).Methods(http.MethodGet)
	r.HandleFunc("/chats/{username}", s.authorized(s.handleChats)).Methods(http.MethodGet)
	r.HandleFunc("/newChat", s.authorized(s.handleNewChat)).Methods(http.MethodPost)
	r.HandleFunc("/messages/{id}", s.authorized(s.handleMessages)).Methods(http.MethodGet)
	r.HandleFunc("/ws", s.authorized(s.handleWebSocket))
	return r
}

// Handler returns the HTTP handler serving every route.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Store returns the backing store.
func (s *Server) Store() *Store {
	return s.store
}

// Start listens on the configured address and serves in the background.
func (s *Server) Start() error {
	listener, err := net.Listen("tcp", s.address)
	if err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}
	s.listener = listener
	s.server = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.logger.Infow("Dev server started", "addr", listener.Addr().String())

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Errorw("Dev server failed", "error", err)
		}
	}()
	return nil
}

// Stop closes the listener and every live connection.
func (s *Server) Stop() {
	if s.server != nil {
		s.server.Close()
	}
	s.CloseClients()
	s.wg.Wait()
}

// CloseClients drops every live connection without stopping the server.
func (s *Server) CloseClients() {
	s.mu.Lock()
	for client := range s.clients {
		client.conn.Close()
	}
	s.mu.Unlock()
}

// Addr returns the server's listening address
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return ""
}

// URL returns the base HTTP URL of a started server.
func (s *Server) URL() string {
	return "http://" + s.Addr()
}

// ClientCount returns the number of connected clients
func (s *Server) ClientCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

// authorized rejects requests without a valid bearer token and passes the
// token subject on to next.
func (s *Server) authorized(next func(http.ResponseWriter, *http.Request, string)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		subject, err := s.tokens.Verify(token)
		if err != nil {
			s.logger.Debugw("Rejected token", "error", err)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r, subject)
	}
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var creds protocol.Credentials
	if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	if creds.Username == "" || len(creds.Password) < minPasswordLength {
		http.Error(w, "password too short", http.StatusBadRequest)
		return
	}
	if err := s.store.AddUser(creds.Username, creds.Password); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, ErrUserExists) {
			status = http.StatusBadRequest
		}
		http.Error(w, err.Error(), status)
		return
	}
	s.logger.Infow("User registered", "username", creds.Username)
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var creds protocol.Credentials
	if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	if err := s.store.CheckPassword(creds.Username, creds.Password); err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, ErrUnknownUser) {
			status = http.StatusInternalServerError
		}
		http.Error(w, err.Error(), status)
		return
	}
	token, err := s.tokens.Issue(creds.Username)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, token)
}

func (s *Server) handleUser(w http.ResponseWriter, r *http.Request) {
	username := mux.Vars(r)["username"]
	if !s.store.HasUser(username) {
		http.Error(w, ErrUnknownUser.Error(), http.StatusNotFound)
		return
	}
	writeJSON(w, protocol.User{Username: username})
}

func (s *Server) handleChats(w http.ResponseWriter, r *http.Request, subject string) {
	username := mux.Vars(r)["username"]
	if username != subject {
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}
	writeJSON(w, s.store.Chats(username))
}

func (s *Server) handleNewChat(w http.ResponseWriter, r *http.Request, subject string) {
	var req protocol.NewChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	if req.Owner != subject {
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}
	id, err := s.store.NewChat(req.Owner, req.Members)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.logger.Infow("Chat created", "id", id, "owner", req.Owner, "members", req.Members)
	writeJSON(w, id)
}

func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request, subject string) {
	msgs, err := s.store.Messages(mux.Vars(r)["id"], subject)
	switch {
	case errors.Is(err, ErrNotAMember):
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	case errors.Is(err, ErrUnknownChat):
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	case err != nil:
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, msgs)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
