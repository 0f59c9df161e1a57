package devserver

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/omochice/toy-chat-client/pkg/protocol"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrUserExists   = errors.New("user exists")
	ErrUnknownUser  = errors.New("user not found")
	ErrBadPassword  = errors.New("wrong password")
	ErrUnknownChat  = errors.New("chat not found")
	ErrNotAMember   = errors.New("not a member of this chat")
	ErrEmptyMembers = errors.New("chat needs at least one member")
)

// Store keeps users, chats and messages in memory.
type Store struct {
	mu       sync.RWMutex
	users    map[string][]byte
	chats    map[string]protocol.Chat
	order    []string
	messages map[string][]protocol.Message
	cost     int
	now      func() time.Time
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		users:    make(map[string][]byte),
		chats:    make(map[string]protocol.Chat),
		messages: make(map[string][]protocol.Message),
		cost:     bcrypt.DefaultCost,
		now:      time.Now,
	}
}

// AddUser registers username with a bcrypt hash of password.
func (s *Store) AddUser(username, password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[username]; ok {
		return ErrUserExists
	}
	s.users[username] = hash
	return nil
}

// CheckPassword verifies the credentials of username.
func (s *Store) CheckPassword(username, password string) error {
	s.mu.RLock()
	hash, ok := s.users[username]
	s.mu.RUnlock()
	if !ok {
		return ErrUnknownUser
	}
	if err := bcrypt.CompareHashAndPassword(hash, []byte(password)); err != nil {
		return ErrBadPassword
	}
	return nil
}

// HasUser reports whether username is registered.
func (s *Store) HasUser(username string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.users[username]
	return ok
}

// NewChat stores a chat and returns its generated id.
func (s *Store) NewChat(owner string, members []string) (string, error) {
	if len(members) == 0 {
		return "", ErrEmptyMembers
	}
	id := uuid.NewString()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chats[id] = protocol.Chat{ID: id, Owner: owner, Members: append([]string(nil), members...)}
	s.order = append(s.order, id)
	return id, nil
}

// Chat returns the chat with id.
func (s *Store) Chat(id string) (protocol.Chat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	chat, ok := s.chats[id]
	if !ok {
		return protocol.Chat{}, ErrUnknownChat
	}
	return chat, nil
}

// Chats lists the chats username belongs to in creation order.
func (s *Store) Chats(username string) []protocol.Chat {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []protocol.Chat{}
	for _, id := range s.order {
		if chat := s.chats[id]; isMember(chat, username) {
			out = append(out, chat)
		}
	}
	return out
}

// SaveMessage appends msg to its chat after checking the sender is a member.
// It returns the chat so the caller can fan the message out.
func (s *Store) SaveMessage(msg protocol.Message) (protocol.Chat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	chat, ok := s.chats[msg.ChatID]
	if !ok {
		return protocol.Chat{}, ErrUnknownChat
	}
	if !isMember(chat, msg.From) {
		return protocol.Chat{}, ErrNotAMember
	}
	msg.Time = s.now().UTC().Unix()
	s.messages[msg.ChatID] = append(s.messages[msg.ChatID], msg)
	return chat, nil
}

// Messages returns the history of chat id as seen by username.
func (s *Store) Messages(id, username string) ([]protocol.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	chat, ok := s.chats[id]
	if !ok {
		return nil, ErrUnknownChat
	}
	if !isMember(chat, username) {
		return nil, ErrNotAMember
	}
	out := make([]protocol.Message, len(s.messages[id]))
	copy(out, s.messages[id])
	return out, nil
}

func isMember(chat protocol.Chat, username string) bool {
	for _, m := range chat.Members {
		if m == username {
			return true
		}
	}
	return false
}
