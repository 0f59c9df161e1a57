// Package client is the chat session engine. It keeps the local cache in
// step with the server, owns the live channel through a session and hands
// every change to a Presenter.
//
// All state is owned by Engine.Run. The exported operations may be called
// from any goroutine; they post their cache work to the loop and do network
// requests on the caller's goroutine.
package client

import (
	"context"
	"errors"

	"github.com/omochice/toy-chat-client/internal/cache"
	"github.com/omochice/toy-chat-client/internal/session"
	"github.com/omochice/toy-chat-client/pkg/protocol"
)

var (
	// ErrNotConnected is returned by Submit when the live channel is not open.
	ErrNotConnected = session.ErrNotConnected
	// ErrNoActiveConversation is returned by Submit when no conversation is selected.
	ErrNoActiveConversation = errors.New("no active conversation")
	// ErrEmptyMessage is returned by Submit for blank text. Nothing is shown.
	ErrEmptyMessage = errors.New("empty message")
	// ErrInvalidTarget is returned by ResolveOrCreate for an empty or own username.
	ErrInvalidTarget = errors.New("invalid chat target")
	// ErrUserNotFound is returned by ResolveOrCreate when the lookup finds nobody.
	ErrUserNotFound = errors.New("user not found")
	// ErrCreateFailed wraps a failed conversation creation.
	ErrCreateFailed = errors.New("failed to create chat")
	// ErrAuthExpired wraps a rejected token. The session has been logged out.
	ErrAuthExpired = errors.New("authentication expired")
	// ErrForbidden is returned by Select when the server refuses the history.
	ErrForbidden = errors.New("not authorized to view this chat")
	// ErrMalformedFrame marks an inbound frame that was dropped.
	ErrMalformedFrame = errors.New("malformed frame")
	// ErrTransport wraps a live channel failure, including a failed write.
	ErrTransport = errors.New("transport error")
	// ErrInvalidInput is returned when login or registration fields fail validation.
	ErrInvalidInput = errors.New("invalid input")
	// ErrNotLoggedIn is returned by operations that need an identity.
	ErrNotLoggedIn = errors.New("not logged in")
	// ErrStopped is returned once Run has exited.
	ErrStopped = errors.New("engine stopped")
)

// Area is the part of the presentation an error or notice belongs to.
type Area string

const (
	AreaLogin    Area = "login"
	AreaRegister Area = "register"
	AreaChats    Area = "chats"
	AreaMessages Area = "messages"
	AreaSearch   Area = "search"
)

// Presenter receives state changes. Its methods are called from the engine
// loop, one at a time.
type Presenter interface {
	RenderConversations(convs []cache.Conversation, selected string)
	RenderHeader(title string)
	// RenderMessages replaces the visible messages. Messages sent by viewer
	// are the user's own.
	RenderMessages(msgs []protocol.Message, viewer string)
	AppendMessage(msg protocol.Message, own bool)
	ShowError(area Area, text string)
	ShowInfo(area Area, text string)
	PromptLogin()
}

// API is the subset of the REST client the engine uses.
type API interface {
	Login(ctx context.Context, username, password string) (string, error)
	Register(ctx context.Context, username, password string) error
	GetUser(ctx context.Context, username string) (protocol.User, error)
	GetChats(ctx context.Context, username string) ([]protocol.Chat, error)
	NewChat(ctx context.Context, req protocol.NewChatRequest) (string, error)
	GetMessages(ctx context.Context, chatID string) ([]protocol.Message, error)
}
