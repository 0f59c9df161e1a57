package client

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/omochice/toy-chat-client/internal/api"
	"github.com/omochice/toy-chat-client/internal/auth"
)

const minPasswordLength = 8

// Login authenticates, stores the identity and starts the session.
func (e *Engine) Login(ctx context.Context, username, password string) error {
	username = strings.TrimSpace(username)
	password = strings.TrimSpace(password)
	if username == "" || password == "" {
		e.showError(ctx, AreaLogin, "Username and password are required.")
		return fmt.Errorf("%w: username and password are required", ErrInvalidInput)
	}

	token, err := e.api.Login(ctx, username, password)
	if err != nil {
		e.showError(ctx, AreaLogin, "Login failed: "+errorText(err))
		return fmt.Errorf("login failed: %w", err)
	}

	id := auth.Identity{Token: token, Username: username}
	err = e.call(ctx, func() error {
		if err := auth.Save(e.store, id); err != nil {
			e.presenter.ShowError(AreaLogin, "Login failed: could not store credentials.")
			return err
		}
		e.beginSession(id)
		return nil
	})
	if err != nil {
		return err
	}
	e.logger.Infow("Logged in", "username", username)
	return e.FetchConversations(ctx)
}

// Register creates an account. The user still has to log in afterwards.
func (e *Engine) Register(ctx context.Context, username, password, confirm string) error {
	username = strings.TrimSpace(username)
	var problem string
	switch {
	case username == "" || password == "" || confirm == "":
		problem = "All fields are required."
	case len(password) < minPasswordLength:
		problem = fmt.Sprintf("Password must be at least %d characters long.", minPasswordLength)
	case password != confirm:
		problem = "Passwords do not match."
	}
	if problem != "" {
		e.showError(ctx, AreaRegister, problem)
		return fmt.Errorf("%w: %s", ErrInvalidInput, problem)
	}

	if err := e.api.Register(ctx, username, password); err != nil {
		e.showError(ctx, AreaRegister, "Registration failed: "+errorText(err))
		return fmt.Errorf("registration failed: %w", err)
	}
	return e.do(ctx, func() {
		e.presenter.ShowInfo(AreaRegister, "Registration successful! Please login.")
	})
}

// Restore resumes the session saved in the credential store. It reports
// false and prompts for login when nothing usable is stored.
func (e *Engine) Restore(ctx context.Context) (bool, error) {
	var restored bool
	err := e.call(ctx, func() error {
		id, ok, err := auth.Load(e.store)
		if err != nil {
			return err
		}
		if !ok {
			e.presenter.PromptLogin()
			return nil
		}
		if auth.Expired(id.Token, e.now()) {
			e.identity = id
			e.forceLogout("token expired")
			return ErrAuthExpired
		}
		e.beginSession(id)
		restored = true
		return nil
	})
	if err != nil || !restored {
		return false, err
	}
	return true, e.FetchConversations(ctx)
}

// Logout ends the session. The pending reconnect is cancelled and the live
// channel closed before the identity is cleared.
func (e *Engine) Logout(ctx context.Context) error {
	return e.do(ctx, func() {
		e.logger.Infow("Logging out", "username", e.identity.Username)
		e.logout()
	})
}

// FetchConversations replaces the cached conversation list with the server's.
func (e *Engine) FetchConversations(ctx context.Context) error {
	var g guard
	err := e.call(ctx, func() error {
		if !e.identity.Valid() {
			return ErrNotLoggedIn
		}
		g = e.guard()
		return nil
	})
	if err != nil {
		return err
	}

	chats, fetchErr := e.api.GetChats(ctx, g.identity.Username)

	return e.call(ctx, func() error {
		if !e.current(g) {
			return ErrNotLoggedIn
		}
		if fetchErr != nil {
			return e.failRequest(AreaChats, "Failed to load chats: ", fetchErr)
		}
		e.cache.ReplaceConversations(chats)
		e.renderList()
		return nil
	})
}

// Select makes id the active conversation and merges in its history. Selecting
// the active conversation again does nothing. History that arrives after
// the selection moved on is discarded.
func (e *Engine) Select(ctx context.Context, id string) error {
	var (
		g    guard
		noop bool
	)
	err := e.call(ctx, func() error {
		if !e.identity.Valid() {
			return ErrNotLoggedIn
		}
		if id == e.selected {
			noop = true
			return nil
		}
		e.selected = id
		title := "Chat " + shortID(id)
		if conv, ok := e.cache.Conversation(id); ok {
			title = conv.Label
		}
		e.presenter.RenderHeader(title)
		e.renderList()
		e.presenter.RenderMessages(e.cache.Messages(id), e.identity.Username)
		g = e.guard()
		return nil
	})
	if err != nil || noop {
		return err
	}

	msgs, fetchErr := e.api.GetMessages(ctx, id)

	return e.call(ctx, func() error {
		if !e.current(g) || e.selected != id {
			e.logger.Debugw("Discarding stale history", "chat_id", id)
			return nil
		}
		if fetchErr != nil {
			if api.IsForbidden(fetchErr) {
				e.presenter.ShowError(AreaMessages, "You are not authorized to view this chat.")
				return fmt.Errorf("%w: %w", ErrForbidden, fetchErr)
			}
			return e.failRequest(AreaMessages, "Failed to load messages: ", fetchErr)
		}
		e.cache.MergeMessages(id, msgs)
		e.presenter.RenderMessages(e.cache.Messages(id), e.identity.Username)
		return nil
	})
}

func (e *Engine) showError(ctx context.Context, area Area, text string) {
	if err := e.do(ctx, func() { e.presenter.ShowError(area, text) }); err != nil && !errors.Is(err, ErrStopped) {
		e.logger.Debugw("Could not show error", "area", area, "error", err)
	}
}

func shortID(id string) string {
	if len(id) > 6 {
		return id[:6]
	}
	return id
}
