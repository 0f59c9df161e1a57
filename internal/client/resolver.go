package client

import (
	"context"
	"fmt"
	"strings"

	"github.com/omochice/toy-chat-client/internal/api"
	"github.com/omochice/toy-chat-client/pkg/protocol"
)

// ResolveOrCreate returns the id of the direct conversation with target,
// creating it on the server when none is cached. Searching for oneself or
// for nobody fails with ErrInvalidTarget before any request is made.
func (e *Engine) ResolveOrCreate(ctx context.Context, target string) (string, error) {
	target = strings.TrimSpace(target)

	var g guard
	err := e.call(ctx, func() error {
		if !e.identity.Valid() {
			return ErrNotLoggedIn
		}
		switch target {
		case "":
			e.presenter.ShowError(AreaSearch, "Please enter a username to search.")
			return ErrInvalidTarget
		case e.identity.Username:
			e.presenter.ShowError(AreaSearch, "You cannot start a chat with yourself using search.")
			return ErrInvalidTarget
		}
		g = e.guard()
		return nil
	})
	if err != nil {
		return "", err
	}

	_, lookupErr := e.api.GetUser(ctx, target)

	var id string
	err = e.call(ctx, func() error {
		if !e.current(g) {
			return ErrNotLoggedIn
		}
		if lookupErr != nil {
			if api.IsNotFound(lookupErr) {
				e.presenter.ShowError(AreaSearch, fmt.Sprintf("User '%s' not found.", target))
				return fmt.Errorf("%w: %s", ErrUserNotFound, target)
			}
			return e.failRequest(AreaSearch, "Error searching for user: ", lookupErr)
		}
		if conv, ok := e.cache.FindDirect(g.identity.Username, target); ok {
			e.presenter.ShowInfo(AreaSearch, fmt.Sprintf("Chat with '%s' already exists. Opening...", target))
			id = conv.ID
			return nil
		}
		e.presenter.ShowInfo(AreaSearch, fmt.Sprintf("Starting new chat with '%s'...", target))
		return nil
	})
	if err != nil || id != "" {
		return id, err
	}

	req := protocol.NewChatRequest{
		Owner:   g.identity.Username,
		Members: []string{g.identity.Username, target},
	}
	newID, createErr := e.api.NewChat(ctx, req)

	err = e.call(ctx, func() error {
		if !e.current(g) {
			return ErrNotLoggedIn
		}
		if createErr != nil {
			err := e.failRequest(AreaSearch, "Failed to create chat: ", createErr)
			return fmt.Errorf("%w: %w", ErrCreateFailed, err)
		}
		e.cache.UpsertConversation(protocol.Chat{ID: newID, Owner: req.Owner, Members: req.Members})
		e.presenter.ShowInfo(AreaSearch, "Chat created successfully.")
		e.renderList()
		return nil
	})
	if err != nil {
		return "", err
	}
	e.logger.Infow("Chat created", "chat_id", newID, "with", target)
	return newID, nil
}

// OpenDirect resolves the direct conversation with target and selects it.
func (e *Engine) OpenDirect(ctx context.Context, target string) (string, error) {
	id, err := e.ResolveOrCreate(ctx, target)
	if err != nil {
		return "", err
	}
	return id, e.Select(ctx, id)
}
