package client

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/omochice/toy-chat-client/internal/session"
	"github.com/omochice/toy-chat-client/pkg/protocol"
)

// Submit sends text to the selected conversation and echoes it locally
// before any acknowledgment. Empty text is ignored with ErrEmptyMessage and
// no presenter call. Without an open channel a connection attempt is
// started and ErrNotConnected is returned; nothing is queued.
func (e *Engine) Submit(ctx context.Context, text string) error {
	return e.call(ctx, func() error {
		return e.submit(text)
	})
}

func (e *Engine) submit(text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyMessage
	}
	if e.selected == "" {
		e.presenter.ShowError(AreaMessages, "No active chat selected.")
		return ErrNoActiveConversation
	}
	if e.sess.State() != session.Open {
		e.presenter.ShowError(AreaMessages, "WebSocket is not connected. Cannot send message.")
		e.connect()
		return ErrNotConnected
	}

	msg := protocol.Message{
		From:   e.identity.Username,
		ChatID: e.selected,
		Text:   text,
	}
	data, err := msg.Encode()
	if err != nil {
		return err
	}
	if err := e.sess.Send(data); err != nil {
		e.presenter.ShowError(AreaMessages, "Failed to send message: "+err.Error())
		if errors.Is(err, session.ErrNotConnected) {
			return err
		}
		return fmt.Errorf("%w: %w", ErrTransport, err)
	}
	e.metrics.MessagesSent.Inc()

	if e.cache.AppendMessage(msg) {
		e.presenter.AppendMessage(msg, true)
	}
	e.cache.SetPreview(msg.ChatID, msg.Text)
	e.cache.Touch(msg.ChatID)
	e.renderList()
	return nil
}
