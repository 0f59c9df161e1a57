package client

import (
	"fmt"

	"github.com/omochice/toy-chat-client/pkg/protocol"
)

// OnOpen implements chat.Subscriber.
func (e *Engine) OnOpen() {
	e.logger.Infow("Live channel connected", "username", e.identity.Username)
	e.presenter.ShowInfo(AreaMessages, "Connected.")
}

// OnMessage implements chat.Subscriber. It routes one inbound frame into the
// cache and the presenter.
func (e *Engine) OnMessage(raw []byte) {
	var msg protocol.Message
	if err := msg.Decode(raw); err != nil {
		e.metrics.FramesDropped.Inc()
		e.logger.Warnw("Dropping inbound frame", "error", fmt.Errorf("%w: %w", ErrMalformedFrame, err), "size", len(raw))
		return
	}

	if e.cache.AppendMessage(msg) && msg.ChatID == e.selected {
		e.presenter.AppendMessage(msg, msg.From == e.identity.Username)
	}
	e.cache.SetPreview(msg.ChatID, msg.Text)
	e.cache.Touch(msg.ChatID)
	e.renderList()
}

// OnError implements chat.Subscriber.
func (e *Engine) OnError(err error) {
	e.logger.Warnw("Live channel error", "error", fmt.Errorf("%w: %w", ErrTransport, err))
	e.presenter.ShowError(AreaMessages, "WebSocket connection error. Real-time updates may fail.")
}

// OnClose implements chat.Subscriber.
func (e *Engine) OnClose(code int, reason string) {
	e.logger.Infow("Live channel disconnected", "code", code, "reason", reason)
	if e.identity.Valid() {
		e.presenter.ShowError(AreaMessages, "WebSocket disconnected. Attempting to reconnect...")
	}
}
