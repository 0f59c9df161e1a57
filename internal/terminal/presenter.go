// Package terminal is a line-oriented front end for the chat engine.
package terminal

import (
	"fmt"
	"io"
	"sync"

	"github.com/omochice/toy-chat-client/internal/cache"
	"github.com/omochice/toy-chat-client/internal/client"
	"github.com/omochice/toy-chat-client/pkg/protocol"
)

// Presenter writes engine updates to w, one line per event.
type Presenter struct {
	mu    sync.Mutex
	w     io.Writer
	convs []cache.Conversation
}

var _ client.Presenter = (*Presenter)(nil)

// NewPresenter creates a Presenter writing to w.
func NewPresenter(w io.Writer) *Presenter {
	return &Presenter{w: w}
}

// Lookup returns the id of the conversation listed at position n, counted from 1.
func (p *Presenter) Lookup(n int) (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if n < 1 || n > len(p.convs) {
		return "", false
	}
	return p.convs[n-1].ID, true
}

func (p *Presenter) RenderConversations(convs []cache.Conversation, selected string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.convs = convs
	if len(convs) == 0 {
		fmt.Fprintln(p.w, "No chats yet. Use /open <username> to start one.")
		return
	}
	fmt.Fprintln(p.w, "Chats:")
	for i, c := range convs {
		marker := " "
		if c.ID == selected {
			marker = "*"
		}
		line := fmt.Sprintf("%s %d. %s", marker, i+1, c.Label)
		if c.Preview != "" {
			line += ": " + c.Preview
		}
		fmt.Fprintln(p.w, line)
	}
}

func (p *Presenter) RenderHeader(title string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.w, "== %s ==\n", title)
}

func (p *Presenter) RenderMessages(msgs []protocol.Message, viewer string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(msgs) == 0 {
		fmt.Fprintln(p.w, "(no messages)")
		return
	}
	for _, m := range msgs {
		p.writeMessage(m, m.From == viewer)
	}
}

func (p *Presenter) AppendMessage(msg protocol.Message, own bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.writeMessage(msg, own)
}

func (p *Presenter) writeMessage(msg protocol.Message, own bool) {
	from := msg.From
	if own {
		from = "you"
	}
	fmt.Fprintf(p.w, "[%s] %s\n", from, msg.Text)
}

func (p *Presenter) ShowError(area client.Area, text string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.w, "! %s: %s\n", area, text)
}

func (p *Presenter) ShowInfo(area client.Area, text string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.w, "- %s\n", text)
}

func (p *Presenter) PromptLogin() {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintln(p.w, "Not logged in. Use /login <username> <password> or /register <username> <password>.")
}
