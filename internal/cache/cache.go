// Package cache holds the client's view of conversations and their messages.
//
// A Cache is not safe for concurrent use; the engine mutates it from its
// dispatch loop only.
package cache

import (
	"github.com/omochice/toy-chat-client/pkg/protocol"
)

const (
	// LabelSelf labels a conversation whose only member is the viewer.
	LabelSelf = "self"
	// LabelGroup labels conversations with three or more members.
	LabelGroup = "Group Chat"
)

// Conversation is a cached chat record plus its derived fields.
type Conversation struct {
	ID      string
	Owner   string
	Members []string
	Label   string
	Preview string
}

type dedupKey struct {
	from string
	text string
}

type thread struct {
	messages []protocol.Message
	seen     map[dedupKey]struct{}
}

func newThread() *thread {
	return &thread{seen: make(map[dedupKey]struct{})}
}

func (t *thread) append(msg protocol.Message) bool {
	key := dedupKey{from: msg.From, text: msg.Text}
	if _, ok := t.seen[key]; ok {
		return false
	}
	t.seen[key] = struct{}{}
	t.messages = append(t.messages, msg)
	return true
}

// Cache maps conversation ids to conversations and their ordered messages.
type Cache struct {
	viewer        string
	order         []string
	conversations map[string]*Conversation
	threads       map[string]*thread
}

// New creates an empty cache labelled from viewer's point of view.
func New(viewer string) *Cache {
	return &Cache{
		viewer:        viewer,
		conversations: make(map[string]*Conversation),
		threads:       make(map[string]*thread),
	}
}

// Viewer returns the username labels are computed against.
func (c *Cache) Viewer() string {
	return c.viewer
}

// Label derives the display label of a chat for viewer.
func Label(chat protocol.Chat, viewer string) string {
	switch len(chat.Members) {
	case 1:
		return LabelSelf
	case 2:
		for _, m := range chat.Members {
			if m != viewer {
				return m
			}
		}
		return chat.Owner
	default:
		return LabelGroup
	}
}

// ReplaceConversations discards every cached conversation and loads chats
// in server order. Message sequences are kept; a fresh cache is built per login.
func (c *Cache) ReplaceConversations(chats []protocol.Chat) {
	c.order = c.order[:0]
	c.conversations = make(map[string]*Conversation, len(chats))
	for _, chat := range chats {
		if _, dup := c.conversations[chat.ID]; !dup {
			c.order = append(c.order, chat.ID)
		}
		c.conversations[chat.ID] = c.toConversation(chat)
	}
}

// UpsertConversation inserts chat at the end of the order or replaces the
// existing record with the same id, keeping its preview.
func (c *Cache) UpsertConversation(chat protocol.Chat) {
	conv := c.toConversation(chat)
	if old, ok := c.conversations[chat.ID]; ok {
		conv.Preview = old.Preview
		c.conversations[chat.ID] = conv
		return
	}
	c.conversations[chat.ID] = conv
	c.order = append(c.order, chat.ID)
}

// AppendMessage adds msg to its conversation's sequence unless a message
// with the same sender and text is already there. It reports whether the
// message was appended.
func (c *Cache) AppendMessage(msg protocol.Message) bool {
	t, ok := c.threads[msg.ChatID]
	if !ok {
		t = newThread()
		c.threads[msg.ChatID] = t
	}
	return t.append(msg)
}

// MergeMessages appends fetched history to the sequence of id in the given
// order, skipping messages already present. Messages cached earlier keep
// their position.
func (c *Cache) MergeMessages(id string, msgs []protocol.Message) {
	t, ok := c.threads[id]
	if !ok {
		t = newThread()
		c.threads[id] = t
	}
	for _, msg := range msgs {
		msg.ChatID = id
		t.append(msg)
	}
}

// SetPreview records text as the last-message preview. Unknown ids are ignored.
func (c *Cache) SetPreview(id, text string) {
	if conv, ok := c.conversations[id]; ok {
		conv.Preview = text
	}
}

// Touch moves a known conversation to the front of the order.
func (c *Cache) Touch(id string) {
	if _, ok := c.conversations[id]; !ok {
		return
	}
	for i, v := range c.order {
		if v != id {
			continue
		}
		copy(c.order[1:i+1], c.order[:i])
		c.order[0] = id
		return
	}
}

// FindDirect returns the first two-member conversation between a and b.
func (c *Cache) FindDirect(a, b string) (Conversation, bool) {
	for _, id := range c.order {
		conv := c.conversations[id]
		if len(conv.Members) != 2 {
			continue
		}
		m0, m1 := conv.Members[0], conv.Members[1]
		if (m0 == a && m1 == b) || (m0 == b && m1 == a) {
			return copyConversation(conv), true
		}
	}
	return Conversation{}, false
}

// Conversation returns a copy of the record with id.
func (c *Cache) Conversation(id string) (Conversation, bool) {
	conv, ok := c.conversations[id]
	if !ok {
		return Conversation{}, false
	}
	return copyConversation(conv), true
}

// Conversations returns copies of every conversation in presentation order.
func (c *Cache) Conversations() []Conversation {
	out := make([]Conversation, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, copyConversation(c.conversations[id]))
	}
	return out
}

// Messages returns a copy of the message sequence of id.
func (c *Cache) Messages(id string) []protocol.Message {
	t, ok := c.threads[id]
	if !ok {
		return nil
	}
	out := make([]protocol.Message, len(t.messages))
	copy(out, t.messages)
	return out
}

// Len returns the number of cached conversations.
func (c *Cache) Len() int {
	return len(c.order)
}

func (c *Cache) toConversation(chat protocol.Chat) *Conversation {
	members := make([]string, len(chat.Members))
	copy(members, chat.Members)
	return &Conversation{
		ID:      chat.ID,
		Owner:   chat.Owner,
		Members: members,
		Label:   Label(chat, c.viewer),
	}
}

func copyConversation(conv *Conversation) Conversation {
	out := *conv
	out.Members = append([]string(nil), conv.Members...)
	return out
}
