package cache_test

import (
	"testing"

	"github.com/omochice/toy-chat-client/internal/cache"
	"github.com/omochice/toy-chat-client/pkg/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ids(convs []cache.Conversation) []string {
	out := make([]string, 0, len(convs))
	for _, c := range convs {
		out = append(out, c.ID)
	}
	return out
}

func TestLabel(t *testing.T) {
	tests := []struct {
		name string
		chat protocol.Chat
		want string
	}{
		{
			name: "direct chat shows the other member",
			chat: protocol.Chat{ID: "c1", Owner: "alice", Members: []string{"alice", "bob"}},
			want: "bob",
		},
		{
			name: "member order does not matter",
			chat: protocol.Chat{ID: "c1", Owner: "bob", Members: []string{"bob", "alice"}},
			want: "bob",
		},
		{
			name: "two members both the viewer falls back to owner",
			chat: protocol.Chat{ID: "c1", Owner: "carol", Members: []string{"alice", "alice"}},
			want: "carol",
		},
		{
			name: "self chat",
			chat: protocol.Chat{ID: "c1", Owner: "alice", Members: []string{"alice"}},
			want: cache.LabelSelf,
		},
		{
			name: "group chat",
			chat: protocol.Chat{ID: "c1", Owner: "alice", Members: []string{"alice", "bob", "carol"}},
			want: cache.LabelGroup,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, cache.Label(tt.chat, "alice"))
		})
	}
}

func TestCache_ReplaceConversations(t *testing.T) {
	c := cache.New("alice")
	c.ReplaceConversations([]protocol.Chat{
		{ID: "c1", Owner: "alice", Members: []string{"alice", "bob"}},
		{ID: "c2", Owner: "alice", Members: []string{"alice"}},
		{ID: "c3", Owner: "bob", Members: []string{"alice", "bob", "carol"}},
	})
	c.AppendMessage(protocol.Message{From: "bob", ChatID: "c1", Text: "hi"})

	convs := c.Conversations()
	require.Len(t, convs, 3)
	assert.Equal(t, []string{"c1", "c2", "c3"}, ids(convs))
	assert.Equal(t, "bob", convs[0].Label)
	assert.Equal(t, cache.LabelSelf, convs[1].Label)
	assert.Equal(t, cache.LabelGroup, convs[2].Label)

	c.ReplaceConversations([]protocol.Chat{
		{ID: "c9", Owner: "dave", Members: []string{"alice", "dave"}},
	})
	assert.Equal(t, []string{"c9"}, ids(c.Conversations()))
	_, ok := c.Conversation("c1")
	assert.False(t, ok)
	assert.Len(t, c.Messages("c1"), 1, "messages survive a refetch of the list")
}

// Sending then receiving the server echo of the same message leaves one entry.
func TestCache_AppendMessageDeduplicates(t *testing.T) {
	c := cache.New("alice")
	msg := protocol.Message{From: "alice", ChatID: "c1", Text: "hello"}

	assert.True(t, c.AppendMessage(msg))
	assert.False(t, c.AppendMessage(msg))
	assert.Len(t, c.Messages("c1"), 1)

	// Same text from another sender is a different message.
	assert.True(t, c.AppendMessage(protocol.Message{From: "bob", ChatID: "c1", Text: "hello"}))
	// Same sender and text in another conversation is independent.
	assert.True(t, c.AppendMessage(protocol.Message{From: "alice", ChatID: "c2", Text: "hello"}))
	assert.Len(t, c.Messages("c1"), 2)
	assert.Len(t, c.Messages("c2"), 1)
}

func TestCache_AppendMessagePreservesOrder(t *testing.T) {
	c := cache.New("alice")
	for _, text := range []string{"one", "two", "three"} {
		require.True(t, c.AppendMessage(protocol.Message{From: "bob", ChatID: "c1", Text: text}))
	}

	var got []string
	for _, m := range c.Messages("c1") {
		got = append(got, m.Text)
	}
	assert.Equal(t, []string{"one", "two", "three"}, got)
}

func TestCache_MergeMessages(t *testing.T) {
	c := cache.New("alice")
	c.AppendMessage(protocol.Message{From: "alice", ChatID: "c1", Text: "sent"})
	c.AppendMessage(protocol.Message{From: "bob", ChatID: "c1", Text: "live"})

	c.MergeMessages("c1", []protocol.Message{
		{From: "bob", ChatID: "c1", Text: "a"},
		{From: "alice", ChatID: "c1", Text: "sent"},
		{From: "bob", ChatID: "other", Text: "b"},
		{From: "bob", ChatID: "c1", Text: "a"},
	})

	msgs := c.Messages("c1")
	var got []string
	for _, m := range msgs {
		got = append(got, m.Text)
		assert.Equal(t, "c1", m.ChatID)
	}
	assert.Equal(t, []string{"sent", "live", "a", "b"}, got, "cached messages are never dropped")

	c.MergeMessages("c2", []protocol.Message{{From: "bob", Text: "x"}})
	assert.Len(t, c.Messages("c2"), 1)
	assert.False(t, c.AppendMessage(protocol.Message{From: "bob", ChatID: "c1", Text: "a"}))
}

func TestCache_UpsertConversation(t *testing.T) {
	c := cache.New("alice")
	c.ReplaceConversations([]protocol.Chat{
		{ID: "c1", Owner: "alice", Members: []string{"alice", "bob"}},
	})
	c.SetPreview("c1", "last")

	c.UpsertConversation(protocol.Chat{ID: "c2", Owner: "alice", Members: []string{"alice", "carol"}})
	assert.Equal(t, []string{"c1", "c2"}, ids(c.Conversations()))

	c.UpsertConversation(protocol.Chat{ID: "c1", Owner: "bob", Members: []string{"alice", "bob"}})
	conv, ok := c.Conversation("c1")
	require.True(t, ok)
	assert.Equal(t, "bob", conv.Owner)
	assert.Equal(t, "last", conv.Preview)
	assert.Equal(t, 2, c.Len())
}

func TestCache_SetPreviewUnknownIsNoop(t *testing.T) {
	c := cache.New("alice")
	c.SetPreview("missing", "text")

	_, ok := c.Conversation("missing")
	assert.False(t, ok)
	assert.Zero(t, c.Len())
}

func TestCache_Touch(t *testing.T) {
	c := cache.New("alice")
	c.ReplaceConversations([]protocol.Chat{
		{ID: "c1", Members: []string{"alice", "bob"}},
		{ID: "c2", Members: []string{"alice", "carol"}},
		{ID: "c3", Members: []string{"alice", "dave"}},
	})

	c.Touch("c3")
	assert.Equal(t, []string{"c3", "c1", "c2"}, ids(c.Conversations()))

	c.Touch("c3")
	assert.Equal(t, []string{"c3", "c1", "c2"}, ids(c.Conversations()))

	c.Touch("c2")
	assert.Equal(t, []string{"c2", "c3", "c1"}, ids(c.Conversations()))

	c.Touch("unknown")
	assert.Equal(t, []string{"c2", "c3", "c1"}, ids(c.Conversations()))
}

func TestCache_FindDirect(t *testing.T) {
	c := cache.New("alice")
	c.ReplaceConversations([]protocol.Chat{
		{ID: "g1", Members: []string{"alice", "bob", "carol"}},
		{ID: "d1", Members: []string{"bob", "alice"}},
		{ID: "d2", Members: []string{"alice", "bob"}},
		{ID: "s1", Members: []string{"alice"}},
	})

	conv, ok := c.FindDirect("alice", "bob")
	require.True(t, ok)
	assert.Equal(t, "d1", conv.ID, "first match in presentation order wins")

	_, ok = c.FindDirect("alice", "carol")
	assert.False(t, ok)
}

func TestCache_ReturnsCopies(t *testing.T) {
	c := cache.New("alice")
	c.ReplaceConversations([]protocol.Chat{{ID: "c1", Members: []string{"alice", "bob"}}})
	c.AppendMessage(protocol.Message{From: "bob", ChatID: "c1", Text: "hi"})

	convs := c.Conversations()
	convs[0].Members[0] = "mallory"
	msgs := c.Messages("c1")
	msgs[0].Text = "changed"

	conv, _ := c.Conversation("c1")
	assert.Equal(t, "alice", conv.Members[0])
	assert.Equal(t, "hi", c.Messages("c1")[0].Text)
}
