// Package protocol defines the records exchanged with the chat server,
// both over the live channel and the REST endpoints.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrMissingField is returned by Decode when a frame parses but lacks one
// of the required fields.
var ErrMissingField = errors.New("missing required field")

// Message represents a chat message as sent and received on the live channel
// and as returned by the history endpoint.
type Message struct {
	From   string `json:"from"`
	ChatID string `json:"chat_id"`
	Text   string `json:"text"`
	// Time is the server's Unix timestamp, set on stored history only.
	Time int64 `json:"time,omitempty"`
}

// Encode encodes the message into a JSON frame
func (m *Message) Encode() ([]byte, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("failed to encode message: %w", err)
	}
	return data, nil
}

// Decode decodes a JSON frame into the message.
// A frame without sender, chat id or text is rejected.
func (m *Message) Decode(data []byte) error {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return fmt.Errorf("failed to decode message: %w", err)
	}
	if err := msg.Validate(); err != nil {
		return err
	}
	*m = msg
	return nil
}

// Validate reports whether all required fields are present.
func (m *Message) Validate() error {
	switch {
	case m.From == "":
		return fmt.Errorf("%w: from", ErrMissingField)
	case m.ChatID == "":
		return fmt.Errorf("%w: chat_id", ErrMissingField)
	case m.Text == "":
		return fmt.Errorf("%w: text", ErrMissingField)
	}
	return nil
}

// Chat is a conversation record as returned by the server.
type Chat struct {
	ID      string   `json:"id"`
	Members []string `json:"members"`
	Owner   string   `json:"owner"`
}

// NewChatRequest is the body of a conversation creation request.
type NewChatRequest struct {
	Owner   string   `json:"owner"`
	Members []string `json:"members"`
}

// Credentials is the body of login and registration requests.
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// User is the record returned by the user lookup endpoint.
type User struct {
	ID       string `json:"id,omitempty"`
	Username string `json:"username"`
}
