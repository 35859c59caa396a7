// Package assistant provides the chat companion: a conversation model and
// pluggable responders.
package assistant

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one chat turn.
type Message struct {
	ID   string
	Role Role
	Text string
	At   time.Time
}

// Responder produces the assistant's reply to the latest user input given
// the conversation so far.
type Responder interface {
	Reply(ctx context.Context, history []Message, input string) (string, error)
}

// Conversation is an in-memory chat session.
type Conversation struct {
	ID       string
	Messages []Message
}

func NewConversation() *Conversation {
	return &Conversation{ID: uuid.NewString()}
}

// Append records a turn and returns it.
func (c *Conversation) Append(role Role, text string) Message {
	msg := Message{
		ID:   uuid.NewString(),
		Role: role,
		Text: text,
		At:   time.Now(),
	}

	c.Messages = append(c.Messages, msg)

	return msg
}
