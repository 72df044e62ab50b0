package chatstore

import (
	"context"
	"time"

	"github.com/pkg/errors"
)

// Sender identifies which side of the exchange authored a message.
type Sender string

const (
	SenderUser Sender = "user"
	SenderAI   Sender = "ai"
)

// Valid reports whether s is one of the known senders.
func (s Sender) Valid() bool {
	return s == SenderUser || s == SenderAI
}

// Conversation is a persisted thread of messages identified by an opaque id.
type Conversation struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Message is one turn inside a conversation. Timestamp is immutable once set.
type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversationId"`
	Sender         Sender    `json:"sender"`
	Text           string    `json:"text"`
	Timestamp      time.Time `json:"timestamp"`
}

// ErrConversationNotFound is returned when a conversation id does not resolve.
// It is a valid outcome callers branch on with errors.Is, not an infrastructure fault.
var ErrConversationNotFound = errors.New("conversation not found")

// ConversationStore persists conversations and their ordered messages.
//
// AddMessage must be atomic with respect to the parent conversation's UpdatedAt:
// no reader may observe the message without the bumped timestamp or vice versa.
type ConversationStore interface {
	CreateConversation(ctx context.Context) (Conversation, error)
	GetConversation(ctx context.Context, id string) (Conversation, error)
	GetOrCreateConversation(ctx context.Context, id string) (Conversation, error)
	AddMessage(ctx context.Context, conversationID string, sender Sender, text string) (Message, error)
	GetMessages(ctx context.Context, conversationID string) ([]Message, error)
	CountMessages(ctx context.Context, conversationID string) (int, error)
	Close() error
}
