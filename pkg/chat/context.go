package chat

import (
	"context"

	"github.com/pkg/errors"

	"github.com/go-go-golems/supportchat/pkg/persistence/chatstore"
)

// DefaultContextWindow bounds how many trailing messages are handed to the
// generator per request, regardless of conversation length.
const DefaultContextWindow = 10

// ContextAssembler produces the bounded generation context for a conversation.
type ContextAssembler struct {
	store  chatstore.ConversationStore
	window int
}

func NewContextAssembler(store chatstore.ConversationStore, window int) (*ContextAssembler, error) {
	if store == nil {
		return nil, errors.New("context assembler: store is nil")
	}
	if window <= 0 {
		window = DefaultContextWindow
	}
	return &ContextAssembler{store: store, window: window}, nil
}

// BuildContext returns at most the last window messages of the conversation in
// chronological order, oldest of the window first.
func (a *ContextAssembler) BuildContext(ctx context.Context, conversationID string) ([]chatstore.Message, error) {
	if a == nil || a.store == nil {
		return nil, errors.New("context assembler: not initialized")
	}
	msgs, err := a.store.GetMessages(ctx, conversationID)
	if err != nil {
		return nil, errors.Wrap(err, "context assembler: load history")
	}
	if len(msgs) > a.window {
		msgs = msgs[len(msgs)-a.window:]
	}
	return msgs, nil
}
