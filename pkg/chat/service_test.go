package chat

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/go-go-golems/supportchat/pkg/persistence/chatstore"
)

type stubGenerator struct {
	reply       string
	err         error
	calls       int
	lastMessage string
	lastHistory []chatstore.Message
}

func (g *stubGenerator) GenerateReply(_ context.Context, userMessage string, history []chatstore.Message) (string, error) {
	g.calls++
	g.lastMessage = userMessage
	g.lastHistory = history
	if g.err != nil {
		return "", g.err
	}
	return g.reply, nil
}

// countingStore wraps a real store to observe mutation attempts.
type countingStore struct {
	chatstore.ConversationStore
	creates int
	appends int
}

func (s *countingStore) CreateConversation(ctx context.Context) (chatstore.Conversation, error) {
	s.creates++
	return s.ConversationStore.CreateConversation(ctx)
}

func (s *countingStore) GetOrCreateConversation(ctx context.Context, id string) (chatstore.Conversation, error) {
	if id != "" {
		conv, err := s.GetConversation(ctx, id)
		if err == nil {
			return conv, nil
		}
		if !errors.Is(err, chatstore.ErrConversationNotFound) {
			return chatstore.Conversation{}, err
		}
	}
	return s.CreateConversation(ctx)
}

func (s *countingStore) AddMessage(ctx context.Context, conversationID string, sender chatstore.Sender, text string) (chatstore.Message, error) {
	s.appends++
	return s.ConversationStore.AddMessage(ctx, conversationID, sender, text)
}

func newTestService(t *testing.T, gen *stubGenerator) (*Service, *countingStore) {
	t.Helper()
	store := &countingStore{ConversationStore: newTestStore(t)}
	assembler, err := NewContextAssembler(store, DefaultContextWindow)
	require.NoError(t, err)
	svc, err := NewService(ServiceConfig{
		Store:     store,
		Assembler: assembler,
		Generator: gen,
	})
	require.NoError(t, err)
	return svc, store
}

func TestSubmitMessage_Delivered(t *testing.T) {
	gen := &stubGenerator{reply: "happy to help"}
	svc, store := newTestService(t, gen)
	ctx := context.Background()

	res, err := svc.SubmitMessage(ctx, SubmitMessageInput{Message: "where is my order?"})
	require.NoError(t, err)
	require.Equal(t, "happy to help", res.Reply)
	require.False(t, res.FellBack)
	_, err = uuid.Parse(res.SessionID)
	require.NoError(t, err)

	msgs, err := store.GetMessages(ctx, res.SessionID)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	require.Equal(t, chatstore.SenderUser, msgs[0].Sender)
	require.Equal(t, "where is my order?", msgs[0].Text)
	require.Equal(t, chatstore.SenderAI, msgs[1].Sender)
	require.Equal(t, "happy to help", msgs[1].Text)
}

func TestSubmitMessage_SessionResolutionIsIdempotent(t *testing.T) {
	gen := &stubGenerator{reply: "ok"}
	svc, store := newTestService(t, gen)
	ctx := context.Background()

	first, err := svc.SubmitMessage(ctx, SubmitMessageInput{Message: "hello"})
	require.NoError(t, err)
	second, err := svc.SubmitMessage(ctx, SubmitMessageInput{Message: "again", SessionID: first.SessionID})
	require.NoError(t, err)

	require.Equal(t, first.SessionID, second.SessionID)
	require.Equal(t, 1, store.creates)

	msgs, err := store.GetMessages(ctx, first.SessionID)
	require.NoError(t, err)
	require.Len(t, msgs, 4)
}

func TestSubmitMessage_UnknownSessionCreatesNewConversation(t *testing.T) {
	gen := &stubGenerator{reply: "ok"}
	svc, store := newTestService(t, gen)

	stale := uuid.NewString()
	res, err := svc.SubmitMessage(context.Background(), SubmitMessageInput{Message: "hi", SessionID: stale})
	require.NoError(t, err)
	require.NotEqual(t, stale, res.SessionID)
	require.Equal(t, 1, store.creates)
}

func TestSubmitMessage_ValidationRejectsWithoutSideEffects(t *testing.T) {
	cases := []struct {
		name string
		in   SubmitMessageInput
	}{
		{name: "empty message", in: SubmitMessageInput{Message: "   "}},
		{name: "oversized message", in: SubmitMessageInput{Message: strings.Repeat("x", MaxMessageChars+1)}},
		{name: "malformed session id", in: SubmitMessageInput{Message: "hi", SessionID: "not-a-uuid"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			gen := &stubGenerator{reply: "ok"}
			svc, store := newTestService(t, gen)

			_, err := svc.SubmitMessage(context.Background(), tc.in)
			require.ErrorIs(t, err, ErrInvalidRequest)
			require.Equal(t, 0, store.creates)
			require.Equal(t, 0, store.appends)
			require.Equal(t, 0, gen.calls)
		})
	}
}

func TestSubmitMessage_GeneratorFailureFallsBack(t *testing.T) {
	gen := &stubGenerator{err: errors.New("provider exploded")}
	svc, store := newTestService(t, gen)
	ctx := context.Background()

	res, err := svc.SubmitMessage(ctx, SubmitMessageInput{Message: "help me"})
	require.NoError(t, err)
	require.True(t, res.FellBack)
	require.Equal(t, DefaultFallbackReply, res.Reply)

	msgs, err := store.GetMessages(ctx, res.SessionID)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	require.Equal(t, "help me", msgs[0].Text)
	require.Equal(t, DefaultFallbackReply, msgs[1].Text)
}

func TestSubmitMessage_GeneratorContextIsBounded(t *testing.T) {
	gen := &stubGenerator{reply: "ok"}
	svc, _ := newTestService(t, gen)
	ctx := context.Background()

	var sessionID string
	for i := 0; i < 15; i++ {
		res, err := svc.SubmitMessage(ctx, SubmitMessageInput{Message: fmt.Sprintf("question %d", i), SessionID: sessionID})
		require.NoError(t, err)
		sessionID = res.SessionID
	}

	// 28 prior messages exist at the 15th call; the window hands the generator
	// at most the last 10, and the just-persisted user turn travels as the
	// prompt, not as history.
	require.LessOrEqual(t, len(gen.lastHistory), DefaultContextWindow-1)
	require.Equal(t, "question 14", gen.lastMessage)
	for _, m := range gen.lastHistory {
		require.NotEqual(t, gen.lastMessage, m.Text)
	}
	for i := 1; i < len(gen.lastHistory); i++ {
		require.False(t, gen.lastHistory[i].Timestamp.Before(gen.lastHistory[i-1].Timestamp))
	}
}

func TestGetTranscript(t *testing.T) {
	gen := &stubGenerator{reply: "sure"}
	svc, _ := newTestService(t, gen)
	ctx := context.Background()

	_, err := svc.GetTranscript(ctx, "bogus")
	require.ErrorIs(t, err, ErrInvalidRequest)

	_, err = svc.GetTranscript(ctx, uuid.NewString())
	require.ErrorIs(t, err, chatstore.ErrConversationNotFound)

	res, err := svc.SubmitMessage(ctx, SubmitMessageInput{Message: "hello"})
	require.NoError(t, err)

	tr, err := svc.GetTranscript(ctx, res.SessionID)
	require.NoError(t, err)
	require.Equal(t, res.SessionID, tr.Conversation.ID)
	require.Len(t, tr.Messages, 2)
	for _, m := range tr.Messages {
		require.Equal(t, res.SessionID, m.ConversationID)
	}
	require.Equal(t, chatstore.SenderUser, tr.Messages[0].Sender)
	require.Equal(t, chatstore.SenderAI, tr.Messages[1].Sender)
}

func TestGetStats(t *testing.T) {
	gen := &stubGenerator{reply: "sure"}
	svc, _ := newTestService(t, gen)
	ctx := context.Background()

	res, err := svc.SubmitMessage(ctx, SubmitMessageInput{Message: "hello"})
	require.NoError(t, err)

	stats, err := svc.GetStats(ctx, res.SessionID)
	require.NoError(t, err)
	require.Equal(t, 2, stats.MessageCount)
	require.Equal(t, res.SessionID, stats.Conversation.ID)
}
