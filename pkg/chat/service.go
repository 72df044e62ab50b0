package chat

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/supportchat/pkg/inference"
	"github.com/go-go-golems/supportchat/pkg/persistence/chatstore"
)

// MaxMessageChars is the inbound validation bound; requests above it are
// rejected before any mutation (the generator's own truncation guard covers
// other callers).
const MaxMessageChars = 2000

// DefaultFallbackReply is substituted when generation fails. It must stand on
// its own: the client cannot tell a fallback from a real model answer except by
// reading it.
const DefaultFallbackReply = "Sorry, I'm having trouble answering right now. " +
	"Please try again in a moment, or reach our support team at support@example.com."

// ErrInvalidRequest marks malformed or out-of-bounds client input. Always
// detected before any side effect.
var ErrInvalidRequest = errors.New("invalid request")

// ReplyGenerator is the generation surface the orchestrator consumes.
type ReplyGenerator interface {
	GenerateReply(ctx context.Context, userMessage string, history []chatstore.Message) (string, error)
}

// ServiceConfig wires the orchestrator's collaborators.
type ServiceConfig struct {
	Store         chatstore.ConversationStore
	Assembler     *ContextAssembler
	Generator     ReplyGenerator
	FallbackReply string
}

// Service implements the submit-message orchestration and the read-only
// transcript and stats operations.
type Service struct {
	store     chatstore.ConversationStore
	assembler *ContextAssembler
	generator ReplyGenerator
	fallback  string
}

func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Store == nil {
		return nil, errors.New("chat service: store is nil")
	}
	if cfg.Assembler == nil {
		return nil, errors.New("chat service: assembler is nil")
	}
	if cfg.Generator == nil {
		return nil, errors.New("chat service: generator is nil")
	}
	fallback := strings.TrimSpace(cfg.FallbackReply)
	if fallback == "" {
		fallback = DefaultFallbackReply
	}
	return &Service{
		store:     cfg.Store,
		assembler: cfg.Assembler,
		generator: cfg.Generator,
		fallback:  fallback,
	}, nil
}

type SubmitMessageInput struct {
	Message   string
	SessionID string
}

type SubmitMessageResult struct {
	Reply     string
	SessionID string
	// FellBack is true when the reply is the fixed fallback text rather than a
	// model answer. Not exposed over HTTP; the request still counts as delivered.
	FellBack bool
}

type Transcript struct {
	Conversation chatstore.Conversation
	Messages     []chatstore.Message
}

type Stats struct {
	Conversation chatstore.Conversation
	MessageCount int
}

// SubmitMessage runs one submit-message exchange to completion: validate,
// resolve the conversation, persist the user turn, generate within the bounded
// context window, persist the (real or fallback) AI turn. Generator failures
// never fail the request; exactly two messages are appended per delivered
// exchange either way.
func (s *Service) SubmitMessage(ctx context.Context, in SubmitMessageInput) (SubmitMessageResult, error) {
	if s == nil {
		return SubmitMessageResult{}, errors.New("chat service is not initialized")
	}
	message := strings.TrimSpace(in.Message)
	if message == "" {
		return SubmitMessageResult{}, errors.Wrap(ErrInvalidRequest, "message is empty")
	}
	if len([]rune(message)) > MaxMessageChars {
		return SubmitMessageResult{}, errors.Wrapf(ErrInvalidRequest, "message exceeds %d characters", MaxMessageChars)
	}
	sessionID := strings.TrimSpace(in.SessionID)
	if sessionID != "" {
		if _, err := uuid.Parse(sessionID); err != nil {
			return SubmitMessageResult{}, errors.Wrap(ErrInvalidRequest, "sessionId is not a valid identifier")
		}
	}

	if ctx == nil {
		ctx = context.Background()
	}
	// Once persistence starts the exchange runs to completion; caller
	// cancellation must not strand a user turn without its AI turn.
	opCtx := context.WithoutCancel(ctx)

	conv, err := s.store.GetOrCreateConversation(opCtx, sessionID)
	if err != nil {
		return SubmitMessageResult{}, errors.Wrap(err, "chat service: resolve conversation")
	}
	if sessionID != "" && conv.ID != sessionID {
		log.Debug().
			Str("component", "chat").
			Str("supplied_session_id", sessionID).
			Str("conv_id", conv.ID).
			Msg("unknown session id; started a new conversation")
	}

	userMsg, err := s.store.AddMessage(opCtx, conv.ID, chatstore.SenderUser, message)
	if err != nil {
		return SubmitMessageResult{}, errors.Wrap(err, "chat service: persist user message")
	}

	history, err := s.assembler.BuildContext(opCtx, conv.ID)
	if err != nil {
		return SubmitMessageResult{}, errors.Wrap(err, "chat service: build context")
	}
	// The window already contains the just-persisted user turn; the generator
	// receives it as the prompt, not as history.
	if n := len(history); n > 0 && history[n-1].ID == userMsg.ID {
		history = history[:n-1]
	}

	reply, genErr := s.generator.GenerateReply(opCtx, message, history)
	fellBack := false
	if genErr != nil {
		fellBack = true
		reply = s.fallback
		log.Warn().
			Str("component", "chat").
			Str("conv_id", conv.ID).
			Str("kind", string(inference.KindOf(genErr))).
			Msg("generation failed; substituting fallback reply")
	}

	if _, err := s.store.AddMessage(opCtx, conv.ID, chatstore.SenderAI, reply); err != nil {
		return SubmitMessageResult{}, errors.Wrap(err, "chat service: persist ai message")
	}

	return SubmitMessageResult{
		Reply:     reply,
		SessionID: conv.ID,
		FellBack:  fellBack,
	}, nil
}

// GetTranscript returns the conversation metadata plus its full ordered message
// history. Unlike the generation context this is never windowed.
func (s *Service) GetTranscript(ctx context.Context, sessionID string) (Transcript, error) {
	if s == nil {
		return Transcript{}, errors.New("chat service is not initialized")
	}
	sessionID = strings.TrimSpace(sessionID)
	if _, err := uuid.Parse(sessionID); err != nil {
		return Transcript{}, errors.Wrap(ErrInvalidRequest, "sessionId is not a valid identifier")
	}
	conv, err := s.store.GetConversation(ctx, sessionID)
	if err != nil {
		return Transcript{}, err
	}
	msgs, err := s.store.GetMessages(ctx, sessionID)
	if err != nil {
		return Transcript{}, errors.Wrap(err, "chat service: load transcript")
	}
	return Transcript{Conversation: conv, Messages: msgs}, nil
}

// GetStats returns conversation metadata and its message count.
func (s *Service) GetStats(ctx context.Context, sessionID string) (Stats, error) {
	if s == nil {
		return Stats{}, errors.New("chat service is not initialized")
	}
	sessionID = strings.TrimSpace(sessionID)
	if _, err := uuid.Parse(sessionID); err != nil {
		return Stats{}, errors.Wrap(ErrInvalidRequest, "sessionId is not a valid identifier")
	}
	conv, err := s.store.GetConversation(ctx, sessionID)
	if err != nil {
		return Stats{}, err
	}
	n, err := s.store.CountMessages(ctx, sessionID)
	if err != nil {
		return Stats{}, errors.Wrap(err, "chat service: count messages")
	}
	return Stats{Conversation: conv, MessageCount: n}, nil
}
