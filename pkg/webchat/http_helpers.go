package webchat

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/go-go-golems/supportchat/pkg/chat"
	"github.com/go-go-golems/supportchat/pkg/persistence/chatstore"
)

// ChatHTTPService describes the orchestration surface consumed by HTTP handlers.
type ChatHTTPService interface {
	SubmitMessage(ctx context.Context, in chat.SubmitMessageInput) (chat.SubmitMessageResult, error)
	GetTranscript(ctx context.Context, sessionID string) (chat.Transcript, error)
	GetStats(ctx context.Context, sessionID string) (chat.Stats, error)
}

// ChatMessageRequestBody is the expected JSON body for POST /chat/message.
type ChatMessageRequestBody struct {
	Message   string `json:"message"`
	SessionID string `json:"sessionId,omitempty"`
}

type ChatMessageResponseBody struct {
	Reply     string `json:"reply"`
	SessionID string `json:"sessionId"`
}

type HistoryResponseBody struct {
	SessionID string              `json:"sessionId"`
	CreatedAt time.Time           `json:"createdAt"`
	Messages  []chatstore.Message `json:"messages"`
}

type StatsResponseBody struct {
	SessionID    string    `json:"sessionId"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
	MessageCount int       `json:"messageCount"`
}

type errorResponseBody struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, status int, msg string, details string) {
	writeJSON(w, status, errorResponseBody{Error: msg, Details: details})
}

// writeServiceError maps orchestrator errors onto the HTTP taxonomy: invalid
// requests are 400, missing conversations 404, everything else is a storage or
// internal fault and the only class allowed to produce a 500.
func writeServiceError(w http.ResponseWriter, logger zerolog.Logger, err error) {
	switch {
	case errors.Is(err, chat.ErrInvalidRequest):
		writeJSONError(w, http.StatusBadRequest, "invalid request", invalidRequestDetails(err))
	case errors.Is(err, chatstore.ErrConversationNotFound):
		writeJSONError(w, http.StatusNotFound, "conversation not found", "")
	default:
		logger.Error().Err(err).Msg("chat request failed")
		writeJSONError(w, http.StatusInternalServerError, "internal error", "")
	}
}

func invalidRequestDetails(err error) string {
	if err == nil {
		return ""
	}
	return strings.TrimSuffix(err.Error(), ": "+chat.ErrInvalidRequest.Error())
}

// NewChatMessageHTTPHandler serves POST /chat/message. Generator failures are
// absorbed by the service into a fallback reply, so a delivered fallback is
// indistinguishable here from a real answer.
func NewChatMessageHTTPHandler(svc ChatHTTPService, logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if svc == nil {
			writeJSONError(w, http.StatusServiceUnavailable, "chat service not initialized", "")
			return
		}
		var body ChatMessageRequestBody
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid request", "body is not valid JSON")
			return
		}

		res, err := svc.SubmitMessage(req.Context(), chat.SubmitMessageInput{
			Message:   body.Message,
			SessionID: body.SessionID,
		})
		if err != nil {
			writeServiceError(w, logger, err)
			return
		}
		if res.FellBack {
			logger.Warn().Str("conv_id", res.SessionID).Msg("delivered with fallback reply")
		}
		writeJSON(w, http.StatusOK, ChatMessageResponseBody{
			Reply:     res.Reply,
			SessionID: res.SessionID,
		})
	}
}

// NewHistoryHTTPHandler serves GET /chat/history/{sessionId}: the full ordered
// transcript, never windowed.
func NewHistoryHTTPHandler(svc ChatHTTPService, logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if svc == nil {
			writeJSONError(w, http.StatusServiceUnavailable, "chat service not initialized", "")
			return
		}
		sessionID := strings.TrimSpace(req.PathValue("sessionId"))
		tr, err := svc.GetTranscript(req.Context(), sessionID)
		if err != nil {
			writeServiceError(w, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, HistoryResponseBody{
			SessionID: tr.Conversation.ID,
			CreatedAt: tr.Conversation.CreatedAt,
			Messages:  tr.Messages,
		})
	}
}

// NewStatsHTTPHandler serves GET /chat/stats/{sessionId}.
func NewStatsHTTPHandler(svc ChatHTTPService, logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if svc == nil {
			writeJSONError(w, http.StatusServiceUnavailable, "chat service not initialized", "")
			return
		}
		sessionID := strings.TrimSpace(req.PathValue("sessionId"))
		stats, err := svc.GetStats(req.Context(), sessionID)
		if err != nil {
			writeServiceError(w, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, StatsResponseBody{
			SessionID:    stats.Conversation.ID,
			CreatedAt:    stats.Conversation.CreatedAt,
			UpdatedAt:    stats.Conversation.UpdatedAt,
			MessageCount: stats.MessageCount,
		})
	}
}
