package inference

import (
	openai "github.com/sashabaranov/go-openai"

	"github.com/go-go-golems/supportchat/pkg/persistence/chatstore"
)

// BuildMessages renders the instructional preamble, the bounded history as
// alternating turns, and the (already validated and possibly truncated) user
// message into the request message list.
func BuildMessages(preamble string, history []chatstore.Message, userMessage string) []openai.ChatCompletionMessage {
	msgs := make([]openai.ChatCompletionMessage, 0, len(history)+2)
	if preamble != "" {
		msgs = append(msgs, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: preamble,
		})
	}
	for _, m := range history {
		role := openai.ChatMessageRoleUser
		if m.Sender == chatstore.SenderAI {
			role = openai.ChatMessageRoleAssistant
		}
		msgs = append(msgs, openai.ChatCompletionMessage{
			Role:    role,
			Content: m.Text,
		})
	}
	msgs = append(msgs, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: userMessage,
	})
	return msgs
}

// TruncateUserMessage bounds what gets sent to the provider. Messages longer
// than maxRunes are cut at the limit with a trailing ellipsis marker; this is
// silent from the caller's perspective, not an error.
func TruncateUserMessage(text string, maxRunes int) string {
	if maxRunes <= 0 {
		return text
	}
	runes := []rune(text)
	if len(runes) <= maxRunes {
		return text
	}
	return string(runes[:maxRunes]) + "…"
}
