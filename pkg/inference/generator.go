package inference

import (
	"context"
	"net"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	openai "github.com/sashabaranov/go-openai"

	"github.com/go-go-golems/supportchat/pkg/persistence/chatstore"
)

const (
	// MaxUserMessageChars bounds what a single user turn may contribute to the
	// prompt; longer input is truncated, not rejected.
	MaxUserMessageChars = 2000

	DefaultModel          = "gpt-4o-mini"
	DefaultMaxReplyTokens = 500
	DefaultTemperature    = float32(0.7)
	DefaultRequestTimeout = 30 * time.Second
)

// Config holds the static generator configuration. None of it is tunable at
// call time.
type Config struct {
	APIKey         string
	BaseURL        string
	Model          string
	SystemPrompt   string
	MaxReplyTokens int
	Temperature    float32
	RequestTimeout time.Duration
}

// ReplyGenerator wraps the external chat-completions endpoint. It holds no
// conversation state; a reply is a function of (message, history) plus config.
//
// The client is constructed once at startup. Missing credentials do not fail
// construction — they are recorded in the handle and surfaced as an
// invalid-credentials failure on every call, so the rest of the system can
// start without the provider configured.
type ReplyGenerator struct {
	cfg     Config
	client  *openai.Client
	initErr error
}

func NewReplyGenerator(cfg Config) *ReplyGenerator {
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.MaxReplyTokens <= 0 {
		cfg.MaxReplyTokens = DefaultMaxReplyTokens
	}
	if cfg.Temperature <= 0 {
		cfg.Temperature = DefaultTemperature
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}

	g := &ReplyGenerator{cfg: cfg}
	if strings.TrimSpace(cfg.APIKey) == "" {
		g.initErr = errors.New("reply generator: missing api key")
		log.Warn().Str("component", "inference").Msg("no api key configured; generation will fail until one is provided")
		return g
	}
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if strings.TrimSpace(cfg.BaseURL) != "" {
		clientCfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	g.client = openai.NewClientWithConfig(clientCfg)
	return g
}

// GenerateReply produces the AI reply for userMessage given the bounded
// history window. It makes exactly one provider attempt within the configured
// timeout and returns *Error on any failure.
func (g *ReplyGenerator) GenerateReply(ctx context.Context, userMessage string, history []chatstore.Message) (string, error) {
	if g == nil {
		return "", newError(KindProviderError, errors.New("reply generator is nil"))
	}
	if strings.TrimSpace(userMessage) == "" {
		return "", newError(KindEmptyInput, nil)
	}
	if g.initErr != nil || g.client == nil {
		return "", newError(KindInvalidCredentials, g.initErr)
	}
	if ctx == nil {
		ctx = context.Background()
	}

	sent := TruncateUserMessage(userMessage, MaxUserMessageChars)

	callCtx, cancel := context.WithTimeout(ctx, g.cfg.RequestTimeout)
	defer cancel()

	resp, err := g.client.CreateChatCompletion(callCtx, openai.ChatCompletionRequest{
		Model:       g.cfg.Model,
		Messages:    BuildMessages(g.cfg.SystemPrompt, history, sent),
		MaxTokens:   g.cfg.MaxReplyTokens,
		Temperature: g.cfg.Temperature,
	})
	if err != nil {
		kind := classifyProviderError(err)
		log.Debug().Err(err).Str("component", "inference").Str("kind", string(kind)).Msg("chat completion failed")
		return "", newError(kind, err)
	}

	if len(resp.Choices) == 0 {
		return "", newError(KindEmptyResponse, nil)
	}
	reply := strings.TrimSpace(resp.Choices[0].Message.Content)
	if reply == "" {
		return "", newError(KindEmptyResponse, nil)
	}
	return reply, nil
}

func classifyProviderError(err error) Kind {
	if err == nil {
		return KindProviderError
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindTimeout
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr != nil {
		return kindForStatus(apiErr.HTTPStatusCode)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr != nil {
		return kindForStatus(reqErr.HTTPStatusCode)
	}
	return KindProviderError
}

func kindForStatus(status int) Kind {
	switch status {
	case 401, 403:
		return KindInvalidCredentials
	case 429:
		return KindRateLimited
	case 408, 504:
		return KindTimeout
	default:
		return KindProviderError
	}
}
