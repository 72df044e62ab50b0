package config

import (
	"os"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Prompts is the prompt pack: the instructional preamble sent ahead of every
// generation request and the fallback reply substituted when generation fails.
type Prompts struct {
	SystemPrompt  string `yaml:"system_prompt"`
	FallbackReply string `yaml:"fallback_reply"`
}

// DefaultPrompts returns the built-in prompt pack used when no file is
// configured.
func DefaultPrompts() Prompts {
	return Prompts{
		SystemPrompt: "You are a customer support assistant. Answer questions about " +
			"orders, billing, and account issues concisely and politely. If you do " +
			"not know the answer, say so and suggest contacting a human agent.",
		FallbackReply: "Sorry, I'm having trouble answering right now. " +
			"Please try again in a moment, or reach our support team at support@example.com.",
	}
}

// LoadPrompts reads a prompt pack from path. An empty path yields the
// defaults; missing fields in the file fall back to the defaults as well.
func LoadPrompts(path string) (Prompts, error) {
	defaults := DefaultPrompts()
	if strings.TrimSpace(path) == "" {
		return defaults, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return Prompts{}, errors.Wrap(err, "prompts: read file")
	}
	p := Prompts{}
	if err := yaml.Unmarshal(raw, &p); err != nil {
		return Prompts{}, errors.Wrap(err, "prompts: parse yaml")
	}
	if strings.TrimSpace(p.SystemPrompt) == "" {
		p.SystemPrompt = defaults.SystemPrompt
	}
	if strings.TrimSpace(p.FallbackReply) == "" {
		p.FallbackReply = defaults.FallbackReply
	}
	return p, nil
}
