// Package llm provides the AI backends used to resolve conflict blocks and
// write pipeline failure comments.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Supported provider names.
const (
	ProviderGemini    = "gemini"
	ProviderAnthropic = "anthropic"
	ProviderOllama    = "ollama"
	ProviderCopilot   = "copilot"
)

// ErrNotConfigured is returned when no AI backend is available.
var ErrNotConfigured = errors.New("AI backend not configured")

// Completer sends a single prompt and returns the model's text reply.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Options selects and configures a backend.
type Options struct {
	Provider        string
	Model           string
	GeminiAPIKey    string
	AnthropicAPIKey string
	AnthropicURL    string
	OllamaBaseURL   string
}

// Default models per provider.
var defaultModels = map[string]string{
	ProviderGemini:    "gemini-2.5-flash",
	ProviderAnthropic: "claude-sonnet-4-5",
	ProviderOllama:    "llama3",
	ProviderCopilot:   "gpt-4.1",
}

// New builds the Completer named by opts.Provider. It returns
// ErrNotConfigured when the selected provider is missing its credentials.
func New(ctx context.Context, opts Options) (Completer, error) {
	provider := strings.ToLower(strings.TrimSpace(opts.Provider))
	if provider == "" {
		provider = ProviderGemini
	}
	model := opts.Model
	if model == "" {
		model = defaultModels[provider]
	}

	switch provider {
	case ProviderGemini:
		c, err := NewGeminiClient(ctx, opts.GeminiAPIKey, model)
		if err != nil {
			return nil, err
		}
		return c, nil
	case ProviderAnthropic:
		c, err := NewAnthropicClient(opts.AnthropicAPIKey, opts.AnthropicURL, model)
		if err != nil {
			return nil, err
		}
		return c, nil
	case ProviderOllama:
		return NewOllamaClient(opts.OllamaBaseURL, model), nil
	case ProviderCopilot:
		return NewCopilotClient(model), nil
	default:
		return nil, fmt.Errorf("unknown AI provider %q", opts.Provider)
	}
}
