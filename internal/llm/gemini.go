package llm

import (
	"context"
	"fmt"
	"log/slog"

	"google.golang.org/genai"
)

// GeminiClient completes prompts with the Gemini API.
type GeminiClient struct {
	client *genai.Client
	model  string
}

// NewGeminiClient creates a Gemini client. An empty apiKey yields ErrNotConfigured.
func NewGeminiClient(ctx context.Context, apiKey, model string) (*GeminiClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini: %w", ErrNotConfigured)
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}
	return &GeminiClient{client: client, model: model}, nil
}

func (g *GeminiClient) Complete(ctx context.Context, prompt string) (string, error) {
	slog.Debug("sending prompt to gemini", "model", g.model, "prompt_bytes", len(prompt))
	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), nil)
	if err != nil {
		return "", fmt.Errorf("gemini generate content: %w", err)
	}
	return resp.Text(), nil
}
