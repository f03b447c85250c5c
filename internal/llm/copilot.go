package llm

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	sdk "github.com/github/copilot-sdk/go"
)

// CopilotClient wraps the GitHub Copilot SDK. Each Complete call runs in a
// fresh session that is destroyed afterwards.
type CopilotClient struct {
	sdk     *sdk.Client
	model   string
	mu      sync.Mutex
	started bool
}

// NewCopilotClient creates a CopilotClient that uses the given model for all sessions.
func NewCopilotClient(model string) *CopilotClient {
	return &CopilotClient{model: model}
}

func (c *CopilotClient) start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started {
		return nil
	}
	c.sdk = sdk.NewClient(nil)
	if err := c.sdk.Start(ctx); err != nil {
		return fmt.Errorf("starting copilot SDK: %w", err)
	}
	c.started = true
	slog.Info("copilot LLM client started", "model", c.model)
	return nil
}

// Stop shuts down the SDK client.
func (c *CopilotClient) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.started {
		return nil
	}
	c.started = false
	return c.sdk.Stop()
}

func (c *CopilotClient) Complete(ctx context.Context, prompt string) (string, error) {
	if err := c.start(ctx); err != nil {
		return "", err
	}

	session, err := c.sdk.CreateSession(ctx, &sdk.SessionConfig{
		Model:               c.model,
		OnPermissionRequest: sdk.PermissionHandler.ApproveAll,
	})
	if err != nil {
		return "", fmt.Errorf("creating session: %w", err)
	}
	defer func() { _ = session.Destroy() }()

	slog.Debug("sending prompt via copilot SDK", "session", session.SessionID)
	resp, err := session.SendAndWait(ctx, sdk.MessageOptions{Prompt: prompt})
	if err != nil {
		return "", fmt.Errorf("sending prompt: %w", err)
	}

	var content string
	if resp != nil && resp.Data.Content != nil {
		content = *resp.Data.Content
	}
	return content, nil
}
