// Package notify delivers merge notifications and run summaries to Telegram.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/juninmd/prpilot/internal/provider"
	"github.com/juninmd/prpilot/internal/triage"
)

// DefaultBaseURL is the Telegram Bot API endpoint.
const DefaultBaseURL = "https://api.telegram.org"

const (
	// maxMessageLen keeps each message under Telegram's 4096 character limit
	// with room for escaping.
	maxMessageLen = 3800
	// maxListed is how many PRs are listed per category in a summary.
	maxListed = 10
)

// httpClient is shared by every Telegram client.
var httpClient = &http.Client{Timeout: 15 * time.Second}

// Telegram sends messages through a bot to a single chat.
type Telegram struct {
	token   string
	chatID  string
	baseURL string
}

// NewTelegram returns a client for the bot token and chat. An empty baseURL
// means DefaultBaseURL.
func NewTelegram(token, chatID, baseURL string) *Telegram {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Telegram{token: token, chatID: chatID, baseURL: strings.TrimSuffix(baseURL, "/")}
}

// Enabled reports whether both credentials are set.
func (t *Telegram) Enabled() bool {
	return t.token != "" && t.chatID != ""
}

type inlineButton struct {
	Text string `json:"text"`
	URL  string `json:"url"`
}

type replyMarkup struct {
	InlineKeyboard [][]inlineButton `json:"inline_keyboard"`
}

type sendMessageRequest struct {
	ChatID                string       `json:"chat_id"`
	Text                  string       `json:"text"`
	ParseMode             string       `json:"parse_mode"`
	DisableWebPagePreview bool         `json:"disable_web_page_preview"`
	ReplyMarkup           *replyMarkup `json:"reply_markup,omitempty"`
}

// NotifyMerge announces a merged PR with a button linking to it.
func (t *Telegram) NotifyMerge(ctx context.Context, pr provider.PullRequest) error {
	text := fmt.Sprintf("🚀 *PR Merged\\!*\n\n*Título:* %s\n*Autor:* %s\n*Repo:* %s",
		Escape(pr.Title), Escape(pr.Author), Escape(pr.Repo))

	var markup *replyMarkup
	if pr.URL != "" {
		markup = &replyMarkup{InlineKeyboard: [][]inlineButton{{{Text: "🔗 Ver PR", URL: pr.URL}}}}
	}
	return t.send(ctx, text, markup)
}

// SendSummary sends the run report, split into several messages when long.
func (t *Telegram) SendSummary(ctx context.Context, result *triage.RunResult) error {
	for i, part := range Paginate(FormatSummary(result), maxMessageLen) {
		if err := t.send(ctx, part, nil); err != nil {
			return fmt.Errorf("sending summary part %d: %w", i+1, err)
		}
	}
	return nil
}

func (t *Telegram) send(ctx context.Context, text string, markup *replyMarkup) error {
	if !t.Enabled() {
		slog.Debug("telegram not configured, skipping message")
		return nil
	}

	body, err := json.Marshal(sendMessageRequest{
		ChatID:                t.chatID,
		Text:                  text,
		ParseMode:             "MarkdownV2",
		DisableWebPagePreview: true,
		ReplyMarkup:           markup,
	})
	if err != nil {
		return fmt.Errorf("marshaling telegram message: %w", err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	url := fmt.Sprintf("%s/bot%s/sendMessage", t.baseURL, t.token)
	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating telegram request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := httpClient.Do(req)
	if err != nil {
		// The URL carries the bot token; keep it out of the error.
		return fmt.Errorf("sending telegram message: %w", redact(err, t.token))
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("telegram returned status %d: %s", resp.StatusCode, string(respBody))
	}

	slog.Debug("telegram message sent", "length", len(text))
	return nil
}

type redactedError struct{ msg string }

func (e redactedError) Error() string { return e.msg }

func redact(err error, secret string) error {
	if secret == "" || !strings.Contains(err.Error(), secret) {
		return err
	}
	return redactedError{msg: strings.ReplaceAll(err.Error(), secret, "***")}
}
