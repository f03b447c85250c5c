package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/juninmd/prpilot/internal/conflict"
	"github.com/juninmd/prpilot/internal/prompts"
	"github.com/juninmd/prpilot/internal/provider"
)

var errEmptyReply = errors.New("model returned an empty reply")

// Assistant turns domain requests into prompts for a Completer.
type Assistant struct {
	completer Completer
}

// NewAssistant wraps c. A nil Completer makes every call return ErrNotConfigured.
func NewAssistant(c Completer) *Assistant {
	return &Assistant{completer: c}
}

// ResolveConflict asks the model for a replacement of block b in path. The
// reply has any code fence removed; trailing whitespace is left to the caller.
func (a *Assistant) ResolveConflict(ctx context.Context, path string, b conflict.Block) (string, error) {
	if a.completer == nil {
		return "", ErrNotConfigured
	}

	prompt, err := prompts.Execute(prompts.ConflictResolve, map[string]string{
		"file_path":    path,
		"ours_label":   b.OursLabel,
		"theirs_label": b.TheirsLabel,
		"ours":         strings.TrimSuffix(b.Ours, "\n"),
		"theirs":       strings.TrimSuffix(b.Theirs, "\n"),
		"base":         strings.TrimSuffix(b.Base, "\n"),
		"before":       strings.TrimSuffix(b.Before, "\n"),
		"after":        strings.TrimSuffix(b.After, "\n"),
	})
	if err != nil {
		return "", err
	}

	reply, err := a.completer.Complete(ctx, prompt)
	if err != nil {
		return "", fmt.Errorf("resolving conflict in %s: %w", path, err)
	}
	slog.Debug("conflict resolution received", "file", path, "reply", truncate(oneLine(reply), 200))
	return ExtractCode(reply), nil
}

// PipelineComment asks the model to explain failing checks to the PR author.
func (a *Assistant) PipelineComment(ctx context.Context, pr provider.PullRequest, failures []string) (string, error) {
	if a.completer == nil {
		return "", ErrNotConfigured
	}

	prompt, err := prompts.Execute(prompts.PipelineFailure, map[string]string{
		"repo":      pr.Repo,
		"pr_number": strconv.Itoa(pr.Number),
		"pr_title":  pr.Title,
		"author":    pr.Author,
		"failures":  strings.Join(failures, "\n"),
	})
	if err != nil {
		return "", err
	}

	reply, err := a.completer.Complete(ctx, prompt)
	if err != nil {
		return "", fmt.Errorf("writing pipeline comment: %w", err)
	}
	reply = strings.TrimSpace(reply)
	if reply == "" {
		return "", errEmptyReply
	}
	return reply, nil
}
