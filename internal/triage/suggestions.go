package triage

import (
	"context"
	"errors"
	"fmt"

	"github.com/samber/lo"

	"github.com/juninmd/prpilot/internal/provider"
	"github.com/juninmd/prpilot/internal/suggestion"
)

var errNoHeadRepo = errors.New("head repository is missing")

// ApplySuggestions commits the suggestion blocks left by review bots on pr,
// one commit per file. Comments already applied, as recorded by commit
// trailers, are skipped. Per-file failures are logged; the count of applied
// suggestions is returned.
func (e *Engine) ApplySuggestions(ctx context.Context, pr provider.PullRequest) (int, error) {
	comments, err := e.dir.ListReviewComments(ctx, pr.Repo, pr.Number)
	if err != nil {
		return 0, fmt.Errorf("listing review comments: %w", err)
	}

	candidates := lo.FilterMap(comments, func(c provider.ReviewComment, _ int) (suggestion.Suggestion, bool) {
		if e.bots.Classify(c.Author) != Trusted {
			return suggestion.Suggestion{}, false
		}
		if c.CommitID != "" && c.CommitID != pr.HeadSHA {
			// Anchored to another revision; its lines do not match the head read below.
			e.log.Debug("suggestion anchored to another commit", "repo", pr.Repo, "pr", pr.Number,
				"comment", c.ID, "commit", c.CommitID)
			return suggestion.Suggestion{}, false
		}
		return suggestion.FromComment(c.ID, c.Author, c.Path, c.StartLine, c.Line, c.Body)
	})
	if len(candidates) == 0 {
		return 0, nil
	}
	if pr.HeadRepo == "" {
		return 0, errNoHeadRepo
	}

	messages, err := e.dir.ListCommitMessages(ctx, pr.Repo, pr.Number)
	if err != nil {
		return 0, fmt.Errorf("listing commit messages: %w", err)
	}
	applied := suggestion.AppliedIDs(messages)

	pending := lo.Filter(candidates, func(s suggestion.Suggestion, _ int) bool {
		if applied[s.CommentID] {
			e.log.Debug("suggestion already applied", "repo", pr.Repo, "pr", pr.Number, "comment", s.CommentID)
			return false
		}
		return true
	})

	// Line numbers refer to the evaluated head, so each file is read once at
	// that SHA and all of its suggestions land in a single commit.
	byPath := lo.GroupBy(pending, func(s suggestion.Suggestion) string { return s.Path })
	paths := lo.Uniq(lo.Map(pending, func(s suggestion.Suggestion, _ int) string { return s.Path }))

	count := 0
	for _, path := range paths {
		n, err := e.applyFileSuggestions(ctx, pr, path, byPath[path])
		if err != nil {
			e.log.Warn("failed to apply suggestions", "repo", pr.Repo, "pr", pr.Number, "file", path, "error", err)
			continue
		}
		count += n
	}
	return count, nil
}

func (e *Engine) applyFileSuggestions(ctx context.Context, pr provider.PullRequest, path string, ss []suggestion.Suggestion) (int, error) {
	file, err := e.dir.GetFile(ctx, pr.HeadRepo, path, pr.HeadSHA)
	if err != nil {
		return 0, fmt.Errorf("reading %s: %w", path, err)
	}
	content, applied, skipped, err := suggestion.ApplyAll(file.Content, ss)
	if err != nil {
		return 0, err
	}
	for _, s := range skipped {
		e.log.Warn("suggestion overlaps another or is out of range", "repo", pr.Repo, "pr", pr.Number,
			"comment", s.CommentID, "file", path, "lines", fmt.Sprintf("%d-%d", s.StartLine, s.EndLine))
	}
	if len(applied) == 0 {
		return 0, nil
	}

	err = e.dir.UpdateFile(ctx, pr.HeadRepo, provider.FileChange{
		Path:    path,
		Branch:  pr.HeadBranch,
		SHA:     file.SHA,
		Content: content,
		Message: suggestion.CommitMessage(applied),
	})
	if err != nil {
		return 0, err
	}
	e.log.Info("applied review suggestions", "repo", pr.Repo, "pr", pr.Number, "file", path,
		"comments", lo.Map(applied, func(s suggestion.Suggestion, _ int) int64 { return s.CommentID }))
	return len(applied), nil
}
