package triage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/juninmd/prpilot/internal/conflict"
	"github.com/juninmd/prpilot/internal/provider"
	"github.com/juninmd/prpilot/internal/workspace"
)

const (
	// ConflictCommitMessage is the message of the commit carrying AI resolutions.
	ConflictCommitMessage = "fix: resolve merge conflicts via AI Agent"
	// ConflictFailureMarker identifies the conflict notice comment.
	ConflictFailureMarker = "Automatic conflict resolution failed"

	conflictTimeout = 10 * time.Minute
)

var (
	errNoWorkspace = errors.New("no workspace configured")
	errNoAssistant = errors.New("no AI assistant configured")
	errNoMarkers   = errors.New("unmerged file has no conflict markers")
)

// Workspace creates local working copies of a branch.
type Workspace interface {
	Clone(ctx context.Context, cloneURL, branch string) (Checkout, error)
}

// Checkout is a working copy scoped to one PR.
type Checkout interface {
	FetchUpstream(ctx context.Context, url, branch string) error
	Merge(ctx context.Context, ref string) ([]string, error)
	ReadFile(path string) ([]byte, error)
	WriteFile(path string, data []byte) error
	Stage(ctx context.Context, paths ...string) error
	Commit(ctx context.Context, message string) error
	Push(ctx context.Context) error
	Close() error
}

// GitWorkspace adapts a workspace.Manager to Workspace.
type GitWorkspace struct {
	Manager *workspace.Manager
}

func (g GitWorkspace) Clone(ctx context.Context, cloneURL, branch string) (Checkout, error) {
	c, err := g.Manager.Clone(ctx, cloneURL, branch)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// ResolveConflicts merges the base branch into the PR head, asks the assistant
// to rewrite every conflict block, and pushes the result. It returns the number
// of files resolved; a clean merge is pushed and reports zero.
func (e *Engine) ResolveConflicts(ctx context.Context, pr provider.PullRequest) (int, error) {
	if e.ws == nil {
		return 0, errNoWorkspace
	}
	if pr.HeadCloneURL == "" {
		return 0, errNoHeadRepo
	}

	ctx, cancel := context.WithTimeout(ctx, conflictTimeout)
	defer cancel()

	e.log.Info("starting conflict resolution", "repo", pr.Repo, "pr", pr.Number,
		"head", pr.HeadRepo+":"+pr.HeadBranch, "base", pr.BaseBranch)

	clone, err := e.ws.Clone(ctx, pr.HeadCloneURL, pr.HeadBranch)
	if err != nil {
		return 0, fmt.Errorf("cloning head: %w", err)
	}
	defer func() {
		if err := clone.Close(); err != nil {
			e.log.Warn("failed to remove clone", "repo", pr.Repo, "pr", pr.Number, "error", err)
		}
	}()

	if err := clone.FetchUpstream(ctx, pr.BaseCloneURL, pr.BaseBranch); err != nil {
		return 0, err
	}

	files, err := clone.Merge(ctx, workspace.UpstreamRemote+"/"+pr.BaseBranch)
	if err != nil {
		return 0, err
	}
	if len(files) == 0 {
		e.log.Info("base merged cleanly, pushing", "repo", pr.Repo, "pr", pr.Number)
		if err := clone.Push(ctx); err != nil {
			return 0, err
		}
		return 0, nil
	}

	if e.ai == nil {
		return 0, errNoAssistant
	}

	blocks := 0
	for _, path := range files {
		n, err := e.resolveFile(ctx, clone, path)
		if err != nil {
			return 0, fmt.Errorf("resolving %s: %w", path, err)
		}
		blocks += n
	}

	e.log.Warn("accepting AI conflict resolutions without build or test validation",
		"repo", pr.Repo, "pr", pr.Number, "files", files, "blocks", blocks)

	if err := clone.Stage(ctx, files...); err != nil {
		return 0, err
	}
	if err := clone.Commit(ctx, ConflictCommitMessage); err != nil {
		return 0, err
	}
	if err := clone.Push(ctx); err != nil {
		return 0, err
	}
	return len(files), nil
}

func (e *Engine) resolveFile(ctx context.Context, clone Checkout, path string) (int, error) {
	data, err := clone.ReadFile(path)
	if err != nil {
		return 0, err
	}
	resolved, n, err := conflict.Resolve(ctx, string(data), func(ctx context.Context, b conflict.Block) (string, error) {
		return e.ai.ResolveConflict(ctx, path, b)
	})
	if err != nil {
		return 0, err
	}
	if n == 0 {
		// Unmerged without markers: delete/modify or similar, which text resolution cannot fix.
		return 0, errNoMarkers
	}
	if err := clone.WriteFile(path, []byte(resolved)); err != nil {
		return 0, err
	}
	return n, nil
}

// handleConflicts runs ResolveConflicts and records the outcome. On failure a
// notice is posted once per PR.
func (e *Engine) handleConflicts(ctx context.Context, result *RunResult, pr provider.PullRequest) {
	files, err := e.ResolveConflicts(ctx, pr)
	if err != nil {
		e.log.Error("conflict resolution failed", "repo", pr.Repo, "pr", pr.Number, "error", err)
		if _, postErr := PostOnce(ctx, e.dir, pr, ConflictFailureMarker, func(context.Context) string {
			return conflictNotice(pr)
		}); postErr != nil {
			e.log.Error("failed to post conflict notice", "repo", pr.Repo, "pr", pr.Number, "error", postErr)
		}
		result.skip(pr, ReasonConflictResolutionFailed, err.Error())
		return
	}

	e.log.Info("conflicts resolved and pushed", "repo", pr.Repo, "pr", pr.Number, "files", files)
	entry := entryFor(pr)
	entry.Files = files
	result.Record(CategoryConflictsResolved, entry)
}

func conflictNotice(pr provider.PullRequest) string {
	return fmt.Sprintf("⚠️ %s.\n\n@%s, `%s` could not be merged into `%s` automatically. "+
		"Please resolve the conflicts manually.", ConflictFailureMarker, pr.Author, pr.BaseBranch, pr.HeadBranch)
}
