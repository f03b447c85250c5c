package triage

import (
	"context"
	"fmt"

	"github.com/juninmd/prpilot/internal/provider"
)

// merge merges pr after re-checking that it is trusted, mergeable and green.
// The head SHA the pipeline was evaluated against is sent as a guard.
func (e *Engine) merge(ctx context.Context, pr provider.PullRequest, trust Trust, mergeable provider.Mergeable, pipeline PipelineResult) error {
	if trust != Trusted || mergeable != provider.MergeableTrue || pipeline.State != PipelineSuccess {
		return fmt.Errorf("merge preconditions not met: trust=%s mergeable=%s pipeline=%s", trust, mergeable, pipeline.State)
	}
	if err := e.dir.Merge(ctx, pr.Repo, pr.Number, pr.HeadSHA); err != nil {
		return fmt.Errorf("merging %s#%d: %w", pr.Repo, pr.Number, err)
	}
	return nil
}

func (e *Engine) mergeAndNotify(ctx context.Context, result *RunResult, pr provider.PullRequest, trust Trust, pipeline PipelineResult) {
	if err := e.merge(ctx, pr, trust, pr.Mergeable, pipeline); err != nil {
		e.log.Error("merge failed", "repo", pr.Repo, "pr", pr.Number, "error", err)
		result.skip(pr, ReasonMergeFailed, err.Error())
		return
	}

	e.log.Info("merged pull request", "repo", pr.Repo, "pr", pr.Number, "title", pr.Title)
	result.Record(CategoryMerged, entryFor(pr))

	if err := e.notifier.NotifyMerge(ctx, pr); err != nil {
		e.log.Warn("failed to send merge notification", "repo", pr.Repo, "pr", pr.Number, "error", err)
	}
}
