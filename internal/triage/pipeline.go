package triage

import (
	"context"
	"fmt"
	"strings"

	"github.com/samber/lo"

	"github.com/juninmd/prpilot/internal/provider"
)

// PipelineFailureMarker identifies the pipeline failure comment. Its presence
// on a PR suppresses further failure comments.
const PipelineFailureMarker = "Pipeline failed with status:"

const pipelineFallbackHeader = "Pipeline Failure Detected"

// PipelineState is the aggregated CI state of a PR head.
type PipelineState int

const (
	PipelineUnknown PipelineState = iota
	PipelineSuccess
	PipelinePending
	PipelineFailure
)

func (s PipelineState) String() string {
	switch s {
	case PipelineSuccess:
		return "success"
	case PipelinePending:
		return "pending"
	case PipelineFailure:
		return "failure"
	default:
		return "unknown"
	}
}

// FailedCheck is one failing status or check run.
type FailedCheck struct {
	Name        string
	Description string
	URL         string
}

func (f FailedCheck) String() string {
	s := fmt.Sprintf("- %s: %s", f.Name, f.Description)
	if f.URL != "" {
		s += fmt.Sprintf(" (%s)", f.URL)
	}
	return s
}

// PipelineResult is the evaluated pipeline state with supporting detail.
type PipelineResult struct {
	State    PipelineState
	Failures []FailedCheck
	// Detail is a short human-readable explanation for non-success states.
	Detail string
}

// EvaluatePipeline combines the legacy commit status and the check runs of a
// commit. Failure in either wins over pending; no signals at all is success.
func EvaluatePipeline(status *provider.CombinedStatus, checks []provider.CheckRun) PipelineResult {
	var failures []FailedCheck
	var pending []string

	if status != nil && status.TotalCount > 0 {
		switch status.State {
		case "success", "neutral":
		case "failure", "error":
			failed := lo.Filter(status.Statuses, func(s provider.Status, _ int) bool {
				return s.State == "failure" || s.State == "error"
			})
			if len(failed) == 0 {
				failures = append(failures, FailedCheck{Name: "combined status", Description: status.State})
			}
			for _, s := range failed {
				failures = append(failures, FailedCheck{Name: s.Context, Description: s.Description, URL: s.TargetURL})
			}
		default:
			pending = append(pending, "legacy status "+status.State)
		}
	}

	for _, run := range checks {
		switch {
		case run.Status != "completed":
			pending = append(pending, run.Name)
		case run.Conclusion != "success" && run.Conclusion != "neutral" && run.Conclusion != "skipped":
			failures = append(failures, FailedCheck{Name: run.Name, Description: run.Conclusion, URL: run.URL})
		}
	}

	switch {
	case len(failures) > 0:
		return PipelineResult{
			State:    PipelineFailure,
			Failures: failures,
			Detail:   fmt.Sprintf("%d failing checks", len(failures)),
		}
	case len(pending) > 0:
		return PipelineResult{State: PipelinePending, Detail: "pending: " + strings.Join(pending, ", ")}
	default:
		return PipelineResult{State: PipelineSuccess}
	}
}

// checkPipeline fetches and evaluates the CI state of the PR head. Fetch
// errors yield PipelineUnknown.
func (e *Engine) checkPipeline(ctx context.Context, pr provider.PullRequest) PipelineResult {
	status, err := e.dir.GetCombinedStatus(ctx, pr.Repo, pr.HeadSHA)
	if err != nil {
		e.log.Warn("failed to get combined status", "repo", pr.Repo, "pr", pr.Number, "error", err)
		return PipelineResult{State: PipelineUnknown, Detail: "status unavailable: " + provider.Classify(err)}
	}
	checks, err := e.dir.ListCheckRuns(ctx, pr.Repo, pr.HeadSHA)
	if err != nil {
		e.log.Warn("failed to list check runs", "repo", pr.Repo, "pr", pr.Number, "error", err)
		return PipelineResult{State: PipelineUnknown, Detail: "check runs unavailable: " + provider.Classify(err)}
	}
	return EvaluatePipeline(status, checks)
}

// handlePipelineFailure posts the failure comment at most once per PR and
// records the PR under pipeline failures.
func (e *Engine) handlePipelineFailure(ctx context.Context, result *RunResult, pr provider.PullRequest, res PipelineResult) {
	failures := lo.Map(res.Failures, func(f FailedCheck, _ int) string { return f.String() })

	posted, err := PostOnce(ctx, e.dir, pr, PipelineFailureMarker, func(ctx context.Context) string {
		return e.pipelineComment(ctx, pr, failures)
	})
	switch {
	case err != nil:
		e.log.Error("failed to post pipeline failure comment", "repo", pr.Repo, "pr", pr.Number, "error", err)
	case posted:
		e.log.Info("posted pipeline failure comment", "repo", pr.Repo, "pr", pr.Number, "failures", len(failures))
	default:
		e.log.Info("pipeline failure already reported", "repo", pr.Repo, "pr", pr.Number)
	}

	entry := entryFor(pr)
	entry.Detail = strings.Join(failures, "\n")
	result.Record(CategoryPipelineFailures, entry)
}

// pipelineComment renders the failure comment. The AI explanation is optional;
// the marker line and failing checks are always included.
func (e *Engine) pipelineComment(ctx context.Context, pr provider.PullRequest, failures []string) string {
	intro := fmt.Sprintf("### ❌ %s\n\n@%s, the pipeline for this PR is failing. Please fix the checks below.", pipelineFallbackHeader, pr.Author)
	if e.ai != nil {
		text, err := e.ai.PipelineComment(ctx, pr, failures)
		if err != nil {
			e.log.Warn("AI pipeline comment unavailable, using template", "repo", pr.Repo, "pr", pr.Number, "error", err)
		} else {
			intro = text
		}
	}

	var b strings.Builder
	b.WriteString(intro)
	b.WriteString("\n\n")
	b.WriteString(PipelineFailureMarker)
	b.WriteString("\n")
	b.WriteString(strings.Join(failures, "\n"))
	return b.String()
}
