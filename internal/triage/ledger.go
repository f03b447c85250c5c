package triage

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/rs/xid"
	"github.com/samber/lo"

	"github.com/juninmd/prpilot/internal/provider"
)

// Category is the bucket a processed PR lands in.
type Category string

const (
	CategoryMerged            Category = "merged"
	CategoryConflictsResolved Category = "conflicts_resolved"
	CategoryPipelineFailures  Category = "pipeline_failures"
	CategoryDrafts            Category = "drafts"
	CategorySkipped           Category = "skipped"
)

// Categories lists every category in report order.
var Categories = []Category{
	CategoryMerged,
	CategoryConflictsResolved,
	CategoryPipelineFailures,
	CategoryDrafts,
	CategorySkipped,
}

// SkipReason explains why a PR was recorded as skipped.
type SkipReason string

const (
	ReasonUntrustedAuthor          SkipReason = "untrusted_author"
	ReasonTooYoung                 SkipReason = "too_young"
	ReasonPipelinePending          SkipReason = "pipeline_pending"
	ReasonMergeabilityUnknown      SkipReason = "mergeability_unknown"
	ReasonConflictResolutionFailed SkipReason = "conflict_resolution_failed"
	ReasonMergeFailed              SkipReason = "merge_failed"
	ReasonError                    SkipReason = "error"
)

// Entry is one PR's outcome within a run.
type Entry struct {
	Repo   string     `yaml:"repo" json:"repo"`
	Number int        `yaml:"number" json:"number"`
	Title  string     `yaml:"title" json:"title"`
	URL    string     `yaml:"url" json:"url"`
	Author string     `yaml:"author" json:"author"`
	Reason SkipReason `yaml:"reason,omitempty" json:"reason,omitempty"`
	Detail string     `yaml:"detail,omitempty" json:"detail,omitempty"`
	Files  int        `yaml:"files,omitempty" json:"files,omitempty"`
}

func entryFor(pr provider.PullRequest) Entry {
	return Entry{
		Repo:   pr.Repo,
		Number: pr.Number,
		Title:  pr.Title,
		URL:    pr.URL,
		Author: pr.Author,
	}
}

// RunResult accumulates the outcome of one sweep. It is append-only while the
// run is in progress and read-only after Finish.
type RunResult struct {
	ID         string
	Owner      string
	StartedAt  time.Time
	FinishedAt time.Time
	TotalPRs   int

	Merged            []Entry
	ConflictsResolved []Entry
	PipelineFailures  []Entry
	Drafts            []Entry
	Skipped           []Entry
}

// NewRunResult starts a result for owner with a fresh run ID.
func NewRunResult(owner string, startedAt time.Time) *RunResult {
	return &RunResult{
		ID:        xid.New().String(),
		Owner:     owner,
		StartedAt: startedAt,
	}
}

// Record appends e to cat. Calls after Finish are ignored.
func (r *RunResult) Record(cat Category, e Entry) {
	if r.Finished() {
		slog.Warn("dropping entry recorded after run finished", "run", r.ID, "repo", e.Repo, "pr", e.Number)
		return
	}
	switch cat {
	case CategoryMerged:
		r.Merged = append(r.Merged, e)
	case CategoryConflictsResolved:
		r.ConflictsResolved = append(r.ConflictsResolved, e)
	case CategoryPipelineFailures:
		r.PipelineFailures = append(r.PipelineFailures, e)
	case CategoryDrafts:
		r.Drafts = append(r.Drafts, e)
	default:
		r.Skipped = append(r.Skipped, e)
	}
}

func (r *RunResult) skip(pr provider.PullRequest, reason SkipReason, detail string) {
	e := entryFor(pr)
	e.Reason = reason
	e.Detail = detail
	r.Record(CategorySkipped, e)
}

// Finish freezes the result.
func (r *RunResult) Finish(at time.Time) {
	if r.Finished() {
		return
	}
	r.FinishedAt = at
}

// Finished reports whether Finish has been called.
func (r *RunResult) Finished() bool {
	return !r.FinishedAt.IsZero()
}

// Duration is the wall time of a finished run.
func (r *RunResult) Duration() time.Duration {
	if !r.Finished() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// Entries returns the entries recorded under cat.
func (r *RunResult) Entries(cat Category) []Entry {
	switch cat {
	case CategoryMerged:
		return r.Merged
	case CategoryConflictsResolved:
		return r.ConflictsResolved
	case CategoryPipelineFailures:
		return r.PipelineFailures
	case CategoryDrafts:
		return r.Drafts
	case CategorySkipped:
		return r.Skipped
	}
	return nil
}

// Counts returns the number of entries per category.
func (r *RunResult) Counts() map[Category]int {
	return lo.SliceToMap(Categories, func(c Category) (Category, int) {
		return c, len(r.Entries(c))
	})
}

// Find locates the outcome recorded for a PR.
func (r *RunResult) Find(repo string, number int) (Category, Entry, bool) {
	for _, cat := range Categories {
		if e, ok := lo.Find(r.Entries(cat), func(e Entry) bool {
			return e.Repo == repo && e.Number == number
		}); ok {
			return cat, e, true
		}
	}
	return "", Entry{}, false
}

// SkipReasons counts skipped entries by reason.
func (r *RunResult) SkipReasons() map[SkipReason]int {
	return lo.CountValuesBy(r.Skipped, func(e Entry) SkipReason { return e.Reason })
}

// PostOnce posts a comment on pr unless an existing issue comment already
// contains marker. body is only rendered when a comment will be posted.
// A failure to list comments is returned without posting.
func PostOnce(ctx context.Context, dir provider.Directory, pr provider.PullRequest, marker string, body func(context.Context) string) (bool, error) {
	comments, err := dir.ListIssueComments(ctx, pr.Repo, pr.Number)
	if err != nil {
		return false, fmt.Errorf("listing comments for %s#%d: %w", pr.Repo, pr.Number, err)
	}
	if lo.ContainsBy(comments, func(c provider.Comment) bool {
		return strings.Contains(c.Body, marker)
	}) {
		slog.Debug("marker comment already present", "repo", pr.Repo, "pr", pr.Number, "marker", marker)
		return false, nil
	}

	if err := dir.PostComment(ctx, pr.Repo, pr.Number, body(ctx)); err != nil {
		return false, fmt.Errorf("posting comment on %s#%d: %w", pr.Repo, pr.Number, err)
	}
	return true, nil
}
