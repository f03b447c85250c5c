// Package triage decides, for every open pull request of an account, whether
// to merge it, resolve its conflicts, report a failing pipeline, or wait.
//
// A run is a single sequential sweep. Each PR passes through ordered guards:
// trust, age, draft, then a fresh read that branches on mergeability. Nothing
// is cached between runs; idempotence comes from markers left in PR comments
// and commit trailers.
package triage

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/juninmd/prpilot/internal/conflict"
	"github.com/juninmd/prpilot/internal/provider"
)

// Scan modes.
const (
	ScanRepositories = "repositories"
	ScanSearch       = "search"
)

// Assistant writes text that needs a language model.
type Assistant interface {
	ResolveConflict(ctx context.Context, path string, b conflict.Block) (string, error)
	PipelineComment(ctx context.Context, pr provider.PullRequest, failures []string) (string, error)
}

// Notifier delivers run notifications.
type Notifier interface {
	NotifyMerge(ctx context.Context, pr provider.PullRequest) error
	SendSummary(ctx context.Context, result *RunResult) error
}

// Searcher is implemented by directories that can list every open PR of an
// account in one query.
type Searcher interface {
	SearchOpenPullRequests(ctx context.Context, owner string) ([]provider.PullRequest, error)
}

// Options configures an Engine.
type Options struct {
	Owner          string
	ScanMode       string
	MinAge         time.Duration
	TrustedAuthors []string
	SuggestionBots []string
	// Now is the clock; nil means time.Now.
	Now func() time.Time
}

// Deps are the collaborators an Engine drives. Workspace, Assistant and
// Notifier may be nil.
type Deps struct {
	Directory provider.Directory
	Workspace Workspace
	Assistant Assistant
	Notifier  Notifier
}

// Engine runs triage sweeps.
type Engine struct {
	dir      provider.Directory
	ws       Workspace
	ai       Assistant
	notifier Notifier

	opts  Options
	trust TrustSet
	bots  TrustSet
	log   *slog.Logger
}

func NewEngine(deps Deps, opts Options) *Engine {
	if opts.ScanMode == "" {
		opts.ScanMode = ScanRepositories
	}
	if opts.MinAge <= 0 {
		opts.MinAge = DefaultMinAge
	}
	if opts.TrustedAuthors == nil {
		opts.TrustedAuthors = DefaultTrustedAuthors
	}
	if opts.SuggestionBots == nil {
		opts.SuggestionBots = DefaultSuggestionBots
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	notifier := deps.Notifier
	if notifier == nil {
		notifier = nopNotifier{}
	}
	return &Engine{
		dir:      deps.Directory,
		ws:       deps.Workspace,
		ai:       deps.Assistant,
		notifier: notifier,
		opts:     opts,
		trust:    NewTrustSet(opts.TrustedAuthors),
		bots:     NewTrustSet(opts.SuggestionBots),
		log:      slog.Default(),
	}
}

// Run performs one sweep over the owner's open PRs. An error is returned only
// when the PRs could not be discovered or ctx was cancelled; per-PR failures
// are recorded in the result.
func (e *Engine) Run(ctx context.Context) (*RunResult, error) {
	result := NewRunResult(e.opts.Owner, e.opts.Now())
	e.log = slog.Default().With("run", result.ID)
	e.log.Info("starting triage run", "owner", e.opts.Owner, "scan", e.opts.ScanMode, "min_age", e.opts.MinAge)

	prs, err := e.discover(ctx)
	if err != nil {
		result.Finish(e.opts.Now())
		return result, err
	}
	result.TotalPRs = len(prs)
	e.log.Info("discovered open pull requests", "count", len(prs))

	for _, pr := range prs {
		if ctx.Err() != nil {
			e.log.Warn("run cancelled", "error", ctx.Err())
			break
		}
		e.processSafely(ctx, result, pr)
	}

	result.Finish(e.opts.Now())
	counts := result.Counts()
	e.log.Info("triage run complete",
		"merged", counts[CategoryMerged],
		"conflicts_resolved", counts[CategoryConflictsResolved],
		"pipeline_failures", counts[CategoryPipelineFailures],
		"drafts", counts[CategoryDrafts],
		"skipped", counts[CategorySkipped],
		"duration", result.Duration())

	if err := e.notifier.SendSummary(ctx, result); err != nil {
		e.log.Warn("failed to send run summary", "error", err)
	}
	return result, ctx.Err()
}

func (e *Engine) discover(ctx context.Context) ([]provider.PullRequest, error) {
	switch e.opts.ScanMode {
	case ScanSearch:
		searcher, ok := e.dir.(Searcher)
		if !ok {
			return nil, fmt.Errorf("scan mode %q is not supported by this provider", ScanSearch)
		}
		prs, err := searcher.SearchOpenPullRequests(ctx, e.opts.Owner)
		if err != nil {
			return nil, fmt.Errorf("searching open pull requests: %w", err)
		}
		return prs, nil
	case ScanRepositories:
		return e.discoverByRepository(ctx)
	default:
		return nil, fmt.Errorf("unknown scan mode %q", e.opts.ScanMode)
	}
}

func (e *Engine) discoverByRepository(ctx context.Context) ([]provider.PullRequest, error) {
	repos, err := e.dir.ListRepositories(ctx, e.opts.Owner)
	if err != nil {
		return nil, fmt.Errorf("listing repositories: %w", err)
	}

	var prs []provider.PullRequest
	for _, repo := range repos {
		if repo.Archived {
			continue
		}
		open, err := e.dir.ListOpenPullRequests(ctx, repo)
		if err != nil {
			e.log.Error("failed to list pull requests", "repo", repo.FullName(), "error", err)
			continue
		}
		prs = append(prs, open...)
	}
	return prs, nil
}

// processSafely handles one PR, converting a panic into a skipped entry.
func (e *Engine) processSafely(ctx context.Context, result *RunResult, pr provider.PullRequest) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Error("panic while processing pull request", "repo", pr.Repo, "pr", pr.Number, "panic", r)
			result.skip(pr, ReasonError, fmt.Sprintf("panic: %v", r))
		}
	}()
	e.process(ctx, result, pr)
}

func (e *Engine) process(ctx context.Context, result *RunResult, pr provider.PullRequest) {
	log := e.log.With("repo", pr.Repo, "pr", pr.Number)
	log.Debug("evaluating pull request", "author", pr.Author, "title", pr.Title)

	trust := e.trust.Classify(pr.Author)
	if trust != Trusted {
		log.Info("skipping untrusted author", "author", pr.Author)
		result.skip(pr, ReasonUntrustedAuthor, pr.Author)
		return
	}

	now := e.opts.Now()
	if !IsMature(pr.CreatedAt, now, e.opts.MinAge) {
		minutes := elapsedMinutes(pr.CreatedAt, now)
		log.Info("pull request too young", "minutes", minutes)
		result.skip(pr, ReasonTooYoung, fmt.Sprintf("%d minutes old", minutes))
		return
	}

	if pr.Draft {
		log.Info("draft pull request")
		result.Record(CategoryDrafts, entryFor(pr))
		return
	}

	fresh, err := e.dir.GetPullRequest(ctx, pr.Repo, pr.Number)
	if err != nil {
		e.recordError(result, pr, "fetching pull request", err)
		return
	}

	applied, err := e.ApplySuggestions(ctx, *fresh)
	switch {
	case err != nil:
		log.Warn("suggestion applicator failed", "error", err)
	case applied > 0:
		// The head moved and CI has not reported on it yet; the next run
		// evaluates the new commit.
		log.Info("applied review suggestions, waiting for CI", "count", applied)
		result.skip(*fresh, ReasonPipelinePending, fmt.Sprintf("%d suggestions applied, awaiting CI", applied))
		return
	}

	switch fresh.Mergeable {
	case provider.MergeableFalse:
		e.handleConflicts(ctx, result, *fresh)
	case provider.MergeableUnknown:
		log.Info("mergeability not yet computed")
		result.skip(*fresh, ReasonMergeabilityUnknown, "")
	case provider.MergeableTrue:
		pipeline := e.checkPipeline(ctx, *fresh)
		log.Info("pipeline evaluated", "state", pipeline.State)
		switch pipeline.State {
		case PipelineSuccess:
			e.mergeAndNotify(ctx, result, *fresh, e.trust.Classify(fresh.Author), pipeline)
		case PipelineFailure:
			e.handlePipelineFailure(ctx, result, *fresh, pipeline)
		default:
			result.skip(*fresh, ReasonPipelinePending, pipeline.Detail)
		}
	}
}

func (e *Engine) recordError(result *RunResult, pr provider.PullRequest, op string, err error) {
	class := provider.Classify(err)
	e.log.Error("pull request handling failed", "repo", pr.Repo, "pr", pr.Number, "op", op, "class", class, "error", err)
	result.skip(pr, ReasonError, fmt.Sprintf("%s: %s: %v", class, op, err))
}

type nopNotifier struct{}

func (nopNotifier) NotifyMerge(context.Context, provider.PullRequest) error { return nil }
func (nopNotifier) SendSummary(context.Context, *RunResult) error           { return nil }
