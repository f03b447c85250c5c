package github

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	github_ratelimit "github.com/gofri/go-github-ratelimit/v2/github_ratelimit"
	gh "github.com/google/go-github/v82/github"
	"github.com/shurcooL/githubv4"
	"golang.org/x/oauth2"

	"github.com/juninmd/prpilot/internal/provider"
)

// Backend implements provider.Directory for GitHub.
type Backend struct {
	client      *gh.Client
	gqlOnce     sync.Once
	gqlClient   *githubv4.Client
	token       string
	mergeMethod string
}

// NewBackend creates a GitHub backend authenticated with token.
// Uses go-github-ratelimit middleware for automatic secondary rate limit handling.
func NewBackend(token, mergeMethod string) *Backend {
	rateLimiter := github_ratelimit.NewClient(nil)
	client := gh.NewClient(rateLimiter).WithAuthToken(token)
	return &Backend{
		client:      client,
		token:       token,
		mergeMethod: mergeMethod,
	}
}

// ListRepositories lists the non-archived repositories owned by owner that the
// authenticated token can see, including private ones.
func (b *Backend) ListRepositories(ctx context.Context, owner string) ([]provider.Repository, error) {
	var repos []provider.Repository
	opts := &gh.RepositoryListByAuthenticatedUserOptions{
		Affiliation: "owner,organization_member",
		ListOptions: gh.ListOptions{PerPage: 100},
	}
	for {
		page, resp, err := b.client.Repositories.ListByAuthenticatedUser(ctx, opts)
		if err != nil {
			return nil, wrapErr("listing repositories", resp, err)
		}
		for _, r := range page {
			if !strings.EqualFold(r.GetOwner().GetLogin(), owner) {
				continue
			}
			repos = append(repos, provider.Repository{
				Owner:         r.GetOwner().GetLogin(),
				Name:          r.GetName(),
				DefaultBranch: r.GetDefaultBranch(),
				Archived:      r.GetArchived(),
			})
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return repos, nil
}

// ListOpenPullRequests lists open PRs in a repository.
func (b *Backend) ListOpenPullRequests(ctx context.Context, repo provider.Repository) ([]provider.PullRequest, error) {
	var prs []provider.PullRequest
	opts := &gh.PullRequestListOptions{
		State:       "open",
		ListOptions: gh.ListOptions{PerPage: 100},
	}
	for {
		page, resp, err := b.client.PullRequests.List(ctx, repo.Owner, repo.Name, opts)
		if err != nil {
			return nil, wrapErr("listing pull requests", resp, err)
		}
		for _, pr := range page {
			mapped := mapPR(pr, repo.FullName())
			// List responses never carry mergeability.
			mapped.Mergeable = provider.MergeableUnknown
			prs = append(prs, *mapped)
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return prs, nil
}

// GetPullRequest re-reads a PR. GitHub computes mergeability lazily, so the
// first read after a push commonly reports it as unknown.
func (b *Backend) GetPullRequest(ctx context.Context, repo string, number int) (*provider.PullRequest, error) {
	owner, name, err := provider.SplitFullName(repo)
	if err != nil {
		return nil, err
	}
	pr, resp, err := b.client.PullRequests.Get(ctx, owner, name, number)
	if err != nil {
		return nil, wrapErr("getting pull request", resp, err)
	}
	return mapPR(pr, repo), nil
}

// GetCombinedStatus returns the legacy combined status for ref.
func (b *Backend) GetCombinedStatus(ctx context.Context, repo, ref string) (*provider.CombinedStatus, error) {
	owner, name, err := provider.SplitFullName(repo)
	if err != nil {
		return nil, err
	}
	combined, resp, err := b.client.Repositories.GetCombinedStatus(ctx, owner, name, ref, &gh.ListOptions{PerPage: 100})
	if err != nil {
		return nil, wrapErr("getting combined status", resp, err)
	}
	status := &provider.CombinedStatus{
		State:      combined.GetState(),
		TotalCount: combined.GetTotalCount(),
	}
	for _, s := range combined.Statuses {
		status.Statuses = append(status.Statuses, provider.Status{
			Context:     s.GetContext(),
			State:       s.GetState(),
			Description: s.GetDescription(),
			TargetURL:   s.GetTargetURL(),
		})
	}
	return status, nil
}

// ListCheckRuns returns every check run for ref.
func (b *Backend) ListCheckRuns(ctx context.Context, repo, ref string) ([]provider.CheckRun, error) {
	owner, name, err := provider.SplitFullName(repo)
	if err != nil {
		return nil, err
	}
	var runs []provider.CheckRun
	opts := &gh.ListCheckRunsOptions{
		ListOptions: gh.ListOptions{PerPage: 100},
	}
	for {
		result, resp, err := b.client.Checks.ListCheckRunsForRef(ctx, owner, name, ref, opts)
		if err != nil {
			return nil, wrapErr("listing check runs", resp, err)
		}
		for _, cr := range result.CheckRuns {
			runs = append(runs, provider.CheckRun{
				Name:       cr.GetName(),
				Status:     cr.GetStatus(),
				Conclusion: cr.GetConclusion(),
				URL:        cr.GetHTMLURL(),
			})
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return runs, nil
}

// ListIssueComments returns the general comments on a PR.
func (b *Backend) ListIssueComments(ctx context.Context, repo string, number int) ([]provider.Comment, error) {
	owner, name, err := provider.SplitFullName(repo)
	if err != nil {
		return nil, err
	}
	var comments []provider.Comment
	opts := &gh.IssueListCommentsOptions{
		ListOptions: gh.ListOptions{PerPage: 100},
	}
	for {
		page, resp, err := b.client.Issues.ListComments(ctx, owner, name, number, opts)
		if err != nil {
			return nil, wrapErr("listing issue comments", resp, err)
		}
		for _, c := range page {
			comments = append(comments, provider.Comment{
				ID:        c.GetID(),
				Author:    c.GetUser().GetLogin(),
				Body:      c.GetBody(),
				CreatedAt: c.GetCreatedAt().Time,
			})
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return comments, nil
}

// PostComment posts a general comment on a PR.
func (b *Backend) PostComment(ctx context.Context, repo string, number int, body string) error {
	owner, name, err := provider.SplitFullName(repo)
	if err != nil {
		return err
	}
	_, resp, err := b.client.Issues.CreateComment(ctx, owner, name, number, &gh.IssueComment{
		Body: gh.Ptr(body),
	})
	if err != nil {
		return wrapErr("posting comment", resp, err)
	}
	return nil
}

// ListReviewComments returns the inline review comments on a PR.
// Outdated comments (no current line) are dropped.
func (b *Backend) ListReviewComments(ctx context.Context, repo string, number int) ([]provider.ReviewComment, error) {
	owner, name, err := provider.SplitFullName(repo)
	if err != nil {
		return nil, err
	}
	var comments []provider.ReviewComment
	opts := &gh.PullRequestListCommentsOptions{
		ListOptions: gh.ListOptions{PerPage: 100},
	}
	for {
		page, resp, err := b.client.PullRequests.ListComments(ctx, owner, name, number, opts)
		if err != nil {
			return nil, wrapErr("listing review comments", resp, err)
		}
		for _, c := range page {
			if c.GetLine() == 0 {
				slog.Debug("skipping outdated review comment", "repo", repo, "pr", number, "comment", c.GetID())
				continue
			}
			comments = append(comments, provider.ReviewComment{
				ID:        c.GetID(),
				Author:    c.GetUser().GetLogin(),
				Body:      c.GetBody(),
				Path:      c.GetPath(),
				Line:      c.GetLine(),
				StartLine: c.GetStartLine(),
				CommitID:  c.GetCommitID(),
			})
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return comments, nil
}

// ListCommitMessages returns the message of every commit on a PR.
func (b *Backend) ListCommitMessages(ctx context.Context, repo string, number int) ([]string, error) {
	owner, name, err := provider.SplitFullName(repo)
	if err != nil {
		return nil, err
	}
	var messages []string
	opts := &gh.ListOptions{PerPage: 100}
	for {
		page, resp, err := b.client.PullRequests.ListCommits(ctx, owner, name, number, opts)
		if err != nil {
			return nil, wrapErr("listing commits", resp, err)
		}
		for _, c := range page {
			messages = append(messages, c.GetCommit().GetMessage())
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return messages, nil
}

// GetFile returns a file's decoded content at ref.
func (b *Backend) GetFile(ctx context.Context, repo, path, ref string) (*provider.File, error) {
	owner, name, err := provider.SplitFullName(repo)
	if err != nil {
		return nil, err
	}
	fc, _, resp, err := b.client.Repositories.GetContents(ctx, owner, name, path, &gh.RepositoryContentGetOptions{Ref: ref})
	if err != nil {
		return nil, wrapErr("getting file "+path, resp, err)
	}
	if fc == nil {
		return nil, fmt.Errorf("getting file %s: path is a directory", path)
	}
	content, err := fc.GetContent()
	if err != nil {
		return nil, fmt.Errorf("decoding file %s: %w", path, err)
	}
	return &provider.File{
		Path:    fc.GetPath(),
		SHA:     fc.GetSHA(),
		Content: content,
	}, nil
}

// UpdateFile commits new file content on a branch via the contents API.
func (b *Backend) UpdateFile(ctx context.Context, repo string, change provider.FileChange) error {
	owner, name, err := provider.SplitFullName(repo)
	if err != nil {
		return err
	}
	_, resp, err := b.client.Repositories.UpdateFile(ctx, owner, name, change.Path, &gh.RepositoryContentFileOptions{
		Message: gh.Ptr(change.Message),
		Content: []byte(change.Content),
		SHA:     gh.Ptr(change.SHA),
		Branch:  gh.Ptr(change.Branch),
	})
	if err != nil {
		return wrapErr("updating file "+change.Path, resp, err)
	}
	return nil
}

// Merge merges a PR with the configured merge method.
func (b *Backend) Merge(ctx context.Context, repo string, number int, expectedHeadSHA string) error {
	owner, name, err := provider.SplitFullName(repo)
	if err != nil {
		return err
	}
	result, resp, err := b.client.PullRequests.Merge(ctx, owner, name, number, "", &gh.PullRequestOptions{
		MergeMethod: b.mergeMethod,
		SHA:         expectedHeadSHA,
	})
	if err != nil {
		return wrapErr("merging pull request", resp, err)
	}
	if !result.GetMerged() {
		return fmt.Errorf("merging pull request: %w: %s", provider.ErrConflict, result.GetMessage())
	}
	return nil
}

// --- Internal helpers ---

// mapPR converts a GitHub PullRequest to provider.PullRequest.
func mapPR(pr *gh.PullRequest, repo string) *provider.PullRequest {
	return &provider.PullRequest{
		Repo:         repo,
		Number:       pr.GetNumber(),
		Title:        pr.GetTitle(),
		Author:       pr.GetUser().GetLogin(),
		URL:          pr.GetHTMLURL(),
		CreatedAt:    pr.GetCreatedAt().Time,
		Draft:        pr.GetDraft(),
		Mergeable:    provider.MergeableFromPtr(pr.Mergeable),
		HeadBranch:   pr.GetHead().GetRef(),
		HeadSHA:      pr.GetHead().GetSHA(),
		HeadRepo:     pr.GetHead().GetRepo().GetFullName(),
		HeadCloneURL: pr.GetHead().GetRepo().GetCloneURL(),
		BaseBranch:   pr.GetBase().GetRef(),
		BaseCloneURL: pr.GetBase().GetRepo().GetCloneURL(),
	}
}

// wrapErr attaches the provider error class to a go-github error.
func wrapErr(op string, resp *gh.Response, err error) error {
	var rateErr *gh.RateLimitError
	var abuseErr *gh.AbuseRateLimitError
	if errors.As(err, &rateErr) || errors.As(err, &abuseErr) {
		return fmt.Errorf("%s: %w: %w", op, provider.ErrRateLimited, err)
	}
	if resp == nil {
		return fmt.Errorf("%s: %w: %w", op, provider.ErrTransient, err)
	}
	switch code := resp.StatusCode; {
	case code == http.StatusNotFound:
		return fmt.Errorf("%s: %w: %w", op, provider.ErrNotFound, err)
	case code == http.StatusConflict, code == http.StatusMethodNotAllowed:
		return fmt.Errorf("%s: %w: %w", op, provider.ErrConflict, err)
	case code == http.StatusTooManyRequests:
		return fmt.Errorf("%s: %w: %w", op, provider.ErrRateLimited, err)
	case code >= 500:
		return fmt.Errorf("%s: %w: %w", op, provider.ErrTransient, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// getGraphQLClient returns (and lazily creates) the GitHub GraphQL client.
func (b *Backend) getGraphQLClient(ctx context.Context) *githubv4.Client {
	b.gqlOnce.Do(func() {
		if b.gqlClient != nil {
			return
		}
		ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: b.token})
		httpClient := oauth2.NewClient(ctx, ts)
		b.gqlClient = githubv4.NewClient(httpClient)
	})
	return b.gqlClient
}

// Verify Backend implements Directory at compile time.
var _ provider.Directory = (*Backend)(nil)
