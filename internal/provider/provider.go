package provider

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Directory is the repository/PR directory service the triage engine runs against.
// Implementations wrap a hosting provider's API; every call reads fresh state.
type Directory interface {
	// ListRepositories returns the repositories owned by the given account.
	ListRepositories(ctx context.Context, owner string) ([]Repository, error)

	// ListOpenPullRequests returns summaries of the open PRs in a repository.
	// Mergeable is not populated by list calls and is always MergeableUnknown.
	ListOpenPullRequests(ctx context.Context, repo Repository) ([]PullRequest, error)

	// GetPullRequest re-reads a single PR, including its mergeable state.
	GetPullRequest(ctx context.Context, repo string, number int) (*PullRequest, error)

	// GetCombinedStatus returns the legacy combined commit status for a ref.
	GetCombinedStatus(ctx context.Context, repo, ref string) (*CombinedStatus, error)

	// ListCheckRuns returns all check runs for a ref.
	ListCheckRuns(ctx context.Context, repo, ref string) ([]CheckRun, error)

	// ListIssueComments returns the general (non-inline) comments on a PR.
	ListIssueComments(ctx context.Context, repo string, number int) ([]Comment, error)

	// PostComment posts a general comment on a PR.
	PostComment(ctx context.Context, repo string, number int, body string) error

	// ListReviewComments returns the inline review comments on a PR.
	ListReviewComments(ctx context.Context, repo string, number int) ([]ReviewComment, error)

	// ListCommitMessages returns the messages of every commit on a PR.
	ListCommitMessages(ctx context.Context, repo string, number int) ([]string, error)

	// GetFile returns a file's content and blob SHA at the given ref.
	GetFile(ctx context.Context, repo, path, ref string) (*File, error)

	// UpdateFile commits new content for a file on a branch.
	UpdateFile(ctx context.Context, repo string, change FileChange) error

	// Merge merges a PR. expectedHeadSHA guards against merging a head that moved.
	Merge(ctx context.Context, repo string, number int, expectedHeadSHA string) error
}

// Mergeable is the three-valued mergeability signal reported by the host.
type Mergeable int

const (
	// MergeableUnknown means the host has not finished computing mergeability.
	MergeableUnknown Mergeable = iota
	MergeableTrue
	MergeableFalse
)

// MergeableFromPtr maps an optional boolean into the tri-state.
func MergeableFromPtr(b *bool) Mergeable {
	switch {
	case b == nil:
		return MergeableUnknown
	case *b:
		return MergeableTrue
	default:
		return MergeableFalse
	}
}

func (m Mergeable) String() string {
	switch m {
	case MergeableTrue:
		return "true"
	case MergeableFalse:
		return "false"
	default:
		return "unknown"
	}
}

// Repository identifies a hosted repository.
type Repository struct {
	Owner         string
	Name          string
	DefaultBranch string
	Archived      bool
}

// FullName returns "owner/name".
func (r Repository) FullName() string {
	return r.Owner + "/" + r.Name
}

// SplitFullName splits "owner/name" into its parts.
func SplitFullName(fullName string) (owner, name string, err error) {
	owner, name, ok := strings.Cut(fullName, "/")
	if !ok || owner == "" || name == "" {
		return "", "", fmt.Errorf("invalid repository name %q: expected owner/name", fullName)
	}
	return owner, name, nil
}

// PullRequest is a snapshot of a pull request taken during a single run.
type PullRequest struct {
	// Repo is the base repository's "owner/name".
	Repo      string
	Number    int
	Title     string
	Author    string
	URL       string
	CreatedAt time.Time
	Draft     bool
	Mergeable Mergeable

	HeadBranch string
	HeadSHA    string
	// HeadRepo is the "owner/name" of the repository holding the head branch.
	// It differs from Repo for PRs opened from forks and is empty when the fork was deleted.
	HeadRepo     string
	HeadCloneURL string

	BaseBranch   string
	BaseCloneURL string
}

// CombinedStatus is the legacy commit status aggregate.
type CombinedStatus struct {
	State      string
	TotalCount int
	Statuses   []Status
}

// Status is a single legacy commit status.
type Status struct {
	Context     string
	State       string
	Description string
	TargetURL   string
}

// CheckRun is a single check run reported against a commit.
type CheckRun struct {
	Name       string
	Status     string
	Conclusion string
	URL        string
}

// Comment is a general PR comment.
type Comment struct {
	ID        int64
	Author    string
	Body      string
	CreatedAt time.Time
}

// ReviewComment is an inline review comment anchored to a file range.
type ReviewComment struct {
	ID     int64
	Author string
	Body   string
	Path   string
	// Line is the last line of the commented range; StartLine is zero for single-line comments.
	Line      int
	StartLine int
	// CommitID is the revision Line and StartLine refer to.
	CommitID string
}

// File is the content of a file at a specific ref.
type File struct {
	Path    string
	SHA     string
	Content string
}

// FileChange describes a single-file commit through the contents API.
type FileChange struct {
	Path    string
	Branch  string
	SHA     string
	Content string
	Message string
}
