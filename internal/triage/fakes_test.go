package triage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/juninmd/prpilot/internal/conflict"
	"github.com/juninmd/prpilot/internal/provider"
)

var testNow = time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)

func prKey(repo string, number int) string {
	return fmt.Sprintf("%s#%d", repo, number)
}

// newPR returns a trusted-shape PR created age ago with a mergeable state of unknown,
// the way list endpoints report it.
func newPR(repo string, number int, author string, age time.Duration) provider.PullRequest {
	return provider.PullRequest{
		Repo:         repo,
		Number:       number,
		Title:        fmt.Sprintf("PR %d", number),
		Author:       author,
		URL:          fmt.Sprintf("https://github.com/%s/pull/%d", repo, number),
		CreatedAt:    testNow.Add(-age),
		HeadBranch:   fmt.Sprintf("feature-%d", number),
		HeadSHA:      fmt.Sprintf("sha-%d", number),
		HeadRepo:     repo,
		HeadCloneURL: "https://github.com/" + repo + ".git",
		BaseBranch:   "main",
		BaseCloneURL: "https://github.com/" + repo + ".git",
	}
}

type postedComment struct {
	Repo   string
	Number int
	Body   string
}

type mergeCall struct {
	Repo   string
	Number int
	SHA    string
}

// fakeDirectory is an in-memory provider.Directory that records every call.
type fakeDirectory struct {
	repos    []provider.Repository
	reposErr error
	open     map[string][]provider.PullRequest
	listErr  map[string]error

	details map[string]*provider.PullRequest
	getErr  map[string]error
	panicOn map[string]bool

	statuses  map[string]*provider.CombinedStatus
	statusErr error
	checks    map[string][]provider.CheckRun

	comments       map[string][]provider.Comment
	reviewComments map[string][]provider.ReviewComment
	commitMessages map[string][]string
	files          map[string]*provider.File

	mergeErr error

	calls   []string
	posted  []postedComment
	updates []provider.FileChange
	merges  []mergeCall
}

func newFakeDirectory() *fakeDirectory {
	return &fakeDirectory{
		open:           map[string][]provider.PullRequest{},
		listErr:        map[string]error{},
		details:        map[string]*provider.PullRequest{},
		getErr:         map[string]error{},
		panicOn:        map[string]bool{},
		statuses:       map[string]*provider.CombinedStatus{},
		checks:         map[string][]provider.CheckRun{},
		comments:       map[string][]provider.Comment{},
		reviewComments: map[string][]provider.ReviewComment{},
		commitMessages: map[string][]string{},
		files:          map[string]*provider.File{},
	}
}

// addPR lists pr under its repository and registers the detail view with mergeable.
func (f *fakeDirectory) addPR(pr provider.PullRequest, mergeable provider.Mergeable) {
	owner, name, _ := provider.SplitFullName(pr.Repo)
	if _, ok := f.open[pr.Repo]; !ok {
		f.repos = append(f.repos, provider.Repository{Owner: owner, Name: name, DefaultBranch: "main"})
	}
	f.open[pr.Repo] = append(f.open[pr.Repo], pr)
	detail := pr
	detail.Mergeable = mergeable
	f.details[prKey(pr.Repo, pr.Number)] = &detail
}

func (f *fakeDirectory) setPipeline(sha string, status *provider.CombinedStatus, checks ...provider.CheckRun) {
	f.statuses[sha] = status
	f.checks[sha] = checks
}

func (f *fakeDirectory) mutations() int {
	return len(f.posted) + len(f.updates) + len(f.merges)
}

func (f *fakeDirectory) called(method string) bool {
	for _, c := range f.calls {
		if c == method {
			return true
		}
	}
	return false
}

func (f *fakeDirectory) ListRepositories(_ context.Context, _ string) ([]provider.Repository, error) {
	f.calls = append(f.calls, "ListRepositories")
	return f.repos, f.reposErr
}

func (f *fakeDirectory) ListOpenPullRequests(_ context.Context, repo provider.Repository) ([]provider.PullRequest, error) {
	f.calls = append(f.calls, "ListOpenPullRequests")
	if err := f.listErr[repo.FullName()]; err != nil {
		return nil, err
	}
	return f.open[repo.FullName()], nil
}

func (f *fakeDirectory) GetPullRequest(_ context.Context, repo string, number int) (*provider.PullRequest, error) {
	f.calls = append(f.calls, "GetPullRequest")
	key := prKey(repo, number)
	if f.panicOn[key] {
		panic("unexpected nil head")
	}
	if err := f.getErr[key]; err != nil {
		return nil, err
	}
	pr, ok := f.details[key]
	if !ok {
		return nil, provider.ErrNotFound
	}
	cp := *pr
	return &cp, nil
}

func (f *fakeDirectory) GetCombinedStatus(_ context.Context, _, ref string) (*provider.CombinedStatus, error) {
	f.calls = append(f.calls, "GetCombinedStatus")
	if f.statusErr != nil {
		return nil, f.statusErr
	}
	if s, ok := f.statuses[ref]; ok && s != nil {
		return s, nil
	}
	return &provider.CombinedStatus{State: "pending"}, nil
}

func (f *fakeDirectory) ListCheckRuns(_ context.Context, _, ref string) ([]provider.CheckRun, error) {
	f.calls = append(f.calls, "ListCheckRuns")
	return f.checks[ref], nil
}

func (f *fakeDirectory) ListIssueComments(_ context.Context, repo string, number int) ([]provider.Comment, error) {
	f.calls = append(f.calls, "ListIssueComments")
	return f.comments[prKey(repo, number)], nil
}

func (f *fakeDirectory) PostComment(_ context.Context, repo string, number int, body string) error {
	f.calls = append(f.calls, "PostComment")
	key := prKey(repo, number)
	f.posted = append(f.posted, postedComment{Repo: repo, Number: number, Body: body})
	f.comments[key] = append(f.comments[key], provider.Comment{
		ID:     int64(len(f.posted)),
		Author: "prpilot",
		Body:   body,
	})
	return nil
}

func (f *fakeDirectory) ListReviewComments(_ context.Context, repo string, number int) ([]provider.ReviewComment, error) {
	f.calls = append(f.calls, "ListReviewComments")
	return f.reviewComments[prKey(repo, number)], nil
}

func (f *fakeDirectory) ListCommitMessages(_ context.Context, repo string, number int) ([]string, error) {
	f.calls = append(f.calls, "ListCommitMessages")
	return f.commitMessages[prKey(repo, number)], nil
}

func (f *fakeDirectory) GetFile(_ context.Context, repo, path, _ string) (*provider.File, error) {
	f.calls = append(f.calls, "GetFile")
	file, ok := f.files[repo+":"+path]
	if !ok {
		return nil, provider.ErrNotFound
	}
	cp := *file
	return &cp, nil
}

// UpdateFile stores the new content, moves the head of every PR whose head
// branch matches and appends the commit message to it, as the host would.
func (f *fakeDirectory) UpdateFile(_ context.Context, repo string, change provider.FileChange) error {
	f.calls = append(f.calls, "UpdateFile")
	f.updates = append(f.updates, change)
	f.files[repo+":"+change.Path] = &provider.File{
		Path:    change.Path,
		SHA:     fmt.Sprintf("blob-%d", len(f.updates)),
		Content: change.Content,
	}
	for key, pr := range f.details {
		if pr.HeadRepo == repo && pr.HeadBranch == change.Branch {
			pr.HeadSHA = fmt.Sprintf("%s-commit-%d", pr.HeadBranch, len(f.updates))
			f.commitMessages[key] = append(f.commitMessages[key], change.Message)
		}
	}
	return nil
}

func (f *fakeDirectory) Merge(_ context.Context, repo string, number int, sha string) error {
	f.calls = append(f.calls, "Merge")
	if f.mergeErr != nil {
		return f.mergeErr
	}
	f.merges = append(f.merges, mergeCall{Repo: repo, Number: number, SHA: sha})
	return nil
}

// fakeSearchDirectory adds the account-wide search capability.
type fakeSearchDirectory struct {
	*fakeDirectory
	results []provider.PullRequest
	err     error
}

func (f *fakeSearchDirectory) SearchOpenPullRequests(_ context.Context, _ string) ([]provider.PullRequest, error) {
	f.calls = append(f.calls, "SearchOpenPullRequests")
	return f.results, f.err
}

// fakeCheckout is an in-memory working copy.
type fakeCheckout struct {
	files      map[string]string
	conflicted []string
	mergeErr   error
	pushErr    error

	fetched   string
	mergedRef string
	staged    []string
	commits   []string
	pushes    int
	closed    bool
}

func (c *fakeCheckout) FetchUpstream(_ context.Context, url, branch string) error {
	c.fetched = url + "@" + branch
	return nil
}

func (c *fakeCheckout) Merge(_ context.Context, ref string) ([]string, error) {
	c.mergedRef = ref
	return c.conflicted, c.mergeErr
}

func (c *fakeCheckout) ReadFile(path string) ([]byte, error) {
	content, ok := c.files[path]
	if !ok {
		return nil, fmt.Errorf("open %s: no such file", path)
	}
	return []byte(content), nil
}

func (c *fakeCheckout) WriteFile(path string, data []byte) error {
	c.files[path] = string(data)
	return nil
}

func (c *fakeCheckout) Stage(_ context.Context, paths ...string) error {
	c.staged = append(c.staged, paths...)
	return nil
}

func (c *fakeCheckout) Commit(_ context.Context, message string) error {
	c.commits = append(c.commits, message)
	return nil
}

func (c *fakeCheckout) Push(context.Context) error {
	if c.pushErr != nil {
		return c.pushErr
	}
	c.pushes++
	return nil
}

func (c *fakeCheckout) Close() error {
	c.closed = true
	return nil
}

// fakeWorkspace hands out checkouts keyed by "cloneURL@branch".
type fakeWorkspace struct {
	checkouts map[string]*fakeCheckout
	cloneErr  error
	clones    []string
}

func newFakeWorkspace() *fakeWorkspace {
	return &fakeWorkspace{checkouts: map[string]*fakeCheckout{}}
}

func (w *fakeWorkspace) add(pr provider.PullRequest, c *fakeCheckout) {
	w.checkouts[pr.HeadCloneURL+"@"+pr.HeadBranch] = c
}

func (w *fakeWorkspace) Clone(_ context.Context, cloneURL, branch string) (Checkout, error) {
	key := cloneURL + "@" + branch
	w.clones = append(w.clones, key)
	if w.cloneErr != nil {
		return nil, w.cloneErr
	}
	c, ok := w.checkouts[key]
	if !ok {
		c = &fakeCheckout{files: map[string]string{}}
		w.checkouts[key] = c
	}
	return c, nil
}

// fakeAssistant returns canned replies.
type fakeAssistant struct {
	resolve    func(path string, b conflict.Block) (string, error)
	comment    string
	commentErr error

	resolveCalls int
	commentCalls int
}

func (a *fakeAssistant) ResolveConflict(_ context.Context, path string, b conflict.Block) (string, error) {
	a.resolveCalls++
	if a.resolve == nil {
		return strings.TrimSpace(b.Ours) + "+" + strings.TrimSpace(b.Theirs), nil
	}
	return a.resolve(path, b)
}

func (a *fakeAssistant) PipelineComment(_ context.Context, _ provider.PullRequest, failures []string) (string, error) {
	a.commentCalls++
	if a.commentErr != nil {
		return "", a.commentErr
	}
	return a.comment, nil
}

type fakeNotifier struct {
	merged    []provider.PullRequest
	summaries []*RunResult
	mergeErr  error
}

func (n *fakeNotifier) NotifyMerge(_ context.Context, pr provider.PullRequest) error {
	n.merged = append(n.merged, pr)
	return n.mergeErr
}

func (n *fakeNotifier) SendSummary(_ context.Context, r *RunResult) error {
	n.summaries = append(n.summaries, r)
	return nil
}

type harness struct {
	dir      *fakeDirectory
	ws       *fakeWorkspace
	ai       *fakeAssistant
	notifier *fakeNotifier
}

func newHarness() *harness {
	return &harness{
		dir:      newFakeDirectory(),
		ws:       newFakeWorkspace(),
		ai:       &fakeAssistant{comment: "Please take a look at the failing checks."},
		notifier: &fakeNotifier{},
	}
}

func (h *harness) engine(opts Options) *Engine {
	if opts.Owner == "" {
		opts.Owner = "juninmd"
	}
	opts.Now = func() time.Time { return testNow }
	return NewEngine(Deps{
		Directory: h.dir,
		Workspace: h.ws,
		Assistant: h.ai,
		Notifier:  h.notifier,
	}, opts)
}

func successStatus() *provider.CombinedStatus {
	return &provider.CombinedStatus{State: "success", TotalCount: 1, Statuses: []provider.Status{{Context: "ci", State: "success"}}}
}

func emptyStatus() *provider.CombinedStatus {
	return &provider.CombinedStatus{State: "pending", TotalCount: 0}
}
