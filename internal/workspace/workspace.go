// Package workspace manages short-lived local clones used to resolve merge conflicts.
// Network operations (clone, fetch, push) go through go-git with token auth; the
// three-way merge and index operations shell out to the git CLI.
package workspace

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/go-git/go-git/v5"
	gitconfig "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/transport"
	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"
)

// UpstreamRemote is the remote name given to the PR's base repository.
const UpstreamRemote = "upstream"

// Options configures clones created by a Manager.
type Options struct {
	// Token authenticates HTTPS clone, fetch and push. Empty disables auth.
	Token string
	// UserName and UserEmail are the git identity used for merge and resolution commits.
	UserName  string
	UserEmail string
	// TempDir is the parent directory for clones; empty means os.TempDir().
	TempDir string
}

// Manager creates scoped clones.
type Manager struct {
	opts Options
}

// NewManager returns a Manager using opts.
func NewManager(opts Options) *Manager {
	return &Manager{opts: opts}
}

// Clone checks out branch of cloneURL into a fresh temporary directory.
// The caller must Close the returned Clone; Close removes the directory.
func (m *Manager) Clone(ctx context.Context, cloneURL, branch string) (*Clone, error) {
	dir, err := os.MkdirTemp(m.opts.TempDir, "prpilot-clone-")
	if err != nil {
		return nil, fmt.Errorf("creating clone directory: %w", err)
	}

	c := &Clone{
		dir:    dir,
		branch: branch,
		auth:   m.authFor(cloneURL),
	}

	slog.Debug("cloning repository", "url", cloneURL, "branch", branch, "dir", dir)
	repo, err := git.PlainCloneContext(ctx, dir, false, &git.CloneOptions{
		URL:           cloneURL,
		ReferenceName: plumbing.NewBranchReferenceName(branch),
		SingleBranch:  true,
		Auth:          c.auth,
	})
	if err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("cloning %s@%s: %w", cloneURL, branch, err)
	}
	c.repo = repo

	for key, value := range map[string]string{"user.name": m.opts.UserName, "user.email": m.opts.UserEmail} {
		if value == "" {
			continue
		}
		if _, err := c.run(ctx, "config", key, value); err != nil {
			_ = c.Close()
			return nil, err
		}
	}
	return c, nil
}

func (m *Manager) authFor(remoteURL string) transport.AuthMethod {
	if m.opts.Token == "" || !strings.HasPrefix(remoteURL, "https://") {
		return nil
	}
	return &githttp.BasicAuth{
		Username: "x-access-token",
		Password: m.opts.Token,
	}
}

// Clone is a local working copy scoped to a single PR.
type Clone struct {
	dir    string
	branch string
	repo   *git.Repository
	auth   transport.AuthMethod
}

// Dir returns the working tree root.
func (c *Clone) Dir() string {
	return c.dir
}

// FetchUpstream adds url as the upstream remote and fetches branch from it
// into refs/remotes/upstream/<branch>.
func (c *Clone) FetchUpstream(ctx context.Context, url, branch string) error {
	if _, err := c.repo.CreateRemote(&gitconfig.RemoteConfig{
		Name: UpstreamRemote,
		URLs: []string{url},
	}); err != nil {
		return fmt.Errorf("adding upstream remote: %w", err)
	}

	refSpec := gitconfig.RefSpec(fmt.Sprintf("+refs/heads/%s:refs/remotes/%s/%s", branch, UpstreamRemote, branch))
	err := c.repo.FetchContext(ctx, &git.FetchOptions{
		RemoteName: UpstreamRemote,
		RefSpecs:   []gitconfig.RefSpec{refSpec},
		Auth:       c.auth,
	})
	if err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		return fmt.Errorf("fetching upstream %s: %w", branch, err)
	}
	return nil
}

// Merge merges ref into the checked-out branch. It returns the unmerged paths
// when the merge stopped on conflicts, and nil when it completed cleanly.
func (c *Clone) Merge(ctx context.Context, ref string) ([]string, error) {
	out, mergeErr := c.run(ctx, "merge", "--no-edit", ref)
	if mergeErr == nil {
		slog.Debug("merge completed cleanly", "ref", ref, "output", strings.TrimSpace(out))
		return nil, nil
	}

	files, err := c.UnmergedFiles(ctx)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("merge failed without conflicted files: %w", mergeErr)
	}
	return files, nil
}

// UnmergedFiles lists paths with unresolved conflicts.
func (c *Clone) UnmergedFiles(ctx context.Context) ([]string, error) {
	cmd := exec.CommandContext(ctx, "git", "diff", "--name-only", "--diff-filter=U")
	cmd.Dir = c.dir
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("listing conflicted files: %w", err)
	}
	var files []string
	for _, line := range strings.Split(string(out), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			files = append(files, line)
		}
	}
	return files, nil
}

// ReadFile reads a path relative to the working tree.
func (c *Clone) ReadFile(path string) ([]byte, error) {
	full, err := c.resolve(path)
	if err != nil {
		return nil, err
	}
	return os.ReadFile(full)
}

// WriteFile replaces a path relative to the working tree, keeping its mode.
func (c *Clone) WriteFile(path string, data []byte) error {
	full, err := c.resolve(path)
	if err != nil {
		return err
	}
	mode := os.FileMode(0o644)
	if info, err := os.Stat(full); err == nil {
		mode = info.Mode().Perm()
	}
	return os.WriteFile(full, data, mode)
}

func (c *Clone) resolve(path string) (string, error) {
	if !filepath.IsLocal(filepath.FromSlash(path)) {
		return "", fmt.Errorf("path %q escapes the working tree", path)
	}
	return filepath.Join(c.dir, filepath.FromSlash(path)), nil
}

// Stage adds paths to the index.
func (c *Clone) Stage(ctx context.Context, paths ...string) error {
	args := append([]string{"add", "--"}, paths...)
	_, err := c.run(ctx, args...)
	return err
}

// Commit records the index with message.
func (c *Clone) Commit(ctx context.Context, message string) error {
	_, err := c.run(ctx, "commit", "--no-verify", "-m", message)
	return err
}

// Push pushes the checked-out branch to origin.
func (c *Clone) Push(ctx context.Context) error {
	ref := plumbing.NewBranchReferenceName(c.branch)
	refSpec := gitconfig.RefSpec(fmt.Sprintf("%s:%s", ref, ref))
	err := c.repo.PushContext(ctx, &git.PushOptions{
		RemoteName: git.DefaultRemoteName,
		RefSpecs:   []gitconfig.RefSpec{refSpec},
		Auth:       c.auth,
	})
	if errors.Is(err, git.NoErrAlreadyUpToDate) {
		slog.Debug("push skipped: branch already up to date", "branch", c.branch)
		return nil
	}
	if err != nil {
		return fmt.Errorf("pushing %s: %w", c.branch, err)
	}
	return nil
}

// Close removes the working copy. It is safe to call more than once.
func (c *Clone) Close() error {
	if c.dir == "" {
		return nil
	}
	err := os.RemoveAll(c.dir)
	c.dir = ""
	if err != nil {
		return fmt.Errorf("removing clone: %w", err)
	}
	return nil
}

// run executes a git CLI command inside the working tree.
func (c *Clone) run(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = c.dir
	out, err := cmd.CombinedOutput()
	if err != nil {
		return string(out), fmt.Errorf("git %s: %s: %w", args[0], strings.TrimSpace(string(out)), err)
	}
	return string(out), nil
}
