package store

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/juninmd/prpilot/internal/triage"
)

const reportExt = ".md"

// Archive is a directory of run reports.
type Archive struct {
	dir         string
	lockTimeout time.Duration
}

// NewArchive returns an archive rooted at dir. The directory is created on
// first use.
func NewArchive(dir string) *Archive {
	return &Archive{dir: dir, lockTimeout: DefaultLockTimeout}
}

// Dir returns the archive directory.
func (a *Archive) Dir() string {
	return a.dir
}

func (a *Archive) lockPath() string {
	return filepath.Join(a.dir, ".archive")
}

func (a *Archive) path(id string) string {
	return filepath.Join(a.dir, id+reportExt)
}

// Save writes a finished run. It returns the report path.
func (a *Archive) Save(ctx context.Context, result *triage.RunResult) (string, error) {
	if !result.Finished() {
		return "", fmt.Errorf("run %s has not finished", result.ID)
	}
	if err := os.MkdirAll(a.dir, 0o755); err != nil {
		return "", fmt.Errorf("creating archive directory: %w", err)
	}

	path := a.path(result.ID)
	err := withLock(ctx, a.lockPath(), a.lockTimeout, func() error {
		return writeDocument(path, matterFor(result), RenderReport(result))
	})
	if err != nil {
		return "", fmt.Errorf("saving run %s: %w", result.ID, err)
	}
	slog.Debug("run report saved", "run", result.ID, "path", path)
	return path, nil
}

// Load reads the run with the given ID.
func (a *Archive) Load(ctx context.Context, id string) (*triage.RunResult, error) {
	if id == "" || strings.ContainsAny(id, `/\`) || strings.HasPrefix(id, ".") {
		return nil, fmt.Errorf("invalid run id %q", id)
	}
	var m runMatter
	err := withReadLock(ctx, a.lockPath(), a.lockTimeout, func() error {
		_, err := readDocument(a.path(id), &m)
		return err
	})
	if err != nil {
		return nil, err
	}
	return m.result(), nil
}

// List returns the summaries of all archived runs, newest first. Unreadable
// reports are logged and skipped.
func (a *Archive) List(ctx context.Context) ([]Summary, error) {
	var summaries []Summary
	err := withReadLock(ctx, a.lockPath(), a.lockTimeout, func() error {
		entries, err := os.ReadDir(a.dir)
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return fmt.Errorf("reading archive directory: %w", err)
		}
		for _, e := range entries {
			if e.IsDir() || filepath.Ext(e.Name()) != reportExt {
				continue
			}
			var m runMatter
			if _, err := readDocument(filepath.Join(a.dir, e.Name()), &m); err != nil {
				slog.Warn("skipping unreadable run report", "file", e.Name(), "error", err)
				continue
			}
			summaries = append(summaries, m.summary())
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(summaries, func(i, j int) bool {
		return summaries[i].StartedAt.After(summaries[j].StartedAt)
	})
	return summaries, nil
}

// Prune deletes all but the newest keep reports and returns how many were removed.
func (a *Archive) Prune(ctx context.Context, keep int) (int, error) {
	if keep < 0 {
		return 0, fmt.Errorf("keep must not be negative, got %d", keep)
	}
	summaries, err := a.List(ctx)
	if err != nil {
		return 0, err
	}
	if len(summaries) <= keep {
		return 0, nil
	}

	removed := 0
	err = withLock(ctx, a.lockPath(), a.lockTimeout, func() error {
		for _, s := range summaries[keep:] {
			if err := os.Remove(a.path(s.ID)); err != nil && !os.IsNotExist(err) {
				return fmt.Errorf("removing run %s: %w", s.ID, err)
			}
			removed++
		}
		return nil
	})
	return removed, err
}
