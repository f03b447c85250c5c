package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
)

// DefaultLockTimeout is the default timeout for acquiring the archive lock.
const DefaultLockTimeout = 5 * time.Second

const lockRetryDelay = 100 * time.Millisecond

// withLock acquires an exclusive lock on path.lock, runs fn, then releases.
func withLock(ctx context.Context, path string, timeout time.Duration, fn func() error) error {
	return lockAndRun(ctx, path, timeout, false, fn)
}

// withReadLock acquires a shared lock on path.lock, runs fn, then releases.
func withReadLock(ctx context.Context, path string, timeout time.Duration, fn func() error) error {
	return lockAndRun(ctx, path, timeout, true, fn)
}

func lockAndRun(ctx context.Context, path string, timeout time.Duration, shared bool, fn func() error) error {
	lockPath := path + ".lock"
	if err := os.MkdirAll(filepath.Dir(lockPath), 0o755); err != nil {
		return fmt.Errorf("creating lock directory: %w", err)
	}
	fileLock := flock.New(lockPath)

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	try, kind := fileLock.TryLockContext, "lock"
	if shared {
		try, kind = fileLock.TryRLockContext, "read lock"
	}
	locked, err := try(ctx, lockRetryDelay)
	if err != nil {
		return fmt.Errorf("acquiring %s on %s: %w", kind, lockPath, err)
	}
	if !locked {
		return fmt.Errorf("timed out acquiring %s on %s", kind, lockPath)
	}
	defer fileLock.Unlock()

	return fn()
}
