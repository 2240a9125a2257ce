package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Lock acquisition parameters. The retry window is bounded so a crashed
// holder surfaces as a fatal error instead of a silent hang; stale locks
// are not reclaimed automatically and must be removed by hand.
var (
	lockAttempts  = 50
	lockRetryWait = 200 * time.Millisecond
)

// ErrLockHeld is returned when the lock file could not be acquired within
// the retry window.
var ErrLockHeld = errors.New("lock held by another process")

// LockError carries the lock path so callers can tell the operator which
// file to inspect.
type LockError struct {
	Path string
	Err  error
}

func (e *LockError) Error() string {
	return fmt.Sprintf("acquiring lock %s: %v", e.Path, e.Err)
}

func (e *LockError) Unwrap() error { return e.Err }

// FileLock is an exclusive cross-process lock backed by an O_EXCL lock
// file next to the guarded file.
type FileLock struct {
	path string
}

// lockPath derives the lock file path for a guarded file.
func lockPath(path string) string { return path + ".lock" }

// AcquireLock takes the exclusive lock guarding path, retrying for up to
// lockAttempts * lockRetryWait before failing with a *LockError wrapping
// ErrLockHeld.
func AcquireLock(path string) (*FileLock, error) {
	lp := lockPath(path)
	// The lock is taken before the guarded file is first written, so the
	// directory may not exist yet.
	if err := os.MkdirAll(filepath.Dir(lp), 0o755); err != nil {
		return nil, &LockError{Path: lp, Err: err}
	}
	for attempt := 0; attempt < lockAttempts; attempt++ {
		f, err := os.OpenFile(lp, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if err == nil {
			fmt.Fprintf(f, "pid=%d\ntime=%s\n", os.Getpid(), time.Now().UTC().Format(time.RFC3339))
			if cerr := f.Close(); cerr != nil {
				os.Remove(lp)
				return nil, &LockError{Path: lp, Err: cerr}
			}
			return &FileLock{path: lp}, nil
		}
		if !os.IsExist(err) {
			return nil, &LockError{Path: lp, Err: err}
		}
		time.Sleep(lockRetryWait)
	}
	return nil, &LockError{Path: lp, Err: ErrLockHeld}
}

// Release removes the lock file. Safe to call once per acquired lock.
func (l *FileLock) Release() error {
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("releasing lock %s: %w", l.path, err)
	}
	return nil
}

// WithLock runs fn while holding the lock guarding path.
func WithLock(path string, fn func() error) error {
	lock, err := AcquireLock(path)
	if err != nil {
		return err
	}
	defer lock.Release()
	return fn()
}

// WithLocks runs fn while holding locks on both the global and repo
// playbook files. The global lock is always taken first so concurrent
// reflections cannot deadlock against each other.
func WithLocks(globalPath, repoPath string, fn func() error) error {
	return WithLock(globalPath, func() error {
		if repoPath == "" || repoPath == globalPath {
			return fn()
		}
		return WithLock(repoPath, fn)
	})
}
