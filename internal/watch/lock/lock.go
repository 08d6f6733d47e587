// Package lock implements the Watch Lock (spec.md §4.12): a cross-process
// advisory lock over the watch store directory, grounded on the teacher's
// PID-file-under-a-created-directory convention in internal/service.Daemon.
// Mutual exclusion itself is a real OS file lock (gofrs/flock); staleness of
// an unreleased lock file is judged the same way cmd/scout-watchd judges its
// own PID file's liveness — by recording the holder's PID in the lock file
// and checking whether that process still exists — rather than by the lock
// file's age, since a legitimate holder's mtime does not advance while it
// holds the lock.
package lock

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/gofrs/flock"

	"github.com/scoutforge/scout/internal/scouterr"
)

// DefaultStaleThreshold is the age past which an unreleased lock file is
// considered abandoned and reclaimable (spec.md §4.12: "default 30 s").
const DefaultStaleThreshold = 30 * time.Second

// Options configures acquisition retry behavior.
type Options struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	StaleThreshold time.Duration
}

func (o Options) withDefaults() Options {
	if o.MaxRetries <= 0 {
		o.MaxRetries = 8
	}
	if o.InitialBackoff <= 0 {
		o.InitialBackoff = 50 * time.Millisecond
	}
	if o.MaxBackoff <= 0 {
		o.MaxBackoff = 2 * time.Second
	}
	if o.StaleThreshold <= 0 {
		o.StaleThreshold = DefaultStaleThreshold
	}
	return o
}

// Lock is an advisory lock over path.
type Lock struct {
	path string
	opts Options
	fl   *flock.Flock
}

// New returns a Lock bound to path; no file is created or locked yet.
func New(path string, opts Options) *Lock {
	return &Lock{path: path, opts: opts.withDefaults()}
}

// IsLocked non-destructively reports whether the lock is currently held by
// any process, without acquiring it.
func IsLocked(path string) (bool, error) {
	fl := flock.New(path)
	locked, err := fl.TryRLock()
	if err != nil {
		return false, scouterr.Wrap(scouterr.LockBusy, "probe watch lock state", err)
	}
	if locked {
		_ = fl.Unlock()
		return false, nil
	}
	return true, nil
}

// Acquire retries with bounded exponential backoff until the lock is held or
// the retry budget is exhausted. A lock file whose recorded holder process
// no longer exists is reclaimed rather than treated as an error; the age
// threshold only applies as a fallback for a lock file with no recorded
// holder pid.
func Acquire(ctx context.Context, path string, opts Options) (*Lock, error) {
	o := opts.withDefaults()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, scouterr.Wrap(scouterr.LockBusy, "create watch lock directory", err)
	}

	fl := flock.New(path)
	backoff := o.InitialBackoff

	for attempt := 0; attempt <= o.MaxRetries; attempt++ {
		locked, err := fl.TryLock()
		if err != nil {
			return nil, scouterr.Wrap(scouterr.LockBusy, "acquire watch lock", err)
		}
		if locked {
			writePID(path)
			return &Lock{path: path, opts: o, fl: fl}, nil
		}

		if isStale(path, o.StaleThreshold) {
			_ = os.Remove(path)
			fl = flock.New(path)
			continue
		}

		select {
		case <-ctx.Done():
			return nil, scouterr.Wrap(scouterr.LockBusy, "acquire watch lock", ctx.Err())
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > o.MaxBackoff {
			backoff = o.MaxBackoff
		}
	}

	return nil, scouterr.New(scouterr.LockBusy, "watch lock unavailable after retry budget exhausted")
}

// writePID records the current process's PID in the lock file so a later
// contending Acquire can tell a genuine long-running holder from one that
// crashed without releasing. Best-effort: a failure here only degrades
// staleness detection to the mtime fallback, it never fails acquisition.
func writePID(path string) {
	_ = os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644)
}

// isStale reports whether the lock file at path was left behind by a
// process that no longer exists. It trusts the PID recorded by writePID
// over the file's age: a legitimate holder's mtime never advances while it
// holds the lock, so age alone would eventually misclassify any
// long-running holder as abandoned. Only when the file predates PID
// recording (empty or unparseable content) does it fall back to the age
// threshold.
func isStale(path string, threshold time.Duration) bool {
	data, err := os.ReadFile(path)
	if err != nil {
		return false
	}
	pid, perr := strconv.Atoi(strings.TrimSpace(string(data)))
	if perr != nil {
		info, statErr := os.Stat(path)
		if statErr != nil {
			return false
		}
		return time.Since(info.ModTime()) > threshold
	}
	return !processAlive(pid)
}

// processAlive reports whether pid names a live process, the same
// liveness check cmd/scout-watchd uses for its own PID file.
func processAlive(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return proc.Signal(syscall.Signal(0)) == nil
}

// Release unlocks the lock. Safe to call multiple times.
func (l *Lock) Release() error {
	if l == nil || l.fl == nil {
		return nil
	}
	return l.fl.Unlock()
}

// WithLock acquires the lock, runs f while holding it, and guarantees
// release on every exit path including a panic inside f (spec.md §4.12,
// §7: "release is a guaranteed side effect on every exit path").
func WithLock(ctx context.Context, path string, opts Options, f func() error) (err error) {
	l, err := Acquire(ctx, path, opts)
	if err != nil {
		return err
	}
	defer func() {
		releaseErr := l.Release()
		if err == nil {
			err = releaseErr
		}
	}()
	return f()
}
