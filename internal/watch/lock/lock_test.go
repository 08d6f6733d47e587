package lock

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/gofrs/flock"
)

// deadPID is a process id almost certainly unassigned on any real system
// (Linux caps pid_max well below this), used to simulate a holder that
// crashed without releasing the lock.
const deadPID = 2147483647

func TestAcquireThenReleaseAllowsReacquire(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scout.lock")
	ctx := context.Background()

	l1, err := Acquire(ctx, path, Options{})
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if err := l1.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}

	l2, err := Acquire(ctx, path, Options{})
	if err != nil {
		t.Fatalf("re-Acquire after release: %v", err)
	}
	_ = l2.Release()
}

func TestIsLockedReflectsHeldState(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scout.lock")
	ctx := context.Background()

	if locked, err := IsLocked(path); err != nil || locked {
		t.Fatalf("expected not locked initially, locked=%v err=%v", locked, err)
	}

	l, err := Acquire(ctx, path, Options{})
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	defer l.Release()

	if locked, err := IsLocked(path); err != nil || !locked {
		t.Fatalf("expected locked while held, locked=%v err=%v", locked, err)
	}
}

func TestWithLockReleasesOnError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scout.lock")
	ctx := context.Background()
	boom := errors.New("boom")

	err := WithLock(ctx, path, Options{}, func() error { return boom })
	if !errors.Is(err, boom) {
		t.Fatalf("expected WithLock to propagate f's error, got %v", err)
	}

	locked, err := IsLocked(path)
	if err != nil {
		t.Fatalf("IsLocked: %v", err)
	}
	if locked {
		t.Fatal("expected lock released after WithLock returns an error")
	}
}

func TestWithLockReleasesOnPanic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scout.lock")
	ctx := context.Background()

	func() {
		defer func() { _ = recover() }()
		_ = WithLock(ctx, path, Options{}, func() error { panic("boom") })
	}()

	locked, err := IsLocked(path)
	if err != nil {
		t.Fatalf("IsLocked: %v", err)
	}
	if locked {
		t.Fatal("expected lock released even though f panicked")
	}
}

func TestAcquireReclaimsAbandonedLockFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scout.lock")
	ctx := context.Background()

	// Simulate a process that crashed while holding the lock: take the OS
	// file lock directly (bypassing Acquire, so no PID gets written) and
	// never release it, then stamp the file with a PID that cannot
	// possibly be alive.
	holder := flock.New(path)
	locked, err := holder.TryLock()
	if err != nil || !locked {
		t.Fatalf("expected to take the underlying file lock, locked=%v err=%v", locked, err)
	}
	defer holder.Unlock()
	if err := os.WriteFile(path, []byte(strconv.Itoa(deadPID)), 0o644); err != nil {
		t.Fatalf("write fake holder pid: %v", err)
	}

	// Even a vanishingly small StaleThreshold must not matter once the
	// recorded pid is dead: reclaim happens on liveness, not age.
	l2, err := Acquire(ctx, path, Options{MaxRetries: 3, InitialBackoff: time.Millisecond, StaleThreshold: time.Nanosecond})
	if err != nil {
		t.Fatalf("Acquire after reclaiming an abandoned lock: %v", err)
	}
	_ = l2.Release()
}

func TestAcquireNeverReclaimsALiveHolderRegardlessOfAge(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scout.lock")

	holder := flock.New(path)
	locked, err := holder.TryLock()
	if err != nil || !locked {
		t.Fatalf("expected to take the underlying file lock, locked=%v err=%v", locked, err)
	}
	defer holder.Unlock()
	if err := os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644); err != nil {
		t.Fatalf("write real holder pid: %v", err)
	}
	// Back-date the file the way a long-running holder's mtime would look
	// after a Session Builder run that outlives the stale threshold.
	old := time.Now().Add(-time.Hour)
	if err := os.Chtimes(path, old, old); err != nil {
		t.Fatalf("Chtimes: %v", err)
	}

	if isStale(path, time.Nanosecond) {
		t.Fatal("a lock file naming a live pid must never be considered stale, no matter its age")
	}
}
