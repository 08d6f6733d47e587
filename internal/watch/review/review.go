// Package review implements the Review Launcher (spec.md §4.15): validate a
// session directory, check reviewer tool availability, invoke the external
// reviewer subprocess with the session directory as its working directory,
// and transition the session's store row through its terminal states. The
// launcher never mutates session files itself.
package review

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/scoutforge/scout/internal/procexec"
	"github.com/scoutforge/scout/internal/scouterr"
	"github.com/scoutforge/scout/internal/watch/store"
)

// DefaultTimeout is the per-invocation reviewer timeout (spec.md §5:
// "default 30 min").
const DefaultTimeout = 30 * time.Minute

// requiredEntries are the session directory members validated before launch
// (spec.md §4.15).
var requiredEntries = []string{"REVIEW_INSTRUCTIONS.md", "review_context.json", "repo", "OUTPUT"}

// Options configures one launch.
type Options struct {
	ReviewerCommand []string
	Timeout         time.Duration
	Interactive     bool
}

func (o Options) withDefaults() Options {
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	return o
}

// Outcome is the terminal disposition of one reviewer invocation.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
	OutcomeTimeout Outcome = "timeout"
	OutcomeSignal  Outcome = "signal"
)

// Result is the outcome of a Launch call.
type Result struct {
	Outcome  Outcome
	ExitCode int
	Stdout   string
	Stderr   string
}

// Launcher invokes reviewer subprocesses against validated sessions.
type Launcher struct {
	Runner procexec.Runner
	Store  *store.Store
}

// ValidateSessionDir checks that sessionDir contains every required member
// and either diff.patch or a chunks/ directory (spec.md §4.15).
func ValidateSessionDir(sessionDir string) error {
	for _, entry := range requiredEntries {
		path := filepath.Join(sessionDir, entry)
		if _, err := os.Stat(path); err != nil {
			return scouterr.Wrap(scouterr.SessionInvalid, "session missing required entry "+entry, err)
		}
	}
	hasSingleDiff := fileExists(filepath.Join(sessionDir, "diff.patch"))
	hasChunks := dirExists(filepath.Join(sessionDir, "chunks"))
	if !hasSingleDiff && !hasChunks {
		return scouterr.New(scouterr.SessionInvalid, "session has neither diff.patch nor chunks/")
	}
	return nil
}

// ReviewerAvailable reports whether the configured reviewer command's
// executable can be resolved on PATH.
func ReviewerAvailable(cmd []string) bool {
	if len(cmd) == 0 {
		return false
	}
	if filepath.IsAbs(cmd[0]) {
		info, err := os.Stat(cmd[0])
		return err == nil && !info.IsDir()
	}
	_, err := exec.LookPath(cmd[0])
	return err == nil
}

// Launch validates session, checks reviewer availability, transitions the
// session to running, invokes the reviewer, and records the terminal
// outcome. It returns before invoking the subprocess if validation or
// availability checks fail.
func (l Launcher) Launch(ctx context.Context, session store.Session, opts Options) (Result, error) {
	opts = opts.withDefaults()

	if err := ValidateSessionDir(session.Path); err != nil {
		return Result{}, err
	}
	if !ReviewerAvailable(opts.ReviewerCommand) {
		return Result{}, scouterr.New(scouterr.ReviewerUnavailable, "reviewer tool not found on PATH")
	}

	if l.Store != nil {
		if err := l.Store.TransitionSession(ctx, session.ID, store.SessionRunning, nil); err != nil {
			return Result{}, err
		}
	}

	runCtx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	res, err := l.Runner.Run(runCtx, session.Path, nil, opts.ReviewerCommand...)
	if err != nil {
		return Result{}, scouterr.Wrap(scouterr.ReviewerFailed, "invoke reviewer subprocess", err)
	}

	outcome, status, reportedExit := classify(res.ExitCode)
	result := Result{Outcome: outcome, ExitCode: reportedExit, Stdout: res.Stdout, Stderr: res.Stderr}

	if l.Store != nil {
		code := reportedExit
		if err := l.Store.TransitionSession(ctx, session.ID, status, &code); err != nil {
			return result, err
		}
	}

	switch outcome {
	case OutcomeTimeout:
		return result, scouterr.New(scouterr.ReviewerTimedOut, "reviewer timed out")
	case OutcomeFailure, OutcomeSignal:
		return result, scouterr.New(scouterr.ReviewerFailed, "reviewer exited non-zero")
	default:
		return result, nil
	}
}

// classify maps a raw subprocess exit code onto the outcome taxonomy,
// reporting the fixed exit codes spec.md §4.15 names for timeout (124) and
// signal (137) regardless of what the OS actually surfaced for a signaled
// process (procexec.OSRunner reports -1 in that case).
func classify(exitCode int) (Outcome, store.SessionStatus, int) {
	switch {
	case exitCode == 0:
		return OutcomeSuccess, store.SessionSuccess, 0
	case exitCode == 124:
		return OutcomeTimeout, store.SessionFailure, 124
	case exitCode < 0:
		return OutcomeSignal, store.SessionFailure, 137
	default:
		return OutcomeFailure, store.SessionFailure, exitCode
	}
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
