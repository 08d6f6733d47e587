// Package vcsutil wraps git subprocess invocations with the security
// invariant spec.md §4.5 and §6 require: every invocation neutralizes hook
// execution. This is core logic, not the external process-execution
// primitive itself — it is the hardening layer built on top of
// internal/procexec.Runner, grounded on the teacher's gitCmd helper in
// cmd/iter/main.go.
package vcsutil

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/scoutforge/scout/internal/procexec"
)

// hooksNeutralized returns the git global options that disable hook
// execution for the current invocation. core.hooksPath is pointed at a
// directory scout controls (so no relative "hooks/" directory is ever
// consulted); on read-only operations this is a no-op but it is applied
// uniformly, per the non-negotiable invariant in spec.md.
func hooksNeutralized() []string {
	return []string{"-c", "core.hooksPath=" + noopHooksDir()}
}

var noopHooksDirOnce string

// noopHooksDir returns (creating if needed) an empty directory used as
// git's hooksPath, so no repository-provided hook script is ever executed
// by a scout-invoked git subprocess.
func noopHooksDir() string {
	if noopHooksDirOnce != "" {
		return noopHooksDirOnce
	}
	dir, err := os.MkdirTemp("", "scout-nohooks-*")
	if err != nil {
		// Fall back to a path that simply does not exist; git treats a
		// missing hooksPath as "no hooks", which still satisfies the
		// invariant.
		dir = os.TempDir() + "/scout-nohooks-missing"
	}
	noopHooksDirOnce = dir
	return dir
}

// Git wraps a procexec.Runner with hook-neutralized git invocations.
type Git struct {
	Runner procexec.Runner
}

// New creates a Git wrapper. A nil runner defaults to procexec.OSRunner{}.
func New(runner procexec.Runner) Git {
	if runner == nil {
		runner = procexec.OSRunner{}
	}
	return Git{Runner: runner}
}

func (g Git) run(ctx context.Context, dir string, args ...string) (procexec.Result, error) {
	argv := append([]string{"git"}, hooksNeutralized()...)
	argv = append(argv, args...)
	res, err := g.Runner.Run(ctx, dir, nil, argv...)
	if err == nil && res.ExitCode != 0 {
		return res, fmt.Errorf("vcsutil: git %s: exit %d: %s", strings.Join(args, " "), res.ExitCode, strings.TrimSpace(res.Stderr))
	}
	return res, err
}

// ShallowClone performs a depth-1 clone of url into dir.
func (g Git) ShallowClone(ctx context.Context, url, dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	_, err := g.run(ctx, "", "clone", "--depth", "1", "--no-tags", url, dir)
	return err
}

// FetchAndReset fetches the remote head and resets dir's working copy to it
// without running any local hooks.
func (g Git) FetchAndReset(ctx context.Context, dir, ref string) error {
	if _, err := g.run(ctx, dir, "fetch", "--depth", "1", "origin", ref); err != nil {
		return err
	}
	_, err := g.run(ctx, dir, "reset", "--hard", "FETCH_HEAD")
	return err
}

// ResolveHead returns the commit id at the head of branch on origin
// without mutating the local working copy.
func (g Git) ResolveHead(ctx context.Context, dir, branch string) (string, error) {
	res, err := g.run(ctx, dir, "ls-remote", "origin", "refs/heads/"+branch)
	if err != nil {
		return "", err
	}
	fields := strings.Fields(res.Stdout)
	if len(fields) == 0 {
		return "", fmt.Errorf("vcsutil: no remote head for branch %q", branch)
	}
	return fields[0], nil
}

// CurrentCommit returns the commit id HEAD points to in dir.
func (g Git) CurrentCommit(ctx context.Context, dir string) (string, error) {
	res, err := g.run(ctx, dir, "rev-parse", "HEAD")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(res.Stdout), nil
}

// IsValidWorkingCopy reports whether dir already contains a usable git
// working copy (clone engine cache-hit check, spec.md §4.5).
func (g Git) IsValidWorkingCopy(ctx context.Context, dir string) bool {
	res, err := g.run(ctx, dir, "rev-parse", "--is-inside-work-tree")
	return err == nil && strings.TrimSpace(res.Stdout) == "true"
}

// AddWorktree creates a detached worktree at commit inside worktreeDir.
func (g Git) AddWorktree(ctx context.Context, repoDir, worktreeDir, commit string) error {
	_, err := g.run(ctx, repoDir, "worktree", "add", "--detach", worktreeDir, commit)
	return err
}

// RemoveWorktree detaches and deletes a worktree created by AddWorktree.
func (g Git) RemoveWorktree(ctx context.Context, repoDir, worktreeDir string) error {
	_, err := g.run(ctx, repoDir, "worktree", "remove", "--force", worktreeDir)
	return err
}

// DiffStat is a machine-readable summary of a diff.
type DiffStat struct {
	FilesChanged int
	Insertions   int
	Deletions    int
}

// Diff computes a hygienic diff between from and to commits, scoped to
// pathspecs (tracked paths) if any, with rename detection and excludes
// applied via git's negative pathspec syntax (spec.md §4.14 step 4).
func (g Git) Diff(ctx context.Context, repoDir, from, to string, pathspecs, excludes []string) (string, error) {
	args := []string{"diff", "--find-renames", "--find-copies", from + ".." + to, "--"}
	args = append(args, pathspecs...)
	for _, ex := range excludes {
		args = append(args, ":(exclude)"+ex)
	}
	res, err := g.run(ctx, repoDir, args...)
	if err != nil {
		return "", err
	}
	return res.Stdout, nil
}

// DiffStatOf computes numstat-style summary statistics for a diff produced
// with the same arguments as Diff.
func (g Git) DiffStatOf(ctx context.Context, repoDir, from, to string, pathspecs, excludes []string) (DiffStat, error) {
	args := []string{"diff", "--numstat", "--find-renames", from + ".." + to, "--"}
	args = append(args, pathspecs...)
	for _, ex := range excludes {
		args = append(args, ":(exclude)"+ex)
	}
	res, err := g.run(ctx, repoDir, args...)
	if err != nil {
		return DiffStat{}, err
	}

	var stat DiffStat
	for _, line := range strings.Split(strings.TrimSpace(res.Stdout), "\n") {
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 3 {
			continue
		}
		stat.FilesChanged++
		stat.Insertions += atoiSafe(fields[0])
		stat.Deletions += atoiSafe(fields[1])
	}
	return stat, nil
}

// RenameStatus returns the rename-status stream (git diff --name-status -M)
// for from..to, used by the drift detector over tracked paths.
func (g Git) RenameStatus(ctx context.Context, repoDir, from, to string, pathspecs []string) ([]RenameEntry, error) {
	args := []string{"diff", "--name-status", "-M", from + ".." + to, "--"}
	args = append(args, pathspecs...)
	res, err := g.run(ctx, repoDir, args...)
	if err != nil {
		return nil, err
	}

	var entries []RenameEntry
	for _, line := range strings.Split(strings.TrimSpace(res.Stdout), "\n") {
		if line == "" {
			continue
		}
		fields := strings.Split(line, "\t")
		if len(fields) < 2 {
			continue
		}
		entry := RenameEntry{Status: fields[0]}
		if strings.HasPrefix(fields[0], "R") && len(fields) >= 3 {
			entry.From, entry.To = fields[1], fields[2]
		} else {
			entry.From = fields[1]
			entry.To = fields[1]
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// RenameEntry is one line of a git --name-status -M stream.
type RenameEntry struct {
	Status string // "A", "M", "D", "R100", ...
	From   string
	To     string
}

func atoiSafe(s string) int {
	n := 0
	for _, c := range s {
		if c < '0' || c > '9' {
			return 0
		}
		n = n*10 + int(c-'0')
	}
	return n
}
