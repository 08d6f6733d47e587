package cli

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/scoutforge/scout/internal/procexec"
	"github.com/scoutforge/scout/internal/scouterr"
	"github.com/scoutforge/scout/internal/watch/change"
	"github.com/scoutforge/scout/internal/watch/lock"
	"github.com/scoutforge/scout/internal/watch/review"
	"github.com/scoutforge/scout/internal/watch/session"
	"github.com/scoutforge/scout/internal/watch/store"
)

func openWatchStore(env *Env) (*store.Store, error) {
	return store.Open(env.Layout.DBPath())
}

func flagValue(args []string, name string) (string, bool) {
	prefix := "--" + name + "="
	for _, a := range args {
		if strings.HasPrefix(a, prefix) {
			return a[len(prefix):], true
		}
	}
	return "", false
}

func flagValues(args []string, name string) []string {
	v, ok := flagValue(args, name)
	if !ok || v == "" {
		return nil
	}
	return strings.Split(v, ",")
}

func flagBool(args []string, name string, def bool) bool {
	for _, a := range args {
		if a == "--"+name {
			return true
		}
		if a == "--no-"+name {
			return false
		}
	}
	return def
}

// cmdTrack adds or updates a tracked (repo, kind) pair in the Watch Store
// (spec.md §3, §4.11). Usage:
//
//	scout track --repo=owner/name --url=https://... --kind=cli [--paths=a,b] [--branch=main] [--disabled]
func cmdTrack(ctx context.Context, env *Env, args []string) (int, error) {
	fullName, ok := flagValue(args, "repo")
	if !ok || fullName == "" {
		return ExitError, scouterr.New(scouterr.ConfigInvalid, "track requires --repo=owner/name")
	}
	url, _ := flagValue(args, "url")
	kind, ok := flagValue(args, "kind")
	if !ok || kind == "" {
		return ExitError, scouterr.New(scouterr.ConfigInvalid, "track requires --kind")
	}
	branch, ok := flagValue(args, "branch")
	if !ok {
		branch = "main"
	}
	paths := flagValues(args, "paths")
	enabled := flagBool(args, "disabled", false) == false
	pollHours := env.Cfg.Watch.DefaultPollHours
	if v, ok := flagValue(args, "poll-hours"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			pollHours = n
		}
	}

	st, err := openWatchStore(env)
	if err != nil {
		return ExitError, err
	}
	defer st.Close()

	repo, err := st.UpsertRepo(ctx, fullName, url, branch, "")
	if err != nil {
		return ExitError, err
	}
	if _, err := st.UpsertTracked(ctx, repo.ID, kind, paths, enabled, pollHours); err != nil {
		return ExitError, err
	}

	fmt.Fprintf(env.Stdout, "track: %s (%s) tracked\n", fullName, kind)
	return ExitSuccess, nil
}

// cmdWatchAdd is an alias for track, matching the experimental command name
// spec.md §6 lists alongside the canonical verb.
func cmdWatchAdd(ctx context.Context, env *Env, args []string) (int, error) {
	return cmdTrack(ctx, env, args)
}

// cmdWatchList prints every enabled tracked entry and its most recent
// snapshot; disabled entries are not listed.
func cmdWatchList(ctx context.Context, env *Env, args []string) (int, error) {
	st, err := openWatchStore(env)
	if err != nil {
		return ExitError, err
	}
	defer st.Close()

	tracked, repos, err := st.EnabledTracked(ctx)
	if err != nil {
		return ExitError, err
	}

	fmt.Fprintf(env.Stdout, "%-30s %-10s %-8s %s\n", "repo", "kind", "enabled", "last snapshot")
	for i, t := range tracked {
		repo := repos[i]
		snap, ok, err := st.LatestSnapshot(ctx, repo.ID)
		if err != nil {
			return ExitError, err
		}
		last := "none"
		if ok {
			last = snap.HeadCommit
		}
		fmt.Fprintf(env.Stdout, "%-30s %-10s %-8v %s\n", repo.FullName, t.Kind, t.Enabled, last)
	}
	return ExitSuccess, nil
}

// cmdWatchRemove disables tracking for a repo/kind pair. Rows are kept (not
// deleted) so historical changes and sessions remain queryable; this mirrors
// the Watch Store's append-only snapshot/change history (spec.md §4.11).
func cmdWatchRemove(ctx context.Context, env *Env, args []string) (int, error) {
	fullName, ok := flagValue(args, "repo")
	if !ok || fullName == "" {
		return ExitError, scouterr.New(scouterr.ConfigInvalid, "watch-remove requires --repo=owner/name")
	}
	kind, ok := flagValue(args, "kind")
	if !ok || kind == "" {
		return ExitError, scouterr.New(scouterr.ConfigInvalid, "watch-remove requires --kind")
	}

	st, err := openWatchStore(env)
	if err != nil {
		return ExitError, err
	}
	defer st.Close()

	repo, err := st.RepoByFullName(ctx, fullName)
	if err != nil {
		return ExitError, err
	}
	existing, found, err := st.TrackedByRepoKind(ctx, repo.ID, kind)
	if err != nil {
		return ExitError, err
	}
	if !found {
		return ExitError, scouterr.New(scouterr.ConfigInvalid, fmt.Sprintf("no tracked entry for %s (%s)", fullName, kind))
	}
	if _, err := st.UpsertTracked(ctx, repo.ID, kind, existing.Paths, false, existing.PollIntervalHrs); err != nil {
		return ExitError, err
	}

	fmt.Fprintf(env.Stdout, "watch-remove: %s (%s) disabled\n", fullName, kind)
	return ExitSuccess, nil
}

// cmdWatchRunOnce runs the one-shot Change Detector over every enabled
// tracked entry, under the Watch Lock (spec.md §4.12, §4.13). Usage:
//
//	scout watch-run-once [--since-last] [--auto-review]
func cmdWatchRunOnce(ctx context.Context, env *Env, args []string) (int, error) {
	st, err := openWatchStore(env)
	if err != nil {
		return ExitError, err
	}
	defer st.Close()

	driver := change.Driver{
		Store:  st,
		Git:    env.Git,
		Layout: env.Layout,
		Sessions: session.Builder{
			Git:    env.Git,
			Layout: env.Layout,
			Store:  st,
		},
		Review: review.Launcher{Runner: procexec.OSRunner{}, Store: st},
	}

	opts := change.Options{
		SinceLast:  flagBool(args, "since-last", false),
		AutoReview: flagBool(args, "auto-review", false),
		Review: review.Options{
			ReviewerCommand: env.Cfg.Session.ReviewerCommand,
			Timeout:         time.Duration(env.Cfg.Session.ReviewerTimeoutSecs) * time.Second,
		},
	}

	lockOpts := lock.Options{
		MaxRetries:     env.Cfg.Watch.LockRetryAttempts,
		StaleThreshold: time.Duration(env.Cfg.Watch.LockStaleSeconds) * time.Second,
	}

	var results []change.EntryResult
	lockErr := lock.WithLock(ctx, env.Layout.LockPath(), lockOpts, func() error {
		r, runErr := driver.RunOnce(ctx, opts)
		results = r
		return runErr
	})
	if lockErr != nil {
		return ExitError, lockErr
	}

	var seeded, noop, changed, failed int
	for _, r := range results {
		switch r.Status {
		case change.StatusSeeded:
			seeded++
		case change.StatusNoOp:
			noop++
		case change.StatusChanged:
			changed++
			fmt.Fprintf(env.Stdout, "watch-run-once: %s changed, session at %s\n", r.RepoFullName, r.SessionPath)
		case change.StatusError:
			failed++
			fmt.Fprintf(env.Stderr, "watch-run-once: %s failed: %v\n", r.RepoFullName, r.Err)
		}
	}

	fmt.Fprintf(env.Stdout, "watch-run-once: %d seeded, %d unchanged, %d changed, %d failed\n", seeded, noop, changed, failed)
	return ExitSuccess, nil
}
