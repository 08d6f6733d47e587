package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/scoutforge/scout/internal/ids"
	"github.com/scoutforge/scout/internal/procexec"
	"github.com/scoutforge/scout/internal/scouterr"
	"github.com/scoutforge/scout/internal/watch/review"
	"github.com/scoutforge/scout/internal/watch/session"
	"github.com/scoutforge/scout/internal/watch/store"
)

// cmdSession inspects an existing session directory, or rebuilds one
// directly from a commit range without going through the Change Detector
// (spec.md §4.14, §6). Usage:
//
//	scout session --path=<dir>
//	scout session --repo=owner/name --url=... --kind=cli --from=<sha> --to=<sha> [--paths=a,b]
func cmdSession(ctx context.Context, env *Env, args []string) (int, error) {
	if path, ok := flagValue(args, "path"); ok && path != "" {
		return inspectSession(env, path)
	}
	return rebuildSession(ctx, env, args)
}

func inspectSession(env *Env, path string) (int, error) {
	if err := review.ValidateSessionDir(path); err != nil {
		fmt.Fprintf(env.Stderr, "session: %s is invalid: %v\n", path, err)
		return ExitError, err
	}
	entries, err := os.ReadDir(path)
	if err != nil {
		return ExitError, scouterr.Wrap(scouterr.SessionInvalid, "read session directory", err)
	}
	fmt.Fprintf(env.Stdout, "session: %s is valid\n", path)
	for _, e := range entries {
		fmt.Fprintf(env.Stdout, "  %s\n", e.Name())
	}
	return ExitSuccess, nil
}

func rebuildSession(ctx context.Context, env *Env, args []string) (int, error) {
	fullName, ok := flagValue(args, "repo")
	if !ok || fullName == "" {
		return ExitError, scouterr.New(scouterr.ConfigInvalid, "session requires --path=<dir> or --repo=owner/name")
	}
	from, ok := flagValue(args, "from")
	if !ok || from == "" {
		return ExitError, scouterr.New(scouterr.ConfigInvalid, "session rebuild requires --from=<sha>")
	}
	to, ok := flagValue(args, "to")
	if !ok || to == "" {
		return ExitError, scouterr.New(scouterr.ConfigInvalid, "session rebuild requires --to=<sha>")
	}
	kind, ok := flagValue(args, "kind")
	if !ok || kind == "" {
		return ExitError, scouterr.New(scouterr.ConfigInvalid, "session rebuild requires --kind")
	}
	url, _ := flagValue(args, "url")
	paths := flagValues(args, "paths")

	owner, name, err := ids.Parse(fullName)
	if err != nil {
		return ExitError, scouterr.Wrap(scouterr.ConfigInvalid, "parse --repo", err)
	}

	st, err := openWatchStore(env)
	if err != nil {
		return ExitError, err
	}
	defer st.Close()

	// Upsert rather than require a prior track: a rebuild is reachable for
	// repos that are not (yet) under watch, but SessionByChangeKey still
	// needs a stable repo_id to key the idempotence check on.
	repo, err := st.UpsertRepo(ctx, fullName, url, "main", "")
	if err != nil {
		return ExitError, err
	}

	builder := session.Builder{Git: env.Git, Layout: env.Layout, Store: st}
	result, err := builder.Build(ctx, session.Request{
		RepoID:           repo.ID,
		RepoDir:          env.Layout.RepoDir(owner, name),
		RepoURL:          url,
		SafeRepo:         ids.SafeName(fullName),
		From:             from,
		To:               to,
		Kind:             kind,
		TrackedPaths:     paths,
		UserExcludes:     env.Cfg.Session.ExtraExcludes,
		ReviewerSkillPin: env.Cfg.Session.ReviewerSkillPin,
		Budget: session.Budget{
			MaxTokens:        env.Cfg.Session.TokenBudget,
			MaxFilesPerChunk: env.Cfg.Session.MaxFilesPerChunk,
		},
	})
	if err != nil {
		return ExitError, err
	}

	if result.Reused {
		fmt.Fprintf(env.Stdout, "session: reused existing session at %s\n", result.Path)
	} else {
		fmt.Fprintf(env.Stdout, "session: built at %s (%d chunk(s), drift=%v)\n", result.Path, result.ChunkCount, result.Drift)
	}
	return ExitSuccess, nil
}

// cmdReview launches the reviewer subprocess on a session directory
// (spec.md §4.15, §6). Its exit code is the reviewer's own exit code, not
// a fixed 0/1, so callers scripting around the review command see the
// reviewer's actual disposition. Usage:
//
//	scout review --path=<session-dir> [--interactive]
//
// Passing both --run and --skip is rejected as ConfigInvalid before the
// watch store is opened.
func cmdReview(ctx context.Context, env *Env, args []string) (int, error) {
	path, ok := flagValue(args, "path")
	if !ok || path == "" {
		return ExitError, scouterr.New(scouterr.ConfigInvalid, "review requires --path=<session-dir>")
	}
	if flagBool(args, "run", false) && flagBool(args, "skip", false) {
		return ExitError, scouterr.New(scouterr.ConfigInvalid, "review: --run and --skip are mutually exclusive")
	}

	st, err := openWatchStore(env)
	if err != nil {
		return ExitError, err
	}
	defer st.Close()

	sess, found, err := st.SessionByPath(ctx, path)
	if err != nil {
		return ExitError, err
	}
	if !found {
		sess = store.Session{Path: filepath.Clean(path)}
	}

	launcher := review.Launcher{Runner: procexec.OSRunner{}, Store: st}

	opts := review.Options{
		ReviewerCommand: env.Cfg.Session.ReviewerCommand,
		Timeout:         time.Duration(env.Cfg.Session.ReviewerTimeoutSecs) * time.Second,
		Interactive:     flagBool(args, "interactive", false),
	}

	result, launchErr := launcher.Launch(ctx, sess, opts)
	if launchErr != nil {
		fmt.Fprintf(env.Stderr, "review: %v\n", launchErr)
		return result.ExitCode, launchErr
	}

	fmt.Fprintf(env.Stdout, "review: %s outcome=%s exit=%d\n", path, result.Outcome, result.ExitCode)
	return result.ExitCode, nil
}
