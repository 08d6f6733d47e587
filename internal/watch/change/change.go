// Package change implements the Change Detector (spec.md §4.13): the
// one-shot driver that, for every enabled tracked entry, resolves the
// remote head, diffs it against the latest snapshot, and on a genuine move
// invokes the Session Builder and optionally the Review Launcher. Callers
// are expected to run RunOnce under the watch lock (internal/watch/lock);
// this package does not acquire it itself, since the lock's critical
// section is a CLI/daemon-layer concern, not a per-entry one.
package change

import (
	"context"
	"regexp"
	"strings"

	"github.com/scoutforge/scout/internal/cachepath"
	"github.com/scoutforge/scout/internal/logger"
	"github.com/scoutforge/scout/internal/scouterr"
	"github.com/scoutforge/scout/internal/vcsutil"
	"github.com/scoutforge/scout/internal/watch/review"
	"github.com/scoutforge/scout/internal/watch/session"
	"github.com/scoutforge/scout/internal/watch/store"
)

// Options configures one RunOnce pass.
type Options struct {
	SinceLast  bool
	AutoReview bool
	Review     review.Options
}

// Status is the per-entry outcome RunOnce reports.
type Status string

const (
	StatusSeeded  Status = "seeded"
	StatusNoOp    Status = "noop"
	StatusChanged Status = "changed"
	StatusError   Status = "error"
)

// EntryResult is the outcome for one tracked entry, kept separate per entry
// so that one failure never aborts the batch (spec.md §4.13 failure
// policy).
type EntryResult struct {
	RepoFullName string
	Kind         string
	Status       Status
	ChangeID     int64
	SessionPath  string
	Drift        bool
	Err          error
}

// Driver ties the store, VCS layer, session builder, and review launcher
// together for the one-shot watch operation.
type Driver struct {
	Store    *store.Store
	Git      vcsutil.Git
	Layout   cachepath.Layout
	Sessions session.Builder
	Review   review.Launcher
}

var unsafeChars = regexp.MustCompile(`[^a-zA-Z0-9._-]`)

func safeRepoName(fullName string) string {
	return unsafeChars.ReplaceAllString(fullName, "_")
}

// RunOnce executes the contract of spec.md §4.13 once over every enabled
// tracked entry.
func (d Driver) RunOnce(ctx context.Context, opts Options) ([]EntryResult, error) {
	tracked, repos, err := d.Store.EnabledTracked(ctx)
	if err != nil {
		return nil, err
	}

	results := make([]EntryResult, 0, len(tracked))
	for i, t := range tracked {
		repo := repos[i]
		result := d.runEntry(ctx, repo, t, opts)
		results = append(results, result)
		if result.Err != nil {
			logger.GetLogger().Warn().Str("repo", repo.FullName).Str("kind", t.Kind).Err(result.Err).Msg("watch: tracked entry failed")
		}
	}
	return results, nil
}

func (d Driver) runEntry(ctx context.Context, repo store.Repo, tracked store.Tracked, opts Options) EntryResult {
	base := EntryResult{RepoFullName: repo.FullName, Kind: tracked.Kind}

	owner, name, ok := splitFullName(repo.FullName)
	if !ok {
		base.Status = StatusError
		base.Err = scouterr.New(scouterr.ConfigInvalid, "malformed repo full name "+repo.FullName)
		return base
	}
	repoDir := d.Layout.RepoDir(owner, name)

	latest, hasSnapshot, err := d.Store.LatestSnapshot(ctx, repo.ID)
	if err != nil {
		base.Status = StatusError
		base.Err = err
		return base
	}

	if !hasSnapshot && !opts.SinceLast {
		head, err := d.Git.ResolveHead(ctx, repoDir, repo.DefaultBranch)
		if err != nil {
			base.Status = StatusError
			base.Err = scouterr.Wrap(scouterr.VcsFailed, "resolve remote head for seeding", err)
			return base
		}
		if _, err := d.Store.AppendSnapshot(ctx, repo.ID, head); err != nil {
			base.Status = StatusError
			base.Err = err
			return base
		}
		base.Status = StatusSeeded
		return base
	}

	head, err := d.Git.ResolveHead(ctx, repoDir, repo.DefaultBranch)
	if err != nil {
		base.Status = StatusError
		base.Err = scouterr.Wrap(scouterr.VcsFailed, "resolve remote head", err)
		return base
	}

	if hasSnapshot && head == latest.HeadCommit {
		base.Status = StatusNoOp
		return base
	}

	sessionResult, err := d.Sessions.Build(ctx, session.Request{
		RepoID:       repo.ID,
		RepoDir:      repoDir,
		RepoURL:      repo.URL,
		SafeRepo:     safeRepoName(repo.FullName),
		From:         latest.HeadCommit,
		To:           head,
		Kind:         tracked.Kind,
		TrackedPaths: tracked.Paths,
	})
	if err != nil {
		base.Status = StatusError
		base.Err = err
		return base
	}

	stats := &store.DiffStats{
		FilesChanged: sessionResult.Stats.FilesChanged,
		Insertions:   sessionResult.Stats.Insertions,
		Deletions:    sessionResult.Stats.Deletions,
	}
	changeRow, err := d.Store.AppendChange(ctx, repo.ID, latest.HeadCommit, head, tracked.Kind, stats, sessionResult.Drift)
	if err != nil {
		base.Status = StatusError
		base.Err = err
		return base
	}
	sessionRow, err := d.Store.AppendSession(ctx, changeRow.ID, sessionResult.Path)
	if err != nil {
		base.Status = StatusError
		base.Err = err
		return base
	}
	if _, err := d.Store.AppendSnapshot(ctx, repo.ID, head); err != nil {
		base.Status = StatusError
		base.Err = err
		return base
	}

	base.Status = StatusChanged
	base.ChangeID = changeRow.ID
	base.SessionPath = sessionResult.Path
	base.Drift = sessionResult.Drift

	if opts.AutoReview {
		reviewOpts := opts.Review
		reviewOpts.Interactive = false
		if _, err := d.Review.Launch(ctx, sessionRow, reviewOpts); err != nil {
			logger.GetLogger().Warn().Str("repo", repo.FullName).Err(err).Msg("watch: auto-review failed")
		}
	}

	return base
}

func splitFullName(fullName string) (owner, name string, ok bool) {
	parts := strings.SplitN(fullName, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}
