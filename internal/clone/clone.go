// Package clone implements the Clone Engine (spec.md §4.5): fetch the
// top-K Tier-1 candidates into the content-addressed cache, skipping
// repositories that already have a valid working copy.
package clone

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/scoutforge/scout/internal/cachepath"
	"github.com/scoutforge/scout/internal/discovery"
	"github.com/scoutforge/scout/internal/logger"
	"github.com/scoutforge/scout/internal/schema"
	"github.com/scoutforge/scout/internal/vcsutil"
)

// Entry is a Clone Entry (spec.md §3), one per successfully cloned or
// cache-hit repository.
type Entry struct {
	Identifier string    `json:"identifier"`
	URL        string    `json:"url"`
	LocalPath  string     `json:"local_path"`
	CommitID   string    `json:"commit_id"`
	Tier1Score float64   `json:"tier1_score"`
	FetchedAt  time.Time `json:"fetched_at"`
}

// Validate implements schema.Validator.
func (e *Entry) Validate() error {
	if err := schema.NonEmpty("identifier", e.Identifier); err != nil {
		return err
	}
	if err := schema.URL("url", e.URL); err != nil {
		return err
	}
	if err := schema.NonEmpty("local_path", e.LocalPath); err != nil {
		return err
	}
	if err := schema.NonEmpty("commit_id", e.CommitID); err != nil {
		return err
	}
	return schema.Unit01("tier1_score", e.Tier1Score)
}

// Manifest is the clone-manifest.json artifact.
type Manifest struct {
	Entries []Entry `json:"entries"`
}

// Validate validates every element.
func (m *Manifest) Validate() error {
	for i := range m.Entries {
		if err := m.Entries[i].Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Engine fetches candidates into the cache using a hardened Git wrapper.
type Engine struct {
	Git    vcsutil.Git
	Layout cachepath.Layout
}

// NewEngine constructs a clone Engine.
func NewEngine(git vcsutil.Git, layout cachepath.Layout) *Engine {
	return &Engine{Git: git, Layout: layout}
}

// Run fetches the top-budget candidates (already sorted descending by
// Tier1Score) into the cache. Per-repo failures are logged and excluded,
// never abort the batch (spec.md §4.5).
func (e *Engine) Run(ctx context.Context, candidates []discovery.Candidate, budget int) *Manifest {
	if budget > 0 && len(candidates) > budget {
		candidates = candidates[:budget]
	}

	manifest := &Manifest{}
	for _, c := range candidates {
		entry, err := e.cloneOne(ctx, c)
		if err != nil {
			logger.GetLogger().Warn().Str("repo", c.Identifier).Err(err).Msg("clone failed, excluding from manifest")
			continue
		}
		manifest.Entries = append(manifest.Entries, *entry)
	}
	return manifest
}

func (e *Engine) cloneOne(ctx context.Context, c discovery.Candidate) (*Entry, error) {
	owner, name, err := splitIdentifier(c.Identifier)
	if err != nil {
		return nil, err
	}
	dir := e.Layout.RepoDir(owner, name)

	if e.Git.IsValidWorkingCopy(ctx, dir) {
		commit, err := e.Git.CurrentCommit(ctx, dir)
		if err != nil {
			return nil, err
		}
		return &Entry{
			Identifier: c.Identifier,
			URL:        c.URL,
			LocalPath:  dir,
			CommitID:   commit,
			Tier1Score: c.Tier1Score,
			FetchedAt:  time.Now().UTC(),
		}, nil
	}

	// A shallow clone can fail on a transient network blip; retry a
	// handful of times before giving up on the candidate.
	bo := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 3)
	if err := backoff.Retry(func() error {
		return e.Git.ShallowClone(ctx, c.URL, dir)
	}, backoff.WithContext(bo, ctx)); err != nil {
		return nil, err
	}
	commit, err := e.Git.CurrentCommit(ctx, dir)
	if err != nil {
		return nil, err
	}

	return &Entry{
		Identifier: c.Identifier,
		URL:        c.URL,
		LocalPath:  dir,
		CommitID:   commit,
		Tier1Score: c.Tier1Score,
		FetchedAt:  time.Now().UTC(),
	}, nil
}

func splitIdentifier(identifier string) (owner, name string, err error) {
	parts := strings.SplitN(identifier, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("clone: malformed repository identifier %q", identifier)
	}
	return parts[0], parts[1], nil
}
