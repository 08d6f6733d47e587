package clone

import (
	"context"
	"strings"
	"testing"

	"github.com/scoutforge/scout/internal/cachepath"
	"github.com/scoutforge/scout/internal/discovery"
	"github.com/scoutforge/scout/internal/procexec"
	"github.com/scoutforge/scout/internal/vcsutil"
)

type scriptedRunner struct {
	isWorkingCopy bool
}

func (r *scriptedRunner) Run(ctx context.Context, dir string, env []string, argv ...string) (procexec.Result, error) {
	joined := strings.Join(argv, " ")
	switch {
	case strings.Contains(joined, "is-inside-work-tree"):
		if r.isWorkingCopy {
			return procexec.Result{Stdout: "true\n"}, nil
		}
		return procexec.Result{ExitCode: 1}, nil
	case strings.Contains(joined, "rev-parse HEAD"):
		return procexec.Result{Stdout: "deadbeef\n"}, nil
	case strings.Contains(joined, "clone"):
		return procexec.Result{}, nil
	}
	return procexec.Result{}, nil
}

func TestRunClonesNewRepoAndSkipsFailures(t *testing.T) {
	runner := &scriptedRunner{isWorkingCopy: false}
	engine := NewEngine(vcsutil.New(runner), cachepath.Layout{Root: t.TempDir()})

	candidates := []discovery.Candidate{
		{Identifier: "owner/repo", URL: "https://example.com/owner/repo", Tier1Score: 0.9},
		{Identifier: "malformed-identifier", URL: "https://example.com/x", Tier1Score: 0.8},
	}

	manifest := engine.Run(context.Background(), candidates, 10)
	if len(manifest.Entries) != 1 {
		t.Fatalf("expected 1 successful entry, got %d", len(manifest.Entries))
	}
	if manifest.Entries[0].CommitID != "deadbeef" {
		t.Fatalf("unexpected commit id: %q", manifest.Entries[0].CommitID)
	}
}

func TestRunRespectsBudget(t *testing.T) {
	runner := &scriptedRunner{isWorkingCopy: true}
	engine := NewEngine(vcsutil.New(runner), cachepath.Layout{Root: t.TempDir()})

	candidates := []discovery.Candidate{
		{Identifier: "a/repo", URL: "https://example.com/a/repo", Tier1Score: 0.9},
		{Identifier: "b/repo", URL: "https://example.com/b/repo", Tier1Score: 0.8},
		{Identifier: "c/repo", URL: "https://example.com/c/repo", Tier1Score: 0.7},
	}

	manifest := engine.Run(context.Background(), candidates, 2)
	if len(manifest.Entries) != 2 {
		t.Fatalf("expected budget of 2, got %d", len(manifest.Entries))
	}
}
