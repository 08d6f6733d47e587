package cli

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/scoutforge/scout/internal/cachepath"
	"github.com/scoutforge/scout/internal/config"
	"github.com/scoutforge/scout/internal/procexec"
	"github.com/scoutforge/scout/internal/vcsutil"
)

type scriptedWatchRunner struct {
	head string
}

func (r *scriptedWatchRunner) Run(ctx context.Context, dir string, env []string, argv ...string) (procexec.Result, error) {
	joined := strings.Join(argv, " ")
	if strings.Contains(joined, "ls-remote") {
		return procexec.Result{Stdout: r.head + "\trefs/heads/main\n"}, nil
	}
	return procexec.Result{}, nil
}

func newTestEnv(t *testing.T, head string) *Env {
	t.Helper()
	cfg := config.Defaults()
	layout := cachepath.Layout{Root: t.TempDir()}
	if err := layout.EnsureAll(); err != nil {
		t.Fatalf("EnsureAll: %v", err)
	}
	return &Env{
		Cfg:    cfg,
		Layout: layout,
		Git:    vcsutil.New(&scriptedWatchRunner{head: head}),
		Stdout: &bytes.Buffer{},
		Stderr: &bytes.Buffer{},
		OutDir: filepath.Join(layout.Root, ".scout"),
	}
}

func TestCmdTrackThenWatchListRoundTrips(t *testing.T) {
	env := newTestEnv(t, "headsha1234567")
	ctx := context.Background()

	code, err := cmdTrack(ctx, env, []string{"--repo=owner/repo", "--url=https://example.com/owner/repo", "--kind=cli"})
	if err != nil || code != ExitSuccess {
		t.Fatalf("cmdTrack: code=%d err=%v", code, err)
	}

	env.Stdout = &bytes.Buffer{}
	code, err = cmdWatchList(ctx, env, nil)
	if err != nil || code != ExitSuccess {
		t.Fatalf("cmdWatchList: code=%d err=%v", code, err)
	}
	out := env.Stdout.(*bytes.Buffer).String()
	if !strings.Contains(out, "owner/repo") || !strings.Contains(out, "cli") {
		t.Fatalf("expected tracked entry in output, got %q", out)
	}
}

func TestCmdTrackRequiresRepoAndKind(t *testing.T) {
	env := newTestEnv(t, "headsha1234567")
	ctx := context.Background()

	if code, err := cmdTrack(ctx, env, nil); err == nil || code != ExitError {
		t.Fatalf("expected failure without --repo, got code=%d err=%v", code, err)
	}
	if code, err := cmdTrack(ctx, env, []string{"--repo=owner/repo"}); err == nil || code != ExitError {
		t.Fatalf("expected failure without --kind, got code=%d err=%v", code, err)
	}
}

func TestCmdWatchRemoveRequiresExistingEntry(t *testing.T) {
	env := newTestEnv(t, "headsha1234567")
	ctx := context.Background()

	code, err := cmdWatchRemove(ctx, env, []string{"--repo=owner/repo", "--kind=cli"})
	if err == nil || code != ExitError {
		t.Fatalf("expected failure removing an untracked entry, got code=%d err=%v", code, err)
	}
}

func TestCmdWatchRunOnceSeedsNewlyTrackedRepo(t *testing.T) {
	env := newTestEnv(t, "headsha1234567")
	ctx := context.Background()

	if code, err := cmdTrack(ctx, env, []string{"--repo=owner/repo", "--url=https://example.com/owner/repo", "--kind=cli"}); err != nil || code != ExitSuccess {
		t.Fatalf("cmdTrack: code=%d err=%v", code, err)
	}

	env.Stdout = &bytes.Buffer{}
	code, err := cmdWatchRunOnce(ctx, env, nil)
	if err != nil || code != ExitSuccess {
		t.Fatalf("cmdWatchRunOnce: code=%d err=%v", code, err)
	}
	out := env.Stdout.(*bytes.Buffer).String()
	if !strings.Contains(out, "1 seeded") {
		t.Fatalf("expected a seeded entry, got %q", out)
	}
}
