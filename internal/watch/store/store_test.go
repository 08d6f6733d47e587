package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/scoutforge/scout/internal/scouterr"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "scout.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestUpsertRepoIsIdempotentByFullName(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	r1, err := s.UpsertRepo(ctx, "owner/repo", "https://example.com/owner/repo", "main", "MIT")
	if err != nil {
		t.Fatalf("UpsertRepo: %v", err)
	}
	r2, err := s.UpsertRepo(ctx, "owner/repo", "https://example.com/owner/repo", "develop", "MIT")
	if err != nil {
		t.Fatalf("UpsertRepo (update): %v", err)
	}
	if r1.ID != r2.ID {
		t.Fatalf("expected same repo id across upserts, got %d and %d", r1.ID, r2.ID)
	}
	if r2.DefaultBranch != "develop" {
		t.Fatalf("expected default_branch updated, got %q", r2.DefaultBranch)
	}
}

func TestEnabledTrackedJoinsRepoMetadata(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	repo, err := s.UpsertRepo(ctx, "owner/repo", "https://example.com/owner/repo", "main", "")
	if err != nil {
		t.Fatalf("UpsertRepo: %v", err)
	}
	if _, err := s.UpsertTracked(ctx, repo.ID, "cli", []string{"src/cli"}, true, 6); err != nil {
		t.Fatalf("UpsertTracked: %v", err)
	}
	if _, err := s.UpsertTracked(ctx, repo.ID, "library", nil, false, 24); err != nil {
		t.Fatalf("UpsertTracked (disabled): %v", err)
	}

	tracked, repos, err := s.EnabledTracked(ctx)
	if err != nil {
		t.Fatalf("EnabledTracked: %v", err)
	}
	if len(tracked) != 1 || tracked[0].Kind != "cli" {
		t.Fatalf("expected exactly one enabled tracked row (cli), got %+v", tracked)
	}
	if repos[0].FullName != "owner/repo" {
		t.Fatalf("expected joined repo metadata, got %+v", repos[0])
	}
	if len(tracked[0].Paths) != 1 || tracked[0].Paths[0] != "src/cli" {
		t.Fatalf("expected tracked paths round-trip, got %v", tracked[0].Paths)
	}
}

func TestLatestSnapshotIsMaxIDRow(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	repo, _ := s.UpsertRepo(ctx, "owner/repo", "https://example.com/owner/repo", "", "")
	if _, ok, err := s.LatestSnapshot(ctx, repo.ID); err != nil || ok {
		t.Fatalf("expected no snapshot yet, ok=%v err=%v", ok, err)
	}

	if _, err := s.AppendSnapshot(ctx, repo.ID, "aaa111"); err != nil {
		t.Fatalf("AppendSnapshot: %v", err)
	}
	if _, err := s.AppendSnapshot(ctx, repo.ID, "bbb222"); err != nil {
		t.Fatalf("AppendSnapshot: %v", err)
	}

	latest, ok, err := s.LatestSnapshot(ctx, repo.ID)
	if err != nil || !ok {
		t.Fatalf("LatestSnapshot: ok=%v err=%v", ok, err)
	}
	if latest.HeadCommit != "bbb222" {
		t.Fatalf("expected latest snapshot to be the most recently appended, got %q", latest.HeadCommit)
	}
}

func TestSessionTransitionRejectsNonMonotonicMove(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	repo, _ := s.UpsertRepo(ctx, "owner/repo", "https://example.com/owner/repo", "", "")
	change, err := s.AppendChange(ctx, repo.ID, "aaa", "bbb", "cli", nil, false)
	if err != nil {
		t.Fatalf("AppendChange: %v", err)
	}
	session, err := s.AppendSession(ctx, change.ID, "/tmp/session")
	if err != nil {
		t.Fatalf("AppendSession: %v", err)
	}

	if err := s.TransitionSession(ctx, session.ID, SessionRunning, nil); err != nil {
		t.Fatalf("pending->running: %v", err)
	}
	code := 0
	if err := s.TransitionSession(ctx, session.ID, SessionSuccess, &code); err != nil {
		t.Fatalf("running->success: %v", err)
	}

	err = s.TransitionSession(ctx, session.ID, SessionPending, nil)
	if !scouterr.Is(err, scouterr.SessionInvalid) {
		t.Fatalf("expected SessionInvalid for success->pending, got %v", err)
	}
}

func TestDeleteRepoCascadesToDependentTables(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	repo, _ := s.UpsertRepo(ctx, "owner/repo", "https://example.com/owner/repo", "", "")
	if _, err := s.UpsertTracked(ctx, repo.ID, "cli", nil, true, 6); err != nil {
		t.Fatalf("UpsertTracked: %v", err)
	}
	if _, err := s.AppendSnapshot(ctx, repo.ID, "aaa"); err != nil {
		t.Fatalf("AppendSnapshot: %v", err)
	}
	change, err := s.AppendChange(ctx, repo.ID, "aaa", "bbb", "cli", nil, false)
	if err != nil {
		t.Fatalf("AppendChange: %v", err)
	}
	if _, err := s.AppendSession(ctx, change.ID, "/tmp/session"); err != nil {
		t.Fatalf("AppendSession: %v", err)
	}

	if err := s.DeleteRepo(ctx, repo.ID); err != nil {
		t.Fatalf("DeleteRepo: %v", err)
	}

	sessions, err := s.SessionsByRepo(ctx, repo.ID)
	if err != nil {
		t.Fatalf("SessionsByRepo: %v", err)
	}
	if len(sessions) != 0 {
		t.Fatalf("expected cascade delete to remove sessions, got %d", len(sessions))
	}
	if _, ok, _ := s.LatestSnapshot(ctx, repo.ID); ok {
		t.Fatal("expected cascade delete to remove snapshots")
	}
}

func TestUpsertTrackedEnforcesUniquePerRepoAndKind(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	repo, _ := s.UpsertRepo(ctx, "owner/repo", "https://example.com/owner/repo", "", "")
	first, err := s.UpsertTracked(ctx, repo.ID, "cli", []string{"a"}, true, 1)
	if err != nil {
		t.Fatalf("UpsertTracked: %v", err)
	}
	second, err := s.UpsertTracked(ctx, repo.ID, "cli", []string{"a", "b"}, true, 2)
	if err != nil {
		t.Fatalf("UpsertTracked (again): %v", err)
	}
	if first.ID != second.ID {
		t.Fatalf("expected same tracked row id for repeated (repo,kind), got %d and %d", first.ID, second.ID)
	}
	if len(second.Paths) != 2 {
		t.Fatalf("expected updated paths, got %v", second.Paths)
	}
}
