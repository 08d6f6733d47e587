package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestCmdSessionRequiresPathOrRepo(t *testing.T) {
	env := newTestEnv(t, "headsha1234567")
	code, err := cmdSession(context.Background(), env, nil)
	if err == nil || code != ExitError {
		t.Fatalf("expected failure with no --path/--repo, got code=%d err=%v", code, err)
	}
}

func TestCmdSessionInspectRejectsIncompleteDirectory(t *testing.T) {
	env := newTestEnv(t, "headsha1234567")
	dir := filepath.Join(t.TempDir(), "session")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}

	code, err := cmdSession(context.Background(), env, []string{"--path=" + dir})
	if err == nil || code != ExitError {
		t.Fatalf("expected failure on an incomplete session directory, got code=%d err=%v", code, err)
	}
}

func TestCmdSessionInspectAcceptsCompleteDirectory(t *testing.T) {
	env := newTestEnv(t, "headsha1234567")
	dir := filepath.Join(t.TempDir(), "session")
	mustBuildSessionDir(t, dir)

	env.Stdout = &bytes.Buffer{}
	code, err := cmdSession(context.Background(), env, []string{"--path=" + dir})
	if err != nil || code != ExitSuccess {
		t.Fatalf("inspectSession: code=%d err=%v", code, err)
	}
}

func TestCmdReviewRequiresPath(t *testing.T) {
	env := newTestEnv(t, "headsha1234567")
	code, err := cmdReview(context.Background(), env, nil)
	if err == nil || code != ExitError {
		t.Fatalf("expected failure with no --path, got code=%d err=%v", code, err)
	}
}

func TestCmdReviewRejectsIncompleteSession(t *testing.T) {
	env := newTestEnv(t, "headsha1234567")
	dir := filepath.Join(t.TempDir(), "session")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}

	code, err := cmdReview(context.Background(), env, []string{"--path=" + dir})
	if err == nil || code != ExitError {
		t.Fatalf("expected failure reviewing an incomplete session, got code=%d err=%v", code, err)
	}
}

// mustBuildSessionDir creates the minimal set of entries
// review.ValidateSessionDir requires.
func mustBuildSessionDir(t *testing.T, dir string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Join(dir, "repo"), 0o755); err != nil {
		t.Fatalf("MkdirAll repo: %v", err)
	}
	if err := os.MkdirAll(filepath.Join(dir, "OUTPUT"), 0o755); err != nil {
		t.Fatalf("MkdirAll OUTPUT: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "REVIEW_INSTRUCTIONS.md"), []byte("# review\n"), 0o644); err != nil {
		t.Fatalf("write instructions: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "review_context.json"), []byte("{}"), 0o644); err != nil {
		t.Fatalf("write context: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "diff.patch"), []byte(""), 0o644); err != nil {
		t.Fatalf("write diff: %v", err)
	}
}
