package fingerprint

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/scoutforge/scout/internal/procexec"
	"github.com/scoutforge/scout/internal/vcsutil"
)

type noopRunner struct{}

func (noopRunner) Run(ctx context.Context, dir string, env []string, argv ...string) (procexec.Result, error) {
	return procexec.Result{}, os.ErrNotExist
}

func TestScanClassifiesLanguagesAndMarkers(t *testing.T) {
	dir := t.TempDir()
	mustWrite(t, filepath.Join(dir, "go.mod"), "module x\n")
	mustWrite(t, filepath.Join(dir, "main.go"), "package main\n")
	mustWrite(t, filepath.Join(dir, "lib.go"), "package main\n")
	mustWrite(t, filepath.Join(dir, "README.md"), "# hi\n")
	if err := os.MkdirAll(filepath.Join(dir, "vendor", "dep"), 0o755); err != nil {
		t.Fatal(err)
	}
	mustWrite(t, filepath.Join(dir, "vendor", "dep", "skip.go"), "package dep\n")

	fp, err := Scan(context.Background(), dir, Options{}, vcsutil.New(noopRunner{}))
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}

	if fp.Languages["Go"] != 2 {
		t.Fatalf("expected 2 Go files (vendor excluded), got %d", fp.Languages["Go"])
	}
	foundGoMod := false
	for _, m := range fp.Markers {
		if m == "go.mod" {
			foundGoMod = true
		}
	}
	if !foundGoMod {
		t.Fatal("expected go.mod marker")
	}
	if fp.CommitID != "" {
		t.Fatal("expected absent commit id when git invocation fails")
	}
}

func TestScanIsDeterministicExceptTimestamp(t *testing.T) {
	dir := t.TempDir()
	mustWrite(t, filepath.Join(dir, "main.go"), "package main\n")

	fp1, err := Scan(context.Background(), dir, Options{}, vcsutil.New(noopRunner{}))
	if err != nil {
		t.Fatal(err)
	}
	fp2, err := Scan(context.Background(), dir, Options{}, vcsutil.New(noopRunner{}))
	if err != nil {
		t.Fatal(err)
	}

	if fp1.RootPath != fp2.RootPath {
		t.Fatal("expected stable root path")
	}
	if len(fp1.Languages) != len(fp2.Languages) || fp1.Languages["Go"] != fp2.Languages["Go"] {
		t.Fatal("expected stable language counts")
	}
}

func mustWrite(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}
