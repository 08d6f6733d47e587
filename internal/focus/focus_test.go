package focus

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/scoutforge/scout/internal/structural"
	"github.com/scoutforge/scout/internal/target"
)

func TestBuildResolvesEntrypointsAndScopeRoots(t *testing.T) {
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "cmd", "x"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "cmd", "x", "main.go"), []byte("package main\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "README.md"), []byte("# hi\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	matched := []structural.MatchedTarget{
		{Kind: target.KindCLI, Evidence: []string{"cmd/ present"}, FocusRoots: []string{"cmd"}},
	}

	bundle := Build("owner/repo", dir, matched, Options{})
	if len(bundle.Entrypoints) == 0 {
		t.Fatal("expected at least one entrypoint")
	}
	if len(bundle.ScopeRoots) == 0 {
		t.Fatal("expected at least one scope root")
	}
	foundMainGo := false
	for _, f := range bundle.Files {
		if f.Path == filepath.Join("cmd", "x", "main.go") {
			foundMainGo = true
		}
	}
	if !foundMainGo {
		t.Fatal("expected main.go to be included in the bundled files")
	}
}

func TestDedupScopeRootsDropsPrefixedRoots(t *testing.T) {
	kept := dedupScopeRoots(map[string]bool{"cmd": true, "cmd/x": true, "pkg": true})
	if len(kept) != 2 {
		t.Fatalf("expected cmd/x to be dropped as prefixed by cmd, got %v", kept)
	}
}

func TestFilesAreSortedAscendingBySize(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "big.go"), []byte("package main\n// padding padding padding padding\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "small.go"), []byte("package main\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	matched := []structural.MatchedTarget{
		{Kind: target.KindLibrary, Evidence: []string{"go.mod present"}, FocusRoots: []string{"."}},
	}
	bundle := Build("owner/repo", dir, matched, Options{})
	for i := 1; i < len(bundle.Files); i++ {
		if bundle.Files[i].SizeBytes < bundle.Files[i-1].SizeBytes {
			t.Fatal("expected files sorted ascending by size")
		}
	}
}
