package target

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/scoutforge/scout/internal/fingerprint"
)

func TestInferDetectsCLIFromCmdDirAndGoMod(t *testing.T) {
	dir := t.TempDir()
	mustWriteFile(t, filepath.Join(dir, "go.mod"), "module x\n")
	mustWriteFile(t, filepath.Join(dir, "Makefile"), "build:\n\tgo build\n")
	if err := os.MkdirAll(filepath.Join(dir, "cmd", "x"), 0o755); err != nil {
		t.Fatal(err)
	}

	fp := &fingerprint.Fingerprint{
		RootPath:  dir,
		Timestamp: time.Now().UTC(),
		Languages: map[string]int{"Go": 3},
		Markers:   []string{"go.mod", "Makefile"},
	}

	list := Infer(dir, fp, 0)
	found := false
	for _, tgt := range list.Targets {
		if tgt.Kind == KindCLI {
			found = true
			if tgt.Confidence <= 0 || tgt.Confidence > 1 {
				t.Fatalf("confidence out of range: %v", tgt.Confidence)
			}
			if tgt.Hints.LanguageBias != "Go" {
				t.Fatalf("expected Go language bias, got %q", tgt.Hints.LanguageBias)
			}
		}
	}
	if !found {
		t.Fatal("expected cli target to be inferred")
	}
}

func TestInferEmptyTreeYieldsNoTargets(t *testing.T) {
	dir := t.TempDir()
	fp := &fingerprint.Fingerprint{RootPath: dir, Timestamp: time.Now().UTC(), Languages: map[string]int{}}

	list := Infer(dir, fp, 0.2)
	if len(list.Targets) != 0 {
		t.Fatalf("expected no targets for empty tree, got %d", len(list.Targets))
	}
}

func TestInferOrdersByConfidenceDescending(t *testing.T) {
	dir := t.TempDir()
	mustWriteFile(t, filepath.Join(dir, "SKILL.md"), "# skill\n")
	if err := os.MkdirAll(filepath.Join(dir, ".claude", "skills"), 0o755); err != nil {
		t.Fatal(err)
	}
	mustWriteFile(t, filepath.Join(dir, "setup.py"), "")

	fp := &fingerprint.Fingerprint{
		RootPath:  dir,
		Timestamp: time.Now().UTC(),
		Languages: map[string]int{"Python": 1},
		Markers:   []string{"SKILL.md", "setup.py"},
	}

	list := Infer(dir, fp, 0)
	for i := 1; i < len(list.Targets); i++ {
		if list.Targets[i].Confidence > list.Targets[i-1].Confidence {
			t.Fatal("expected descending confidence order")
		}
	}
}

func mustWriteFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}
