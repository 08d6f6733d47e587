package modernity

import (
	"os"
	"path/filepath"
	"testing"
)

func TestAuditScoresFractionOfSixChecks(t *testing.T) {
	dir := t.TempDir()
	pkg := `{"type":"module","engines":{"node":">=20.0.0"},"devDependencies":{"vitest":"^1.0.0"}}`
	if err := os.WriteFile(filepath.Join(dir, "package.json"), []byte(pkg), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "package-lock.json"), []byte("{}"), 0o644); err != nil {
		t.Fatal(err)
	}

	report := Audit(dir, 18)
	if len(report.Signals) != 6 {
		t.Fatalf("expected 6 signals, got %d", len(report.Signals))
	}
	if report.Score <= 0 || report.Score > 1 {
		t.Fatalf("score out of range: %v", report.Score)
	}

	passed := 0
	for _, s := range report.Signals {
		if s.Passed {
			passed++
		}
	}
	if report.Score != float64(passed)/6 {
		t.Fatalf("score %v does not match passed/total %v/6", report.Score, passed)
	}
}

func TestAuditEmptyRepoScoresZero(t *testing.T) {
	dir := t.TempDir()
	report := Audit(dir, 18)
	if report.Score != 0 {
		t.Fatalf("expected 0 score for empty repo, got %v", report.Score)
	}
}
