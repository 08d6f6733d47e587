package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultsValidate(t *testing.T) {
	if err := Defaults().Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
}

func TestLoadMergesGlobalAndProjectLayers(t *testing.T) {
	dir := t.TempDir()

	globalPath := filepath.Join(dir, "config.toml")
	globalTOML := "[clone]\nbudget = 7\n"
	if err := os.WriteFile(globalPath, []byte(globalTOML), 0o644); err != nil {
		t.Fatal(err)
	}

	projectPath := filepath.Join(dir, ".scoutrc.json")
	projectJSON := `{"discovery":{"tier1_cap":9}}`
	if err := os.WriteFile(projectPath, []byte(projectJSON), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(globalPath, projectPath)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Clone.Budget != 7 {
		t.Fatalf("expected global layer budget 7, got %d", cfg.Clone.Budget)
	}
	if cfg.Discovery.Tier1Cap != 9 {
		t.Fatalf("expected project layer tier1_cap 9, got %d", cfg.Discovery.Tier1Cap)
	}
}

func TestLoadMissingFilesFallBackToDefaults(t *testing.T) {
	dir := t.TempDir()
	cfg, err := Load(filepath.Join(dir, "nope.toml"), filepath.Join(dir, "nope.json"))
	if err != nil {
		t.Fatalf("Load with missing files should not error: %v", err)
	}
	if cfg.Clone.Budget != Defaults().Clone.Budget {
		t.Fatalf("expected default budget, got %d", cfg.Clone.Budget)
	}
}

func TestEnvOverrideWinsOverFileLayers(t *testing.T) {
	dir := t.TempDir()
	globalPath := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(globalPath, []byte("[clone]\nbudget = 7\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	t.Setenv("SCOUT_CLONE_BUDGET", "21")

	cfg, err := Load(globalPath, "")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Clone.Budget != 21 {
		t.Fatalf("expected env override 21, got %d", cfg.Clone.Budget)
	}
}

func TestEnvOverrideInvalidValueKeepsPreviousLayer(t *testing.T) {
	t.Setenv("SCOUT_CLONE_BUDGET", "not-a-number")
	cfg, err := Load("", "")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Clone.Budget != Defaults().Clone.Budget {
		t.Fatalf("invalid env value should not change budget, got %d", cfg.Clone.Budget)
	}
}

func TestValidateRejectsBadWeights(t *testing.T) {
	cfg := Defaults()
	cfg.Discovery.WeightRecency = 0.9
	cfg.Discovery.WeightActivity = 0.9
	cfg.Discovery.WeightLanes = 0.9
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error for weights summing over 1")
	}
}

func TestCloneIsIndependentOfSource(t *testing.T) {
	cfg := Defaults()
	clone := cfg.DeepCopy()
	clone.Index.ExcludeGlobs[0] = "mutated"
	if cfg.Index.ExcludeGlobs[0] == "mutated" {
		t.Fatal("DeepCopy should deep copy slices")
	}
}
