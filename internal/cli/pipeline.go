package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/scoutforge/scout/internal/clone"
	"github.com/scoutforge/scout/internal/discovery"
	"github.com/scoutforge/scout/internal/fingerprint"
	"github.com/scoutforge/scout/internal/focus"
	"github.com/scoutforge/scout/internal/ids"
	"github.com/scoutforge/scout/internal/lanes"
	"github.com/scoutforge/scout/internal/modernity"
	"github.com/scoutforge/scout/internal/report"
	"github.com/scoutforge/scout/internal/schema"
	"github.com/scoutforge/scout/internal/scoring"
	"github.com/scoutforge/scout/internal/structural"
	"github.com/scoutforge/scout/internal/target"
)

func rootArg(args []string) string {
	for _, a := range args {
		if len(a) > len("--root=") && a[:len("--root=")] == "--root=" {
			return a[len("--root="):]
		}
	}
	return "."
}

// cmdScan runs the Fingerprinter and Target Inferer, writing fingerprint.json
// and targets.json (spec.md §4.1, §4.2).
func cmdScan(ctx context.Context, env *Env, args []string) (int, error) {
	root, err := filepath.Abs(rootArg(args))
	if err != nil {
		return ExitError, err
	}
	if err := env.ensureOutDir(); err != nil {
		return ExitError, err
	}

	fp, err := fingerprint.Scan(ctx, root, fingerprint.Options{ExcludeGlobs: env.Cfg.Index.ExcludeGlobs}, env.Git)
	if err != nil {
		return ExitError, err
	}
	if err := schema.Save(env.artifactPath("fingerprint.json"), fp); err != nil {
		return ExitError, err
	}

	targets := target.Infer(root, fp, env.Cfg.Target.MinConfidence)
	if err := schema.Save(env.artifactPath("targets.json"), targets); err != nil {
		return ExitError, err
	}

	fmt.Fprintf(env.Stdout, "scan: %d languages, %d targets\n", len(fp.Languages), len(targets.Targets))
	return ExitSuccess, nil
}

// cmdDiscover builds search lanes from targets.json and runs the Discovery
// Engine, writing candidates.tier1.json (spec.md §4.3, §4.4).
func cmdDiscover(ctx context.Context, env *Env, args []string) (int, error) {
	var targets target.List
	if err := schema.Load(env.artifactPath("targets.json"), &targets); err != nil {
		return ExitError, err
	}

	primaryLanguage := ""
	if len(targets.Targets) > 0 {
		primaryLanguage = targets.Targets[0].Hints.LanguageBias
	}

	ls := lanes.Build(targets.Targets, primaryLanguage, env.Cfg.Lanes.TopicCap, lanes.QualityFilters{
		MinStars:       env.Cfg.Lanes.MinStars,
		PushWindowDays: env.Cfg.Lanes.PushWindowDays,
	})

	client, err := newHostClient(env)
	if err != nil {
		return ExitError, err
	}

	engine := discovery.NewEngine(client, env.Layout, discovery.Options{
		Weights: discovery.Weights{
			Recency:  env.Cfg.Discovery.WeightRecency,
			Activity: env.Cfg.Discovery.WeightActivity,
			Lanes:    env.Cfg.Discovery.WeightLanes,
		},
		WindowDays:        env.Cfg.Discovery.WindowDays,
		ActivityDivisor:   env.Cfg.Discovery.ActivityDivisor,
		LaneCap:           env.Cfg.Discovery.LaneCap,
		Tier1Cap:          env.Cfg.Discovery.Tier1Cap,
		LicenseAllowList:  env.Cfg.Discovery.LicenseAllowList,
		ExclusionKeywords: env.Cfg.Discovery.ExclusionKeywords,
	})

	list, err := engine.Run(ctx, ls)
	if err != nil {
		return ExitError, err
	}
	if err := env.ensureOutDir(); err != nil {
		return ExitError, err
	}
	if err := schema.Save(env.artifactPath("candidates.tier1.json"), list); err != nil {
		return ExitError, err
	}

	fmt.Fprintf(env.Stdout, "discover: %d lanes, %d candidates\n", len(ls), len(list.Candidates))
	return ExitSuccess, nil
}

// cmdClone fetches Tier-1 candidates into the cache, writing
// clone-manifest.json (spec.md §4.5).
func cmdClone(ctx context.Context, env *Env, args []string) (int, error) {
	var list discovery.List
	if err := schema.Load(env.artifactPath("candidates.tier1.json"), &list); err != nil {
		return ExitError, err
	}

	engine := clone.NewEngine(env.Git, env.Layout)
	manifest := engine.Run(ctx, list.Candidates, env.Cfg.Clone.Budget)

	if err := env.ensureOutDir(); err != nil {
		return ExitError, err
	}
	if err := schema.Save(env.artifactPath("clone-manifest.json"), manifest); err != nil {
		return ExitError, err
	}

	fmt.Fprintf(env.Stdout, "clone: %d entries\n", len(manifest.Entries))
	return ExitSuccess, nil
}

// cmdValidate runs the Structural Validator, Modernity Auditor, and Tier-2
// Scorer over every clone entry, writing validate-summary.json (spec.md
// §4.6-§4.8).
func cmdValidate(ctx context.Context, env *Env, args []string) (int, error) {
	var manifest clone.Manifest
	if err := schema.Load(env.artifactPath("clone-manifest.json"), &manifest); err != nil {
		return ExitError, err
	}

	summary := structural.Summary{Results: make([]structural.Result, 0, len(manifest.Entries))}
	for _, entry := range manifest.Entries {
		matched := structural.Detect(entry.LocalPath)
		mod := modernity.Audit(entry.LocalPath, env.Cfg.Modernity.MinEngineMajor)
		tier2 := scoring.Tier2(entry.Tier1Score, len(matched), mod.Score, scoring.Tier2Weights{
			Structural: env.Cfg.Scoring.WeightStructural,
			Modernity:  env.Cfg.Scoring.WeightModernity,
		})
		result := structural.BuildResult(entry.Identifier, entry.LocalPath, matched, mod, entry.Tier1Score, tier2, 0)
		summary.Results = append(summary.Results, result)

		if err := writePerRepoValidation(env, entry.Identifier, &result); err != nil {
			return ExitError, err
		}
	}

	if err := env.ensureOutDir(); err != nil {
		return ExitError, err
	}
	if err := schema.Save(env.artifactPath("validate-summary.json"), &summary); err != nil {
		return ExitError, err
	}

	fmt.Fprintf(env.Stdout, "validate: %d repos\n", len(summary.Results))
	return ExitSuccess, nil
}

func writePerRepoValidation(env *Env, identifier string, result *structural.Result) error {
	owner, name, err := ids.Parse(identifier)
	if err != nil {
		owner, name = "_", ids.SafeName(identifier)
	}
	dir := env.artifactPath(filepath.Join("validate", owner, name))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	return schema.Save(filepath.Join(dir, "result.json"), result)
}

// cmdFocus runs the Focus Bundler over every matched validation result,
// writing per-repo focus bundles plus the focus index (spec.md §4.9).
func cmdFocus(ctx context.Context, env *Env, args []string) (int, error) {
	var summary structural.Summary
	if err := schema.Load(env.artifactPath("validate-summary.json"), &summary); err != nil {
		return ExitError, err
	}

	opts := focus.Options{
		MaxEntrypointsPerKind: env.Cfg.Focus.MaxEntrypointsPerKind,
		MaxDirsPerTarget:      env.Cfg.Focus.MaxDirsPerTarget,
		MaxFilesPerDir:        env.Cfg.Focus.MaxFilesPerDir,
		MaxDepth:              env.Cfg.Focus.MaxDepth,
	}

	var index []focusIndexEntry

	for _, result := range summary.Results {
		if len(result.Matched) == 0 {
			continue
		}
		bundle := focus.Build(result.Identifier, result.LocalPath, result.Matched, opts)

		owner, name, err := ids.Parse(result.Identifier)
		if err != nil {
			owner, name = "_", ids.SafeName(result.Identifier)
		}
		dir := env.artifactPath(filepath.Join("focus", owner, name))
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return ExitError, err
		}
		if err := schema.Save(filepath.Join(dir, "FOCUS.json"), &bundle); err != nil {
			return ExitError, err
		}
		if err := os.WriteFile(filepath.Join(dir, "FOCUS.md"), []byte(focusMarkdown(bundle)), 0o644); err != nil {
			return ExitError, err
		}

		index = append(index, focusIndexEntry{Identifier: result.Identifier, Path: dir, FileCount: len(bundle.Files)})
	}

	if err := env.ensureOutDir(); err != nil {
		return ExitError, err
	}
	indexJSON, err := json.MarshalIndent(index, "", "  ")
	if err != nil {
		return ExitError, err
	}
	if err := os.WriteFile(env.artifactPath("focus-index.json"), indexJSON, 0o644); err != nil {
		return ExitError, err
	}
	if err := os.WriteFile(env.artifactPath("focus-index.md"), []byte(focusIndexMarkdown(index)), 0o644); err != nil {
		return ExitError, err
	}

	fmt.Fprintf(env.Stdout, "focus: %d bundles\n", len(index))
	return ExitSuccess, nil
}

func focusMarkdown(b focus.Bundle) string {
	s := fmt.Sprintf("# Focus: %s\n\n## Entrypoints\n\n", b.Identifier)
	for _, e := range b.Entrypoints {
		s += fmt.Sprintf("- [%s] %s (%s)\n", e.Kind, e.Path, e.Reason)
	}
	s += fmt.Sprintf("\n## Scope roots\n\n")
	for _, r := range b.ScopeRoots {
		s += fmt.Sprintf("- %s\n", r)
	}
	s += fmt.Sprintf("\n%d files bundled.\n", len(b.Files))
	return s
}

// focusIndexEntry is one row of focus-index.json/.md.
type focusIndexEntry struct {
	Identifier string `json:"identifier"`
	Path       string `json:"path"`
	FileCount  int    `json:"file_count"`
}

func focusIndexMarkdown(index []focusIndexEntry) string {
	s := "# Focus index\n\n| identifier | path | files |\n|---|---|---|\n"
	for _, e := range index {
		s += fmt.Sprintf("| %s | %s | %d |\n", e.Identifier, e.Path, e.FileCount)
	}
	return s
}

// cmdCompare builds the ranked comparison report, writing report.json and
// REPORT.md, plus an optional digest (spec.md §4.10).
func cmdCompare(ctx context.Context, env *Env, args []string) (int, error) {
	var summary structural.Summary
	if err := schema.Load(env.artifactPath("validate-summary.json"), &summary); err != nil {
		return ExitError, err
	}

	ranked := make([]report.RankedCandidate, 0, len(summary.Results))
	for _, r := range summary.Results {
		kinds := make([]string, 0, len(r.Matched))
		for _, m := range r.Matched {
			kinds = append(kinds, string(m.Kind))
		}
		ranked = append(ranked, report.RankedCandidate{
			Identifier:      r.Identifier,
			Tier1Score:      r.Tier1Score,
			Tier2Score:      r.Tier2Score,
			StructuralMatch: r.StructuralMatch,
			ModernityScore:  r.ModernityScore,
			MatchedKinds:    kinds,
		})
	}

	runID := fmt.Sprintf("run-%d-%s", time.Now().UTC().Unix(), uuid.New().String()[:8])
	rep := report.Build(runID, rootArg(args), ranked, len(ranked), len(ranked), len(ranked))
	if err := rep.Validate(); err != nil {
		return ExitError, err
	}

	if err := env.ensureOutDir(); err != nil {
		return ExitError, err
	}
	if err := schema.Save(env.artifactPath("report.json"), rep); err != nil {
		return ExitError, err
	}
	if err := os.WriteFile(env.artifactPath("REPORT.md"), []byte(rep.Markdown()), 0o644); err != nil {
		return ExitError, err
	}

	for _, a := range args {
		if a == "--digest" {
			digest := rep.Digest()
			if err := os.WriteFile(env.artifactPath("DIGEST.md"), []byte(digest), 0o644); err != nil {
				return ExitError, err
			}
			digestJSON, _ := json.MarshalIndent(map[string]string{"digest": digest}, "", "  ")
			if err := os.WriteFile(env.artifactPath("digest.json"), digestJSON, 0o644); err != nil {
				return ExitError, err
			}
		}
	}

	fmt.Fprintf(env.Stdout, "compare: %d ranked candidates\n", len(ranked))
	return ExitSuccess, nil
}
