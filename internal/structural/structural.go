// Package structural implements the Structural Validator (spec.md §4.6):
// for each clone, run a fixed closed-set detector per component kind over
// filesystem presence and manifest contents, never content-executable
// analysis.
package structural

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/scoutforge/scout/internal/modernity"
	"github.com/scoutforge/scout/internal/schema"
	"github.com/scoutforge/scout/internal/target"
)

// MatchedTarget is a detected component kind with evidence and focus roots
// (spec.md §3).
type MatchedTarget struct {
	Kind       target.Kind `json:"kind"`
	Evidence   []string    `json:"evidence"`
	FocusRoots []string    `json:"focus_roots"`
}

// Validate implements schema.Validator.
func (m *MatchedTarget) Validate() error {
	validKinds := make([]string, len(target.AllKinds))
	for i, k := range target.AllKinds {
		validKinds[i] = string(k)
	}
	if err := schema.OneOf("kind", string(m.Kind), validKinds...); err != nil {
		return err
	}
	if len(m.Evidence) == 0 {
		return schema.NonEmpty("evidence", "")
	}
	return nil
}

// defaultFocusRoots gives each kind a sensible focus root when no more
// specific root was derived from evidence (spec.md §4.6).
var defaultFocusRoots = map[target.Kind][]string{
	target.KindMCPServer: {"."},
	target.KindCLI:       {"cmd"},
	target.KindSkill:     {"."},
	target.KindHook:      {"."},
	target.KindPlugin:    {"."},
	target.KindLibrary:   {"."},
}

type detectorFunc func(root string) (evidence []string, roots []string)

var detectors = map[target.Kind]detectorFunc{
	target.KindMCPServer: detectMCPServer,
	target.KindCLI:       detectCLI,
	target.KindSkill:     detectSkill,
	target.KindHook:      detectHook,
	target.KindPlugin:    detectPlugin,
	target.KindLibrary:   detectLibrary,
}

// BuildResult assembles a Validation Result from the outputs of Detect and
// modernity.Audit plus the carried Tier-1 score and computed Tier-2 score.
func BuildResult(identifier, localPath string, matched []MatchedTarget, mod *modernity.Report, tier1, tier2 float64, durationMS int64) Result {
	return Result{
		Identifier:       identifier,
		LocalPath:        localPath,
		Matched:          matched,
		ModernitySignals: mod.Signals,
		StructuralMatch:  len(matched),
		ModernityScore:   mod.Score,
		Tier1Score:       tier1,
		Tier2Score:       tier2,
		DurationMS:       durationMS,
	}
}

// Detect runs every detector over root and returns the kinds with at least
// one piece of evidence. The library detector is a fallback so that every
// repository with a manifest matches at least one kind.
func Detect(root string) []MatchedTarget {
	var matches []MatchedTarget
	for _, kind := range target.AllKinds {
		evidence, roots := detectors[kind](root)
		if len(evidence) == 0 {
			continue
		}
		if len(roots) == 0 {
			roots = defaultFocusRoots[kind]
		}
		matches = append(matches, MatchedTarget{Kind: kind, Evidence: evidence, FocusRoots: roots})
	}
	return matches
}

// Result is a Validation Result (spec.md §3): the matched kinds,
// modernity signals, and derived scores for one cloned repository.
type Result struct {
	Identifier      string             `json:"identifier"`
	LocalPath       string             `json:"local_path"`
	Matched         []MatchedTarget    `json:"matched"`
	ModernitySignals []modernity.Signal `json:"modernity_signals"`
	StructuralMatch int                `json:"structural_match"`
	ModernityScore  float64            `json:"modernity_score"`
	Tier1Score      float64            `json:"tier1_score"`
	Tier2Score      float64            `json:"tier2_score"`
	DurationMS      int64              `json:"duration_ms"`
}

// Validate implements schema.Validator.
func (r *Result) Validate() error {
	if err := schema.NonEmpty("identifier", r.Identifier); err != nil {
		return err
	}
	if err := schema.NonEmpty("local_path", r.LocalPath); err != nil {
		return err
	}
	for i := range r.Matched {
		if err := r.Matched[i].Validate(); err != nil {
			return err
		}
	}
	if err := schema.NonNegativeInt("structural_match", r.StructuralMatch); err != nil {
		return err
	}
	if err := schema.Unit01("modernity_score", r.ModernityScore); err != nil {
		return err
	}
	if err := schema.Unit01("tier1_score", r.Tier1Score); err != nil {
		return err
	}
	if err := schema.Unit01("tier2_score", r.Tier2Score); err != nil {
		return err
	}
	return schema.NonNegativeInt("duration_ms", int(r.DurationMS))
}

// Summary is the validate-summary.json artifact.
type Summary struct {
	Results []Result `json:"results"`
}

// Validate validates every element.
func (s *Summary) Validate() error {
	for i := range s.Results {
		if err := s.Results[i].Validate(); err != nil {
			return err
		}
	}
	return nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

func readPackageJSON(root string) map[string]any {
	data, err := os.ReadFile(filepath.Join(root, "package.json"))
	if err != nil {
		return nil
	}
	var parsed map[string]any
	if json.Unmarshal(data, &parsed) != nil {
		return nil
	}
	return parsed
}

func detectMCPServer(root string) ([]string, []string) {
	var evidence []string
	if fileExists(filepath.Join(root, ".mcp.json")) {
		evidence = append(evidence, ".mcp.json present")
	}
	if fileExists(filepath.Join(root, "mcp.json")) {
		evidence = append(evidence, "mcp.json present")
	}
	if dirExists(filepath.Join(root, "mcp")) {
		evidence = append(evidence, "mcp/ directory present")
		return evidence, []string{"mcp"}
	}
	return evidence, nil
}

func detectCLI(root string) ([]string, []string) {
	var evidence []string
	if dirExists(filepath.Join(root, "cmd")) {
		evidence = append(evidence, "cmd/ directory present")
		return evidence, []string{"cmd"}
	}
	if pkg := readPackageJSON(root); pkg != nil {
		if _, ok := pkg["bin"]; ok {
			evidence = append(evidence, "package.json declares a bin entry")
			return evidence, []string{"."}
		}
	}
	return evidence, nil
}

func detectSkill(root string) ([]string, []string) {
	var evidence []string
	if fileExists(filepath.Join(root, "SKILL.md")) {
		evidence = append(evidence, "SKILL.md present")
	}
	if dirExists(filepath.Join(root, ".claude", "skills")) {
		evidence = append(evidence, ".claude/skills directory present")
		return evidence, []string{".claude/skills"}
	}
	return evidence, nil
}

func detectHook(root string) ([]string, []string) {
	var evidence []string
	if dirExists(filepath.Join(root, ".husky")) {
		evidence = append(evidence, ".husky directory present")
		return evidence, []string{".husky"}
	}
	if fileExists(filepath.Join(root, ".pre-commit-config.yaml")) {
		evidence = append(evidence, ".pre-commit-config.yaml present")
	}
	return evidence, nil
}

func detectPlugin(root string) ([]string, []string) {
	var evidence []string
	if fileExists(filepath.Join(root, "plugin.json")) {
		evidence = append(evidence, "plugin.json present")
	}
	return evidence, nil
}

func detectLibrary(root string) ([]string, []string) {
	var evidence []string
	if fileExists(filepath.Join(root, "go.mod")) {
		evidence = append(evidence, "go.mod present")
	}
	if pkg := readPackageJSON(root); pkg != nil {
		if _, ok := pkg["main"]; ok {
			evidence = append(evidence, "package.json declares main")
		}
	}
	if fileExists(filepath.Join(root, "pyproject.toml")) || fileExists(filepath.Join(root, "setup.py")) {
		evidence = append(evidence, "Python packaging manifest present")
	}
	// Fallback: any manifest at all gives library a match, guaranteeing
	// every repo with a manifest has at least one matched kind.
	if len(evidence) == 0 {
		for _, manifest := range []string{"go.mod", "package.json", "pyproject.toml", "setup.py", "Cargo.toml"} {
			if fileExists(filepath.Join(root, manifest)) {
				evidence = append(evidence, "fallback: "+manifest+" present with no other library signal")
				break
			}
		}
	}
	return evidence, nil
}
