// Package target implements the Target Inferer (spec.md §4.2): given a
// root and a Fingerprint, apply a fixed set of weighted detectors and
// produce an ordered list of Component Targets with search hints.
package target

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/scoutforge/scout/internal/fingerprint"
	"github.com/scoutforge/scout/internal/schema"
	"github.com/scoutforge/scout/internal/scoring"
)

// Kind is one of the fixed component kinds (spec.md §3).
type Kind string

const (
	KindMCPServer Kind = "mcp-server"
	KindCLI       Kind = "cli"
	KindSkill     Kind = "skill"
	KindHook      Kind = "hook"
	KindPlugin    Kind = "plugin"
	KindLibrary   Kind = "library"
)

// AllKinds lists the fixed closed set, in detector-registration order.
var AllKinds = []Kind{KindMCPServer, KindCLI, KindSkill, KindHook, KindPlugin, KindLibrary}

// minConfidence is the default threshold below which a target is dropped
// (spec.md §4.2); internal/config.TargetConfig.MinConfidence overrides it.
const minConfidence = 0.2

// SearchHints carries the query-building inputs derived from a target.
type SearchHints struct {
	Keywords     []string `json:"keywords"`
	Topics       []string `json:"topics"`
	LanguageBias string   `json:"language_bias,omitempty"`
}

// ComponentTarget is a ranked, evidenced classification of the source tree
// (spec.md §3).
type ComponentTarget struct {
	Kind       Kind        `json:"kind"`
	Confidence float64     `json:"confidence"`
	Evidence   []string    `json:"evidence"`
	Hints      SearchHints `json:"hints"`
}

// Validate implements schema.Validator.
func (t *ComponentTarget) Validate() error {
	validKinds := make([]string, len(AllKinds))
	for i, k := range AllKinds {
		validKinds[i] = string(k)
	}
	if err := schema.OneOf("kind", string(t.Kind), validKinds...); err != nil {
		return err
	}
	if err := schema.Unit01("confidence", t.Confidence); err != nil {
		return err
	}
	if len(t.Evidence) == 0 {
		return schema.NonEmpty("evidence", "")
	}
	return nil
}

// List is the ordered output of Infer, satisfying schema.Validator as a
// whole so it can be saved/loaded as targets.json (spec.md §6).
type List struct {
	Targets []ComponentTarget `json:"targets"`
}

// Validate validates every element.
func (l *List) Validate() error {
	for i := range l.Targets {
		if err := l.Targets[i].Validate(); err != nil {
			return err
		}
	}
	return nil
}

// signal is one weighted piece of evidence a detector may contribute.
type signal struct {
	weight   float64
	evidence string
}

// detector produces signals for one kind, given the root and fingerprint.
// Detectors are pure over their inputs (spec.md §4.2); detector order is
// irrelevant to output ordering, only to determinism of the evidence list,
// which is why Infer sorts each detector's signals by evidence text.
type detector func(root string, fp *fingerprint.Fingerprint, manifests manifestSet) []signal

var detectors = map[Kind]detector{
	KindMCPServer: detectMCPServer,
	KindCLI:       detectCLI,
	KindSkill:     detectSkill,
	KindHook:      detectHook,
	KindPlugin:    detectPlugin,
	KindLibrary:   detectLibrary,
}

// Infer applies every detector and returns targets meeting minConfidence,
// ordered by confidence descending.
func Infer(root string, fp *fingerprint.Fingerprint, minConf float64) *List {
	if minConf <= 0 {
		minConf = minConfidence
	}
	manifests := loadManifests(root)
	bias := dominantLanguage(fp.Languages)

	var targets []ComponentTarget
	for _, kind := range AllKinds {
		signals := detectors[kind](root, fp, manifests)
		if len(signals) == 0 {
			continue
		}

		sort.Slice(signals, func(i, j int) bool { return signals[i].evidence < signals[j].evidence })

		var sum float64
		evidence := make([]string, 0, len(signals))
		for _, s := range signals {
			sum += s.weight
			evidence = append(evidence, s.evidence)
		}

		confidence := scoring.ClampRound(sum)
		if confidence < minConf {
			continue
		}

		targets = append(targets, ComponentTarget{
			Kind:       kind,
			Confidence: confidence,
			Evidence:   evidence,
			Hints:      hintsFor(kind, bias),
		})
	}

	sort.SliceStable(targets, func(i, j int) bool {
		if targets[i].Confidence != targets[j].Confidence {
			return targets[i].Confidence > targets[j].Confidence
		}
		return targets[i].Kind < targets[j].Kind
	})

	return &List{Targets: targets}
}

func hintsFor(kind Kind, bias string) SearchHints {
	switch kind {
	case KindMCPServer:
		return SearchHints{Keywords: []string{"mcp", "model context protocol", "mcp-server"}, Topics: []string{"mcp", "model-context-protocol"}, LanguageBias: bias}
	case KindCLI:
		return SearchHints{Keywords: []string{"cli", "command line tool"}, Topics: []string{"cli", "command-line"}, LanguageBias: bias}
	case KindSkill:
		return SearchHints{Keywords: []string{"skill", "agent skill"}, Topics: []string{"claude-skill", "agent"}, LanguageBias: bias}
	case KindHook:
		return SearchHints{Keywords: []string{"hook", "git hook"}, Topics: []string{"git-hooks", "pre-commit"}, LanguageBias: bias}
	case KindPlugin:
		return SearchHints{Keywords: []string{"plugin", "extension"}, Topics: []string{"plugin", "extension"}, LanguageBias: bias}
	default:
		return SearchHints{Keywords: []string{"library", "sdk"}, Topics: []string{"library"}, LanguageBias: bias}
	}
}

func dominantLanguage(langs map[string]int) string {
	best, bestCount := "", -1
	keys := make([]string, 0, len(langs))
	for k := range langs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if langs[k] > bestCount {
			best, bestCount = k, langs[k]
		}
	}
	return best
}

// manifestSet is the small set of parsed manifests detectors consult,
// loaded once per Infer call rather than per detector.
type manifestSet struct {
	packageJSON map[string]any
	hasGoMod    bool
	hasCmdDir   bool
	hasSetupPy  bool
	hasPyproject bool
	hasSkillMD  bool
	hasClaudeSkillsDir bool
	hasHuskyConfig     bool
	hasPreCommitConfig bool
	hasPluginManifest  bool
	hasVSCodeExtension bool
	readmeLower        string
}

func loadManifests(root string) manifestSet {
	var m manifestSet

	if data, err := os.ReadFile(filepath.Join(root, "package.json")); err == nil {
		var parsed map[string]any
		if json.Unmarshal(data, &parsed) == nil {
			m.packageJSON = parsed
		}
	}

	m.hasGoMod = fileExists(filepath.Join(root, "go.mod"))
	m.hasCmdDir = dirExists(filepath.Join(root, "cmd"))
	m.hasSetupPy = fileExists(filepath.Join(root, "setup.py"))
	m.hasPyproject = fileExists(filepath.Join(root, "pyproject.toml"))
	m.hasSkillMD = fileExists(filepath.Join(root, "SKILL.md"))
	m.hasClaudeSkillsDir = dirExists(filepath.Join(root, ".claude", "skills"))
	m.hasHuskyConfig = fileExists(filepath.Join(root, ".husky")) || dirExists(filepath.Join(root, ".husky"))
	m.hasPreCommitConfig = fileExists(filepath.Join(root, ".pre-commit-config.yaml"))
	m.hasPluginManifest = fileExists(filepath.Join(root, "plugin.json")) || fileExists(filepath.Join(root, ".clasp.json"))
	m.hasVSCodeExtension = fileExists(filepath.Join(root, "package.json")) && m.packageJSON != nil && m.packageJSON["engines"] != nil

	if data, err := os.ReadFile(filepath.Join(root, "README.md")); err == nil {
		m.readmeLower = strings.ToLower(string(data))
	}

	return m
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

func hasMarker(fp *fingerprint.Fingerprint, name string) bool {
	for _, m := range fp.Markers {
		if m == name {
			return true
		}
	}
	return false
}

func packageJSONHasField(m manifestSet, field string) bool {
	if m.packageJSON == nil {
		return false
	}
	_, ok := m.packageJSON[field]
	return ok
}

func detectMCPServer(root string, fp *fingerprint.Fingerprint, m manifestSet) []signal {
	var out []signal
	if hasMarker(fp, ".mcp.json") || hasMarker(fp, "mcp.json") {
		out = append(out, signal{0.5, "mcp manifest file present"})
	}
	if deps, ok := dependencyNames(m); ok {
		for _, d := range deps {
			if strings.Contains(d, "mcp") {
				out = append(out, signal{0.3, "dependency references mcp: " + d})
				break
			}
		}
	}
	if strings.Contains(m.readmeLower, "model context protocol") {
		out = append(out, signal{0.2, "README mentions Model Context Protocol"})
	}
	return out
}

func detectCLI(root string, fp *fingerprint.Fingerprint, m manifestSet) []signal {
	var out []signal
	if packageJSONHasField(m, "bin") {
		out = append(out, signal{0.5, "package.json declares a bin entry"})
	}
	if m.hasCmdDir {
		out = append(out, signal{0.3, "cmd/ directory present"})
	}
	if hasMarker(fp, "Makefile") && m.hasGoMod {
		out = append(out, signal{0.2, "go.mod with Makefile build entrypoint"})
	}
	return out
}

func detectSkill(root string, fp *fingerprint.Fingerprint, m manifestSet) []signal {
	var out []signal
	if m.hasSkillMD {
		out = append(out, signal{0.6, "SKILL.md present"})
	}
	if m.hasClaudeSkillsDir {
		out = append(out, signal{0.4, ".claude/skills directory present"})
	}
	return out
}

func detectHook(root string, fp *fingerprint.Fingerprint, m manifestSet) []signal {
	var out []signal
	if m.hasHuskyConfig {
		out = append(out, signal{0.5, ".husky configuration present"})
	}
	if m.hasPreCommitConfig {
		out = append(out, signal{0.4, ".pre-commit-config.yaml present"})
	}
	if packageJSONHasField(m, "husky") {
		out = append(out, signal{0.3, "package.json declares husky config"})
	}
	return out
}

func detectPlugin(root string, fp *fingerprint.Fingerprint, m manifestSet) []signal {
	var out []signal
	if m.hasPluginManifest {
		out = append(out, signal{0.5, "plugin manifest present"})
	}
	if m.hasVSCodeExtension {
		out = append(out, signal{0.3, "package.json declares an editor extension"})
	}
	return out
}

func detectLibrary(root string, fp *fingerprint.Fingerprint, m manifestSet) []signal {
	var out []signal
	if m.hasGoMod && !m.hasCmdDir {
		out = append(out, signal{0.4, "go.mod without cmd/ directory"})
	}
	if m.packageJSON != nil && !packageJSONHasField(m, "bin") {
		if _, hasMain := m.packageJSON["main"]; hasMain {
			out = append(out, signal{0.4, "package.json declares main without bin"})
		} else if _, hasModule := m.packageJSON["module"]; hasModule {
			out = append(out, signal{0.4, "package.json declares module without bin"})
		}
	}
	if m.hasSetupPy || m.hasPyproject {
		out = append(out, signal{0.2, "Python packaging manifest present"})
	}
	// Fallback (spec.md §4.6 analogue for targets): any manifest at all
	// gives library a minimal floor so a repo with no other signal still
	// infers something to search for.
	if len(out) == 0 && (m.hasGoMod || m.packageJSON != nil || m.hasSetupPy || m.hasPyproject) {
		out = append(out, signal{0.2, "manifest present with no other kind signal"})
	}
	return out
}

func dependencyNames(m manifestSet) ([]string, bool) {
	if m.packageJSON == nil {
		return nil, false
	}
	var names []string
	for _, field := range []string{"dependencies", "devDependencies"} {
		if deps, ok := m.packageJSON[field].(map[string]any); ok {
			for name := range deps {
				names = append(names, name)
			}
		}
	}
	return names, len(names) > 0
}
