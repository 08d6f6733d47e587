// Package focus implements the Focus Bundler (spec.md §4.9): select
// entrypoints and a depth-budgeted file list per matched kind, and return a
// Focus Bundle. The Provenance type and its Validate method are defined
// here, but no Provenance record is built or written by this package or
// by the focus command. This package writes no files; the focus command
// in internal/cli writes FOCUS.json and FOCUS.md.
package focus

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/scoutforge/scout/internal/schema"
	"github.com/scoutforge/scout/internal/structural"
)

// Entrypoint is one resolved entrypoint for a matched kind.
type Entrypoint struct {
	Kind   string `json:"kind"`
	Path   string `json:"path"`
	Reason string `json:"reason"`
}

// FileRef is a bundled file with its size for reporting.
type FileRef struct {
	Path      string `json:"path"`
	SizeBytes int64  `json:"size_bytes"`
}

// Bundle is a Focus Bundle (spec.md §3).
type Bundle struct {
	Identifier  string       `json:"identifier"`
	Entrypoints []Entrypoint `json:"entrypoints"`
	ScopeRoots  []string     `json:"scope_roots"`
	Files       []FileRef    `json:"files"`
}

// Validate implements schema.Validator.
func (b *Bundle) Validate() error {
	if err := schema.NonEmpty("identifier", b.Identifier); err != nil {
		return err
	}
	for _, f := range b.Files {
		if err := schema.NonNegativeInt("size_bytes", int(f.SizeBytes)); err != nil {
			return err
		}
	}
	return nil
}

// Provenance is the immutable per-bundle record (spec.md §3).
type Provenance struct {
	Identifier string    `json:"identifier"`
	URL        string    `json:"url"`
	CommitID   string    `json:"commit_id"`
	License    string    `json:"license,omitempty"`
	Tier1Score float64   `json:"tier1_score"`
	Tier2Score float64   `json:"tier2_score"`
	ToolVersion string   `json:"tool_version"`
	RunID      string    `json:"run_id"`
	Timestamp  time.Time `json:"timestamp"`
}

// Validate implements schema.Validator.
func (p *Provenance) Validate() error {
	if err := schema.NonEmpty("identifier", p.Identifier); err != nil {
		return err
	}
	if err := schema.URL("url", p.URL); err != nil {
		return err
	}
	if err := schema.NonEmpty("commit_id", p.CommitID); err != nil {
		return err
	}
	if err := schema.Unit01("tier1_score", p.Tier1Score); err != nil {
		return err
	}
	if err := schema.Unit01("tier2_score", p.Tier2Score); err != nil {
		return err
	}
	if err := schema.NonEmpty("run_id", p.RunID); err != nil {
		return err
	}
	return schema.RFC3339("timestamp", p.Timestamp)
}

// perKindPriority is the fixed entrypoint priority list consulted after the
// validation-derived candidate paths for a kind, until the per-kind
// entrypoint cap is reached (spec.md §4.9 step b).
var perKindPriority = map[string][]string{
	"mcp-server": {"mcp/server.ts", "mcp/index.ts", "src/server.ts", "server.go"},
	"cli":        {"cmd", "bin/cli.js", "src/cli.ts"},
	"skill":      {"SKILL.md"},
	"hook":       {".husky/pre-commit", ".pre-commit-config.yaml"},
	"plugin":     {"plugin.json", "src/index.ts"},
	"library":    {"index.ts", "src/index.ts", "main.go"},
}

// includedExtensions is the fixed allow-list of bundled file extensions
// (spec.md §4.9).
var includedExtensions = map[string]bool{
	".go": true, ".ts": true, ".tsx": true, ".js": true, ".jsx": true,
	".py": true, ".md": true, ".json": true, ".toml": true, ".yaml": true, ".yml": true,
}

var denyList = []string{
	".git", "node_modules", "vendor", "dist", "build", "__pycache__", ".venv",
}

// Options configures the depth-budgeted walk.
type Options struct {
	MaxEntrypointsPerKind int
	MaxDirsPerTarget      int
	MaxFilesPerDir        int
	MaxDepth              int
}

// Build selects entrypoints and files for one Validation Result and
// produces a Bundle.
func Build(identifier, root string, matched []structural.MatchedTarget, opts Options) Bundle {
	if opts.MaxDepth <= 0 || opts.MaxDepth > 5 {
		opts.MaxDepth = 5
	}
	if opts.MaxEntrypointsPerKind <= 0 {
		opts.MaxEntrypointsPerKind = 5
	}
	if opts.MaxDirsPerTarget <= 0 {
		opts.MaxDirsPerTarget = 25
	}
	if opts.MaxFilesPerDir <= 0 {
		opts.MaxFilesPerDir = 50
	}

	var entrypoints []Entrypoint
	scopeRootSet := map[string]bool{}

	for _, m := range matched {
		kind := string(m.Kind)
		count := 0

		for _, root2 := range m.FocusRoots {
			if count >= opts.MaxEntrypointsPerKind {
				break
			}
			abs := filepath.Join(root, root2)
			if exists(abs) {
				entrypoints = append(entrypoints, Entrypoint{Kind: kind, Path: root2, Reason: "validation candidate path"})
				scopeRootSet[root2] = true
				count++
			}
		}

		for _, candidate := range perKindPriority[kind] {
			if count >= opts.MaxEntrypointsPerKind {
				break
			}
			abs := filepath.Join(root, candidate)
			if exists(abs) {
				entrypoints = append(entrypoints, Entrypoint{Kind: kind, Path: candidate, Reason: "fixed per-kind priority"})
				scopeRootSet[topLevelOf(candidate)] = true
				count++
			}
		}

		if kind == "library" && count == 0 {
			if exists(filepath.Join(root, "README.md")) {
				entrypoints = append(entrypoints, Entrypoint{Kind: kind, Path: "README.md", Reason: "README fallback"})
				scopeRootSet["."] = true
			}
		}
	}

	scopeRoots := dedupScopeRoots(scopeRootSet)

	var files []FileRef
	for _, sr := range scopeRoots {
		files = append(files, walkScopeRoot(root, sr, opts)...)
	}
	sort.Slice(files, func(i, j int) bool { return files[i].SizeBytes < files[j].SizeBytes })

	return Bundle{
		Identifier:  identifier,
		Entrypoints: entrypoints,
		ScopeRoots:  scopeRoots,
		Files:       files,
	}
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func topLevelOf(relPath string) string {
	parts := strings.SplitN(filepath.ToSlash(relPath), "/", 2)
	return parts[0]
}

// dedupScopeRoots drops any root that is a prefix of another (spec.md
// §4.9 "drop any root that is a prefix of another").
func dedupScopeRoots(set map[string]bool) []string {
	roots := make([]string, 0, len(set))
	for r := range set {
		roots = append(roots, r)
	}
	sort.Strings(roots)

	var kept []string
	for _, r := range roots {
		isPrefixed := false
		for _, k := range kept {
			if r == k || strings.HasPrefix(r+"/", k+"/") {
				isPrefixed = true
				break
			}
		}
		if !isPrefixed {
			kept = append(kept, r)
		}
	}
	return kept
}

func walkScopeRoot(root, scopeRoot string, opts Options) []FileRef {
	absRoot := filepath.Join(root, scopeRoot)
	var files []FileRef
	dirCount := 0

	_ = filepath.WalkDir(absRoot, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		rel, _ := filepath.Rel(root, path)
		depth := strings.Count(filepath.ToSlash(rel), "/")
		if depth > opts.MaxDepth {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if d.IsDir() {
			if isDenied(d.Name()) {
				return filepath.SkipDir
			}
			dirCount++
			if dirCount > opts.MaxDirsPerTarget {
				return filepath.SkipDir
			}
			return nil
		}

		if !includedExtensions[strings.ToLower(filepath.Ext(d.Name()))] {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return nil
		}
		files = append(files, FileRef{Path: rel, SizeBytes: info.Size()})
		return nil
	})

	return capPerDir(files, opts.MaxFilesPerDir)
}

func isDenied(name string) bool {
	for _, d := range denyList {
		if name == d {
			return true
		}
	}
	return false
}

func capPerDir(files []FileRef, maxPerDir int) []FileRef {
	counts := map[string]int{}
	var out []FileRef
	for _, f := range files {
		dir := filepath.Dir(f.Path)
		if counts[dir] >= maxPerDir {
			continue
		}
		counts[dir]++
		out = append(out, f)
	}
	return out
}
