// Package fingerprint implements the Fingerprinter (spec.md §4.1): given a
// root directory, walk it once and produce an immutable Fingerprint. The
// traversal and glob matching are adapted from the teacher's
// pkg/index.Walker; classification and marker detection are new.
package fingerprint

import (
	"context"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/scoutforge/scout/internal/schema"
	"github.com/scoutforge/scout/internal/vcsutil"
)

const maxDepth = 10

// internalDenyList is consulted in addition to the caller-supplied ignore
// patterns; it always applies (spec.md §4.1 "internal deny-list").
var internalDenyList = []string{
	".git", ".hg", ".svn",
	"node_modules", "vendor", "dist", "build", "target",
	"__pycache__", ".venv", "venv", ".tox", ".mypy_cache",
	".pytest_cache", ".idea", ".vscode",
}

// extensionLanguage is the fixed lowercase-extension to language table.
var extensionLanguage = map[string]string{
	".go":    "Go",
	".ts":    "TypeScript",
	".tsx":   "TypeScript",
	".js":    "JavaScript",
	".jsx":   "JavaScript",
	".mjs":   "JavaScript",
	".py":    "Python",
	".rb":    "Ruby",
	".rs":    "Rust",
	".java":  "Java",
	".kt":    "Kotlin",
	".cs":    "C#",
	".c":     "C",
	".h":     "C",
	".cpp":   "C++",
	".cc":    "C++",
	".hpp":   "C++",
	".php":   "PHP",
	".swift": "Swift",
	".scala": "Scala",
	".ex":    "Elixir",
	".exs":   "Elixir",
	".sh":    "Shell",
	".lua":   "Lua",
}

// markerNames is the fixed list of marker files/directories recognized
// (spec.md §4.1 "a fixed list"). Each is recorded once if present anywhere
// under root within the depth cap.
var markerNames = []string{
	"go.mod", "package.json", "Cargo.toml", "pyproject.toml", "setup.py",
	"Gemfile", "pom.xml", "build.gradle", "composer.json",
	".github", "Dockerfile", "Makefile", "tsconfig.json",
	".mcp.json", "mcp.json",
}

// Fingerprint is an immutable snapshot of a source tree (spec.md §3).
type Fingerprint struct {
	RootPath  string         `json:"root_path"`
	CommitID  string         `json:"commit_id,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
	Languages map[string]int `json:"languages"`
	Markers   []string       `json:"markers"`
}

// Validate implements schema.Validator.
func (f *Fingerprint) Validate() error {
	if err := schema.NonEmpty("root_path", f.RootPath); err != nil {
		return err
	}
	if err := schema.RFC3339("timestamp", f.Timestamp); err != nil {
		return err
	}
	for lang, count := range f.Languages {
		if err := schema.NonEmpty("language", lang); err != nil {
			return err
		}
		if err := schema.NonNegativeInt("languages["+lang+"]", count); err != nil {
			return err
		}
	}
	return nil
}

// Options configures a Scan.
type Options struct {
	// ExcludeGlobs are additional user-configured patterns layered on top
	// of internalDenyList.
	ExcludeGlobs []string
}

// Scan walks root and produces a Fingerprint. Traversal errors for
// individual entries are skipped, never abort the scan (teacher's
// Walker.Walk convention); commit id resolution failure yields an absent
// commit id, never an error (spec.md §4.1).
func Scan(ctx context.Context, root string, opts Options, git vcsutil.Git) (*Fingerprint, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}

	languages := map[string]int{}
	markerSeen := map[string]bool{}
	var markers []string

	excludes := append([]string(nil), internalDenyList...)
	excludes = append(excludes, opts.ExcludeGlobs...)

	walkErr := filepath.WalkDir(absRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		relPath, _ := filepath.Rel(absRoot, path)
		if relPath == "." {
			return nil
		}
		depth := strings.Count(relPath, string(filepath.Separator)) + 1
		if depth > maxDepth {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		name := d.Name()
		if d.IsDir() {
			if isExcluded(name, relPath+"/", excludes) {
				return filepath.SkipDir
			}
			if isMarker(name) && !markerSeen[name] {
				markerSeen[name] = true
				markers = append(markers, name)
			}
			return nil
		}

		if isExcluded(name, relPath, excludes) {
			return nil
		}
		if isMarker(name) && !markerSeen[name] {
			markerSeen[name] = true
			markers = append(markers, name)
		}

		if lang, ok := extensionLanguage[strings.ToLower(filepath.Ext(name))]; ok {
			languages[lang]++
		}

		return nil
	})
	if walkErr != nil && walkErr != context.Canceled {
		return nil, walkErr
	}

	sort.Strings(markers)

	commitID := ""
	if id, err := git.CurrentCommit(ctx, absRoot); err == nil {
		commitID = id
	}

	return &Fingerprint{
		RootPath:  absRoot,
		CommitID:  commitID,
		Timestamp: time.Now().UTC(),
		Languages: languages,
		Markers:   markers,
	}, nil
}

func isMarker(name string) bool {
	for _, m := range markerNames {
		if name == m {
			return true
		}
	}
	return false
}

func isExcluded(name, relPath string, patterns []string) bool {
	for _, p := range patterns {
		if matchGlob(relPath, p) || matchGlob(name, p) || name == p {
			return true
		}
	}
	return false
}

// matchGlob performs the same simple/double-star glob matching as the
// teacher's pkg/index.Walker, normalized to forward slashes.
func matchGlob(path, pattern string) bool {
	path = strings.ReplaceAll(path, "\\", "/")
	pattern = strings.ReplaceAll(pattern, "\\", "/")
	path = strings.TrimSuffix(path, "/")
	pattern = strings.TrimSuffix(pattern, "/")

	if strings.Contains(pattern, "**") {
		return matchDoubleGlob(path, pattern)
	}
	return matchSimpleGlob(path, pattern)
}

func matchSimpleGlob(path, pattern string) bool {
	pi, si := 0, 0
	for pi < len(pattern) && si < len(path) {
		switch pattern[pi] {
		case '*':
			pi++
			if pi >= len(pattern) {
				return !strings.Contains(path[si:], "/")
			}
			for si < len(path) && path[si] != '/' {
				if matchSimpleGlob(path[si:], pattern[pi:]) {
					return true
				}
				si++
			}
			return matchSimpleGlob(path[si:], pattern[pi:])
		case '?':
			if path[si] == '/' {
				return false
			}
			pi++
			si++
		default:
			if pattern[pi] != path[si] {
				return false
			}
			pi++
			si++
		}
	}
	for pi < len(pattern) && pattern[pi] == '*' {
		pi++
	}
	return pi >= len(pattern) && si >= len(path)
}

func matchDoubleGlob(path, pattern string) bool {
	parts := strings.Split(pattern, "**")
	if parts[0] != "" && !strings.HasPrefix(path, strings.TrimSuffix(parts[0], "/")) {
		return false
	}
	if len(parts) > 1 && parts[len(parts)-1] != "" {
		trailing := strings.TrimPrefix(parts[len(parts)-1], "/")
		if !strings.HasSuffix(path, trailing) && !matchSimpleGlob(filepath.Base(path), trailing) {
			return false
		}
	}
	return true
}
