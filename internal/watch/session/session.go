// Package session implements the Session Builder (spec.md §4.14): given a
// commit range for a tracked repo, materialize a detached working tree,
// compute a hygienic scoped diff, detect drift, chunk the diff by token
// budget, and write the review session artifact directory. Every artifact
// file is written directly inside finishSession; chunking follows
// pkg/index.Chunker's file-boundary, stable-ordering approach.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/scoutforge/scout/internal/cachepath"
	"github.com/scoutforge/scout/internal/scouterr"
	"github.com/scoutforge/scout/internal/vcsutil"
	"github.com/scoutforge/scout/internal/watch/store"
)

// defaultExcludes is the fixed exclusion pathspec set: lockfiles, binaries,
// build outputs, archives, generated files (spec.md §4.14 step 4).
var defaultExcludes = []string{
	"*.lock", "package-lock.json", "yarn.lock", "pnpm-lock.yaml", "go.sum",
	"*.exe", "*.dll", "*.so", "*.dylib", "*.bin",
	"dist/**", "build/**", "out/**", "target/**",
	"*.zip", "*.tar", "*.tar.gz", "*.tgz",
	"*.min.js", "*.generated.go", "*_pb2.py", "*.pb.go",
}

// Budget bounds the diff-chunking step.
type Budget struct {
	MaxTokens        int
	MaxFilesPerChunk int
}

func (b Budget) withDefaults() Budget {
	if b.MaxTokens <= 0 {
		b.MaxTokens = 6000
	}
	if b.MaxFilesPerChunk <= 0 {
		b.MaxFilesPerChunk = 12
	}
	return b
}

// Request is the Session Builder's input (spec.md §4.14).
type Request struct {
	RepoID            int64
	RepoDir           string
	RepoURL           string
	SafeRepo          string
	From              string
	To                string
	Kind              string
	TrackedPaths      []string
	UserExcludes      []string
	Budget            Budget
	ReviewerSkillPin  string
}

// Result is what the builder returns to its caller (the Change Detector).
type Result struct {
	Path       string
	Drift      bool
	Stats      vcsutil.DiffStat
	ChunkCount int
	Reused     bool
}

// Builder materializes review sessions.
type Builder struct {
	Git    vcsutil.Git
	Layout cachepath.Layout
	Store  *store.Store
}

// Build implements the full contract of spec.md §4.14.
func (b Builder) Build(ctx context.Context, req Request) (Result, error) {
	budget := req.Budget.withDefaults()

	if b.Store != nil {
		if existing, ok, err := b.Store.SessionByChangeKey(ctx, req.RepoID, req.From, req.To, req.Kind); err == nil && ok {
			return Result{Path: existing.Path, Reused: true}, nil
		}
	}

	if err := b.Git.FetchAndReset(ctx, req.RepoDir, req.To); err != nil {
		return Result{}, scouterr.Wrap(scouterr.VcsFailed, "materialize repository cache at new head", err)
	}

	date := time.Now().UTC().Format("2006-01-02")
	from7, to7 := short7(req.From), short7(req.To)
	sessionDir := b.Layout.SessionDir(req.SafeRepo, date, req.Kind, from7, to7)

	excludes := append(append([]string{}, defaultExcludes...), req.UserExcludes...)

	scopedDiff, err := b.Git.Diff(ctx, req.RepoDir, req.From, req.To, req.TrackedPaths, excludes)
	if err != nil {
		return Result{}, scouterr.Wrap(scouterr.VcsFailed, "compute scoped diff", err)
	}

	drift := false
	finalDiff := scopedDiff
	var driftSummary string

	if strings.TrimSpace(scopedDiff) == "" && len(req.TrackedPaths) > 0 {
		unscopedDiff, err := b.Git.Diff(ctx, req.RepoDir, req.From, req.To, nil, excludes)
		if err != nil {
			return Result{}, scouterr.Wrap(scouterr.VcsFailed, "compute unscoped diff for drift check", err)
		}
		if strings.TrimSpace(unscopedDiff) != "" {
			drift = true
			finalDiff = unscopedDiff
			driftSummary = "Scoped diff over tracked paths was empty, but the commit range contains unrelated changes. Adopting the unscoped diff for review."
		}
	} else if len(req.TrackedPaths) > 0 {
		renames, err := b.Git.RenameStatus(ctx, req.RepoDir, req.From, req.To, req.TrackedPaths)
		if err == nil {
			for _, r := range renames {
				if strings.HasPrefix(r.Status, "R") && r.From != r.To {
					drift = true
					driftSummary = fmt.Sprintf("Tracked path renamed: %s -> %s (%s).", r.From, r.To, r.Status)
					break
				}
			}
		}
	}

	if strings.TrimSpace(finalDiff) == "" {
		return Result{}, scouterr.New(scouterr.NoChangesInScope, "no changes within tracked scope between "+req.From+" and "+req.To)
	}

	if err := os.MkdirAll(sessionDir, 0o755); err != nil {
		return Result{}, scouterr.Wrap(scouterr.ArtifactInvalid, "create session directory", err)
	}

	worktreeDir := filepath.Join(sessionDir, "repo")
	if err := b.Git.AddWorktree(ctx, req.RepoDir, worktreeDir, req.To); err != nil {
		_ = os.RemoveAll(sessionDir)
		return Result{}, scouterr.Wrap(scouterr.VcsFailed, "create detached worktree", err)
	}

	result, err := b.finishSession(ctx, req, sessionDir, worktreeDir, finalDiff, drift, driftSummary, budget)
	if err != nil {
		_ = b.Git.RemoveWorktree(ctx, req.RepoDir, worktreeDir)
		_ = os.RemoveAll(sessionDir)
		return Result{}, err
	}
	return result, nil
}

func (b Builder) finishSession(ctx context.Context, req Request, sessionDir, worktreeDir, diffText string, drift bool, driftSummary string, budget Budget) (Result, error) {
	stat, err := b.Git.DiffStatOf(ctx, req.RepoDir, req.From, req.To, req.TrackedPaths, nil)
	if err != nil {
		stat = vcsutil.DiffStat{}
	}

	files := splitDiffByFile(diffText)
	chunks := chunkFiles(files, budget)

	if len(chunks) <= 1 {
		if err := os.WriteFile(filepath.Join(sessionDir, "diff.patch"), []byte(diffText), 0o644); err != nil {
			return Result{}, scouterr.Wrap(scouterr.ArtifactInvalid, "write diff.patch", err)
		}
	} else {
		chunksDir := filepath.Join(sessionDir, "chunks")
		if err := os.MkdirAll(chunksDir, 0o755); err != nil {
			return Result{}, scouterr.Wrap(scouterr.ArtifactInvalid, "create chunks directory", err)
		}
		var index strings.Builder
		index.WriteString("# Chunk index\n\n")
		for i, c := range chunks {
			name := fmt.Sprintf("diff.%03d.patch", i+1)
			content := joinPatches(c)
			if err := os.WriteFile(filepath.Join(chunksDir, name), []byte(content), 0o644); err != nil {
				return Result{}, scouterr.Wrap(scouterr.ArtifactInvalid, "write diff chunk", err)
			}
			fmt.Fprintf(&index, "%d. %s — %d file(s), ~%d tokens\n", i+1, name, len(c), estimateTokens(content))
			for _, f := range c {
				fmt.Fprintf(&index, "   - %s\n", f.Path)
			}
		}
		if err := os.WriteFile(filepath.Join(sessionDir, "CHUNK_INDEX.md"), []byte(index.String()), 0o644); err != nil {
			return Result{}, scouterr.Wrap(scouterr.ArtifactInvalid, "write CHUNK_INDEX.md", err)
		}
	}

	if drift {
		content := "# Drift\n\n" + driftSummary + "\n"
		if err := os.WriteFile(filepath.Join(sessionDir, "DRIFT.md"), []byte(content), 0o644); err != nil {
			return Result{}, scouterr.Wrap(scouterr.ArtifactInvalid, "write DRIFT.md", err)
		}
	}

	reviewCtx := reviewContext{
		RepoURL:          req.RepoURL,
		FromCommit:       req.From,
		ToCommit:         req.To,
		TargetKind:       req.Kind,
		TrackedPaths:     req.TrackedPaths,
		Drift:            drift,
		ChunkCount:       max(len(chunks), 1),
		EstimatedTokens:  estimateTokens(diffText),
		ReviewerSkillPin: req.ReviewerSkillPin,
		CreatedAt:        time.Now().UTC(),
	}
	ctxJSON, err := json.MarshalIndent(reviewCtx, "", "  ")
	if err != nil {
		return Result{}, scouterr.Wrap(scouterr.ArtifactInvalid, "marshal review_context.json", err)
	}
	if err := os.WriteFile(filepath.Join(sessionDir, "review_context.json"), ctxJSON, 0o644); err != nil {
		return Result{}, scouterr.Wrap(scouterr.ArtifactInvalid, "write review_context.json", err)
	}

	instructions := renderInstructions(reviewCtx)
	if err := os.WriteFile(filepath.Join(sessionDir, "REVIEW_INSTRUCTIONS.md"), []byte(instructions), 0o644); err != nil {
		return Result{}, scouterr.Wrap(scouterr.ArtifactInvalid, "write REVIEW_INSTRUCTIONS.md", err)
	}

	if err := os.MkdirAll(filepath.Join(sessionDir, "OUTPUT"), 0o755); err != nil {
		return Result{}, scouterr.Wrap(scouterr.ArtifactInvalid, "create OUTPUT directory", err)
	}

	return Result{Path: sessionDir, Drift: drift, Stats: stat, ChunkCount: reviewCtx.ChunkCount}, nil
}

type reviewContext struct {
	RepoURL          string    `json:"repo_url"`
	FromCommit       string    `json:"from_commit"`
	ToCommit         string    `json:"to_commit"`
	TargetKind       string    `json:"target_kind"`
	TrackedPaths     []string  `json:"tracked_paths"`
	Drift            bool      `json:"drift"`
	ChunkCount       int       `json:"chunk_count"`
	EstimatedTokens  int       `json:"estimated_tokens"`
	ReviewerSkillPin string    `json:"reviewer_skill_pin,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}

func renderInstructions(rc reviewContext) string {
	var b strings.Builder
	b.WriteString("# Review instructions\n\n")
	fmt.Fprintf(&b, "Commit range: %s..%s\n", rc.FromCommit, rc.ToCommit)
	fmt.Fprintf(&b, "Target kind: %s\n", rc.TargetKind)
	if len(rc.TrackedPaths) > 0 {
		fmt.Fprintf(&b, "Tracked paths: %s\n", strings.Join(rc.TrackedPaths, ", "))
	}
	if rc.Drift {
		b.WriteString("\nDrift detected: see DRIFT.md before relying on the scoped diff.\n")
	}
	if rc.ChunkCount > 1 {
		fmt.Fprintf(&b, "\nDiff split into %d chunks: see CHUNK_INDEX.md and chunks/.\n", rc.ChunkCount)
	} else {
		b.WriteString("\nDiff is in diff.patch.\n")
	}
	b.WriteString("\nWrite findings to OUTPUT/.\n")
	return b.String()
}

// fileDiff is one file's patch hunk within a larger unified diff.
type fileDiff struct {
	Path  string
	Patch string
}

// splitDiffByFile splits a unified diff into per-file hunks on "diff --git"
// boundaries, preserving source order.
func splitDiffByFile(diffText string) []fileDiff {
	if strings.TrimSpace(diffText) == "" {
		return nil
	}
	lines := strings.Split(diffText, "\n")
	var files []fileDiff
	var current strings.Builder
	var currentPath string

	flush := func() {
		if currentPath != "" {
			files = append(files, fileDiff{Path: currentPath, Patch: current.String()})
		}
		current.Reset()
	}

	for _, line := range lines {
		if strings.HasPrefix(line, "diff --git ") {
			flush()
			currentPath = parseDiffGitPath(line)
		}
		current.WriteString(line)
		current.WriteString("\n")
	}
	flush()
	return files
}

func parseDiffGitPath(line string) string {
	fields := strings.Fields(line)
	if len(fields) >= 4 {
		return strings.TrimPrefix(fields[3], "b/")
	}
	return line
}

// estimateTokens approximates token count as ceil(chars/4) (spec.md §4.14
// step 7).
func estimateTokens(s string) int {
	return int(math.Ceil(float64(len(s)) / 4))
}

// chunkFiles groups file diffs in order, each chunk bounded by maxTokens and
// maxFilesPerChunk; a single oversize file becomes its own chunk.
func chunkFiles(files []fileDiff, budget Budget) [][]fileDiff {
	var chunks [][]fileDiff
	var current []fileDiff
	currentTokens := 0

	flush := func() {
		if len(current) > 0 {
			chunks = append(chunks, current)
			current = nil
			currentTokens = 0
		}
	}

	for _, f := range files {
		tokens := estimateTokens(f.Patch)
		if tokens > budget.MaxTokens {
			flush()
			chunks = append(chunks, []fileDiff{f})
			continue
		}
		if len(current) >= budget.MaxFilesPerChunk || currentTokens+tokens > budget.MaxTokens {
			flush()
		}
		current = append(current, f)
		currentTokens += tokens
	}
	flush()
	return chunks
}

func joinPatches(files []fileDiff) string {
	var b strings.Builder
	for _, f := range files {
		b.WriteString(f.Patch)
	}
	return b.String()
}

func short7(commit string) string {
	if len(commit) >= 7 {
		return commit[:7]
	}
	return commit
}
