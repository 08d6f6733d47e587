// Package report implements the Report Generator (spec.md §4.10):
// produce a Compare Report from ranked validation results, plus a compact
// Digest variant. Focus artifacts are not read: the report carries no
// per-repo entrypoints or scope roots.
package report

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/scoutforge/scout/internal/schema"
)

// RankedCandidate is one row of the report's rank table.
type RankedCandidate struct {
	Identifier      string  `json:"identifier"`
	Tier1Score      float64 `json:"tier1_score"`
	Tier2Score      float64 `json:"tier2_score"`
	StructuralMatch int     `json:"structural_match"`
	ModernityScore  float64 `json:"modernity_score"`
	MatchedKinds    []string `json:"matched_kinds"`
}

// PipelineSummary is the discovered/cloned/validated counts plus the
// optional top recommendation (spec.md §3, Open Question (a): nilable
// pointer rather than a zero-value sentinel record).
type PipelineSummary struct {
	Discovered       int              `json:"discovered"`
	Cloned           int              `json:"cloned"`
	Validated        int              `json:"validated"`
	TopRecommendation *RankedCandidate `json:"top_recommendation,omitempty"`
}

// CompareReport is the full Compare Report artifact (spec.md §3).
type CompareReport struct {
	RunID            string            `json:"run_id"`
	Timestamp        time.Time         `json:"timestamp"`
	SourceProject    string            `json:"source_project"`
	RankedCandidates []RankedCandidate `json:"ranked_candidates"`
	Pipeline         PipelineSummary   `json:"pipeline"`
}

// Validate implements schema.Validator.
func (r *CompareReport) Validate() error {
	if err := schema.NonEmpty("run_id", r.RunID); err != nil {
		return err
	}
	if err := schema.RFC3339("timestamp", r.Timestamp); err != nil {
		return err
	}
	if err := schema.NonEmpty("source_project", r.SourceProject); err != nil {
		return err
	}
	for _, c := range r.RankedCandidates {
		if err := schema.Unit01("tier1_score", c.Tier1Score); err != nil {
			return err
		}
		if err := schema.Unit01("tier2_score", c.Tier2Score); err != nil {
			return err
		}
	}
	if err := schema.NonNegativeInt("discovered", r.Pipeline.Discovered); err != nil {
		return err
	}
	if err := schema.NonNegativeInt("cloned", r.Pipeline.Cloned); err != nil {
		return err
	}
	return schema.NonNegativeInt("validated", r.Pipeline.Validated)
}

// Build assembles a CompareReport. It sorts ranked in place by Tier-2 score
// descending (stable for ties) and takes the first entry as the top
// recommendation.
func Build(runID, sourceProject string, ranked []RankedCandidate, discovered, cloned, validated int) *CompareReport {
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].Tier2Score > ranked[j].Tier2Score })

	summary := PipelineSummary{Discovered: discovered, Cloned: cloned, Validated: validated}
	if len(ranked) > 0 {
		top := ranked[0]
		summary.TopRecommendation = &top
	}

	return &CompareReport{
		RunID:            runID,
		Timestamp:        time.Now().UTC(),
		SourceProject:    sourceProject,
		RankedCandidates: ranked,
		Pipeline:         summary,
	}
}

// Markdown renders the human-readable REPORT.md: run header, pipeline
// counts, top recommendation and the rank table.
func (r *CompareReport) Markdown() string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Compare Report\n\n")
	fmt.Fprintf(&b, "Run: %s\nSource: %s\nGenerated: %s\n\n", r.RunID, r.SourceProject, r.Timestamp.Format(time.RFC3339))
	fmt.Fprintf(&b, "Discovered: %d  Cloned: %d  Validated: %d\n\n", r.Pipeline.Discovered, r.Pipeline.Cloned, r.Pipeline.Validated)

	if r.Pipeline.TopRecommendation != nil {
		fmt.Fprintf(&b, "## Top recommendation: %s (tier2 %.2f)\n\n", r.Pipeline.TopRecommendation.Identifier, r.Pipeline.TopRecommendation.Tier2Score)
	}

	b.WriteString("## Ranked candidates\n\n")
	b.WriteString("| Repository | Tier-1 | Tier-2 | Structural | Modernity |\n")
	b.WriteString("|---|---|---|---|---|\n")
	for _, c := range r.RankedCandidates {
		fmt.Fprintf(&b, "| %s | %.2f | %.2f | %d | %.2f |\n", c.Identifier, c.Tier1Score, c.Tier2Score, c.StructuralMatch, c.ModernityScore)
	}

	return b.String()
}

// maxDigestLength is the digest invariant's soft cap (spec.md §4.10: "length
// <= ~2000 characters").
const maxDigestLength = 2000

// Digest renders the compact variant: names the top recommendation with
// score, includes a rank table for alternatives, and omits methodology
// prose. Truncated to maxDigestLength if still over budget after dropping
// the lowest-ranked alternatives.
func (r *CompareReport) Digest() string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s — Digest\n\n", r.SourceProject)

	if r.Pipeline.TopRecommendation != nil {
		top := r.Pipeline.TopRecommendation
		fmt.Fprintf(&b, "Top: **%s** (tier2 %.2f)\n\n", top.Identifier, top.Tier2Score)
	} else {
		b.WriteString("No recommendation: no candidates survived validation.\n\n")
	}

	b.WriteString("| Repository | Tier-2 |\n|---|---|\n")
	for _, c := range r.RankedCandidates {
		row := fmt.Sprintf("| %s | %.2f |\n", c.Identifier, c.Tier2Score)
		if b.Len()+len(row) > maxDigestLength {
			break
		}
		b.WriteString(row)
	}

	out := b.String()
	if len(out) > maxDigestLength {
		out = out[:maxDigestLength]
	}
	return out
}
