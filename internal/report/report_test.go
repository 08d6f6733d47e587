package report

import (
	"strings"
	"testing"
)

func sampleRanked() []RankedCandidate {
	return []RankedCandidate{
		{Identifier: "owner/low", Tier1Score: 0.4, Tier2Score: 0.45, StructuralMatch: 1, ModernityScore: 0.5},
		{Identifier: "owner/high", Tier1Score: 0.8, Tier2Score: 0.91, StructuralMatch: 3, ModernityScore: 0.9},
		{Identifier: "owner/mid", Tier1Score: 0.6, Tier2Score: 0.6, StructuralMatch: 2, ModernityScore: 0.6},
	}
}

func TestBuildOrdersDescendingAndPicksTopRecommendation(t *testing.T) {
	r := Build("run-1", "owner/source", sampleRanked(), 10, 5, 3)
	if r.RankedCandidates[0].Identifier != "owner/high" {
		t.Fatalf("expected owner/high first, got %s", r.RankedCandidates[0].Identifier)
	}
	if r.Pipeline.TopRecommendation == nil || r.Pipeline.TopRecommendation.Identifier != "owner/high" {
		t.Fatal("expected top recommendation to be owner/high")
	}
	if err := r.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestBuildWithNoCandidatesLeavesNilRecommendation(t *testing.T) {
	r := Build("run-2", "owner/source", nil, 0, 0, 0)
	if r.Pipeline.TopRecommendation != nil {
		t.Fatal("expected nil top recommendation when there are no candidates")
	}
	if err := r.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestDigestStaysWithinLengthBudgetAndNamesTop(t *testing.T) {
	r := Build("run-3", "owner/source", sampleRanked(), 10, 5, 3)
	digest := r.Digest()
	if len(digest) > maxDigestLength {
		t.Fatalf("digest exceeds budget: %d bytes", len(digest))
	}
	if !strings.Contains(digest, "owner/high") {
		t.Fatal("expected digest to name the top recommendation")
	}
	if strings.Contains(digest, "methodology") {
		t.Fatal("digest must not include methodology prose")
	}
}

func TestDigestTruncatesManyAlternatives(t *testing.T) {
	var many []RankedCandidate
	for i := 0; i < 500; i++ {
		many = append(many, RankedCandidate{Identifier: "owner/repo-with-a-long-name-" + string(rune('a'+i%26)), Tier2Score: 0.5})
	}
	r := Build("run-4", "owner/source", many, 500, 500, 500)
	digest := r.Digest()
	if len(digest) > maxDigestLength {
		t.Fatalf("digest exceeds budget: %d bytes", len(digest))
	}
}

func TestMarkdownIncludesRankTable(t *testing.T) {
	r := Build("run-5", "owner/source", sampleRanked(), 10, 5, 3)
	md := r.Markdown()
	if !strings.Contains(md, "owner/high") || !strings.Contains(md, "owner/mid") {
		t.Fatal("expected markdown to list all ranked candidates")
	}
}
