package discovery

import (
	"context"
	"testing"
	"time"

	"github.com/scoutforge/scout/internal/cachepath"
	"github.com/scoutforge/scout/internal/hostapi"
	"github.com/scoutforge/scout/internal/lanes"
)

type fakeClient struct {
	responses map[string]hostapi.Page
	calls     int
}

func (f *fakeClient) Search(ctx context.Context, query string, page int) (hostapi.Page, error) {
	f.calls++
	return f.responses[query], nil
}

func TestRunDedupesAndScoresAcrossLanes(t *testing.T) {
	now := time.Now().UTC()
	client := &fakeClient{
		responses: map[string]hostapi.Page{
			"lane-a": {Items: []hostapi.Item{
				{Identifier: "owner/repo", URL: "https://example.com/owner/repo", Stars: 100, Forks: 10, PushedAt: now.Add(-24 * time.Hour)},
			}},
			"lane-b": {Items: []hostapi.Item{
				{Identifier: "owner/repo", URL: "https://example.com/owner/repo", Stars: 100, Forks: 10, PushedAt: now.Add(-24 * time.Hour)},
				{Identifier: "owner/other", URL: "https://example.com/owner/other", Stars: 5, Forks: 0, PushedAt: now.Add(-24 * time.Hour)},
			}},
		},
	}

	engine := NewEngine(client, cachepath.Layout{}, Options{
		Weights:         Weights{Recency: 0.4, Activity: 0.35, Lanes: 0.25},
		WindowDays:      365,
		ActivityDivisor: 10,
		LaneCap:         3,
		Tier1Cap:        10,
	})

	result, err := engine.Run(context.Background(), []lanes.Lane{
		{Name: "a", Query: "lane-a"},
		{Name: "b", Query: "lane-b"},
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(result.Candidates) != 2 {
		t.Fatalf("expected 2 deduped candidates, got %d", len(result.Candidates))
	}

	var repo *Candidate
	for i := range result.Candidates {
		if result.Candidates[i].Identifier == "owner/repo" {
			repo = &result.Candidates[i]
		}
	}
	if repo == nil {
		t.Fatal("expected owner/repo in results")
	}
	if len(repo.LaneHits) != 2 {
		t.Fatalf("expected 2 lane hits for owner/repo, got %d", len(repo.LaneHits))
	}
	if repo.Tier1Score <= 0 || repo.Tier1Score > 1 {
		t.Fatalf("tier1 score out of range: %v", repo.Tier1Score)
	}
}

func TestRunExcludesArchivedAndForks(t *testing.T) {
	now := time.Now().UTC()
	client := &fakeClient{
		responses: map[string]hostapi.Page{
			"lane-a": {Items: []hostapi.Item{
				{Identifier: "owner/archived", URL: "https://example.com/x", Archived: true, PushedAt: now},
				{Identifier: "owner/fork", URL: "https://example.com/y", Fork: true, PushedAt: now},
				{Identifier: "owner/keep", URL: "https://example.com/z", PushedAt: now},
			}},
		},
	}

	engine := NewEngine(client, cachepath.Layout{}, Options{WindowDays: 365, Tier1Cap: 10})
	result, err := engine.Run(context.Background(), []lanes.Lane{{Name: "a", Query: "lane-a"}})
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Candidates) != 1 || result.Candidates[0].Identifier != "owner/keep" {
		t.Fatalf("expected only owner/keep to survive filtering, got %+v", result.Candidates)
	}
}

func TestRunAppliesTier1Cap(t *testing.T) {
	now := time.Now().UTC()
	items := make([]hostapi.Item, 0, 5)
	for i := 0; i < 5; i++ {
		items = append(items, hostapi.Item{
			Identifier: string(rune('a'+i)) + "/repo",
			URL:        "https://example.com/x",
			PushedAt:   now,
			Stars:      i,
		})
	}
	client := &fakeClient{responses: map[string]hostapi.Page{"lane-a": {Items: items}}}

	engine := NewEngine(client, cachepath.Layout{}, Options{WindowDays: 365, Tier1Cap: 2})
	result, err := engine.Run(context.Background(), []lanes.Lane{{Name: "a", Query: "lane-a"}})
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Candidates) != 2 {
		t.Fatalf("expected tier1 cap of 2, got %d", len(result.Candidates))
	}
}
