// Package discovery implements the Discovery Engine (spec.md §4.4): run
// each search lane against the remote hosting API, dedupe, filter, score,
// and truncate to a Tier-1 candidate list. Caching and backoff are wired
// to golang-lru, cenkalti/backoff, and golang.org/x/time/rate rather than
// hand-rolled equivalents.
package discovery

import (
	"context"
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/time/rate"

	"github.com/scoutforge/scout/internal/cachepath"
	"github.com/scoutforge/scout/internal/hostapi"
	"github.com/scoutforge/scout/internal/lanes"
	"github.com/scoutforge/scout/internal/logger"
	"github.com/scoutforge/scout/internal/schema"
	"github.com/scoutforge/scout/internal/scouterr"
	"github.com/scoutforge/scout/internal/scoring"
)

// Weights configures the Tier-1 score formula (spec.md §4.4).
type Weights struct {
	Recency  float64
	Activity float64
	Lanes    float64
}

// Options configures a discovery run.
type Options struct {
	Weights          Weights
	WindowDays       int
	ActivityDivisor  float64
	LaneCap          int
	Tier1Cap         int
	CacheTTL         time.Duration
	MaxBackoff       time.Duration
	LicenseAllowList []string
	ExclusionKeywords []string
}

// Candidate is a Tier-1 scored repository record (spec.md §3).
type Candidate struct {
	Identifier  string    `json:"identifier"`
	URL         string    `json:"url"`
	Stars       int       `json:"stars"`
	Forks       int       `json:"forks"`
	PushedAt    time.Time `json:"pushed_at"`
	License     string    `json:"license,omitempty"`
	Description string    `json:"description,omitempty"`
	Topics      []string  `json:"topics"`
	LaneHits    []string  `json:"lane_hits"`
	Tier1Score  float64   `json:"tier1_score"`
	Archived    bool      `json:"archived"`
	IsFork      bool      `json:"is_fork"`
}

// Validate implements schema.Validator.
func (c *Candidate) Validate() error {
	if err := schema.NonEmpty("identifier", c.Identifier); err != nil {
		return err
	}
	if err := schema.URL("url", c.URL); err != nil {
		return err
	}
	if err := schema.NonNegativeInt("stars", c.Stars); err != nil {
		return err
	}
	if err := schema.NonNegativeInt("forks", c.Forks); err != nil {
		return err
	}
	if err := schema.RFC3339("pushed_at", c.PushedAt); err != nil {
		return err
	}
	return schema.Unit01("tier1_score", c.Tier1Score)
}

// List is the Tier-1 candidates artifact (candidates.tier1.json).
type List struct {
	Candidates []Candidate `json:"candidates"`
}

// Validate validates every element.
func (l *List) Validate() error {
	for i := range l.Candidates {
		if err := l.Candidates[i].Validate(); err != nil {
			return err
		}
	}
	return nil
}

// frontCache is an in-memory LRU layered over the on-disk SHA-256-keyed
// response cache, so a single run reuses a lane/page response without
// re-reading JSON from disk (spec.md §4.4 "Caching").
type frontCache struct {
	mem *lru.Cache[string, hostapi.Page]
}

func newFrontCache() *frontCache {
	c, _ := lru.New[string, hostapi.Page](256)
	return &frontCache{mem: c}
}

// Engine executes lanes against a hostapi.Client, scoring and filtering
// results into a capped Tier-1 candidate list.
type Engine struct {
	Client  hostapi.Client
	Cache   cachepath.Layout
	Options Options
	limiter *rate.Limiter
	front   *frontCache
}

// NewEngine constructs a discovery Engine. The limiter paces every remote
// search call at a fixed one per second from the first request on; it does
// not count consecutive successes and its interval does not grow.
func NewEngine(client hostapi.Client, cache cachepath.Layout, opts Options) *Engine {
	if opts.MaxBackoff <= 0 {
		opts.MaxBackoff = 2 * time.Minute
	}
	return &Engine{
		Client:  client,
		Cache:   cache,
		Options: opts,
		limiter: rate.NewLimiter(rate.Limit(1), 1),
		front:   newFrontCache(),
	}
}

// Run executes every lane, dedupes, filters, scores, and returns the
// capped, descending-sorted Tier-1 candidate list.
func (e *Engine) Run(ctx context.Context, ls []lanes.Lane) (*List, error) {
	merged := map[string]*Candidate{}
	laneHitSets := map[string]map[string]bool{}

	for _, lane := range ls {
		items, err := e.runLane(ctx, lane)
		if err != nil {
			logger.GetLogger().Warn().Str("lane", lane.Name).Err(err).Msg("lane failed, continuing")
			continue
		}

		for _, item := range items {
			if e.earlyFilterRejects(item) {
				continue
			}
			if _, ok := merged[item.Identifier]; !ok {
				c := itemToCandidate(item)
				merged[item.Identifier] = &c
				laneHitSets[item.Identifier] = map[string]bool{}
			}
			laneHitSets[item.Identifier][lane.Name] = true
		}
	}

	laneCap := e.Options.LaneCap
	if laneCap <= 0 {
		laneCap = 3
	}
	activityDivisor := e.Options.ActivityDivisor
	if activityDivisor <= 0 {
		activityDivisor = 10
	}
	windowDays := e.Options.WindowDays
	if windowDays <= 0 {
		windowDays = 365
	}

	now := time.Now().UTC()
	var candidates []Candidate
	for id, c := range merged {
		hits := laneHitSets[id]
		c.LaneHits = sortedKeys(hits)
		c.Tier1Score = tier1Score(*c, now, windowDays, activityDivisor, laneCap, e.Options.Weights)
		candidates = append(candidates, *c)
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Tier1Score != candidates[j].Tier1Score {
			return candidates[i].Tier1Score > candidates[j].Tier1Score
		}
		return candidates[i].Identifier < candidates[j].Identifier
	})

	if tier1Cap := e.Options.Tier1Cap; tier1Cap > 0 && len(candidates) > tier1Cap {
		candidates = candidates[:tier1Cap]
	}

	return &List{Candidates: candidates}, nil
}

// runLane executes one lane across all pages, consulting the front cache
// and the on-disk cache before issuing a remote call, applying backoff on
// 403-class errors.
func (e *Engine) runLane(ctx context.Context, lane lanes.Lane) ([]hostapi.Item, error) {
	var items []hostapi.Item
	page := 1
	for {
		result, err := e.fetchPage(ctx, lane.Query, page)
		if err != nil {
			return items, err
		}
		items = append(items, result.Items...)
		if result.NextPage == 0 {
			break
		}
		page = result.NextPage
	}
	return items, nil
}

func (e *Engine) fetchPage(ctx context.Context, query string, page int) (hostapi.Page, error) {
	key := hostapi.CacheKey(query, page)

	if p, ok := e.front.mem.Get(key); ok {
		return p, nil
	}

	if p, ok := e.readDiskCache(key); ok {
		e.front.mem.Add(key, p)
		return p, nil
	}

	var resultPage hostapi.Page
	op := func() error {
		if err := e.limiter.Wait(ctx); err != nil {
			return backoff.Permanent(err)
		}
		p, err := e.Client.Search(ctx, query, page)
		if err != nil {
			if isRateLimited(err) {
				return err // retryable
			}
			return backoff.Permanent(err)
		}
		resultPage = p
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = e.Options.MaxBackoff
	if err := backoff.Retry(op, backoff.WithContext(bo, ctx)); err != nil {
		return hostapi.Page{}, scouterr.Wrap(scouterr.RemoteError, "search query "+query, err)
	}

	e.front.mem.Add(key, resultPage)
	e.writeDiskCache(key, resultPage)
	return resultPage, nil
}

func isRateLimited(err error) bool {
	return scouterr.Is(err, scouterr.RemoteRateLimited) || strings.Contains(err.Error(), "403")
}

type cachedPage struct {
	StoredAt time.Time     `json:"stored_at"`
	Page     hostapi.Page  `json:"page"`
}

func (e *Engine) readDiskCache(key string) (hostapi.Page, bool) {
	if e.Cache.Root == "" {
		return hostapi.Page{}, false
	}
	path := e.Cache.APICachePath(key)
	data, err := os.ReadFile(path)
	if err != nil {
		return hostapi.Page{}, false
	}
	var cp cachedPage
	if err := json.Unmarshal(data, &cp); err != nil {
		return hostapi.Page{}, false
	}
	ttl := e.Options.CacheTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	if time.Since(cp.StoredAt) > ttl {
		return hostapi.Page{}, false
	}
	return cp.Page, true
}

func (e *Engine) writeDiskCache(key string, page hostapi.Page) {
	if e.Cache.Root == "" {
		return
	}
	path := e.Cache.APICachePath(key)
	data, err := json.Marshal(cachedPage{StoredAt: time.Now().UTC(), Page: page})
	if err != nil {
		return
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return
	}
	_ = os.WriteFile(path, data, 0o644)
}

func (e *Engine) earlyFilterRejects(item hostapi.Item) bool {
	if item.Archived || item.Fork {
		return true
	}
	if len(e.Options.LicenseAllowList) > 0 && item.License != "" {
		allowed := false
		for _, l := range e.Options.LicenseAllowList {
			if strings.EqualFold(l, item.License) {
				allowed = true
				break
			}
		}
		if !allowed {
			return true
		}
	}
	haystack := strings.ToLower(item.Identifier + " " + item.Description)
	for _, kw := range e.Options.ExclusionKeywords {
		if kw != "" && strings.Contains(haystack, strings.ToLower(kw)) {
			return true
		}
	}
	windowDays := e.Options.WindowDays
	if windowDays <= 0 {
		windowDays = 365
	}
	if time.Since(item.PushedAt) > time.Duration(windowDays)*24*time.Hour {
		return true
	}
	return false
}

func itemToCandidate(item hostapi.Item) Candidate {
	return Candidate{
		Identifier:  item.Identifier,
		URL:         item.URL,
		Stars:       item.Stars,
		Forks:       item.Forks,
		PushedAt:    item.PushedAt,
		License:     item.License,
		Description: item.Description,
		Topics:      item.Topics,
		Archived:    item.Archived,
		IsFork:      item.Fork,
	}
}

func tier1Score(c Candidate, now time.Time, windowDays int, activityDivisor float64, laneCap int, w Weights) float64 {
	daysSincePush := now.Sub(c.PushedAt).Hours() / 24
	recencyNorm := scoring.Clamp01(1 - daysSincePush/float64(windowDays))
	activityNorm := scoring.Clamp01(math.Log10(float64(c.Stars+c.Forks+1)) / activityDivisor)
	laneNorm := float64(min(len(c.LaneHits), laneCap)) / float64(laneCap)

	score := w.Recency*recencyNorm + w.Activity*activityNorm + w.Lanes*laneNorm
	return scoring.ClampRound(score)
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func sortedKeys(m map[string]bool) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
