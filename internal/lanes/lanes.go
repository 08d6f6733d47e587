// Package lanes implements the Search-Lane Builder (spec.md §4.3):
// translate Component Targets into a deduplicated set of remote search
// queries.
package lanes

import (
	"fmt"
	"sort"
	"strings"

	"github.com/scoutforge/scout/internal/target"
)

// Lane is one (name, query) pair to execute against the remote API.
type Lane struct {
	Name  string `json:"name"`
	Query string `json:"query"`
}

// QualityFilters augments every query with the baseline quality clauses
// (spec.md §4.3 "quality filters").
type QualityFilters struct {
	MinStars       int
	PushWindowDays int
}

// Build produces an ordered, query-deduplicated set of lanes from targets
// and an optional primary language.
func Build(targets []target.ComponentTarget, primaryLanguage string, topicCap int, filters QualityFilters) []Lane {
	if topicCap <= 0 {
		topicCap = 5
	}

	var lanes []Lane
	seenQueries := map[string]bool{}

	add := func(name, query string) {
		query = applyQualityFilters(query, filters)
		if seenQueries[query] {
			return
		}
		seenQueries[query] = true
		lanes = append(lanes, Lane{Name: name, Query: query})
	}

	// One language+keywords union lane.
	if union := unionLaneQuery(targets, primaryLanguage); union != "" {
		add("language-keywords", union)
	}

	// One per distinct topic up to topicCap.
	topics := distinctTopics(targets, topicCap)
	for _, topic := range topics {
		add("topic-"+topic, fmt.Sprintf("topic:%s", topic))
	}

	// Kind-specific lanes.
	for _, t := range targets {
		add("kind-"+string(t.Kind), kindLaneQuery(t))
	}

	return lanes
}

func unionLaneQuery(targets []target.ComponentTarget, primaryLanguage string) string {
	keywordSet := map[string]bool{}
	var keywords []string
	for _, t := range targets {
		for _, kw := range t.Hints.Keywords {
			if !keywordSet[kw] {
				keywordSet[kw] = true
				keywords = append(keywords, kw)
			}
		}
	}
	if len(keywords) == 0 {
		return ""
	}
	sort.Strings(keywords)

	query := strings.Join(keywords, " OR ")
	if primaryLanguage != "" {
		query = fmt.Sprintf("language:%s (%s)", primaryLanguage, query)
	}
	return query
}

func distinctTopics(targets []target.ComponentTarget, cap int) []string {
	topicSet := map[string]bool{}
	var topics []string
	for _, t := range targets {
		for _, topic := range t.Hints.Topics {
			if !topicSet[topic] {
				topicSet[topic] = true
				topics = append(topics, topic)
			}
		}
	}
	sort.Strings(topics)
	if len(topics) > cap {
		topics = topics[:cap]
	}
	return topics
}

func kindLaneQuery(t target.ComponentTarget) string {
	keywords := strings.Join(t.Hints.Keywords, " OR ")
	if t.Hints.LanguageBias != "" {
		return fmt.Sprintf("language:%s (%s)", t.Hints.LanguageBias, keywords)
	}
	return keywords
}

func applyQualityFilters(query string, f QualityFilters) string {
	clauses := []string{query, "fork:false", "archived:false"}
	if f.MinStars > 0 {
		clauses = append(clauses, fmt.Sprintf("stars:>=%d", f.MinStars))
	}
	if f.PushWindowDays > 0 {
		clauses = append(clauses, fmt.Sprintf("pushed:>%dd", f.PushWindowDays))
	}
	return strings.Join(clauses, " ")
}
