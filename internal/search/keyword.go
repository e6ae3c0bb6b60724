// Package search ranks blackboard entries and decisions against a free-text
// query.
//
// Two rankers share one contract: Index keeps a SQLite FTS5 table of every
// posted entry and recorded decision and ranks by bm25; Keyword scores by
// term-occurrence overlap and needs no state. Index falls back to Keyword
// (discounted) for documents it has not indexed.
package search

import (
	"context"
	"math"
	"sort"
	"strings"
)

// Document is one rankable item.
type Document struct {
	ID   string
	Kind string // "entry" or "decision"
	Text string
}

// Result is a document id with a relevance in (0, 1].
type Result struct {
	ID    string  `json:"id"`
	Score float64 `json:"score"`
}

// Ranker orders docs by relevance to query. Only positive scores are returned.
type Ranker interface {
	Rank(ctx context.Context, query string, docs []Document) ([]Result, error)
}

// ─── Keyword fallback ───────────────────────────────────────────────────────

// KeywordScore scores text against the query terms: for each term that
// occurs, log(1+occurrences), summed and divided by the number of terms.
func KeywordScore(terms []string, text string) float64 {
	if len(terms) == 0 {
		return 0
	}
	lower := strings.ToLower(text)
	var score float64
	for _, term := range terms {
		if n := strings.Count(lower, term); n > 0 {
			score += math.Log(1 + float64(n))
		}
	}
	return score / float64(len(terms))
}

// Terms splits a query into lowercase whitespace-separated terms.
func Terms(query string) []string {
	return strings.Fields(strings.ToLower(query))
}

// KeywordRank returns docs with a positive keyword score, best first.
// limit <= 0 means no limit.
func KeywordRank(query string, docs []Document, limit int) []Result {
	terms := Terms(query)
	if len(terms) == 0 {
		return nil
	}
	var out []Result
	for _, d := range docs {
		if s := KeywordScore(terms, d.Text); s > 0 {
			out = append(out, Result{ID: d.ID, Score: s})
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// Keyword is the stateless Ranker.
type Keyword struct{}

// Rank implements Ranker.
func (Keyword) Rank(_ context.Context, query string, docs []Document) ([]Result, error) {
	return KeywordRank(query, docs, 0), nil
}

// Upsert is a no-op; Keyword keeps no index.
func (Keyword) Upsert(context.Context, Document) error { return nil }

// Remove is a no-op; Keyword keeps no index.
func (Keyword) Remove(context.Context, []string) error { return nil }
