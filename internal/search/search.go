// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package search

import (
	"context"
	"fmt"
	"io"

	"github.com/pdiddy/litreview/pkg/types"
)

// Corpus searches the external corpus with one query expression. ArxivClient
// is the production implementation; tests supply a mock.
type Corpus interface {
	Search(ctx context.Context, query string) ([]types.PaperResult, error)
}

// Searcher executes every query of a plan and merges the results.
type Searcher struct {
	Corpus Corpus
}

// Run executes each query in order, stamps every result with its originating
// query, merges, and deduplicates by id with first-seen order preserved.
// A failing or empty query is a warning, not a stage failure; an entirely
// empty run still emits a result set so the pipeline cannot deadlock.
func (s *Searcher) Run(ctx context.Context, req types.SearchRequest, w io.Writer) types.SearchResults {
	seen := make(map[string]bool)
	var merged []types.PaperResult

	for _, q := range req.Queries {
		papers, err := s.Corpus.Search(ctx, q.Query)
		if err != nil {
			fmt.Fprintf(w, "warning: query %q failed: %v\n", q.Query, err)
			continue
		}
		if len(papers) == 0 {
			fmt.Fprintf(w, "query %q returned no results\n", q.Query)
			continue
		}

		for _, p := range papers {
			if seen[p.ID] {
				continue
			}
			seen[p.ID] = true
			p.QueryText = q.Query
			p.QueryExplanation = q.Explanation
			merged = append(merged, p)
		}
	}

	fmt.Fprintf(w, "search: %d unique papers from %d queries\n", len(merged), len(req.Queries))
	return types.SearchResults{Task: req.Task, Papers: merged}
}
