// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "time"

// PaperResult is a candidate paper returned by the search stage and carried
// through relevance filtering. Identity is the source's stable identifier
// (the arXiv ID); uniqueness by ID must hold within one aggregation pass.
type PaperResult struct {
	// ID is the canonical identifier from the source (e.g. "2301.07041").
	ID string `json:"id" yaml:"id"`

	// Title is the paper title as returned by the source.
	Title string `json:"title" yaml:"title"`

	// Abstract is the paper abstract or summary.
	Abstract string `json:"abstract" yaml:"abstract"`

	// Authors lists the paper authors in source order.
	Authors []string `json:"authors" yaml:"authors"`

	// Published is the publication or preprint date.
	Published time.Time `json:"published" yaml:"published"`

	// PDFURL is the source's PDF link, when one was advertised.
	PDFURL string `json:"pdf_url,omitempty" yaml:"pdf_url,omitempty"`

	// PageURL is the source's abstract page link. The aggregator derives
	// full-text locations from it.
	PageURL string `json:"page_url" yaml:"page_url"`

	// Categories lists the source's subject classifications.
	Categories []string `json:"categories,omitempty" yaml:"categories,omitempty"`

	// QueryText and QueryExplanation record which generated query surfaced
	// this result.
	QueryText        string `json:"query_text,omitempty" yaml:"query_text,omitempty"`
	QueryExplanation string `json:"query_explanation,omitempty" yaml:"query_explanation,omitempty"`

	// RelevanceScore is a 0-10 score assigned by the relevance filter.
	// Scored reports whether the filter evaluated this paper; unscored
	// papers keep the zero value and are treated as irrelevant, not dropped.
	RelevanceScore float64 `json:"relevance_score" yaml:"relevance_score"`
	Scored         bool    `json:"scored" yaml:"scored"`

	// RelevanceRationale is the filter's short justification for the score.
	RelevanceRationale string `json:"relevance_rationale,omitempty" yaml:"relevance_rationale,omitempty"`
}

// SearchQuery is one generated corpus query. Immutable once produced by the
// query constructor; one task produces up to three per iteration.
type SearchQuery struct {
	// Query is the search expression in the corpus's native syntax.
	Query string `json:"query" yaml:"query"`

	// Explanation records why the constructor considers this query apt.
	Explanation string `json:"explanation" yaml:"explanation"`
}

// QueryPlan is the query constructor's output for one iteration.
type QueryPlan struct {
	Task ResearchTask `json:"task" yaml:"task"`

	// Queries holds the generated queries, normally three.
	Queries []SearchQuery `json:"queries" yaml:"queries"`

	// Rationale is the constructor's overall strategy note.
	Rationale string `json:"rationale" yaml:"rationale"`

	// Fallback is set when query generation failed and the plan degraded to
	// a single query containing the question verbatim.
	Fallback bool `json:"fallback,omitempty" yaml:"fallback,omitempty"`
}
