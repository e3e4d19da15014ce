// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package relevance scores search results against the research question and
// decides between proceeding to aggregation and requesting query refinement.
//
// See docs/ARCHITECTURE.md § Relevance Filter.
package relevance

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/pdiddy/litreview/internal/llm"
	"github.com/pdiddy/litreview/pkg/types"
)

// Filter evaluates one iteration's results.
type Filter struct {
	LLM llm.Client
	Cfg types.RelevanceConfig
}

// Outcome is the filter's decision: exactly one of Next (refinement round)
// or Forward (proceed to aggregation) is meaningful, selected by Refine.
// AllPapers carries the full scored list either way so discarded papers
// remain inspectable.
type Outcome struct {
	Refine    bool
	Next      types.ResearchTask
	Forward   types.RelevantPapers
	AllPapers []types.PaperResult
}

// scoreDoc is the JSON shape requested from the model.
type scoreDoc struct {
	Papers []struct {
		ID             string  `json:"id"`
		RelevanceScore float64 `json:"relevance_score"`
		Rationale      string  `json:"rationale"`
	} `json:"papers"`
	ShouldRefineQuery    bool   `json:"should_refine_query"`
	RefinementSuggestion string `json:"refinement_suggestion"`
}

// Evaluate scores the incoming papers and applies the refinement rule.
//
// The rule is a conjunction: refine only when the model itself asks for
// refinement AND fewer than MinRelevant papers cleared the threshold. A
// sufficient relevant count overrides the model's signal; an insufficient
// count alone never forces refinement. Refinement is additionally capped at
// MaxRefinements rounds so the loop always terminates.
//
// An empty incoming set short-circuits to refinement without calling the
// model (there is nothing to score); at the cap it proceeds forward with the
// empty set instead.
func (f *Filter) Evaluate(ctx context.Context, in types.SearchResults, w io.Writer) Outcome {
	cfg := f.withDefaults()

	if len(in.Papers) == 0 {
		if in.Task.Iteration < cfg.MaxRefinements {
			fmt.Fprintf(w, "no search results; requesting refinement (round %d)\n", in.Task.Iteration+1)
			return Outcome{Refine: true, Next: in.Task.Refined("", nil)}
		}
		fmt.Fprintf(w, "no search results and refinement rounds exhausted; proceeding empty\n")
		return Outcome{Forward: types.RelevantPapers{Task: in.Task, Timestamp: time.Now()}}
	}

	sampled := in.Papers
	if len(sampled) > cfg.MaxSampled {
		// Cost control: only the first MaxSampled papers are scored. The
		// rest keep score 0 and are treated as irrelevant, not dropped.
		sampled = sampled[:cfg.MaxSampled]
		fmt.Fprintf(w, "scoring first %d of %d papers\n", cfg.MaxSampled, len(in.Papers))
	}

	doc := f.score(ctx, in.Task.Question, sampled, w)

	scores := make(map[string]float64, len(doc.Papers))
	rationales := make(map[string]string, len(doc.Papers))
	for _, p := range doc.Papers {
		scores[p.ID] = p.RelevanceScore
		rationales[p.ID] = p.Rationale
	}

	cutoff := cfg.Threshold * 10
	all := make([]types.PaperResult, len(in.Papers))
	var relevant []types.PaperResult
	for i, p := range in.Papers {
		if s, ok := scores[p.ID]; ok {
			p.RelevanceScore = s
			p.Scored = true
			p.RelevanceRationale = rationales[p.ID]
		}
		all[i] = p
		if p.RelevanceScore >= cutoff {
			relevant = append(relevant, p)
		}
	}

	fmt.Fprintf(w, "relevance: %d of %d papers at or above %.1f\n", len(relevant), len(all), cutoff)

	if doc.ShouldRefineQuery && len(relevant) < cfg.MinRelevant && in.Task.Iteration < cfg.MaxRefinements {
		fmt.Fprintf(w, "refining query (round %d): %s\n", in.Task.Iteration+1, doc.RefinementSuggestion)
		return Outcome{
			Refine:    true,
			Next:      in.Task.Refined(doc.RefinementSuggestion, paperIDs(relevant)),
			AllPapers: all,
		}
	}

	return Outcome{
		Forward: types.RelevantPapers{
			Task:      in.Task,
			Papers:    relevant,
			Timestamp: time.Now(),
		},
		AllPapers: all,
	}
}

// score calls the model once for all sampled papers. On any model or parse
// failure every sampled paper gets a neutral 5.0 and refinement is not
// requested, so a broken collaborator can never stall or loop the pipeline.
func (f *Filter) score(ctx context.Context, question string, sampled []types.PaperResult, w io.Writer) scoreDoc {
	prompt, err := renderPrompt(question, sampled)
	if err != nil {
		fmt.Fprintf(w, "warning: relevance prompt render failed: %v\n", err)
		return neutralScores(sampled)
	}

	raw, err := f.LLM.Generate(ctx, prompt, llm.GenerationConfig{
		Temperature:     0.7,
		MaxOutputTokens: 1000,
		TopP:            0.95,
		TopK:            40,
	})
	if err != nil {
		fmt.Fprintf(w, "warning: relevance evaluation failed: %v\n", err)
		return neutralScores(sampled)
	}

	var doc scoreDoc
	if err := llm.DecodeObject(raw, &doc); err != nil || len(doc.Papers) == 0 {
		fmt.Fprintf(w, "warning: no parseable relevance evaluation in model response\n")
		return neutralScores(sampled)
	}
	return doc
}

// neutralScores is the total-failure fallback: 5.0 for every sampled paper,
// no refinement request.
func neutralScores(sampled []types.PaperResult) scoreDoc {
	var doc scoreDoc
	for _, p := range sampled {
		doc.Papers = append(doc.Papers, struct {
			ID             string  `json:"id"`
			RelevanceScore float64 `json:"relevance_score"`
			Rationale      string  `json:"rationale"`
		}{ID: p.ID, RelevanceScore: 5.0, Rationale: "Default score"})
	}
	return doc
}

func (f *Filter) withDefaults() types.RelevanceConfig {
	cfg := f.Cfg
	if cfg.Threshold <= 0 {
		cfg.Threshold = 0.7
	}
	if cfg.MinRelevant <= 0 {
		cfg.MinRelevant = 5
	}
	if cfg.MaxSampled <= 0 {
		cfg.MaxSampled = 10
	}
	if cfg.MaxRefinements <= 0 {
		cfg.MaxRefinements = 3
	}
	return cfg
}

func paperIDs(papers []types.PaperResult) []string {
	ids := make([]string, 0, len(papers))
	for _, p := range papers {
		ids = append(ids, p.ID)
	}
	return ids
}
