// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package query turns a research question into ranked corpus queries.
//
// See docs/ARCHITECTURE.md § Query Construction.
package query

import (
	"context"
	"fmt"
	"io"

	"github.com/pdiddy/litreview/internal/llm"
	"github.com/pdiddy/litreview/pkg/types"
)

// targetQueries is how many queries the model is asked to produce.
const targetQueries = 3

// Constructor generates a query plan for one iteration of a task.
type Constructor struct {
	LLM llm.Client
}

// planDoc is the JSON shape requested from the model.
type planDoc struct {
	SearchQueries []struct {
		Query       string `json:"query"`
		Explanation string `json:"explanation"`
	} `json:"search_queries"`
	Rationale string `json:"rationale"`
}

// Build produces a query plan for the task. It never fails: on any model or
// parse error the plan degrades to a single query carrying the question
// verbatim, with Fallback set. The task's question is never rewritten.
func (c *Constructor) Build(ctx context.Context, task types.ResearchTask, w io.Writer) types.QueryPlan {
	prompt, err := renderPrompt(task)
	if err != nil {
		fmt.Fprintf(w, "warning: query prompt render failed: %v\n", err)
		return fallbackPlan(task, "prompt render failure")
	}

	raw, err := c.LLM.Generate(ctx, prompt, llm.GenerationConfig{
		Temperature:     0.7,
		MaxOutputTokens: 1000,
		TopP:            0.95,
		TopK:            40,
	})
	if err != nil {
		fmt.Fprintf(w, "warning: query generation failed: %v\n", err)
		return fallbackPlan(task, "generation failure")
	}

	var doc planDoc
	if err := llm.DecodeObject(raw, &doc); err != nil || len(doc.SearchQueries) == 0 {
		fmt.Fprintf(w, "warning: no parseable query plan in model response\n")
		return fallbackPlan(task, "unparseable model response")
	}

	plan := types.QueryPlan{
		Task:      task,
		Rationale: doc.Rationale,
	}
	for _, q := range doc.SearchQueries {
		if q.Query == "" {
			continue
		}
		plan.Queries = append(plan.Queries, types.SearchQuery{
			Query:       q.Query,
			Explanation: q.Explanation,
		})
	}
	if len(plan.Queries) == 0 {
		return fallbackPlan(task, "model returned only empty queries")
	}
	return plan
}

// fallbackPlan is the degraded single-query plan: the question verbatim.
// The pipeline must never stall for lack of a parseable plan.
func fallbackPlan(task types.ResearchTask, reason string) types.QueryPlan {
	return types.QueryPlan{
		Task: task,
		Queries: []types.SearchQuery{
			{Query: task.Question, Explanation: "Using original question"},
		},
		Rationale: "Fallback to original question: " + reason,
		Fallback:  true,
	}
}
