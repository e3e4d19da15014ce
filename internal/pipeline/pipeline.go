// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package pipeline drives a research task through the six stages, one
// goroutine per stage, connected by typed channels. The relevance filter
// owns the single feedback edge back to the query constructor.
//
// See docs/ARCHITECTURE.md § Orchestration.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/pdiddy/litreview/internal/aggregate"
	"github.com/pdiddy/litreview/internal/analysis"
	"github.com/pdiddy/litreview/internal/llm"
	"github.com/pdiddy/litreview/internal/query"
	"github.com/pdiddy/litreview/internal/relevance"
	"github.com/pdiddy/litreview/internal/search"
	"github.com/pdiddy/litreview/internal/synthesis"
	"github.com/pdiddy/litreview/pkg/types"
)

// Stage interfaces. The concrete implementations live in their own
// packages; tests swap any of them out.

type QueryStage interface {
	Build(ctx context.Context, task types.ResearchTask, w io.Writer) types.QueryPlan
}

type SearchStage interface {
	Run(ctx context.Context, req types.SearchRequest, w io.Writer) types.SearchResults
}

type FilterStage interface {
	Evaluate(ctx context.Context, in types.SearchResults, w io.Writer) relevance.Outcome
}

type AggregateStage interface {
	Run(ctx context.Context, in types.RelevantPapers, w io.Writer) (types.KnowledgeReady, error)
}

type AnalyzeStage interface {
	Run(ctx context.Context, in types.KnowledgeReady, w io.Writer) (types.AnalysisReady, error)
}

type SynthesizeStage interface {
	Run(ctx context.Context, in types.AnalysisReady, w io.Writer) (types.ReportReady, error)
}

// Pipeline holds the six stages and the run budget.
type Pipeline struct {
	Query      QueryStage
	Search     SearchStage
	Filter     FilterStage
	Aggregate  AggregateStage
	Analyze    AnalyzeStage
	Synthesize SynthesizeStage

	// Budget bounds one end-to-end run. Zero means no limit.
	Budget time.Duration

	// Log receives progress lines from every stage.
	Log io.Writer
}

// New wires the production stages from one configuration.
func New(cfg types.PipelineConfig, client llm.Client, httpClient *http.Client, w io.Writer) *Pipeline {
	return &Pipeline{
		Query:      &query.Constructor{LLM: client},
		Search:     &search.Searcher{Corpus: &search.ArxivClient{HTTP: httpClient, Cfg: cfg.Search}},
		Filter:     &relevance.Filter{LLM: client, Cfg: cfg.Relevance},
		Aggregate:  &aggregate.Aggregator{HTTP: httpClient, Cfg: cfg.Aggregate},
		Analyze:    &analysis.Analyzer{LLM: client, Cfg: cfg.Analysis},
		Synthesize: &synthesis.Synthesizer{LLM: client},
		Budget:     cfg.Budget,
		Log:        w,
	}
}

func (p *Pipeline) log() io.Writer {
	if p.Log == nil {
		return io.Discard
	}
	return p.Log
}

// tracker holds the per-run task state. Every stage advance goes through
// Transition so an illegal move fails loudly instead of corrupting the run.
type tracker struct {
	mu    sync.Mutex
	state types.TaskState
	w     io.Writer
}

func (t *tracker) advance(next types.TaskState) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, err := t.state.Transition(next)
	if err != nil {
		return err
	}
	t.state = s
	fmt.Fprintf(t.w, "state: %s\n", s)
	return nil
}

// Run drives one research question to a final report. It returns the
// report location, or an error when the budget expires or a persistence
// stage fails. Partial artifacts written before an abort stay on disk.
func (p *Pipeline) Run(ctx context.Context, question string) (types.ReportReady, error) {
	if p.Budget > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.Budget)
		defer cancel()
	}
	ctx, stop := context.WithCancel(ctx)
	defer stop()

	// One channel per stage; the Go type is the message discriminator.
	// tasks is buffered so the filter can hand a refined task back to the
	// constructor without blocking against itself.
	tasks := make(chan types.ResearchTask, 1)
	searches := make(chan types.SearchRequest)
	results := make(chan types.SearchResults)
	relevantc := make(chan types.RelevantPapers)
	knowledge := make(chan types.KnowledgeReady)
	analyses := make(chan types.AnalysisReady)
	reports := make(chan types.ReportReady, 1)

	st := &tracker{state: types.StateConstructing, w: p.log()}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return nil
			case task := <-tasks:
				plan := p.Query.Build(gctx, task, p.log())
				if err := st.advance(types.StateSearching); err != nil {
					return err
				}
				if !send(gctx, searches, types.SearchRequest{Task: plan.Task, Queries: plan.Queries}) {
					return nil
				}
			}
		}
	})

	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return nil
			case req := <-searches:
				res := p.Search.Run(gctx, req, p.log())
				if err := st.advance(types.StateFiltering); err != nil {
					return err
				}
				if !send(gctx, results, res) {
					return nil
				}
			}
		}
	})

	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return nil
			case res := <-results:
				out := p.Filter.Evaluate(gctx, res, p.log())
				if out.Refine {
					if err := st.advance(types.StateRefining); err != nil {
						return err
					}
					if err := st.advance(types.StateConstructing); err != nil {
						return err
					}
					if !send(gctx, tasks, out.Next) {
						return nil
					}
					continue
				}
				if err := st.advance(types.StateAggregating); err != nil {
					return err
				}
				if !send(gctx, relevantc, out.Forward) {
					return nil
				}
			}
		}
	})

	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return nil
			case in := <-relevantc:
				kr, err := p.Aggregate.Run(gctx, in, p.log())
				if err != nil {
					return fmt.Errorf("aggregate: %w", err)
				}
				if err := st.advance(types.StateAnalyzing); err != nil {
					return err
				}
				if !send(gctx, knowledge, kr) {
					return nil
				}
			}
		}
	})

	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return nil
			case in := <-knowledge:
				ar, err := p.Analyze.Run(gctx, in, p.log())
				if err != nil {
					return fmt.Errorf("analyze: %w", err)
				}
				if err := st.advance(types.StateSynthesizing); err != nil {
					return err
				}
				if !send(gctx, analyses, ar) {
					return nil
				}
			}
		}
	})

	g.Go(func() error {
		select {
		case <-gctx.Done():
			return nil
		case in := <-analyses:
			rr, err := p.Synthesize.Run(gctx, in, p.log())
			if err != nil {
				return fmt.Errorf("synthesize: %w", err)
			}
			if err := st.advance(types.StateDone); err != nil {
				return err
			}
			reports <- rr
			return nil
		}
	})

	tasks <- types.NewResearchTask(question)

	select {
	case report := <-reports:
		stop()
		_ = g.Wait()
		return report, nil
	case <-gctx.Done():
		err := g.Wait()
		if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			return types.ReportReady{}, err
		}
		return types.ReportReady{}, fmt.Errorf("pipeline aborted: %w", context.Cause(gctx))
	}
}

// send delivers v unless the run is cancelled first.
func send[T any](ctx context.Context, ch chan<- T, v T) bool {
	select {
	case ch <- v:
		return true
	case <-ctx.Done():
		return false
	}
}
