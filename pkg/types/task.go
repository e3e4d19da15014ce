// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package types defines shared data structures for the litreview pipeline:
// the research task, stage messages, persisted artifacts, and configuration.
//
// See docs/ARCHITECTURE.md § Pipeline Interface, § Data Structures.
package types

import (
	"fmt"

	"github.com/google/uuid"
)

// ResearchTask identifies one end-to-end run of the pipeline for a single
// research question, across possibly multiple refinement rounds. The task is
// carried in every stage message; no state is shared between stages outside
// of message payloads.
type ResearchTask struct {
	// ID is assigned when the question is submitted and never changes,
	// including across refinement rounds.
	ID uuid.UUID `json:"id" yaml:"id"`

	// Question is the research question as submitted, or the augmented form
	// after a refinement round. The original question travels unmodified
	// through the forward path of each iteration.
	Question string `json:"question" yaml:"question"`

	// SeenPaperIDs lists identifiers of papers already returned in earlier
	// rounds, so the query constructor can steer away from repeats.
	// Non-empty whenever Iteration > 0.
	SeenPaperIDs []string `json:"seen_paper_ids,omitempty" yaml:"seen_paper_ids,omitempty"`

	// Iteration counts refinement rounds, starting at 0.
	Iteration int `json:"iteration" yaml:"iteration"`
}

// NewResearchTask creates a task for a freshly submitted question.
func NewResearchTask(question string) ResearchTask {
	return ResearchTask{ID: uuid.New(), Question: question}
}

// Refined returns the next-round task: the question augmented with the
// refinement suggestion (if any), the seen history extended with ids, and the
// iteration counter advanced.
func (t ResearchTask) Refined(suggestion string, ids []string) ResearchTask {
	next := t
	if suggestion != "" {
		next.Question = t.Question + " - " + suggestion
	}
	next.SeenPaperIDs = append(append([]string(nil), t.SeenPaperIDs...), ids...)
	next.Iteration++
	return next
}

// TaskState is the per-task pipeline state.
type TaskState string

const (
	StateConstructing TaskState = "constructing"
	StateSearching    TaskState = "searching"
	StateFiltering    TaskState = "filtering"
	StateRefining     TaskState = "refining"
	StateAggregating  TaskState = "aggregating"
	StateAnalyzing    TaskState = "analyzing"
	StateSynthesizing TaskState = "synthesizing"
	StateDone         TaskState = "done"
	StateFailed       TaskState = "failed"
)

// validTransitions lists the legal successor states. The only backward edge
// is the refinement loop: filtering to refining to constructing.
var validTransitions = map[TaskState][]TaskState{
	StateConstructing: {StateSearching, StateFailed},
	StateSearching:    {StateFiltering, StateFailed},
	StateFiltering:    {StateRefining, StateAggregating, StateFailed},
	StateRefining:     {StateConstructing, StateFailed},
	StateAggregating:  {StateAnalyzing, StateFailed},
	StateAnalyzing:    {StateSynthesizing, StateFailed},
	StateSynthesizing: {StateDone, StateFailed},
	StateDone:         {},
	StateFailed:       {},
}

// CanTransition reports whether moving from s to next is legal.
func (s TaskState) CanTransition(next TaskState) bool {
	for _, t := range validTransitions[s] {
		if t == next {
			return true
		}
	}
	return false
}

// Transition returns next if the move is legal, or an error naming both states.
func (s TaskState) Transition(next TaskState) (TaskState, error) {
	if !s.CanTransition(next) {
		return s, fmt.Errorf("illegal state transition %s -> %s", s, next)
	}
	return next, nil
}
