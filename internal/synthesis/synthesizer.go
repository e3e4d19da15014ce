// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package synthesis distills the per-paper analyses of a run into a single
// final report of themes, gaps, and suggested future work.
//
// See docs/ARCHITECTURE.md § Synthesis.
package synthesis

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/pdiddy/litreview/internal/analysis"
	"github.com/pdiddy/litreview/internal/llm"
	"github.com/pdiddy/litreview/pkg/types"
)

// ReportFile is the final report filename within a run directory.
const ReportFile = "final_report.json"

// Synthesizer produces the final report from a run's analysis artifact.
type Synthesizer struct {
	LLM llm.Client
}

var reportSchema = json.RawMessage(`{
	"type": "OBJECT",
	"properties": {
		"common_themes": {"type": "STRING"},
		"research_gaps": {"type": "STRING"},
		"suggested_future_work": {"type": "STRING"}
	},
	"propertyOrdering": ["common_themes", "research_gaps", "suggested_future_work"]
}`)

// Run reads the analysis artifact, makes a single synthesis call, and
// persists the final report. A model or parse failure still persists a
// report carrying an explanatory placeholder so the run always completes
// with an artifact on disk.
func (s *Synthesizer) Run(ctx context.Context, in types.AnalysisReady, w io.Writer) (types.ReportReady, error) {
	set, err := analysis.ReadAnalysis(in.AnalysisPath)
	if err != nil {
		return types.ReportReady{}, fmt.Errorf("loading analysis: %w", err)
	}

	report := s.synthesize(ctx, in.Task.Question, set, w)

	path := filepath.Join(in.Dir, ReportFile)
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return types.ReportReady{}, fmt.Errorf("marshaling report: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return types.ReportReady{}, fmt.Errorf("writing report: %w", err)
	}
	fmt.Fprintf(w, "final report written to %s\n", path)

	return types.ReportReady{Task: in.Task, Dir: in.Dir, ReportPath: path}, nil
}

func (s *Synthesizer) synthesize(ctx context.Context, question string, set types.AnalysisSet, w io.Writer) types.FinalReport {
	payload, err := json.MarshalIndent(set, "", "  ")
	if err != nil {
		return types.FinalReport{SuggestedFutureWork: "Error during synthesis."}
	}

	prompt := fmt.Sprintf(
		"You are an expert researcher in this field. "+
			"Given the following analysis of multiple research papers, identify: "+
			"1. Common themes and trends observed across the papers.\n"+
			"2. Research gaps that emerge from the collective findings.\n"+
			"3. Suggested future work or new research directions based on these gaps and themes.\n"+
			"The overarching research question for this literature review was: %s\n"+
			"Analysis Content in the form of dictionary:\n%s\n"+
			"Return a JSON object with keys: common_themes, research_gaps, suggested_future_work. "+
			"Be concise, comprehensive, provide important details, and insightful.",
		question, payload)

	raw, err := s.LLM.Generate(ctx, prompt, llm.GenerationConfig{
		Temperature:     0.4,
		MaxOutputTokens: 2048,
		TopP:            0.9,
		TopK:            40,
		ResponseMIME:    "application/json",
		ResponseSchema:  reportSchema,
	})
	if err != nil {
		fmt.Fprintf(w, "warning: synthesis call failed: %v\n", err)
		return types.FinalReport{SuggestedFutureWork: "Error during synthesis."}
	}

	var report types.FinalReport
	if err := llm.DecodeObject(raw, &report); err != nil {
		fmt.Fprintf(w, "warning: unparseable synthesis response\n")
		return types.FinalReport{SuggestedFutureWork: "Failed to parse LLM response."}
	}
	return report
}

// ReadReport loads a persisted final report.
func ReadReport(path string) (types.FinalReport, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return types.FinalReport{}, fmt.Errorf("reading report: %w", err)
	}
	var report types.FinalReport
	if err := json.Unmarshal(data, &report); err != nil {
		return types.FinalReport{}, fmt.Errorf("parsing report: %w", err)
	}
	return report, nil
}
