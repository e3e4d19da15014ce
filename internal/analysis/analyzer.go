// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package analysis extracts structured findings from each persisted document
// of a run.
//
// See docs/ARCHITECTURE.md § Analysis.
package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/pdiddy/litreview/internal/aggregate"
	"github.com/pdiddy/litreview/internal/llm"
	"github.com/pdiddy/litreview/pkg/types"
)

// AnalysisFile is the analysis artifact filename within a run directory.
const AnalysisFile = "analysis.json"

// Analyzer produces one PaperAnalysis per persisted document.
type Analyzer struct {
	LLM llm.Client
	Cfg types.AnalysisConfig
}

// analysisSchema requests structured output from the model.
var analysisSchema = json.RawMessage(`{
	"type": "OBJECT",
	"properties": {
		"methodology": {"type": "STRING"},
		"findings": {"type": "STRING"},
		"future_work": {"type": "STRING"}
	},
	"propertyOrdering": ["methodology", "findings", "future_work"]
}`)

// Run analyzes every document listed in the run directory and persists the
// analysis artifact. A per-document failure records empty strings for that
// document rather than aborting the batch; a run with zero documents still
// persists an empty-but-valid artifact so downstream stages never stall.
func (a *Analyzer) Run(ctx context.Context, in types.KnowledgeReady, w io.Writer) (types.AnalysisReady, error) {
	manifest, err := aggregate.ReadManifest(in.Dir)
	if err != nil {
		// A missing manifest still yields a valid empty artifact.
		fmt.Fprintf(w, "warning: %v; producing empty analysis\n", err)
		manifest = types.Manifest{Question: in.Task.Question}
	}

	// Documents are matched back to manifest entries by filename: the
	// content filename is a sanitized form of the paper id, so the stem
	// alone is not a reliable key.
	byFile := make(map[string]types.ManifestPaper, len(manifest.Papers))
	for _, p := range manifest.Papers {
		byFile[p.ContentFile] = p
	}

	entries, err := os.ReadDir(in.Dir)
	if err != nil {
		return types.AnalysisReady{}, fmt.Errorf("reading run directory %s: %w", in.Dir, err)
	}

	results := types.AnalysisSet{}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".md") {
			continue
		}
		paperID := strings.TrimSuffix(entry.Name(), ".md")
		var title string
		if p, ok := byFile[entry.Name()]; ok {
			paperID = p.ID
			title = p.Title
		}

		content, err := os.ReadFile(filepath.Join(in.Dir, entry.Name()))
		if err != nil {
			fmt.Fprintf(w, "warning: reading %s: %v\n", entry.Name(), err)
			results[paperID] = types.PaperAnalysis{Title: title}
			continue
		}

		record := a.analyzeOne(ctx, in.Task.Question, string(content), w)
		record.Title = title
		results[paperID] = record
		fmt.Fprintf(w, "analyzed %s\n", paperID)
	}

	path := filepath.Join(in.Dir, AnalysisFile)
	if err := writeAnalysis(path, results); err != nil {
		return types.AnalysisReady{}, err
	}
	fmt.Fprintf(w, "analysis: %d papers, written to %s\n", len(results), path)

	return types.AnalysisReady{Task: in.Task, Dir: in.Dir, AnalysisPath: path}, nil
}

// analyzeOne extracts methodology, findings, and future work from one
// document. Any model or parse failure degrades to empty strings.
func (a *Analyzer) analyzeOne(ctx context.Context, question, content string, w io.Writer) types.PaperAnalysis {
	maxChars := a.Cfg.MaxDocChars
	if maxChars <= 0 {
		maxChars = 40000
	}
	if len(content) > maxChars {
		// Back off to a rune boundary so truncation never produces
		// invalid UTF-8 in the prompt.
		cut := maxChars
		for cut > 0 && !utf8.RuneStart(content[cut]) {
			cut--
		}
		content = content[:cut]
	}

	prompt := fmt.Sprintf(
		"You are an expert researcher in this field. "+
			"Given the following research paper content, extract the following as a JSON object: "+
			"1. Methodology\n2. Findings\n3. Future work (leave as an empty string if the paper does not mention any future work).\n"+
			"Research Question: %s\n"+
			"Paper Content:\n%s\n"+
			"Return a JSON object with keys: methodology, findings, future_work. "+
			"Be concise, comprehensive and accurate.",
		question, content)

	raw, err := a.LLM.Generate(ctx, prompt, llm.GenerationConfig{
		Temperature:     0.3,
		MaxOutputTokens: 512,
		TopP:            0.9,
		TopK:            40,
		ResponseMIME:    "application/json",
		ResponseSchema:  analysisSchema,
	})
	if err != nil {
		fmt.Fprintf(w, "warning: analysis call failed: %v\n", err)
		return types.PaperAnalysis{}
	}

	var doc struct {
		Methodology string `json:"methodology"`
		Findings    string `json:"findings"`
		FutureWork  string `json:"future_work"`
	}
	if err := llm.DecodeObject(raw, &doc); err != nil {
		fmt.Fprintf(w, "warning: unparseable analysis response\n")
		return types.PaperAnalysis{}
	}

	return types.PaperAnalysis{
		Methodology: doc.Methodology,
		Findings:    doc.Findings,
		FutureWork:  doc.FutureWork,
	}
}

func writeAnalysis(path string, results types.AnalysisSet) error {
	data, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling analysis: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing analysis: %w", err)
	}
	return nil
}

// ReadAnalysis loads a persisted analysis artifact.
func ReadAnalysis(path string) (types.AnalysisSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading analysis: %w", err)
	}
	var set types.AnalysisSet
	if err := json.Unmarshal(data, &set); err != nil {
		return nil, fmt.Errorf("parsing analysis: %w", err)
	}
	return set, nil
}
