// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

// PaperAnalysis holds the structured findings extracted from one paper.
// Immutable once written; keyed by paper ID in the analysis artifact.
type PaperAnalysis struct {
	Title       string `json:"title" yaml:"title"`
	Methodology string `json:"methodology" yaml:"methodology"`
	Findings    string `json:"findings" yaml:"findings"`
	FutureWork  string `json:"future_work" yaml:"future_work"`
}

// AnalysisSet is the persisted analysis artifact: one record per paper that
// had resolved content. An empty set is still a valid artifact.
type AnalysisSet map[string]PaperAnalysis

// FinalReport is the terminal artifact of a completed research task.
type FinalReport struct {
	CommonThemes        string `json:"common_themes" yaml:"common_themes"`
	ResearchGaps        string `json:"research_gaps" yaml:"research_gaps"`
	SuggestedFutureWork string `json:"suggested_future_work" yaml:"suggested_future_work"`
}
