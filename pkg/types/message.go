// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "time"

// Stage messages. Each pipeline stage owns one typed inbound channel; the
// Go type is the discriminator, there is no content sniffing. Every message
// embeds the ResearchTask so state stays partitioned per task.

// SearchRequest carries a query plan from the constructor to the searcher.
type SearchRequest struct {
	Task    ResearchTask
	Queries []SearchQuery
}

// SearchResults carries the merged, deduplicated results to the relevance
// filter. Papers may be empty; the filter handles that case explicitly.
type SearchResults struct {
	Task   ResearchTask
	Papers []PaperResult
}

// RelevantPapers carries the papers that passed the relevance threshold to
// the aggregator, timestamped at the moment of the decision.
type RelevantPapers struct {
	Task      ResearchTask
	Papers    []PaperResult
	Timestamp time.Time
}

// KnowledgeReady announces a persisted manifest. Dir is the run directory
// holding research.json and the per-paper content files.
type KnowledgeReady struct {
	Task      ResearchTask
	Dir       string
	Timestamp time.Time
}

// AnalysisReady announces the persisted per-paper analysis artifact.
type AnalysisReady struct {
	Task         ResearchTask
	Dir          string
	AnalysisPath string
}

// ReportReady signals pipeline completion with the final report location.
type ReportReady struct {
	Task       ResearchTask
	Dir        string
	ReportPath string
}
