package types

import "time"

// HTTPConfig holds shared HTTP settings used by stages that make network requests.
type HTTPConfig struct {
	// Timeout is the HTTP request timeout.
	Timeout time.Duration `json:"timeout" yaml:"timeout"`

	// UserAgent is the User-Agent header sent with HTTP requests
	// (e.g. "litreview/0.1").
	UserAgent string `json:"user_agent" yaml:"user_agent"`

	// MaxRetries is the number of retry attempts on rate-limited calls.
	MaxRetries int `json:"max_retries" yaml:"max_retries"`
}

// LLMConfig holds shared settings for stages that call the text-generation API.
type LLMConfig struct {
	// Model is the model identifier (e.g. "gemini-2.0-flash").
	Model string `json:"model" yaml:"model"`

	// APIKey is the authentication key for the API.
	APIKey string `json:"api_key,omitempty" yaml:"api_key,omitempty"`

	// Timeout bounds each generation call.
	Timeout time.Duration `json:"timeout" yaml:"timeout"`
}

// SearchConfig holds settings for the search stage.
type SearchConfig struct {
	HTTPConfig `yaml:",inline"`

	// MaxResults is the page size per query (default 20).
	MaxResults int `json:"max_results" yaml:"max_results"`
}

// RelevanceConfig holds settings for the relevance filter.
type RelevanceConfig struct {
	// Threshold is the relevance cutoff as a fraction of the 0-10 scale:
	// a paper is relevant iff score >= Threshold*10 (default 0.7).
	Threshold float64 `json:"threshold" yaml:"threshold"`

	// MinRelevant is the relevant-paper count below which the filter may
	// request refinement (default 5).
	MinRelevant int `json:"min_relevant" yaml:"min_relevant"`

	// MaxSampled caps how many incoming papers are sent to the model for
	// scoring (default 10). Papers beyond the cap keep score 0; this is a
	// cost control, not a correctness rule.
	MaxSampled int `json:"max_sampled" yaml:"max_sampled"`

	// MaxRefinements caps refinement rounds per task (default 3). The cap
	// guarantees the refinement loop terminates even when the model keeps
	// asking for another round.
	MaxRefinements int `json:"max_refinements" yaml:"max_refinements"`
}

// AggregateConfig holds settings for the knowledge aggregator.
type AggregateConfig struct {
	HTTPConfig `yaml:",inline"`

	// MaxPapers caps how many relevant papers are kept, in incoming order
	// (default 10).
	MaxPapers int `json:"max_papers" yaml:"max_papers"`

	// OutputDir is the base directory for run directories (default
	// "knowledge_bases").
	OutputDir string `json:"output_dir" yaml:"output_dir"`

	// ReaderAPIKey authenticates against the text-extraction service.
	// When empty, full texts degrade to abstract-only documents.
	ReaderAPIKey string `json:"reader_api_key,omitempty" yaml:"reader_api_key,omitempty"`

	// FetchConcurrency bounds parallel probe/fetch work (default 4).
	FetchConcurrency int `json:"fetch_concurrency" yaml:"fetch_concurrency"`
}

// AnalysisConfig holds settings for the analyzer.
type AnalysisConfig struct {
	// MaxDocChars truncates document content sent to the model, respecting
	// its input limits (default 40000).
	MaxDocChars int `json:"max_doc_chars" yaml:"max_doc_chars"`
}

// KnowledgeIndexConfig holds settings for the run index.
type KnowledgeIndexConfig struct {
	// IndexDir is the directory containing litreview.db (default
	// "knowledge/index").
	IndexDir string `json:"index_dir" yaml:"index_dir"`

	// MaxResults is the default maximum number of query results (default 20).
	MaxResults int `json:"max_results" yaml:"max_results"`
}

// PipelineConfig groups all stage configurations.
type PipelineConfig struct {
	LLM       LLMConfig            `json:"llm" yaml:"llm"`
	Search    SearchConfig         `json:"search" yaml:"search"`
	Relevance RelevanceConfig      `json:"relevance" yaml:"relevance"`
	Aggregate AggregateConfig      `json:"aggregate" yaml:"aggregate"`
	Analysis  AnalysisConfig       `json:"analysis" yaml:"analysis"`
	Index     KnowledgeIndexConfig `json:"index" yaml:"index"`

	// Budget is the wall-clock limit for one end-to-end run (default 15m).
	// On expiry the driver stops all stages; partial artifacts remain.
	Budget time.Duration `json:"budget" yaml:"budget"`
}

// DefaultConfig returns the pipeline configuration with all defaults applied.
func DefaultConfig() PipelineConfig {
	httpDefaults := HTTPConfig{
		Timeout:    60 * time.Second,
		UserAgent:  "litreview/0.1",
		MaxRetries: 3,
	}
	return PipelineConfig{
		LLM: LLMConfig{
			Model:   "gemini-2.0-flash",
			Timeout: 60 * time.Second,
		},
		Search: SearchConfig{
			HTTPConfig: httpDefaults,
			MaxResults: 20,
		},
		Relevance: RelevanceConfig{
			Threshold:      0.7,
			MinRelevant:    5,
			MaxSampled:     10,
			MaxRefinements: 3,
		},
		Aggregate: AggregateConfig{
			HTTPConfig:       httpDefaults,
			MaxPapers:        10,
			OutputDir:        "knowledge_bases",
			FetchConcurrency: 4,
		},
		Analysis: AnalysisConfig{
			MaxDocChars: 40000,
		},
		Index: KnowledgeIndexConfig{
			IndexDir:   "knowledge/index",
			MaxResults: 20,
		},
		Budget: 15 * time.Minute,
	}
}
