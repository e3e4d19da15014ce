// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/litreview/internal/llm"
	"github.com/pdiddy/litreview/internal/pipeline"
	"github.com/pdiddy/litreview/internal/secrets"
	"github.com/pdiddy/litreview/pkg/types"
)

var runCmd = &cobra.Command{
	Use:   "run [question]",
	Short: "Run a full literature review for a research question",
	Long: `Run drives a research question through the whole pipeline: query
construction, arXiv search, relevance filtering (with query refinement
when results are thin), full-text aggregation, per-paper analysis, and
final synthesis.

Artifacts land in a timestamped directory under knowledge_bases/:
research.json, one Markdown file per paper, analysis.json, and
final_report.json. A Gemini API key is required (gemini-api-key in
.secrets/, GEMINI_API_KEY in the environment or .env, or --api-key).`,
	Args: cobra.MinimumNArgs(1),
	RunE: runReview,
}

func runReview(cmd *cobra.Command, args []string) error {
	question := strings.TrimSpace(strings.Join(args, " "))
	if question == "" {
		return fmt.Errorf("research question must not be empty")
	}

	cfg, err := reviewConfig(cmd)
	if err != nil {
		return err
	}

	client := llm.NewGeminiClient(cfg.LLM)
	httpClient := &http.Client{Timeout: cfg.Search.Timeout}

	p := pipeline.New(cfg, client, httpClient, os.Stdout)

	fmt.Fprintf(os.Stdout, "reviewing: %s\n", question)
	report, err := p.Run(context.Background(), question)
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stdout, "\nreview complete: %s\n", report.ReportPath)
	return nil
}

// reviewConfig builds the pipeline configuration from defaults, config
// file, environment, and flags, in ascending precedence.
func reviewConfig(cmd *cobra.Command) (types.PipelineConfig, error) {
	cfg := types.DefaultConfig()

	if v := viper.GetString("llm.model"); v != "" {
		cfg.LLM.Model = v
	}
	if v := viper.GetFloat64("relevance.threshold"); v > 0 {
		cfg.Relevance.Threshold = v
	}
	if v := viper.GetInt("relevance.min_relevant"); v > 0 {
		cfg.Relevance.MinRelevant = v
	}
	if v := viper.GetInt("relevance.max_refinements"); v > 0 {
		cfg.Relevance.MaxRefinements = v
	}
	if v := viper.GetInt("aggregate.max_papers"); v > 0 {
		cfg.Aggregate.MaxPapers = v
	}
	if v := viper.GetString("aggregate.output_dir"); v != "" {
		cfg.Aggregate.OutputDir = v
	}

	if v, _ := cmd.Flags().GetString("model"); v != "" {
		cfg.LLM.Model = v
	}
	if cmd.Flags().Changed("threshold") {
		cfg.Relevance.Threshold, _ = cmd.Flags().GetFloat64("threshold")
	}
	if cmd.Flags().Changed("min-relevant") {
		cfg.Relevance.MinRelevant, _ = cmd.Flags().GetInt("min-relevant")
	}
	if cmd.Flags().Changed("max-refinements") {
		cfg.Relevance.MaxRefinements, _ = cmd.Flags().GetInt("max-refinements")
	}
	if cmd.Flags().Changed("max-results") {
		cfg.Search.MaxResults, _ = cmd.Flags().GetInt("max-results")
	}
	if cmd.Flags().Changed("max-papers") {
		cfg.Aggregate.MaxPapers, _ = cmd.Flags().GetInt("max-papers")
	}
	if v, _ := cmd.Flags().GetString("output-dir"); v != "" {
		cfg.Aggregate.OutputDir = v
	}
	if cmd.Flags().Changed("budget") {
		cfg.Budget, _ = cmd.Flags().GetDuration("budget")
	}

	apiKey, _ := cmd.Flags().GetString("api-key")
	cfg.LLM.APIKey = resolveKey(apiKey, "GEMINI_API_KEY", secrets.KeyGemini)
	if cfg.LLM.APIKey == "" {
		return cfg, fmt.Errorf("no Gemini API key: set gemini-api-key in .secrets/, GEMINI_API_KEY, or --api-key")
	}

	readerKey, _ := cmd.Flags().GetString("reader-api-key")
	cfg.Aggregate.ReaderAPIKey = resolveKey(readerKey, "JINA_API_KEY", secrets.KeyJina)

	return cfg, nil
}

// resolveKey resolves a credential from flag, environment, then secrets.
func resolveKey(flagValue, envName, secretName string) string {
	if flagValue != "" {
		return flagValue
	}
	if v := os.Getenv(envName); v != "" {
		return v
	}
	return secretDefault(secretName, "")
}

func init() {
	runCmd.Flags().String("model", "", "Gemini model identifier (default gemini-2.0-flash)")
	runCmd.Flags().String("api-key", "", "Gemini API key (overrides .secrets/ and environment)")
	runCmd.Flags().String("reader-api-key", "", "reader service API key for full-text extraction")
	runCmd.Flags().Float64("threshold", 0.7, "relevance threshold on the 0-1 scale")
	runCmd.Flags().Int("min-relevant", 5, "minimum relevant papers before refinement stops")
	runCmd.Flags().Int("max-refinements", 3, "maximum query refinement rounds")
	runCmd.Flags().Int("max-results", 20, "maximum results per arXiv query")
	runCmd.Flags().Int("max-papers", 10, "maximum papers carried into the knowledge base")
	runCmd.Flags().String("output-dir", "", "base directory for run artifacts (default knowledge_bases)")
	runCmd.Flags().Duration("budget", 15*time.Minute, "wall-clock limit for the whole run")

	rootCmd.AddCommand(runCmd)
}
