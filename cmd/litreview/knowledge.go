// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pdiddy/litreview/internal/knowledge"
	"github.com/pdiddy/litreview/pkg/types"
)

var knowledgeCmd = &cobra.Command{
	Use:   "knowledge",
	Short: "Manage the run index (store, retrieve, export)",
	Long: `Knowledge manages a local SQLite index over completed review runs.
Use subcommands to index run directories, query indexed papers, or export.`,
}

// --- store subcommand ---

var knowledgeStoreCmd = &cobra.Command{
	Use:   "store",
	Short: "Index completed review runs into the run index",
	Long: `Store scans the runs directory (knowledge_bases/ by default), reads
each run's manifest, analysis, and final report, and ingests them into a
SQLite database with FTS5 indexing. Unchanged runs are skipped on
subsequent invocations.`,
	RunE: runKnowledgeStore,
}

func runKnowledgeStore(cmd *cobra.Command, args []string) error {
	cfg, runsDir := knowledgeConfig(cmd)

	store, err := knowledge.NewStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	summary, err := store.Ingest(context.Background(), runsDir, os.Stdout)
	if err != nil {
		return err
	}
	if summary.Failed > 0 {
		return fmt.Errorf("%d run(s) failed indexing", summary.Failed)
	}
	return nil
}

// --- retrieve subcommand ---

var knowledgeRetrieveCmd = &cobra.Command{
	Use:   "retrieve [query]",
	Short: "Query the run index with full-text search and filters",
	Long: `Retrieve searches indexed papers using FTS5 full-text search over
titles, abstracts, and findings, structured filters (run, paper, score),
or a combination of both.

Use --runs to list indexed runs instead of papers.`,
	RunE: runKnowledgeRetrieve,
}

func runKnowledgeRetrieve(cmd *cobra.Command, args []string) error {
	listRuns, _ := cmd.Flags().GetBool("runs")
	jsonOutput, _ := cmd.Flags().GetBool("json")

	cfg, _ := knowledgeConfig(cmd)
	store, err := knowledge.NewStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	if listRuns {
		runs, err := store.Runs(context.Background())
		if err != nil {
			return err
		}
		return formatRunsOutput(runs, jsonOutput)
	}

	opts := queryOptsFromFlags(cmd, args)
	if opts.IsEmpty() {
		return fmt.Errorf("query or filter required: provide a search query, --run, --paper, or --min-score")
	}

	results, err := store.Retrieve(context.Background(), opts)
	if err != nil {
		return err
	}
	return formatRetrieveOutput(results, jsonOutput)
}

func formatRetrieveOutput(results []knowledge.QueryResult, jsonOutput bool) error {
	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	}

	if len(results) == 0 {
		fmt.Println("No results found.")
		return nil
	}

	fmt.Fprintf(os.Stdout, "%-4s  %-16s  %-50s  %-6s  %s\n",
		"Rank", "Paper", "Title", "Score", "Run")
	fmt.Fprintln(os.Stdout, strings.Repeat("-", 100))

	for i, r := range results {
		title := r.Title
		if len(title) > 50 {
			title = title[:47] + "..."
		}
		run := r.RunDir
		if len(run) > 20 {
			run = run[:17] + "..."
		}
		fmt.Fprintf(os.Stdout, "%-4d  %-16s  %-50s  %-6.1f  %s\n",
			i+1, r.PaperID, title, r.RelevanceScore, run)
	}

	fmt.Fprintf(os.Stdout, "\n%d results\n", len(results))
	return nil
}

func formatRunsOutput(runs []knowledge.RunSummary, jsonOutput bool) error {
	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(runs)
	}

	if len(runs) == 0 {
		fmt.Println("No runs indexed.")
		return nil
	}

	for _, r := range runs {
		fmt.Fprintf(os.Stdout, "%s  (%d papers)\n  %s\n", r.Dir, r.PaperCount, r.Question)
	}
	fmt.Fprintf(os.Stdout, "\n%d runs\n", len(runs))
	return nil
}

// --- export subcommand ---

var knowledgeExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the run index to YAML or JSON",
	Long: `Export writes the full run index (or a filtered subset) to
export.yaml or export.json inside the index directory. Supports the same
filter flags as retrieve for partial exports.`,
	RunE: runKnowledgeExport,
}

func runKnowledgeExport(cmd *cobra.Command, args []string) error {
	format, _ := cmd.Flags().GetString("format")

	cfg, _ := knowledgeConfig(cmd)
	store, err := knowledge.NewStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	opts := queryOptsFromFlags(cmd, args)

	switch format {
	case "yaml", "":
		if err := store.ExportYAML(context.Background(), opts); err != nil {
			return err
		}
		fmt.Printf("Exported to %s/export.yaml\n", cfg.IndexDir)
	case "json":
		if err := store.ExportJSON(context.Background(), opts); err != nil {
			return err
		}
		fmt.Printf("Exported to %s/export.json\n", cfg.IndexDir)
	default:
		return fmt.Errorf("unsupported format %q: use yaml or json", format)
	}

	return nil
}

// --- shared helpers ---

func knowledgeConfig(cmd *cobra.Command) (types.KnowledgeIndexConfig, string) {
	indexDir, _ := cmd.Flags().GetString("index-dir")
	if indexDir == "" {
		indexDir = "knowledge/index"
	}
	runsDir, _ := cmd.Flags().GetString("runs-dir")
	if runsDir == "" {
		runsDir = "knowledge_bases"
	}
	maxResults, _ := cmd.Flags().GetInt("max-results")

	cfg := types.KnowledgeIndexConfig{
		IndexDir:   indexDir,
		MaxResults: maxResults,
	}
	return cfg, runsDir
}

func queryOptsFromFlags(cmd *cobra.Command, args []string) knowledge.QueryOptions {
	queryText, _ := cmd.Flags().GetString("query")
	if queryText == "" && len(args) > 0 {
		queryText = strings.Join(args, " ")
	}

	runDir, _ := cmd.Flags().GetString("run")
	paperID, _ := cmd.Flags().GetString("paper")
	minScore, _ := cmd.Flags().GetFloat64("min-score")
	limit, _ := cmd.Flags().GetInt("limit")

	return knowledge.QueryOptions{
		Query:      queryText,
		RunDir:     runDir,
		PaperID:    paperID,
		MinScore:   minScore,
		MaxResults: limit,
	}
}

func init() {
	// Shared flags on the parent command, inherited by subcommands.
	knowledgeCmd.PersistentFlags().String("index-dir", "knowledge/index", "directory holding the run index database")
	knowledgeCmd.PersistentFlags().String("runs-dir", "knowledge_bases", "directory holding completed review runs")
	knowledgeCmd.PersistentFlags().Int("max-results", 20, "maximum number of query results")

	// Retrieve flags.
	knowledgeRetrieveCmd.Flags().String("query", "", "full-text search query")
	knowledgeRetrieveCmd.Flags().String("run", "", "filter by run directory name")
	knowledgeRetrieveCmd.Flags().String("paper", "", "filter by paper ID")
	knowledgeRetrieveCmd.Flags().Float64("min-score", 0, "minimum relevance score")
	knowledgeRetrieveCmd.Flags().Int("limit", 0, "maximum results (0 = use default)")
	knowledgeRetrieveCmd.Flags().Bool("runs", false, "list indexed runs instead of papers")
	knowledgeRetrieveCmd.Flags().Bool("json", false, "output results as JSON")

	// Export flags.
	knowledgeExportCmd.Flags().String("format", "yaml", "export format: yaml or json")
	knowledgeExportCmd.Flags().String("query", "", "full-text search filter for partial export")
	knowledgeExportCmd.Flags().String("run", "", "filter by run directory for partial export")
	knowledgeExportCmd.Flags().String("paper", "", "filter by paper ID for partial export")
	knowledgeExportCmd.Flags().Float64("min-score", 0, "minimum relevance score for partial export")
	knowledgeExportCmd.Flags().Int("limit", 0, "maximum entries to export (0 = all)")

	// Wire subcommands.
	knowledgeCmd.AddCommand(knowledgeStoreCmd)
	knowledgeCmd.AddCommand(knowledgeRetrieveCmd)
	knowledgeCmd.AddCommand(knowledgeExportCmd)

	rootCmd.AddCommand(knowledgeCmd)
}
