package knowledge

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/litreview/internal/aggregate"
	"github.com/pdiddy/litreview/internal/analysis"
	"github.com/pdiddy/litreview/internal/synthesis"
	"github.com/pdiddy/litreview/pkg/types"
)

// --- test helpers ---

func testSetup(t *testing.T) (*Store, string) {
	t.Helper()
	tmpDir := t.TempDir()

	runsDir := filepath.Join(tmpDir, "knowledge_bases")
	if err := os.MkdirAll(runsDir, 0o755); err != nil {
		t.Fatal(err)
	}

	cfg := types.KnowledgeIndexConfig{
		IndexDir:   filepath.Join(tmpDir, "knowledge", "index"),
		MaxResults: 20,
	}
	store, err := NewStore(cfg)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })

	return store, runsDir
}

func writeRunDir(t *testing.T, runsDir, name string, manifest types.Manifest, set types.AnalysisSet, report *types.FinalReport) string {
	t.Helper()
	dir := filepath.Join(runsDir, name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}

	writeJSON(t, filepath.Join(dir, aggregate.ManifestFile), manifest)
	if set != nil {
		writeJSON(t, filepath.Join(dir, analysis.AnalysisFile), set)
	}
	if report != nil {
		writeJSON(t, filepath.Join(dir, synthesis.ReportFile), report)
	}
	return dir
}

func writeJSON(t *testing.T, path string, v any) {
	t.Helper()
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
}

func sampleRun(question string, ids ...string) (types.Manifest, types.AnalysisSet, *types.FinalReport) {
	manifest := types.Manifest{
		Question:  question,
		CreatedAt: time.Date(2026, 3, 14, 15, 9, 26, 0, time.UTC),
	}
	set := types.AnalysisSet{}
	for i, id := range ids {
		manifest.Papers = append(manifest.Papers, types.ManifestPaper{
			ID:             id,
			Title:          "Paper " + id,
			Abstract:       "Abstract about neural ranking for " + id,
			Authors:        []string{"A. Author", "B. Author"},
			RelevanceScore: float64(9 - i),
			URL:            "https://arxiv.org/abs/" + id,
			ContentFile:    id + ".md",
		})
		set[id] = types.PaperAnalysis{
			Title:       "Paper " + id,
			Methodology: "benchmark study",
			Findings:    "transformers outperform baselines",
			FutureWork:  "larger corpora",
		}
	}
	report := &types.FinalReport{
		CommonThemes:        "attention mechanisms",
		ResearchGaps:        "multilingual evaluation",
		SuggestedFutureWork: "cross-lingual benchmarks",
	}
	return manifest, set, report
}

// --- schema ---

func TestNewStoreCreatesSchema(t *testing.T) {
	store, _ := testSetup(t)

	for _, table := range []string{"runs", "papers", "papers_fts", "indexing_status"} {
		var count int
		err := store.db.QueryRow(
			`SELECT count(*) FROM sqlite_master WHERE type='table' AND name=?`, table,
		).Scan(&count)
		if err != nil {
			t.Fatal(err)
		}
		if count != 1 {
			t.Errorf("table %s not created", table)
		}
	}
}

func TestNewStoreCreatesDBFile(t *testing.T) {
	tmpDir := t.TempDir()
	cfg := types.KnowledgeIndexConfig{IndexDir: filepath.Join(tmpDir, "index")}
	store, err := NewStore(cfg)
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	if _, err := os.Stat(filepath.Join(tmpDir, "index", dbFile)); err != nil {
		t.Errorf("database file not created: %v", err)
	}
}

// --- ingest ---

func TestIngest(t *testing.T) {
	store, runsDir := testSetup(t)
	m, set, report := sampleRun("q one", "2301.00001v1", "2301.00002v1")
	writeRunDir(t, runsDir, "q_one_20260314_150926", m, set, report)

	summary, err := store.Ingest(context.Background(), runsDir, io.Discard)
	if err != nil {
		t.Fatal(err)
	}
	if summary.Indexed != 1 {
		t.Errorf("Indexed = %d, want 1", summary.Indexed)
	}

	var count int
	if err := store.db.QueryRow(`SELECT count(*) FROM papers`).Scan(&count); err != nil {
		t.Fatal(err)
	}
	if count != 2 {
		t.Errorf("papers count = %d, want 2", count)
	}
}

func TestIngestStoresAllFields(t *testing.T) {
	store, runsDir := testSetup(t)
	m, set, report := sampleRun("q one", "2301.00001v1")
	m.Papers[0].AbstractOnly = true
	writeRunDir(t, runsDir, "run_a", m, set, report)

	if _, err := store.Ingest(context.Background(), runsDir, io.Discard); err != nil {
		t.Fatal(err)
	}

	results, err := store.Retrieve(context.Background(), QueryOptions{PaperID: "2301.00001v1"})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 {
		t.Fatalf("got %d results, want 1", len(results))
	}

	r := results[0]
	if r.RunDir != "run_a" {
		t.Errorf("RunDir = %q", r.RunDir)
	}
	if r.Question != "q one" {
		t.Errorf("Question = %q", r.Question)
	}
	if r.Title != "Paper 2301.00001v1" {
		t.Errorf("Title = %q", r.Title)
	}
	if len(r.Authors) != 2 || r.Authors[0] != "A. Author" {
		t.Errorf("Authors = %v", r.Authors)
	}
	if r.RelevanceScore != 9 {
		t.Errorf("RelevanceScore = %v", r.RelevanceScore)
	}
	if !r.AbstractOnly {
		t.Error("AbstractOnly not persisted")
	}
	if r.Methodology != "benchmark study" {
		t.Errorf("Methodology = %q", r.Methodology)
	}
	if r.FutureWork != "larger corpora" {
		t.Errorf("FutureWork = %q", r.FutureWork)
	}
}

func TestIngestManifestOnlyRun(t *testing.T) {
	store, runsDir := testSetup(t)
	m, _, _ := sampleRun("interrupted", "2301.00001v1")
	writeRunDir(t, runsDir, "run_b", m, nil, nil)

	summary, err := store.Ingest(context.Background(), runsDir, io.Discard)
	if err != nil {
		t.Fatal(err)
	}
	if summary.Indexed != 1 {
		t.Fatalf("Indexed = %d, want 1", summary.Indexed)
	}

	results, err := store.Retrieve(context.Background(), QueryOptions{RunDir: "run_b"})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 {
		t.Fatalf("got %d results, want 1", len(results))
	}
	if results[0].Methodology != "" {
		t.Errorf("Methodology = %q, want empty for unanalyzed run", results[0].Methodology)
	}
}

func TestIngestIgnoresNonRunDirs(t *testing.T) {
	store, runsDir := testSetup(t)
	if err := os.MkdirAll(filepath.Join(runsDir, "not_a_run"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(runsDir, "stray.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	summary, err := store.Ingest(context.Background(), runsDir, io.Discard)
	if err != nil {
		t.Fatal(err)
	}
	if summary.Total() != 0 {
		t.Errorf("Total = %d, want 0", summary.Total())
	}
}

func TestIngestSkipsUnchanged(t *testing.T) {
	store, runsDir := testSetup(t)
	m, set, report := sampleRun("q", "2301.00001v1")
	writeRunDir(t, runsDir, "run_c", m, set, report)

	if _, err := store.Ingest(context.Background(), runsDir, io.Discard); err != nil {
		t.Fatal(err)
	}
	summary, err := store.Ingest(context.Background(), runsDir, io.Discard)
	if err != nil {
		t.Fatal(err)
	}
	if summary.Skipped != 1 || summary.Indexed != 0 {
		t.Errorf("summary = %+v, want 1 skipped", summary)
	}
}

func TestIngestUpdatesChanged(t *testing.T) {
	store, runsDir := testSetup(t)
	m, set, report := sampleRun("q", "2301.00001v1")
	dir := writeRunDir(t, runsDir, "run_d", m, set, report)

	if _, err := store.Ingest(context.Background(), runsDir, io.Discard); err != nil {
		t.Fatal(err)
	}

	m.Papers[0].Title = "Revised Title"
	writeJSON(t, filepath.Join(dir, aggregate.ManifestFile), m)
	future := time.Now().Add(time.Hour)
	if err := os.Chtimes(filepath.Join(dir, aggregate.ManifestFile), future, future); err != nil {
		t.Fatal(err)
	}

	summary, err := store.Ingest(context.Background(), runsDir, io.Discard)
	if err != nil {
		t.Fatal(err)
	}
	if summary.Updated != 1 {
		t.Fatalf("Updated = %d, want 1", summary.Updated)
	}

	results, err := store.Retrieve(context.Background(), QueryOptions{RunDir: "run_d"})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 || results[0].Title != "Revised Title" {
		t.Errorf("stale paper row after update: %+v", results)
	}
}

func TestIngestSummaryOutput(t *testing.T) {
	store, runsDir := testSetup(t)
	m, set, report := sampleRun("q", "2301.00001v1")
	writeRunDir(t, runsDir, "run_e", m, set, report)

	var buf strings.Builder
	if _, err := store.Ingest(context.Background(), runsDir, &buf); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	if !strings.Contains(out, "indexing run_e (1 papers)") {
		t.Errorf("missing indexing line in output:\n%s", out)
	}
	if !strings.Contains(out, "indexed: 1, updated: 0, skipped: 0, failed: 0") {
		t.Errorf("missing summary line in output:\n%s", out)
	}
}

func TestIngestSummaryTotal(t *testing.T) {
	s := IngestSummary{Indexed: 1, Updated: 2, Skipped: 3, Failed: 4}
	if s.Total() != 10 {
		t.Errorf("Total = %d, want 10", s.Total())
	}
}

// --- retrieve ---

func ingestSample(t *testing.T, store *Store, runsDir string) {
	t.Helper()
	m, set, report := sampleRun("neural ranking", "2301.00001v1", "2301.00002v1", "2301.00003v1")
	set["2301.00002v1"] = types.PaperAnalysis{
		Title:    "Paper 2301.00002v1",
		Findings: "sparse retrieval remains competitive",
	}
	writeRunDir(t, runsDir, "run_x", m, set, report)
	if _, err := store.Ingest(context.Background(), runsDir, io.Discard); err != nil {
		t.Fatal(err)
	}
}

func TestRetrieveFullTextSearch(t *testing.T) {
	store, runsDir := testSetup(t)
	ingestSample(t, store, runsDir)

	results, err := store.Retrieve(context.Background(), QueryOptions{Query: "sparse"})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 {
		t.Fatalf("got %d results, want 1", len(results))
	}
	if results[0].PaperID != "2301.00002v1" {
		t.Errorf("PaperID = %q", results[0].PaperID)
	}
}

func TestRetrieveByRunDir(t *testing.T) {
	store, runsDir := testSetup(t)
	ingestSample(t, store, runsDir)
	m2, set2, _ := sampleRun("other question", "2302.00009v1")
	writeRunDir(t, runsDir, "run_y", m2, set2, nil)
	if _, err := store.Ingest(context.Background(), runsDir, io.Discard); err != nil {
		t.Fatal(err)
	}

	results, err := store.Retrieve(context.Background(), QueryOptions{RunDir: "run_y"})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 || results[0].RunDir != "run_y" {
		t.Errorf("results = %+v", results)
	}
}

func TestRetrieveMinScore(t *testing.T) {
	store, runsDir := testSetup(t)
	ingestSample(t, store, runsDir)

	results, err := store.Retrieve(context.Background(), QueryOptions{MinScore: 8.5})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 {
		t.Fatalf("got %d results, want 1", len(results))
	}
	if results[0].RelevanceScore < 8.5 {
		t.Errorf("score %v below cutoff", results[0].RelevanceScore)
	}
}

func TestRetrieveStructuredSortOrder(t *testing.T) {
	store, runsDir := testSetup(t)
	ingestSample(t, store, runsDir)

	results, err := store.Retrieve(context.Background(), QueryOptions{RunDir: "run_x"})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 3 {
		t.Fatalf("got %d results, want 3", len(results))
	}
	for i := 1; i < len(results); i++ {
		if results[i].RelevanceScore > results[i-1].RelevanceScore {
			t.Errorf("results not sorted by descending score: %v then %v",
				results[i-1].RelevanceScore, results[i].RelevanceScore)
		}
	}
}

func TestRetrieveRespectsMaxResults(t *testing.T) {
	store, runsDir := testSetup(t)
	ingestSample(t, store, runsDir)

	results, err := store.Retrieve(context.Background(), QueryOptions{RunDir: "run_x", MaxResults: 2})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 2 {
		t.Errorf("got %d results, want 2", len(results))
	}
}

func TestRetrieveNoResults(t *testing.T) {
	store, runsDir := testSetup(t)
	ingestSample(t, store, runsDir)

	results, err := store.Retrieve(context.Background(), QueryOptions{Query: "nonexistentterm"})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 0 {
		t.Errorf("got %d results, want 0", len(results))
	}
}

func TestRunsListsNewestFirst(t *testing.T) {
	store, runsDir := testSetup(t)

	m1, _, r1 := sampleRun("older", "2301.00001v1")
	m1.CreatedAt = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	writeRunDir(t, runsDir, "run_old", m1, nil, r1)

	m2, _, r2 := sampleRun("newer", "2302.00001v1")
	m2.CreatedAt = time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	writeRunDir(t, runsDir, "run_new", m2, nil, r2)

	if _, err := store.Ingest(context.Background(), runsDir, io.Discard); err != nil {
		t.Fatal(err)
	}

	runs, err := store.Runs(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 2 {
		t.Fatalf("got %d runs, want 2", len(runs))
	}
	if runs[0].Dir != "run_new" {
		t.Errorf("first run = %q, want run_new", runs[0].Dir)
	}
	if runs[0].Question != "newer" {
		t.Errorf("Question = %q", runs[0].Question)
	}
	if runs[0].CommonThemes != "attention mechanisms" {
		t.Errorf("CommonThemes = %q", runs[0].CommonThemes)
	}
	if runs[0].PaperCount != 1 {
		t.Errorf("PaperCount = %d", runs[0].PaperCount)
	}
}

// --- export ---

func TestExportYAML(t *testing.T) {
	store, runsDir := testSetup(t)
	ingestSample(t, store, runsDir)

	if err := store.ExportYAML(context.Background(), QueryOptions{}); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(filepath.Join(store.indexDir, "export.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	var entries []ExportEntry
	if err := yaml.Unmarshal(data, &entries); err != nil {
		t.Fatal(err)
	}
	if len(entries) != 3 {
		t.Errorf("got %d entries, want 3", len(entries))
	}
	if entries[0].Question != "neural ranking" {
		t.Errorf("Question = %q", entries[0].Question)
	}
}

func TestExportJSON(t *testing.T) {
	store, runsDir := testSetup(t)
	ingestSample(t, store, runsDir)

	if err := store.ExportJSON(context.Background(), QueryOptions{}); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(filepath.Join(store.indexDir, "export.json"))
	if err != nil {
		t.Fatal(err)
	}
	var entries []ExportEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		t.Fatal(err)
	}
	if len(entries) != 3 {
		t.Errorf("got %d entries, want 3", len(entries))
	}
}

func TestExportFilteredByMinScore(t *testing.T) {
	store, runsDir := testSetup(t)
	ingestSample(t, store, runsDir)

	if err := store.ExportJSON(context.Background(), QueryOptions{MinScore: 8.5}); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(filepath.Join(store.indexDir, "export.json"))
	if err != nil {
		t.Fatal(err)
	}
	var entries []ExportEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("got %d entries, want 1", len(entries))
	}
}

func TestIngestWritesExport(t *testing.T) {
	store, runsDir := testSetup(t)
	m, set, report := sampleRun("q", "2301.00001v1")
	writeRunDir(t, runsDir, "run_f", m, set, report)

	if _, err := store.Ingest(context.Background(), runsDir, io.Discard); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(store.indexDir, "export.yaml")); err != nil {
		t.Errorf("export.yaml not written after ingest: %v", err)
	}
}
