// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package knowledge indexes completed run directories into a SQLite
// database so past reviews stay searchable across runs.
//
// See docs/ARCHITECTURE.md § Knowledge Index.
package knowledge

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/pdiddy/litreview/internal/aggregate"
	"github.com/pdiddy/litreview/internal/analysis"
	"github.com/pdiddy/litreview/internal/synthesis"
	"github.com/pdiddy/litreview/pkg/types"
)

const dbFile = "litreview.db"

// Store manages the run index SQLite database.
type Store struct {
	db         *sql.DB
	indexDir   string
	maxResults int
}

// NewStore opens or creates the run index at cfg.IndexDir/litreview.db,
// creating the schema when absent.
func NewStore(cfg types.KnowledgeIndexConfig) (*Store, error) {
	if err := os.MkdirAll(cfg.IndexDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating index directory: %w", err)
	}

	dbPath := filepath.Join(cfg.IndexDir, dbFile)
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	maxResults := cfg.MaxResults
	if maxResults <= 0 {
		maxResults = 20
	}

	s := &Store{db: db, indexDir: cfg.IndexDir, maxResults: maxResults}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return s, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) createSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			dir TEXT PRIMARY KEY,
			question TEXT NOT NULL,
			created_at TEXT,
			paper_count INTEGER,
			common_themes TEXT,
			research_gaps TEXT,
			suggested_future_work TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS papers (
			rowid INTEGER PRIMARY KEY AUTOINCREMENT,
			run_dir TEXT NOT NULL REFERENCES runs(dir),
			paper_id TEXT NOT NULL,
			title TEXT,
			abstract TEXT,
			authors TEXT,
			relevance_score REAL,
			url TEXT,
			abstract_only INTEGER,
			methodology TEXT,
			findings TEXT,
			future_work TEXT,
			UNIQUE(run_dir, paper_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_papers_run_dir ON papers(run_dir)`,
		`CREATE INDEX IF NOT EXISTS idx_papers_paper_id ON papers(paper_id)`,
		`CREATE TABLE IF NOT EXISTS indexing_status (
			run_dir TEXT PRIMARY KEY,
			manifest_mod_time TEXT
		)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}

	// FTS5 virtual table with triggers for sync.
	var ftsExists int
	if err := s.db.QueryRow(
		`SELECT count(*) FROM sqlite_master WHERE type='table' AND name='papers_fts'`,
	).Scan(&ftsExists); err != nil {
		return fmt.Errorf("checking FTS table: %w", err)
	}

	if ftsExists == 0 {
		ftsStatements := []string{
			`CREATE VIRTUAL TABLE papers_fts USING fts5(
				title, abstract, findings, content=papers, content_rowid=rowid)`,
			`CREATE TRIGGER papers_ai AFTER INSERT ON papers BEGIN
				INSERT INTO papers_fts(rowid, title, abstract, findings)
				VALUES (new.rowid, new.title, new.abstract, new.findings);
			END`,
			`CREATE TRIGGER papers_ad AFTER DELETE ON papers BEGIN
				INSERT INTO papers_fts(papers_fts, rowid, title, abstract, findings)
				VALUES('delete', old.rowid, old.title, old.abstract, old.findings);
			END`,
			`CREATE TRIGGER papers_au AFTER UPDATE ON papers BEGIN
				INSERT INTO papers_fts(papers_fts, rowid, title, abstract, findings)
				VALUES('delete', old.rowid, old.title, old.abstract, old.findings);
				INSERT INTO papers_fts(rowid, title, abstract, findings)
				VALUES (new.rowid, new.title, new.abstract, new.findings);
			END`,
		}
		for _, stmt := range ftsStatements {
			if _, err := s.db.Exec(stmt); err != nil {
				return fmt.Errorf("creating FTS infrastructure: %w", err)
			}
		}
	}

	return nil
}

// IngestSummary holds counts from one indexing pass over the runs
// directory.
type IngestSummary struct {
	Indexed int
	Updated int
	Skipped int
	Failed  int
}

// Total returns the number of run directories processed.
func (s IngestSummary) Total() int {
	return s.Indexed + s.Updated + s.Skipped + s.Failed
}

// Ingest scans runsDir for run directories and indexes each one that
// carries a manifest. Unchanged runs are detected by manifest mod time
// and skipped, so repeated ingestion is cheap.
func (s *Store) Ingest(ctx context.Context, runsDir string, w io.Writer) (IngestSummary, error) {
	entries, err := os.ReadDir(runsDir)
	if err != nil {
		return IngestSummary{}, fmt.Errorf("reading runs directory %s: %w", runsDir, err)
	}

	var summary IngestSummary

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		select {
		case <-ctx.Done():
			return summary, ctx.Err()
		default:
		}

		runDir := filepath.Join(runsDir, entry.Name())
		manifestPath := filepath.Join(runDir, aggregate.ManifestFile)
		info, err := os.Stat(manifestPath)
		if err != nil {
			// Not a run directory.
			continue
		}
		modTime := info.ModTime().UTC().Format(time.RFC3339Nano)

		var storedModTime string
		err = s.db.QueryRowContext(ctx,
			`SELECT manifest_mod_time FROM indexing_status WHERE run_dir = ?`, entry.Name(),
		).Scan(&storedModTime)

		if err == nil && storedModTime == modTime {
			fmt.Fprintf(w, "skipped %s\n", entry.Name())
			summary.Skipped++
			continue
		}
		isUpdate := err == nil

		run, err := loadRun(runDir)
		if err != nil {
			fmt.Fprintf(w, "failed  %s: %v\n", entry.Name(), err)
			summary.Failed++
			continue
		}

		if err := s.ingestRun(ctx, entry.Name(), run, modTime, isUpdate); err != nil {
			fmt.Fprintf(w, "failed  %s: %v\n", entry.Name(), err)
			summary.Failed++
			continue
		}

		if isUpdate {
			fmt.Fprintf(w, "updated %s (%d papers)\n", entry.Name(), len(run.manifest.Papers))
			summary.Updated++
		} else {
			fmt.Fprintf(w, "indexing %s (%d papers)\n", entry.Name(), len(run.manifest.Papers))
			summary.Indexed++
		}
	}

	fmt.Fprintf(w, "\nindexed: %d, updated: %d, skipped: %d, failed: %d\n",
		summary.Indexed, summary.Updated, summary.Skipped, summary.Failed)

	if summary.Indexed > 0 || summary.Updated > 0 {
		if err := s.ExportYAML(ctx, QueryOptions{}); err != nil {
			fmt.Fprintf(w, "warning: export.yaml write failed: %v\n", err)
		}
	}

	return summary, nil
}

// runArtifacts groups the three persisted artifacts of one run. The
// analysis and report are optional; a run interrupted before synthesis
// still indexes its manifest.
type runArtifacts struct {
	manifest types.Manifest
	analyses types.AnalysisSet
	report   *types.FinalReport
}

func loadRun(runDir string) (*runArtifacts, error) {
	manifest, err := aggregate.ReadManifest(runDir)
	if err != nil {
		return nil, err
	}

	run := &runArtifacts{manifest: manifest, analyses: types.AnalysisSet{}}

	if set, err := analysis.ReadAnalysis(filepath.Join(runDir, analysis.AnalysisFile)); err == nil {
		run.analyses = set
	}
	if report, err := synthesis.ReadReport(filepath.Join(runDir, synthesis.ReportFile)); err == nil {
		run.report = &report
	}
	return run, nil
}

func (s *Store) ingestRun(ctx context.Context, runName string, run *runArtifacts, modTime string, isUpdate bool) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if isUpdate {
		if _, err := tx.ExecContext(ctx, `DELETE FROM papers WHERE run_dir = ?`, runName); err != nil {
			return fmt.Errorf("deleting old papers: %w", err)
		}
	}

	createdAt := ""
	if !run.manifest.CreatedAt.IsZero() {
		createdAt = run.manifest.CreatedAt.Format(time.RFC3339)
	}
	var themes, gaps, futureWork string
	if run.report != nil {
		themes = run.report.CommonThemes
		gaps = run.report.ResearchGaps
		futureWork = run.report.SuggestedFutureWork
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO runs (dir, question, created_at, paper_count, common_themes, research_gaps, suggested_future_work)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(dir) DO UPDATE SET
			question=excluded.question, created_at=excluded.created_at,
			paper_count=excluded.paper_count, common_themes=excluded.common_themes,
			research_gaps=excluded.research_gaps,
			suggested_future_work=excluded.suggested_future_work`,
		runName, run.manifest.Question, createdAt, len(run.manifest.Papers),
		themes, gaps, futureWork,
	)
	if err != nil {
		return fmt.Errorf("upserting run: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT OR REPLACE INTO papers
			(run_dir, paper_id, title, abstract, authors, relevance_score, url,
			 abstract_only, methodology, findings, future_work)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()

	for _, p := range run.manifest.Papers {
		authorsJSON, _ := json.Marshal(p.Authors)
		a := run.analyses[p.ID]
		abstractOnly := 0
		if p.AbstractOnly {
			abstractOnly = 1
		}
		_, err := stmt.ExecContext(ctx,
			runName, p.ID, p.Title, p.Abstract, string(authorsJSON),
			p.RelevanceScore, p.URL, abstractOnly,
			a.Methodology, a.Findings, a.FutureWork,
		)
		if err != nil {
			return fmt.Errorf("inserting paper %s: %w", p.ID, err)
		}
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO indexing_status (run_dir, manifest_mod_time) VALUES (?, ?)
		 ON CONFLICT(run_dir) DO UPDATE SET manifest_mod_time=excluded.manifest_mod_time`,
		runName, modTime,
	)
	if err != nil {
		return fmt.Errorf("updating indexing status: %w", err)
	}

	return tx.Commit()
}
