// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package knowledge

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// QueryOptions holds parameters for run index queries.
type QueryOptions struct {
	// Query is the FTS5 full-text search string, matched against
	// title, abstract, and findings.
	Query string

	// RunDir filters by run directory name.
	RunDir string

	// PaperID filters by paper.
	PaperID string

	// MinScore keeps only papers at or above this relevance score.
	MinScore float64

	// MaxResults limits result count. Zero uses the store default.
	MaxResults int
}

// IsEmpty reports whether the query has no search terms or filters.
func (q QueryOptions) IsEmpty() bool {
	return q.Query == "" && q.RunDir == "" && q.PaperID == "" && q.MinScore == 0
}

// QueryResult is one indexed paper with its run context.
type QueryResult struct {
	RunDir         string   `json:"run_dir" yaml:"run_dir"`
	Question       string   `json:"question" yaml:"question"`
	PaperID        string   `json:"paper_id" yaml:"paper_id"`
	Title          string   `json:"title" yaml:"title"`
	Abstract       string   `json:"abstract" yaml:"abstract"`
	Authors        []string `json:"authors" yaml:"authors"`
	RelevanceScore float64  `json:"relevance_score" yaml:"relevance_score"`
	URL            string   `json:"url" yaml:"url"`
	AbstractOnly   bool     `json:"abstract_only" yaml:"abstract_only"`
	Methodology    string   `json:"methodology" yaml:"methodology"`
	Findings       string   `json:"findings" yaml:"findings"`
	FutureWork     string   `json:"future_work" yaml:"future_work"`
}

// Retrieve queries the run index with optional full-text search and
// structured filters. Full-text queries are ranked by relevance;
// structured-only queries sort by run, then descending score.
func (s *Store) Retrieve(ctx context.Context, opts QueryOptions) ([]QueryResult, error) {
	maxResults := opts.MaxResults
	if maxResults <= 0 {
		maxResults = s.maxResults
	}

	var (
		qb     strings.Builder
		args   []any
		useFTS = opts.Query != ""
	)

	if useFTS {
		qb.WriteString(
			`SELECT pa.run_dir, r.question, pa.paper_id, pa.title, pa.abstract,
				pa.authors, pa.relevance_score, pa.url, pa.abstract_only,
				pa.methodology, pa.findings, pa.future_work
			FROM papers_fts
			JOIN papers pa ON pa.rowid = papers_fts.rowid
			LEFT JOIN runs r ON pa.run_dir = r.dir
			WHERE papers_fts MATCH ?`)
		args = append(args, opts.Query)
	} else {
		qb.WriteString(
			`SELECT pa.run_dir, r.question, pa.paper_id, pa.title, pa.abstract,
				pa.authors, pa.relevance_score, pa.url, pa.abstract_only,
				pa.methodology, pa.findings, pa.future_work
			FROM papers pa
			LEFT JOIN runs r ON pa.run_dir = r.dir
			WHERE 1=1`)
	}

	if opts.RunDir != "" {
		qb.WriteString(` AND pa.run_dir = ?`)
		args = append(args, opts.RunDir)
	}

	if opts.PaperID != "" {
		qb.WriteString(` AND pa.paper_id = ?`)
		args = append(args, opts.PaperID)
	}

	if opts.MinScore > 0 {
		qb.WriteString(` AND pa.relevance_score >= ?`)
		args = append(args, opts.MinScore)
	}

	if useFTS {
		qb.WriteString(` ORDER BY papers_fts.rank`)
	} else {
		qb.WriteString(` ORDER BY pa.run_dir, pa.relevance_score DESC`)
	}

	qb.WriteString(` LIMIT ?`)
	args = append(args, maxResults)

	rows, err := s.db.QueryContext(ctx, qb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("querying run index: %w", err)
	}
	defer rows.Close()

	var results []QueryResult
	for rows.Next() {
		var (
			qr           QueryResult
			question     sql.NullString
			authorsJSON  sql.NullString
			abstractOnly int
		)

		if err := rows.Scan(
			&qr.RunDir, &question, &qr.PaperID, &qr.Title, &qr.Abstract,
			&authorsJSON, &qr.RelevanceScore, &qr.URL, &abstractOnly,
			&qr.Methodology, &qr.Findings, &qr.FutureWork,
		); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}

		if question.Valid {
			qr.Question = question.String
		}
		if authorsJSON.Valid {
			json.Unmarshal([]byte(authorsJSON.String), &qr.Authors)
		}
		qr.AbstractOnly = abstractOnly != 0

		results = append(results, qr)
	}

	return results, rows.Err()
}

// RunSummary is one indexed run with its synthesis headline fields.
type RunSummary struct {
	Dir                 string    `json:"dir" yaml:"dir"`
	Question            string    `json:"question" yaml:"question"`
	CreatedAt           time.Time `json:"created_at" yaml:"created_at"`
	PaperCount          int       `json:"paper_count" yaml:"paper_count"`
	CommonThemes        string    `json:"common_themes" yaml:"common_themes"`
	ResearchGaps        string    `json:"research_gaps" yaml:"research_gaps"`
	SuggestedFutureWork string    `json:"suggested_future_work" yaml:"suggested_future_work"`
}

// Runs lists all indexed runs, newest first.
func (s *Store) Runs(ctx context.Context) ([]RunSummary, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT dir, question, created_at, paper_count,
			common_themes, research_gaps, suggested_future_work
		FROM runs ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	defer rows.Close()

	var runs []RunSummary
	for rows.Next() {
		var (
			rs        RunSummary
			createdAt sql.NullString
		)
		if err := rows.Scan(
			&rs.Dir, &rs.Question, &createdAt, &rs.PaperCount,
			&rs.CommonThemes, &rs.ResearchGaps, &rs.SuggestedFutureWork,
		); err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}
		if createdAt.Valid && createdAt.String != "" {
			if t, err := time.Parse(time.RFC3339, createdAt.String); err == nil {
				rs.CreatedAt = t
			}
		}
		runs = append(runs, rs)
	}
	return runs, rows.Err()
}
