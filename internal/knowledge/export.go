// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package knowledge

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"go.yaml.in/yaml/v3"
)

// ExportEntry holds one indexed paper with its run context for export.
type ExportEntry struct {
	RunDir         string   `json:"run_dir" yaml:"run_dir"`
	Question       string   `json:"question" yaml:"question"`
	PaperID        string   `json:"paper_id" yaml:"paper_id"`
	Title          string   `json:"title" yaml:"title"`
	Authors        []string `json:"authors" yaml:"authors"`
	RelevanceScore float64  `json:"relevance_score" yaml:"relevance_score"`
	URL            string   `json:"url" yaml:"url"`
	AbstractOnly   bool     `json:"abstract_only" yaml:"abstract_only"`
	Methodology    string   `json:"methodology,omitempty" yaml:"methodology,omitempty"`
	Findings       string   `json:"findings,omitempty" yaml:"findings,omitempty"`
	FutureWork     string   `json:"future_work,omitempty" yaml:"future_work,omitempty"`
}

const exportLimit = 100000

// ExportYAML writes the run index to indexDir/export.yaml. It supports
// the same filters as Retrieve.
func (s *Store) ExportYAML(ctx context.Context, opts QueryOptions) error {
	entries, err := s.exportEntries(ctx, opts)
	if err != nil {
		return err
	}

	path := filepath.Join(s.indexDir, "export.yaml")
	data, err := yaml.Marshal(entries)
	if err != nil {
		return fmt.Errorf("marshaling YAML: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// ExportJSON writes the run index to indexDir/export.json. It supports
// the same filters as Retrieve.
func (s *Store) ExportJSON(ctx context.Context, opts QueryOptions) error {
	entries, err := s.exportEntries(ctx, opts)
	if err != nil {
		return err
	}

	path := filepath.Join(s.indexDir, "export.json")
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling JSON: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

func (s *Store) exportEntries(ctx context.Context, opts QueryOptions) ([]ExportEntry, error) {
	opts.MaxResults = exportLimit
	results, err := s.Retrieve(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("querying for export: %w", err)
	}

	entries := make([]ExportEntry, len(results))
	for i, r := range results {
		entries[i] = ExportEntry{
			RunDir:         r.RunDir,
			Question:       r.Question,
			PaperID:        r.PaperID,
			Title:          r.Title,
			Authors:        r.Authors,
			RelevanceScore: r.RelevanceScore,
			URL:            r.URL,
			AbstractOnly:   r.AbstractOnly,
			Methodology:    r.Methodology,
			Findings:       r.Findings,
			FutureWork:     r.FutureWork,
		}
	}

	return entries, nil
}
