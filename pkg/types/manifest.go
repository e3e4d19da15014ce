// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "time"

// ManifestPaper is one kept paper in a manifest, enriched with its resolved
// content location.
type ManifestPaper struct {
	ID    string `json:"id" yaml:"id"`
	Title string `json:"title" yaml:"title"`

	// Abstract is carried so abstract-only entries remain useful downstream.
	Abstract string `json:"abstract" yaml:"abstract"`

	// Authors is trimmed to at most three names.
	Authors []string `json:"authors" yaml:"authors"`

	RelevanceScore float64 `json:"relevance_score" yaml:"relevance_score"`

	// URL is the paper's source page.
	URL string `json:"url" yaml:"url"`

	// ContentFile is the name of the persisted document within the run
	// directory (e.g. "2301.07041.md").
	ContentFile string `json:"content_file" yaml:"content_file"`

	// AbstractOnly is set when full-text retrieval failed and the document
	// was synthesized from title and abstract.
	AbstractOnly bool `json:"abstract_only,omitempty" yaml:"abstract_only,omitempty"`
}

// Manifest is the persisted record of which papers were kept for one
// iteration that reached aggregation. Written exactly once per run
// directory, after every paper has been resolved or skipped.
type Manifest struct {
	Question  string          `json:"research_question" yaml:"research_question"`
	Papers    []ManifestPaper `json:"papers" yaml:"papers"`
	CreatedAt time.Time       `json:"created_at" yaml:"created_at"`
}

// PaperIDs returns the ids of the kept papers in manifest order.
func (m Manifest) PaperIDs() []string {
	ids := make([]string, 0, len(m.Papers))
	for _, p := range m.Papers {
		ids = append(ids, p.ID)
	}
	return ids
}
