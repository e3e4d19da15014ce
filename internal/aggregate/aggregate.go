// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package aggregate deduplicates relevant papers, resolves a fetchable
// full-text location for each, downloads content, and persists the run
// manifest.
//
// See docs/ARCHITECTURE.md § Knowledge Aggregation.
package aggregate

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/pdiddy/litreview/internal/httputil"
	"github.com/pdiddy/litreview/pkg/types"
)

// ManifestFile is the manifest filename within a run directory.
const ManifestFile = "research.json"

// readerAPIBase is the text-extraction service endpoint. Declared as a var
// so tests can substitute an httptest server.
var readerAPIBase = "https://r.jina.ai"

// Aggregator builds the knowledge manifest for one iteration.
type Aggregator struct {
	HTTP *http.Client
	Cfg  types.AggregateConfig
}

// resolved is the per-paper outcome of the concurrent fetch phase.
type resolved struct {
	paper   types.ManifestPaper
	content string
	skipped bool
}

// Run caps and deduplicates the relevant papers, resolves and fetches their
// content concurrently, writes each document plus the manifest into a fresh
// run directory, and emits the knowledge-ready message.
//
// Per-paper failures never abort the run: a paper whose full text cannot be
// fetched is kept with a synthesized abstract-only document, and only a
// paper with no resolvable location at all is skipped (a documented policy,
// reported on w). The manifest is written after every paper has resolved.
func (a *Aggregator) Run(ctx context.Context, in types.RelevantPapers, w io.Writer) (types.KnowledgeReady, error) {
	cfg := a.withDefaults()

	kept := capAndDedup(in.Papers, cfg.MaxPapers)

	now := time.Now()
	dir := filepath.Join(cfg.OutputDir, RunDirName(in.Task.Question, now))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return types.KnowledgeReady{}, fmt.Errorf("creating run directory: %w", err)
	}

	results := make([]resolved, len(kept))
	var mu sync.Mutex // guards w

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.FetchConcurrency)
	for i, paper := range kept {
		i, paper := i, paper
		g.Go(func() error {
			r := a.resolveOne(gctx, paper, func(format string, args ...any) {
				mu.Lock()
				defer mu.Unlock()
				fmt.Fprintf(w, format, args...)
			})
			results[i] = r
			return nil
		})
	}
	// Workers only report per-paper outcomes; they never return errors.
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return types.KnowledgeReady{}, err
	}

	manifest := types.Manifest{
		Question:  in.Task.Question,
		CreatedAt: now,
	}
	for _, r := range results {
		if r.skipped {
			continue
		}
		path := filepath.Join(dir, r.paper.ContentFile)
		if err := os.WriteFile(path, []byte(r.content), 0o644); err != nil {
			// A single unwritable document drops that paper, not the run.
			fmt.Fprintf(w, "warning: writing document for %s failed: %v; skipping\n", r.paper.ID, err)
			continue
		}
		manifest.Papers = append(manifest.Papers, r.paper)
	}

	if err := writeManifest(filepath.Join(dir, ManifestFile), manifest); err != nil {
		return types.KnowledgeReady{}, err
	}
	fmt.Fprintf(w, "aggregated %d of %d papers into %s\n", len(manifest.Papers), len(kept), dir)

	return types.KnowledgeReady{Task: in.Task, Dir: dir, Timestamp: now}, nil
}

// resolveOne probes the full-text candidates for one paper and fetches its
// content, degrading to an abstract-only document when the fetch fails.
func (a *Aggregator) resolveOne(ctx context.Context, paper types.PaperResult, logf func(string, ...any)) resolved {
	fullTextURL := a.resolveFullText(ctx, paper.PageURL)
	if fullTextURL == "" {
		logf("skipping paper %s: no full-text location resolvable\n", paper.ID)
		return resolved{skipped: true}
	}

	content, abstractOnly := a.fetchContent(ctx, paper, fullTextURL, logf)

	authors := paper.Authors
	if len(authors) > 3 {
		authors = authors[:3]
	}

	return resolved{
		paper: types.ManifestPaper{
			ID:             paper.ID,
			Title:          paper.Title,
			Abstract:       paper.Abstract,
			Authors:        authors,
			RelevanceScore: paper.RelevanceScore,
			URL:            paper.PageURL,
			ContentFile:    ContentFileName(paper.ID),
			AbstractOnly:   abstractOnly,
		},
		content: content,
	}
}

// resolveFullText derives candidate full-text URLs by two fixed rewrites of
// the paper's page URL and probes each; the first accepted candidate wins.
func (a *Aggregator) resolveFullText(ctx context.Context, pageURL string) string {
	if pageURL == "" {
		return ""
	}
	candidates := []string{
		strings.Replace(pageURL, "abs", "html", 1),
		strings.Replace(pageURL, "arxiv.org", "ar5iv.org", 1),
	}
	for _, candidate := range candidates {
		if a.probe(ctx, candidate) {
			return candidate
		}
	}
	return ""
}

// acceptedStatus reports whether the probe response indicates an available
// document: 200 or any standard redirect.
func acceptedStatus(code int) bool {
	switch code {
	case http.StatusOK,
		http.StatusMovedPermanently,
		http.StatusFound,
		http.StatusSeeOther,
		http.StatusTemporaryRedirect,
		http.StatusPermanentRedirect:
		return true
	}
	return false
}

func (a *Aggregator) probe(ctx context.Context, url string) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false
	}
	req.Header.Set("User-Agent", a.Cfg.UserAgent)

	resp, err := a.client().Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	return acceptedStatus(resp.StatusCode)
}

// fetchContent retrieves rendered text through the reader service. On any
// failure, or without a credential, it synthesizes a minimal document from
// title and abstract so the paper is never dropped for a fetch failure.
func (a *Aggregator) fetchContent(ctx context.Context, paper types.PaperResult, fullTextURL string, logf func(string, ...any)) (content string, abstractOnly bool) {
	if a.Cfg.ReaderAPIKey == "" {
		logf("no reader credential; using abstract for %s\n", paper.ID)
		return abstractDocument(paper), true
	}

	readerURL := readerAPIBase + "/" + fullTextURL
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, readerURL, nil)
	if err != nil {
		return abstractDocument(paper), true
	}
	req.Header.Set("Authorization", "Bearer "+a.Cfg.ReaderAPIKey)
	req.Header.Set("User-Agent", a.Cfg.UserAgent)

	resp, err := httputil.DoWithRetry(ctx, a.client(), req, a.Cfg.MaxRetries)
	if err != nil {
		logf("warning: reader fetch failed for %s: %v; using abstract\n", paper.ID, err)
		return abstractDocument(paper), true
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		logf("warning: reader returned %d for %s; using abstract\n", resp.StatusCode, paper.ID)
		io.Copy(io.Discard, resp.Body)
		return abstractDocument(paper), true
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil || len(body) == 0 {
		logf("warning: reading reader body for %s failed; using abstract\n", paper.ID)
		return abstractDocument(paper), true
	}
	return string(body), false
}

// abstractDocument is the degraded document: title and abstract only.
func abstractDocument(paper types.PaperResult) string {
	return fmt.Sprintf("# %s\n\n%s\n", paper.Title, paper.Abstract)
}

// capAndDedup keeps the first maxPapers papers in incoming order, removing
// id duplicates with the first occurrence winning. The searcher already
// deduplicates; this second pass is defensive and makes the stage's own
// contract independent of upstream behavior.
func capAndDedup(papers []types.PaperResult, maxPapers int) []types.PaperResult {
	seen := make(map[string]bool)
	var kept []types.PaperResult
	for _, p := range papers {
		if len(kept) >= maxPapers {
			break
		}
		if p.ID == "" || seen[p.ID] {
			continue
		}
		seen[p.ID] = true
		kept = append(kept, p)
	}
	return kept
}

// ContentFileName derives the document filename for a paper id. Old-style
// arXiv ids carry a category prefix with a slash (cs/9901001v1), which must
// not become a path separator inside the run directory.
func ContentFileName(id string) string {
	return strings.ReplaceAll(id, "/", "_") + ".md"
}

// RunDirName names a run directory from the sanitized question and a
// second-granularity timestamp: distinct runs never collide.
func RunDirName(question string, ts time.Time) string {
	return SanitizeQuestion(question) + "_" + ts.Format("20060102_150405")
}

// SanitizeQuestion lowercases the question, keeps only alphanumerics,
// spaces, underscores and hyphens, and joins words with underscores.
func SanitizeQuestion(question string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(question) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == ' ', r == '_', r == '-':
			b.WriteRune(r)
		}
	}
	return strings.Join(strings.Fields(b.String()), "_")
}

func writeManifest(path string, manifest types.Manifest) error {
	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling manifest: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing manifest: %w", err)
	}
	return nil
}

// ReadManifest loads a manifest from a run directory.
func ReadManifest(dir string) (types.Manifest, error) {
	data, err := os.ReadFile(filepath.Join(dir, ManifestFile))
	if err != nil {
		return types.Manifest{}, fmt.Errorf("reading manifest: %w", err)
	}
	var m types.Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return types.Manifest{}, fmt.Errorf("parsing manifest: %w", err)
	}
	return m, nil
}

func (a *Aggregator) client() *http.Client {
	if a.HTTP != nil {
		return a.HTTP
	}
	return http.DefaultClient
}

func (a *Aggregator) withDefaults() types.AggregateConfig {
	cfg := a.Cfg
	if cfg.MaxPapers <= 0 {
		cfg.MaxPapers = 10
	}
	if cfg.OutputDir == "" {
		cfg.OutputDir = "knowledge_bases"
	}
	if cfg.FetchConcurrency <= 0 {
		cfg.FetchConcurrency = 4
	}
	return cfg
}
