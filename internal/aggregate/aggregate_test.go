package aggregate

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/litreview/pkg/types"
)

// fakeCorpus serves abstract pages, HTML full texts, and the reader API from
// one httptest server. Papers listed in htmlAvailable get a working
// /html/<id> page; everything else 404s.
type fakeCorpus struct {
	srv           *httptest.Server
	htmlAvailable map[string]bool
	readerFails   map[string]bool
	readerCalls   int
}

func newFakeCorpus(t *testing.T) *fakeCorpus {
	t.Helper()
	fc := &fakeCorpus{
		htmlAvailable: make(map[string]bool),
		readerFails:   make(map[string]bool),
	}
	fc.srv = httptest.NewServer(http.HandlerFunc(fc.handle))
	t.Cleanup(fc.srv.Close)

	oldReader := readerAPIBase
	readerAPIBase = fc.srv.URL + "/reader"
	t.Cleanup(func() { readerAPIBase = oldReader })
	return fc
}

func (fc *fakeCorpus) handle(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path

	// Reader API: /reader/<urlencoded target>. The target embeds the paper
	// id as its last path element.
	if strings.HasPrefix(path, "/reader/") {
		fc.readerCalls++
		id := path[strings.LastIndex(path, "/")+1:]
		if fc.readerFails[id] {
			http.Error(w, "render failed", http.StatusBadGateway)
			return
		}
		io.WriteString(w, "full text of "+id)
		return
	}

	if strings.HasPrefix(path, "/html/") {
		id := strings.TrimPrefix(path, "/html/")
		if fc.htmlAvailable[id] {
			io.WriteString(w, "<html>paper</html>")
			return
		}
		http.NotFound(w, r)
		return
	}

	http.NotFound(w, r)
}

// pageURL returns an abs-style page URL pointing at the fake corpus, so the
// abs-to-html rewrite lands on /html/<id>.
func (fc *fakeCorpus) pageURL(id string) string {
	return fc.srv.URL + "/abs/" + id
}

func testAggregator(fc *fakeCorpus, key string) *Aggregator {
	return &Aggregator{
		HTTP: fc.srv.Client(),
		Cfg: types.AggregateConfig{
			HTTPConfig:       types.HTTPConfig{Timeout: 5 * time.Second, UserAgent: "test/0.1"},
			MaxPapers:        10,
			OutputDir:        "",
			ReaderAPIKey:     key,
			FetchConcurrency: 2,
		},
	}
}

func relevantInput(t *testing.T, fc *fakeCorpus, ids ...string) types.RelevantPapers {
	t.Helper()
	in := types.RelevantPapers{
		Task:      types.NewResearchTask("What are the latest advances in quantum ML?"),
		Timestamp: time.Now(),
	}
	for _, id := range ids {
		in.Papers = append(in.Papers, types.PaperResult{
			ID:             id,
			Title:          "Title " + id,
			Abstract:       "Abstract " + id,
			Authors:        []string{"A One", "B Two", "C Three", "D Four"},
			PageURL:        fc.pageURL(id),
			RelevanceScore: 8,
		})
	}
	return in
}

func TestRunFetchesAndPersistsManifest(t *testing.T) {
	fc := newFakeCorpus(t)
	fc.htmlAvailable["2301.00001v1"] = true
	fc.htmlAvailable["2302.00002v1"] = true

	agg := testAggregator(fc, "secret")
	agg.Cfg.OutputDir = t.TempDir()

	in := relevantInput(t, fc, "2301.00001v1", "2302.00002v1")
	out, err := agg.Run(context.Background(), in, io.Discard)
	require.NoError(t, err)

	manifest, err := ReadManifest(out.Dir)
	require.NoError(t, err)
	assert.Equal(t, in.Task.Question, manifest.Question)
	require.Len(t, manifest.Papers, 2)

	for _, p := range manifest.Papers {
		assert.False(t, p.AbstractOnly)
		assert.Len(t, p.Authors, 3, "authors trimmed to three")

		content, err := os.ReadFile(filepath.Join(out.Dir, p.ContentFile))
		require.NoError(t, err)
		assert.Equal(t, "full text of "+p.ID, string(content))
	}
}

func TestRunAbstractOnlyOnFetchFailure(t *testing.T) {
	fc := newFakeCorpus(t)
	fc.htmlAvailable["2301.00001v1"] = true
	fc.readerFails["2301.00001v1"] = true

	agg := testAggregator(fc, "secret")
	agg.Cfg.OutputDir = t.TempDir()

	out, err := agg.Run(context.Background(), relevantInput(t, fc, "2301.00001v1"), io.Discard)
	require.NoError(t, err)

	manifest, err := ReadManifest(out.Dir)
	require.NoError(t, err)
	require.Len(t, manifest.Papers, 1, "paper with resolved URL is kept despite fetch failure")
	assert.True(t, manifest.Papers[0].AbstractOnly)

	content, err := os.ReadFile(filepath.Join(out.Dir, manifest.Papers[0].ContentFile))
	require.NoError(t, err)
	assert.Contains(t, string(content), "Title 2301.00001v1")
	assert.Contains(t, string(content), "Abstract 2301.00001v1")
}

func TestRunSkipsUnresolvablePaper(t *testing.T) {
	fc := newFakeCorpus(t)
	fc.htmlAvailable["2301.00001v1"] = true
	// 2399.99999v1 has no HTML variant anywhere: both rewrites 404.

	agg := testAggregator(fc, "secret")
	agg.Cfg.OutputDir = t.TempDir()

	out, err := agg.Run(context.Background(), relevantInput(t, fc, "2399.99999v1", "2301.00001v1"), io.Discard)
	require.NoError(t, err)

	manifest, err := ReadManifest(out.Dir)
	require.NoError(t, err)
	require.Len(t, manifest.Papers, 1)
	assert.Equal(t, "2301.00001v1", manifest.Papers[0].ID)
}

func TestRunWithoutReaderCredential(t *testing.T) {
	fc := newFakeCorpus(t)
	fc.htmlAvailable["2301.00001v1"] = true

	agg := testAggregator(fc, "")
	agg.Cfg.OutputDir = t.TempDir()

	out, err := agg.Run(context.Background(), relevantInput(t, fc, "2301.00001v1"), io.Discard)
	require.NoError(t, err)

	manifest, err := ReadManifest(out.Dir)
	require.NoError(t, err)
	require.Len(t, manifest.Papers, 1)
	assert.True(t, manifest.Papers[0].AbstractOnly)
	assert.Equal(t, 0, fc.readerCalls, "missing credential must not reach the reader")
}

func TestRunOldStyleIDWritesFlatDocument(t *testing.T) {
	fc := newFakeCorpus(t)
	fc.htmlAvailable["cs/9901001v1"] = true

	agg := testAggregator(fc, "secret")
	agg.Cfg.OutputDir = t.TempDir()

	out, err := agg.Run(context.Background(), relevantInput(t, fc, "cs/9901001v1"), io.Discard)
	require.NoError(t, err, "a category-prefixed id must not abort the run")

	manifest, err := ReadManifest(out.Dir)
	require.NoError(t, err)
	require.Len(t, manifest.Papers, 1)
	assert.Equal(t, "cs_9901001v1.md", manifest.Papers[0].ContentFile)

	_, err = os.Stat(filepath.Join(out.Dir, manifest.Papers[0].ContentFile))
	assert.NoError(t, err, "document lands directly in the run directory")
}

func TestRunDocumentWriteFailureDropsOnlyThatPaper(t *testing.T) {
	fc := newFakeCorpus(t)
	// Longer than NAME_MAX, so the document write fails with ENAMETOOLONG.
	longID := strings.Repeat("9", 300)
	fc.htmlAvailable[longID] = true
	fc.htmlAvailable["2301.00001v1"] = true

	agg := testAggregator(fc, "secret")
	agg.Cfg.OutputDir = t.TempDir()

	out, err := agg.Run(context.Background(), relevantInput(t, fc, longID, "2301.00001v1"), io.Discard)
	require.NoError(t, err, "an unwritable document must not abort the run")

	manifest, err := ReadManifest(out.Dir)
	require.NoError(t, err)
	require.Len(t, manifest.Papers, 1)
	assert.Equal(t, "2301.00001v1", manifest.Papers[0].ID)
}

func TestRunDeduplicationIsStable(t *testing.T) {
	fc := newFakeCorpus(t)
	for _, id := range []string{"2301.00001v1", "2302.00002v1", "2303.00003v1"} {
		fc.htmlAvailable[id] = true
	}

	in := relevantInput(t, fc,
		"2301.00001v1", "2302.00002v1", "2301.00001v1", "2303.00003v1", "2302.00002v1")

	var orders [][]string
	for i := 0; i < 2; i++ {
		agg := testAggregator(fc, "secret")
		agg.Cfg.OutputDir = t.TempDir()

		out, err := agg.Run(context.Background(), in, io.Discard)
		require.NoError(t, err)

		manifest, err := ReadManifest(out.Dir)
		require.NoError(t, err)
		orders = append(orders, manifest.PaperIDs())
	}

	want := []string{"2301.00001v1", "2302.00002v1", "2303.00003v1"}
	assert.Equal(t, want, orders[0], "first occurrence wins, incoming order preserved")
	assert.Equal(t, orders[0], orders[1], "two runs on the same input keep the same ordering")
}

func TestRunCapsToMaxPapers(t *testing.T) {
	fc := newFakeCorpus(t)
	ids := []string{"2301.00001v1", "2302.00002v1", "2303.00003v1"}
	for _, id := range ids {
		fc.htmlAvailable[id] = true
	}

	agg := testAggregator(fc, "secret")
	agg.Cfg.OutputDir = t.TempDir()
	agg.Cfg.MaxPapers = 2

	out, err := agg.Run(context.Background(), relevantInput(t, fc, ids...), io.Discard)
	require.NoError(t, err)

	manifest, err := ReadManifest(out.Dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"2301.00001v1", "2302.00002v1"}, manifest.PaperIDs())
}

func TestSanitizeQuestion(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"What are the latest advances?", "what_are_the_latest_advances"},
		{"GANs: theory & practice!", "gans_theory_practice"},
		{"  spaced   out  ", "spaced_out"},
		{"snake_case-kept", "snake_case-kept"},
	}
	for _, tt := range tests {
		if got := SanitizeQuestion(tt.in); got != tt.want {
			t.Errorf("SanitizeQuestion(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestRunDirNameIsDeterministic(t *testing.T) {
	ts := time.Date(2026, 3, 14, 15, 9, 26, 0, time.UTC)
	got := RunDirName("Quantum ML?", ts)
	assert.Equal(t, "quantum_ml_20260314_150926", got)
}
