// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package relevance

import (
	"bytes"
	"encoding/json"
	"text/template"

	"github.com/pdiddy/litreview/pkg/types"
)

// scoringPromptTmpl asks the model for a 0-10 score per paper plus an
// overall refinement signal.
var scoringPromptTmpl = template.Must(template.New("scoring").Parse(`Evaluate the relevance of these research papers to the following question:

Research Question: "{{.Question}}"

Papers:
{{.Papers}}

For each paper, assess its relevance on a scale of 0-10.
Then return a valid JSON with this structure:
{
    "papers": [
        {
            "id": "paper_id",
            "relevance_score": 8.5,
            "rationale": "Brief explanation of relevance"
        }
    ],
    "should_refine_query": true,
    "refinement_suggestion": "Suggested way to refine the query if needed"
}
Set should_refine_query to false when the results cover the question well.
`))

// promptPaper is the trimmed per-paper view sent to the model.
type promptPaper struct {
	ID       string   `json:"id"`
	Title    string   `json:"title"`
	Abstract string   `json:"abstract"`
	Authors  []string `json:"authors"`
}

// renderPrompt serializes the sampled papers (authors trimmed to three) into
// the scoring prompt.
func renderPrompt(question string, sampled []types.PaperResult) (string, error) {
	papers := make([]promptPaper, 0, len(sampled))
	for _, p := range sampled {
		authors := p.Authors
		if len(authors) > 3 {
			authors = authors[:3]
		}
		papers = append(papers, promptPaper{
			ID:       p.ID,
			Title:    p.Title,
			Abstract: p.Abstract,
			Authors:  authors,
		})
	}

	encoded, err := json.MarshalIndent(papers, "", "  ")
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	err = scoringPromptTmpl.Execute(&buf, struct {
		Question string
		Papers   string
	}{Question: question, Papers: string(encoded)})
	if err != nil {
		return "", err
	}
	return buf.String(), nil
}
