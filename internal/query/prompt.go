// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package query

import (
	"bytes"
	"text/template"

	"github.com/pdiddy/litreview/pkg/types"
)

// freshPromptTmpl asks for three corpus queries for a new question.
var freshPromptTmpl = template.Must(template.New("fresh").Parse(`I need to search for academic papers on arXiv related to the following research question:
"{{.Question}}"

Please create efficient arXiv search parameters to find the most relevant papers.
Generate {{.Target}} different search queries using arXiv search syntax.

Return the response as a valid JSON object with the following structure:
{
    "search_queries": [
        {
            "query": "optimized arXiv query",
            "explanation": "why this query is appropriate"
        }
    ],
    "rationale": "explanation of the overall query strategy"
}
The search_queries array must contain exactly {{.Target}} entries.
`))

// refinedPromptTmpl asks for improved queries after an unsatisfying round.
// The previously seen paper ids steer the model away from repeats.
var refinedPromptTmpl = template.Must(template.New("refined").Parse(`I need to refine a research query based on initial search results.

Original Research Question: "{{.Question}}"

Papers already returned in earlier rounds (avoid recommending these again):
{{range .Seen}}- {{.}}
{{end}}
Please create improved arXiv search parameters to find more relevant papers.
Generate {{.Target}} different search queries using arXiv search syntax.
Include specific keywords, author filters, or category filters if appropriate.

Return the response as a valid JSON object with the following structure:
{
    "search_queries": [
        {
            "query": "optimized arXiv query",
            "explanation": "why this query is appropriate"
        }
    ],
    "rationale": "explanation of the overall query strategy"
}
The search_queries array must contain exactly {{.Target}} entries.
`))

type promptData struct {
	Question string
	Seen     []string
	Target   int
}

// renderPrompt selects the fresh or refinement template based on the task's
// iteration counter.
func renderPrompt(task types.ResearchTask) (string, error) {
	data := promptData{
		Question: task.Question,
		Seen:     task.SeenPaperIDs,
		Target:   targetQueries,
	}

	tmpl := freshPromptTmpl
	if task.Iteration > 0 {
		tmpl = refinedPromptTmpl
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
