// Package report renders and persists comparison reports.
//
// A report wraps one comparison result with its request context and
// degradation markers. Rendering targets are JSON, HTML, and Markdown (the
// Markdown is converted from the rendered HTML).
package report

import (
	"encoding/json"
	"fmt"
	"html/template"
	"strings"
	"time"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/microcosm-cc/bluemonday"

	"github.com/hazyhaar/maquette/compare"
)

// Report is one persisted comparison outcome.
type Report struct {
	ID                string          `json:"id"`
	CreatedAt         time.Time       `json:"created_at"`
	SourceRef         string          `json:"source_ref"`
	ImplementationURL string          `json:"implementation_url"`
	Result            *compare.Result `json:"result"`

	// Degradations lists non-fatal steps that were skipped or failed
	// (authentication, screenshot). Informational only.
	Degradations []string `json:"degradations,omitempty"`

	// Screenshot is the optional full-page capture, PNG. Omitted from JSON
	// rendering; persisted alongside the report.
	Screenshot []byte `json:"-"`
}

// RenderJSON renders the report as indented JSON.
func RenderJSON(r *Report) ([]byte, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("report: marshal: %w", err)
	}
	return data, nil
}

// RenderMarkdown converts the HTML rendering to Markdown.
func RenderMarkdown(r *Report) (string, error) {
	page, err := RenderHTML(r)
	if err != nil {
		return "", err
	}
	md, err := htmltomarkdown.ConvertString(page)
	if err != nil {
		return "", fmt.Errorf("report: markdown: %w", err)
	}
	return md, nil
}

// sanitizer strips any markup from strings that originate in page content
// (previews, labels) before they reach the HTML template.
var sanitizer = bluemonday.StrictPolicy()

var reportTmpl = template.Must(template.New("report").Funcs(template.FuncMap{
	"clean": func(s string) string { return sanitizer.Sanitize(s) },
	"score": func(f float64) string { return fmt.Sprintf("%.1f%%", f) },
}).Parse(reportHTML))

type categoryView struct {
	Name string
	Cat  compare.Category
}

// RenderHTML renders the report as a standalone HTML page.
func RenderHTML(r *Report) (string, error) {
	if r == nil || r.Result == nil {
		return "", fmt.Errorf("report: nothing to render")
	}
	view := struct {
		*Report
		Categories []categoryView
	}{
		Report: r,
		Categories: []categoryView{
			{"Colors", r.Result.Colors},
			{"Typography", r.Result.Typography},
			{"Spacing", r.Result.Spacing},
			{"Border radius", r.Result.BorderRadius},
			{"Elements", r.Result.Elements},
		},
	}

	var sb strings.Builder
	if err := reportTmpl.Execute(&sb, view); err != nil {
		return "", fmt.Errorf("report: render: %w", err)
	}
	return sb.String(), nil
}

const reportHTML = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>Design comparison {{clean .ID}}</title>
<style>
	body { font-family: system-ui, sans-serif; margin: 2rem; color: #1a1a1a; }
	h1 { font-size: 1.4rem; }
	.aggregate { font-size: 2rem; font-weight: 700; }
	table { border-collapse: collapse; margin: 1rem 0; }
	th, td { border: 1px solid #ddd; padding: 0.4rem 0.8rem; text-align: left; }
	th { background: #f5f5f5; }
	.missing { color: #b00020; }
	.extra { color: #8a6d00; }
	.degraded { color: #666; font-style: italic; }
</style>
</head>
<body>
<h1>Design comparison report</h1>
<p>Source <code>{{clean .SourceRef}}</code> vs <code>{{clean .ImplementationURL}}</code><br>
Generated {{.CreatedAt.Format "2006-01-02 15:04:05 MST"}}</p>
<p class="aggregate">{{score .Result.Aggregate}}</p>
{{range .Degradations}}<p class="degraded">{{clean .}}</p>{{end}}
{{range .Categories}}
<h2>{{.Name}}: {{score .Cat.Similarity}}</h2>
<table>
<tr><th>Matched</th><th>Missing</th><th>Extra</th></tr>
<tr>
<td>{{range .Cat.Matched}}{{clean .Source}} ↔ {{clean .Implementation}}<br>{{end}}</td>
<td class="missing">{{range .Cat.Missing}}{{clean .}}<br>{{end}}</td>
<td class="extra">{{range .Cat.Extra}}{{clean .}}<br>{{end}}</td>
</tr>
</table>
{{range .Cat.Details}}<p>{{clean .}}</p>{{end}}
{{end}}
</body>
</html>
`
