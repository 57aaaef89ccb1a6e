package export

import (
	"bytes"
	"html/template"
	"strings"
)

var summaryTemplate = template.Must(template.New("summary").Funcs(template.FuncMap{
	"lower": strings.ToLower,
}).Parse(summaryTemplateHTML))

// TemplateData holds data for summary template rendering
type TemplateData struct {
	Title         string
	LeadID        string
	Name          string
	Phone         string
	Email         string
	Status        string
	Version       string
	Facts         []TemplateFact
	EventsSummary []string
	RiskScore     string
	Confidence    string
	ActionLabel   string
	ActionChannel string
	ActionDue     string
	ActionScript  []string
	MissingFields []string
	OpenQuestions []string
}

type TemplateFact struct {
	Key   string
	Value string
}

// RenderSummaryHTML renders the lead summary template with provided data
func RenderSummaryHTML(data TemplateData) (string, error) {
	var buf bytes.Buffer
	if err := summaryTemplate.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

const summaryTemplateHTML = `<!DOCTYPE html>
<html>
<head>
  <meta charset="UTF-8">
  <title>{{.Title}}</title>
  <style>
    body { font-family: Arial, sans-serif; line-height: 1.6; max-width: 800px; margin: 2rem auto; color: #222; }
    h1 { border-bottom: 2px solid #0066cc; padding-bottom: 0.5rem; }
    h2 { margin-top: 1.5rem; }
    .meta { color: #666; font-size: 0.9em; margin-bottom: 2rem; }
    table { border-collapse: collapse; width: 100%; }
    td, th { border: 1px solid #ddd; padding: 6px 10px; text-align: left; }
    th { background: #f5f8fb; }
    .scores { display: flex; gap: 2rem; margin: 1rem 0; }
    .action { background: #f5f8fb; padding: 1rem; margin: 1rem 0; border-left: 3px solid #0066cc; }
    .list li { margin-bottom: 0.25rem; }
  </style>
</head>
<body>
  <h1>{{.Title}}</h1>
  <div class="meta">Lead {{.LeadID}} | status {{.Status}} | schema v{{.Version}}</div>

  {{if .Name}}
  <h2>Contact</h2>
  <table>
    <tr><th>Name</th><td>{{.Name}}</td></tr>
    {{if .Phone}}<tr><th>Phone</th><td>{{.Phone}}</td></tr>{{end}}
    {{if .Email}}<tr><th>Email</th><td>{{.Email}}</td></tr>{{end}}
  </table>
  {{end}}

  {{if .Facts}}
  <h2>Facts</h2>
  <table>
    {{range .Facts}}<tr><th>{{.Key}}</th><td>{{.Value}}</td></tr>{{end}}
  </table>
  {{end}}

  {{if or .RiskScore .Confidence}}
  <div class="scores">
    {{if .RiskScore}}<div><strong>Risk:</strong> {{.RiskScore}}</div>{{end}}
    {{if .Confidence}}<div><strong>Confidence:</strong> {{.Confidence}}</div>{{end}}
  </div>
  {{end}}

  {{if .EventsSummary}}
  <h2>What happened</h2>
  <ul class="list">
    {{range .EventsSummary}}<li>{{.}}</li>{{end}}
  </ul>
  {{end}}

  {{if .ActionLabel}}
  <div class="action">
    <strong>Next action:</strong> {{.ActionLabel}}
    {{if .ActionChannel}} via {{.ActionChannel}}{{end}}
    {{if .ActionDue}} ({{.ActionDue}}){{end}}
    {{if .ActionScript}}
    <ul class="list">
      {{range .ActionScript}}<li>{{.}}</li>{{end}}
    </ul>
    {{end}}
  </div>
  {{end}}

  {{if .OpenQuestions}}
  <h2>Open questions</h2>
  <ul class="list">
    {{range .OpenQuestions}}<li>{{.}}</li>{{end}}
  </ul>
  {{end}}

  {{if .MissingFields}}
  <h2>Missing information</h2>
  <ul class="list">
    {{range .MissingFields}}<li>{{.}}</li>{{end}}
  </ul>
  {{end}}
</body>
</html>`
