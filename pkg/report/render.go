package report

import (
	"bytes"
	"fmt"
	"html/template"
)

var reportTemplate = template.Must(template.New("weekly").Parse(`<!DOCTYPE html>
<html>
<body style="font-family: sans-serif">
<h2>{{.TeamName}}: AI spend for {{.WeekStart}} to {{.WeekEnd}}</h2>
<p><strong>Total:</strong> ${{.Total.StringFixed 2}}
(previous week ${{.PreviousTotal.StringFixed 2}}{{if not .PreviousTotal.IsZero}}, {{.ChangePct}}%{{end}})</p>
{{if .Insights}}<ul>{{range .Insights}}
<li>{{.}}</li>{{end}}
</ul>{{end}}
{{if .Projects}}<h3>Projects</h3>
<table cellpadding="4">
<tr><th align="left">Project</th><th align="right">Cost</th><th align="right">Previous</th><th align="right">Share</th></tr>{{range .Projects}}
<tr><td>{{.Name}}</td><td align="right">${{.Cost.StringFixed 2}}</td><td align="right">${{.Previous.StringFixed 2}}</td><td align="right">{{.SharePct}}%</td></tr>{{end}}
</table>{{end}}
{{if .LineItems}}<h3>Top line items</h3>
<table cellpadding="4">
<tr><th align="left">Line item</th><th align="left">Model</th><th align="right">Cost</th></tr>{{range .LineItems}}
<tr><td>{{.LineItem}}</td><td>{{.Model}}</td><td align="right">${{.Cost.StringFixed 2}}</td></tr>{{end}}
</table>{{end}}
{{if .Unattributed.IsPositive}}<p>Unattributed spend: ${{.Unattributed.StringFixed 2}}</p>{{end}}
</body>
</html>
`))

// Subject returns the email subject line for r.
func Subject(r *Report) string {
	return fmt.Sprintf("[AI Spend Guardian] %s weekly report: $%s (%s to %s)",
		r.TeamName, r.Total.StringFixed(2), r.WeekStart, r.WeekEnd)
}

// RenderHTML renders r as an HTML email body.
func RenderHTML(r *Report) (string, error) {
	var buf bytes.Buffer
	if err := reportTemplate.Execute(&buf, r); err != nil {
		return "", fmt.Errorf("render weekly report: %w", err)
	}
	return buf.String(), nil
}
