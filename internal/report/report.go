// Package report renders a stored assessment as a printable HTML document or PDF.
package report

import (
	"bytes"
	"fmt"
	"html/template"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/jonathan/pain-assessment/internal/db"
	"github.com/jonathan/pain-assessment/internal/recovery"
	"github.com/jonathan/pain-assessment/internal/redflags"
	"github.com/jonathan/pain-assessment/internal/summary"
	"github.com/jonathan/pain-assessment/internal/types"
)

var funcs = template.FuncMap{
	"join": func(qs []types.PainQuality) string {
		parts := make([]string, len(qs))
		for i, q := range qs {
			parts[i] = strings.ReplaceAll(string(q), "_", " ")
		}
		return strings.Join(parts, ", ")
	},
	"date": func(t time.Time) string {
		if t.IsZero() {
			return ""
		}
		return t.UTC().Format("2006-01-02 15:04 MST")
	},
	"num": formatNum,
}

// formatNum rounds to one decimal and drops a trailing ".0".
func formatNum(v float64) string {
	return strconv.FormatFloat(math.Round(v*10)/10, 'f', -1, 64)
}

var reportTemplate = template.Must(template.New("report").Funcs(funcs).Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>Pain Assessment - {{.FullName}}</title>
<style>
body { font-family: Helvetica, Arial, sans-serif; margin: 32px; color: #111827; }
table { border-collapse: collapse; width: 100%; margin-bottom: 16px; }
th, td { border: 1px solid #d1d5db; padding: 6px 8px; text-align: left; }
.badge { display: inline-block; padding: 4px 10px; border-radius: 4px; color: #fff; }
.urgency-HIGH { background: #dc2626; }
.urgency-MODERATE { background: #d97706; }
.urgency-LOW { background: #16a34a; }
.guidance { border-left: 4px solid #9ca3af; padding-left: 12px; }
</style>
</head>
<body>
<h1>Pain Assessment Report</h1>
<p><strong>Patient:</strong> {{.FullName}} ({{.Email}}){{if .Phone}}, {{.Phone}}{{end}}</p>
{{if .DateOfBirth}}<p><strong>Date of birth:</strong> {{.DateOfBirth}}</p>{{end}}
<p><strong>Assessment ID:</strong> {{.ID}}<br><strong>Submitted:</strong> {{date .CreatedAt}}</p>
<p><span class="badge urgency-{{.Tier}}">{{.Tier}} URGENCY</span></p>
<div class="guidance"><strong>{{.Guidance.Title}}</strong><p>{{.Guidance.Message}}</p></div>

<h2>Pain Areas</h2>
{{if .PainAreas}}<table>
<tr><th>Region</th><th>Intensity</th><th>Quality</th><th>Notes</th></tr>
{{range .PainAreas}}<tr><td>{{.Region}}</td><td>{{.Intensity}}/10</td><td>{{join .Qualities}}</td><td>{{.Notes}}</td></tr>
{{end}}</table>{{else}}<p>No pain areas marked</p>{{end}}

<h2>Red Flags</h2>
<table>
{{range .Flags}}<tr><td>{{.Label}}</td><td>{{if .Present}}Yes{{else}}No{{end}}</td></tr>
{{end}}</table>
{{if .RedFlags.Notes}}<p><strong>Notes:</strong> {{.RedFlags.Notes}}</p>{{end}}

<h2>Treatment Goals</h2>
<p>{{if .TreatmentGoals}}{{.TreatmentGoals}}{{else}}Not specified by patient{{end}}</p>

{{with .Recovery}}<h2>Recovery Outlook</h2>
<p><strong>{{.Benchmark.Name}}</strong>: {{.Benchmark.Description}}</p>
<p>Typical window: {{.Benchmark.MinWeeks}}-{{.Benchmark.MaxWeeks}} weeks. Current pain {{.CurrentPain}}/10, recovery target {{num .TargetPain}}/10.</p>
<p>Expected pain at {{num .GoalWeeks}} weeks: {{num .ExpectedPain}}/10, {{if .OnTrack}}on track for the target{{else}}above the target{{end}}.</p>
{{end}}
<h2>Summary</h2>
{{if .Summary}}{{.Summary}}{{else}}<p>No summary available.</p>{{end}}
</body>
</html>
`))

type view struct {
	*db.Assessment
	Tier     string
	Guidance redflags.Guidance
	Flags    []types.RedFlagLabel
	Summary  template.HTML
	Recovery *recovery.Projection
}

// projection estimates the recovery course, or returns nil when no pain was mapped.
func projection(a *db.Assessment) *recovery.Projection {
	in := recovery.FromAreas(a.PainAreas)
	if a.Detail != nil && len(a.Detail.Points) > 0 {
		in = recovery.FromData(*a.Detail)
	}
	if len(in.Areas) == 0 {
		return nil
	}
	p := recovery.Project(in)
	return &p
}

// RenderHTML renders a stored assessment as a standalone HTML document.
func RenderHTML(a *db.Assessment) ([]byte, error) {
	if a == nil {
		return nil, fmt.Errorf("assessment is required")
	}
	tier := a.Urgency.Tier()
	if tier == "" {
		tier = types.UrgencyLow.Tier()
	}
	// Sanitized again so rows written before the current policy render safely.
	safe := template.HTML(summary.Sanitize(a.AISummary))
	v := view{
		Assessment: a,
		Tier:       tier,
		Guidance:   redflags.GuidanceFor(a.Urgency),
		Flags:      a.RedFlags.Labeled(),
		Summary:    safe,
		Recovery:   projection(a),
	}

	var buf bytes.Buffer
	if err := reportTemplate.Execute(&buf, v); err != nil {
		return nil, fmt.Errorf("failed to render report: %w", err)
	}
	return buf.Bytes(), nil
}
