package render

import (
	"bytes"
	"fmt"
	"html/template"

	"micdash/internal/chart"
	"micdash/pkg/frame"
)

var tablePage = template.Must(template.New("table").Parse(`<!DOCTYPE html>
<html><head><meta charset="utf-8"><title>{{.Title}}</title>
{{- if .Spec}}
<script src="https://cdn.jsdelivr.net/npm/vega@5"></script>
<script src="https://cdn.jsdelivr.net/npm/vega-lite@5"></script>
<script src="https://cdn.jsdelivr.net/npm/vega-embed@6"></script>
{{- end}}
</head><body>
<h1>{{.Title}}</h1>
{{- if .Description}}<p>{{.Description}}</p>{{end}}
{{- if .Spec}}
<div id="chart" style="width:100%"></div>
<script>vegaEmbed("#chart", {{.Spec}}, {actions: false});</script>
{{- end}}
<table>
<thead><tr>{{range .Columns}}<th>{{.Name}}{{if .Unit}} ({{.Unit}}){{end}}</th>{{end}}</tr></thead>
<tbody>
{{- range .Rows}}
<tr>{{range .}}<td>{{.}}</td>{{end}}</tr>
{{- end}}
</tbody></table>
<p>Generated {{.GeneratedAt}}</p>
</body></html>
`))

type tableData struct {
	Title       string
	Description string
	Spec        template.JS
	Columns     []frame.Column
	Rows        [][]string
	GeneratedAt string
}

// HTML renders the table as a standalone page, with the chart above it when
// the input carries one.
func HTML(in Input) ([]byte, error) {
	t := in.table()
	data := tableData{
		Title:       in.title(),
		Description: in.Template.Description,
		Columns:     t.Columns,
		GeneratedAt: in.Result.GeneratedAt.UTC().Format("2006-01-02 15:04:05 MST"),
	}
	if in.Chart != nil {
		raw, err := chart.CompileJSON(*in.Chart, t)
		if err != nil {
			return nil, err
		}
		data.Spec = template.JS(raw)
	}
	for _, row := range t.Rows {
		cells := make([]string, len(t.Columns))
		for i, c := range t.Columns {
			cells[i] = frame.FormatCell(row[c.Name])
		}
		data.Rows = append(data.Rows, cells)
	}
	var buf bytes.Buffer
	if err := tablePage.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("render html: %w", err)
	}
	return buf.Bytes(), nil
}
