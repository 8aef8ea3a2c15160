package dashboard

import (
	"bytes"
	"encoding/json"
	"fmt"
	"html/template"
	"io"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"micdash/internal/chart"
	"micdash/pkg/frame"
)

// Script sources for the in-browser Vega-Lite renderer.
const (
	vegaURL      = "https://cdn.jsdelivr.net/npm/vega@5"
	vegaLiteURL  = "https://cdn.jsdelivr.net/npm/vega-lite@5"
	vegaEmbedURL = "https://cdn.jsdelivr.net/npm/vega-embed@6"
)

var pageTemplate = template.Must(template.New("page").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>{{.Title}}</title>
<script src="{{.VegaURL}}"></script>
<script src="{{.VegaLiteURL}}"></script>
<script src="{{.VegaEmbedURL}}"></script>
<style>
body { font-family: sans-serif; max-width: 960px; margin: 2rem auto; padding: 0 1rem; color: #262730; }
.chart { width: 100%; margin: 1rem 0; }
table { border-collapse: collapse; font-size: 0.9rem; }
th, td { border: 1px solid #ddd; padding: 0.25rem 0.5rem; text-align: left; }
td.num { text-align: right; }
.caption { color: #808495; font-size: 0.8rem; }
</style>
</head>
<body>
<h1>{{.Title}}</h1>
{{range .Blocks}}
{{- if eq .Kind "markdown"}}<div class="markdown">{{.HTML}}</div>
{{else if eq .Kind "separator"}}<hr>
{{else if eq .Kind "subheader"}}<h3>{{.Text}}</h3>
{{else if eq .Kind "chart"}}<div class="chart" id="{{.ChartID}}"></div>
<script>vegaEmbed({{.Selector}}, {{.Spec}}, {actions: false});</script>
{{else if eq .Kind "table"}}<table>
<thead><tr>{{range .Table.Headers}}<th>{{.}}</th>{{end}}</tr></thead>
<tbody>{{range .Table.Rows}}<tr>{{range .}}<td{{if .Numeric}} class="num"{{end}}>{{.Text}}</td>{{end}}</tr>{{end}}</tbody>
</table>
<p class="caption">Showing {{.Table.Shown}} of {{.Table.Total}} rows</p>
{{end}}
{{- end}}
</body>
</html>
`))

type htmlPage struct {
	Title        string
	VegaURL      string
	VegaLiteURL  string
	VegaEmbedURL string
	Blocks       []htmlBlock
}

type htmlBlock struct {
	Kind     BlockKind
	Text     string
	HTML     template.HTML
	ChartID  string
	Selector string
	Spec     template.JS
	Table    tableView
}

type tableView struct {
	Headers []string
	Rows    [][]tableCell
	Shown   int
	Total   int
}

type tableCell struct {
	Text    string
	Numeric bool
}

var markdown = goldmark.New(goldmark.WithExtensions(extension.GFM))

// RenderHTML writes the dashboard as a standalone HTML page. Charts are
// compiled against data; any compile error aborts before anything is written.
func RenderHTML(w io.Writer, l Layout, data frame.Table) error {
	page := htmlPage{
		Title:        l.Title,
		VegaURL:      vegaURL,
		VegaLiteURL:  vegaLiteURL,
		VegaEmbedURL: vegaEmbedURL,
	}
	for _, b := range l.Blocks {
		hb := htmlBlock{Kind: b.Kind, Text: b.Text}
		switch b.Kind {
		case BlockMarkdown:
			var buf bytes.Buffer
			if err := markdown.Convert([]byte(b.Text), &buf); err != nil {
				return fmt.Errorf("convert markdown: %w", err)
			}
			hb.HTML = template.HTML(buf.String())
		case BlockChart:
			spec, _ := l.Chart(b.Chart)
			doc, err := chart.Compile(spec, data)
			if err != nil {
				return err
			}
			raw, err := json.Marshal(doc)
			if err != nil {
				return fmt.Errorf("encode chart %q: %w", spec.ID, err)
			}
			hb.ChartID = "chart-" + spec.ID
			hb.Selector = "#" + hb.ChartID
			hb.Spec = template.JS(raw)
		case BlockTable:
			hb.Table = previewTable(data, b.Limit)
		}
		page.Blocks = append(page.Blocks, hb)
	}

	var buf bytes.Buffer
	if err := pageTemplate.Execute(&buf, page); err != nil {
		return fmt.Errorf("render page: %w", err)
	}
	_, err := w.Write(buf.Bytes())
	return err
}

func previewTable(data frame.Table, limit int) tableView {
	view := tableView{Headers: data.ColumnNames(), Total: data.Len()}
	rows := data.Rows
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}
	view.Shown = len(rows)
	for _, row := range rows {
		cells := make([]tableCell, len(data.Columns))
		for i, c := range data.Columns {
			cells[i] = tableCell{
				Text:    frame.FormatFixed(row[c.Name], 3),
				Numeric: c.Type == frame.TypeNumber,
			}
		}
		view.Rows = append(view.Rows, cells)
	}
	return view
}
