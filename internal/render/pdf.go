package render

import (
	"fmt"

	maroto "github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/line"
	"github.com/johnfercher/maroto/v2/pkg/components/row"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/consts/pagesize"
	"github.com/johnfercher/maroto/v2/pkg/core"
	"github.com/johnfercher/maroto/v2/pkg/props"

	"micdash/pkg/frame"
)

// Maroto lays rows out on a 12 column grid.
const gridColumns = 12

var (
	colorPrimary = &props.Color{Red: 31, Green: 119, Blue: 180}
	colorGray    = &props.Color{Red: 100, Green: 100, Blue: 100}
)

// PDF renders the table as an A4 report. Numbers are printed with three
// decimals, matching the chart tooltips.
func PDF(in Input) ([]byte, error) {
	t := in.table()
	if len(t.Columns) == 0 {
		return nil, &frame.SchemaMismatchError{Reason: "pdf export of a table without columns"}
	}
	if len(t.Columns) > gridColumns {
		return nil, fmt.Errorf("pdf export supports at most %d columns, table has %d", gridColumns, len(t.Columns))
	}

	cfg := config.NewBuilder().
		WithPageSize(pagesize.A4).
		WithLeftMargin(10).WithRightMargin(10).
		WithTopMargin(10).WithBottomMargin(10).
		WithDefaultFont(&props.Font{Family: "helvetica", Size: 8}).
		WithTitle(in.title(), true).
		Build()
	m := maroto.New(cfg)

	widths := columnWidths(len(t.Columns))
	m.AddRows(headerRow(in))
	m.AddRows(line.NewRow(1, props.Line{Color: colorPrimary, Thickness: 0.5}))
	m.AddRows(tableHeaderRow(t.Columns, widths))
	for _, r := range tableRows(t, widths) {
		m.AddRows(r)
	}
	m.AddRows(line.NewRow(1, props.Line{Color: colorGray, Thickness: 0.3}))
	m.AddRows(row.New(6).Add(col.New(gridColumns).Add(
		text.New(fmt.Sprintf("%d rows. Generated %s.", len(t.Rows), in.Result.GeneratedAt.UTC().Format("2006-01-02 15:04 MST")),
			props.Text{Size: 7, Color: colorGray, Top: 1}),
	)))

	doc, err := m.Generate()
	if err != nil {
		return nil, fmt.Errorf("pdf: generate document: %w", err)
	}
	return doc.GetBytes(), nil
}

func headerRow(in Input) core.Row {
	return row.New(16).Add(
		col.New(gridColumns).Add(
			text.New(in.title(), props.Text{
				Style: fontstyle.Bold, Size: 13, Color: colorPrimary, Top: 1,
			}),
			text.New(in.Template.Description, props.Text{
				Size: 8, Top: 9, Color: colorGray,
			}),
		),
	)
}

// columnWidths spreads the grid over n columns, giving the remainder to the
// first (name) column.
func columnWidths(n int) []int {
	widths := make([]int, n)
	for i := range widths {
		widths[i] = gridColumns / n
	}
	widths[0] += gridColumns % n
	return widths
}

func tableHeaderRow(columns []frame.Column, widths []int) core.Row {
	cols := make([]core.Col, len(columns))
	for i, c := range columns {
		label := c.Name
		if c.Unit != "" {
			label += " (" + c.Unit + ")"
		}
		cols[i] = col.New(widths[i]).Add(text.New(label, props.Text{
			Style: fontstyle.Bold, Size: 8, Align: alignFor(c), Color: colorPrimary, Top: 2, Left: 1, Right: 1,
		}))
	}
	return row.New(8).Add(cols...)
}

func tableRows(t frame.Table, widths []int) []core.Row {
	out := make([]core.Row, 0, len(t.Rows))
	for _, r := range t.Rows {
		cols := make([]core.Col, len(t.Columns))
		for i, c := range t.Columns {
			cols[i] = col.New(widths[i]).Add(text.New(frame.FormatFixed(r[c.Name], 3), props.Text{
				Size: 8, Align: alignFor(c), Top: 1, Left: 1, Right: 1,
			}))
		}
		out = append(out, row.New(6).Add(cols...))
	}
	return out
}

func alignFor(c frame.Column) align.Type {
	if c.Type == frame.TypeNumber {
		return align.Right
	}
	return align.Left
}
