package dashboard

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"micdash/pkg/frame"
)

// TerminalOptions controls the text rendition.
type TerminalOptions struct {
	// Width wraps markdown; zero means 80 columns.
	Width int
	// Style is a glamour standard style name ("auto", "dark", "light", "notty").
	Style string
}

var (
	titleStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#ff7f0e")).MarginBottom(1)
	subheaderStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#1f77b4"))
	captionStyle   = lipgloss.NewStyle().Faint(true).Italic(true)
	headerStyle    = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle      = lipgloss.NewStyle().Padding(0, 1)
)

// RenderTerminal writes the dashboard for a terminal. Charts cannot be drawn,
// so each chart block becomes a table of the box statistics of its first
// layer: min, quartiles and max per category and colour group.
func RenderTerminal(w io.Writer, l Layout, data frame.Table, opts TerminalOptions) error {
	width := opts.Width
	if width <= 0 {
		width = 80
	}
	style := opts.Style
	if style == "" {
		style = "auto"
	}
	md, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle(style),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return fmt.Errorf("markdown renderer: %w", err)
	}

	var sb strings.Builder
	sb.WriteString(titleStyle.Render(l.Title))
	sb.WriteString("\n")
	for _, b := range l.Blocks {
		switch b.Kind {
		case BlockMarkdown:
			out, err := md.Render(b.Text)
			if err != nil {
				return fmt.Errorf("render markdown: %w", err)
			}
			sb.WriteString(out)
		case BlockSeparator:
			sb.WriteString(strings.Repeat("─", width))
			sb.WriteString("\n\n")
		case BlockSubheader:
			sb.WriteString(subheaderStyle.Render(b.Text))
			sb.WriteString("\n\n")
		case BlockChart:
			out, err := chartSummary(l, b.Chart, data)
			if err != nil {
				return err
			}
			sb.WriteString(out)
			sb.WriteString("\n\n")
		case BlockTable:
			sb.WriteString(previewText(data, b.Limit))
			sb.WriteString("\n\n")
		}
	}
	_, err = io.WriteString(w, sb.String())
	return err
}

func chartSummary(l Layout, id string, data frame.Table) (string, error) {
	spec, _ := l.Chart(id)
	if err := spec.Validate(data); err != nil {
		return "", err
	}
	enc := spec.Layers[0].Encoding
	group := enc.X.Field
	if enc.Color != nil {
		group = enc.Color.Field
	}
	summaries, err := Summarize(data, enc.X.Field, group, enc.Y.Field)
	if err != nil {
		return "", err
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		}).
		Headers(enc.X.Field, group, "n", "min", "q1", "median", "q3", "max")
	for _, s := range summaries {
		t.Row(s.Category, s.Group, strconv.Itoa(s.N),
			frame.FormatFixed(s.Min, 3),
			frame.FormatFixed(s.Q1, 3),
			frame.FormatFixed(s.Median, 3),
			frame.FormatFixed(s.Q3, 3),
			frame.FormatFixed(s.Max, 3),
		)
	}
	title := spec.Title
	if title == "" {
		title = spec.ID
	}
	return captionStyle.Render(title+" ("+enc.Y.Field+" by "+enc.X.Field+")") + "\n" + t.String(), nil
}

func previewText(data frame.Table, limit int) string {
	view := previewTable(data, limit)
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers(view.Headers...)
	for _, cells := range view.Rows {
		row := make([]string, len(cells))
		for i, c := range cells {
			row[i] = c.Text
		}
		t.Row(row...)
	}
	return t.String() + "\n" + captionStyle.Render(fmt.Sprintf("Showing %d of %d rows", view.Shown, view.Total))
}
