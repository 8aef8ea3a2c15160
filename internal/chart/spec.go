// Package chart describes charts as data. A Spec is decoded from the dashboard
// layout, validated against the table it will draw and then either compiled to
// a Vega-Lite document for the browser or rasterised to PNG.
package chart

import (
	"errors"
	"fmt"

	"micdash/pkg/frame"
)

// ErrInvalidSpec reports a chart definition that cannot be compiled regardless
// of the data it is paired with.
var ErrInvalidSpec = errors.New("invalid chart spec")

// MarkType enumerates the supported marks.
type MarkType string

const (
	MarkBoxplot MarkType = "boxplot"
	MarkCircle  MarkType = "circle"
	MarkPoint   MarkType = "point"
	MarkText    MarkType = "text"
	MarkBar     MarkType = "bar"
)

// FieldType is the Vega-Lite measurement type of an encoded field.
type FieldType string

const (
	Nominal      FieldType = "nominal"
	Ordinal      FieldType = "ordinal"
	Quantitative FieldType = "quantitative"
)

// ScaleType selects the axis transform.
type ScaleType string

const (
	ScaleLinear ScaleType = "linear"
	ScaleLog    ScaleType = "log"
)

// Spec is a layered chart. Layers without inline data draw the table the spec
// is rendered with.
type Spec struct {
	ID          string  `yaml:"id"`
	Title       string  `yaml:"title,omitempty"`
	Interactive bool    `yaml:"interactive,omitempty"`
	Layers      []Layer `yaml:"layers"`
	Config      Config  `yaml:"config,omitempty"`
}

// Config mirrors the configure_axis / configure_legend font settings.
type Config struct {
	Axis   Fonts `yaml:"axis,omitempty"`
	Legend Fonts `yaml:"legend,omitempty"`
}

type Fonts struct {
	LabelFontSize float64 `yaml:"label_font_size,omitempty"`
	TitleFontSize float64 `yaml:"title_font_size,omitempty"`
}

func (f Fonts) isZero() bool { return f.LabelFontSize == 0 && f.TitleFontSize == 0 }

// Layer is one mark with its encoding. Data, when set, replaces the chart table
// for this layer (used for annotations).
type Layer struct {
	Mark     Mark        `yaml:"mark"`
	Encoding Encoding    `yaml:"encoding"`
	Data     []frame.Row `yaml:"data,omitempty"`
}

// Mark carries the visual properties of a layer. Zero values are omitted.
type Mark struct {
	Type        MarkType  `yaml:"type"`
	Extent      string    `yaml:"extent,omitempty"`
	Size        float64   `yaml:"size,omitempty"`
	Opacity     float64   `yaml:"opacity,omitempty"`
	Color       string    `yaml:"color,omitempty"`
	Stroke      string    `yaml:"stroke,omitempty"`
	StrokeWidth float64   `yaml:"stroke_width,omitempty"`
	Box         *BoxStyle `yaml:"box,omitempty"`

	Align      string  `yaml:"align,omitempty"`
	Baseline   string  `yaml:"baseline,omitempty"`
	Dx         float64 `yaml:"dx,omitempty"`
	Dy         float64 `yaml:"dy,omitempty"`
	FontSize   float64 `yaml:"font_size,omitempty"`
	FontWeight string  `yaml:"font_weight,omitempty"`
	LineBreak  string  `yaml:"line_break,omitempty"`
}

type BoxStyle struct {
	Stroke      string  `yaml:"stroke,omitempty"`
	StrokeWidth float64 `yaml:"stroke_width,omitempty"`
}

// Encoding maps table fields to visual channels.
type Encoding struct {
	X       *Channel  `yaml:"x,omitempty"`
	Y       *Channel  `yaml:"y,omitempty"`
	Color   *Channel  `yaml:"color,omitempty"`
	Text    *Channel  `yaml:"text,omitempty"`
	Tooltip []Channel `yaml:"tooltip,omitempty"`
}

// Channel binds one field. For the color channel Title is the legend title.
type Channel struct {
	Field      string    `yaml:"field"`
	Type       FieldType `yaml:"type"`
	Title      string    `yaml:"title,omitempty"`
	HideTitle  bool      `yaml:"hide_title,omitempty"`
	Format     string    `yaml:"format,omitempty"`
	LabelAngle *float64  `yaml:"label_angle,omitempty"`
	Scale      *Scale    `yaml:"scale,omitempty"`
}

type Scale struct {
	Type  ScaleType `yaml:"type,omitempty"`
	Range []string  `yaml:"range,omitempty"`
}

func (c *Channel) isLog() bool {
	return c != nil && c.Scale != nil && c.Scale.Type == ScaleLog
}

// channels lists every bound channel with its name, tooltips last.
func (e Encoding) channels() []namedChannel {
	var out []namedChannel
	for _, nc := range []namedChannel{{"x", e.X}, {"y", e.Y}, {"color", e.Color}, {"text", e.Text}} {
		if nc.ch != nil {
			out = append(out, nc)
		}
	}
	for i := range e.Tooltip {
		out = append(out, namedChannel{fmt.Sprintf("tooltip[%d]", i), &e.Tooltip[i]})
	}
	return out
}

type namedChannel struct {
	name string
	ch   *Channel
}

// Fields returns the distinct fields referenced by layers drawing the chart
// table, in first-reference order.
func (s Spec) Fields() []string {
	var out []string
	seen := map[string]struct{}{}
	for _, l := range s.Layers {
		if l.Data != nil {
			continue
		}
		for _, nc := range l.Encoding.channels() {
			if _, ok := seen[nc.ch.Field]; ok {
				continue
			}
			seen[nc.ch.Field] = struct{}{}
			out = append(out, nc.ch.Field)
		}
	}
	return out
}

// Validate checks the spec is well formed and that every encoded field exists
// in the data it will be drawn from. Missing fields are reported as
// frame.ErrSchemaMismatch.
func (s Spec) Validate(data frame.Table) error {
	if s.ID == "" {
		return fmt.Errorf("%w: missing id", ErrInvalidSpec)
	}
	if len(s.Layers) == 0 {
		return fmt.Errorf("%w: chart %q has no layers", ErrInvalidSpec, s.ID)
	}
	for i, l := range s.Layers {
		if err := l.validate(data); err != nil {
			return fmt.Errorf("chart %q layer %d: %w", s.ID, i, err)
		}
	}
	return nil
}

func (l Layer) validate(data frame.Table) error {
	switch l.Mark.Type {
	case MarkBoxplot, MarkCircle, MarkPoint, MarkText, MarkBar:
	default:
		return fmt.Errorf("%w: unknown mark %q", ErrInvalidSpec, l.Mark.Type)
	}
	if l.Encoding.X == nil || l.Encoding.Y == nil {
		return fmt.Errorf("%w: x and y must be encoded", ErrInvalidSpec)
	}
	if l.Mark.Type == MarkText && l.Encoding.Text == nil {
		return fmt.Errorf("%w: text mark without text channel", ErrInvalidSpec)
	}
	for _, nc := range l.Encoding.channels() {
		ch := nc.ch
		if ch.Field == "" {
			return fmt.Errorf("%w: %s has no field", ErrInvalidSpec, nc.name)
		}
		switch ch.Type {
		case Nominal, Ordinal, Quantitative:
		default:
			return fmt.Errorf("%w: %s has unknown type %q", ErrInvalidSpec, nc.name, ch.Type)
		}
		if ch.Scale != nil {
			switch ch.Scale.Type {
			case "", ScaleLinear, ScaleLog:
			default:
				return fmt.Errorf("%w: %s has unknown scale %q", ErrInvalidSpec, nc.name, ch.Scale.Type)
			}
		}
		if l.Data == nil {
			if !data.HasColumn(ch.Field) {
				return &frame.SchemaMismatchError{Column: ch.Field, Reason: "encoded by " + nc.name + " but not in data"}
			}
			continue
		}
		for _, row := range l.Data {
			if _, ok := row[ch.Field]; !ok {
				return &frame.SchemaMismatchError{Column: ch.Field, Reason: "encoded by " + nc.name + " but not in inline data"}
			}
		}
	}
	return nil
}
