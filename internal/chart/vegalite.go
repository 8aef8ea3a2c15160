package chart

import (
	"encoding/json"

	"micdash/pkg/frame"
)

// VegaLiteSchema is the schema URL stamped on compiled documents.
const VegaLiteSchema = "https://vega.github.io/schema/vega-lite/v5.json"

// Document is a compiled Vega-Lite specification.
type Document map[string]any

// Compile validates the spec against data and produces a Vega-Lite document
// with the encoded columns of the table inlined. The chart fills its
// container width.
func Compile(s Spec, data frame.Table) (Document, error) {
	if err := s.Validate(data); err != nil {
		return nil, err
	}
	projected, err := data.Select(s.Fields()...)
	if err != nil {
		return nil, err
	}
	rows := projected.Rows
	if rows == nil {
		rows = []frame.Row{}
	}
	doc := Document{
		"$schema": VegaLiteSchema,
		"width":   "container",
		"data":    map[string]any{"values": rows},
	}
	if s.Title != "" {
		doc["title"] = s.Title
	}

	layers := make([]map[string]any, len(s.Layers))
	for i, l := range s.Layers {
		layer := map[string]any{
			"mark":     compileMark(l.Mark),
			"encoding": compileEncoding(l.Encoding),
		}
		if l.Data != nil {
			layer["data"] = map[string]any{"values": l.Data}
		}
		layers[i] = layer
	}
	if s.Interactive {
		layers[0]["params"] = []map[string]any{{
			"name":   "grid",
			"select": "interval",
			"bind":   "scales",
		}}
	}
	doc["layer"] = layers

	if cfg := compileConfig(s.Config); len(cfg) > 0 {
		doc["config"] = cfg
	}
	return doc, nil
}

// CompileJSON is Compile encoded as JSON.
func CompileJSON(s Spec, data frame.Table) ([]byte, error) {
	doc, err := Compile(s, data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(doc)
}

func compileMark(m Mark) map[string]any {
	out := map[string]any{"type": string(m.Type)}
	setString(out, "extent", m.Extent)
	setNumber(out, "size", m.Size)
	setNumber(out, "opacity", m.Opacity)
	setString(out, "color", m.Color)
	setString(out, "stroke", m.Stroke)
	setNumber(out, "strokeWidth", m.StrokeWidth)
	setString(out, "align", m.Align)
	setString(out, "baseline", m.Baseline)
	setNumber(out, "dx", m.Dx)
	setNumber(out, "dy", m.Dy)
	setNumber(out, "fontSize", m.FontSize)
	setString(out, "fontWeight", m.FontWeight)
	setString(out, "lineBreak", m.LineBreak)
	if m.Box != nil {
		box := map[string]any{}
		setString(box, "stroke", m.Box.Stroke)
		setNumber(box, "strokeWidth", m.Box.StrokeWidth)
		out["box"] = box
	}
	return out
}

func compileEncoding(e Encoding) map[string]any {
	out := map[string]any{}
	if e.X != nil {
		out["x"] = compileChannel(e.X, false)
	}
	if e.Y != nil {
		out["y"] = compileChannel(e.Y, false)
	}
	if e.Color != nil {
		out["color"] = compileChannel(e.Color, true)
	}
	if e.Text != nil {
		out["text"] = compileChannel(e.Text, false)
	}
	if len(e.Tooltip) > 0 {
		tips := make([]map[string]any, len(e.Tooltip))
		for i := range e.Tooltip {
			tips[i] = compileChannel(&e.Tooltip[i], false)
		}
		out["tooltip"] = tips
	}
	return out
}

func compileChannel(c *Channel, legend bool) map[string]any {
	out := map[string]any{"field": c.Field, "type": string(c.Type)}
	switch {
	case c.HideTitle:
		out["title"] = nil
	case c.Title != "" && legend:
		out["legend"] = map[string]any{"title": c.Title}
	case c.Title != "":
		out["title"] = c.Title
	}
	setString(out, "format", c.Format)
	if c.LabelAngle != nil {
		out["axis"] = map[string]any{"labelAngle": *c.LabelAngle}
	}
	if c.Scale != nil {
		scale := map[string]any{}
		setString(scale, "type", string(c.Scale.Type))
		if len(c.Scale.Range) > 0 {
			scale["range"] = c.Scale.Range
		}
		out["scale"] = scale
	}
	return out
}

func compileConfig(c Config) map[string]any {
	out := map[string]any{}
	for key, f := range map[string]Fonts{"axis": c.Axis, "legend": c.Legend} {
		if f.isZero() {
			continue
		}
		m := map[string]any{}
		setNumber(m, "labelFontSize", f.LabelFontSize)
		setNumber(m, "titleFontSize", f.TitleFontSize)
		out[key] = m
	}
	return out
}

func setString(m map[string]any, key, v string) {
	if v != "" {
		m[key] = v
	}
}

func setNumber(m map[string]any, key string, v float64) {
	if v != 0 {
		m[key] = v
	}
}
