package chart

import (
	"bytes"
	"fmt"
	"math"
	"sort"
	"strconv"

	gochart "github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"

	"micdash/pkg/frame"
)

// Default raster size.
const (
	DefaultPNGWidth  = 900
	DefaultPNGHeight = 500
)

// Spread between colour groups sharing a category, in category units.
const groupJitter = 0.15

var fallbackPalette = []string{"#1f77b4", "#ff7f0e", "#2ca02c", "#d62728", "#9467bd"}

// PNGOptions sizes the raster. Zero values fall back to the defaults.
type PNGOptions struct {
	Width  int
	Height int
}

// RenderPNG rasterises the first circle or point layer of the spec: nominal x
// categories in sorted order, one series per colour group and a log axis when
// the y channel asks for one. Box plots and text annotations are browser-only.
func RenderPNG(s Spec, data frame.Table, opts PNGOptions) ([]byte, error) {
	if err := s.Validate(data); err != nil {
		return nil, err
	}
	layer, ok := s.pointLayer()
	if !ok {
		return nil, fmt.Errorf("%w: chart %q has no point layer to rasterise", ErrInvalidSpec, s.ID)
	}
	src := data
	if layer.Data != nil {
		src = layer.inlineTable()
	}
	rows := src.Rows
	enc := layer.Encoding
	logY := enc.Y.isLog()

	categories, err := sortedLabels(src, enc.X.Field)
	if err != nil {
		return nil, err
	}
	position := make(map[string]int, len(categories))
	for i, c := range categories {
		position[c] = i + 1
	}
	groups := []string{""}
	if enc.Color != nil {
		if groups, err = sortedLabels(src, enc.Color.Field); err != nil {
			return nil, err
		}
	}
	palette := fallbackPalette
	if enc.Color != nil && enc.Color.Scale != nil && len(enc.Color.Scale.Range) > 0 {
		palette = enc.Color.Scale.Range
	}

	dotWidth := 4.0
	if layer.Mark.Size > 0 {
		// Vega-Lite sizes are areas in square pixels.
		dotWidth = math.Sqrt(layer.Mark.Size) / 2
	}

	minY, maxY := math.Inf(1), math.Inf(-1)
	series := make([]gochart.Series, 0, len(groups))
	for gi, group := range groups {
		offset := (float64(gi) - float64(len(groups)-1)/2) * groupJitter
		var xs, ys []float64
		for _, row := range rows {
			if enc.Color != nil && label(row[enc.Color.Field]) != group {
				continue
			}
			y, ok := frame.ToFloat(row[enc.Y.Field])
			if !ok || math.IsNaN(y) || (logY && y <= 0) {
				continue
			}
			xs = append(xs, float64(position[label(row[enc.X.Field])])+offset)
			ys = append(ys, y)
			minY, maxY = math.Min(minY, y), math.Max(maxY, y)
		}
		if len(xs) == 0 {
			continue
		}
		col := drawing.ColorFromHex(palette[gi%len(palette)])
		series = append(series, gochart.ContinuousSeries{
			Name:    group,
			XValues: xs,
			YValues: ys,
			Style:   pointStyle(col, dotWidth),
		})
	}
	if len(series) == 0 {
		return nil, fmt.Errorf("%w: chart %q has no plottable values", ErrInvalidSpec, s.ID)
	}

	xTicks := []gochart.Tick{{Value: 0.5}}
	for i, c := range categories {
		xTicks = append(xTicks, gochart.Tick{Value: float64(i + 1), Label: c})
	}
	xTicks = append(xTicks, gochart.Tick{Value: float64(len(categories)) + 0.5})

	yAxis := gochart.YAxis{Name: axisTitle(enc.Y)}
	if logY {
		ticks := logTicks(minY, maxY)
		yAxis.Range = &gochart.LogarithmicRange{Min: ticks[0].Value, Max: ticks[len(ticks)-1].Value}
		yAxis.Ticks = ticks
	}

	width, height := opts.Width, opts.Height
	if width <= 0 {
		width = DefaultPNGWidth
	}
	if height <= 0 {
		height = DefaultPNGHeight
	}
	ch := gochart.Chart{
		Title:      s.Title,
		Width:      width,
		Height:     height,
		Background: gochart.Style{Padding: gochart.Box{Top: 24, Left: 16, Right: 16, Bottom: 16}},
		XAxis:      gochart.XAxis{Name: axisTitle(enc.X), Ticks: xTicks},
		YAxis:      yAxis,
		Series:     series,
	}
	if enc.Color != nil {
		ch.Elements = []gochart.Renderable{gochart.Legend(&ch)}
	}

	var buf bytes.Buffer
	if err := ch.Render(gochart.PNG, &buf); err != nil {
		return nil, fmt.Errorf("render png: %w", err)
	}
	return buf.Bytes(), nil
}

func (s Spec) pointLayer() (Layer, bool) {
	for _, l := range s.Layers {
		if l.Mark.Type == MarkCircle || l.Mark.Type == MarkPoint {
			return l, true
		}
	}
	return Layer{}, false
}

// pointStyle draws markers only, no connecting line.
func pointStyle(col drawing.Color, width float64) gochart.Style {
	return gochart.Style{
		StrokeWidth: gochart.Disabled,
		StrokeColor: col,
		DotWidth:    width,
		DotColor:    col,
	}
}

func axisTitle(c *Channel) string {
	if c.HideTitle {
		return ""
	}
	if c.Title != "" {
		return c.Title
	}
	return c.Field
}

// logTicks returns one tick per decade covering [lo, hi].
func logTicks(lo, hi float64) []gochart.Tick {
	const eps = 1e-9
	first := int(math.Floor(math.Log10(lo) + eps))
	last := int(math.Ceil(math.Log10(hi) - eps))
	if last == first {
		last++
	}
	ticks := make([]gochart.Tick, 0, last-first+1)
	for k := first; k <= last; k++ {
		v, _ := strconv.ParseFloat("1e"+strconv.Itoa(k), 64)
		ticks = append(ticks, gochart.Tick{Value: v, Label: strconv.FormatFloat(v, 'g', -1, 64)})
	}
	return ticks
}

// sortedLabels returns the distinct labels of a column in ascending order.
func sortedLabels(t frame.Table, field string) ([]string, error) {
	values, err := t.Distinct(field)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		l := label(v)
		if _, ok := seen[l]; ok {
			continue
		}
		seen[l] = struct{}{}
		out = append(out, l)
	}
	sort.Strings(out)
	return out, nil
}

// inlineTable wraps a layer's inline rows, declaring the encoded fields.
func (l Layer) inlineTable() frame.Table {
	channels := l.Encoding.channels()
	columns := make([]frame.Column, 0, len(channels))
	seen := map[string]struct{}{}
	for _, nc := range channels {
		if _, ok := seen[nc.ch.Field]; ok {
			continue
		}
		seen[nc.ch.Field] = struct{}{}
		columns = append(columns, frame.Column{Name: nc.ch.Field, Type: frame.TypeAny})
	}
	return frame.Table{Columns: columns, Rows: l.Data}
}

func label(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}
