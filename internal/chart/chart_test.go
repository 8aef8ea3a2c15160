package chart

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"micdash/internal/mic"
	"micdash/pkg/frame"
)

func scatterSpec() Spec {
	zero := 0.0
	return Spec{
		ID:          "scatter",
		Title:       "Individual Bacteria MIC Values",
		Interactive: true,
		Layers: []Layer{{
			Mark: Mark{Type: MarkCircle, Size: 60, Opacity: 0.7},
			Encoding: Encoding{
				X:     &Channel{Field: mic.ColAntibiotic, Type: Nominal, HideTitle: true, LabelAngle: &zero},
				Y:     &Channel{Field: mic.ColMIC, Type: Quantitative, Title: "MIC", Scale: &Scale{Type: ScaleLog}},
				Color: &Channel{Field: mic.ColGramStaining, Type: Nominal, Title: "Gram Staining", Scale: &Scale{Range: []string{"#1f77b4", "#ff7f0e"}}},
				Tooltip: []Channel{
					{Field: mic.ColBacteria, Type: Nominal, Title: "Bacterium"},
					{Field: mic.ColMIC, Type: Quantitative, Format: ".3f"},
				},
			},
		}},
		Config: Config{Axis: Fonts{LabelFontSize: 12, TitleFontSize: 14}},
	}
}

func longTable(t *testing.T) frame.Table {
	t.Helper()
	long, err := mic.Long()
	require.NoError(t, err)
	return long
}

func keys(m map[string]any) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

func TestSortedLabels(t *testing.T) {
	labels, err := sortedLabels(longTable(t), mic.ColAntibiotic)
	require.NoError(t, err)
	assert.Equal(t, []string{mic.ColNeomycin, mic.ColPenicillin, mic.ColStreptomycin}, labels)

	_, err = sortedLabels(mic.Wide(), mic.ColAntibiotic)
	assert.ErrorIs(t, err, frame.ErrSchemaMismatch)

	inline := Layer{
		Mark:     Mark{Type: MarkText},
		Encoding: Encoding{X: &Channel{Field: "x", Type: Nominal}, Y: &Channel{Field: "y", Type: Quantitative}, Text: &Channel{Field: "x", Type: Nominal}},
		Data:     []frame.Row{{"x": 2, "y": 1.0}, {"x": "2", "y": 2.0}, {"x": 1, "y": 3.0}},
	}
	labels, err = sortedLabels(inline.inlineTable(), "x")
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "2"}, labels)
}

func TestValidateAcceptsLongTable(t *testing.T) {
	require.NoError(t, scatterSpec().Validate(longTable(t)))
}

func TestValidateMissingFieldIsSchemaMismatch(t *testing.T) {
	s := scatterSpec()
	s.Layers[0].Encoding.Tooltip = append(s.Layers[0].Encoding.Tooltip, Channel{Field: "Species", Type: Nominal})

	err := s.Validate(longTable(t))
	require.Error(t, err)
	assert.True(t, errors.Is(err, frame.ErrSchemaMismatch))
	var sm *frame.SchemaMismatchError
	require.ErrorAs(t, err, &sm)
	assert.Equal(t, "Species", sm.Column)
}

func TestValidateWideTableIsSchemaMismatch(t *testing.T) {
	err := scatterSpec().Validate(mic.Wide())
	assert.ErrorIs(t, err, frame.ErrSchemaMismatch)
}

func TestValidateInlineData(t *testing.T) {
	s := scatterSpec()
	s.Layers = append(s.Layers, Layer{
		Mark: Mark{Type: MarkText},
		Encoding: Encoding{
			X:    &Channel{Field: mic.ColAntibiotic, Type: Nominal},
			Y:    &Channel{Field: mic.ColMIC, Type: Quantitative},
			Text: &Channel{Field: "text", Type: Nominal},
		},
		Data: []frame.Row{{mic.ColAntibiotic: mic.ColPenicillin, mic.ColMIC: 0.001}},
	})
	err := s.Validate(longTable(t))
	var sm *frame.SchemaMismatchError
	require.ErrorAs(t, err, &sm)
	assert.Equal(t, "text", sm.Column)

	s.Layers[1].Data[0]["text"] = "note"
	assert.NoError(t, s.Validate(longTable(t)))
}

func TestValidateRejectsMalformedSpecs(t *testing.T) {
	cases := map[string]func(*Spec){
		"no id":      func(s *Spec) { s.ID = "" },
		"no layers":  func(s *Spec) { s.Layers = nil },
		"bad mark":   func(s *Spec) { s.Layers[0].Mark.Type = "pie" },
		"bad type":   func(s *Spec) { s.Layers[0].Encoding.X.Type = "temporal-ish" },
		"bad scale":  func(s *Spec) { s.Layers[0].Encoding.Y.Scale.Type = "sqrtish" },
		"missing y":  func(s *Spec) { s.Layers[0].Encoding.Y = nil },
		"text no ch": func(s *Spec) { s.Layers[0].Mark.Type = MarkText },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			s := scatterSpec()
			mutate(&s)
			assert.ErrorIs(t, s.Validate(longTable(t)), ErrInvalidSpec)
		})
	}
}

func TestCompileVegaLite(t *testing.T) {
	data := longTable(t)
	raw, err := CompileJSON(scatterSpec(), data)
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(raw, &doc))
	assert.Equal(t, VegaLiteSchema, doc["$schema"])
	assert.Equal(t, "container", doc["width"])
	assert.Equal(t, "Individual Bacteria MIC Values", doc["title"])

	values := doc["data"].(map[string]any)["values"].([]any)
	assert.Len(t, values, data.Len())
	// only encoded columns are inlined
	first := values[0].(map[string]any)
	assert.ElementsMatch(t, []string{mic.ColAntibiotic, mic.ColMIC, mic.ColGramStaining, mic.ColBacteria}, keys(first))

	layers := doc["layer"].([]any)
	require.Len(t, layers, 1)
	layer := layers[0].(map[string]any)
	assert.NotEmpty(t, layer["params"])
	assert.Equal(t, map[string]any{"type": "circle", "size": 60.0, "opacity": 0.7}, layer["mark"])

	enc := layer["encoding"].(map[string]any)
	x := enc["x"].(map[string]any)
	title, present := x["title"]
	assert.True(t, present)
	assert.Nil(t, title)
	assert.Equal(t, map[string]any{"labelAngle": 0.0}, x["axis"])
	assert.Equal(t, map[string]any{"type": "log"}, enc["y"].(map[string]any)["scale"])
	assert.Equal(t, map[string]any{"title": "Gram Staining"}, enc["color"].(map[string]any)["legend"])
	tips := enc["tooltip"].([]any)
	assert.Equal(t, ".3f", tips[1].(map[string]any)["format"])

	assert.Equal(t, map[string]any{"axis": map[string]any{"labelFontSize": 12.0, "titleFontSize": 14.0}}, doc["config"])
}

func TestCompileIsDeterministic(t *testing.T) {
	a, err := CompileJSON(scatterSpec(), longTable(t))
	require.NoError(t, err)
	b, err := CompileJSON(scatterSpec(), longTable(t))
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestCompileAbortsOnSchemaMismatch(t *testing.T) {
	_, err := Compile(scatterSpec(), mic.Wide())
	assert.ErrorIs(t, err, frame.ErrSchemaMismatch)
}

func TestRenderPNG(t *testing.T) {
	img, err := RenderPNG(scatterSpec(), longTable(t), PNGOptions{Width: 400, Height: 300})
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(img, []byte("\x89PNG\r\n\x1a\n")))
}

func TestRenderPNGNeedsPointLayer(t *testing.T) {
	s := scatterSpec()
	s.Layers[0].Mark.Type = MarkBoxplot
	_, err := RenderPNG(s, longTable(t), PNGOptions{})
	assert.ErrorIs(t, err, ErrInvalidSpec)
}

func TestLogTicksCoverRange(t *testing.T) {
	ticks := logTicks(0.001, 870)
	require.Len(t, ticks, 7)
	assert.Equal(t, "0.001", ticks[0].Label)
	assert.Equal(t, "1000", ticks[6].Label)

	single := logTicks(5, 5)
	assert.Len(t, single, 2)
}
