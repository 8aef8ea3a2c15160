package dashboard

import (
	"math"
	"sort"

	"micdash/pkg/frame"
)

// BoxSummary is the five-number summary a box plot draws for one category and
// colour group, with min-max whiskers.
type BoxSummary struct {
	Category string
	Group    string
	N        int
	Min      float64
	Q1       float64
	Median   float64
	Q3       float64
	Max      float64
}

// Summarize groups the numeric value column by category and group. Results are
// ordered by category then group, both ascending. Non-numeric and non-finite
// cells are skipped.
func Summarize(t frame.Table, categoryField, groupField, valueField string) ([]BoxSummary, error) {
	for _, name := range []string{categoryField, groupField} {
		if !t.HasColumn(name) {
			return nil, &frame.SchemaMismatchError{Column: name, Reason: "required for box summary"}
		}
	}
	values, err := t.Floats(valueField)
	if err != nil {
		return nil, err
	}
	type key struct{ category, group string }
	buckets := map[key][]float64{}
	for i, row := range t.Rows {
		v := values[i]
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		k := key{frame.FormatCell(row[categoryField]), frame.FormatCell(row[groupField])}
		buckets[k] = append(buckets[k], v)
	}

	out := make([]BoxSummary, 0, len(buckets))
	for k, values := range buckets {
		sort.Float64s(values)
		out = append(out, BoxSummary{
			Category: k.category,
			Group:    k.group,
			N:        len(values),
			Min:      values[0],
			Q1:       quantile(values, 0.25),
			Median:   quantile(values, 0.5),
			Q3:       quantile(values, 0.75),
			Max:      values[len(values)-1],
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Category != out[j].Category {
			return out[i].Category < out[j].Category
		}
		return out[i].Group < out[j].Group
	})
	return out, nil
}

// quantile interpolates linearly between closest ranks of sorted values.
func quantile(sorted []float64, p float64) float64 {
	rank := p * float64(len(sorted)-1)
	lower := int(rank)
	if lower+1 >= len(sorted) {
		return sorted[lower]
	}
	w := rank - float64(lower)
	return sorted[lower]*(1-w) + sorted[lower+1]*w
}
