// Package render encodes a dataset run result into export artifacts.
package render

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"micdash/internal/chart"
	"micdash/pkg/datasetapi"
	"micdash/pkg/frame"
)

// ErrChartRequired is returned for png renders without a chart spec.
var ErrChartRequired = errors.New("png export requires a chart")

// Input is everything a materializer may need.
type Input struct {
	Template datasetapi.TemplateDescriptor
	Result   datasetapi.RunResult
	// Chart is drawn by the png and html formats when set.
	Chart *chart.Spec
}

func (in Input) title() string {
	if in.Template.Title != "" {
		return in.Template.Title
	}
	return in.Template.Slug
}

func (in Input) columns() []frame.Column {
	if len(in.Result.Schema) > 0 {
		return in.Result.Schema
	}
	return in.Template.Columns
}

func (in Input) table() frame.Table {
	return frame.Table{Columns: in.columns(), Rows: in.Result.Rows}
}

// Materialize encodes the input in the requested format.
func Materialize(ctx context.Context, format datasetapi.Format, in Input) ([]byte, error) {
	switch format {
	case datasetapi.FormatJSON:
		return JSON(in)
	case datasetapi.FormatCSV:
		var buf bytes.Buffer
		if err := WriteCSV(&buf, in.table()); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	case datasetapi.FormatHTML:
		return HTML(in)
	case datasetapi.FormatPNG:
		return PNG(in)
	case datasetapi.FormatPDF:
		return PDF(in)
	case datasetapi.FormatSQLite:
		return SQLite(ctx, in)
	default:
		return nil, fmt.Errorf("unsupported export format %s", format)
	}
}

// JSON encodes the run result.
func JSON(in Input) ([]byte, error) {
	payload, err := json.Marshal(in.Result)
	if err != nil {
		return nil, fmt.Errorf("marshal json: %w", err)
	}
	return payload, nil
}

// WriteCSV writes a header row then one record per row in schema order.
func WriteCSV(w io.Writer, t frame.Table) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(t.ColumnNames()); err != nil {
		return err
	}
	for _, row := range t.Rows {
		record := make([]string, len(t.Columns))
		for i, column := range t.Columns {
			record[i] = frame.FormatCell(row[column.Name])
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// PNG rasterises the input chart.
func PNG(in Input) ([]byte, error) {
	if in.Chart == nil {
		return nil, ErrChartRequired
	}
	return chart.RenderPNG(*in.Chart, in.table(), chart.PNGOptions{})
}
