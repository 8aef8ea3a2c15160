package core

import (
	"context"

	"micdash/internal/mic"
	"micdash/pkg/datasetapi"
	"micdash/pkg/frame"
)

// MICSource is the source segment of the built-in template slugs.
const MICSource = "mic"

// Slugs of the built-in templates.
var (
	WideSlug = datasetapi.Slug(MICSource, "burtin-wide", "v1")
	LongSlug = datasetapi.Slug(MICSource, "burtin-long", "v1")
)

// LongChart is the dashboard chart rasterised for png exports of the long table.
const LongChart = "mic-individual"

// MICTemplates returns the wide and long Burtin templates.
func MICTemplates() ([]datasetapi.Template, error) {
	long, err := mic.Long()
	if err != nil {
		return nil, err
	}
	meta := datasetapi.Metadata{
		Source:        "Burtin (1951), antibiotic minimum inhibitory concentrations",
		Documentation: "MIC in " + mic.Unit + "; lower is more effective.",
		Tags:          []string{"mic", "antibiotics", "gram-staining"},
	}
	return []datasetapi.Template{
		{
			Key:           "burtin-wide",
			Version:       "v1",
			Title:         "Burtin MIC (wide)",
			Description:   "One row per bacterium with a MIC column per antibiotic.",
			Columns:       mic.Schema(),
			Metadata:      meta,
			OutputFormats: []datasetapi.Format{datasetapi.FormatJSON, datasetapi.FormatCSV, datasetapi.FormatHTML, datasetapi.FormatPDF, datasetapi.FormatSQLite},
			Runner: func(context.Context) (frame.Table, error) {
				return mic.Wide(), nil
			},
		},
		{
			Key:           "burtin-long",
			Version:       "v1",
			Title:         "Burtin MIC (long)",
			Description:   "One row per bacterium and antibiotic, ready for plotting.",
			Columns:       long.Columns,
			Metadata:      meta,
			OutputFormats: datasetapi.Formats(),
			Chart:         LongChart,
			Runner: func(context.Context) (frame.Table, error) {
				return mic.Long()
			},
		},
	}, nil
}

// NewMICCatalog builds a catalog holding the built-in templates.
func NewMICCatalog(opts ...CatalogOption) (*Catalog, error) {
	templates, err := MICTemplates()
	if err != nil {
		return nil, err
	}
	c := NewCatalog(opts...)
	for _, t := range templates {
		if err := c.Register(MICSource, t); err != nil {
			return nil, err
		}
	}
	return c, nil
}
