// Package core hosts the dataset catalog: named templates that produce the MIC
// tables and the formats each may be exported in.
package core

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"micdash/pkg/datasetapi"
	"micdash/pkg/frame"
)

type (
	DatasetFormat             = datasetapi.Format
	DatasetRunResult          = datasetapi.RunResult
	DatasetTemplateDescriptor = datasetapi.TemplateDescriptor
)

const (
	FormatJSON   = datasetapi.FormatJSON
	FormatCSV    = datasetapi.FormatCSV
	FormatHTML   = datasetapi.FormatHTML
	FormatPNG    = datasetapi.FormatPNG
	FormatPDF    = datasetapi.FormatPDF
	FormatSQLite = datasetapi.FormatSQLite
)

// ErrUnsupportedFormat is returned when a template is run in a format it does
// not declare.
var ErrUnsupportedFormat = errors.New("format not supported by template")

// DatasetTemplate is a registered template together with the source that
// contributed it.
type DatasetTemplate struct {
	datasetapi.Template
	Source string

	now func() time.Time
}

// Descriptor produces a descriptor snapshot, cloning slices so callers cannot
// mutate the registered template.
func (t DatasetTemplate) Descriptor() DatasetTemplateDescriptor {
	return DatasetTemplateDescriptor{
		Source:        t.Source,
		Key:           t.Key,
		Version:       t.Version,
		Title:         t.Title,
		Description:   t.Description,
		Columns:       cloneColumns(t.Columns),
		Metadata:      cloneMetadata(t.Metadata),
		OutputFormats: cloneFormats(t.OutputFormats),
		Chart:         t.Chart,
		Slug:          t.slug(),
	}
}

// SupportsFormat reports whether the template declares the requested format.
func (t DatasetTemplate) SupportsFormat(format DatasetFormat) bool {
	for _, candidate := range t.OutputFormats {
		if candidate == format {
			return true
		}
	}
	return false
}

// Run produces the template table. The result schema must match the declared
// columns; a runner drifting from its declaration is a schema mismatch.
func (t DatasetTemplate) Run(ctx context.Context, format DatasetFormat) (DatasetRunResult, error) {
	if !t.SupportsFormat(format) {
		return DatasetRunResult{}, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}
	if t.Runner == nil {
		return DatasetRunResult{}, fmt.Errorf("dataset template %s has no runner", t.slug())
	}
	table, err := t.Runner(ctx)
	if err != nil {
		return DatasetRunResult{}, fmt.Errorf("run %s: %w", t.slug(), err)
	}
	if err := checkSchema(t.Columns, table); err != nil {
		return DatasetRunResult{}, fmt.Errorf("run %s: %w", t.slug(), err)
	}
	now := time.Now
	if t.now != nil {
		now = t.now
	}
	rows := table.Rows
	if rows == nil {
		rows = []frame.Row{}
	}
	return DatasetRunResult{
		Schema:      table.Columns,
		Rows:        rows,
		Metadata:    map[string]any{"rows": len(rows), "template": t.slug()},
		GeneratedAt: now().UTC(),
		Format:      format,
	}, nil
}

func (t DatasetTemplate) validate() error {
	if strings.TrimSpace(t.Key) == "" || strings.TrimSpace(t.Version) == "" {
		return errors.New("dataset template key and version required")
	}
	if len(t.OutputFormats) == 0 {
		return fmt.Errorf("dataset template %s declares no formats", t.slug())
	}
	for _, f := range t.OutputFormats {
		if _, ok := datasetapi.ParseFormat(string(f)); !ok {
			return fmt.Errorf("dataset template %s declares unknown format %q", t.slug(), f)
		}
	}
	if t.SupportsFormat(FormatPNG) && t.Chart == "" {
		return fmt.Errorf("dataset template %s offers png without a chart", t.slug())
	}
	if t.Runner == nil {
		return fmt.Errorf("dataset template %s has no runner", t.slug())
	}
	return nil
}

func (t DatasetTemplate) slug() string {
	return datasetapi.Slug(t.Source, t.Key, t.Version)
}

func checkSchema(declared []frame.Column, table frame.Table) error {
	got := table.ColumnNames()
	if len(got) != len(declared) {
		return &frame.SchemaMismatchError{Reason: fmt.Sprintf("runner produced %d columns, template declares %d", len(got), len(declared))}
	}
	for i, c := range declared {
		if got[i] != c.Name {
			return &frame.SchemaMismatchError{Column: c.Name, Reason: fmt.Sprintf("expected at position %d, runner produced %q", i, got[i])}
		}
	}
	return nil
}

// DatasetTemplateCollection sorts descriptors by source, key then version.
type DatasetTemplateCollection []DatasetTemplateDescriptor

func (c DatasetTemplateCollection) Len() int      { return len(c) }
func (c DatasetTemplateCollection) Swap(i, j int) { c[i], c[j] = c[j], c[i] }
func (c DatasetTemplateCollection) Less(i, j int) bool {
	if c[i].Source != c[j].Source {
		return c[i].Source < c[j].Source
	}
	if c[i].Key != c[j].Key {
		return c[i].Key < c[j].Key
	}
	return c[i].Version < c[j].Version
}

// Catalog holds registered dataset templates keyed by slug.
type Catalog struct {
	mu        sync.RWMutex
	templates map[string]DatasetTemplate
	now       func() time.Time
}

// CatalogOption customises a catalog.
type CatalogOption func(*Catalog)

// WithClock overrides the clock stamped on run results.
func WithClock(now func() time.Time) CatalogOption {
	return func(c *Catalog) { c.now = now }
}

// NewCatalog constructs an empty catalog.
func NewCatalog(opts ...CatalogOption) *Catalog {
	c := &Catalog{templates: make(map[string]DatasetTemplate)}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Register adds a template contributed by source.
func (c *Catalog) Register(source string, template datasetapi.Template) error {
	t := DatasetTemplate{Template: cloneTemplate(template), Source: source, now: c.now}
	if err := t.validate(); err != nil {
		return err
	}
	slug := t.slug()
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.templates[slug]; exists {
		return fmt.Errorf("dataset template %s already registered", slug)
	}
	c.templates[slug] = t
	return nil
}

// DatasetTemplates returns descriptors for every registered template, sorted.
func (c *Catalog) DatasetTemplates() []DatasetTemplateDescriptor {
	c.mu.RLock()
	out := make([]DatasetTemplateDescriptor, 0, len(c.templates))
	for _, t := range c.templates {
		out = append(out, t.Descriptor())
	}
	c.mu.RUnlock()
	sort.Sort(DatasetTemplateCollection(out))
	return out
}

// ResolveDatasetTemplate looks a template up by slug.
func (c *Catalog) ResolveDatasetTemplate(slug string) (DatasetTemplate, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.templates[strings.TrimSpace(slug)]
	return t, ok
}

func cloneColumns(columns []frame.Column) []frame.Column {
	if len(columns) == 0 {
		return nil
	}
	cloned := make([]frame.Column, len(columns))
	copy(cloned, columns)
	return cloned
}

func cloneMetadata(metadata datasetapi.Metadata) datasetapi.Metadata {
	cloned := metadata
	if len(metadata.Tags) > 0 {
		cloned.Tags = append([]string(nil), metadata.Tags...)
	}
	if len(metadata.Annotations) > 0 {
		cloned.Annotations = make(map[string]string, len(metadata.Annotations))
		for k, v := range metadata.Annotations {
			cloned.Annotations[k] = v
		}
	}
	return cloned
}

func cloneFormats(formats []DatasetFormat) []DatasetFormat {
	if len(formats) == 0 {
		return nil
	}
	cloned := make([]DatasetFormat, len(formats))
	copy(cloned, formats)
	return cloned
}

func cloneTemplate(t datasetapi.Template) datasetapi.Template {
	cloned := t
	cloned.Columns = cloneColumns(t.Columns)
	cloned.Metadata = cloneMetadata(t.Metadata)
	cloned.OutputFormats = cloneFormats(t.OutputFormats)
	return cloned
}
