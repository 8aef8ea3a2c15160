// Package dashboard lays out the MIC page: a title, markdown blocks and the
// chart specs, declared in an embedded YAML document and rendered either as
// an HTML page for the browser or as styled text for a terminal.
package dashboard

import (
	_ "embed"
	"errors"
	"fmt"

	"gopkg.in/yaml.v3"

	"micdash/internal/chart"
)

//go:embed dashboard.yaml
var defaultLayout []byte

// ErrInvalidLayout reports a layout that references unknown charts or block kinds.
var ErrInvalidLayout = errors.New("invalid dashboard layout")

// BlockKind enumerates page blocks.
type BlockKind string

const (
	BlockMarkdown  BlockKind = "markdown"
	BlockChart     BlockKind = "chart"
	BlockSeparator BlockKind = "separator"
	BlockSubheader BlockKind = "subheader"
	BlockTable     BlockKind = "table"
)

// Block is one element of the page, rendered top to bottom.
type Block struct {
	Kind  BlockKind `yaml:"kind"`
	Text  string    `yaml:"text,omitempty"`
	Chart string    `yaml:"chart,omitempty"`
	// Limit caps the rows of a table preview; zero shows every row.
	Limit int `yaml:"limit,omitempty"`
}

// Layout is the whole page.
type Layout struct {
	Title string `yaml:"title"`
	// Dataset is the catalog slug of the table the charts draw.
	Dataset string       `yaml:"dataset"`
	Charts  []chart.Spec `yaml:"charts"`
	Blocks  []Block      `yaml:"blocks"`
}

// Default returns the embedded MIC dashboard.
func Default() (Layout, error) {
	return Parse(defaultLayout)
}

// Parse decodes and validates a layout document.
func Parse(raw []byte) (Layout, error) {
	var l Layout
	if err := yaml.Unmarshal(raw, &l); err != nil {
		return Layout{}, fmt.Errorf("decode layout: %w", err)
	}
	if err := l.Validate(); err != nil {
		return Layout{}, err
	}
	return l, nil
}

// Validate checks chart IDs are unique and every block is well formed.
func (l Layout) Validate() error {
	ids := make(map[string]struct{}, len(l.Charts))
	for _, c := range l.Charts {
		if c.ID == "" {
			return fmt.Errorf("%w: chart without id", ErrInvalidLayout)
		}
		if _, dup := ids[c.ID]; dup {
			return fmt.Errorf("%w: duplicate chart %q", ErrInvalidLayout, c.ID)
		}
		ids[c.ID] = struct{}{}
	}
	for i, b := range l.Blocks {
		switch b.Kind {
		case BlockMarkdown, BlockSubheader:
			if b.Text == "" {
				return fmt.Errorf("%w: block %d (%s) has no text", ErrInvalidLayout, i, b.Kind)
			}
		case BlockChart:
			if _, ok := ids[b.Chart]; !ok {
				return fmt.Errorf("%w: block %d references unknown chart %q", ErrInvalidLayout, i, b.Chart)
			}
		case BlockSeparator, BlockTable:
		default:
			return fmt.Errorf("%w: block %d has unknown kind %q", ErrInvalidLayout, i, b.Kind)
		}
	}
	return nil
}

// Chart looks up a chart spec by ID.
func (l Layout) Chart(id string) (chart.Spec, bool) {
	for _, c := range l.Charts {
		if c.ID == id {
			return c, true
		}
	}
	return chart.Spec{}, false
}
