// Package datasetapi is the contract between dataset templates and the hosts
// that serve or export them.
package datasetapi

import (
	"context"
	"fmt"
	"strings"
	"time"

	"micdash/pkg/frame"
)

type Format string

const (
	FormatJSON   Format = "json"
	FormatCSV    Format = "csv"
	FormatHTML   Format = "html"
	FormatPNG    Format = "png"
	FormatPDF    Format = "pdf"
	FormatSQLite Format = "sqlite"
)

// Formats lists every format a template may declare.
func Formats() []Format {
	return []Format{FormatJSON, FormatCSV, FormatHTML, FormatPNG, FormatPDF, FormatSQLite}
}

// ParseFormat maps a case-insensitive name to a Format.
func ParseFormat(name string) (Format, bool) {
	wanted := Format(strings.ToLower(strings.TrimSpace(name)))
	for _, f := range Formats() {
		if f == wanted {
			return f, true
		}
	}
	return "", false
}

// ContentType returns the MIME type of a rendered artifact.
func (f Format) ContentType() string {
	switch f {
	case FormatJSON:
		return "application/json"
	case FormatCSV:
		return "text/csv"
	case FormatHTML:
		return "text/html; charset=utf-8"
	case FormatPNG:
		return "image/png"
	case FormatPDF:
		return "application/pdf"
	case FormatSQLite:
		return "application/vnd.sqlite3"
	default:
		return "application/octet-stream"
	}
}

// Extension is the file suffix for the format, without the dot.
func (f Format) Extension() string {
	if f == FormatSQLite {
		return "sqlite"
	}
	return string(f)
}

type Metadata struct {
	Source        string            `json:"source,omitempty"`
	Documentation string            `json:"documentation,omitempty"`
	Tags          []string          `json:"tags,omitempty"`
	Annotations   map[string]string `json:"annotations,omitempty"`
}

// Runner produces the template's table.
type Runner func(context.Context) (frame.Table, error)

type Template struct {
	Key           string
	Version       string
	Title         string
	Description   string
	Columns       []frame.Column
	Metadata      Metadata
	OutputFormats []Format
	// Chart names the dashboard chart used for the png format.
	Chart  string
	Runner Runner
}

type TemplateDescriptor struct {
	Source        string         `json:"source"`
	Key           string         `json:"key"`
	Version       string         `json:"version"`
	Title         string         `json:"title"`
	Description   string         `json:"description"`
	Columns       []frame.Column `json:"columns"`
	Metadata      Metadata       `json:"metadata"`
	OutputFormats []Format       `json:"output_formats"`
	Chart         string         `json:"chart,omitempty"`
	Slug          string         `json:"slug"`
}

type RunResult struct {
	Schema      []frame.Column `json:"schema"`
	Rows        []frame.Row    `json:"rows"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	GeneratedAt time.Time      `json:"generated_at"`
	Format      Format         `json:"format"`
}

// Table returns the result as a frame table sharing the result's rows.
func (r RunResult) Table() frame.Table {
	return frame.Table{Columns: r.Schema, Rows: r.Rows}
}

// Slug builds the canonical template identifier source/key@version.
func Slug(source, key, version string) string {
	keyPart := strings.TrimSpace(key)
	versionPart := strings.TrimSpace(version)
	if source = strings.TrimSpace(source); source == "" {
		return fmt.Sprintf("%s@%s", keyPart, versionPart)
	}
	return fmt.Sprintf("%s/%s@%s", source, keyPart, versionPart)
}
