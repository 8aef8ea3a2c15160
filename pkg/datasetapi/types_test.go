package datasetapi

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"micdash/pkg/frame"
	"micdash/testutil"
)

func TestParseFormat(t *testing.T) {
	for _, name := range []string{"json", " CSV ", "Html", "png", "pdf", "SQLITE"} {
		f, ok := ParseFormat(name)
		assert.True(t, ok, name)
		assert.Contains(t, Formats(), f)
	}
	for _, name := range []string{"", "parquet", "xlsx"} {
		_, ok := ParseFormat(name)
		assert.False(t, ok, name)
	}
}

func TestFormatContentTypeAndExtension(t *testing.T) {
	cases := []struct {
		format      Format
		contentType string
		ext         string
	}{
		{FormatJSON, "application/json", "json"},
		{FormatCSV, "text/csv", "csv"},
		{FormatHTML, "text/html; charset=utf-8", "html"},
		{FormatPNG, "image/png", "png"},
		{FormatPDF, "application/pdf", "pdf"},
		{FormatSQLite, "application/vnd.sqlite3", "sqlite"},
		{Format("bin"), "application/octet-stream", "bin"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.contentType, tc.format.ContentType(), tc.format)
		assert.Equal(t, tc.ext, tc.format.Extension(), tc.format)
	}
}

func TestSlug(t *testing.T) {
	assert.Equal(t, "mic/burtin-long@v1", Slug("mic", "burtin-long", "v1"))
	assert.Equal(t, "mic/burtin-long@v1", Slug(" mic ", " burtin-long", "v1 "))
	assert.Equal(t, "burtin-long@v1", Slug("", "burtin-long", "v1"))
}

func TestRunResultTableSharesRows(t *testing.T) {
	r := RunResult{
		Schema: []frame.Column{{Name: "MIC", Type: frame.TypeNumber}},
		Rows:   []frame.Row{{"MIC": 0.5}},
	}
	table := r.Table()
	assert.Equal(t, 1, table.Len())
	table.Rows[0]["MIC"] = 1.0
	assert.Equal(t, 1.0, r.Rows[0]["MIC"])
}

func TestImportBoundaries(t *testing.T) {
	testutil.AssertNoDirectImports(t, ".", testutil.PrefixForbidden("micdash/internal"), "datasetapi is public")
}
