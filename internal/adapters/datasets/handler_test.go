package datasets

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"micdash/internal/core"
)

func serve(h http.Handler, method, target string, body io.Reader, header ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, body)
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]json.RawMessage {
	t.Helper()
	var out map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestListTemplates(t *testing.T) {
	rec := serve(NewHandler(newCatalog(t)), http.MethodGet, "/api/v1/datasets/templates/", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Templates []core.DatasetTemplateDescriptor `json:"templates"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Templates, 2)
	assert.Equal(t, core.LongSlug, body.Templates[0].Slug)
	assert.Equal(t, core.WideSlug, body.Templates[1].Slug)

	rec = serve(NewHandler(newCatalog(t)), http.MethodPost, "/api/v1/datasets/templates", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestGetTemplate(t *testing.T) {
	h := NewHandler(newCatalog(t))
	rec := serve(h, http.MethodGet, "/api/v1/datasets/templates/mic/burtin-long/v1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Template core.DatasetTemplateDescriptor `json:"template"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, core.LongChart, body.Template.Chart)
	assert.Equal(t, "MIC", body.Template.Columns[4].Name)

	for target, code := range map[string]int{
		"/api/v1/datasets/templates/mic":                          http.StatusNotFound,
		"/api/v1/datasets/templates/mic/burtin-long/v9":           http.StatusNotFound,
		"/api/v1/datasets/templates/mic/burtin-long/v1/validate":  http.StatusNotFound,
		"/api/v1/datasets/templates/mic/burtin-long/v1/run/extra": http.StatusNotFound,
		"/api/v1/nothing":                                         http.StatusNotFound,
	} {
		assert.Equal(t, code, serve(h, http.MethodGet, target, nil).Code, target)
	}
	assert.Equal(t, http.StatusMethodNotAllowed, serve(h, http.MethodDelete, "/api/v1/datasets/templates/mic/burtin-long/v1", nil).Code)
	assert.Equal(t, http.StatusMethodNotAllowed, serve(h, http.MethodGet, "/api/v1/datasets/templates/mic/burtin-long/v1/run", nil).Code)
}

func TestRunJSON(t *testing.T) {
	rec := serve(NewHandler(newCatalog(t)), http.MethodPost, "/api/v1/datasets/templates/mic/burtin-long/v1/run", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var body runResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Len(t, body.Result.Rows, 48)
	assert.Equal(t, core.FormatJSON, body.Result.Format)
	assert.True(t, fixedNow.Equal(body.Result.GeneratedAt), body.Result.GeneratedAt)
}

func TestRunCSV(t *testing.T) {
	h := NewHandler(newCatalog(t))
	for _, rec := range []*httptest.ResponseRecorder{
		serve(h, http.MethodPost, "/api/v1/datasets/templates/mic/burtin-wide/v1/run?format=csv", nil),
		serve(h, http.MethodPost, "/api/v1/datasets/templates/mic/burtin-wide/v1/run", nil, "Accept", "text/csv"),
	} {
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "text/csv", rec.Header().Get("Content-Type"))
		assert.Equal(t, `attachment; filename="burtin-wide-20240506T070809Z.csv"`, rec.Header().Get("Content-Disposition"))
		records, err := csv.NewReader(rec.Body).ReadAll()
		require.NoError(t, err)
		assert.Len(t, records, 17)
		assert.Equal(t, "Bacteria", records[0][0])
	}
}

func TestRunNotAcceptable(t *testing.T) {
	h := NewHandler(newCatalog(t))
	for _, f := range []string{"png", "xml"} {
		rec := serve(h, http.MethodPost, "/api/v1/datasets/templates/mic/burtin-long/v1/run?format="+f, nil)
		assert.Equal(t, http.StatusNotAcceptable, rec.Code, f)
	}
}

func TestMissingCatalog(t *testing.T) {
	rec := serve(&Handler{}, http.MethodGet, "/api/v1/datasets/templates", nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "catalog not configured")
}

func TestExportRoutesWithoutScheduler(t *testing.T) {
	rec := serve(NewHandler(newCatalog(t)), http.MethodPost, "/api/v1/datasets/exports", strings.NewReader(`{}`))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func exportHandler(t *testing.T) (*Handler, *Worker) {
	t.Helper()
	w, store, _ := startWorker(t)
	h := NewHandler(newCatalog(t))
	h.Exports = w
	h.Artifacts = store
	return h, w
}

func TestExportLifecycle(t *testing.T) {
	h, w := exportHandler(t)

	rec := serve(h, http.MethodPost, "/api/v1/datasets/exports",
		strings.NewReader(`{"template":{"source":"mic","key":"burtin-long","version":"v1"},"formats":["CSV","png"],"requested_by":"analyst"}`))
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	var created struct {
		Export ExportRecord `json:"export"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Equal(t, ExportStatusQueued, created.Export.Status)
	assert.Equal(t, "/api/v1/datasets/exports/"+created.Export.ID, rec.Header().Get("Location"))

	waitTerminal(t, w, created.Export.ID)
	rec = serve(h, http.MethodGet, "/api/v1/datasets/exports/"+created.Export.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var got struct {
		Export ExportRecord `json:"export"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Equal(t, ExportStatusSucceeded, got.Export.Status, got.Export.Error)
	require.Len(t, got.Export.Artifacts, 2)

	csvArtifact, ok := findFormat(got.Export, core.FormatCSV)
	require.True(t, ok)
	rec = serve(h, http.MethodGet, csvArtifact.URL, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "burtin-long-"+csvArtifact.ID+".csv")
	assert.NotEmpty(t, rec.Header().Get("ETag"))
	assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("Bacteria,Gram_Staining,Genus,Antibiotic,MIC\n")))

	pngArtifact, ok := findFormat(got.Export, core.FormatPNG)
	require.True(t, ok)
	rec = serve(h, http.MethodGet, pngArtifact.URL, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	assert.EqualValues(t, pngArtifact.SizeBytes, rec.Body.Len())
}

func TestExportArtifactMissing(t *testing.T) {
	h, w := exportHandler(t)
	record, err := w.EnqueueExport(context.Background(), ExportInput{TemplateSlug: core.WideSlug, Formats: []core.DatasetFormat{core.FormatCSV}})
	require.NoError(t, err)
	record = waitTerminal(t, w, record.ID)
	require.Len(t, record.Artifacts, 1)

	base := "/api/v1/datasets/exports/" + record.ID
	assert.Equal(t, http.StatusNotFound, serve(h, http.MethodGet, base+"/artifacts/unknown", nil).Code)
	assert.Equal(t, http.StatusNotFound, serve(h, http.MethodGet, base+"/files", nil).Code)
	assert.Equal(t, http.StatusNotFound, serve(h, http.MethodGet, "/api/v1/datasets/exports/nope", nil).Code)
	assert.Equal(t, http.StatusMethodNotAllowed, serve(h, http.MethodDelete, base, nil).Code)
	assert.Equal(t, http.StatusMethodNotAllowed, serve(h, http.MethodGet, "/api/v1/datasets/exports", nil).Code)

	_, err = h.Artifacts.Delete(context.Background(), record.Artifacts[0].Key)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, serve(h, http.MethodGet, record.Artifacts[0].URL, nil).Code)
}

func TestExportCreateErrors(t *testing.T) {
	h, _ := exportHandler(t)
	cases := map[string]struct {
		body string
		code int
	}{
		"bad json":         {`{`, http.StatusBadRequest},
		"no template":      {`{"formats":["csv"]}`, http.StatusBadRequest},
		"unknown format":   {`{"template":{"slug":"mic/burtin-long@v1"},"formats":["parquet"]}`, http.StatusBadRequest},
		"unsupported":      {`{"template":{"slug":"mic/burtin-wide@v1"},"formats":["png"]}`, http.StatusBadRequest},
		"unknown template": {`{"template":{"slug":"mic/other@v1"}}`, http.StatusNotFound},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			rec := serve(h, http.MethodPost, "/api/v1/datasets/exports", strings.NewReader(tc.body))
			assert.Equal(t, tc.code, rec.Code, rec.Body.String())
			assert.Contains(t, decode(t, rec), "error")
		})
	}
}

func TestExportCreateQueueFull(t *testing.T) {
	h := NewHandler(newCatalog(t))
	h.Exports = NewWorker(newCatalog(t), nil, nil, WithQueueSize(1))
	body := `{"template":{"slug":"mic/burtin-wide@v1"},"formats":["csv"]}`
	require.Equal(t, http.StatusAccepted, serve(h, http.MethodPost, "/api/v1/datasets/exports", strings.NewReader(body)).Code)
	assert.Equal(t, http.StatusServiceUnavailable, serve(h, http.MethodPost, "/api/v1/datasets/exports", strings.NewReader(body)).Code)
}
