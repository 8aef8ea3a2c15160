package datasets

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"micdash/internal/blob"
	"micdash/internal/core"
	"micdash/internal/metrics"
	"micdash/internal/render"
)

func TestWorkerExportsEveryFormat(t *testing.T) {
	m := metrics.New()
	w, store, audit := startWorker(t, WithMetrics(m))

	queued, err := w.EnqueueExport(context.Background(), ExportInput{TemplateSlug: core.LongSlug, RequestedBy: "analyst", Reason: "weekly"})
	require.NoError(t, err)
	assert.Equal(t, ExportStatusQueued, queued.Status)
	assert.Equal(t, core.LongSlug, queued.Template.Slug)
	assert.Len(t, queued.Formats, 6)

	record := waitTerminal(t, w, queued.ID)
	require.Equal(t, ExportStatusSucceeded, record.Status, record.Error)
	require.Len(t, record.Artifacts, 6)
	require.NotNil(t, record.CompletedAt)

	for _, a := range record.Artifacts {
		assert.Equal(t, "/api/v1/datasets/exports/"+record.ID+"/artifacts/"+a.ID, a.URL)
		assert.Equal(t, a.Format.ContentType(), a.ContentType)
		assert.Equal(t, "48", a.Metadata["rows"])
		assert.NotEmpty(t, a.ETag)

		_, rc, err := store.Get(context.Background(), a.Key)
		require.NoError(t, err, a.Key)
		payload, err := io.ReadAll(rc)
		_ = rc.Close()
		require.NoError(t, err)
		assert.EqualValues(t, len(payload), a.SizeBytes)
	}

	png, ok := findFormat(record, core.FormatPNG)
	require.True(t, ok)
	_, rc, err := store.Get(context.Background(), png.Key)
	require.NoError(t, err)
	defer func() { _ = rc.Close() }()
	head := make([]byte, 4)
	_, err = io.ReadFull(rc, head)
	require.NoError(t, err)
	assert.Equal(t, []byte("\x89PNG"), head)

	// the terminal audit entry lands just after the status flips
	require.Eventually(t, func() bool { return len(audit.statuses()) == 3 }, 5*time.Second, 10*time.Millisecond)
	if diff := cmp.Diff([]ExportStatus{ExportStatusQueued, ExportStatusRunning, ExportStatusSucceeded}, audit.statuses()); diff != "" {
		t.Fatalf("audit trail mismatch (-want +got):\n%s", diff)
	}
	expected := `
# HELP micdash_exports_total Export jobs that reached a terminal state.
# TYPE micdash_exports_total counter
micdash_exports_total{status="succeeded"} 1
`
	require.NoError(t, testutil.GatherAndCompare(m.Registry(), strings.NewReader(expected), "micdash_exports_total"))
	renders, err := testutil.GatherAndCount(m.Registry(), "micdash_renders_total")
	require.NoError(t, err)
	assert.Equal(t, 6, renders)
}

func findFormat(r ExportRecord, f core.DatasetFormat) (ExportArtifact, bool) {
	for _, a := range r.Artifacts {
		if a.Format == f {
			return a, true
		}
	}
	return ExportArtifact{}, false
}

func TestWorkerJSONArtifactCarriesFormat(t *testing.T) {
	w, store, _ := startWorker(t)
	queued, err := w.EnqueueExport(context.Background(), ExportInput{TemplateSlug: core.WideSlug, Formats: []core.DatasetFormat{core.FormatCSV, core.FormatJSON, core.FormatCSV}})
	require.NoError(t, err)
	assert.Equal(t, []core.DatasetFormat{core.FormatCSV, core.FormatJSON}, queued.Formats)

	record := waitTerminal(t, w, queued.ID)
	require.Equal(t, ExportStatusSucceeded, record.Status, record.Error)
	a, ok := findFormat(record, core.FormatJSON)
	require.True(t, ok)
	_, rc, err := store.Get(context.Background(), a.Key)
	require.NoError(t, err)
	defer func() { _ = rc.Close() }()
	var result core.DatasetRunResult
	require.NoError(t, json.NewDecoder(rc).Decode(&result))
	assert.Equal(t, core.FormatJSON, result.Format)
	assert.Len(t, result.Rows, 16)
}

func TestWorkerFailsPNGWithoutCharts(t *testing.T) {
	w := NewWorker(newCatalog(t), nil, nil)
	w.Start()
	defer func() { require.NoError(t, w.Stop(context.Background())) }()

	queued, err := w.EnqueueExport(context.Background(), ExportInput{TemplateSlug: core.LongSlug, Formats: []core.DatasetFormat{core.FormatPNG}})
	require.NoError(t, err)
	record := waitTerminal(t, w, queued.ID)
	assert.Equal(t, ExportStatusFailed, record.Status)
	assert.Contains(t, record.Error, render.ErrChartRequired.Error())
	assert.Empty(t, record.Artifacts)
}

func TestWorkerStoreFailureFailsExport(t *testing.T) {
	w := NewWorker(newCatalog(t), failingStore{}, nil)
	w.Start()
	defer func() { require.NoError(t, w.Stop(context.Background())) }()

	queued, err := w.EnqueueExport(context.Background(), ExportInput{TemplateSlug: core.WideSlug, Formats: []core.DatasetFormat{core.FormatCSV}})
	require.NoError(t, err)
	record := waitTerminal(t, w, queued.ID)
	assert.Equal(t, ExportStatusFailed, record.Status)
	assert.Contains(t, record.Error, "store artifact")
}

type failingStore struct{ ObjectStore }

func (failingStore) Put(context.Context, string, []byte, string, map[string]string) (ExportArtifact, error) {
	return ExportArtifact{}, errors.New("disk full")
}

func (failingStore) List(context.Context, string) ([]ExportArtifact, error) { return nil, nil }

func TestWorkerDiscardsPartialArtifactsOnFailure(t *testing.T) {
	store := NewBlobObjectStore(blob.NewMemory())
	// no chart lookup: csv renders, png then fails
	w := NewWorker(newCatalog(t), store, nil)
	w.Start()
	defer func() { require.NoError(t, w.Stop(context.Background())) }()

	keep, err := store.Put(context.Background(), "exports/other/kept.csv", []byte("a\n"), "text/csv", nil)
	require.NoError(t, err)

	queued, err := w.EnqueueExport(context.Background(), ExportInput{TemplateSlug: core.LongSlug, Formats: []core.DatasetFormat{core.FormatCSV, core.FormatPNG}})
	require.NoError(t, err)
	record := waitTerminal(t, w, queued.ID)
	require.Equal(t, ExportStatusFailed, record.Status)
	assert.Empty(t, record.Artifacts)

	left, err := store.List(context.Background(), exportPrefix(record.ID))
	require.NoError(t, err)
	assert.Empty(t, left)

	all, err := store.List(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, keep.Key, all[0].Key)
}

func TestEnqueueRejections(t *testing.T) {
	w := NewWorker(newCatalog(t), nil, nil)
	ctx := context.Background()

	_, err := w.EnqueueExport(ctx, ExportInput{})
	assert.Error(t, err)
	_, err = w.EnqueueExport(ctx, ExportInput{TemplateSlug: "mic/missing@v1"})
	assert.ErrorIs(t, err, ErrTemplateNotFound)
	_, err = w.EnqueueExport(ctx, ExportInput{TemplateSlug: core.WideSlug, Formats: []core.DatasetFormat{core.FormatPNG}})
	assert.ErrorIs(t, err, core.ErrUnsupportedFormat)

	_, err = NewWorker(nil, nil, nil).EnqueueExport(ctx, ExportInput{TemplateSlug: core.WideSlug})
	assert.Error(t, err)
}

func TestEnqueueQueueFull(t *testing.T) {
	// not started, so nothing drains the queue
	w := NewWorker(newCatalog(t), nil, nil, WithQueueSize(1))
	ctx := context.Background()
	first, err := w.EnqueueExport(ctx, ExportInput{TemplateSlug: core.WideSlug, Formats: []core.DatasetFormat{core.FormatCSV}})
	require.NoError(t, err)
	_, err = w.EnqueueExport(ctx, ExportInput{TemplateSlug: core.WideSlug, Formats: []core.DatasetFormat{core.FormatCSV}})
	assert.ErrorIs(t, err, ErrQueueFull)

	w.mu.RLock()
	assert.Len(t, w.jobs, 1, "rejected export must not linger")
	w.mu.RUnlock()
	got, ok := w.GetExport(first.ID)
	require.True(t, ok)
	assert.Equal(t, ExportStatusQueued, got.Status)
}

func TestGetExportReturnsCopy(t *testing.T) {
	w, _, _ := startWorker(t)
	queued, err := w.EnqueueExport(context.Background(), ExportInput{TemplateSlug: core.WideSlug, Formats: []core.DatasetFormat{core.FormatCSV}})
	require.NoError(t, err)
	record := waitTerminal(t, w, queued.ID)
	record.Artifacts[0].Metadata["rows"] = "tampered"
	record.Formats[0] = core.FormatPDF

	again, _ := w.GetExport(queued.ID)
	assert.Equal(t, "16", again.Artifacts[0].Metadata["rows"])
	assert.Equal(t, core.FormatCSV, again.Formats[0])
}

func TestStopLeavesNoGoroutines(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	w := NewWorker(newCatalog(t), nil, nil)
	w.Start()
	queued, err := w.EnqueueExport(context.Background(), ExportInput{TemplateSlug: core.WideSlug, Formats: []core.DatasetFormat{core.FormatJSON}})
	require.NoError(t, err)
	waitTerminal(t, w, queued.ID)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, w.Stop(ctx))
}

func TestStopHonoursDeadline(t *testing.T) {
	w := NewWorker(newCatalog(t), nil, nil)
	w.wg.Add(1) // a job that never finishes
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, w.Stop(ctx), context.Canceled)
	w.wg.Done()
}

func TestZerologAudit(t *testing.T) {
	var buf bytes.Buffer
	audit := ZerologAudit{Logger: zerolog.New(&buf)}
	audit.Record(context.Background(), AuditEntry{
		ID: "a1", Action: "dataset_export", Actor: "analyst", Export: "e1",
		Template: core.LongSlug, Status: ExportStatusFailed, Reason: "weekly",
		Metadata: map[string]string{"error": "boom"}, OccurredAt: fixedNow,
	})
	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "audit", line["message"])
	assert.Equal(t, "failed", line["status"])
	assert.Equal(t, core.LongSlug, line["template"])
	assert.Equal(t, map[string]any{"error": "boom"}, line["metadata"])
}
