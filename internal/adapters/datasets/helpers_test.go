package datasets

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"micdash/internal/blob"
	"micdash/internal/chart"
	"micdash/internal/core"
	"micdash/internal/dashboard"
)

var fixedNow = time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)

func newCatalog(t *testing.T) *core.Catalog {
	t.Helper()
	c, err := core.NewMICCatalog(core.WithClock(func() time.Time { return fixedNow }))
	require.NoError(t, err)
	return c
}

func chartLookup(t *testing.T) ChartLookup {
	t.Helper()
	layout, err := dashboard.Default()
	require.NoError(t, err)
	return func(id string) (chart.Spec, bool) { return layout.Chart(id) }
}

// startWorker runs a worker over an in-memory blob store and stops it when the
// test ends.
func startWorker(t *testing.T, opts ...WorkerOption) (*Worker, *BlobObjectStore, *memoryAuditLog) {
	t.Helper()
	store := NewBlobObjectStore(blob.NewMemory())
	audit := &memoryAuditLog{}
	opts = append([]WorkerOption{WithCharts(chartLookup(t)), WithClock(func() time.Time { return fixedNow })}, opts...)
	w := NewWorker(newCatalog(t), store, audit, opts...)
	w.Start()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		require.NoError(t, w.Stop(ctx))
	})
	return w, store, audit
}

func waitTerminal(t *testing.T, w *Worker, id string) ExportRecord {
	t.Helper()
	var record ExportRecord
	require.Eventually(t, func() bool {
		var ok bool
		record, ok = w.GetExport(id)
		return ok && (record.Status == ExportStatusSucceeded || record.Status == ExportStatusFailed)
	}, 10*time.Second, 10*time.Millisecond)
	return record
}

type memoryAuditLog struct {
	mu      sync.Mutex
	entries []AuditEntry
}

func (l *memoryAuditLog) Record(_ context.Context, entry AuditEntry) {
	l.mu.Lock()
	l.entries = append(l.entries, entry)
	l.mu.Unlock()
}

func (l *memoryAuditLog) statuses() []ExportStatus {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]ExportStatus, len(l.entries))
	for i, e := range l.entries {
		out[i] = e.Status
	}
	return out
}
