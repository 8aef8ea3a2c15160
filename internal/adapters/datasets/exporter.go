package datasets

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"micdash/internal/chart"
	"micdash/internal/core"
	"micdash/internal/metrics"
	"micdash/internal/render"
	"micdash/pkg/datasetapi"
)

// DefaultQueueSize bounds pending exports when no option overrides it.
const DefaultQueueSize = 32

var (
	ErrTemplateNotFound = errors.New("dataset template not found")
	ErrQueueFull        = errors.New("export queue full")
)

// ExportStatus describes the lifecycle stage of an export request.
type ExportStatus string

const (
	ExportStatusQueued    ExportStatus = "queued"
	ExportStatusRunning   ExportStatus = "running"
	ExportStatusSucceeded ExportStatus = "succeeded"
	ExportStatusFailed    ExportStatus = "failed"
)

// ExportArtifact is one rendered file of an export.
type ExportArtifact struct {
	ID          string             `json:"id"`
	Format      core.DatasetFormat `json:"format"`
	Key         string             `json:"key"`
	ContentType string             `json:"content_type"`
	SizeBytes   int64              `json:"size_bytes"`
	ETag        string             `json:"etag,omitempty"`
	URL         string             `json:"url"`
	Metadata    map[string]string  `json:"metadata,omitempty"`
	CreatedAt   time.Time          `json:"created_at"`
}

// ExportRecord tracks an export request and resulting artifacts.
type ExportRecord struct {
	ID          string                         `json:"id"`
	Template    core.DatasetTemplateDescriptor `json:"template"`
	Formats     []core.DatasetFormat           `json:"formats"`
	Status      ExportStatus                   `json:"status"`
	Error       string                         `json:"error,omitempty"`
	Artifacts   []ExportArtifact               `json:"artifacts,omitempty"`
	RequestedBy string                         `json:"requested_by,omitempty"`
	Reason      string                         `json:"reason,omitempty"`
	CreatedAt   time.Time                      `json:"created_at"`
	UpdatedAt   time.Time                      `json:"updated_at"`
	CompletedAt *time.Time                     `json:"completed_at,omitempty"`
}

// Artifact finds an artifact of the record by ID.
func (r ExportRecord) Artifact(id string) (ExportArtifact, bool) {
	for _, a := range r.Artifacts {
		if a.ID == id {
			return a, true
		}
	}
	return ExportArtifact{}, false
}

// ExportInput represents an enqueue request for the worker.
type ExportInput struct {
	TemplateSlug string
	Formats      []core.DatasetFormat
	RequestedBy  string
	Reason       string
}

// ExportScheduler queues dataset export requests and exposes status.
type ExportScheduler interface {
	EnqueueExport(ctx context.Context, input ExportInput) (ExportRecord, error)
	GetExport(id string) (ExportRecord, bool)
}

// AuditLogger records export audit entries.
type AuditLogger interface {
	Record(ctx context.Context, entry AuditEntry)
}

// AuditEntry captures one export state change.
type AuditEntry struct {
	ID         string            `json:"id"`
	Action     string            `json:"action"`
	Actor      string            `json:"actor"`
	Export     string            `json:"export"`
	Template   string            `json:"template"`
	Status     ExportStatus      `json:"status"`
	Reason     string            `json:"reason,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	OccurredAt time.Time         `json:"occurred_at"`
}

// ChartLookup resolves a chart spec by ID for png and html artifacts.
type ChartLookup func(id string) (chart.Spec, bool)

// Worker executes dataset exports asynchronously.
type Worker struct {
	catalog Catalog
	store   ObjectStore
	audit   AuditLogger
	charts  ChartLookup
	metrics *metrics.Metrics
	log     zerolog.Logger
	now     func() time.Time

	queueSize int
	queue     chan exportTask
	mu        sync.RWMutex
	jobs      map[string]*ExportRecord

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type exportTask struct {
	id    string
	input ExportInput
}

// WorkerOption customises a Worker.
type WorkerOption func(*Worker)

// WithQueueSize bounds the number of pending exports.
func WithQueueSize(n int) WorkerOption {
	return func(w *Worker) {
		if n > 0 {
			w.queueSize = n
		}
	}
}

// WithCharts supplies chart specs for templates that reference one.
func WithCharts(lookup ChartLookup) WorkerOption {
	return func(w *Worker) { w.charts = lookup }
}

func WithMetrics(m *metrics.Metrics) WorkerOption {
	return func(w *Worker) { w.metrics = m }
}

func WithLogger(l zerolog.Logger) WorkerOption {
	return func(w *Worker) { w.log = l }
}

func WithClock(now func() time.Time) WorkerOption {
	return func(w *Worker) { w.now = now }
}

// NewWorker constructs an export worker. A nil store keeps artifacts out of
// storage; they are still rendered and described on the record.
func NewWorker(c Catalog, store ObjectStore, audit AuditLogger, opts ...WorkerOption) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	w := &Worker{
		catalog:   c,
		store:     store,
		audit:     audit,
		log:       zerolog.Nop(),
		now:       time.Now,
		queueSize: DefaultQueueSize,
		jobs:      make(map[string]*ExportRecord),
		ctx:       ctx,
		cancel:    cancel,
	}
	for _, opt := range opts {
		opt(w)
	}
	w.queue = make(chan exportTask, w.queueSize)
	return w
}

// Start begins processing export requests.
func (w *Worker) Start() {
	w.wg.Add(1)
	go w.loop()
}

// Stop signals the worker to halt and waits for the current job, or for ctx.
// Exports still queued stay in the queued state.
func (w *Worker) Stop(ctx context.Context) error {
	w.cancel()
	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *Worker) loop() {
	defer w.wg.Done()
	for {
		select {
		case <-w.ctx.Done():
			return
		case task := <-w.queue:
			w.process(task)
		}
	}
}

// EnqueueExport schedules an export job and returns the queued record.
// Without formats every format the template offers is exported.
func (w *Worker) EnqueueExport(ctx context.Context, input ExportInput) (ExportRecord, error) {
	if w.catalog == nil {
		return ExportRecord{}, errors.New("export catalog not configured")
	}
	slug := strings.TrimSpace(input.TemplateSlug)
	if slug == "" {
		return ExportRecord{}, errors.New("template slug required")
	}
	template, ok := w.catalog.ResolveDatasetTemplate(slug)
	if !ok {
		return ExportRecord{}, fmt.Errorf("%w: %s", ErrTemplateNotFound, slug)
	}

	formats := input.Formats
	if len(formats) == 0 {
		formats = template.OutputFormats
	}
	uniq := make([]core.DatasetFormat, 0, len(formats))
	seen := make(map[core.DatasetFormat]struct{}, len(formats))
	for _, format := range formats {
		if _, dup := seen[format]; dup {
			continue
		}
		if !template.SupportsFormat(format) {
			return ExportRecord{}, fmt.Errorf("%w: %s", core.ErrUnsupportedFormat, format)
		}
		uniq = append(uniq, format)
		seen[format] = struct{}{}
	}

	id := uuid.NewString()
	now := w.now().UTC()
	record := ExportRecord{
		ID:          id,
		Template:    template.Descriptor(),
		Formats:     uniq,
		Status:      ExportStatusQueued,
		RequestedBy: input.RequestedBy,
		Reason:      input.Reason,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	input.TemplateSlug = slug

	w.mu.Lock()
	select {
	case w.queue <- exportTask{id: id, input: input}:
		w.jobs[id] = &record
	default:
		w.mu.Unlock()
		return ExportRecord{}, ErrQueueFull
	}
	snapshot := record.copy()
	w.mu.Unlock()

	w.record(ctx, snapshot, ExportStatusQueued, nil)
	w.log.Info().Str("export", id).Str("template", slug).Msg("export queued")
	return snapshot, nil
}

// GetExport returns a snapshot of the export record.
func (w *Worker) GetExport(id string) (ExportRecord, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	record, ok := w.jobs[id]
	if !ok {
		return ExportRecord{}, false
	}
	return record.copy(), true
}

func (w *Worker) process(task exportTask) {
	record, ok := w.GetExport(task.id)
	if !ok {
		return
	}
	template, ok := w.catalog.ResolveDatasetTemplate(task.input.TemplateSlug)
	if !ok {
		w.fail(task.id, fmt.Sprintf("template %s missing", task.input.TemplateSlug))
		return
	}
	w.updateStatus(task.id, ExportStatusRunning)

	result, err := template.Run(w.ctx, record.Formats[0])
	if err != nil {
		w.fail(task.id, fmt.Sprintf("dataset run failed: %v", err))
		return
	}
	in := render.Input{Template: record.Template, Result: result}
	if template.Chart != "" && w.charts != nil {
		if spec, ok := w.charts(template.Chart); ok {
			in.Chart = &spec
		}
	}

	artifacts := make([]ExportArtifact, 0, len(record.Formats))
	for _, format := range record.Formats {
		artifact, err := w.materialize(task.id, format, in)
		if err != nil {
			w.discard(task.id)
			w.fail(task.id, err.Error())
			return
		}
		artifacts = append(artifacts, artifact)
	}
	w.complete(task.id, artifacts)
}

func (w *Worker) materialize(exportID string, format core.DatasetFormat, in render.Input) (ExportArtifact, error) {
	in.Result.Format = format
	started := time.Now()
	payload, err := render.Materialize(w.ctx, format, in)
	w.metrics.ObserveRender(string(format), started, err)
	if err != nil {
		return ExportArtifact{}, fmt.Errorf("render %s: %w", format, err)
	}

	artifactID := uuid.NewString()
	artifact := ExportArtifact{
		ID:          artifactID,
		Format:      format,
		Key:         artifactKey(exportID, artifactID, format),
		ContentType: format.ContentType(),
		SizeBytes:   int64(len(payload)),
		URL:         artifactURL(exportID, artifactID),
		Metadata: map[string]string{
			"rows":     fmt.Sprint(len(in.Result.Rows)),
			"template": in.Template.Slug,
		},
		CreatedAt: w.now().UTC(),
	}
	if w.store == nil {
		return artifact, nil
	}
	stored, err := w.store.Put(w.ctx, artifact.Key, payload, artifact.ContentType, artifact.Metadata)
	if err != nil {
		return ExportArtifact{}, fmt.Errorf("store artifact: %w", err)
	}
	artifact.ETag = stored.ETag
	if stored.SizeBytes > 0 {
		artifact.SizeBytes = stored.SizeBytes
	}
	return artifact, nil
}

// discard removes the artifacts a failed export stored before it failed, so
// the store only holds complete exports.
func (w *Worker) discard(exportID string) {
	if w.store == nil {
		return
	}
	stored, err := w.store.List(w.ctx, exportPrefix(exportID))
	if err != nil {
		w.log.Warn().Err(err).Str("export", exportID).Msg("list partial artifacts")
		return
	}
	for _, a := range stored {
		if _, err := w.store.Delete(w.ctx, a.Key); err != nil {
			w.log.Warn().Err(err).Str("export", exportID).Str("key", a.Key).Msg("delete partial artifact")
		}
	}
}

func exportPrefix(exportID string) string {
	return "exports/" + exportID + "/"
}

func artifactKey(exportID, artifactID string, format datasetapi.Format) string {
	return fmt.Sprintf("%s%s.%s", exportPrefix(exportID), artifactID, format.Extension())
}

func artifactURL(exportID, artifactID string) string {
	return fmt.Sprintf("%s/%s/artifacts/%s", exportsPath, exportID, artifactID)
}

func (w *Worker) updateStatus(id string, status ExportStatus) {
	record, ok := w.mutate(id, func(r *ExportRecord, now time.Time) {
		r.Status = status
		r.Error = ""
		r.UpdatedAt = now
	})
	if ok {
		w.record(w.ctx, record, status, nil)
	}
}

func (w *Worker) complete(id string, artifacts []ExportArtifact) {
	record, ok := w.mutate(id, func(r *ExportRecord, now time.Time) {
		r.Status = ExportStatusSucceeded
		r.Error = ""
		r.Artifacts = artifacts
		r.UpdatedAt = now
		r.CompletedAt = &now
	})
	if !ok {
		return
	}
	w.metrics.ExportFinished(string(ExportStatusSucceeded))
	w.record(w.ctx, record, ExportStatusSucceeded, map[string]string{"artifacts": fmt.Sprint(len(artifacts))})
	w.log.Info().Str("export", id).Int("artifacts", len(artifacts)).Msg("export succeeded")
}

func (w *Worker) fail(id, reason string) {
	record, ok := w.mutate(id, func(r *ExportRecord, now time.Time) {
		r.Status = ExportStatusFailed
		r.Error = reason
		r.UpdatedAt = now
		r.CompletedAt = &now
	})
	if !ok {
		return
	}
	w.metrics.ExportFinished(string(ExportStatusFailed))
	w.record(w.ctx, record, ExportStatusFailed, map[string]string{"error": reason})
	w.log.Warn().Str("export", id).Str("error", reason).Msg("export failed")
}

// mutate applies fn under the lock and returns the updated snapshot.
func (w *Worker) mutate(id string, fn func(*ExportRecord, time.Time)) (ExportRecord, bool) {
	now := w.now().UTC()
	w.mu.Lock()
	defer w.mu.Unlock()
	record, ok := w.jobs[id]
	if !ok {
		return ExportRecord{}, false
	}
	fn(record, now)
	return record.copy(), true
}

func (w *Worker) record(ctx context.Context, r ExportRecord, status ExportStatus, md map[string]string) {
	if w.audit == nil {
		return
	}
	w.audit.Record(ctx, AuditEntry{
		ID:         uuid.NewString(),
		Action:     "dataset_export",
		Actor:      r.RequestedBy,
		Export:     r.ID,
		Template:   r.Template.Slug,
		Status:     status,
		Reason:     r.Reason,
		Metadata:   md,
		OccurredAt: r.UpdatedAt,
	})
}

func (r ExportRecord) copy() ExportRecord {
	dup := r
	dup.Formats = append([]core.DatasetFormat(nil), r.Formats...)
	if len(r.Artifacts) > 0 {
		dup.Artifacts = make([]ExportArtifact, len(r.Artifacts))
		for i, a := range r.Artifacts {
			a.Metadata = cloneStrings(a.Metadata)
			dup.Artifacts[i] = a
		}
	}
	if r.CompletedAt != nil {
		at := *r.CompletedAt
		dup.CompletedAt = &at
	}
	return dup
}

func cloneStrings(in map[string]string) map[string]string {
	if in == nil {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// ZerologAudit writes audit entries as structured log lines.
type ZerologAudit struct {
	Logger zerolog.Logger
}

func (a ZerologAudit) Record(_ context.Context, e AuditEntry) {
	ev := a.Logger.Info().
		Str("audit_id", e.ID).
		Str("action", e.Action).
		Str("actor", e.Actor).
		Str("export", e.Export).
		Str("template", e.Template).
		Str("status", string(e.Status)).
		Time("occurred_at", e.OccurredAt)
	if e.Reason != "" {
		ev = ev.Str("reason", e.Reason)
	}
	if len(e.Metadata) > 0 {
		dict := zerolog.Dict()
		for k, v := range e.Metadata {
			dict = dict.Str(k, v)
		}
		ev = ev.Dict("metadata", dict)
	}
	ev.Msg("audit")
}
