// Package datasets serves the dataset catalog and export pipeline over HTTP.
package datasets

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"micdash/internal/core"
	"micdash/internal/render"
	"micdash/pkg/datasetapi"
)

const (
	templatesPath = "/api/v1/datasets/templates"
	exportsPath   = "/api/v1/datasets/exports"
)

// Catalog exposes dataset templates for HTTP handlers.
type Catalog interface {
	DatasetTemplates() []core.DatasetTemplateDescriptor
	ResolveDatasetTemplate(slug string) (core.DatasetTemplate, bool)
}

// Handler provides HTTP access to dataset templates and exports. Exports and
// Artifacts are optional; their routes 404 when unset.
type Handler struct {
	Catalog   Catalog
	Exports   ExportScheduler
	Artifacts ObjectStore
}

// NewHandler constructs a dataset HTTP handler.
func NewHandler(c Catalog) *Handler {
	return &Handler{Catalog: c}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.Catalog == nil {
		writeError(w, http.StatusInternalServerError, "dataset catalog not configured")
		return
	}

	path := strings.TrimSuffix(r.URL.Path, "/")
	switch {
	case path == templatesPath:
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		h.handleListTemplates(w, r)
	case path == exportsPath || strings.HasPrefix(path, exportsPath+"/"):
		if h.Exports == nil {
			http.NotFound(w, r)
			return
		}
		h.handleExports(w, r, strings.TrimPrefix(strings.TrimPrefix(path, exportsPath), "/"))
	case strings.HasPrefix(path, templatesPath+"/"):
		h.handleTemplate(w, r, strings.TrimPrefix(path, templatesPath+"/"))
	default:
		http.NotFound(w, r)
	}
}

func (h *Handler) handleListTemplates(w http.ResponseWriter, _ *http.Request) {
	templates := h.Catalog.DatasetTemplates()
	sort.Sort(core.DatasetTemplateCollection(templates))
	writeJSON(w, http.StatusOK, map[string]any{"templates": templates})
}

func (h *Handler) handleTemplate(w http.ResponseWriter, r *http.Request, remainder string) {
	segments := strings.Split(remainder, "/")
	if len(segments) < 3 {
		writeError(w, http.StatusNotFound, "dataset template not found")
		return
	}
	template, ok := h.Catalog.ResolveDatasetTemplate(datasetapi.Slug(segments[0], segments[1], segments[2]))
	if !ok {
		writeError(w, http.StatusNotFound, "dataset template not found")
		return
	}

	switch {
	case len(segments) == 3:
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"template": template.Descriptor()})
	case len(segments) == 4 && segments[3] == "run":
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		h.handleRun(w, r, template)
	default:
		writeError(w, http.StatusNotFound, "dataset endpoint not found")
	}
}

type runResponse struct {
	Template core.DatasetTemplateDescriptor `json:"template"`
	Result   core.DatasetRunResult          `json:"result"`
}

// handleRun returns the template table inline. The MIC tables take no
// parameters, so the request body is ignored.
func (h *Handler) handleRun(w http.ResponseWriter, r *http.Request, template core.DatasetTemplate) {
	format := negotiateFormat(r, template)
	if format == "" {
		writeError(w, http.StatusNotAcceptable, "requested format not supported")
		return
	}
	result, err := template.Run(r.Context(), format)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if format == core.FormatCSV {
		filename := fmt.Sprintf("%s-%s.csv", template.Key, result.GeneratedAt.Format("20060102T150405Z"))
		w.Header().Set("Content-Type", format.ContentType())
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
		// headers are out; a failing writer can only truncate
		_ = render.WriteCSV(w, result.Table())
		return
	}
	writeJSON(w, http.StatusOK, runResponse{Template: template.Descriptor(), Result: result})
}

// negotiateFormat picks json or csv from ?format= or the Accept header.
func negotiateFormat(r *http.Request, template core.DatasetTemplate) core.DatasetFormat {
	wanted := strings.ToLower(r.URL.Query().Get("format"))
	if wanted == "" {
		if strings.Contains(r.Header.Get("Accept"), "text/csv") {
			wanted = string(core.FormatCSV)
		} else {
			wanted = string(core.FormatJSON)
		}
	}
	format := core.DatasetFormat(wanted)
	if format != core.FormatCSV && format != core.FormatJSON {
		return ""
	}
	if !template.SupportsFormat(format) {
		return ""
	}
	return format
}

func (h *Handler) handleExports(w http.ResponseWriter, r *http.Request, rest string) {
	if rest == "" {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		h.handleExportCreate(w, r)
		return
	}
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	segments := strings.Split(rest, "/")
	record, ok := h.Exports.GetExport(segments[0])
	if !ok {
		writeError(w, http.StatusNotFound, "export not found")
		return
	}
	switch {
	case len(segments) == 1:
		writeJSON(w, http.StatusOK, map[string]any{"export": record})
	case len(segments) == 3 && segments[1] == "artifacts":
		h.handleArtifact(w, r, record, segments[2])
	default:
		writeError(w, http.StatusNotFound, "export endpoint not found")
	}
}

func (h *Handler) handleArtifact(w http.ResponseWriter, r *http.Request, record ExportRecord, artifactID string) {
	artifact, ok := record.Artifact(artifactID)
	if !ok || h.Artifacts == nil {
		writeError(w, http.StatusNotFound, "artifact not found")
		return
	}
	stored, body, err := h.Artifacts.Get(r.Context(), artifact.Key)
	if errors.Is(err, ErrArtifactNotFound) {
		writeError(w, http.StatusNotFound, "artifact not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	defer func() { _ = body.Close() }()

	contentType := stored.ContentType
	if contentType == "" {
		contentType = artifact.ContentType
	}
	filename := fmt.Sprintf("%s-%s.%s", record.Template.Key, artifact.ID, artifact.Format.Extension())
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	if stored.SizeBytes > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(stored.SizeBytes, 10))
	}
	if stored.ETag != "" {
		w.Header().Set("ETag", strconv.Quote(stored.ETag))
	}
	w.WriteHeader(http.StatusOK)
	_, _ = io.Copy(w, body)
}

type exportRequest struct {
	Template struct {
		Slug    string `json:"slug"`
		Source  string `json:"source"`
		Key     string `json:"key"`
		Version string `json:"version"`
	} `json:"template"`
	Formats     []string `json:"formats"`
	RequestedBy string   `json:"requested_by"`
	Reason      string   `json:"reason"`
}

func (h *Handler) handleExportCreate(w http.ResponseWriter, r *http.Request) {
	var req exportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid export request payload")
		return
	}

	slug := strings.TrimSpace(req.Template.Slug)
	if slug == "" {
		if req.Template.Source == "" || req.Template.Key == "" || req.Template.Version == "" {
			writeError(w, http.StatusBadRequest, "template slug or source/key/version required")
			return
		}
		slug = datasetapi.Slug(req.Template.Source, req.Template.Key, req.Template.Version)
	}

	formats := make([]core.DatasetFormat, 0, len(req.Formats))
	for _, f := range req.Formats {
		format, ok := datasetapi.ParseFormat(f)
		if !ok {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("unsupported export format %q", f))
			return
		}
		formats = append(formats, format)
	}

	record, err := h.Exports.EnqueueExport(r.Context(), ExportInput{
		TemplateSlug: slug,
		Formats:      formats,
		RequestedBy:  req.RequestedBy,
		Reason:       req.Reason,
	})
	switch {
	case errors.Is(err, ErrTemplateNotFound):
		writeError(w, http.StatusNotFound, err.Error())
		return
	case errors.Is(err, ErrQueueFull):
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	case err != nil:
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	w.Header().Set("Location", exportsPath+"/"+record.ID)
	writeJSON(w, http.StatusAccepted, map[string]any{"export": record})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"error": message})
}
