// Package server wires the dashboard page, the dataset API and the metrics
// endpoint onto one HTTP server.
package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"micdash/internal/adapters/datasets"
	"micdash/internal/blob"
	"micdash/internal/chart"
	"micdash/internal/core"
	"micdash/internal/dashboard"
	"micdash/internal/logging"
	"micdash/internal/metrics"
	"micdash/pkg/frame"
)

// Config holds the listener settings.
type Config struct {
	Addr            string
	ShutdownTimeout time.Duration
	QueueSize       int
}

// Deps are the collaborators the server serves.
type Deps struct {
	Catalog *core.Catalog
	Layout  dashboard.Layout
	Store   blob.Store
	Metrics *metrics.Metrics
	Logger  *logging.Logger
}

// Server owns the HTTP listener and the export worker.
type Server struct {
	cfg     Config
	deps    Deps
	worker  *datasets.Worker
	handler http.Handler
}

// New builds the routes. The worker is created here but only runs inside Run.
func New(cfg Config, deps Deps) (*Server, error) {
	if deps.Catalog == nil {
		return nil, errors.New("server: catalog required")
	}
	if deps.Logger == nil {
		deps.Logger = logging.Nop()
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.New()
	}
	if err := deps.Layout.Validate(); err != nil {
		return nil, err
	}
	if _, ok := deps.Catalog.ResolveDatasetTemplate(deps.Layout.Dataset); !ok {
		return nil, fmt.Errorf("server: dashboard dataset %s not in catalog", deps.Layout.Dataset)
	}

	var store datasets.ObjectStore
	if deps.Store != nil {
		store = datasets.NewBlobObjectStore(deps.Store)
	}
	layout := deps.Layout
	worker := datasets.NewWorker(deps.Catalog, store,
		datasets.ZerologAudit{Logger: deps.Logger.With().Str("component", "audit").Logger()},
		datasets.WithQueueSize(cfg.QueueSize),
		datasets.WithCharts(layout.Chart),
		datasets.WithMetrics(deps.Metrics),
		datasets.WithLogger(deps.Logger.With().Str("component", "exports").Logger()),
	)

	api := datasets.NewHandler(deps.Catalog)
	api.Exports = worker
	api.Artifacts = store

	s := &Server{cfg: cfg, deps: deps, worker: worker}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleDashboard)
	mux.HandleFunc("GET /api/v1/charts", s.handleCharts)
	mux.Handle("/api/v1/datasets/", api)
	mux.Handle("GET /metrics", deps.Metrics.Handler())
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok\n"))
	})
	s.handler = deps.Logger.Middleware(mux)
	return s, nil
}

// Handler returns the routed, access-logged handler.
func (s *Server) Handler() http.Handler { return s.handler }

// Run serves on cfg.Addr until ctx ends, then drains requests and the export
// worker within the shutdown timeout.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.cfg.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.worker.Start()
	log := s.deps.Logger
	log.Info().Str("addr", ln.Addr().String()).Msg("serving")

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-errCh:
	}

	timeout := s.cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	log.Info().Dur("timeout", timeout).Msg("shutting down")
	shutdownErr := srv.Shutdown(shutdownCtx)
	<-errCh
	workerErr := s.worker.Stop(shutdownCtx)
	return errors.Join(serveErr, shutdownErr, workerErr)
}

func (s *Server) dashboardData(ctx context.Context) (frame.Table, error) {
	tmpl, ok := s.deps.Catalog.ResolveDatasetTemplate(s.deps.Layout.Dataset)
	if !ok {
		return frame.Table{}, fmt.Errorf("dashboard dataset %s not in catalog", s.deps.Layout.Dataset)
	}
	result, err := tmpl.Run(ctx, core.FormatJSON)
	if err != nil {
		return frame.Table{}, err
	}
	return result.Table(), nil
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	data, err := s.dashboardData(r.Context())
	var buf bytes.Buffer
	if err == nil {
		err = dashboard.RenderHTML(&buf, s.deps.Layout, data)
	}
	s.deps.Metrics.ObserveRender("page", started, err)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = buf.WriteTo(w)
}

func (s *Server) handleCharts(w http.ResponseWriter, r *http.Request) {
	data, err := s.dashboardData(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	charts := make(map[string]chart.Document, len(s.deps.Layout.Charts))
	for _, spec := range s.deps.Layout.Charts {
		doc, err := chart.Compile(spec, data)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		charts[spec.ID] = doc
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"charts": charts})
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	ev := s.deps.Logger.Error().Err(err).Str("path", r.URL.Path)
	var mismatch *frame.SchemaMismatchError
	if errors.As(err, &mismatch) {
		ev = ev.Str("column", mismatch.Column)
	}
	ev.Msg("render failed")
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusInternalServerError)
	_ = json.NewEncoder(w).Encode(map[string]any{"error": err.Error()})
}
