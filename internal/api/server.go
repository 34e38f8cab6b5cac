// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package api exposes previews, render jobs and snapshots over HTTP.
package api

import (
	"context"
	"errors"
	"image"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/ManuGH/adreel/internal/api/middleware"
	"github.com/ManuGH/adreel/internal/bus"
	"github.com/ManuGH/adreel/internal/config"
	"github.com/ManuGH/adreel/internal/health"
	"github.com/ManuGH/adreel/internal/jobs"
	xglog "github.com/ManuGH/adreel/internal/log"
	"github.com/ManuGH/adreel/internal/playback"
	"github.com/ManuGH/adreel/internal/render"
	"github.com/ManuGH/adreel/internal/timeline"
)

// RenderJobs is the render job service behind /api/v1/renders.
type RenderJobs interface {
	Submit(ctx context.Context, tl timeline.Timeline) (jobs.Job, error)
	Get(ctx context.Context, id string) (jobs.Job, error)
	List(ctx context.Context, limit int) ([]jobs.Job, error)
	Artifact(ctx context.Context, id string) (render.Artifact, error)
	Watch(ctx context.Context, id string) (jobs.Job, bus.Subscriber, error)
	Cancel(id string) error
}

// Composer produces still frames and reports the usable export formats.
type Composer interface {
	Snapshot(ctx context.Context, tl timeline.Timeline, t float64) (*image.RGBA, error)
	Formats(ctx context.Context) []render.Format
}

// Deps are the services the API serves.
type Deps struct {
	Previews *playback.Manager
	Renders  RenderJobs
	Composer Composer
	Health   *health.Manager
}

// Server holds the HTTP handlers.
type Server struct {
	cfg    config.AppConfig
	deps   Deps
	logger zerolog.Logger

	// heartbeat is the SSE keep-alive interval.
	heartbeat time.Duration
}

// New validates deps and builds the server.
func New(cfg config.AppConfig, deps Deps) (*Server, error) {
	switch {
	case deps.Previews == nil:
		return nil, errors.New("api: preview manager is required")
	case deps.Renders == nil:
		return nil, errors.New("api: render jobs are required")
	case deps.Composer == nil:
		return nil, errors.New("api: composer is required")
	}
	if deps.Health == nil {
		deps.Health = health.NewManager(cfg.Version)
	}
	return &Server{
		cfg:       cfg,
		deps:      deps,
		logger:    xglog.WithComponent("api"),
		heartbeat: 15 * time.Second,
	}, nil
}

// Handler returns the routed handler with the full middleware stack.
func (s *Server) Handler() http.Handler {
	stack := middleware.StackConfig{
		EnableSecurityHeaders: true,
		EnableMetrics:         true,
		EnableLogging:         true,
		MaxBodyBytes:          s.cfg.Server.MaxBodyBytes,
	}
	if s.cfg.Telemetry.Enabled {
		stack.TracingService = s.cfg.Telemetry.ServiceName
	}
	if rl := s.cfg.Server.RateLimit; rl.Enabled {
		stack.RateLimit = middleware.RateLimitConfig{RequestLimit: rl.Requests, WindowSize: rl.Window}
	}

	r := chi.NewRouter()
	r.Get("/healthz", s.deps.Health.ServeHealth)
	r.Get("/readyz", s.deps.Health.ServeReady)
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		middleware.ApplyStack(r, stack)
		r.NotFound(notFound)
		r.Route("/api/v1", s.routesV1)
	})
	return r
}

func notFound(w http.ResponseWriter, r *http.Request) {
	writeProblem(w, r, http.StatusNotFound, "system/not_found", "Not Found", "NOT_FOUND", "")
}

func (s *Server) routesV1(r chi.Router) {
	r.NotFound(notFound)
	r.Get("/formats", s.handleFormats)
	r.Post("/snapshots", s.handleSnapshot)

	r.Route("/previews", func(r chi.Router) {
		r.Post("/", s.handleCreatePreview)
		r.Get("/", s.handleListPreviews)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", s.handleGetPreview)
			r.Delete("/", s.handleDeletePreview)
			r.Post("/actions/{action}", s.handlePreviewAction)
			r.Post("/seek", s.handlePreviewSeek)
			r.Get("/events", s.handlePreviewEvents)
		})
	})

	r.Route("/renders", func(r chi.Router) {
		r.Post("/", s.handleSubmitRender)
		r.Get("/", s.handleListRenders)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", s.handleGetRender)
			r.Delete("/", s.handleCancelRender)
			r.Get("/events", s.handleRenderEvents)
			r.Get("/artifact", s.handleRenderArtifact)
		})
	})
}

func (s *Server) handleFormats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"formats": s.deps.Composer.Formats(r.Context())})
}
