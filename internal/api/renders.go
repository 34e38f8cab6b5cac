// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package api

import (
	"errors"
	"mime"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ManuGH/adreel/internal/jobs"
	xglog "github.com/ManuGH/adreel/internal/log"
	"github.com/ManuGH/adreel/internal/render"
	"github.com/ManuGH/adreel/internal/timeline"
)

type submitRenderRequest struct {
	Manifest timeline.Manifest `json:"manifest"`
}

func (s *Server) handleSubmitRender(w http.ResponseWriter, r *http.Request) {
	var req submitRenderRequest
	if !decodeBody(w, r, &req) {
		return
	}
	job, err := s.deps.Renders.Submit(r.Context(), req.Manifest.Timeline())
	if err != nil {
		s.renderError(w, r, err)
		return
	}
	w.Header().Set("Location", "/api/v1/renders/"+job.ID)
	writeJSON(w, http.StatusAccepted, job)
}

func (s *Server) handleListRenders(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeProblem(w, r, http.StatusBadRequest, "request/invalid_query", "Invalid Query", "INVALID_LIMIT", "limit must be a non-negative integer")
			return
		}
		limit = n
	}
	list, err := s.deps.Renders.List(r.Context(), limit)
	if err != nil {
		s.renderError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"renders": list})
}

func (s *Server) handleGetRender(w http.ResponseWriter, r *http.Request) {
	job, err := s.deps.Renders.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.renderError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) handleCancelRender(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Renders.Cancel(chi.URLParam(r, "id")); err != nil {
		s.renderError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// handleRenderEvents streams job progress as server-sent events. The first event
// is the current snapshot; the stream ends after the terminal event.
func (s *Server) handleRenderEvents(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	ctx := r.Context()
	job, sub, err := s.deps.Renders.Watch(ctx, id)
	if err != nil {
		s.renderError(w, r, err)
		return
	}
	defer func() { _ = sub.Close() }()

	stream := openEventStream(w, xglog.WithContext(xglog.ContextWithJobID(ctx, id), s.logger))
	if !stream.send("snapshot", job) || job.Status.Terminal() {
		return
	}

	heartbeat := time.NewTicker(s.heartbeat)
	defer heartbeat.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-heartbeat.C:
			if !stream.ping() {
				return
			}
		case msg, ok := <-sub.C():
			if !ok {
				return
			}
			ev, isEvent := msg.(jobs.Event)
			if !isEvent {
				continue
			}
			name := "progress"
			if ev.Terminal {
				name = string(ev.Status)
			}
			if !stream.send(name, ev) || ev.Terminal {
				return
			}
		}
	}
}

func (s *Server) handleRenderArtifact(w http.ResponseWriter, r *http.Request) {
	art, err := s.deps.Renders.Artifact(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.renderError(w, r, err)
		return
	}
	f, err := os.Open(art.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			writeProblem(w, r, http.StatusGone, "render/artifact_gone", "Artifact Gone", "ARTIFACT_GONE", "the rendered file has expired")
			return
		}
		s.renderError(w, r, err)
		return
	}
	defer func() { _ = f.Close() }()
	info, err := f.Stat()
	if err != nil {
		s.renderError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", art.MIMEType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": art.Filename}))
	http.ServeContent(w, r, art.Filename, info.ModTime(), f)
}

func (s *Server) renderError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, jobs.ErrNotFound):
		writeProblem(w, r, http.StatusNotFound, "render/not_found", "Render Not Found", "RENDER_NOT_FOUND", "")
	case errors.Is(err, render.ErrNoContent):
		writeProblem(w, r, http.StatusUnprocessableEntity, "render/no_content", "No Content", "NO_CONTENT", "the manifest has no usable segments")
	case errors.Is(err, jobs.ErrNotReady):
		writeProblem(w, r, http.StatusConflict, "render/not_ready", "Render Not Ready", "NOT_READY", "the render has not finished successfully")
	case errors.Is(err, jobs.ErrFinished):
		writeProblem(w, r, http.StatusConflict, "render/finished", "Render Finished", "ALREADY_FINISHED", "")
	case errors.Is(err, jobs.ErrClosed):
		writeProblem(w, r, http.StatusServiceUnavailable, "system/shutting_down", "Service Unavailable", "SHUTTING_DOWN", "")
	default:
		logger := xglog.WithContext(r.Context(), s.logger)
		logger.Error().Err(err).Msg("render request failed")
		writeProblem(w, r, http.StatusInternalServerError, "system/internal", "Internal Server Error", "INTERNAL", "")
	}
}
