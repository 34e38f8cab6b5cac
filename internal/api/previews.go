// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	xglog "github.com/ManuGH/adreel/internal/log"
	"github.com/ManuGH/adreel/internal/playback"
	"github.com/ManuGH/adreel/internal/timeline"
)

type createPreviewRequest struct {
	Manifest timeline.Manifest `json:"manifest"`
	AutoPlay *bool             `json:"autoPlay,omitempty"`
	Muted    bool              `json:"muted,omitempty"`
	// Native track lengths in seconds, when the client knows them.
	NarrationDuration float64 `json:"narrationDuration,omitempty"`
	MusicDuration     float64 `json:"musicDuration,omitempty"`
}

type seekRequest struct {
	Fraction *float64 `json:"fraction"`
}

func seconds(v float64) time.Duration {
	if v <= 0 {
		return 0
	}
	return time.Duration(v * float64(time.Second))
}

func (s *Server) handleCreatePreview(w http.ResponseWriter, r *http.Request) {
	var req createPreviewRequest
	if !decodeBody(w, r, &req) {
		return
	}
	autoPlay := true
	if req.AutoPlay != nil {
		autoPlay = *req.AutoPlay
	}

	sess, err := s.deps.Previews.Create(req.Manifest.Timeline(), playback.CreateOptions{
		AutoPlay:          autoPlay,
		Muted:             req.Muted,
		NarrationDuration: seconds(req.NarrationDuration),
		MusicDuration:     seconds(req.MusicDuration),
	})
	if err != nil {
		s.previewError(w, r, err)
		return
	}
	w.Header().Set("Location", "/api/v1/previews/"+sess.ID)
	writeJSON(w, http.StatusCreated, sess.View())
}

func (s *Server) handleListPreviews(w http.ResponseWriter, _ *http.Request) {
	sessions := s.deps.Previews.List()
	views := make([]playback.SessionView, 0, len(sessions))
	for _, sess := range sessions {
		views = append(views, sess.View())
	}
	writeJSON(w, http.StatusOK, map[string]any{"previews": views})
}

func (s *Server) session(w http.ResponseWriter, r *http.Request) (*playback.Session, bool) {
	sess, err := s.deps.Previews.Get(chi.URLParam(r, "id"))
	if err != nil {
		s.previewError(w, r, err)
		return nil, false
	}
	return sess, true
}

func (s *Server) handleGetPreview(w http.ResponseWriter, r *http.Request) {
	if sess, ok := s.session(w, r); ok {
		writeJSON(w, http.StatusOK, sess.View())
	}
}

func (s *Server) handleDeletePreview(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Previews.Close(chi.URLParam(r, "id")); err != nil {
		s.previewError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// previewActions maps action names to engine operations.
var previewActions = map[string]func(*playback.Session){
	"play":        func(s *playback.Session) { s.Engine.Play() },
	"pause":       func(s *playback.Session) { s.Engine.Pause() },
	"toggle":      func(s *playback.Session) { s.Engine.TogglePlay() },
	"click":       func(s *playback.Session) { s.Engine.Click() },
	"mute":        func(s *playback.Session) { s.Engine.SetMuted(true) },
	"unmute":      func(s *playback.Session) { s.Engine.SetMuted(false) },
	"toggle-mute": func(s *playback.Session) { s.Engine.ToggleMute() },
	"restart":     func(s *playback.Session) { s.Engine.Restart() },
	"interact":    func(s *playback.Session) { s.Engine.Interact() },
}

func (s *Server) handlePreviewAction(w http.ResponseWriter, r *http.Request) {
	action := chi.URLParam(r, "action")
	apply, known := previewActions[action]
	if !known {
		writeProblem(w, r, http.StatusNotFound, "preview/unknown_action", "Unknown Action", "UNKNOWN_ACTION", "unsupported action "+action)
		return
	}
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	apply(sess)
	logger := xglog.WithContext(xglog.ContextWithSessionID(r.Context(), sess.ID), s.logger)
	logger.Debug().
		Str(xglog.FieldEvent, "preview.action").
		Str("action", action).
		Msg("preview action applied")
	writeJSON(w, http.StatusOK, sess.View())
}

func (s *Server) handlePreviewSeek(w http.ResponseWriter, r *http.Request) {
	var req seekRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Fraction == nil {
		writeProblem(w, r, http.StatusBadRequest, "request/invalid_body", "Invalid Request Body", "INVALID_BODY", "fraction is required")
		return
	}
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	sess.Engine.Seek(*req.Fraction)
	writeJSON(w, http.StatusOK, sess.View())
}

// handlePreviewEvents streams session state as server-sent events: a "snapshot"
// with the current view, then one "state" per change, and "closed" when the
// session is torn down.
func (s *Server) handlePreviewEvents(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	ctx := r.Context()
	view, sub, err := s.deps.Previews.Watch(ctx, id)
	if err != nil {
		s.previewError(w, r, err)
		return
	}
	defer func() { _ = sub.Close() }()

	stream := openEventStream(w, xglog.WithContext(xglog.ContextWithSessionID(ctx, id), s.logger))
	if !stream.send("snapshot", view) {
		return
	}
	last := view.State.Version

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
			ev, isEvent := msg.(playback.Event)
			if !isEvent {
				continue
			}
			if ev.Closed {
				stream.send("closed", ev)
				return
			}
			if ev.State.Version <= last {
				continue
			}
			last = ev.State.Version
			if !stream.send("state", ev.State) {
				return
			}
		}
	}
}

func (s *Server) previewError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, playback.ErrSessionNotFound):
		writeProblem(w, r, http.StatusNotFound, "preview/not_found", "Preview Not Found", "PREVIEW_NOT_FOUND", "")
	case errors.Is(err, playback.ErrEventsDisabled):
		writeProblem(w, r, http.StatusNotImplemented, "preview/events_disabled", "Events Not Available", "EVENTS_DISABLED", "")
	case errors.Is(err, playback.ErrTooManySessions):
		writeProblem(w, r, http.StatusTooManyRequests, "preview/limit", "Too Many Previews", "PREVIEW_LIMIT", err.Error())
	default:
		s.logger.Error().Err(err).Msg("preview request failed")
		writeProblem(w, r, http.StatusInternalServerError, "system/internal", "Internal Server Error", "INTERNAL", "")
	}
}
