// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package api

import (
	"bytes"
	"context"
	"errors"
	"image/png"
	"net/http"
	"strconv"

	"github.com/ManuGH/adreel/internal/assets"
	xglog "github.com/ManuGH/adreel/internal/log"
	"github.com/ManuGH/adreel/internal/render"
	"github.com/ManuGH/adreel/internal/timeline"
)

type snapshotRequest struct {
	Manifest timeline.Manifest `json:"manifest"`
	// Time is the timeline position in seconds; it wraps around the duration.
	Time float64 `json:"time"`
}

// handleSnapshot composes the frame at the requested time and returns it as PNG.
func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	var req snapshotRequest
	if !decodeBody(w, r, &req) {
		return
	}
	img, err := s.deps.Composer.Snapshot(r.Context(), req.Manifest.Timeline(), req.Time)
	if err != nil {
		switch {
		case errors.Is(err, render.ErrNoContent):
			writeProblem(w, r, http.StatusUnprocessableEntity, "render/no_content", "No Content", "NO_CONTENT", "the manifest has no usable segments")
		case errors.Is(err, assets.ErrNotFound), errors.Is(err, assets.ErrUnsupportedRef), errors.Is(err, assets.ErrTooLarge):
			writeProblem(w, r, http.StatusUnprocessableEntity, "asset/unusable", "Asset Unusable", "ASSET_UNUSABLE", err.Error())
		case errors.Is(err, context.Canceled):
			return
		default:
			logger := xglog.WithContext(r.Context(), s.logger)
			logger.Warn().Err(err).Msg("snapshot failed")
			writeProblem(w, r, http.StatusBadGateway, "asset/fetch_failed", "Asset Fetch Failed", "ASSET_FETCH_FAILED", err.Error())
		}
		return
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		writeProblem(w, r, http.StatusInternalServerError, "system/internal", "Internal Server Error", "INTERNAL", "")
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(buf.Bytes())
}
