// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package middleware

import (
	"net/http"
	"time"

	"github.com/rs/zerolog/hlog"

	"github.com/ManuGH/adreel/internal/log"
)

// AccessLog returns the request logging chain: a logger bound to the request
// context and one structured line per finished request.
func AccessLog() []func(http.Handler) http.Handler {
	return []func(http.Handler) http.Handler{
		hlog.NewHandler(log.WithComponent("http")),
		hlog.AccessHandler(func(r *http.Request, status, size int, duration time.Duration) {
			logger := log.WithContext(r.Context(), *hlog.FromRequest(r))
			ev := logger.Info()
			switch {
			case status >= 500:
				ev = logger.Error()
			case r.URL.Path == "/healthz" || r.URL.Path == "/readyz" || r.URL.Path == "/metrics":
				ev = logger.Debug()
			}
			ev.Str("event", "http.request").
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", status).
				Int("size", size).
				Dur("duration", duration).
				Str("remote_addr", r.RemoteAddr).
				Msg("request completed")
		}),
	}
}
