// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// eventStream writes server-sent events. Every write is flushed; a false return
// means the client is gone.
type eventStream struct {
	w      http.ResponseWriter
	rc     *http.ResponseController
	logger zerolog.Logger
}

func openEventStream(w http.ResponseWriter, logger zerolog.Logger) *eventStream {
	rc := http.NewResponseController(w)
	_ = rc.SetWriteDeadline(time.Time{})

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	return &eventStream{w: w, rc: rc, logger: logger}
}

func (s *eventStream) send(event string, v any) bool {
	data, err := json.Marshal(v)
	if err != nil {
		s.logger.Error().Err(err).Str("sse_event", event).Msg("encode event")
		return false
	}
	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", event, data); err != nil {
		return false
	}
	return s.rc.Flush() == nil
}

func (s *eventStream) ping() bool {
	if _, err := fmt.Fprint(s.w, ": ping\n\n"); err != nil {
		return false
	}
	return s.rc.Flush() == nil
}
