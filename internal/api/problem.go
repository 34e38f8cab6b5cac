// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ManuGH/adreel/internal/api/middleware"
	"github.com/ManuGH/adreel/internal/log"
)

// writeProblem writes an RFC 7807 problem details response. problemType is the
// machine identifier ("render/not_found"), code the stable short code.
func writeProblem(w http.ResponseWriter, r *http.Request, status int, problemType, title, code, detail string) {
	reqID := log.RequestIDFromContext(r.Context())
	if reqID == "" {
		reqID = w.Header().Get(middleware.HeaderRequestID)
	}

	res := map[string]any{
		"type":     problemType,
		"title":    title,
		"status":   status,
		"code":     code,
		"instance": r.URL.EscapedPath(),
	}
	if detail != "" {
		res["detail"] = detail
	}
	if reqID != "" {
		res["requestId"] = reqID
	}

	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(res); err != nil {
		logger := log.WithComponentFromContext(r.Context(), "api")
		logger.Error().
			Err(err).
			Str("type", problemType).
			Int("status", status).
			Msg("failed to encode problem response")
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// decodeBody reads a JSON request body into v. It answers the request itself
// and returns false on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeProblem(w, r, http.StatusRequestEntityTooLarge, "request/too_large", "Request Too Large", "BODY_TOO_LARGE", err.Error())
			return false
		}
		writeProblem(w, r, http.StatusBadRequest, "request/invalid_body", "Invalid Request Body", "INVALID_BODY", err.Error())
		return false
	}
	return true
}
