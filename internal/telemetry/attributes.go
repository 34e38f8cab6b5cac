// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package telemetry

import (
	"fmt"

	"go.opentelemetry.io/otel/attribute"
)

// Common attribute keys for consistent tracing across the application.
const (
	// HTTP attributes
	HTTPMethodKey     = "http.method"
	HTTPStatusCodeKey = "http.status_code"
	HTTPRouteKey      = "http.route"

	// Render attributes
	RenderJobIDKey      = "render.job_id"
	RenderSegmentsKey   = "render.segments"
	RenderFramesKey     = "render.frames"
	RenderFPSKey        = "render.fps"
	RenderResolutionKey = "render.resolution"
	RenderCodecKey      = "render.codec"
	RenderBackendKey    = "render.backend"
	RenderPhaseKey      = "render.phase"

	// Asset attributes
	AssetRefKey    = "asset.ref"
	AssetKindKey   = "asset.kind"
	AssetCountKey  = "asset.count"
	AssetFormatKey = "asset.format"

	// Error attributes
	ErrorKey     = "error"
	ErrorTypeKey = "error.type"
)

// HTTPAttributes creates common HTTP span attributes.
func HTTPAttributes(method, route string, statusCode int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(HTTPMethodKey, method),
		attribute.String(HTTPRouteKey, route),
		attribute.Int(HTTPStatusCodeKey, statusCode),
	}
}

// RenderAttributes describes a render job at start.
func RenderAttributes(jobID string, segments, frames, fps, width, height int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(RenderJobIDKey, jobID),
		attribute.Int(RenderSegmentsKey, segments),
		attribute.Int(RenderFramesKey, frames),
		attribute.Int(RenderFPSKey, fps),
		attribute.String(RenderResolutionKey, fmt.Sprintf("%dx%d", width, height)),
	}
}

// EncodeAttributes describes the negotiated output.
func EncodeAttributes(codec, backend string) []attribute.KeyValue {
	attrs := []attribute.KeyValue{attribute.String(RenderCodecKey, codec)}
	if backend != "" {
		attrs = append(attrs, attribute.String(RenderBackendKey, backend))
	}
	return attrs
}

// AssetAttributes describes a fetched asset. Empty fields are omitted.
func AssetAttributes(kind, ref string) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, 2)
	if kind != "" {
		attrs = append(attrs, attribute.String(AssetKindKey, kind))
	}
	if ref != "" {
		attrs = append(attrs, attribute.String(AssetRefKey, ref))
	}
	return attrs
}

// ErrorAttributes creates error-related span attributes.
func ErrorAttributes(_ error, errorType string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Bool(ErrorKey, true),
		attribute.String(ErrorTypeKey, errorType),
	}
}
