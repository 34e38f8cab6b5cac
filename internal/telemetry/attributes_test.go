// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package telemetry

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
)

func TestHTTPAttributes(t *testing.T) {
	attrs := HTTPAttributes("GET", "/api/v1/renders/{id}", 200)
	require.Len(t, attrs, 3)
	verifyAttribute(t, attrs, HTTPMethodKey, "GET")
	verifyAttribute(t, attrs, HTTPRouteKey, "/api/v1/renders/{id}")
	verifyIntAttribute(t, attrs, HTTPStatusCodeKey, 200)
}

func TestRenderAttributes(t *testing.T) {
	attrs := RenderAttributes("job-1", 2, 360, 30, 1920, 1080)
	require.Len(t, attrs, 5)
	verifyAttribute(t, attrs, RenderJobIDKey, "job-1")
	verifyIntAttribute(t, attrs, RenderFramesKey, 360)
	verifyAttribute(t, attrs, RenderResolutionKey, "1920x1080")
}

func TestEncodeAttributes(t *testing.T) {
	assert.Len(t, EncodeAttributes("mjpeg", ""), 1)
	attrs := EncodeAttributes("vp9", "ffmpeg")
	verifyAttribute(t, attrs, RenderBackendKey, "ffmpeg")
}

func TestAssetAttributes(t *testing.T) {
	tests := []struct {
		name    string
		kind    string
		ref     string
		wantLen int
	}{
		{name: "all fields", kind: "image", ref: "https://cdn.example/a.png", wantLen: 2},
		{name: "only kind", kind: "audio", wantLen: 1},
		{name: "empty", wantLen: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			attrs := AssetAttributes(tt.kind, tt.ref)
			assert.Len(t, attrs, tt.wantLen)
			if tt.ref != "" {
				verifyAttribute(t, attrs, AssetRefKey, tt.ref)
			}
		})
	}
}

func TestErrorAttributes(t *testing.T) {
	attrs := ErrorAttributes(errors.New("boom"), "preload")
	require.Len(t, attrs, 2)
	verifyAttribute(t, attrs, ErrorTypeKey, "preload")
}

func verifyAttribute(t *testing.T, attrs []attribute.KeyValue, key, want string) {
	t.Helper()
	for _, attr := range attrs {
		if string(attr.Key) == key {
			assert.Equal(t, want, attr.Value.AsString(), key)
			return
		}
	}
	t.Errorf("Attribute %s not found", key)
}

func verifyIntAttribute(t *testing.T, attrs []attribute.KeyValue, key string, want int) {
	t.Helper()
	for _, attr := range attrs {
		if string(attr.Key) == key {
			assert.Equal(t, int64(want), attr.Value.AsInt64(), key)
			return
		}
	}
	t.Errorf("Attribute %s not found", key)
}
