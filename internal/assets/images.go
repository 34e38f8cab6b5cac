// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package assets

import (
	"context"
	"fmt"
	"image"
	_ "image/gif"  // register decoder
	_ "image/jpeg" // register decoder
	_ "image/png"  // register decoder

	_ "golang.org/x/image/webp" // register decoder
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/ManuGH/adreel/internal/metrics"
	"github.com/ManuGH/adreel/internal/telemetry"
)

// ImageLoader decodes png, jpeg, gif and webp images from any fetchable reference.
type ImageLoader struct {
	fetch *Fetcher
}

// NewImageLoader returns a loader reading through f.
func NewImageLoader(f *Fetcher) *ImageLoader {
	return &ImageLoader{fetch: f}
}

// Load fetches and decodes ref.
func (l *ImageLoader) Load(ctx context.Context, ref string) (img image.Image, err error) {
	src, _, _ := source(ref)
	ctx, span := telemetry.Tracer("adreel.assets").Start(ctx, "asset.image",
		trace.WithAttributes(telemetry.AssetAttributes("image", ref)...))
	defer func() {
		if err != nil {
			telemetry.Fail(span, err, "image_load")
			metrics.IncAssetFetch("image", src, "error")
		} else {
			metrics.IncAssetFetch("image", src, "ok")
		}
		span.End()
	}()

	rc, err := l.fetch.Open(ctx, ref)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rc.Close() }()

	img, format, err := image.Decode(rc)
	if lr, ok := rc.(*limitedReadCloser); ok {
		metrics.AddAssetBytes("image", lr.n)
	}
	if err != nil {
		return nil, fmt.Errorf("decode image %s: %w", ref, err)
	}
	span.SetAttributes(attribute.String(telemetry.AssetFormatKey, format))
	return img, nil
}
