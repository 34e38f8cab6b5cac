// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package avi

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"io"

	"github.com/rs/zerolog"

	xglog "github.com/ManuGH/adreel/internal/log"
	"github.com/ManuGH/adreel/internal/metrics"
	"github.com/ManuGH/adreel/internal/render"
)

// DefaultQuality is the JPEG quality used for frames.
const DefaultQuality = 90

// Backend encodes frames in-process. It is always available and has no audio.
type Backend struct {
	Quality int
	Logger  zerolog.Logger
}

// NewBackend returns a backend with the default JPEG quality.
func NewBackend() *Backend {
	return &Backend{Quality: DefaultQuality, Logger: xglog.WithComponent("avi")}
}

func (b *Backend) Name() string { return "avi" }

func (b *Backend) Formats(context.Context) ([]render.Format, error) {
	return []render.Format{render.FormatMJPEG}, nil
}

func (b *Backend) NewEncoder(f render.Format) (render.Encoder, error) {
	if f.Container != render.FormatMJPEG.Container || f.VideoCodec != render.FormatMJPEG.VideoCodec {
		return nil, fmt.Errorf("avi: unsupported format %q", f.Name)
	}
	q := b.Quality
	if q <= 0 || q > 100 {
		q = DefaultQuality
	}
	return &Encoder{quality: q, logger: b.Logger}, nil
}

// Encoder writes each frame as a JPEG chunk.
type Encoder struct {
	quality int
	logger  zerolog.Logger

	w    *Writer
	buf  bytes.Buffer
	done bool
}

func (e *Encoder) Begin(ctx context.Context, s render.Stream, audio *render.AudioMix, out io.WriteSeeker) error {
	e.logger = xglog.WithContext(ctx, e.logger)
	w, err := NewWriter(out, s.Width, s.Height, s.FPS)
	if err != nil {
		metrics.EncoderStartTotal.WithLabelValues(render.FormatMJPEG.Name, "error").Inc()
		return err
	}
	metrics.EncoderStartTotal.WithLabelValues(render.FormatMJPEG.Name, "ok").Inc()
	if !audio.Empty() {
		e.logger.Warn().Int("inputs", len(audio.Inputs)).Msg("avi output has no audio stream, audio dropped")
	}
	e.w = w
	return nil
}

func (e *Encoder) WriteFrame(ctx context.Context, frame *image.RGBA) error {
	if e.w == nil || e.done {
		return errors.New("avi: encoder not started")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	e.buf.Reset()
	if err := jpeg.Encode(&e.buf, frame, &jpeg.Options{Quality: e.quality}); err != nil {
		return fmt.Errorf("avi: encode frame: %w", err)
	}
	return e.w.WriteFrame(e.buf.Bytes())
}

func (e *Encoder) Finish(ctx context.Context) (render.Stats, error) {
	if e.w == nil || e.done {
		return render.Stats{}, errors.New("avi: encoder not started")
	}
	if err := ctx.Err(); err != nil {
		e.Abort()
		return render.Stats{}, err
	}
	e.done = true
	size, err := e.w.Close()
	if err != nil {
		metrics.EncoderExitTotal.WithLabelValues("error").Inc()
		return render.Stats{}, err
	}
	metrics.EncoderExitTotal.WithLabelValues("ok").Inc()
	return render.Stats{Frames: e.w.Frames(), Bytes: size}, nil
}

func (e *Encoder) Abort() {
	if e.w == nil || e.done {
		return
	}
	e.done = true
	metrics.EncoderExitTotal.WithLabelValues("aborted").Inc()
}
